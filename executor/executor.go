// Package executor turns a scorer AUTO_EXECUTE recommendation (or a
// watchdog exit decision) into a submitted, confirmed Solana swap. It
// quotes a Jupiter-like router, builds the unsigned transaction,
// delegates signing to the isolated signer subprocess, submits to the
// primary RPC endpoint with fallback to the configured RPC chain, and
// polls for confirmation, grounded on the teacher's swaprpc JSON-RPC
// client and sign-and-submit handler.
package executor

import (
	"context"
	"fmt"
	"time"

	"chadboar/heartbeat-core/cycleerrors"
	"chadboar/heartbeat-core/observability/metrics"
	"chadboar/heartbeat-core/signer"
)

// Side is the swap direction.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// Outcome is the confirmed result of one submitted swap.
type Outcome string

const (
	OutcomeSuccess Outcome = "SUCCESS"
	OutcomeFailed  Outcome = "FAILED"
)

// submitRetries, submitRetryGap, pollInterval and pollTotal implement
// spec.md section 6's swap submission flow exactly: three submission
// retries two seconds apart, then confirmation polling every four
// seconds for up to thirty-two seconds total.
const (
	submitRetries  = 3
	submitRetryGap = 2 * time.Second
	pollInterval   = 4 * time.Second
	pollTotal      = 32 * time.Second
)

// Request describes one swap to execute. For a SideBuy, AmountSOL is
// the input size; for a SideSell, TokenAmount (raw token units, already
// decimal-adjusted) is the input size and AmountSOL is left zero.
type Request struct {
	TokenMint   string
	Side        Side
	AmountSOL   float64
	TokenAmount float64
	SlippageBPS int
}

// Result is the confirmed outcome of a submitted swap. AmountReceived is
// denominated in SOL for a sell, or in the token's raw units for a buy;
// SOLSpent is only populated for a buy.
type Result struct {
	Signature      string
	Outcome        Outcome
	AmountReceived float64
	SOLSpent       float64
}

// RPCEndpoint is the minimal surface executor needs from an RPC client;
// satisfied by *datasource.Client via the adapter in rpc.go.
type RPCEndpoint interface {
	Name() string
	Call(ctx context.Context, method string, params interface{}, out interface{}) error
}

// QuoteEndpoint is the minimal surface executor needs from the Jupiter-
// like router quoter.
type QuoteEndpoint interface {
	Quote(ctx context.Context, req Request) (QuoteResponse, error)
	BuildUnsignedTx(ctx context.Context, q QuoteResponse) (string, error)
}

// QuoteResponse is the router's quoted route for one swap.
type QuoteResponse struct {
	InAmountSOL  float64
	OutAmountSOL float64
	OutAmountTok float64
	RouteLabel   string
	RawQuote     []byte
}

// Executor wires the quoter, the isolated signer, and the RPC fallback
// chain into the full quote -> sign -> submit -> confirm flow.
type Executor struct {
	Quoter   QuoteEndpoint
	Signer   signer.Signer
	RPCChain []RPCEndpoint
	now      func() time.Time
}

// New constructs an Executor. rpcChain is tried in order on submission
// failure; the first endpoint is the primary.
func New(quoter QuoteEndpoint, sign signer.Signer, rpcChain []RPCEndpoint) *Executor {
	return &Executor{Quoter: quoter, Signer: sign, RPCChain: rpcChain, now: time.Now}
}

// Execute runs the full swap lifecycle for one request: quote, build,
// sign, submit with retries across the RPC fallback chain, then poll
// for confirmation. It always returns a Result (never leaves the
// caller uncertain of outcome) except when it cannot even obtain a
// quote or a signature, which are reported as cycleerrors.Error.
func (e *Executor) Execute(ctx context.Context, req Request) (Result, error) {
	quote, err := e.Quoter.Quote(ctx, req)
	if err != nil {
		return Result{}, cycleerrors.New("executor", cycleerrors.TransactionFailure, "quote failed").WithCause(err).WithTier(cycleerrors.Warning)
	}

	unsignedTx, err := e.Quoter.BuildUnsignedTx(ctx, quote)
	if err != nil {
		return Result{}, cycleerrors.New("executor", cycleerrors.TransactionFailure, "build unsigned tx failed").WithCause(err).WithTier(cycleerrors.Warning)
	}

	signedTx, err := e.Signer.Sign(ctx, unsignedTx)
	if err != nil {
		return Result{}, cycleerrors.New("executor", cycleerrors.TransactionFailure, "signing failed").WithCause(err).WithTier(cycleerrors.Critical)
	}

	signature, err := e.submit(ctx, signedTx)
	if err != nil {
		metrics.Heartbeat().Exit("submit_failed", string(req.Side))
		return Result{Outcome: OutcomeFailed}, cycleerrors.New("executor", cycleerrors.TransactionFailure, "submission exhausted all RPC endpoints").WithCause(err).WithTier(cycleerrors.Critical)
	}

	confirmed := e.confirm(ctx, signature)
	result := Result{
		Signature: signature,
		Outcome:   OutcomeFailed,
	}
	if req.Side == SideBuy {
		result.SOLSpent = quote.InAmountSOL
	}
	if confirmed {
		result.Outcome = OutcomeSuccess
		if req.Side == SideSell {
			result.AmountReceived = quote.OutAmountSOL
		} else {
			result.AmountReceived = quote.OutAmountTok
		}
	}
	return result, nil
}

// submit tries each RPC endpoint in order, retrying submitRetries times
// submitRetryGap apart before falling through to the next endpoint.
func (e *Executor) submit(ctx context.Context, signedTxBase64 string) (string, error) {
	var lastErr error
	for _, ep := range e.RPCChain {
		for attempt := 0; attempt < submitRetries; attempt++ {
			var out struct {
				Signature string `json:"result"`
			}
			params := []interface{}{signedTxBase64, map[string]interface{}{
				"skipPreflight":       true,
				"preflightCommitment": "processed",
				"encoding":            "base64",
			}}
			err := ep.Call(ctx, "sendTransaction", params, &out)
			if err == nil && out.Signature != "" {
				return out.Signature, nil
			}
			lastErr = err
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(submitRetryGap):
			}
		}
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("no rpc endpoints configured")
	}
	return "", lastErr
}

// confirm polls getSignatureStatuses every pollInterval up to pollTotal,
// returning true only if the signature is found confirmed with no
// transaction error.
func (e *Executor) confirm(ctx context.Context, signature string) bool {
	if len(e.RPCChain) == 0 {
		return false
	}
	primary := e.RPCChain[0]
	deadline := e.now().Add(pollTotal)

	for e.now().Before(deadline) {
		var out struct {
			Result struct {
				Value []*struct {
					ConfirmationStatus string      `json:"confirmationStatus"`
					Err                interface{} `json:"err"`
				} `json:"value"`
			} `json:"result"`
		}
		params := []interface{}{
			[]string{signature},
			map[string]interface{}{"searchTransactionHistory": true},
		}
		if err := primary.Call(ctx, "getSignatureStatuses", params, &out); err == nil {
			if len(out.Result.Value) > 0 && out.Result.Value[0] != nil {
				status := out.Result.Value[0]
				if status.Err != nil {
					return false
				}
				if status.ConfirmationStatus == "confirmed" || status.ConfirmationStatus == "finalized" {
					return true
				}
			}
		}
		select {
		case <-ctx.Done():
			return false
		case <-time.After(pollInterval):
		}
	}
	return false
}
