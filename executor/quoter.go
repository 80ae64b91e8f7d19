package executor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"chadboar/heartbeat-core/config"
)

// lamportsPerSOL converts whole SOL to the lamport unit the router API
// expects.
const lamportsPerSOL = 1_000_000_000

// wrappedSOLMint is the canonical mint address the router uses for
// native SOL legs of a swap.
const wrappedSOLMint = "So11111111111111111111111111111111111111112"

// JupiterQuoter implements QuoteEndpoint against a Jupiter-like swap
// aggregator: GET /quote for a route, POST /swap for the unsigned,
// base64-encoded transaction, with prioritizationFeeLamports left to
// the router's "auto" setting per spec.md section 6.
type JupiterQuoter struct {
	baseURL string
	http    *http.Client
	payer   string
}

// NewJupiterQuoter builds a JupiterQuoter bound to the configured
// quoter endpoint and the wallet's public key (the fee payer for the
// built transaction).
func NewJupiterQuoter(ep config.SourceEndpoint, payerPublicKey string) *JupiterQuoter {
	return &JupiterQuoter{
		baseURL: ep.BaseURL,
		http:    &http.Client{Timeout: ep.Timeout},
		payer:   payerPublicKey,
	}
}

type jupiterQuoteResponse struct {
	InAmount  string `json:"inAmount"`
	OutAmount string `json:"outAmount"`
	RoutePlan []struct {
		SwapInfo struct {
			Label string `json:"label"`
		} `json:"swapInfo"`
	} `json:"routePlan"`
	raw json.RawMessage
}

// Quote requests a route for the given swap direction and amount.
func (q *JupiterQuoter) Quote(ctx context.Context, req Request) (QuoteResponse, error) {
	inputMint, outputMint := wrappedSOLMint, req.TokenMint
	amount := int64(req.AmountSOL * lamportsPerSOL)
	if req.Side == SideSell {
		inputMint, outputMint = req.TokenMint, wrappedSOLMint
		amount = int64(req.TokenAmount)
	}

	url := fmt.Sprintf("%s/v6/quote?inputMint=%s&outputMint=%s&amount=%d&slippageBps=%d",
		q.baseURL, inputMint, outputMint, amount, req.SlippageBPS)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return QuoteResponse{}, fmt.Errorf("executor: build quote request: %w", err)
	}
	resp, err := q.http.Do(httpReq)
	if err != nil {
		return QuoteResponse{}, fmt.Errorf("executor: quote request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return QuoteResponse{}, fmt.Errorf("executor: read quote response: %w", err)
	}
	if resp.StatusCode >= 400 {
		return QuoteResponse{}, fmt.Errorf("executor: quote returned status %d: %s", resp.StatusCode, body)
	}

	var parsed jupiterQuoteResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return QuoteResponse{}, fmt.Errorf("executor: decode quote: %w", err)
	}
	parsed.raw = body

	outAmount, _ := strconv.ParseFloat(parsed.OutAmount, 64)
	label := "unknown"
	if len(parsed.RoutePlan) > 0 {
		label = parsed.RoutePlan[0].SwapInfo.Label
	}

	out := QuoteResponse{InAmountSOL: req.AmountSOL, RouteLabel: label, RawQuote: body}
	if req.Side == SideSell {
		out.OutAmountSOL = outAmount / lamportsPerSOL
	} else {
		out.OutAmountTok = outAmount
	}
	return out, nil
}

type jupiterSwapRequest struct {
	QuoteResponse         json.RawMessage `json:"quoteResponse"`
	UserPublicKey         string          `json:"userPublicKey"`
	PrioritizationFeeLamports string      `json:"prioritizationFeeLamports"`
}

type jupiterSwapResponse struct {
	SwapTransaction string `json:"swapTransaction"`
}

// BuildUnsignedTx requests the router's swap-transaction build for a
// previously quoted route, with the prioritization fee left to the
// router's own "auto" heuristic per spec.md section 6.
func (q *JupiterQuoter) BuildUnsignedTx(ctx context.Context, quote QuoteResponse) (string, error) {
	payload, err := json.Marshal(jupiterSwapRequest{
		QuoteResponse:             quote.RawQuote,
		UserPublicKey:             q.payer,
		PrioritizationFeeLamports: "auto",
	})
	if err != nil {
		return "", fmt.Errorf("executor: marshal swap request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, q.baseURL+"/v6/swap", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("executor: build swap request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := q.http.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("executor: swap build request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("executor: read swap response: %w", err)
	}
	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("executor: swap build returned status %d: %s", resp.StatusCode, body)
	}

	var parsed jupiterSwapResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("executor: decode swap response: %w", err)
	}
	if parsed.SwapTransaction == "" {
		return "", fmt.Errorf("executor: swap build returned no transaction")
	}
	return parsed.SwapTransaction, nil
}
