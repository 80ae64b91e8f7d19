package executor

import (
	"context"
	"errors"
	"testing"
	"time"
)

type fakeQuoter struct {
	quote   QuoteResponse
	quoteErr error
	buildErr error
}

func (f *fakeQuoter) Quote(ctx context.Context, req Request) (QuoteResponse, error) {
	return f.quote, f.quoteErr
}

func (f *fakeQuoter) BuildUnsignedTx(ctx context.Context, q QuoteResponse) (string, error) {
	if f.buildErr != nil {
		return "", f.buildErr
	}
	return "dW5zaWduZWQ=", nil
}

type fakeSigner struct {
	err error
}

func (f *fakeSigner) Sign(ctx context.Context, unsignedTxBase64 string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return "c2lnbmVk", nil
}

type fakeRPC struct {
	name      string
	sendErr   error
	signature string
	statuses  []string // returned in order across calls, repeats last
	calls     int
}

func (f *fakeRPC) Name() string { return f.name }

func (f *fakeRPC) Call(ctx context.Context, method string, params interface{}, out interface{}) error {
	switch method {
	case "sendTransaction":
		if f.sendErr != nil {
			return f.sendErr
		}
		v := out.(*struct {
			Signature string `json:"result"`
		})
		v.Signature = f.signature
		return nil
	case "getSignatureStatuses":
		idx := f.calls
		if idx >= len(f.statuses) {
			idx = len(f.statuses) - 1
		}
		f.calls++
		status := f.statuses[idx]
		v := out.(*struct {
			Result struct {
				Value []*struct {
					ConfirmationStatus string      `json:"confirmationStatus"`
					Err                interface{} `json:"err"`
				} `json:"value"`
			} `json:"result"`
		})
		if status == "" {
			return nil
		}
		v.Result.Value = []*struct {
			ConfirmationStatus string      `json:"confirmationStatus"`
			Err                interface{} `json:"err"`
		}{{ConfirmationStatus: status}}
		return nil
	}
	return nil
}

func TestExecuteSucceedsOnImmediateConfirmation(t *testing.T) {
	q := &fakeQuoter{quote: QuoteResponse{InAmountSOL: 1, OutAmountSOL: 2}}
	s := &fakeSigner{}
	rpc := &fakeRPC{name: "primary", signature: "sig1", statuses: []string{"confirmed"}}

	e := New(q, s, []RPCEndpoint{rpc})
	result, err := e.Execute(context.Background(), Request{TokenMint: "mint", Side: SideSell, AmountSOL: 1})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if result.Outcome != OutcomeSuccess {
		t.Fatalf("expected SUCCESS, got %v", result.Outcome)
	}
	if result.Signature != "sig1" {
		t.Fatalf("expected signature sig1, got %q", result.Signature)
	}
}

func TestExecuteFailsClosedWhenSigningErrors(t *testing.T) {
	q := &fakeQuoter{quote: QuoteResponse{InAmountSOL: 1}}
	s := &fakeSigner{err: errors.New("subprocess timed out")}
	rpc := &fakeRPC{name: "primary"}

	e := New(q, s, []RPCEndpoint{rpc})
	_, err := e.Execute(context.Background(), Request{TokenMint: "mint", Side: SideBuy, AmountSOL: 1})
	if err == nil {
		t.Fatal("expected an error when signing fails")
	}
}

func TestExecuteReportsFailedOutcomeWhenSubmissionNeverConfirms(t *testing.T) {
	q := &fakeQuoter{quote: QuoteResponse{InAmountSOL: 1}}
	s := &fakeSigner{}
	rpc := &fakeRPC{name: "primary", signature: "sig2", statuses: []string{""}}

	e := New(q, s, []RPCEndpoint{rpc})
	// A context that expires almost immediately stands in for "never
	// confirms within the polling window" without the test paying the
	// real 32s wall-clock budget.
	ctx, cancel := context.WithTimeout(context.Background(), time.Millisecond)
	defer cancel()

	result, err := e.Execute(ctx, Request{TokenMint: "mint", Side: SideBuy, AmountSOL: 1})
	if err != nil {
		t.Fatalf("expected no hard error, got %v", err)
	}
	if result.Outcome != OutcomeFailed {
		t.Fatalf("expected FAILED outcome on unconfirmed signature, got %v", result.Outcome)
	}
}
