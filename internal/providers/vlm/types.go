package vlm

import "context"

// Request is a normalized text/vision completion request. Images carries
// optional PNG payloads attached for evaluation calls.
type Request struct {
	System string
	Prompt string
	Images [][]byte
}

// Provider is the contract implemented by all VLM backends.
type Provider interface {
	Complete(ctx context.Context, req Request) (string, error)
}
