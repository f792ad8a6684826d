package imagegen

import "context"

// Request describes a normalized image synthesis request.
type Request struct {
	Prompt string
}

// Image is a generated artifact.
type Image struct {
	Data []byte
	MIME string
}

// Generator is the contract implemented by all image generation backends.
type Generator interface {
	Generate(ctx context.Context, req Request) (*Image, error)
}
