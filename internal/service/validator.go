package service

import (
	"context"

	"github.com/ajharshal45/UnReal-Extension-sub001/internal/imaging"
)

// ValidationRequest is everything a validator may look at.
type ValidationRequest struct {
	Buffer           *imaging.PixelBuffer
	PreliminaryScore float64
	Findings         []Finding
}

// ValidatorVerdict is an external validator's opinion.
type ValidatorVerdict struct {
	Confidence    float64   `json:"confidence"`
	IsAIGenerated bool      `json:"is_ai_generated"`
	Reasoning     string    `json:"reasoning"`
	Findings      []Finding `json:"findings"`
}

// ExternalValidator is a context-aware second opinion, typically a remote
// multimodal model. Returning an error, a nil verdict or
// ErrValidatorSkipped all mean the validator is skipped; none of them count
// as evidence.
type ExternalValidator interface {
	Validate(ctx context.Context, req ValidationRequest) (*ValidatorVerdict, error)
}

// ValidatorFunc adapts a function to ExternalValidator.
type ValidatorFunc func(ctx context.Context, req ValidationRequest) (*ValidatorVerdict, error)

// Validate calls f.
func (f ValidatorFunc) Validate(ctx context.Context, req ValidationRequest) (*ValidatorVerdict, error) {
	return f(ctx, req)
}
