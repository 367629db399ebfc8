package models

import (
	"errors"
	"fmt"
)

// Error taxonomy shared by the pipeline. Producers wrap these with %w.
var (
	// ErrValidation covers unsupported content types and invalid chunking settings.
	ErrValidation = errors.New("validation error")
	// ErrUpstream covers non-success responses and connection failures from model backends.
	ErrUpstream = errors.New("upstream error")
	// ErrDecode marks an undecodable upstream stream record. It never leaves the relay.
	ErrDecode = errors.New("decode error")
	// ErrIndex covers vector store read and write failures.
	ErrIndex = errors.New("index error")
)

// EmbedError identifies which input of a batch embed failed.
type EmbedError struct {
	Index int
	Err   error
}

func (e *EmbedError) Error() string {
	return fmt.Sprintf("embedding text %d: %v", e.Index, e.Err)
}

func (e *EmbedError) Unwrap() error {
	return e.Err
}
