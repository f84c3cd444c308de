package model

import (
	"errors"
	"fmt"
)

// Error kinds. Match them with errors.Is.
var (
	ErrInvalidModel     = errors.New("invalid model")
	ErrInvalidLabelList = errors.New("invalid label list")
	ErrInternal         = errors.New("internal error")

	ErrInvalidImage        = errors.New("invalid image")
	ErrResultVisualization = errors.New("result visualization error")
	ErrClosed              = errors.New("rater closed")
)

// InitError is returned when a Rater cannot be constructed. Kind is one of
// ErrInvalidModel, ErrInvalidLabelList or ErrInternal.
type InitError struct {
	Kind   error
	Reason string
	Err    error
}

func (e *InitError) Error() string {
	return describe(e.Kind, e.Reason, e.Err)
}

func (e *InitError) Is(target error) bool { return target == e.Kind }
func (e *InitError) Unwrap() error        { return e.Err }

// InferError is returned when an inference call fails. Kind is one of
// ErrInvalidImage, ErrInternal or ErrResultVisualization.
type InferError struct {
	Kind error
	Err  error
}

func (e *InferError) Error() string {
	return describe(e.Kind, "", e.Err)
}

func (e *InferError) Is(target error) bool { return target == e.Kind }
func (e *InferError) Unwrap() error        { return e.Err }

func describe(kind error, reason string, cause error) string {
	switch {
	case reason != "":
		return fmt.Sprintf("%v: %s", kind, reason)
	case cause != nil:
		return fmt.Sprintf("%v: %v", kind, cause)
	default:
		return kind.Error()
	}
}

func invalidModel(reason string) error {
	return &InitError{Kind: ErrInvalidModel, Reason: reason}
}

func initInternal(err error) error {
	return &InitError{Kind: ErrInternal, Err: err}
}

func invalidImage(err error) error {
	return &InferError{Kind: ErrInvalidImage, Err: err}
}

func inferInternal(err error) error {
	return &InferError{Kind: ErrInternal, Err: err}
}
