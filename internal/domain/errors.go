package domain

import (
	"errors"
	"fmt"
)

// Lifecycle errors.
var (
	// ErrStatusRegression is returned when a status transition would move
	// backwards or leave a terminal state.
	ErrStatusRegression = errors.New("status may only move forward")

	// ErrIntentAlreadySet is returned when a message is classified twice.
	ErrIntentAlreadySet = errors.New("intent tag already set")

	// ErrUnknownIntent is returned for labels outside the closed tag set.
	ErrUnknownIntent = errors.New("unknown intent tag")
)

// ValidationError reports a malformed inbound event. It is raised at ingress
// and never reaches the pipeline.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid event: %s %s", e.Field, e.Reason)
}

// ClassificationError wraps a classifier failure. The pipeline downgrades it
// to the default intent.
type ClassificationError struct{ Err error }

func (e *ClassificationError) Error() string { return "classification failed: " + e.Err.Error() }
func (e *ClassificationError) Unwrap() error { return e.Err }

// StoreError wraps a State Store failure. The pipeline logs it and continues.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string { return "store " + e.Op + ": " + e.Err.Error() }
func (e *StoreError) Unwrap() error { return e.Err }

// GenerationError wraps a generation failure. It never leaves the generator;
// it is converted into an error-status FeedbackRecord.
type GenerationError struct{ Err error }

func (e *GenerationError) Error() string { return "generation failed: " + e.Err.Error() }
func (e *GenerationError) Unwrap() error { return e.Err }

// NotificationError wraps a delivery failure, which is terminal for the run.
type NotificationError struct {
	ChannelID string
	Err       error
}

func (e *NotificationError) Error() string {
	return fmt.Sprintf("notify %s: %v", e.ChannelID, e.Err)
}
func (e *NotificationError) Unwrap() error { return e.Err }
