// Package services defines the reply pipeline and its stages. This file
// centralizes service-level error values so callers can check them with
// errors.Is; translation into HTTP status codes happens in the handler layer.
package services

import "errors"

var (
	// ErrQueueFull is returned by Dispatcher.Submit when every worker is busy
	// and the buffer is saturated.
	ErrQueueFull = errors.New("pipeline queue is full")

	// ErrDispatcherStopped is returned by Submit after Stop was called.
	ErrDispatcherStopped = errors.New("dispatcher stopped")

	// ErrNotificationFailed marks a run whose reply could not be delivered.
	ErrNotificationFailed = errors.New("notification failed")

	// ErrNoProvider is returned by generative stages built without a client.
	ErrNoProvider = errors.New("no generative provider configured")
)
