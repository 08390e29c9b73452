package faults

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrMalformedFrame marks a frame whose byte length or layout does not match the tape format.
	ErrMalformedFrame = errors.New("malformed frame")
	// ErrNoUsableFrames is the fatal top-level failure: no capture contributed a single decodable frame.
	ErrNoUsableFrames = errors.New("no usable frames")
	// ErrInvalidInput marks bad arguments, captures, or configuration.
	ErrInvalidInput = errors.New("invalid input")
	// ErrCancelled marks a run stopped early by its caller.
	ErrCancelled = errors.New("cancelled")
	// ErrIO marks read and write failures on capture or output files.
	ErrIO = errors.New("i/o failure")
)

// Wrap builds an error message that includes stage context while tagging it with
// the provided marker for later classification. The marker should be one of the
// exported sentinel errors above.
func Wrap(marker error, stage, operation, message string, err error) error {
	detail := buildDetail(stage, operation, message)
	if marker == nil {
		marker = ErrIO
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// Cancelled converts a context error into an ErrCancelled-tagged error and
// passes every other error through unchanged.
func Cancelled(stage string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		if errors.Is(err, ErrCancelled) {
			return err
		}
		return Wrap(ErrCancelled, stage, "", "stopped by caller", err)
	}
	return err
}

// ExitCode maps a pipeline error to a process exit status.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, ErrInvalidInput):
		return 2
	case errors.Is(err, ErrNoUsableFrames):
		return 3
	case errors.Is(err, ErrCancelled):
		return 130
	default:
		return 1
	}
}

func buildDetail(stage, operation, message string) string {
	parts := make([]string, 0, 3)
	if stage = strings.TrimSpace(stage); stage != "" {
		parts = append(parts, stage)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "restore failure"
	}
	return strings.Join(parts, ": ")
}
