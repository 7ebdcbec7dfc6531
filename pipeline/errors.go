// Copyright 2022-2023, MLabs, Ltd.
// For license information, see https://github.com/mlabs-haskell/scrolls/blob/main/LICENSE

package pipeline

import (
	"fmt"

	"github.com/pkg/errors"
)

// ErrorKind classifies a work error for the stage runtime.
type ErrorKind int

const (
	// KindPanic is a programmer-invariant violation: the pipeline stops and
	// an operator has to intervene. Unclassified errors default here.
	KindPanic ErrorKind = iota
	// KindRestart is transient I/O: the stage tears down, re-bootstraps and
	// the uncommitted input message is redelivered.
	KindRestart
	// KindShutdown is a graceful stop signal propagated through ports.
	KindShutdown
)

func (k ErrorKind) String() string {
	switch k {
	case KindRestart:
		return "restart"
	case KindShutdown:
		return "shutdown"
	default:
		return "panic"
	}
}

// WorkError carries an error together with its runtime classification.
type WorkError struct {
	Kind ErrorKind
	Err  error
}

func (e WorkError) Error() string {
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e WorkError) Unwrap() error { return e.Err }

// ErrShutdown is returned by port operations once the pipeline is stopping.
var ErrShutdown = WorkError{Kind: KindShutdown, Err: errors.New("pipeline shutting down")}

// ErrPortClosed is returned by a receive on a port whose upstream has
// finished; the stage runtime treats it as an orderly end of work.
var ErrPortClosed = WorkError{Kind: KindShutdown, Err: errors.New("input port closed")}

// ErrRestart classifies err as transient. Returns nil for a nil err.
func ErrRestart(err error) error {
	if err == nil {
		return nil
	}
	return WorkError{Kind: KindRestart, Err: err}
}

// ErrPanic classifies err as an invariant violation. Returns nil for a nil err.
func ErrPanic(err error) error {
	if err == nil {
		return nil
	}
	return WorkError{Kind: KindPanic, Err: err}
}

// Kind extracts the classification of err, defaulting to panic.
func Kind(err error) ErrorKind {
	var we WorkError
	if errors.As(err, &we) {
		return we.Kind
	}
	return KindPanic
}
