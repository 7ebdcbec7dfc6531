// Copyright 2022-2023, MLabs, Ltd.
// For license information, see https://github.com/mlabs-haskell/scrolls/blob/main/LICENSE

package crosscut

import (
	"github.com/ethereum/go-ethereum/log"
	"github.com/pkg/errors"
)

// ErrorAction selects how a recoverable data condition is surfaced.
type ErrorAction string

const (
	ActionSkip ErrorAction = "skip"
	ActionFail ErrorAction = "fail"
)

// RuntimePolicy routes UTXO lookup misses and decode failures: skip drops
// the offending item, fail propagates the error to the stage runtime.
type RuntimePolicy struct {
	MissingUTxO ErrorAction `koanf:"missing_utxo"`
	DecodeError ErrorAction `koanf:"decode_error"`
}

// DefaultPolicy skips both conditions.
func DefaultPolicy() RuntimePolicy {
	return RuntimePolicy{MissingUTxO: ActionSkip, DecodeError: ActionSkip}
}

func (p *RuntimePolicy) Validate() error {
	for _, a := range []ErrorAction{p.MissingUTxO, p.DecodeError} {
		switch a {
		case "", ActionSkip, ActionFail:
		default:
			return errors.Errorf("unknown policy action %q", a)
		}
	}
	return nil
}

// OnMissingUTxO applies the missing_utxo action to err: nil means the caller
// should skip the item, non-nil means it must propagate.
func (p *RuntimePolicy) OnMissingUTxO(err error) error {
	if p == nil || p.MissingUTxO == "" || p.MissingUTxO == ActionSkip {
		log.Debug("skipping missing utxo", "err", err)
		return nil
	}
	return err
}

// OnDecodeError applies the decode_error action to err.
func (p *RuntimePolicy) OnDecodeError(err error) error {
	if p == nil || p.DecodeError == "" || p.DecodeError == ActionSkip {
		log.Debug("skipping decode error", "err", err)
		return nil
	}
	return err
}
