package servicebus

import (
	"context"
	"errors"

	cbus "github.com/next-trace/scg-cqrs/contract/bus"
)

// Chain executes commands in order, waiting for each result, and stops on the first error.
func (b *CommandBus) Chain(ctx context.Context, cmds ...cbus.Command) error {
	for _, c := range cmds {
		if _, err := b.ExecuteSync(ctx, c); err != nil {
			return err
		}
	}

	return nil
}

// revive:disable:max-public-structs
// BatchOptions controls Batch execution behavior.
// OnProgress is called after each command settles (success or failure) with done and total.
// OnError is called when a command is rejected with its index, the command value, and the error.
type BatchOptions struct {
	OnProgress func(done, total int)
	OnError    func(index int, cmd cbus.Command, err error)
}

// revive:enable:max-public-structs

// BatchOpt configures BatchOptions.
type BatchOpt func(*BatchOptions)

// WithBatchProgress sets the progress callback.
func WithBatchProgress(fn func(done, total int)) BatchOpt {
	return func(o *BatchOptions) { o.OnProgress = fn }
}

// WithBatchOnError sets the error callback.
func WithBatchOnError(fn func(index int, cmd cbus.Command, err error)) BatchOpt {
	return func(o *BatchOptions) { o.OnError = fn }
}

// Batch executes the provided commands sequentially, waiting for each result.
// It respects context cancellation, reports progress, and aggregates errors.
func (b *CommandBus) Batch(ctx context.Context, cmds []cbus.Command, opts ...BatchOpt) error {
	var o BatchOptions
	for _, f := range opts {
		f(&o)
	}

	total := len(cmds)

	var errs []error

	for i, c := range cmds {
		if err := ctx.Err(); err != nil { // canceled or deadline exceeded
			return errors.Join(append(errs, err)...)
		}

		if _, err := b.ExecuteSync(ctx, c); err != nil {
			if o.OnError != nil {
				o.OnError(i, c, err)
			}

			errs = append(errs, err)
		}

		if o.OnProgress != nil {
			o.OnProgress(i+1, total)
		}
	}

	return errors.Join(errs...)
}
