package worker

import (
	"context"

	audit "certregistry/pkg/platform/audit"
)

// Worker consumes audit events from a channel and persists them.
type Worker struct {
	store   audit.Store
	inbox   <-chan audit.Event
	onError func(ctx context.Context, event audit.Event, err error)
}

type Option func(*Worker)

// WithErrorHandler keeps the worker running after a failed Append and reports
// the failure to fn instead. Without it Run returns the first error.
func WithErrorHandler(fn func(ctx context.Context, event audit.Event, err error)) Option {
	return func(w *Worker) {
		w.onError = fn
	}
}

func NewWorker(store audit.Store, inbox <-chan audit.Event, opts ...Option) *Worker {
	w := &Worker{store: store, inbox: inbox}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Run persists events until the inbox is closed and drained, or ctx ends.
func (w *Worker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-w.inbox:
			if !ok {
				return nil
			}
			if err := w.store.Append(ctx, event); err != nil {
				if w.onError == nil {
					return err
				}
				w.onError(ctx, event, err)
			}
		}
	}
}
