package storage

import (
	"context"

	"go.uber.org/multierr"
)

// Multi fans every sample out to several stores, in order.
type Multi []Store

// Append stops at the first store that fails; later stores do not see the
// sample.
func (m Multi) Append(ctx context.Context, s Sample) error {
	for _, st := range m {
		if err := st.Append(ctx, s); err != nil {
			return err
		}
	}
	return nil
}

// Close closes every store, even when some of them fail.
func (m Multi) Close() error {
	var err error
	for _, st := range m {
		err = multierr.Append(err, st.Close())
	}
	return err
}
