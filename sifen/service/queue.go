package service

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/sistemia/go-sifen/sifen/sign"
	"github.com/sistemia/go-sifen/sifen/status"
)

// PendingItem is one queued submission. After Flush, Err holds that item's
// outcome: nil, a rejection, or a transport failure. Items whose record is
// already terminal are skipped.
type PendingItem struct {
	// ID serializes concurrent flushes touching the same transaction.
	ID      string
	Record  *status.TransmissionRecord
	Payload *sign.SignedPayload

	Err error
}

// Flush submits every pending item with bounded concurrency. Per-item
// failures land in the item's Err and do not stop the rest of the queue;
// the returned error is only non-nil when the context is cancelled.
func (s *Service) Flush(ctx context.Context, items []*PendingItem, workers int) error {
	if workers <= 0 {
		workers = 4
	}
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for _, item := range items {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				item.Err = err
				return err
			}
			if item.Record.Status.Terminal() {
				return nil
			}

			s.locks.Lock(item.ID)
			defer s.locks.Unlock(item.ID)

			if err := s.recon.Submit(ctx, item.Record, item.Payload); err != nil {
				logger.Warnf("queue item %s: %v", item.ID, err)
				item.Err = err
			}
			return nil
		})
	}
	return g.Wait()
}
