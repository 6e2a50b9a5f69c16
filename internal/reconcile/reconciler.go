// Package reconcile runs the background worker that backfills on-chain
// split ids for orphaned createSplit transactions, following the teacher's
// settlement-worker ticker-loop idiom (Start/Stop, sync.WaitGroup, stopCh).
package reconcile

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"splitcoord/internal/chain"
	"splitcoord/internal/db"
)

// Interval is how often the Reconciler sweeps for orphan creates.
const Interval = 30 * time.Second

// batchSize bounds how many orphan rows are retried per sweep.
const batchSize = 50

// Reconciler periodically retries decoding the SplitCreated event for splits
// whose createSplit transaction succeeded but whose receipt could not be
// decoded at create time (SPEC_FULL.md §12).
type Reconciler struct {
	store   db.Database
	gateway *chain.Gateway

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// New builds a Reconciler. Call Run in its own goroutine and Stop to drain it.
func New(store db.Database, gateway *chain.Gateway) *Reconciler {
	return &Reconciler{
		store:   store,
		gateway: gateway,
		stopCh:  make(chan struct{}),
	}
}

// Run sweeps on a fixed interval until ctx is cancelled or Stop is called.
func (r *Reconciler) Run(ctx context.Context) {
	r.wg.Add(1)
	defer r.wg.Done()

	ticker := time.NewTicker(Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-r.stopCh:
			return
		case <-ticker.C:
			r.sweep(ctx)
		}
	}
}

// Stop signals Run to exit and blocks until it has.
func (r *Reconciler) Stop() {
	close(r.stopCh)
	r.wg.Wait()
}

func (r *Reconciler) sweep(ctx context.Context) {
	orphans, err := r.store.ListOrphanCreates(ctx, batchSize)
	if err != nil {
		slog.Error("reconciler: failed to list orphan creates", "error", err)
		return
	}
	if len(orphans) == 0 {
		return
	}

	slog.Info("reconciler: retrying orphan creates", "count", len(orphans))
	for _, split := range orphans {
		r.reconcileOne(ctx, split)
	}
}

func (r *Reconciler) reconcileOne(ctx context.Context, split db.Split) {
	if split.CreateTxHash == nil {
		return
	}

	receipt, err := r.gateway.TransactionReceipt(ctx, *split.CreateTxHash)
	if err != nil {
		slog.Warn("reconciler: could not fetch receipt", "split_id", split.ID, "tx_hash", *split.CreateTxHash, "error", err)
		return
	}

	onchainID, found, err := r.gateway.ParseSplitCreated(receipt)
	if err != nil {
		slog.Warn("reconciler: failed to decode SplitCreated event", "split_id", split.ID, "error", err)
		return
	}
	if !found {
		slog.Warn("reconciler: SplitCreated event still not found", "split_id", split.ID, "tx_hash", *split.CreateTxHash)
		return
	}

	if err := r.store.SetSplitOnchainID(ctx, split.ID, onchainID, *split.CreateTxHash); err != nil {
		slog.Error("reconciler: failed to persist onchain split id", "split_id", split.ID, "error", err)
		return
	}
	slog.Info("reconciler: backfilled onchain split id", "split_id", split.ID, "onchain_id", onchainID.String())
}
