package syncworker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// CycleResult summarizes one roster refresh plus fan-out.
type CycleResult struct {
	CycleID string
	// Skipped is set when another cycle was already running.
	Skipped       bool
	RosterUpdated int
	RosterErr     error
	Fanout        FanoutResult
	Duration      time.Duration
}

type FanoutResult struct {
	Pending         int
	Synced          int
	Unreachable     int
	Failed          int
	InvalidSnapshot int
	// Incomplete counts hosts not finished when the budget ran out; they stay pending.
	Incomplete int
	TimedOut   bool
	Err        error
}

func (r *FanoutResult) tally(res HostResult) {
	switch res.Outcome {
	case OutcomeSynced:
		r.Synced++
	case OutcomeUnreachable:
		r.Unreachable++
	case OutcomeInvalidSnapshot:
		r.InvalidSnapshot++
	default:
		r.Failed++
	}
}

// RunScheduledCycle refreshes the roster, then syncs every pending host.
// The fan-out runs even when the roster step fails so earlier pending hosts
// still get their turn.
func (w *Worker) RunScheduledCycle(ctx context.Context) CycleResult {
	if !w.cycleActive.CompareAndSwap(false, true) {
		w.log.Warn().Msg("sync cycle already running; skipping")
		return CycleResult{Skipped: true}
	}
	defer w.cycleActive.Store(false)
	return w.runCycle(ctx, uuid.NewString())
}

// TriggerCycle starts a cycle in the background and returns its id. It
// returns false when a cycle is already running.
func (w *Worker) TriggerCycle(ctx context.Context) (string, bool) {
	if !w.cycleActive.CompareAndSwap(false, true) {
		return "", false
	}
	cycleID := uuid.NewString()
	go func() {
		defer w.cycleActive.Store(false)
		w.runCycle(ctx, cycleID)
	}()
	return cycleID, true
}

func (w *Worker) runCycle(ctx context.Context, cycleID string) CycleResult {
	start := time.Now()
	log := w.log.With().Str("cycle_id", cycleID).Logger()
	log.Info().Msg("sync cycle started")

	res := CycleResult{CycleID: cycleID}
	res.RosterUpdated, res.RosterErr = w.syncRoster(ctx, cycleID)
	res.Fanout = w.syncPending(ctx, log)
	res.Duration = time.Since(start)

	status := "succeeded"
	if res.RosterErr != nil {
		status = "failed"
	}
	w.metrics.IncSyncCycle(status)
	w.metrics.ObserveSyncCycleDuration(res.Duration)

	log.Info().
		Str("status", status).
		Int("roster_updated", res.RosterUpdated).
		Int("pending", res.Fanout.Pending).
		Int("synced", res.Fanout.Synced).
		Int("unreachable", res.Fanout.Unreachable).
		Int("failed", res.Fanout.Failed).
		Int("invalid_snapshot", res.Fanout.InvalidSnapshot).
		Int("incomplete", res.Fanout.Incomplete).
		Bool("timed_out", res.Fanout.TimedOut).
		Dur("duration", res.Duration).
		Msg("sync cycle finished")
	return res
}

// syncPending dispatches every pending host to a fixed pool of workers and
// waits for all of them or the fan-out budget, whichever comes first. On
// timeout no new hosts are started; hosts already in flight finish on their
// own and are not counted.
func (w *Worker) syncPending(ctx context.Context, log zerolog.Logger) FanoutResult {
	var out FanoutResult

	hosts, err := w.q.ListPendingHosts(ctx)
	if err != nil {
		out.Err = fmt.Errorf("list pending hosts: %w", err)
		log.Error().Err(err).Msg("failed to list pending hosts")
		return out
	}

	ids := make([]int64, 0, len(hosts))
	for _, h := range hosts {
		if h.RemoteID == nil {
			log.Warn().Int64("host_id", h.ID).Msg("skipping host without remote id")
			continue
		}
		ids = append(ids, h.ID)
	}
	out.Pending = len(ids)
	log.Info().Int("pending", len(ids)).Int("workers", w.workers).Msg("hosts pending full sync")
	if len(ids) == 0 {
		return out
	}

	jobs := make(chan int64)
	// Buffered so late workers never block after the coordinator stops listening.
	results := make(chan HostResult, len(ids))
	abandon := make(chan struct{})
	wg := sync.WaitGroup{}

	worker := func() {
		defer wg.Done()
		for id := range jobs {
			select {
			case <-abandon:
				continue
			default:
			}
			results <- w.syncHost(ctx, id)
		}
	}

	poolSize := w.workers
	if poolSize > len(ids) {
		poolSize = len(ids)
	}
	for i := 0; i < poolSize; i++ {
		wg.Add(1)
		go worker()
	}

	go func() {
		defer close(jobs)
		for _, id := range ids {
			select {
			case <-abandon:
				return
			case jobs <- id:
			}
		}
	}()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	timer := time.NewTimer(w.fanoutTimeout)
	defer timer.Stop()

	select {
	case <-done:
	case <-timer.C:
		out.TimedOut = true
		close(abandon)
		w.metrics.IncFanoutTimeout()
	case <-ctx.Done():
		close(abandon)
	}

	finished := 0
drain:
	for {
		select {
		case r := <-results:
			out.tally(r)
			finished++
		default:
			break drain
		}
	}
	out.Incomplete = len(ids) - finished

	if out.TimedOut {
		log.Warn().
			Dur("budget", w.fanoutTimeout).
			Int("incomplete", out.Incomplete).
			Msg("fan-out budget exhausted; unfinished hosts stay pending")
	}
	return out
}
