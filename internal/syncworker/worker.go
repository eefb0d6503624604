package syncworker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"hostinventory/core-go/internal/agentapi"
	"hostinventory/core-go/internal/metrics"
	"hostinventory/core-go/internal/notify"
	"hostinventory/core-go/internal/secrets"
	"hostinventory/core-go/internal/sqlcgen"
)

// ErrHostNotFound is returned by ForceHostResync for an unknown host id.
var ErrHostNotFound = errors.New("host not found")

// Queries is the minimal DB interface the sync worker needs.
//
// NOTE: *sqlcgen.Queries satisfies this.
type Queries interface {
	GetHost(ctx context.Context, id int64) (sqlcgen.Host, error)
	GetHostForUpdate(ctx context.Context, id int64) (sqlcgen.Host, error)
	GetHostByRemoteID(ctx context.Context, remoteID int64) (sqlcgen.Host, error)
	MarkAllHostsOffline(ctx context.Context) (int64, error)
	CreateHost(ctx context.Context, arg sqlcgen.CreateHostParams) (sqlcgen.Host, error)
	UpdateHostFromRoster(ctx context.Context, arg sqlcgen.UpdateHostFromRosterParams) error
	MarkHostNeedsFullSync(ctx context.Context, id int64) (int64, error)
	RecordHostSyncError(ctx context.Context, arg sqlcgen.RecordHostSyncErrorParams) error
	MarkHostUnreachable(ctx context.Context, id int64) error
	UpdateHostInventory(ctx context.Context, arg sqlcgen.UpdateHostInventoryParams) error
	ListPendingHosts(ctx context.Context) ([]sqlcgen.Host, error)
	ListHostsMissingMotherboard(ctx context.Context) ([]sqlcgen.Host, error)
	SetHostMotherboard(ctx context.Context, arg sqlcgen.SetHostMotherboardParams) error
	ListHostGroupTrackedComponents(ctx context.Context, hostID int64) ([][]string, error)
	ListHostSoftware(ctx context.Context, hostID int64) ([]sqlcgen.HostSoftware, error)
	DeleteHostSoftware(ctx context.Context, hostID int64) (int64, error)
	CopyHostSoftware(ctx context.Context, arg []sqlcgen.HostSoftware) (int64, error)
	ListSoftwareExclusionsForHost(ctx context.Context, hostID int64) ([]sqlcgen.SoftwareExclusion, error)
	InsertComponentChange(ctx context.Context, arg sqlcgen.InsertComponentChangeParams) (sqlcgen.ComponentChange, error)
}

// TxRunner runs fn inside one database transaction.
type TxRunner func(ctx context.Context, fn func(q Queries) error) error

// AgentAPI is the remote inventory API as seen by the worker. *agentapi.Client satisfies this.
type AgentAPI interface {
	ListHosts(ctx context.Context) ([]agentapi.HostSummary, error)
	FetchConfig(ctx context.Context, remoteID int64, creds *agentapi.Credentials) (*agentapi.ConfigDocument, error)
}

// Status is a point-in-time view of the roster step.
type Status struct {
	Syncing        bool       `json:"syncing"`
	LastSyncTime   *time.Time `json:"last_sync_time,omitempty"`
	LastSyncStatus string     `json:"last_sync_status,omitempty"`
	LastCycleID    string     `json:"last_cycle_id,omitempty"`
}

type Worker struct {
	log           zerolog.Logger
	q             Queries
	inTx          TxRunner
	api           AgentAPI
	decrypter     secrets.Decrypter
	notifier      notify.Notifier
	metrics       *metrics.Metrics
	interval      time.Duration
	initialDelay  time.Duration
	workers       int
	fanoutTimeout time.Duration

	rosterMu    sync.Mutex
	status      atomic.Pointer[Status]
	cycleActive atomic.Bool
	hostSyncs   singleflight.Group
}

type Options struct {
	Interval      time.Duration
	InitialDelay  time.Duration
	Workers       int
	FanoutTimeout time.Duration

	// Decrypter opens stored agent passwords. Hosts with stored credentials
	// fail to sync when it is nil.
	Decrypter secrets.Decrypter
	// Notifier receives one batch per host that produced changes. Defaults to notify.Nop.
	Notifier notify.Notifier
}

// New builds a worker. A nil inTx runs the per-host write step directly on q.
func New(log zerolog.Logger, q Queries, inTx TxRunner, api AgentAPI, opts Options, m *metrics.Metrics) *Worker {
	interval := opts.Interval
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	initialDelay := opts.InitialDelay
	if initialDelay < 0 {
		initialDelay = 0
	}
	workers := opts.Workers
	if workers <= 0 {
		workers = 5
	}
	fanoutTimeout := opts.FanoutTimeout
	if fanoutTimeout <= 0 {
		fanoutTimeout = 10 * time.Minute
	}
	notifier := opts.Notifier
	if notifier == nil {
		notifier = notify.Nop{}
	}
	if inTx == nil {
		inTx = func(ctx context.Context, fn func(q Queries) error) error { return fn(q) }
	}

	w := &Worker{
		log:           log,
		q:             q,
		inTx:          inTx,
		api:           api,
		decrypter:     opts.Decrypter,
		notifier:      notifier,
		metrics:       m,
		interval:      interval,
		initialDelay:  initialDelay,
		workers:       workers,
		fanoutTimeout: fanoutTimeout,
	}
	w.status.Store(&Status{})
	return w
}

// Status returns the latest roster status snapshot.
func (w *Worker) Status() Status {
	if w == nil {
		return Status{}
	}
	if s := w.status.Load(); s != nil {
		return *s
	}
	return Status{}
}

func (w *Worker) updateStatus(fn func(s *Status)) {
	next := w.Status()
	fn(&next)
	w.status.Store(&next)
}

// Run drives scheduled cycles until ctx is done: first after the initial
// delay, then one interval after the previous cycle finished.
func (w *Worker) Run(ctx context.Context) {
	if w == nil || w.q == nil || w.api == nil {
		return
	}

	timer := time.NewTimer(w.initialDelay)
	defer timer.Stop()

	var consecutiveFailures int
	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		res := w.RunScheduledCycle(ctx)
		if res.RosterErr != nil && !res.Skipped {
			consecutiveFailures++
		} else {
			consecutiveFailures = 0
		}

		timer.Reset(backoffDuration(w.interval, consecutiveFailures))
	}
}

// backoffDuration doubles the wait per consecutive roster failure, capped at four intervals.
func backoffDuration(base time.Duration, failures int) time.Duration {
	if base <= 0 {
		base = 5 * time.Minute
	}
	if failures <= 0 {
		return base
	}
	if failures > 2 {
		failures = 2
	}
	return base * time.Duration(1<<failures)
}
