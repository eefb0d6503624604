package syncworker

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"

	"hostinventory/core-go/internal/agentapi"
	"hostinventory/core-go/internal/sqlcgen"
)

func TestRunManualRosterSync_CreatesUpdatesAndSkips(t *testing.T) {
	existing := sqlcgen.Host{ID: 7, RemoteID: int64Ptr(200), SessionID: int64Ptr(1)}

	var (
		mu         sync.Mutex
		offlined   int
		created    []sqlcgen.CreateHostParams
		rosterUpds []sqlcgen.UpdateHostFromRosterParams
	)
	q := &fakeQueries{
		markOfflineFn: func(ctx context.Context) (int64, error) {
			mu.Lock()
			defer mu.Unlock()
			offlined++
			return 3, nil
		},
		getByRemoteIDFn: func(ctx context.Context, remoteID int64) (sqlcgen.Host, error) {
			if remoteID == 200 {
				return existing, nil
			}
			return sqlcgen.Host{}, pgx.ErrNoRows
		},
		createHostFn: func(ctx context.Context, arg sqlcgen.CreateHostParams) (sqlcgen.Host, error) {
			mu.Lock()
			defer mu.Unlock()
			created = append(created, arg)
			return sqlcgen.Host{ID: 99, RemoteID: &arg.RemoteID}, nil
		},
		updateFromRosterFn: func(ctx context.Context, arg sqlcgen.UpdateHostFromRosterParams) error {
			mu.Lock()
			defer mu.Unlock()
			rosterUpds = append(rosterUpds, arg)
			return nil
		},
	}
	api := &fakeAPI{
		listHostsFn: func(ctx context.Context) ([]agentapi.HostSummary, error) {
			return []agentapi.HostSummary{
				{HostID: int64Ptr(100), SessionID: int64Ptr(5), ComputerName: "PC-NEW", OSName: "Windows 11 Pro"},
				{HostID: int64Ptr(200), SessionID: int64Ptr(2), ComputerName: "PC-OLD", OSName: "windows 10"},
				{HostID: int64Ptr(300), SessionID: int64Ptr(1), ComputerName: "relay", OSName: "Linux"},
				{HostID: nil, OSName: "Windows 10"},
			}, nil
		},
	}

	w := New(zerolog.Nop(), q, nil, api, Options{}, nil)
	updated, err := w.RunManualRosterSync(context.Background())
	if err != nil {
		t.Fatalf("RunManualRosterSync: %v", err)
	}
	if updated != 2 {
		t.Fatalf("updated = %d, want 2", updated)
	}
	if offlined != 1 {
		t.Fatalf("expected hosts to be marked offline once, got %d", offlined)
	}
	if len(created) != 1 || created[0].RemoteID != 100 {
		t.Fatalf("unexpected creates: %+v", created)
	}
	if created[0].ComputerName == nil || *created[0].ComputerName != "PC-NEW" {
		t.Fatalf("expected computer name to be stored, got %+v", created[0])
	}
	if len(rosterUpds) != 1 {
		t.Fatalf("expected one roster update, got %d", len(rosterUpds))
	}
	if !rosterUpds[0].SessionRotated {
		t.Fatalf("expected session rotation to require a full sync")
	}
	if rosterUpds[0].SessionID == nil || *rosterUpds[0].SessionID != 2 {
		t.Fatalf("expected new session id to be stored, got %v", rosterUpds[0].SessionID)
	}

	st := w.Status()
	if st.Syncing {
		t.Fatalf("expected syncing=false after roster sync")
	}
	if st.LastSyncStatus != "succeeded: 2 hosts" {
		t.Fatalf("LastSyncStatus = %q", st.LastSyncStatus)
	}
	if st.LastSyncTime == nil || st.LastCycleID == "" {
		t.Fatalf("expected last sync time and cycle id, got %+v", st)
	}
}

func TestRunManualRosterSync_SameSessionDoesNotForceFullSync(t *testing.T) {
	var got sqlcgen.UpdateHostFromRosterParams
	q := &fakeQueries{
		getByRemoteIDFn: func(ctx context.Context, remoteID int64) (sqlcgen.Host, error) {
			return sqlcgen.Host{ID: 1, RemoteID: int64Ptr(remoteID), SessionID: int64Ptr(9)}, nil
		},
		updateFromRosterFn: func(ctx context.Context, arg sqlcgen.UpdateHostFromRosterParams) error {
			got = arg
			return nil
		},
	}
	api := &fakeAPI{
		listHostsFn: func(ctx context.Context) ([]agentapi.HostSummary, error) {
			return []agentapi.HostSummary{{HostID: int64Ptr(10), SessionID: int64Ptr(9), OSName: "Windows Server 2019"}}, nil
		},
	}

	w := New(zerolog.Nop(), q, nil, api, Options{}, nil)
	if _, err := w.RunManualRosterSync(context.Background()); err != nil {
		t.Fatalf("RunManualRosterSync: %v", err)
	}
	if got.SessionRotated {
		t.Fatalf("unchanged session must not force a full sync")
	}
}

func TestRunManualRosterSync_ListFailureMutatesNothing(t *testing.T) {
	q := &fakeQueries{
		markOfflineFn: func(ctx context.Context) (int64, error) {
			t.Fatalf("hosts must not be marked offline when the roster fetch fails")
			return 0, nil
		},
		createHostFn: func(ctx context.Context, arg sqlcgen.CreateHostParams) (sqlcgen.Host, error) {
			t.Fatalf("no host may be created when the roster fetch fails")
			return sqlcgen.Host{}, nil
		},
	}
	api := &fakeAPI{
		listHostsFn: func(ctx context.Context) ([]agentapi.HostSummary, error) {
			return nil, errors.New("connection refused")
		},
	}

	w := New(zerolog.Nop(), q, nil, api, Options{}, nil)
	updated, err := w.RunManualRosterSync(context.Background())
	if err == nil {
		t.Fatalf("expected error")
	}
	if updated != 0 {
		t.Fatalf("updated = %d, want 0", updated)
	}
	st := w.Status()
	if !strings.HasPrefix(st.LastSyncStatus, "failed: ") {
		t.Fatalf("LastSyncStatus = %q, want failed prefix", st.LastSyncStatus)
	}
	if st.LastSyncTime != nil {
		t.Fatalf("a failed roster sync must not advance the last sync time")
	}
}

func TestRunManualRosterSync_RunsInsideTransaction(t *testing.T) {
	var txCalls int
	inTx := func(ctx context.Context, fn func(q Queries) error) error {
		txCalls++
		return fn(&fakeQueries{})
	}
	api := &fakeAPI{
		listHostsFn: func(ctx context.Context) ([]agentapi.HostSummary, error) {
			return []agentapi.HostSummary{{HostID: int64Ptr(1), OSName: "Windows 10"}}, nil
		},
	}

	w := New(zerolog.Nop(), &fakeQueries{}, inTx, api, Options{}, nil)
	if _, err := w.RunManualRosterSync(context.Background()); err != nil {
		t.Fatalf("RunManualRosterSync: %v", err)
	}
	if txCalls != 1 {
		t.Fatalf("expected the roster to be applied in one transaction, got %d", txCalls)
	}
}

func TestIsInventoryTarget(t *testing.T) {
	cases := map[string]bool{
		"Windows 10 Pro":      true,
		"  windows server":    true,
		"WINDOWS":             true,
		"Linux":               false,
		"Ubuntu 22.04":        false,
		"":                    false,
		"Microsoft Windows 7": false,
	}
	for in, want := range cases {
		if got := isInventoryTarget(in); got != want {
			t.Fatalf("isInventoryTarget(%q) = %v, want %v", in, got, want)
		}
	}
}
