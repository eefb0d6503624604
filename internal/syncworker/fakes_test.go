package syncworker

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/jackc/pgx/v5"

	"hostinventory/core-go/internal/agentapi"
	"hostinventory/core-go/internal/notify"
	"hostinventory/core-go/internal/sqlcgen"
)

type fakeQueries struct {
	getHostFn            func(ctx context.Context, id int64) (sqlcgen.Host, error)
	getHostForUpdateFn   func(ctx context.Context, id int64) (sqlcgen.Host, error)
	getByRemoteIDFn      func(ctx context.Context, remoteID int64) (sqlcgen.Host, error)
	markOfflineFn        func(ctx context.Context) (int64, error)
	createHostFn         func(ctx context.Context, arg sqlcgen.CreateHostParams) (sqlcgen.Host, error)
	updateFromRosterFn   func(ctx context.Context, arg sqlcgen.UpdateHostFromRosterParams) error
	markNeedsFullSyncFn  func(ctx context.Context, id int64) (int64, error)
	recordSyncErrorFn    func(ctx context.Context, arg sqlcgen.RecordHostSyncErrorParams) error
	markUnreachableFn    func(ctx context.Context, id int64) error
	updateInventoryFn    func(ctx context.Context, arg sqlcgen.UpdateHostInventoryParams) error
	listPendingFn        func(ctx context.Context) ([]sqlcgen.Host, error)
	listMissingMBFn      func(ctx context.Context) ([]sqlcgen.Host, error)
	setMotherboardFn     func(ctx context.Context, arg sqlcgen.SetHostMotherboardParams) error
	listGroupTrackingFn  func(ctx context.Context, hostID int64) ([][]string, error)
	listSoftwareFn       func(ctx context.Context, hostID int64) ([]sqlcgen.HostSoftware, error)
	deleteSoftwareFn     func(ctx context.Context, hostID int64) (int64, error)
	copySoftwareFn       func(ctx context.Context, arg []sqlcgen.HostSoftware) (int64, error)
	listExclusionsFn     func(ctx context.Context, hostID int64) ([]sqlcgen.SoftwareExclusion, error)
	insertChangeFn       func(ctx context.Context, arg sqlcgen.InsertComponentChangeParams) (sqlcgen.ComponentChange, error)
}

func (f *fakeQueries) GetHost(ctx context.Context, id int64) (sqlcgen.Host, error) {
	if f.getHostFn == nil {
		return sqlcgen.Host{}, pgx.ErrNoRows
	}
	return f.getHostFn(ctx, id)
}

func (f *fakeQueries) GetHostForUpdate(ctx context.Context, id int64) (sqlcgen.Host, error) {
	if f.getHostForUpdateFn == nil {
		return f.GetHost(ctx, id)
	}
	return f.getHostForUpdateFn(ctx, id)
}

func (f *fakeQueries) GetHostByRemoteID(ctx context.Context, remoteID int64) (sqlcgen.Host, error) {
	if f.getByRemoteIDFn == nil {
		return sqlcgen.Host{}, pgx.ErrNoRows
	}
	return f.getByRemoteIDFn(ctx, remoteID)
}

func (f *fakeQueries) MarkAllHostsOffline(ctx context.Context) (int64, error) {
	if f.markOfflineFn == nil {
		return 0, nil
	}
	return f.markOfflineFn(ctx)
}

func (f *fakeQueries) CreateHost(ctx context.Context, arg sqlcgen.CreateHostParams) (sqlcgen.Host, error) {
	if f.createHostFn == nil {
		return sqlcgen.Host{}, nil
	}
	return f.createHostFn(ctx, arg)
}

func (f *fakeQueries) UpdateHostFromRoster(ctx context.Context, arg sqlcgen.UpdateHostFromRosterParams) error {
	if f.updateFromRosterFn == nil {
		return nil
	}
	return f.updateFromRosterFn(ctx, arg)
}

func (f *fakeQueries) MarkHostNeedsFullSync(ctx context.Context, id int64) (int64, error) {
	if f.markNeedsFullSyncFn == nil {
		return 1, nil
	}
	return f.markNeedsFullSyncFn(ctx, id)
}

func (f *fakeQueries) RecordHostSyncError(ctx context.Context, arg sqlcgen.RecordHostSyncErrorParams) error {
	if f.recordSyncErrorFn == nil {
		return nil
	}
	return f.recordSyncErrorFn(ctx, arg)
}

func (f *fakeQueries) MarkHostUnreachable(ctx context.Context, id int64) error {
	if f.markUnreachableFn == nil {
		return nil
	}
	return f.markUnreachableFn(ctx, id)
}

func (f *fakeQueries) UpdateHostInventory(ctx context.Context, arg sqlcgen.UpdateHostInventoryParams) error {
	if f.updateInventoryFn == nil {
		return nil
	}
	return f.updateInventoryFn(ctx, arg)
}

func (f *fakeQueries) ListPendingHosts(ctx context.Context) ([]sqlcgen.Host, error) {
	if f.listPendingFn == nil {
		return nil, nil
	}
	return f.listPendingFn(ctx)
}

func (f *fakeQueries) ListHostsMissingMotherboard(ctx context.Context) ([]sqlcgen.Host, error) {
	if f.listMissingMBFn == nil {
		return nil, nil
	}
	return f.listMissingMBFn(ctx)
}

func (f *fakeQueries) SetHostMotherboard(ctx context.Context, arg sqlcgen.SetHostMotherboardParams) error {
	if f.setMotherboardFn == nil {
		return nil
	}
	return f.setMotherboardFn(ctx, arg)
}

func (f *fakeQueries) ListHostGroupTrackedComponents(ctx context.Context, hostID int64) ([][]string, error) {
	if f.listGroupTrackingFn == nil {
		return nil, nil
	}
	return f.listGroupTrackingFn(ctx, hostID)
}

func (f *fakeQueries) ListHostSoftware(ctx context.Context, hostID int64) ([]sqlcgen.HostSoftware, error) {
	if f.listSoftwareFn == nil {
		return nil, nil
	}
	return f.listSoftwareFn(ctx, hostID)
}

func (f *fakeQueries) DeleteHostSoftware(ctx context.Context, hostID int64) (int64, error) {
	if f.deleteSoftwareFn == nil {
		return 0, nil
	}
	return f.deleteSoftwareFn(ctx, hostID)
}

func (f *fakeQueries) CopyHostSoftware(ctx context.Context, arg []sqlcgen.HostSoftware) (int64, error) {
	if f.copySoftwareFn == nil {
		return int64(len(arg)), nil
	}
	return f.copySoftwareFn(ctx, arg)
}

func (f *fakeQueries) ListSoftwareExclusionsForHost(ctx context.Context, hostID int64) ([]sqlcgen.SoftwareExclusion, error) {
	if f.listExclusionsFn == nil {
		return nil, nil
	}
	return f.listExclusionsFn(ctx, hostID)
}

func (f *fakeQueries) InsertComponentChange(ctx context.Context, arg sqlcgen.InsertComponentChangeParams) (sqlcgen.ComponentChange, error) {
	if f.insertChangeFn == nil {
		return sqlcgen.ComponentChange{}, nil
	}
	return f.insertChangeFn(ctx, arg)
}

type fakeAPI struct {
	listHostsFn   func(ctx context.Context) ([]agentapi.HostSummary, error)
	fetchConfigFn func(ctx context.Context, remoteID int64, creds *agentapi.Credentials) (*agentapi.ConfigDocument, error)
}

func (f *fakeAPI) ListHosts(ctx context.Context) ([]agentapi.HostSummary, error) {
	if f.listHostsFn == nil {
		return nil, nil
	}
	return f.listHostsFn(ctx)
}

func (f *fakeAPI) FetchConfig(ctx context.Context, remoteID int64, creds *agentapi.Credentials) (*agentapi.ConfigDocument, error) {
	if f.fetchConfigFn == nil {
		return nil, &agentapi.APIError{Message: "PEER_NOT_FOUND"}
	}
	return f.fetchConfigFn(ctx, remoteID, creds)
}

type recordingNotifier struct {
	mu      sync.Mutex
	batches []notify.Batch
}

func (n *recordingNotifier) Notify(_ context.Context, batch notify.Batch) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.batches = append(n.batches, batch)
	return nil
}

func (n *recordingNotifier) all() []notify.Batch {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]notify.Batch(nil), n.batches...)
}

// writeLog collects the writes of one pipeline run. Safe for concurrent use.
type writeLog struct {
	mu          sync.Mutex
	changes     []sqlcgen.InsertComponentChangeParams
	inventories []sqlcgen.UpdateHostInventoryParams
	software    map[int64][]sqlcgen.HostSoftware
	syncErrors  map[int64]string
	unreachable []int64
}

func newWriteLog() *writeLog {
	return &writeLog{
		software:   make(map[int64][]sqlcgen.HostSoftware),
		syncErrors: make(map[int64]string),
	}
}

// wire installs recording write functions on q.
func (l *writeLog) wire(q *fakeQueries) {
	q.insertChangeFn = func(_ context.Context, arg sqlcgen.InsertComponentChangeParams) (sqlcgen.ComponentChange, error) {
		l.mu.Lock()
		defer l.mu.Unlock()
		l.changes = append(l.changes, arg)
		return sqlcgen.ComponentChange{HostID: arg.HostID, ComponentType: arg.ComponentType, ChangeType: arg.ChangeType}, nil
	}
	q.updateInventoryFn = func(_ context.Context, arg sqlcgen.UpdateHostInventoryParams) error {
		l.mu.Lock()
		defer l.mu.Unlock()
		l.inventories = append(l.inventories, arg)
		return nil
	}
	q.deleteSoftwareFn = func(_ context.Context, hostID int64) (int64, error) {
		l.mu.Lock()
		defer l.mu.Unlock()
		n := len(l.software[hostID])
		l.software[hostID] = nil
		return int64(n), nil
	}
	q.copySoftwareFn = func(_ context.Context, rows []sqlcgen.HostSoftware) (int64, error) {
		l.mu.Lock()
		defer l.mu.Unlock()
		for _, r := range rows {
			l.software[r.HostID] = append(l.software[r.HostID], r)
		}
		return int64(len(rows)), nil
	}
	q.recordSyncErrorFn = func(_ context.Context, arg sqlcgen.RecordHostSyncErrorParams) error {
		l.mu.Lock()
		defer l.mu.Unlock()
		l.syncErrors[arg.ID] = arg.SyncError
		return nil
	}
	q.markUnreachableFn = func(_ context.Context, id int64) error {
		l.mu.Lock()
		defer l.mu.Unlock()
		l.unreachable = append(l.unreachable, id)
		return nil
	}
}

func (l *writeLog) syncErrorFor(id int64) (string, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	msg, ok := l.syncErrors[id]
	return msg, ok
}

func int64Ptr(v int64) *int64 { return &v }
func strPtr(s string) *string  { return &s }

// systemInfoDoc builds a config document with one CPU, one present memory
// module and the given "name|version" applications.
func systemInfoDoc(cpu string, ramBytes int64, apps ...string) *agentapi.ConfigDocument {
	var entries []string
	for _, a := range apps {
		name, version, _ := strings.Cut(a, "|")
		entries = append(entries, fmt.Sprintf(`{"name":%q,"version":%q,"publisher":"Vendor"}`, name, version))
	}
	raw := fmt.Sprintf(`{
		"processor": {"model": %q},
		"memory": {"module": [{"present": true, "size": %d}]},
		"applications": {"application": [%s]}
	}`, cpu, ramBytes, strings.Join(entries, ","))
	return &agentapi.ConfigDocument{SystemInfo: json.RawMessage(raw)}
}
