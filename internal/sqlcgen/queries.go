package sqlcgen

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DBTX matches the minimal interface needed from pgxpool.Pool or pgx.Tx.
type DBTX interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, optionsAndArgs ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, optionsAndArgs ...any) pgx.Row
	CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error)
}

type Queries struct {
	db DBTX
}

func New(db DBTX) *Queries {
	return &Queries{db: db}
}

func (q *Queries) WithTx(tx pgx.Tx) *Queries {
	return &Queries{db: tx}
}

const hostColumns = `id, remote_id, session_id, computer_name, alias, ip_address, os_name, architecture,
       agent_version, cpu_model, total_ram_bytes, total_disk_bytes, video_adapter, motherboard,
       agent_user, agent_password_encrypted, config_json, online, sync_error, needs_full_sync,
       last_sync_at, tracked_components_override, created_at, updated_at`

func scanHost(row pgx.Row) (Host, error) {
	var i Host
	err := row.Scan(
		&i.ID,
		&i.RemoteID,
		&i.SessionID,
		&i.ComputerName,
		&i.Alias,
		&i.IPAddress,
		&i.OSName,
		&i.Architecture,
		&i.AgentVersion,
		&i.CPUModel,
		&i.TotalRAMBytes,
		&i.TotalDiskBytes,
		&i.VideoAdapter,
		&i.Motherboard,
		&i.AgentUser,
		&i.AgentPasswordEncrypted,
		&i.ConfigJSON,
		&i.Online,
		&i.SyncError,
		&i.NeedsFullSync,
		&i.LastSyncAt,
		&i.TrackedComponentsOverride,
		&i.CreatedAt,
		&i.UpdatedAt,
	)
	return i, err
}

func collectHosts(rows pgx.Rows, err error) ([]Host, error) {
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Host
	for rows.Next() {
		i, err := scanHost(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const listHosts = `-- name: ListHosts :many
SELECT ` + hostColumns + `
FROM hosts
ORDER BY id
`

func (q *Queries) ListHosts(ctx context.Context) ([]Host, error) {
	return collectHosts(q.db.Query(ctx, listHosts))
}

const getHost = `-- name: GetHost :one
SELECT ` + hostColumns + `
FROM hosts
WHERE id = $1
`

func (q *Queries) GetHost(ctx context.Context, id int64) (Host, error) {
	return scanHost(q.db.QueryRow(ctx, getHost, id))
}

const getHostForUpdate = `-- name: GetHostForUpdate :one
SELECT ` + hostColumns + `
FROM hosts
WHERE id = $1
FOR UPDATE
`

func (q *Queries) GetHostForUpdate(ctx context.Context, id int64) (Host, error) {
	return scanHost(q.db.QueryRow(ctx, getHostForUpdate, id))
}

const getHostByRemoteID = `-- name: GetHostByRemoteID :one
SELECT ` + hostColumns + `
FROM hosts
WHERE remote_id = $1
`

func (q *Queries) GetHostByRemoteID(ctx context.Context, remoteID int64) (Host, error) {
	return scanHost(q.db.QueryRow(ctx, getHostByRemoteID, remoteID))
}

const listPendingHosts = `-- name: ListPendingHosts :many
SELECT ` + hostColumns + `
FROM hosts
WHERE needs_full_sync OR config_json IS NULL
ORDER BY id
`

func (q *Queries) ListPendingHosts(ctx context.Context) ([]Host, error) {
	return collectHosts(q.db.Query(ctx, listPendingHosts))
}

const listHostsMissingMotherboard = `-- name: ListHostsMissingMotherboard :many
SELECT ` + hostColumns + `
FROM hosts
WHERE motherboard IS NULL AND config_json IS NOT NULL
ORDER BY id
`

func (q *Queries) ListHostsMissingMotherboard(ctx context.Context) ([]Host, error) {
	return collectHosts(q.db.Query(ctx, listHostsMissingMotherboard))
}

const markAllHostsOffline = `-- name: MarkAllHostsOffline :execrows
UPDATE hosts
SET online = false,
    updated_at = now()
WHERE online
`

func (q *Queries) MarkAllHostsOffline(ctx context.Context) (int64, error) {
	result, err := q.db.Exec(ctx, markAllHostsOffline)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}

const createHost = `-- name: CreateHost :one
INSERT INTO hosts (
  remote_id,
  session_id,
  computer_name,
  ip_address,
  os_name,
  architecture,
  agent_version,
  online,
  needs_full_sync,
  last_sync_at
)
VALUES ($1, $2, $3, $4, $5, $6, $7, true, true, now())
RETURNING ` + hostColumns

type CreateHostParams struct {
	RemoteID     int64
	SessionID    *int64
	ComputerName *string
	IPAddress    *string
	OSName       *string
	Architecture *string
	AgentVersion *string
}

func (q *Queries) CreateHost(ctx context.Context, arg CreateHostParams) (Host, error) {
	row := q.db.QueryRow(ctx, createHost,
		arg.RemoteID,
		arg.SessionID,
		arg.ComputerName,
		arg.IPAddress,
		arg.OSName,
		arg.Architecture,
		arg.AgentVersion,
	)
	return scanHost(row)
}

const updateHostFromRoster = `-- name: UpdateHostFromRoster :exec
UPDATE hosts
SET session_id = $2,
    computer_name = $3,
    ip_address = $4,
    os_name = $5,
    architecture = $6,
    agent_version = $7,
    online = true,
    needs_full_sync = needs_full_sync OR $8,
    last_sync_at = now(),
    updated_at = now()
WHERE id = $1
`

type UpdateHostFromRosterParams struct {
	ID             int64
	SessionID      *int64
	ComputerName   *string
	IPAddress      *string
	OSName         *string
	Architecture   *string
	AgentVersion   *string
	SessionRotated bool
}

func (q *Queries) UpdateHostFromRoster(ctx context.Context, arg UpdateHostFromRosterParams) error {
	_, err := q.db.Exec(ctx, updateHostFromRoster,
		arg.ID,
		arg.SessionID,
		arg.ComputerName,
		arg.IPAddress,
		arg.OSName,
		arg.Architecture,
		arg.AgentVersion,
		arg.SessionRotated,
	)
	return err
}

const markHostNeedsFullSync = `-- name: MarkHostNeedsFullSync :execrows
UPDATE hosts
SET needs_full_sync = true,
    updated_at = now()
WHERE id = $1
`

func (q *Queries) MarkHostNeedsFullSync(ctx context.Context, id int64) (int64, error) {
	result, err := q.db.Exec(ctx, markHostNeedsFullSync, id)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}

const recordHostSyncError = `-- name: RecordHostSyncError :exec
UPDATE hosts
SET sync_error = $2,
    updated_at = now()
WHERE id = $1
`

type RecordHostSyncErrorParams struct {
	ID        int64
	SyncError string
}

func (q *Queries) RecordHostSyncError(ctx context.Context, arg RecordHostSyncErrorParams) error {
	_, err := q.db.Exec(ctx, recordHostSyncError, arg.ID, arg.SyncError)
	return err
}

const markHostUnreachable = `-- name: MarkHostUnreachable :exec
UPDATE hosts
SET sync_error = NULL,
    needs_full_sync = true,
    updated_at = now()
WHERE id = $1
`

func (q *Queries) MarkHostUnreachable(ctx context.Context, id int64) error {
	_, err := q.db.Exec(ctx, markHostUnreachable, id)
	return err
}

const updateHostInventory = `-- name: UpdateHostInventory :exec
UPDATE hosts
SET cpu_model = $2,
    total_ram_bytes = $3,
    total_disk_bytes = $4,
    video_adapter = $5,
    motherboard = $6,
    config_json = $7,
    needs_full_sync = false,
    sync_error = NULL,
    last_sync_at = $8,
    updated_at = now()
WHERE id = $1
`

type UpdateHostInventoryParams struct {
	ID             int64
	CPUModel       *string
	TotalRAMBytes  *int64
	TotalDiskBytes *int64
	VideoAdapter   *string
	Motherboard    *string
	ConfigJSON     []byte
	SyncedAt       time.Time
}

func (q *Queries) UpdateHostInventory(ctx context.Context, arg UpdateHostInventoryParams) error {
	_, err := q.db.Exec(ctx, updateHostInventory,
		arg.ID,
		arg.CPUModel,
		arg.TotalRAMBytes,
		arg.TotalDiskBytes,
		arg.VideoAdapter,
		arg.Motherboard,
		arg.ConfigJSON,
		arg.SyncedAt,
	)
	return err
}

const setHostMotherboard = `-- name: SetHostMotherboard :exec
UPDATE hosts
SET motherboard = $2,
    updated_at = now()
WHERE id = $1 AND motherboard IS NULL
`

type SetHostMotherboardParams struct {
	ID          int64
	Motherboard string
}

func (q *Queries) SetHostMotherboard(ctx context.Context, arg SetHostMotherboardParams) error {
	_, err := q.db.Exec(ctx, setHostMotherboard, arg.ID, arg.Motherboard)
	return err
}

const listHostGroupTrackedComponents = `-- name: ListHostGroupTrackedComponents :many
SELECT g.tracked_components
FROM host_groups g
JOIN hosts_groups hg ON hg.group_id = g.id
WHERE hg.host_id = $1
ORDER BY g.id
`

func (q *Queries) ListHostGroupTrackedComponents(ctx context.Context, hostID int64) ([][]string, error) {
	rows, err := q.db.Query(ctx, listHostGroupTrackedComponents, hostID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items [][]string
	for rows.Next() {
		var tracked []string
		if err := rows.Scan(&tracked); err != nil {
			return nil, err
		}
		items = append(items, tracked)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const listHostSoftware = `-- name: ListHostSoftware :many
SELECT host_id, name, version, publisher, install_date
FROM host_software
WHERE host_id = $1
ORDER BY name, version
`

func (q *Queries) ListHostSoftware(ctx context.Context, hostID int64) ([]HostSoftware, error) {
	rows, err := q.db.Query(ctx, listHostSoftware, hostID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []HostSoftware
	for rows.Next() {
		var i HostSoftware
		if err := rows.Scan(&i.HostID, &i.Name, &i.Version, &i.Publisher, &i.InstallDate); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const deleteHostSoftware = `-- name: DeleteHostSoftware :execrows
DELETE FROM host_software
WHERE host_id = $1
`

func (q *Queries) DeleteHostSoftware(ctx context.Context, hostID int64) (int64, error) {
	result, err := q.db.Exec(ctx, deleteHostSoftware, hostID)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}

// iteratorForCopyHostSoftware implements pgx.CopyFromSource.
type iteratorForCopyHostSoftware struct {
	rows                 []HostSoftware
	skippedFirstNextCall bool
}

func (r *iteratorForCopyHostSoftware) Next() bool {
	if len(r.rows) == 0 {
		return false
	}
	if !r.skippedFirstNextCall {
		r.skippedFirstNextCall = true
		return true
	}
	r.rows = r.rows[1:]
	return len(r.rows) > 0
}

func (r iteratorForCopyHostSoftware) Values() ([]interface{}, error) {
	return []interface{}{
		r.rows[0].HostID,
		r.rows[0].Name,
		r.rows[0].Version,
		r.rows[0].Publisher,
		r.rows[0].InstallDate,
	}, nil
}

func (r iteratorForCopyHostSoftware) Err() error {
	return nil
}

// -- name: CopyHostSoftware :copyfrom
func (q *Queries) CopyHostSoftware(ctx context.Context, arg []HostSoftware) (int64, error) {
	return q.db.CopyFrom(ctx, []string{"host_software"}, []string{"host_id", "name", "version", "publisher", "install_date"}, &iteratorForCopyHostSoftware{rows: arg})
}

const listSoftwareExclusionsForHost = `-- name: ListSoftwareExclusionsForHost :many
SELECT id, software_name, host_id, created_at
FROM software_exclusions
WHERE host_id IS NULL OR host_id = $1
ORDER BY software_name
`

// ListSoftwareExclusionsForHost returns global exclusions (nil HostID) and the host's own.
func (q *Queries) ListSoftwareExclusionsForHost(ctx context.Context, hostID int64) ([]SoftwareExclusion, error) {
	rows, err := q.db.Query(ctx, listSoftwareExclusionsForHost, hostID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []SoftwareExclusion
	for rows.Next() {
		var i SoftwareExclusion
		if err := rows.Scan(&i.ID, &i.SoftwareName, &i.HostID, &i.CreatedAt); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const componentChangeColumns = `id, host_id, component_type, change_type, old_value, new_value, detected_at,
       acknowledged, acknowledged_at, acknowledged_by`

func scanComponentChange(row pgx.Row) (ComponentChange, error) {
	var i ComponentChange
	err := row.Scan(
		&i.ID,
		&i.HostID,
		&i.ComponentType,
		&i.ChangeType,
		&i.OldValue,
		&i.NewValue,
		&i.DetectedAt,
		&i.Acknowledged,
		&i.AcknowledgedAt,
		&i.AcknowledgedBy,
	)
	return i, err
}

const insertComponentChange = `-- name: InsertComponentChange :one
INSERT INTO component_changes (host_id, component_type, change_type, old_value, new_value, detected_at)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING ` + componentChangeColumns

type InsertComponentChangeParams struct {
	HostID        int64
	ComponentType string
	ChangeType    string
	OldValue      *string
	NewValue      *string
	DetectedAt    time.Time
}

func (q *Queries) InsertComponentChange(ctx context.Context, arg InsertComponentChangeParams) (ComponentChange, error) {
	row := q.db.QueryRow(ctx, insertComponentChange,
		arg.HostID,
		arg.ComponentType,
		arg.ChangeType,
		arg.OldValue,
		arg.NewValue,
		arg.DetectedAt,
	)
	return scanComponentChange(row)
}

const listHostComponentChanges = `-- name: ListHostComponentChanges :many
SELECT ` + componentChangeColumns + `
FROM component_changes
WHERE host_id = $1
ORDER BY detected_at DESC, id DESC
LIMIT $2
`

type ListHostComponentChangesParams struct {
	HostID int64
	Limit  int32
}

func (q *Queries) ListHostComponentChanges(ctx context.Context, arg ListHostComponentChangesParams) ([]ComponentChange, error) {
	rows, err := q.db.Query(ctx, listHostComponentChanges, arg.HostID, arg.Limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []ComponentChange
	for rows.Next() {
		i, err := scanComponentChange(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}
