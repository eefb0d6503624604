package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"

	"hostinventory/core-go/internal/inventory"
	"hostinventory/core-go/internal/naming"
	"hostinventory/core-go/internal/sqlcgen"
)

const (
	defaultChangesLimit = 100
	maxChangesLimit     = 500
)

type host struct {
	ID                int64           `json:"id"`
	RemoteID          *int64          `json:"remote_id,omitempty"`
	DisplayName       string          `json:"display_name"`
	ComputerName      *string         `json:"computer_name,omitempty"`
	Alias             *string         `json:"alias,omitempty"`
	IPAddress         *string         `json:"ip_address,omitempty"`
	OSName            *string         `json:"os_name,omitempty"`
	Architecture      *string         `json:"architecture,omitempty"`
	AgentVersion      *string         `json:"agent_version,omitempty"`
	CPUModel          *string         `json:"cpu_model,omitempty"`
	TotalRAMBytes     *int64          `json:"total_ram_bytes,omitempty"`
	TotalRAM          string          `json:"total_ram,omitempty"`
	TotalDiskBytes    *int64          `json:"total_disk_bytes,omitempty"`
	TotalDisk         string          `json:"total_disk,omitempty"`
	VideoAdapter      *string         `json:"video_adapter,omitempty"`
	Motherboard       *string         `json:"motherboard,omitempty"`
	Online            bool            `json:"online"`
	SyncError         *string         `json:"sync_error,omitempty"`
	NeedsFullSync     bool            `json:"needs_full_sync"`
	LastSyncAt        *time.Time      `json:"last_sync_at,omitempty"`
	TrackedComponents []string        `json:"tracked_components,omitempty"`
	Config            json.RawMessage `json:"config,omitempty"`
}

type componentChange struct {
	ID             int64      `json:"id"`
	HostID         int64      `json:"host_id"`
	ComponentType  string     `json:"component_type"`
	ChangeType     string     `json:"change_type"`
	OldValue       *string    `json:"old_value,omitempty"`
	NewValue       *string    `json:"new_value,omitempty"`
	DetectedAt     time.Time  `json:"detected_at"`
	Acknowledged   bool       `json:"acknowledged"`
	AcknowledgedAt *time.Time `json:"acknowledged_at,omitempty"`
	AcknowledgedBy *string    `json:"acknowledged_by,omitempty"`
}

func toHost(h sqlcgen.Host, withConfig bool) host {
	out := host{
		ID:             h.ID,
		RemoteID:       h.RemoteID,
		DisplayName:    naming.HostDisplayName(h.Alias, h.ComputerName, h.IPAddress, h.RemoteID),
		ComputerName:   h.ComputerName,
		Alias:          h.Alias,
		IPAddress:      h.IPAddress,
		OSName:         h.OSName,
		Architecture:   h.Architecture,
		AgentVersion:   h.AgentVersion,
		CPUModel:       h.CPUModel,
		TotalRAMBytes:  h.TotalRAMBytes,
		TotalRAM:       inventory.FormatGB(h.TotalRAMBytes),
		TotalDiskBytes: h.TotalDiskBytes,
		TotalDisk:      inventory.FormatGB(h.TotalDiskBytes),
		VideoAdapter:   h.VideoAdapter,
		Motherboard:    h.Motherboard,
		Online:         h.Online,
		SyncError:      h.SyncError,
		NeedsFullSync:  h.NeedsFullSync,
		LastSyncAt:     h.LastSyncAt,
	}
	if h.TrackedComponentsOverride != nil {
		out.TrackedComponents = inventory.ParseComponents(h.TrackedComponentsOverride).Strings()
	}
	if withConfig && len(h.ConfigJSON) > 0 {
		out.Config = json.RawMessage(h.ConfigJSON)
	}
	return out
}

func toComponentChange(c sqlcgen.ComponentChange) componentChange {
	return componentChange{
		ID:             c.ID,
		HostID:         c.HostID,
		ComponentType:  c.ComponentType,
		ChangeType:     c.ChangeType,
		OldValue:       c.OldValue,
		NewValue:       c.NewValue,
		DetectedAt:     c.DetectedAt,
		Acknowledged:   c.Acknowledged,
		AcknowledgedAt: c.AcknowledgedAt,
		AcknowledgedBy: c.AcknowledgedBy,
	}
}

func (h *Handler) handleListHosts(w http.ResponseWriter, r *http.Request) {
	if !h.ensureQueries(w) {
		return
	}

	rows, err := h.hosts.ListHosts(r.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("list hosts failed")
		h.writeError(w, http.StatusInternalServerError, "db_error", "failed to list hosts", nil)
		return
	}

	resp := make([]host, 0, len(rows))
	for _, row := range rows {
		resp = append(resp, toHost(row, false))
	}
	h.writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleGetHost(w http.ResponseWriter, r *http.Request) {
	id, ok := h.hostIDParam(w, r)
	if !ok {
		return
	}
	if !h.ensureQueries(w) {
		return
	}

	row, err := h.hosts.GetHost(r.Context(), id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			h.writeError(w, http.StatusNotFound, "not_found", "host not found", map[string]any{"id": id})
			return
		}
		h.log.Error().Err(err).Int64("host_id", id).Msg("get host failed")
		h.writeError(w, http.StatusInternalServerError, "db_error", "failed to fetch host", nil)
		return
	}

	h.writeJSON(w, http.StatusOK, toHost(row, true))
}

func (h *Handler) handleListHostChanges(w http.ResponseWriter, r *http.Request) {
	id, ok := h.hostIDParam(w, r)
	if !ok {
		return
	}

	limit := defaultChangesLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > maxChangesLimit {
			h.writeError(w, http.StatusBadRequest, "validation_failed", "limit must be between 1 and 500", map[string]any{"limit": raw})
			return
		}
		limit = n
	}

	if !h.ensureQueries(w) {
		return
	}

	if _, err := h.hosts.GetHost(r.Context(), id); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			h.writeError(w, http.StatusNotFound, "not_found", "host not found", map[string]any{"id": id})
			return
		}
		h.log.Error().Err(err).Int64("host_id", id).Msg("get host failed")
		h.writeError(w, http.StatusInternalServerError, "db_error", "failed to fetch host", nil)
		return
	}

	rows, err := h.hosts.ListHostComponentChanges(r.Context(), sqlcgen.ListHostComponentChangesParams{
		HostID: id,
		Limit:  int32(limit),
	})
	if err != nil {
		h.log.Error().Err(err).Int64("host_id", id).Msg("list host changes failed")
		h.writeError(w, http.StatusInternalServerError, "db_error", "failed to list host changes", nil)
		return
	}

	resp := make([]componentChange, 0, len(rows))
	for _, c := range rows {
		resp = append(resp, toComponentChange(c))
	}
	h.writeJSON(w, http.StatusOK, resp)
}
