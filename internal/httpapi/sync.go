package httpapi

import (
	"context"
	"errors"
	"net/http"

	"hostinventory/core-go/internal/syncworker"
)

type hostSyncResult struct {
	HostID    int64          `json:"host_id"`
	Outcome   string         `json:"outcome"`
	FirstSync bool           `json:"first_sync"`
	Changes   []detectedItem `json:"changes"`
	Error     string         `json:"error,omitempty"`
}

type detectedItem struct {
	ComponentType string `json:"component_type"`
	ChangeType    string `json:"change_type"`
	OldValue      string `json:"old_value,omitempty"`
	NewValue      string `json:"new_value,omitempty"`
}

func toHostSyncResult(res syncworker.HostResult) hostSyncResult {
	out := hostSyncResult{
		HostID:    res.HostID,
		Outcome:   string(res.Outcome),
		FirstSync: res.FirstSync,
		Changes:   make([]detectedItem, 0, len(res.Changes)),
	}
	for _, c := range res.Changes {
		out.Changes = append(out.Changes, detectedItem{
			ComponentType: string(c.Component),
			ChangeType:    string(c.Kind),
			OldValue:      c.OldValue,
			NewValue:      c.NewValue,
		})
	}
	if res.Err != nil {
		out.Error = res.Err.Error()
	}
	return out
}

func (h *Handler) handleSyncStatus(w http.ResponseWriter, r *http.Request) {
	if !h.ensureSync(w) {
		return
	}
	h.writeJSON(w, http.StatusOK, h.sync.Status())
}

func (h *Handler) handleRosterSync(w http.ResponseWriter, r *http.Request) {
	if !h.ensureSync(w) {
		return
	}

	updated, err := h.sync.RunManualRosterSync(r.Context())
	if err != nil {
		h.writeError(w, http.StatusBadGateway, "roster_sync_failed", "failed to synchronize host roster", map[string]any{"error": err.Error()})
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"updated": updated})
}

func (h *Handler) handleSyncRun(w http.ResponseWriter, r *http.Request) {
	if !h.ensureSync(w) {
		return
	}

	// The cycle outlives this request.
	cycleID, started := h.sync.TriggerCycle(context.WithoutCancel(r.Context()))
	if !started {
		h.writeError(w, http.StatusConflict, "sync_in_progress", "a sync cycle is already running", nil)
		return
	}
	h.writeJSON(w, http.StatusAccepted, map[string]any{"status": "accepted", "cycle_id": cycleID})
}

func (h *Handler) handleHostResync(w http.ResponseWriter, r *http.Request) {
	id, ok := h.hostIDParam(w, r)
	if !ok {
		return
	}
	if !h.ensureSync(w) {
		return
	}

	res, err := h.sync.ForceHostResync(r.Context(), id)
	if err != nil {
		if errors.Is(err, syncworker.ErrHostNotFound) {
			h.writeError(w, http.StatusNotFound, "not_found", "host not found", map[string]any{"id": id})
			return
		}
		h.log.Error().Err(err).Int64("host_id", id).Msg("forced resync failed")
		h.writeError(w, http.StatusInternalServerError, "db_error", "failed to flag host for resync", nil)
		return
	}
	h.writeJSON(w, http.StatusOK, toHostSyncResult(res))
}
