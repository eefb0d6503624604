package syncworker

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"

	"hostinventory/core-go/internal/agentapi"
	"hostinventory/core-go/internal/sqlcgen"
)

// RunManualRosterSync refreshes the host roster only and returns how many
// hosts were created or updated.
func (w *Worker) RunManualRosterSync(ctx context.Context) (int, error) {
	return w.syncRoster(ctx, uuid.NewString())
}

// syncRoster is the only writer of the status record.
func (w *Worker) syncRoster(ctx context.Context, cycleID string) (int, error) {
	w.rosterMu.Lock()
	defer w.rosterMu.Unlock()

	log := w.log.With().Str("cycle_id", cycleID).Logger()
	w.updateStatus(func(s *Status) {
		s.Syncing = true
		s.LastCycleID = cycleID
	})

	log.Info().Msg("roster sync started")
	updated, err := w.applyRoster(ctx, log)

	finishedAt := time.Now()
	w.updateStatus(func(s *Status) {
		s.Syncing = false
		if err != nil {
			s.LastSyncStatus = "failed: " + err.Error()
			return
		}
		s.LastSyncTime = &finishedAt
		s.LastSyncStatus = fmt.Sprintf("succeeded: %d hosts", updated)
	})

	if err != nil {
		log.Error().Err(err).Msg("roster sync failed")
		return 0, err
	}
	log.Info().Int("updated", updated).Msg("roster sync completed")
	return updated, nil
}

func (w *Worker) applyRoster(ctx context.Context, log zerolog.Logger) (int, error) {
	summaries, err := w.api.ListHosts(ctx)
	if err != nil {
		return 0, fmt.Errorf("list hosts: %w", err)
	}

	var updated int
	err = w.inTx(ctx, func(q Queries) error {
		updated = 0
		if _, err := q.MarkAllHostsOffline(ctx); err != nil {
			return fmt.Errorf("mark hosts offline: %w", err)
		}

		for _, s := range summaries {
			if s.HostID == nil {
				continue
			}
			if !isInventoryTarget(s.OSName) {
				log.Debug().Int64("remote_id", *s.HostID).Str("os_name", s.OSName).Msg("skipping non-windows agent")
				continue
			}
			if err := w.applySummary(ctx, q, log, s); err != nil {
				return err
			}
			updated++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return updated, nil
}

func (w *Worker) applySummary(ctx context.Context, q Queries, log zerolog.Logger, s agentapi.HostSummary) error {
	remoteID := *s.HostID
	existing, err := q.GetHostByRemoteID(ctx, remoteID)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("lookup host %d: %w", remoteID, err)
	}

	if errors.Is(err, pgx.ErrNoRows) {
		created, err := q.CreateHost(ctx, sqlcgen.CreateHostParams{
			RemoteID:     remoteID,
			SessionID:    s.SessionID,
			ComputerName: optionalString(s.ComputerName),
			IPAddress:    optionalString(s.IPAddress),
			OSName:       optionalString(s.OSName),
			Architecture: optionalString(s.Architecture),
			AgentVersion: optionalString(s.Version),
		})
		if err != nil {
			return fmt.Errorf("create host %d: %w", remoteID, err)
		}
		log.Info().Int64("host_id", created.ID).Int64("remote_id", remoteID).Str("computer_name", s.ComputerName).Msg("new host")
		return nil
	}

	rotated := !sameSession(existing.SessionID, s.SessionID)
	if err := q.UpdateHostFromRoster(ctx, sqlcgen.UpdateHostFromRosterParams{
		ID:             existing.ID,
		SessionID:      s.SessionID,
		ComputerName:   optionalString(s.ComputerName),
		IPAddress:      optionalString(s.IPAddress),
		OSName:         optionalString(s.OSName),
		Architecture:   optionalString(s.Architecture),
		AgentVersion:   optionalString(s.Version),
		SessionRotated: rotated,
	}); err != nil {
		return fmt.Errorf("update host %d: %w", remoteID, err)
	}
	if rotated {
		log.Info().Int64("host_id", existing.ID).Int64("remote_id", remoteID).Msg("agent session changed; full sync required")
	}
	return nil
}

// isInventoryTarget keeps Windows agents only; other agents are gateways and relays.
func isInventoryTarget(osName string) bool {
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(osName)), "windows")
}

func sameSession(stored, incoming *int64) bool {
	if stored == nil || incoming == nil {
		return stored == nil && incoming == nil
	}
	return *stored == *incoming
}

func optionalString(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}
