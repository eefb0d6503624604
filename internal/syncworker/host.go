package syncworker

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"

	"hostinventory/core-go/internal/agentapi"
	"hostinventory/core-go/internal/changedetect"
	"hostinventory/core-go/internal/inventory"
	"hostinventory/core-go/internal/naming"
	"hostinventory/core-go/internal/notify"
	"hostinventory/core-go/internal/sqlcgen"
)

// Outcome classifies how one per-host sync ended.
type Outcome string

const (
	// OutcomeSynced means the snapshot was stored (changes may or may not have been found).
	OutcomeSynced Outcome = "synced"
	// OutcomeUnreachable means the agent is offline; the host stays pending without an error.
	OutcomeUnreachable Outcome = "unreachable"
	// OutcomeFailed covers transport, API, credential and storage failures.
	OutcomeFailed Outcome = "failed"
	// OutcomeInvalidSnapshot means the document had no usable system_info; the host is untouched.
	OutcomeInvalidSnapshot Outcome = "invalid_snapshot"
	// OutcomeNotFound means the host row no longer exists.
	OutcomeNotFound Outcome = "not_found"
)

// HostResult describes one per-host sync.
type HostResult struct {
	HostID  int64
	Outcome Outcome
	// FirstSync is set when the stored fingerprint was empty and no changes were recorded.
	FirstSync bool
	Changes   []changedetect.Change
	Err       error
}

// ForceHostResync flags one host for a full sync and syncs it immediately,
// without a roster refresh. Sync failures are reported in the result; the
// error is only set when the host does not exist or cannot be flagged.
func (w *Worker) ForceHostResync(ctx context.Context, hostID int64) (HostResult, error) {
	n, err := w.q.MarkHostNeedsFullSync(ctx, hostID)
	if err != nil {
		return HostResult{HostID: hostID, Outcome: OutcomeFailed, Err: err}, fmt.Errorf("flag host %d: %w", hostID, err)
	}
	if n == 0 {
		return HostResult{HostID: hostID, Outcome: OutcomeNotFound, Err: ErrHostNotFound}, ErrHostNotFound
	}

	w.log.Info().Int64("host_id", hostID).Msg("forced host resync")
	res := w.syncHost(ctx, hostID)
	if res.Outcome == OutcomeNotFound {
		return res, ErrHostNotFound
	}
	return res, nil
}

// syncHost coalesces concurrent syncs of the same host within this process.
// The shared task runs on a context detached from every caller and bounded by
// the fan-out budget; each caller only stops waiting when its own ctx ends.
func (w *Worker) syncHost(ctx context.Context, hostID int64) HostResult {
	ch := w.hostSyncs.DoChan(strconv.FormatInt(hostID, 10), func() (any, error) {
		taskCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), w.fanoutTimeout)
		defer cancel()
		return w.syncHostRecovered(taskCtx, hostID), nil
	})

	var res HostResult
	select {
	case r := <-ch:
		res = r.Val.(HostResult)
	case <-ctx.Done():
		res = HostResult{HostID: hostID, Outcome: OutcomeFailed, Err: fmt.Errorf("stopped waiting for host sync: %w", ctx.Err())}
	}
	w.metrics.IncHostSync(string(res.Outcome))
	return res
}

func (w *Worker) syncHostRecovered(ctx context.Context, hostID int64) (res HostResult) {
	defer func() {
		if r := recover(); r != nil {
			res = HostResult{HostID: hostID, Outcome: OutcomeFailed, Err: fmt.Errorf("panic: %v", r)}
			w.log.Error().Int64("host_id", hostID).Interface("panic", r).Msg("host sync panicked")
		}
	}()
	return w.syncHostOnce(ctx, hostID)
}

// syncHostOnce runs fetch, extract, detect and persist for one host. The host
// is re-read here so state captured before dispatch is never written back.
func (w *Worker) syncHostOnce(ctx context.Context, hostID int64) HostResult {
	res := HostResult{HostID: hostID}

	host, err := w.q.GetHost(ctx, hostID)
	if errors.Is(err, pgx.ErrNoRows) {
		res.Outcome, res.Err = OutcomeNotFound, ErrHostNotFound
		return res
	}
	if err != nil {
		res.Outcome, res.Err = OutcomeFailed, fmt.Errorf("load host: %w", err)
		w.log.Error().Err(err).Int64("host_id", hostID).Msg("failed to load host")
		return res
	}
	if host.RemoteID == nil {
		res.Outcome, res.Err = OutcomeFailed, errors.New("host has no remote id")
		w.log.Warn().Int64("host_id", hostID).Msg("skipping host without remote id")
		return res
	}

	log := w.log.With().Int64("host_id", hostID).Int64("remote_id", *host.RemoteID).Logger()

	creds, err := w.credentials(host)
	if err != nil {
		res.Outcome, res.Err = OutcomeFailed, err
		w.recordFailure(ctx, log, hostID, err)
		return res
	}

	log.Debug().Msg("fetching host configuration")
	doc, err := w.api.FetchConfig(ctx, *host.RemoteID, creds)
	if err != nil {
		if agentapi.IsPeerUnreachable(err) {
			res.Outcome = OutcomeUnreachable
			if err := w.q.MarkHostUnreachable(ctx, hostID); err != nil {
				log.Error().Err(err).Msg("failed to mark host unreachable")
			}
			log.Info().Msg("agent unreachable; host stays pending")
			return res
		}
		res.Outcome, res.Err = OutcomeFailed, err
		w.recordFailure(ctx, log, hostID, err)
		return res
	}

	snap, err := inventory.Extract(doc.SystemInfo)
	if err != nil {
		res.Outcome, res.Err = OutcomeInvalidSnapshot, err
		log.Warn().Err(err).Msg("configuration document is unusable; host left untouched")
		return res
	}

	detected, displayName, err := w.persistSnapshot(ctx, hostID, snap)
	if err != nil {
		res.Outcome, res.Err = OutcomeFailed, err
		log.Error().Err(err).Msg("failed to store host snapshot")
		return res
	}

	res.Outcome = OutcomeSynced
	res.FirstSync = detected.FirstSync
	res.Changes = detected.Changes
	for _, c := range detected.Changes {
		w.metrics.IncComponentChange(string(c.Component), string(c.Kind))
	}
	log.Info().
		Bool("first_sync", detected.FirstSync).
		Int("changes", len(detected.Changes)).
		Int("software", len(snap.Software)).
		Msg("host configuration synced")

	if len(detected.Changes) > 0 {
		if err := w.notifier.Notify(ctx, buildBatch(displayName, detected.Changes)); err != nil {
			log.Warn().Err(err).Msg("failed to deliver change notification")
		}
	}
	return res
}

func (w *Worker) credentials(host sqlcgen.Host) (*agentapi.Credentials, error) {
	user := deref(host.AgentUser)
	secret := deref(host.AgentPasswordEncrypted)
	if strings.TrimSpace(user) == "" || strings.TrimSpace(secret) == "" {
		return nil, nil
	}
	if w.decrypter == nil {
		return nil, errors.New("host has stored credentials but no decryption key is configured")
	}
	password, err := w.decrypter.Decrypt(secret)
	if err != nil {
		return nil, fmt.Errorf("decrypt agent password: %w", err)
	}
	return &agentapi.Credentials{User: user, Password: password}, nil
}

func (w *Worker) recordFailure(ctx context.Context, log zerolog.Logger, hostID int64, cause error) {
	log.Warn().Err(cause).Msg("host sync failed")
	if err := w.q.RecordHostSyncError(ctx, sqlcgen.RecordHostSyncErrorParams{
		ID:        hostID,
		SyncError: cause.Error(),
	}); err != nil {
		log.Error().Err(err).Msg("failed to record host sync error")
	}
}

// persistSnapshot diffs and stores one snapshot in a single transaction,
// against the host row locked for the duration.
func (w *Worker) persistSnapshot(ctx context.Context, hostID int64, snap inventory.Snapshot) (changedetect.Result, string, error) {
	var (
		result      changedetect.Result
		displayName string
	)
	err := w.inTx(ctx, func(q Queries) error {
		host, err := q.GetHostForUpdate(ctx, hostID)
		if err != nil {
			return fmt.Errorf("lock host: %w", err)
		}
		displayName = naming.HostDisplayName(host.Alias, host.ComputerName, host.IPAddress, host.RemoteID)

		groups, err := q.ListHostGroupTrackedComponents(ctx, hostID)
		if err != nil {
			return fmt.Errorf("load group tracking: %w", err)
		}
		storedSoftware, err := q.ListHostSoftware(ctx, hostID)
		if err != nil {
			return fmt.Errorf("load software: %w", err)
		}
		exclusions, err := q.ListSoftwareExclusionsForHost(ctx, hostID)
		if err != nil {
			return fmt.Errorf("load exclusions: %w", err)
		}

		result = changedetect.Detect(changedetect.Input{
			Stored:         storedFingerprint(host),
			StoredSoftware: toInventorySoftware(storedSoftware),
			Fetched:        snap,
			Tracked:        inventory.EffectiveTracked(host.TrackedComponentsOverride, groups),
			Exclusions:     toExclusions(exclusions),
		})

		now := time.Now()
		for _, c := range result.Changes {
			if _, err := q.InsertComponentChange(ctx, sqlcgen.InsertComponentChangeParams{
				HostID:        hostID,
				ComponentType: string(c.Component),
				ChangeType:    string(c.Kind),
				OldValue:      optionalString(c.OldValue),
				NewValue:      optionalString(c.NewValue),
				DetectedAt:    now,
			}); err != nil {
				return fmt.Errorf("insert change: %w", err)
			}
		}

		fp := snap.Fingerprint
		if err := q.UpdateHostInventory(ctx, sqlcgen.UpdateHostInventoryParams{
			ID:             hostID,
			CPUModel:       fp.CPUModel,
			TotalRAMBytes:  fp.TotalRAMBytes,
			TotalDiskBytes: fp.TotalDiskBytes,
			VideoAdapter:   fp.VideoAdapter,
			Motherboard:    fp.Motherboard,
			ConfigJSON:     snap.Raw,
			SyncedAt:       now,
		}); err != nil {
			return fmt.Errorf("update host: %w", err)
		}

		if _, err := q.DeleteHostSoftware(ctx, hostID); err != nil {
			return fmt.Errorf("clear software: %w", err)
		}
		if rows := toSoftwareRows(hostID, snap.Software); len(rows) > 0 {
			if _, err := q.CopyHostSoftware(ctx, rows); err != nil {
				return fmt.Errorf("store software: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return changedetect.Result{}, "", err
	}
	return result, displayName, nil
}

func storedFingerprint(h sqlcgen.Host) inventory.Fingerprint {
	return inventory.Fingerprint{
		CPUModel:       h.CPUModel,
		TotalRAMBytes:  h.TotalRAMBytes,
		TotalDiskBytes: h.TotalDiskBytes,
		VideoAdapter:   h.VideoAdapter,
		Motherboard:    h.Motherboard,
	}
}

func toInventorySoftware(rows []sqlcgen.HostSoftware) []inventory.Software {
	out := make([]inventory.Software, 0, len(rows))
	for _, r := range rows {
		out = append(out, inventory.Software{
			Name:        r.Name,
			Version:     deref(r.Version),
			Publisher:   deref(r.Publisher),
			InstallDate: deref(r.InstallDate),
		})
	}
	return out
}

func toSoftwareRows(hostID int64, list []inventory.Software) []sqlcgen.HostSoftware {
	out := make([]sqlcgen.HostSoftware, 0, len(list))
	for _, sw := range list {
		out = append(out, sqlcgen.HostSoftware{
			HostID:      hostID,
			Name:        strings.TrimSpace(sw.Name),
			Version:     optionalString(sw.Version),
			Publisher:   optionalString(sw.Publisher),
			InstallDate: optionalString(sw.InstallDate),
		})
	}
	return out
}

func toExclusions(rows []sqlcgen.SoftwareExclusion) changedetect.Exclusions {
	var global, host []string
	for _, r := range rows {
		if r.HostID == nil {
			global = append(global, r.SoftwareName)
			continue
		}
		host = append(host, r.SoftwareName)
	}
	return changedetect.NewExclusions(global, host)
}

func buildBatch(displayName string, changes []changedetect.Change) notify.Batch {
	batch := notify.Batch{HostDisplayName: displayName}
	for _, c := range changes {
		batch.Changes = append(batch.Changes, notify.Change{
			HostDisplayName: displayName,
			ComponentType:   string(c.Component),
			ChangeType:      string(c.Kind),
			OldValue:        c.OldValue,
			NewValue:        c.NewValue,
		})
	}
	return batch
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
