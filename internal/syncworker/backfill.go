package syncworker

import (
	"context"
	"fmt"

	"hostinventory/core-go/internal/inventory"
	"hostinventory/core-go/internal/sqlcgen"
)

// BackfillMotherboard fills in the motherboard identity of hosts whose stored
// configuration document predates motherboard tracking. No changes are recorded.
func (w *Worker) BackfillMotherboard(ctx context.Context) (int, error) {
	hosts, err := w.q.ListHostsMissingMotherboard(ctx)
	if err != nil {
		return 0, fmt.Errorf("list hosts missing motherboard: %w", err)
	}

	var filled int
	for _, h := range hosts {
		mb, err := inventory.ExtractMotherboard(h.ConfigJSON)
		if err != nil {
			w.log.Debug().Err(err).Int64("host_id", h.ID).Msg("stored document has no usable motherboard section")
			continue
		}
		if mb == nil {
			continue
		}
		if err := w.q.SetHostMotherboard(ctx, sqlcgen.SetHostMotherboardParams{ID: h.ID, Motherboard: *mb}); err != nil {
			return filled, fmt.Errorf("set motherboard for host %d: %w", h.ID, err)
		}
		filled++
	}
	if filled > 0 {
		w.log.Info().Int("hosts", filled).Msg("motherboard identity backfilled")
	}
	return filled, nil
}
