// Package notify delivers batches of detected component changes to an
// outbound channel.
package notify

import (
	"context"

	"github.com/rs/zerolog"
)

// Change is one line of a notification.
type Change struct {
	HostDisplayName string `json:"host"`
	ComponentType   string `json:"component_type"`
	ChangeType      string `json:"change_type"`
	OldValue        string `json:"old_value,omitempty"`
	NewValue        string `json:"new_value,omitempty"`
}

// Batch groups every change one host produced in one sync.
type Batch struct {
	HostDisplayName string
	Changes         []Change
}

// Notifier is implemented by outbound channels (chat bots, mail, webhooks).
type Notifier interface {
	Notify(ctx context.Context, batch Batch) error
}

// LogNotifier writes batches to the structured log. It is the default sink.
type LogNotifier struct {
	log zerolog.Logger
}

func NewLogNotifier(log zerolog.Logger) *LogNotifier {
	return &LogNotifier{log: log}
}

func (n *LogNotifier) Notify(_ context.Context, batch Batch) error {
	if len(batch.Changes) == 0 {
		return nil
	}
	arr := zerolog.Arr()
	for _, c := range batch.Changes {
		arr.Dict(zerolog.Dict().
			Str("component", c.ComponentType).
			Str("change", c.ChangeType).
			Str("old", c.OldValue).
			Str("new", c.NewValue))
	}
	n.log.Info().
		Str("host", batch.HostDisplayName).
		Int("count", len(batch.Changes)).
		Array("changes", arr).
		Msg("component changes detected")
	return nil
}

// Nop discards every batch.
type Nop struct{}

func (Nop) Notify(context.Context, Batch) error { return nil }
