package inventory

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrMissingSystemInfo is returned when a configuration document has no system_info section.
var ErrMissingSystemInfo = errors.New("configuration document has no system_info")

// Fingerprint holds the normalized scalar fields compared between syncs.
type Fingerprint struct {
	CPUModel       *string
	TotalRAMBytes  *int64
	TotalDiskBytes *int64
	VideoAdapter   *string
	Motherboard    *string
}

// Software is one installed application as reported by the agent.
type Software struct {
	Name        string
	Version     string
	Publisher   string
	InstallDate string
}

// Key identifies a software entry by trimmed name and version. An empty version is its own variant.
func (s Software) Key() string {
	return strings.TrimSpace(s.Name) + "|" + strings.TrimSpace(s.Version)
}

// Label renders the entry for change records.
func (s Software) Label() string {
	return strings.TrimSpace(s.Name + " " + s.Version)
}

// Snapshot is everything extracted from one successful configuration fetch.
type Snapshot struct {
	Fingerprint Fingerprint
	Software    []Software
	// Raw is the system_info document as received, kept for detail views only.
	Raw json.RawMessage
}

type systemInfo struct {
	Processor *struct {
		Model *string `json:"model"`
	} `json:"processor"`
	Memory *struct {
		Module []struct {
			Present *bool     `json:"present"`
			Size    flexInt64 `json:"size"`
		} `json:"module"`
	} `json:"memory"`
	LogicalDrives *struct {
		Drive []struct {
			TotalSize flexInt64 `json:"total_size"`
		} `json:"drive"`
	} `json:"logical_drives"`
	VideoAdapters *struct {
		Adapter []struct {
			Description *string `json:"description"`
		} `json:"adapter"`
	} `json:"video_adapters"`
	Motherboard *struct {
		Manufacturer *string `json:"manufacturer"`
		Model        *string `json:"model"`
	} `json:"motherboard"`
	Applications *struct {
		Application []struct {
			Name        string `json:"name"`
			Version     string `json:"version"`
			Publisher   string `json:"publisher"`
			InstallDate string `json:"install_date"`
		} `json:"application"`
	} `json:"applications"`
}

// flexInt64 accepts JSON numbers, numeric strings and null.
type flexInt64 struct {
	Value int64
	Valid bool
}

func (f *flexInt64) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*f = flexInt64{}
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
		if err != nil {
			*f = flexInt64{}
			return nil
		}
		*f = flexInt64{Value: n, Valid: true}
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	if i, err := n.Int64(); err == nil {
		*f = flexInt64{Value: i, Valid: true}
		return nil
	}
	fl, err := n.Float64()
	if err != nil {
		return err
	}
	*f = flexInt64{Value: int64(fl), Valid: true}
	return nil
}

// Extract parses a system_info document into normalized fields and a software list.
func Extract(raw json.RawMessage) (Snapshot, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return Snapshot{}, ErrMissingSystemInfo
	}

	var si systemInfo
	if err := json.Unmarshal(trimmed, &si); err != nil {
		return Snapshot{}, fmt.Errorf("decode system_info: %w", err)
	}

	return Snapshot{
		Fingerprint: Fingerprint{
			CPUModel:       cpuModel(si),
			TotalRAMBytes:  totalRAM(si),
			TotalDiskBytes: totalDisk(si),
			VideoAdapter:   videoAdapter(si),
			Motherboard:    motherboard(si),
		},
		Software: softwareList(si),
		Raw:      append(json.RawMessage(nil), trimmed...),
	}, nil
}

// ExtractMotherboard reads only the motherboard identity from a stored document.
func ExtractMotherboard(raw json.RawMessage) (*string, error) {
	snap, err := Extract(raw)
	if err != nil {
		return nil, err
	}
	return snap.Fingerprint.Motherboard, nil
}

func cpuModel(si systemInfo) *string {
	if si.Processor == nil {
		return nil
	}
	return si.Processor.Model
}

func totalRAM(si systemInfo) *int64 {
	if si.Memory == nil || si.Memory.Module == nil {
		return nil
	}
	var total int64
	for _, m := range si.Memory.Module {
		if m.Present == nil || !*m.Present || !m.Size.Valid {
			continue
		}
		total += m.Size.Value
	}
	if total <= 0 {
		return nil
	}
	return &total
}

func totalDisk(si systemInfo) *int64 {
	if si.LogicalDrives == nil || si.LogicalDrives.Drive == nil {
		return nil
	}
	var total int64
	for _, d := range si.LogicalDrives.Drive {
		if d.TotalSize.Valid {
			total += d.TotalSize.Value
		}
	}
	if total <= 0 {
		return nil
	}
	return &total
}

func videoAdapter(si systemInfo) *string {
	if si.VideoAdapters == nil || len(si.VideoAdapters.Adapter) == 0 {
		return nil
	}
	return si.VideoAdapters.Adapter[0].Description
}

func motherboard(si systemInfo) *string {
	if si.Motherboard == nil {
		return nil
	}
	if si.Motherboard.Manufacturer == nil && si.Motherboard.Model == nil {
		return nil
	}
	var manufacturer, model string
	if si.Motherboard.Manufacturer != nil {
		manufacturer = *si.Motherboard.Manufacturer
	}
	if si.Motherboard.Model != nil {
		model = *si.Motherboard.Model
	}
	s := strings.TrimSpace(manufacturer + " " + model)
	return &s
}

func softwareList(si systemInfo) []Software {
	if si.Applications == nil {
		return nil
	}
	out := make([]Software, 0, len(si.Applications.Application))
	for _, a := range si.Applications.Application {
		// Registry display names often carry trailing blanks.
		name := strings.TrimSpace(a.Name)
		if name == "" {
			continue
		}
		out = append(out, Software{
			Name:        name,
			Version:     strings.TrimSpace(a.Version),
			Publisher:   strings.TrimSpace(a.Publisher),
			InstallDate: strings.TrimSpace(a.InstallDate),
		})
	}
	return out
}

// FormatGB renders a byte count as a one-decimal gigabyte string (1 GB = 1024^3 bytes).
// A nil count renders as the empty string.
func FormatGB(bytes *int64) string {
	if bytes == nil {
		return ""
	}
	gb := float64(*bytes) / (1024.0 * 1024.0 * 1024.0)
	return strconv.FormatFloat(gb, 'f', 1, 64) + " GB"
}
