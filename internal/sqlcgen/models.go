package sqlcgen

import "time"

type Host struct {
	ID                        int64
	RemoteID                  *int64
	SessionID                 *int64
	ComputerName              *string
	Alias                     *string
	IPAddress                 *string
	OSName                    *string
	Architecture              *string
	AgentVersion              *string
	CPUModel                  *string
	TotalRAMBytes             *int64
	TotalDiskBytes            *int64
	VideoAdapter              *string
	Motherboard               *string
	AgentUser                 *string
	AgentPasswordEncrypted    *string
	ConfigJSON                []byte
	Online                    bool
	SyncError                 *string
	NeedsFullSync             bool
	LastSyncAt                *time.Time
	TrackedComponentsOverride []string
	CreatedAt                 time.Time
	UpdatedAt                 time.Time
}

type HostGroup struct {
	ID                int64
	Name              string
	Description       *string
	TrackedComponents []string
	CreatedAt         time.Time
}

type HostSoftware struct {
	HostID      int64
	Name        string
	Version     *string
	Publisher   *string
	InstallDate *string
}

type SoftwareExclusion struct {
	ID           int64
	SoftwareName string
	HostID       *int64
	CreatedAt    time.Time
}

type ComponentChange struct {
	ID             int64
	HostID         int64
	ComponentType  string
	ChangeType     string
	OldValue       *string
	NewValue       *string
	DetectedAt     time.Time
	Acknowledged   bool
	AcknowledgedAt *time.Time
	AcknowledgedBy *string
}
