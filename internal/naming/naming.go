package naming

import (
	"fmt"
	"sort"
	"strings"
)

const (
	SourceAlias        = "alias"
	SourceComputerName = "computer_name"
	SourceAddress      = "ip_address"
)

type Candidate struct {
	Name   string
	Source string
}

type normalizedCandidate struct {
	Source      string
	DisplayName string
	Score       int
}

// NormalizeCandidate cleans a raw name and scores how good a display name it is.
func NormalizeCandidate(source, rawName string) (displayName string, score int, ok bool) {
	source = strings.ToLower(strings.TrimSpace(source))
	name := strings.TrimSpace(rawName)
	name = strings.TrimSuffix(name, ".")
	if name == "" {
		return "", 0, false
	}

	display := name
	if source == SourceComputerName && strings.Contains(display, ".") && !strings.ContainsAny(display, " \t") {
		// Agents on domain-joined machines sometimes report the FQDN.
		parts := strings.SplitN(display, ".", 2)
		if parts[0] != "" {
			display = parts[0]
		}
	}

	s := scoreCandidate(source, display)
	if s < 0 {
		return display, s, false
	}
	return display, s, true
}

// ChooseDisplayName picks the best-scoring candidate.
func ChooseDisplayName(candidates []Candidate) (string, bool) {
	var scored []normalizedCandidate
	for _, c := range candidates {
		display, score, ok := NormalizeCandidate(c.Source, c.Name)
		if !ok {
			continue
		}
		scored = append(scored, normalizedCandidate{Source: c.Source, DisplayName: display, Score: score})
	}
	if len(scored) == 0 {
		return "", false
	}

	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].Score != scored[j].Score {
			return scored[i].Score > scored[j].Score
		}
		return scored[i].DisplayName < scored[j].DisplayName
	})
	return scored[0].DisplayName, true
}

// HostDisplayName resolves the name shown for a host: a user alias when set,
// else the agent-reported computer name, else the address, else the remote id.
func HostDisplayName(alias, computerName, ipAddress *string, remoteID *int64) string {
	var candidates []Candidate
	if alias != nil {
		candidates = append(candidates, Candidate{Name: *alias, Source: SourceAlias})
	}
	if computerName != nil {
		candidates = append(candidates, Candidate{Name: *computerName, Source: SourceComputerName})
	}
	if ipAddress != nil {
		candidates = append(candidates, Candidate{Name: *ipAddress, Source: SourceAddress})
	}
	if name, ok := ChooseDisplayName(candidates); ok {
		return name
	}
	if remoteID != nil {
		return fmt.Sprintf("host #%d", *remoteID)
	}
	return "unknown host"
}

func scoreCandidate(source, display string) int {
	switch source {
	case SourceAlias:
		// Whatever the user typed wins.
		return 100
	case SourceComputerName:
		if looksGarbage(strings.ToLower(display)) {
			return -1
		}
		return 80
	case SourceAddress:
		return 40
	default:
		return 10
	}
}

func looksGarbage(normalized string) bool {
	switch normalized {
	case "", "localhost", "workgroup", "mshome", "unknown", "desktop":
		return true
	}
	return false
}
