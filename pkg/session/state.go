package session

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"vpnshield/pkg/assessor"
	"vpnshield/pkg/catalog"
	"vpnshield/pkg/telemetry"
)

var (
	ErrNoEndpoint        = errors.New("no endpoint selected")
	ErrInvalidTransition = errors.New("invalid transition")
	ErrAssignmentFailed  = errors.New("address assignment failed")
	ErrClosed            = errors.New("controller closed")
)

// State is the connection state.
type State int

const (
	Disconnected State = iota
	Connecting
	Connected
	Disconnecting
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "Disconnected"
	case Connecting:
		return "Connecting"
	case Connected:
		return "Connected"
	case Disconnecting:
		return "Disconnecting"
	default:
		return "Unknown"
	}
}

func (s State) MarshalText() ([]byte, error) {
	switch s {
	case Disconnected, Connecting, Connected, Disconnecting:
		return []byte(strings.ToLower(s.String())), nil
	default:
		return nil, fmt.Errorf("unknown state %d", int(s))
	}
}

func (s *State) UnmarshalText(text []byte) error {
	for _, candidate := range []State{Disconnected, Connecting, Connected, Disconnecting} {
		if strings.EqualFold(string(text), candidate.String()) {
			*s = candidate
			return nil
		}
	}
	return fmt.Errorf("unknown state %q", string(text))
}

type EventKind string

const EventAssignmentFailed EventKind = "assignment_failed"

// Event is a one-shot condition attached only to the snapshot published when it occurred.
type Event struct {
	Kind    EventKind `json:"kind"`
	Message string    `json:"message"`
}

// PlaceholderAddress is displayed while no address is assigned.
const PlaceholderAddress = "---.---.---.---"

// Snapshot is an immutable copy of the session.
type Snapshot struct {
	State           State                `json:"state"`
	Endpoint        *catalog.Endpoint    `json:"endpoint,omitempty"`
	SessionID       string               `json:"session_id,omitempty"`
	Generation      uint64               `json:"generation"`
	ElapsedSeconds  uint64               `json:"elapsed_seconds"`
	AssignedAddress string               `json:"assigned_address,omitempty"`
	StartedAt       *time.Time           `json:"started_at,omitempty"`
	RecentSamples   []telemetry.Sample   `json:"recent_samples"`
	Assessment      *assessor.Assessment `json:"assessment,omitempty"`
	Event           *Event               `json:"event,omitempty"`
}

// Elapsed formats ElapsedSeconds as HH:MM:SS.
func (s Snapshot) Elapsed() string {
	h := s.ElapsedSeconds / 3600
	m := (s.ElapsedSeconds % 3600) / 60
	sec := s.ElapsedSeconds % 60
	return fmt.Sprintf("%02d:%02d:%02d", h, m, sec)
}

func (s Snapshot) DisplayAddress() string {
	if s.AssignedAddress == "" {
		return PlaceholderAddress
	}
	return s.AssignedAddress
}

// Latest returns the newest sample, or a zero sample if there is none.
func (s Snapshot) Latest() telemetry.Sample {
	if len(s.RecentSamples) == 0 {
		return telemetry.Sample{}
	}
	return s.RecentSamples[len(s.RecentSamples)-1]
}
