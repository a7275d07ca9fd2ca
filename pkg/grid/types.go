package grid

import "errors"

// Snapshot is a point-in-time view of the grid as reported by GET /status.
type Snapshot struct {
	Ready   bool   `json:"ready"`
	Message string `json:"message,omitempty"`
	Nodes   []Node `json:"nodes"`
}

// Node is a worker machine hosting one or more slots.
type Node struct {
	ID           string `json:"id"`
	URI          string `json:"uri"`
	Availability string `json:"availability,omitempty"`
	Slots        []Slot `json:"slots"`
}

// Slot holds at most one active session.
type Slot struct {
	ID         string         `json:"id"`
	Stereotype map[string]any `json:"stereotype"`
	Session    *SessionRecord `json:"session"`
}

// SessionRecord is the session occupying a slot.
type SessionRecord struct {
	SessionID    string         `json:"sessionId"`
	Capabilities map[string]any `json:"capabilities"`
	Stereotype   map[string]any `json:"stereotype,omitempty"`
	Start        string         `json:"start"`
	URI          string         `json:"uri"`
}

// Location is where a session lives and how its display is exposed.
type Location struct {
	NodeID         string
	NodeURI        string
	DisplayEnabled bool
	DisplayPort    int
}

// SessionSummary is a flattened view of one active session.
type SessionSummary struct {
	ID           string         `json:"id"`
	Capabilities map[string]any `json:"capabilities"`
	Stereotype   map[string]any `json:"stereotype"`
	StartTime    string         `json:"startTime"`
	URI          string         `json:"uri"`
	NodeID       string         `json:"nodeId"`
	NodeURI      string         `json:"nodeUri"`
	VNCEnabled   bool           `json:"vncEnabled"`
	VNCPort      int            `json:"vncPort"`
}

// Statistics summarises slot usage across a snapshot.
type Statistics struct {
	TotalNodes     int
	TotalSlots     int
	AvailableSlots int
	ActiveSessions int
}

type statusEnvelope struct {
	Value *Snapshot `json:"value"`
}

func (e *statusEnvelope) validate() error {
	if e.Value == nil {
		return errors.New("status payload missing value")
	}
	return nil
}

type valueEnvelope struct {
	Value any `json:"value"`
}
