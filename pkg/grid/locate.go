package grid

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

const (
	// StereotypeVNCEnabled marks a slot whose sessions expose a display.
	StereotypeVNCEnabled = "se:vncEnabled"
	// StereotypeVNCPort is the display port advertised by a slot.
	StereotypeVNCPort = "se:vncPort"

	DefaultVNCPort = 5900
)

// ErrSessionNotFound means no slot in the snapshot holds the session.
var ErrSessionNotFound = errors.New("session not found")

// Locate finds the slot holding sessionID. Nodes and slots are scanned in
// order and the first match wins.
func Locate(snapshot *Snapshot, sessionID string) (Location, error) {
	if snapshot == nil || sessionID == "" {
		return Location{}, fmt.Errorf("%w: %q", ErrSessionNotFound, sessionID)
	}
	for _, node := range snapshot.Nodes {
		for _, slot := range node.Slots {
			if slot.Session == nil || slot.Session.SessionID != sessionID {
				continue
			}
			enabled, port := displayOf(slot)
			return Location{
				NodeID:         node.ID,
				NodeURI:        node.URI,
				DisplayEnabled: enabled,
				DisplayPort:    port,
			}, nil
		}
	}
	return Location{}, fmt.Errorf("%w: %q", ErrSessionNotFound, sessionID)
}

// Sessions lists every active session in the snapshot.
func Sessions(snapshot *Snapshot) []SessionSummary {
	out := []SessionSummary{}
	if snapshot == nil {
		return out
	}
	for _, node := range snapshot.Nodes {
		for _, slot := range node.Slots {
			if slot.Session == nil {
				continue
			}
			enabled, port := displayOf(slot)
			out = append(out, SessionSummary{
				ID:           slot.Session.SessionID,
				Capabilities: nonNil(slot.Session.Capabilities),
				Stereotype:   stereotypeOf(slot),
				StartTime:    slot.Session.Start,
				URI:          slot.Session.URI,
				NodeID:       node.ID,
				NodeURI:      node.URI,
				VNCEnabled:   enabled,
				VNCPort:      port,
			})
		}
	}
	return out
}

// FindSession returns the summary for id, if present.
func FindSession(snapshot *Snapshot, id string) (SessionSummary, bool) {
	for _, s := range Sessions(snapshot) {
		if s.ID == id {
			return s, true
		}
	}
	return SessionSummary{}, false
}

// FindNode returns the node with the given id, if present.
func FindNode(snapshot *Snapshot, id string) (Node, bool) {
	if snapshot == nil {
		return Node{}, false
	}
	for _, node := range snapshot.Nodes {
		if node.ID == id {
			return node, true
		}
	}
	return Node{}, false
}

// Stats counts nodes, slots and sessions.
func Stats(snapshot *Snapshot) Statistics {
	var st Statistics
	if snapshot == nil {
		return st
	}
	st.TotalNodes = len(snapshot.Nodes)
	for _, node := range snapshot.Nodes {
		st.TotalSlots += len(node.Slots)
		for _, slot := range node.Slots {
			if slot.Session != nil {
				st.ActiveSessions++
			} else {
				st.AvailableSlots++
			}
		}
	}
	return st
}

// stereotypeOf merges the slot stereotype with the session's own, the
// session's keys taking precedence.
func stereotypeOf(slot Slot) map[string]any {
	merged := make(map[string]any, len(slot.Stereotype))
	for k, v := range slot.Stereotype {
		merged[k] = v
	}
	if slot.Session != nil {
		for k, v := range slot.Session.Stereotype {
			merged[k] = v
		}
	}
	return merged
}

func displayOf(slot Slot) (bool, int) {
	st := stereotypeOf(slot)
	return boolValue(st[StereotypeVNCEnabled]), portValue(st[StereotypeVNCPort])
}

func boolValue(v any) bool {
	switch t := v.(type) {
	case bool:
		return t
	case string:
		b, err := strconv.ParseBool(strings.TrimSpace(t))
		return err == nil && b
	default:
		return false
	}
}

func portValue(v any) int {
	switch t := v.(type) {
	case float64:
		return int(t)
	case int:
		return t
	case int64:
		return int(t)
	case string:
		if n, err := strconv.Atoi(strings.TrimSpace(t)); err == nil {
			return n
		}
	}
	return DefaultVNCPort
}

func nonNil(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}
