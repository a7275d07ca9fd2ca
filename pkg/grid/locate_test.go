package grid

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func loadSnapshot(t *testing.T) *Snapshot {
	t.Helper()
	data, err := os.ReadFile(filepath.Join("testdata", "status.json"))
	require.NoError(t, err)
	var env statusEnvelope
	require.NoError(t, json.Unmarshal(data, &env))
	require.NotNil(t, env.Value)
	return env.Value
}

func TestLocate(t *testing.T) {
	snap := loadSnapshot(t)

	tests := []struct {
		name    string
		id      string
		want    Location
		wantErr error
	}{
		{
			name: "display enabled with explicit port",
			id:   "abc",
			want: Location{NodeID: "node-1", NodeURI: "http://10.1.1.1:5555", DisplayEnabled: true, DisplayPort: 5901},
		},
		{
			name: "defaults when stereotype is silent",
			id:   "nodisplay",
			want: Location{NodeID: "node-2", NodeURI: "10.1.1.2:5555", DisplayEnabled: false, DisplayPort: DefaultVNCPort},
		},
		{
			name: "session stereotype overrides slot",
			id:   "override",
			want: Location{NodeID: "node-2", NodeURI: "10.1.1.2:5555", DisplayEnabled: true, DisplayPort: 5902},
		},
		{name: "unknown id", id: "zzz", wantErr: ErrSessionNotFound},
		{name: "empty id", id: "", wantErr: ErrSessionNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Locate(snap, tt.id)
			if tt.wantErr != nil {
				require.True(t, errors.Is(err, tt.wantErr), "got %v", err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestLocateMatchesIffSlotHoldsSession(t *testing.T) {
	snap := loadSnapshot(t)
	present := map[string]bool{}
	for _, node := range snap.Nodes {
		for _, slot := range node.Slots {
			if slot.Session != nil {
				present[slot.Session.SessionID] = true
			}
		}
	}
	for _, id := range []string{"abc", "nodisplay", "override", "slot-1", "node-1", "ABC", "zzz"} {
		_, err := Locate(snap, id)
		require.Equal(t, present[id], err == nil, "id %q", id)
	}
}

func TestLocateFirstMatchWins(t *testing.T) {
	snap := &Snapshot{Nodes: []Node{
		{ID: "a", URI: "http://a:5555", Slots: []Slot{{Session: &SessionRecord{SessionID: "dup"}}}},
		{ID: "b", URI: "http://b:5555", Slots: []Slot{{Session: &SessionRecord{SessionID: "dup"}}}},
	}}
	loc, err := Locate(snap, "dup")
	require.NoError(t, err)
	require.Equal(t, "a", loc.NodeID)
}

func TestLocateNilSnapshot(t *testing.T) {
	_, err := Locate(nil, "abc")
	require.ErrorIs(t, err, ErrSessionNotFound)
}

func TestSessionsAndStats(t *testing.T) {
	snap := loadSnapshot(t)

	sessions := Sessions(snap)
	require.Len(t, sessions, 3)
	require.Equal(t, "abc", sessions[0].ID)
	require.Equal(t, "node-1", sessions[0].NodeID)
	require.Equal(t, "2026-10-19T10:00:00Z", sessions[0].StartTime)
	require.True(t, sessions[0].VNCEnabled)
	require.Equal(t, 5901, sessions[0].VNCPort)

	st := Stats(snap)
	require.Equal(t, Statistics{TotalNodes: 2, TotalSlots: 4, AvailableSlots: 1, ActiveSessions: 3}, st)

	_, ok := FindSession(snap, "override")
	require.True(t, ok)
	_, ok = FindSession(snap, "zzz")
	require.False(t, ok)

	node, ok := FindNode(snap, "node-2")
	require.True(t, ok)
	require.Len(t, node.Slots, 2)
	_, ok = FindNode(snap, "node-9")
	require.False(t, ok)
}

func TestSessionsEmptySnapshot(t *testing.T) {
	require.NotNil(t, Sessions(nil))
	require.Empty(t, Sessions(&Snapshot{}))
}
