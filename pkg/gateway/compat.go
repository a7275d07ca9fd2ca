package gateway

import (
	"fmt"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/sameehj/gridvnc/pkg/grid"
)

const compatPrefix = "/api"

// The compat routes serve the React dashboard, which expects camelCase
// fields wrapped in a success envelope. They hang off the root router with
// full paths.
func (s *Server) registerCompat(r *mux.Router) {
	r.HandleFunc(compatPrefix+"/status", s.handleCompatStatus).Methods(http.MethodGet)
	r.HandleFunc(compatPrefix+"/session/{id}", s.handleCompatDeleteSession).Methods(http.MethodDelete)
}

type compatSession struct {
	SessionID    string         `json:"sessionId"`
	Capabilities map[string]any `json:"capabilities"`
	StartTime    string         `json:"startTime"`
	URI          string         `json:"uri"`
}

type compatSlot struct {
	ID         string         `json:"id"`
	Stereotype map[string]any `json:"stereotype"`
	Session    *compatSession `json:"session"`
}

type compatNode struct {
	ID           string       `json:"id"`
	URI          string       `json:"uri"`
	Availability string       `json:"availability"`
	Slots        []compatSlot `json:"slots"`
}

type compatActiveSession struct {
	SessionID    string         `json:"sessionId"`
	NodeID       string         `json:"nodeId"`
	NodeURI      string         `json:"nodeUri"`
	Capabilities map[string]any `json:"capabilities"`
	StartTime    string         `json:"startTime"`
	Stereotype   map[string]any `json:"stereotype"`
}

type compatStatistics struct {
	TotalNodes     int `json:"totalNodes"`
	TotalSlots     int `json:"totalSlots"`
	AvailableSlots int `json:"availableSlots"`
	ActiveSessions int `json:"activeSessions"`
}

type compatGridData struct {
	Nodes       []compatNode          `json:"nodes"`
	Sessions    []compatActiveSession `json:"sessions"`
	Statistics  compatStatistics      `json:"statistics"`
	GridURL     string                `json:"gridUrl"`
	VNCPassword string                `json:"vncPassword"`
}

func (s *Server) handleCompatStatus(w http.ResponseWriter, r *http.Request) {
	snapshot, err := s.grid.Status(r.Context())
	if err != nil {
		s.logError("compat_status_failed", "error", err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"success": false, "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"data":    s.compatData(snapshot),
	})
}

func (s *Server) compatData(snapshot *grid.Snapshot) compatGridData {
	st := grid.Stats(snapshot)
	data := compatGridData{
		Nodes:    make([]compatNode, 0, len(snapshot.Nodes)),
		Sessions: []compatActiveSession{},
		Statistics: compatStatistics{
			TotalNodes:     st.TotalNodes,
			TotalSlots:     st.TotalSlots,
			AvailableSlots: st.AvailableSlots,
			ActiveSessions: st.ActiveSessions,
		},
		GridURL:     s.public.GridURL,
		VNCPassword: s.public.VNCPassword,
	}

	for _, node := range snapshot.Nodes {
		availability := node.Availability
		if availability == "" {
			availability = "UNKNOWN"
		}
		cn := compatNode{ID: node.ID, URI: node.URI, Availability: availability, Slots: make([]compatSlot, 0, len(node.Slots))}
		for _, slot := range node.Slots {
			cs := compatSlot{ID: slot.ID, Stereotype: orEmpty(slot.Stereotype)}
			if rec := slot.Session; rec != nil {
				cs.Session = &compatSession{
					SessionID:    rec.SessionID,
					Capabilities: orEmpty(rec.Capabilities),
					StartTime:    rec.Start,
					URI:          rec.URI,
				}
				data.Sessions = append(data.Sessions, compatActiveSession{
					SessionID:    rec.SessionID,
					NodeID:       node.ID,
					NodeURI:      node.URI,
					Capabilities: orEmpty(rec.Capabilities),
					StartTime:    rec.Start,
					Stereotype:   orEmpty(rec.Stereotype),
				})
			}
			cn.Slots = append(cn.Slots, cs)
		}
		data.Nodes = append(data.Nodes, cn)
	}
	return data
}

func (s *Server) handleCompatDeleteSession(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := s.grid.DeleteSession(r.Context(), id); err != nil {
		if grid.IsNotFound(err) {
			writeJSON(w, http.StatusNotFound, map[string]any{"success": false, "error": "Session not found"})
			return
		}
		s.logError("compat_delete_session_failed", "session", id, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]any{"success": false, "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": fmt.Sprintf("Session %s deleted successfully", id),
	})
}

func orEmpty(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}
