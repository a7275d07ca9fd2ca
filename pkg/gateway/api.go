package gateway

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/sameehj/gridvnc/pkg/grid"
	"github.com/sameehj/gridvnc/pkg/version"
)

const apiPrefix = "/api/v1/browser_cloud"

func (s *Server) registerAPI(r *mux.Router) {
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/config", s.handleConfig).Methods(http.MethodGet)
	r.HandleFunc("/version", s.handleVersion).Methods(http.MethodGet)
	r.HandleFunc("/status", s.handleStatus).Methods(http.MethodGet)
	r.HandleFunc("/sessions", s.handleListSessions).Methods(http.MethodGet)
	r.HandleFunc("/session", s.handleCreateSession).Methods(http.MethodPost)
	r.HandleFunc("/session/{id}", s.handleGetSession).Methods(http.MethodGet)
	r.HandleFunc("/session/{id}", s.handleDeleteSession).Methods(http.MethodDelete)
	r.HandleFunc("/node/{id}", s.handleGetNode).Methods(http.MethodGet)
	r.HandleFunc("/node/{id}", s.handleDeleteNode).Methods(http.MethodDelete)
	r.HandleFunc("/node/{id}/drain", s.handleDrainNode).Methods(http.MethodPost)
	r.HandleFunc("/queue", s.handleGetQueue).Methods(http.MethodGet)
	r.HandleFunc("/queue", s.handleClearQueue).Methods(http.MethodDelete)
	r.HandleFunc("/relays", s.handleListRelays).Methods(http.MethodGet)
	r.HandleFunc("/vnc/{sessionId}", s.handleVNC).Methods(http.MethodGet)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	snapshot, err := s.grid.Status(r.Context())
	ready := err == nil && snapshot.Ready

	status := http.StatusOK
	state := "healthy"
	if !ready {
		status = http.StatusServiceUnavailable
		state = "degraded"
	}
	writeJSON(w, status, map[string]any{
		"status":         state,
		"grid_connected": err == nil,
		"grid_ready":     ready,
		"uptime":         time.Since(s.started).Seconds(),
		"timestamp":      float64(time.Now().UnixNano()) / 1e9,
	})
}

func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"grid_url": s.public.GridURL,
		"host":     s.public.Host,
		"port":     s.public.Port,
		"debug":    s.public.Debug,
	})
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, version.Get())
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	snapshot, err := s.grid.Status(r.Context())
	if err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"error":   err.Error(),
			"ready":   false,
			"message": "Failed to connect to Selenium Grid",
		})
		return
	}

	st := grid.Stats(snapshot)
	nodes := snapshot.Nodes
	if nodes == nil {
		nodes = []grid.Node{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"ready":    snapshot.Ready,
		"message":  snapshot.Message,
		"nodes":    nodes,
		"sessions": grid.Sessions(snapshot),
		"statistics": map[string]int{
			"total_nodes":     st.TotalNodes,
			"total_slots":     st.TotalSlots,
			"available_slots": st.AvailableSlots,
			"active_sessions": st.ActiveSessions,
		},
	})
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	snapshot, err := s.grid.Status(r.Context())
	if err != nil {
		s.writeError(w, http.StatusServiceUnavailable, err)
		return
	}
	sessions := grid.Sessions(snapshot)
	writeJSON(w, http.StatusOK, map[string]any{
		"sessions": sessions,
		"count":    len(sessions),
	})
}

type createSessionRequest struct {
	DesiredCapabilities map[string]any `json:"desiredCapabilities"`
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()

	var req createSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.DesiredCapabilities == nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "desiredCapabilities required"})
		return
	}

	resp, err := s.grid.CreateSession(r.Context(), req.DesiredCapabilities)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	snapshot, err := s.grid.Status(r.Context())
	if err != nil {
		s.writeError(w, http.StatusServiceUnavailable, err)
		return
	}
	session, ok := grid.FindSession(snapshot, mux.Vars(r)["id"])
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]any{"error": "Session not found"})
		return
	}
	writeJSON(w, http.StatusOK, session)
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := s.grid.DeleteSession(r.Context(), id); err != nil {
		if grid.IsNotFound(err) {
			writeJSON(w, http.StatusNotFound, map[string]any{"error": "Session not found"})
			return
		}
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"message": fmt.Sprintf("Session %s deleted successfully", id),
	})
}

func (s *Server) handleGetNode(w http.ResponseWriter, r *http.Request) {
	snapshot, err := s.grid.Status(r.Context())
	if err != nil {
		s.writeError(w, http.StatusServiceUnavailable, err)
		return
	}
	node, ok := grid.FindNode(snapshot, mux.Vars(r)["id"])
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]any{"error": "Node not found"})
		return
	}
	writeJSON(w, http.StatusOK, node)
}

func (s *Server) handleDeleteNode(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := s.grid.DeleteNode(r.Context(), id); err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"message": fmt.Sprintf("Node %s removed successfully", id),
	})
}

func (s *Server) handleDrainNode(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := s.grid.DrainNode(r.Context(), id); err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"message": fmt.Sprintf("Node %s is being drained", id),
	})
}

func (s *Server) handleGetQueue(w http.ResponseWriter, r *http.Request) {
	queue, err := s.grid.Queue(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"queue": queue,
		"size":  len(queue),
	})
}

func (s *Server) handleClearQueue(w http.ResponseWriter, r *http.Request) {
	if err := s.grid.ClearQueue(r.Context()); err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"message": "Queue cleared successfully"})
}

func (s *Server) handleListRelays(w http.ResponseWriter, r *http.Request) {
	relays := s.ListRelays()
	writeJSON(w, http.StatusOK, map[string]any{
		"relays": relays,
		"count":  len(relays),
	})
}

func (s *Server) writeError(w http.ResponseWriter, status int, err error) {
	s.logError("api_request_failed", "status", status, "error", err)
	writeJSON(w, status, map[string]any{"error": err.Error()})
}
