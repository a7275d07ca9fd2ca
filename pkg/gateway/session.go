package gateway

import (
	"time"

	"github.com/sameehj/gridvnc/pkg/relay"
)

// RelayInfo describes one client connection being relayed.
type RelayInfo struct {
	ID         string    `json:"id"`
	SessionID  string    `json:"sessionId"`
	RemoteAddr string    `json:"remoteAddr"`
	StartedAt  time.Time `json:"startedAt"`
	State      string    `json:"state"`
	Target     string    `json:"target,omitempty"`
}

func newRelayInfo(sess *relay.Session) RelayInfo {
	info := RelayInfo{
		ID:         sess.ID,
		SessionID:  sess.SessionID,
		RemoteAddr: sess.RemoteAddr,
		StartedAt:  sess.StartedAt,
		State:      sess.State().String(),
	}
	if ep := sess.Endpoint(); ep.Host != "" {
		info.Target = ep.URL()
	}
	return info
}
