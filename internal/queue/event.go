// Package queue defines the access-event payload exchanged over the message
// broker and the consumer that drains it.
package queue

import (
	"time"

	"github.com/iliyamo/flowsurfer-web/internal/model"
)

// AccessEvent is published once per request the server answers.  It carries
// enough detail for the consumer to write an access log line and a stats row
// without looking anything up.
type AccessEvent struct {
	Method     string `json:"method"`
	Route      string `json:"route"`
	Path       string `json:"path"`
	Status     int    `json:"status"`
	LatencyMS  int64  `json:"latency_ms"`
	RemoteIP   string `json:"remote_ip"`
	UserAgent  string `json:"user_agent"`
	RequestID  string `json:"request_id"`
	OccurredAt string `json:"occurred_at"` // RFC3339Nano, UTC
}

// Model converts the wire payload into a repository row.  An unparsable
// timestamp falls back to the zero time.
func (e AccessEvent) Model() model.AccessEvent {
	at, _ := time.Parse(time.RFC3339Nano, e.OccurredAt)
	return model.AccessEvent{
		Method:     e.Method,
		Route:      e.Route,
		Path:       e.Path,
		Status:     e.Status,
		LatencyMS:  e.LatencyMS,
		RemoteIP:   e.RemoteIP,
		UserAgent:  e.UserAgent,
		RequestID:  e.RequestID,
		OccurredAt: at,
	}
}
