package model

import "time"

// AccessEvent is one row of the `access_events` table: a single request
// served by the API, as recorded by the access-log consumer.
//
// Fields:
//  Method    – HTTP method of the request.
//  Route     – registered route pattern (e.g. /api/hello); empty for 404s.
//  Path      – raw request path.
//  Status    – response status code.
//  LatencyMS – handler latency in milliseconds.
type AccessEvent struct {
	Method     string    // access_events.method
	Route      string    // access_events.route
	Path       string    // access_events.path
	Status     int       // access_events.status
	LatencyMS  int64     // access_events.latency_ms
	RemoteIP   string    // access_events.remote_ip
	UserAgent  string    // access_events.user_agent
	RequestID  string    // access_events.request_id
	OccurredAt time.Time // access_events.occurred_at
}

// RouteStat aggregates access events by method, route and status.
type RouteStat struct {
	Method       string
	Route        string
	Status       int
	Hits         uint64
	AvgLatencyMS float64
}
