package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/iliyamo/flowsurfer-web/internal/model"
)

// AccessRepo persists access events and answers aggregate queries over them.
type AccessRepo struct{ DB *sql.DB }

func NewAccessRepo(db *sql.DB) *AccessRepo { return &AccessRepo{DB: db} }

// Insert stores one access event.
func (r *AccessRepo) Insert(ctx context.Context, ev model.AccessEvent) error {
	if r == nil || r.DB == nil {
		return ErrNotConfigured
	}
	_, err := r.DB.ExecContext(ctx,
		`INSERT INTO access_events
		   (method, route, path, status, latency_ms, remote_ip, user_agent, request_id, occurred_at)
		 VALUES (?,?,?,?,?,?,?,?,?)`,
		ev.Method, ev.Route, ev.Path, ev.Status, ev.LatencyMS, ev.RemoteIP, ev.UserAgent, ev.RequestID, ev.OccurredAt.UTC())
	if err != nil {
		return fmt.Errorf("insert access event: %w", err)
	}
	return nil
}

// StatsSince groups events that occurred at or after since by method, route
// and status, busiest first.
func (r *AccessRepo) StatsSince(ctx context.Context, since time.Time) ([]model.RouteStat, error) {
	if r == nil || r.DB == nil {
		return nil, ErrNotConfigured
	}
	rows, err := r.DB.QueryContext(ctx,
		`SELECT method, route, status, COUNT(*) AS hits, AVG(latency_ms) AS avg_latency
		   FROM access_events
		  WHERE occurred_at >= ?
		  GROUP BY method, route, status
		  ORDER BY hits DESC, route ASC`,
		since.UTC())
	if err != nil {
		return nil, fmt.Errorf("query access stats: %w", err)
	}
	defer rows.Close()

	var out []model.RouteStat
	for rows.Next() {
		var s model.RouteStat
		if err := rows.Scan(&s.Method, &s.Route, &s.Status, &s.Hits, &s.AvgLatencyMS); err != nil {
			return nil, fmt.Errorf("scan access stats: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
