package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/iliyamo/flowsurfer-web/internal/model"
)

// DiagramRepo stores diagrams with their shapes serialized into one JSON column.
type DiagramRepo struct {
	DB  *sql.DB
	Now func() time.Time
}

func NewDiagramRepo(db *sql.DB) *DiagramRepo { return &DiagramRepo{DB: db, Now: time.Now} }

func (r *DiagramRepo) now() time.Time {
	if r.Now == nil {
		return time.Now().UTC().Truncate(time.Millisecond)
	}
	return r.Now().UTC().Truncate(time.Millisecond)
}

// Create inserts a diagram and returns it with its new id and timestamps.
func (r *DiagramRepo) Create(ctx context.Context, name string, shapes []model.Shape) (model.Diagram, error) {
	if r == nil || r.DB == nil {
		return model.Diagram{}, ErrNotConfigured
	}
	if shapes == nil {
		shapes = []model.Shape{}
	}
	doc, err := json.Marshal(shapes)
	if err != nil {
		return model.Diagram{}, fmt.Errorf("encode shapes: %w", err)
	}
	now := r.now()
	res, err := r.DB.ExecContext(ctx,
		"INSERT INTO diagrams (name, shapes, created_at, updated_at) VALUES (?,?,?,?)",
		name, doc, now, now)
	if err != nil {
		return model.Diagram{}, fmt.Errorf("insert diagram: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return model.Diagram{}, fmt.Errorf("diagram id: %w", err)
	}
	return model.Diagram{ID: uint64(id), Name: name, Shapes: shapes, CreatedAt: now, UpdatedAt: now}, nil
}

// Get returns a diagram by id, or ErrNotFound.
func (r *DiagramRepo) Get(ctx context.Context, id uint64) (model.Diagram, error) {
	if r == nil || r.DB == nil {
		return model.Diagram{}, ErrNotConfigured
	}
	var (
		d   model.Diagram
		doc []byte
	)
	err := r.DB.QueryRowContext(ctx,
		"SELECT id, name, shapes, created_at, updated_at FROM diagrams WHERE id=? LIMIT 1",
		id).Scan(&d.ID, &d.Name, &doc, &d.CreatedAt, &d.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Diagram{}, ErrNotFound
	}
	if err != nil {
		return model.Diagram{}, fmt.Errorf("get diagram %d: %w", id, err)
	}
	if err := json.Unmarshal(doc, &d.Shapes); err != nil {
		return model.Diagram{}, fmt.Errorf("decode shapes of diagram %d: %w", id, err)
	}
	if d.Shapes == nil {
		d.Shapes = []model.Shape{}
	}
	return d, nil
}

// List returns up to limit diagrams, most recently updated first.
func (r *DiagramRepo) List(ctx context.Context, limit int) ([]model.DiagramSummary, error) {
	if r == nil || r.DB == nil {
		return nil, ErrNotConfigured
	}
	rows, err := r.DB.QueryContext(ctx,
		`SELECT id, name, JSON_LENGTH(shapes), created_at, updated_at
		   FROM diagrams
		  ORDER BY updated_at DESC, id DESC
		  LIMIT ?`,
		limit)
	if err != nil {
		return nil, fmt.Errorf("list diagrams: %w", err)
	}
	defer rows.Close()

	var out []model.DiagramSummary
	for rows.Next() {
		var s model.DiagramSummary
		if err := rows.Scan(&s.ID, &s.Name, &s.ShapeCount, &s.CreatedAt, &s.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan diagram: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
