package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/flowsurfer-web/internal/model"
	"github.com/iliyamo/flowsurfer-web/internal/repository"
)

const (
	// DefaultDiagramName is used when a diagram is saved without a name.
	DefaultDiagramName = "Untitled Diagram"

	maxDiagramName   = 255
	maxDiagramShapes = 5000
	defaultListLimit = 50
	maxListLimit     = 200
)

// DiagramStore is satisfied by *repository.DiagramRepo.
type DiagramStore interface {
	Create(ctx context.Context, name string, shapes []model.Shape) (model.Diagram, error)
	Get(ctx context.Context, id uint64) (model.Diagram, error)
	List(ctx context.Context, limit int) ([]model.DiagramSummary, error)
}

// DiagramHandler serves the saved-diagram API under /api/diagrams.
type DiagramHandler struct {
	Repo DiagramStore
}

func NewDiagramHandler(repo DiagramStore) *DiagramHandler { return &DiagramHandler{Repo: repo} }

type createDiagramReq struct {
	Name   string        `json:"name"`
	Shapes []model.Shape `json:"shapes"`
}

type diagramResp struct {
	ID        uint64        `json:"id"`
	Name      string        `json:"name"`
	Shapes    []model.Shape `json:"shapes"`
	CreatedAt time.Time     `json:"createdAt"`
	UpdatedAt time.Time     `json:"updatedAt"`
}

type diagramSummaryResp struct {
	ID         uint64    `json:"id"`
	Name       string    `json:"name"`
	ShapeCount int       `json:"shapeCount"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

func toDiagramResp(d model.Diagram) diagramResp {
	shapes := d.Shapes
	if shapes == nil {
		shapes = []model.Shape{}
	}
	return diagramResp{ID: d.ID, Name: d.Name, Shapes: shapes, CreatedAt: d.CreatedAt, UpdatedAt: d.UpdatedAt}
}

// Create handles POST /api/diagrams.
func (h *DiagramHandler) Create(c echo.Context) error {
	c.Response().Header().Set(echo.HeaderCacheControl, "no-store")

	var req createDiagramReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		name = DefaultDiagramName
	}
	if utf8.RuneCountInString(name) > maxDiagramName {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "name too long"})
	}
	if len(req.Shapes) > maxDiagramShapes {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "too many shapes"})
	}
	for _, s := range req.Shapes {
		if s.ID == "" || s.Type == "" {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "each shape needs an id and a type"})
		}
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	d, err := h.Repo.Create(ctx, name, req.Shapes)
	if err != nil {
		return h.fail(c, "create diagram", err)
	}
	return c.JSON(http.StatusCreated, toDiagramResp(d))
}

// List handles GET /api/diagrams?limit=50.
func (h *DiagramHandler) List(c echo.Context) error {
	c.Response().Header().Set(echo.HeaderCacheControl, "no-store")

	limit := defaultListLimit
	if raw := c.QueryParam("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "limit must be a positive integer"})
		}
		limit = min(n, maxListLimit)
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	rows, err := h.Repo.List(ctx, limit)
	if err != nil {
		return h.fail(c, "list diagrams", err)
	}
	out := make([]diagramSummaryResp, 0, len(rows))
	for _, r := range rows {
		out = append(out, diagramSummaryResp{
			ID:         r.ID,
			Name:       r.Name,
			ShapeCount: r.ShapeCount,
			CreatedAt:  r.CreatedAt,
			UpdatedAt:  r.UpdatedAt,
		})
	}
	return c.JSON(http.StatusOK, echo.Map{"diagrams": out})
}

// Get handles GET /api/diagrams/:id.
func (h *DiagramHandler) Get(c echo.Context) error {
	c.Response().Header().Set(echo.HeaderCacheControl, "no-store")

	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid diagram id"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	d, err := h.Repo.Get(ctx, id)
	if err != nil {
		return h.fail(c, "get diagram", err)
	}
	return c.JSON(http.StatusOK, toDiagramResp(d))
}

func (h *DiagramHandler) fail(c echo.Context, op string, err error) error {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"error": "diagram not found"})
	case errors.Is(err, repository.ErrNotConfigured):
		return c.JSON(http.StatusServiceUnavailable, echo.Map{"error": "diagrams unavailable"})
	}
	c.Logger().Errorf("%s: %v", op, err)
	return c.JSON(http.StatusInternalServerError, echo.Map{"error": op + " failed"})
}
