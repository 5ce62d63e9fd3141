package history

import (
	"context"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/clinicbridge/clinicbridge/pkg/pagination"
)

// Repoller restarts polling for an item whose lifecycle was rewound. Wired
// from the eligibility service so this package stays free of upstream
// clients.
type Repoller interface {
	Repoll(ctx context.Context, item *HistoryItem) error
}

type Handler struct {
	svc      *Service
	repoller Repoller
	logger   zerolog.Logger
}

func NewHandler(svc *Service, repoller Repoller, logger zerolog.Logger) *Handler {
	return &Handler{svc: svc, repoller: repoller, logger: logger}
}

func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.GET("/eligibility-history", h.Get)
	g.POST("/eligibility-history", h.Create)
	g.PUT("/eligibility-history", h.Update)
	g.DELETE("/eligibility-history", h.Delete)
}

// Get resolves in priority order: id, task_id, patient_id, appointment_id,
// clinic_id. Single-item lookups return the item; the rest return lists.
func (h *Handler) Get(c echo.Context) error {
	ctx := c.Request().Context()

	if id := c.QueryParam("id"); id != "" {
		item, err := h.svc.Get(ctx, id)
		if err != nil {
			return lookupError(err)
		}
		return c.JSON(http.StatusOK, item)
	}
	if taskID := c.QueryParam("task_id"); taskID != "" {
		item, err := h.svc.GetByTaskID(ctx, taskID)
		if err != nil {
			return lookupError(err)
		}
		return c.JSON(http.StatusOK, item)
	}

	var (
		items []*HistoryItem
		err   error
	)
	switch {
	case c.QueryParam("patient_id") != "":
		items, err = h.svc.ListByPatient(ctx, c.QueryParam("patient_id"))
	case c.QueryParam("appointment_id") != "":
		items, err = h.svc.ListByAppointment(ctx, c.QueryParam("appointment_id"))
	case c.QueryParam("clinic_id") != "":
		items, err = h.svc.ListByClinic(ctx, c.QueryParam("clinic_id"))
	default:
		return echo.NewHTTPError(http.StatusBadRequest,
			"one of id, task_id, clinic_id, patient_id or appointment_id is required")
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	page := pagination.FromContext(c)
	lo, hi := page.Bounds(len(items))
	return c.JSON(http.StatusOK, pagination.NewResponse(items[lo:hi], len(items), page.Limit, page.Offset))
}

func (h *Handler) Create(c echo.Context) error {
	var item HistoryItem
	if err := c.Bind(&item); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	created, err := h.svc.Create(c.Request().Context(), &item)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusCreated, created)
}

// Update applies a partial update keyed by id or task_id. Rewinding a record
// to pending with no interim results restarts polling for its task.
func (h *Handler) Update(c echo.Context) error {
	var upd Update
	if err := c.Bind(&upd); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	ctx := c.Request().Context()
	var (
		item *HistoryItem
		err  error
	)
	switch {
	case c.QueryParam("id") != "":
		item, err = h.svc.UpdateByID(ctx, c.QueryParam("id"), upd)
	case c.QueryParam("task_id") != "":
		item, err = h.svc.UpdateByTaskID(ctx, c.QueryParam("task_id"), upd)
	default:
		return echo.NewHTTPError(http.StatusBadRequest, "id or task_id is required")
	}
	if err != nil {
		return lookupError(err)
	}

	if h.shouldRepoll(item) {
		if err := h.repoller.Repoll(ctx, item); err != nil {
			h.logger.Warn().Err(err).Str("history_id", item.ID).Msg("re-poll after status rewind failed")
		}
	}
	return c.JSON(http.StatusOK, item)
}

func (h *Handler) shouldRepoll(item *HistoryItem) bool {
	if h.repoller == nil || item.Status != StatusPending || item.TaskID == "" {
		return false
	}
	return item.InterimResults == nil ||
		(item.InterimResults.Screenshot == "" && len(item.InterimResults.Documents) == 0)
}

func (h *Handler) Delete(c echo.Context) error {
	id := c.QueryParam("id")
	if id == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "id is required")
	}
	if err := h.svc.Delete(c.Request().Context(), id); err != nil {
		return lookupError(err)
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "deleted"})
}

func lookupError(err error) error {
	if errors.Is(err, ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	}
	return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
}
