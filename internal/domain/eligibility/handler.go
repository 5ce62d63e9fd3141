package eligibility

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/clinicbridge/clinicbridge/internal/upstream/mantys"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.POST("/mantys/eligibility-check", h.Check)
	g.POST("/mantys/check-status", h.Status)
}

func (h *Handler) Check(c echo.Context) error {
	var req CheckRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	created, err := h.svc.StartCheck(c.Request().Context(), req)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusAccepted, created)
}

type statusRequest struct {
	TaskID string `json:"task_id"`
}

func (h *Handler) Status(c echo.Context) error {
	var req statusRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	resp, err := h.svc.Poll(c.Request().Context(), req.TaskID)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, resp)
}

func mapError(err error) error {
	var verr *ValidationError
	if errors.As(err, &verr) {
		return echo.NewHTTPError(http.StatusBadRequest, map[string]interface{}{
			"error":          "validation failed",
			"missing_fields": verr.Missing,
		})
	}
	if errors.Is(err, mantys.ErrTimeout) {
		return echo.NewHTTPError(http.StatusRequestTimeout, err.Error())
	}
	var uerr *mantys.UpstreamError
	if errors.As(err, &uerr) {
		return echo.NewHTTPError(uerr.StatusCode, map[string]interface{}{
			"error":   "upstream request failed",
			"details": uerr.RawBody,
		})
	}
	return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
}
