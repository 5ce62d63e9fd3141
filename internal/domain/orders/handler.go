package orders

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/clinicbridge/clinicbridge/internal/upstream/lifetrenz"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.POST("/aster/save-eligibility-order", h.SaveOrder)
	g.POST("/aster/upload-attachment", h.UploadAttachment)
	g.POST("/aster/save-policy", h.SavePolicy)
}

func (h *Handler) SaveOrder(c echo.Context) error {
	var req OrderRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	env, err := h.svc.SaveOrder(c.Request().Context(), req)
	return respond(c, env, err)
}

func (h *Handler) UploadAttachment(c echo.Context) error {
	var req AttachmentRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	env, err := h.svc.UploadAttachment(c.Request().Context(), req)
	return respond(c, env, err)
}

func (h *Handler) SavePolicy(c echo.Context) error {
	var req PolicyRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	env, err := h.svc.SavePolicy(c.Request().Context(), req)
	return respond(c, env, err)
}

func respond(c echo.Context, env *lifetrenz.Envelope, err error) error {
	if err != nil {
		var verr *ValidationError
		if errors.As(err, &verr) {
			return echo.NewHTTPError(http.StatusBadRequest, map[string]interface{}{
				"error":          "validation failed",
				"missing_fields": verr.Missing,
			})
		}
		var berr *BusinessRuleError
		if errors.As(err, &berr) {
			return echo.NewHTTPError(http.StatusBadRequest, berr)
		}
		if errors.Is(err, lifetrenz.ErrTimeout) {
			return echo.NewHTTPError(http.StatusRequestTimeout, err.Error())
		}
		var uerr *lifetrenz.UpstreamError
		if errors.As(err, &uerr) {
			return echo.NewHTTPError(uerr.StatusCode, map[string]interface{}{
				"error":   "upstream request failed",
				"details": uerr.RawBody,
			})
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, env)
}
