package catalog

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.GET("/:collection", h.Get)
	g.POST("/:collection", h.Put)
	g.DELETE("/:collection", h.Delete)
}

func (h *Handler) resolve(c echo.Context) (Kind, string, string, error) {
	kind, ok := KindFromPath(c.Param("collection"))
	if !ok {
		return "", "", "", echo.NewHTTPError(http.StatusNotFound, "unknown collection")
	}
	clinicID := c.QueryParam("clinic_id")
	if clinicID == "" {
		return "", "", "", echo.NewHTTPError(http.StatusBadRequest, "clinic_id is required")
	}
	return kind, clinicID, c.QueryParam("tpa_code"), nil
}

func (h *Handler) Get(c echo.Context) error {
	kind, clinicID, tpaCode, err := h.resolve(c)
	if err != nil {
		return err
	}

	items, err := h.svc.Get(c.Request().Context(), kind, clinicID, tpaCode)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return c.JSON(http.StatusOK, map[string]interface{}{"data": []Item{}, "total": 0})
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"data": items, "total": len(items)})
}

func (h *Handler) Put(c echo.Context) error {
	kind, clinicID, tpaCode, err := h.resolve(c)
	if err != nil {
		return err
	}

	var body struct {
		Items []Item `json:"items"`
	}
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	if err := h.svc.Put(c.Request().Context(), kind, clinicID, tpaCode, body.Items); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusCreated, map[string]interface{}{"stored": len(body.Items)})
}

func (h *Handler) Delete(c echo.Context) error {
	kind, clinicID, tpaCode, err := h.resolve(c)
	if err != nil {
		return err
	}

	if err := h.svc.Delete(c.Request().Context(), kind, clinicID, tpaCode); err != nil {
		if errors.Is(err, ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "collection not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.NoContent(http.StatusNoContent)
}
