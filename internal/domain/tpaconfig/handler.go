package tpaconfig

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
	g.GET("/tpa", h.List)
	g.POST("/tpa", h.Upsert)
	g.POST("/tpa/repair", h.Repair)
	g.GET("/tpa/diagnose", h.Diagnose)
	g.GET("/tpa/mapping", h.GetMapping)
	g.POST("/tpa/mapping", h.FetchMapping)
	g.DELETE("/tpa/mapping", h.DeleteMapping)
	g.PUT("/tpa/:tpa_id", h.Update)
	g.DELETE("/tpa/:tpa_id", h.Delete)
}

func clinicID(c echo.Context) (string, error) {
	id := c.QueryParam("clinic_id")
	if id == "" {
		return "", echo.NewHTTPError(http.StatusBadRequest, "clinic_id is required")
	}
	return id, nil
}

// upstreamHTTPError maps HIS client failures onto the response taxonomy:
// timeouts become 408, upstream HTTP failures keep their status code with
// the raw body attached as details.
func upstreamHTTPError(err error) error {
	if errors.Is(err, lifetrenz.ErrTimeout) {
		return echo.NewHTTPError(http.StatusRequestTimeout, "upstream request timed out")
	}
	var ue *lifetrenz.UpstreamError
	if errors.As(err, &ue) {
		return echo.NewHTTPError(ue.StatusCode, map[string]interface{}{
			"error":   "upstream error",
			"details": ue.RawBody,
		})
	}
	return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
}

func (h *Handler) List(c echo.Context) error {
	cid, err := clinicID(c)
	if err != nil {
		return err
	}
	configs, err := h.svc.List(c.Request().Context(), cid)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"data": configs, "total": len(configs)})
}

func (h *Handler) Upsert(c echo.Context) error {
	cid, err := clinicID(c)
	if err != nil {
		return err
	}

	var cfg TPAConfig
	if err := c.Bind(&cfg); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	requireMapping := c.QueryParam("require_mapping") == "true"
	res, err := h.svc.Upsert(c.Request().Context(), cid, &cfg, requireMapping)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if !res.IsValid {
		return c.JSON(http.StatusBadRequest, res)
	}
	return c.JSON(http.StatusCreated, map[string]interface{}{"config": cfg, "validation": res})
}

func (h *Handler) Update(c echo.Context) error {
	cid, err := clinicID(c)
	if err != nil {
		return err
	}

	existing, err := h.svc.FindByTPAID(c.Request().Context(), cid, c.Param("tpa_id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "tpa config not found")
	}

	var cfg TPAConfig
	if err := c.Bind(&cfg); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if cfg.InsCode == "" {
		cfg.InsCode = existing.InsCode
	}
	cfg.CreatedAt = existing.CreatedAt

	requireMapping := c.QueryParam("require_mapping") == "true"
	res, err := h.svc.Upsert(c.Request().Context(), cid, &cfg, requireMapping)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if !res.IsValid {
		return c.JSON(http.StatusBadRequest, res)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"config": cfg, "validation": res})
}

func (h *Handler) Delete(c echo.Context) error {
	cid, err := clinicID(c)
	if err != nil {
		return err
	}
	if err := h.svc.Delete(c.Request().Context(), cid, c.Param("tpa_id")); err != nil {
		if errors.Is(err, ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "tpa config not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) Repair(c echo.Context) error {
	cid, err := clinicID(c)
	if err != nil {
		return err
	}

	var body struct {
		Reference []MappingRow `json:"reference"`
	}
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	repaired, err := h.svc.Repair(c.Request().Context(), cid, body.Reference)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"repaired": repaired})
}

func (h *Handler) Diagnose(c echo.Context) error {
	cid, err := clinicID(c)
	if err != nil {
		return err
	}
	report, err := h.svc.Diagnose(c.Request().Context(), cid)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"data": report})
}

func (h *Handler) GetMapping(c echo.Context) error {
	cid, err := clinicID(c)
	if err != nil {
		return err
	}
	rows, err := h.svc.CachedMapping(c.Request().Context(), cid)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "no cached mapping for clinic")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"data": rows, "total": len(rows)})
}

func (h *Handler) FetchMapping(c echo.Context) error {
	cid, err := clinicID(c)
	if err != nil {
		return err
	}
	rows, err := h.svc.FetchMapping(c.Request().Context(), cid)
	if err != nil {
		return upstreamHTTPError(err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"data": rows, "total": len(rows)})
}

func (h *Handler) DeleteMapping(c echo.Context) error {
	cid, err := clinicID(c)
	if err != nil {
		return err
	}
	if err := h.svc.DeleteMapping(c.Request().Context(), cid); err != nil {
		if errors.Is(err, ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "no cached mapping for clinic")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.NoContent(http.StatusNoContent)
}
