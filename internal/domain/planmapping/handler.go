package planmapping

import (
	"encoding/csv"
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.GET("/plan-mappings", h.List)
	g.POST("/plan-mappings", h.Post)
	g.PUT("/plan-mappings", h.Update)
	g.DELETE("/plan-mappings", h.Delete)
}

func clinicID(c echo.Context) (string, error) {
	id := c.QueryParam("clinic_id")
	if id == "" {
		return "", echo.NewHTTPError(http.StatusBadRequest, "clinic_id is required")
	}
	return id, nil
}

func (h *Handler) List(c echo.Context) error {
	cid, err := clinicID(c)
	if err != nil {
		return err
	}

	mappings, err := h.svc.List(c.Request().Context(), cid, c.QueryParam("tpa_code"))
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	if c.QueryParam("format") == "csv" {
		return h.exportCSV(c, mappings)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"data": mappings, "total": len(mappings)})
}

func (h *Handler) exportCSV(c echo.Context, mappings []*PlanNetworkMapping) error {
	c.Response().Header().Set(echo.HeaderContentType, "text/csv")
	c.Response().Header().Set(echo.HeaderContentDisposition, `attachment; filename="plan-mappings.csv"`)
	c.Response().WriteHeader(http.StatusOK)

	w := csv.NewWriter(c.Response())
	if err := w.Write([]string{"id", "tpa_code", "lt_plan_id", "lt_plan_name", "lt_plan_code", "mantys_network_name", "is_default"}); err != nil {
		return err
	}
	for _, m := range mappings {
		row := []string{m.ID, m.TPACode, m.LTPlanID, m.LTPlanName, m.LTPlanCode, m.MantysNetworkName, strconv.FormatBool(m.IsDefault)}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

// Post dispatches on the action query parameter: bulk-import reconciles a
// batch, set-default promotes one mapping, otherwise a single mapping is
// created.
func (h *Handler) Post(c echo.Context) error {
	cid, err := clinicID(c)
	if err != nil {
		return err
	}

	switch c.QueryParam("action") {
	case "bulk-import":
		return h.bulkImport(c, cid)
	case "set-default":
		return h.setDefault(c, cid)
	default:
		return h.create(c, cid)
	}
}

func (h *Handler) create(c echo.Context, cid string) error {
	var m PlanNetworkMapping
	if err := c.Bind(&m); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.svc.Create(c.Request().Context(), cid, &m); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusCreated, m)
}

func (h *Handler) bulkImport(c echo.Context, cid string) error {
	var body struct {
		Records []PlanNetworkMapping `json:"records"`
	}
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if len(body.Records) == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "records is required")
	}

	res, err := h.svc.BulkImport(c.Request().Context(), cid, body.Records)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, res)
}

func (h *Handler) setDefault(c echo.Context, cid string) error {
	var body struct {
		TPACode string `json:"tpa_code"`
		ID      string `json:"id"`
	}
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if body.TPACode == "" || body.ID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "tpa_code and id are required")
	}

	m, err := h.svc.SetDefault(c.Request().Context(), cid, body.TPACode, body.ID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "plan mapping not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, m)
}

func (h *Handler) Update(c echo.Context) error {
	cid, err := clinicID(c)
	if err != nil {
		return err
	}

	var m PlanNetworkMapping
	if err := c.Bind(&m); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.svc.Update(c.Request().Context(), cid, &m); err != nil {
		if errors.Is(err, ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "plan mapping not found")
		}
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusOK, m)
}

func (h *Handler) Delete(c echo.Context) error {
	cid, err := clinicID(c)
	if err != nil {
		return err
	}

	tpaCode := c.QueryParam("tpa_code")
	id := c.QueryParam("id")
	if tpaCode == "" || id == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "tpa_code and id are required")
	}

	if err := h.svc.Delete(c.Request().Context(), cid, tpaCode, id); err != nil {
		if errors.Is(err, ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "plan mapping not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.NoContent(http.StatusNoContent)
}
