package patient

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
	g.POST("/patient/details", h.Details)
	g.POST("/patient/search-mpi", h.SearchMPI)
	g.POST("/patient/search-phone", h.SearchPhone)
	g.POST("/patient/search-appointments", h.SearchAppointments)
	g.POST("/patient/insurance-details", h.InsuranceDetails)
}

type patientIDRequest struct {
	PatientID int `json:"patientId"`
}

type mpiRequest struct {
	MPI string `json:"mpi"`
}

type phoneRequest struct {
	Phone string `json:"phone"`
}

func (h *Handler) Details(c echo.Context) error {
	var req patientIDRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	env, err := h.svc.Details(c.Request().Context(), req.PatientID)
	return respond(c, env, err)
}

func (h *Handler) SearchMPI(c echo.Context) error {
	var req mpiRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	env, err := h.svc.SearchMPI(c.Request().Context(), req.MPI)
	return respond(c, env, err)
}

func (h *Handler) SearchPhone(c echo.Context) error {
	var req phoneRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	env, err := h.svc.SearchPhone(c.Request().Context(), req.Phone)
	return respond(c, env, err)
}

func (h *Handler) SearchAppointments(c echo.Context) error {
	var req patientIDRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	env, err := h.svc.SearchAppointments(c.Request().Context(), req.PatientID)
	return respond(c, env, err)
}

func (h *Handler) InsuranceDetails(c echo.Context) error {
	var req patientIDRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	env, err := h.svc.InsuranceDetails(c.Request().Context(), req.PatientID)
	return respond(c, env, err)
}

// respond passes the HIS envelope through on success and maps client errors
// onto the shared taxonomy: validation 400, timeout 408, upstream status
// forwarded with the raw body as details.
func respond(c echo.Context, env *lifetrenz.Envelope, err error) error {
	if err != nil {
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
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusOK, env)
}
