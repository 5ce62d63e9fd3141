package patientctx

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
	g.POST("/patient/context", h.Lookup)
	g.POST("/patient/context/update", h.Update)
}

type lookupRequest struct {
	MPI           string `json:"mpi"`
	PatientID     string `json:"patientId"`
	AppointmentID string `json:"appointmentId"`
}

func (h *Handler) Lookup(c echo.Context) error {
	var req lookupRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.MPI == "" && req.PatientID == "" && req.AppointmentID == "" {
		return echo.NewHTTPError(http.StatusBadRequest,
			"at least one of mpi, patientId or appointmentId is required")
	}

	pc, err := h.svc.Lookup(c.Request().Context(), req.MPI, req.PatientID, req.AppointmentID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, err.Error())
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, pc)
}

func (h *Handler) Update(c echo.Context) error {
	var in PatientContext
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	pc, err := h.svc.Save(c.Request().Context(), &in)
	if err != nil {
		if errors.Is(err, ErrNoIdentifier) {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, pc)
}
