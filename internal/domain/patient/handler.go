package patient

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/skindx/skindx/internal/platform/auth"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.POST("/register-patient", h.Register)
	api.GET("/patients/:patient_number", h.GetPatient)
}

func (h *Handler) Register(c echo.Context) error {
	ctx := c.Request().Context()

	registeredBy, err := uuid.Parse(auth.DoctorIDFromContext(ctx))
	if err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "Current doctor does not have a valid identifier.")
	}

	var in RegisterInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	p, err := h.svc.Register(ctx, in, registeredBy)
	switch {
	case errors.Is(err, ErrNumberTaken):
		return echo.NewHTTPError(http.StatusConflict,
			fmt.Sprintf("Patient number %d already exists.", in.PatientNumber))
	case errors.Is(err, ErrInvalidNumber):
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid patient number.")
	case err != nil:
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	return c.JSON(http.StatusCreated, echo.Map{
		"message":        "Patient registered successfully.",
		"patient_number": p.PatientNumber,
		"patient":        p,
	})
}

func (h *Handler) GetPatient(c echo.Context) error {
	number, err := strconv.ParseInt(c.Param("patient_number"), 10, 64)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid patient number.")
	}

	p, err := h.svc.GetByNumber(c.Request().Context(), number)
	switch {
	case errors.Is(err, ErrInvalidNumber):
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid patient number.")
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "Patient not found.")
	case err != nil:
		return echo.NewHTTPError(http.StatusInternalServerError, "error retrieving patient")
	}

	return c.JSON(http.StatusOK, echo.Map{
		"status":  "success",
		"patient": p,
	})
}
