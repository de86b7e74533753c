package cases

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/skindx/skindx/internal/domain/patient"
	"github.com/skindx/skindx/internal/platform/auth"
	"github.com/skindx/skindx/internal/platform/blobstore"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.POST("/new_case", h.CreateCase)
	api.GET("/get_cases", h.ListMyCases)
	api.GET("/cases/:case_id", h.GetCase)
	api.GET("/cases/:case_id/image", h.GetCaseImage)
	api.GET("/cases/patient/:patient_id", h.ListPatientCases)
}

func (h *Handler) CreateCase(c echo.Context) error {
	ctx := c.Request().Context()

	doctorID, err := uuid.Parse(auth.DoctorIDFromContext(ctx))
	if err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "Invalid doctor credentials.")
	}

	patientNumber, err := strconv.ParseInt(c.FormValue("patient_number"), 10, 64)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid patient number.")
	}

	var notes []string
	if form, err := c.MultipartForm(); err == nil {
		notes = form.Value["case_notes"]
	}

	fh, err := c.FormFile("file")
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid image input.")
	}
	src, err := fh.Open()
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid image input.")
	}
	defer src.Close()
	image, err := io.ReadAll(src)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid image input.")
	}

	created, err := h.svc.Create(ctx, doctorID, CreateInput{
		PatientNumber: patientNumber,
		Notes:         notes,
		FileName:      fh.Filename,
		Image:         image,
	})
	switch {
	case errors.Is(err, blobstore.ErrInvalidContentType), errors.Is(err, blobstore.ErrMissingFileName):
		return echo.NewHTTPError(http.StatusUnsupportedMediaType,
			fmt.Sprintf("Unsupported file format '%s'. Allowed formats: PNG, JPG, JPEG.", fh.Filename))
	case errors.Is(err, patient.ErrInvalidNumber):
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid patient number.")
	case errors.Is(err, patient.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "Patient not found.")
	case errors.Is(err, blobstore.ErrFileTooLarge):
		return echo.NewHTTPError(http.StatusRequestEntityTooLarge, "Image exceeds the maximum allowed size.")
	case err != nil:
		return echo.NewHTTPError(http.StatusInternalServerError,
			"An unexpected error occurred while creating the case.")
	}

	return c.JSON(http.StatusCreated, echo.Map{
		"message": "Case created successfully.",
		"case_id": created.ID,
	})
}

func (h *Handler) GetCase(c echo.Context) error {
	id, err := uuid.Parse(c.Param("case_id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid case ID.")
	}

	item, err := h.svc.GetByID(c.Request().Context(), id)
	if errors.Is(err, ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "Case not found")
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "Error retrieving case.")
	}
	return c.JSON(http.StatusOK, item)
}

func (h *Handler) GetCaseImage(c echo.Context) error {
	id, err := uuid.Parse(c.Param("case_id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid case ID.")
	}

	rc, meta, err := h.svc.Image(c.Request().Context(), id)
	if errors.Is(err, ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "Case not found")
	}
	if errors.Is(err, blobstore.ErrBlobNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "Image not found.")
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "Error retrieving image.")
	}
	defer rc.Close()

	return c.Stream(http.StatusOK, meta.ContentType, rc)
}

func (h *Handler) ListMyCases(c echo.Context) error {
	ctx := c.Request().Context()

	doctorID, err := uuid.Parse(auth.DoctorIDFromContext(ctx))
	if err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "Invalid doctor credentials.")
	}

	items, err := h.svc.ListByDoctor(ctx, doctorID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "Error retrieving cases.")
	}
	if items == nil {
		items = []*Case{}
	}
	return c.JSON(http.StatusOK, echo.Map{"cases": items})
}

func (h *Handler) ListPatientCases(c echo.Context) error {
	patientID, err := uuid.Parse(c.Param("patient_id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid patient ID.")
	}

	items, err := h.svc.ListByPatient(c.Request().Context(), patientID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "Error retrieving cases.")
	}
	if len(items) == 0 {
		return echo.NewHTTPError(http.StatusNotFound, "No cases found for the given patient ID.")
	}
	return c.JSON(http.StatusOK, echo.Map{"cases": items})
}
