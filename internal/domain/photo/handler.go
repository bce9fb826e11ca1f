package photo

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/rehab/rehab/internal/platform/auth"
	"github.com/rehab/rehab/internal/platform/blobstore"
	"github.com/rehab/rehab/internal/platform/middleware"
	"github.com/rehab/rehab/internal/platform/photoproc"
	"github.com/rehab/rehab/pkg/pagination"
)

const (
	maxRecordNoLen    = 64
	maxProjectNameLen = 255
)

// formTimeLayouts are tried in order for treatmentTime and timestamp.
// Layouts without a zone are read in the handler's location.
var formTimeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

type Handler struct {
	svc *Service
	loc *time.Location
}

// NewHandler returns the photo handler. loc is used for form times given
// without a zone; nil means time.Local.
func NewHandler(svc *Service, loc *time.Location) *Handler {
	if loc == nil {
		loc = time.Local
	}
	return &Handler{svc: svc, loc: loc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	role := auth.RequireRole(auth.ClinicalRoles...)

	g := api.Group("/photos", role)
	g.POST("/upload", h.Upload)
	g.GET("/uploads", h.ListUploads)
	g.GET("/uploads/:id", h.GetUpload)
}

func (h *Handler) Upload(c echo.Context) error {
	fh, err := c.FormFile("photo")
	if err != nil {
		var httpErr *echo.HTTPError
		if errors.As(err, &httpErr) && httpErr.Code == http.StatusRequestEntityTooLarge {
			return httpErr
		}
		return echo.NewHTTPError(http.StatusBadRequest, ErrMissingFile.Error())
	}
	if _, err := ValidateExtension(fh.Filename); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if fh.Size > h.svc.MaxSize() {
		return echo.NewHTTPError(http.StatusRequestEntityTooLarge, blobstore.ErrFileTooLarge.Error())
	}

	req, err := h.uploadRequest(c, fh.Filename)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	f, err := fh.Open()
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "cannot read uploaded photo")
	}
	defer f.Close()

	res, err := h.svc.Upload(c.Request().Context(), req, f)
	if err != nil {
		return uploadError(err)
	}
	return c.JSON(http.StatusCreated, res)
}

func (h *Handler) uploadRequest(c echo.Context, filename string) (UploadRequest, error) {
	req := UploadRequest{
		OriginalName:    middleware.SanitizeLine(filename),
		IsSignature:     parseFlag(c.FormValue("isSignature")),
		MedicalRecordNo: middleware.SanitizeLine(c.FormValue("medicalRecordNo")),
		ProjectName:     middleware.SanitizeLine(c.FormValue("projectName")),
		UploadedBy:      auth.UserIDFromContext(c.Request().Context()),
	}
	if len(req.MedicalRecordNo) > maxRecordNoLen {
		return req, fmt.Errorf("medicalRecordNo exceeds %d characters", maxRecordNoLen)
	}
	if len(req.ProjectName) > maxProjectNameLen {
		return req, fmt.Errorf("projectName exceeds %d characters", maxProjectNameLen)
	}

	var err error
	if req.TreatmentTime, err = h.parseFormTime(c.FormValue("treatmentTime")); err != nil {
		return req, fmt.Errorf("invalid treatmentTime: %w", err)
	}
	if req.Timestamp, err = h.parseFormTime(c.FormValue("timestamp")); err != nil {
		return req, fmt.Errorf("invalid timestamp: %w", err)
	}
	return req, nil
}

// parseFlag accepts "true", "1" and other strconv.ParseBool truthy values.
func parseFlag(v string) bool {
	b, err := strconv.ParseBool(strings.TrimSpace(v))
	return err == nil && b
}

// parseFormTime parses an optional form time. Empty input yields nil.
// Unix milliseconds are accepted as well as the layouts above.
func (h *Handler) parseFormTime(v string) (*time.Time, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil, nil
	}
	if ms, err := strconv.ParseInt(v, 10, 64); err == nil && len(v) >= 10 {
		t := time.UnixMilli(ms).In(h.loc)
		return &t, nil
	}
	for _, layout := range formTimeLayouts {
		if t, err := time.ParseInLocation(layout, v, h.loc); err == nil {
			return &t, nil
		}
	}
	return nil, fmt.Errorf("unrecognised time %q", v)
}

func uploadError(err error) error {
	switch {
	case errors.Is(err, ErrUnsupportedExtension), errors.Is(err, ErrMissingFile):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, blobstore.ErrFileTooLarge):
		return echo.NewHTTPError(http.StatusRequestEntityTooLarge, err.Error())
	case photoproc.IsDecodeError(err):
		return echo.NewHTTPError(http.StatusUnprocessableEntity, "uploaded file is not a valid image")
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to store photo")
	}
}

func (h *Handler) GetUpload(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	u, err := h.svc.GetUpload(c.Request().Context(), id)
	if errors.Is(err, ErrUploadNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, ErrUploadNotFound.Error())
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, u)
}

func (h *Handler) ListUploads(c echo.Context) error {
	pg := pagination.FromContext(c)

	f := ListFilter{
		MedicalRecordNo: strings.TrimSpace(c.QueryParam("medical_record_no")),
		Mode:            c.QueryParam("mode"),
	}
	if f.Mode != "" && f.Mode != ModeTimestamp && f.Mode != ModeSignature {
		return echo.NewHTTPError(http.StatusBadRequest, "mode must be timestamp or signature")
	}
	if v := c.QueryParam("processed"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "processed must be a boolean")
		}
		f.Processed = &b
	}

	items, total, err := h.svc.ListUploads(c.Request().Context(), f, pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	resp := pagination.NewResponse(items, total, pg.Limit, pg.Offset).
		WithLinks(pg.Links(c.Request().URL.Path, c.QueryParams(), total))
	return c.JSON(http.StatusOK, resp)
}
