package handlers

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	geojson "github.com/paulmach/go.geojson"

	"github.com/edgard/civicbot/internal/database"
	"github.com/edgard/civicbot/internal/metrics"
	"github.com/edgard/civicbot/internal/photo"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// reportInput is the validated text part of a submission.
type reportInput struct {
	Description string  `validate:"min=3"`
	Lat         float64 `validate:"min=-90,max=90"`
	Lng         float64 `validate:"min=-180,max=180"`
}

// reportItem is the public view of a report. The photo reference is never exposed.
type reportItem struct {
	ID             string     `json:"id"`
	CreatedAt      time.Time  `json:"createdAt"`
	Description    string     `json:"description"`
	Lat            float64    `json:"lat"`
	Lng            float64    `json:"lng"`
	Status         string     `json:"status"`
	Category       *string    `json:"category"`
	Severity       *string    `json:"severity"`
	EmailedAt      *time.Time `json:"emailedAt"`
	EmailSimulated bool       `json:"emailSimulated"`
	TweetedAt      *time.Time `json:"tweetedAt"`
	TweetID        *string    `json:"tweetId"`
	TweetSimulated bool       `json:"tweetSimulated"`
}

func toItem(r *database.Report) reportItem {
	item := reportItem{
		ID:             r.ID,
		CreatedAt:      r.CreatedAt.UTC(),
		Description:    r.Description,
		Lat:            r.Lat,
		Lng:            r.Lng,
		Status:         string(r.Status),
		EmailSimulated: r.EmailSimulated,
		TweetSimulated: r.TweetSimulated,
	}
	if r.Category.Valid {
		item.Category = &r.Category.String
	}
	if r.Severity.Valid {
		item.Severity = &r.Severity.String
	}
	if r.EmailedAt.Valid {
		t := r.EmailedAt.Time.UTC()
		item.EmailedAt = &t
	}
	if r.TweetedAt.Valid {
		t := r.TweetedAt.Time.UTC()
		item.TweetedAt = &t
	}
	if r.TweetID.Valid {
		item.TweetID = &r.TweetID.String
	}
	return item
}

func invalid(c *gin.Context, field string) {
	c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_" + field})
}

// NewCreateReportHandler returns a handler for report intake.
func NewCreateReportHandler(deps HandlerDeps) gin.HandlerFunc {
	return createReportHandler{deps}.Handle
}

type createReportHandler struct {
	deps HandlerDeps
}

func (h createReportHandler) Handle(c *gin.Context) {
	log := h.deps.Logger.With("handler", "create_report")
	ctx := c.Request.Context()

	maxBytes := h.deps.Config.Server.MaxUploadBytes
	// Room for the text fields and multipart framing on top of the photo.
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes+64<<10)
	if _, err := c.MultipartForm(); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			invalid(c, "photo")
			return
		}
		log.WarnContext(ctx, "Unreadable submission", "error", err)
		invalid(c, "form")
		return
	}

	in := reportInput{Description: strings.TrimSpace(c.PostForm("description"))}
	var err error
	if err = validate.Var(in.Description, "min=3"); err != nil {
		invalid(c, "description")
		return
	}
	if in.Lat, err = strconv.ParseFloat(strings.TrimSpace(c.PostForm("lat")), 64); err != nil {
		invalid(c, "lat")
		return
	}
	if in.Lng, err = strconv.ParseFloat(strings.TrimSpace(c.PostForm("lng")), 64); err != nil {
		invalid(c, "lng")
		return
	}
	if err := validate.Struct(in); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			invalid(c, strings.ToLower(verrs[0].Field()))
			return
		}
		invalid(c, "form")
		return
	}

	header, err := c.FormFile("photo")
	if err != nil {
		invalid(c, "photo")
		return
	}
	contentType := strings.ToLower(header.Header.Get("Content-Type"))
	if !photo.Allowed(contentType) || header.Size > maxBytes {
		invalid(c, "photo")
		return
	}
	file, err := header.Open()
	if err != nil {
		respondError(c, log, err)
		return
	}
	defer file.Close()

	now := h.deps.Clock.Now()
	ref, err := h.deps.Photos.Save(ctx, photo.NewName(now, contentType), contentType, file)
	if err != nil {
		respondError(c, log, err)
		return
	}

	report := &database.Report{
		ID:               uuid.NewString(),
		CreatedAt:        now,
		Description:      in.Description,
		Lat:              in.Lat,
		Lng:              in.Lng,
		PhotoRef:         ref,
		PhotoContentType: contentType,
		Status:           database.StatusNew,
	}
	if err := h.deps.Store.CreateReport(ctx, report); err != nil {
		respondError(c, log, err)
		return
	}

	metrics.ReportsCreatedTotal.Inc()
	log.InfoContext(ctx, "Report created", "report_id", report.ID, "photo_ref", ref)
	c.JSON(http.StatusCreated, gin.H{"id": report.ID})
}

// NewListReportsHandler returns a handler listing the newest reports.
func NewListReportsHandler(deps HandlerDeps) gin.HandlerFunc {
	return listReportsHandler{deps}.Handle
}

type listReportsHandler struct {
	deps HandlerDeps
}

func (h listReportsHandler) Handle(c *gin.Context) {
	log := h.deps.Logger.With("handler", "list_reports")

	limit, err := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if err != nil || limit <= 0 {
		limit = 50
	}
	limit = min(limit, 100)

	reports, err := h.deps.Store.ListReports(c.Request.Context(), limit)
	if err != nil {
		respondError(c, log, err)
		return
	}

	items := make([]reportItem, 0, len(reports))
	for i := range reports {
		items = append(items, toItem(&reports[i]))
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}

// NewGetReportHandler returns a handler for a single report.
func NewGetReportHandler(deps HandlerDeps) gin.HandlerFunc {
	return getReportHandler{deps}.Handle
}

type getReportHandler struct {
	deps HandlerDeps
}

func (h getReportHandler) Handle(c *gin.Context) {
	log := h.deps.Logger.With("handler", "get_report")

	r, err := h.deps.Store.GetReport(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, log, err)
		return
	}
	c.JSON(http.StatusOK, toItem(r))
}

// NewPhotoHandler returns a handler streaming a report's photo.
func NewPhotoHandler(deps HandlerDeps) gin.HandlerFunc {
	return photoHandler{deps}.Handle
}

type photoHandler struct {
	deps HandlerDeps
}

func (h photoHandler) Handle(c *gin.Context) {
	log := h.deps.Logger.With("handler", "photo")
	ctx := c.Request.Context()

	r, err := h.deps.Store.GetReport(ctx, c.Param("id"))
	if err != nil {
		respondError(c, log, err)
		return
	}

	rc, err := h.deps.Photos.Open(ctx, r.PhotoRef)
	if errors.Is(err, photo.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found"})
		return
	}
	if err != nil {
		respondError(c, log, err)
		return
	}
	defer rc.Close()

	contentType := r.PhotoContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	c.Header("Cache-Control", "private, max-age=3600")
	c.Status(http.StatusOK)
	c.Header("Content-Type", contentType)
	if _, err := io.Copy(c.Writer, rc); err != nil {
		log.WarnContext(ctx, "Photo stream interrupted", "report_id", r.ID, "error", err)
	}
}

// NewReportsGeoJSONHandler returns a handler exporting reports as a GeoJSON
// FeatureCollection for the dashboard map.
func NewReportsGeoJSONHandler(deps HandlerDeps) gin.HandlerFunc {
	return reportsGeoJSONHandler{deps}.Handle
}

type reportsGeoJSONHandler struct {
	deps HandlerDeps
}

func (h reportsGeoJSONHandler) Handle(c *gin.Context) {
	log := h.deps.Logger.With("handler", "reports_geojson")

	reports, err := h.deps.Store.ListReports(c.Request.Context(), 100)
	if err != nil {
		respondError(c, log, err)
		return
	}

	fc := geojson.NewFeatureCollection()
	for i := range reports {
		r := &reports[i]
		f := geojson.NewPointFeature([]float64{r.Lng, r.Lat})
		f.ID = r.ID
		f.SetProperty("status", string(r.Status))
		f.SetProperty("createdAt", r.CreatedAt.UTC().Format(time.RFC3339))
		if r.Category.Valid {
			f.SetProperty("category", r.Category.String)
		}
		if r.Severity.Valid {
			f.SetProperty("severity", r.Severity.String)
		}
		fc.AddFeature(f)
	}

	raw, err := fc.MarshalJSON()
	if err != nil {
		respondError(c, log, err)
		return
	}
	c.Data(http.StatusOK, "application/geo+json", raw)
}
