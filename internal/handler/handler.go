// Package handler exposes the analysis pipeline over HTTP.
//
// Routes:
//
//	GET  /                         API description
//	GET  /health                   liveness and dependency status
//	GET  /metrics                  Prometheus metrics
//	POST /v1/analyze               analyze an image (multipart or JSON)
//	GET  /v1/results/:fingerprint  fetch a cached result
package handler

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"golang.org/x/sync/singleflight"

	"github.com/ajharshal45/UnReal-Extension-sub001/internal/imaging"
	"github.com/ajharshal45/UnReal-Extension-sub001/internal/middleware"
	"github.com/ajharshal45/UnReal-Extension-sub001/internal/service"
	"github.com/ajharshal45/UnReal-Extension-sub001/pkg/logger"
)

// Analyzer is the pipeline as seen by the HTTP layer.
type Analyzer interface {
	Analyze(ctx context.Context, buf *imaging.PixelBuffer, signal imaging.ImageSignal) *service.FinalResult
	Lookup(ctx context.Context, fingerprint string) (*service.FinalResult, bool)
}

// Pinger reports backend health. repository.Store satisfies it.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Config holds handler dependencies.
type Config struct {
	Analyzer      Analyzer
	Cache         Pinger // optional
	Logger        *logger.Logger
	MaxUploadSize int64
	// MaxImagePixels bounds decoded images. Zero means imaging.DefaultMaxPixels.
	MaxImagePixels int64
	Version        string

	// Reported by /health.
	ValidatorEnabled bool
	ModelEnabled     bool
}

// Handler serves the analysis API.
type Handler struct {
	analyzer      Analyzer
	cache         Pinger
	logger        *logger.Logger
	maxUploadSize int64
	maxPixels     int64
	version       string
	validator     bool
	model         bool
	inflight      singleflight.Group
}

// New creates a Handler.
func New(cfg Config) *Handler {
	log := cfg.Logger
	if log == nil {
		log = logger.NopLogger()
	}
	version := cfg.Version
	if version == "" {
		version = "dev"
	}
	maxPixels := cfg.MaxImagePixels
	if maxPixels <= 0 {
		maxPixels = imaging.DefaultMaxPixels
	}
	return &Handler{
		analyzer:      cfg.Analyzer,
		cache:         cfg.Cache,
		logger:        log.Component("handler"),
		maxUploadSize: cfg.MaxUploadSize,
		maxPixels:     maxPixels,
		version:       version,
		validator:     cfg.ValidatorEnabled,
		model:         cfg.ModelEnabled,
	}
}

// RouterConfig configures NewRouter.
type RouterConfig struct {
	AllowedOrigins []string
	RateLimiter    *middleware.RateLimiter // optional
	Gatherer       prometheus.Gatherer     // optional; /metrics is omitted when nil
	ServiceName    string
	Logger         *logger.Logger
}

// NewRouter wires middleware and routes around h.
func NewRouter(h *Handler, cfg RouterConfig) *gin.Engine {
	log := cfg.Logger
	if log == nil {
		log = logger.NopLogger()
	}
	r := gin.New()
	r.Use(
		middleware.RequestID(),
		middleware.Logging(log),
		middleware.Recovery(log),
		otelgin.Middleware(cfg.ServiceName),
		middleware.CORS(cfg.AllowedOrigins),
	)
	if cfg.RateLimiter != nil {
		r.Use(middleware.RateLimit(cfg.RateLimiter))
	}

	r.GET("/", h.Index)
	r.GET("/health", h.Health)
	if cfg.Gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{})))
	}

	v1 := r.Group("/v1")
	v1.POST("/analyze", middleware.MaxBodySize(h.uploadLimit()), h.Analyze)
	v1.GET("/results/:fingerprint", h.GetResult)
	return r
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error     string `json:"error"`
	RequestID string `json:"request_id,omitempty"`
}

// AnalyzeRequest is the JSON form of POST /v1/analyze. Image is raw base64
// or a data URL. URL, Filename and the dimensions feed the metadata layer
// and are optional when Image is set.
type AnalyzeRequest struct {
	Image    string `json:"image"`
	URL      string `json:"url"`
	Filename string `json:"filename"`
	Width    int    `json:"width" binding:"gte=0"`
	Height   int    `json:"height" binding:"gte=0"`
}

// Errors returned to clients.
var (
	errNoContent     = errors.New("provide an image (multipart field \"image\" or JSON \"image\") or a url")
	errInvalidURL    = errors.New("url must be an absolute http(s) or data URL")
	errUndecodable   = errors.New("image could not be decoded")
	errTooLarge      = errors.New("image exceeds the upload limit")
	errInvalidBase64 = errors.New("image is not valid base64")
)

// input is a validated analysis request.
type input struct {
	data   []byte
	signal imaging.ImageSignal
}

// Analyze handles POST /v1/analyze.
func (h *Handler) Analyze(c *gin.Context) {
	in, err := h.parseInput(c)
	if err == nil {
		err = h.validateInput(in)
	}
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, errTooLarge) {
			status = http.StatusRequestEntityTooLarge
		}
		h.fail(c, status, err)
		return
	}

	var buf *imaging.PixelBuffer
	if len(in.data) > 0 {
		decoded, format, err := imaging.DecodeLimited(in.data, h.maxPixels)
		if errors.Is(err, imaging.ErrTooManyPixels) {
			h.fail(c, http.StatusRequestEntityTooLarge, err)
			return
		}
		if err != nil {
			h.logger.WithContext(c.Request.Context()).Warn("decode failed", "error", err, "bytes", len(in.data))
			h.fail(c, http.StatusUnprocessableEntity, fmt.Errorf("%w: %v", errUndecodable, err))
			return
		}
		prov := imaging.ScanProvenance(in.data)
		if prov.Format == "" {
			prov.Format = format
		}
		in.signal.Provenance = &prov
		buf = decoded
	}

	result := h.analyze(c.Request.Context(), buf, in.signal)
	if result.Error != "" {
		h.fail(c, http.StatusInternalServerError, errors.New(result.Error))
		return
	}
	c.JSON(http.StatusOK, result)
}

// analyze collapses concurrent submissions of the same content onto one
// pipeline run. The shared run is detached from any single caller's
// cancellation.
func (h *Handler) analyze(ctx context.Context, buf *imaging.PixelBuffer, signal imaging.ImageSignal) *service.FinalResult {
	key := "signal:" + signal.SourceURL + "|" + signal.Filename
	if buf != nil {
		key = "pixels:" + buf.Fingerprint() + "|" + signal.SourceURL + "|" + signal.Filename
	}
	v, _, shared := h.inflight.Do(key, func() (any, error) {
		return h.analyzer.Analyze(context.WithoutCancel(ctx), buf, signal), nil
	})
	if shared {
		h.logger.WithContext(ctx).Debug("joined in-flight analysis", "key", key)
	}
	return v.(*service.FinalResult)
}

func (h *Handler) parseInput(c *gin.Context) (input, error) {
	if strings.HasPrefix(c.ContentType(), "multipart/") {
		return h.parseMultipart(c)
	}
	return h.parseJSON(c)
}

func (h *Handler) parseMultipart(c *gin.Context) (input, error) {
	in := input{signal: imaging.ImageSignal{
		SourceURL: c.PostForm("url"),
		Filename:  c.PostForm("filename"),
	}}
	fh, err := c.FormFile("image")
	if errors.Is(err, http.ErrMissingFile) {
		return in, nil
	}
	if err != nil {
		return in, h.bodyError(err)
	}
	if in.signal.Filename == "" {
		in.signal.Filename = fh.Filename
	}
	f, err := fh.Open()
	if err != nil {
		return in, fmt.Errorf("open upload: %w", err)
	}
	defer f.Close()
	in.data, err = io.ReadAll(f)
	if err != nil {
		return in, h.bodyError(err)
	}
	return in, nil
}

func (h *Handler) parseJSON(c *gin.Context) (input, error) {
	var req AnalyzeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		if errors.Is(err, io.EOF) {
			return input{}, errNoContent
		}
		return input{}, h.bodyError(err)
	}
	in := input{signal: imaging.ImageSignal{
		SourceURL: req.URL,
		Filename:  req.Filename,
		Width:     req.Width,
		Height:    req.Height,
	}}

	switch {
	case req.Image != "" && imaging.IsDataURL(req.Image):
		data, err := imaging.DecodeDataURL(req.Image)
		if err != nil {
			return in, fmt.Errorf("%w: %v", errInvalidBase64, err)
		}
		in.data = data
	case req.Image != "":
		data, err := base64.StdEncoding.DecodeString(req.Image)
		if err != nil {
			return in, fmt.Errorf("%w: %v", errInvalidBase64, err)
		}
		in.data = data
	case imaging.IsDataURL(req.URL):
		// The extension may only know the image as an inline data URL.
		if data, err := imaging.DecodeDataURL(req.URL); err == nil {
			in.data = data
		}
	}
	return in, nil
}

func (h *Handler) bodyError(err error) error {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return fmt.Errorf("%w (%d bytes)", errTooLarge, tooLarge.Limit)
	}
	return fmt.Errorf("invalid request body: %w", err)
}

// validateInput checks that the request carries something to analyze.
func (h *Handler) validateInput(in input) error {
	if len(in.data) == 0 && in.signal.SourceURL == "" {
		return errNoContent
	}
	if h.maxUploadSize > 0 && int64(len(in.data)) > h.maxUploadSize {
		return errTooLarge
	}
	if u := in.signal.SourceURL; u != "" && !imaging.IsDataURL(u) {
		parsed, err := url.Parse(u)
		if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
			return errInvalidURL
		}
	}
	return nil
}

// uploadLimit is the request body ceiling: base64 and multipart framing
// inflate the image by about a third.
func (h *Handler) uploadLimit() int64 {
	if h.maxUploadSize <= 0 {
		return 32 << 20
	}
	return h.maxUploadSize*4/3 + 64<<10
}

// GetResult handles GET /v1/results/:fingerprint.
func (h *Handler) GetResult(c *gin.Context) {
	fp := strings.TrimSpace(c.Param("fingerprint"))
	if fp == "" {
		h.fail(c, http.StatusBadRequest, errors.New("fingerprint is required"))
		return
	}
	result, ok := h.analyzer.Lookup(c.Request.Context(), fp)
	if !ok {
		h.fail(c, http.StatusNotFound, fmt.Errorf("no result for fingerprint %s", fp))
		return
	}
	c.JSON(http.StatusOK, result)
}

// Health handles GET /health. A failing cache degrades the service but
// does not make it unhealthy: analyses still run uncached.
func (h *Handler) Health(c *gin.Context) {
	cache := "disabled"
	if h.cache != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		cache = "ok"
		if err := h.cache.Ping(ctx); err != nil {
			cache = "unavailable"
			h.logger.WithContext(ctx).Warn("cache ping failed", "error", err)
		}
	}
	status := "healthy"
	if cache == "unavailable" {
		status = "degraded"
	}
	c.JSON(http.StatusOK, gin.H{
		"status":    status,
		"version":   h.version,
		"cache":     cache,
		"validator": h.validator,
		"local_ml":  h.model,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// Index handles GET /.
func (h *Handler) Index(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"name":    "UnReal API",
		"version": h.version,
		"endpoints": gin.H{
			"analyze": "POST /v1/analyze",
			"result":  "GET /v1/results/:fingerprint",
			"health":  "GET /health",
			"metrics": "GET /metrics",
		},
	})
}

func (h *Handler) fail(c *gin.Context, status int, err error) {
	_ = c.Error(err)
	c.AbortWithStatusJSON(status, ErrorResponse{
		Error:     err.Error(),
		RequestID: middleware.RequestIDFrom(c),
	})
}
