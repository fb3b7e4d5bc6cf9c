package handler

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"errors"
	"hash/crc32"
	"image"
	"image/color"
	"image/png"
	"math/rand/v2"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajharshal45/UnReal-Extension-sub001/internal/config"
	"github.com/ajharshal45/UnReal-Extension-sub001/internal/imaging"
	"github.com/ajharshal45/UnReal-Extension-sub001/internal/repository"
	"github.com/ajharshal45/UnReal-Extension-sub001/internal/service"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// stubAnalyzer records calls and returns a canned result.
type stubAnalyzer struct {
	mu      sync.Mutex
	calls   atomic.Int32
	gate    chan struct{}
	result  *service.FinalResult
	stored  map[string]*service.FinalResult
	lastBuf *imaging.PixelBuffer
	lastSig imaging.ImageSignal
}

func (s *stubAnalyzer) Analyze(_ context.Context, buf *imaging.PixelBuffer, signal imaging.ImageSignal) *service.FinalResult {
	s.calls.Add(1)
	if s.gate != nil {
		<-s.gate
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastBuf, s.lastSig = buf, signal
	if s.result != nil {
		return s.result
	}
	return &service.FinalResult{Score: 42, RiskLevel: service.RiskMedium, Findings: []service.Finding{}}
}

func (s *stubAnalyzer) Lookup(_ context.Context, fp string) (*service.FinalResult, bool) {
	r, ok := s.stored[fp]
	return r, ok
}

type failingPinger struct{}

func (failingPinger) Ping(context.Context) error { return errors.New("connection refused") }

func newTestRouter(a Analyzer, maxUpload int64) *gin.Engine {
	h := New(Config{Analyzer: a, MaxUploadSize: maxUpload})
	return NewRouter(h, RouterConfig{AllowedOrigins: []string{"*"}, ServiceName: "unreal-test"})
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 7), G: uint8(y * 5), B: uint8((x + y) * 3), A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func multipartRequest(t *testing.T, filename string, data []byte, fields map[string]string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	if data != nil {
		part, err := w.CreateFormFile("image", filename)
		require.NoError(t, err)
		_, err = part.Write(data)
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	req := httptest.NewRequest(http.MethodPost, "/v1/analyze", &body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req
}

func jsonRequest(body string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/v1/analyze", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func serve(r http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&v), rec.Body.String())
	return v
}

func TestAnalyze_Multipart(t *testing.T) {
	stub := &stubAnalyzer{}
	r := newTestRouter(stub, 10<<20)

	rec := serve(r, multipartRequest(t, "dalle_output.png", pngBytes(t, 32, 24), map[string]string{
		"url": "https://example.com/a.png",
	}))

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	res := decode[service.FinalResult](t, rec)
	assert.Equal(t, 42.0, res.Score)

	require.NotNil(t, stub.lastBuf)
	assert.Equal(t, 32, stub.lastBuf.Width)
	assert.Equal(t, 24, stub.lastBuf.Height)
	assert.Equal(t, "dalle_output.png", stub.lastSig.Filename)
	assert.Equal(t, "https://example.com/a.png", stub.lastSig.SourceURL)
	require.NotNil(t, stub.lastSig.Provenance)
	assert.Equal(t, "png", stub.lastSig.Provenance.Format)
}

func TestAnalyze_JSON(t *testing.T) {
	img := pngBytes(t, 16, 16)
	tests := []struct {
		name      string
		body      string
		wantBuf   bool
		wantURL   string
		wantWidth int
	}{
		{
			name:    "raw base64",
			body:    `{"image": "` + base64.StdEncoding.EncodeToString(img) + `"}`,
			wantBuf: true,
		},
		{
			name:    "data URL image",
			body:    `{"image": "data:image/png;base64,` + base64.StdEncoding.EncodeToString(img) + `", "filename": "x.png"}`,
			wantBuf: true,
		},
		{
			name:    "data URL in url field",
			body:    `{"url": "data:image/png;base64,` + base64.StdEncoding.EncodeToString(img) + `"}`,
			wantBuf: true,
			wantURL: "data:image/png;base64," + base64.StdEncoding.EncodeToString(img),
		},
		{
			name:      "url only",
			body:      `{"url": "https://cdn.midjourney.com/grid.png", "width": 1024, "height": 1024}`,
			wantURL:   "https://cdn.midjourney.com/grid.png",
			wantWidth: 1024,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stub := &stubAnalyzer{}
			rec := serve(newTestRouter(stub, 10<<20), jsonRequest(tt.body))

			require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
			assert.Equal(t, tt.wantBuf, stub.lastBuf != nil)
			assert.Equal(t, tt.wantURL, stub.lastSig.SourceURL)
			assert.Equal(t, tt.wantWidth, stub.lastSig.Width)
		})
	}
}

func TestAnalyze_Errors(t *testing.T) {
	tests := []struct {
		name   string
		req    func(t *testing.T) *http.Request
		status int
		errMsg string
	}{
		{
			name:   "empty body",
			req:    func(*testing.T) *http.Request { return jsonRequest("") },
			status: http.StatusBadRequest,
			errMsg: "provide an image",
		},
		{
			name:   "invalid json",
			req:    func(*testing.T) *http.Request { return jsonRequest("{invalid json}") },
			status: http.StatusBadRequest,
			errMsg: "invalid request body",
		},
		{
			name:   "no content",
			req:    func(*testing.T) *http.Request { return jsonRequest("{}") },
			status: http.StatusBadRequest,
			errMsg: "provide an image",
		},
		{
			name:   "relative url",
			req:    func(*testing.T) *http.Request { return jsonRequest(`{"url": "not-a-url"}`) },
			status: http.StatusBadRequest,
			errMsg: "absolute http(s)",
		},
		{
			name:   "bad base64",
			req:    func(*testing.T) *http.Request { return jsonRequest(`{"image": "%%%"}`) },
			status: http.StatusBadRequest,
			errMsg: "not valid base64",
		},
		{
			name:   "negative width",
			req:    func(*testing.T) *http.Request { return jsonRequest(`{"url": "https://a.example/x.png", "width": -1}`) },
			status: http.StatusBadRequest,
		},
		{
			name: "undecodable image",
			req: func(t *testing.T) *http.Request {
				return multipartRequest(t, "x.png", []byte("definitely not an image"), nil)
			},
			status: http.StatusUnprocessableEntity,
			errMsg: "could not be decoded",
		},
		{
			name:   "multipart without image or url",
			req:    func(t *testing.T) *http.Request { return multipartRequest(t, "", nil, nil) },
			status: http.StatusBadRequest,
			errMsg: "provide an image",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stub := &stubAnalyzer{}
			rec := serve(newTestRouter(stub, 10<<20), tt.req(t))

			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
			resp := decode[ErrorResponse](t, rec)
			assert.Contains(t, resp.Error, tt.errMsg)
			assert.NotEmpty(t, resp.RequestID)
			assert.Zero(t, stub.calls.Load())
		})
	}
}

func TestAnalyze_TooLarge(t *testing.T) {
	stub := &stubAnalyzer{}
	r := newTestRouter(stub, 1024)
	noise := image.NewRGBA(image.Rect(0, 0, 64, 64))
	rng := rand.New(rand.NewPCG(1, 2))
	for i := range noise.Pix {
		noise.Pix[i] = uint8(rng.IntN(256))
	}
	var data bytes.Buffer
	require.NoError(t, png.Encode(&data, noise))

	rec := serve(r, multipartRequest(t, "big.png", data.Bytes(), nil))

	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.Zero(t, stub.calls.Load())
}

func TestAnalyze_TooManyPixels(t *testing.T) {
	// A PNG header declaring 20000x20000 RGBA compresses to a few bytes.
	ihdr := make([]byte, 13)
	binary.BigEndian.PutUint32(ihdr[0:], 20000)
	binary.BigEndian.PutUint32(ihdr[4:], 20000)
	ihdr[8], ihdr[9] = 8, 6
	chunk := append([]byte("IHDR"), ihdr...)
	var data bytes.Buffer
	data.WriteString("\x89PNG\r\n\x1a\n")
	binary.Write(&data, binary.BigEndian, uint32(len(ihdr)))
	data.Write(chunk)
	binary.Write(&data, binary.BigEndian, crc32.ChecksumIEEE(chunk))

	stub := &stubAnalyzer{}
	h := New(Config{Analyzer: stub, MaxUploadSize: 10 << 20, MaxImagePixels: 4_000_000})
	r := NewRouter(h, RouterConfig{ServiceName: "unreal-test"})

	rec := serve(r, multipartRequest(t, "bomb.png", data.Bytes(), nil))

	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.Contains(t, decode[ErrorResponse](t, rec).Error, "pixel limit")
	assert.Zero(t, stub.calls.Load())

	rec = serve(r, multipartRequest(t, "ok.png", pngBytes(t, 32, 32), nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAnalyze_PipelineError(t *testing.T) {
	stub := &stubAnalyzer{result: service.ErrorResult(errors.New("internal error: boom"))}

	rec := serve(newTestRouter(stub, 10<<20), jsonRequest(`{"url": "https://example.com/x.jpg"}`))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, decode[ErrorResponse](t, rec).Error, "boom")
}

func TestAnalyze_CollapsesDuplicates(t *testing.T) {
	stub := &stubAnalyzer{gate: make(chan struct{})}
	r := newTestRouter(stub, 10<<20)
	img := pngBytes(t, 16, 16)

	reqs := make([]*http.Request, 5)
	for i := range reqs {
		reqs[i] = multipartRequest(t, "same.png", img, nil)
	}

	var wg sync.WaitGroup
	codes := make([]int, len(reqs))
	for i, req := range reqs {
		wg.Add(1)
		go func(i int, req *http.Request) {
			defer wg.Done()
			codes[i] = serve(r, req).Code
		}(i, req)
	}
	require.Eventually(t, func() bool { return stub.calls.Load() == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	close(stub.gate)
	wg.Wait()

	for _, c := range codes {
		assert.Equal(t, http.StatusOK, c)
	}
	assert.Equal(t, int32(1), stub.calls.Load())
}

func TestGetResult(t *testing.T) {
	stub := &stubAnalyzer{stored: map[string]*service.FinalResult{
		"abc123": {Score: 77, RiskLevel: service.RiskHigh, Cached: true},
	}}
	r := newTestRouter(stub, 0)

	t.Run("returns cached result", func(t *testing.T) {
		rec := serve(r, httptest.NewRequest(http.MethodGet, "/v1/results/abc123", nil))
		require.Equal(t, http.StatusOK, rec.Code)
		res := decode[service.FinalResult](t, rec)
		assert.Equal(t, 77.0, res.Score)
		assert.True(t, res.Cached)
	})

	t.Run("returns 404 for unknown fingerprint", func(t *testing.T) {
		rec := serve(r, httptest.NewRequest(http.MethodGet, "/v1/results/nope", nil))
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestHealth(t *testing.T) {
	tests := []struct {
		name       string
		cache      Pinger
		wantStatus string
		wantCache  string
	}{
		{"no cache", nil, "healthy", "disabled"},
		{"healthy cache", repository.NewMemory(time.Minute, 0), "healthy", "ok"},
		{"failing cache", failingPinger{}, "degraded", "unavailable"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := New(Config{Analyzer: &stubAnalyzer{}, Cache: tt.cache, Version: "1.2.3", ValidatorEnabled: true})
			rec := serve(NewRouter(h, RouterConfig{}), httptest.NewRequest(http.MethodGet, "/health", nil))

			require.Equal(t, http.StatusOK, rec.Code)
			body := decode[map[string]any](t, rec)
			assert.Equal(t, tt.wantStatus, body["status"])
			assert.Equal(t, tt.wantCache, body["cache"])
			assert.Equal(t, "1.2.3", body["version"])
			assert.Equal(t, true, body["validator"])
			assert.Equal(t, false, body["local_ml"])
		})
	}
}

func TestIndex(t *testing.T) {
	rec := serve(newTestRouter(&stubAnalyzer{}, 0), httptest.NewRequest(http.MethodGet, "/", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "UnReal API", decode[map[string]any](t, rec)["name"])
}

func TestMetricsRoute(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := service.NewMetrics(reg)
	p := service.NewPipeline(config.DefaultPipelineConfig(), service.WithMetrics(metrics))
	r := NewRouter(New(Config{Analyzer: p}), RouterConfig{Gatherer: reg})

	serve(r, jsonRequest(`{"url": "https://cdn.midjourney.com/a.png"}`))
	rec := serve(r, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "unreal_analyses_total")
	assert.Contains(t, rec.Body.String(), "unreal_validator_outcomes_total")
}

func TestEndToEndWithCache(t *testing.T) {
	cache := repository.NewMemory(time.Hour, 0)
	p := service.NewPipeline(config.DefaultPipelineConfig(), service.WithCache(cache))
	r := NewRouter(New(Config{Analyzer: p, Cache: cache, MaxUploadSize: 10 << 20}), RouterConfig{})

	rec := serve(r, multipartRequest(t, "photo.png", pngBytes(t, 128, 128), nil))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	first := decode[service.FinalResult](t, rec)
	require.NotEmpty(t, first.Fingerprint)
	assert.False(t, first.Cached)
	assert.GreaterOrEqual(t, first.Score, 0.0)
	assert.LessOrEqual(t, first.Score, 100.0)

	rec = serve(r, httptest.NewRequest(http.MethodGet, "/v1/results/"+first.Fingerprint, nil))
	require.Equal(t, http.StatusOK, rec.Code)
	cached := decode[service.FinalResult](t, rec)
	assert.True(t, cached.Cached)

	if diff := cmp.Diff(first, cached, cmpopts.IgnoreFields(service.FinalResult{}, "Cached")); diff != "" {
		t.Errorf("cached result differs (-first +cached):\n%s", diff)
	}
}
