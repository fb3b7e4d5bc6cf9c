package service

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"image/jpeg"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/ajharshal45/UnReal-Extension-sub001/internal/imaging"
	"github.com/ajharshal45/UnReal-Extension-sub001/pkg/logger"
)

const (
	modelImageDim      = 512
	maxModelReplyBytes = 1 << 20
)

// HTTPModel calls a classifier served over HTTP:
//
//	POST {baseURL}/analyze {"image": "<base64 jpeg>"}
//	-> {"success", "score", "confidence", "realScore", "fakeScore",
//	    "processingTime", "modelName", "error"}
type HTTPModel struct {
	endpoint string
	client   *http.Client
	logger   *logger.Logger
}

// NewHTTPModel creates a model client. timeout bounds each request.
func NewHTTPModel(baseURL string, timeout time.Duration, log *logger.Logger) *HTTPModel {
	if log == nil {
		log = logger.NopLogger()
	}
	return &HTTPModel{
		endpoint: strings.TrimRight(baseURL, "/") + "/analyze",
		client: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		logger: log.Component("local_ml"),
	}
}

type modelRequest struct {
	Image string `json:"image"`
}

type modelResponse struct {
	Success        bool    `json:"success"`
	Score          float64 `json:"score"`
	Confidence     float64 `json:"confidence"`
	RealScore      float64 `json:"realScore"`
	FakeScore      float64 `json:"fakeScore"`
	ProcessingTime float64 `json:"processingTime"`
	ModelName      string  `json:"modelName"`
	Error          string  `json:"error"`
}

// Analyze implements PixelAnalyzer.
func (m *HTTPModel) Analyze(ctx context.Context, buf *imaging.PixelBuffer) LayerResult {
	start := time.Now()
	reply, err := m.call(ctx, buf)
	if err != nil {
		m.logger.Warn("local model unavailable", "error", err)
		return withTiming(Unavailable(LayerLocalML, err.Error()), start)
	}
	if !reply.Success {
		reason := reply.Error
		if reason == "" {
			reason = "model reported failure"
		}
		return withTiming(Unavailable(LayerLocalML, reason), start)
	}

	result := LayerResult{
		Layer:      LayerLocalML,
		Score:      clamp100(reply.Score),
		Confidence: clamp100(reply.Confidence),
		Available:  true,
		Findings:   []Finding{},
		Metrics: map[string]float64{
			"real_score":          reply.RealScore,
			"fake_score":          reply.FakeScore,
			"model_processing_ms": reply.ProcessingTime,
		},
	}
	if result.Score >= 70 {
		result.Findings = append(result.Findings, Finding{
			Layer:       LayerLocalML,
			Kind:        "model_prediction",
			Description: fmt.Sprintf("Classifier %s rates the image %.0f%% likely AI-generated", reply.ModelName, result.Score),
			Confidence:  result.Confidence,
		})
	}
	return withTiming(result, start)
}

func (m *HTTPModel) call(ctx context.Context, buf *imaging.PixelBuffer) (*modelResponse, error) {
	var img bytes.Buffer
	if err := jpeg.Encode(&img, imaging.Downscale(buf, modelImageDim).Image(), &jpeg.Options{Quality: 90}); err != nil {
		return nil, fmt.Errorf("encode image: %w", err)
	}
	body, err := json.Marshal(modelRequest{Image: base64.StdEncoding.EncodeToString(img.Bytes())})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("call model: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("model returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}
	var out modelResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxModelReplyBytes)).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode model response: %w", err)
	}
	return &out, nil
}
