package service

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"image/jpeg"
	"strings"

	"github.com/sashabaranov/go-openai"

	"github.com/ajharshal45/UnReal-Extension-sub001/internal/imaging"
	"github.com/ajharshal45/UnReal-Extension-sub001/pkg/logger"
)

const (
	validatorImageDim  = 512
	validatorJPEGQual  = 85
	validatorMaxTokens = 400
	maxPromptFindings  = 8
)

const validatorSystemPrompt = `You are an image forensics expert. Decide whether the image was generated by AI.
Respond with a single JSON object and nothing else:
{"is_ai_generated": bool, "confidence": 0-100, "reasoning": "one sentence", "indicators": ["short phrase", ...]}`

// OpenAIValidatorConfig configures OpenAIValidator.
type OpenAIValidatorConfig struct {
	APIKey  string
	Model   string
	BaseURL string
}

// OpenAIValidator asks an OpenAI multimodal chat model for a verdict.
type OpenAIValidator struct {
	client *openai.Client
	model  string
	logger *logger.Logger
}

// NewOpenAIValidator creates a validator. An empty API key is an error so
// callers can fall back to running without a validator.
func NewOpenAIValidator(cfg OpenAIValidatorConfig, log *logger.Logger) (*OpenAIValidator, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("openai validator: API key not set")
	}
	if cfg.Model == "" {
		cfg.Model = openai.GPT4oMini
	}
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	if log == nil {
		log = logger.NopLogger()
	}
	return &OpenAIValidator{
		client: openai.NewClientWithConfig(clientCfg),
		model:  cfg.Model,
		logger: log.Component("openai_validator"),
	}, nil
}

// openAIVerdict is the JSON contract requested from the model.
type openAIVerdict struct {
	IsAIGenerated bool     `json:"is_ai_generated"`
	Confidence    float64  `json:"confidence"`
	Reasoning     string   `json:"reasoning"`
	Indicators    []string `json:"indicators"`
}

// Validate implements ExternalValidator.
func (v *OpenAIValidator) Validate(ctx context.Context, req ValidationRequest) (*ValidatorVerdict, error) {
	if req.Buffer == nil {
		return nil, ErrValidatorSkipped
	}
	dataURL, err := encodeJPEGDataURL(req.Buffer)
	if err != nil {
		return nil, fmt.Errorf("encode image: %w", err)
	}

	chatReq := openai.ChatCompletionRequest{
		Model:               v.model,
		MaxCompletionTokens: validatorMaxTokens,
		ResponseFormat:      &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject},
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: validatorSystemPrompt},
			{
				Role: openai.ChatMessageRoleUser,
				MultiContent: []openai.ChatMessagePart{
					{Type: openai.ChatMessagePartTypeText, Text: validatorPrompt(req)},
					{Type: openai.ChatMessagePartTypeImageURL, ImageURL: &openai.ChatMessageImageURL{
						URL:    dataURL,
						Detail: openai.ImageURLDetailLow,
					}},
				},
			},
		},
	}

	v.logger.Debug("requesting validator verdict", "model", v.model, "preliminary_score", req.PreliminaryScore)
	resp, err := v.client.CreateChatCompletion(ctx, chatReq)
	if err != nil {
		return nil, fmt.Errorf("openai chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, errors.New("openai returned no choices")
	}

	return parseOpenAIVerdict(resp.Choices[0].Message.Content)
}

func validatorPrompt(req ValidationRequest) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Automated analysis produced a preliminary AI likelihood of %.0f/100.", req.PreliminaryScore)
	if len(req.Findings) > 0 {
		b.WriteString(" Signals found so far:")
		for i, f := range req.Findings {
			if i == maxPromptFindings {
				break
			}
			fmt.Fprintf(&b, "\n- [%s] %s", f.Layer, f.Description)
		}
	}
	b.WriteString("\nJudge the image yourself; the signals may be wrong.")
	return b.String()
}

// parseOpenAIVerdict decodes the model reply, tolerating code fences.
func parseOpenAIVerdict(content string) (*ValidatorVerdict, error) {
	content = strings.TrimSpace(content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")

	var out openAIVerdict
	if err := json.Unmarshal([]byte(strings.TrimSpace(content)), &out); err != nil {
		return nil, fmt.Errorf("malformed validator response: %w", err)
	}

	verdict := &ValidatorVerdict{
		Confidence:    clamp100(out.Confidence),
		IsAIGenerated: out.IsAIGenerated,
		Reasoning:     out.Reasoning,
		Findings:      make([]Finding, 0, len(out.Indicators)),
	}
	for _, ind := range out.Indicators {
		if ind == "" {
			continue
		}
		verdict.Findings = append(verdict.Findings, Finding{
			Layer:       LayerValidator,
			Kind:        "validator_indicator",
			Description: ind,
			Confidence:  verdict.Confidence,
		})
	}
	return verdict, nil
}

func encodeJPEGDataURL(buf *imaging.PixelBuffer) (string, error) {
	small := imaging.Downscale(buf, validatorImageDim)
	var out bytes.Buffer
	if err := jpeg.Encode(&out, small.Image(), &jpeg.Options{Quality: validatorJPEGQual}); err != nil {
		return "", err
	}
	return "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(out.Bytes()), nil
}
