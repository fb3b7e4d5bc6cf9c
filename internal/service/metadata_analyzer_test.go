package service

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ajharshal45/UnReal-Extension-sub001/internal/imaging"
)

func TestMetadataAnalyzer(t *testing.T) {
	analyzer := NewMetadataAnalyzer()

	tests := []struct {
		name      string
		signal    imaging.ImageSignal
		wantScore float64
		wantKinds []string
	}{
		{
			name:      "midjourney url at 1024x1024 hits the cap",
			signal:    imaging.ImageSignal{SourceURL: "https://cdn.midjourney.com/abc/grid_0.png", Width: 1024, Height: 1024},
			wantScore: 30,
			wantKinds: []string{"ai_platform_url", "common_ai_size", "ai_aspect_ratio"},
		},
		{
			name:      "ordinary photo has no signals",
			signal:    imaging.ImageSignal{SourceURL: "https://news.example.com/photos/harbour.jpg", Width: 1000, Height: 700},
			wantScore: 0,
			wantKinds: []string{},
		},
		{
			name:      "filename token taken from url path",
			signal:    imaging.ImageSignal{SourceURL: "https://example.com/img/my_sdxl_render.png?w=300"},
			wantScore: 10,
			wantKinds: []string{"ai_filename"},
		},
		{
			name:      "transposed common size",
			signal:    imaging.ImageSignal{Width: 1792, Height: 1024},
			wantScore: 15,
			wantKinds: []string{"common_ai_size", "ai_aspect_ratio"},
		},
		{
			name:      "large inline data url",
			signal:    imaging.ImageSignal{SourceURL: "data:image/png;base64," + strings.Repeat("A", 700*1024)},
			wantScore: 5,
			wantKinds: []string{"large_data_url"},
		},
		{
			name:      "small inline data url",
			signal:    imaging.ImageSignal{SourceURL: "data:image/png;base64," + strings.Repeat("A", 1024)},
			wantScore: 0,
			wantKinds: []string{},
		},
		{
			name:      "embedded generator marker",
			signal:    imaging.ImageSignal{Provenance: &imaging.Provenance{Format: "png", Generator: "Stable Diffusion"}},
			wantScore: 15,
			wantKinds: []string{"embedded_generator"},
		},
		{
			name: "everything at once stays capped",
			signal: imaging.ImageSignal{
				SourceURL:  "https://cdn.midjourney.com/u/1.png",
				Filename:   "midjourney_final.png",
				Width:      1024,
				Height:     1024,
				Provenance: &imaging.Provenance{Generator: "Midjourney"},
			},
			wantScore: 30,
			wantKinds: []string{"ai_platform_url", "ai_filename", "common_ai_size", "ai_aspect_ratio", "embedded_generator"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := analyzer.Analyze(tt.signal)

			assert.True(t, result.Available)
			assert.Equal(t, LayerMetadata, result.Layer)
			assert.Equal(t, tt.wantScore, result.Score)
			assert.Equal(t, tt.wantKinds, findingKinds(result.Findings))
			assert.InDelta(t, tt.wantScore/30*100, result.Confidence, 0.01)
			for _, f := range result.Findings {
				assert.Equal(t, LayerMetadata, f.Layer)
			}
		})
	}
}

func TestMatchAIAspect(t *testing.T) {
	_, ok := matchAIAspect(1920, 1080)
	assert.True(t, ok, "16:9")
	_, ok = matchAIAspect(1000, 1005)
	assert.True(t, ok, "within 1% of square")
	_, ok = matchAIAspect(1000, 1030)
	assert.False(t, ok, "3% off square")
}
