package service

import (
	"math"
	"strings"
	"time"

	"github.com/ajharshal45/UnReal-Extension-sub001/internal/imaging"
)

// =============================================================================
// Metadata heuristics
// =============================================================================
//
// Cheap signals that need no pixels: where the image came from, what it is
// called and what shape it is. Each rule fires at most once and the total
// is capped, so metadata can nudge a verdict but never make it alone.
//
// =============================================================================

const (
	metadataURLPoints      = 15
	metadataFilenamePoints = 10
	metadataSizePoints     = 10
	metadataAspectPoints   = 5
	metadataDataURLPoints  = 5
	metadataEmbeddedPoints = 15
	metadataMaxScore       = 30

	// Decoded size above which an inline image is unusual for the web.
	largeDataURLBytes = 500 * 1024

	aspectTolerance = 0.01
)

// aiPlatforms are URL fragments of known generation services and their CDNs.
var aiPlatforms = []string{
	"midjourney",
	"mj-gallery",
	"cdn.midjourney",
	"dall-e",
	"dalle",
	"openai",
	"oaidalleapiprodscus",
	"stability.ai",
	"stablediffusion",
	"stable-diffusion",
	"dreamstudio",
	"leonardo.ai",
	"lexica",
	"nightcafe",
	"craiyon",
	"ideogram",
	"civitai",
	"playgroundai",
	"firefly.adobe",
	"runwayml",
	"bing.com/images/create",
	"tensor.art",
	"seaart",
	"replicate.delivery",
}

// aiFilenameTokens are substrings generators and their users leave in names.
var aiFilenameTokens = []string{
	"midjourney",
	"mj_",
	"dalle",
	"dall-e",
	"stable_diffusion",
	"stablediffusion",
	"sdxl",
	"ai_generated",
	"ai-generated",
	"aigenerated",
	"generated",
	"comfyui",
	"automatic1111",
	"txt2img",
	"img2img",
	"upscaled",
	"leonardo",
	"firefly",
	"ideogram",
}

type resolution struct{ w, h int }

// commonAISizes are the default output sizes of popular generators. Matched
// in either orientation.
var commonAISizes = []resolution{
	{256, 256},
	{512, 512},
	{768, 768},
	{1024, 1024},
	{1536, 1536},
	{2048, 2048},
	{512, 768},
	{640, 1536},
	{768, 1344},
	{832, 1216},
	{896, 1152},
	{1024, 1536},
	{1024, 1792},
	{1456, 816},
	{1232, 928},
}

// aiAspectRatios are ratios (long side over short side) generators default to.
var aiAspectRatios = []float64{
	1.0,
	4.0 / 3.0,
	3.0 / 2.0,
	16.0 / 9.0,
	7.0 / 4.0,
	9.0 / 7.0,
	19.0 / 13.0,
}

// MetadataAnalyzer scores the ImageSignal. It is pure and safe for
// concurrent use.
type MetadataAnalyzer struct{}

// NewMetadataAnalyzer creates a metadata analyzer.
func NewMetadataAnalyzer() *MetadataAnalyzer {
	return &MetadataAnalyzer{}
}

// Analyze applies every metadata rule to signal.
func (a *MetadataAnalyzer) Analyze(signal imaging.ImageSignal) LayerResult {
	start := time.Now()
	findings := newCollector(LayerMetadata, 8)
	flags := map[string]bool{}
	score := 0.0

	url := strings.ToLower(signal.SourceURL)
	if url != "" && !imaging.IsDataURL(url) {
		if platform := firstContained(url, aiPlatforms); platform != "" {
			score += metadataURLPoints
			flags["ai_platform_url"] = true
			findings.add("ai_platform_url", 85, "Source URL matches AI generation platform %q", platform)
		}
	}

	filename := signal.Filename
	if filename == "" {
		filename = imaging.FilenameFromURL(signal.SourceURL)
	}
	if filename != "" {
		if token := firstContained(strings.ToLower(filename), aiFilenameTokens); token != "" {
			score += metadataFilenamePoints
			flags["ai_filename"] = true
			findings.add("ai_filename", 70, "Filename contains AI-related token %q", token)
		}
	}

	if signal.Width > 0 && signal.Height > 0 {
		if isCommonAISize(signal.Width, signal.Height) {
			score += metadataSizePoints
			flags["common_ai_size"] = true
			findings.add("common_ai_size", 60, "Dimensions %dx%d match a common AI output size", signal.Width, signal.Height)
		}
		if ratio, ok := matchAIAspect(signal.Width, signal.Height); ok {
			score += metadataAspectPoints
			flags["ai_aspect_ratio"] = true
			findings.add("ai_aspect_ratio", 40, "Aspect ratio %.3f matches a typical AI default", ratio)
		}
	}

	if imaging.IsDataURL(signal.SourceURL) {
		if size := imaging.EstimatedDataURLSize(signal.SourceURL); size > largeDataURLBytes {
			score += metadataDataURLPoints
			flags["large_data_url"] = true
			findings.add("large_data_url", 45, "Inline data URL of about %d KB is unusually large", size/1024)
		}
	}

	if prov := signal.Provenance; prov != nil {
		if prov.Generator != "" {
			score += metadataEmbeddedPoints
			flags["embedded_generator"] = true
			findings.add("embedded_generator", 90, "File metadata names generator %q", prov.Generator)
		}
		flags["camera_exif"] = prov.CameraMake != ""
	}

	score = math.Min(score, metadataMaxScore)
	result := LayerResult{
		Layer:            LayerMetadata,
		Score:            score,
		Confidence:       round2(score / metadataMaxScore * 100),
		Findings:         nonNil(findings.findings),
		Available:        true,
		Flags:            flags,
		ProcessingTimeMs: msSince(start),
	}
	return result
}

func firstContained(s string, needles []string) string {
	for _, n := range needles {
		if strings.Contains(s, n) {
			return n
		}
	}
	return ""
}

func isCommonAISize(w, h int) bool {
	for _, r := range commonAISizes {
		if (w == r.w && h == r.h) || (w == r.h && h == r.w) {
			return true
		}
	}
	return false
}

func matchAIAspect(w, h int) (float64, bool) {
	long, short := float64(max(w, h)), float64(min(w, h))
	ratio := long / short
	for _, target := range aiAspectRatios {
		if math.Abs(ratio-target)/target <= aspectTolerance {
			return ratio, true
		}
	}
	return ratio, false
}

func nonNil(f []Finding) []Finding {
	if f == nil {
		return []Finding{}
	}
	return f
}

func msSince(start time.Time) float64 {
	return float64(time.Since(start).Microseconds()) / 1000
}
