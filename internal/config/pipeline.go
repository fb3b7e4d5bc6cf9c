package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// LayerWeights are the fusion weights of the pixel-level layers. Weights of
// layers that did not run are dropped from the normalisation.
type LayerWeights struct {
	Forensic     float64 `yaml:"forensic" validate:"gte=0,lte=1"`
	Mathematical float64 `yaml:"mathematical" validate:"gte=0,lte=1"`
	LocalML      float64 `yaml:"local_ml" validate:"gte=0,lte=1"`
}

// ScoreBand is an inclusive score interval.
type ScoreBand struct {
	Low  float64 `yaml:"low" validate:"gte=0,lte=100"`
	High float64 `yaml:"high" validate:"gte=0,lte=100"`
}

// Contains reports whether score lies inside the band, bounds included.
func (b ScoreBand) Contains(score float64) bool {
	return score >= b.Low && score <= b.High
}

// PipelineConfig is the static tuning surface of the analysis pipeline.
// It is loaded once and shared read-only between concurrent analyses.
type PipelineConfig struct {
	Weights LayerWeights `yaml:"weights"`

	// MetadataBonusMin is the smallest metadata score added to the
	// preliminary score. Weaker metadata signals are ignored.
	MetadataBonusMin float64 `yaml:"metadata_bonus_min" validate:"gte=0,lte=100"`

	// Agreement adjustment: total *= AgreementBase + (1-AgreementBase)*agreement,
	// agreement = 1 - min(1, stdev/AgreementSpread).
	AgreementBase   float64 `yaml:"agreement_base" validate:"gte=0,lte=1"`
	AgreementSpread float64 `yaml:"agreement_spread" validate:"gt=0"`

	// Risk tiers: score < RiskMedium is low, score >= RiskHigh is high.
	RiskMedium float64 `yaml:"risk_medium" validate:"gte=0,lte=100"`
	RiskHigh   float64 `yaml:"risk_high" validate:"gte=0,lte=100"`

	// AIThreshold is the final score at which an image is reported as AI.
	AIThreshold float64 `yaml:"ai_threshold" validate:"gte=0,lte=100"`

	// MinFindingConfidence filters findings quoted in the reasoning text.
	MinFindingConfidence float64 `yaml:"min_finding_confidence" validate:"gte=0,lte=100"`

	// ValidatorBand is the preliminary-score range where the external
	// validator is consulted.
	ValidatorBand    ScoreBand     `yaml:"validator_band"`
	ValidatorTimeout time.Duration `yaml:"validator_timeout" validate:"gt=0"`

	// Validator fusion coefficients.
	HighConfidence        float64 `yaml:"high_confidence" validate:"gte=0,lte=100"`
	BoostFactor           float64 `yaml:"boost_factor" validate:"gte=0"`
	VetoFactor            float64 `yaml:"veto_factor" validate:"gte=0"`
	VetoFloor             float64 `yaml:"veto_floor" validate:"gte=0,lte=100"`
	DisagreementThreshold float64 `yaml:"disagreement_threshold" validate:"gte=0,lte=100"`
	PreliminaryBlend      float64 `yaml:"preliminary_blend" validate:"gte=0,lte=1"`
	AITargetFloor         float64 `yaml:"ai_target_floor" validate:"gte=0,lte=100"`
	AuthenticTargetCeil   float64 `yaml:"authentic_target_ceiling" validate:"gte=0,lte=100"`

	// MLDampenCeiling: local ML scores in (0, MLDampenCeiling) are dampened.
	MLDampenCeiling float64 `yaml:"ml_dampen_ceiling" validate:"gte=0,lte=100"`

	// Corroboration boost for many strong findings.
	StrongFindingConfidence float64 `yaml:"strong_finding_confidence" validate:"gte=0,lte=100"`
	StrongFindingCount      int     `yaml:"strong_finding_count" validate:"gte=1"`
	StrongFindingBoostCap   float64 `yaml:"strong_finding_boost_cap" validate:"gte=0"`

	// MaxAnalysisDimension caps the longest side before forensic analysis.
	MaxAnalysisDimension int `yaml:"max_analysis_dimension" validate:"gte=100"`

	// MathematicalSize is the square, power-of-two edge the frequency
	// analyzer resamples to.
	MathematicalSize int `yaml:"mathematical_size" validate:"gte=16"`
}

// DefaultPipelineConfig returns the calibrated defaults.
func DefaultPipelineConfig() PipelineConfig {
	return PipelineConfig{
		Weights: LayerWeights{
			Forensic:     0.30,
			Mathematical: 0.25,
			LocalML:      0.30,
		},
		MetadataBonusMin:        10,
		AgreementBase:           0.8,
		AgreementSpread:         50,
		RiskMedium:              40,
		RiskHigh:                75,
		AIThreshold:             65,
		MinFindingConfidence:    40,
		ValidatorBand:           ScoreBand{Low: 40, High: 80},
		ValidatorTimeout:        15 * time.Second,
		HighConfidence:          80,
		BoostFactor:             0.6,
		VetoFactor:              0.5,
		VetoFloor:               5,
		DisagreementThreshold:   70,
		PreliminaryBlend:        0.65,
		AITargetFloor:           65,
		AuthenticTargetCeil:     40,
		MLDampenCeiling:         75,
		StrongFindingConfidence: 80,
		StrongFindingCount:      6,
		StrongFindingBoostCap:   6,
		MaxAnalysisDimension:    1024,
		MathematicalSize:        256,
	}
}

// LoadPipelineConfig reads a YAML file over the defaults. Keys absent from
// the file keep their default values.
func LoadPipelineConfig(path string) (PipelineConfig, error) {
	cfg := DefaultPipelineConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read pipeline config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse pipeline config %s: %w", path, err)
	}
	return cfg, nil
}

var structValidator = validator.New(validator.WithRequiredStructEnabled())

// Validate checks field ranges and cross-field ordering.
func (p PipelineConfig) Validate() error {
	var errs []string

	if err := structValidator.Struct(p); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			for _, fe := range verrs {
				errs = append(errs, fmt.Sprintf("pipeline.%s failed %s=%s (got %v)", fe.Namespace(), fe.Tag(), fe.Param(), fe.Value()))
			}
		} else {
			errs = append(errs, err.Error())
		}
	}

	if p.Weights.Forensic+p.Weights.Mathematical+p.Weights.LocalML <= 0 {
		errs = append(errs, "pipeline weights must not all be zero")
	}
	if p.ValidatorBand.Low > p.ValidatorBand.High {
		errs = append(errs, fmt.Sprintf("validator band inverted: %.1f > %.1f", p.ValidatorBand.Low, p.ValidatorBand.High))
	}
	if p.RiskMedium > p.RiskHigh {
		errs = append(errs, fmt.Sprintf("risk thresholds inverted: medium %.1f > high %.1f", p.RiskMedium, p.RiskHigh))
	}
	if p.MathematicalSize&(p.MathematicalSize-1) != 0 {
		errs = append(errs, fmt.Sprintf("mathematical_size must be a power of two, got %d", p.MathematicalSize))
	}

	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}
