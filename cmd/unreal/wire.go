package main

import (
	"github.com/ajharshal45/UnReal-Extension-sub001/internal/config"
	"github.com/ajharshal45/UnReal-Extension-sub001/internal/service"
	"github.com/ajharshal45/UnReal-Extension-sub001/pkg/logger"
)

// features records which optional layers were enabled.
type features struct {
	validator bool
	model     bool
}

// pipelineOptions turns configuration into pipeline options. offline skips
// every layer that needs the network.
func pipelineOptions(cfg *config.Config, log *logger.Logger, offline bool) ([]service.Option, features, error) {
	opts := []service.Option{service.WithLogger(log)}
	var f features
	if offline {
		return opts, f, nil
	}

	if cfg.ValidatorEnabled() {
		v, err := service.NewOpenAIValidator(service.OpenAIValidatorConfig{
			APIKey:  cfg.OpenAIAPIKey,
			Model:   cfg.OpenAIModel,
			BaseURL: cfg.OpenAIBaseURL,
		}, log)
		if err != nil {
			return nil, f, err
		}
		opts = append(opts, service.WithValidator(v))
		f.validator = true
	}

	if cfg.LocalModelURL != "" {
		opts = append(opts, service.WithModel(service.NewHTTPModel(cfg.LocalModelURL, cfg.LocalModelTimeout, log)))
		f.model = true
	}
	return opts, f, nil
}
