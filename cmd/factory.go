// File: cmd/factory.go

package cmd

import (
	"go.uber.org/zap"

	"github.com/xkilldash9x/reportpipe/internal/config"
	"github.com/xkilldash9x/reportpipe/internal/pipeline"
	"github.com/xkilldash9x/reportpipe/internal/publish"
	"github.com/xkilldash9x/reportpipe/internal/publish/confluence"
	"github.com/xkilldash9x/reportpipe/internal/publish/email"
)

// Components holds the initialized services required for a pipeline run.
// This struct centralizes the wiring of run-related dependencies.
type Components struct {
	Publishers []publish.Publisher
	Runner     *pipeline.Runner
}

// NewComponents wires the sinks and the runner from the loaded
// configuration. Disabled sinks are still registered; they answer every
// run with a skipped receipt so the delivery record stays complete.
func NewComponents(cfg *config.Config, logger *zap.Logger) *Components {
	publishers := []publish.Publisher{
		email.NewPublisher(cfg.Email, logger),
		confluence.NewPublisher(cfg.Confluence, logger),
	}
	return &Components{
		Publishers: publishers,
		Runner:     pipeline.NewRunner(cfg, publishers, logger),
	}
}
