package cmd

import (
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/bnema/mxload/internal/adapters/matrix"
	"github.com/bnema/mxload/internal/adapters/repo/profile"
	"github.com/bnema/mxload/internal/config"
	"github.com/bnema/mxload/internal/domain"
)

// app bundles what master and worker commands share: resolved config and
// the logger. Everything else is wired per command.
type app struct {
	log *zap.Logger
	cfg config.Config
}

func wireApp(opts *rootOptions) (*app, error) {
	cfg, err := config.Load(viper.New(), opts.configPath)
	if err != nil {
		return nil, err
	}

	log, err := newLogger(opts.verbose)
	if err != nil {
		return nil, fmt.Errorf("wire logger: %w", err)
	}

	return &app{log: log, cfg: cfg}, nil
}

func newLogger(verbose bool) (*zap.Logger, error) {
	if verbose {
		return zap.NewDevelopment()
	}
	cfg := zap.NewProductionConfig()
	cfg.Encoding = "console"
	cfg.EncoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05.000")
	return cfg.Build()
}

func (a *app) matrixClient() *matrix.Client {
	return &matrix.Client{
		BaseURL: a.cfg.HomeserverURL,
		HTTPClient: &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        0,
				MaxIdleConnsPerHost: 512,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		RequestTimeout: 60 * time.Second,
	}
}

func (a *app) behaviorProfile() (domain.BehaviorProfile, error) {
	if a.cfg.ProfilePath == "" {
		return domain.DefaultBehaviorProfile(), nil
	}
	return profile.Load(a.cfg.ProfilePath)
}
