// Command storagectl inspects and maintains the upload directory from the
// operator's shell.
package main

import (
	"os"

	"github.com/charmbracelet/log"
	"github.com/spf13/afero"

	"ecoportal/internal/config"
	"ecoportal/internal/domain/upload"
	"ecoportal/internal/pkg/logger"
)

func main() {
	if err := newRootCmd(openEnv).Execute(); err != nil {
		os.Exit(1)
	}
}

// env is everything a subcommand needs, built once per invocation.
type env struct {
	cfg      *config.Config
	log      *log.Logger
	pipeline *upload.Pipeline
}

func openEnv() (*env, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	l := logger.New(logger.Options{Level: cfg.LogLevel, Format: cfg.LogFormat, Debug: cfg.Debug, Prefix: "storagectl"})

	storage, err := upload.OpenStorage(cfg.Upload)
	if err != nil {
		return nil, err
	}
	return newEnv(cfg, storage, l)
}

func newEnv(cfg *config.Config, storage afero.Fs, l *log.Logger) (*env, error) {
	pipeline, err := upload.NewPipeline(storage, cfg.Upload, l)
	if err != nil {
		return nil, err
	}
	return &env{cfg: cfg, log: l, pipeline: pipeline}, nil
}
