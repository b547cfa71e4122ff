package main

import (
	"log/slog"

	"retake/internal/config"
	"retake/internal/logging"
)

// commandContext carries lazily loaded configuration and logging shared by
// the subcommands.
type commandContext struct {
	configFlag *string

	cfg       *config.Config
	cfgPath   string
	cfgExists bool
	logger    *slog.Logger
}

func newCommandContext(configFlag *string) *commandContext {
	return &commandContext{configFlag: configFlag}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	if c.cfg != nil {
		return c.cfg, nil
	}

	cfg, path, exists, err := config.Load(*c.configFlag)
	if err != nil {
		return nil, err
	}

	logger, err := logging.NewFromConfig(cfg)
	if err != nil {
		return nil, err
	}

	c.cfg = cfg
	c.cfgPath = path
	c.cfgExists = exists
	c.logger = logger
	return cfg, nil
}
