package main

import (
	"context"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/joseph-ayodele/docflow/internal/app"
	"github.com/joseph-ayodele/docflow/internal/common"
	"github.com/joseph-ayodele/docflow/internal/repository"
)

type commandContext struct {
	configFlag *string

	configOnce sync.Once
	config     *common.Config
	logger     *slog.Logger
	configErr  error
}

func newCommandContext(configFlag *string) *commandContext {
	return &commandContext{configFlag: configFlag}
}

// ensureConfig loads the configuration once. Logs go to stderr so command output stays clean.
func (c *commandContext) ensureConfig() (*common.Config, error) {
	c.configOnce.Do(func() {
		if c.configFlag != nil {
			if path := strings.TrimSpace(*c.configFlag); path != "" {
				if err := os.Setenv("CONFIG_FILE", path); err != nil {
					c.configErr = err
					return
				}
			}
		}
		cfg, err := common.LoadConfig()
		if err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
		c.logger = common.NewLogger(cfg.Log, os.Stderr)
		slog.SetDefault(c.logger)
	})
	return c.config, c.configErr
}

func (c *commandContext) withStores(ctx context.Context, fn func(*app.Stores) error) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}
	stores, err := app.OpenStores(ctx, cfg.Database, c.logger)
	if err != nil {
		return err
	}
	defer stores.Close(c.logger)
	return fn(stores)
}

// storeTable picks the staging store unless verified is set.
func storeTable(stores *app.Stores, verified bool) *repository.DocumentTable {
	if verified {
		return stores.Verified
	}
	return stores.Staging
}
