package main

import (
	"fmt"
	"strings"
	"sync"

	"mimic/internal/apiclient"
	"mimic/internal/config"
)

// commandContext lazily loads configuration and builds the daemon client so
// commands that never touch the daemon stay cheap.
type commandContext struct {
	configFlag *string

	mu     sync.Mutex
	cfg    *config.Config
	client *apiclient.Client
}

func newCommandContext(configFlag *string) *commandContext {
	return &commandContext{configFlag: configFlag}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cfg != nil {
		return c.cfg, nil
	}

	path := ""
	if c.configFlag != nil {
		path = strings.TrimSpace(*c.configFlag)
	}
	cfg, _, _, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	c.cfg = cfg
	return cfg, nil
}

func (c *commandContext) daemonClient() (*apiclient.Client, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.client == nil {
		c.client = apiclient.New(cfg)
	}
	return c.client, nil
}
