package main

import (
	"context"
	"errors"
	"net"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"shortreel/internal/apiclient"
	"shortreel/internal/config"
	"shortreel/internal/queue"
)

type commandContext struct {
	configFlag *string
	apiFlag    *string

	configOnce sync.Once
	config     *config.Config
	configErr  error
}

func newCommandContext(configFlag, apiFlag *string) *commandContext {
	return &commandContext{
		configFlag: configFlag,
		apiFlag:    apiFlag,
	}
}

func (c *commandContext) configPath() string {
	if c.configFlag == nil {
		return ""
	}
	return strings.TrimSpace(*c.configFlag)
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		cfg, _, _, err := config.Load(c.configPath())
		if err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

func (c *commandContext) configValue() *config.Config {
	cfg, _ := c.ensureConfig()
	return cfg
}

// apiBaseURL resolves the daemon API address: the --api flag wins, then the
// configured bind address. Wildcard binds dial back over loopback.
func (c *commandContext) apiBaseURL() string {
	if c.apiFlag != nil && strings.TrimSpace(*c.apiFlag) != "" {
		return strings.TrimRight(strings.TrimSpace(*c.apiFlag), "/")
	}
	cfg := c.configValue()
	if cfg == nil || cfg.Paths.APIBind == "" {
		return ""
	}
	bind := cfg.Paths.APIBind
	if host, port, err := net.SplitHostPort(bind); err == nil {
		if host == "" || host == "0.0.0.0" || host == "::" {
			bind = net.JoinHostPort("127.0.0.1", port)
		}
	}
	return "http://" + bind
}

// dialClient returns a client for a reachable daemon. The status probe
// doubles as a liveness check.
func (c *commandContext) dialClient(ctx context.Context) (*apiclient.Client, error) {
	base := c.apiBaseURL()
	if base == "" {
		return nil, errors.New("daemon api address is not configured")
	}
	var token string
	if cfg := c.configValue(); cfg != nil {
		token = cfg.Paths.APIToken
	}
	client := apiclient.New(base, token)
	if _, err := client.Status(ctx); err != nil {
		return nil, err
	}
	return client, nil
}

// withStore hands fn a daemon client when one is reachable, and a direct
// store handle otherwise. Exactly one of the two arguments is non-nil.
func (c *commandContext) withStore(ctx context.Context, fn func(client *apiclient.Client, store *queue.Store) error) error {
	if client, err := c.dialClient(ctx); err == nil {
		return fn(client, nil)
	}
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}
	store, err := queue.Open(cfg)
	if err != nil {
		return err
	}
	defer store.Close()
	return fn(nil, store)
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}
