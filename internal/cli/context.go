package cli

import (
	"errors"
	"sync"

	"pawbot/internal/config"
	"pawbot/internal/provider"
	"pawbot/internal/server"
	"pawbot/pkg/logger"

	"github.com/rs/zerolog"
)

var errNoContext = errors.New("CLI context not initialized")

// CLIContext CLI 上下文
type CLIContext struct {
	Config     *config.Config
	ConfigPath string
	Logger     *zerolog.Logger
	Verbose    bool
	Quiet      bool

	// Provider replaces the configured model, used by tests.
	Provider provider.Provider

	compsOnce sync.Once
	comps     *server.Components
	compsErr  error
}

// NewCLIContext 创建 CLI 上下文
func NewCLIContext(cfg *config.Config, configPath string, log *zerolog.Logger, verbose, quiet bool) *CLIContext {
	return &CLIContext{
		Config:     cfg,
		ConfigPath: configPath,
		Logger:     log,
		Verbose:    verbose,
		Quiet:      quiet,
	}
}

// GetComponents 获取装配好的组件（懒加载）
func (c *CLIContext) GetComponents() (*server.Components, error) {
	c.compsOnce.Do(func() {
		c.comps, c.compsErr = server.Build(c.Config, c.Provider)
	})
	return c.comps, c.compsErr
}

// Close 关闭资源
func (c *CLIContext) Close() error {
	if c.comps != nil {
		return c.comps.Close()
	}
	return nil
}

// Log 获取 Logger
func (c *CLIContext) Log() *zerolog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return logger.Get()
}
