package main

import (
	"fmt"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	"github.com/wippyai/wasm-bridge/bridge"
	"github.com/wippyai/wasm-bridge/engine"
	"github.com/wippyai/wasm-bridge/env"
)

// Config is the YAML configuration file layout.
type Config struct {
	Module      string        `yaml:"module"`
	Engine      engine.Config `yaml:"engine"`
	Environment struct {
		Context string `yaml:"context"`
		Markup  string `yaml:"markup"`
	} `yaml:"environment"`
	Bridge struct {
		Streaming  *bool  `yaml:"streaming"`
		HandleBase uint32 `yaml:"handle_base"`
	} `yaml:"bridge"`
	Log struct {
		Level       string `yaml:"level"`
		Development bool   `yaml:"development"`
	} `yaml:"log"`
}

func defaultConfig() *Config {
	cfg := &Config{Module: bridge.DefaultPath}
	cfg.Bridge.HandleBase = bridge.DefaultHandleBase
	cfg.Log.Level = "info"
	return cfg
}

// loadConfig reads path over the defaults. An empty path yields the
// defaults.
func loadConfig(path string) (*Config, error) {
	cfg := defaultConfig()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

func (c *Config) streaming() bool {
	return c.Bridge.Streaming == nil || *c.Bridge.Streaming
}

func (c *Config) logger() (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(c.Log.Level)
	if err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}
	zc := zap.NewProductionConfig()
	if c.Log.Development {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	return zc.Build()
}

func (c *Config) environment(console env.Console) (*env.Environment, error) {
	ctx, err := env.ParseContext(c.Environment.Context)
	if err != nil {
		return nil, err
	}
	opts := []env.Option{env.WithContext(ctx), env.WithConsole(console)}
	if c.Environment.Markup != "" {
		opts = append(opts, env.WithMarkup(c.Environment.Markup))
	}
	return env.New(opts...)
}

// bridgeOptions maps the configuration onto bridge options.
func (c *Config) bridgeOptions(log *zap.Logger, e *env.Environment) []bridge.Option {
	engineCfg := c.Engine
	return []bridge.Option{
		bridge.WithLogger(log),
		bridge.WithEnvironment(e),
		bridge.WithStreaming(c.streaming()),
		bridge.WithHandleBase(c.Bridge.HandleBase),
		bridge.WithEngineConfig(&engineCfg),
		bridge.WithDefaultPath(c.Module),
	}
}
