package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("默认配置应加载成功: %v", err)
	}
	if cfg.Gateway.CacheTTL != 60*time.Second {
		t.Fatalf("cache ttl = %s", cfg.Gateway.CacheTTL)
	}
	if cfg.Sampler.WindowBlocks != 576 || cfg.Sampler.Stride != 12 {
		t.Fatalf("unexpected sampler defaults: %+v", cfg.Sampler)
	}
	if cfg.Timeline.RefreshInterval != 15*time.Minute || cfg.Timeline.RetryInterval != 5*time.Minute {
		t.Fatalf("unexpected timeline defaults: %+v", cfg.Timeline)
	}

	err = cfg.RPC.Require()
	if !errors.Is(err, ErrRPCNotConfigured) {
		t.Fatalf("缺少 rpc.url 时应返回 ErrRPCNotConfigured, got %v", err)
	}
	var cfgErr *ConfigError
	if !errors.As(err, &cfgErr) || cfgErr.Key != "rpc.url" {
		t.Fatalf("expected ConfigError for rpc.url, got %#v", err)
	}
}

func TestLoadFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	body := []byte("rpc:\n  url: http://node:8232\nsampler:\n  stride: 6\ntimeline:\n  retry_interval: 90s\n")
	if err := os.WriteFile(path, body, 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("ZECWATCHER_SAMPLER_WINDOW_BLOCKS", "288")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.RPC.URL != "http://node:8232" {
		t.Fatalf("rpc.url = %q", cfg.RPC.URL)
	}
	if err := cfg.RPC.Require(); err != nil {
		t.Fatalf("require: %v", err)
	}
	if cfg.Sampler.Stride != 6 || cfg.Sampler.WindowBlocks != 288 {
		t.Fatalf("unexpected sampler config: %+v", cfg.Sampler)
	}
	if cfg.Timeline.RetryInterval != 90*time.Second {
		t.Fatalf("retry interval = %s", cfg.Timeline.RetryInterval)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	t.Chdir(t.TempDir())
	base, err := Load("")
	if err != nil {
		t.Fatal(err)
	}

	cases := map[string]func(c *Config){
		"sampler.stride":        func(c *Config) { c.Sampler.Stride = 0 },
		"sampler.window_blocks": func(c *Config) { c.Sampler.WindowBlocks = -1 },
		"gateway.cache_backend": func(c *Config) { c.Gateway.CacheBackend = "memcached" },
		"gateway.cache_ttl":     func(c *Config) { c.Gateway.CacheTTL = 0 },
		"timeline.cycle_timeout": func(c *Config) {
			c.Timeline.CycleTimeout = 0
		},
	}
	for key, mutate := range cases {
		cfg := *base
		mutate(&cfg)
		err := cfg.Validate()
		var cfgErr *ConfigError
		if !errors.As(err, &cfgErr) || cfgErr.Key != key {
			t.Fatalf("%s: expected ConfigError, got %v", key, err)
		}
	}
}

func TestRequireRejectsUndialableURL(t *testing.T) {
	for _, raw := range []string{"localhost:8232", "not a url", "ftp://node:8232", "http://", "http://%zz"} {
		err := RPCConfig{URL: raw}.Require()
		var cfgErr *ConfigError
		if !errors.As(err, &cfgErr) || cfgErr.Key != "rpc.url" {
			t.Fatalf("%q: expected ConfigError for rpc.url, got %v", raw, err)
		}
		if errors.Is(err, ErrRPCNotConfigured) {
			t.Fatalf("%q: 配置了 URL 时不应报告未配置", raw)
		}
	}

	for _, raw := range []string{"http://127.0.0.1:8232", "https://node.example/rpc", "ws://node:8232", "HTTP://node:8232"} {
		if err := (RPCConfig{URL: raw}).Require(); err != nil {
			t.Fatalf("%q should be accepted: %v", raw, err)
		}
	}
}
