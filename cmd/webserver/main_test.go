package main

import (
	"errors"
	"net"
	"path/filepath"
	"strings"
	"testing"

	"coursequiz"
)

func TestRunReturnsStartupErrors(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	base := func(t *testing.T) coursequiz.Config {
		cfg := coursequiz.DefaultConfig()
		cfg.Database.DSN = filepath.Join(t.TempDir(), "quiz.db")
		cfg.OpenAI.APIKey = "sk-test"
		cfg.HTTP.Addr = "127.0.0.1:0"
		return cfg
	}
	cases := []struct {
		name   string
		mutate func(*coursequiz.Config)
		want   string
	}{
		{"database", func(c *coursequiz.Config) { c.Database.Driver = "mysql" }, "failed to open database"},
		{"engine", func(c *coursequiz.Config) { c.OpenAI.APIKey = "" }, "failed to create engine"},
		{"listen", func(c *coursequiz.Config) { c.HTTP.Addr = ln.Addr().String() }, "listen on"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := base(t)
			tc.mutate(&cfg)
			err := run(cfg, coursequiz.NopLogger())
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("run: want error containing %q got=%v", tc.want, err)
			}
		})
	}
}

func TestRunKeepsConfigErrorType(t *testing.T) {
	cfg := coursequiz.DefaultConfig()
	cfg.Database.DSN = filepath.Join(t.TempDir(), "quiz.db")
	err := run(cfg, coursequiz.NopLogger())
	var cerr *coursequiz.ConfigError
	if !errors.As(err, &cerr) || cerr.Field != "openai.api_key" {
		t.Fatalf("want ConfigError on openai.api_key got=%v", err)
	}
}
