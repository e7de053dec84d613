package main

import (
	"path/filepath"
	"testing"

	"spot_bot/internal/modules/config"

	"go.uber.org/fx"
)

func TestOptionsGraph(t *testing.T) {
	t.Setenv("CONFIG_FILE", filepath.Join(t.TempDir(), "missing.yaml"))
	t.Setenv("TELEGRAM_TOKEN", "")

	fs := config.NewFlagSet("test")
	if err := fs.Parse([]string{"--paper"}); err != nil {
		t.Fatal(err)
	}
	cfg, err := config.Load(fs)
	if err != nil {
		t.Fatal(err)
	}

	if err := fx.ValidateApp(options(cfg)); err != nil {
		t.Fatalf("dependency graph: %v", err)
	}
}
