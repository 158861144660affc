package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"socketmode/internal/config"
)

func TestResolveConfigPath_PrefersProjectRootConfig(t *testing.T) {
	root := t.TempDir()
	if err := os.MkdirAll(filepath.Join(root, ".git"), 0o755); err != nil {
		t.Fatalf("mkdir .git: %v", err)
	}
	if err := os.MkdirAll(filepath.Join(root, ".socketmode"), 0o755); err != nil {
		t.Fatalf("mkdir .socketmode: %v", err)
	}
	cfgPath := filepath.Join(root, ".socketmode", "config.yaml")
	if err := os.WriteFile(cfgPath, []byte("app_token: xapp-1\n"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	sub := filepath.Join(root, "nested", "dir")
	if err := os.MkdirAll(sub, 0o755); err != nil {
		t.Fatalf("mkdir sub: %v", err)
	}

	oldWd, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	t.Cleanup(func() { _ = os.Chdir(oldWd) })
	if err := os.Chdir(sub); err != nil {
		t.Fatalf("chdir: %v", err)
	}

	got := config.ResolveConfigPath("")
	if got != cfgPath {
		t.Fatalf("expected %q, got %q", cfgPath, got)
	}
}

func TestResolveConfigPath_StopsAtRepoRoot(t *testing.T) {
	outer := t.TempDir()
	if err := os.MkdirAll(filepath.Join(outer, ".socketmode"), 0o755); err != nil {
		t.Fatalf("mkdir outer .socketmode: %v", err)
	}
	if err := os.WriteFile(filepath.Join(outer, ".socketmode", "config.yaml"), []byte("{}\n"), 0o600); err != nil {
		t.Fatalf("write outer config: %v", err)
	}
	repo := filepath.Join(outer, "repo")
	if err := os.MkdirAll(filepath.Join(repo, ".git"), 0o755); err != nil {
		t.Fatalf("mkdir .git: %v", err)
	}
	t.Setenv("HOME", t.TempDir())

	oldWd, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	t.Cleanup(func() { _ = os.Chdir(oldWd) })
	if err := os.Chdir(repo); err != nil {
		t.Fatalf("chdir: %v", err)
	}

	got := config.ResolveConfigPath("")
	if got != config.DefaultConfigPath() {
		t.Fatalf("expected fallback %q, got %q", config.DefaultConfigPath(), got)
	}
}

func TestResolveConfigPath_Explicit(t *testing.T) {
	if got := config.ResolveConfigPath("/etc/socketmode.yaml"); got != "/etc/socketmode.yaml" {
		t.Fatalf("got %q", got)
	}
}
