package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/tbourn/slacker/internal/config"
	"github.com/tbourn/slacker/internal/domain"
	"github.com/tbourn/slacker/internal/repo"
)

// clearLLMKeys keeps a developer's real keys out of the tests.
func clearLLMKeys(t *testing.T) {
	t.Helper()
	for _, k := range []string{"LLM_API_KEY", "GEMINI_API_KEY", "OPENAI_API_KEY", "ANTHROPIC_API_KEY"} {
		t.Setenv(k, "")
	}
}

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(append([]string{"--env-file", ""}, args...))
	err := root.Execute()
	return out.String(), err
}

func TestClassifyCommand_Heuristic(t *testing.T) {
	clearLLMKeys(t)

	cases := map[string]string{
		"how do I fix this error?": "question",
		"lunch anyone":             "chat",
	}
	for text, want := range cases {
		out, err := runCLI(t, "classify", "--strategy", "heuristic", text)
		if err != nil {
			t.Fatalf("classify %q: %v", text, err)
		}
		if got := strings.TrimSpace(out); got != want {
			t.Errorf("classify %q = %q, want %q", text, got, want)
		}
	}
}

func TestClassifyCommand_RequiresText(t *testing.T) {
	clearLLMKeys(t)
	if _, err := runCLI(t, "classify"); err == nil {
		t.Fatal("expected an argument error")
	}
}

func TestMigrateCommand_CreatesTables(t *testing.T) {
	clearLLMKeys(t)
	path := filepath.Join(t.TempDir(), "slacker.db")
	t.Setenv("DB_PATH", path)

	out, err := runCLI(t, "migrate")
	if err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if strings.TrimSpace(out) != "ok" {
		t.Fatalf("out=%q", out)
	}

	db, err := repo.OpenSQLite(path, repo.WithSilentLogger())
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer closeDB(db)
	for _, m := range []any{&domain.EventRecord{}, &domain.ProcessedEvent{}} {
		if !db.Migrator().HasTable(m) {
			t.Fatalf("table for %T missing", m)
		}
	}
}

func TestPipelineConfig(t *testing.T) {
	cfg := config.Config{Pipeline: config.PipelineConfig{
		AllowedIntents: []string{"question", "chat"},
		DefaultIntent:  "consultation",
		HistoryLimit:   5,
	}}
	pc, err := pipelineConfig(cfg)
	if err != nil {
		t.Fatalf("pipelineConfig: %v", err)
	}
	if len(pc.AllowedIntents) != 2 || pc.AllowedIntents[1] != domain.IntentChat {
		t.Fatalf("allowed=%v", pc.AllowedIntents)
	}
	if pc.DefaultIntent != domain.IntentConsultation || pc.HistoryLimit != 5 {
		t.Fatalf("pc=%+v", pc)
	}

	cfg.Pipeline.AllowedIntents = []string{"question", "smalltalk"}
	if _, err := pipelineConfig(cfg); err == nil {
		t.Fatal("expected error for unknown allowed intent")
	}
	cfg.Pipeline.AllowedIntents = nil
	cfg.Pipeline.DefaultIntent = "nope"
	if _, err := pipelineConfig(cfg); err == nil {
		t.Fatal("expected error for unknown default intent")
	}
}

func TestNewProvider_NoKeyMeansNone(t *testing.T) {
	p, err := newProvider(config.Config{LLM: config.LLMConfig{Provider: "gemini"}})
	if err != nil || p != nil {
		t.Fatalf("provider=%v err=%v, want nil/nil", p, err)
	}
	p, err = newProvider(config.Config{LLM: config.LLMConfig{Provider: "anthropic", APIKey: "k"}})
	if err != nil || p == nil {
		t.Fatalf("provider=%v err=%v", p, err)
	}
}

func TestLoadEnvFile(t *testing.T) {
	dir := t.TempDir()
	if err := loadEnvFile(filepath.Join(dir, "missing.env"), false); err != nil {
		t.Fatalf("implicit missing file: %v", err)
	}
	if err := loadEnvFile(filepath.Join(dir, "missing.env"), true); err == nil {
		t.Fatal("explicit missing file should fail")
	}

	path := filepath.Join(dir, "test.env")
	if err := os.WriteFile(path, []byte("SLACKER_TEST_NEW=from-file\nSLACKER_TEST_SET=from-file\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("SLACKER_TEST_SET", "from-env")
	t.Setenv("SLACKER_TEST_NEW", "")
	_ = os.Unsetenv("SLACKER_TEST_NEW")

	if err := loadEnvFile(path, true); err != nil {
		t.Fatalf("load: %v", err)
	}
	if got := os.Getenv("SLACKER_TEST_NEW"); got != "from-file" {
		t.Fatalf("SLACKER_TEST_NEW=%q", got)
	}
	if got := os.Getenv("SLACKER_TEST_SET"); got != "from-env" {
		t.Fatalf("existing variable overridden: %q", got)
	}
}
