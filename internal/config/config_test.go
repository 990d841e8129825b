package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
)

// clearTestEnv removes every DOCSEARCH_* variable the tests may set, so one
// test's environment cannot leak into the next.
func clearTestEnv() {
	for _, key := range []string{
		"DOCSEARCH_CONFIG",
		"DOCSEARCH_DB_URL",
		"DOCSEARCH_CORPUS_ROOT",
		"DOCSEARCH_LOG_LEVEL",
		"DOCSEARCH_PROVIDER",
		"DOCSEARCH_EMBED_DIM",
		"DOCSEARCH_PIPELINE_CHUNK_SIZE",
		"DOCSEARCH_PIPELINE_CHUNK_OVERLAP",
		"DOCSEARCH_SCHEDULER_MAX_FILES",
		"DOCSEARCH_SCHEDULER_POLL_INTERVAL",
	} {
		os.Unsetenv(key)
	}
}

// stubArgs replaces os.Args for the duration of a test so Load does not try
// to parse the go test flags.
func stubArgs(t *testing.T, args ...string) {
	t.Helper()
	old := os.Args
	os.Args = append([]string{"docsearch-test"}, args...)
	t.Cleanup(func() { os.Args = old })
}

func TestLoadDefaults(t *testing.T) {
	clearTestEnv()
	stubArgs(t)

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	cfg, err := Load("", fs)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Provider != "stub" {
		t.Errorf("Expected provider %q, got %q", "stub", cfg.Provider)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("Expected log level %q, got %q", "info", cfg.LogLevel)
	}
	if cfg.Port != 8080 {
		t.Errorf("Expected port 8080, got %d", cfg.Port)
	}
	if cfg.Pipeline.Parser != "auto" {
		t.Errorf("Expected parser %q, got %q", "auto", cfg.Pipeline.Parser)
	}
	if cfg.Pipeline.Chunker != "paragraph" {
		t.Errorf("Expected chunker %q, got %q", "paragraph", cfg.Pipeline.Chunker)
	}
	if cfg.Pipeline.Embedder != "store" {
		t.Errorf("Expected embedder %q, got %q", "store", cfg.Pipeline.Embedder)
	}
	if cfg.Pipeline.ChunkSize != 1200 {
		t.Errorf("Expected chunk size 1200, got %d", cfg.Pipeline.ChunkSize)
	}
	if cfg.Pipeline.ChunkOverlap != 120 {
		t.Errorf("Expected chunk overlap 120, got %d", cfg.Pipeline.ChunkOverlap)
	}
	if !cfg.Pipeline.EnableCleaning {
		t.Error("Expected cleaning enabled by default")
	}
	if cfg.Scheduler.MaxFiles != 4 {
		t.Errorf("Expected max files 4, got %d", cfg.Scheduler.MaxFiles)
	}
	if cfg.Scheduler.PollInterval != 5*time.Second {
		t.Errorf("Expected poll interval 5s, got %s", cfg.Scheduler.PollInterval)
	}
	if cfg.Scheduler.StaleClaimAfter != 15*time.Minute {
		t.Errorf("Expected stale claim after 15m, got %s", cfg.Scheduler.StaleClaimAfter)
	}
	if cfg.Auth.Enabled {
		t.Error("Expected auth disabled by default")
	}
}

func TestLoadFromYAMLFile(t *testing.T) {
	clearTestEnv()
	stubArgs(t)

	dir := t.TempDir()
	path := filepath.Join(dir, "docsearch.yaml")
	yaml := `
provider: openai
providerEmbedModel: text-embedding-3-small
providerDim: 1536
database: postgres://example/db
corpusRoot: /srv/corpus
logLevel: debug
pipeline:
  parser: text
  cleaners: [whitespace, control-chars]
  chunker: window
  chunkSize: 800
  chunkOverlap: 80
scheduler:
  pollInterval: 2s
  maxFiles: 8
auth:
  enabled: true
  jwtSecret: sekrit
`
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatalf("write yaml: %v", err)
	}

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	cfg, err := Load(path, fs)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Provider != "openai" {
		t.Errorf("Expected provider %q, got %q", "openai", cfg.Provider)
	}
	if cfg.EmbedModel != "text-embedding-3-small" {
		t.Errorf("Expected embed model %q, got %q", "text-embedding-3-small", cfg.EmbedModel)
	}
	if cfg.Dim != 1536 {
		t.Errorf("Expected dim 1536, got %d", cfg.Dim)
	}
	if cfg.CorpusRoot != "/srv/corpus" {
		t.Errorf("Expected corpus root %q, got %q", "/srv/corpus", cfg.CorpusRoot)
	}
	if cfg.Pipeline.Parser != "text" {
		t.Errorf("Expected parser %q, got %q", "text", cfg.Pipeline.Parser)
	}
	if len(cfg.Pipeline.Cleaners) != 2 || cfg.Pipeline.Cleaners[1] != "control-chars" {
		t.Errorf("Expected cleaners [whitespace control-chars], got %v", cfg.Pipeline.Cleaners)
	}
	if cfg.Pipeline.Chunker != "window" {
		t.Errorf("Expected chunker %q, got %q", "window", cfg.Pipeline.Chunker)
	}
	if cfg.Pipeline.ChunkSize != 800 || cfg.Pipeline.ChunkOverlap != 80 {
		t.Errorf("Expected chunk size/overlap 800/80, got %d/%d", cfg.Pipeline.ChunkSize, cfg.Pipeline.ChunkOverlap)
	}
	if cfg.Scheduler.PollInterval != 2*time.Second {
		t.Errorf("Expected poll interval 2s, got %s", cfg.Scheduler.PollInterval)
	}
	if cfg.Scheduler.MaxFiles != 8 {
		t.Errorf("Expected max files 8, got %d", cfg.Scheduler.MaxFiles)
	}
	if !cfg.Auth.Enabled || cfg.Auth.JwtSecret != "sekrit" {
		t.Errorf("Expected auth enabled with secret, got %+v", cfg.Auth)
	}
}

func TestLoadEnvOverridesFile(t *testing.T) {
	clearTestEnv()
	stubArgs(t)

	dir := t.TempDir()
	path := filepath.Join(dir, "docsearch.yaml")
	yaml := "logLevel: warn\ncorpusRoot: /from/file\n"
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatalf("write yaml: %v", err)
	}

	os.Setenv("DOCSEARCH_LOG_LEVEL", "debug")
	os.Setenv("DOCSEARCH_CORPUS_ROOT", "/from/env")
	os.Setenv("DOCSEARCH_SCHEDULER_MAX_FILES", "16")
	defer clearTestEnv()

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	cfg, err := Load(path, fs)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.LogLevel != "debug" {
		t.Errorf("Expected env log level %q, got %q", "debug", cfg.LogLevel)
	}
	if cfg.CorpusRoot != "/from/env" {
		t.Errorf("Expected env corpus root %q, got %q", "/from/env", cfg.CorpusRoot)
	}
	if cfg.Scheduler.MaxFiles != 16 {
		t.Errorf("Expected env max files 16, got %d", cfg.Scheduler.MaxFiles)
	}
}

func TestLoadFlagsOverrideEnv(t *testing.T) {
	clearTestEnv()
	stubArgs(t, "--log-level", "error", "--max-files", "2", "--chunker", "window")

	os.Setenv("DOCSEARCH_LOG_LEVEL", "debug")
	defer clearTestEnv()

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	cfg, err := Load("", fs)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.LogLevel != "error" {
		t.Errorf("Expected flag log level %q, got %q", "error", cfg.LogLevel)
	}
	if cfg.Scheduler.MaxFiles != 2 {
		t.Errorf("Expected flag max files 2, got %d", cfg.Scheduler.MaxFiles)
	}
	if cfg.Pipeline.Chunker != "window" {
		t.Errorf("Expected flag chunker %q, got %q", "window", cfg.Pipeline.Chunker)
	}
}

func TestLoadMissingConfigFile(t *testing.T) {
	clearTestEnv()
	stubArgs(t)

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	if _, err := Load("/nonexistent/docsearch.yaml", fs); err == nil {
		t.Error("Expected error for missing config file, got nil")
	}
}

func TestValidate(t *testing.T) {
	base := func() Specification {
		var cfg Specification
		setDefaults(&cfg)
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Specification)
		wantErr bool
	}{
		{"defaults valid", func(c *Specification) {}, false},
		{"empty database", func(c *Specification) { c.Database = " " }, true},
		{"empty corpus root", func(c *Specification) { c.CorpusRoot = "" }, true},
		{"max files zero", func(c *Specification) { c.Scheduler.MaxFiles = 0 }, true},
		{"max parse zero", func(c *Specification) { c.Scheduler.MaxParse = 0 }, true},
		{"max embed zero", func(c *Specification) { c.Scheduler.MaxEmbed = 0 }, true},
		{"poll interval zero", func(c *Specification) { c.Scheduler.PollInterval = 0 }, true},
		{"overlap equals size", func(c *Specification) {
			c.Pipeline.ChunkSize = 100
			c.Pipeline.ChunkOverlap = 100
		}, true},
		{"overlap below size", func(c *Specification) {
			c.Pipeline.ChunkSize = 100
			c.Pipeline.ChunkOverlap = 99
		}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(&cfg)
			err := cfg.validate()
			if tt.wantErr && err == nil {
				t.Error("Expected validation error, got nil")
			}
			if !tt.wantErr && err != nil {
				t.Errorf("Expected no error, got %v", err)
			}
		})
	}
}
