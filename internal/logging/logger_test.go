package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func resetLoggingState() {
	CloseAll()
	CloseAudit()
	loggers = make(map[Category]*Logger)
	logsDir = ""
	workspace = ""
	configLoaded = false
	config = loggingConfig{}
	auditLogger = nil
}

func TestAllCategoriesLog(t *testing.T) {
	tempDir, err := os.MkdirTemp("", "logging_test")
	if err != nil {
		t.Fatalf("failed to create temp dir: %v", err)
	}
	defer os.RemoveAll(tempDir)

	configDir := filepath.Join(tempDir, ".librarian")
	if err := os.MkdirAll(configDir, 0755); err != nil {
		t.Fatalf("failed to create config dir: %v", err)
	}

	configContent := `{
		"logging": {
			"level": "debug",
			"debug_mode": true,
			"categories": {
				"boot": true, "config": true, "extractor": true, "embedding": true,
				"store": true, "ledger": true, "indexer": true, "watcher": true,
				"retrieval": true, "packs": true, "coordinator": true, "cli": true
			}
		}
	}`

	if err := os.WriteFile(filepath.Join(configDir, "config.json"), []byte(configContent), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	resetLoggingState()

	if err := Initialize(tempDir); err != nil {
		t.Fatalf("failed to initialize logging: %v", err)
	}

	if !IsDebugMode() {
		t.Error("expected debug mode to be enabled")
	}

	categories := []Category{
		CategoryBoot, CategoryConfig, CategoryExtractor, CategoryEmbedding,
		CategoryStore, CategoryLedger, CategoryIndexer, CategoryWatcher,
		CategoryRetrieval, CategoryPacks, CategoryCoordinator, CategoryCLI,
	}

	for _, cat := range categories {
		if !IsCategoryEnabled(cat) {
			t.Errorf("category %s should be enabled", cat)
		}
		logger := Get(cat)
		logger.Info("test info message for %s", cat)
		logger.Debug("test debug message for %s", cat)
		logger.Warn("test warn message for %s", cat)
		logger.Error("test error message for %s", cat)
	}

	Extractor("convenience extractor log")
	Embedding("convenience embedding log")
	Store("convenience store log")
	Ledger("convenience ledger log")
	Indexer("convenience indexer log")
	Watcher("convenience watcher log")
	Retrieval("convenience retrieval log")
	Packs("convenience packs log")
	Coordinator("convenience coordinator log")
	CLI("convenience cli log")

	CloseAll()
	CloseAudit()

	logsPath := filepath.Join(tempDir, ".librarian", "logs")
	entries, err := os.ReadDir(logsPath)
	if err != nil {
		t.Fatalf("failed to read logs dir: %v", err)
	}

	for _, cat := range categories {
		found := false
		for _, entry := range entries {
			if strings.Contains(entry.Name(), string(cat)+".log") {
				found = true
				content, err := os.ReadFile(filepath.Join(logsPath, entry.Name()))
				if err != nil {
					t.Errorf("failed to read log file for %s: %v", cat, err)
					continue
				}
				if len(content) == 0 {
					t.Errorf("log file for %s is empty", cat)
				}
				break
			}
		}
		if !found {
			t.Errorf("no log file found for category: %s", cat)
		}
	}
}

func TestDebugModeDisabled(t *testing.T) {
	tempDir, err := os.MkdirTemp("", "logging_test_disabled")
	if err != nil {
		t.Fatalf("failed to create temp dir: %v", err)
	}
	defer os.RemoveAll(tempDir)

	configDir := filepath.Join(tempDir, ".librarian")
	if err := os.MkdirAll(configDir, 0755); err != nil {
		t.Fatalf("failed to create config dir: %v", err)
	}

	configContent := `{"logging": {"level": "debug", "debug_mode": false, "categories": {"boot": true}}}`
	if err := os.WriteFile(filepath.Join(configDir, "config.json"), []byte(configContent), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	resetLoggingState()

	if err := Initialize(tempDir); err != nil {
		t.Fatalf("failed to initialize logging: %v", err)
	}

	if IsDebugMode() {
		t.Error("expected debug mode to be disabled (production mode)")
	}
	if IsCategoryEnabled(CategoryBoot) {
		t.Error("category should be disabled when debug_mode=false")
	}

	Boot("this should not be logged")
	logger := Get(CategoryBoot)
	logger.Info("this should not be logged")

	CloseAll()
	CloseAudit()

	logsPath := filepath.Join(tempDir, ".librarian", "logs")
	if _, err := os.Stat(logsPath); err == nil {
		entries, _ := os.ReadDir(logsPath)
		if len(entries) > 0 {
			t.Errorf("expected no log files in production mode, found %d", len(entries))
		}
	}
}

func TestCategoryToggle(t *testing.T) {
	tempDir, err := os.MkdirTemp("", "logging_test_category")
	if err != nil {
		t.Fatalf("failed to create temp dir: %v", err)
	}
	defer os.RemoveAll(tempDir)

	configDir := filepath.Join(tempDir, ".librarian")
	if err := os.MkdirAll(configDir, 0755); err != nil {
		t.Fatalf("failed to create config dir: %v", err)
	}

	configContent := `{
		"logging": {
			"level": "debug",
			"debug_mode": true,
			"categories": {"boot": true, "watcher": true, "packs": false, "coordinator": false}
		}
	}`
	if err := os.WriteFile(filepath.Join(configDir, "config.json"), []byte(configContent), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	resetLoggingState()

	if err := Initialize(tempDir); err != nil {
		t.Fatalf("failed to initialize: %v", err)
	}

	if !IsCategoryEnabled(CategoryBoot) {
		t.Error("boot should be enabled")
	}
	if !IsCategoryEnabled(CategoryWatcher) {
		t.Error("watcher should be enabled")
	}
	if IsCategoryEnabled(CategoryPacks) {
		t.Error("packs should be disabled")
	}
	if IsCategoryEnabled(CategoryCoordinator) {
		t.Error("coordinator should be disabled")
	}
	if !IsCategoryEnabled(CategoryLedger) {
		t.Error("ledger (not in config) should default to enabled")
	}

	Boot("should be logged")
	Watcher("should be logged")
	Packs("should not be logged")
	Coordinator("should not be logged")
	Ledger("should be logged (default enabled)")

	CloseAll()
	CloseAudit()

	logsPath := filepath.Join(tempDir, ".librarian", "logs")
	entries, _ := os.ReadDir(logsPath)

	var hasBoot, hasWatcher, hasPacks, hasCoordinator bool
	for _, e := range entries {
		switch {
		case strings.Contains(e.Name(), "boot"):
			hasBoot = true
		case strings.Contains(e.Name(), "watcher"):
			hasWatcher = true
		case strings.Contains(e.Name(), "packs"):
			hasPacks = true
		case strings.Contains(e.Name(), "coordinator"):
			hasCoordinator = true
		}
	}

	if !hasBoot {
		t.Error("expected boot log file")
	}
	if !hasWatcher {
		t.Error("expected watcher log file")
	}
	if hasPacks {
		t.Error("should not have packs log file (disabled)")
	}
	if hasCoordinator {
		t.Error("should not have coordinator log file (disabled)")
	}
}

func TestTimerLogging(t *testing.T) {
	tempDir, err := os.MkdirTemp("", "logging_test_timer")
	if err != nil {
		t.Fatalf("failed to create temp dir: %v", err)
	}
	defer os.RemoveAll(tempDir)

	configDir := filepath.Join(tempDir, ".librarian")
	os.MkdirAll(configDir, 0755)
	os.WriteFile(filepath.Join(configDir, "config.json"), []byte(`{"logging": {"level": "debug", "debug_mode": true}}`), 0644)

	resetLoggingState()
	Initialize(tempDir)

	timer := StartTimer(CategoryIndexer, "TestOperation")
	time.Sleep(time.Millisecond)
	elapsed := timer.Stop()

	if elapsed <= 0 {
		t.Error("timer should have recorded non-zero duration")
	}

	CloseAll()
	CloseAudit()
}

func TestRequestLogger(t *testing.T) {
	tempDir, err := os.MkdirTemp("", "logging_test_request")
	if err != nil {
		t.Fatalf("failed to create temp dir: %v", err)
	}
	defer os.RemoveAll(tempDir)

	configDir := filepath.Join(tempDir, ".librarian")
	os.MkdirAll(configDir, 0755)
	os.WriteFile(filepath.Join(configDir, "config.json"), []byte(`{"logging": {"level": "debug", "debug_mode": true}}`), 0644)

	resetLoggingState()
	Initialize(tempDir)

	rl := WithRequestID(CategoryCoordinator, "req-123").WithField("intent", "lookup")
	rl.Info("routing query")

	CloseAll()
	CloseAudit()
}
