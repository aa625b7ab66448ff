package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"
)

func validConfig() *Config {
	cfg := Defaults()
	cfg.Relay.GroupID = -1001234567890
	return cfg
}

// --- Validate ---

func TestValidate_ValidConfig(t *testing.T) {
	if err := Validate(validConfig()); err != nil {
		t.Fatalf("expected valid config, got: %v", err)
	}
}

func TestValidate_DefaultsNeedGroupID(t *testing.T) {
	err := Validate(Defaults())
	if err == nil {
		t.Fatal("expected error when groupId is unset")
	}
	if !strings.Contains(err.Error(), "relay.groupId") {
		t.Fatalf("error should name relay.groupId, got: %v", err)
	}
}

func TestValidate_Workers_Boundary(t *testing.T) {
	cfg := validConfig()

	cfg.Relay.Workers = 0
	if err := Validate(cfg); err == nil {
		t.Fatal("expected error for workers=0")
	}
	cfg.Relay.Workers = 101
	if err := Validate(cfg); err == nil {
		t.Fatal("expected error for workers=101")
	}
	cfg.Relay.Workers = 1
	if err := Validate(cfg); err != nil {
		t.Fatalf("workers=1 should be valid: %v", err)
	}
	cfg.Relay.Workers = 100
	if err := Validate(cfg); err != nil {
		t.Fatalf("workers=100 should be valid: %v", err)
	}
}

func TestValidate_Routes(t *testing.T) {
	tests := []struct {
		name   string
		routes []Route
	}{
		{"no routes", nil},
		{"empty marker", []Route{{Marker: "  ", ThreadID: 3}}},
		{"zero thread", []Route{{Marker: "#biete", ThreadID: 0}}},
		{"back into source", []Route{{Marker: "#biete", ThreadID: 2}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			cfg.Relay.Routes = tt.routes
			if err := Validate(cfg); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestValidate_LogLevel(t *testing.T) {
	for _, level := range []string{"debug", "info", "warn", "error", "INFO"} {
		cfg := validConfig()
		cfg.Log.Level = level
		if err := Validate(cfg); err != nil {
			t.Fatalf("level %q should be valid: %v", level, err)
		}
	}
	cfg := validConfig()
	cfg.Log.Level = "verbose"
	if err := Validate(cfg); err == nil {
		t.Fatal("expected error for unknown log level")
	}
}

func TestValidate_AuditRequiresPath(t *testing.T) {
	cfg := validConfig()
	cfg.Audit.Enabled = true
	cfg.Audit.DBPath = ""
	if err := Validate(cfg); err == nil {
		t.Fatal("expected error for enabled audit without dbPath")
	}
}

func TestValidate_AuditPruneSchedule(t *testing.T) {
	cfg := validConfig()
	cfg.Audit.Enabled = true
	if err := Validate(cfg); err != nil {
		t.Fatalf("default schedule should be valid: %v", err)
	}
	cfg.Audit.PruneSchedule = "at noon"
	err := Validate(cfg)
	if err == nil || !strings.Contains(err.Error(), "audit.pruneSchedule") {
		t.Fatalf("expected pruneSchedule error, got %v", err)
	}
}

func TestValidate_AggregatesErrors(t *testing.T) {
	cfg := Defaults()
	cfg.Relay.Workers = 0
	cfg.Log.Level = "loud"
	err := Validate(cfg)
	if err == nil {
		t.Fatal("expected error")
	}
	for _, want := range []string{"relay.groupId", "relay.workers", "log.level"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("expected %q in %v", want, err)
		}
	}
}

// --- Load / Save ---

func TestLoadSave_RoundTripJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")

	original := validConfig()
	original.Relay.ContextWindow = Duration(90 * time.Second)

	if err := Save(path, original); err != nil {
		t.Fatalf("save: %v", err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded.Relay.ContextWindow.Std() != 90*time.Second {
		t.Fatalf("expected 1m30s, got %s", loaded.Relay.ContextWindow)
	}
	if loaded.Relay.GroupID != original.Relay.GroupID {
		t.Fatalf("expected group %d, got %d", original.Relay.GroupID, loaded.Relay.GroupID)
	}
}

func TestLoadSave_RoundTripYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	original := validConfig()
	original.Relay.Routes = []Route{{Marker: "#tausche", ThreadID: 9, Name: "Tausche"}}

	if err := Save(path, original); err != nil {
		t.Fatalf("save: %v", err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(loaded.Relay.Routes) != 1 || loaded.Relay.Routes[0].Marker != "#tausche" {
		t.Fatalf("routes not round-tripped: %+v", loaded.Relay.Routes)
	}
}

func TestLoad_YAMLOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "relay.yml")
	content := `
relay:
  groupId: -1003356712572
  sourceThreadId: 7
  contextWindow: 120
  routes:
    - marker: "#biete"
      threadId: 8
    - marker: "#suche"
      threadId: 9
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Relay.SourceThreadID != 7 {
		t.Fatalf("expected source thread 7, got %d", cfg.Relay.SourceThreadID)
	}
	if cfg.Relay.ContextWindow.Std() != 2*time.Minute {
		t.Fatalf("expected 2m window from integer seconds, got %s", cfg.Relay.ContextWindow)
	}
	if len(cfg.Relay.Routes) != 2 || cfg.Relay.Routes[1].ThreadID != 9 {
		t.Fatalf("unexpected routes: %+v", cfg.Relay.Routes)
	}
	if cfg.Relay.Workers != 4 {
		t.Fatalf("unset fields should keep defaults, got workers=%d", cfg.Relay.Workers)
	}
}

func TestLoad_JSONRouteMissingThreadID(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	content := `{"relay": {"groupId": -1, "routes": [{"marker": "#tausche"}]}}`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	_, err := Load(path)
	if err == nil {
		t.Fatal("expected validation error for route without threadId")
	}
	if !strings.Contains(err.Error(), "relay.routes[0].threadId must be > 0") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestLoad_JSONRoutesReplaceDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	content := `{"relay": {"groupId": -1, "routes": [{"marker": "#tausche", "threadId": 9}]}}`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	want := []Route{{Marker: "#tausche", ThreadID: 9}}
	if !reflect.DeepEqual(cfg.Relay.Routes, want) {
		t.Fatalf("routes = %+v, want %+v", cfg.Relay.Routes, want)
	}
}

func TestLoad_NoRoutesKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(`{"relay": {"groupId": -1}}`), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !reflect.DeepEqual(cfg.Relay.Routes, defaultRoutes()) {
		t.Fatalf("expected default routes, got %+v", cfg.Relay.Routes)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load("/nonexistent/path/config.json"); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestLoad_InvalidJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.json")
	os.WriteFile(path, []byte("{not json}"), 0o644)

	if _, err := Load(path); err == nil {
		t.Fatal("expected error for invalid JSON")
	}
}

func TestLoad_ValidatesConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	os.WriteFile(path, []byte(`{"relay": {"groupId": 0}}`), 0o644)

	_, err := Load(path)
	if err == nil {
		t.Fatal("expected validation error")
	}
	if !strings.Contains(err.Error(), "config validation") {
		t.Fatalf("expected wrapped validation error, got: %v", err)
	}
}

func TestLoad_WithEnvVarSubstitution(t *testing.T) {
	t.Setenv("TEST_RELAY_GROUP", "-10042")
	t.Setenv("TEST_RELAY_TOKEN", "123456:ABCDEF")

	path := filepath.Join(t.TempDir(), "config.json")
	content := `{
		"telegram": {"token": "${TEST_RELAY_TOKEN}"},
		"relay": {
			"groupId": ${TEST_RELAY_GROUP},
			"sourceThreadId": ${TEST_RELAY_SOURCE:-2},
			"contextWindow": "${TEST_RELAY_WINDOW:-10m}"
		}
	}`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Relay.GroupID != -10042 {
		t.Fatalf("expected group -10042, got %d", cfg.Relay.GroupID)
	}
	if cfg.Telegram.Token != "123456:ABCDEF" {
		t.Fatalf("expected token from env, got %q", cfg.Telegram.Token)
	}
	if cfg.Relay.ContextWindow.Std() != 10*time.Minute {
		t.Fatalf("expected default 10m window, got %s", cfg.Relay.ContextWindow)
	}
}

// --- Duration ---

func TestDuration_UnmarshalJSON(t *testing.T) {
	tests := []struct {
		in   string
		want time.Duration
	}{
		{`"5m"`, 5 * time.Minute},
		{`"90s"`, 90 * time.Second},
		{`300`, 5 * time.Minute},
		{`0.5`, 500 * time.Millisecond},
	}
	for _, tt := range tests {
		var d Duration
		if err := json.Unmarshal([]byte(tt.in), &d); err != nil {
			t.Fatalf("unmarshal %s: %v", tt.in, err)
		}
		if d.Std() != tt.want {
			t.Errorf("unmarshal %s: got %s, want %s", tt.in, d, tt.want)
		}
	}
}

func TestDuration_UnmarshalJSON_Invalid(t *testing.T) {
	var d Duration
	if err := json.Unmarshal([]byte(`"five minutes"`), &d); err == nil {
		t.Fatal("expected error for unparseable duration")
	}
	if err := json.Unmarshal([]byte(`true`), &d); err == nil {
		t.Fatal("expected error for boolean duration")
	}
}

// --- Accessor ---

func TestGetByPath_ValidPaths(t *testing.T) {
	cfg := validConfig()

	val, err := GetByPath(cfg, "relay.contextWindow")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if val != "5m0s" {
		t.Fatalf("expected '5m0s', got %v", val)
	}

	val, err = GetByPath(cfg, "relay.routes.1.marker")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if val != "#suche" {
		t.Fatalf("expected '#suche', got %v", val)
	}
}

func TestGetByPath_InvalidPath(t *testing.T) {
	cfg := validConfig()
	if _, err := GetByPath(cfg, "nonexistent.path"); err == nil {
		t.Fatal("expected error for nonexistent path")
	}
	if _, err := GetByPath(cfg, "relay.routes.9"); err == nil {
		t.Fatal("expected error for out of range index")
	}
}

func TestSanitize_MasksToken(t *testing.T) {
	cfg := validConfig()
	cfg.Telegram.Token = "1234567890:AAHdqTcvCH1vGWJxfSeofSAs0K5PALDsaw"

	s := Sanitize(cfg)
	if s.Telegram.Token == cfg.Telegram.Token {
		t.Fatal("token should be masked")
	}
	if !strings.HasPrefix(s.Telegram.Token, "1234") || !strings.HasSuffix(s.Telegram.Token, "Dsaw") {
		t.Fatalf("unexpected mask: %q", s.Telegram.Token)
	}
	if cfg.Telegram.Token != "1234567890:AAHdqTcvCH1vGWJxfSeofSAs0K5PALDsaw" {
		t.Fatal("original config must not be modified")
	}
}

func TestMaskToken_Short(t *testing.T) {
	if got := MaskToken("abc"); got != "***" {
		t.Fatalf("expected '***', got %q", got)
	}
}

// --- ExpandEnvVars ---

func TestExpandEnvVars_SimpleSubstitution(t *testing.T) {
	t.Setenv("TEST_BOT_TOKEN", "123:abc")
	result := ExpandEnvVars(`{"token": "${TEST_BOT_TOKEN}"}`)
	if result != `{"token": "123:abc"}` {
		t.Fatalf("unexpected result %q", result)
	}
}

func TestExpandEnvVars_DefaultValue(t *testing.T) {
	os.Unsetenv("NONEXISTENT_VAR_12345")
	result := ExpandEnvVars(`{"window": "${NONEXISTENT_VAR_12345:-5m}"}`)
	if result != `{"window": "5m"}` {
		t.Fatalf("unexpected result %q", result)
	}
}

func TestExpandEnvVars_UnsetVarNoDefault_KeepsOriginal(t *testing.T) {
	os.Unsetenv("TOTALLY_UNSET_VAR_XYZ")
	input := `"${TOTALLY_UNSET_VAR_XYZ}"`
	if result := ExpandEnvVars(input); result != input {
		t.Fatalf("expected %q, got %q", input, result)
	}
}

func TestExpandEnvVars_EmptyVarUsesDefault(t *testing.T) {
	t.Setenv("EMPTY_VAR", "")
	if result := ExpandEnvVars(`"${EMPTY_VAR:-fallback}"`); result != `"fallback"` {
		t.Fatalf("unexpected result %q", result)
	}
}

func TestExpandEnvVars_DollarSignWithoutBraces(t *testing.T) {
	input := `"$HOME is not substituted"`
	if result := ExpandEnvVars(input); result != input {
		t.Fatalf("expected no change for bare $VAR, got %q", result)
	}
}

// --- LoadDotEnv ---

func TestLoadDotEnv_DoesNotOverrideEnvironment(t *testing.T) {
	t.Setenv("TEST_DOTENV_KEEP", "from-env")
	os.Unsetenv("TEST_DOTENV_NEW")
	t.Cleanup(func() { os.Unsetenv("TEST_DOTENV_NEW") })

	path := filepath.Join(t.TempDir(), ".env")
	content := "# comment\n\nTEST_DOTENV_KEEP=from-file\nexport TEST_DOTENV_NEW=\"fresh\"\nnot a pair\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := LoadDotEnv(path); err != nil {
		t.Fatalf("LoadDotEnv: %v", err)
	}
	if got := os.Getenv("TEST_DOTENV_KEEP"); got != "from-env" {
		t.Fatalf("existing var overwritten: %q", got)
	}
	if got := os.Getenv("TEST_DOTENV_NEW"); got != "fresh" {
		t.Fatalf("expected 'fresh', got %q", got)
	}
}

func TestLoadDotEnv_MissingFile(t *testing.T) {
	if err := LoadDotEnv(filepath.Join(t.TempDir(), "absent.env")); err != nil {
		t.Fatalf("missing .env should not be an error: %v", err)
	}
}
