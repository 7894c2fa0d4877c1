package internal

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestAuthConfig_DisabledMode(t *testing.T) {
	cfg := AuthConfig{Mode: "disabled", Token: ""}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("disabled mode should pass: %v", err)
	}
	if cfg.AuthEnabled() {
		t.Error("disabled mode should not be enabled")
	}
}

func TestAuthConfig_EmptyModeDefaultsDisabled(t *testing.T) {
	cfg := AuthConfig{Mode: "", Token: ""}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("empty mode should default to disabled: %v", err)
	}
	if cfg.Mode != AuthModeDisabled {
		t.Errorf("mode = %q, want %q", cfg.Mode, AuthModeDisabled)
	}
}

func TestAuthConfig_TokenModeValid(t *testing.T) {
	cfg := AuthConfig{Mode: "token", Token: "mysecret"}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("token mode with token should pass: %v", err)
	}
	if !cfg.AuthEnabled() {
		t.Error("token mode should be enabled")
	}
}

func TestAuthConfig_TokenModeEmptyToken(t *testing.T) {
	cfg := AuthConfig{Mode: "token", Token: ""}
	err := cfg.Validate()
	if err == nil {
		t.Fatal("token mode with empty token should fail")
	}
	if !strings.Contains(err.Error(), "token is empty") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestAuthConfig_InvalidMode(t *testing.T) {
	cfg := AuthConfig{Mode: "magic", Token: "x"}
	err := cfg.Validate()
	if err == nil {
		t.Fatal("invalid mode should fail validation")
	}
}

func TestFullConfig_AuthValidationCalled(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Auth.Mode = "token"
	cfg.Auth.Token = ""
	err := cfg.Validate()
	if err == nil {
		t.Fatal("full config validate should catch auth error")
	}
}

func TestDefaultConfigValid(t *testing.T) {
	cfg := NewDefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}
	if !cfg.Watch.Enabled || cfg.Watch.Debounce <= 0 {
		t.Errorf("watch defaults = %+v", cfg.Watch)
	}
}

func TestSearchConfig_DefaultSchema(t *testing.T) {
	var c SearchConfig
	s, err := c.Schema()
	if err != nil {
		t.Fatal(err)
	}
	if s.Table != "zotquery" || !s.Has("title") || !s.Has("key") {
		t.Errorf("schema = %+v", s)
	}
}

func TestSearchConfig_CustomColumns(t *testing.T) {
	c := SearchConfig{Columns: []ColumnConfig{
		{Name: "key", Path: "key"},
		{Name: "title", Path: "data.title", Weight: 1},
		{Name: "venue", Fallback: []string{"data.publicationTitle", "data.bookTitle"}, Weight: 0.5},
	}}
	if err := c.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	s, _ := c.Schema()
	if len(s.Columns) != 3 || s.Columns[2].Path.String() != "data.publicationTitle|data.bookTitle" {
		t.Errorf("schema = %+v", s)
	}
}

func TestSearchConfig_Invalid(t *testing.T) {
	bad := []SearchConfig{
		{Columns: []ColumnConfig{{Name: "title", Path: "data.title"}}},
		{Columns: []ColumnConfig{{Name: "key", Path: "key"}, {Name: "bad name", Path: "data.title"}}},
		{Columns: []ColumnConfig{{Name: "key", Path: "key"}, {Name: "title"}}},
		{Columns: []ColumnConfig{{Name: "key", Path: "key"}, {Name: "title", Path: "data.title", Weight: -1}}},
		{Columns: []ColumnConfig{{Name: "key", Path: "key"}, {Name: "venue", Fallback: []string{"key"}}}},
	}
	for i, c := range bad {
		if err := c.Validate(); err == nil {
			t.Errorf("config %d should fail", i)
		}
	}
}

func TestExtractConfig_Extensions(t *testing.T) {
	ok := ExtractConfig{AttachmentExts: []string{".pdf", ".epub"}, ExcludedTypeIDs: []int{1, 14}}
	if err := ok.Validate(); err != nil {
		t.Errorf("valid extract config: %v", err)
	}
	bad := ExtractConfig{AttachmentExts: []string{"pdf"}}
	if err := bad.Validate(); err == nil {
		t.Error("extension without dot should fail")
	}
}

func TestLibraryConfig(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "zotero.sqlite"), nil, 0o644); err != nil {
		t.Fatal(err)
	}
	cfg := NewDefaultConfig()
	cfg.Zotero.DataDir = dir
	cfg.Data.Dir = filepath.Join(dir, "data")
	cfg.Extract.PersonalOnly = true

	lc, err := cfg.LibraryConfig()
	if err != nil {
		t.Fatalf("LibraryConfig: %v", err)
	}
	if lc.Source != filepath.Join(dir, "zotero.sqlite") || lc.StorageRoot != filepath.Join(dir, "storage") {
		t.Errorf("paths = %+v", lc)
	}
	if !lc.PersonalOnly || lc.Schema.Table != "zotquery" {
		t.Errorf("library config = %+v", lc)
	}

	cfg.Zotero.DataDir = filepath.Join(dir, "missing")
	if _, err := cfg.LibraryConfig(); err == nil {
		t.Error("missing database should fail")
	}
}
