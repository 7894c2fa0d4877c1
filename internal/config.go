package internal

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/zotindex/internal/fts"
	"github.com/starford/zotindex/internal/library"
	"github.com/starford/zotindex/internal/zotero"
)

// Auth modes.
const (
	AuthModeDisabled = "disabled"
	AuthModeToken    = "token"
)

var identRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Config represents the application configuration.
type Config struct {
	App     ApplicationConfig `yaml:"app"`
	Zotero  ZoteroConfig      `yaml:"zotero"`
	Data    DataConfig        `yaml:"data"`
	Extract ExtractConfig     `yaml:"extract"`
	Search  SearchConfig      `yaml:"search"`
	Watch   WatchConfig       `yaml:"watch"`
	Auth    AuthConfig        `yaml:"auth"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.App.Validate(); err != nil {
		return err
	}
	if err := c.Data.Validate(); err != nil {
		return err
	}
	if err := c.Extract.Validate(); err != nil {
		return err
	}
	if err := c.Search.Validate(); err != nil {
		return err
	}
	if err := c.Watch.Validate(); err != nil {
		return err
	}
	return c.Auth.Validate()
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel slog.Level `yaml:"log_level"`
	HTTP     HTTPConfig `yaml:"http"`
}

// Validate validates the application configuration.
func (c *ApplicationConfig) Validate() error {
	return c.HTTP.Validate()
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	Port int `yaml:"port"`
}

// Address returns HTTP server address.
func (c *HTTPConfig) Address() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Validate validates the HTTP configuration.
func (c *HTTPConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Port, validation.Required, validation.Min(1), validation.Max(65535)),
	)
}

// ZoteroConfig locates the live Zotero library. Database and Storage
// default to zotero.sqlite and storage/ inside DataDir.
type ZoteroConfig struct {
	DataDir  string `yaml:"data_dir"`
	Database string `yaml:"database"`
	Storage  string `yaml:"storage"`
}

// DataConfig holds the directory for the mirror, cache and indexes.
type DataConfig struct {
	Dir string `yaml:"dir"`
}

// Validate validates the data configuration.
func (c *DataConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Dir, validation.Required),
	)
}

// ExtractConfig tunes which items and attachments are extracted.
type ExtractConfig struct {
	PersonalOnly    bool     `yaml:"personal_only"`
	ExcludedTypeIDs []int    `yaml:"excluded_type_ids"`
	AttachmentExts  []string `yaml:"attachment_extensions"`
}

// Validate validates the extract configuration.
func (c *ExtractConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.ExcludedTypeIDs, validation.Each(validation.Min(1))),
		validation.Field(&c.AttachmentExts, validation.Each(validation.Required, validation.Match(regexp.MustCompile(`^\.[A-Za-z0-9]+$`)))),
	)
}

// SearchConfig overrides the indexed columns. An empty list selects the
// built-in general scope.
type SearchConfig struct {
	Columns []ColumnConfig `yaml:"columns"`
}

// Validate validates the search configuration.
func (c *SearchConfig) Validate() error {
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Columns),
	); err != nil {
		return err
	}
	if len(c.Columns) == 0 {
		return nil
	}
	_, err := c.Schema()
	return err
}

// Schema builds the index schema.
func (c *SearchConfig) Schema() (fts.Schema, error) {
	if len(c.Columns) == 0 {
		return fts.DefaultSchema(), nil
	}
	s := fts.Schema{Table: fts.DefaultTable}
	for _, col := range c.Columns {
		var p fts.Path
		var err error
		if len(col.Fallback) > 0 {
			p, err = fts.ParseFallback(col.Fallback)
		} else {
			p, err = fts.ParsePath(col.Path)
		}
		if err != nil {
			return fts.Schema{}, fmt.Errorf("search: column %s: %w", col.Name, err)
		}
		s.Columns = append(s.Columns, fts.Column{Name: col.Name, Path: p, Weight: col.Weight})
	}
	if err := s.Validate(); err != nil {
		return fts.Schema{}, fmt.Errorf("search: %w", err)
	}
	return s, nil
}

// ColumnConfig is one indexed column: either a path ("data.title",
// "key") or a fallback list of key.subkey paths.
type ColumnConfig struct {
	Name     string   `yaml:"name"`
	Path     string   `yaml:"path"`
	Fallback []string `yaml:"fallback"`
	Weight   float64  `yaml:"weight"`
}

// Validate validates the column configuration.
func (c ColumnConfig) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Name, validation.Required, validation.Match(identRe)),
		validation.Field(&c.Path, validation.When(len(c.Fallback) == 0, validation.Required)),
		validation.Field(&c.Weight, validation.Min(0.0)),
	)
}

// WatchConfig controls the source database watcher used by serve.
type WatchConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Debounce time.Duration `yaml:"debounce"`
}

// Validate validates the watch configuration.
func (c *WatchConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Debounce, validation.Min(time.Duration(0))),
	)
}

// AuthConfig holds authentication configuration.
//
// Mode controls how authentication is enforced:
//   - "disabled" (default): no authentication required, suitable for local use.
//   - "token": Bearer token authentication; Token must be non-empty.
type AuthConfig struct {
	Mode  string `yaml:"mode"`
	Token string `yaml:"token"`
}

// Validate validates the auth configuration.
func (c *AuthConfig) Validate() error {
	if c.Mode == "" {
		c.Mode = AuthModeDisabled
	}
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Mode, validation.Required, validation.In(AuthModeDisabled, AuthModeToken)),
	); err != nil {
		return err
	}
	if c.Mode == AuthModeToken && c.Token == "" {
		return fmt.Errorf("auth: mode is %q but token is empty", AuthModeToken)
	}
	return nil
}

// AuthEnabled returns true when authentication is active.
func (c *AuthConfig) AuthEnabled() bool {
	return c.Mode == AuthModeToken
}

// LibraryConfig resolves the Zotero paths and builds the library settings.
func (c *Config) LibraryConfig() (library.Config, error) {
	paths, err := zotero.ResolvePaths(c.Zotero.DataDir, c.Zotero.Database, c.Zotero.Storage)
	if err != nil {
		return library.Config{}, err
	}
	schema, err := c.Search.Schema()
	if err != nil {
		return library.Config{}, err
	}
	return library.Config{
		Source:          paths.Database,
		StorageRoot:     paths.Storage,
		DataDir:         c.Data.Dir,
		ExcludedTypeIDs: c.Extract.ExcludedTypeIDs,
		AttachmentExts:  c.Extract.AttachmentExts,
		PersonalOnly:    c.Extract.PersonalOnly,
		Schema:          schema,
	}, nil
}

func defaultDataDir() string {
	dir, err := os.UserCacheDir()
	if err != nil {
		return "./zotindex-data"
	}
	return filepath.Join(dir, "zotindex")
}

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	return &Config{
		App: ApplicationConfig{
			LogLevel: slog.LevelInfo,
			HTTP: HTTPConfig{
				Port: 8080,
			},
		},
		Zotero: ZoteroConfig{
			DataDir: zotero.DefaultDataDir(),
		},
		Data: DataConfig{
			Dir: defaultDataDir(),
		},
		Watch: WatchConfig{
			Enabled:  true,
			Debounce: library.DefaultDebounce,
		},
		Auth: AuthConfig{
			Mode: AuthModeDisabled,
		},
	}
}
