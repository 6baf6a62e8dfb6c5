// Package config loads the datchat configuration bundle.
//
// Values are layered, later sources winning: built-in defaults, the YAML
// file, DATCHAT_* environment variables, then command-line flags.
package config

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"strings"
	"time"

	"go.yaml.in/yaml/v3"

	"github.com/koustreak/datchat/internal/database"
	"github.com/koustreak/datchat/internal/errs"
	"github.com/koustreak/datchat/internal/filestore"
	"github.com/koustreak/datchat/internal/llm"
	"github.com/koustreak/datchat/internal/logger"
	"github.com/koustreak/datchat/internal/pipeline"
	"github.com/koustreak/datchat/internal/prompt"
)

// DefaultFile is read when no --config path is given and it exists.
const DefaultFile = "datchat.yaml"

// Config is the full bundle as written in datchat.yaml.
type Config struct {
	Mode            string            `yaml:"mode"`
	Connection      ConnectionConfig  `yaml:"connection"`
	Schema          SchemaConfig      `yaml:"schema"`
	ObjectStore     ObjectStoreConfig `yaml:"object_store"`
	Models          ModelsConfig      `yaml:"models"`
	Prompts         PromptsConfig     `yaml:"prompts"`
	Pipeline        PipelineConfig    `yaml:"pipeline"`
	Log             LogConfig         `yaml:"log"`
	Server          ServerConfig      `yaml:"server"`
	VerifyEndpoints bool              `yaml:"verify_endpoints"`
}

// ConnectionConfig describes the live database of standard mode.
type ConnectionConfig struct {
	Engine    string `yaml:"engine"`
	Filename  string `yaml:"filename"`
	SQLiteDir string `yaml:"sqlite_dir"`
	Username  string `yaml:"username"`
	Password  string `yaml:"password"`
	Host      string `yaml:"host"`
	Port      int    `yaml:"port"`
	Database  string `yaml:"database"`
	SSLMode   string `yaml:"sslmode"`

	// Object fetches the SQLite file from the object store before opening.
	Object filestore.ObjectRef `yaml:"object"`
}

// SchemaConfig supplies the schema text of schema mode. The first non-empty
// source wins, in field order.
type SchemaConfig struct {
	Text   string              `yaml:"text"`
	File   string              `yaml:"file"`
	Object filestore.ObjectRef `yaml:"object"`
}

// ObjectStoreConfig points at a MinIO server.
type ObjectStoreConfig struct {
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	UseSSL    bool   `yaml:"use_ssl"`
	Region    string `yaml:"region"`
	Bucket    string `yaml:"bucket"`
}

// ModelsConfig holds one endpoint config per model role.
type ModelsConfig struct {
	SQL      llm.ModelConfig `yaml:"sql"`
	Response llm.ModelConfig `yaml:"response"`
}

// PromptsConfig holds each template inline or as a file path. A file wins
// over inline text; a template given neither way uses the built-in default.
type PromptsConfig struct {
	SQL          string `yaml:"sql"`
	SQLFile      string `yaml:"sql_file"`
	Response     string `yaml:"response"`
	ResponseFile string `yaml:"response_file"`
	Regen        string `yaml:"regen"`
	RegenFile    string `yaml:"regen_file"`
}

// PipelineConfig tunes the regeneration loop and query execution.
type PipelineConfig struct {
	MaxRegenerations int           `yaml:"max_regenerations"`
	QueryTimeout     time.Duration `yaml:"query_timeout"`
	MaxResultRows    int           `yaml:"max_result_rows"`
}

// LogConfig configures the process logger and the per-session log file.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Dir    string `yaml:"dir"`
}

// ServerConfig configures `datchat serve`.
type ServerConfig struct {
	Address           string        `yaml:"address"`
	ReadTimeout       time.Duration `yaml:"read_timeout"`
	WriteTimeout      time.Duration `yaml:"write_timeout"`
	IdleTimeout       time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout   time.Duration `yaml:"shutdown_timeout"`
	RequestsPerSecond float64       `yaml:"requests_per_second"`
	Burst             int           `yaml:"burst"`
}

// Default returns the configuration used when nothing else is given.
func Default() *Config {
	return &Config{
		Mode: string(pipeline.ModeStandard),
		Connection: ConnectionConfig{
			Engine:    string(database.EngineSQLite),
			SQLiteDir: database.DefaultSQLiteDir,
		},
		Models: ModelsConfig{
			SQL:      llm.ModelConfig{BaseURL: llm.DefaultBaseURL, Temperature: 0},
			Response: llm.ModelConfig{BaseURL: llm.DefaultBaseURL, Temperature: 0.7},
		},
		Pipeline: PipelineConfig{
			MaxRegenerations: pipeline.DefaultMaxRegenerations,
			QueryTimeout:     30 * time.Second,
			MaxResultRows:    database.DefaultMaxResultRows,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
		Server: ServerConfig{
			Address:           ":8080",
			ReadTimeout:       10 * time.Second,
			WriteTimeout:      5 * time.Minute,
			IdleTimeout:       60 * time.Second,
			ShutdownTimeout:   15 * time.Second,
			RequestsPerSecond: 2,
			Burst:             4,
		},
	}
}

// Load reads path (or DefaultFile when path is empty and the file exists)
// over the defaults, then applies environment overrides from lookup.
func Load(path string, lookup LookupFunc) (*Config, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		path = DefaultFile
	}
	raw, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := decode(raw, cfg); err != nil {
			return nil, errs.Wrap(errs.ErrKindConfiguration, "invalid config file "+path, err)
		}
	case errors.Is(err, os.ErrNotExist) && !explicit:
	default:
		return nil, errs.Wrap(errs.ErrKindConfiguration, "cannot read config file "+path, err)
	}

	if lookup != nil {
		if err := applyEnv(cfg, lookup); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

// decode rejects unknown keys so typos do not silently fall back to defaults.
func decode(raw []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// Validate checks enumerations and the fields each mode requires.
func (c *Config) Validate() error {
	mode, err := pipeline.ParseMode(c.Mode)
	if err != nil {
		return err
	}
	if c.Pipeline.MaxRegenerations < 0 {
		return errs.Newf(errs.ErrKindConfiguration, "pipeline.max_regenerations must not be negative, got %d", c.Pipeline.MaxRegenerations)
	}
	switch c.Log.Format {
	case "", "json", "console":
	default:
		return errs.Newf(errs.ErrKindConfiguration, "log.format must be json or console, got %q", c.Log.Format)
	}
	if c.Server.RequestsPerSecond < 0 || c.Server.Burst < 0 {
		return errs.New(errs.ErrKindConfiguration, "server rate limits must not be negative")
	}

	needsStore := false
	switch mode {
	case pipeline.ModeStandard:
		conn, err := c.DatabaseConfig()
		if err != nil {
			return err
		}
		if err := conn.Validate(); err != nil {
			return err
		}
		needsStore = !c.Connection.Object.IsZero()
	case pipeline.ModeSchema:
		s := c.Schema
		if strings.TrimSpace(s.Text) == "" && s.File == "" && s.Object.IsZero() {
			return errs.New(errs.ErrKindConfiguration, "schema mode requires schema.text, schema.file or schema.object")
		}
		needsStore = strings.TrimSpace(s.Text) == "" && s.File == ""
	}
	if needsStore {
		if err := c.StoreConfig().Validate(); err != nil {
			return err
		}
	}
	return nil
}

// DatabaseConfig converts the connection section.
func (c *Config) DatabaseConfig() (database.ConnectionConfig, error) {
	engine, err := database.ParseEngine(c.Connection.Engine)
	if err != nil {
		return database.ConnectionConfig{}, err
	}
	return database.ConnectionConfig{
		Engine:        engine,
		Filename:      c.Connection.Filename,
		Dir:           c.Connection.SQLiteDir,
		Username:      c.Connection.Username,
		Password:      c.Connection.Password,
		Host:          c.Connection.Host,
		Port:          c.Connection.Port,
		Database:      c.Connection.Database,
		SSLMode:       c.Connection.SSLMode,
		QueryTimeout:  c.Pipeline.QueryTimeout,
		MaxResultRows: c.Pipeline.MaxResultRows,
	}, nil
}

// StoreConfig converts the object_store section.
func (c *Config) StoreConfig() *filestore.Config {
	return &filestore.Config{
		Provider:      filestore.ProviderMinIO,
		Endpoint:      c.ObjectStore.Endpoint,
		AccessKey:     c.ObjectStore.AccessKey,
		SecretKey:     c.ObjectStore.SecretKey,
		UseSSL:        c.ObjectStore.UseSSL,
		Region:        c.ObjectStore.Region,
		DefaultBucket: c.ObjectStore.Bucket,
	}
}

// SQLiteObject is the object the SQLite file is fetched from, with the
// default bucket applied. It is zero when no object is configured.
func (c *Config) SQLiteObject() filestore.ObjectRef {
	return c.Connection.Object.Resolve(c.StoreConfig())
}

// LoggerConfig converts the log section. out receives the log lines.
func (c *Config) LoggerConfig(out io.Writer) *logger.Config {
	lc := logger.DefaultConfig()
	if c.Log.Level != "" {
		lc.Level = c.Log.Level
	}
	if c.Log.Format != "" {
		lc.Format = c.Log.Format
	}
	if out != nil {
		lc.Output = out
	}
	return lc
}

// ResolvePrompts reads prompt files and fills missing templates with the
// built-in defaults. It does not validate placeholders.
func (c *Config) ResolvePrompts() (prompt.Set, error) {
	def := prompt.Default()
	set := prompt.Set{}

	var err error
	if set.SQL, err = pick(c.Prompts.SQL, c.Prompts.SQLFile, def.SQL); err != nil {
		return prompt.Set{}, err
	}
	if set.Response, err = pick(c.Prompts.Response, c.Prompts.ResponseFile, def.Response); err != nil {
		return prompt.Set{}, err
	}
	if set.Regen, err = pick(c.Prompts.Regen, c.Prompts.RegenFile, def.Regen); err != nil {
		return prompt.Set{}, err
	}
	return set, nil
}

func pick(inline, file, fallback string) (string, error) {
	if file != "" {
		raw, err := os.ReadFile(file)
		if err != nil {
			return "", errs.Wrap(errs.ErrKindConfiguration, "cannot read prompt file "+file, err)
		}
		return string(raw), nil
	}
	if strings.TrimSpace(inline) != "" {
		return inline, nil
	}
	return fallback, nil
}

// SchemaText returns the schema of schema mode from the first configured
// source. store is only used for schema.object and may be nil otherwise.
func (c *Config) SchemaText(ctx context.Context, store filestore.Store) (string, error) {
	s := c.Schema
	switch {
	case strings.TrimSpace(s.Text) != "":
		return s.Text, nil
	case s.File != "":
		raw, err := os.ReadFile(s.File)
		if err != nil {
			return "", errs.Wrap(errs.ErrKindConfiguration, "cannot read schema file "+s.File, err)
		}
		return string(raw), nil
	case !s.Object.IsZero():
		if store == nil {
			return "", errs.New(errs.ErrKindConfiguration, "schema.object requires an object_store")
		}
		return filestore.ReadText(ctx, store, s.Object.Resolve(c.StoreConfig()))
	default:
		return "", errs.New(errs.ErrKindConfiguration, "no schema source configured")
	}
}

// NeedsStore reports whether the active mode reads from the object store.
func (c *Config) NeedsStore() bool {
	mode, _ := pipeline.ParseMode(c.Mode)
	if mode == pipeline.ModeSchema {
		return strings.TrimSpace(c.Schema.Text) == "" && c.Schema.File == "" && !c.Schema.Object.IsZero()
	}
	return !c.Connection.Object.IsZero()
}

// PipelineConfig builds the immutable pipeline bundle. The schema text is
// only resolved in schema mode.
func (c *Config) PipelineConfig(ctx context.Context, store filestore.Store) (pipeline.Config, error) {
	mode, err := pipeline.ParseMode(c.Mode)
	if err != nil {
		return pipeline.Config{}, err
	}
	prompts, err := c.ResolvePrompts()
	if err != nil {
		return pipeline.Config{}, err
	}

	pc := pipeline.Config{
		Mode:             mode,
		Prompts:          prompts,
		SQLModel:         c.Models.SQL,
		ResponseModel:    c.Models.Response,
		MaxRegenerations: c.Pipeline.MaxRegenerations,
		VerifyEndpoints:  c.VerifyEndpoints,
	}
	if mode == pipeline.ModeSchema {
		if pc.SchemaText, err = c.SchemaText(ctx, store); err != nil {
			return pipeline.Config{}, err
		}
	}
	return pc, nil
}

// AskTimeout bounds one /v1/ask turn: every SQL attempt with its query,
// then the answer.
func (c *Config) AskTimeout() time.Duration {
	modelTimeout := func(m llm.ModelConfig) time.Duration {
		if m.Timeout <= 0 {
			return llm.DefaultTimeout
		}
		return m.Timeout
	}
	attempts := time.Duration(c.Pipeline.MaxRegenerations + 1)
	return attempts*(modelTimeout(c.Models.SQL)+c.Pipeline.QueryTimeout) + modelTimeout(c.Models.Response)
}

// Redacted returns a copy that is safe to log: the database password is
// replaced by its SHA-256 digest and keys are masked.
func (c *Config) Redacted() *Config {
	r := *c
	if r.Connection.Password != "" {
		r.Connection.Password = database.HashSecret(r.Connection.Password)
	}
	if r.ObjectStore.SecretKey != "" {
		r.ObjectStore.SecretKey = "****"
	}
	r.Models.SQL = r.Models.SQL.Redacted()
	r.Models.Response = r.Models.Response.Redacted()
	return &r
}

// Fields flattens the redacted settings that matter when reading a session
// log.
func (c *Config) Fields() map[string]interface{} {
	r := c.Redacted()
	fields := map[string]interface{}{
		"mode":              r.Mode,
		"sql_model":         r.Models.SQL.Model,
		"sql_base_url":      r.Models.SQL.BaseURL,
		"sql_api_key":       r.Models.SQL.APIKey,
		"response_model":    r.Models.Response.Model,
		"response_base_url": r.Models.Response.BaseURL,
		"response_api_key":  r.Models.Response.APIKey,
		"max_regenerations": r.Pipeline.MaxRegenerations,
	}
	if mode, _ := pipeline.ParseMode(r.Mode); mode == pipeline.ModeStandard {
		if conn, err := c.DatabaseConfig(); err == nil {
			fields["database"] = conn.RedactedAddress()
		}
	}
	return fields
}
