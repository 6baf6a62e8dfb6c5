package config

import (
	"github.com/spf13/pflag"
)

// Flag names bound by RegisterFlags.
const (
	FlagMode             = "mode"
	FlagEngine           = "engine"
	FlagDatabaseFile     = "database-file"
	FlagSQLiteDir        = "sqlite-dir"
	FlagSchemaFile       = "schema-file"
	FlagMaxRegenerations = "max-regenerations"
	FlagLogLevel         = "log-level"
	FlagLogDir           = "log-dir"
	FlagAddress          = "addr"
	FlagVerifyEndpoints  = "verify-endpoints"
)

// RegisterFlags adds the overridable settings to fs. Defaults shown in help
// are informational; only flags the user sets are applied.
func RegisterFlags(fs *pflag.FlagSet) {
	def := Default()
	fs.String(FlagMode, def.Mode, "answering mode: standard or schema")
	fs.String(FlagEngine, def.Connection.Engine, "database engine: sqlite, postgresql or mysql")
	fs.String(FlagDatabaseFile, "", "SQLite database file name inside --sqlite-dir")
	fs.String(FlagSQLiteDir, def.Connection.SQLiteDir, "directory holding SQLite database files")
	fs.String(FlagSchemaFile, "", "schema text file for schema mode")
	fs.Int(FlagMaxRegenerations, def.Pipeline.MaxRegenerations, "extra generation attempts after a query fails to run")
	fs.String(FlagLogLevel, def.Log.Level, "log level: debug, info, warn or error")
	fs.String(FlagLogDir, "", "directory for per-session log files")
	fs.String(FlagAddress, def.Server.Address, "HTTP listen address for serve")
	fs.Bool(FlagVerifyEndpoints, false, "probe both model servers before answering")
}

// ApplyFlags copies every flag the user changed onto c.
func (c *Config) ApplyFlags(fs *pflag.FlagSet) error {
	if fs == nil {
		return nil
	}
	strs := map[string]*string{
		FlagMode:         &c.Mode,
		FlagEngine:       &c.Connection.Engine,
		FlagDatabaseFile: &c.Connection.Filename,
		FlagSQLiteDir:    &c.Connection.SQLiteDir,
		FlagSchemaFile:   &c.Schema.File,
		FlagLogLevel:     &c.Log.Level,
		FlagLogDir:       &c.Log.Dir,
		FlagAddress:      &c.Server.Address,
	}
	for name, dst := range strs {
		if fs.Lookup(name) == nil || !fs.Changed(name) {
			continue
		}
		v, err := fs.GetString(name)
		if err != nil {
			return err
		}
		*dst = v
	}

	if fs.Lookup(FlagMaxRegenerations) != nil && fs.Changed(FlagMaxRegenerations) {
		v, err := fs.GetInt(FlagMaxRegenerations)
		if err != nil {
			return err
		}
		c.Pipeline.MaxRegenerations = v
	}
	if fs.Lookup(FlagVerifyEndpoints) != nil && fs.Changed(FlagVerifyEndpoints) {
		v, err := fs.GetBool(FlagVerifyEndpoints)
		if err != nil {
			return err
		}
		c.VerifyEndpoints = v
	}
	return nil
}
