package database

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net"
	"net/url"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/koustreak/datchat/internal/errs"
)

// Engine identifies the database engine behind a connection.
type Engine string

const (
	EngineSQLite   Engine = "sqlite"
	EnginePostgres Engine = "postgresql"
	EngineMySQL    Engine = "mysql"
)

// DefaultSQLiteDir is where SQLite database files are looked up.
const DefaultSQLiteDir = "sqlite"

// DefaultMaxResultRows is the row cap of one query result.
const DefaultMaxResultRows = 1000

// ParseEngine accepts the engine names used in config files and forms
// ("SQLite", "PostgreSQL", "postgres", …) case-insensitively.
func ParseEngine(s string) (Engine, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "sqlite", "sqlite3":
		return EngineSQLite, nil
	case "postgresql", "postgres", "pg":
		return EnginePostgres, nil
	case "mysql":
		return EngineMySQL, nil
	default:
		return "", errs.Newf(errs.ErrKindConfiguration, "unsupported database engine %q", s)
	}
}

// Dialect returns the SQL dialect spoken by the engine.
func (e Engine) Dialect() Dialect {
	switch e {
	case EnginePostgres:
		return DialectPostgres
	case EngineMySQL:
		return DialectMySQL
	default:
		return DialectSQLite
	}
}

// ConnectionConfig holds everything needed to connect to one database.
// It is immutable once handed to the pipeline.
type ConnectionConfig struct {
	Engine Engine

	// SQLite
	Filename string
	Dir      string // directory holding Filename, DefaultSQLiteDir when empty

	// PostgreSQL / MySQL
	Username string
	Password string
	Host     string
	Port     int
	Database string
	SSLMode  string

	// Pool tuning
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration

	// Timeouts
	ConnectTimeout time.Duration // time limit for establishing a new connection
	QueryTimeout   time.Duration // per-query deadline applied by Handle.Run

	// MaxResultRows caps the rows Handle.Run keeps, DefaultMaxResultRows when zero.
	MaxResultRows int
}

// WithDefaults fills unset pool, port and timeout settings.
func (c ConnectionConfig) WithDefaults() ConnectionConfig {
	if c.Dir == "" {
		c.Dir = DefaultSQLiteDir
	}
	if c.Port == 0 {
		switch c.Engine {
		case EnginePostgres:
			c.Port = 5432
		case EngineMySQL:
			c.Port = 3306
		}
	}
	if c.SSLMode == "" {
		c.SSLMode = "disable"
	}
	if c.MaxConns == 0 {
		c.MaxConns = 4
	}
	if c.MinConns == 0 {
		c.MinConns = 1
	}
	if c.MaxConnLifetime == 0 {
		c.MaxConnLifetime = 30 * time.Minute
	}
	if c.MaxConnIdleTime == 0 {
		c.MaxConnIdleTime = 5 * time.Minute
	}
	if c.ConnectTimeout == 0 {
		c.ConnectTimeout = 10 * time.Second
	}
	if c.MaxResultRows == 0 {
		c.MaxResultRows = DefaultMaxResultRows
	}
	if c.QueryTimeout == 0 {
		c.QueryTimeout = 30 * time.Second
	}
	return c
}

// Validate checks that the fields required by the engine are present.
func (c ConnectionConfig) Validate() error {
	if c.MaxResultRows < 0 {
		return errs.Newf(errs.ErrKindConfiguration, "max result rows must not be negative, got %d", c.MaxResultRows)
	}
	switch c.Engine {
	case EngineSQLite:
		if strings.TrimSpace(c.Filename) == "" {
			return errs.New(errs.ErrKindConfiguration, "sqlite connection requires a filename")
		}
	case EnginePostgres, EngineMySQL:
		var missing []string
		if c.Username == "" {
			missing = append(missing, "username")
		}
		if c.Host == "" {
			missing = append(missing, "host")
		}
		if c.Database == "" {
			missing = append(missing, "database")
		}
		if len(missing) > 0 {
			return errs.Newf(errs.ErrKindConfiguration, "%s connection is missing %s", c.Engine, strings.Join(missing, ", "))
		}
		if c.Port < 0 || c.Port > 65535 {
			return errs.Newf(errs.ErrKindConfiguration, "invalid port %d", c.Port)
		}
	default:
		return errs.Newf(errs.ErrKindConfiguration, "unsupported database engine %q", c.Engine)
	}
	return nil
}

// SQLitePath is the on-disk location of the SQLite database file.
func (c ConnectionConfig) SQLitePath() string {
	dir := c.Dir
	if dir == "" {
		dir = DefaultSQLiteDir
	}
	return path.Join(dir, c.Filename)
}

// Address renders the connection as a URL:
//
//	sqlite:///sqlite/<filename>
//	postgresql://<user>:<password>@<host>:<port>/<database>
//	mysql://<user>:<password>@<host>:<port>/<database>
func (c ConnectionConfig) Address() string {
	return c.address(c.Password)
}

// RedactedAddress is Address with the password replaced by its SHA-256 digest,
// safe for log files.
func (c ConnectionConfig) RedactedAddress() string {
	if c.Password == "" {
		return c.Address()
	}
	return c.address(HashSecret(c.Password))
}

func (c ConnectionConfig) address(password string) string {
	c = c.WithDefaults()
	if c.Engine == EngineSQLite {
		return "sqlite:///" + c.SQLitePath()
	}
	u := url.URL{
		Scheme: string(c.Engine),
		User:   url.UserPassword(c.Username, password),
		Host:   net.JoinHostPort(c.Host, strconv.Itoa(c.Port)),
		Path:   "/" + c.Database,
	}
	return u.String()
}

// PostgresDSN is the URL form accepted by pgxpool.ParseConfig.
func (c ConnectionConfig) PostgresDSN() string {
	c = c.WithDefaults()
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.Username, c.Password),
		Host:     net.JoinHostPort(c.Host, strconv.Itoa(c.Port)),
		Path:     "/" + c.Database,
		RawQuery: "sslmode=" + url.QueryEscape(c.SSLMode),
	}
	return u.String()
}

// SQLiteDSN opens the database file read-only; a missing file fails instead
// of being created.
func (c ConnectionConfig) SQLiteDSN() string {
	return fmt.Sprintf("file:%s?mode=ro", c.SQLitePath())
}

// HashSecret returns the hex SHA-256 digest of s.
func HashSecret(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}
