package pipeline

import (
	"strings"

	"github.com/koustreak/datchat/internal/errs"
	"github.com/koustreak/datchat/internal/llm"
	"github.com/koustreak/datchat/internal/prompt"
)

// DefaultMaxRegenerations allows three generation attempts per turn.
const DefaultMaxRegenerations = 2

// Config is the immutable bundle a Pipeline is built from. The database
// connection is supplied separately through Options.OpenDB.
type Config struct {
	Mode          Mode
	Prompts       prompt.Set
	SQLModel      llm.ModelConfig
	ResponseModel llm.ModelConfig

	// MaxRegenerations bounds the extra generation attempts made after a
	// query fails to execute. Zero disables regeneration.
	MaxRegenerations int

	// SchemaText is the schema handed to the generator in schema mode.
	SchemaText string

	// VerifyEndpoints probes both model servers during Setup.
	VerifyEndpoints bool
}

// Validate checks the fields that do not belong to a sub-config. Prompts and
// model configs are validated by Setup in a fixed order.
func (c Config) Validate() error {
	switch c.Mode {
	case ModeStandard, ModeSchema:
	default:
		return errs.Newf(errs.ErrKindConfiguration, "unknown mode %q: expected standard or schema", c.Mode)
	}
	if c.MaxRegenerations < 0 {
		return errs.Newf(errs.ErrKindConfiguration, "max_regenerations must not be negative, got %d", c.MaxRegenerations)
	}
	if c.Mode == ModeSchema && strings.TrimSpace(c.SchemaText) == "" {
		return errs.New(errs.ErrKindConfiguration, "Database schema is required in schema mode.")
	}
	return nil
}
