package pipeline

import (
	"strings"

	"github.com/koustreak/datchat/internal/errs"
)

// Mode selects how a question is answered.
type Mode string

const (
	// ModeStandard generates SQL against a live database, runs it and
	// answers from the rows.
	ModeStandard Mode = "standard"
	// ModeSchema generates SQL from schema text alone and never executes it.
	ModeSchema Mode = "schema"
)

// ParseMode accepts "standard" and "schema" in any casing. "schema_mode" is
// accepted as an alias.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", string(ModeStandard):
		return ModeStandard, nil
	case string(ModeSchema), "schema_mode":
		return ModeSchema, nil
	default:
		return "", errs.Newf(errs.ErrKindConfiguration, "unknown mode %q: expected standard or schema", s)
	}
}

// State is a step of one turn.
type State string

const (
	StateGenerating       State = "GENERATING"
	StateValidatingSafety State = "VALIDATING_SAFETY"
	StateNormalizing      State = "NORMALIZING"
	StateTesting          State = "TESTING"
	StateRegenerating     State = "REGENERATING"
	StateSucceeded        State = "SUCCEEDED"
	StateFailed           State = "FAILED"
)

// Terminal reports whether no transition leaves s.
func (s State) Terminal() bool {
	return s == StateSucceeded || s == StateFailed
}
