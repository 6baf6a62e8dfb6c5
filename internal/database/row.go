package database

import (
	"database/sql/driver"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/koustreak/datchat/internal/errs"
)

// MaxStringLength caps each text value in the rendered result. Longer values
// are cut and end in "...". The Result itself keeps the full value.
const MaxStringLength = 300

// Result is the materialised output of one query.
type Result struct {
	Columns []string
	Rows    [][]any

	// Truncated is set when rows past the scan limit were dropped.
	Truncated bool
}

// Decimal is an exact numeric value held as its decimal text, such as a
// PostgreSQL numeric. It renders unquoted.
type Decimal string

// Len returns the number of rows.
func (r *Result) Len() int {
	if r == nil {
		return 0
	}
	return len(r.Rows)
}

// Maps returns the rows keyed by column name.
func (r *Result) Maps() []map[string]any {
	out := make([]map[string]any, 0, r.Len())
	if r == nil {
		return out
	}
	for _, row := range r.Rows {
		m := make(map[string]any, len(r.Columns))
		for i, col := range r.Columns {
			m[col] = row[i]
		}
		out = append(out, m)
	}
	return out
}

// String renders the rows as a list of tuples, e.g. [(3503,)] or
// [(1, 'AC/DC'), (2, 'Accept')]. This is the result text the response
// model receives.
func (r *Result) String() string {
	if r == nil {
		return "[]"
	}
	var sb strings.Builder
	sb.WriteByte('[')
	for i, row := range r.Rows {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteByte('(')
		for j, v := range row {
			if j > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(formatValue(v))
		}
		if len(row) == 1 {
			sb.WriteByte(',')
		}
		sb.WriteByte(')')
	}
	sb.WriteByte(']')
	return sb.String()
}

func formatValue(v any) string {
	switch x := v.(type) {
	case nil:
		return "None"
	case Decimal:
		return string(x)
	case string:
		return quoteText(x)
	case []byte:
		return quoteText(string(x))
	case bool:
		if x {
			return "True"
		}
		return "False"
	case float32:
		return strconv.FormatFloat(float64(x), 'f', -1, 32)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case time.Time:
		return quoteText(x.Format(time.RFC3339Nano))
	case driver.Valuer:
		val, err := x.Value()
		if err != nil {
			return fmt.Sprint(x)
		}
		return formatValue(val)
	case fmt.Stringer:
		return quoteText(x.String())
	default:
		return fmt.Sprint(x)
	}
}

func quoteText(s string) string {
	if r := []rune(s); len(r) > MaxStringLength {
		s = string(r[:MaxStringLength]) + "..."
	}
	return "'" + strings.ReplaceAll(s, "'", `\'`) + "'"
}

// ScanRows reads all rows from the result set into a Result.
//
// The returned Rows slice is always non-nil (empty on zero rows).
// ScanRows always closes the Rows, callers do not need to call Close().
func ScanRows(rows Rows) (*Result, error) {
	return ScanRowsLimit(rows, 0)
}

// ScanRowsLimit is ScanRows keeping at most limit rows; further rows are
// skipped and Truncated is set. A limit of zero or less keeps every row.
func ScanRowsLimit(rows Rows, limit int) (*Result, error) {
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, errs.Wrap(errs.ErrKindQueryFailed, "failed to read column names", err)
	}

	result := &Result{Columns: columns, Rows: make([][]any, 0)}

	for rows.Next() {
		if limit > 0 && len(result.Rows) == limit {
			result.Truncated = true
			break
		}

		// Allocate scan targets as *any so the driver can write any type.
		dest := make([]any, len(columns))
		destPtrs := make([]any, len(columns))
		for i := range dest {
			destPtrs[i] = &dest[i]
		}

		if err := rows.Scan(destPtrs...); err != nil {
			return nil, errs.Wrap(errs.ErrKindQueryFailed, "failed to scan row", err)
		}
		for i, v := range dest {
			if b, ok := v.([]byte); ok {
				dest[i] = string(b)
			}
		}
		result.Rows = append(result.Rows, dest)
	}

	if err := rows.Err(); err != nil {
		return nil, errs.Wrap(errs.ErrKindQueryFailed, "error during row iteration", err)
	}

	return result, nil
}

// ScanStrings drains a result set of one text column, such as a table listing.
// It always closes the Rows.
func ScanStrings(rows Rows) ([]string, error) {
	defer rows.Close()

	var list []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, errs.Wrap(errs.ErrKindQueryFailed, "failed to scan value", err)
		}
		list = append(list, s)
	}
	if err := rows.Err(); err != nil {
		return nil, errs.Wrap(errs.ErrKindQueryFailed, "error during row iteration", err)
	}
	return list, nil
}
