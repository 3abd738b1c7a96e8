// Package sql implements the parameterized SQL layer: template
// registry, placeholder substitution, injection screening of bind
// values, and the final safety validator that stamps an AnalyticsIR as
// executable.
package sql

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/servicelens-inc/servicelens-engine/pkg/logging"
	"github.com/servicelens-inc/servicelens-engine/pkg/models"
)

var (
	// ErrMultipleStatements indicates the query contains multiple SQL statements.
	ErrMultipleStatements = errors.New("multiple SQL statements not allowed; only single statements are permitted")
)

var (
	districtPositionalRe = regexp.MustCompile(`(?i)district_key\s*=\s*\$\d+`)
	districtLiteralRe    = regexp.MustCompile(`(?i)district_key\s*=\s*'(?:[^']|'')*'`)
	limitRe              = regexp.MustCompile(`(?i)\blimit\b`)
)

// Validator is the last gate before execution. Nothing it rejects is
// re-asked or patched upstream; the turn fails closed.
type Validator struct {
	maxRows int
	logger  *zap.Logger
}

func NewValidator(maxRows int, logger *zap.Logger) *Validator {
	if maxRows <= 0 {
		maxRows = 500
	}
	return &Validator{maxRows: maxRows, logger: logger.Named("sql-validator")}
}

// Validate runs the full safety check on a synthesized IR. On success it
// stamps ir.Valid and replaces ir.SQL with the sanitized text; on
// failure ir.Valid stays false and the report lists every violation.
func (v *Validator) Validate(ir *models.AnalyticsIR) *models.ValidationReport {
	report := &models.ValidationReport{}

	normalized := stripTrailingSemicolon(strings.TrimSpace(ir.SQL))
	if normalized == "" {
		return v.reject(ir, report, "empty SQL statement")
	}

	upper := strings.ToUpper(normalized)
	if !strings.HasPrefix(upper, "SELECT") && !strings.HasPrefix(upper, "WITH") {
		return v.reject(ir, report, "only SELECT statements are permitted")
	}

	if hasSemicolonOutsideStrings(normalized) {
		return v.reject(ir, report, ErrMultipleStatements.Error())
	}

	for _, hit := range CheckBindValues(ir.NamedParams) {
		report.Violations = append(report.Violations,
			fmt.Sprintf("bind value %q matched injection fingerprint %s", hit.ParamName, hit.Fingerprint))
	}
	if len(report.Violations) > 0 {
		return v.reject(ir, report, "injection pattern in bind values")
	}

	districtKey, bound := ir.DistrictBinding()
	if !bound {
		return v.reject(ir, report, "no district_key bound")
	}

	// A hard-coded district literal is replaced with a fresh positional
	// bind of the turn's own district key. The rewrite is mechanical;
	// anything less clear-cut is rejected instead.
	if districtLiteralRe.MatchString(normalized) {
		pos := len(ir.Values) + 1
		normalized = districtLiteralRe.ReplaceAllString(normalized, fmt.Sprintf("district_key = $$%d", pos))
		ir.Values = append(ir.Values, districtKey)
		v.logger.Warn("rewrote hard-coded district literal to positional bind",
			zap.String("mode", string(ir.Mode)))
	}

	// A statement that projects district_key but never filters on it can
	// be scoped mechanically by wrapping it in a subquery. Anything whose
	// projection does not provably expose the column is rejected instead.
	if !districtPositionalRe.MatchString(normalized) {
		wrapped, ok := wrapInDistrictScope(normalized, len(ir.Values)+1)
		if !ok {
			return v.reject(ir, report, "statement lacks a positional district_key predicate")
		}
		normalized = wrapped
		ir.Values = append(ir.Values, districtKey)
		v.logger.Warn("wrapped statement in district scope subquery",
			zap.String("mode", string(ir.Mode)))
	}

	// Unbounded statements get the configured row cap appended.
	if !limitRe.MatchString(normalized) {
		normalized = fmt.Sprintf("%s\nLIMIT %d", normalized, v.maxRows)
	}

	report.IsValid = true
	report.SanitizedSQL = normalized
	ir.SQL = normalized
	ir.Valid = true
	return report
}

func (v *Validator) reject(ir *models.AnalyticsIR, report *models.ValidationReport, reason string) *models.ValidationReport {
	report.IsValid = false
	report.Reason = reason
	if len(report.Violations) == 0 {
		report.Violations = []string{reason}
	}
	ir.Valid = false
	v.logger.Warn("rejected synthesized SQL",
		zap.String("mode", string(ir.Mode)),
		zap.String("reason", reason),
		zap.String("sql", logging.SanitizeQuery(ir.SQL)))
	return report
}

// wrapInDistrictScope rewrites a statement into a subquery filtered on
// the turn's district key, bound at position pos. The rewrite is only
// attempted when the outermost projection provably exposes district_key:
// a bare star or an explicit district_key output column.
func wrapInDistrictScope(sqlQuery string, pos int) (string, bool) {
	list, ok := outerSelectList(sqlQuery)
	if !ok || !listExposesDistrictKey(list) {
		return "", false
	}
	return fmt.Sprintf("SELECT * FROM (\n%s\n) scoped WHERE scoped.district_key = $%d", sqlQuery, pos), true
}

// listExposesDistrictKey reports whether a projection list carries a
// district_key output column. Only depth-zero occurrences count; a
// district_key buried in a sub-select does not survive into the result.
func listExposesDistrictKey(list string) bool {
	if strings.TrimSpace(list) == "*" {
		return true
	}

	upper := strings.ToUpper(list)
	depth := 0
	inString := false
	for i := 0; i < len(list); i++ {
		c := list[i]
		switch {
		case inString:
			if c == '\'' {
				inString = false
			}
		case c == '\'':
			inString = true
		case c == '(':
			depth++
		case c == ')':
			depth--
		case depth == 0 && wordAt(upper, i, "DISTRICT_KEY"):
			return true
		}
	}
	return false
}

// outerSelectList returns the projection text of the outermost SELECT:
// everything between the leading SELECT keyword and the first FROM at
// parenthesis depth zero. CTE statements are out of reach on purpose.
func outerSelectList(sqlQuery string) (string, bool) {
	upper := strings.ToUpper(sqlQuery)
	if !strings.HasPrefix(upper, "SELECT") {
		return "", false
	}

	depth := 0
	inString := false
	for i := len("SELECT"); i < len(sqlQuery); i++ {
		c := sqlQuery[i]
		switch {
		case inString:
			if c == '\'' {
				inString = false
			}
		case c == '\'':
			inString = true
		case c == '(':
			depth++
		case c == ')':
			depth--
		case depth == 0 && keywordAt(upper, i, "FROM"):
			return sqlQuery[len("SELECT"):i], true
		}
	}
	return "", false
}

func keywordAt(upper string, i int, kw string) bool {
	if !strings.HasPrefix(upper[i:], kw) {
		return false
	}
	if i > 0 && !isSQLSpace(upper[i-1]) {
		return false
	}
	end := i + len(kw)
	return end >= len(upper) || isSQLSpace(upper[end])
}

// wordAt matches an identifier with identifier-character boundaries, so
// qualified names like l.district_key still count.
func wordAt(upper string, i int, word string) bool {
	if !strings.HasPrefix(upper[i:], word) {
		return false
	}
	if i > 0 && isIdentChar(upper[i-1]) {
		return false
	}
	end := i + len(word)
	return end >= len(upper) || !isIdentChar(upper[end])
}

func isIdentChar(c byte) bool {
	return c == '_' || (c >= '0' && c <= '9') || (c >= 'A' && c <= 'Z') || (c >= 'a' && c <= 'z')
}

func isSQLSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}

// hasSemicolonOutsideStrings returns true if the SQL contains any
// semicolon outside of string literals.
func hasSemicolonOutsideStrings(sqlQuery string) bool {
	const (
		stateNormal = iota
		stateSingleQuote
		stateDoubleQuote
	)

	state := stateNormal
	prevChar := rune(0)

	for _, char := range sqlQuery {
		switch state {
		case stateNormal:
			switch char {
			case ';':
				return true
			case '\'':
				state = stateSingleQuote
			case '"':
				state = stateDoubleQuote
			}
		case stateSingleQuote:
			// Handle both backslash escape (\') and SQL standard escape ('').
			// For a doubled quote this exits and immediately re-enters on the
			// next quote, which correctly keeps us inside the string.
			if char == '\'' && prevChar != '\\' {
				state = stateNormal
			}
		case stateDoubleQuote:
			if char == '"' && prevChar != '\\' {
				state = stateNormal
			}
		}
		prevChar = char
	}

	return false
}

// stripTrailingSemicolon removes a trailing semicolon and any whitespace
// around it.
func stripTrailingSemicolon(sqlQuery string) string {
	sqlQuery = strings.TrimRight(sqlQuery, " \t\n\r")
	if strings.HasSuffix(sqlQuery, ";") {
		sqlQuery = strings.TrimSuffix(sqlQuery, ";")
		sqlQuery = strings.TrimRight(sqlQuery, " \t\n\r")
	}
	return sqlQuery
}
