package sql

import (
	"fmt"
	"regexp"
)

// parameterRegex matches {{parameter_name}} placeholders in SQL templates.
// Parameter names must start with a letter or underscore, followed by any
// number of alphanumeric characters or underscores.
var parameterRegex = regexp.MustCompile(`\{\{([a-zA-Z_]\w*)\}\}`)

// Param declares one template parameter. Required parameters must be
// supplied at synthesis time; optional ones fall back to Default.
type Param struct {
	Name     string
	Required bool
	Default  any
}

// ExtractParameters finds all {{param}} placeholders in SQL and returns
// a deduplicated list of parameter names in order of first appearance.
func ExtractParameters(sqlQuery string) []string {
	matches := parameterRegex.FindAllStringSubmatch(sqlQuery, -1)
	seen := make(map[string]bool)
	var params []string

	for _, match := range matches {
		name := match[1]
		if !seen[name] {
			seen[name] = true
			params = append(params, name)
		}
	}

	return params
}

// ValidateParameterDefinitions checks that SQL placeholders and declared
// parameters match exactly.
//
// Returns an error if:
//   - A {{param}} placeholder is used in SQL but not declared
//   - A parameter is declared but never used in the SQL
func ValidateParameterDefinitions(sqlQuery string, params []Param) error {
	extracted := ExtractParameters(sqlQuery)

	extractedSet := make(map[string]bool)
	for _, name := range extracted {
		extractedSet[name] = true
	}

	definedSet := make(map[string]bool)
	for _, p := range params {
		definedSet[p.Name] = true
	}

	for _, name := range extracted {
		if !definedSet[name] {
			return fmt.Errorf("parameter {{%s}} used in SQL but not declared", name)
		}
	}

	for _, p := range params {
		if !extractedSet[p.Name] {
			return fmt.Errorf("parameter '%s' is declared but not used in SQL", p.Name)
		}
	}

	return nil
}

// FindParametersInStringLiterals checks for {{param}} placeholders that
// appear inside SQL string literals (single quotes). Parameters inside
// string literals won't work as expected because PostgreSQL will treat
// $1 as literal text, not as a parameter placeholder.
//
// Returns a list of parameter names that are incorrectly placed inside
// strings.
func FindParametersInStringLiterals(sqlQuery string) []string {
	var problems []string
	seen := make(map[string]bool)

	inString := false
	stringStart := 0
	i := 0

	for i < len(sqlQuery) {
		ch := sqlQuery[i]

		if ch == '\'' {
			if inString {
				// Check for escaped quote ('')
				if i+1 < len(sqlQuery) && sqlQuery[i+1] == '\'' {
					i += 2
					continue
				}
				stringContent := sqlQuery[stringStart+1 : i]
				matches := parameterRegex.FindAllStringSubmatch(stringContent, -1)
				for _, match := range matches {
					name := match[1]
					if !seen[name] {
						seen[name] = true
						problems = append(problems, name)
					}
				}
				inString = false
			} else {
				inString = true
				stringStart = i
			}
		}
		i++
	}

	return problems
}

// SubstituteParameters replaces {{param}} placeholders with PostgreSQL
// positional parameters ($1, $2, ...) and returns the prepared SQL along
// with ordered bind values.
//
// The function:
//  1. Replaces each unique {{param}} with $N (where N is the position)
//  2. Reuses the same $N for parameters that appear multiple times
//  3. Applies default values for optional parameters not supplied
//  4. Fails when a required parameter has no supplied value
func SubstituteParameters(
	sqlQuery string,
	paramDefs []Param,
	suppliedValues map[string]any,
) (string, []any, error) {
	defLookup := make(map[string]Param)
	for _, p := range paramDefs {
		defLookup[p.Name] = p
	}

	var orderedValues []any
	paramIndex := 1
	paramPositions := make(map[string]int)
	var substErr error

	result := parameterRegex.ReplaceAllStringFunc(sqlQuery, func(match string) string {
		name := parameterRegex.FindStringSubmatch(match)[1]

		// Same param used multiple times binds once.
		if pos, exists := paramPositions[name]; exists {
			return fmt.Sprintf("$%d", pos)
		}

		def, defExists := defLookup[name]
		if !defExists {
			if substErr == nil {
				substErr = fmt.Errorf("parameter {{%s}} used in SQL but not declared", name)
			}
			return match
		}

		value, supplied := suppliedValues[name]
		if !supplied {
			if def.Required {
				if substErr == nil {
					substErr = fmt.Errorf("required parameter '%s' has no value", name)
				}
				return match
			}
			value = def.Default
		}

		paramPositions[name] = paramIndex
		orderedValues = append(orderedValues, value)
		pos := paramIndex
		paramIndex++

		return fmt.Sprintf("$%d", pos)
	})

	if substErr != nil {
		return "", nil, substErr
	}
	return result, orderedValues, nil
}
