// Package intent normalizes raw user text into a structured Intent via
// the language-model call surface, with deterministic synonym and time
// resolution applied in Go.
package intent

import (
	_ "embed"
	"fmt"
	"regexp"
	"strings"

	"github.com/jinzhu/inflection"
	"gopkg.in/yaml.v3"

	"github.com/servicelens-inc/servicelens-engine/pkg/models"
)

//go:embed synonyms.yaml
var synonymsYAML []byte

type dictionary struct {
	Kinds        map[string][]string `yaml:"kinds"`
	Affirmations []string            `yaml:"affirmations"`
}

var (
	// aliasToKind maps every singular lower-cased alias to its canonical kind.
	aliasToKind map[string]models.EntityKind
	// aliasPattern rewrites aliases (and their plurals) in free text.
	aliasPattern     *regexp.Regexp
	aliasReplacement map[string]string
	affirmations     []string
)

func init() {
	var dict dictionary
	if err := yaml.Unmarshal(synonymsYAML, &dict); err != nil {
		panic(fmt.Sprintf("intent: invalid synonyms.yaml: %v", err))
	}

	aliasToKind = make(map[string]models.EntityKind)
	aliasReplacement = make(map[string]string)
	var alternatives []string

	for canonical, aliases := range dict.Kinds {
		kind := models.EntityKind(canonical)
		aliasToKind[canonical] = kind
		for _, alias := range aliases {
			alias = strings.ToLower(alias)
			aliasToKind[alias] = kind
			for _, form := range []string{alias, inflection.Plural(alias)} {
				aliasReplacement[form] = canonical
				alternatives = append(alternatives, regexp.QuoteMeta(form))
			}
		}
	}

	aliasPattern = regexp.MustCompile(`(?i)\b(` + strings.Join(alternatives, "|") + `)\b`)
	affirmations = dict.Affirmations
}

// NormalizeText applies the synonym dictionary to raw user text. The
// rewrite is deterministic and happens before any downstream stage,
// including the model call, sees the text.
func NormalizeText(text string) string {
	return aliasPattern.ReplaceAllStringFunc(text, func(match string) string {
		lower := strings.ToLower(match)
		canonical, ok := aliasReplacement[lower]
		if !ok {
			return match
		}
		if lower != inflection.Singular(lower) {
			return inflection.Plural(canonical)
		}
		return canonical
	})
}

// KindFromString canonicalizes an entity-kind word, tolerating plurals
// and aliases. Unrecognized words map to KindUnknown.
func KindFromString(s string) models.EntityKind {
	w := inflection.Singular(strings.ToLower(strings.TrimSpace(s)))
	switch models.EntityKind(w) {
	case models.KindStudent, models.KindVendor, models.KindClinician, models.KindDistrict:
		return models.EntityKind(w)
	}
	if kind, ok := aliasToKind[w]; ok {
		return kind
	}
	return models.KindUnknown
}

var punctTrim = regexp.MustCompile(`^[\s.,!?;:]+|[\s.,!?;:]+$`)

// IsAffirmation reports whether the turn is a bare confirmation, used to
// confirm a pending scope switch.
func IsAffirmation(text string) bool {
	cleaned := strings.ToLower(punctTrim.ReplaceAllString(text, ""))
	if cleaned == "" {
		return false
	}
	for _, a := range affirmations {
		if cleaned == a || strings.HasPrefix(cleaned, a+" ") {
			return true
		}
	}
	return false
}
