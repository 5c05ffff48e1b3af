package inference

import (
	"regexp"
	"sort"
	"strings"
)

// FillInVariables replaces every <|KEY|> placeholder with its value. Keys are
// uppercased and matched case-insensitively; unknown placeholders are kept.
// Substitution is a single pass, so a value is never itself expanded. When
// two keys differ only by case, the first in sorted order wins.
func FillInVariables(text string, variables map[string]string) string {
	if len(variables) == 0 || !strings.Contains(text, "<|") {
		return text
	}

	keys := make([]string, 0, len(variables))
	for k := range variables {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	values := make(map[string]string, len(keys))
	alternatives := make([]string, 0, len(keys))
	for _, key := range keys {
		upper := strings.ToUpper(key)
		if _, seen := values[upper]; seen {
			continue
		}
		values[upper] = variables[key]
		alternatives = append(alternatives, regexp.QuoteMeta(upper))
	}

	placeholder := regexp.MustCompile(`(?i)<\|(?:` + strings.Join(alternatives, "|") + `)\|>`)
	return placeholder.ReplaceAllStringFunc(text, func(match string) string {
		if v, ok := values[strings.ToUpper(match[2:len(match)-2])]; ok {
			return v
		}
		return match
	})
}
