package generation

import (
	"regexp"
	"strings"
)

var placeholderRE = regexp.MustCompile(`\{\{\s*([^{}\s]+)\s*\}\}`)

// Interpolate replaces every {{ key }} in template with data[key]. Unknown keys are
// left as written. Substituted values are not themselves expanded.
func Interpolate(template string, data map[string]string) string {
	if !strings.Contains(template, "{{") {
		return template
	}
	return placeholderRE.ReplaceAllStringFunc(template, func(m string) string {
		key := placeholderRE.FindStringSubmatch(m)[1]
		if v, ok := data[key]; ok {
			return v
		}
		return m
	})
}

// Placeholders lists the distinct keys referenced by template in order of appearance.
func Placeholders(template string) []string {
	var out []string
	seen := map[string]bool{}
	for _, m := range placeholderRE.FindAllStringSubmatch(template, -1) {
		if !seen[m[1]] {
			seen[m[1]] = true
			out = append(out, m[1])
		}
	}
	return out
}
