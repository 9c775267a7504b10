package trace

import (
	"fmt"
	"regexp"
)

// RedactionRule replaces every match of Pattern in string event data.
type RedactionRule struct {
	Pattern string
	Replace string
}

type compiledRedaction struct {
	pattern *regexp.Regexp
	replace string
}

// SetRedactions compiles rules and applies them to every later event.
func (tw *Writer) SetRedactions(rules []RedactionRule) error {
	compiled := make([]compiledRedaction, 0, len(rules))
	for _, r := range rules {
		re, err := regexp.Compile(r.Pattern)
		if err != nil {
			return fmt.Errorf("redaction pattern %q: %w", r.Pattern, err)
		}
		compiled = append(compiled, compiledRedaction{pattern: re, replace: r.Replace})
	}
	tw.mu.Lock()
	tw.redact = compiled
	tw.mu.Unlock()
	return nil
}

// redactData returns data with every string value redacted. The input map
// is not modified.
func redactData(data map[string]any, rules []compiledRedaction) map[string]any {
	if len(rules) == 0 || len(data) == 0 {
		return data
	}
	out := make(map[string]any, len(data))
	for k, v := range data {
		if s, ok := v.(string); ok {
			for _, r := range rules {
				s = r.pattern.ReplaceAllString(s, r.replace)
			}
			v = s
		}
		out[k] = v
	}
	return out
}
