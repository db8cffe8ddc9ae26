package guard

import (
	"fmt"
	"log/slog"
	"time"
	"unicode/utf8"

	"github.com/dlclark/regexp2"

	"github.com/vendabot/vendabot/internal/logger"
)

// DefaultRuleTimeout bounds the evaluation of a single rule. A rule that
// exceeds it is treated as not matched, never as a pipeline failure.
const DefaultRuleTimeout = 100 * time.Millisecond

// Matcher evaluates an ordered rule set against messages. Rules are compiled
// once at construction; evaluation is case-insensitive and each rule carries
// an enforced timeout so a pathological pattern cannot stall the guard.
type Matcher struct {
	rules []compiledRule
	log   *slog.Logger
}

type compiledRule struct {
	name string
	re   *regexp2.Regexp
}

// NewMatcher compiles the given rules. A rule that fails to compile is an
// error: rule sets are configuration and a broken set should fail loudly at
// startup, not silently shrink.
func NewMatcher(rules []Rule, timeout time.Duration) (*Matcher, error) {
	if timeout <= 0 {
		timeout = DefaultRuleTimeout
	}
	m := &Matcher{
		rules: make([]compiledRule, 0, len(rules)),
		log:   logger.For("guard.matcher"),
	}
	for _, r := range rules {
		re, err := regexp2.Compile(r.Pattern, regexp2.IgnoreCase)
		if err != nil {
			return nil, fmt.Errorf("compile rule %q: %w", r.Name, err)
		}
		re.MatchTimeout = timeout
		m.rules = append(m.rules, compiledRule{name: r.Name, re: re})
	}
	return m, nil
}

// Match evaluates the rules in order and returns the name of the first rule
// that matches text, or "" when none match. A rule evaluation that exceeds
// its timeout counts as a non-match and is logged at warn.
func (m *Matcher) Match(text string) (string, bool) {
	for _, r := range m.rules {
		ok, err := r.re.MatchString(text)
		if err != nil {
			m.log.Warn("rule evaluation timed out; treating as non-match",
				"rule", r.name, "message", truncate(text, 100))
			continue
		}
		if ok {
			return r.name, true
		}
	}
	return "", false
}

// truncate shortens s to n characters, never splitting a UTF-8 sequence.
func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
