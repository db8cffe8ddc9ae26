// Package guard implements the two-stage message gate that runs before any
// model invocation: a safety gate (prompt-injection rules) and a relevance
// gate (sales-domain vocabulary). Verdicts are plain values; the guard never
// returns an error for a rejected message.
package guard

import (
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/vendabot/vendabot/internal/logger"
)

// Reason classifies a verdict.
type Reason string

const (
	ReasonSafe              Reason = "safe"
	ReasonInjectionDetected Reason = "injection_detected"
	ReasonOffDomain         Reason = "off_domain"
	ReasonEmptyOrInvalid    Reason = "empty_or_invalid"
)

// Verdict is the outcome of evaluating one inbound message. It is created
// per message and not retained beyond the response cycle.
type Verdict struct {
	Admitted    bool
	Reason      Reason
	MatchedRule string
}

// DefaultMaxMessageLength caps inbound messages. Limits count characters,
// not bytes: accented pt-BR text must not hit the cap early.
const DefaultMaxMessageLength = 500

// maxGreetingLength is the length in characters under which a generic
// greeting is admitted without any domain keyword.
const maxGreetingLength = 50

// Guard composes the matcher into the safety and relevance gates.
type Guard struct {
	matcher   *Matcher
	keywords  []string
	greetings []string
	maxLen    int
	log       *slog.Logger
}

// Options configures a Guard. Zero-value fields fall back to the built-in
// rule sets and limits.
type Options struct {
	InjectionRules []Rule
	DomainKeywords []string
	GreetingWords  []string
	MaxLength      int
	RuleTimeout    time.Duration
}

// New builds a Guard from opts.
func New(opts Options) (*Guard, error) {
	rules := opts.InjectionRules
	if len(rules) == 0 {
		rules = DefaultInjectionRules()
	}
	keywords := opts.DomainKeywords
	if len(keywords) == 0 {
		keywords = DefaultDomainKeywords()
	}
	greetings := opts.GreetingWords
	if len(greetings) == 0 {
		greetings = DefaultGreetingWords()
	}
	maxLen := opts.MaxLength
	if maxLen <= 0 {
		maxLen = DefaultMaxMessageLength
	}

	matcher, err := NewMatcher(rules, opts.RuleTimeout)
	if err != nil {
		return nil, err
	}

	lowered := make([]string, len(keywords))
	for i, k := range keywords {
		lowered[i] = strings.ToLower(k)
	}
	loweredGreetings := make([]string, len(greetings))
	for i, g := range greetings {
		loweredGreetings[i] = strings.ToLower(g)
	}

	return &Guard{
		matcher:   matcher,
		keywords:  lowered,
		greetings: loweredGreetings,
		maxLen:    maxLen,
		log:       logger.For("guard"),
	}, nil
}

// Evaluate runs validation, then the safety gate, then the relevance gate.
// The ordering matters: a short generic message can still trip the injection
// gate even though it would pass the greeting allowance.
func (g *Guard) Evaluate(message string) Verdict {
	if strings.TrimSpace(message) == "" || utf8.RuneCountInString(message) > g.maxLen {
		g.log.Info("invalid message rejected", "length", utf8.RuneCountInString(message))
		return Verdict{Reason: ReasonEmptyOrInvalid}
	}

	if rule, matched := g.matcher.Match(message); matched {
		g.log.Warn("prompt injection attempt detected",
			"rule", truncate(rule, 50), "message", truncate(message, 100))
		return Verdict{Reason: ReasonInjectionDetected, MatchedRule: rule}
	}

	if !g.isRelevant(message) {
		g.log.Info("off-domain message rejected", "message", truncate(message, 100))
		return Verdict{Reason: ReasonOffDomain}
	}

	return Verdict{Admitted: true, Reason: ReasonSafe}
}

// IsSafe reports whether the message passes validation and the injection
// rules. It shares the Evaluate logic so the two never drift.
func (g *Guard) IsSafe(message string) bool {
	if strings.TrimSpace(message) == "" || utf8.RuneCountInString(message) > g.maxLen {
		return false
	}
	_, matched := g.matcher.Match(message)
	return !matched
}

// IsRelevant reports whether the message plausibly concerns sales analytics:
// it contains a domain keyword, or is a short generic greeting/help phrase.
func (g *Guard) IsRelevant(message string) bool {
	if strings.TrimSpace(message) == "" {
		return false
	}
	return g.isRelevant(message)
}

func (g *Guard) isRelevant(message string) bool {
	lowered := strings.ToLower(message)

	for _, k := range g.keywords {
		if strings.Contains(lowered, k) {
			return true
		}
	}

	if utf8.RuneCountInString(message) < maxGreetingLength {
		for _, w := range g.greetings {
			if strings.Contains(lowered, w) {
				return true
			}
		}
	}

	return false
}
