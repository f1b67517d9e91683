package domain

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// CriteriaConfig describes the user's raw filter settings before
// compilation. Zero values mean "no bound" on that axis.
type CriteriaConfig struct {
	// MaxAge keeps only posts at least this old at the time the criteria
	// are compiled. Zero disables the age bound.
	MaxAge time.Duration

	// After keeps only posts created at or after this instant. Date-only
	// user input is normalized to the start of the day before it gets here.
	After time.Time

	// Before keeps only posts created at or before this instant. Date-only
	// user input is normalized to the end of the day before it gets here.
	Before time.Time

	// Patterns restricts matches to posts whose text matches at least one
	// entry: substring containment by default, regular expressions when
	// UseRegex is set. Both modes are case-insensitive. An empty list
	// matches everything.
	Patterns []string

	// UseRegex interprets Patterns as regular expressions.
	UseRegex bool

	// IncludeReplies keeps replies in the matched set. Off by default.
	IncludeReplies bool

	// IncludeReposts keeps reposts in the matched set. Off by default.
	IncludeReposts bool
}

// Criteria is the compiled filter predicate. It is immutable after
// compilation; Matches is pure and safe for repeated evaluation.
type Criteria struct {
	cutoff         time.Time // zero means no age bound
	after          time.Time
	before         time.Time
	literals       []string
	patterns       []*regexp.Regexp
	includeReplies bool
	includeReposts bool
}

// NewCriteria compiles the configuration into a predicate. The age bound is
// resolved against now once, so every post in a run is judged against the
// same cutoff. Malformed or empty patterns are configuration errors and are
// reported here, before any post is scanned.
func NewCriteria(cfg CriteriaConfig, now time.Time) (*Criteria, error) {
	c := &Criteria{
		after:          cfg.After,
		before:         cfg.Before,
		includeReplies: cfg.IncludeReplies,
		includeReposts: cfg.IncludeReposts,
	}

	if cfg.MaxAge > 0 {
		c.cutoff = now.UTC().Add(-cfg.MaxAge)
	}

	for _, p := range cfg.Patterns {
		if p == "" {
			return nil, fmt.Errorf("match pattern must not be empty")
		}
		if cfg.UseRegex {
			re, err := regexp.Compile("(?i)" + p)
			if err != nil {
				return nil, fmt.Errorf("compile match pattern %q: %w", p, err)
			}
			c.patterns = append(c.patterns, re)
		} else {
			c.literals = append(c.literals, strings.ToLower(p))
		}
	}

	return c, nil
}

// Matches reports whether the post satisfies every active criterion. All
// bounds must pass; the patterns pass when any one of them matches.
func (c *Criteria) Matches(p Post) bool {
	if p.IsReply && !c.includeReplies {
		return false
	}
	if p.IsRepost && !c.includeReposts {
		return false
	}
	if !c.cutoff.IsZero() && p.CreatedAt.After(c.cutoff) {
		return false
	}
	if !c.after.IsZero() && p.CreatedAt.Before(c.after) {
		return false
	}
	if !c.before.IsZero() && p.CreatedAt.After(c.before) {
		return false
	}
	return c.matchesText(p.Text)
}

func (c *Criteria) matchesText(text string) bool {
	if len(c.literals) == 0 && len(c.patterns) == 0 {
		return true
	}
	lower := strings.ToLower(text)
	for _, lit := range c.literals {
		if strings.Contains(lower, lit) {
			return true
		}
	}
	for _, re := range c.patterns {
		if re.MatchString(text) {
			return true
		}
	}
	return false
}
