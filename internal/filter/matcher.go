// ABOUTME: Compiled content filter matcher evaluated against outbound messages
// ABOUTME: Regex patterns are case-insensitive; literals match as lowercase substrings

package filter

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"sync"

	"github.com/jnun/contactcmd/internal/store"
)

// Match describes which filter fired against a message.
type Match struct {
	FilterID    string
	Action      string // store.ActionDeny or store.ActionFlag
	Description string
}

type compiledFilter struct {
	id          string
	action      string
	description string
	re          *regexp.Regexp // nil for literal filters
	literal     string         // lowercased, set for literal filters
}

// Matcher holds the compiled enabled filters. Reload swaps the whole set
// atomically so checks never see a partially updated list.
type Matcher struct {
	store  store.FilterStore
	logger *slog.Logger

	mu      sync.RWMutex
	filters []compiledFilter
}

// NewMatcher creates a matcher and compiles the currently enabled filters.
func NewMatcher(ctx context.Context, fs store.FilterStore) (*Matcher, error) {
	m := &Matcher{
		store:  fs,
		logger: slog.Default().With("component", "filter"),
	}
	if err := m.Reload(ctx); err != nil {
		return nil, err
	}
	return m, nil
}

// Reload recompiles the enabled filter set from the store. A filter whose
// regex fails to compile is skipped with a warning rather than failing the
// whole reload.
func (m *Matcher) Reload(ctx context.Context) error {
	filters, err := m.store.ListEnabledFilters(ctx)
	if err != nil {
		return fmt.Errorf("loading content filters: %w", err)
	}

	compiled := make([]compiledFilter, 0, len(filters))
	for _, f := range filters {
		cf := compiledFilter{
			id:          f.ID,
			action:      f.Action,
			description: f.Description,
		}
		switch f.PatternType {
		case store.PatternRegex:
			re, err := regexp.Compile("(?i)" + f.Pattern)
			if err != nil {
				m.logger.Warn("skipping filter with invalid regex",
					"filter_id", f.ID, "error", err)
				continue
			}
			cf.re = re
		case store.PatternLiteral:
			cf.literal = strings.ToLower(f.Pattern)
		default:
			m.logger.Warn("skipping filter with unknown pattern type",
				"filter_id", f.ID, "pattern_type", f.PatternType)
			continue
		}
		compiled = append(compiled, cf)
	}

	m.mu.Lock()
	m.filters = compiled
	m.mu.Unlock()

	m.logger.Info("content filters loaded", "count", len(compiled))
	return nil
}

// CheckEmail evaluates subject then body. Deny filters are ordered first, so
// the first match decides the outcome.
func (m *Matcher) CheckEmail(subject, body string) *Match {
	if match := m.check(subject); match != nil {
		return match
	}
	return m.check(body)
}

// CheckMessage evaluates a single-body message (sms, imessage).
func (m *Matcher) CheckMessage(body string) *Match {
	return m.check(body)
}

func (m *Matcher) check(text string) *Match {
	if text == "" {
		return nil
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	lower := strings.ToLower(text)
	for _, f := range m.filters {
		matched := false
		if f.re != nil {
			matched = f.re.MatchString(text)
		} else {
			matched = strings.Contains(lower, f.literal)
		}
		if matched {
			return &Match{
				FilterID:    f.id,
				Action:      f.action,
				Description: f.description,
			}
		}
	}
	return nil
}
