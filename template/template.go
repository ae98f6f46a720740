// Package template holds the configurable classification rules applied to raw
// records during processing. Templates are plain data loaded from YAML files;
// they never contain executable logic.
package template

import (
	"regexp"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/calmerge/calmerge-server/errors"
	"github.com/calmerge/calmerge-server/model"
)

// Match modes for Rule.MatchMode.
const (
	MatchModeContains = "contains"
	MatchModeRegex    = "regex"
)

// Period is a named time block like AM or PM that rules can assign to
// untimed records.
type Period struct {
	Start string `yaml:"start"`
	End   string `yaml:"end"`
}

// Rule classifies raw records. Rules are evaluated in ascending priority,
// ties broken by declaration order, and the first match wins.
type Rule struct {
	// Name describes the rule for humans and reports.
	Name string `yaml:"name"`
	// Priority orders evaluation. Lower is evaluated first.
	Priority int `yaml:"priority"`
	// Match holds the patterns. A record matches the rule when any pattern
	// matches its text.
	Match []string `yaml:"match"`
	// MatchMode is contains (default) or regex.
	MatchMode string `yaml:"match_mode"`
	// Type is assigned to matched records.
	Type model.EventType `yaml:"type"`
	// Location is a key into Template.Locations or a literal address, set on
	// matched records that have no location of their own.
	Location string `yaml:"location"`
	// Period is a key into Template.Periods whose times are set on matched
	// records that have no times of their own.
	Period string `yaml:"period"`
	// Exclude drops matched records entirely.
	Exclude bool `yaml:"exclude"`

	// compiled regex patterns, populated by Template.Validate for regex mode.
	compiled []*regexp.Regexp
}

// Matches reports whether the given text matches any of the rule's patterns.
func (r *Rule) Matches(text string) bool {
	if r.MatchMode == MatchModeRegex {
		for _, pattern := range r.compiled {
			if pattern.MatchString(text) {
				return true
			}
		}
		return false
	}
	lower := strings.ToLower(text)
	for _, pattern := range r.Match {
		if strings.Contains(lower, strings.ToLower(pattern)) {
			return true
		}
	}
	return false
}

// Template is a named, ordered rule set, loaded once per processing run and
// immutable during that run.
type Template struct {
	// Name identifies the template.
	Name string `yaml:"name"`
	// Version is a free-form revision marker for operators.
	Version string `yaml:"version"`
	// FallbackType is assigned to records no rule claimed.
	FallbackType model.EventType `yaml:"fallback_type"`
	// Locations maps short location keys to full addresses.
	Locations map[string]string `yaml:"locations"`
	// Periods maps period keys like AM and PM to time blocks.
	Periods map[string]Period `yaml:"periods"`
	// Rules in declaration order.
	Rules []Rule `yaml:"rules"`

	// ordered holds rule indices sorted by (priority, declaration order).
	ordered []int
}

// Parse decodes and validates a template from YAML.
func Parse(raw []byte) (*Template, error) {
	var tpl Template
	if err := yaml.Unmarshal(raw, &tpl); err != nil {
		return nil, errors.NewInvalidTemplateError("unmarshal template", err, nil)
	}
	if err := tpl.Validate(); err != nil {
		return nil, errors.Wrap(err, "validate template", nil)
	}
	return &tpl, nil
}

// Validate checks the template for consistency, compiles regex patterns and
// builds the evaluation order.
func (t *Template) Validate() error {
	if t.Name == "" {
		return errors.NewInvalidTemplateError("template without name", nil, nil)
	}
	if t.FallbackType == "" {
		t.FallbackType = model.EventTypeGeneric
	}
	for key, period := range t.Periods {
		if _, err := model.ParseClockTime(period.Start); err != nil {
			return errors.Wrap(err, "parse period start", errors.Details{"period": key})
		}
		if _, err := model.ParseClockTime(period.End); err != nil {
			return errors.Wrap(err, "parse period end", errors.Details{"period": key})
		}
	}
	for i := range t.Rules {
		rule := &t.Rules[i]
		if len(rule.Match) == 0 {
			return errors.NewInvalidTemplateError("rule without match patterns", nil,
				errors.Details{"rule": rule.Name})
		}
		switch rule.MatchMode {
		case "":
			rule.MatchMode = MatchModeContains
		case MatchModeContains:
		case MatchModeRegex:
			rule.compiled = make([]*regexp.Regexp, 0, len(rule.Match))
			for _, pattern := range rule.Match {
				compiled, err := regexp.Compile("(?i)" + pattern)
				if err != nil {
					return errors.NewInvalidTemplateError("compile rule pattern", err,
						errors.Details{"rule": rule.Name, "pattern": pattern})
				}
				rule.compiled = append(rule.compiled, compiled)
			}
		default:
			return errors.NewInvalidTemplateError("unknown match mode", nil,
				errors.Details{"rule": rule.Name, "match_mode": rule.MatchMode})
		}
		if rule.Period != "" {
			if _, ok := t.Periods[rule.Period]; !ok {
				return errors.NewInvalidTemplateError("rule references unknown period", nil,
					errors.Details{"rule": rule.Name, "period": rule.Period})
			}
		}
		if !rule.Exclude && rule.Type == "" {
			return errors.NewInvalidTemplateError("rule without type", nil,
				errors.Details{"rule": rule.Name})
		}
	}
	t.ordered = make([]int, len(t.Rules))
	for i := range t.ordered {
		t.ordered[i] = i
	}
	sort.SliceStable(t.ordered, func(a, b int) bool {
		return t.Rules[t.ordered[a]].Priority < t.Rules[t.ordered[b]].Priority
	})
	return nil
}

// FirstMatch evaluates the rules in (priority, declaration) order against the
// given text and returns the first matching rule.
func (t *Template) FirstMatch(text string) (*Rule, bool) {
	for _, i := range t.ordered {
		if t.Rules[i].Matches(text) {
			return &t.Rules[i], true
		}
	}
	return nil, false
}

// ResolveLocation resolves a location key to its full address. Unknown keys
// are treated as literal addresses.
func (t *Template) ResolveLocation(key string) string {
	if address, ok := t.Locations[key]; ok {
		return address
	}
	return key
}

// PeriodTimes returns the start and end clock times of the given period key.
func (t *Template) PeriodTimes(key string) (model.ClockTime, model.ClockTime, bool) {
	period, ok := t.Periods[key]
	if !ok {
		return model.ClockTime{}, model.ClockTime{}, false
	}
	// Validate already checked these.
	start, _ := model.ParseClockTime(period.Start)
	end, _ := model.ParseClockTime(period.End)
	return start, end, true
}

// PeriodInText returns the first period key appearing as a standalone
// uppercase token in the given text, e.g. "CCSC AM".
func (t *Template) PeriodInText(text string) (string, bool) {
	fields := strings.Fields(strings.ToUpper(text))
	for _, field := range fields {
		field = strings.Trim(field, ",.;:()")
		if _, ok := t.Periods[field]; ok {
			return field, true
		}
	}
	return "", false
}
