/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package httplimit

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/vasayxtx/go-glob"

	"github.com/acronis/go-limitkit/slotlimit"
)

// PriorityRule maps incoming HTTP requests to an admission priority.
// PathPattern is a glob pattern ("*" matches any sequence of characters, "?" matches a single
// character) that is applied to the request URL path. Methods is an optional list of HTTP methods
// (case-insensitive); an empty list matches any method.
type PriorityRule struct {
	PathPattern string
	Methods     []string
	Priority    slotlimit.Priority
}

type compiledPriorityRule struct {
	matchPath func(s string) bool
	methods   map[string]struct{}
	priority  slotlimit.Priority
}

// priorityMatcher resolves the admission priority for a request
// by checking the rules in order and returning the first match.
type priorityMatcher struct {
	rules []compiledPriorityRule
}

func newPriorityMatcher(rules []PriorityRule) (*priorityMatcher, error) {
	compiled := make([]compiledPriorityRule, 0, len(rules))
	for i := range rules {
		rule := rules[i]
		switch rule.Priority {
		case slotlimit.PriorityHigh, slotlimit.PriorityNormal, slotlimit.PriorityLow:
		default:
			return nil, fmt.Errorf("unknown priority %q in rule for path pattern %q, should be one of [%s %s %s]",
				rule.Priority, rule.PathPattern, slotlimit.PriorityHigh, slotlimit.PriorityNormal, slotlimit.PriorityLow)
		}
		var methods map[string]struct{}
		if len(rule.Methods) != 0 {
			methods = make(map[string]struct{}, len(rule.Methods))
			for _, m := range rule.Methods {
				methods[strings.ToUpper(m)] = struct{}{}
			}
		}
		compiled = append(compiled, compiledPriorityRule{
			matchPath: glob.Compile(rule.PathPattern),
			methods:   methods,
			priority:  rule.Priority,
		})
	}
	return &priorityMatcher{rules: compiled}, nil
}

// match returns the priority of the first matching rule or slotlimit.PriorityNormal if no rule matches.
func (m *priorityMatcher) match(r *http.Request) slotlimit.Priority {
	for i := range m.rules {
		rule := &m.rules[i]
		if !rule.matchPath(r.URL.Path) {
			continue
		}
		if rule.methods != nil {
			if _, ok := rule.methods[r.Method]; !ok {
				continue
			}
		}
		return rule.priority
	}
	return slotlimit.PriorityNormal
}
