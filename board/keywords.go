// goban/board/keywords.go
package board

import (
	"regexp"
	"strings"

	"goban/models"
)

// keywordFields is the fixed scan order. Fields are checked one at a time
// and the first rule hit in any field ends the entire scan, so ordering is
// part of the contract.
var keywordFields = []string{"name", "email", "subject", "message"}

// keywordMatch is the winning rule of a scan, if any.
type keywordMatch struct {
	Rule  models.KeywordRule
	Field string
}

// scanKeywords runs every rule over the post's text fields, one field at a
// time in the fixed order. Within a field, rules run in insertion order; a
// hit in an earlier field outranks any rule that would only have matched a
// later one. Plain patterns match as case-insensitive substrings; regexp
// rules compile case-insensitively. A rule whose regexp fails to compile is
// skipped rather than blocking admission.
func (s *Service) scanKeywords(name, email, subject, message string) (*keywordMatch, error) {
	rules, err := s.store.ListKeywords()
	if err != nil {
		return nil, wrapStorage(err)
	}
	if len(rules) == 0 {
		return nil, nil
	}

	type matcher struct {
		rule    models.KeywordRule
		matches func(string) bool
	}
	matchers := make([]matcher, 0, len(rules))
	for _, rule := range rules {
		if rule.IsRegexp {
			re, err := regexp.Compile("(?i)" + rule.Pattern)
			if err != nil {
				s.logger.Warn("Skipping invalid keyword regexp", "rule_id", rule.ID, "pattern", rule.Pattern, "error", err)
				continue
			}
			matchers = append(matchers, matcher{rule, re.MatchString})
		} else {
			needle := strings.ToLower(rule.Pattern)
			matchers = append(matchers, matcher{rule, func(text string) bool {
				return strings.Contains(strings.ToLower(text), needle)
			}})
		}
	}

	fields := map[string]string{
		"name":    name,
		"email":   email,
		"subject": subject,
		"message": message,
	}
	for _, field := range keywordFields {
		text := fields[field]
		for _, m := range matchers {
			if m.matches(text) {
				return &keywordMatch{Rule: m.rule, Field: field}, nil
			}
		}
	}
	return nil, nil
}
