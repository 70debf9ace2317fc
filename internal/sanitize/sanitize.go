// Package sanitize cleans user-supplied text before it is stored. Profile
// fields end up in emails and UI shells, so markup is removed at the door.
package sanitize

import (
	"html"
	"strings"
	"sync"

	"github.com/microcosm-cc/bluemonday"
)

// maxPasses bounds how many entity layers Text peels off before giving up
// and returning the escaped form.
const maxPasses = 8

var (
	policy     *bluemonday.Policy
	policyOnce sync.Once
)

// getPolicy returns the shared strict policy, which allows no elements at all.
func getPolicy() *bluemonday.Policy {
	policyOnce.Do(func() {
		policy = bluemonday.StrictPolicy()
	})
	return policy
}

// Text strips every HTML tag from input and returns plain text with
// surrounding whitespace trimmed. Entities are decoded so "O'Brien" is
// stored as typed; output encoding happens at render time.
//
// Decoding can surface markup that was hidden behind entities
// ("&lt;script&gt;"), so the strip and decode steps repeat until the text
// stops changing. Input that never settles is returned still escaped.
func Text(input string) string {
	if input == "" {
		return ""
	}
	p := getPolicy()
	s := input
	for range maxPasses {
		clean := html.UnescapeString(p.Sanitize(s))
		if clean == s {
			return strings.TrimSpace(s)
		}
		s = clean
	}
	return strings.TrimSpace(p.Sanitize(s))
}
