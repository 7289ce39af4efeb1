// Package match decides whether a catalog candidate belongs to an entity.
package match

import (
	"regexp"
	"strings"
)

// suffixPattern strips one trailing corporate or product suffix, e.g. "Acme AI" -> "acme",
// "Widgets, Inc." -> "widgets".
var suffixPattern = regexp.MustCompile(`[\s,]+(?:ai|inc|labs|technologies|tech|io|hq|co|corp|corporation|ltd|llc)\.?$`)

// Variations returns the lowercase name forms used as match targets for an entity.
// The lowercase name is always first, so the result is never empty.
func Variations(name, slug string) []string {
	lower := strings.ToLower(strings.TrimSpace(name))
	slug = strings.ToLower(strings.TrimSpace(slug))

	seen := make(map[string]bool)
	var out []string
	add := func(v string, force bool) {
		if v == "" || seen[v] {
			return
		}
		if len(v) <= 1 && !force {
			return
		}
		seen[v] = true
		out = append(out, v)
	}

	add(lower, true)
	if slug != lower {
		add(slug, false)
	}

	base := strings.TrimSpace(suffixPattern.ReplaceAllString(lower, ""))
	add(base, false)

	// Joined forms of both the full and the suffix-stripped name: "acme-ai" and "acme".
	for _, form := range []string{lower, base} {
		words := strings.Fields(form)
		add(strings.Join(words, "-"), false)
		if joined := strings.Join(words, ""); len(joined) > 2 {
			add(joined, false)
		}
		add(strings.Join(words, "_"), false)
	}

	return out
}

// Handle converts an entity name into the form catalogs use for account names:
// lowercase, with runs of anything other than letters, digits, '-', '_' and '.'
// collapsed into a single hyphen.
func Handle(name string) string {
	var b strings.Builder
	pendingHyphen := false
	for _, r := range strings.ToLower(strings.TrimSpace(name)) {
		switch {
		case (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '-' || r == '_' || r == '.':
			if pendingHyphen && b.Len() > 0 {
				b.WriteByte('-')
			}
			pendingHyphen = false
			b.WriteRune(r)
		default:
			pendingHyphen = true
		}
	}
	return b.String()
}
