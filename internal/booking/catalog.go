package booking

import "strings"

// Catalog is the configured set of appointment categories in display order.
type Catalog []string

// Match resolves a candidate booking type to its canonical catalog entry.
// The candidate matches when it equals an entry or is a substring of one,
// ignoring case.
func (c Catalog) Match(candidate string) (string, bool) {
	want := strings.ToLower(strings.TrimSpace(candidate))
	if want == "" {
		return "", false
	}
	for _, entry := range c {
		if strings.ToLower(entry) == want {
			return entry, true
		}
	}
	for _, entry := range c {
		if strings.Contains(strings.ToLower(entry), want) {
			return entry, true
		}
	}
	return "", false
}

// Find returns the first catalog entry mentioned anywhere in text.
func (c Catalog) Find(text string) (string, bool) {
	lower := strings.ToLower(text)
	for _, entry := range c {
		if strings.Contains(lower, strings.ToLower(entry)) {
			return entry, true
		}
	}
	return "", false
}

// String joins the entries the way prompts list them.
func (c Catalog) String() string {
	return strings.Join(c, ", ")
}
