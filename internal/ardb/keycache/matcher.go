package keycache

import "strings"

// PatternKind discriminates the shapes a key pattern can take. Most KEYS
// patterns in practice are a literal with at most a leading or trailing
// star; classifying them up front lets matching run on strings.HasPrefix
// and friends instead of the general glob machine.
type PatternKind uint8

const (
	// Exact matches the pattern literally.
	Exact PatternKind = iota
	// Prefix matches keys starting with the literal ("user:*").
	Prefix
	// Suffix matches keys ending with the literal ("*:inbox").
	Suffix
	// Substring matches keys containing the literal ("*cart*").
	Substring
	// Glob falls back to full glob matching (?, *, [...], \escape).
	Glob
)

// Pattern is a compiled key pattern: a kind plus the literal or glob text
// it matches against.
type Pattern struct {
	kind PatternKind
	text string
}

// ParsePattern classifies a glob pattern into its cheapest matcher. A
// pattern with no metacharacters is an exact match; a single leading,
// trailing, or surrounding star with a literal middle reduces to
// suffix/prefix/substring; anything else keeps the full glob.
func ParsePattern(pattern string) Pattern {
	if !strings.ContainsAny(pattern, "*?[\\") {
		return Pattern{kind: Exact, text: pattern}
	}

	trimmed := strings.Trim(pattern, "*")
	if !strings.ContainsAny(trimmed, "*?[\\") {
		leading := strings.HasPrefix(pattern, "*")
		trailing := strings.HasSuffix(pattern, "*")
		switch {
		case leading && trailing:
			return Pattern{kind: Substring, text: trimmed}
		case trailing:
			return Pattern{kind: Prefix, text: trimmed}
		case leading:
			return Pattern{kind: Suffix, text: trimmed}
		}
	}

	return Pattern{kind: Glob, text: pattern}
}

// Match reports whether key matches the pattern.
func (p Pattern) Match(key string) bool {
	switch p.kind {
	case Exact:
		return key == p.text
	case Prefix:
		return strings.HasPrefix(key, p.text)
	case Suffix:
		return strings.HasSuffix(key, p.text)
	case Substring:
		return strings.Contains(key, p.text)
	default:
		return globMatch(p.text, key)
	}
}

// globMatch implements Redis-style glob matching: '*' matches any sequence
// (including empty), '?' any single byte, '[...]' a class with optional
// leading '^' negation and 'a-z' ranges, and '\' escapes the next byte.
// Matching is done on bytes, not runes, mirroring how keys are compared
// everywhere else.
func globMatch(pattern, s string) bool {
	p, n := 0, 0
	// Backtracking points for the most recent '*'.
	starP, starN := -1, -1

	for n < len(s) {
		if p < len(pattern) {
			switch c := pattern[p]; c {
			case '*':
				// Collapse the star to "match empty" and remember where
				// to resume if the rest fails.
				starP = p
				starN = n
				p++
				continue
			case '?':
				p++
				n++
				continue
			case '[':
				if ok, next := classMatch(pattern, p, s[n]); ok {
					p = next
					n++
					continue
				}
			case '\\':
				if p+1 < len(pattern) && pattern[p+1] == s[n] {
					p += 2
					n++
					continue
				}
			default:
				if c == s[n] {
					p++
					n++
					continue
				}
			}
		}

		// Mismatch: give the last star one more byte, or fail.
		if starP == -1 {
			return false
		}
		starN++
		p = starP + 1
		n = starN
	}

	// Only trailing stars may remain in the pattern.
	for p < len(pattern) && pattern[p] == '*' {
		p++
	}
	return p == len(pattern)
}

// classMatch evaluates a '[...]' class starting at pattern[p] against byte
// c. Returns whether it matched and the pattern offset just past ']'. An
// unterminated class never matches.
func classMatch(pattern string, p int, c byte) (bool, int) {
	i := p + 1
	negate := false
	if i < len(pattern) && pattern[i] == '^' {
		negate = true
		i++
	}

	matched := false
	for i < len(pattern) && pattern[i] != ']' {
		if pattern[i] == '\\' && i+1 < len(pattern) {
			i++
			if pattern[i] == c {
				matched = true
			}
			i++
			continue
		}
		if i+2 < len(pattern) && pattern[i+1] == '-' && pattern[i+2] != ']' {
			lo, hi := pattern[i], pattern[i+2]
			if lo > hi {
				lo, hi = hi, lo
			}
			if lo <= c && c <= hi {
				matched = true
			}
			i += 3
			continue
		}
		if pattern[i] == c {
			matched = true
		}
		i++
	}
	if i >= len(pattern) {
		return false, p // unterminated class
	}
	return matched != negate, i + 1
}
