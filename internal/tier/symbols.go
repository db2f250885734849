package tier

import "strings"

// SymbolMatcher performs fuzzy symbol equality: prefix stripping, case
// folding, a configurable alias table and substring containment. Feed authors
// rarely agree on how to spell a ticker.
type SymbolMatcher struct {
	aliases map[string][]string
}

// DefaultAliases returns the known ticker variations observed across feeds.
func DefaultAliases() map[string][]string {
	return map[string][]string{
		"SNOC":      {"SNOWBALL", "SNOW"},
		"SNOWBALL":  {"SNOC", "SNOW"},
		"FIREBALL":  {"FIRE"},
		"BOBO":      {"BOBO SHOW", "BOBOSHOW"},
		"BOBO SHOW": {"BOBO", "BOBOSHOW"},
		"LEGENDARY": {"LEGEND"},
		"NEURVONA":  {"NEURONA", "NEURON"},
	}
}

// NewSymbolMatcher creates a matcher with the given alias table. A nil table
// means no aliases.
func NewSymbolMatcher(aliases map[string][]string) *SymbolMatcher {
	if aliases == nil {
		aliases = map[string][]string{}
	}
	return &SymbolMatcher{aliases: aliases}
}

// Normalize strips #/$ prefixes and uppercases a symbol.
func (m *SymbolMatcher) Normalize(symbol string) string {
	return strings.ToUpper(strings.Trim(symbol, "#$"))
}

// Match reports whether two symbols refer to the same token.
func (m *SymbolMatcher) Match(a, b string) bool {
	if a == "" || b == "" {
		return false
	}

	s1 := m.Normalize(a)
	s2 := m.Normalize(b)

	if s1 == s2 {
		return true
	}

	for base, variants := range m.aliases {
		if (s1 == base && contains(variants, s2)) ||
			(s2 == base && contains(variants, s1)) ||
			(contains(variants, s1) && contains(variants, s2)) {
			return true
		}
	}

	// Containment match, minimum 4 characters to avoid noise.
	if len(s1) >= 4 && len(s2) >= 4 {
		if strings.Contains(s1, s2) || strings.Contains(s2, s1) {
			return true
		}
	}

	return false
}

func contains(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}
