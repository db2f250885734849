package tier

import "testing"

func TestSymbolMatcher(t *testing.T) {
	m := NewSymbolMatcher(DefaultAliases())

	tests := []struct {
		name string
		a, b string
		want bool
	}{
		{"exact", "PEPE", "PEPE", true},
		{"case folded", "pepe", "PEPE", true},
		{"prefix stripped", "#PEPE", "$PEPE", true},
		{"alias base to variant", "SNOC", "SNOWBALL", true},
		{"alias variant to base", "SNOW", "SNOC", true},
		{"alias variant to variant", "SNOWBALL", "SNOW", true},
		{"alias fireball", "FIREBALL", "FIRE", true},
		{"alias bobo show", "BOBO", "BOBOSHOW", true},
		{"alias legendary", "LEGEND", "LEGENDARY", true},
		{"alias neurvona", "NEURVONA", "NEURON", true},
		{"containment min 4 chars", "PEPECOIN", "PEPE", true},
		{"no containment under 4 chars", "PEP", "PEPE", false},
		{"different symbols", "PEPE", "DOGE", false},
		{"empty left", "", "PEPE", false},
		{"empty right", "PEPE", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := m.Match(tt.a, tt.b); got != tt.want {
				t.Errorf("Match(%q, %q) = %v, want %v", tt.a, tt.b, got, tt.want)
			}
		})
	}
}

func TestNormalize(t *testing.T) {
	m := NewSymbolMatcher(nil)
	if got := m.Normalize("#$pepe"); got != "PEPE" {
		t.Errorf("Normalize(#$pepe) = %q, want PEPE", got)
	}
}
