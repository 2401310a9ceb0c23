package trait

import "testing"

func TestDefault(t *testing.T) {
	r := Default()
	if r.Len() != 12 {
		t.Fatalf("expected 12 traits, got %d", r.Len())
	}
	for _, c := range DefaultCritical {
		if !r.IsCritical(c) {
			t.Errorf("expected %s to be critical", c)
		}
	}
	if r.IsCritical("T1") {
		t.Errorf("T1 should not be critical by default")
	}
}

func TestRegistryIndexOf(t *testing.T) {
	r := Default()
	seen := make(map[int]bool)
	for _, c := range r.Codes() {
		idx, ok := r.IndexOf(c)
		if !ok {
			t.Fatalf("expected %s to have an index", c)
		}
		if seen[idx] {
			t.Fatalf("duplicate index %d", idx)
		}
		seen[idx] = true
	}
	if _, ok := r.IndexOf("T99"); ok {
		t.Errorf("expected unknown trait to be absent")
	}
}

func TestNewRegistryValidation(t *testing.T) {
	cases := []struct {
		name     string
		traits   []Trait
		critical []Code
	}{
		{"empty traits", nil, []Code{"T1"}},
		{"empty critical", []Trait{{"T1", "a"}}, nil},
		{"duplicate code", []Trait{{"T1", "a"}, {"T1", "b"}}, []Code{"T1"}},
		{"unknown critical", []Trait{{"T1", "a"}}, []Code{"T2"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := NewRegistry(tc.traits, tc.critical); err == nil {
				t.Fatalf("expected error for %s", tc.name)
			}
		})
	}
}

func TestRegistryCriticalOrder(t *testing.T) {
	r := Default()
	crit := r.Critical()
	if len(crit) != len(DefaultCritical) {
		t.Fatalf("expected %d critical traits, got %d", len(DefaultCritical), len(crit))
	}
	// Critical() must follow registry order, not DefaultCritical's declaration order.
	lastIdx := -1
	for _, c := range crit {
		idx, _ := r.IndexOf(c)
		if idx <= lastIdx {
			t.Fatalf("critical traits out of registry order at %s", c)
		}
		lastIdx = idx
	}
}
