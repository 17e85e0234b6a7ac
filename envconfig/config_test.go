package envconfig

import "testing"

func TestBool(t *testing.T) {
	cases := map[string]bool{
		"":      false,
		"0":     false,
		"false": false,
		"1":     true,
		"true":  true,
		"yes":   true, // unparseable values count as set
	}
	for value, want := range cases {
		t.Run(value, func(t *testing.T) {
			t.Setenv("OUTLINES_DEBUG", value)
			if got := Debug(); got != want {
				t.Errorf("Debug() = %v with %q, want %v", got, value, want)
			}
		})
	}
}

func TestUint(t *testing.T) {
	cases := map[string]uint{
		"":    32,
		"0":   0,
		"5":   5,
		"-1":  32, // negatives fall back to the default
		"abc": 32,
	}
	for value, want := range cases {
		t.Run(value, func(t *testing.T) {
			t.Setenv("OUTLINES_CACHE_ENTRIES", value)
			if got := CacheEntries(); got != want {
				t.Errorf("CacheEntries() = %d with %q, want %d", got, value, want)
			}
		})
	}
}

func TestString(t *testing.T) {
	t.Setenv("OUTLINES_INDEX_DIR", "/tmp/idx")
	if got := IndexDir(); got != "/tmp/idx" {
		t.Errorf("IndexDir() = %q", got)
	}
}

func TestAsMapCoversKnownVars(t *testing.T) {
	m := AsMap()
	for _, name := range []string{"OUTLINES_DEBUG", "OUTLINES_CACHE_ENTRIES", "OUTLINES_WORKERS", "OUTLINES_INDEX_DIR"} {
		ev, ok := m[name]
		if !ok {
			t.Errorf("AsMap missing %s", name)
			continue
		}
		if ev.Name != name {
			t.Errorf("AsMap[%s].Name = %s", name, ev.Name)
		}
	}
}
