package index

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/cpfiffer/outlines/grammar"
)

func TestCodecRoundTrip(t *testing.T) {
	a := compile(t, grammar.Regex(`[0-9]{3}`))
	vocab := testVocab("1", "23", "456")
	x, err := Build(a, vocab)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	path := filepath.Join(t.TempDir(), "digits.idx")
	if err := Save(path, 111, 222, a, x); err != nil {
		t.Fatalf("Save: %v", err)
	}

	la, lx, err := Load(path, 111, 222)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if la.NumStates() != a.NumStates() || la.Start != a.Start {
		t.Errorf("automaton shape changed: %d/%d states, start %d/%d",
			la.NumStates(), a.NumStates(), la.Start, a.Start)
	}
	if !la.Match("123") || la.Match("12") {
		t.Error("reloaded automaton accepts a different language")
	}

	if lx.Start() != x.Start() || lx.NumStates() != x.NumStates() {
		t.Fatalf("index shape changed")
	}
	for s := 0; s < x.NumStates(); s++ {
		st := StateID(s)
		if diff := cmp.Diff(x.Allowed(st), lx.Allowed(st)); diff != "" {
			t.Errorf("state %d mask changed (-want +got):\n%s", s, diff)
		}
		if x.EOSAllowed(st) != lx.EOSAllowed(st) {
			t.Errorf("state %d EOS flag changed", s)
		}
		for _, id := range x.Allowed(st) {
			want, _ := x.Next(st, id)
			got, ok := lx.Next(st, id)
			if !ok || got != want {
				t.Errorf("state %d token %d: next = %d, want %d", s, id, got, want)
			}
		}
	}
}

func TestCodecStale(t *testing.T) {
	a := compile(t, grammar.Regex(`ab`))
	vocab := testVocab("a", "b")
	x, err := Build(a, vocab)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	path := filepath.Join(t.TempDir(), "x.idx")
	if err := Save(path, 1, 2, a, x); err != nil {
		t.Fatalf("Save: %v", err)
	}

	if _, _, err := Load(path, 999, 2); !errors.Is(err, ErrStale) {
		t.Errorf("grammar hash mismatch: Load = %v, want ErrStale", err)
	}
	if _, _, err := Load(path, 1, 999); !errors.Is(err, ErrStale) {
		t.Errorf("vocabulary hash mismatch: Load = %v, want ErrStale", err)
	}
}

func TestCodecMissingFile(t *testing.T) {
	_, _, err := Load(filepath.Join(t.TempDir(), "nope.idx"), 1, 2)
	if !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("Load = %v, want not-exist", err)
	}
}

func TestCodecCorrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.idx")
	if err := os.WriteFile(path, []byte("not cbor"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, _, err := Load(path, 1, 2); err == nil {
		t.Fatal("Load of garbage succeeded")
	}
}
