package ir

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestProperties_CopyOnWrite(t *testing.T) {
	base := NewProperties(
		Property{Key: "mode", Value: Word("http")},
		Property{Key: "retries", Value: Int(3)},
	)

	updated := base.With("mode", Word("tcp")).With("maxconn", Int(100))
	removed := base.Without("mode")

	if v, _ := base.Get("mode"); v.Str != "http" {
		t.Errorf("receiver modified: mode = %q", v.Str)
	}
	if base.Len() != 2 {
		t.Errorf("receiver length = %d, want 2", base.Len())
	}
	if diff := cmp.Diff([]string{"mode", "retries", "maxconn"}, updated.Keys()); diff != "" {
		t.Errorf("updated keys mismatch (-want +got):\n%s", diff)
	}
	if v, _ := updated.Get("mode"); v.Str != "tcp" {
		t.Errorf("updated mode = %q, want tcp", v.Str)
	}
	if removed.Has("mode") || !removed.Has("retries") {
		t.Errorf("Without() keys = %v", removed.Keys())
	}
}

func TestProperties_Merge(t *testing.T) {
	local := NewProperties(Property{Key: "inter", Value: String("5s")})
	tmpl := NewProperties(
		Property{Key: "check", Value: Bool(true)},
		Property{Key: "inter", Value: String("3s")},
	)

	merged := local.Merge(tmpl)

	if v, _ := merged.Get("inter"); v.Str != "5s" {
		t.Errorf("local value lost: inter = %q", v.Str)
	}
	if v, ok := merged.Get("check"); !ok || !v.Bool {
		t.Error("template value not merged")
	}
	if local.Has("check") {
		t.Error("Merge modified the receiver")
	}
}

func TestProperties_NewKeepsLastDuplicate(t *testing.T) {
	p := NewProperties(
		Property{Key: "mode", Value: Word("http")},
		Property{Key: "balance", Value: Word("roundrobin")},
		Property{Key: "mode", Value: Word("tcp")},
	)
	if diff := cmp.Diff([]string{"mode", "balance"}, p.Keys()); diff != "" {
		t.Errorf("keys mismatch (-want +got):\n%s", diff)
	}
	if v, _ := p.Get("mode"); v.Str != "tcp" {
		t.Errorf("mode = %q, want tcp", v.Str)
	}
}

func TestProperties_Equal(t *testing.T) {
	a := NewProperties(Property{Key: "x", Value: Int(1)})
	b := NewProperties(Property{Key: "x", Value: Int(1)})
	if !a.Equal(b) {
		t.Error("equal maps reported different")
	}
	if a.Equal(b.With("x", Int(2))) {
		t.Error("different maps reported equal")
	}
	if !(Properties{}).Equal(NewProperties()) {
		t.Error("empty maps reported different")
	}
}
