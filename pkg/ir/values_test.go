package ir

import (
	"testing"
	"time"
)

func TestParseDuration(t *testing.T) {
	tests := []struct {
		in      string
		want    time.Duration
		wantErr bool
	}{
		{"5s", 5 * time.Second, false},
		{"100ms", 100 * time.Millisecond, false},
		{"250us", 250 * time.Microsecond, false},
		{"2m", 2 * time.Minute, false},
		{"1h", time.Hour, false},
		{"1d", 24 * time.Hour, false},
		{"5", 0, true},
		{"5x", 0, true},
		{"s", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseDuration(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseDuration(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseDuration(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want string
	}{
		{0, "0s"},
		{5 * time.Second, "5s"},
		{1500 * time.Millisecond, "1500ms"},
		{90 * time.Second, "90s"},
		{120 * time.Second, "2m"},
		{48 * time.Hour, "2d"},
		{-3 * time.Second, "-3s"},
		{1500 * time.Microsecond, "1500us"},
	}

	for _, tt := range tests {
		if got := FormatDuration(tt.in); got != tt.want {
			t.Errorf("FormatDuration(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestValue_IsResolved(t *testing.T) {
	interp := Interp([]Part{{Text: "web"}, {Text: "i", Expr: true}})

	tests := []struct {
		name string
		v    Value
		want bool
	}{
		{"string", String("x"), true},
		{"interp", interp, false},
		{"env", Env("PORT", nil), false},
		{"list of resolved", List(Int(1), Word("a")), true},
		{"list with interp", List(Int(1), interp), false},
		{"object with interp", Object(NewProperties(Property{Key: "a", Value: interp})), false},
		{"nested object", Object(NewProperties(Property{Key: "a", Value: Duration(time.Second, "1s")})), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.v.IsResolved(); got != tt.want {
				t.Errorf("IsResolved() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestInterp_CollapsesLiteralParts(t *testing.T) {
	v := Interp([]Part{{Text: "a"}, {Text: "b"}})
	if v.Kind != StringValue || v.Str != "ab" {
		t.Errorf("Interp without expressions = %+v, want string \"ab\"", v)
	}
}

func TestValue_Text(t *testing.T) {
	tests := []struct {
		v    Value
		want string
	}{
		{Int(42), "42"},
		{Float(1.5), "1.5"},
		{Bool(true), "true"},
		{Duration(3*time.Second, "3s"), "3s"},
		{Duration(3*time.Second, ""), "3s"},
		{List(Word("h2"), String("http/1.1")), "h2,http/1.1"},
		{Interp([]Part{{Text: "10.0.1."}, {Text: "i", Expr: true}}), "10.0.1.${i}"},
	}

	for _, tt := range tests {
		if got := tt.v.Text(); got != tt.want {
			t.Errorf("Text() = %q, want %q", got, tt.want)
		}
	}
}

func TestValue_SingleExpr(t *testing.T) {
	if expr, ok := Interp([]Part{{Text: "port", Expr: true}}).SingleExpr(); !ok || expr != "port" {
		t.Errorf("SingleExpr() = %q, %v", expr, ok)
	}
	if _, ok := Interp([]Part{{Text: "x"}, {Text: "port", Expr: true}}).SingleExpr(); ok {
		t.Error("SingleExpr() should reject partial interpolation")
	}
}
