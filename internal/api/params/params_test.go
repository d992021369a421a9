package params

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/snapshare/snapfeed/internal/apperr"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		wantErr bool
		wantKey string
	}{
		{name: "empty", raw: ""},
		{name: "null", raw: "null"},
		{name: "object", raw: `{"user":"a"}`, wantKey: "user"},
		{name: "wrapped object", raw: `[{"user":"a"}]`, wantKey: "user"},
		{name: "empty array", raw: `[]`},
		{name: "two objects", raw: `[{},{}]`, wantErr: true},
		{name: "positional", raw: `["a", 1]`, wantErr: true},
		{name: "scalar", raw: `42`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := Parse("op", json.RawMessage(tt.raw))
			if tt.wantErr {
				if !errors.Is(err, apperr.ErrInvalidArgument) {
					t.Fatalf("error = %v, want invalid argument", err)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if p == nil {
				t.Fatal("nil params")
			}
			if tt.wantKey != "" && p.String(tt.wantKey) == "" {
				t.Errorf("missing %s in %v", tt.wantKey, p)
			}
		})
	}
}

func TestParams_Getters(t *testing.T) {
	p, err := Parse("op", json.RawMessage(`{
		"user": "alice", "limit": 5, "page": 1.5, "flag": true, "bad_flag": "yes",
		"tags": ["#a", "#b"], "mixed": ["#a", 1], "text": ""
	}`))
	if err != nil {
		t.Fatal(err)
	}

	if _, err := p.RequireString("op", "missing"); !errors.Is(err, apperr.ErrInvalidArgument) {
		t.Errorf("RequireString(missing) error = %v", err)
	}
	if v, _ := p.Int("op", "limit", 20); v != 5 {
		t.Errorf("limit = %d, want 5", v)
	}
	if _, err := p.Int("op", "page", 0); err == nil {
		t.Error("fractional page accepted")
	}
	if v, _ := p.Int("op", "absent", 7); v != 7 {
		t.Errorf("default int = %d, want 7", v)
	}
	if v, _ := p.Bool("op", "flag", false); !v {
		t.Error("flag = false")
	}
	if _, err := p.Bool("op", "bad_flag", false); err == nil {
		t.Error("string accepted as bool")
	}
	if v, _ := p.Strings("op", "tags"); len(v) != 2 {
		t.Errorf("tags = %v", v)
	}
	if _, err := p.Strings("op", "mixed"); err == nil {
		t.Error("mixed list accepted")
	}
	if v, _ := p.OptionalString("op", "text"); v == nil || *v != "" {
		t.Errorf("present empty text = %v", v)
	}
	if v, _ := p.OptionalString("op", "absent"); v != nil {
		t.Errorf("absent text = %v", v)
	}
}
