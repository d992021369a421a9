package query

import (
	"fmt"
	"strings"
)

// MatchMode declares how a filter field is compared
type MatchMode int

const (
	MatchSubstring MatchMode = iota
	MatchExact
)

// Filter is the enumerated search schema. Scalars that are empty and lists
// that are empty contribute no clause.
type Filter struct {
	Authors  []string `json:"authors,omitempty"`
	Text     string   `json:"text,omitempty"`
	Hashtags []string `json:"hashtags,omitempty"`
	Media    []string `json:"media_uris,omitempty"`
}

type fieldSpec struct {
	param string
	field Field
	mode  MatchMode
	list  bool
	get   func(*Filter) []string
	set   func(*Filter, []string)
}

var schema = []fieldSpec{
	{
		param: "authors", field: FieldAuthor, mode: MatchExact, list: true,
		get: func(f *Filter) []string { return f.Authors },
		set: func(f *Filter, v []string) { f.Authors = v },
	},
	{
		param: "text", field: FieldText, mode: MatchSubstring,
		get: func(f *Filter) []string { return scalar(f.Text) },
		set: func(f *Filter, v []string) { f.Text = strings.Join(v, " ") },
	},
	{
		param: "hashtags", field: FieldHashtags, mode: MatchSubstring, list: true,
		get: func(f *Filter) []string { return f.Hashtags },
		set: func(f *Filter, v []string) { f.Hashtags = v },
	},
	{
		param: "media_uris", field: FieldMediaURIs, mode: MatchSubstring, list: true,
		get: func(f *Filter) []string { return f.Media },
		set: func(f *Filter, v []string) { f.Media = v },
	},
}

func scalar(s string) []string {
	if s == "" {
		return nil
	}
	return []string{s}
}

// Visibility carries the caller's requested private and blocked flags
type Visibility struct {
	Public  bool
	Private bool
	Blocked bool
}

// Build translates a filter into a predicate:
// AND over present fields of (OR over values of field MATCH value),
// AND (is_private = false OR is_private = private), AND (is_blocked = false OR is_blocked = blocked).
func Build(f Filter, private, blocked bool) Predicate {
	clauses := make([]Predicate, 0, len(schema)+2)
	for _, spec := range schema {
		values := spec.get(&f)
		if len(values) == 0 {
			continue
		}
		alts := make([]Predicate, 0, len(values))
		for _, v := range values {
			if spec.mode == MatchExact {
				alts = append(alts, Equals(spec.field, v))
			} else {
				alts = append(alts, Contains(spec.field, v))
			}
		}
		clauses = append(clauses, Or(alts...))
	}
	clauses = append(clauses,
		Or(Equals(FieldIsPrivate, false), Equals(FieldIsPrivate, private)),
		Or(Equals(FieldIsBlocked, false), Equals(FieldIsBlocked, blocked)),
	)
	return And(clauses...)
}

// ForVisibility builds the read predicate for a public/private request:
// both flags select the union, one flag pins is_private, neither matches nothing.
func ForVisibility(f Filter, vis Visibility) Predicate {
	base := Build(f, vis.Private, vis.Blocked)
	switch {
	case vis.Public && vis.Private:
		return base
	case vis.Public:
		return And(base, Equals(FieldIsPrivate, false))
	case vis.Private:
		return And(base, Equals(FieldIsPrivate, true))
	}
	return False()
}

// FilterFromParams reads a loosely typed parameter map. Unknown keys and
// values of unsupported types are ignored, not rejected.
func FilterFromParams(params map[string]interface{}) Filter {
	var f Filter
	for _, spec := range schema {
		raw, ok := params[spec.param]
		if !ok {
			continue
		}
		switch v := raw.(type) {
		case string:
			if v != "" {
				spec.set(&f, []string{v})
			}
		case []string:
			spec.set(&f, v)
		case []interface{}:
			values := make([]string, 0, len(v))
			for _, item := range v {
				if s, ok := item.(string); ok {
					values = append(values, s)
				}
			}
			spec.set(&f, values)
		}
	}
	return f
}

// String renders the predicate for logs
func (p Predicate) String() string {
	switch p.Op {
	case OpTrue:
		return "TRUE"
	case OpFalse:
		return "FALSE"
	case OpAnd, OpOr:
		sep := " AND "
		if p.Op == OpOr {
			sep = " OR "
		}
		parts := make([]string, len(p.Children))
		for i, c := range p.Children {
			parts[i] = c.String()
		}
		return "(" + strings.Join(parts, sep) + ")"
	case OpContains:
		return fmt.Sprintf("%s CONTAINS %q", p.Field, p.Value)
	case OpEquals:
		return fmt.Sprintf("%s = %v", p.Field, p.Value)
	}
	return "?"
}
