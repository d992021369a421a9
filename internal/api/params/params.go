// Package params decodes named JSON-RPC parameters
package params

import (
	"bytes"
	"encoding/json"
	"math"

	"github.com/snapshare/snapfeed/internal/apperr"
)

// DefaultLimit is used when a paged method is called without a limit
const DefaultLimit = 20

// Params is a decoded parameter object
type Params map[string]interface{}

// Parse accepts an object, a one-element array holding an object, or nothing
func Parse(op string, raw json.RawMessage) (Params, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return Params{}, nil
	}
	var p Params
	if raw[0] == '[' {
		var list []Params
		if err := json.Unmarshal(raw, &list); err != nil || len(list) > 1 {
			return nil, apperr.Invalid(op, "params must be an object")
		}
		if len(list) == 1 {
			p = list[0]
		}
	} else if err := json.Unmarshal(raw, &p); err != nil {
		return nil, apperr.Invalid(op, "params must be an object")
	}
	if p == nil {
		p = Params{}
	}
	return p, nil
}

// String returns key as a string, "" when absent or not a string
func (p Params) String(key string) string {
	s, _ := p[key].(string)
	return s
}

// RequireString returns key or an InvalidArgument error naming it
func (p Params) RequireString(op, key string) (string, error) {
	s, ok := p[key].(string)
	if !ok || s == "" {
		return "", apperr.Invalid(op, "missing required parameter: %s", key)
	}
	return s, nil
}

// Bool returns key, or def when absent
func (p Params) Bool(op, key string, def bool) (bool, error) {
	v, ok := p[key]
	if !ok || v == nil {
		return def, nil
	}
	b, ok := v.(bool)
	if !ok {
		return false, apperr.Invalid(op, "%s must be a boolean", key)
	}
	return b, nil
}

// Int returns key as a whole number, or def when absent
func (p Params) Int(op, key string, def int) (int, error) {
	v, ok := p[key]
	if !ok || v == nil {
		return def, nil
	}
	f, ok := v.(float64)
	if !ok || f != math.Trunc(f) || math.Abs(f) > math.MaxInt32 {
		return 0, apperr.Invalid(op, "%s must be an integer", key)
	}
	return int(f), nil
}

// OptionalString returns a pointer to key when present
func (p Params) OptionalString(op, key string) (*string, error) {
	v, ok := p[key]
	if !ok || v == nil {
		return nil, nil
	}
	s, ok := v.(string)
	if !ok {
		return nil, apperr.Invalid(op, "%s must be a string", key)
	}
	return &s, nil
}

// OptionalBool returns a pointer to key when present
func (p Params) OptionalBool(op, key string) (*bool, error) {
	v, ok := p[key]
	if !ok || v == nil {
		return nil, nil
	}
	b, ok := v.(bool)
	if !ok {
		return nil, apperr.Invalid(op, "%s must be a boolean", key)
	}
	return &b, nil
}

// Strings returns key as a list of strings, nil when absent
func (p Params) Strings(op, key string) ([]string, error) {
	v, ok := p[key]
	if !ok || v == nil {
		return nil, nil
	}
	list, ok := v.([]interface{})
	if !ok {
		return nil, apperr.Invalid(op, "%s must be a list of strings", key)
	}
	out := make([]string, 0, len(list))
	for _, item := range list {
		s, ok := item.(string)
		if !ok {
			return nil, apperr.Invalid(op, "%s must be a list of strings", key)
		}
		out = append(out, s)
	}
	return out, nil
}

// OptionalStrings returns a pointer to key when present
func (p Params) OptionalStrings(op, key string) (*[]string, error) {
	if _, ok := p[key]; !ok {
		return nil, nil
	}
	s, err := p.Strings(op, key)
	if err != nil || s == nil {
		return nil, err
	}
	return &s, nil
}

// Page returns limit and page, defaulting to DefaultLimit and 0
func (p Params) Page(op string) (int, int, error) {
	limit, err := p.Int(op, "limit", DefaultLimit)
	if err != nil {
		return 0, 0, err
	}
	page, err := p.Int(op, "page", 0)
	if err != nil {
		return 0, 0, err
	}
	return limit, page, nil
}

// Pair returns the user and post parameters every engagement method takes
func (p Params) Pair(op string) (string, string, error) {
	user, err := p.RequireString(op, "user")
	if err != nil {
		return "", "", err
	}
	post, err := p.RequireString(op, "post_id")
	if err != nil {
		return "", "", err
	}
	return user, post, nil
}
