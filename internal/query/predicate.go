// Package query builds store-level predicate trees for post searches.
package query

import (
	"strings"

	"github.com/snapshare/snapfeed/internal/models"
)

// Field is a post attribute a predicate can test
type Field string

const (
	FieldAuthor    Field = "author_id"
	FieldText      Field = "text"
	FieldHashtags  Field = "hashtags"
	FieldMediaURIs Field = "media_uris"
	FieldIsPrivate Field = "is_private"
	FieldIsBlocked Field = "is_blocked"
)

// IsList reports whether the field holds a list of strings
func (f Field) IsList() bool {
	return f == FieldHashtags || f == FieldMediaURIs
}

// Op is the node type of a predicate
type Op int

const (
	OpTrue     Op = iota // matches everything
	OpFalse              // matches nothing
	OpAnd                // all children
	OpOr                 // any child
	OpContains           // substring; any element for list fields
	OpEquals             // exact match; any element for list fields
)

// Predicate is a boolean tree over post fields
type Predicate struct {
	Op       Op
	Field    Field
	Value    interface{}
	Children []Predicate
}

// True matches every post
func True() Predicate { return Predicate{Op: OpTrue} }

// False matches no post
func False() Predicate { return Predicate{Op: OpFalse} }

// Contains tests field for a substring
func Contains(f Field, s string) Predicate {
	return Predicate{Op: OpContains, Field: f, Value: s}
}

// Equals tests field for an exact value
func Equals(f Field, v interface{}) Predicate {
	return Predicate{Op: OpEquals, Field: f, Value: v}
}

// And combines predicates; trivially true children are dropped
func And(children ...Predicate) Predicate {
	kept := make([]Predicate, 0, len(children))
	for _, c := range children {
		switch c.Op {
		case OpTrue:
			continue
		case OpFalse:
			return False()
		}
		kept = append(kept, c)
	}
	switch len(kept) {
	case 0:
		return True()
	case 1:
		return kept[0]
	}
	return Predicate{Op: OpAnd, Children: kept}
}

// Or combines predicates. An empty Or matches nothing; callers that mean
// "don't care" must not build one.
func Or(children ...Predicate) Predicate {
	kept := make([]Predicate, 0, len(children))
	for _, c := range children {
		switch c.Op {
		case OpTrue:
			return True()
		case OpFalse:
			continue
		}
		kept = append(kept, c)
	}
	switch len(kept) {
	case 0:
		return False()
	case 1:
		return kept[0]
	}
	return Predicate{Op: OpOr, Children: kept}
}

// Match evaluates the predicate against a post
func (p Predicate) Match(post *models.Post) bool {
	switch p.Op {
	case OpTrue:
		return true
	case OpFalse:
		return false
	case OpAnd:
		for _, c := range p.Children {
			if !c.Match(post) {
				return false
			}
		}
		return true
	case OpOr:
		for _, c := range p.Children {
			if c.Match(post) {
				return true
			}
		}
		return false
	case OpContains:
		s, _ := p.Value.(string)
		for _, v := range stringValues(post, p.Field) {
			if strings.Contains(v, s) {
				return true
			}
		}
		return false
	case OpEquals:
		switch p.Field {
		case FieldIsPrivate:
			b, ok := p.Value.(bool)
			return ok && post.IsPrivate == b
		case FieldIsBlocked:
			b, ok := p.Value.(bool)
			return ok && post.IsBlocked == b
		}
		s, _ := p.Value.(string)
		for _, v := range stringValues(post, p.Field) {
			if v == s {
				return true
			}
		}
		return false
	}
	return false
}

func stringValues(post *models.Post, f Field) []string {
	switch f {
	case FieldAuthor:
		return []string{post.AuthorID}
	case FieldText:
		return []string{post.Text}
	case FieldHashtags:
		return post.Hashtags
	case FieldMediaURIs:
		return post.MediaURIs
	}
	return nil
}
