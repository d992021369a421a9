package postgres

import (
	"fmt"
	"strings"

	"github.com/snapshare/snapfeed/internal/query"
)

var columns = map[query.Field]string{
	query.FieldAuthor:    "author_id",
	query.FieldText:      "text",
	query.FieldHashtags:  "hashtags",
	query.FieldMediaURIs: "media_uris",
	query.FieldIsPrivate: "is_private",
	query.FieldIsBlocked: "is_blocked",
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// toSQL renders a predicate as a parameterised WHERE fragment.
// Column names only come from the fixed column map.
func toSQL(p query.Predicate) (string, []interface{}, error) {
	switch p.Op {
	case query.OpTrue:
		return "TRUE", nil, nil
	case query.OpFalse:
		return "FALSE", nil, nil
	case query.OpAnd, query.OpOr:
		sep := " AND "
		if p.Op == query.OpOr {
			sep = " OR "
		}
		parts := make([]string, 0, len(p.Children))
		var args []interface{}
		for _, c := range p.Children {
			frag, a, err := toSQL(c)
			if err != nil {
				return "", nil, err
			}
			parts = append(parts, frag)
			args = append(args, a...)
		}
		return "(" + strings.Join(parts, sep) + ")", args, nil
	}

	col, ok := columns[p.Field]
	if !ok {
		return "", nil, fmt.Errorf("unknown field %q", p.Field)
	}

	switch p.Op {
	case query.OpContains:
		s, _ := p.Value.(string)
		pattern := "%" + likeEscaper.Replace(s) + "%"
		if p.Field.IsList() {
			return "EXISTS (SELECT 1 FROM unnest(" + col + ") AS elem WHERE elem LIKE ?)", []interface{}{pattern}, nil
		}
		return col + " LIKE ?", []interface{}{pattern}, nil
	case query.OpEquals:
		if p.Field.IsList() {
			return "?::text = ANY(" + col + ")", []interface{}{p.Value}, nil
		}
		return col + " = ?", []interface{}{p.Value}, nil
	}
	return "", nil, fmt.Errorf("unsupported operator %d", p.Op)
}
