package mongostore

import (
	"fmt"
	"regexp"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/snapshare/snapfeed/internal/query"
)

var keys = map[query.Field]string{
	query.FieldAuthor:    "author_id",
	query.FieldText:      "text",
	query.FieldHashtags:  "hashtags",
	query.FieldMediaURIs: "media_uris",
	query.FieldIsPrivate: "is_private",
	query.FieldIsBlocked: "is_blocked",
}

// toBSON renders a predicate as a query document. Array fields match when any
// element matches, which is Mongo's native semantics for both operators.
func toBSON(p query.Predicate) (bson.M, error) {
	switch p.Op {
	case query.OpTrue:
		return bson.M{}, nil
	case query.OpFalse:
		return bson.M{"_id": bson.M{"$in": bson.A{}}}, nil
	case query.OpAnd, query.OpOr:
		children := make(bson.A, 0, len(p.Children))
		for _, c := range p.Children {
			doc, err := toBSON(c)
			if err != nil {
				return nil, err
			}
			children = append(children, doc)
		}
		if p.Op == query.OpAnd {
			return bson.M{"$and": children}, nil
		}
		return bson.M{"$or": children}, nil
	}

	key, ok := keys[p.Field]
	if !ok {
		return nil, fmt.Errorf("unknown field %q", p.Field)
	}
	switch p.Op {
	case query.OpContains:
		s, _ := p.Value.(string)
		return bson.M{key: bson.M{"$regex": regexp.QuoteMeta(s)}}, nil
	case query.OpEquals:
		return bson.M{key: p.Value}, nil
	}
	return nil, fmt.Errorf("unsupported operator %d", p.Op)
}
