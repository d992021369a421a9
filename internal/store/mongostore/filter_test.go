package mongostore

import (
	"reflect"
	"testing"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/snapshare/snapfeed/internal/query"
)

func TestToBSON(t *testing.T) {
	tests := []struct {
		name string
		pred query.Predicate
		want bson.M
	}{
		{
			name: "true matches everything",
			pred: query.True(),
			want: bson.M{},
		},
		{
			name: "false matches nothing",
			pred: query.False(),
			want: bson.M{"_id": bson.M{"$in": bson.A{}}},
		},
		{
			name: "substring is quoted",
			pred: query.Contains(query.FieldText, "a+b"),
			want: bson.M{"text": bson.M{"$regex": `a\+b`}},
		},
		{
			name: "or of hashtags",
			pred: query.Or(
				query.Contains(query.FieldHashtags, "#x"),
				query.Contains(query.FieldHashtags, "#y"),
			),
			want: bson.M{"$or": bson.A{
				bson.M{"hashtags": bson.M{"$regex": "#x"}},
				bson.M{"hashtags": bson.M{"$regex": "#y"}},
			}},
		},
		{
			name: "and with flag",
			pred: query.And(
				query.Equals(query.FieldAuthor, "alice"),
				query.Equals(query.FieldIsBlocked, false),
			),
			want: bson.M{"$and": bson.A{
				bson.M{"author_id": "alice"},
				bson.M{"is_blocked": false},
			}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := toBSON(tt.pred)
			if err != nil {
				t.Fatalf("toBSON() error = %v", err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("toBSON() = %v, want %v", got, tt.want)
			}
		})
	}
}
