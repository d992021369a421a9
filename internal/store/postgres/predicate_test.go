package postgres

import (
	"testing"

	"github.com/snapshare/snapfeed/internal/query"
)

func TestToSQL(t *testing.T) {
	tests := []struct {
		name     string
		pred     query.Predicate
		wantSQL  string
		wantArgs []interface{}
	}{
		{
			name:    "true",
			pred:    query.True(),
			wantSQL: "TRUE",
		},
		{
			name:     "text substring escapes wildcards",
			pred:     query.Contains(query.FieldText, "50%_off"),
			wantSQL:  "text LIKE ?",
			wantArgs: []interface{}{`%50\%\_off%`},
		},
		{
			name:     "hashtag substring",
			pred:     query.Contains(query.FieldHashtags, "#x"),
			wantSQL:  "EXISTS (SELECT 1 FROM unnest(hashtags) AS elem WHERE elem LIKE ?)",
			wantArgs: []interface{}{"%#x%"},
		},
		{
			name: "visibility clause",
			pred: query.Or(
				query.Equals(query.FieldIsPrivate, false),
				query.Equals(query.FieldIsPrivate, true),
			),
			wantSQL:  "(is_private = ? OR is_private = ?)",
			wantArgs: []interface{}{false, true},
		},
		{
			name: "and of author and tag",
			pred: query.And(
				query.Equals(query.FieldAuthor, "alice"),
				query.Contains(query.FieldHashtags, "#go"),
			),
			wantSQL:  "(author_id = ? AND EXISTS (SELECT 1 FROM unnest(hashtags) AS elem WHERE elem LIKE ?))",
			wantArgs: []interface{}{"alice", "%#go%"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sql, args, err := toSQL(tt.pred)
			if err != nil {
				t.Fatalf("toSQL() error = %v", err)
			}
			if sql != tt.wantSQL {
				t.Errorf("toSQL() sql = %q, want %q", sql, tt.wantSQL)
			}
			if len(args) != len(tt.wantArgs) {
				t.Fatalf("toSQL() args = %v, want %v", args, tt.wantArgs)
			}
			for i := range args {
				if args[i] != tt.wantArgs[i] {
					t.Errorf("arg %d = %v, want %v", i, args[i], tt.wantArgs[i])
				}
			}
		})
	}
}

func TestToSQL_UnknownField(t *testing.T) {
	if _, _, err := toSQL(query.Contains("bio", "x")); err == nil {
		t.Error("toSQL() should reject unknown fields")
	}
}
