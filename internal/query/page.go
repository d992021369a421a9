package query

import (
	"github.com/snapshare/snapfeed/internal/apperr"
)

// Page is a validated (limit, page) pair
type Page struct {
	Limit int
	Page  int
}

// NewPage rejects non-positive limits and negative pages and clamps limit to max
func NewPage(op string, limit, page, max int) (Page, error) {
	if limit <= 0 {
		return Page{}, apperr.Invalid(op, "limit must be positive")
	}
	if page < 0 {
		return Page{}, apperr.Invalid(op, "page must not be negative")
	}
	if max > 0 && limit > max {
		limit = max
	}
	return Page{Limit: limit, Page: page}, nil
}

// Skip is the index of the first element of the window
func (p Page) Skip() int {
	return p.Limit * p.Page
}

// End is the exclusive end of the window
func (p Page) End() int {
	return p.Limit * (p.Page + 1)
}

// Window returns the bounds of [limit*page, limit*(page+1)) clipped to n
func (p Page) Window(n int) (int, int) {
	from, to := p.Skip(), p.End()
	if from > n {
		from = n
	}
	if to > n {
		to = n
	}
	return from, to
}

// Slice applies the window to items
func Slice[T any](items []T, p Page) []T {
	from, to := p.Window(len(items))
	return items[from:to]
}
