package core

import (
	"cmp"
	"context"
	"entitystore/pkg/domain"
	"fmt"
	"slices"
	"strings"
	"time"
)

// Paging defaults applied when a request leaves page or page size unset.
const (
	DefaultPage     = 1
	DefaultPageSize = 10
)

// SortKey selects the field ListSorted orders by.
type SortKey string

// Recognised sort keys. Anything else sorts by id.
const (
	SortByID       SortKey = "id"
	SortByDeceased SortKey = "deceased"
	SortByGender   SortKey = "gender"
)

// ParseSortKey maps a caller-supplied key onto a recognised SortKey,
// case-insensitively, falling back to SortByID.
func ParseSortKey(s string) SortKey {
	switch SortKey(strings.ToLower(strings.TrimSpace(s))) {
	case SortByDeceased:
		return SortByDeceased
	case SortByGender:
		return SortByGender
	default:
		return SortByID
	}
}

// PageRequest is a 1-based page position. Values below 1 take the defaults.
type PageRequest struct {
	Page     int
	PageSize int
}

func (r PageRequest) normalized() PageRequest {
	if r.Page < 1 {
		r.Page = DefaultPage
	}
	if r.PageSize < 1 {
		r.PageSize = DefaultPageSize
	}
	return r
}

// FilterCriteria narrows a result set. Every supplied criterion must hold;
// the zero value of a field means the criterion was not supplied.
type FilterCriteria struct {
	Gender    string
	StartDate *time.Time
	EndDate   *time.Time
	Countries []string
}

// IsZero reports whether no criterion is supplied.
func (c FilterCriteria) IsZero() bool {
	return c.Gender == "" && c.StartDate == nil && c.EndDate == nil && len(c.Countries) == 0
}

// Matches reports whether e satisfies every supplied criterion.
func (c FilterCriteria) Matches(e domain.Entity) bool {
	if c.Gender != "" && e.Gender != c.Gender {
		return false
	}
	if c.StartDate != nil && !anyDate(e.Dates, func(v time.Time) bool { return !v.Before(*c.StartDate) }) {
		return false
	}
	if c.EndDate != nil && !anyDate(e.Dates, func(v time.Time) bool { return !v.After(*c.EndDate) }) {
		return false
	}
	if len(c.Countries) > 0 && !slices.ContainsFunc(e.Addresses, func(a domain.Address) bool {
		return slices.Contains(c.Countries, a.Country)
	}) {
		return false
	}
	return true
}

func anyDate(dates []domain.Date, pred func(time.Time) bool) bool {
	for _, d := range dates {
		if d.DateValue != nil && pred(*d.DateValue) {
			return true
		}
	}
	return false
}

// MatchesSearch reports whether text occurs, ignoring case, in the joined
// name of any Name or the joined line of any Address. Empty text matches all.
func MatchesSearch(e domain.Entity, text string) bool {
	if text == "" {
		return true
	}
	needle := strings.ToLower(text)
	for _, n := range e.Names {
		if strings.Contains(strings.ToLower(n.FullName()), needle) {
			return true
		}
	}
	for _, a := range e.Addresses {
		if strings.Contains(strings.ToLower(a.Line()), needle) {
			return true
		}
	}
	return false
}

// SortEntities orders entities in place, ascending and stable, by key.
func SortEntities(entities []domain.Entity, key SortKey) {
	var compare func(a, b domain.Entity) int
	switch key {
	case SortByDeceased:
		compare = func(a, b domain.Entity) int { return cmpBool(a.Deceased, b.Deceased) }
	case SortByGender:
		compare = func(a, b domain.Entity) int { return strings.Compare(a.Gender, b.Gender) }
	default:
		compare = func(a, b domain.Entity) int { return cmp.Compare(a.ID, b.ID) }
	}
	slices.SortStableFunc(entities, compare)
}

func cmpBool(a, b bool) int {
	switch {
	case a == b:
		return 0
	case !a:
		return -1
	default:
		return 1
	}
}

// Paginate cuts one page out of entities. A page past the end is empty.
func Paginate(entities []domain.Entity, req PageRequest) domain.Page {
	req = req.normalized()
	total := len(entities)
	pages := total / req.PageSize
	if total%req.PageSize != 0 {
		pages++
	}
	page := domain.Page{
		TotalCount:  total,
		TotalPages:  pages,
		PageSize:    req.PageSize,
		CurrentPage: req.Page,
		Entities:    []domain.Entity{},
	}
	if req.Page > pages {
		return page
	}
	start := (req.Page - 1) * req.PageSize
	end := min(start+req.PageSize, total)
	page.Entities = append(page.Entities, entities[start:end]...)
	return page
}

// Query combines all pipeline stages. Each stage is skipped when its input
// is absent: empty Search, zero Filter, empty Sort.
type Query struct {
	Search string
	Filter FilterCriteria
	Sort   SortKey
	Page   PageRequest
}

// Apply runs search, filter, sort and pagination, in that order, over a
// snapshot. The input slice is not modified.
func Apply(snapshot []domain.Entity, q Query) domain.Page {
	matched := make([]domain.Entity, 0, len(snapshot))
	for _, e := range snapshot {
		if !MatchesSearch(e, q.Search) {
			continue
		}
		if !q.Filter.Matches(e) {
			continue
		}
		matched = append(matched, e)
	}
	if q.Sort != "" {
		SortEntities(matched, q.Sort)
	}
	return Paginate(matched, q.Page)
}

// Snapshotter supplies the point-in-time entity snapshot a query runs over.
type Snapshotter interface {
	GetAll(ctx context.Context) ([]domain.Entity, error)
}

// QueryEngine answers search, filter and sorted-list queries over snapshots.
// It holds no state of its own and never mutates the source.
type QueryEngine struct {
	source Snapshotter
}

// NewQueryEngine builds an engine over source.
func NewQueryEngine(source Snapshotter) *QueryEngine {
	return &QueryEngine{source: source}
}

// Search returns the page of entities whose names or addresses contain text.
func (q *QueryEngine) Search(ctx context.Context, text string, page PageRequest) (domain.Page, error) {
	return q.Run(ctx, Query{Search: text, Page: page})
}

// Filter returns the page of entities matching every supplied criterion.
func (q *QueryEngine) Filter(ctx context.Context, criteria FilterCriteria, page PageRequest) (domain.Page, error) {
	return q.Run(ctx, Query{Filter: criteria, Page: page})
}

// ListSorted returns one page of all entities ordered by key.
func (q *QueryEngine) ListSorted(ctx context.Context, key SortKey, page PageRequest) (domain.Page, error) {
	return q.Run(ctx, Query{Sort: ParseSortKey(string(key)), Page: page})
}

// Run executes a composed query. When both Search and Filter are set an
// entity must satisfy both.
func (q *QueryEngine) Run(ctx context.Context, query Query) (domain.Page, error) {
	snapshot, err := q.source.GetAll(ctx)
	if err != nil {
		return domain.Page{}, fmt.Errorf("query snapshot: %w", err)
	}
	if query.Sort != "" {
		query.Sort = ParseSortKey(string(query.Sort))
	}
	return Apply(snapshot, query), nil
}
