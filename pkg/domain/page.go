package domain

// Page is one bounded slice of a query result plus its position metadata.
type Page struct {
	TotalCount  int      `json:"totalCount"`
	TotalPages  int      `json:"totalPages"`
	PageSize    int      `json:"pageSize"`
	CurrentPage int      `json:"currentPage"`
	Entities    []Entity `json:"entities"`
}

// IDs lists the ids of the entities on the page, in page order.
func (p Page) IDs() []string {
	ids := make([]string, len(p.Entities))
	for i, e := range p.Entities {
		ids[i] = e.ID
	}
	return ids
}
