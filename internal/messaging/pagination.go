package messaging

const (
	DefaultLimit = 20
	MaxLimit     = 100
	// MaxPage keeps (page-1)*limit well inside int range
	MaxPage = 1_000_000
)

// Page is a normalized 1-based page request
type Page struct {
	Page  int
	Limit int
}

// NewPage clamps page and limit into their valid ranges
func NewPage(page, limit int) Page {
	if page < 1 {
		page = 1
	}
	if page > MaxPage {
		page = MaxPage
	}
	if limit < 1 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}
	return Page{Page: page, Limit: limit}
}

func (p Page) Offset() int {
	return (p.Page - 1) * p.Limit
}

// Pagination describes a returned page
type Pagination struct {
	Page       int `json:"page"`
	Limit      int `json:"limit"`
	Total      int `json:"total"`
	TotalPages int `json:"total_pages"`
}

func (p Page) Result(total int) Pagination {
	pages := 0
	if total > 0 {
		pages = (total + p.Limit - 1) / p.Limit
	}
	return Pagination{Page: p.Page, Limit: p.Limit, Total: total, TotalPages: pages}
}
