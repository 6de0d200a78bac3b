package dto

type PaginationQuery struct {
	Page  int `form:"page" binding:"omitempty,min=1"`
	Limit int `form:"limit" binding:"omitempty,min=1,max=100"`
}

// Normalize fills in defaults and returns the row offset.
func (q *PaginationQuery) Normalize() int {
	if q.Page == 0 {
		q.Page = 1
	}
	if q.Limit == 0 {
		q.Limit = 20
	}
	return (q.Page - 1) * q.Limit
}

type PaginationMeta struct {
	CurrentPage int   `json:"current_page"`
	TotalPages  int   `json:"total_pages"`
	TotalItems  int64 `json:"total_items"`
	Limit       int   `json:"limit"`
}

func NewPaginationMeta(q PaginationQuery, total int64) PaginationMeta {
	pages := 0
	if q.Limit > 0 {
		pages = int((total + int64(q.Limit) - 1) / int64(q.Limit))
	}
	return PaginationMeta{
		CurrentPage: q.Page,
		TotalPages:  pages,
		TotalItems:  total,
		Limit:       q.Limit,
	}
}

type AuthorResponse struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
}
