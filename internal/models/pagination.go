package models

// Page size bounds for message history listings
const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// PaginationResult describes one page of a campaign's message history
type PaginationResult struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	TotalCount int64 `json:"total_count"`
	TotalPages int   `json:"total_pages"`
	HasMore    bool  `json:"has_more"`
}

// NewPaginationResult expects page and pageSize already normalized
func NewPaginationResult(page, pageSize int, totalCount int64) PaginationResult {
	if pageSize < 1 {
		pageSize = DefaultPageSize
	}

	totalPages := int((totalCount + int64(pageSize) - 1) / int64(pageSize))

	return PaginationResult{
		Page:       page,
		PageSize:   pageSize,
		TotalCount: totalCount,
		TotalPages: totalPages,
		HasMore:    page < totalPages,
	}
}

// NormalizePage clamps page to at least 1 and pageSize into
// [1, MaxPageSize], defaulting a missing size to DefaultPageSize.
func NormalizePage(page, pageSize *int) {
	if *page < 1 {
		*page = 1
	}
	if *pageSize < 1 {
		*pageSize = DefaultPageSize
	}
	if *pageSize > MaxPageSize {
		*pageSize = MaxPageSize
	}
}

// PageOffset is the number of rows before page
func PageOffset(page, pageSize int) int {
	return (page - 1) * pageSize
}
