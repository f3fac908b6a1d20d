package models

// FilterPayload is the body of a listRows request
type FilterPayload struct {
	Page         int            `json:"page"`
	PageSize     int            `json:"pageSize"`
	IncludeCells bool           `json:"includeCells"`
	GlobalSearch string         `json:"globalSearch"`
	Filters      []FilterConfig `json:"filters"`
	SortBy       string         `json:"sortBy"`
	SortOrder    string         `json:"sortOrder"`
}

// FilterConfig is one column condition. ColumnType is optional; when given
// it must match the column's declared type.
type FilterConfig struct {
	ID          string `json:"id"`
	ColumnID    int64  `json:"columnId"`
	ColumnType  string `json:"columnType,omitempty"`
	Operator    string `json:"operator"`
	Value       any    `json:"value,omitempty"`
	SecondValue any    `json:"secondValue,omitempty"`
}

// Pagination describes the page returned
type Pagination struct {
	Page       int  `json:"page"`
	PageSize   int  `json:"pageSize"`
	TotalRows  int  `json:"totalRows"`
	TotalPages int  `json:"totalPages"`
	HasNext    bool `json:"hasNext"`
	HasPrev    bool `json:"hasPrev"`
}

// NewPagination computes page counts for a result set.
func NewPagination(page, pageSize, totalRows int) Pagination {
	totalPages := 0
	if pageSize > 0 {
		totalPages = (totalRows + pageSize - 1) / pageSize
	}
	return Pagination{
		Page:       page,
		PageSize:   pageSize,
		TotalRows:  totalRows,
		TotalPages: totalPages,
		HasNext:    page < totalPages,
		HasPrev:    page > 1,
	}
}

// Performance is optional timing information on a response
type Performance struct {
	DurationMs int64 `json:"durationMs"`
	CacheHit   bool  `json:"cacheHit"`
}

// FilteredRowsResponse is the result of listRows
type FilteredRowsResponse struct {
	Data        []RowView      `json:"data"`
	Pagination  Pagination     `json:"pagination"`
	Filters     []FilterConfig `json:"filters"`
	Performance *Performance   `json:"performance,omitempty"`
}
