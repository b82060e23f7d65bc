package utils

import (
	"net/http"
	"net/url"
	"strconv"
)

const (
	DefaultPageLimit = 10
	MaxPageLimit     = 100

	HeaderTotalCount  = "X-Total-Count"
	HeaderLimit       = "X-Limit"
	HeaderOffset      = "X-Offset"
	HeaderHasNext     = "X-Has-Next"
	HeaderHasPrevious = "X-Has-Previous"
)

// Page is a limit/offset window requested by the browser.
type Page struct {
	Limit  int
	Offset int
}

// ParsePage reads limit and offset from a query string. Missing, malformed or
// negative values fall back to the defaults.
func ParsePage(q url.Values) Page {
	page := Page{Limit: DefaultPageLimit}

	if n, err := strconv.Atoi(q.Get("limit")); err == nil && n > 0 {
		page.Limit = n
	}
	if page.Limit > MaxPageLimit {
		page.Limit = MaxPageLimit
	}
	if n, err := strconv.Atoi(q.Get("offset")); err == nil && n >= 0 {
		page.Offset = n
	}
	return page
}

func (p Page) Values() url.Values {
	return url.Values{
		"limit":  {strconv.Itoa(p.Limit)},
		"offset": {strconv.Itoa(p.Offset)},
	}
}

// Pagination mirrors the X-* pagination headers of the payments API.
type Pagination struct {
	Total       int  `json:"total"`
	Limit       int  `json:"limit"`
	Offset      int  `json:"offset"`
	HasNext     bool `json:"hasNext"`
	HasPrevious bool `json:"hasPrevious"`
}

// PaginationFromHeader reads upstream pagination headers. Absent headers fall
// back to a zero total, the requested window and no further pages.
func PaginationFromHeader(h http.Header, requested Page) Pagination {
	return Pagination{
		Total:       headerInt(h, HeaderTotalCount, 0),
		Limit:       headerInt(h, HeaderLimit, requested.Limit),
		Offset:      headerInt(h, HeaderOffset, requested.Offset),
		HasNext:     h.Get(HeaderHasNext) == "true",
		HasPrevious: h.Get(HeaderHasPrevious) == "true",
	}
}

// Apply writes the pagination headers onto a response.
func (p Pagination) Apply(h http.Header) {
	h.Set(HeaderTotalCount, strconv.Itoa(p.Total))
	h.Set(HeaderLimit, strconv.Itoa(p.Limit))
	h.Set(HeaderOffset, strconv.Itoa(p.Offset))
	h.Set(HeaderHasNext, strconv.FormatBool(p.HasNext))
	h.Set(HeaderHasPrevious, strconv.FormatBool(p.HasPrevious))
}

func (p Pagination) CurrentPage() int {
	if p.Limit <= 0 {
		return 1
	}
	return p.Offset/p.Limit + 1
}

func (p Pagination) TotalPages() int {
	if p.Limit <= 0 {
		return 0
	}
	return (p.Total + p.Limit - 1) / p.Limit
}

func headerInt(h http.Header, key string, def int) int {
	if h == nil {
		return def
	}
	n, err := strconv.Atoi(h.Get(key))
	if err != nil {
		return def
	}
	return n
}
