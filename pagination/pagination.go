package pagination

import (
	"errors"
	"fmt"
	"math"
	"net/url"
	"strconv"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// ErrInvalidParams is returned when page or size are out of range.
var ErrInvalidParams = errors.New("pagination: invalid params")

const (
	DefaultPage = 1
	DefaultSize = 10
	// MaxSize caps Size for requests parsed from user input.
	MaxSize = 100
)

// Order is the sort direction of a listing.
type Order string

const (
	Asc  Order = "asc"
	Desc Order = "desc"
)

// Params is the listing request surface: q, page, size and order_by.
type Params struct {
	Query string `json:"q,omitempty" msgpack:"q"`
	Page  int    `json:"page" msgpack:"page"`
	Size  int    `json:"size" msgpack:"size"`
	Order Order  `json:"order_by" msgpack:"order_by"`
}

// DefaultParams returns page 1, size 10, descending.
func DefaultParams() Params {
	return Params{Page: DefaultPage, Size: DefaultSize, Order: Desc}
}

// Validate checks p against the request bounds. Errors wrap ErrInvalidParams.
func (p Params) Validate() error {
	err := validation.ValidateStruct(&p,
		// Required also rejects zero, which Min alone treats as empty.
		validation.Field(&p.Page, validation.Required, validation.Min(1)),
		validation.Field(&p.Size, validation.Required, validation.Min(1), validation.Max(MaxSize)),
		validation.Field(&p.Order, validation.Required, validation.In(Asc, Desc)),
	)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidParams, err)
	}
	return nil
}

// ParseParams reads q, page, size and order_by from a query string,
// applying defaults for missing values.
func ParseParams(values url.Values) (Params, error) {
	p := DefaultParams()
	p.Query = strings.TrimSpace(values.Get("q"))

	var err error
	if v := values.Get("page"); v != "" {
		if p.Page, err = strconv.Atoi(v); err != nil {
			return Params{}, fmt.Errorf("%w: page %q", ErrInvalidParams, v)
		}
	}
	if v := values.Get("size"); v != "" {
		if p.Size, err = strconv.Atoi(v); err != nil {
			return Params{}, fmt.Errorf("%w: size %q", ErrInvalidParams, v)
		}
	}
	if v := values.Get("order_by"); v != "" {
		p.Order = Order(strings.ToLower(v))
	}

	if err := p.Validate(); err != nil {
		return Params{}, err
	}
	return p, nil
}

// Window is the slice of a result set selected by a page request.
type Window struct {
	Offset     int
	Limit      int
	TotalPages int
	HasNext    bool
	HasPrev    bool
	// Empty is set when the page starts at or past total; the page has no
	// items but that is not an error. Offset is never negative.
	Empty bool
}

// Compute derives the window for page/size over total items.
func Compute(total, page, size int) (Window, error) {
	if page < 1 || size < 1 {
		return Window{}, fmt.Errorf("%w: page=%d size=%d", ErrInvalidParams, page, size)
	}
	if total < 0 {
		return Window{}, fmt.Errorf("%w: total=%d", ErrInvalidParams, total)
	}

	totalPages := total / size
	if total%size != 0 {
		totalPages++
	}

	// Offset saturates at MaxInt; such a page is past any real total.
	offset := math.MaxInt
	if page-1 <= math.MaxInt/size {
		offset = (page - 1) * size
	}

	return Window{
		Offset:     offset,
		Limit:      size,
		TotalPages: totalPages,
		HasNext:    page < totalPages,
		HasPrev:    page > 1,
		Empty:      page-1 >= totalPages,
	}, nil
}

// Page is a paginated result envelope.
type Page[T any] struct {
	Items      []T  `json:"items" msgpack:"items"`
	Total      int  `json:"total" msgpack:"total"`
	Page       int  `json:"page" msgpack:"page"`
	Size       int  `json:"size" msgpack:"size"`
	TotalPages int  `json:"total_pages" msgpack:"total_pages"`
	HasNext    bool `json:"has_next" msgpack:"has_next"`
	HasPrev    bool `json:"has_prev" msgpack:"has_prev"`
}

// NewPage wraps items selected by w.
func NewPage[T any](items []T, total, page, size int, w Window) Page[T] {
	if items == nil {
		items = []T{}
	}
	return Page[T]{
		Items:      items,
		Total:      total,
		Page:       page,
		Size:       size,
		TotalPages: w.TotalPages,
		HasNext:    w.HasNext,
		HasPrev:    w.HasPrev,
	}
}

// SliceItems paginates an in-memory list.
func SliceItems[T any](items []T, page, size int) (Page[T], error) {
	w, err := Compute(len(items), page, size)
	if err != nil {
		return Page[T]{}, err
	}
	if w.Empty {
		return NewPage[T](nil, len(items), page, size, w), nil
	}
	end := w.Offset + min(w.Limit, len(items)-w.Offset)
	return NewPage(items[w.Offset:end], len(items), page, size, w), nil
}
