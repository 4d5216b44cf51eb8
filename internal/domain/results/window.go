package results

import (
	"math"
	"strconv"

	"github.com/imagespace/iqrproxy/internal/domain"
)

// Paging limits.
const (
	DefaultLimit = 20
	MaxLimit     = 1000
)

// Window is a validated [offset, offset+limit) slice of a ranked result list.
type Window struct {
	offset int
	limit  int
}

// NewWindow validates paging parameters. A nil offset means 0, a nil limit means defaultLimit.
// Non-positive defaultLimit/maxLimit fall back to DefaultLimit/MaxLimit.
func NewWindow(offset, limit *int, defaultLimit, maxLimit int) (Window, error) {
	if defaultLimit <= 0 {
		defaultLimit = DefaultLimit
	}
	if maxLimit <= 0 {
		maxLimit = MaxLimit
	}

	w := Window{offset: 0, limit: defaultLimit}
	if offset != nil {
		w.offset = *offset
	}
	if limit != nil {
		w.limit = *limit
	}

	if w.offset < 0 {
		return Window{}, domain.NewInvalidParameter("offset", "must be >= 0")
	}
	if w.limit <= 0 {
		return Window{}, domain.NewInvalidParameter("limit", "must be > 0")
	}
	if w.limit > maxLimit {
		return Window{}, domain.NewInvalidParameter("limit", "must be <= "+strconv.Itoa(maxLimit))
	}
	if w.offset > math.MaxInt-w.limit {
		return Window{}, domain.NewInvalidParameter("offset", "too large")
	}
	return w, nil
}

// Offset returns the first rank in the window (the IQR "i" parameter).
func (w Window) Offset() int { return w.offset }

// Limit returns the window size.
func (w Window) Limit() int { return w.limit }

// End returns the exclusive upper rank (the IQR "j" parameter).
func (w Window) End() int { return w.offset + w.limit }
