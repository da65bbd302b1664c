// Package dto provides Data Transfer Objects for API requests/responses.
package dto

import (
	"fmt"
	"time"
)

// DateLayout is the calendar date format accepted in query parameters.
const DateLayout = "2006-01-02"

// PeriodRequest is an inclusive calendar period with an optional object filter.
type PeriodRequest struct {
	From   string `form:"from" binding:"required"`
	To     string `form:"to" binding:"required"`
	Object string `form:"object"`
}

// Dates parses From and To.
func (r PeriodRequest) Dates() (from, to time.Time, err error) {
	from, err = time.Parse(DateLayout, r.From)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("from: expected YYYY-MM-DD, got %q", r.From)
	}
	to, err = time.Parse(DateLayout, r.To)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("to: expected YYYY-MM-DD, got %q", r.To)
	}
	return from, to, nil
}
