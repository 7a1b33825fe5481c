package order

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/Zhima-Mochi/guestshop/internal/pkg/apperr"
)

const (
	numberPrefix = "ORD"
	sequenceLen  = 5
	maxSequence  = 99999
)

// NumberPrefix is the year-scoped prefix shared by all order numbers of a year.
func NumberPrefix(year int) string {
	return fmt.Sprintf("%s-%d-", numberPrefix, year)
}

// FormatNumber renders ORD-<year>-<5-digit sequence>.
func FormatNumber(year, seq int) (string, error) {
	if seq <= 0 || seq > maxSequence {
		return "", apperr.Conflict("order sequence %d out of range for year %d", seq, year)
	}
	return fmt.Sprintf("%s%0*d", NumberPrefix(year), sequenceLen, seq), nil
}

// ParseNumber extracts the year and sequence from an order number.
func ParseNumber(number string) (year, seq int, err error) {
	parts := strings.Split(number, "-")
	if len(parts) != 3 || parts[0] != numberPrefix || len(parts[2]) != sequenceLen {
		return 0, 0, apperr.Validation("malformed order number %q", number)
	}
	year, err = strconv.Atoi(parts[1])
	if err != nil {
		return 0, 0, apperr.Validation("malformed order number %q", number)
	}
	seq, err = strconv.Atoi(parts[2])
	if err != nil {
		return 0, 0, apperr.Validation("malformed order number %q", number)
	}
	return year, seq, nil
}

// NextNumber returns the number following last within year; an empty last
// starts the year's sequence at 1.
func NextNumber(year int, last string) (string, error) {
	if last == "" {
		return FormatNumber(year, 1)
	}
	y, seq, err := ParseNumber(last)
	if err != nil {
		return "", err
	}
	if y != year {
		return FormatNumber(year, 1)
	}
	return FormatNumber(year, seq+1)
}
