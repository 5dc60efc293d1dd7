package fmt

import (
	"strconv"
	"strings"
)

// SprintFloat formats value with at most decimal digits after the point, dropping trailing zeros
// and the point itself when nothing is left after it. This is how numbers are written on G-code
// words: 100 rather than 100.000.
func SprintFloat(value float64, decimal uint) string {
	s := strconv.FormatFloat(value, 'f', int(decimal), 64)
	if decimal > 0 {
		s = strings.TrimRight(strings.TrimRight(s, "0"), ".")
	}
	if s == "-0" {
		return "0"
	}
	return s
}
