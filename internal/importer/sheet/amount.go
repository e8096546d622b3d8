package sheet

import (
	"strings"

	"github.com/MrJamesThe3rd/splitledger/internal/money"
)

// ParseAmount parses "1,234.56" as well as the European "1.234,56" into
// cents. The last of '.' and ',' is taken as the decimal separator.
func ParseAmount(s string) (int64, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "+")

	lastDot := strings.LastIndex(s, ".")
	lastComma := strings.LastIndex(s, ",")

	if lastComma > lastDot {
		s = strings.ReplaceAll(s, ".", "")
		s = strings.Replace(s, ",", ".", 1)
	}

	return money.Parse(s)
}
