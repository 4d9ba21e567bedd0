package voucher

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

const tallyDateLayout = "20060102"

// TallyDate converts the date part of a "d/m/y [time]" statement value to
// YYYYMMDD. Two-digit years are read as 20yy. Anything that does not parse
// yields now in the same format.
func TallyDate(raw string, now time.Time) string {
	tokens := strings.Fields(raw)
	if len(tokens) == 0 {
		return now.Format(tallyDateLayout)
	}

	parts := strings.Split(tokens[0], "/")
	if len(parts) != 3 {
		return now.Format(tallyDateLayout)
	}

	day, okDay := number(parts[0], 1, 31)
	month, okMonth := number(parts[1], 1, 12)
	year := parts[2]
	if len(year) == 2 {
		year = "20" + year
	}
	_, okYear := number(year, 0, 9999)
	if !okDay || !okMonth || !okYear || len(year) != 4 {
		return now.Format(tallyDateLayout)
	}

	return fmt.Sprintf("%s%02d%02d", year, month, day)
}

func number(s string, min, max int) (int, bool) {
	if s == "" {
		return 0, false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0, false
		}
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < min || n > max {
		return 0, false
	}
	return n, true
}
