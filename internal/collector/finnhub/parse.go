package finnhub

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/newthinker/comps/internal/core"
)

// numeric reports the value of a decoded JSON number. Booleans, strings and
// nulls are not numbers here.
func numeric(raw any) (float64, bool) {
	f, ok := raw.(float64)
	return f, ok
}

// parsePositivePrice turns the quote's "c" field into a strictly positive
// price. Absent prices are silent; anything else unusable warns.
func parsePositivePrice(raw any) (core.Number, []string) {
	var warnings []string
	var parsed float64

	switch v := raw.(type) {
	case nil:
		return core.None(), warnings
	case float64:
		parsed = v
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			warnings = append(warnings, fmt.Sprintf("Non-numeric price from quote endpoint (%q); treated as None", v))
			return core.None(), warnings
		}
		parsed = f
	default:
		warnings = append(warnings, fmt.Sprintf("Non-numeric price from quote endpoint (%v); treated as None", v))
		return core.None(), warnings
	}

	if parsed <= 0 {
		warnings = append(warnings, fmt.Sprintf("Negative or zero price from quote endpoint (%v); treated as None", raw))
		return core.None(), warnings
	}
	return core.Some(parsed), warnings
}
