package paypal

import (
	"fmt"
	"strconv"
	"strings"
)

// FormatAmount renders cents as a gateway wire value with exactly two decimal
// places. Integer arithmetic keeps the separator locale-independent.
func FormatAmount(cents int64) string {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	return fmt.Sprintf("%s%d.%02d", sign, cents/100, cents%100)
}

// ParseAmount converts a gateway wire value back into cents. Fractions beyond
// two digits are rejected; the gateway never sends them.
func ParseAmount(value string) (int64, error) {
	whole, frac, _ := strings.Cut(value, ".")

	units, err := strconv.ParseInt(whole, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse amount %q: %w", value, err)
	}

	cents := units * 100
	if frac != "" {
		if len(frac) > 2 {
			return 0, fmt.Errorf("parse amount %q: too many decimal places", value)
		}
		for len(frac) < 2 {
			frac += "0"
		}
		f, err := strconv.ParseInt(frac, 10, 64)
		if err != nil || f < 0 {
			return 0, fmt.Errorf("parse amount %q: bad fraction", value)
		}
		if units < 0 || strings.HasPrefix(whole, "-") {
			cents -= f
		} else {
			cents += f
		}
	}

	return cents, nil
}
