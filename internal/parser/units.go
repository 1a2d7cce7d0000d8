package parser

import (
	"math"
	"regexp"
	"strconv"
	"strings"
)

var (
	// numberRegex finds the first decimal magnitude anywhere in a token.
	// Matches: "80", "45.0c", "150W", "-3.5"
	numberRegex = regexp.MustCompile(`-?\d+(?:\.\d+)?`)

	// clockRegex finds a magnitude followed by a frequency unit.
	// Matches: "400Mhz", "1.2GHz", "1: (800Mhz)" (extracts 800, Mhz)
	clockRegex = regexp.MustCompile(`(?i)(-?\d+(?:\.\d+)?)\s*(ghz|mhz)\b`)
)

// ParseNumber extracts the first decimal number from a raw value.
// Returns false when the value carries no digits.
func ParseNumber(raw string) (float64, bool) {
	m := numberRegex.FindString(raw)
	if m == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(m, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// NormalizeClock converts a clock reading to megahertz.
// A magnitude with a unit suffix wins over bare numbers, so level prefixes
// such as "1: (800Mhz)" resolve to the frequency. Missing units are treated
// as megahertz.
func NormalizeClock(raw string) (float64, bool) {
	if m := clockRegex.FindStringSubmatch(raw); m != nil {
		v, err := strconv.ParseFloat(m[1], 64)
		if err != nil {
			return 0, false
		}
		if strings.EqualFold(m[2], "ghz") {
			v *= 1000
			if math.IsInf(v, 0) {
				return 0, false
			}
		}
		return v, true
	}
	return ParseNumber(raw)
}
