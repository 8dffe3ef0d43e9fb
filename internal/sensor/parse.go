package sensor

import (
	"fmt"
	"math"
	"strconv"
)

// ParseReading parses the decimal number at the start of b. Leading
// whitespace is skipped and anything after the number is ignored.
func ParseReading(b []byte) (float64, error) {
	i := 0
	for i < len(b) && isSpace(b[i]) {
		i++
	}
	start := i
	end := numberEnd(b, start)
	if end == start {
		return 0, fmt.Errorf("no number in %q", truncate(b))
	}
	v, err := strconv.ParseFloat(string(b[start:end]), 64)
	if err != nil || math.IsInf(v, 0) {
		return 0, fmt.Errorf("bad number %q", b[start:end])
	}
	return v, nil
}

// numberEnd returns the end of the longest [sign]digits[.digits][exp]
// prefix of b[start:], or start when there is none.
func numberEnd(b []byte, start int) int {
	i := start
	if i < len(b) && (b[i] == '+' || b[i] == '-') {
		i++
	}
	digits := 0
	for i < len(b) && isDigit(b[i]) {
		i++
		digits++
	}
	if i < len(b) && b[i] == '.' {
		j := i + 1
		frac := 0
		for j < len(b) && isDigit(b[j]) {
			j++
			frac++
		}
		if digits > 0 || frac > 0 {
			i = j
			digits += frac
		}
	}
	if digits == 0 {
		return start
	}
	if i < len(b) && (b[i] == 'e' || b[i] == 'E') {
		j := i + 1
		if j < len(b) && (b[j] == '+' || b[j] == '-') {
			j++
		}
		k := j
		for k < len(b) && isDigit(b[k]) {
			k++
		}
		if k > j {
			i = k
		}
	}
	return i
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

func isSpace(c byte) bool { return c == ' ' || c == '\t' || c == '\n' || c == '\r' }

func truncate(b []byte) []byte {
	if len(b) > 16 {
		return b[:16]
	}
	return b
}
