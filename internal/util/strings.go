package util

import (
	"strconv"
	"strings"
)

// JoinOrDefault joins items with ", " or returns def for an empty list.
func JoinOrDefault(items []string, def string) string {
	if len(items) == 0 {
		return def
	}
	return strings.Join(items, ", ")
}

// Count renders n with noun, adding an "s" unless n is 1: "1 sensor",
// "3 alarms".
func Count(n int, noun string) string {
	if n == 1 {
		return "1 " + noun
	}
	return strconv.Itoa(n) + " " + noun + "s"
}
