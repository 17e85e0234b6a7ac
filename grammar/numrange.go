package grammar

import (
	"fmt"
	"strconv"
	"strings"
)

// intRangeFragment returns a pattern matching exactly the JSON
// integers within [lo, hi]; either bound may be nil for unbounded.
// The construction is the classic digit-prefix decomposition: split
// by sign, then by digit count, then by the longest common prefix.
func intRangeFragment(lo, hi *int64) (string, error) {
	switch {
	case lo == nil && hi == nil:
		return jsonInt, nil

	case lo == nil:
		if *hi < 0 {
			return "-" + nonNegGE(uint64(-*hi)), nil
		}
		return "(?:-[1-9][0-9]*|" + nonNegRange(0, uint64(*hi)) + ")", nil

	case hi == nil:
		if *lo > 0 {
			return nonNegGE(uint64(*lo)), nil
		}
		if *lo == 0 {
			return "(?:0|[1-9][0-9]*)", nil
		}
		return "(?:-" + nonNegRange(1, uint64(-*lo)) + "|0|[1-9][0-9]*)", nil

	case *lo > *hi:
		return "", fmt.Errorf("schema: minimum %d exceeds maximum %d", *lo, *hi)

	case *lo >= 0:
		return nonNegRange(uint64(*lo), uint64(*hi)), nil

	case *hi < 0:
		return "-" + nonNegRange(uint64(-*hi), uint64(-*lo)), nil

	default:
		return "(?:-" + nonNegRange(1, uint64(-*lo)) + "|" + nonNegRange(0, uint64(*hi)) + ")", nil
	}
}

// nonNegRange matches the decimal integers lo..hi without leading
// zeros. Requires lo <= hi.
func nonNegRange(lo, hi uint64) string {
	a := strconv.FormatUint(lo, 10)
	b := strconv.FormatUint(hi, 10)
	if len(a) == len(b) {
		return sameLenRange(a, b)
	}

	var parts []string
	parts = append(parts, sameLenRange(a, strings.Repeat("9", len(a))))
	for k := len(a) + 1; k < len(b); k++ {
		parts = append(parts, "[1-9]"+repeatDigits(k-1))
	}
	parts = append(parts, sameLenRange("1"+strings.Repeat("0", len(b)-1), b))
	return "(?:" + strings.Join(parts, "|") + ")"
}

// nonNegGE matches the decimal integers >= lo without leading zeros.
func nonNegGE(lo uint64) string {
	if lo == 0 {
		return "(?:0|[1-9][0-9]*)"
	}
	a := strconv.FormatUint(lo, 10)
	longer := fmt.Sprintf("[1-9][0-9]{%d,}", len(a))
	return "(?:" + geDigits(a) + "|" + longer + ")"
}

// sameLenRange matches the integers a..b where a and b have the same
// digit count. The shared prefix is emitted literally; the first
// differing digit splits the range into a low edge, a free middle,
// and a high edge.
func sameLenRange(a, b string) string {
	if a == b {
		return a
	}
	i := 0
	for a[i] == b[i] {
		i++
	}
	prefix := a[:i]
	rest := len(a) - i - 1

	if rest == 0 {
		return prefix + charRange(a[i], b[i])
	}

	var parts []string
	parts = append(parts, string(a[i])+geDigits(a[i+1:]))
	if a[i]+1 <= b[i]-1 {
		parts = append(parts, charRange(a[i]+1, b[i]-1)+repeatDigits(rest))
	}
	parts = append(parts, string(b[i])+leDigits(b[i+1:]))
	return prefix + "(?:" + strings.Join(parts, "|") + ")"
}

// geDigits matches the len(s)-digit strings numerically >= s, leading
// zeros included.
func geDigits(s string) string {
	if s == "" {
		return ""
	}
	parts := []string{s}
	for i := 0; i < len(s); i++ {
		if s[i] < '9' {
			parts = append(parts, s[:i]+charRange(s[i]+1, '9')+repeatDigits(len(s)-i-1))
		}
	}
	if len(parts) == 1 {
		return s
	}
	return "(?:" + strings.Join(parts, "|") + ")"
}

// leDigits matches the len(s)-digit strings numerically <= s, leading
// zeros included.
func leDigits(s string) string {
	if s == "" {
		return ""
	}
	parts := []string{s}
	for i := 0; i < len(s); i++ {
		if s[i] > '0' {
			parts = append(parts, s[:i]+charRange('0', s[i]-1)+repeatDigits(len(s)-i-1))
		}
	}
	if len(parts) == 1 {
		return s
	}
	return "(?:" + strings.Join(parts, "|") + ")"
}

func charRange(a, b byte) string {
	if a == b {
		return string(a)
	}
	return "[" + string(a) + "-" + string(b) + "]"
}

func repeatDigits(k int) string {
	switch k {
	case 0:
		return ""
	case 1:
		return "[0-9]"
	default:
		return fmt.Sprintf("[0-9]{%d}", k)
	}
}
