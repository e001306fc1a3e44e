// Package precheck provides local validation predicates that can reject an
// execution outcome before spending a reasoning-provider call.
//
// These are optional helpers, not part of the workflow core: they only
// ever short-circuit to "invalid" for rules with mechanically checkable
// shapes. Anything they cannot decide is left to the oracle-backed
// validator.
package precheck

import (
	"strconv"
	"strings"
)

// Result is the outcome of a local pre-check.
type Result struct {
	// Decided reports whether the predicate could decide at all. When
	// false, Valid is meaningless and the caller must fall through to the
	// oracle.
	Decided bool

	// Valid is the decision when Decided is true.
	Valid bool

	// Reason explains a rejection.
	Reason string
}

var undecided = Result{}

// CheckRule applies the known predicates for a plain-language validation
// rule against an output. Only rules that name a mechanically checkable
// shape (IP address, CIDR range) are decidable, and only rejections are
// decided: a shape match still goes to the oracle for the substantive
// judgment.
func CheckRule(rule, output string) Result {
	lower := strings.ToLower(rule)
	trimmed := strings.TrimSpace(output)

	switch {
	case strings.Contains(lower, "cidr"):
		if trimmed == "" || !containsCIDR(trimmed) {
			return Result{Decided: true, Valid: false, Reason: "output contains no valid CIDR range"}
		}
	case strings.Contains(lower, "valid ip") || strings.Contains(lower, "ip address"):
		if trimmed == "" || !containsIPv4(trimmed) {
			return Result{Decided: true, Valid: false, Reason: "output contains no valid IP address"}
		}
	case trimmed == "":
		return Result{Decided: true, Valid: false, Reason: "output is empty"}
	}

	return undecided
}

// ValidIPv4 reports whether s is a dotted-quad IPv4 address.
func ValidIPv4(s string) bool {
	parts := strings.Split(s, ".")
	if len(parts) != 4 {
		return false
	}
	for _, part := range parts {
		if part == "" || len(part) > 3 {
			return false
		}
		n, err := strconv.Atoi(part)
		if err != nil || n < 0 || n > 255 {
			return false
		}
	}
	return true
}

// ValidCIDR reports whether s is an IPv4 CIDR range.
func ValidCIDR(s string) bool {
	ip, mask, ok := strings.Cut(s, "/")
	if !ok || !ValidIPv4(ip) {
		return false
	}
	n, err := strconv.Atoi(mask)
	if err != nil || n < 0 || n > 32 {
		return false
	}
	return true
}

// containsIPv4 reports whether any whitespace-separated token of s is an
// IPv4 address.
func containsIPv4(s string) bool {
	for _, token := range strings.Fields(s) {
		if ValidIPv4(strings.Trim(token, ",;")) {
			return true
		}
	}
	return false
}

// containsCIDR reports whether any whitespace-separated token of s is a
// CIDR range.
func containsCIDR(s string) bool {
	for _, token := range strings.Fields(s) {
		if ValidCIDR(strings.Trim(token, ",;")) {
			return true
		}
	}
	return false
}
