package domain

import (
	"strconv"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// NormalizeName applies NFKC and collapses interior whitespace.
func NormalizeName(name string) string {
	return strings.Join(strings.Fields(norm.NFKC.String(name)), " ")
}

// NameKey is the case-folded form used for uniqueness checks.
func NameKey(name string) string {
	return cases.Fold().String(NormalizeName(name))
}

// UniqueName appends " 1", " 2", ... to base until the result is absent from taken.
// taken must hold NameKey values.
func UniqueName(base string, taken map[string]struct{}) string {
	base = NormalizeName(base)
	for i := 1; ; i++ {
		candidate := base + " " + strconv.Itoa(i)
		if _, exists := taken[NameKey(candidate)]; !exists {
			return candidate
		}
	}
}
