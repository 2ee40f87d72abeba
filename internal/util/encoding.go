package util

import "golang.org/x/text/unicode/norm"

// Normalize applies NFKD so visually identical passwords hash the same.
func Normalize(s string) string {
	return norm.NFKD.String(s)
}
