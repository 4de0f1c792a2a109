// Package names generates short human-readable instance names such as
// "brave-otter" from the golang-petname word lists.
package names

import (
	"strings"

	petname "github.com/dustinkirkland/golang-petname"
)

// maxLabel is the longest DNS-SD instance label.
const maxLabel = 63

// Random returns an adjective and an animal joined by a hyphen.
func Random() string { return Words(2) }

// Words returns n petname words joined by hyphens (adverbs, then an
// adjective, then an animal). n < 1 is treated as 1. The result always fits
// in an instance label.
func Words(n int) string {
	if n < 1 {
		n = 1
	}
	name := petname.Generate(n, "-")
	if len(name) > maxLabel {
		name = strings.TrimRight(name[:maxLabel], "-")
	}
	return name
}
