package storage

import "strings"

// maxSlugLen bounds directory name length on constrained filesystems.
const maxSlugLen = 32

// Slug derives a filesystem-safe identifier from a possibly non-ASCII
// display name. Letters and digits are kept (lowercased), spaces become
// dashes, everything else is dropped, and runs of dashes collapse. An
// empty outcome falls back to "app".
func Slug(name string) string {
	var b strings.Builder
	lastDash := true // suppress leading dash
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z' || r >= '0' && r <= '9':
			b.WriteRune(r)
			lastDash = false
		case r >= 'A' && r <= 'Z':
			b.WriteRune(r + ('a' - 'A'))
			lastDash = false
		case r == '_':
			b.WriteRune(r)
			lastDash = false
		case r == ' ' || r == '-' || r == '.':
			if !lastDash {
				b.WriteByte('-')
				lastDash = true
			}
		}
		if b.Len() >= maxSlugLen {
			break
		}
	}
	s := strings.TrimRight(b.String(), "-")
	if s == "" {
		return "app"
	}
	return s
}
