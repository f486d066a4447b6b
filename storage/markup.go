package storage

import (
	"fmt"
	"strings"
)

// markupExts are the file extensions that get a root-tag sanity check
// before persistence.
var markupExts = map[string]bool{
	".html": true,
	".htm":  true,
	".xml":  true,
	".svg":  true,
}

// IsMarkupName reports whether a file name has a markup extension.
func IsMarkupName(name string) bool {
	idx := strings.LastIndexByte(name, '.')
	if idx < 0 {
		return false
	}
	return markupExts[strings.ToLower(name[idx:])]
}

// ValidateMarkup verifies that a markup document carries a balanced root
// tag pair: the first element tag must have a matching closing tag that
// appears after it. Non-markup names pass unchecked. Truncated or corrupt
// pushes (the usual failure mode of an interrupted transfer) fail here
// before anything is written.
func ValidateMarkup(name string, data []byte) error {
	if !IsMarkupName(name) {
		return nil
	}
	text := string(data)

	root := rootTagName(text)
	if root == "" {
		return fmt.Errorf("markup %q: no root tag found", name)
	}
	openIdx := strings.Index(text, "<"+root)
	closeIdx := strings.LastIndex(text, "</"+root+">")
	if closeIdx < 0 {
		return fmt.Errorf("markup %q: missing closing tag </%s>", name, root)
	}
	if closeIdx < openIdx {
		return fmt.Errorf("markup %q: closing tag precedes opening tag", name)
	}
	return nil
}

// rootTagName returns the name of the first element tag, skipping
// declarations (<!...>) and processing instructions (<?...>).
func rootTagName(text string) string {
	for i := 0; i < len(text); i++ {
		if text[i] != '<' {
			continue
		}
		if i+1 >= len(text) {
			return ""
		}
		c := text[i+1]
		if c == '!' || c == '?' || c == '/' {
			continue
		}
		j := i + 1
		for j < len(text) && isTagNameByte(text[j]) {
			j++
		}
		if j > i+1 {
			return text[i+1 : j]
		}
	}
	return ""
}

func isTagNameByte(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9' || c == '-' || c == ':'
}
