package service

import "strings"

// SanitizeText strips embedded null bytes and other control characters
// that break Postgres text columns and the embedding API. Newlines and
// tabs survive; everything else below 0x20 and DEL is dropped.
func SanitizeText(text string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '\n', '\r', '\t':
			return r
		}
		if r < 0x20 || r == 0x7f {
			return -1
		}
		return r
	}, text)
}
