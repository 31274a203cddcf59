package util

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

const maxFilenameBytes = 200

var reservedNames = map[string]bool{
	"con": true, "prn": true, "aux": true, "nul": true,
	"com1": true, "com2": true, "com3": true, "com4": true, "com5": true, "com6": true, "com7": true, "com8": true,
	"com9": true, "lpt1": true, "lpt2": true, "lpt3": true, "lpt4": true, "lpt5": true, "lpt6": true, "lpt7": true,
	"lpt8": true, "lpt9": true,
}

// SanitizeFilename makes s safe to use as a single path element on common filesystems: path separators, characters
// Windows refuses, and control characters are dropped, trailing dots and spaces are trimmed, and the result is cut to
// a bounded length on a rune boundary.
func SanitizeFilename(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch {
		case r == utf8.RuneError:
		case unicode.IsControl(r):
		case strings.ContainsRune(`/\?<>:*|"`, r):
		default:
			b.WriteRune(r)
		}
	}
	out := strings.TrimRight(strings.TrimSpace(b.String()), ". ")
	if strings.ReplaceAll(out, ".", "") == "" {
		return ""
	}
	if reservedNames[strings.ToLower(strings.SplitN(out, ".", 2)[0])] {
		out = "_" + out
	}
	for len(out) > maxFilenameBytes {
		_, size := utf8.DecodeLastRuneInString(out)
		out = out[:len(out)-size]
	}
	return out
}
