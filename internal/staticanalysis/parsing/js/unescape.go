package js

import (
	"strconv"
	"strings"
	"unicode/utf8"
)

// Unescape decodes the escape sequences of a string or template literal
// body. Malformed escapes are kept verbatim.
func Unescape(s string) string {
	if !strings.ContainsRune(s, '\\') {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c != '\\' || i+1 == len(s) {
			b.WriteByte(c)
			continue
		}
		i++
		switch e := s[i]; e {
		case 'n':
			b.WriteByte('\n')
		case 't':
			b.WriteByte('\t')
		case 'r':
			b.WriteByte('\r')
		case 'b':
			b.WriteByte('\b')
		case 'f':
			b.WriteByte('\f')
		case 'v':
			b.WriteByte('\v')
		case '0':
			b.WriteByte(0)
		case '\n':
			// line continuation
		case '\r':
			if i+1 < len(s) && s[i+1] == '\n' {
				i++
			}
		case 'x':
			if r, n, ok := decodeHex(s[i+1:], 2); ok {
				b.WriteRune(r)
				i += n
			} else {
				b.WriteString(`\x`)
			}
		case 'u':
			if r, n, ok := decodeUnicode(s[i+1:]); ok {
				b.WriteRune(r)
				i += n
			} else {
				b.WriteString(`\u`)
			}
		default:
			b.WriteByte(e)
		}
	}
	return b.String()
}

// decodeUnicode decodes the part of a \u escape after the "u": either four
// hex digits or a braced code point. n is the number of bytes consumed.
func decodeUnicode(s string) (r rune, n int, ok bool) {
	if strings.HasPrefix(s, "{") {
		end := strings.IndexByte(s, '}')
		if end < 2 {
			return 0, 0, false
		}
		v, err := strconv.ParseUint(s[1:end], 16, 32)
		if err != nil || v > utf8.MaxRune {
			return 0, 0, false
		}
		return rune(v), end + 1, true
	}
	return decodeHex(s, 4)
}

func decodeHex(s string, digits int) (rune, int, bool) {
	if len(s) < digits {
		return 0, 0, false
	}
	v, err := strconv.ParseUint(s[:digits], 16, 32)
	if err != nil {
		return 0, 0, false
	}
	return rune(v), digits, true
}
