package orchestrator

import (
	"strconv"
	"strings"
	"unicode/utf16"
	"unicode/utf8"
)

// partialStringField extracts the value of a top-level string field from a
// JSON object that may still be incomplete. It reports false until the
// opening quote of the value has arrived. An escape sequence cut at the end
// of buf is left out.
func partialStringField(buf, key string) (string, bool) {
	needle := strconv.Quote(key)
	i := strings.Index(buf, needle)
	if i < 0 {
		return "", false
	}
	rest := strings.TrimLeft(buf[i+len(needle):], " \t\r\n")
	if !strings.HasPrefix(rest, ":") {
		return "", false
	}
	rest = strings.TrimLeft(rest[1:], " \t\r\n")
	if !strings.HasPrefix(rest, `"`) {
		return "", false
	}
	rest = rest[1:]

	var sb strings.Builder
	for j := 0; j < len(rest); {
		c := rest[j]
		switch {
		case c == '"':
			return sb.String(), true
		case c != '\\':
			r, size := utf8.DecodeRuneInString(rest[j:])
			if r == utf8.RuneError && size == 1 && !utf8.FullRuneInString(rest[j:]) {
				return sb.String(), true
			}
			sb.WriteString(rest[j : j+size])
			j += size
			continue
		}

		if j+1 >= len(rest) {
			return sb.String(), true
		}
		switch rest[j+1] {
		case 'n':
			sb.WriteByte('\n')
		case 't':
			sb.WriteByte('\t')
		case 'r':
			sb.WriteByte('\r')
		case 'b':
			sb.WriteByte('\b')
		case 'f':
			sb.WriteByte('\f')
		case 'u':
			if j+6 > len(rest) {
				return sb.String(), true
			}
			r, ok := hexRune(rest[j+2 : j+6])
			if !ok {
				return sb.String(), true
			}
			j += 6
			if utf16.IsSurrogate(r) {
				// The low half of a pair may still be on its way.
				tail := rest[j:]
				if len(tail) < 6 && (tail == "" || tail[0] == '\\') {
					return sb.String(), true
				}
				if strings.HasPrefix(tail, `\u`) {
					if low, ok := hexRune(tail[2:6]); ok {
						if pair := utf16.DecodeRune(r, low); pair != utf8.RuneError {
							r = pair
							j += 6
						}
					}
				}
			}
			sb.WriteRune(r)
			continue
		default:
			sb.WriteByte(rest[j+1])
		}
		j += 2
	}
	return sb.String(), true
}

func hexRune(s string) (rune, bool) {
	n, err := strconv.ParseUint(s, 16, 32)
	if err != nil {
		return 0, false
	}
	return rune(n), true
}
