package replay

import (
	"strings"
	"unicode"
)

// Unescape converts the literal two-character escape sequences the telemetry
// recorder writes for newline and carriage return into real control
// characters. Nothing else is touched: patch offsets are computed against
// exactly this form, so Unescape must never trim or reflow.
func Unescape(s string) string {
	s = strings.ReplaceAll(s, `\n`, "\n")
	return strings.ReplaceAll(s, `\r`, "\r")
}

// Clean normalizes CRLF and bare CR line endings to LF and trims trailing
// whitespace. It is applied to fenced-block payloads only; patch inputs go
// through Unescape alone so that offset and length math stays exact.
func Clean(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	return strings.TrimRightFunc(s, unicode.IsSpace)
}
