package ingest

import (
	"bytes"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

var (
	bomUTF16BE = []byte{0xFE, 0xFF}
	bomUTF16LE = []byte{0xFF, 0xFE}
)

// DecodeText turns raw upload or response bytes into a UTF-8 string.
// A UTF-8 or UTF-16 byte order mark selects the encoding and is removed.
// Without a BOM, valid UTF-8 is taken as-is and anything else is read as
// Windows-1252, which is what spreadsheet exports usually are.
func DecodeText(raw []byte) string {
	if len(raw) == 0 {
		return ""
	}

	utf16BOM := bytes.HasPrefix(raw, bomUTF16BE) || bytes.HasPrefix(raw, bomUTF16LE)
	if !utf16BOM && !utf8.Valid(raw) {
		out, _, err := transform.Bytes(charmap.Windows1252.NewDecoder(), raw)
		if err != nil {
			return string(raw)
		}
		return string(out)
	}

	out, _, err := transform.Bytes(unicode.BOMOverride(unicode.UTF8.NewDecoder()), raw)
	if err != nil {
		return string(raw)
	}
	return string(out)
}
