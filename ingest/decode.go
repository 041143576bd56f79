package ingest

import (
	"bytes"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/korean"
	"golang.org/x/text/transform"
)

// =============================================================================
// TEXT ENCODINGS - Tried in order until one decodes cleanly
// =============================================================================

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

type textEncoding struct {
	Name string
	// Covers lists encodings this step also decodes, reported in EncodingError.
	Covers []string
	Decode func([]byte) (string, bool)
}

// encodings is the fixed fallback order for delimited text.
// x/text's EUC-KR decoder implements the CP949 (UHC) superset, so one
// step decodes both: anything that fails cp949 also fails euc-kr.
var encodings = []textEncoding{
	{Name: "utf-8", Decode: decodeUTF8},
	{Name: "cp949", Covers: []string{"euc-kr"}, Decode: decodeCP949},
}

// EncodingNames returns the fallback order.
func EncodingNames() []string {
	var names []string
	for _, e := range encodings {
		names = append(names, e.Name)
		names = append(names, e.Covers...)
	}
	return names
}

// decodeText returns the decoded text and the name of the encoding that worked.
func decodeText(data []byte) (string, string, bool) {
	for _, enc := range encodings {
		if text, ok := enc.Decode(data); ok {
			return text, enc.Name, true
		}
	}
	return "", "", false
}

func decodeUTF8(data []byte) (string, bool) {
	data = bytes.TrimPrefix(data, utf8BOM)
	if !utf8.Valid(data) {
		return "", false
	}
	return string(data), true
}

func decodeCP949(data []byte) (string, bool) {
	out, _, err := transform.Bytes(korean.EUCKR.NewDecoder(), data)
	if err != nil {
		return "", false
	}
	// The decoder substitutes U+FFFD for invalid sequences instead of failing.
	text := string(out)
	if strings.ContainsRune(text, utf8.RuneError) {
		return "", false
	}
	return text, true
}
