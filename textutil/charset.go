package textutil

import (
	"bytes"
	"unicode/utf8"

	"golang.org/x/text/encoding/korean"
	"golang.org/x/text/transform"
)

// DecodeText detects and decodes a TXT/MD upload's byte encoding. UTF-8
// (with or without BOM) passes through unchanged; otherwise it is assumed
// to be EUC-KR, the common legacy encoding for Korean office documents,
// per spec §4.6 step 2.
func DecodeText(b []byte) string {
	b = bytes.TrimPrefix(b, []byte{0xEF, 0xBB, 0xBF})
	if utf8.Valid(b) {
		return string(b)
	}
	decoded, _, err := transform.Bytes(korean.EUCKR.NewDecoder(), b)
	if err != nil {
		return string(b)
	}
	return string(decoded)
}
