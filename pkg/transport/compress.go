package transport

import (
	"bytes"
	"compress/gzip"
)

// compressThreshold is the body size below which compression is skipped;
// tiny payloads do not amortize the gzip header.
const compressThreshold = 1024

// compressBody gzips the body when it is large enough to be worth it and is
// not already a gzip stream. The second return reports whether compression
// was applied (and the Content-Encoding header must be set).
func compressBody(body []byte) ([]byte, bool) {
	if len(body) < compressThreshold || isGzip(body) {
		return body, false
	}
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(body); err != nil {
		return body, false
	}
	if err := zw.Close(); err != nil {
		return body, false
	}
	// A payload that refuses to shrink is left alone.
	if buf.Len() >= len(body) {
		return body, false
	}
	return buf.Bytes(), true
}

func isGzip(b []byte) bool {
	return len(b) >= 2 && b[0] == 0x1f && b[1] == 0x8b
}
