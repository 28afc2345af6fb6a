package proxy

import (
	"bytes"
	"io"
	"strings"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/gzip"
)

// decodeBody decompresses a response body according to its
// Content-Encoding. The transport's automatic gzip handling is disabled
// by the explicit Accept-Encoding request header, so bodies that need
// rewriting are decoded here. Unknown encodings return the body as-is
// with decoded=false so the caller can pass it through untouched.
func decodeBody(body []byte, contentEncoding string) (data []byte, decoded bool, err error) {
	switch strings.ToLower(strings.TrimSpace(contentEncoding)) {
	case "", "identity":
		return body, true, nil
	case "gzip":
		zr, err := gzip.NewReader(bytes.NewReader(body))
		if err != nil {
			return body, false, err
		}
		defer zr.Close()
		data, err = io.ReadAll(zr)
		if err != nil {
			return body, false, err
		}
		return data, true, nil
	case "deflate":
		fr := flate.NewReader(bytes.NewReader(body))
		defer fr.Close()
		data, err = io.ReadAll(fr)
		if err != nil {
			return body, false, err
		}
		return data, true, nil
	case "br":
		data, err = io.ReadAll(brotli.NewReader(bytes.NewReader(body)))
		if err != nil {
			return body, false, err
		}
		return data, true, nil
	default:
		return body, false, nil
	}
}
