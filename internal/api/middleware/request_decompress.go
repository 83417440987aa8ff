package middleware

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/andybalholm/brotli"
	apperrors "github.com/finesssee/streambridge/internal/errors"
	"github.com/gin-gonic/gin"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

// maxDecompressedBytes caps a decoded request body.
const maxDecompressedBytes = 32 << 20

// RequestDecompressionMiddleware transparently decodes request bodies sent with
// Content-Encoding gzip, zstd or br. net/http does not decode request bodies on its own.
func RequestDecompressionMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		enc := strings.ToLower(strings.TrimSpace(c.GetHeader("Content-Encoding")))
		if enc == "" || enc == "identity" {
			c.Next()
			return
		}

		decoded, err := decodeBody(enc, c.Request.Body)
		if err != nil {
			appErr := apperrors.New(http.StatusBadRequest, apperrors.CodeInvalidRequest, "invalid "+enc+" request body", err)
			if err == errBodyTooLarge {
				appErr = apperrors.New(http.StatusRequestEntityTooLarge, apperrors.CodeInvalidRequest, "decompressed request body too large", err)
			}
			c.Data(appErr.HTTPStatusCode, "application/json", appErr.ToJSON())
			c.Abort()
			return
		}

		c.Request.Body = io.NopCloser(bytes.NewReader(decoded))
		c.Request.ContentLength = int64(len(decoded))
		c.Request.Header.Del("Content-Encoding")
		c.Next()
	}
}

var errBodyTooLarge = fmt.Errorf("decompressed body exceeds %d bytes", maxDecompressedBytes)

func decodeBody(enc string, body io.Reader) ([]byte, error) {
	var r io.Reader
	switch enc {
	case "gzip", "x-gzip":
		gzr, err := gzip.NewReader(body)
		if err != nil {
			return nil, err
		}
		defer func() { _ = gzr.Close() }()
		r = gzr
	case "zstd":
		zr, err := zstd.NewReader(body)
		if err != nil {
			return nil, err
		}
		defer zr.Close()
		r = zr
	case "br":
		r = brotli.NewReader(body)
	default:
		return nil, fmt.Errorf("unsupported content encoding %q", enc)
	}

	decoded, err := io.ReadAll(io.LimitReader(r, maxDecompressedBytes+1))
	if err != nil {
		return nil, err
	}
	if len(decoded) > maxDecompressedBytes {
		return nil, errBodyTooLarge
	}
	return decoded, nil
}
