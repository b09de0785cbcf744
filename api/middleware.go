package api

import (
	"compress/gzip"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

// decompressRequests undoes the codings listed in Content-Encoding, last one
// first. gzip and identity are understood; anything else is a 415, and a body
// that fails to open as gzip is a 400. The server still closes the original
// body once the handler returns.
func decompressRequests() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			header := req.Header.Get(echo.HeaderContentEncoding)
			if header == "" {
				return next(c)
			}
			codings := strings.Split(header, ",")
			var body io.Reader = req.Body
			for i := len(codings) - 1; i >= 0; i-- {
				switch coding := strings.ToLower(strings.TrimSpace(codings[i])); coding {
				case "", "identity":
				case "gzip", "x-gzip":
					gr, err := gzip.NewReader(body)
					if err != nil {
						setErrorStage(c, "decode")
						return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid gzip body"})
					}
					body = gr
				default:
					setErrorStage(c, "decode")
					return c.JSON(http.StatusUnsupportedMediaType, errorResponse{Error: fmt.Sprintf("unsupported content encoding %q", coding)})
				}
			}
			req.Body = io.NopCloser(body)
			req.ContentLength = -1
			req.Header.Del(echo.HeaderContentEncoding)
			req.Header.Del(echo.HeaderContentLength)
			return next(c)
		}
	}
}
