package api

import (
	"errors"
	"io"
	"net/http"

	"github.com/bytedance/sonic"
	"github.com/labstack/echo/v4"
)

const maxBodySize = 64 * 1024 // 64 KiB

var errInvalidBody = errors.New("invalid body")

// SonicSerializer makes Echo encode responses with sonic.
type SonicSerializer struct{}

func (SonicSerializer) Serialize(c echo.Context, i any, indent string) error {
	enc := sonic.ConfigStd.NewEncoder(c.Response())
	if indent != "" {
		enc.SetIndent("", indent)
	}
	return enc.Encode(i)
}

func (SonicSerializer) Deserialize(c echo.Context, i any) error {
	return decodeStrict(c.Request().Body, i)
}

// decodeStrict reads at most maxBodySize bytes and rejects unknown fields.
func decodeStrict(body io.Reader, dst any) error {
	dec := sonic.ConfigStd.NewDecoder(io.LimitReader(body, maxBodySize))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, errInvalidBody.Error()).SetInternal(err)
	}
	return nil
}
