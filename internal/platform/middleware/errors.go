package middleware

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

// ErrorBody is the JSON shape of every error response.
type ErrorBody struct {
	Error string `json:"error"`
}

// HTTPErrorHandler renders errors as {"error": "..."}. Errors that are not
// echo.HTTPError become a generic 500 and are logged with the request id.
func HTTPErrorHandler(logger zerolog.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		code := http.StatusInternalServerError
		msg := "Internal server error"

		var he *echo.HTTPError
		if errors.As(err, &he) {
			code = he.Code
			switch m := he.Message.(type) {
			case string:
				msg = m
			case error:
				msg = m.Error()
			default:
				msg = fmt.Sprintf("%v", m)
			}
			if code == http.StatusNotFound && msg == "Not Found" {
				msg = "not found"
			}
		} else {
			rid, _ := c.Get("request_id").(string)
			logger.Error().Err(err).Str("request_id", rid).Msg("unhandled error")
		}

		if c.Request().Method == http.MethodHead {
			err = c.NoContent(code)
		} else {
			err = c.JSON(code, ErrorBody{Error: msg})
		}
		if err != nil {
			logger.Error().Err(err).Msg("writing error response")
		}
	}
}
