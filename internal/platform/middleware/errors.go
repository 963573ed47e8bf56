package middleware

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/pedsclinic/clinicadmin/internal/platform/apiclient"
)

// HTTPError converts a service error into an echo error carrying the status
// from apiclient.HTTPStatus. The original error is kept as Internal so the
// error handler can render field errors.
func HTTPError(err error) error {
	if err == nil {
		return nil
	}
	var he *echo.HTTPError
	if errors.As(err, &he) {
		return he
	}
	return echo.NewHTTPError(apiclient.HTTPStatus(err), err.Error()).SetInternal(err)
}

type errorBody struct {
	Error  string            `json:"error"`
	Fields map[string]string `json:"fields,omitempty"`
}

// ErrorHandler renders every error as {"error": "..."} and adds "fields"
// for form validation failures.
func ErrorHandler(logger zerolog.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		he, ok := HTTPError(err).(*echo.HTTPError)
		if !ok {
			he = echo.NewHTTPError(http.StatusInternalServerError, err.Error())
		}
		body := errorBody{Error: fmt.Sprint(he.Message)}
		if m, ok := he.Message.(string); ok {
			body.Error = m
		}
		var fe apiclient.FieldErrors
		if errors.As(err, &fe) {
			body.Fields = fe
		}

		if he.Code >= http.StatusInternalServerError {
			rid, _ := c.Get("request_id").(string)
			logger.Error().Err(err).Str("request_id", rid).Int("status", he.Code).Msg("request failed")
		}

		if c.Request().Method == http.MethodHead {
			err = c.NoContent(he.Code)
		} else {
			err = c.JSON(he.Code, body)
		}
		if err != nil {
			logger.Error().Err(err).Msg("failed to write error response")
		}
	}
}
