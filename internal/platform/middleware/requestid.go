package middleware

import (
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/pedsclinic/clinicadmin/internal/platform/apiclient"
)

// RequestIDHeader is shared with the backend client so one id follows a
// console request all the way to the backend logs.
const RequestIDHeader = apiclient.RequestIDHeader

// RequestID reuses the caller's X-Request-ID or generates one, echoes it on
// the response and forwards it on every backend call made for the request.
func RequestID() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			rid := c.Request().Header.Get(RequestIDHeader)
			if rid == "" {
				rid = uuid.NewString()
			}
			c.Set("request_id", rid)
			c.Response().Header().Set(RequestIDHeader, rid)

			ctx := apiclient.WithRequestID(c.Request().Context(), rid)
			c.SetRequest(c.Request().WithContext(ctx))
			return next(c)
		}
	}
}
