package api

import (
	"crypto/subtle"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/notaproblemdotdev/monodash/common"
)

// headerAPIKey is the request header carrying the shared API key.
const headerAPIKey = "X-API-Key"

// APIKeyAuth returns middleware that requires every request to present the
// shared key in the X-API-Key header. The comparison is constant-time for
// keys of equal length, so the check leaks nothing about the key's contents
// (a length mismatch returns early); a missing header simply compares
// unequal. Requests without the right key receive HTTP 401.
//
// The CLI installs this only when an api_key is configured, so an empty
// key never means "allow everything".
func APIKeyAuth(validKey string) echo.MiddlewareFunc {
	expected := []byte(validKey)
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			supplied := []byte(c.Request().Header.Get(headerAPIKey))
			if subtle.ConstantTimeCompare(supplied, expected) != 1 {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid or missing API key")
			}
			return next(c)
		}
	}
}

// RequestLogger creates an Echo middleware that tags every request with a
// request id, echoes it back in the X-Request-ID header, and logs method,
// path, status, and latency.
func RequestLogger() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			requestID := c.Request().Header.Get(echo.HeaderXRequestID)
			if requestID == "" {
				requestID = uuid.NewString()
			}
			c.Response().Header().Set(echo.HeaderXRequestID, requestID)

			start := time.Now()
			err := next(c)

			common.Logger.
				WithField("request_id", requestID).
				WithField("method", c.Request().Method).
				WithField("path", c.Request().URL.Path).
				WithField("status", c.Response().Status).
				WithField("latency", time.Since(start).String()).
				Info("Handled request")
			return err
		}
	}
}
