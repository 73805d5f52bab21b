package middleware

import (
	"time"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"
)

// RequestLogger logs one line per request with logrus.  Server errors are
// logged at error level, client errors at warn.
func RequestLogger() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			if err != nil {
				// let echo render the error so the status below is final
				c.Error(err)
			}
			req, res := c.Request(), c.Response()
			entry := logrus.WithFields(logrus.Fields{
				"method":    req.Method,
				"path":      c.Path(),
				"uri":       req.RequestURI,
				"status":    res.Status,
				"duration":  time.Since(start).String(),
				"client_ip": c.RealIP(),
			})
			if id, idErr := UserID(c); idErr == nil {
				entry = entry.WithField("user_id", id)
			}
			if err != nil {
				entry = entry.WithError(err)
			}
			switch {
			case res.Status >= 500:
				entry.Error("request failed")
			case res.Status >= 400:
				entry.Warn("request rejected")
			default:
				entry.Info("request processed")
			}
			return nil
		}
	}
}
