package middleware

import (
	"github.com/labstack/echo/v4"
)

// errorJSON writes the API's error envelope unless the response is already
// committed.
func errorJSON(c echo.Context, status int, msg string) error {
	if c.Response().Committed {
		return nil
	}
	body := map[string]string{"error": msg}
	if rid, ok := c.Get("request_id").(string); ok && rid != "" {
		body["request_id"] = rid
	}
	return c.JSON(status, body)
}
