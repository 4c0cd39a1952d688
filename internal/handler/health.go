package handler // package handler contains the HTTP handlers of the mobile API

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// Health is used by load balancers to verify that the process is serving.
func Health(c echo.Context) error {
	return c.String(http.StatusOK, "ok")
}
