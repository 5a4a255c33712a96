package handler

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

type healthResp struct {
	Success     bool   `json:"success"`
	Message     string `json:"message"`
	Timestamp   string `json:"timestamp"`
	Environment string `json:"environment"`
}

// Health reports liveness for load balancers and monitoring.
func Health(env string, now func() time.Time) echo.HandlerFunc {
	if now == nil {
		now = time.Now
	}
	return func(c echo.Context) error {
		return c.JSON(http.StatusOK, healthResp{
			Success:     true,
			Message:     "Server is running",
			Timestamp:   now().UTC().Format(time.RFC3339Nano),
			Environment: env,
		})
	}
}
