package handler

import (
	"context"

	"github.com/breatheroute/wayfinder/internal/api/middleware"
)

// GetDeviceID returns the device that authenticated the request, or "" on
// open routes.
func GetDeviceID(ctx context.Context) string {
	return middleware.GetDeviceID(ctx)
}
