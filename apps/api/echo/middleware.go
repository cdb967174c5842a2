package echoapi

import (
	"github.com/labstack/echo/v4"
)

// adminMiddleware lets through sessions holding any admin role.
func adminMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		if !getContextSession(ctx).IsAdmin() {
			return errHttpForbidden
		}
		return next(ctx)
	}
}
