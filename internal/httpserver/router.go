package httpserver

import (
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	usermw "github.com/chadiek/maternal-support/internal/middleware"
)

// newRouter creates the Echo instance with the shared middleware stack.
func newRouter(signingSecret func() string) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowHeaders: []string{echo.HeaderContentType, usermw.HeaderUserID, usermw.HeaderUserSignature},
	}))
	e.Use(usermw.UserIdentity(signingSecret))
	return e
}
