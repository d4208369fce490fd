package middleware_test

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"poker-league/logger"
	"poker-league/middleware"

	"github.com/gofiber/fiber/v2"
	"github.com/smartystreets/goconvey/convey"
)

func withUser(req *http.Request) *http.Request {
	req.Header.Set("X-User-ID", "director-1")
	return req
}

func newApp(token string) *fiber.App {
	app := fiber.New()
	app.Use(middleware.GatewayAuthMiddleware(token))
	app.Get("/whoami", middleware.UserContextMiddleware(), func(c *fiber.Ctx) error {
		return c.SendString(middleware.ActorFrom(c))
	})
	return app
}

func TestGatewayAuthMiddleware(t *testing.T) {
	convey.Convey("Given an app behind the gateway check", t, func() {
		if err := logger.Init(); err != nil {
			t.Fatalf("init logger: %v", err)
		}
		app := newApp("gw-token")

		cases := []struct {
			name   string
			header string
			status int
		}{
			{"missing token", "", fiber.StatusUnauthorized},
			{"wrong token", "Bearer nope", fiber.StatusUnauthorized},
			{"bearer token", "Bearer gw-token", fiber.StatusOK},
			{"raw token", "gw-token", fiber.StatusOK},
		}
		for _, tc := range cases {
			convey.Convey("When the request has a "+tc.name, func() {
				req := httptest.NewRequest("GET", "/whoami", nil)
				req.Header.Set("X-User-ID", "director-1")
				if tc.header != "" {
					req.Header.Set("Authorization", tc.header)
				}
				resp, err := app.Test(req, -1)
				convey.So(err, convey.ShouldBeNil)
				convey.So(resp.StatusCode, convey.ShouldEqual, tc.status)
			})
		}

		convey.Convey("When no token is configured", func() {
			resp, err := newApp("").Test(withUser(httptest.NewRequest("GET", "/whoami", nil)), -1)
			convey.So(err, convey.ShouldBeNil)
			convey.So(resp.StatusCode, convey.ShouldEqual, fiber.StatusOK)
		})
	})
}

func TestUserContextMiddleware(t *testing.T) {
	convey.Convey("Given an app that needs a user", t, func() {
		if err := logger.Init(); err != nil {
			t.Fatalf("init logger: %v", err)
		}
		app := newApp("")

		convey.Convey("When the gateway passes the user along", func() {
			resp, err := app.Test(withUser(httptest.NewRequest("GET", "/whoami", nil)), -1)
			convey.So(err, convey.ShouldBeNil)
			body, _ := io.ReadAll(resp.Body)

			convey.Convey("Then the handler acts as that user", func() {
				convey.So(resp.StatusCode, convey.ShouldEqual, fiber.StatusOK)
				convey.So(string(body), convey.ShouldEqual, "director-1")
			})
		})

		convey.Convey("When there is no user", func() {
			resp, err := app.Test(httptest.NewRequest("GET", "/whoami", nil), -1)
			convey.So(err, convey.ShouldBeNil)
			convey.So(resp.StatusCode, convey.ShouldEqual, fiber.StatusUnauthorized)
		})
	})
}
