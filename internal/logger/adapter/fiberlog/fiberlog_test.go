package fiberlog_test

import (
	"bytes"
	"encoding/json"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rolemirror/rolemirror/internal/logger"
	"github.com/rolemirror/rolemirror/internal/logger/adapter/fiberlog"
)

type accessLine struct {
	Status int    `json:"status"`
	URI    string `json:"URI"`
	Method string `json:"method"`
	Error  string `json:"error"`
}

func newApp(cfg fiberlog.Config) *fiber.App {
	app := fiber.New()
	app.Use(fiberlog.New(cfg))
	app.Get("/checkalive", func(c *fiber.Ctx) error { return c.SendString("OK") })
	app.Get("/api/jobs", func(c *fiber.Ctx) error { return c.JSON(fiber.Map{"ok": true}) })
	app.Get("/boom", func(_ *fiber.Ctx) error { return fiber.NewError(fiber.StatusTeapot, "boom") })

	return app
}

func TestAccessLog(t *testing.T) {
	tests := []struct {
		name       string
		target     string
		disableCA  bool
		wantLine   bool
		wantStatus int
		wantURI    string
	}{
		{name: "query string kept", target: "/api/jobs?status=pending", wantLine: true, wantStatus: 200, wantURI: "/api/jobs?status=pending"},
		{name: "checkalive logged", target: "/checkalive", wantLine: true, wantStatus: 200, wantURI: "/checkalive"},
		{name: "checkalive suppressed", target: "/checkalive", disableCA: true},
		{name: "handler error", target: "/boom", wantLine: true, wantStatus: fiber.StatusTeapot, wantURI: "/boom"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer

			app := newApp(fiberlog.Config{
				Log:           logger.Log{DisableCheckAlive: tt.disableCA},
				CheckAliveURI: "/checkalive",
				Output:        &buf,
			})

			resp, err := app.Test(httptest.NewRequest(fiber.MethodGet, tt.target, nil))
			require.NoError(t, err)
			assert.NotEmpty(t, resp.Header.Get("X-Performance"))

			if !tt.wantLine {
				assert.Empty(t, buf.String())

				return
			}

			var line accessLine

			require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
			assert.Equal(t, tt.wantStatus, line.Status)
			assert.Equal(t, tt.wantURI, line.URI)
			assert.Equal(t, fiber.MethodGet, line.Method)
		})
	}
}
