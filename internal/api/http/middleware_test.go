package http

import (
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/maplebug/helpdesk/internal/observability"
	apperrors "github.com/maplebug/helpdesk/pkg/util"
)

func newObservedApp(t *testing.T) (*fiber.App, *observer.ObservedLogs) {
	t.Helper()
	core, logs := observer.New(zapcore.InfoLevel)
	app := fiber.New()
	RegisterMiddlewares(app, zap.New(core), observability.NewMetrics(), 0)
	return app, logs
}

func requestLogEntries(logs *observer.ObservedLogs) []observer.LoggedEntry {
	return logs.FilterMessage("request").All()
}

func TestErrorResponseShape(t *testing.T) {
	app, _ := newObservedApp(t)
	app.Get("/missing", func(c *fiber.Ctx) error {
		return apperrors.NewNotFound("ticket", nil)
	})

	resp, err := app.Test(httptest.NewRequest(fiber.MethodGet, "/missing", nil))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
}

func TestRequestLoggerSeesConvertedStatus(t *testing.T) {
	app, logs := newObservedApp(t)
	app.Get("/missing", func(c *fiber.Ctx) error {
		return apperrors.NewNotFound("ticket", nil)
	})

	resp, err := app.Test(httptest.NewRequest(fiber.MethodGet, "/missing", nil))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, fiber.StatusNotFound, resp.StatusCode)

	entries := requestLogEntries(logs)
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.EqualValues(t, fiber.StatusNotFound, fields["status"])
}

func TestRequestLoggerRecordsSuccessStatus(t *testing.T) {
	app, logs := newObservedApp(t)
	app.Get("/ok", func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})

	resp, err := app.Test(httptest.NewRequest(fiber.MethodGet, "/ok", nil))
	require.NoError(t, err)
	defer resp.Body.Close()

	entries := requestLogEntries(logs)
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.EqualValues(t, fiber.StatusOK, fields["status"])
}

func TestPanicRecoveredAsInternalError(t *testing.T) {
	app, logs := newObservedApp(t)
	app.Get("/boom", func(c *fiber.Ctx) error {
		panic("boom")
	})

	resp, err := app.Test(httptest.NewRequest(fiber.MethodGet, "/boom", nil))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, fiber.StatusInternalServerError, resp.StatusCode)

	entries := requestLogEntries(logs)
	require.Len(t, entries, 1)
	assert.EqualValues(t, fiber.StatusInternalServerError, entries[0].ContextMap()["status"])
}
