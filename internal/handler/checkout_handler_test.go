package handler

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"shrimpshop/internal/middleware"
	"shrimpshop/internal/testutil"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestCheckoutSuccess_ClearCartFailureLogsBothSessions(t *testing.T) {
	a := testutil.NewApp()
	a.Carts.Err = errors.New("redis down")
	core, logs := observer.New(zapcore.WarnLevel)
	h := NewCheckoutHandler(a.Orders, a.Cart, zap.New(core))

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/checkout/success?session_id=cs_test_9&ref=SSS-1", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.Set(middleware.CtxCartSessionKey, "cart-abc")

	require.NoError(t, h.success(c))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"reference":"SSS-1"`)

	entries := logs.FilterMessage("clear cart after checkout").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "cart-abc", fields["session_id"])
	assert.Equal(t, "cs_test_9", fields["checkout_session_id"])
}
