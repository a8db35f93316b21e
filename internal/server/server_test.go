package server_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"shrimpshop/internal/config"
	"shrimpshop/internal/domain/model"
	"shrimpshop/internal/handler"
	"shrimpshop/internal/infra/auth"
	"shrimpshop/internal/middleware"
	"shrimpshop/internal/server"
	"shrimpshop/internal/testutil"
	"shrimpshop/internal/usecase"
	"shrimpshop/internal/validator"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

const jwtSecret = "server_test_secret"

type wallClock struct{}

func (wallClock) Now() time.Time { return time.Now().UTC() }

type testServer struct {
	e      *echo.Echo
	app    *testutil.App
	issuer *auth.JWTIssuer
	admin  *model.User
	staff  *model.User
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	app := testutil.NewApp()
	log := zap.NewNop()

	issuer, err := auth.NewJWTIssuer(jwtSecret, auth.DefaultAccessTTL)
	require.NoError(t, err)

	hash, err := auth.NewBcryptPasswordHasher(bcrypt.MinCost).Hash("correct horse")
	require.NoError(t, err)
	admin := app.Store.AddUser(model.User{Email: "owner@shrimp.test", PasswordHash: hash, Role: model.RoleAdmin, IsActive: true})
	staff := app.Store.AddUser(model.User{Email: "packer@shrimp.test", PasswordHash: hash, Role: model.RoleStaff, IsActive: true})

	authUC := usecase.NewAuthUsecase(app.Store.UserRepo(), auth.NewBcryptPasswordVerifier(), issuer, validator.NewAuthValidator(), wallClock{}, log)

	e := server.New(config.Config{FEURL: "http://localhost:5173"}, log)
	server.RegisterRoutes(e, server.Handlers{
		Product:      handler.NewProductHandler(app.Products),
		Cart:         handler.NewCartHandler(app.Cart),
		Checkout:     handler.NewCheckoutHandler(app.Orders, app.Cart, log),
		Webhook:      handler.NewWebhookHandler(app.Orders),
		Order:        handler.NewOrderHandler(app.Orders),
		Auth:         handler.NewAuthHandler(authUC),
		AdminOrder:   handler.NewAdminOrderHandler(app.AdminOrders),
		AdminProduct: handler.NewAdminProductHandler(app.Products),
	}, server.RouteDeps{
		JWTSecret:   jwtSecret,
		Users:       app.Store.UserRepo(),
		CartSession: middleware.CartSession(middleware.CartSessionConfig{TTL: time.Hour}),
		AddToCart:   server.RateLimit(100),
		Login:       server.RateLimit(100),
	})

	return &testServer{e: e, app: app, issuer: issuer, admin: admin, staff: staff}
}

func (s *testServer) token(t *testing.T, u *model.User) string {
	t.Helper()
	tok, _, err := s.issuer.Issue(u.ID, u.Role, u.TokenVersion, time.Now())
	require.NoError(t, err)
	return tok
}

type call struct {
	method string
	path   string
	body   string
	cookie *http.Cookie
	token  string
	header map[string]string
}

func (s *testServer) do(c call) *httptest.ResponseRecorder {
	var req *http.Request
	if c.body != "" {
		req = httptest.NewRequest(c.method, c.path, strings.NewReader(c.body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	} else {
		req = httptest.NewRequest(c.method, c.path, nil)
	}
	if c.cookie != nil {
		req.AddCookie(c.cookie)
	}
	if c.token != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+c.token)
	}
	for k, v := range c.header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	s.e.ServeHTTP(rec, req)
	return rec
}

func sessionCookie(t *testing.T, rec *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	for _, ck := range rec.Result().Cookies() {
		if ck.Name == middleware.CartSessionCookie {
			return ck
		}
	}
	t.Fatalf("no %s cookie in response", middleware.CartSessionCookie)
	return nil
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestHealthz(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(call{method: http.MethodGet, path: "/healthz"})
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestCatalogRoutes(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(call{method: http.MethodGet, path: "/products?sort=price_desc"})
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[usecase.ProductListOutput](t, rec)
	assert.Equal(t, int64(2), list.Total)
	assert.Equal(t, "Blue Dream", list.Items[0].Name)

	rec = s.do(call{method: http.MethodGet, path: "/products?page=abc"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(call{method: http.MethodGet, path: "/products/999"})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.do(call{method: http.MethodGet, path: "/categories"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]model.Category](t, rec), 2)
}

func TestCartCookieFlow(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(call{method: http.MethodPost, path: "/cart/items", body: `{"product_id":3,"quantity":2}`})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	ck := sessionCookie(t, rec)
	assert.True(t, ck.HttpOnly)
	assert.Equal(t, 3600, ck.MaxAge)

	cart := decode[usecase.CartResponse](t, rec)
	assert.Equal(t, "22.00", cart.GrandTotal.StringFixed(2))

	// 同じCookieなら同じカート
	rec = s.do(call{method: http.MethodGet, path: "/cart", cookie: ck})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, ck.Value, sessionCookie(t, rec).Value)
	assert.Len(t, decode[usecase.CartResponse](t, rec).Items, 1)

	// Cookieなしは別の空カート
	rec = s.do(call{method: http.MethodGet, path: "/cart"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decode[usecase.CartResponse](t, rec).Items)

	rec = s.do(call{method: http.MethodPatch, path: "/cart/items/3", body: `{"quantity":-1}`, cookie: ck})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Quantity cannot be negative.", decode[handler.ErrorResponse](t, rec).Error)

	rec = s.do(call{method: http.MethodDelete, path: "/cart/items/4", cookie: ck})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.do(call{method: http.MethodDelete, path: "/cart/items/3", cookie: ck})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decode[usecase.CartResponse](t, rec).Items)
}

func TestCheckoutAndWebhookFlow(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(call{method: http.MethodPost, path: "/cart/items", body: `{"product_id":3,"quantity":2}`})
	require.Equal(t, http.StatusOK, rec.Code)
	ck := sessionCookie(t, rec)

	rec = s.do(call{method: http.MethodPost, path: "/checkout", body: `{"email":"ann@example.com"}`, cookie: ck})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(call{method: http.MethodPost, path: "/checkout", body: `{"email":"ann@example.com","agree_to_terms":true}`, cookie: ck})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	placed := decode[usecase.PlaceOrderOutput](t, rec)
	assert.Equal(t, "https://pay.test/cs_test_1", placed.CheckoutURL)

	s.app.Gateway.Complete("t=1,v1=ok", "cs_test_1", "ann@example.com")

	rec = s.do(call{method: http.MethodPost, path: "/webhooks/stripe", body: `{"id":"evt"}`, header: map[string]string{"Stripe-Signature": "t=1,v1=forged"}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(call{method: http.MethodPost, path: "/webhooks/stripe", body: `{"id":"evt"}`, header: map[string]string{"Stripe-Signature": "t=1,v1=ok"}})
	assert.Equal(t, http.StatusOK, rec.Code)
	rec = s.do(call{method: http.MethodPost, path: "/webhooks/stripe", body: `{"id":"evt"}`, header: map[string]string{"Stripe-Signature": "t=1,v1=ok"}})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, int64(8), s.app.Store.Product(3).Stock)

	rec = s.do(call{method: http.MethodGet, path: "/orders/" + placed.Reference})
	require.Equal(t, http.StatusOK, rec.Code)
	order := decode[usecase.OrderOutput](t, rec)
	assert.Equal(t, "paid", order.Status)
	assert.Equal(t, "Ann Diver", order.ShippingName)

	// 決済完了の戻りでカートを消す
	rec = s.do(call{method: http.MethodGet, path: "/checkout/success?session_id=cs_test_1&ref=" + placed.Reference, cookie: ck})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, placed.Reference, decode[handler.CheckoutResultResponse](t, rec).Reference)
	assert.False(t, s.app.Carts.Has(ck.Value))
}

func TestCheckoutCancelKeepsCart(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(call{method: http.MethodPost, path: "/cart/items", body: `{"product_id":4,"quantity":1}`})
	require.Equal(t, http.StatusOK, rec.Code)
	ck := sessionCookie(t, rec)

	rec = s.do(call{method: http.MethodGet, path: "/checkout/cancel?ref=SSS-X", cookie: ck})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Payment was cancelled. Your cart has been kept.", decode[handler.CheckoutResultResponse](t, rec).Message)
	assert.True(t, s.app.Carts.Has(ck.Value))
}

func TestCheckoutShortageIsConflict(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(call{method: http.MethodPost, path: "/cart/items", body: `{"product_id":3,"quantity":5}`})
	require.Equal(t, http.StatusOK, rec.Code)
	ck := sessionCookie(t, rec)
	s.app.Store.SetStock(3, 2)

	rec = s.do(call{method: http.MethodPost, path: "/checkout", body: `{"email":"ann@example.com","agree_to_terms":true}`, cookie: ck})
	require.Equal(t, http.StatusConflict, rec.Code)
	body := decode[handler.ErrorResponse](t, rec)
	assert.Equal(t, "insufficient stock", body.Error)
	assert.Equal(t, []string{"Only 2 of Blue Dream available. Please update your cart quantity."}, body.Details)
}

func TestAdminRoutes_Access(t *testing.T) {
	s := newTestServer(t)
	staffTok := s.token(t, s.staff)
	adminTok := s.token(t, s.admin)

	rec := s.do(call{method: http.MethodGet, path: "/admin/orders"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = s.do(call{method: http.MethodGet, path: "/admin/orders", token: staffTok})
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(call{method: http.MethodPut, path: "/admin/inventory/3", body: `{"stock":4}`, token: staffTok})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = s.do(call{method: http.MethodPut, path: "/admin/inventory/3", body: `{"stock":4,"reason":"recount"}`, token: adminTok})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, int64(4), s.app.Store.Product(3).Stock)

	rec = s.do(call{method: http.MethodPut, path: "/admin/inventory/3", body: `{"reason":"recount"}`, token: adminTok})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(call{method: http.MethodGet, path: "/admin/audit-logs?action=UPDATE_STOCK", token: adminTok})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]model.AuditLog](t, rec), 1)

	// token_versionが変わったら古いトークンは使えない
	s.admin.TokenVersion++
	rec = s.do(call{method: http.MethodGet, path: "/admin/orders", token: adminTok})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAdminOrderStatusRoute(t *testing.T) {
	s := newTestServer(t)
	tok := s.token(t, s.staff)

	rec := s.do(call{method: http.MethodPost, path: "/cart/items", body: `{"product_id":4,"quantity":1}`})
	ck := sessionCookie(t, rec)
	rec = s.do(call{method: http.MethodPost, path: "/checkout", body: `{"email":"ann@example.com","agree_to_terms":true}`, cookie: ck})
	require.Equal(t, http.StatusCreated, rec.Code)
	s.app.Gateway.Complete("sig", "cs_test_1", "ann@example.com")
	require.Equal(t, http.StatusOK, s.do(call{method: http.MethodPost, path: "/webhooks/stripe", body: `{}`, header: map[string]string{"Stripe-Signature": "sig"}}).Code)
	id := s.app.Store.Orders()[0].ID
	path := "/admin/orders/" + itoa(id) + "/status"

	rec = s.do(call{method: http.MethodPut, path: path, body: `{"status":"shipped"}`, token: tok})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "tracking number is required for shipped or delivered orders", decode[handler.ErrorResponse](t, rec).Error)

	rec = s.do(call{method: http.MethodPut, path: path, body: `{"status":"shipped","tracking_number":"RM1"}`, token: tok})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "shipped", decode[usecase.OrderOutput](t, rec).Status)

	rec = s.do(call{method: http.MethodGet, path: "/admin/orders?status=shipped", token: tok})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, int64(1), decode[usecase.AdminOrderListOutput](t, rec).Total)

	rec = s.do(call{method: http.MethodGet, path: "/admin/orders?from=2026-13-01", token: tok})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestLoginRoute(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(call{method: http.MethodPost, path: "/auth/login", body: `{"email":"owner@shrimp.test","password":"wrong"}`})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = s.do(call{method: http.MethodPost, path: "/auth/login", body: `{"email":"owner@shrimp.test","password":"correct horse"}`})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	out := decode[usecase.LoginOutput](t, rec)
	assert.Equal(t, "ADMIN", out.User.Role)

	rec = s.do(call{method: http.MethodGet, path: "/admin/audit-logs", token: out.AccessToken})
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRateLimit(t *testing.T) {
	e := echo.New()
	e.GET("/limited", func(c echo.Context) error { return c.NoContent(http.StatusOK) }, server.RateLimit(2))

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/limited", nil))
		codes = append(codes, rec.Code)
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)
}

func itoa(id int64) string {
	b, _ := json.Marshal(id)
	return string(b)
}
