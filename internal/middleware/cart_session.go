package middleware

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

const (
	CartSessionCookie = "cart_session"
	CtxCartSessionKey = "cart_session_id" // string
)

type CartSessionConfig struct {
	TTL    time.Duration
	Secure bool
}

// 匿名カート用のセッションIDをCookieで発行・維持する。
// 不正な値は捨てて新しく振り直す
func CartSession(cfg CartSessionConfig) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			sid := ""
			if ck, err := c.Cookie(CartSessionCookie); err == nil {
				if id, err := uuid.Parse(ck.Value); err == nil {
					sid = id.String()
				}
			}
			if sid == "" {
				sid = uuid.NewString()
			}

			//アクセスごとに期限を延ばす
			c.SetCookie(&http.Cookie{
				Name:     CartSessionCookie,
				Value:    sid,
				Path:     "/",
				MaxAge:   int(cfg.TTL.Seconds()),
				HttpOnly: true,
				Secure:   cfg.Secure,
				SameSite: http.SameSiteLaxMode,
			})
			c.Set(CtxCartSessionKey, sid)

			return next(c)
		}
	}
}

// ハンドラ側でセッションIDを取り出す
func CartSessionID(c echo.Context) (string, bool) {
	sid, ok := c.Get(CtxCartSessionKey).(string)
	return sid, ok && sid != ""
}
