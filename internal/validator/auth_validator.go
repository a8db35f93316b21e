package validator

import (
	"context"
	"regexp"
	"strings"

	"shrimpshop/internal/usecase"
)

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

type authValidator struct{}

func NewAuthValidator() usecase.LoginValidator {
	return &authValidator{}
}

// ログインの入力を検証
func (v *authValidator) ValidateLogin(ctx context.Context, email string, password string) error {
	email = strings.TrimSpace(email)

	// 必須チェック
	if email == "" {
		return fieldError("email", "is required")
	}
	if password == "" {
		return fieldError("password", "is required")
	}
	if !isEmailLike(email) {
		return fieldError("email", "is not a valid email address")
	}
	return nil
}

// 簡易メール形式をチェック
func isEmailLike(s string) bool {
	return len(s) <= 254 && emailPattern.MatchString(s)
}
