package usecase

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"shrimpshop/internal/domain/model"
	repo "shrimpshop/internal/repository"

	"go.uber.org/zap"
)

// JWTを発行する約束
type AccessTokenIssuer interface {
	Issue(userID int64, role model.Role, tokenVersion int, now time.Time) (token string, expiresAt time.Time, err error)
}

// 入力パスワードと保存したハッシュを比べる約束
type PasswordVerifier interface {
	Verify(plain string, hashed string) bool
}

type LoginValidator interface {
	ValidateLogin(ctx context.Context, email string, password string) error
}

type UserDTO struct {
	ID    int64  `json:"id"`
	Email string `json:"email"`
	Role  string `json:"role"`
}

type LoginOutput struct {
	User        UserDTO `json:"user"`
	AccessToken string  `json:"access_token"`
	ExpiresIn   int     `json:"expires_in"`
}

type AuthUsecase struct {
	users     repo.UserRepository
	verifier  PasswordVerifier
	issuer    AccessTokenIssuer
	validator LoginValidator
	clock     Clock
	logger    *zap.Logger
}

func NewAuthUsecase(
	users repo.UserRepository,
	verifier PasswordVerifier,
	issuer AccessTokenIssuer,
	validator LoginValidator,
	clock Clock,
	logger *zap.Logger,
) *AuthUsecase {
	return &AuthUsecase{
		users:     users,
		verifier:  verifier,
		issuer:    issuer,
		validator: validator,
		clock:     clock,
		logger:    logger,
	}
}

// 管理画面用のログイン。メール違いとパスワード違いは同じ応答にする
func (u *AuthUsecase) Login(ctx context.Context, email, password string) (LoginOutput, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if err := u.validator.ValidateLogin(ctx, email, password); err != nil {
		return LoginOutput{}, NewHTTPError(http.StatusBadRequest, err.Error())
	}

	//ユーザー取得
	user, err := u.users.FindByEmail(ctx, email)
	if errors.Is(err, repo.ErrUserNotFound) {
		return LoginOutput{}, NewHTTPError(http.StatusUnauthorized, "invalid credentials")
	}
	if err != nil {
		return LoginOutput{}, NewHTTPError(http.StatusInternalServerError, "db error")
	}

	//パスワード照合（bcrypt）
	if !u.verifier.Verify(password, user.PasswordHash) {
		return LoginOutput{}, NewHTTPError(http.StatusUnauthorized, "invalid credentials")
	}

	//停止ユーザーはログイン不可
	if !user.IsActive {
		return LoginOutput{}, NewHTTPError(http.StatusForbidden, "user is inactive")
	}

	now := u.clock.Now()
	token, exp, err := u.issuer.Issue(user.ID, user.Role, user.TokenVersion, now)
	if err != nil {
		u.logger.Error("issue access token", zap.Int64("user_id", user.ID), zap.Error(err))
		return LoginOutput{}, NewHTTPError(http.StatusInternalServerError, "internal error")
	}

	//last_login更新
	user.LastLoginAt = &now
	if err := u.users.Update(ctx, user); err != nil {
		u.logger.Warn("update last login", zap.Int64("user_id", user.ID), zap.Error(err))
	}

	return LoginOutput{
		User:        UserDTO{ID: user.ID, Email: user.Email, Role: string(user.Role)},
		AccessToken: token,
		ExpiresIn:   int(exp.Sub(now).Seconds()),
	}, nil
}
