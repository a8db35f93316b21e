package validator

import (
	"context"
	"errors"
	"strings"
	"testing"

	"shrimpshop/internal/usecase"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fieldOf(t *testing.T, err error) string {
	t.Helper()
	var fe *FieldError
	require.True(t, errors.As(err, &fe), "want FieldError, got %v", err)
	return fe.Field
}

func TestCheckoutValidator(t *testing.T) {
	v := NewCheckoutValidator()
	ctx := context.Background()
	ok := usecase.PlaceOrderInput{Email: "ann@example.co.uk", Phone: "+44 1823 000000", AgreeToTerms: true}

	assert.NoError(t, v.ValidateCheckout(ctx, ok))

	noPhone := ok
	noPhone.Phone = ""
	assert.NoError(t, v.ValidateCheckout(ctx, noPhone))

	bad := ok
	bad.Email = "not-an-email"
	assert.Equal(t, "email", fieldOf(t, v.ValidateCheckout(ctx, bad)))

	bad = ok
	bad.Email = ""
	assert.Equal(t, "email", fieldOf(t, v.ValidateCheckout(ctx, bad)))

	bad = ok
	bad.Phone = strings.Repeat("1", 21)
	assert.Equal(t, "phone", fieldOf(t, v.ValidateCheckout(ctx, bad)))

	bad = ok
	bad.Phone = "call me"
	assert.Equal(t, "phone", fieldOf(t, v.ValidateCheckout(ctx, bad)))

	bad = ok
	bad.AgreeToTerms = false
	assert.Equal(t, "agree_to_terms", fieldOf(t, v.ValidateCheckout(ctx, bad)))
}

func TestAuthValidator_ValidateLogin(t *testing.T) {
	v := NewAuthValidator()
	ctx := context.Background()

	assert.NoError(t, v.ValidateLogin(ctx, "admin@example.com", "pw"))
	assert.Equal(t, "email", fieldOf(t, v.ValidateLogin(ctx, "", "pw")))
	assert.Equal(t, "password", fieldOf(t, v.ValidateLogin(ctx, "admin@example.com", "")))
	assert.Equal(t, "email", fieldOf(t, v.ValidateLogin(ctx, "admin@", "pw")))
}
