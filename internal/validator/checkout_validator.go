package validator

import (
	"context"
	"strings"
	"unicode/utf8"

	"shrimpshop/internal/usecase"
)

const maxPhoneLength = 20

var phoneAllowed = func(r rune) bool {
	return (r >= '0' && r <= '9') || strings.ContainsRune("+-() ", r)
}

type checkoutValidator struct{}

func NewCheckoutValidator() usecase.CheckoutValidator {
	return &checkoutValidator{}
}

func (v *checkoutValidator) ValidateCheckout(ctx context.Context, in usecase.PlaceOrderInput) error {
	email := strings.TrimSpace(in.Email)
	if email == "" {
		return fieldError("email", "is required")
	}
	if !isEmailLike(email) {
		return fieldError("email", "is not a valid email address")
	}

	// 電話番号は任意
	phone := strings.TrimSpace(in.Phone)
	if utf8.RuneCountInString(phone) > maxPhoneLength {
		return fieldError("phone", "must be at most 20 characters")
	}
	for _, r := range phone {
		if !phoneAllowed(r) {
			return fieldError("phone", "contains invalid characters")
		}
	}

	if !in.AgreeToTerms {
		return fieldError("agree_to_terms", "you must agree to the terms and conditions")
	}
	return nil
}
