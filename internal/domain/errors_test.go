package domain

import (
	"errors"
	"fmt"
	"testing"
)

func TestIsNotFound(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "cart not found", err: ErrCartNotFound, want: true},
		{name: "item not found", err: ErrItemNotFound, want: true},
		{name: "wrapped cart not found", err: fmt.Errorf("get cart: %w", ErrCartNotFound), want: true},
		{name: "invalid input", err: ErrItemQtyInvalid, want: false},
		{name: "nil error", err: nil, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsNotFound(tt.err); got != tt.want {
				t.Errorf("IsNotFound() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestIsInvalidInput(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "negative price", err: ErrItemPriceNegative, want: true},
		{name: "negative quantity", err: ErrQuantityNegative, want: true},
		{name: "unknown category", err: ErrUnknownCategory, want: true},
		{name: "unknown tier", err: ErrUnknownLoyaltyTier, want: true},
		{name: "wrapped item error", err: fmt.Errorf("items[2]: %w", ErrItemNameRequired), want: true},
		{name: "joined errors", err: errors.Join(ErrItemQtyInvalid, errors.New("extra")), want: true},
		{name: "not found", err: ErrCartNotFound, want: false},
		{name: "nil error", err: nil, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsInvalidInput(tt.err); got != tt.want {
				t.Errorf("IsInvalidInput() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestIsIdempotencyConflict(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "idempotency already exists", err: ErrIdempotencyKeyAlreadyExists, want: true},
		{name: "idempotency hash mismatch", err: ErrIdempotencyHashMismatch, want: true},
		{name: "in progress", err: ErrIdempotencyInProgress, want: true},
		{name: "wrapped idempotency conflict", err: errors.Join(ErrIdempotencyHashMismatch, errors.New("extra context")), want: true},
		{name: "non idempotency error", err: ErrCartNotFound, want: false},
		{name: "nil error", err: nil, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsIdempotencyConflict(tt.err); got != tt.want {
				t.Errorf("IsIdempotencyConflict() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestIsConflict(t *testing.T) {
	if !IsConflict(ErrCartAlreadyExists) {
		t.Error("ErrCartAlreadyExists must be a conflict")
	}
	if !IsConflict(ErrIdempotencyInProgress) {
		t.Error("idempotency conflicts must be conflicts")
	}
	if IsConflict(ErrItemNotFound) {
		t.Error("not found must not be a conflict")
	}
}
