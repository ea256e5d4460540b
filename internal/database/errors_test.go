package database

import (
	"database/sql"
	"errors"
	"fmt"
	"testing"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
)

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorClass
	}{
		{"nil", nil, ErrorClassPermanent},
		{"serialization", &pq.Error{Code: "40001"}, ErrorClassSerialization},
		{"deadlock", &pq.Error{Code: "40P01"}, ErrorClassDeadlock},
		{"lock not available", &pq.Error{Code: "55P03"}, ErrorClassTransient},
		{"unique violation", &pq.Error{Code: "23505"}, ErrorClassPermanent},
		{"lock timeout", fmt.Errorf("lock products: %w", ErrLockTimeout), ErrorClassTransient},
		{"wrapped optimistic", fmt.Errorf("save cart: %w", ErrOptimisticLockFailed), ErrorClassOptimisticConflict},
		{"no rows", sql.ErrNoRows, ErrorClassPermanent},
		{"plain", errors.New("boom"), ErrorClassPermanent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ClassifyError(tt.err))
		})
	}
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(fmt.Errorf("wrap: %w", &pq.Error{Code: "40P01"})))
	assert.True(t, IsRetryable(ErrOptimisticLockFailed))
	assert.True(t, IsRetryable(ErrLockTimeout))
	assert.False(t, IsRetryable(ErrInsufficientStock))
}

func TestIsLockNotAvailable(t *testing.T) {
	assert.True(t, IsLockNotAvailable(fmt.Errorf("lock: %w", &pq.Error{Code: "55P03"})))
	assert.False(t, IsLockNotAvailable(&pq.Error{Code: "40P01"}))
	assert.False(t, IsLockNotAvailable(errors.New("x")))
}

func TestIsUniqueViolation(t *testing.T) {
	err := fmt.Errorf("insert: %w", &pq.Error{Code: "23505", Constraint: "addresses_one_default_idx"})

	assert.True(t, IsUniqueViolation(err, ""))
	assert.True(t, IsUniqueViolation(err, "addresses_one_default_idx"))
	assert.False(t, IsUniqueViolation(err, "carts_one_active_idx"))
	assert.False(t, IsUniqueViolation(errors.New("x"), ""))
}
