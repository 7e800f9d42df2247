package poolerrors

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/connpool/pkg/connector/core"
)

func TestWrap(t *testing.T) {
	t.Run("nil passes through", func(t *testing.T) {
		assert.Nil(t, Wrap(nil, ErrorTypeInternal, "x"))
	})

	t.Run("preserves pool and stack of inner error", func(t *testing.T) {
		id := core.NewPoolIdentity("orders")
		inner := New(ErrorTypeNotBound, "missing").WithPool(id)
		outer := Wrap(inner, ErrorTypeTestConnectionFailed, "ping")

		assert.Equal(t, id, outer.Pool)
		assert.Equal(t, inner.Stack, outer.Stack)
		assert.True(t, errors.Is(outer, inner))
	})

	t.Run("captures stack for foreign errors", func(t *testing.T) {
		err := Wrap(errors.New("boom"), ErrorTypePool, "kill")
		require.NotEmpty(t, err.Stack)
	})
}

func TestIsType(t *testing.T) {
	inner := New(ErrorTypeNotBound, "missing")
	outer := Wrap(inner, ErrorTypeTestConnectionFailed, "ping")

	tests := []struct {
		name    string
		err     error
		errType ErrorType
		want    bool
	}{
		{"outer type", outer, ErrorTypeTestConnectionFailed, true},
		{"inner type", outer, ErrorTypeNotBound, true},
		{"absent type", outer, ErrorTypeInternal, false},
		{"plain error", errors.New("x"), ErrorTypeInternal, false},
		{"nil", nil, ErrorTypeInternal, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsType(tt.err, tt.errType))
		})
	}
}

func TestPoolOf(t *testing.T) {
	_, ok := PoolOf(New(ErrorTypeInternal, "x"))
	assert.False(t, ok)

	id := core.PoolIdentity{Name: "p", Application: "app"}
	got, ok := PoolOf(New(ErrorTypeInternal, "x").WithPool(id))
	require.True(t, ok)
	assert.Equal(t, id, got)

	typ, ok := TypeOf(Wrap(errors.New("x"), ErrorTypeConfig, "bad"))
	require.True(t, ok)
	assert.Equal(t, ErrorTypeConfig, typ)
}
