package circuitbreaker_test

import (
	"fmt"
	"testing"

	"github.com/cyphereco/openturnkey/pkg/circuitbreaker"
	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/require"
)

func TestCircuitBreaker(t *testing.T) {
	t.Parallel()

	cb := circuitbreaker.NewCircuitBreaker("test", 3)
	failing := func() (interface{}, error) { return nil, fmt.Errorf("failed") }

	for i := 0; i < 3; i++ {
		_, err := cb.Execute(failing)
		require.EqualError(t, err, "failed")
	}
	require.Equal(t, gobreaker.StateOpen, cb.State())

	_, err := cb.Execute(func() (interface{}, error) { return nil, nil })
	require.ErrorIs(t, err, gobreaker.ErrOpenState)
}

func TestCircuitBreakerResetsOnSuccess(t *testing.T) {
	t.Parallel()

	cb := circuitbreaker.NewCircuitBreaker("test", 0)
	for i := 0; i < 10; i++ {
		_, err := cb.Execute(func() (interface{}, error) {
			if i%2 == 0 {
				return nil, fmt.Errorf("failed")
			}
			return nil, nil
		})
		if i%2 != 0 {
			require.NoError(t, err)
		}
	}
	require.Equal(t, gobreaker.StateClosed, cb.State())
}
