package power_test

import (
	"context"
	"testing"
	"time"

	"github.com/cyphereco/openturnkey/internal/core/domain"
	"github.com/cyphereco/openturnkey/internal/infrastructure/power"
	"github.com/stretchr/testify/require"
)

func TestManager(t *testing.T) {
	t.Parallel()

	m := power.NewManager()
	state, _ := m.Status()
	require.Equal(t, power.On, state)

	m.Reboot()
	state, _ = m.Status()
	require.Equal(t, power.Rebooting, state)

	m.PowerOn()
	m.Wake()
	m.Shutdown(domain.ErrCodeAuthFailed)
	state, code := m.Status()
	require.Equal(t, power.Off, state)
	require.Equal(t, domain.ErrCodeAuthFailed, code)

	shutdowns, reboots := m.Counters()
	require.Equal(t, 1, shutdowns)
	require.Equal(t, 1, reboots)

	// The wake request preceding the shutdown has been dropped.
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	require.ErrorIs(t, m.WaitWake(ctx), context.DeadlineExceeded)

	m.Wake()
	m.Wake()
	require.NoError(t, m.WaitWake(context.Background()))
}
