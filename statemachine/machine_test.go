package statemachine_test

import (
	"errors"
	"testing"

	"github.com/jrsteele09/go-auth-session/statemachine"
	"github.com/stretchr/testify/require"
)

type light string
type signal string

const (
	red    light = "red"
	green  light = "green"
	yellow light = "yellow"
	off    light = "off"

	next  signal = "next"
	power signal = "power"
)

func newLight() *statemachine.Machine[light, signal] {
	return statemachine.New(red,
		statemachine.Rule[light, signal]{Event: next, From: []light{red}, To: green},
		statemachine.Rule[light, signal]{Event: next, From: []light{green}, To: yellow},
		statemachine.Rule[light, signal]{Event: next, From: []light{yellow}, To: red},
		statemachine.Rule[light, signal]{Event: power, To: off},
		statemachine.Rule[light, signal]{Event: power, From: []light{off}, To: red},
	)
}

func TestDispatchFollowsTable(t *testing.T) {
	m := newLight()
	require.Equal(t, red, m.State())

	for _, want := range []light{green, yellow, red} {
		got, err := m.Dispatch(next)
		require.NoError(t, err)
		require.Equal(t, want, got)
	}
}

func TestWildcardAndPrecedence(t *testing.T) {
	m := newLight()
	_, err := m.Dispatch(power)
	require.NoError(t, err)
	require.Equal(t, off, m.State())

	// specific rule for off wins over the wildcard
	_, err = m.Dispatch(power)
	require.NoError(t, err)
	require.Equal(t, red, m.State())
}

func TestInvalidTransition(t *testing.T) {
	m := newLight()
	_, _ = m.Dispatch(power)
	require.False(t, m.Can(next))

	state, err := m.Dispatch(next)
	require.Equal(t, off, state)
	var invalid *statemachine.InvalidTransitionError[light, signal]
	require.True(t, errors.As(err, &invalid))
	require.Equal(t, next, invalid.Event)
}

func TestSubscribeOnlyOnChange(t *testing.T) {
	m := newLight()
	var seen []light
	unsubscribe := m.Subscribe(func(from light, event signal, to light) {
		seen = append(seen, to)
	})

	_, _ = m.Dispatch(power)
	_, _ = m.Dispatch(power) // off -> red
	unsubscribe()
	_, _ = m.Dispatch(next)

	require.Equal(t, []light{off, red}, seen)
}

func TestListenerMayDispatch(t *testing.T) {
	m := newLight()
	m.Subscribe(func(from light, event signal, to light) {
		if to == green {
			_, _ = m.Dispatch(next)
		}
	})
	_, err := m.Dispatch(next)
	require.NoError(t, err)
	require.Equal(t, yellow, m.State())
}
