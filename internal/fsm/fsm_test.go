package fsm_test

import (
	"errors"
	"testing"

	"github.com/chim331u/mediabutler/internal/fsm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type state string
type event string

const (
	sOpen   state = "OPEN"
	sClosed state = "CLOSED"

	eClose event = "CLOSE"
	eOpen  event = "OPEN"
)

func door() *fsm.Machine[state, event] {
	return fsm.New(sOpen, []fsm.Transition[state, event]{
		{From: sOpen, Event: eClose, To: sClosed},
		{From: sClosed, Event: eOpen, To: sOpen},
	})
}

func TestFireValidTransition(t *testing.T) {
	d := door()
	s, err := d.Fire(eClose, nil)
	require.NoError(t, err)
	assert.Equal(t, sClosed, s)
	assert.Equal(t, sClosed, d.State())
}

func TestFireInvalidTransition(t *testing.T) {
	d := door()
	_, err := d.Fire(eOpen, nil)
	require.Error(t, err)
	var e *fsm.ErrNoTransition[state, event]
	require.ErrorAs(t, err, &e)
	assert.Equal(t, sOpen, d.State())
}

func TestFireActionErrorAbortsTransition(t *testing.T) {
	d := door()
	boom := errors.New("boom")
	_, err := d.Fire(eClose, func(from, to state) error { return boom })
	require.ErrorIs(t, err, boom)
	assert.Equal(t, sOpen, d.State(), "state must not change when action fails")
}

func TestCanFire(t *testing.T) {
	d := door()
	assert.True(t, d.CanFire(eClose))
	assert.False(t, d.CanFire(eOpen))
}
