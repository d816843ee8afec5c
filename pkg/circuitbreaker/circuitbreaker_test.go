package circuitbreaker

import (
	"errors"
	"testing"
	"time"

	"github.com/fjod/storefront/pkg/logger"
	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errBackend = errors.New("backend down")

func TestExecute_TripsAfterThreshold(t *testing.T) {
	cfg := DefaultConfig("test")
	cfg.FailureThreshold = 2
	cfg.Timeout = time.Hour
	b := New(cfg, logger.Nop())

	for range 2 {
		_, err := Execute(b, func() (int, error) { return 0, errBackend })
		require.ErrorIs(t, err, errBackend)
	}

	assert.Equal(t, gobreaker.StateOpen, b.State())
	_, err := Execute(b, func() (int, error) { return 1, nil })
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
}

func TestExecute_ExpectedErrorsDoNotTrip(t *testing.T) {
	errMissing := errors.New("missing")
	cfg := DefaultConfig("test")
	cfg.FailureThreshold = 1
	cfg.IsSuccessful = func(err error) bool { return err == nil || errors.Is(err, errMissing) }
	b := New(cfg, logger.Nop())

	_, err := Execute(b, func() (string, error) { return "", errMissing })
	require.ErrorIs(t, err, errMissing)
	assert.Equal(t, gobreaker.StateClosed, b.State())

	v, err := Execute(b, func() (string, error) { return "ok", nil })
	require.NoError(t, err)
	assert.Equal(t, "ok", v)
}

func TestExecute_NilResult(t *testing.T) {
	b := New(DefaultConfig("test"), logger.Nop())
	v, err := Execute(b, func() (*int, error) { return nil, nil })
	require.NoError(t, err)
	assert.Nil(t, v)
}
