package product

import (
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
)

func TestScanErr(t *testing.T) {
	assert.ErrorIs(t, scanErr(pgx.ErrNoRows), ErrNotFound, "an absent row is a not-found")

	driverErr := errors.New("connection reset by peer")
	got := scanErr(driverErr)
	assert.ErrorIs(t, got, driverErr, "driver failures must propagate unchanged")
	assert.NotErrorIs(t, got, ErrNotFound)

	assert.NoError(t, scanErr(nil))
}

func TestAvailable(t *testing.T) {
	p := &Product{Active: true, TrackStock: true, Stock: 3}
	assert.True(t, p.Available(3))
	assert.False(t, p.Available(4))

	p.TrackStock = false
	assert.True(t, p.Available(100), "untracked stock never limits")

	p.Active = false
	assert.False(t, p.Available(1), "inactive products are never available")
}
