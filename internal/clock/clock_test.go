package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRealClock_Now(t *testing.T) {
	c := RealClock{}

	before := time.Now()
	got := c.Now()
	after := time.Now()

	assert.False(t, got.Before(before))
	assert.False(t, got.After(after))
}

func TestFixed_Now(t *testing.T) {
	fixed := time.Date(2024, 6, 15, 10, 30, 0, 0, time.UTC)
	assert.Equal(t, fixed, Fixed(fixed).Now())
}

func TestOrReal(t *testing.T) {
	assert.IsType(t, RealClock{}, OrReal(nil))
	fixed := Fixed(time.Unix(1, 0))
	assert.Equal(t, fixed, OrReal(fixed))
}
