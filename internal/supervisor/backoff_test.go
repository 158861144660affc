package supervisor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestExponentialDelay(t *testing.T) {
	d := newExponentialDelay(10*time.Millisecond, 50*time.Millisecond, 2)

	var got []time.Duration
	for i := 0; i < 5; i++ {
		got = append(got, d.Next())
	}
	assert.Equal(t, []time.Duration{
		10 * time.Millisecond,
		20 * time.Millisecond,
		40 * time.Millisecond,
		50 * time.Millisecond,
		50 * time.Millisecond,
	}, got)

	d.Reset()
	assert.Equal(t, 10*time.Millisecond, d.Next())
}

func TestExponentialDelay_Defaults(t *testing.T) {
	d := newExponentialDelay(-time.Second, 0, 0)
	assert.Equal(t, time.Duration(0), d.Next())
	assert.Equal(t, time.Duration(0), d.Next())
	assert.Equal(t, 30*time.Second, d.max)
	assert.Equal(t, float64(defaultFactor), d.factor)
}
