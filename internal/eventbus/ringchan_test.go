package eventbus

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRingChannel_ForceSendDropsOldest(t *testing.T) {
	rc := NewRingChannel[int](3)

	for i := 0; i < 10; i++ {
		rc.ForceSend(i)
	}
	rc.Close()

	var got []int
	for v := range rc.C() {
		got = append(got, v)
	}

	assert.Equal(t, []int{7, 8, 9}, got)
	m := rc.GetMetrics()
	assert.Equal(t, int64(10), m.Written)
	assert.Equal(t, int64(7), m.Overwritten)
}

func TestRingChannel_InvalidCapacity(t *testing.T) {
	assert.Panics(t, func() { NewRingChannel[int](0) })
}
