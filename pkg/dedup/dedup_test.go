package dedup

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestShouldProcess_WithinTTL(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	d := New(time.Minute, 10)
	d.now = func() time.Time { return now }

	assert.True(t, d.ShouldProcess("a"))
	assert.False(t, d.ShouldProcess("a"))
	assert.True(t, d.ShouldProcess(""))
	assert.True(t, d.ShouldProcess(""))

	now = now.Add(2 * time.Minute)
	assert.True(t, d.ShouldProcess("a"))
}

func TestShouldProcessMessage(t *testing.T) {
	d := New(time.Minute, 10)
	payload := []byte(`{"sand":40,"silt":40,"clay":20}`)

	assert.True(t, d.ShouldProcessMessage("soil/sample/north/p1", payload))
	assert.False(t, d.ShouldProcessMessage("soil/sample/north/p1", payload), "redelivery")
	assert.True(t, d.ShouldProcessMessage("soil/sample/north/p2", payload), "same reading, other topic")
	assert.True(t, d.ShouldProcessMessage("soil/sample/north/p1", []byte(`{"sand":41}`)))

	// the separator keeps topic and payload from running together
	assert.True(t, d.ShouldProcessMessage("a", []byte("b")))
	assert.True(t, d.ShouldProcessMessage("ab", nil))
}

func TestShouldProcess_Capped(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	d := New(time.Hour, 3)
	d.now = func() time.Time {
		now = now.Add(time.Second)
		return now
	}
	for i := 0; i < 10; i++ {
		assert.True(t, d.ShouldProcess(fmt.Sprintf("id-%d", i)))
	}
	assert.LessOrEqual(t, d.Len(), 3)
	// most recent ids survive eviction
	assert.False(t, d.ShouldProcess("id-9"))
	assert.False(t, d.ShouldProcess("id-7"))
	assert.True(t, d.ShouldProcess("id-6"))
}

func TestShouldProcess_ReinsertAfterExpiry(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	d := New(time.Minute, 2)
	d.now = func() time.Time { return now }

	assert.True(t, d.ShouldProcess("a"))
	now = now.Add(2 * time.Minute)
	assert.True(t, d.ShouldProcess("a"), "expired entries are admitted again")
	assert.Equal(t, 1, d.Len())
	assert.Equal(t, 1, d.order.Len(), "the superseded entry is dropped")

	now = now.Add(time.Second)
	assert.True(t, d.ShouldProcess("b"))
	now = now.Add(time.Second)
	assert.True(t, d.ShouldProcess("c"))

	// over max: "a" was inserted first and goes first
	assert.Equal(t, 2, d.Len())
	assert.True(t, d.ShouldProcess("a"))
	assert.False(t, d.ShouldProcess("c"))
}

func TestShouldProcess_ExpiredSweptWithoutPressure(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	d := New(time.Minute, 100)
	d.now = func() time.Time { return now }

	for i := 0; i < 50; i++ {
		d.ShouldProcess(fmt.Sprintf("id-%d", i))
	}
	now = now.Add(2 * time.Minute)
	assert.True(t, d.ShouldProcess("fresh"))
	assert.Equal(t, 1, d.Len())
	assert.Equal(t, 1, d.order.Len())
}
