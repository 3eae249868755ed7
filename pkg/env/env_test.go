package env

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestReaders(t *testing.T) {
	t.Setenv("T_STR", "  value ")
	t.Setenv("T_INT", "42")
	t.Setenv("T_BADINT", "x")
	t.Setenv("T_FLOAT", "0,5")
	t.Setenv("T_BOOL", "true")
	t.Setenv("T_DUR", "3s")
	t.Setenv("T_DURMS", "250")
	t.Setenv("T_LIST", "a, b,,c ")

	assert.Equal(t, "value", String("T_STR", "d"))
	assert.Equal(t, "d", String("T_MISSING", "d"))
	assert.Equal(t, 42, Int("T_INT", 1))
	assert.Equal(t, 1, Int("T_BADINT", 1))
	assert.Equal(t, 0.5, Float("T_FLOAT", 1))
	assert.True(t, Bool("T_BOOL", false))
	assert.Equal(t, 3*time.Second, Duration("T_DUR", time.Second))
	assert.Equal(t, 250*time.Millisecond, Duration("T_DURMS", time.Second))
	assert.Equal(t, []string{"a", "b", "c"}, List("T_LIST", nil))
	assert.Equal(t, []string{"x"}, List("T_MISSING", []string{"x"}))
}
