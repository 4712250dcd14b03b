package keys

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDefaultPrefix(t *testing.T) {
	b := New("")
	assert.Equal(t, "rrb:q:test", b.Queue("test"))
	assert.Equal(t, "rrb:n:test", b.Notification("test"))
	assert.Equal(t, "rrb:r:req-1", b.Response("req-1"))
	assert.Equal(t, "rrb:c:chan", b.Channel("chan"))
}

func TestCustomPrefix(t *testing.T) {
	b := New("myapp:")
	assert.Equal(t, "myapp:q:test", b.Queue("test"))
}

func TestPrefixSnapshotAtConstruction(t *testing.T) {
	b := New("first:")
	// A later "default change" (a fresh Builder for a different prefix)
	// must never affect b — it captured its prefix at New().
	_ = New("second:")
	assert.Equal(t, "first:q:test", b.Queue("test"))
}
