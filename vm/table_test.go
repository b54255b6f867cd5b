package vm

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func strObj(s string) *ObjString { return &ObjString{chars: s, hash: fnv1a32(s)} }

func TestTableSetGetRoundTrip(t *testing.T) {
	table := NewTable()
	key := strObj("hello")

	isNew := table.Set(key, VNum(42))
	assert.True(t, isNew, "first Set of a key must report isNew")

	got, ok := table.Get(key)
	assert.True(t, ok)
	assert.Equal(t, VNum(42), got)

	isNew = table.Set(key, VNum(43))
	assert.False(t, isNew, "overwriting an existing key must not report isNew")
	got, _ = table.Get(key)
	assert.Equal(t, VNum(43), got)
}

func TestTableDeleteThenMiss(t *testing.T) {
	table := NewTable()
	key := strObj("gone")
	table.Set(key, VBool(true))

	assert.True(t, table.Delete(key))
	_, ok := table.Get(key)
	assert.False(t, ok)

	// Deleting an already-deleted key reports false, not a crash.
	assert.False(t, table.Delete(key))
}

func TestTableLoadFactorBound(t *testing.T) {
	table := NewTable()
	for i := 0; i < 500; i++ {
		key := strObj(fmt.Sprintf("key-%d", i))
		table.Set(key, VNum(float64(i)))
		if i%7 == 0 {
			table.Delete(key)
		}
		assert.LessOrEqual(t, float64(table.count), float64(len(table.entries))*tableMaxLoad)
	}
}

func TestTableTombstonesDoNotBlockReuse(t *testing.T) {
	table := NewTable()
	a, b := strObj("a"), strObj("b")
	table.Set(a, VNum(1))
	table.Set(b, VNum(2))
	table.Delete(a)

	// b must still be reachable even though a tombstone now sits between
	// its hash slot and wherever it actually probed to.
	got, ok := table.Get(b)
	assert.True(t, ok)
	assert.Equal(t, VNum(2), got)
}

func TestFindStringContentMatch(t *testing.T) {
	table := NewTable()
	s := strObj("shared")
	table.Set(s, VNil{})

	found := table.findString("shared", fnv1a32("shared"))
	assert.Same(t, s, found)

	assert.Nil(t, table.findString("different", fnv1a32("different")))
}

func TestStringInterningIdentity(t *testing.T) {
	vm := NewVM()
	defer vm.FreeVM()

	a := vm.copyString("same content")
	b := vm.copyString("same content")
	assert.Same(t, a, b, "two literals with identical bytes must share one object")

	c := vm.takeString("same content")
	assert.Same(t, a, c, "takeString must also return the canonical object on a hit")
}
