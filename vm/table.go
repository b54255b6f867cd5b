package vm

import "github.com/josharian/intern"

// tableMaxLoad is the load factor ceiling from the reference design: the
// table grows before count would exceed capacity*0.75.
const tableMaxLoad = 0.75

// entry is one slot of the table. The empty/tombstone/occupied states are
// told apart by (key, val) rather than a separate tag byte, exactly as the
// reference does it:
//   - empty:     key == nil, val == VNil{}
//   - tombstone: key == nil, val == VBool(true)
//   - occupied:  key != nil
type entry struct {
	key *ObjString
	val Value
}

func (e entry) isEmpty() bool {
	if e.key != nil {
		return false
	}
	_, nilVal := e.val.(VNil)
	return nilVal
}

func (e entry) isTombstone() bool {
	if e.key != nil {
		return false
	}
	b, ok := e.val.(VBool)
	return ok && bool(b)
}

// Table is an open-addressing, linear-probing hash table keyed by
// *ObjString identity. It backs both the VM's globals and the interning
// table; in the latter role it's also probed by content via findString.
type Table struct {
	count   int
	entries []entry
}

func NewTable() *Table { return &Table{} }

// findEntry locates key's slot (or the first free slot it could occupy),
// returning the first tombstone seen along the probe sequence if the key
// isn't present, so Set can reuse it.
func findEntry(entries []entry, key *ObjString) *entry {
	capacity := len(entries)
	index := int(key.hash) % capacity
	var tombstone *entry
	for {
		e := &entries[index]
		switch {
		case e.isEmpty():
			if tombstone != nil {
				return tombstone
			}
			return e
		case e.isTombstone():
			if tombstone == nil {
				tombstone = e
			}
		case e.key == key:
			return e
		}
		index = (index + 1) % capacity
	}
}

// Get reports the value bound to key, if any.
func (t *Table) Get(key *ObjString) (Value, bool) {
	if t.count == 0 {
		return nil, false
	}
	e := findEntry(t.entries, key)
	if e.key == nil {
		return nil, false
	}
	return e.val, true
}

func (t *Table) adjustCapacity(capacity int) {
	entries := make([]entry, capacity)
	for i := range entries {
		entries[i] = entry{key: nil, val: VNil{}}
	}

	t.count = 0
	for _, e := range t.entries {
		if e.key == nil {
			continue
		}
		dest := findEntry(entries, e.key)
		dest.key = e.key
		dest.val = e.val
		t.count++
	}
	t.entries = entries
}

// Set inserts or overwrites key's binding, growing the table first if the
// load factor would be exceeded. It reports whether key was newly
// introduced (as opposed to an overwrite of an existing binding).
func (t *Table) Set(key *ObjString, val Value) (isNew bool) {
	if float64(t.count+1) > float64(len(t.entries))*tableMaxLoad {
		capacity := growCapacity(len(t.entries))
		t.adjustCapacity(capacity)
	}

	e := findEntry(t.entries, key)
	isNew = e.key == nil
	if isNew && e.isEmpty() {
		t.count++
	}
	e.key = key
	e.val = val
	return isNew
}

// Delete converts key's slot into a tombstone so later probes can keep
// skipping past it. Count is deliberately not decremented: it tracks
// occupied-or-tombstoned slots, which is what bounds the load factor.
func (t *Table) Delete(key *ObjString) bool {
	if t.count == 0 {
		return false
	}
	e := findEntry(t.entries, key)
	if e.key == nil {
		return false
	}
	e.key = nil
	e.val = VBool(true)
	return true
}

// findString is the one place content (rather than identity) is compared:
// used exclusively by the interning table to decide whether a literal or
// computed string already has a canonical object.
func (t *Table) findString(chars string, hash uint32) *ObjString {
	if t.count == 0 {
		return nil
	}
	capacity := len(t.entries)
	index := int(hash) % capacity
	for {
		e := &t.entries[index]
		switch {
		case e.isEmpty():
			return nil
		case e.key != nil && e.key.hash == hash && e.key.chars == chars:
			return e.key
		}
		index = (index + 1) % capacity
	}
}

func growCapacity(capacity int) int {
	if capacity < 8 {
		return 8
	}
	return capacity * 2
}

// copyString returns the canonical *ObjString for chars, allocating and
// interning a new one only on the first occurrence of this content. The VM
// owns the intern table and the returned object's registration in it.
func (vm *VM) copyString(chars string) *ObjString {
	hash := fnv1a32(chars)
	if interned := vm.strings.findString(chars, hash); interned != nil {
		return interned
	}
	return vm.allocateString(intern.String(chars), hash)
}

// takeString is copyString's twin for callers that already produced an
// owned string (e.g. concatenation results) and don't need to allocate a
// second time on an interning hit; in Go there's no buffer to free. Unlike
// copyString, it stores chars as given, without passing it through
// intern.String.
func (vm *VM) takeString(chars string) *ObjString {
	hash := fnv1a32(chars)
	if interned := vm.strings.findString(chars, hash); interned != nil {
		return interned
	}
	return vm.allocateString(chars, hash)
}

func (vm *VM) allocateString(chars string, hash uint32) *ObjString {
	s := &ObjString{chars: chars, hash: hash}
	vm.objects = append(vm.objects, s)
	vm.strings.Set(s, VNil{})
	return s
}
