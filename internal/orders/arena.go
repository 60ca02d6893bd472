package orders

// Ref addresses an order slot in the arena. The generation guards
// against a recycled slot being read through a stale reference.
type Ref struct {
	Index uint32
	Gen   uint32
}

// IsZero reports whether the reference was never assigned.
func (r Ref) IsZero() bool {
	return r.Index == 0 && r.Gen == 0
}

type slot struct {
	gen   uint32
	inUse bool
	order Order
}

// Arena owns all order storage. Components hold a Ref, never a raw
// pointer, so a slot recycled for a new order invalidates every
// outstanding reference to the old one.
type Arena struct {
	slots []slot
	free  []uint32
}

// NewArena creates an arena with the given initial capacity.
func NewArena(capacity int) *Arena {
	if capacity <= 0 {
		capacity = 64
	}
	return &Arena{slots: make([]slot, 0, capacity)}
}

// Alloc reserves a slot and returns the zeroed order it holds.
func (a *Arena) Alloc() (*Order, Ref) {
	var index uint32
	if n := len(a.free); n > 0 {
		index = a.free[n-1]
		a.free = a.free[:n-1]
	} else {
		a.slots = append(a.slots, slot{})
		index = uint32(len(a.slots) - 1)
	}
	s := &a.slots[index]
	s.gen++
	s.inUse = true
	s.order = Order{}
	ref := Ref{Index: index + 1, Gen: s.gen}
	s.order.ref = ref
	return &s.order, ref
}

// Get resolves a reference. Stale or released references fail.
func (a *Arena) Get(ref Ref) (*Order, bool) {
	if ref.Index == 0 || int(ref.Index) > len(a.slots) {
		return nil, false
	}
	s := &a.slots[ref.Index-1]
	if !s.inUse || s.gen != ref.Gen {
		return nil, false
	}
	return &s.order, true
}

// Release returns a slot to the free list. Releasing a stale
// reference is a no-op.
func (a *Arena) Release(ref Ref) bool {
	if ref.Index == 0 || int(ref.Index) > len(a.slots) {
		return false
	}
	s := &a.slots[ref.Index-1]
	if !s.inUse || s.gen != ref.Gen {
		return false
	}
	s.inUse = false
	a.free = append(a.free, ref.Index-1)
	return true
}

// Live returns the number of slots currently in use.
func (a *Arena) Live() int {
	return len(a.slots) - len(a.free)
}
