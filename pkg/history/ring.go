package history

// Ring is a fixed-capacity FIFO buffer. Push is O(1) and evicts the oldest
// element once the buffer is full. Ring is not safe for concurrent use.
type Ring[T any] struct {
	buf  []T
	head int // index of the oldest element
	size int
}

// NewRing creates a ring holding at most capacity elements (minimum 1).
func NewRing[T any](capacity int) *Ring[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &Ring[T]{buf: make([]T, capacity)}
}

// Push appends v, evicting the oldest element when full.
func (r *Ring[T]) Push(v T) {
	if r.size < len(r.buf) {
		r.buf[(r.head+r.size)%len(r.buf)] = v
		r.size++
		return
	}
	r.buf[r.head] = v
	r.head = (r.head + 1) % len(r.buf)
}

// Len returns the number of stored elements.
func (r *Ring[T]) Len() int { return r.size }

// Cap returns the capacity.
func (r *Ring[T]) Cap() int { return len(r.buf) }

// Snapshot returns a copy of the contents, oldest first. It never returns nil.
func (r *Ring[T]) Snapshot() []T {
	out := make([]T, r.size)
	for i := 0; i < r.size; i++ {
		out[i] = r.buf[(r.head+i)%len(r.buf)]
	}
	return out
}
