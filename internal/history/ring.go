// Package history keeps a bounded price history per symbol.
// Nothing here is safe for concurrent use; the engine loop owns it.
package history

import "time"

// DefaultCapacity is the number of samples kept per symbol.
const DefaultCapacity = 200

// Sample is one successful refresh of a symbol.
type Sample struct {
	Price  float64
	Volume float64
	At     time.Time
}

// Ring is a fixed-size circular buffer. It never resizes.
type Ring struct {
	data     []Sample
	capacity int
	index    int // next write position
	size     int
}

// NewRing creates a buffer with fixed capacity.
func NewRing(capacity int) *Ring {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Ring{
		data:     make([]Sample, capacity),
		capacity: capacity,
	}
}

// Append adds a sample, overwriting the oldest once full.
func (r *Ring) Append(s Sample) {
	r.data[r.index] = s
	r.index = (r.index + 1) % r.capacity
	if r.size < r.capacity {
		r.size++
	}
}

// Latest returns up to n newest samples, oldest first.
func (r *Ring) Latest(n int) []Sample {
	if r.size == 0 || n <= 0 {
		return nil
	}
	if n > r.size {
		n = r.size
	}

	out := make([]Sample, n)
	start := (r.index - n + r.capacity) % r.capacity
	for i := 0; i < n; i++ {
		out[i] = r.data[(start+i)%r.capacity]
	}
	return out
}

// All returns every sample, oldest first.
func (r *Ring) All() []Sample {
	return r.Latest(r.size)
}

func (r *Ring) Size() int     { return r.size }
func (r *Ring) Capacity() int { return r.capacity }
func (r *Ring) IsFull() bool  { return r.size == r.capacity }

// Book holds one ring per symbol, created on first append.
type Book struct {
	capacity int
	rings    map[string]*Ring
}

func NewBook(capacity int) *Book {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Book{capacity: capacity, rings: make(map[string]*Ring)}
}

func (b *Book) Append(symbol string, s Sample) {
	r, ok := b.rings[symbol]
	if !ok {
		r = NewRing(b.capacity)
		b.rings[symbol] = r
	}
	r.Append(s)
}

// Latest returns up to n newest samples of symbol, oldest first.
func (b *Book) Latest(symbol string, n int) []Sample {
	r, ok := b.rings[symbol]
	if !ok {
		return nil
	}
	return r.Latest(n)
}

func (b *Book) Size(symbol string) int {
	if r, ok := b.rings[symbol]; ok {
		return r.Size()
	}
	return 0
}

func (b *Book) Capacity() int { return b.capacity }
