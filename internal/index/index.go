// Package index provides the hash bucket index used by the fact store and by
// join and negation node memories.
//
// An Index maps a key to a set of members. Every operation is amortized O(1)
// and buckets keep a deterministic member order for a given sequence of
// operations, so propagation traces are reproducible.
package index

// Bucket is a set with O(1) add, remove and membership.
// Removal swaps the last member into the vacated slot.
type Bucket[V comparable] struct {
	pos   map[V]int
	items []V
}

// NewBucket returns an empty bucket.
func NewBucket[V comparable]() *Bucket[V] {
	return &Bucket[V]{pos: make(map[V]int)}
}

// Add inserts v and reports whether it was absent.
func (b *Bucket[V]) Add(v V) bool {
	if _, ok := b.pos[v]; ok {
		return false
	}
	b.pos[v] = len(b.items)
	b.items = append(b.items, v)
	return true
}

// Remove deletes v and reports whether it was present.
func (b *Bucket[V]) Remove(v V) bool {
	i, ok := b.pos[v]
	if !ok {
		return false
	}
	last := len(b.items) - 1
	if i != last {
		moved := b.items[last]
		b.items[i] = moved
		b.pos[moved] = i
	}
	var zero V
	b.items[last] = zero
	b.items = b.items[:last]
	delete(b.pos, v)
	return true
}

// Contains reports membership.
func (b *Bucket[V]) Contains(v V) bool {
	_, ok := b.pos[v]
	return ok
}

// Len returns the number of members.
func (b *Bucket[V]) Len() int {
	if b == nil {
		return 0
	}
	return len(b.items)
}

// Items returns the members. The slice is owned by the bucket and is only
// valid until the next mutation.
func (b *Bucket[V]) Items() []V {
	if b == nil {
		return nil
	}
	return b.items
}

// Index maps keys to buckets of members.
type Index[K comparable, V comparable] struct {
	buckets map[K]*Bucket[V]
	size    int
}

// New returns an empty index.
func New[K comparable, V comparable]() *Index[K, V] {
	return &Index[K, V]{buckets: make(map[K]*Bucket[V])}
}

// Add files v under k and reports whether it was absent.
func (ix *Index[K, V]) Add(k K, v V) bool {
	b, ok := ix.buckets[k]
	if !ok {
		b = NewBucket[V]()
		ix.buckets[k] = b
	}
	if !b.Add(v) {
		return false
	}
	ix.size++
	return true
}

// Remove deletes v from k's bucket, dropping the bucket when it empties.
func (ix *Index[K, V]) Remove(k K, v V) bool {
	b, ok := ix.buckets[k]
	if !ok || !b.Remove(v) {
		return false
	}
	ix.size--
	if b.Len() == 0 {
		delete(ix.buckets, k)
	}
	return true
}

// Lookup returns the members filed under k. The slice must not be modified
// and is only valid until the next mutation of the index.
func (ix *Index[K, V]) Lookup(k K) []V {
	return ix.buckets[k].Items()
}

// Count returns the number of members filed under k.
func (ix *Index[K, V]) Count(k K) int {
	return ix.buckets[k].Len()
}

// Contains reports whether v is filed under k.
func (ix *Index[K, V]) Contains(k K, v V) bool {
	b, ok := ix.buckets[k]
	return ok && b.Contains(v)
}

// Keys returns the number of non-empty buckets.
func (ix *Index[K, V]) Keys() int { return len(ix.buckets) }

// Size returns the total number of members across all buckets.
func (ix *Index[K, V]) Size() int { return ix.size }
