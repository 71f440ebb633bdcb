package libgpu

// Cached holds a value derived from a versioned source together with the
// source version it was built from. The value is rebuilt lazily by Get
// once the source version moves on.
type Cached[T any] struct {
	value   T
	version uint64
	held    bool
	stale   bool
	release func(T)
}

// NewCached returns an empty cache. release is called on a value before it
// is replaced and may be nil.
func NewCached[T any](release func(T)) *Cached[T] {
	return &Cached[T]{release: release}
}

// Get returns the cached value if it was built from version, otherwise it
// releases the old value and stores the result of rebuild. When rebuild
// fails the cache is left empty.
func (c *Cached[T]) Get(version uint64, rebuild func() (T, error)) (T, error) {
	if !c.Outdated(version) {
		return c.value, nil
	}
	c.drop()
	v, err := rebuild()
	if err != nil {
		var zero T
		return zero, err
	}
	c.value = v
	c.version = version
	c.held = true
	c.stale = false
	return v, nil
}

// Outdated reports whether the next Get with version would rebuild.
func (c *Cached[T]) Outdated(version uint64) bool {
	return !c.held || c.stale || c.version != version
}

// Peek returns the held value without checking its version.
func (c *Cached[T]) Peek() (T, bool) {
	return c.value, c.held
}

// Version returns the source version of the held value.
func (c *Cached[T]) Version() uint64 {
	return c.version
}

// Invalidate forces the next Get to rebuild regardless of version.
func (c *Cached[T]) Invalidate() {
	c.stale = true
}

// Release drops the held value.
func (c *Cached[T]) Release() {
	c.drop()
	c.stale = false
}

func (c *Cached[T]) drop() {
	if c.held && c.release != nil {
		c.release(c.value)
	}
	var zero T
	c.value = zero
	c.held = false
	c.version = 0
}
