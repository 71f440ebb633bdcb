package libutil

import "golang.org/x/exp/constraints"

// Destroyer is implemented by everything that holds memory outside the
// reach of the garbage collector.
type Destroyer interface {
	Destroy()
}

// Cleanup collects objects to destroy when a multi-step construction fails
// part way through.
type Cleanup []Destroyer

func (c *Cleanup) Add(d Destroyer) {
	*c = append(*c, d)
}

// Destroy destroys the collected objects, last added first.
func (c *Cleanup) Destroy() {
	for i := len(*c) - 1; i >= 0; i-- {
		(*c)[i].Destroy()
	}
	*c = nil
}

// DestroyFunc adapts a function to the Destroyer interface.
type DestroyFunc func()

func (f DestroyFunc) Destroy() {
	f()
}

func Max[T constraints.Ordered](a, b T) T {
	if a > b {
		return a
	}
	return b
}

func Min[T constraints.Ordered](a, b T) T {
	if a < b {
		return a
	}
	return b
}

func Clamp[T constraints.Ordered](v, lo, hi T) T {
	return Min(Max(v, lo), hi)
}
