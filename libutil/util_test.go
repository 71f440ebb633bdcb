package libutil

import (
	"reflect"
	"testing"
)

func TestCleanupOrder(t *testing.T) {
	var order []int
	var c Cleanup
	for i := 0; i < 3; i++ {
		i := i
		c.Add(DestroyFunc(func() { order = append(order, i) }))
	}
	c.Destroy()
	if !reflect.DeepEqual(order, []int{2, 1, 0}) {
		t.Errorf("objects should be destroyed last first but order is %v", order)
	}
	c.Destroy()
	if len(order) != 3 {
		t.Error("second destroy should be a no-op")
	}
}

func TestClamp(t *testing.T) {
	if v := Clamp(5, 0, 3); v != 3 {
		t.Errorf("clamp should be: 3 but is %d", v)
	}
	if v := Clamp(float32(-1.5), -1, 1); v != -1 {
		t.Errorf("clamp should be: -1 but is %.1f", v)
	}
}
