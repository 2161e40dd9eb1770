package arena

import "testing"

func TestPreCleanupRunsInLIFOOrder(t *testing.T) {
	a := New("root", nil)
	var order []int
	a.OnPreCleanup(func() { order = append(order, 1) })
	a.OnPreCleanup(func() { order = append(order, 2) })
	a.OnPreCleanup(func() { order = append(order, 3) })

	a.Destroy()

	want := []int{3, 2, 1}
	if len(order) != len(want) {
		t.Fatalf("order = %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("order = %v, want %v", order, want)
		}
	}
}

func TestDestroyIsIdempotent(t *testing.T) {
	a := New("root", nil)
	calls := 0
	a.OnPreCleanup(func() { calls++ })
	a.Destroy()
	a.Destroy()
	if calls != 1 {
		t.Fatalf("cleanup ran %d times, want 1", calls)
	}
	if !a.Dead() {
		t.Fatal("expected arena to be dead")
	}
}

func TestUnregisterPreventsCleanup(t *testing.T) {
	a := New("root", nil)
	calls := 0
	unregister := a.OnPreCleanup(func() { calls++ })
	unregister()
	a.Destroy()
	if calls != 0 {
		t.Fatalf("cleanup ran %d times, want 0", calls)
	}
}

func TestOnPreCleanupAfterDeathRunsImmediately(t *testing.T) {
	a := New("root", nil)
	a.Destroy()
	ran := false
	a.OnPreCleanup(func() { ran = true })
	if !ran {
		t.Fatal("expected cleanup registered post-mortem to run synchronously")
	}
}
