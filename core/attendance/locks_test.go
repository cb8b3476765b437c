package attendance

import (
	"sync"
	"testing"
)

func TestKeyLocks(t *testing.T) {
	kl := newKeyLocks()
	key := keyOf("stu-1", date(2026, 3, 20))

	var (
		wg      sync.WaitGroup
		inside  int
		maxSeen int
		counter int
	)
	var mu sync.Mutex // guards inside and maxSeen
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := kl.lock(key)
			defer unlock()

			mu.Lock()
			inside++
			if inside > maxSeen {
				maxSeen = inside
			}
			mu.Unlock()

			counter++ // guarded by the key lock

			mu.Lock()
			inside--
			mu.Unlock()
		}()
	}
	wg.Wait()

	if counter != 50 {
		t.Errorf("counter = %d, want 50", counter)
	}
	if maxSeen != 1 {
		t.Errorf("%d goroutines held the same key at once", maxSeen)
	}
	if n := kl.len(); n != 0 {
		t.Errorf("%d locks left after release, want 0", n)
	}
}

func TestKeyLocks_distinctKeys(t *testing.T) {
	kl := newKeyLocks()
	unlockA := kl.lock(keyOf("stu-1", date(2026, 3, 20)))
	unlockB := kl.lock(keyOf("stu-1", date(2026, 3, 21))) // must not block
	unlockC := kl.lock(keyOf("stu-2", date(2026, 3, 20)))

	if n := kl.len(); n != 3 {
		t.Errorf("len() = %d, want 3", n)
	}
	unlockA()
	unlockB()
	unlockC()
	if n := kl.len(); n != 0 {
		t.Errorf("len() = %d, want 0", n)
	}
}
