package chat

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
)

// TestRegistryAddAndCapacity verifies slots are claimed until the
// fixed capacity, and that the overflow add fails with ErrServerFull.
func TestRegistryAddAndCapacity(t *testing.T) {
	reg := NewRegistry(3)

	for i := int64(1); i <= 3; i++ {
		if _, err := reg.Add(i, newMemTransport("x"), "addr"); err != nil {
			t.Fatalf("Add(%d) failed: %v", i, err)
		}
	}
	if _, err := reg.Add(4, newMemTransport("x"), "addr"); !errors.Is(err, ErrServerFull) {
		t.Fatalf("overflow Add error = %v, want ErrServerFull", err)
	}
	if got := reg.Count(); got != 3 {
		t.Errorf("Count() = %d, want 3", got)
	}
}

// TestRegistryRemoveIdempotent verifies a second removal of the same
// handle is a no-op that does not disturb other slots.
func TestRegistryRemoveIdempotent(t *testing.T) {
	reg := NewRegistry(3)
	tr := addMember(t, reg, 1, "alice")
	addMember(t, reg, 2, "bob")

	if got := reg.Remove(1); got != "alice" {
		t.Errorf("first Remove = %q, want %q", got, "alice")
	}
	if got := reg.Remove(1); got != "" {
		t.Errorf("second Remove = %q, want empty", got)
	}
	tr.mu.Lock()
	closed := tr.closed
	tr.mu.Unlock()
	if !closed {
		t.Error("Remove did not close the transport")
	}
	if _, ok := reg.FindByName("bob"); !ok {
		t.Error("unrelated slot lost after double removal")
	}
}

// TestRegistrySlotReuse verifies a freed slot can be claimed by a new
// connection.
func TestRegistrySlotReuse(t *testing.T) {
	reg := NewRegistry(1)
	addMember(t, reg, 1, "first")
	reg.Remove(1)

	if _, err := reg.Add(2, newMemTransport("x"), "addr"); err != nil {
		t.Fatalf("Add after Remove failed: %v", err)
	}
}

// TestRenameConflict verifies renaming to a held name fails and leaves
// both records unchanged.
func TestRenameConflict(t *testing.T) {
	reg := NewRegistry(4)
	addMember(t, reg, 1, "alice")
	addMember(t, reg, 2, "bob")

	if err := reg.Rename(2, "alice"); !errors.Is(err, ErrNameTaken) {
		t.Fatalf("Rename error = %v, want ErrNameTaken", err)
	}
	if _, ok := reg.FindByName("bob"); !ok {
		t.Error("failed rename mutated the record")
	}
}

// TestRenameAtomicity runs two concurrent renames to the same free
// name; exactly one must win.
func TestRenameAtomicity(t *testing.T) {
	for round := 0; round < 50; round++ {
		reg := NewRegistry(4)
		addMember(t, reg, 1, "alice")
		addMember(t, reg, 2, "bob")

		var wg sync.WaitGroup
		errs := make([]error, 2)
		for i := 0; i < 2; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				errs[i] = reg.Rename(int64(i+1), "winner")
			}(i)
		}
		wg.Wait()

		var taken int
		for _, err := range errs {
			if errors.Is(err, ErrNameTaken) {
				taken++
			}
		}
		if taken != 1 {
			t.Fatalf("round %d: %d renames rejected, want exactly 1", round, taken)
		}
		if _, ok := reg.FindByName("winner"); !ok {
			t.Fatalf("round %d: winning name missing", round)
		}
	}
}

// TestClaimNameSuffixes verifies colliding base names take incrementing
// numeric suffixes.
func TestClaimNameSuffixes(t *testing.T) {
	reg := NewRegistry(4)
	for i := int64(1); i <= 3; i++ {
		if _, err := reg.Add(i, newMemTransport("x"), "addr"); err != nil {
			t.Fatalf("Add(%d) failed: %v", i, err)
		}
	}

	got := []string{
		reg.ClaimName(1, "dup"),
		reg.ClaimName(2, "dup"),
		reg.ClaimName(3, "dup"),
	}
	want := []string{"dup", "dup_1", "dup_2"}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("claim %d = %q, want %q", i, got[i], want[i])
		}
	}
}

// TestClaimNameConcurrent joins many clients with the same base name
// at once; every resolved name must be distinct and non-empty.
func TestClaimNameConcurrent(t *testing.T) {
	const n = 16
	reg := NewRegistry(n)
	for i := int64(1); i <= n; i++ {
		if _, err := reg.Add(i, newMemTransport("x"), "addr"); err != nil {
			t.Fatalf("Add(%d) failed: %v", i, err)
		}
	}

	names := make([]string, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			names[i] = reg.ClaimName(int64(i+1), "clash")
		}(i)
	}
	wg.Wait()

	seen := make(map[string]bool, n)
	for i, name := range names {
		if name == "" {
			t.Fatalf("claim %d resolved to an empty name", i)
		}
		if seen[name] {
			t.Fatalf("duplicate resolved name %q", name)
		}
		seen[name] = true
	}
}

// TestNameTruncation verifies the byte-length bound on display names,
// including suffixed collision names.
func TestNameTruncation(t *testing.T) {
	long := strings.Repeat("n", MaxNameLen+10)

	reg := NewRegistry(4)
	for i := int64(1); i <= 2; i++ {
		if _, err := reg.Add(i, newMemTransport("x"), "addr"); err != nil {
			t.Fatalf("Add(%d) failed: %v", i, err)
		}
	}

	first := reg.ClaimName(1, long)
	if len(first) != MaxNameLen {
		t.Errorf("claimed name length = %d, want %d", len(first), MaxNameLen)
	}
	second := reg.ClaimName(2, long)
	if len(second) > MaxNameLen {
		t.Errorf("suffixed name length = %d, exceeds bound", len(second))
	}
	if second == first {
		t.Error("suffixed name collided with the original")
	}
}

// TestSnapshotNamesIsolated verifies the snapshot is a copy unaffected
// by later registry mutations.
func TestSnapshotNamesIsolated(t *testing.T) {
	reg := NewRegistry(4)
	addMember(t, reg, 1, "alice")
	addMember(t, reg, 2, "bob")

	snap := reg.SnapshotNames()
	reg.Remove(1)
	reg.Remove(2)

	if len(snap) != 2 {
		t.Fatalf("snapshot has %d names, want 2", len(snap))
	}
	joined := fmt.Sprintf("%v", snap)
	if !strings.Contains(joined, "alice") || !strings.Contains(joined, "bob") {
		t.Errorf("snapshot %v missing expected names", snap)
	}
}
