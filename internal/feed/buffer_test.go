package feed

import (
	"encoding/json"
	"fmt"
	"testing"
)

func TestBufferNewestFirst(t *testing.T) {
	b := NewBuffer(3)
	b.Insert(Item{ImageURL: "a"})
	b.Insert(Item{ImageURL: "b"})

	got := urls(b.Snapshot())
	if want := []string{"b", "a"}; !equalStrings(got, want) {
		t.Errorf("Snapshot() = %v, want %v", got, want)
	}
}

func TestBufferTruncatesOldest(t *testing.T) {
	const capacity = 5
	b := NewBuffer(capacity)
	for i := 0; i < 12; i++ {
		b.Insert(Item{ImageURL: fmt.Sprintf("img-%d", i)})
		if b.Len() > capacity {
			t.Fatalf("Len() = %d after insert %d, exceeds capacity %d", b.Len(), i, capacity)
		}
	}

	got := urls(b.Snapshot())
	want := []string{"img-11", "img-10", "img-9", "img-8", "img-7"}
	if !equalStrings(got, want) {
		t.Errorf("Snapshot() = %v, want %v", got, want)
	}
}

func TestBufferCapacityTwo(t *testing.T) {
	b := NewBuffer(2)
	for _, u := range []string{"A", "B", "C"} {
		b.Insert(Item{ImageURL: u})
	}
	got := urls(b.Snapshot())
	if want := []string{"C", "B"}; !equalStrings(got, want) {
		t.Errorf("Snapshot() = %v, want %v", got, want)
	}
}

func TestBufferClear(t *testing.T) {
	b := NewBuffer(4)
	for _, u := range []string{"a", "b", "c"} {
		b.Insert(Item{ImageURL: u})
	}

	if n := b.Clear(); n != 3 {
		t.Errorf("Clear() = %d, want 3", n)
	}
	if got := b.Snapshot(); len(got) != 0 {
		t.Fatalf("Snapshot() after Clear = %v, want empty", urls(got))
	}

	b.Insert(Item{ImageURL: "d"})
	got := urls(b.Snapshot())
	if want := []string{"d"}; !equalStrings(got, want) {
		t.Errorf("Snapshot() = %v, want %v (pre-clear items must not return)", got, want)
	}
}

func TestBufferKeepsDuplicates(t *testing.T) {
	b := NewBuffer(4)
	b.Insert(Item{ImageURL: "same"})
	b.Insert(Item{ImageURL: "same"})
	if b.Len() != 2 {
		t.Errorf("Len() = %d, want 2", b.Len())
	}
}

func TestBufferSnapshotDoesNotAlias(t *testing.T) {
	b := NewBuffer(2)
	seed := int64(7)
	item := Item{
		ImageURL: "a",
		Seed:     &seed,
		Params:   map[string]json.RawMessage{"model": json.RawMessage(`"flux"`)},
	}
	b.Insert(item)

	// Caller mutations after Insert must not reach the buffer.
	seed = 99
	item.Params["model"] = json.RawMessage(`"other"`)

	snap := b.Snapshot()
	snap[0].ImageURL = "changed"

	again := b.Snapshot()[0]
	if again.ImageURL != "a" {
		t.Errorf("ImageURL = %q, want a", again.ImageURL)
	}
	if *again.Seed != 7 {
		t.Errorf("Seed = %d, want 7", *again.Seed)
	}
	if again.Param("model") != "flux" {
		t.Errorf("model = %q, want flux", again.Param("model"))
	}
}

func TestBufferDefaultCapacity(t *testing.T) {
	if got := NewBuffer(0).Cap(); got != DefaultCapacity {
		t.Errorf("Cap() = %d, want %d", got, DefaultCapacity)
	}
}

func TestBufferChangedFires(t *testing.T) {
	b := NewBuffer(2)

	ch := b.Changed()
	b.Insert(Item{ImageURL: "a"})
	select {
	case <-ch:
	default:
		t.Fatal("Changed() not closed after Insert")
	}

	ch = b.Changed()
	b.Clear()
	select {
	case <-ch:
	default:
		t.Fatal("Changed() not closed after Clear")
	}
}
