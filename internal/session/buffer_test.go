package session

import (
	"testing"

	"github.com/verte-zerg/gazemap/internal/model"
)

func sample(page string, ts int64) model.GazeSample {
	return model.GazeSample{X: 1, Y: 2, Timestamp: ts, Page: page}
}

func TestBufferGenerations(t *testing.T) {
	var b Buffer
	b.Append(sample("/a", 1))
	b.Append(sample("/a", 2))
	b.Append(sample("/b", 3))
	if b.Len() != 2 || b.Page() != "/a" || b.Pending() != 1 || b.Total() != 3 {
		t.Fatalf("unexpected buffer len=%d page=%q pending=%d", b.Len(), b.Page(), b.Pending())
	}
	rotated := b.Rotate()
	if len(rotated) != 2 {
		t.Fatalf("expected 2 rotated samples, got %d", len(rotated))
	}
	for _, s := range b.Snapshot() {
		if s.Page == "/a" {
			t.Fatalf("old page sample left after rotation")
		}
	}
}

func TestBufferSealOpensNewGeneration(t *testing.T) {
	var b Buffer
	b.Append(sample("/a", 1))
	b.Seal()
	b.Append(sample("/a", 2))
	if b.Len() != 1 || b.Pending() != 1 || !b.HeadSealed() {
		t.Fatalf("sealed generation accepted a sample")
	}
}

func TestBufferTrim(t *testing.T) {
	var b Buffer
	for i, page := range []string{"/a", "/b", "/c"} {
		b.Append(sample(page, int64(i)))
		b.Seal()
	}
	b.Append(sample("/d", 9))
	b.Append(sample("/d", 10))

	if dropped := b.Trim(1); dropped != 2 {
		t.Fatalf("expected 2 dropped samples, got %d", dropped)
	}
	pages := b.Pages()
	if len(pages) != 2 || pages[0] != "/a" || pages[1] != "/d" {
		t.Fatalf("unexpected pages %v", pages)
	}
	if dropped := b.Trim(0); dropped != 1 || b.Page() != "/d" || b.Len() != 2 {
		t.Fatalf("expected only the open generation left")
	}
}

func TestBufferSnapshotIsCopy(t *testing.T) {
	var b Buffer
	b.Append(sample("/a", 1))
	snap := b.Snapshot()
	snap[0].X = 99
	if b.Snapshot()[0].X == 99 {
		t.Fatalf("snapshot aliases the buffer")
	}
	b.Clear()
	if b.Len() != 0 || b.Snapshot() != nil {
		t.Fatalf("clear left samples")
	}
}
