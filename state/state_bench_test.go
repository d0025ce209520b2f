package state

import (
	"fmt"
	"testing"
)

// BenchmarkFileTracker_MarkSeen measures the synced journal append.
func BenchmarkFileTracker_MarkSeen(b *testing.B) {
	tracker, err := NewFileTracker(b.TempDir())
	if err != nil {
		b.Fatal(err)
	}
	defer tracker.Close()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if err := tracker.MarkSeen(fmt.Sprintf("hash-%d", i), fmt.Sprintf("%d", i)); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkFileTracker_Seen(b *testing.B) {
	tracker, err := NewFileTracker(b.TempDir())
	if err != nil {
		b.Fatal(err)
	}
	defer tracker.Close()

	for i := 0; i < 1000; i++ {
		if err := tracker.MarkSeen(fmt.Sprintf("hash-%d", i), fmt.Sprintf("%d", i)); err != nil {
			b.Fatal(err)
		}
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = tracker.Seen(fmt.Sprintf("hash-%d", i%2000))
	}
}
