package mail

import (
	"testing"

	"github.com/emersion/go-imap/v2"
)

func uidList(nums ...uint32) []imap.UID {
	out := make([]imap.UID, len(nums))
	for i, n := range nums {
		out[i] = imap.UID(n)
	}
	return out
}

func TestNewestFirst(t *testing.T) {
	tests := []struct {
		name  string
		uids  []imap.UID
		limit int
		want  []imap.UID
	}{
		{"fewer than limit", uidList(1, 2, 3), 5, uidList(3, 2, 1)},
		{"exactly limit", uidList(1, 2, 3, 4, 5), 5, uidList(5, 4, 3, 2, 1)},
		{"more than limit keeps newest", uidList(1, 2, 3, 4, 5, 6, 7), 3, uidList(7, 6, 5)},
		{"single message", uidList(42), 5, uidList(42)},
		{"empty", uidList(), 5, uidList()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := newestFirst(tt.uids, tt.limit)
			if len(got) != len(tt.want) {
				t.Fatalf("newestFirst returned %d UIDs, want %d", len(got), len(tt.want))
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("uid[%d] = %d, want %d", i, got[i], tt.want[i])
				}
			}
		})
	}
}

// The input slice must not be reordered in place; FetchUnread hands the
// search result straight in.
func TestNewestFirstLeavesInputUntouched(t *testing.T) {
	in := uidList(1, 2, 3)
	newestFirst(in, 2)
	for i, want := range uidList(1, 2, 3) {
		if in[i] != want {
			t.Fatalf("input mutated: %v", in)
		}
	}
}
