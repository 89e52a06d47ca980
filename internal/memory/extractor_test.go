package memory

import (
	"strings"
	"testing"

	"github.com/ent0n29/amical/internal/store"
)

func TestExtractIgnoresShortMessages(t *testing.T) {
	for _, n := range []int{0, 1, 40, 50} {
		if _, ok := Extract(strings.Repeat("a", n)); ok {
			t.Fatalf("Extract(len=%d) ok = true, want false", n)
		}
	}
	// 50 multi-byte characters are still 50 characters.
	if _, ok := Extract(strings.Repeat("é", 50)); ok {
		t.Fatalf("Extract(50 runes) ok = true, want false")
	}
}

func TestExtractImportance(t *testing.T) {
	cases := []struct {
		name string
		msg  string
		want store.Importance
	}{
		{"low at 60", strings.Repeat("a", 60), store.ImportanceLow},
		{"low at 100", strings.Repeat("a", 100), store.ImportanceLow},
		{"medium at 101", strings.Repeat("a", 101), store.ImportanceMedium},
		{"high keyword important", "this is important " + strings.Repeat("a", 40), store.ImportanceHigh},
		{"high keyword remember", strings.Repeat("b", 200) + " remember that", store.ImportanceHigh},
		{"keywords are case sensitive", "IMPORTANT " + strings.Repeat("a", 60), store.ImportanceLow},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := Extract(tc.msg)
			if !ok {
				t.Fatalf("Extract() ok = false, want true")
			}
			if got.Importance != tc.want {
				t.Fatalf("Importance = %q, want %q", got.Importance, tc.want)
			}
		})
	}
}

func TestExtractTruncatesFact(t *testing.T) {
	msg := "remember " + strings.Repeat("x", 700)
	got, ok := Extract(msg)
	if !ok {
		t.Fatalf("Extract() ok = false, want true")
	}
	if got.Importance != store.ImportanceHigh {
		t.Fatalf("Importance = %q, want high", got.Importance)
	}
	if got.Fact != msg[:500] {
		t.Fatalf("Fact is not the first 500 characters (len=%d)", len(got.Fact))
	}

	short := strings.Repeat("y", 80)
	got, _ = Extract(short)
	if got.Fact != short {
		t.Fatalf("Fact = %q, want the whole message", got.Fact)
	}
}
