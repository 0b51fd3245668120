package browser

import (
	"testing"

	"github.com/go-rod/rod/lib/proto"
)

func TestBlockedSet(t *testing.T) {
	got := blockedSet([]string{"Font", "Media", "Image", "Bogus"})

	if len(got) != 2 {
		t.Fatalf("expected 2 blocked types, got %d", len(got))
	}
	for _, rt := range []proto.NetworkResourceType{proto.NetworkResourceTypeFont, proto.NetworkResourceTypeMedia} {
		if _, ok := got[rt]; !ok {
			t.Errorf("expected %s to be blocked", rt)
		}
	}
	if _, ok := got[proto.NetworkResourceTypeImage]; ok {
		t.Error("images must never be blocked")
	}
}

func TestBlockedSet_Empty(t *testing.T) {
	if got := blockedSet(nil); len(got) != 0 {
		t.Errorf("expected empty set, got %v", got)
	}
}
