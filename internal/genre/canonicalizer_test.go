package genre

import (
	"reflect"
	"testing"
)

func TestCanonicalizeHipHopVariants(t *testing.T) {
	t.Parallel()

	for _, raw := range []string{"Hip Hop", "hip-hop", "HIP HOP", "HipHop"} {
		got := Canonicalize(raw)
		if len(got) != 1 || got[0] != "Hip-Hop" {
			t.Fatalf("Canonicalize(%q) = %v, want [Hip-Hop]", raw, got)
		}
	}
}

func TestCanonicalizeRnBVariants(t *testing.T) {
	t.Parallel()

	for _, raw := range []string{"RnB", "R & b", "r&b", "R and B"} {
		got := Canonicalize(raw)
		if len(got) != 1 || got[0] != "R&B" {
			t.Fatalf("Canonicalize(%q) = %v, want [R&B]", raw, got)
		}
	}
}

func TestCanonicalizeSplitsDelimiters(t *testing.T) {
	t.Parallel()

	got := Canonicalize("rock; hip hop / IDM, synth pop")
	want := []string{"Rock", "Hip-Hop", "IDM", "Synth-Pop"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("unexpected fragments: got %v, want %v", got, want)
	}
}

func TestCanonicalizeDashSeparatedList(t *testing.T) {
	t.Parallel()

	got := Canonicalize("Jazz - Blues")
	want := []string{"Jazz", "Blues"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("unexpected fragments: got %v, want %v", got, want)
	}
}

func TestCanonicalizeKeepsHyphenatedWordsTogether(t *testing.T) {
	t.Parallel()

	got := Canonicalize("post-punk")
	if len(got) != 1 || got[0] != "Post-Punk" {
		t.Fatalf("Canonicalize(post-punk) = %v, want [Post-Punk]", got)
	}
}

func TestCanonicalizePrefixRewrite(t *testing.T) {
	t.Parallel()

	got := Canonicalize("alt rock")
	if len(got) != 1 || got[0] != "Alt-Rock" {
		t.Fatalf("Canonicalize(alt rock) = %v, want [Alt-Rock]", got)
	}
}

func TestCanonicalizeAcronyms(t *testing.T) {
	t.Parallel()

	got := Canonicalize("idm")
	if len(got) != 1 || got[0] != "IDM" {
		t.Fatalf("Canonicalize(idm) = %v, want [IDM]", got)
	}

	got = Canonicalize("uk garage")
	if len(got) != 1 || got[0] != "UK Garage" {
		t.Fatalf("Canonicalize(uk garage) = %v, want [UK Garage]", got)
	}
}

func TestCanonicalizeCollapsesWhitespace(t *testing.T) {
	t.Parallel()

	got := Canonicalize("  drum   and   bass ")
	if len(got) != 1 || got[0] != "DnB" {
		t.Fatalf("Canonicalize = %v, want [DnB]", got)
	}
}

func TestCanonicalizeEmptyInput(t *testing.T) {
	t.Parallel()

	if got := Canonicalize(""); len(got) != 0 {
		t.Fatalf("expected no fragments, got %v", got)
	}

	if got := Canonicalize(" ,; "); len(got) != 0 {
		t.Fatalf("expected no fragments for separators only, got %v", got)
	}
}

func TestCanonicalizeKeepsDuplicates(t *testing.T) {
	t.Parallel()

	got := Canonicalize("rock, Rock")
	want := []string{"Rock", "Rock"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("duplicates must be preserved: got %v, want %v", got, want)
	}
}
