package sqlbuilder

import "testing"

func TestPlaceholders(t *testing.T) {
	b := New(PlaceholderQuestion)
	if got := b.Arg("a"); got != "?1" {
		t.Fatalf("expected ?1, got %s", got)
	}
	b.Arg("b")
	if got := b.Arg("a"); got != "?3" {
		t.Fatalf("expected ?3, got %s", got)
	}

	d := New(PlaceholderDollar)
	d.Arg(1)
	if got := d.Arg(2); got != "$2" {
		t.Fatalf("expected $2, got %s", got)
	}
	if d.Len() != 2 || len(d.Args()) != 2 {
		t.Fatalf("expected 2 args, got %d", d.Len())
	}
}
