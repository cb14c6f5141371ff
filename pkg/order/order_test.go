package order

import "testing"

type comp struct {
	name string
	ord  int
}

func (c comp) Order() int { return c.ord }

type plain struct{ name string }

type urgent struct{ comp }

func (urgent) PriorityOrdered() {}

func names(items []any) []string {
	out := make([]string, 0, len(items))
	for _, it := range items {
		switch v := it.(type) {
		case comp:
			out = append(out, v.name)
		case urgent:
			out = append(out, v.name)
		case plain:
			out = append(out, v.name)
		}
	}
	return out
}

func TestSortPrecedence(t *testing.T) {
	t.Parallel()
	items := []any{
		plain{"p1"},
		comp{"late", 10},
		comp{"early", -5},
		urgent{comp{"first", 100}},
		plain{"p2"},
		comp{"tie-a", 10},
	}
	Sort(items)

	got := names(items)
	want := []string{"first", "early", "late", "tie-a", "p1", "p2"}
	if len(got) != len(want) {
		t.Fatalf("len = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("order = %v, want %v", got, want)
		}
	}
}

func TestOfDefaultsToLowest(t *testing.T) {
	t.Parallel()
	if Of(plain{"x"}) != LowestPrecedence {
		t.Fatal("unordered value should have lowest precedence")
	}
	if Of(Value("x", HighestPrecedence)) != HighestPrecedence {
		t.Fatal("Value should carry its order")
	}
}

func TestSortedLeavesInputUntouched(t *testing.T) {
	t.Parallel()
	in := []Valued[string]{Value("b", 2), Value("a", 1)}
	out := Sorted(in)
	if in[0].V != "b" || out[0].V != "a" {
		t.Fatalf("in=%v out=%v", in, out)
	}
}
