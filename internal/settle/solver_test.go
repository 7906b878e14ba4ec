package settle

import (
	"reflect"
	"testing"

	"github.com/shopspring/decimal"
)

func balances(m map[string]string) map[string]decimal.Decimal {
	out := make(map[string]decimal.Decimal, len(m))
	for name, v := range m {
		out[name] = decimal.RequireFromString(v)
	}
	return out
}

func edgeStrings(edges []Edge) []string {
	var out []string
	for _, e := range edges {
		out = append(out, e.From+"->"+e.To+":"+e.Amount.String())
	}
	return out
}

func TestSolve(t *testing.T) {
	tests := []struct {
		name      string
		balances  map[string]string
		wantEdges []string
	}{
		{
			name:      "largest debtor pays largest creditor first",
			balances:  map[string]string{"A": "15", "B": "-5", "C": "-10"},
			wantEdges: []string{"C->A:10", "B->A:5"},
		},
		{
			name:      "single pair",
			balances:  map[string]string{"Alice": "30", "Bob": "-30"},
			wantEdges: []string{"Bob->Alice:30"},
		},
		{
			name:      "zero balance produces no edges",
			balances:  map[string]string{"A": "10", "B": "-10", "C": "0"},
			wantEdges: []string{"B->A:10"},
		},
		{
			name:      "equal debtors tie-break by name",
			balances:  map[string]string{"W": "20", "D1": "-10", "D2": "-10"},
			wantEdges: []string{"D1->W:10", "D2->W:10"},
		},
		{
			name:      "creditor split across debtors",
			balances:  map[string]string{"A": "25", "B": "5", "C": "-18", "D": "-12"},
			wantEdges: []string{"C->A:18", "D->A:7", "D->B:5"},
		},
		{
			name:      "empty input",
			balances:  map[string]string{},
			wantEdges: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			edges, residual := Solve(balances(tt.balances))
			if got := edgeStrings(edges); !reflect.DeepEqual(got, tt.wantEdges) {
				t.Errorf("Solve() edges = %v, want %v", got, tt.wantEdges)
			}
			if !residual.IsZero() {
				t.Errorf("Solve() residual = %s, want zero", residual.Amount)
			}
		})
	}
}

func TestSolveRoundTrip(t *testing.T) {
	in := balances(map[string]string{
		"Alice": "67.50", "Bob": "-12.25", "Carol": "-40", "Dave": "-15.25",
	})

	edges, residual := Solve(in)
	if !residual.IsZero() {
		t.Fatalf("residual = %s, want zero", residual.Amount)
	}

	// Applying the transfers back must zero every balance.
	net := make(map[string]decimal.Decimal, len(in))
	for name, pl := range in {
		net[name] = pl
	}
	for _, e := range edges {
		net[e.From] = net[e.From].Add(e.Amount)
		net[e.To] = net[e.To].Sub(e.Amount)
	}
	for name, remaining := range net {
		if remaining.Abs().Cmp(Epsilon) >= 0 {
			t.Errorf("%s left with %s after settlement", name, remaining)
		}
	}
}

func TestSolveIdempotent(t *testing.T) {
	in := balances(map[string]string{
		"A": "40", "B": "-10", "C": "-10", "D": "-10", "E": "-10",
	})

	first, _ := Solve(in)
	for i := 0; i < 20; i++ {
		again, _ := Solve(in)
		if !reflect.DeepEqual(edgeStrings(first), edgeStrings(again)) {
			t.Fatalf("run %d: edges %v differ from %v", i, edgeStrings(again), edgeStrings(first))
		}
	}
}

func TestSolveNonZeroSum(t *testing.T) {
	// Debtors owe 10 but creditors are owed 25: data entry error.
	edges, residual := Solve(balances(map[string]string{"A": "25", "B": "-10"}))

	want := []string{"B->A:10"}
	if got := edgeStrings(edges); !reflect.DeepEqual(got, want) {
		t.Errorf("edges = %v, want %v", got, want)
	}
	if residual.IsZero() {
		t.Fatal("expected nonzero residual")
	}
	if !residual.Creditors {
		t.Error("residual should sit on the creditor side")
	}
	if want := decimal.NewFromInt(15); !residual.Amount.Equal(want) {
		t.Errorf("residual = %s, want %s", residual.Amount, want)
	}
}
