package util

import "testing"

func TestParseQty(t *testing.T) {
	cases := []struct {
		name  string
		input string
		want  int
	}{
		{name: "unit suffix", input: "OPI Gel Color - Red Hot 2 pcs", want: 2},
		{name: "thousand with comma", input: "Cotton pads 1,000 pcs", want: 1000},
		{name: "labeled", input: "Acetone remover qty: 4", want: 4},
		{name: "x prefix", input: "Dotting tool set x3", want: 3},
		{name: "x suffix", input: "2x Nail file 180/240", want: 2},
		{name: "trailing number", input: "Top coat 0.5 oz 6", want: 6},
		{name: "fraction rounds up", input: "Base coat 1.5 bottles", want: 2},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			parsed := ParseQty(tc.input)
			if parsed.Qty == nil {
				t.Fatalf("qty is nil")
			}
			if *parsed.Qty != tc.want {
				t.Fatalf("got %v want %v", *parsed.Qty, tc.want)
			}
		})
	}
}

func TestParseQtyMissing(t *testing.T) {
	if parsed := ParseQty("Cuticle oil"); parsed.Qty != nil {
		t.Fatalf("expected no qty, got %d", *parsed.Qty)
	}
}
