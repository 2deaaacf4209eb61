package x402

import "testing"

func TestSelectRequirement(t *testing.T) {
	reqs := []PaymentRequirement{{Network: "a"}, {Network: "b"}}

	tests := []struct {
		name  string
		reqs  []PaymentRequirement
		index int
		want  string
	}{
		{"first", reqs, 0, "a"},
		{"second", reqs, 1, "b"},
		{"out of range", reqs, 5, "a"},
		{"negative", reqs, -1, "a"},
		{"empty", nil, 0, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SelectRequirement(tt.reqs, tt.index)
			if tt.want == "" {
				if got != nil {
					t.Errorf("expected nil, got %+v", got)
				}
				return
			}
			if got == nil || got.Network != tt.want {
				t.Errorf("got %+v, want network %s", got, tt.want)
			}
		})
	}
}

func TestSelectRequirement_ReturnsElement(t *testing.T) {
	reqs := []PaymentRequirement{{Network: "a"}}
	SelectRequirement(reqs, 0).PayTo = "0x1"
	if reqs[0].PayTo != "0x1" {
		t.Error("SelectRequirement returned a copy")
	}
}

func TestPayableIndex(t *testing.T) {
	tests := []struct {
		name     string
		reqs     []PaymentRequirement
		single   *ChainConfig
		fallback int
		want     int
	}{
		{
			name: "skips other schemes and networks",
			reqs: []PaymentRequirement{
				{Scheme: "upto", Network: "eip155:8453"},
				{Scheme: "exact", Network: "solana:5eykt4UsFv8P8NJdTREpY1vzqKqZKvdp"},
				{Scheme: "exact", Network: "eip155:84532"},
			},
			want: 2,
		},
		{
			name: "empty scheme counts as exact",
			reqs: []PaymentRequirement{{Network: "eip155:137"}},
			want: 0,
		},
		{
			name:     "unknown chain falls back",
			reqs:     []PaymentRequirement{{Scheme: "exact", Network: "eip155:999999"}},
			fallback: 0,
			want:     0,
		},
		{
			name: "primary chain is honored",
			reqs: []PaymentRequirement{
				{Scheme: "exact", Network: "eip155:999999"},
				{Scheme: "exact", Network: "eip155:84532"},
			},
			single: &BaseSepolia,
			want:   1,
		},
		{
			name:     "nothing payable",
			reqs:     []PaymentRequirement{{Scheme: "exact", Network: "solana-devnet"}},
			fallback: 3,
			want:     3,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := PayableIndex(tt.reqs, tt.single, nil, tt.fallback); got != tt.want {
				t.Errorf("PayableIndex = %d, want %d", got, tt.want)
			}
		})
	}
}
