package types

import "testing"

func TestImpactedBlocksExtents(t *testing.T) {
	tests := []struct {
		name       string
		blocks     ImpactedBlocks
		extentSize uint64
		wantFirst  Extent
		wantLast   Extent
	}{
		{"single block in extent 0", ImpactedBlocks{First: 0, Last: 0}, 3, 0, 0},
		{"spans two extents", ImpactedBlocks{First: 2, Last: 3}, 3, 0, 1},
		{"spans three extents", ImpactedBlocks{First: 0, Last: 8}, 3, 0, 2},
		{"whole extent boundary", ImpactedBlocks{First: 3, Last: 5}, 3, 1, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			first, last := tt.blocks.Extents(tt.extentSize)
			if first != tt.wantFirst || last != tt.wantLast {
				t.Errorf("Extents() = (%d, %d), want (%d, %d)", first, last, tt.wantFirst, tt.wantLast)
			}
		})
	}
}

func TestImpactedBlocksOverlaps(t *testing.T) {
	tests := []struct {
		name string
		a, b ImpactedBlocks
		want bool
	}{
		{"identical", ImpactedBlocks{0, 5}, ImpactedBlocks{0, 5}, true},
		{"adjacent non-overlapping", ImpactedBlocks{0, 4}, ImpactedBlocks{5, 9}, false},
		{"partial overlap", ImpactedBlocks{0, 5}, ImpactedBlocks{5, 9}, true},
		{"disjoint", ImpactedBlocks{0, 2}, ImpactedBlocks{10, 12}, false},
		{"b contains a", ImpactedBlocks{5, 6}, ImpactedBlocks{0, 10}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.a.Overlaps(tt.b); got != tt.want {
				t.Errorf("Overlaps() = %v, want %v", got, tt.want)
			}
			if got := tt.b.Overlaps(tt.a); got != tt.want {
				t.Errorf("Overlaps() (reversed) = %v, want %v", got, tt.want)
			}
		})
	}
}
