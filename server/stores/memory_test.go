package stores

import "testing"

func TestInMemoryIntegrationStore(t *testing.T) {
	testIntegrationStore(t, NewInMemoryIntegrationStore())
}

func TestInMemoryRecordStore(t *testing.T) {
	testRecordStore(t, NewInMemoryRecordStore())
}

func TestPage(t *testing.T) {
	items := []int{1, 2, 3, 4, 5}
	tests := []struct {
		name          string
		offset, limit int
		want          []int
	}{
		{"first", 0, 2, []int{1, 2}},
		{"last partial", 4, 2, []int{5}},
		{"past end", 5, 2, nil},
		{"no limit", 1, 0, []int{2, 3, 4, 5}},
		{"negative offset", -3, 1, []int{1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := page(items, tt.offset, tt.limit)
			if len(got) != len(tt.want) {
				t.Fatalf("page(%d, %d) = %v, want %v", tt.offset, tt.limit, got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Fatalf("page(%d, %d) = %v, want %v", tt.offset, tt.limit, got, tt.want)
				}
			}
		})
	}
}
