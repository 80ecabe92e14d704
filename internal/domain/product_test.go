package domain

import (
	"strings"
	"testing"
)

func TestValidateCatalog(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		catalog []Product
		wantErr string
	}{
		{
			name:    "valid ordered catalog",
			catalog: []Product{{Name: "A", Threshold: 5}, {Name: "B", Threshold: 0}, {Name: "C", Threshold: -1}},
		},
		{
			name:    "empty catalog",
			catalog: nil,
			wantErr: "at least one product",
		},
		{
			name:    "blank name",
			catalog: []Product{{Name: "  ", Threshold: 1}},
			wantErr: "name is required",
		},
		{
			name:    "padded name",
			catalog: []Product{{Name: " A ", Threshold: 1}},
			wantErr: "surrounding whitespace",
		},
		{
			name:    "duplicate name",
			catalog: []Product{{Name: "A", Threshold: 1}, {Name: "A", Threshold: 2}},
			wantErr: "duplicate name",
		},
		{
			name:    "threshold below sentinel",
			catalog: []Product{{Name: "A", Threshold: -2}},
			wantErr: "below the disabled sentinel",
		},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			err := ValidateCatalog(tc.catalog)
			if tc.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
				t.Fatalf("expected error containing %q, got %v", tc.wantErr, err)
			}
		})
	}
}

func TestProductMonitored(t *testing.T) {
	t.Parallel()

	if (Product{Name: "A", Threshold: ThresholdDisabled}).Monitored() {
		t.Fatalf("expected disabled sentinel to exclude product from monitoring")
	}
	if !(Product{Name: "A", Threshold: 0}).Monitored() {
		t.Fatalf("expected zero threshold to keep product monitored")
	}
}

func TestIndexReadings(t *testing.T) {
	t.Parallel()

	index := IndexReadings([]Reading{{Name: "A", Stock: 3}, {Name: "B", Stock: 7}, {Name: "A", Stock: 9}})
	if len(index) != 2 {
		t.Fatalf("expected two indexed readings, got %d", len(index))
	}
	if index["A"].Stock != 9 {
		t.Fatalf("expected later duplicate to win, got %d", index["A"].Stock)
	}
}
