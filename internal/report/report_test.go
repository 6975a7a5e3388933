package report_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/vasiliy-maslov/agrifarma-marketplace/internal/report"
)

func TestFilter_Normalize(t *testing.T) {
	tests := []struct {
		name       string
		in         report.Filter
		wantPage   int
		wantPer    int
		wantOffset int
	}{
		{name: "zero_value", in: report.Filter{}, wantPage: 1, wantPer: report.DefaultPerPage, wantOffset: 0},
		{name: "negative_page", in: report.Filter{Page: -3, PerPage: 10}, wantPage: 1, wantPer: 10, wantOffset: 0},
		{name: "third_page", in: report.Filter{Page: 3, PerPage: 10}, wantPage: 3, wantPer: 10, wantOffset: 20},
		{name: "per_page_capped", in: report.Filter{Page: 2, PerPage: 1000}, wantPage: 2, wantPer: 100, wantOffset: 100},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.in.Normalize()
			assert.Equal(t, tt.wantPage, got.Page)
			assert.Equal(t, tt.wantPer, got.PerPage)
			assert.Equal(t, tt.wantOffset, got.Offset())
		})
	}
}

func TestFilter_NormalizeKeepsStatus(t *testing.T) {
	got := report.Filter{Status: "shipped"}.Normalize()
	assert.Equal(t, "shipped", got.Status)
}
