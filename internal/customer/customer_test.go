package customer_test

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/vasiliy-maslov/agrifarma-marketplace/internal/customer"
	"github.com/vasiliy-maslov/agrifarma-marketplace/internal/order"
)

func TestProfile_ShippingDefaults(t *testing.T) {
	tests := []struct {
		name    string
		profile customer.Profile
		want    order.ShippingDetails
	}{
		{
			name:    "full_name",
			profile: customer.Profile{Username: "budi", FullName: "Budi Santoso", Phone: "0812", City: "Bandung", State: "Jawa Barat"},
			want:    order.ShippingDetails{Name: "Budi Santoso", Phone: "0812", City: "Bandung", State: "Jawa Barat"},
		},
		{
			name:    "falls_back_to_username",
			profile: customer.Profile{Username: "budi", FullName: "  "},
			want:    order.ShippingDetails{Name: "budi"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if diff := cmp.Diff(tt.want, tt.profile.ShippingDefaults()); diff != "" {
				t.Errorf("ShippingDefaults() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}
