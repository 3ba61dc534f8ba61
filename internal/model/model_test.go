package model

import "testing"

func TestCanTransition(t *testing.T) {
	tests := []struct {
		name    string
		from    OrderStatus
		to      OrderStatus
		allowed bool
	}{
		{
			name:    "received to in production",
			from:    OrderStatusReceived,
			to:      OrderStatusInProduction,
			allowed: true,
		},
		{
			name:    "in production to paid",
			from:    OrderStatusInProduction,
			to:      OrderStatusPaid,
			allowed: true,
		},
		{
			name:    "received to paid skips production",
			from:    OrderStatusReceived,
			to:      OrderStatusPaid,
			allowed: false,
		},
		{
			name:    "in production back to received",
			from:    OrderStatusInProduction,
			to:      OrderStatusReceived,
			allowed: false,
		},
		{
			name:    "reapply in production is idempotent",
			from:    OrderStatusInProduction,
			to:      OrderStatusInProduction,
			allowed: true,
		},
		{
			name:    "reapply received is idempotent",
			from:    OrderStatusReceived,
			to:      OrderStatusReceived,
			allowed: true,
		},
		{
			name:    "paid is terminal",
			from:    OrderStatusPaid,
			to:      OrderStatusPaid,
			allowed: false,
		},
		{
			name:    "paid back to production",
			from:    OrderStatusPaid,
			to:      OrderStatusInProduction,
			allowed: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CanTransition(tt.from, tt.to); got != tt.allowed {
				t.Fatalf("CanTransition(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.allowed)
			}
		})
	}
}

func TestOrderStatusValid(t *testing.T) {
	for _, s := range []OrderStatus{OrderStatusReceived, OrderStatusInProduction, OrderStatusPaid} {
		if !s.Valid() {
			t.Fatalf("%s must be valid", s)
		}
	}
	if OrderStatus("CANCELADO").Valid() {
		t.Fatalf("unknown status must be invalid")
	}
}
