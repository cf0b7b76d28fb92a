package settlement

import (
	"math/big"
	"testing"
)

func TestDeliveredFlexPower(t *testing.T) {
	cases := []struct {
		name                          string
		ordered, prognosis, allocated int64
		want                          int64
	}{
		{"upward order fully delivered", 100, 1000, 1200, 100},
		{"downward order nearly delivered", -100, 1000, 901, 99},
		{"upward order partially delivered", 100, -1000, -950, 50},
		{"downward order not delivered", -100, -1000, -900, 0},
		{"zero order", 0, 500, 700, 0},
		{"downward order overdelivered", -100, 1000, 800, 100},
		{"upward order opposite direction", 100, 1000, 900, 0},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got := DeliveredFlexPower(big.NewInt(c.ordered), big.NewInt(c.prognosis), big.NewInt(c.allocated))
			if got.Cmp(big.NewInt(c.want)) != 0 {
				t.Fatalf("DeliveredFlexPower(%d, %d, %d) = %s, want %d",
					c.ordered, c.prognosis, c.allocated, got, c.want)
			}
		})
	}
}

func TestDeliveredFlexPowerExactLargeValues(t *testing.T) {
	ordered, _ := new(big.Int).SetString("98765432109876543210", 10)
	prognosis := big.NewInt(0)
	allocated, _ := new(big.Int).SetString("123456789012345678901234567890", 10)
	got := DeliveredFlexPower(ordered, prognosis, allocated)
	if got.Cmp(ordered) != 0 {
		t.Fatalf("expected the full order %s, got %s", ordered, got)
	}
}

func TestDeliveredFlexPowerDoesNotMutateArguments(t *testing.T) {
	ordered := big.NewInt(-100)
	prognosis := big.NewInt(1000)
	allocated := big.NewInt(901)
	DeliveredFlexPower(ordered, prognosis, allocated)
	if ordered.Int64() != -100 || prognosis.Int64() != 1000 || allocated.Int64() != 901 {
		t.Fatal("arguments were mutated")
	}
}
