package objects

import "fmt"

// Coin is an amount of a single denomination held or transferred by an
// asset-holder.
type Coin struct {
	Denom  string `json:"denom"`
	Amount uint64 `json:"amount"`
}

// NewCoin builds a coin value.
func NewCoin(denom string, amount uint64) Coin {
	return Coin{Denom: denom, Amount: amount}
}

// Validate checks the denomination is present.
func (c Coin) Validate() error {
	if c.Denom == "" {
		return fmt.Errorf("coin denom is required")
	}
	return nil
}

// String renders the coin as "<amount><denom>".
func (c Coin) String() string {
	return fmt.Sprintf("%d%s", c.Amount, c.Denom)
}

// CoinsAmountOf returns the total amount of denom across coins.
func CoinsAmountOf(coins []Coin, denom string) uint64 {
	var total uint64
	for _, coin := range coins {
		if coin.Denom == denom {
			total += coin.Amount
		}
	}
	return total
}
