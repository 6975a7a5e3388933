package order

import "fmt"

// StockPolicy decides what checkout does when a line asks for more units than
// are left.
type StockPolicy string

const (
	// StockStrict rejects the whole checkout.
	StockStrict StockPolicy = "strict"
	// StockLenient sells anyway and floors stock at zero.
	StockLenient StockPolicy = "lenient"
)

func (p StockPolicy) Valid() bool {
	return p == StockStrict || p == StockLenient
}

// CommitStock returns the stock left after selling quantity units. Both
// storage backends run it under their row or transaction lock.
func CommitStock(productID int64, stock, quantity int, policy StockPolicy) (int, error) {
	if quantity > stock && policy != StockLenient {
		return stock, fmt.Errorf("%w: product %d has %d left, %d requested", ErrInsufficientStock, productID, stock, quantity)
	}
	return max(0, stock-quantity), nil
}
