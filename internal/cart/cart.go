package cart

import (
	"net/url"
	"slices"
	"strconv"
	"strings"

	"github.com/gofrs/uuid"
)

const (
	MinQuantity = 1
	MaxQuantity = 100

	updateFieldPrefix = "qty_"
)

// Cart maps product id to quantity. Quantities stored in a Cart are always in
// [MinQuantity, MaxQuantity]; a zero quantity removes the entry instead.
type Cart map[int64]int

// ProductIDs returns the ids in ascending order.
func (c Cart) ProductIDs() []int64 {
	ids := make([]int64, 0, len(c))
	for id := range c {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

func (c Cart) Count() int {
	n := 0
	for _, qty := range c {
		n += qty
	}
	return n
}

// Context is the explicit handle on the current visitor's cart. It is passed
// into every cart and checkout operation instead of reaching into a global
// request session.
type Context struct {
	UserID uuid.UUID
	Items  Cart
}

func NewContext(userID uuid.UUID, items Cart) *Context {
	if items == nil {
		items = Cart{}
	}
	return &Context{UserID: userID, Items: items}
}

func (c *Context) Authenticated() bool {
	return c.UserID != uuid.Nil
}

func clamp(v, lo, hi int) int {
	return max(lo, min(v, hi))
}

// capToStock limits qty to the available stock but never below one unit.
func capToStock(qty, stock int) int {
	return min(qty, max(1, stock))
}

// ParseQuantity parses a form quantity, falling back to 1 when the value is
// not an integer.
func ParseQuantity(raw string) int {
	qty, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 1
	}
	return qty
}

// ParseUpdateForm collects qty_{product_id} fields. Keys without the prefix or
// with a non-numeric product id are ignored.
func ParseUpdateForm(form url.Values) map[int64]int {
	updates := make(map[int64]int)
	for key, values := range form {
		if !strings.HasPrefix(key, updateFieldPrefix) || len(values) == 0 {
			continue
		}
		productID, err := strconv.ParseInt(strings.TrimPrefix(key, updateFieldPrefix), 10, 64)
		if err != nil {
			continue
		}
		updates[productID] = ParseQuantity(values[0])
	}
	return updates
}
