package order

import (
	"fmt"
	"math/rand/v2"
	"time"
)

const numberPrefix = "AF-"

// NumberGenerator returns a human-shareable order number for an order placed
// at now. Uniqueness is enforced by storage, not by the generator.
type NumberGenerator func(now time.Time) string

// GenerateNumber produces AF-YYYYMMDD-###### with the UTC date and six random
// digits.
func GenerateNumber(now time.Time) string {
	return fmt.Sprintf("%s%s-%06d", numberPrefix, now.UTC().Format("20060102"), rand.IntN(1_000_000))
}
