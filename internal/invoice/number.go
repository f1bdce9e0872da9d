package invoice

import (
	"fmt"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/google/uuid"
)

// NewInvoiceNumber builds an invoice number of the form
// INV-YYMMDD-<last6OfOrderID>-<rand4>. Uniqueness is probabilistic via
// the random suffix; regeneration always mints a new number.
func NewInvoiceNumber(orderID uuid.UUID, now time.Time) string {
	compact := strings.ReplaceAll(orderID.String(), "-", "")
	last6 := compact[len(compact)-6:]
	return fmt.Sprintf("INV-%s-%s-%04d", now.Format("060102"), last6, rand.IntN(10000))
}
