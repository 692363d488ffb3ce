package matching

import (
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/finbase/exchange-core/internal/storage"
	"github.com/finbase/exchange-core/internal/types"
)

// Action is a book maintenance operation
type Action string

const (
	ActionAdd              Action = "add"
	ActionRemove           Action = "remove"
	ActionUpdateAfterMatch Action = "update_after_match"
)

// RemoveReason tags why an order left the book
type RemoveReason string

const (
	ReasonCancelled          RemoveReason = "cancelled"
	ReasonFilled             RemoveReason = "filled"
	ReasonPartialFillRequeue RemoveReason = "partial_fill_requeue"
)

// ApplyResult is the structured outcome of a book maintenance call. The
// book is a rebuildable projection, so failures are reported here instead
// of propagated as errors.
type ApplyResult struct {
	OK     bool
	Reason string
}

// Maintainer applies order lifecycle events to the per-pair book
// projections. Partially filled orders are removed and reinserted because
// entries are immutable per insert; their creation time keeps their queue
// position.
type Maintainer struct {
	books  *Books
	orders storage.OrderStore
	logger *zap.Logger
}

// NewMaintainer creates a book maintainer over the registry and order store
func NewMaintainer(books *Books, orders storage.OrderStore, logger *zap.Logger) *Maintainer {
	return &Maintainer{books: books, orders: orders, logger: logger}
}

// Apply performs one maintenance action. For ActionUpdateAfterMatch the
// batch lists the trades whose orders must be refreshed; for the other
// actions it is ignored.
func (m *Maintainer) Apply(orderID uuid.UUID, action Action, batch []*types.Trade) ApplyResult {
	var err error
	switch action {
	case ActionAdd:
		err = m.add(orderID)
	case ActionRemove:
		err = m.remove(orderID, ReasonCancelled)
	case ActionUpdateAfterMatch:
		err = m.updateAfterMatch(batch)
	default:
		err = fmt.Errorf("unknown book action %q", action)
	}

	if err != nil {
		m.logger.Error("book update failed",
			zap.String("order_id", orderID.String()),
			zap.String("action", string(action)),
			zap.Error(err))
		return ApplyResult{OK: false, Reason: err.Error()}
	}
	return ApplyResult{OK: true}
}

func (m *Maintainer) add(orderID uuid.UUID) error {
	order, err := m.orders.Get(orderID)
	if err != nil {
		return err
	}
	m.books.Get(order.Pair).Add(order)
	return nil
}

func (m *Maintainer) remove(orderID uuid.UUID, reason RemoveReason) error {
	order, err := m.orders.Get(orderID)
	if err != nil {
		return err
	}
	removed := m.books.Get(order.Pair).Remove(orderID)
	m.logger.Debug("order removed from book",
		zap.String("order_id", orderID.String()),
		zap.String("reason", string(reason)),
		zap.Bool("was_resting", removed))
	return nil
}

// updateAfterMatch refreshes every order a match batch touched: filled
// orders leave the book, partially filled ones are reinserted with their
// new remaining amount. The batch's last price becomes the book's last
// traded price.
func (m *Maintainer) updateAfterMatch(batch []*types.Trade) error {
	if len(batch) == 0 {
		return nil
	}

	touched := make(map[uuid.UUID]struct{}, len(batch)*2)
	for _, trade := range batch {
		touched[trade.BuyOrderID] = struct{}{}
		touched[trade.SellOrderID] = struct{}{}
	}

	var firstErr error
	for id := range touched {
		order, err := m.orders.Get(id)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		book := m.books.Get(order.Pair)
		book.Remove(order.ID)
		if order.Remaining.IsPositive() && order.Matchable() {
			book.Add(order)
		}
	}

	last := batch[len(batch)-1]
	m.books.Get(last.Pair).SetLastPrice(last.Price)

	return firstErr
}
