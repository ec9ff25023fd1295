package checkout

// State is the last step a checkout reached.
type State int

const (
	StateStarted State = iota
	StateLinesValidated
	StatePriced
	StateOrderPersisted
	StateStockAdjusted
	StateCartCleared
	StateCompleted
)

func (s State) String() string {
	switch s {
	case StateStarted:
		return "started"
	case StateLinesValidated:
		return "lines_validated"
	case StatePriced:
		return "priced"
	case StateOrderPersisted:
		return "order_persisted"
	case StateStockAdjusted:
		return "stock_adjusted"
	case StateCartCleared:
		return "cart_cleared"
	case StateCompleted:
		return "completed"
	default:
		return "unknown"
	}
}
