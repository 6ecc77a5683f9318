package ledger

import "time"

// EventKind names a notification emitted by the ledger.
type EventKind string

const (
	EventDeposited EventKind = "Deposited"
	EventWithdrawn EventKind = "Withdrawn"
)

// Event is a notification about a single committed operation. Amount is the
// value moved by that operation, never the resulting balance.
type Event interface {
	Kind() EventKind
	Account() AccountID
	Amount() Amount
}

// Deposited is emitted when From credits Balance to its account.
type Deposited struct {
	From    AccountID `json:"from"`
	Balance Amount    `json:"balance"`
}

func (e Deposited) Kind() EventKind    { return EventDeposited }
func (e Deposited) Account() AccountID { return e.From }
func (e Deposited) Amount() Amount     { return e.Balance }

// Withdrawn is emitted when Balance has been debited and transferred to To.
type Withdrawn struct {
	To      AccountID `json:"to"`
	Balance Amount    `json:"balance"`
}

func (e Withdrawn) Kind() EventKind    { return EventWithdrawn }
func (e Withdrawn) Account() AccountID { return e.To }
func (e Withdrawn) Amount() Amount     { return e.Balance }

// NewEvent rebuilds an event from its stored parts.
func NewEvent(kind EventKind, account AccountID, amount Amount) (Event, bool) {
	switch kind {
	case EventDeposited:
		return Deposited{From: account, Balance: amount}, true
	case EventWithdrawn:
		return Withdrawn{To: account, Balance: amount}, true
	default:
		return nil, false
	}
}

// EventRecord is an event as persisted in the event log.
type EventRecord struct {
	ID        string    `json:"id"`
	Kind      EventKind `json:"kind"`
	Account   AccountID `json:"account"`
	Amount    Amount    `json:"amount"`
	CreatedAt time.Time `json:"created_at"`
}

// Event returns the notification the record was written for.
func (r EventRecord) Event() (Event, bool) {
	return NewEvent(r.Kind, r.Account, r.Amount)
}
