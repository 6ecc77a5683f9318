package ledger

import "context"

// Env is what the hosting environment provides to a single invocation.
type Env interface {
	// Caller is the authenticated account making the call.
	Caller() AccountID
	// AttachedValue is the value delivered with the call, already in custody.
	AttachedValue() Amount
	// Transfer pays amount out to the given account.
	Transfer(ctx context.Context, to AccountID, amount Amount) error
	// EmitEvent records a notification. The host decides when it becomes visible.
	EmitEvent(e Event)
}

// Balances is the account balance mapping as seen by one invocation. The
// bool result of Balance is false when the account has no entry at all.
type Balances interface {
	Balance(ctx context.Context, id AccountID) (Amount, bool, error)
	SetBalance(ctx context.Context, id AccountID, amount Amount) error
}
