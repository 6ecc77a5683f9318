package ledger

import "errors"

var (
	ErrAccountWithoutBalance                         = errors.New("account without balance")
	ErrInsufficientFunds                             = errors.New("insufficient funds")
	ErrExpectedWithdrawalAmountExceedsAccountBalance = errors.New("expected withdrawal amount exceeds account balance")
	ErrWithdrawTransferFailed                        = errors.New("withdraw transfer failed")

	ErrInvalidAccountID = errors.New("invalid account id")
	ErrInvalidAmount    = errors.New("invalid amount")
	ErrAmountTooLarge   = errors.New("amount exceeds maximum")
)

// Kind is the stable name of an error condition as seen by API clients.
type Kind string

const (
	KindAccountWithoutBalance                         Kind = "AccountWithoutBalance"
	KindInsufficientFunds                             Kind = "InsufficientFunds"
	KindExpectedWithdrawalAmountExceedsAccountBalance Kind = "ExpectedWithdrawalAmountExceedsAccountBalance"
	KindWithdrawTransferFailed                        Kind = "WithdrawTransferFailed"
	KindInvalidRequest                                Kind = "InvalidRequest"
	KindRateLimited                                   Kind = "RateLimited"
	KindInternal                                      Kind = "Internal"
)

// KindOf classifies err. Unrecognised errors are KindInternal.
func KindOf(err error) Kind {
	switch {
	case errors.Is(err, ErrAccountWithoutBalance):
		return KindAccountWithoutBalance
	case errors.Is(err, ErrInsufficientFunds):
		return KindInsufficientFunds
	case errors.Is(err, ErrExpectedWithdrawalAmountExceedsAccountBalance):
		return KindExpectedWithdrawalAmountExceedsAccountBalance
	case errors.Is(err, ErrWithdrawTransferFailed):
		return KindWithdrawTransferFailed
	case errors.Is(err, ErrInvalidAccountID),
		errors.Is(err, ErrInvalidAmount),
		errors.Is(err, ErrAmountTooLarge):
		return KindInvalidRequest
	default:
		return KindInternal
	}
}

// ErrorForKind returns the sentinel for a domain kind, or nil for kinds that
// have none. Clients use it to turn a wire error back into something
// errors.Is can match.
func ErrorForKind(k Kind) error {
	switch k {
	case KindAccountWithoutBalance:
		return ErrAccountWithoutBalance
	case KindInsufficientFunds:
		return ErrInsufficientFunds
	case KindExpectedWithdrawalAmountExceedsAccountBalance:
		return ErrExpectedWithdrawalAmountExceedsAccountBalance
	case KindWithdrawTransferFailed:
		return ErrWithdrawTransferFailed
	default:
		return nil
	}
}
