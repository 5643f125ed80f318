package types

// ErrorKind classifies a failure so the boundary layer can map it to a
// transport status without inspecting individual codes.
type ErrorKind string

const (
	KindNotFound     ErrorKind = "NOT_FOUND"
	KindBusinessRule ErrorKind = "BUSINESS_RULE"
	KindConflict     ErrorKind = "CONFLICT"
	KindUnavailable  ErrorKind = "UNAVAILABLE"
)

// Error is a typed domain failure with a stable reason code. The engine
// and valuation service return these for every expected failure; generic
// errors only escape for genuinely unexpected conditions.
type Error struct {
	Kind    ErrorKind `json:"kind"`
	Code    string    `json:"code"`
	Message string    `json:"message"`
}

func (e *Error) Error() string {
	return e.Message
}

// Retryable reports whether the caller may retry the whole operation.
// Only concurrency conflicts and store outages are retryable; business
// rule violations and lookups that missed will fail the same way again.
func (e *Error) Retryable() bool {
	return e.Kind == KindConflict || e.Kind == KindUnavailable
}

var (
	ErrUserNotFound  = &Error{Kind: KindNotFound, Code: "USER_NOT_FOUND", Message: "user not found"}
	ErrStockNotFound = &Error{Kind: KindNotFound, Code: "STOCK_NOT_FOUND", Message: "stock not found"}
	ErrOrderNotFound = &Error{Kind: KindNotFound, Code: "ORDER_NOT_FOUND", Message: "order not found"}

	ErrInvalidQuantity    = &Error{Kind: KindBusinessRule, Code: "INVALID_QUANTITY", Message: "quantity must be a positive integer"}
	ErrInvalidPrice       = &Error{Kind: KindBusinessRule, Code: "INVALID_PRICE", Message: "price must not be negative"}
	ErrInsufficientFunds  = &Error{Kind: KindBusinessRule, Code: "INSUFFICIENT_FUNDS", Message: "insufficient funds"}
	ErrInsufficientShares = &Error{Kind: KindBusinessRule, Code: "INSUFFICIENT_SHARES", Message: "insufficient shares"}

	ErrConcurrencyConflict = &Error{Kind: KindConflict, Code: "CONCURRENCY_CONFLICT", Message: "operation conflicted with a concurrent update, retry"}

	ErrStoreUnavailable = &Error{Kind: KindUnavailable, Code: "STORE_UNAVAILABLE", Message: "storage temporarily unavailable"}
)
