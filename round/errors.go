package round

import "errors"

var (
	// ErrTransactionNotValid rejects a payload at check time: the
	// transaction is out of policy and must not be ordered. Expected under
	// normal operation (late or duplicate submissions).
	ErrTransactionNotValid = errors.New("transaction not valid")

	// ErrInternal flags the same conditions detected at deliver time, after
	// the engine has already ordered the transaction. At that point the
	// condition is an integrity failure, not a user error: check should have
	// filtered it.
	ErrInternal = errors.New("internal error")
)
