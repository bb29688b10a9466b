package abciapp

// Result codes returned on the ABCI connection. Zero admits the
// transaction; every failure class gets its own code so the engine's logs
// distinguish a malformed submission from a stale one.
const (
	CodeTypeOK uint32 = iota
	CodeTypeEncodingError
	CodeTypeUnauthorized
	CodeTypeInvalidTx
	CodeTypeStaleRound
	CodeTypeInternalError
	CodeTypeNotInitialized
)
