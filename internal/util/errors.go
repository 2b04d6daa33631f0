package util

import "errors"

// Common errors used throughout docstore
var (
	// Index errors
	ErrUnsupportedOperation = errors.New("unsupported operation")
	ErrInvalidIndexSpec     = errors.New("invalid index specification")
	ErrSubExpressionIndex   = errors.New("sub-expression cannot be resolved through an index")

	// Tree errors
	ErrTreeInvariant = errors.New("tree invariant violated")

	// Query errors
	ErrInvalidQuery   = errors.New("invalid query")
	ErrInvalidOperand = errors.New("invalid operand")

	// Document errors
	ErrInvalidRef      = errors.New("invalid reference")
	ErrSchemaViolation = errors.New("document violates collection schema")

	// Database errors
	ErrCollectionNotFound = errors.New("collection not found")
	ErrDocumentNotFound   = errors.New("document not found")
	ErrEngineNotFound     = errors.New("storage engine not registered")
	ErrDatabaseClosed     = errors.New("database is closed")

	// Storage errors
	ErrDataCorrupt = errors.New("stored data is corrupt")
)
