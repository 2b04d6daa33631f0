package docstore

import "github.com/kartikbazzad/bunbase/docstore/internal/util"

// Errors callers can match with errors.Is.
var (
	ErrUnsupportedOperation = util.ErrUnsupportedOperation
	ErrInvalidIndexSpec     = util.ErrInvalidIndexSpec
	ErrSubExpressionIndex   = util.ErrSubExpressionIndex
	ErrTreeInvariant        = util.ErrTreeInvariant
	ErrInvalidQuery         = util.ErrInvalidQuery
	ErrInvalidOperand       = util.ErrInvalidOperand
	ErrInvalidRef           = util.ErrInvalidRef
	ErrSchemaViolation      = util.ErrSchemaViolation
	ErrCollectionNotFound   = util.ErrCollectionNotFound
	ErrDocumentNotFound     = util.ErrDocumentNotFound
	ErrEngineNotFound       = util.ErrEngineNotFound
	ErrDatabaseClosed       = util.ErrDatabaseClosed
	ErrDataCorrupt          = util.ErrDataCorrupt
)
