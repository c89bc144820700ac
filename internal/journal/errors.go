package journal

import "errors"

// Ошибки нормализации и агрегации
var (
	ErrMissingSymbol    = errors.New("symbol is required")
	ErrSymbolTooLong    = errors.New("symbol is too long")
	ErrUnknownDirection = errors.New("direction must be long or short")
	ErrMissingEntryTime = errors.New("entry_time is required")
	ErrUnknownMetric    = errors.New("unknown sparkline metric")
	ErrMalformedRecord  = errors.New("malformed trade record")
)
