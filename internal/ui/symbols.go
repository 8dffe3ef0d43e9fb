package ui

// Status symbols.
const (
	SymbolSuccess     = "✓" // reading ok
	SymbolFail        = "✗"
	SymbolWarning     = "⚠" // warning threshold asserted
	SymbolCritical    = "‼" // critical threshold asserted
	SymbolUnavailable = "○"
)
