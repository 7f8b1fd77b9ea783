package engine

import (
	"fmt"
	"sort"
	"strings"
)

// InitializationError records the symbols whose first load failed.
// The engine still becomes active and serves fallback data.
type InitializationError struct {
	Failed map[string]error
}

func (e *InitializationError) Error() string {
	symbols := make([]string, 0, len(e.Failed))
	for sym := range e.Failed {
		symbols = append(symbols, sym)
	}
	sort.Strings(symbols)

	parts := make([]string, 0, len(symbols))
	for _, sym := range symbols {
		parts = append(parts, fmt.Sprintf("%s: %v", sym, e.Failed[sym]))
	}
	return "initial load failed for " + strings.Join(parts, "; ")
}
