package port

import (
	"context"

	"pyrock/internal/domain"
)

// SymbolSource finds definitions of a symbol in the user's project. It stands
// in for the editor's own symbol index.
type SymbolSource interface {
	Locations(ctx context.Context, symbol string) ([]domain.SymbolLocation, error)
}
