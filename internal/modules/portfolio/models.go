// Package portfolio persists user-defined portfolios: a named list of asset
// symbols that optimization runs are launched against.
package portfolio

import "time"

// Portfolio is a named asset list.
type Portfolio struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Symbols   []string  `json:"symbols"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Validate checks portfolio invariants: non-empty name, at least one asset,
// no duplicate symbols.
func (p *Portfolio) Validate() error {
	if p.Name == "" {
		return ErrEmptyName
	}
	if len(p.Symbols) == 0 {
		return ErrNoAssets
	}
	seen := make(map[string]struct{}, len(p.Symbols))
	for _, s := range p.Symbols {
		if s == "" {
			return ErrEmptySymbol
		}
		if _, dup := seen[s]; dup {
			return ErrDuplicateSymbol
		}
		seen[s] = struct{}{}
	}
	return nil
}
