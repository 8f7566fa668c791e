package model

import (
	"time"
)

// Symbol represents a tradable market symbol
type Symbol struct {
	ID        int        `json:"id" db:"id"`
	Symbol    string     `json:"symbol" db:"symbol"`
	Name      string     `json:"name" db:"name"`
	Currency  string     `json:"currency" db:"currency"`
	Exchange  string     `json:"exchange" db:"exchange"`
	ISIN      *string    `json:"isin,omitempty" db:"isin"`
	CreatedAt time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt *time.Time `json:"updated_at,omitempty" db:"updated_at"`
}

// SymbolUpdate enumerates the mutable symbol attributes accepted by
// partial updates. Nil fields are left untouched.
type SymbolUpdate struct {
	Name     *string `json:"name,omitempty"`
	Currency *string `json:"currency,omitempty"`
	Exchange *string `json:"exchange,omitempty"`
	ISIN     *string `json:"isin,omitempty"`
}

// Empty reports whether the update carries no fields.
func (u SymbolUpdate) Empty() bool {
	return u.Name == nil && u.Currency == nil && u.Exchange == nil && u.ISIN == nil
}
