package domain

import "fmt"

type Account struct {
	ID         int64
	ExternalID string
	Name       string
	Broker     string
	Currency   string
	Type       string
}

// PlaceholderAccountName is used when a commit meets an account that was
// never registered.
func PlaceholderAccountName(externalID string) string {
	return fmt.Sprintf("New Account %s", externalID)
}

type Instrument struct {
	ID         int64
	ISIN       string
	Symbol     string
	Name       string
	Type       string
	Currency   string
	Sector     string
	Region     string
	Country    string
	AssetClass string
}

// Label is the most readable identifier available.
func (i Instrument) Label() string {
	if i.Symbol != "" {
		return i.Symbol
	}
	return i.ISIN
}
