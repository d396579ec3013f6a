package domain

import (
	"strings"

	"github.com/Rhymond/go-money"
)

// IsCurrencyCode reports whether code is a known ISO 4217 code.
func IsCurrencyCode(code string) bool {
	if len(code) != 3 || code != strings.ToUpper(code) {
		return false
	}
	return money.GetCurrency(code) != nil
}
