package shared

import "github.com/shopspring/decimal"

func init() {
	// Monetary values go over the wire as JSON numbers, not strings.
	decimal.MarshalJSONWithoutQuotes = true
}

// MoneyScale is the number of fractional digits carried by every monetary
// amount. All arithmetic results are rounded to this scale before storage.
const MoneyScale = 2

// RoundMoney normalises an amount to the monetary scale.
func RoundMoney(d decimal.Decimal) decimal.Decimal {
	return d.Round(MoneyScale)
}
