package db

import (
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"
)

// NumericToDecimal converts a scanned pgtype.Numeric into a decimal.
// Invalid (NULL) numerics convert to zero.
func NumericToDecimal(n pgtype.Numeric) decimal.Decimal {
	if !n.Valid || n.Int == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(n.Int, n.Exp)
}

// DecimalParam prepares a decimal for use as a numeric query parameter.
// pgx encodes the string using the statement's parameter description.
func DecimalParam(d decimal.Decimal) string {
	return d.String()
}
