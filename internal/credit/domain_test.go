package credit

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/rotasales/rotasales/internal/shared"
)

func newCredit(amount string) *Credit {
	return &Credit{
		Amount:     decimal.RequireFromString(amount),
		AmountPaid: decimal.Zero,
	}
}

func TestApplyPaymentAccumulates(t *testing.T) {
	c := newCredit("50.00")

	applied, err := c.ApplyPayment(decimal.RequireFromString("20.00"))
	require.NoError(t, err)
	require.True(t, applied.Equal(decimal.RequireFromString("20.00")))
	require.False(t, c.IsPaid)
	require.True(t, c.RemainingAmount().Equal(decimal.RequireFromString("30.00")))

	applied, err = c.ApplyPayment(decimal.RequireFromString("30.00"))
	require.NoError(t, err)
	require.True(t, applied.Equal(decimal.RequireFromString("30.00")))
	require.True(t, c.IsPaid)
	require.True(t, c.AmountPaid.Equal(c.Amount))
}

func TestApplyPaymentClampsOverpay(t *testing.T) {
	c := newCredit("50.00")

	applied, err := c.ApplyPayment(decimal.RequireFromString("70.00"))
	require.NoError(t, err)
	require.True(t, applied.Equal(decimal.RequireFromString("50.00")), "applied %s", applied)
	require.True(t, c.IsPaid)
	require.True(t, c.AmountPaid.Equal(decimal.RequireFromString("50.00")))
	require.True(t, c.RemainingAmount().IsZero())
}

func TestApplyPaymentRejectsPaidCredit(t *testing.T) {
	c := newCredit("10.00")
	_, err := c.ApplyPayment(decimal.RequireFromString("10.00"))
	require.NoError(t, err)
	require.True(t, c.IsPaid)

	_, err = c.ApplyPayment(decimal.RequireFromString("1.00"))
	require.ErrorIs(t, err, shared.ErrInvalidState)
	require.True(t, c.AmountPaid.Equal(c.Amount))
}

func TestApplyPaymentRejectsNonPositiveAmount(t *testing.T) {
	c := newCredit("10.00")

	_, err := c.ApplyPayment(decimal.Zero)
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = c.ApplyPayment(decimal.RequireFromString("-5.00"))
	require.ErrorIs(t, err, shared.ErrValidation)
	require.True(t, c.AmountPaid.IsZero())
}

func TestAmountPaidNeverExceedsAmount(t *testing.T) {
	c := newCredit("33.33")
	for _, raw := range []string{"10.00", "10.00", "10.00", "10.00"} {
		if _, err := c.ApplyPayment(decimal.RequireFromString(raw)); err != nil {
			require.ErrorIs(t, err, shared.ErrInvalidState)
		}
		require.False(t, c.AmountPaid.GreaterThan(c.Amount))
		require.Equal(t, c.AmountPaid.Equal(c.Amount), c.IsPaid)
	}
	require.True(t, c.IsPaid)
}
