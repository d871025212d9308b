package domain_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/retailops/internal/domain"
)

func TestReplacementCart_AddCapsByStock(t *testing.T) {
	var cart domain.ReplacementCart

	line := domain.ReplacementLine{ProductID: "p-9", BatchID: "b-9", UnitPrice: 800, AvailableStock: 2}
	require.True(t, cart.Add(line))
	require.True(t, cart.Add(line))
	require.False(t, cart.Add(line), "third unit exceeds stock")

	lines := cart.Lines()
	require.Len(t, lines, 1)
	require.Equal(t, 2, lines[0].Quantity)
	require.InDelta(t, 1600, lines[0].Amount(), 1e-9)
}

func TestReplacementCart_OutOfStock(t *testing.T) {
	var cart domain.ReplacementCart
	require.False(t, cart.Add(domain.ReplacementLine{ProductID: "p-1", AvailableStock: 0}))
	require.False(t, cart.Add(domain.ReplacementLine{ProductID: "p-1", Quantity: 3, AvailableStock: 2}))
	require.Empty(t, cart.Lines())
}

func TestReplacementCart_SetQuantityAndRemove(t *testing.T) {
	var cart domain.ReplacementCart
	require.True(t, cart.Add(domain.ReplacementLine{ProductID: "p-1", BatchID: "b-1", AvailableStock: 5}))
	require.True(t, cart.Add(domain.ReplacementLine{ProductID: "p-2", BatchID: "b-2", AvailableStock: 1}))

	require.True(t, cart.SetQuantity("p-1", "b-1", 5))
	require.False(t, cart.SetQuantity("p-1", "b-1", 6))
	require.False(t, cart.SetQuantity("p-1", "b-1", 0))
	require.False(t, cart.SetQuantity("p-3", "b-3", 1))

	require.True(t, cart.Remove("p-2", "b-2"))
	require.False(t, cart.Remove("p-2", "b-2"))

	lines := cart.Lines()
	require.Len(t, lines, 1)
	require.Equal(t, 5, lines[0].Quantity)
}

func TestValidateReplacementLines(t *testing.T) {
	errs := domain.ValidateReplacementLines([]domain.ReplacementLine{
		{ProductID: "ok", Quantity: 1, AvailableStock: 1},
		{ProductID: "over", Quantity: 3, AvailableStock: 2},
		{ProductID: "zero", Quantity: 0, AvailableStock: 2},
	})
	require.Len(t, errs, 2)
	for _, err := range errs {
		require.ErrorIs(t, err, domain.ErrReplacementQtyInvalid)
	}
}

func TestMergeReplacementLines(t *testing.T) {
	merged := domain.MergeReplacementLines([]domain.ReplacementLine{
		{ProductID: "p-1", BatchID: "b-1", Quantity: 1, UnitPrice: 100, AvailableStock: 3},
		{ProductID: "p-2", BatchID: "b-2", Quantity: 2, UnitPrice: 50, AvailableStock: 2},
		{ProductID: "p-1", BatchID: "b-1", Quantity: 2, UnitPrice: 100, AvailableStock: 3},
	})
	require.Len(t, merged, 2)
	require.Equal(t, "p-1", merged[0].ProductID)
	require.Equal(t, 3, merged[0].Quantity)
	require.Empty(t, domain.ValidateReplacementLines(merged))

	require.Nil(t, domain.MergeReplacementLines(nil))
}

func TestMergeReplacementLines_OverflowRejected(t *testing.T) {
	merged := domain.MergeReplacementLines([]domain.ReplacementLine{
		{ProductID: "p-1", BatchID: "b-1", Quantity: 3, UnitPrice: 100, AvailableStock: 5},
		{ProductID: "p-1", BatchID: "b-1", Quantity: 3, UnitPrice: 100, AvailableStock: 5},
		{ProductID: "p-3", Quantity: 0, UnitPrice: 10, AvailableStock: 5},
	})
	require.Len(t, merged, 3)
	require.Equal(t, 6, merged[1].Quantity, "overflowing line carries the combined quantity")

	errs := domain.ValidateReplacementLines(merged)
	require.Len(t, errs, 2)
	for _, err := range errs {
		require.ErrorIs(t, err, domain.ErrReplacementQtyInvalid)
	}
}

func TestValidateReplacementLines_NegativePrice(t *testing.T) {
	errs := domain.ValidateReplacementLines([]domain.ReplacementLine{
		{ProductID: "p-1", Quantity: 1, UnitPrice: -5, AvailableStock: 1},
	})
	require.Len(t, errs, 1)
	require.ErrorIs(t, errs[0], domain.ErrReplacementPriceInvalid)
	require.NotErrorIs(t, errs[0], domain.ErrReplacementQtyInvalid)
}
