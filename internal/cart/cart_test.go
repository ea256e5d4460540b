package cart

import (
	"fmt"
	"testing"

	"github.com/safar/farmstand/internal/apperr"
	"github.com/safar/farmstand/internal/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	n := 0
	newGroupID = func() string {
		n++
		return fmt.Sprintf("group-%d", n)
	}
}

func product(id, farmerID int64, price string) models.Product {
	return models.Product{
		ID:          id,
		FarmerID:    farmerID,
		Name:        fmt.Sprintf("product-%d", id),
		Price:       decimal.RequireFromString(price),
		Stock:       100,
		IsAvailable: true,
	}
}

func assertTotalsConsistent(t *testing.T, c *models.Cart) {
	t.Helper()
	total := decimal.Zero
	for _, g := range c.Groups {
		sub := decimal.Zero
		for _, l := range g.Lines {
			assert.True(t, l.Subtotal.Equal(l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))),
				"line %d subtotal %s", l.ProductID, l.Subtotal)
			sub = sub.Add(l.Subtotal)
		}
		assert.True(t, g.Subtotal.Equal(sub), "group %s subtotal %s != %s", g.ID, g.Subtotal, sub)
		total = total.Add(g.Subtotal)
	}
	assert.True(t, c.TotalAmount.Equal(total), "cart total %s != %s", c.TotalAmount, total)
}

func TestAddLineGroupsByFarmer(t *testing.T) {
	c := &models.Cart{}
	x, y := int64(10), int64(20)

	require.NoError(t, AddLine(c, product(1, x, "5.00"), 2))
	require.NoError(t, AddLine(c, product(2, y, "10.00"), 1))

	require.Len(t, c.Groups, 2)
	assert.True(t, c.TotalAmount.Equal(decimal.RequireFromString("20.00")))

	totals := FarmerTotals(c)
	require.Len(t, totals, 2)
	assert.Equal(t, x, totals[0].FarmerID)
	assert.True(t, totals[0].TotalAmount.Equal(decimal.RequireFromString("10.00")))
	assert.Equal(t, 2, totals[0].ItemCount)
	assert.Equal(t, y, totals[1].FarmerID)
	assert.True(t, totals[1].TotalAmount.Equal(decimal.RequireFromString("10.00")))
	assert.Equal(t, 1, totals[1].ItemCount)
	assertTotalsConsistent(t, c)
}

func TestAddLineSameProductIncrementsAndRefreshesPrice(t *testing.T) {
	c := &models.Cart{}
	require.NoError(t, AddLine(c, product(1, 10, "5.00"), 2))
	require.NoError(t, AddLine(c, product(1, 10, "6.50"), 3))

	require.Len(t, c.Groups, 1)
	require.Len(t, c.Groups[0].Lines, 1)
	line := c.Groups[0].Lines[0]
	assert.Equal(t, 5, line.Quantity)
	assert.True(t, line.UnitPrice.Equal(decimal.RequireFromString("6.50")))
	assert.True(t, c.TotalAmount.Equal(decimal.RequireFromString("32.50")))
	assertTotalsConsistent(t, c)
}

func TestAddLineSameFarmerNewProductJoinsGroup(t *testing.T) {
	c := &models.Cart{}
	require.NoError(t, AddLine(c, product(1, 10, "1.25"), 1))
	require.NoError(t, AddLine(c, product(2, 10, "2.75"), 2))

	require.Len(t, c.Groups, 1)
	assert.Len(t, c.Groups[0].Lines, 2)
	assert.True(t, c.Groups[0].Subtotal.Equal(decimal.RequireFromString("6.75")))
	assertTotalsConsistent(t, c)
}

func TestAddLineRejectsNonPositiveQuantity(t *testing.T) {
	c := &models.Cart{}
	err := AddLine(c, product(1, 10, "5.00"), 0)

	assert.True(t, apperr.Is(err, apperr.KindValidation))
	assert.True(t, c.IsEmpty())
}

func TestUpdateLineQuantity(t *testing.T) {
	c := &models.Cart{}
	require.NoError(t, AddLine(c, product(1, 10, "5.00"), 2))
	groupID := c.Groups[0].ID

	require.NoError(t, UpdateLineQuantity(c, groupID, 1, 7))
	assert.Equal(t, 7, c.Groups[0].Lines[0].Quantity)
	assert.True(t, c.TotalAmount.Equal(decimal.RequireFromString("35.00")))
	assertTotalsConsistent(t, c)

	err := UpdateLineQuantity(c, "missing", 1, 3)
	assert.True(t, apperr.Is(err, apperr.KindNotFound))

	err = UpdateLineQuantity(c, groupID, 99, 3)
	assert.True(t, apperr.Is(err, apperr.KindNotFound))

	err = UpdateLineQuantity(c, groupID, 1, 0)
	assert.True(t, apperr.Is(err, apperr.KindValidation))
}

func TestRemoveLinePartial(t *testing.T) {
	c := &models.Cart{}
	require.NoError(t, AddLine(c, product(1, 10, "5.00"), 4))
	groupID := c.Groups[0].ID

	require.NoError(t, RemoveLine(c, groupID, 1, 3))
	require.Len(t, c.Groups, 1)
	assert.Equal(t, 1, c.Groups[0].Lines[0].Quantity)
	assert.True(t, c.TotalAmount.Equal(decimal.RequireFromString("5.00")))
	assertTotalsConsistent(t, c)
}

func TestRemoveLineWholeDropsEmptyGroup(t *testing.T) {
	c := &models.Cart{}
	require.NoError(t, AddLine(c, product(1, 10, "5.00"), 2))
	require.NoError(t, AddLine(c, product(2, 20, "10.00"), 1))
	groupX := c.Groups[0].ID

	// quantity equal to the current amount removes the line entirely
	require.NoError(t, RemoveLine(c, groupX, 1, 2))

	require.Len(t, c.Groups, 1)
	assert.Equal(t, int64(20), c.Groups[0].FarmerID)
	assert.True(t, c.TotalAmount.Equal(decimal.RequireFromString("10.00")))
	assertTotalsConsistent(t, c)
}

func TestRemoveLineWithoutQuantityRemovesLine(t *testing.T) {
	c := &models.Cart{}
	require.NoError(t, AddLine(c, product(1, 10, "5.00"), 2))
	require.NoError(t, AddLine(c, product(2, 10, "3.00"), 1))
	groupID := c.Groups[0].ID

	require.NoError(t, RemoveLine(c, groupID, 1, 0))

	require.Len(t, c.Groups, 1)
	require.Len(t, c.Groups[0].Lines, 1)
	assert.Equal(t, int64(2), c.Groups[0].Lines[0].ProductID)
	assertTotalsConsistent(t, c)
}

func TestClearKeepsCartIdentity(t *testing.T) {
	c := &models.Cart{ID: 42, Status: models.CartStatusActive}
	require.NoError(t, AddLine(c, product(1, 10, "5.00"), 2))

	Clear(c)

	assert.Equal(t, int64(42), c.ID)
	assert.Equal(t, models.CartStatusActive, c.Status)
	assert.True(t, c.IsEmpty())
	assert.True(t, c.TotalAmount.IsZero())
	assert.Empty(t, FarmerTotals(c))
}

func TestRecomputeTotalsOverridesStaleValues(t *testing.T) {
	c := &models.Cart{
		Groups: []models.CartLineGroup{{
			ID:       "g",
			FarmerID: 1,
			Subtotal: decimal.NewFromInt(999),
			Lines: []models.CartProductLine{
				{ProductID: 1, Quantity: 3, UnitPrice: decimal.RequireFromString("0.10"), Subtotal: decimal.NewFromInt(1)},
			},
		}},
		TotalAmount: decimal.NewFromInt(12345),
	}

	RecomputeTotals(c)

	assert.True(t, c.TotalAmount.Equal(decimal.RequireFromString("0.30")))
	assertTotalsConsistent(t, c)
}
