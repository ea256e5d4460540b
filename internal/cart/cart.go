// Package cart groups a consumer's cart lines by farmer and keeps every
// subtotal derived from quantity and unit price.
package cart

import (
	"github.com/google/uuid"
	"github.com/safar/farmstand/internal/apperr"
	"github.com/safar/farmstand/internal/models"
	"github.com/shopspring/decimal"
)

var newGroupID = uuid.NewString

// RecomputeTotals derives line, group and cart totals from quantities and
// unit prices. Every mutation in this package ends with it.
func RecomputeTotals(c *models.Cart) {
	total := decimal.Zero
	for gi := range c.Groups {
		group := &c.Groups[gi]
		subtotal := decimal.Zero
		for li := range group.Lines {
			line := &group.Lines[li]
			line.Subtotal = line.UnitPrice.Mul(decimal.NewFromInt(int64(line.Quantity)))
			subtotal = subtotal.Add(line.Subtotal)
		}
		group.Subtotal = subtotal
		total = total.Add(subtotal)
	}
	c.TotalAmount = total
}

// AddLine adds quantity units of p to the farmer's group, refreshing the
// unit price when the product is already in the cart.
func AddLine(c *models.Cart, p models.Product, quantity int) error {
	if quantity < 1 {
		return apperr.Validation("quantity must be at least 1")
	}

	group := findGroupByFarmer(c, p.FarmerID)
	if group == nil {
		c.Groups = append(c.Groups, models.CartLineGroup{
			ID:       newGroupID(),
			FarmerID: p.FarmerID,
		})
		group = &c.Groups[len(c.Groups)-1]
	}

	if line := findLine(group, p.ID); line != nil {
		line.Quantity += quantity
		line.UnitPrice = p.Price
		line.ProductName = p.Name
	} else {
		group.Lines = append(group.Lines, models.CartProductLine{
			ProductID:   p.ID,
			ProductName: p.Name,
			Quantity:    quantity,
			UnitPrice:   p.Price,
		})
	}

	RecomputeTotals(c)
	return nil
}

func UpdateLineQuantity(c *models.Cart, groupID string, productID int64, quantity int) error {
	if quantity < 1 {
		return apperr.Validation("quantity must be at least 1")
	}

	_, line, err := locate(c, groupID, productID)
	if err != nil {
		return err
	}

	line.Quantity = quantity
	RecomputeTotals(c)
	return nil
}

// RemoveLine decrements the line by quantity when quantity is positive and
// below the current amount; otherwise the line is dropped. A group left
// without lines is removed from the cart.
func RemoveLine(c *models.Cart, groupID string, productID int64, quantity int) error {
	if quantity < 0 {
		return apperr.Validation("quantity to remove cannot be negative")
	}

	group, line, err := locate(c, groupID, productID)
	if err != nil {
		return err
	}

	if quantity > 0 && quantity < line.Quantity {
		line.Quantity -= quantity
	} else {
		group.Lines = removeProduct(group.Lines, productID)
		if len(group.Lines) == 0 {
			c.Groups = removeGroup(c.Groups, groupID)
		}
	}

	RecomputeTotals(c)
	return nil
}

func Clear(c *models.Cart) {
	c.Groups = []models.CartLineGroup{}
	RecomputeTotals(c)
}

// FarmerTotals projects the cart into one total per farmer, in group order.
func FarmerTotals(c *models.Cart) []models.FarmerTotal {
	totals := make([]models.FarmerTotal, 0, len(c.Groups))
	for _, group := range c.Groups {
		count := 0
		for _, line := range group.Lines {
			count += line.Quantity
		}
		totals = append(totals, models.FarmerTotal{
			FarmerID:    group.FarmerID,
			TotalAmount: group.Subtotal,
			ItemCount:   count,
		})
	}
	return totals
}

func locate(c *models.Cart, groupID string, productID int64) (*models.CartLineGroup, *models.CartProductLine, error) {
	for gi := range c.Groups {
		if c.Groups[gi].ID != groupID {
			continue
		}
		group := &c.Groups[gi]
		line := findLine(group, productID)
		if line == nil {
			return nil, nil, apperr.NotFound("product %d not found in cart item", productID)
		}
		return group, line, nil
	}
	return nil, nil, apperr.NotFound("cart item %s not found", groupID)
}

func findGroupByFarmer(c *models.Cart, farmerID int64) *models.CartLineGroup {
	for i := range c.Groups {
		if c.Groups[i].FarmerID == farmerID {
			return &c.Groups[i]
		}
	}
	return nil
}

func findLine(g *models.CartLineGroup, productID int64) *models.CartProductLine {
	for i := range g.Lines {
		if g.Lines[i].ProductID == productID {
			return &g.Lines[i]
		}
	}
	return nil
}

func removeProduct(lines []models.CartProductLine, productID int64) []models.CartProductLine {
	kept := lines[:0]
	for _, l := range lines {
		if l.ProductID != productID {
			kept = append(kept, l)
		}
	}
	return kept
}

func removeGroup(groups []models.CartLineGroup, groupID string) []models.CartLineGroup {
	kept := groups[:0]
	for _, g := range groups {
		if g.ID != groupID {
			kept = append(kept, g)
		}
	}
	return kept
}
