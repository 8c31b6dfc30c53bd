package cart

// Line is one product in a session's cart. Name and unit price are
// snapshotted when the product is first added.
type Line struct {
	ProductID  string `json:"product_id"`
	Name       string `json:"name"`
	PriceCents int    `json:"price_cents"`
	Qty        int    `json:"qty"`
}

// Total sums unit_price*quantity over the lines. Pure.
func Total(lines []Line) int {
	total := 0
	for _, l := range lines {
		total += l.PriceCents * l.Qty
	}
	return total
}
