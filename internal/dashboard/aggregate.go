package dashboard

import (
	"sort"

	"uangku/internal/models"
)

// CategoryTotal is the spending in one category.
type CategoryTotal struct {
	CategoryID int64
	Name       string
	Amount     int64
	Count      int
}

// Total sums the amounts of txs.
func Total(txs []models.Transaction) int64 {
	var sum int64
	for _, tx := range txs {
		sum += tx.Amount
	}
	return sum
}

// CategoryTotals groups txs by category, largest amount first and then by name.
func CategoryTotals(txs []models.Transaction) []CategoryTotal {
	byID := make(map[int64]*CategoryTotal)
	for _, tx := range txs {
		ct, ok := byID[tx.CategoryID]
		if !ok {
			ct = &CategoryTotal{CategoryID: tx.CategoryID, Name: tx.Category.Name}
			byID[tx.CategoryID] = ct
		}
		ct.Amount += tx.Amount
		ct.Count++
	}

	totals := make([]CategoryTotal, 0, len(byID))
	for _, ct := range byID {
		totals = append(totals, *ct)
	}
	sort.Slice(totals, func(i, j int) bool {
		if totals[i].Amount != totals[j].Amount {
			return totals[i].Amount > totals[j].Amount
		}
		if totals[i].Name != totals[j].Name {
			return totals[i].Name < totals[j].Name
		}
		return totals[i].CategoryID < totals[j].CategoryID
	})
	return totals
}

// Top returns at most n of the largest category totals of txs.
func Top(txs []models.Transaction, n int) []CategoryTotal {
	totals := CategoryTotals(txs)
	n = max(n, 0)
	if n < len(totals) {
		totals = totals[:n]
	}
	return totals
}
