package handlers

import (
	"uangku/internal/dashboard"
	"uangku/internal/models"
)

// StatsCategoryItem represents a category with its spending statistics.
type StatsCategoryItem struct {
	Category      string
	Total         int64
	Count         int
	Percentage    float64
	CategoryStyle CategoryStyle
}

// StatsViewModel summarizes the month window.
type StatsViewModel struct {
	Total         int64
	Categories    []StatsCategoryItem
	Top           []StatsCategoryItem
	CategoryCount int
}

const topCategories = 3

func buildStats(month []models.Transaction) StatsViewModel {
	total := dashboard.Total(month)

	categoryTotals := dashboard.CategoryTotals(month)
	items := make([]StatsCategoryItem, 0, len(categoryTotals))
	for _, ct := range categoryTotals {
		items = append(items, statsItem(ct, total))
	}

	topTotals := dashboard.Top(month, topCategories)
	top := make([]StatsCategoryItem, 0, len(topTotals))
	for _, ct := range topTotals {
		top = append(top, statsItem(ct, total))
	}

	return StatsViewModel{
		Total:         total,
		Categories:    items,
		Top:           top,
		CategoryCount: len(items),
	}
}

func statsItem(ct dashboard.CategoryTotal, total int64) StatsCategoryItem {
	percentage := 0.0
	if total > 0 {
		percentage = float64(ct.Amount) / float64(total) * 100
	}
	return StatsCategoryItem{
		Category:      categoryName(ct.CategoryID, ct.Name),
		Total:         ct.Amount,
		Count:         ct.Count,
		Percentage:    percentage,
		CategoryStyle: getCategoryStyle(ct.CategoryID),
	}
}
