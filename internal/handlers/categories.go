package handlers

// CategoryDef is a transaction category as shown in the UI. IDs match the
// remote API's category IDs.
type CategoryDef struct {
	ID   int64
	Name string
	Icon string
	Bg   string
	Text string
}

var categories = []CategoryDef{
	{1, "Food & Beverages", "🍔", "bg-red-100", "text-red-600"},
	{2, "Transportation", "🚗", "bg-blue-100", "text-blue-600"},
	{3, "Entertainment", "🎮", "bg-purple-100", "text-purple-600"},
	{4, "Housing", "🏠", "bg-green-100", "text-green-600"},
	{5, "Health & Wellness", "💊", "bg-pink-100", "text-pink-600"},
	{6, "Education", "📚", "bg-yellow-100", "text-yellow-600"},
	{7, "Personal Care", "💅", "bg-indigo-100", "text-indigo-600"},
	{8, "Shopping", "🛍️", "bg-orange-100", "text-orange-600"},
	{9, "Savings & Investments", "💰", "bg-emerald-100", "text-emerald-600"},
	{10, "Debt Payments", "💳", "bg-red-100", "text-red-600"},
	{11, "Loan Payments", "🏦", "bg-cyan-100", "text-cyan-600"},
	{12, "Insurance", "🛡️", "bg-teal-100", "text-teal-600"},
	{13, "Gifts & Donations", "🎁", "bg-rose-100", "text-rose-600"},
	{14, "Travel", "✈️", "bg-sky-100", "text-sky-600"},
	{15, "Miscellaneous", "📦", "bg-gray-100", "text-gray-600"},
}

// CategoryStyle defines the visual style for a category.
type CategoryStyle struct {
	Icon string
	Bg   string
	Text string
}

var fallbackStyle = CategoryStyle{Icon: "📋", Bg: "bg-gray-100", Text: "text-gray-600"}

func lookupCategory(id int64) (CategoryDef, bool) {
	for _, c := range categories {
		if c.ID == id {
			return c, true
		}
	}
	return CategoryDef{}, false
}

func getCategoryStyle(id int64) CategoryStyle {
	if c, ok := lookupCategory(id); ok {
		return CategoryStyle{Icon: c.Icon, Bg: c.Bg, Text: c.Text}
	}
	return fallbackStyle
}

// categoryName prefers the name the API sent.
func categoryName(id int64, fromAPI string) string {
	if fromAPI != "" {
		return fromAPI
	}
	if c, ok := lookupCategory(id); ok {
		return c.Name
	}
	return "Lainnya"
}
