package core

// Category is the display metadata for a category key.
type Category struct {
	Key   string `json:"value"`
	Label string `json:"label"`
	Icon  string `json:"icon"`
	Color string `json:"color"`
	Kind  Kind   `json:"type,omitempty"`
}

const (
	fallbackIcon  = "📦"
	fallbackColor = "#94a3b8"
)

var IncomeCategories = []Category{
	{Key: "salary", Label: "Salary", Icon: "💼", Color: "#10b981", Kind: Income},
	{Key: "freelance", Label: "Freelance", Icon: "💻", Color: "#06b6d4", Kind: Income},
	{Key: "investment", Label: "Investment", Icon: "📈", Color: "#6366f1", Kind: Income},
	{Key: "business", Label: "Business", Icon: "🏢", Color: "#8b5cf6", Kind: Income},
	{Key: "rental", Label: "Rental", Icon: "🏠", Color: "#f59e0b", Kind: Income},
	{Key: "gift", Label: "Gift", Icon: "🎁", Color: "#ec4899", Kind: Income},
	{Key: "other_income", Label: "Other Income", Icon: "💰", Color: "#84cc16", Kind: Income},
}

var ExpenseCategories = []Category{
	{Key: "food", Label: "Food & Dining", Icon: "🍔", Color: "#f97316", Kind: Expense},
	{Key: "transport", Label: "Transport", Icon: "🚗", Color: "#3b82f6", Kind: Expense},
	{Key: "shopping", Label: "Shopping", Icon: "🛍️", Color: "#ec4899", Kind: Expense},
	{Key: "entertainment", Label: "Entertainment", Icon: "🎬", Color: "#8b5cf6", Kind: Expense},
	{Key: "health", Label: "Health", Icon: "🏥", Color: "#ef4444", Kind: Expense},
	{Key: "education", Label: "Education", Icon: "📚", Color: "#06b6d4", Kind: Expense},
	{Key: "utilities", Label: "Utilities", Icon: "💡", Color: "#f59e0b", Kind: Expense},
	{Key: "rent", Label: "Rent", Icon: "🏠", Color: "#10b981", Kind: Expense},
	{Key: "travel", Label: "Travel", Icon: "✈️", Color: "#6366f1", Kind: Expense},
	{Key: "subscriptions", Label: "Subscriptions", Icon: "📱", Color: "#84cc16", Kind: Expense},
	{Key: "other_expense", Label: "Other", Icon: "📦", Color: "#94a3b8", Kind: Expense},
}

// ChartColors is the palette served to clients for chart series.
var ChartColors = []string{
	"#6366f1", "#8b5cf6", "#ec4899", "#f97316", "#10b981",
	"#06b6d4", "#3b82f6", "#f59e0b", "#ef4444", "#84cc16",
	"#14b8a6", "#a855f7",
}

var registry = func() map[string]Category {
	m := make(map[string]Category, len(IncomeCategories)+len(ExpenseCategories))
	for _, c := range IncomeCategories {
		m[c.Key] = c
	}
	for _, c := range ExpenseCategories {
		m[c.Key] = c
	}
	return m
}()

// Lookup returns the metadata for key. Unknown keys never fail: they get
// the key itself as label and the neutral icon and color.
func Lookup(key string) Category {
	if c, ok := registry[key]; ok {
		return c
	}
	return Category{Key: key, Label: key, Icon: fallbackIcon, Color: fallbackColor}
}

// Known reports whether key is registered for any kind.
func Known(key string) bool {
	_, ok := registry[key]
	return ok
}

// ValidFor reports whether key may be used on a record of kind k.
func ValidFor(k Kind, key string) bool {
	c, ok := registry[key]
	return ok && c.Kind == k
}

// CategoriesFor returns the selectable categories for k, or all of them
// when k is not a valid kind.
func CategoriesFor(k Kind) []Category {
	switch k {
	case Income:
		return append([]Category(nil), IncomeCategories...)
	case Expense:
		return append([]Category(nil), ExpenseCategories...)
	default:
		all := make([]Category, 0, len(IncomeCategories)+len(ExpenseCategories))
		all = append(all, IncomeCategories...)
		return append(all, ExpenseCategories...)
	}
}
