package classifier

import "strings"

// BlockType names a logical region of a shift report.
type BlockType string

const (
	Income         BlockType = "income"
	Tickets        BlockType = "tickets"
	PaymentTypes   BlockType = "payment_types"
	Staff          BlockType = "staff"
	Expenses       BlockType = "expenses"
	MiscExpenses   BlockType = "misc_expenses"
	CashCollection BlockType = "cash_collection"
	StaffDebts     BlockType = "staff_debts"
	Notes          BlockType = "notes"
	Totals         BlockType = "totals"
)

// AllBlockTypes lists every block type in report order.
var AllBlockTypes = []BlockType{
	Income, Tickets, PaymentTypes, Staff, Expenses, MiscExpenses,
	CashCollection, StaffDebts, Notes, Totals,
}

// Title is the human caption of a block type, used in exports and messages.
func (b BlockType) Title() string {
	switch b {
	case Income:
		return "Доходы"
	case Tickets:
		return "Входные билеты"
	case PaymentTypes:
		return "Типы оплат"
	case Staff:
		return "Статистика персонала"
	case Expenses:
		return "Расходы"
	case MiscExpenses:
		return "Прочие расходы"
	case CashCollection:
		return "Инкассация"
	case StaffDebts:
		return "Долги по персоналу"
	case Notes:
		return "Примечания"
	case Totals:
		return "Итоговый баланс"
	}
	return string(b)
}

// Label is one header spelling that opens a block.
type Label struct {
	Text string
	Type BlockType
	// Exact labels match only the whole normalized cell, never a prefix.
	Exact bool
}

// Registry is consulted in order; more specific labels come first.
type Registry []Label

// DefaultRegistry holds the header spellings seen in shift reports.
var DefaultRegistry = Registry{
	{Text: "ДОХОДЫ", Type: Income},
	{Text: "ДОХОД ЗА СМЕНУ", Type: Income},
	{Text: "ВХОДНЫЕ БИЛЕТЫ", Type: Tickets},
	{Text: "ТИПЫ ОПЛАТ ЗА СМЕНУ", Type: PaymentTypes},
	{Text: "ТИПЫ ОПЛАТ", Type: PaymentTypes},
	{Text: "СТАТИСТИКА ПЕРСОНАЛА", Type: Staff},
	{Text: "ПРОЧИЕ РАСХОДЫ", Type: MiscExpenses},
	{Text: "РАСХОДЫ", Type: Expenses},
	{Text: "ИНКАССАЦИЯ", Type: CashCollection},
	{Text: "ДОЛГИ ПО ПЕРСОНАЛУ", Type: StaffDebts},
	{Text: "ПРИМЕЧАНИЯ", Type: Notes},
	{Text: "ПРИМЕЧАНИЕ", Type: Notes},
	{Text: "ИТОГОВЫЙ БАЛАНС", Type: Totals},
	{Text: "ИТОГО ЗА ПЕРИОД", Type: Totals, Exact: true},
	{Text: "ИТОГО ПО СМЕНЕ", Type: Totals, Exact: true},
	// a bare "Итого" opens the balance only when the Доход/Расход caption follows
	{Text: "ИТОГО", Type: Totals, Exact: true},
}

// Match returns the block type whose label matches the cell text.
func (r Registry) Match(cell string) (Label, bool) {
	norm := Normalize(cell)
	if norm == "" {
		return Label{}, false
	}
	for _, l := range r {
		if norm == l.Text {
			return l, true
		}
		if !l.Exact && strings.HasPrefix(norm, l.Text+" ") {
			return l, true
		}
	}
	return Label{}, false
}

// Normalize upper-cases, folds Ё, collapses whitespace and strips trailing
// punctuation so header spellings compare equal.
func Normalize(s string) string {
	s = strings.ToUpper(strings.ReplaceAll(s, "ё", "е"))
	s = strings.ReplaceAll(s, "Ё", "Е")
	s = strings.Join(strings.Fields(s), " ")
	return strings.TrimRight(s, ":.;- ")
}

// IsTotalLabel reports whether a row label marks a declared total.
func IsTotalLabel(label string) bool {
	l := strings.ToLower(label)
	return strings.Contains(l, "итого") || strings.Contains(l, "всего")
}
