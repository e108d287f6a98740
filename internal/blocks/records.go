package blocks

import "github.com/shopspring/decimal"

// Record is one derived row. Values follow the catalog's record columns.
type Record interface {
	Values() []any
}

func nullable(d decimal.NullDecimal) any {
	if !d.Valid {
		return nil
	}
	return d.Decimal
}

func nullableInt(n *int64) any {
	if n == nil {
		return nil
	}
	return *n
}

type IncomeRecord struct {
	Category string              `json:"category"`
	Amount   decimal.NullDecimal `json:"amount"`
	IsTotal  bool                `json:"is_total"`
}

func (r IncomeRecord) Values() []any { return []any{r.Category, nullable(r.Amount), r.IsTotal} }

type TicketSale struct {
	PriceLabel string              `json:"price_label"`
	PriceValue decimal.NullDecimal `json:"price_value"`
	Quantity   *int64              `json:"quantity"`
	Amount     decimal.NullDecimal `json:"amount"`
	IsTotal    bool                `json:"is_total"`
}

func (r TicketSale) Values() []any {
	return []any{r.PriceLabel, nullable(r.PriceValue), nullableInt(r.Quantity), nullable(r.Amount), r.IsTotal}
}

type PaymentType struct {
	PaymentType string              `json:"payment_type"`
	Amount      decimal.NullDecimal `json:"amount"`
	IsTotal     bool                `json:"is_total"`
	IsCashTotal bool                `json:"is_cash_total"`
}

func (r PaymentType) Values() []any {
	return []any{r.PaymentType, nullable(r.Amount), r.IsTotal, r.IsCashTotal}
}

type StaffStatistic struct {
	RoleName   string `json:"role_name"`
	StaffCount *int64 `json:"staff_count"`
	IsTotal    bool   `json:"is_total"`
}

func (r StaffStatistic) Values() []any { return []any{r.RoleName, nullableInt(r.StaffCount), r.IsTotal} }

// ExpenseRecord rows land in expense_records or misc_expense_records.
type ExpenseRecord struct {
	Item    string              `json:"expense_item"`
	Amount  decimal.NullDecimal `json:"amount"`
	IsTotal bool                `json:"is_total"`
}

func (r ExpenseRecord) Values() []any { return []any{r.Item, nullable(r.Amount), r.IsTotal} }

type CashCollection struct {
	CurrencyLabel string              `json:"currency_label"`
	Quantity      decimal.NullDecimal `json:"quantity"`
	ExchangeRate  decimal.NullDecimal `json:"exchange_rate"`
	Amount        decimal.NullDecimal `json:"amount"`
	IsTotal       bool                `json:"is_total"`
}

func (r CashCollection) Values() []any {
	return []any{r.CurrencyLabel, nullable(r.Quantity), nullable(r.ExchangeRate), nullable(r.Amount), r.IsTotal}
}

type StaffDebt struct {
	DebtType string              `json:"debt_type"`
	Amount   decimal.NullDecimal `json:"amount"`
	IsTotal  bool                `json:"is_total"`
}

func (r StaffDebt) Values() []any { return []any{r.DebtType, nullable(r.Amount), r.IsTotal} }

type NoteEntry struct {
	Category string              `json:"category"`
	Text     string              `json:"entry_text"`
	IsTotal  bool                `json:"is_total"`
	Amount   decimal.NullDecimal `json:"amount"`
}

func (r NoteEntry) Values() []any { return []any{r.Category, r.Text, r.IsTotal, nullable(r.Amount)} }

type TotalsSummary struct {
	PaymentType   string              `json:"payment_type"`
	IncomeAmount  decimal.NullDecimal `json:"income_amount"`
	ExpenseAmount decimal.NullDecimal `json:"expense_amount"`
	NetProfit     decimal.NullDecimal `json:"net_profit"`
}

func (r TotalsSummary) Values() []any {
	return []any{r.PaymentType, nullable(r.IncomeAmount), nullable(r.ExpenseAmount), nullable(r.NetProfit)}
}
