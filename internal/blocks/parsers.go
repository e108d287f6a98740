package blocks

import (
	"fmt"
	"strings"

	"github.com/deadloked8999/exeltest/internal/classifier"
	"github.com/deadloked8999/exeltest/internal/numparse"
	"github.com/shopspring/decimal"
)

func parseIncome(s Section, opts Options) ([]Record, []ValidationWarning) {
	var issues numericIssues
	rows := labelledRows(s, &issues)
	records := make([]Record, 0, len(rows))
	m := make([]measured, 0, len(rows))
	for _, r := range rows {
		records = append(records, IncomeRecord{Category: r.label, Amount: r.amount, IsTotal: r.total})
		m = append(m, measured{row: r.row, total: r.total, values: []decimal.NullDecimal{r.amount}})
	}
	warns := issues.warning(classifier.Income)
	return records, append(warns, reconcile(classifier.Income, m, []string{"amount"}, opts.Tolerance)...)
}

func parseExpenses(s Section, opts Options) ([]Record, []ValidationWarning) {
	var issues numericIssues
	b := s.Block.Type
	rows := labelledRows(s, &issues)
	records := make([]Record, 0, len(rows))
	m := make([]measured, 0, len(rows))
	for _, r := range rows {
		records = append(records, ExpenseRecord{Item: r.label, Amount: r.amount, IsTotal: r.total})
		m = append(m, measured{row: r.row, total: r.total, values: []decimal.NullDecimal{r.amount}})
	}
	warns := issues.warning(b)
	return records, append(warns, reconcile(b, m, []string{"amount"}, opts.Tolerance)...)
}

func parseStaffDebts(s Section, opts Options) ([]Record, []ValidationWarning) {
	var issues numericIssues
	rows := labelledRows(s, &issues)
	records := make([]Record, 0, len(rows))
	m := make([]measured, 0, len(rows))
	for _, r := range rows {
		records = append(records, StaffDebt{DebtType: r.label, Amount: r.amount, IsTotal: r.total})
		m = append(m, measured{row: r.row, total: r.total, values: []decimal.NullDecimal{r.amount}})
	}
	warns := issues.warning(classifier.StaffDebts)
	return records, append(warns, reconcile(classifier.StaffDebts, m, []string{"amount"}, opts.Tolerance)...)
}

// parsePaymentTypes tags one cash total row. "Итого касса" is a cash
// subtotal and stays out of the reconciliation sum; failing that, the
// single "наличные" row is the cash total.
func parsePaymentTypes(s Section, opts Options) ([]Record, []ValidationWarning) {
	var issues numericIssues
	rows := labelledRows(s, &issues)

	var subtotal, cash []int
	for i, r := range rows {
		l := strings.ToLower(r.label)
		switch {
		case strings.Contains(l, "итого касса") || strings.Contains(l, "итого по кассе"):
			subtotal = append(subtotal, i)
			rows[i].total = false
		case isCashLabel(r.label) && !r.total:
			cash = append(cash, i)
		}
	}
	candidates := subtotal
	if len(candidates) == 0 {
		candidates = cash
	}

	var warns []ValidationWarning
	cashAt := -1
	switch len(candidates) {
	case 0:
		warns = append(warns, ValidationWarning{Block: classifier.PaymentTypes, Kind: KindCashTotal, Message: "no cash total row found"})
	case 1:
		cashAt = candidates[0]
	default:
		cashAt = candidates[0]
		warns = append(warns, ValidationWarning{
			Block:   classifier.PaymentTypes,
			Kind:    KindCashTotal,
			Row:     rows[candidates[1]].row + 1,
			Count:   len(candidates),
			Message: fmt.Sprintf("%d rows look like the cash total, first one used", len(candidates)),
		})
	}

	skip := make(map[int]bool, len(subtotal))
	for _, i := range subtotal {
		skip[i] = true
	}
	records := make([]Record, 0, len(rows))
	m := make([]measured, 0, len(rows))
	for i, r := range rows {
		records = append(records, PaymentType{PaymentType: r.label, Amount: r.amount, IsTotal: r.total, IsCashTotal: i == cashAt})
		m = append(m, measured{row: r.row, total: r.total, skip: skip[i], values: []decimal.NullDecimal{r.amount}})
	}
	warns = append(issues.warning(classifier.PaymentTypes), warns...)
	return records, append(warns, reconcile(classifier.PaymentTypes, m, []string{"amount"}, opts.Tolerance)...)
}

// isCashLabel matches "Наличные" and "Наличными" as the leading word, so
// "Безналичные" and "Без наличных" stay out.
func isCashLabel(label string) bool {
	words := strings.Fields(classifier.Normalize(label))
	return len(words) > 0 && strings.HasPrefix(words[0], "НАЛИЧН")
}

// parseStaff reads role/headcount pairs. Headcounts are not reconciled.
func parseStaff(s Section, _ Options) ([]Record, []ValidationWarning) {
	var issues numericIssues
	var records []Record
	for _, l := range s.lines() {
		label, col := l.leading()
		if numparse.IsNumeric(label) {
			continue
		}
		records = append(records, StaffStatistic{
			RoleName:   label,
			StaffCount: count(l.valueAfter(col), l.row, &issues),
			IsTotal:    classifier.IsTotalLabel(label),
		})
	}
	return records, issues.warning(classifier.Staff)
}

// parseTickets reads the price | quantity | amount table.
func parseTickets(s Section, opts Options) ([]Record, []ValidationWarning) {
	var issues numericIssues
	lines := s.lines()
	var records []Record
	var m []measured
	for i, l := range lines {
		if l.contains("цена") && l.contains("кол") {
			continue
		}
		label := l.cell(0)
		t := TicketSale{
			PriceLabel: label,
			Quantity:   count(l.cell(1), l.row, &issues),
			Amount:     amount(l.cell(2), l.row, &issues),
		}
		t.IsTotal = classifier.IsTotalLabel(label) || (label == "" && i == len(lines)-1 && t.Amount.Valid)
		if !t.IsTotal {
			if p, ok := numparse.ParseAmount(label); ok {
				t.PriceValue = decimal.NullDecimal{Decimal: p, Valid: true}
			}
		}
		records = append(records, t)
		qty := decimal.NullDecimal{}
		if t.Quantity != nil {
			qty = decimal.NullDecimal{Decimal: decimal.NewFromInt(*t.Quantity), Valid: true}
		}
		m = append(m, measured{row: l.row, total: t.IsTotal, values: []decimal.NullDecimal{qty, t.Amount}})
	}
	warns := issues.warning(classifier.Tickets)
	return records, append(warns, reconcile(classifier.Tickets, m, []string{"quantity", "amount"}, opts.Tolerance)...)
}

// parseCashCollection reads currency | quantity | rate | amount. A missing
// amount is quantity times rate.
func parseCashCollection(s Section, opts Options) ([]Record, []ValidationWarning) {
	var issues numericIssues
	lines := s.lines()
	var records []Record
	var m []measured
	for i, l := range lines {
		if i == 0 && (l.contains("кол") || l.contains("курс")) && !classifier.IsTotalLabel(l.cell(0)) {
			continue
		}
		label := l.cell(0)
		c := CashCollection{CurrencyLabel: label, Amount: amount(l.cell(3), l.row, &issues)}
		c.IsTotal = classifier.IsTotalLabel(label) || (label == "" && i == len(lines)-1 && c.Amount.Valid)
		if !c.IsTotal {
			c.Quantity = amount(l.cell(1), l.row, &issues)
			c.ExchangeRate = rate(l.cell(2), l.row, &issues)
			if (!c.Amount.Valid || c.Amount.Decimal.IsZero()) && c.Quantity.Valid && c.ExchangeRate.Valid {
				c.Amount = decimal.NullDecimal{Decimal: c.Quantity.Decimal.Mul(c.ExchangeRate.Decimal).Round(numparse.AmountPlaces), Valid: true}
			}
		}
		records = append(records, c)
		m = append(m, measured{row: l.row, total: c.IsTotal, values: []decimal.NullDecimal{c.Amount}})
	}
	warns := issues.warning(classifier.CashCollection)
	return records, append(warns, reconcile(classifier.CashCollection, m, []string{"amount"}, opts.Tolerance)...)
}

const (
	noteCashless = "безнал"
	noteCash     = "нал"
	noteOther    = "прочее"
)

// parseNotes reads the two note columns: cashless on the left, cash on the
// right. An "Итого: N" line closes its column; text after that is kept as
// a general note.
func parseNotes(s Section, _ Options) ([]Record, []ValidationWarning) {
	var issues numericIssues
	var records []Record
	done := [2]bool{}
	categories := [2]string{noteCashless, noteCash}
	for i, l := range s.lines() {
		if i == 0 && (l.contains("долг") || isNotesCaption(l)) {
			continue
		}
		var extra []string
		for side := 0; side < 2; side++ {
			text := l.cell(side)
			if text == "" {
				continue
			}
			if done[side] {
				extra = append(extra, text)
				continue
			}
			e := NoteEntry{Category: categories[side], Text: text}
			if strings.HasPrefix(strings.ToLower(text), "итого") {
				e.IsTotal = true
				raw := text
				if k := strings.LastIndex(text, ":"); k >= 0 {
					raw = strings.TrimSpace(text[k+1:])
				}
				e.Amount = amount(raw, l.row, &issues)
				done[side] = true
			}
			records = append(records, e)
		}
		for _, text := range l.cells[min(2, len(l.cells)):] {
			if text != "" {
				extra = append(extra, text)
			}
		}
		if len(extra) > 0 {
			records = append(records, NoteEntry{Category: noteOther, Text: strings.Join(extra, " ")})
		}
	}
	return records, issues.warning(classifier.Notes)
}

func isNotesCaption(l line) bool {
	left := strings.ToLower(l.cell(0))
	right := strings.ToLower(l.cell(1))
	return left == noteCashless && right == noteCash
}

// parseTotals reads payment type | income | expense | net profit. A missing
// net profit is derived; a present one must equal income minus expense.
func parseTotals(s Section, opts Options) ([]Record, []ValidationWarning) {
	var issues numericIssues
	var records []Record
	var m []measured
	var badNet []int
	lines := s.lines()
	for i, l := range lines {
		if l.contains("доход") && l.contains("расход") {
			continue
		}
		label := l.cell(0)
		t := TotalsSummary{
			PaymentType:   label,
			IncomeAmount:  amount(l.cell(1), l.row, &issues),
			ExpenseAmount: amount(l.cell(2), l.row, &issues),
			NetProfit:     amount(l.cell(3), l.row, &issues),
		}
		if t.IncomeAmount.Valid && t.ExpenseAmount.Valid {
			want := t.IncomeAmount.Decimal.Sub(t.ExpenseAmount.Decimal)
			if !t.NetProfit.Valid {
				t.NetProfit = decimal.NullDecimal{Decimal: want, Valid: true}
			} else if t.NetProfit.Decimal.Sub(want).Abs().GreaterThan(opts.Tolerance) {
				badNet = append(badNet, l.row+1)
			}
		}
		records = append(records, t)
		isTotal := classifier.IsTotalLabel(label) || (label == "" && i == len(lines)-1)
		m = append(m, measured{row: l.row, total: isTotal, values: []decimal.NullDecimal{t.IncomeAmount, t.ExpenseAmount, t.NetProfit}})
	}
	warns := issues.warning(classifier.Totals)
	if len(badNet) > 0 {
		warns = append(warns, ValidationWarning{
			Block:   classifier.Totals,
			Kind:    KindNetProfit,
			Row:     badNet[0],
			Count:   len(badNet),
			Message: fmt.Sprintf("net profit differs from income minus expense, rows %v", badNet),
		})
	}
	return records, append(warns, reconcile(classifier.Totals, m, []string{"income_amount", "expense_amount", "net_profit"}, opts.Tolerance)...)
}
