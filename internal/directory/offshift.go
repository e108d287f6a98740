package directory

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// OffShiftExpense is an expense paid outside any shift report.
type OffShiftExpense struct {
	ID          int64           `json:"id"`
	UserID      string          `json:"user_id"`
	ClubName    string          `json:"club_name" validate:"required"`
	PaymentType string          `json:"payment_type" validate:"required"`
	Item        string          `json:"expense_item" validate:"required"`
	Amount      decimal.Decimal `json:"amount"`
	Date        time.Time       `json:"expense_date"`
	CreatedAt   time.Time       `json:"created_at,omitempty"`
}

type OffShiftStore struct {
	db DB
}

func NewOffShiftStore(db DB) *OffShiftStore {
	return &OffShiftStore{db: db}
}

func (s *OffShiftStore) Add(ctx context.Context, e OffShiftExpense) (int64, error) {
	var id int64
	err := s.db.QueryRow(ctx, `
		INSERT INTO off_shift_expenses (user_id, club_name, payment_type, expense_item, amount, expense_date)
		VALUES ($1, $2, $3, $4, $5::numeric, $6)
		RETURNING id`,
		e.UserID, e.ClubName, e.PaymentType, e.Item, e.Amount.String(), e.Date).Scan(&id)
	return id, err
}

// List returns the user's expenses for a venue dated within [from, to].
func (s *OffShiftStore) List(ctx context.Context, userID, club string, from, to time.Time) ([]OffShiftExpense, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, user_id, club_name, payment_type, expense_item, amount::text, expense_date, created_at
		FROM off_shift_expenses
		WHERE user_id = $1 AND club_name ILIKE $2 AND expense_date BETWEEN $3 AND $4
		ORDER BY expense_date, id`, userID, club, from, to)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (OffShiftExpense, error) {
		var (
			e      OffShiftExpense
			amount string
		)
		if err := row.Scan(&e.ID, &e.UserID, &e.ClubName, &e.PaymentType, &e.Item, &amount, &e.Date, &e.CreatedAt); err != nil {
			return e, err
		}
		d, err := decimal.NewFromString(amount)
		e.Amount = d
		return e, err
	})
}

// Total sums amounts of expenses already loaded.
func Total(expenses []OffShiftExpense) decimal.Decimal {
	sum := decimal.Zero
	for _, e := range expenses {
		sum = sum.Add(e.Amount)
	}
	return sum
}

func (s *OffShiftStore) Delete(ctx context.Context, userID string, id int64) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM off_shift_expenses WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
