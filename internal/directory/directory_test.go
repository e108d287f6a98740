package directory

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
)

func TestParseEmployees(t *testing.T) {
	text := `
иванов иван иванович - ab12
ВП7 Петрова Мария

Сидоров Пётр
кл45
без кода вообще
`
	got := ParseEmployees(text)
	want := []Employee{
		{Code: "AB12", FullName: "Иванов Иван Иванович"},
		{Code: "ВП7", FullName: "Петрова Мария"},
		{Code: "КЛ45", FullName: "Сидоров Пётр"},
	}
	if len(got) != len(want) {
		t.Fatalf("got %d employees: %+v", len(got), got)
	}
	for i := range want {
		if got[i].Code != want[i].Code || got[i].FullName != want[i].FullName {
			t.Errorf("employee %d = %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestParseEmployeeRequiresName(t *testing.T) {
	if got := ParseEmployees("AB12\nCD34"); len(got) != 0 {
		t.Errorf("codes alone parsed as %+v", got)
	}
	if got := ParseEmployees(""); got != nil {
		t.Errorf("empty = %+v", got)
	}
}

func TestTotal(t *testing.T) {
	sum := Total([]OffShiftExpense{
		{Amount: decimal.RequireFromString("100.50")},
		{Amount: decimal.RequireFromString("49.50")},
	})
	if !sum.Equal(decimal.NewFromInt(150)) {
		t.Errorf("total = %s", sum)
	}
}

type recordingDB struct {
	sql  string
	args []any
}

var errRecorded = errors.New("recorded")

func (d *recordingDB) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	d.sql, d.args = sql, args
	return pgconn.CommandTag{}, errRecorded
}
func (d *recordingDB) Query(_ context.Context, sql string, args ...any) (pgx.Rows, error) {
	d.sql, d.args = sql, args
	return nil, errRecorded
}
func (d *recordingDB) QueryRow(context.Context, string, ...any) pgx.Row { return nil }
func (d *recordingDB) SendBatch(context.Context, *pgx.Batch) pgx.BatchResults {
	return nil
}

func TestOffShiftListFiltersByOwner(t *testing.T) {
	db := &recordingDB{}
	from := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	if _, err := NewOffShiftStore(db).List(context.Background(), "42", "Мята", from, from); !errors.Is(err, errRecorded) {
		t.Fatalf("err = %v", err)
	}
	if !strings.Contains(db.sql, "user_id = $1") || len(db.args) != 4 || db.args[0] != "42" {
		t.Errorf("query %q args %v", db.sql, db.args)
	}
}
