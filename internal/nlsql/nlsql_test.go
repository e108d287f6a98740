package nlsql

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/deadloked8999/exeltest/internal/catalog"
)

type scripted struct {
	mu      sync.Mutex
	replies []reply
	prompts []Prompt
}

type reply struct {
	text string
	err  error
}

func (s *scripted) Complete(_ context.Context, p Prompt) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prompts = append(s.prompts, p)
	if len(s.replies) == 0 {
		return "", errors.New("no scripted reply")
	}
	r := s.replies[0]
	s.replies = s.replies[1:]
	return r.text, r.err
}

func TestValidateRejectsWrites(t *testing.T) {
	cat := catalog.Default()
	for _, sql := range []string{
		"DELETE FROM uploaded_files",
		"DROP TABLE employees",
		"UPDATE income_records SET amount=0",
		"delete from uploaded_files where id = 1",
		"  -- comment\n INSERT INTO employees (employee_code, full_name) VALUES ('A1', 'x')",
		"TRUNCATE income_records",
		"ALTER TABLE employees ADD COLUMN x int",
	} {
		_, err := Validate(sql, cat, Limits{})
		if !errors.Is(err, ErrRejectedStatement) {
			t.Errorf("%q: err = %v, want rejection", sql, err)
		}
	}
}

func TestValidateGate(t *testing.T) {
	cat := catalog.Default()
	cases := []struct {
		name string
		sql  string
		ok   bool
	}{
		{"simple", "SELECT category, amount FROM income_records LIMIT 100", true},
		{"join with aliases", `SELECT SUM(i.amount) AS total
			FROM income_records i JOIN uploaded_files f ON f.id = i.file_id
			WHERE f.report_date >= '2025-06-01' AND f.report_date < '2025-07-01' AND NOT i.is_total
			LIMIT 100`, true},
		{"order by output alias", "SELECT expense_item, SUM(amount) AS s FROM expense_records GROUP BY expense_item ORDER BY s DESC LIMIT 10", true},
		{"cte", "WITH t AS (SELECT file_id, SUM(amount) AS s FROM income_records GROUP BY file_id) SELECT t.s, f.club_name FROM t JOIN uploaded_files f ON f.id = t.file_id", true},
		{"subquery alias", "SELECT x.total FROM (SELECT SUM(amount) AS total FROM staff_debts) x", true},
		{"extract", "SELECT EXTRACT(MONTH FROM report_date) AS m, COUNT(*) FROM uploaded_files GROUP BY 1", true},
		{"trailing semicolon", "SELECT full_name FROM employees WHERE full_name ILIKE '%иван%';", true},
		{"multi statement", "SELECT 1; DROP TABLE employees", false},
		{"unknown table", "SELECT * FROM salaries", false},
		{"system catalog", "SELECT * FROM pg_catalog.pg_user", false},
		{"audit table", "SELECT * FROM user_queries", false},
		{"unknown column", "SELECT salary FROM employees", false},
		{"qualified unknown column", "SELECT e.salary FROM employees e", false},
		{"hidden column", "SELECT file_content FROM uploaded_files", false},
		{"qualified hidden column", "SELECT f.file_content FROM uploaded_files f", false},
		{"self aliased hidden column", "SELECT file_content AS file_content FROM uploaded_files", false},
		{"self aliased unknown column", "SELECT no_such_col AS no_such_col FROM income_records", false},
		{"alias reused in where", "SELECT amount AS a FROM income_records WHERE a > 0", false},
		{"hidden column behind cte", "WITH c AS (SELECT 1 AS n) SELECT id FROM uploaded_files, c WHERE file_content IS NOT NULL", false},
		{"group by output alias", "SELECT category AS c, SUM(amount) FROM income_records GROUP BY c", true},
		{"subquery output in where", "SELECT x.total FROM (SELECT SUM(amount) AS total FROM staff_debts) x WHERE total > 0", true},
		{"union in cte", "WITH u AS (SELECT amount AS v FROM income_records UNION ALL SELECT amount FROM expense_records) SELECT SUM(v) FROM u", true},
		{"sleep", "SELECT pg_sleep(10)", false},
		{"read file", "SELECT pg_read_file('/etc/passwd')", false},
		{"select into", "SELECT * INTO backup FROM employees", false},
		{"for update", "SELECT * FROM employees FOR UPDATE", false},
		{"writing cte", "WITH d AS (DELETE FROM employees RETURNING id) SELECT * FROM d", false},
		{"unknown qualifier", "SELECT z.amount FROM income_records i", false},
		{"not sql", "SELECT FROM WHERE", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Validate(tc.sql, cat, Limits{})
			if tc.ok && err != nil {
				t.Fatalf("rejected: %v", err)
			}
			if !tc.ok && !errors.Is(err, ErrRejectedStatement) {
				t.Fatalf("err = %v, want rejection", err)
			}
		})
	}
}

func TestValidateLimits(t *testing.T) {
	cat := catalog.Default()
	sql := "SELECT a.amount FROM income_records a JOIN income_records b ON a.id = b.id JOIN income_records c ON c.id = a.id"
	if _, err := Validate(sql, cat, Limits{MaxTables: 2}); !errors.Is(err, ErrRejectedStatement) {
		t.Errorf("table cap: err = %v", err)
	}
	if _, err := Validate(sql, cat, Limits{MaxTables: 3}); err != nil {
		t.Errorf("within cap: %v", err)
	}
	if _, err := Validate(sql, cat, Limits{MaxLength: 20}); !errors.Is(err, ErrRejectedStatement) {
		t.Errorf("length cap: err = %v", err)
	}
	tables, err := Validate("SELECT i.amount FROM income_records i JOIN uploaded_files f ON f.id = i.file_id", cat, Limits{})
	if err != nil {
		t.Fatal(err)
	}
	if strings.Join(tables, ",") != "income_records,uploaded_files" {
		t.Errorf("tables = %v", tables)
	}
}

func TestRejectedErrorReason(t *testing.T) {
	_, err := Validate("DROP TABLE employees", catalog.Default(), Limits{})
	var rej *RejectedError
	if !errors.As(err, &rej) || !strings.Contains(rej.Reason, "DROP") {
		t.Fatalf("err = %v", err)
	}
}

func TestExtractSQL(t *testing.T) {
	cases := []struct {
		name, in, sql, explanation string
	}{
		{"json", `{"sql": "SELECT 1", "explanation": "one"}`, "SELECT 1", "one"},
		{"fenced json", "```json\n{\"sql\": \"SELECT 2;\", \"explanation\": \"two\"}\n```", "SELECT 2", "two"},
		{"bare fence", "```\n{\"sql\": \"SELECT 3\"}\n```", "SELECT 3", ""},
		{"json after text", "Вот ответ: {\"sql\": \"SELECT 4\", \"explanation\": \"x\"}", "SELECT 4", "x"},
		{"sql fence", "```sql\nSELECT amount FROM income_records;\n```", "SELECT amount FROM income_records", ""},
		{"free text", "Запрос:\nSELECT full_name\nFROM employees;\nГотово", "SELECT full_name\nFROM employees", ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			sql, expl, err := extractSQL(tc.in)
			if err != nil {
				t.Fatal(err)
			}
			if sql != tc.sql || expl != tc.explanation {
				t.Errorf("got %q / %q", sql, expl)
			}
		})
	}
	if _, _, err := extractSQL("Не могу ответить на этот вопрос"); !errors.Is(err, errNoSQL) {
		t.Errorf("err = %v", err)
	}
	if _, _, err := extractSQL(`{"sql": "", "explanation": "нет данных"}`); !errors.Is(err, errNoSQL) {
		t.Errorf("empty sql err = %v", err)
	}
}

func TestTranslateQuestion(t *testing.T) {
	llm := &scripted{replies: []reply{{text: "```json\n{\"sql\": \"SELECT SUM(i.amount) FROM income_records i JOIN uploaded_files f ON f.id = i.file_id WHERE EXTRACT(MONTH FROM f.report_date) = 6 AND i.is_total LIMIT 100\", \"explanation\": \"доход за июнь\"}\n```"}}}
	tr := NewTranslator(llm, catalog.Default(), Options{})
	stmt, err := tr.Translate(context.Background(), "какой общий доход за июнь", "42")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(stmt.SQL, "SELECT") || stmt.Attempts != 1 {
		t.Errorf("stmt = %+v", stmt)
	}
	if len(llm.prompts) != 1 || !strings.Contains(llm.prompts[0].System, "income_records") {
		t.Fatalf("prompts = %d", len(llm.prompts))
	}
	if strings.Contains(llm.prompts[0].System, "file_content") || strings.Contains(llm.prompts[0].System, "user_queries") {
		t.Error("prompt exposes hidden schema")
	}
	if llm.prompts[0].User != "какой общий доход за июнь" {
		t.Errorf("user prompt = %q", llm.prompts[0].User)
	}
}

func TestTranslateRetriesOnceWithCompactPrompt(t *testing.T) {
	llm := &scripted{replies: []reply{
		{err: errors.New("timeout")},
		{text: `{"sql": "SELECT full_name FROM employees LIMIT 100"}`},
	}}
	stmt, err := NewTranslator(llm, catalog.Default(), Options{}).Translate(context.Background(), "кто работает", "1")
	if err != nil {
		t.Fatal(err)
	}
	if stmt.Attempts != 2 {
		t.Errorf("attempts = %d", stmt.Attempts)
	}
	if !strings.Contains(llm.prompts[1].System, "employees(") {
		t.Errorf("retry prompt is not compact:\n%s", llm.prompts[1].System)
	}
}

func TestTranslateUnavailable(t *testing.T) {
	llm := &scripted{replies: []reply{
		{text: "не знаю"},
		{err: errors.New("503")},
	}}
	_, err := NewTranslator(llm, catalog.Default(), Options{}).Translate(context.Background(), "?", "1")
	if !errors.Is(err, ErrTranslationUnavailable) {
		t.Fatalf("err = %v", err)
	}
	if len(llm.prompts) != 2 {
		t.Errorf("calls = %d, want 2", len(llm.prompts))
	}
}

func TestTranslateRejectsWithoutRetry(t *testing.T) {
	llm := &scripted{replies: []reply{
		{text: `{"sql": "DELETE FROM uploaded_files"}`},
		{text: `{"sql": "SELECT 1"}`},
	}}
	_, err := NewTranslator(llm, catalog.Default(), Options{}).Translate(context.Background(), "удали всё", "1")
	if !errors.Is(err, ErrRejectedStatement) {
		t.Fatalf("err = %v", err)
	}
	if len(llm.prompts) != 1 {
		t.Errorf("calls = %d, want 1", len(llm.prompts))
	}
}

func TestInterpret(t *testing.T) {
	llm := &scripted{replies: []reply{{text: "Доход за июнь: 1000"}}}
	in := NewInterpreter(llm, 1)
	out, err := in.Interpret(context.Background(), "доход", []string{"sum"}, [][]any{{"1000"}, {"5"}})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(out, "Доход за июнь: 1000") || !strings.Contains(out, "Всего найдено записей: 2") {
		t.Errorf("out = %q", out)
	}
	empty, err := in.Interpret(context.Background(), "доход", []string{"sum"}, nil)
	if err != nil || !strings.Contains(empty, "ничего не найдено") {
		t.Errorf("empty = %q, %v", empty, err)
	}
}
