package nlsql

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// Interpreter renders query results as a short answer through the model.
type Interpreter struct {
	llm     Completer
	maxRows int
}

func NewInterpreter(llm Completer, maxRows int) *Interpreter {
	if maxRows <= 0 {
		maxRows = 10
	}
	return &Interpreter{llm: llm, maxRows: maxRows}
}

// Interpret returns the model's rendering of rows. The caller falls back to
// plain formatting when it fails.
func (in *Interpreter) Interpret(ctx context.Context, question string, columns []string, rows [][]any) (string, error) {
	if len(rows) == 0 {
		return "По вашему запросу ничего не найдено", nil
	}
	sample := rows
	if len(sample) > in.maxRows {
		sample = sample[:in.maxRows]
	}
	records := make([]map[string]any, len(sample))
	for i, r := range sample {
		rec := make(map[string]any, len(columns))
		for j, c := range columns {
			if j < len(r) {
				rec[c] = r[j]
			}
		}
		records[i] = rec
	}
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return "", err
	}
	user := fmt.Sprintf("Запрос пользователя: %s\n\nРезультаты (показано %d из %d):\n%s\n\nОтформатируй это в понятный текст для пользователя на русском языке.",
		question, len(sample), len(rows), data)
	answer, err := in.llm.Complete(ctx, Prompt{System: interpretSystem, User: user, Temperature: 0.5, MaxTokens: 2000})
	if err != nil {
		return "", err
	}
	answer = strings.TrimSpace(answer)
	if len(rows) > len(sample) {
		answer += fmt.Sprintf("\n\nВсего найдено записей: %d", len(rows))
	}
	return answer, nil
}
