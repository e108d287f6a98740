package nlsql

import (
	"fmt"
	"strings"

	"github.com/deadloked8999/exeltest/internal/catalog"
)

const sqlRules = `Правила:
1. Генерируй ТОЛЬКО один валидный запрос PostgreSQL, начинающийся с SELECT или WITH
2. Используй только таблицы и колонки из схемы
3. Для поиска по текстовым полям используй ILIKE
4. Всегда ограничивай результат (LIMIT %d по умолчанию)
5. Дата отчёта и клуб хранятся в uploaded_files (report_date, club_name); записи блоков связаны с ним через file_id
6. Строки с is_total = true являются итогами, не суммируй их вместе с обычными строками
7. Возвращай результат в формате JSON:
{"sql": "SQL запрос", "explanation": "Краткое объяснение что делает запрос"}`

// systemPrompt embeds the schema and the answering rules. compact switches
// to the one-line-per-table schema used on retry.
func systemPrompt(cat *catalog.Catalog, compact bool, limit int) string {
	var b strings.Builder
	b.WriteString("Ты - эксперт по SQL и PostgreSQL. Преобразуй вопрос пользователя о сменных отчётах клуба в SQL запрос.\n\n")
	if compact {
		b.WriteString("Таблицы:\n")
		b.WriteString(cat.CompactPrompt())
	} else {
		b.WriteString(cat.Prompt())
	}
	b.WriteString("\n")
	fmt.Fprintf(&b, sqlRules, limit)
	return b.String()
}

const interpretSystem = `Ты - помощник, который форматирует результаты запросов к базе данных для пользователя.
Представь данные понятно и структурированно на русском языке.

Правила:
1. Группируй связанные данные
2. Выделяй ключевую информацию
3. Если результатов много, покажи первые и укажи общее количество
4. Форматируй числа и даты в удобочитаемом виде`
