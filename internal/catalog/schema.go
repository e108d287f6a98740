package catalog

// Table names.
const (
	TableUploadedFiles    = "uploaded_files"
	TableIncomeRecords    = "income_records"
	TableTicketSales      = "ticket_sales"
	TablePaymentTypes     = "payment_types"
	TableStaffStatistics  = "staff_statistics"
	TableExpenseRecords   = "expense_records"
	TableMiscExpenses     = "misc_expense_records"
	TableCashCollection   = "cash_collection"
	TableStaffDebts       = "staff_debts"
	TableNotesEntries     = "notes_entries"
	TableTotalsSummary    = "totals_summary"
	TableEmployees        = "employees"
	TableOffShiftExpenses = "off_shift_expenses"
	TableUserQueries      = "user_queries"
	TableUserCustomData   = "user_custom_data"
)

const (
	money             = "numeric(14,2)"
	fileFKDescription = "ссылка на uploaded_files.id"
)

func pk() Column {
	return Column{Name: "id", Type: "bigserial", Managed: true, Description: "первичный ключ"}
}

func fileID() Column {
	return Column{Name: "file_id", Type: "bigint", Managed: true, Description: fileFKDescription}
}

func isTotal() Column {
	return Column{Name: "is_total", Type: "boolean", Description: "строка ИТОГО блока"}
}

func fileFK() []ForeignKey {
	return []ForeignKey{{Column: "file_id", RefTable: TableUploadedFiles, RefColumn: "id", OnDelete: "CASCADE"}}
}

// derived builds a per-file record table.
func derived(name, description string, cols ...Column) Table {
	all := append([]Column{pk(), fileID()}, cols...)
	return Table{Name: name, Description: description, Columns: all, ForeignKeys: fileFK(), Queryable: true}
}

var defaultCatalog = New(
	Table{
		Name:        TableUploadedFiles,
		Description: "загруженные отчёты смены, один на файл",
		Queryable:   true,
		Columns: []Column{
			pk(),
			{Name: "user_id", Type: "text", Description: "идентификатор владельца"},
			{Name: "username", Type: "text", Nullable: true, Description: "отображаемое имя владельца"},
			{Name: "file_name", Type: "text", Description: "имя файла"},
			{Name: "file_hash", Type: "text", Description: "sha256 содержимого"},
			{Name: "row_count", Type: "integer", Description: "число извлечённых записей"},
			{Name: "report_date", Type: "date", Nullable: true, Description: "дата смены"},
			{Name: "club_name", Type: "text", Nullable: true, Description: "клуб"},
			{Name: "file_content", Type: "bytea", Nullable: true, Hidden: true},
			{Name: "ingest_result", Type: "jsonb", Nullable: true, Hidden: true},
			{Name: "uploaded_at", Type: "timestamptz", Managed: true, Description: "время загрузки"},
		},
	},
	derived(TableIncomeRecords, "доходы смены по категориям",
		Column{Name: "category", Type: "text", Description: "категория дохода"},
		Column{Name: "amount", Type: money, Nullable: true, Description: "сумма"},
		isTotal(),
	),
	derived(TableTicketSales, "продажи входных билетов",
		Column{Name: "price_label", Type: "text", Description: "подпись цены"},
		Column{Name: "price_value", Type: money, Nullable: true, Description: "цена билета"},
		Column{Name: "quantity", Type: "integer", Nullable: true, Description: "количество"},
		Column{Name: "amount", Type: money, Nullable: true, Description: "сумма"},
		isTotal(),
	),
	derived(TablePaymentTypes, "суммы по типам оплат",
		Column{Name: "payment_type", Type: "text", Description: "тип оплаты"},
		Column{Name: "amount", Type: money, Nullable: true, Description: "сумма"},
		isTotal(),
		Column{Name: "is_cash_total", Type: "boolean", Description: "итог по наличным"},
	),
	derived(TableStaffStatistics, "численность персонала на смене",
		Column{Name: "role_name", Type: "text", Description: "должность"},
		Column{Name: "staff_count", Type: "integer", Nullable: true, Description: "количество человек"},
		isTotal(),
	),
	derived(TableExpenseRecords, "расходы смены",
		Column{Name: "expense_item", Type: "text", Description: "статья расхода"},
		Column{Name: "amount", Type: money, Nullable: true, Description: "сумма"},
		isTotal(),
	),
	derived(TableMiscExpenses, "прочие расходы смены",
		Column{Name: "expense_item", Type: "text", Description: "статья расхода"},
		Column{Name: "amount", Type: money, Nullable: true, Description: "сумма"},
		isTotal(),
	),
	derived(TableCashCollection, "инкассация по валютам",
		Column{Name: "currency_label", Type: "text", Description: "валюта"},
		Column{Name: "quantity", Type: "numeric(14,2)", Nullable: true, Description: "количество купюр или сумма в валюте"},
		Column{Name: "exchange_rate", Type: "numeric(14,4)", Nullable: true, Description: "курс"},
		Column{Name: "amount", Type: money, Nullable: true, Description: "сумма в рублях"},
		isTotal(),
	),
	derived(TableStaffDebts, "долги персонала",
		Column{Name: "debt_type", Type: "text", Description: "вид долга"},
		Column{Name: "amount", Type: money, Nullable: true, Description: "сумма"},
		isTotal(),
	),
	derived(TableNotesEntries, "примечания к смене",
		Column{Name: "category", Type: "text", Description: "безнал или нал"},
		Column{Name: "entry_text", Type: "text", Description: "текст примечания"},
		isTotal(),
		Column{Name: "amount", Type: money, Nullable: true, Description: "сумма итога"},
	),
	derived(TableTotalsSummary, "итоговый баланс по типам оплат",
		Column{Name: "payment_type", Type: "text", Description: "наличные, б/н или итого"},
		Column{Name: "income_amount", Type: money, Nullable: true, Description: "доход"},
		Column{Name: "expense_amount", Type: money, Nullable: true, Description: "расход"},
		Column{Name: "net_profit", Type: money, Nullable: true, Description: "чистая прибыль"},
	),
	Table{
		Name:        TableEmployees,
		Description: "справочник сотрудников",
		Queryable:   true,
		Columns: []Column{
			pk(),
			{Name: "employee_code", Type: "text", Description: "код сотрудника, например Д7"},
			{Name: "full_name", Type: "text", Description: "ФИО"},
			{Name: "created_at", Type: "timestamptz", Managed: true},
			{Name: "updated_at", Type: "timestamptz", Managed: true},
		},
	},
	Table{
		Name:        TableOffShiftExpenses,
		Description: "расходы вне смены",
		Queryable:   true,
		Columns: []Column{
			pk(),
			{Name: "user_id", Type: "text", Description: "кто внёс"},
			{Name: "club_name", Type: "text", Description: "клуб"},
			{Name: "payment_type", Type: "text", Description: "тип оплаты"},
			{Name: "expense_item", Type: "text", Description: "статья"},
			{Name: "amount", Type: money, Description: "сумма"},
			{Name: "expense_date", Type: "date", Description: "дата расхода"},
			{Name: "created_at", Type: "timestamptz", Managed: true},
		},
	},
	Table{
		Name:        TableUserQueries,
		Description: "журнал вопросов",
		Columns: []Column{
			pk(),
			{Name: "user_id", Type: "text"},
			{Name: "query_text", Type: "text"},
			{Name: "generated_sql", Type: "text", Nullable: true},
			{Name: "result_count", Type: "integer"},
			{Name: "created_at", Type: "timestamptz", Managed: true},
		},
	},
	Table{
		Name:        TableUserCustomData,
		Description: "пользовательские ключ-значение",
		Columns: []Column{
			pk(),
			{Name: "user_id", Type: "text"},
			{Name: "data_key", Type: "text"},
			{Name: "data_value", Type: "text"},
			{Name: "updated_at", Type: "timestamptz", Managed: true},
		},
	},
)

// Default is the catalog of the shift report database.
func Default() *Catalog {
	return defaultCatalog
}
