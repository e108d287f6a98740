package nlsql

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"unicode"

	pg_query "github.com/pganalyze/pg_query_go/v5"

	"github.com/deadloked8999/exeltest/internal/catalog"
)

var ErrRejectedStatement = errors.New("rejected statement")

// RejectedError carries the reason a generated statement failed the gate.
type RejectedError struct {
	Reason string
}

func (e *RejectedError) Error() string { return "rejected statement: " + e.Reason }

func (e *RejectedError) Is(target error) bool { return target == ErrRejectedStatement }

func reject(format string, args ...any) error {
	return &RejectedError{Reason: fmt.Sprintf(format, args...)}
}

// Limits bound what a generated statement may do.
type Limits struct {
	MaxLength int
	// MaxTables caps table references; 0 means the number of queryable tables.
	MaxTables int
	Schema    string
}

// functions with side effects or access outside the catalog
var deniedFuncs = map[string]bool{
	"set_config": true, "nextval": true, "setval": true, "txid_current": true,
	"query_to_xml": true, "query_to_xml_and_xmlschema": true, "table_to_xml": true,
	"query_to_json": true, "current_setting": true, "version": true,
}

var deniedFuncPrefixes = []string{"pg_", "lo_", "dblink", "file_"}

var writeNodes = map[string]bool{
	"InsertStmt": true, "UpdateStmt": true, "DeleteStmt": true, "MergeStmt": true,
}

// Validate is the gate every generated statement passes before execution.
// It accepts a single read-only SELECT over queryable catalog tables and
// returns the tables the statement reads.
func Validate(sql string, cat *catalog.Catalog, lim Limits) ([]string, error) {
	sql = cleanStatement(sql)
	if sql == "" {
		return nil, reject("empty statement")
	}
	if lim.MaxLength > 0 && len(sql) > lim.MaxLength {
		return nil, reject("statement is %d characters, limit %d", len(sql), lim.MaxLength)
	}
	if kw := firstKeyword(sql); kw != "SELECT" && kw != "WITH" {
		return nil, reject("statement starts with %q, only SELECT is allowed", kw)
	}

	raw, err := pg_query.ParseToJSON(sql)
	if err != nil {
		return nil, reject("does not parse: %v", err)
	}
	var tree struct {
		Stmts []struct {
			Stmt map[string]any `json:"stmt"`
		} `json:"stmts"`
	}
	if err := json.Unmarshal([]byte(raw), &tree); err != nil {
		return nil, reject("unreadable parse tree: %v", err)
	}
	if len(tree.Stmts) != 1 {
		return nil, reject("expected one statement, got %d", len(tree.Stmts))
	}
	root := tree.Stmts[0].Stmt
	if _, ok := root["SelectStmt"]; !ok || len(root) != 1 {
		return nil, reject("not a SELECT statement")
	}

	refs := collect(root)
	if refs.err != nil {
		return nil, refs.err
	}
	return refs.check(cat, lim)
}

// firstKeyword skips comments and parentheses and returns the first word,
// upper-cased.
func firstKeyword(sql string) string {
	s := sql
	for {
		s = strings.TrimLeftFunc(s, func(r rune) bool { return unicode.IsSpace(r) || r == '(' })
		switch {
		case strings.HasPrefix(s, "--"):
			nl := strings.IndexByte(s, '\n')
			if nl < 0 {
				return ""
			}
			s = s[nl+1:]
		case strings.HasPrefix(s, "/*"):
			end := strings.Index(s, "*/")
			if end < 0 {
				return ""
			}
			s = s[end+2:]
		default:
			end := strings.IndexFunc(s, func(r rune) bool { return !unicode.IsLetter(r) && r != '_' })
			if end < 0 {
				end = len(s)
			}
			return strings.ToUpper(s[:end])
		}
	}
}

type rangeRef struct {
	schema, name, alias string
}

// columnRef is one ColumnRef; sortable refs sit in ORDER BY or GROUP BY,
// where Postgres also resolves target list aliases.
type columnRef struct {
	fields   []string
	sortable bool
}

type references struct {
	ranges  []rangeRef
	ctes    map[string]bool
	aliases map[string]bool // subquery and function aliases
	outputs map[string]bool // target list names, usable from ORDER BY and GROUP BY
	derived map[string]bool // columns exposed by CTEs, subqueries and alias lists
	sorting map[int]bool    // locations of ColumnRefs inside sort and group clauses
	columns []columnRef
	err     error
}

func collect(root map[string]any) *references {
	r := &references{
		ctes:    map[string]bool{},
		aliases: map[string]bool{},
		outputs: map[string]bool{},
		derived: map[string]bool{},
		sorting: map[int]bool{},
	}
	walk(root, func(kind string, node map[string]any) {
		if kind != "SelectStmt" {
			return
		}
		for _, key := range []string{"sortClause", "groupClause"} {
			walk(node[key], func(kind string, ref map[string]any) {
				if kind == "ColumnRef" {
					r.sorting[location(ref)] = true
				}
			})
		}
	})
	walk(root, func(kind string, node map[string]any) {
		if r.err != nil {
			return
		}
		switch {
		case writeNodes[kind]:
			r.err = reject("data-modifying %s inside query", kind)
		case kind == "SelectStmt":
			if _, ok := node["intoClause"]; ok {
				r.err = reject("SELECT INTO creates a table")
			} else if lc, ok := node["lockingClause"].([]any); ok && len(lc) > 0 {
				r.err = reject("row locking clause")
			}
		case kind == "RangeVar":
			r.ranges = append(r.ranges, rangeRef{
				schema: str(node["schemaname"]),
				name:   str(node["relname"]),
				alias:  aliasName(node),
			})
		case kind == "CommonTableExpr":
			r.ctes[strings.ToLower(str(node["ctename"]))] = true
			r.addColNames(node["aliascolnames"])
			r.addTargets(node["ctequery"])
		case kind == "RangeSubselect" || kind == "RangeFunction":
			if a := aliasName(node); a != "" {
				r.aliases[a] = true
			}
			if al, ok := node["alias"].(map[string]any); ok {
				r.addColNames(al["colnames"])
			}
			r.addTargets(node["subquery"])
		case kind == "ResTarget":
			if n := str(node["name"]); n != "" {
				r.outputs[strings.ToLower(n)] = true
			}
		case kind == "ColumnRef":
			r.columns = append(r.columns, columnRef{
				fields:   fieldNames(node["fields"]),
				sortable: r.sorting[location(node)],
			})
		case kind == "FuncCall":
			names := fieldNames(node["funcname"])
			if len(names) == 0 {
				return
			}
			fn := names[len(names)-1]
			if len(names) > 1 && names[0] != "pg_catalog" {
				r.err = reject("function %s outside pg_catalog", strings.Join(names, "."))
				return
			}
			if deniedFuncs[fn] {
				r.err = reject("function %s is not allowed", fn)
				return
			}
			for _, p := range deniedFuncPrefixes {
				if strings.HasPrefix(fn, p) {
					r.err = reject("function %s is not allowed", fn)
					return
				}
			}
		}
	})
	return r
}

func (r *references) addColNames(v any) {
	for _, n := range fieldNames(v) {
		r.derived[n] = true
	}
}

// addTargets records the output names of a subquery: explicit aliases,
// bare column names and function names. Set operations take the names of
// their left arm.
func (r *references) addTargets(v any) {
	wrapper, ok := v.(map[string]any)
	if !ok {
		return
	}
	sel, ok := wrapper["SelectStmt"].(map[string]any)
	if !ok {
		return
	}
	if larg, ok := sel["larg"].(map[string]any); ok {
		r.addTargets(map[string]any{"SelectStmt": larg})
		return
	}
	targets, _ := sel["targetList"].([]any)
	for _, item := range targets {
		m, _ := item.(map[string]any)
		rt, ok := m["ResTarget"].(map[string]any)
		if !ok {
			continue
		}
		if n := str(rt["name"]); n != "" {
			r.derived[strings.ToLower(n)] = true
			continue
		}
		val, _ := rt["val"].(map[string]any)
		if ref, ok := val["ColumnRef"].(map[string]any); ok {
			if f := fieldNames(ref["fields"]); len(f) > 0 {
				r.derived[f[len(f)-1]] = true
			}
		} else if fn, ok := val["FuncCall"].(map[string]any); ok {
			if f := fieldNames(fn["funcname"]); len(f) > 0 {
				r.derived[f[len(f)-1]] = true
			}
		}
	}
}

func (r *references) check(cat *catalog.Catalog, lim Limits) ([]string, error) {
	schema := lim.Schema
	if schema == "" {
		schema = "public"
	}
	maxTables := lim.MaxTables
	if maxTables <= 0 {
		maxTables = len(cat.Queryable())
	}

	bound := map[string]catalog.Table{} // alias or name -> table
	used := map[string]bool{}
	scans := 0
	for _, rv := range r.ranges {
		name := strings.ToLower(rv.name)
		if rv.schema == "" && r.ctes[name] {
			if rv.alias != "" {
				r.aliases[rv.alias] = true
			}
			continue
		}
		if rv.schema != "" && !strings.EqualFold(rv.schema, schema) {
			return nil, reject("schema %s is not allowed", rv.schema)
		}
		t, ok := cat.Table(name)
		if !ok || !t.Queryable {
			return nil, reject("unknown table %s", rv.name)
		}
		scans++
		used[t.Name] = true
		bound[strings.ToLower(t.Name)] = t
		if rv.alias != "" {
			bound[rv.alias] = t
		}
	}
	if scans > maxTables {
		return nil, reject("statement references %d tables, limit %d", scans, maxTables)
	}

	visible := map[string]bool{}
	hidden := map[string]bool{}
	for _, t := range bound {
		for _, c := range t.Columns {
			if c.Hidden {
				hidden[strings.ToLower(c.Name)] = true
			}
		}
		for _, c := range t.VisibleColumns() {
			visible[strings.ToLower(c.Name)] = true
		}
	}

	for _, ref := range r.columns {
		f := ref.fields
		if len(f) == 0 {
			continue
		}
		col := f[len(f)-1]
		if len(f) == 1 {
			switch {
			case col == "*" || visible[col] || r.aliases[col] || bound[col].Name != "":
				continue
			case hidden[col]:
				return nil, reject("unknown column %s", col)
			case r.derived[col] || (ref.sortable && r.outputs[col]):
				continue
			}
			return nil, reject("unknown column %s", col)
		}
		qual := f[len(f)-2]
		if t, ok := bound[qual]; ok {
			if col == "*" {
				continue
			}
			if c, ok := t.Column(col); !ok || c.Hidden {
				return nil, reject("unknown column %s.%s", t.Name, col)
			}
			continue
		}
		if r.aliases[qual] || r.ctes[qual] {
			if col == "*" || visible[col] || r.derived[col] {
				continue
			}
			return nil, reject("unknown column %s.%s", qual, col)
		}
		return nil, reject("unknown table reference %s", qual)
	}

	tables := make([]string, 0, len(used))
	for t := range used {
		tables = append(tables, t)
	}
	sort.Strings(tables)
	return tables, nil
}

// walk visits every parse node; node kinds are the capitalised keys.
func walk(v any, fn func(kind string, node map[string]any)) {
	switch t := v.(type) {
	case map[string]any:
		for k, child := range t {
			if m, ok := child.(map[string]any); ok && k != "" && unicode.IsUpper(rune(k[0])) {
				fn(k, m)
			}
			walk(child, fn)
		}
	case []any:
		for _, c := range t {
			walk(c, fn)
		}
	}
}

func location(node map[string]any) int {
	n, _ := node["location"].(float64)
	return int(n)
}

func str(v any) string {
	s, _ := v.(string)
	return s
}

func aliasName(node map[string]any) string {
	al, ok := node["alias"].(map[string]any)
	if !ok {
		return ""
	}
	return strings.ToLower(str(al["aliasname"]))
}

// fieldNames flattens a list of String / A_Star nodes.
func fieldNames(v any) []string {
	list, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(list))
	for _, item := range list {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		if s, ok := m["String"].(map[string]any); ok {
			name := str(s["sval"])
			if name == "" {
				name = str(s["str"])
			}
			out = append(out, strings.ToLower(name))
			continue
		}
		if _, ok := m["A_Star"]; ok {
			out = append(out, "*")
		}
	}
	return out
}
