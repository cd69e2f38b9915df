package analysis

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/csv"
	"encoding/json"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
	_ "modernc.org/sqlite"
)

// tableName is the table structured files are loaded into.
const tableName = "data"

// record is one flattened row; nested keys are joined with ".".
type record map[string]any

// Dataset is a structured file loaded into an in-memory SQLite table.
type Dataset struct {
	db      *sql.DB
	columns []column
	rows    int
}

type column struct {
	name string
	typ  string // INTEGER, REAL or TEXT
}

// loadRecords parses path according to ext.
func loadRecords(path, ext string) ([]record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	switch ext {
	case ".json":
		var v any
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.UseNumber()
		if err := dec.Decode(&v); err != nil {
			return nil, fmt.Errorf("parse json: %w", err)
		}
		return normalize(v), nil
	case ".yaml", ".yml":
		var v any
		if err := yaml.Unmarshal(data, &v); err != nil {
			return nil, fmt.Errorf("parse yaml: %w", err)
		}
		return normalize(v), nil
	case ".csv":
		return parseCSV(data)
	case ".xml":
		return parseXML(data)
	}
	return nil, fmt.Errorf("no loader for %s", ext)
}

// normalize turns a decoded document into records: a list of objects gives
// one record per object, a single object gives one record.
func normalize(v any) []record {
	switch t := v.(type) {
	case []any:
		out := make([]record, 0, len(t))
		for _, item := range t {
			r := record{}
			if m, ok := asMap(item); ok {
				flatten("", m, r)
			} else {
				r["value"] = scalar(item)
			}
			out = append(out, r)
		}
		return out
	default:
		if m, ok := asMap(v); ok {
			r := record{}
			flatten("", m, r)
			return []record{r}
		}
		if v == nil {
			return nil
		}
		return []record{{"value": scalar(v)}}
	}
}

func asMap(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		return m, true
	case map[any]any:
		out := make(map[string]any, len(m))
		for k, val := range m {
			out[fmt.Sprint(k)] = val
		}
		return out, true
	}
	return nil, false
}

func flatten(prefix string, m map[string]any, into record) {
	for k, v := range m {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		if nested, ok := asMap(v); ok {
			flatten(key, nested, into)
			continue
		}
		into[key] = scalar(v)
	}
}

// scalar converts decoded values to SQLite-friendly ones. Lists are stored
// as JSON text.
func scalar(v any) any {
	switch t := v.(type) {
	case nil, string, bool, int64, float64:
		return t
	case int:
		return int64(t)
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return i
		}
		if f, err := t.Float64(); err == nil {
			return f
		}
		return t.String()
	case []any:
		b, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprint(t)
		}
		return string(b)
	default:
		return fmt.Sprint(t)
	}
}

func parseCSV(data []byte) ([]record, error) {
	r := csv.NewReader(bytes.NewReader(data))
	r.TrimLeadingSpace = true
	r.FieldsPerRecord = -1
	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("parse csv header: %w", err)
	}
	for i, h := range header {
		header[i] = cleanCell(h)
	}

	var out []record
	for {
		row, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("parse csv: %w", err)
		}
		rec := record{}
		for i, h := range header {
			if i >= len(row) || h == "" {
				continue
			}
			rec[h] = inferCell(cleanCell(row[i]))
		}
		out = append(out, rec)
	}
	return out, nil
}

func cleanCell(s string) string {
	return strings.TrimSpace(strings.ReplaceAll(s, `"`, ""))
}

// inferCell types a CSV cell; empty cells are NULL.
func inferCell(s string) any {
	if s == "" {
		return nil
	}
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	return s
}

// xmlNode is a generic element tree.
type xmlNode struct {
	name     string
	attrs    map[string]string
	text     string
	children []*xmlNode
}

// parseXML loads the repeated elements of a document as records. The record
// elements are the children of the first element, from the root down, that
// has more than one child.
func parseXML(data []byte) ([]record, error) {
	root, err := xmlTree(data)
	if err != nil {
		return nil, err
	}
	parent := root
	for len(parent.children) == 1 && len(parent.children[0].children) > 0 {
		parent = parent.children[0]
	}
	if len(parent.children) == 0 {
		return []record{xmlRecord(parent)}, nil
	}
	out := make([]record, 0, len(parent.children))
	for _, child := range parent.children {
		out = append(out, xmlRecord(child))
	}
	return out, nil
}

func xmlRecord(n *xmlNode) record {
	r := record{}
	var walk func(prefix string, n *xmlNode)
	walk = func(prefix string, n *xmlNode) {
		for k, v := range n.attrs {
			r[join(prefix, k)] = inferCell(v)
		}
		if len(n.children) == 0 {
			if prefix != "" || len(n.attrs) == 0 {
				key := prefix
				if key == "" {
					key = n.name
				}
				r[key] = inferCell(strings.TrimSpace(n.text))
			}
			return
		}
		for _, c := range n.children {
			walk(join(prefix, c.name), c)
		}
	}
	walk("", n)
	return r
}

func join(prefix, name string) string {
	if prefix == "" {
		return name
	}
	return prefix + "." + name
}

func xmlTree(data []byte) (*xmlNode, error) {
	dec := xml.NewDecoder(bytes.NewReader(data))
	var stack []*xmlNode
	var root *xmlNode
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("parse xml: %w", err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			n := &xmlNode{name: t.Name.Local, attrs: map[string]string{}}
			for _, a := range t.Attr {
				n.attrs[a.Name.Local] = a.Value
			}
			if len(stack) > 0 {
				p := stack[len(stack)-1]
				p.children = append(p.children, n)
			} else if root == nil {
				root = n
			}
			stack = append(stack, n)
		case xml.EndElement:
			if len(stack) > 0 {
				stack = stack[:len(stack)-1]
			}
		case xml.CharData:
			if len(stack) > 0 {
				stack[len(stack)-1].text += string(t)
			}
		}
	}
	if root == nil {
		return nil, fmt.Errorf("parse xml: no root element")
	}
	return root, nil
}

// --- SQLite ---

// newDataset loads records into a fresh in-memory database.
func newDataset(ctx context.Context, recs []record) (*Dataset, error) {
	if len(recs) == 0 {
		return nil, fmt.Errorf("file has no records")
	}
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("open dataset: %w", err)
	}
	// One connection: every connection to :memory: is a separate database.
	db.SetMaxOpenConns(1)

	ds := &Dataset{db: db, columns: inferColumns(recs), rows: len(recs)}
	if err := ds.load(ctx, recs); err != nil {
		db.Close()
		return nil, err
	}
	// The expert's queries must never change the data.
	if _, err := db.ExecContext(ctx, "PRAGMA query_only = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("lock dataset: %w", err)
	}
	return ds, nil
}

func inferColumns(recs []record) []column {
	kinds := map[string]string{}
	for _, r := range recs {
		for k, v := range r {
			kinds[k] = widen(kinds[k], v)
		}
	}
	names := make([]string, 0, len(kinds))
	for k := range kinds {
		names = append(names, k)
	}
	sort.Strings(names)
	cols := make([]column, 0, len(names))
	for _, n := range names {
		typ := kinds[n]
		if typ == "" {
			typ = "TEXT"
		}
		cols = append(cols, column{name: n, typ: typ})
	}
	return cols
}

// widen merges the SQL type seen so far with the type of v.
func widen(cur string, v any) string {
	var t string
	switch v.(type) {
	case nil:
		return cur
	case int64, bool:
		t = "INTEGER"
	case float64:
		t = "REAL"
	default:
		t = "TEXT"
	}
	switch {
	case cur == "" || cur == t:
		return t
	case cur == "TEXT" || t == "TEXT":
		return "TEXT"
	default:
		return "REAL"
	}
}

func quoteIdent(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

func (d *Dataset) load(ctx context.Context, recs []record) error {
	defs := make([]string, len(d.columns))
	names := make([]string, len(d.columns))
	marks := make([]string, len(d.columns))
	for i, c := range d.columns {
		defs[i] = quoteIdent(c.name) + " " + c.typ
		names[i] = quoteIdent(c.name)
		marks[i] = "?"
	}
	if _, err := d.db.ExecContext(ctx, fmt.Sprintf("CREATE TABLE %s (%s)", tableName, strings.Join(defs, ", "))); err != nil {
		return fmt.Errorf("create table: %w", err)
	}

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		tableName, strings.Join(names, ", "), strings.Join(marks, ", ")))
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	vals := make([]any, len(d.columns))
	for _, r := range recs {
		for i, c := range d.columns {
			v := r[c.name]
			if c.typ == "TEXT" && v != nil {
				v = fmt.Sprint(v)
			}
			vals[i] = v
		}
		if _, err := stmt.ExecContext(ctx, vals...); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("insert record: %w", err)
		}
	}
	return tx.Commit()
}

func (d *Dataset) Close() error { return d.db.Close() }

// Schema describes the table for the expert model.
func (d *Dataset) Schema() string {
	parts := make([]string, len(d.columns))
	for i, c := range d.columns {
		parts[i] = quoteIdent(c.name) + " " + c.typ
	}
	return fmt.Sprintf("Table %s (%d rows): %s", tableName, d.rows, strings.Join(parts, ", "))
}

// errNotReadOnly rejects statements that are not queries.
var errNotReadOnly = errors.New("only SELECT queries are allowed")

// Query runs a read-only statement and renders at most maxRows rows as a
// markdown table.
func (d *Dataset) Query(ctx context.Context, query string, maxRows int) (string, error) {
	q := strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(query), ";"))
	fields := strings.Fields(q)
	if len(fields) == 0 {
		return "", errNotReadOnly
	}
	if head := strings.ToUpper(fields[0]); head != "SELECT" && head != "WITH" {
		return "", errNotReadOnly
	}

	rows, err := d.db.QueryContext(ctx, q)
	if err != nil {
		return "", err
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return "", err
	}
	var b strings.Builder
	b.WriteString("| " + strings.Join(cols, " | ") + " |\n")
	b.WriteString("|" + strings.Repeat(" --- |", len(cols)) + "\n")

	vals := make([]any, len(cols))
	ptrs := make([]any, len(cols))
	for i := range vals {
		ptrs[i] = &vals[i]
	}
	n, more := 0, false
	for rows.Next() {
		if n == maxRows {
			more = true
			break
		}
		if err := rows.Scan(ptrs...); err != nil {
			return "", err
		}
		cells := make([]string, len(cols))
		for i, v := range vals {
			cells[i] = cell(v)
		}
		b.WriteString("| " + strings.Join(cells, " | ") + " |\n")
		n++
	}
	if err := rows.Err(); err != nil {
		return "", err
	}
	if n == 0 {
		return "No results found.", nil
	}
	if more {
		fmt.Fprintf(&b, "\n(only the first %d rows are shown)\n", maxRows)
	}
	return strings.TrimRight(b.String(), "\n"), nil
}

func cell(v any) string {
	switch t := v.(type) {
	case nil:
		return "NULL"
	case []byte:
		return string(t)
	default:
		return strings.ReplaceAll(fmt.Sprint(t), "|", `\|`)
	}
}
