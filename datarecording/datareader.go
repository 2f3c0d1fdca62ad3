package datarecording

import (
	"context"
	"database/sql"
	"fmt"
	"reflect"
	"sort"
	"strings"
)

// Cond keeps the rows whose Column compares to Value with Op.
type Cond struct {
	Column string
	Op     string
	Value  any
}

// Eq matches rows where column equals v.
func Eq(column string, v any) Cond { return Cond{column, "=", v} }

// AtLeast matches rows where column is v or more.
func AtLeast(column string, v any) Cond { return Cond{column, ">=", v} }

// AtMost matches rows where column is v or less.
func AtMost(column string, v any) Cond { return Cond{column, "<=", v} }

// QueryParams selects and orders rows. Columns must be fields of the struct
// mapped to the table. OrderBy may also name "rowid", the insertion order.
type QueryParams struct {
	Conds   []Cond
	OrderBy []string

	// Limit caps the number of rows. 0 means no cap.
	Limit int
}

// DataReader reads back the tables written by a DataRecorder.
type DataReader interface {
	// MapTable binds a table to the struct type its rows are read into. A
	// table must be mapped before it is queried.
	MapTable(tableName string, sampleEntry any)

	// ListTables returns the mapped tables.
	ListTables() []string

	// Query returns the matching rows, each as a pointer to a new value of
	// the mapped struct type.
	Query(ctx context.Context, tableName string, params QueryParams) (
		[]any, error)

	// CountBy returns the number of rows per value of column.
	CountBy(ctx context.Context, tableName, column string) (
		map[string]int, error)

	Close() error
}

type sqliteReader struct {
	*sql.DB

	typeMap map[string]reflect.Type
}

// NewReader opens a database file written by a DataRecorder.
func NewReader(dbFilename string) (DataReader, error) {
	db, err := sql.Open("sqlite3", dbFilename)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", dbFilename, err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("open %s: %w", dbFilename, err)
	}

	return NewReaderWithDB(db), nil
}

// NewReaderWithDB reads from an open database.
func NewReaderWithDB(db *sql.DB) DataReader {
	return &sqliteReader{
		DB:      db,
		typeMap: make(map[string]reflect.Type),
	}
}

func (r *sqliteReader) MapTable(tableName string, sampleEntry any) {
	r.typeMap[tableName] = reflect.TypeOf(sampleEntry)
}

func (r *sqliteReader) ListTables() []string {
	tables := make([]string, 0, len(r.typeMap))
	for table := range r.typeMap {
		tables = append(tables, table)
	}

	sort.Strings(tables)

	return tables
}

func (r *sqliteReader) Query(
	ctx context.Context,
	tableName string,
	params QueryParams,
) ([]any, error) {
	structType, err := r.mapped(tableName)
	if err != nil {
		return nil, err
	}

	var (
		sb   strings.Builder
		args []any
	)

	fmt.Fprintf(&sb, "SELECT * FROM %s", tableName)

	for i, c := range params.Conds {
		if !hasColumn(structType, c.Column) {
			return nil, fmt.Errorf("table %s has no column %s",
				tableName, c.Column)
		}

		switch c.Op {
		case "=", ">=", "<=":
		default:
			return nil, fmt.Errorf("unsupported operator %q", c.Op)
		}

		if i == 0 {
			sb.WriteString(" WHERE ")
		} else {
			sb.WriteString(" AND ")
		}

		fmt.Fprintf(&sb, "%s %s ?", c.Column, c.Op)
		args = append(args, c.Value)
	}

	for i, col := range params.OrderBy {
		if col != "rowid" && !hasColumn(structType, col) {
			return nil, fmt.Errorf("table %s has no column %s", tableName, col)
		}

		if i == 0 {
			sb.WriteString(" ORDER BY ")
		} else {
			sb.WriteString(", ")
		}

		sb.WriteString(col)
	}

	if params.Limit > 0 {
		fmt.Fprintf(&sb, " LIMIT %d", params.Limit)
	}

	rows, err := r.DB.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanRowsToSlice(rows, structType)
}

func (r *sqliteReader) CountBy(
	ctx context.Context,
	tableName, column string,
) (map[string]int, error) {
	structType, err := r.mapped(tableName)
	if err != nil {
		return nil, err
	}

	if !hasColumn(structType, column) {
		return nil, fmt.Errorf("table %s has no column %s", tableName, column)
	}

	rows, err := r.DB.QueryContext(ctx, fmt.Sprintf(
		"SELECT %s, COUNT(*) FROM %s GROUP BY %s", column, tableName, column))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int)

	for rows.Next() {
		var (
			key sql.NullString
			n   int
		)

		if err := rows.Scan(&key, &n); err != nil {
			return nil, err
		}

		counts[key.String] = n
	}

	return counts, rows.Err()
}

func (r *sqliteReader) mapped(tableName string) (reflect.Type, error) {
	structType, ok := r.typeMap[tableName]
	if !ok {
		return nil, fmt.Errorf("no mapping found for table: %s", tableName)
	}

	return structType, nil
}

func hasColumn(structType reflect.Type, name string) bool {
	_, ok := structType.FieldByName(name)
	return ok
}

// scanRowsToSlice fills one struct per row, matching columns to fields by
// name. Columns without a field are dropped.
func scanRowsToSlice(rows *sql.Rows, structType reflect.Type) ([]any, error) {
	var results []any

	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	for rows.Next() {
		structPtr := reflect.New(structType)
		structVal := structPtr.Elem()
		scanTargets := make([]any, len(columns))

		for i, colName := range columns {
			if f := structVal.FieldByName(colName); f.IsValid() {
				scanTargets[i] = f.Addr().Interface()
			} else {
				var placeholder any

				scanTargets[i] = &placeholder
			}
		}

		if err := rows.Scan(scanTargets...); err != nil {
			return nil, err
		}

		results = append(results, structPtr.Interface())
	}

	return results, rows.Err()
}

func (r *sqliteReader) Close() error {
	return r.DB.Close()
}
