package store

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"regexp"
	"strings"

	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"

	"github.com/symopt/symopt/pkg/coords"
	"github.com/symopt/symopt/pkg/index"
)

// valueColumn holds the numerical payload of every data table.
const valueColumn = "value"

// Store is the file-backed database holding exogenous inputs and endogenous
// results. One SQL table per data table, one TEXT column per coordinate set
// plus a REAL value column.
type Store interface {
	// Path returns the database file location.
	Path() string
	// Initialize creates blank tables for every non-constant data table
	// in the catalog, one NULL-valued row per coordinate combination.
	// Existing populated tables are left alone unless force is set.
	Initialize(ctx context.Context, cat *index.Catalog, force bool) error
	// TableNames lists the store's tables.
	TableNames(ctx context.Context) ([]string, error)
	// ReadTable loads a table, optionally filtered by coordinate values.
	ReadTable(ctx context.Context, name string, filters map[string][]string) (*Table, error)
	// UpdateValues writes one value per frame row, matching records by
	// coordinates, in a single transaction. Frame rows matching no
	// record are logged and skipped unless suppressWarnings is set.
	UpdateValues(ctx context.Context, name string, frame *coords.Frame, values []float64, suppressWarnings bool) error
	// FindNulls describes the records of a table whose value is missing.
	FindNulls(ctx context.Context, name string) ([]string, error)
	// Close releases the underlying database handle.
	Close() error
}

type sqliteStore struct {
	log  logrus.FieldLogger
	path string
	db   *sql.DB
}

// Open opens or creates the database file at path.
func Open(log logrus.FieldLogger, path string) (Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database %s: %w", path, err)
	}

	// Serialized access keeps transactions simple.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()

		return nil, fmt.Errorf("configuring database: %w", err)
	}

	return &sqliteStore{
		log:  log.WithField("component", "store"),
		path: path,
		db:   db,
	}, nil
}

func (s *sqliteStore) Path() string {
	return s.path
}

func (s *sqliteStore) Close() error {
	return s.db.Close()
}

var identifierRe = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_ -]*$`)

func quoteIdent(name string) (string, error) {
	if !identifierRe.MatchString(name) {
		return "", fmt.Errorf("%w: %q", ErrBadIdentifier, name)
	}

	return `"` + name + `"`, nil
}

func (s *sqliteStore) Initialize(ctx context.Context, cat *index.Catalog, force bool) error {
	// Set tables mirror the model declaration and are always rebuilt.
	for _, set := range cat.Sets() {
		if err := s.materializeSet(ctx, set); err != nil {
			return err
		}
	}

	for _, table := range cat.Tables() {
		if uniform, ok := table.Type.UniformType(); ok && uniform == index.TypeConstant {
			continue
		}

		if err := s.initializeTable(ctx, cat, table, force); err != nil {
			return err
		}
	}

	return nil
}

func (s *sqliteStore) initializeTable(
	ctx context.Context,
	cat *index.Catalog,
	table *index.DataTable,
	force bool,
) error {
	count, err := s.countRows(ctx, table.Name)
	if err != nil {
		return err
	}

	switch {
	case count > 0 && !force:
		s.log.WithFields(logrus.Fields{
			"table": table.Name,
			"rows":  count,
		}).Debug("Table already populated, skipping blank initialization")

		return nil
	case count > 0:
		name, err := quoteIdent(table.Name)
		if err != nil {
			return err
		}

		if _, err := s.db.ExecContext(ctx, "DROP TABLE "+name); err != nil {
			return fmt.Errorf("dropping table %s: %w", table.Name, err)
		}
	}

	if err := s.createTable(ctx, table); err != nil {
		return err
	}

	frame, err := cat.TableFrame(table)
	if err != nil {
		return fmt.Errorf("building coordinates for %s: %w", table.Name, err)
	}

	if err := s.insertBlankRows(ctx, table, frame); err != nil {
		return err
	}

	s.log.WithFields(logrus.Fields{
		"table": table.Name,
		"rows":  frame.Len(),
	}).Info("Initialized blank table")

	return nil
}

// materializeSet rebuilds the _set_<name> lookup table: one row per item,
// one TEXT column per category key.
func (s *sqliteStore) materializeSet(ctx context.Context, set *index.Set) error {
	name, err := quoteIdent("_set_" + set.Name)
	if err != nil {
		return err
	}

	if _, err := s.db.ExecContext(ctx, "DROP TABLE IF EXISTS "+name); err != nil {
		return fmt.Errorf("dropping set table %s: %w", set.Name, err)
	}

	categories := set.CategoryKeys()

	columns := make([]string, 0, len(categories)+2)
	columns = append(columns, `"id" INTEGER PRIMARY KEY AUTOINCREMENT`, `"name" TEXT NOT NULL`)
	cols := []string{`"name"`}
	holes := []string{"?"}

	for _, key := range categories {
		col, err := quoteIdent(key)
		if err != nil {
			return err
		}

		columns = append(columns, col+" TEXT")
		cols = append(cols, col)
		holes = append(holes, "?")
	}

	stmt := fmt.Sprintf("CREATE TABLE %s (%s)", name, strings.Join(columns, ", "))
	if _, err := s.db.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("creating set table %s: %w", set.Name, err)
	}

	insert := fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES (%s)",
		name, strings.Join(cols, ", "), strings.Join(holes, ", "),
	)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // rollback after commit is a no-op.

	prepared, err := tx.PrepareContext(ctx, insert)
	if err != nil {
		return fmt.Errorf("preparing insert for set %s: %w", set.Name, err)
	}
	defer prepared.Close()

	for _, item := range set.Items {
		args := make([]any, 0, len(categories)+1)
		args = append(args, item.Name)

		for _, key := range categories {
			args = append(args, item.Categories[key])
		}

		if _, err := prepared.ExecContext(ctx, args...); err != nil {
			return fmt.Errorf("inserting into set table %s: %w", set.Name, err)
		}
	}

	return tx.Commit()
}

// countRows returns 0 for tables that do not exist yet.
func (s *sqliteStore) countRows(ctx context.Context, table string) (int, error) {
	name, err := quoteIdent(table)
	if err != nil {
		return 0, err
	}

	var exists int

	err = s.db.QueryRowContext(
		ctx,
		"SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?",
		table,
	).Scan(&exists)
	if err != nil {
		return 0, fmt.Errorf("checking table %s: %w", table, err)
	}

	if exists == 0 {
		return 0, nil
	}

	var count int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+name).Scan(&count); err != nil {
		return 0, fmt.Errorf("counting rows of %s: %w", table, err)
	}

	return count, nil
}

func (s *sqliteStore) createTable(ctx context.Context, table *index.DataTable) error {
	name, err := quoteIdent(table.Name)
	if err != nil {
		return err
	}

	columns := make([]string, 0, len(table.Coordinates)+2)
	columns = append(columns, `"id" INTEGER PRIMARY KEY AUTOINCREMENT`)

	for _, set := range table.Coordinates {
		col, err := quoteIdent(set)
		if err != nil {
			return err
		}

		columns = append(columns, col+" TEXT NOT NULL")
	}

	columns = append(columns, `"`+valueColumn+`" REAL`)

	stmt := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", name, strings.Join(columns, ", "))

	if _, err := s.db.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("creating table %s: %w", table.Name, err)
	}

	return nil
}

func (s *sqliteStore) insertBlankRows(ctx context.Context, table *index.DataTable, frame *coords.Frame) error {
	name, err := quoteIdent(table.Name)
	if err != nil {
		return err
	}

	cols := make([]string, len(table.Coordinates))
	holes := make([]string, len(table.Coordinates))

	for i, set := range table.Coordinates {
		col, err := quoteIdent(set)
		if err != nil {
			return err
		}

		cols[i] = col
		holes[i] = "?"
	}

	stmt := fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES (%s)",
		name, strings.Join(cols, ", "), strings.Join(holes, ", "),
	)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // rollback after commit is a no-op.

	prepared, err := tx.PrepareContext(ctx, stmt)
	if err != nil {
		return fmt.Errorf("preparing insert for %s: %w", table.Name, err)
	}
	defer prepared.Close()

	for i := 0; i < frame.Len(); i++ {
		row := frame.Row(i)

		args := make([]any, len(row))
		for j, v := range row {
			args[j] = v
		}

		if _, err := prepared.ExecContext(ctx, args...); err != nil {
			return fmt.Errorf("inserting into %s: %w", table.Name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing inserts for %s: %w", table.Name, err)
	}

	return nil
}

func (s *sqliteStore) TableNames(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(
		ctx,
		"SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%' ORDER BY name",
	)
	if err != nil {
		return nil, fmt.Errorf("listing tables: %w", err)
	}
	defer rows.Close()

	var names []string

	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scanning table name: %w", err)
		}

		names = append(names, name)
	}

	return names, rows.Err()
}

// columnNames reads the coordinate columns of a table in schema order,
// excluding id and the value column.
func (s *sqliteStore) columnNames(ctx context.Context, table string) ([]string, error) {
	name, err := quoteIdent(table)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, "SELECT name FROM pragma_table_info("+name+")")
	if err != nil {
		return nil, fmt.Errorf("reading schema of %s: %w", table, err)
	}
	defer rows.Close()

	var columns []string

	for rows.Next() {
		var col string
		if err := rows.Scan(&col); err != nil {
			return nil, fmt.Errorf("scanning column of %s: %w", table, err)
		}

		if col == "id" || col == valueColumn {
			continue
		}

		columns = append(columns, col)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	if columns == nil {
		return nil, fmt.Errorf("%w: %q", ErrUnknownTable, table)
	}

	return columns, nil
}

func (s *sqliteStore) ReadTable(
	ctx context.Context,
	name string,
	filters map[string][]string,
) (*Table, error) {
	columns, err := s.columnNames(ctx, name)
	if err != nil {
		return nil, err
	}

	known := make(map[string]bool, len(columns))
	for _, col := range columns {
		known[col] = true
	}

	quoted, err := quoteIdent(name)
	if err != nil {
		return nil, err
	}

	selectCols := make([]string, 0, len(columns)+2)
	selectCols = append(selectCols, `"id"`)

	for _, col := range columns {
		q, err := quoteIdent(col)
		if err != nil {
			return nil, err
		}

		selectCols = append(selectCols, q)
	}

	selectCols = append(selectCols, `"`+valueColumn+`"`)

	var (
		conditions []string
		args       []any
	)

	for col, values := range filters {
		if !known[col] {
			return nil, fmt.Errorf("%w: %q in table %q", ErrUnknownColumn, col, name)
		}

		q, err := quoteIdent(col)
		if err != nil {
			return nil, err
		}

		holes := make([]string, len(values))
		for i, v := range values {
			holes[i] = "?"

			args = append(args, v)
		}

		conditions = append(conditions, fmt.Sprintf("%s IN (%s)", q, strings.Join(holes, ", ")))
	}

	stmt := fmt.Sprintf("SELECT %s FROM %s", strings.Join(selectCols, ", "), quoted)
	if len(conditions) > 0 {
		stmt += " WHERE " + strings.Join(conditions, " AND ")
	}

	stmt += ` ORDER BY "id"`

	rows, err := s.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("reading table %s: %w", name, err)
	}
	defer rows.Close()

	table := &Table{Name: name, Columns: columns}

	for rows.Next() {
		dest := make([]any, len(columns)+2)
		dest[0] = new(int64)

		for i := range columns {
			dest[i+1] = new(string)
		}

		dest[len(dest)-1] = new(sql.NullFloat64)

		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("scanning row of %s: %w", name, err)
		}

		row := Row{
			ID:     *dest[0].(*int64),
			Coords: make(map[string]string, len(columns)),
		}

		for i, col := range columns {
			row.Coords[col] = *dest[i+1].(*string)
		}

		value := dest[len(dest)-1].(*sql.NullFloat64)
		if value.Valid {
			row.Value = value.Float64
		} else {
			row.Value = math.NaN()
			row.Null = true
		}

		table.Rows = append(table.Rows, row)
	}

	return table, rows.Err()
}

func (s *sqliteStore) UpdateValues(
	ctx context.Context,
	name string,
	frame *coords.Frame,
	values []float64,
	suppressWarnings bool,
) error {
	if frame.Len() != len(values) {
		return fmt.Errorf("%w: %d frame rows, %d values", ErrLengthMismatch, frame.Len(), len(values))
	}

	quoted, err := quoteIdent(name)
	if err != nil {
		return err
	}

	columns := frame.Columns()

	conditions := make([]string, len(columns))

	for i, col := range columns {
		q, err := quoteIdent(col)
		if err != nil {
			return err
		}

		conditions[i] = q + " = ?"
	}

	stmt := fmt.Sprintf(
		`UPDATE %s SET "%s" = ? WHERE %s`,
		quoted, valueColumn, strings.Join(conditions, " AND "),
	)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // rollback after commit is a no-op.

	prepared, err := tx.PrepareContext(ctx, stmt)
	if err != nil {
		return fmt.Errorf("preparing update for %s: %w", name, err)
	}
	defer prepared.Close()

	skipped := 0

	for i := 0; i < frame.Len(); i++ {
		row := frame.Row(i)

		args := make([]any, 0, len(row)+1)
		args = append(args, values[i])

		for _, v := range row {
			args = append(args, v)
		}

		res, err := prepared.ExecContext(ctx, args...)
		if err != nil {
			return fmt.Errorf("updating %s: %w", name, err)
		}

		affected, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("updating %s: %w", name, err)
		}

		if affected == 0 {
			skipped++
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing updates for %s: %w", name, err)
	}

	if skipped > 0 && !suppressWarnings {
		s.log.WithFields(logrus.Fields{
			"table":   name,
			"skipped": skipped,
		}).Warn("Some values matched no store record and were skipped")
	}

	return nil
}

func (s *sqliteStore) FindNulls(ctx context.Context, name string) ([]string, error) {
	columns, err := s.columnNames(ctx, name)
	if err != nil {
		return nil, err
	}

	tableName, err := quoteIdent(name)
	if err != nil {
		return nil, err
	}

	quoted := make([]string, len(columns))

	for i, col := range columns {
		q, err := quoteIdent(col)
		if err != nil {
			return nil, err
		}

		quoted[i] = q
	}

	// SQLite column affinity does not reject non-numeric values, so flag
	// those alongside the nulls.
	value := `"` + valueColumn + `"`
	stmt := fmt.Sprintf(
		`SELECT %s FROM %s WHERE %s IS NULL OR typeof(%s) NOT IN ('integer', 'real') ORDER BY "id"`,
		strings.Join(quoted, ", "), tableName, value, value,
	)

	rows, err := s.db.QueryContext(ctx, stmt)
	if err != nil {
		return nil, fmt.Errorf("scanning %s for missing values: %w", name, err)
	}
	defer rows.Close()

	var out []string

	values := make([]string, len(columns))
	targets := make([]any, len(columns))

	for i := range values {
		targets[i] = &values[i]
	}

	for rows.Next() {
		if err := rows.Scan(targets...); err != nil {
			return nil, fmt.Errorf("scanning record of %s: %w", name, err)
		}

		row := Row{Coords: make(map[string]string, len(columns))}
		for i, col := range columns {
			row.Coords[col] = values[i]
		}

		out = append(out, row.Describe())
	}

	return out, rows.Err()
}
