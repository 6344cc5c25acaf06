package record

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/pressly/goose/v3"

	"github.com/twinforge/twinforge/pkg/errdefs"
	"github.com/twinforge/twinforge/pkg/types"
)

//go:embed migrations
var migrationsFS embed.FS

const (
	recordCols  = "id, name, content_type, url, date"
	assetCols   = recordCols + ", description, source, owner_id, filename, is_public"
	tilesetCols = assetCols + ", tileset_url, upload_status, upload_error, upload_job_id"
)

// SQLStore implements Store on top of sqlx with the sqlite3 or postgres
// driver.
type SQLStore struct {
	db     *sqlx.DB
	driver string
}

// Open connects to the database, runs the user-triad migrations, and
// returns the store.
func Open(driver, dsn string) (*SQLStore, error) {
	if driver != "sqlite3" && driver != "postgres" {
		return nil, errdefs.Newf(errdefs.KindConfiguration, "unsupported database driver: %q", driver)
	}

	db, err := sqlx.Connect(driver, dsn)
	if err != nil {
		return nil, errdefs.Wrap(errdefs.KindDatabase, "failed to connect to database", err)
	}

	goose.SetBaseFS(migrationsFS)
	if err := goose.SetDialect(driver); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set migration dialect: %w", err)
	}
	if err := goose.Up(db.DB, "migrations/"+driver); err != nil {
		db.Close()
		return nil, errdefs.Wrap(errdefs.KindDatabase, "failed to run user migrations", err)
	}

	return &SQLStore{db: db, driver: driver}, nil
}

// Close closes the database.
func (s *SQLStore) Close() error {
	return s.db.Close()
}

// EnsureTable creates the table when absent or adds missing columns.
func (s *SQLStore) EnsureTable(ctx context.Context, table string, cols []types.ColumnSpec) (*MigrationDiff, error) {
	if err := ValidateTableName(table); err != nil {
		return nil, err
	}
	for _, col := range cols {
		if err := ValidateTableName(col.Name); err != nil {
			return nil, errdefs.Newf(errdefs.KindConfiguration, "invalid column name %q in table %q", col.Name, table)
		}
	}

	diff := &MigrationDiff{Table: table}

	existing, err := s.tableColumns(ctx, table)
	if err != nil {
		return nil, err
	}

	if existing == nil {
		defs := []string{s.idColumnDef()}
		for _, col := range cols {
			defs = append(defs, s.columnDef(col))
		}
		stmt := fmt.Sprintf("CREATE TABLE %s (%s)", table, strings.Join(defs, ", "))
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return nil, errdefs.Wrap(errdefs.KindDatabase, "failed to create table "+table, err)
		}
		if err := s.ensureIndexes(ctx, table, cols); err != nil {
			return nil, err
		}
		diff.Created = true
		return diff, nil
	}

	for _, col := range cols {
		if _, ok := existing[col.Name]; ok {
			continue
		}
		// Added columns are nullable or defaulted so existing rows stay valid.
		def := s.columnDefForAlter(col)
		stmt := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s", table, def)
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return nil, errdefs.Wrap(errdefs.KindDatabase, "failed to add column "+col.Name, err)
		}
		diff.AddedColumns = append(diff.AddedColumns, col.Name)
	}

	if err := s.ensureIndexes(ctx, table, cols); err != nil {
		return nil, err
	}
	return diff, nil
}

// tableColumns returns the existing column set, or nil when the table does
// not exist.
func (s *SQLStore) tableColumns(ctx context.Context, table string) (map[string]bool, error) {
	cols := make(map[string]bool)

	if s.driver == "sqlite3" {
		rows, err := s.db.QueryxContext(ctx, fmt.Sprintf("PRAGMA table_info(%s)", table))
		if err != nil {
			return nil, errdefs.Wrap(errdefs.KindDatabase, "failed to inspect table "+table, err)
		}
		defer rows.Close()
		for rows.Next() {
			row := make(map[string]interface{})
			if err := rows.MapScan(row); err != nil {
				return nil, errdefs.Wrap(errdefs.KindDatabase, "failed to scan table info", err)
			}
			if name, ok := row["name"].(string); ok {
				cols[name] = true
			}
		}
		if len(cols) == 0 {
			return nil, nil
		}
		return cols, nil
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT column_name FROM information_schema.columns WHERE table_name = $1", table)
	if err != nil {
		return nil, errdefs.Wrap(errdefs.KindDatabase, "failed to inspect table "+table, err)
	}
	defer rows.Close()
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, errdefs.Wrap(errdefs.KindDatabase, "failed to scan column name", err)
		}
		cols[name] = true
	}
	if len(cols) == 0 {
		return nil, nil
	}
	return cols, nil
}

func (s *SQLStore) ensureIndexes(ctx context.Context, table string, cols []types.ColumnSpec) error {
	hasDate := false
	hasOwner := false
	for _, col := range cols {
		switch col.Name {
		case "date":
			hasDate = true
		case "owner_id":
			hasOwner = true
		}
	}

	if hasDate {
		stmt := fmt.Sprintf("CREATE INDEX IF NOT EXISTS idx_%s_name_date ON %s (name, date)", table, table)
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return errdefs.Wrap(errdefs.KindDatabase, "failed to create date index", err)
		}
	}
	if hasOwner {
		stmt := fmt.Sprintf("CREATE INDEX IF NOT EXISTS idx_%s_owner ON %s (owner_id)", table, table)
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return errdefs.Wrap(errdefs.KindDatabase, "failed to create owner index", err)
		}
	}
	return nil
}

func (s *SQLStore) idColumnDef() string {
	if s.driver == "postgres" {
		return "id BIGSERIAL PRIMARY KEY"
	}
	return "id INTEGER PRIMARY KEY AUTOINCREMENT"
}

func (s *SQLStore) columnType(t types.ColumnType) string {
	switch t {
	case types.ColumnInteger:
		if s.driver == "postgres" {
			return "BIGINT"
		}
		return "INTEGER"
	case types.ColumnReal:
		if s.driver == "postgres" {
			return "DOUBLE PRECISION"
		}
		return "REAL"
	case types.ColumnBoolean:
		return "BOOLEAN"
	case types.ColumnTimestamp:
		if s.driver == "postgres" {
			return "TIMESTAMPTZ"
		}
		return "TIMESTAMP"
	default:
		return "TEXT"
	}
}

func (s *SQLStore) columnDef(col types.ColumnSpec) string {
	def := col.Name + " " + s.columnType(col.Type)
	if col.NotNull {
		def += " NOT NULL"
	}
	if col.Default != "" {
		def += " DEFAULT " + col.Default
	}
	return def
}

// columnDefForAlter drops NOT NULL unless a default exists, so the column
// can be added to a table that already has rows.
func (s *SQLStore) columnDefForAlter(col types.ColumnSpec) string {
	def := col.Name + " " + s.columnType(col.Type)
	if col.Default != "" {
		if col.NotNull {
			def += " NOT NULL"
		}
		def += " DEFAULT " + col.Default
	}
	return def
}

// Insert inserts a base record and assigns its ID.
func (s *SQLStore) Insert(ctx context.Context, table string, rec *types.Record) error {
	if err := ValidateTableName(table); err != nil {
		return err
	}
	if rec.Date.IsZero() {
		rec.Date = time.Now().UTC()
	}

	stmt := fmt.Sprintf("INSERT INTO %s (name, content_type, url, date) VALUES (?, ?, ?, ?)", table)
	id, err := s.execInsert(ctx, stmt, rec.Name, rec.ContentType, rec.URL, rec.Date)
	if err != nil {
		return err
	}
	rec.ID = id
	return nil
}

// InsertAsset inserts an asset record, validating its source URL.
func (s *SQLStore) InsertAsset(ctx context.Context, table string, rec *types.AssetRecord) error {
	if err := ValidateTableName(table); err != nil {
		return err
	}
	if err := validateSource(rec.Source); err != nil {
		return err
	}
	if rec.Date.IsZero() {
		rec.Date = time.Now().UTC()
	}

	stmt := fmt.Sprintf(
		"INSERT INTO %s (name, content_type, url, date, description, source, owner_id, filename, is_public) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)",
		table)
	id, err := s.execInsert(ctx, stmt,
		rec.Name, rec.ContentType, rec.URL, rec.Date,
		rec.Description, rec.Source, rec.OwnerID, rec.Filename, rec.IsPublic)
	if err != nil {
		return err
	}
	rec.ID = id
	return nil
}

// InsertTileset inserts a tileset record with its upload bookkeeping.
func (s *SQLStore) InsertTileset(ctx context.Context, table string, rec *types.TilesetRecord) error {
	if err := ValidateTableName(table); err != nil {
		return err
	}
	if err := validateSource(rec.Source); err != nil {
		return err
	}
	if rec.Date.IsZero() {
		rec.Date = time.Now().UTC()
	}
	if rec.UploadStatus == "" {
		rec.UploadStatus = types.UploadPending
	}

	stmt := fmt.Sprintf(
		"INSERT INTO %s (name, content_type, url, date, description, source, owner_id, filename, is_public, tileset_url, upload_status, upload_error, upload_job_id) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)",
		table)
	id, err := s.execInsert(ctx, stmt,
		rec.Name, rec.ContentType, rec.URL, rec.Date,
		rec.Description, rec.Source, rec.OwnerID, rec.Filename, rec.IsPublic,
		rec.TilesetURL, rec.UploadStatus, rec.UploadError, rec.UploadJobID)
	if err != nil {
		return err
	}
	rec.ID = id
	return nil
}

// execInsert runs an insert and returns the assigned row id, handling the
// dialect difference around RETURNING.
func (s *SQLStore) execInsert(ctx context.Context, stmt string, args ...interface{}) (int64, error) {
	if s.driver == "postgres" {
		var id int64
		q := s.db.Rebind(stmt + " RETURNING id")
		if err := s.db.QueryRowxContext(ctx, q, args...).Scan(&id); err != nil {
			return 0, errdefs.Wrap(errdefs.KindDatabase, "failed to insert record", err)
		}
		return id, nil
	}

	res, err := s.db.ExecContext(ctx, s.db.Rebind(stmt), args...)
	if err != nil {
		return 0, errdefs.Wrap(errdefs.KindDatabase, "failed to insert record", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, errdefs.Wrap(errdefs.KindDatabase, "failed to read insert id", err)
	}
	return id, nil
}

// Get returns one record by id.
func (s *SQLStore) Get(ctx context.Context, table string, id int64) (*types.Record, error) {
	if err := ValidateTableName(table); err != nil {
		return nil, err
	}
	var rec types.Record
	q := s.db.Rebind(fmt.Sprintf("SELECT %s FROM %s WHERE id = ?", recordCols, table))
	if err := s.db.GetContext(ctx, &rec, q, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errdefs.Newf(errdefs.KindNotFound, "record %d not found in %s", id, table)
		}
		return nil, errdefs.Wrap(errdefs.KindDatabase, "failed to get record", err)
	}
	return &rec, nil
}

// GetAsset returns one asset record by id.
func (s *SQLStore) GetAsset(ctx context.Context, table string, id int64) (*types.AssetRecord, error) {
	if err := ValidateTableName(table); err != nil {
		return nil, err
	}
	var rec types.AssetRecord
	q := s.db.Rebind(fmt.Sprintf("SELECT %s FROM %s WHERE id = ?", assetCols, table))
	if err := s.db.GetContext(ctx, &rec, q, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errdefs.Newf(errdefs.KindNotFound, "asset %d not found in %s", id, table)
		}
		return nil, errdefs.Wrap(errdefs.KindDatabase, "failed to get asset", err)
	}
	return &rec, nil
}

// GetTileset returns one tileset record by id.
func (s *SQLStore) GetTileset(ctx context.Context, table string, id int64) (*types.TilesetRecord, error) {
	if err := ValidateTableName(table); err != nil {
		return nil, err
	}
	var rec types.TilesetRecord
	q := s.db.Rebind(fmt.Sprintf("SELECT %s FROM %s WHERE id = ?", tilesetCols, table))
	if err := s.db.GetContext(ctx, &rec, q, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errdefs.Newf(errdefs.KindNotFound, "tileset %d not found in %s", id, table)
		}
		return nil, errdefs.Wrap(errdefs.KindDatabase, "failed to get tileset", err)
	}
	return &rec, nil
}

// Latest returns the newest record, or nil when the table is empty.
func (s *SQLStore) Latest(ctx context.Context, table string) (*types.Record, error) {
	return s.edge(ctx, table, "DESC")
}

// First returns the oldest record, or nil when the table is empty.
func (s *SQLStore) First(ctx context.Context, table string) (*types.Record, error) {
	return s.edge(ctx, table, "ASC")
}

func (s *SQLStore) edge(ctx context.Context, table, dir string) (*types.Record, error) {
	if err := ValidateTableName(table); err != nil {
		return nil, err
	}
	var rec types.Record
	q := fmt.Sprintf("SELECT %s FROM %s ORDER BY date %s, id %s LIMIT 1", recordCols, table, dir, dir)
	if err := s.db.GetContext(ctx, &rec, q); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, errdefs.Wrap(errdefs.KindDatabase, "failed to query "+table, err)
	}
	return &rec, nil
}

// RecordsInRange returns records with date in [start, end).
func (s *SQLStore) RecordsInRange(ctx context.Context, table string, start, end time.Time, limit int, desc bool) ([]*types.Record, error) {
	if err := ValidateTableName(table); err != nil {
		return nil, err
	}
	dir := "ASC"
	if desc {
		dir = "DESC"
	}
	q := fmt.Sprintf("SELECT %s FROM %s WHERE date >= ? AND date < ? ORDER BY date %s, id %s", recordCols, table, dir, dir)
	args := []interface{}{start, end}
	if limit > 0 {
		q += " LIMIT ?"
		args = append(args, limit)
	}
	var recs []*types.Record
	if err := s.db.SelectContext(ctx, &recs, s.db.Rebind(q), args...); err != nil {
		return nil, errdefs.Wrap(errdefs.KindDatabase, "failed to query range", err)
	}
	return recs, nil
}

// RecordsAfter returns up to limit records strictly after the given time,
// oldest first.
func (s *SQLStore) RecordsAfter(ctx context.Context, table string, after time.Time, limit int) ([]*types.Record, error) {
	if err := ValidateTableName(table); err != nil {
		return nil, err
	}
	q := fmt.Sprintf("SELECT %s FROM %s WHERE date > ? ORDER BY date ASC, id ASC", recordCols, table)
	args := []interface{}{after}
	if limit > 0 {
		q += " LIMIT ?"
		args = append(args, limit)
	}
	var recs []*types.Record
	if err := s.db.SelectContext(ctx, &recs, s.db.Rebind(q), args...); err != nil {
		return nil, errdefs.Wrap(errdefs.KindDatabase, "failed to query records after", err)
	}
	return recs, nil
}

// LatestBefore returns up to limit records strictly before the given time,
// newest first.
func (s *SQLStore) LatestBefore(ctx context.Context, table string, before time.Time, limit int) ([]*types.Record, error) {
	if err := ValidateTableName(table); err != nil {
		return nil, err
	}
	q := fmt.Sprintf("SELECT %s FROM %s WHERE date < ? ORDER BY date DESC, id DESC", recordCols, table)
	args := []interface{}{before}
	if limit > 0 {
		q += " LIMIT ?"
		args = append(args, limit)
	}
	var recs []*types.Record
	if err := s.db.SelectContext(ctx, &recs, s.db.Rebind(q), args...); err != nil {
		return nil, errdefs.Wrap(errdefs.KindDatabase, "failed to query records before", err)
	}
	return recs, nil
}

// ListAssets returns assets visible to the given owner. A nil ownerID with
// includePublic lists only public assets; a nil ownerID without it lists
// everything (admin view).
func (s *SQLStore) ListAssets(ctx context.Context, table string, ownerID *int64, includePublic bool) ([]*types.AssetRecord, error) {
	if err := ValidateTableName(table); err != nil {
		return nil, err
	}

	q := fmt.Sprintf("SELECT %s FROM %s", assetCols, table)
	var args []interface{}
	switch {
	case ownerID != nil && includePublic:
		q += " WHERE owner_id = ? OR is_public = ?"
		args = append(args, *ownerID, true)
	case ownerID != nil:
		q += " WHERE owner_id = ?"
		args = append(args, *ownerID)
	case includePublic:
		q += " WHERE is_public = ?"
		args = append(args, true)
	}
	q += " ORDER BY date DESC, id DESC"

	var recs []*types.AssetRecord
	if err := s.db.SelectContext(ctx, &recs, s.db.Rebind(q), args...); err != nil {
		return nil, errdefs.Wrap(errdefs.KindDatabase, "failed to list assets", err)
	}
	return recs, nil
}

// UpdateAsset mutates an asset row in place.
func (s *SQLStore) UpdateAsset(ctx context.Context, table string, id int64, upd AssetUpdate) error {
	if err := ValidateTableName(table); err != nil {
		return err
	}

	var sets []string
	var args []interface{}
	if upd.Description != nil {
		sets = append(sets, "description = ?")
		args = append(args, *upd.Description)
	}
	if upd.Source != nil {
		if err := validateSource(*upd.Source); err != nil {
			return err
		}
		sets = append(sets, "source = ?")
		args = append(args, *upd.Source)
	}
	if upd.Filename != nil {
		sets = append(sets, "filename = ?")
		args = append(args, *upd.Filename)
	}
	if upd.IsPublic != nil {
		sets = append(sets, "is_public = ?")
		args = append(args, *upd.IsPublic)
	}
	if len(sets) == 0 {
		return nil
	}

	args = append(args, id)
	q := fmt.Sprintf("UPDATE %s SET %s WHERE id = ?", table, strings.Join(sets, ", "))
	res, err := s.db.ExecContext(ctx, s.db.Rebind(q), args...)
	if err != nil {
		return errdefs.Wrap(errdefs.KindDatabase, "failed to update asset", err)
	}
	return requireRow(res, table, id)
}

// UpdateTilesetUpload updates the async-upload fields of a tileset row.
func (s *SQLStore) UpdateTilesetUpload(ctx context.Context, table string, id int64, upd TilesetUploadUpdate) error {
	if err := ValidateTableName(table); err != nil {
		return err
	}

	var sets []string
	var args []interface{}
	if upd.URL != nil {
		sets = append(sets, "url = ?")
		args = append(args, *upd.URL)
	}
	if upd.TilesetURL != nil {
		sets = append(sets, "tileset_url = ?")
		args = append(args, *upd.TilesetURL)
	}
	if upd.UploadStatus != nil {
		sets = append(sets, "upload_status = ?")
		args = append(args, string(*upd.UploadStatus))
	}
	if upd.UploadError != nil {
		sets = append(sets, "upload_error = ?")
		args = append(args, *upd.UploadError)
	}
	if len(sets) == 0 {
		return nil
	}

	args = append(args, id)
	q := fmt.Sprintf("UPDATE %s SET %s WHERE id = ?", table, strings.Join(sets, ", "))
	res, err := s.db.ExecContext(ctx, s.db.Rebind(q), args...)
	if err != nil {
		return errdefs.Wrap(errdefs.KindDatabase, "failed to update tileset upload", err)
	}
	return requireRow(res, table, id)
}

// Delete removes one record by id.
func (s *SQLStore) Delete(ctx context.Context, table string, id int64) error {
	if err := ValidateTableName(table); err != nil {
		return err
	}
	q := s.db.Rebind(fmt.Sprintf("DELETE FROM %s WHERE id = ?", table))
	res, err := s.db.ExecContext(ctx, q, id)
	if err != nil {
		return errdefs.Wrap(errdefs.KindDatabase, "failed to delete record", err)
	}
	return requireRow(res, table, id)
}

// CustomInsert inserts a row into a custom table and returns its id.
func (s *SQLStore) CustomInsert(ctx context.Context, table string, values map[string]interface{}) (int64, error) {
	if err := ValidateTableName(table); err != nil {
		return 0, err
	}
	cols, args, err := sortedColumns(values)
	if err != nil {
		return 0, err
	}
	if len(cols) == 0 {
		return 0, errdefs.New(errdefs.KindValidation, "no columns to insert")
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(cols)), ", ")
	stmt := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", table, strings.Join(cols, ", "), placeholders)
	return s.execInsert(ctx, stmt, args...)
}

// CustomGet returns one row of a custom table as a column map.
func (s *SQLStore) CustomGet(ctx context.Context, table string, id int64) (map[string]interface{}, error) {
	if err := ValidateTableName(table); err != nil {
		return nil, err
	}
	q := s.db.Rebind(fmt.Sprintf("SELECT * FROM %s WHERE id = ?", table))
	row := s.db.QueryRowxContext(ctx, q, id)
	values := make(map[string]interface{})
	if err := row.MapScan(values); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errdefs.Newf(errdefs.KindNotFound, "row %d not found in %s", id, table)
		}
		return nil, errdefs.Wrap(errdefs.KindDatabase, "failed to get row", err)
	}
	return normalizeRow(values), nil
}

// normalizeRow converts driver byte slices to strings so rows marshal as
// text instead of base64.
func normalizeRow(values map[string]interface{}) map[string]interface{} {
	for k, v := range values {
		if b, ok := v.([]byte); ok {
			values[k] = string(b)
		}
	}
	return values
}

// CustomList returns rows of a custom table ordered by id.
func (s *SQLStore) CustomList(ctx context.Context, table string, limit, offset int) ([]map[string]interface{}, error) {
	if err := ValidateTableName(table); err != nil {
		return nil, err
	}
	q := fmt.Sprintf("SELECT * FROM %s ORDER BY id", table)
	var args []interface{}
	if limit > 0 {
		q += " LIMIT ? OFFSET ?"
		args = append(args, limit, offset)
	}
	rows, err := s.db.QueryxContext(ctx, s.db.Rebind(q), args...)
	if err != nil {
		return nil, errdefs.Wrap(errdefs.KindDatabase, "failed to list rows", err)
	}
	defer rows.Close()

	var out []map[string]interface{}
	for rows.Next() {
		values := make(map[string]interface{})
		if err := rows.MapScan(values); err != nil {
			return nil, errdefs.Wrap(errdefs.KindDatabase, "failed to scan row", err)
		}
		out = append(out, normalizeRow(values))
	}
	return out, rows.Err()
}

// CustomUpdate updates columns of one row in a custom table.
func (s *SQLStore) CustomUpdate(ctx context.Context, table string, id int64, values map[string]interface{}) error {
	if err := ValidateTableName(table); err != nil {
		return err
	}
	cols, args, err := sortedColumns(values)
	if err != nil {
		return err
	}
	if len(cols) == 0 {
		return nil
	}

	sets := make([]string, len(cols))
	for i, c := range cols {
		sets[i] = c + " = ?"
	}
	args = append(args, id)
	q := fmt.Sprintf("UPDATE %s SET %s WHERE id = ?", table, strings.Join(sets, ", "))
	res, err := s.db.ExecContext(ctx, s.db.Rebind(q), args...)
	if err != nil {
		return errdefs.Wrap(errdefs.KindDatabase, "failed to update row", err)
	}
	return requireRow(res, table, id)
}

// CustomDelete removes one row of a custom table.
func (s *SQLStore) CustomDelete(ctx context.Context, table string, id int64) error {
	return s.Delete(ctx, table, id)
}

func sortedColumns(values map[string]interface{}) ([]string, []interface{}, error) {
	cols := make([]string, 0, len(values))
	for c := range values {
		if c == "id" {
			continue
		}
		if err := ValidateTableName(c); err != nil {
			return nil, nil, errdefs.Newf(errdefs.KindValidation, "invalid column name: %q", c)
		}
		cols = append(cols, c)
	}
	sort.Strings(cols)
	args := make([]interface{}, len(cols))
	for i, c := range cols {
		args[i] = values[c]
	}
	return cols, args, nil
}

func requireRow(res sql.Result, table string, id int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return errdefs.Wrap(errdefs.KindDatabase, "failed to read rows affected", err)
	}
	if n == 0 {
		return errdefs.Newf(errdefs.KindNotFound, "record %d not found in %s", id, table)
	}
	return nil
}

// validateSource requires an absolute URL with a host.
func validateSource(source string) error {
	if source == "" {
		return nil
	}
	u, err := url.Parse(source)
	if err != nil || !u.IsAbs() || u.Host == "" {
		return errdefs.Newf(errdefs.KindValidation, "source must be an absolute URL: %q", source)
	}
	return nil
}
