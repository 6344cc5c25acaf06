package record

import (
	"context"
	"regexp"
	"time"

	"github.com/twinforge/twinforge/pkg/errdefs"
	"github.com/twinforge/twinforge/pkg/types"
)

// tableNamePattern is the anti-injection gate for component table names.
var tableNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]{0,62}$`)

// ValidateTableName rejects table names that cannot be safely interpolated
// into SQL. It fails loudly with a configuration error.
func ValidateTableName(name string) error {
	if !tableNamePattern.MatchString(name) {
		return errdefs.Newf(errdefs.KindConfiguration, "invalid table name: %q", name)
	}
	return nil
}

// MigrationDiff reports what EnsureTable changed for one table.
type MigrationDiff struct {
	Table        string
	Created      bool
	AddedColumns []string
}

// Changed reports whether the migration touched the table at all.
func (d *MigrationDiff) Changed() bool {
	return d.Created || len(d.AddedColumns) > 0
}

// AssetUpdate carries the in-place mutable fields of an asset record.
// Nil fields are left untouched.
type AssetUpdate struct {
	Description *string
	Source      *string
	Filename    *string
	IsPublic    *bool
}

// TilesetUploadUpdate carries the async-upload fields updated by the upload
// worker. Nil fields are left untouched.
type TilesetUploadUpdate struct {
	URL          *string
	TilesetURL   *string
	UploadStatus *types.UploadStatus
	UploadError  *string
}

// Store defines the interface for the tabular record store shared by all
// components. Implementations must be safe for concurrent use.
type Store interface {
	// EnsureTable creates the table when absent, or additively adds the
	// missing declared columns. Columns are never dropped or narrowed.
	EnsureTable(ctx context.Context, table string, cols []types.ColumnSpec) (*MigrationDiff, error)

	// Record inserts. The record's ID is assigned on insert; a zero Date is
	// replaced with the current time.
	Insert(ctx context.Context, table string, rec *types.Record) error
	InsertAsset(ctx context.Context, table string, rec *types.AssetRecord) error
	InsertTileset(ctx context.Context, table string, rec *types.TilesetRecord) error

	// Record reads. Latest and First return (nil, nil) when the table is
	// empty; Get returns a not-found error.
	Get(ctx context.Context, table string, id int64) (*types.Record, error)
	GetAsset(ctx context.Context, table string, id int64) (*types.AssetRecord, error)
	GetTileset(ctx context.Context, table string, id int64) (*types.TilesetRecord, error)
	Latest(ctx context.Context, table string) (*types.Record, error)
	First(ctx context.Context, table string) (*types.Record, error)

	// RecordsInRange returns records with date in [start, end). A zero limit
	// means no limit. desc selects descending date order.
	RecordsInRange(ctx context.Context, table string, start, end time.Time, limit int, desc bool) ([]*types.Record, error)

	// RecordsAfter returns up to limit records with date strictly after
	// the given time, in ascending date order.
	RecordsAfter(ctx context.Context, table string, after time.Time, limit int) ([]*types.Record, error)

	// LatestBefore returns up to limit records with date strictly before
	// the given time, newest first.
	LatestBefore(ctx context.Context, table string, before time.Time, limit int) ([]*types.Record, error)

	ListAssets(ctx context.Context, table string, ownerID *int64, includePublic bool) ([]*types.AssetRecord, error)

	// UpdateAsset mutates an asset row in place. It must not be implemented
	// as delete+insert; the row id is stable across updates.
	UpdateAsset(ctx context.Context, table string, id int64, upd AssetUpdate) error
	UpdateTilesetUpload(ctx context.Context, table string, id int64, upd TilesetUploadUpdate) error

	Delete(ctx context.Context, table string, id int64) error

	// Custom tables with caller-declared columns.
	CustomInsert(ctx context.Context, table string, values map[string]interface{}) (int64, error)
	CustomGet(ctx context.Context, table string, id int64) (map[string]interface{}, error)
	CustomList(ctx context.Context, table string, limit, offset int) ([]map[string]interface{}, error)
	CustomUpdate(ctx context.Context, table string, id int64, values map[string]interface{}) error
	CustomDelete(ctx context.Context, table string, id int64) error

	// Users. ReconcileUser lazily creates the user and reconciles its role
	// set with the given roles in a single transaction.
	ReconcileUser(ctx context.Context, externalID string, roles []string) (*types.User, error)
	GetUserByExternalID(ctx context.Context, externalID string) (*types.User, error)

	Close() error
}

// BaseColumns returns the column set shared by every component table.
func BaseColumns() []types.ColumnSpec {
	return []types.ColumnSpec{
		{Name: "name", Type: types.ColumnText, NotNull: true},
		{Name: "content_type", Type: types.ColumnText, NotNull: true},
		{Name: "url", Type: types.ColumnText, NotNull: true},
		{Name: "date", Type: types.ColumnTimestamp, NotNull: true},
	}
}

// AssetColumns returns the base columns plus the asset-specific fields.
func AssetColumns() []types.ColumnSpec {
	return append(BaseColumns(),
		types.ColumnSpec{Name: "description", Type: types.ColumnText, Default: "''"},
		types.ColumnSpec{Name: "source", Type: types.ColumnText, Default: "''"},
		types.ColumnSpec{Name: "owner_id", Type: types.ColumnInteger},
		types.ColumnSpec{Name: "filename", Type: types.ColumnText, Default: "''"},
		types.ColumnSpec{Name: "is_public", Type: types.ColumnBoolean, Default: "FALSE"},
	)
}

// TilesetColumns returns the asset columns plus the async-upload fields.
func TilesetColumns() []types.ColumnSpec {
	return append(AssetColumns(),
		types.ColumnSpec{Name: "tileset_url", Type: types.ColumnText, Default: "''"},
		types.ColumnSpec{Name: "upload_status", Type: types.ColumnText, Default: "'pending'"},
		types.ColumnSpec{Name: "upload_error", Type: types.ColumnText, Default: "''"},
		types.ColumnSpec{Name: "upload_job_id", Type: types.ColumnText, Default: "''"},
	)
}
