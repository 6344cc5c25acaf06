package types

import (
	"time"
)

// ComponentKind identifies one of the five component variants.
type ComponentKind string

const (
	KindCollector          ComponentKind = "collector"
	KindHarvester          ComponentKind = "harvester"
	KindHandler            ComponentKind = "handler"
	KindAssetsManager      ComponentKind = "assets-manager"
	KindCustomTableManager ComponentKind = "custom-table-manager"
)

// TriggerMode controls how a harvester is scheduled.
type TriggerMode string

const (
	// TriggerOnSource runs the harvester when its source collector completes.
	TriggerOnSource TriggerMode = "onSource"
	// TriggerScheduled runs the harvester on its own cron pattern.
	TriggerScheduled TriggerMode = "scheduled"
	// TriggerBoth registers the cron pattern and wires the source trigger.
	TriggerBoth TriggerMode = "both"
)

// QueueName identifies one of the four job queues.
type QueueName string

const (
	QueueCollectors QueueName = "collectors"
	QueueHarvesters QueueName = "harvesters"
	QueuePriority   QueueName = "priority"
	QueueUploads    QueueName = "uploads"
)

// UploadStatus tracks the lifecycle of an async asset upload.
type UploadStatus string

const (
	UploadPending    UploadStatus = "pending"
	UploadProcessing UploadStatus = "processing"
	UploadCompleted  UploadStatus = "completed"
	UploadFailed     UploadStatus = "failed"
)

// Record is one row of a component's table. The blob referenced by URL
// exists at the moment of insert and is retained until the record is deleted.
type Record struct {
	ID          int64     `db:"id" json:"id"`
	Name        string    `db:"name" json:"name"`
	ContentType string    `db:"content_type" json:"contentType"`
	URL         string    `db:"url" json:"url"`
	Date        time.Time `db:"date" json:"date"`
}

// AssetRecord extends Record with the fields of user-owned binary assets.
// OwnerID is nil for records created outside an authenticated request.
type AssetRecord struct {
	Record
	Description string `db:"description" json:"description"`
	Source      string `db:"source" json:"source"`
	OwnerID     *int64 `db:"owner_id" json:"ownerId"`
	Filename    string `db:"filename" json:"filename"`
	IsPublic    bool   `db:"is_public" json:"isPublic"`
}

// TilesetRecord extends AssetRecord with the async-upload bookkeeping
// columns. The record is inserted before the upload job runs and preserved
// on failure for debugging.
type TilesetRecord struct {
	AssetRecord
	TilesetURL   string       `db:"tileset_url" json:"tilesetUrl"`
	UploadStatus UploadStatus `db:"upload_status" json:"uploadStatus"`
	UploadError  string       `db:"upload_error" json:"uploadError"`
	UploadJobID  string       `db:"upload_job_id" json:"uploadJobId"`
}

// User is a persisted user row with its reconciled role set.
type User struct {
	ID         int64     `db:"id" json:"id"`
	ExternalID string    `db:"external_id" json:"externalId"`
	Roles      []string  `db:"-" json:"roles"`
	CreatedAt  time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt  time.Time `db:"updated_at" json:"updatedAt"`
}

// HasRole reports whether the user carries the given role.
func (u *User) HasRole(role string) bool {
	for _, r := range u.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// Identity is the caller identity extracted from a request by the auth
// provider, before user reconciliation.
type Identity struct {
	ID    string   `json:"id"`
	Roles []string `json:"roles"`
}

// HasRole reports whether the identity carries the given role.
func (i *Identity) HasRole(role string) bool {
	for _, r := range i.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// JobPayload is the wire payload carried by scheduler-issued jobs.
type JobPayload struct {
	Type        string    `json:"type"`
	TriggeredBy string    `json:"triggeredBy"`
	Source      string    `json:"source,omitempty"`
	Timestamp   time.Time `json:"timestamp,omitempty"`
}

// ColumnType enumerates the column types a custom table may declare.
type ColumnType string

const (
	ColumnText      ColumnType = "text"
	ColumnInteger   ColumnType = "integer"
	ColumnReal      ColumnType = "real"
	ColumnBoolean   ColumnType = "boolean"
	ColumnTimestamp ColumnType = "timestamp"
)

// ColumnSpec declares one column of a component table.
type ColumnSpec struct {
	Name    string     `json:"name" yaml:"name"`
	Type    ColumnType `json:"type" yaml:"type"`
	NotNull bool       `json:"notNull" yaml:"notNull"`
	Default string     `json:"default,omitempty" yaml:"default,omitempty"`
}
