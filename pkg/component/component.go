package component

import (
	"context"

	"github.com/twinforge/twinforge/pkg/blob"
	"github.com/twinforge/twinforge/pkg/errdefs"
	"github.com/twinforge/twinforge/pkg/queue"
	"github.com/twinforge/twinforge/pkg/record"
	"github.com/twinforge/twinforge/pkg/types"
)

// Configuration declares a component to the engine. Name doubles as the
// component's table name and job name; Endpoint is the path segment its
// routes mount under.
type Configuration struct {
	Name        string   `yaml:"name"`
	ContentType string   `yaml:"contentType"`
	Endpoint    string   `yaml:"endpoint"`
	Description string   `yaml:"description"`
	Tags        []string `yaml:"tags"`

	// Schedule is the cron pattern for collectors and scheduled
	// harvesters. Five fields, or six with a leading seconds field.
	Schedule string `yaml:"schedule"`

	// Harvester-specific settings.
	Source            string            `yaml:"source"`
	SourceRange       string            `yaml:"sourceRange"`
	TriggerMode       types.TriggerMode `yaml:"triggerMode"`
	DebounceMs        int               `yaml:"debounceMs"`
	Dependencies      []string          `yaml:"dependencies"`
	DependenciesLimit []int             `yaml:"dependenciesLimit"`
	MultipleResults   bool              `yaml:"multipleResults"`
	SourceRangeMin    bool              `yaml:"sourceRangeMin"`

	// Columns declares the schema of a custom table manager.
	Columns []types.ColumnSpec `yaml:"columns"`
}

// ApplyDefaults fills the harvester defaults.
func (c *Configuration) ApplyDefaults() {
	if c.TriggerMode == "" {
		c.TriggerMode = types.TriggerOnSource
	}
	if c.DebounceMs == 0 {
		c.DebounceMs = 1000
	}
}

// Validate rejects configurations the engine cannot host.
func (c *Configuration) Validate() error {
	if c.Name == "" {
		return errdefs.New(errdefs.KindConfiguration, "component name is empty")
	}
	if err := record.ValidateTableName(c.Name); err != nil {
		return err
	}
	switch c.TriggerMode {
	case "", types.TriggerOnSource, types.TriggerScheduled, types.TriggerBoth:
	default:
		return errdefs.Newf(errdefs.KindConfiguration, "unknown trigger mode %q for %s", c.TriggerMode, c.Name)
	}
	if len(c.DependenciesLimit) > 0 && len(c.DependenciesLimit) != len(c.Dependencies) {
		return errdefs.Newf(errdefs.KindConfiguration, "dependenciesLimit length mismatch for %s", c.Name)
	}
	if c.SourceRange != "" {
		if _, err := ParseSourceRange(c.SourceRange); err != nil {
			return err
		}
	}
	return nil
}

// Component is the contract every variant shares.
type Component interface {
	Configuration() Configuration
	Kind() types.ComponentKind
}

// Collector is a periodic producer. Collect returns the newly-collected
// payload; the framework persists it and emits the completion event.
type Collector interface {
	Component
	Collect(ctx context.Context) ([]byte, error)
}

// HarvestInput is the source slice and dependency data handed to a
// harvester run.
type HarvestInput struct {
	// Records is the selected source slice in ascending date order.
	Records []*types.Record
	// Single marks that Records holds the single latest record rather
	// than a range.
	Single bool
	// Dependencies maps dependency component names to their selected
	// records, newest first.
	Dependencies map[string][]*types.Record
	// Fetch lazily loads a record's payload from the blob store.
	Fetch func(ctx context.Context, rec *types.Record) ([]byte, error)
}

// HarvestResult carries the derived payloads. With multipleResults the
// framework pairs Payloads[i] with the i-th source record's date; otherwise
// only the first payload is persisted.
type HarvestResult struct {
	Payloads [][]byte
}

// Harvester derives new artifacts from previously ingested records.
type Harvester interface {
	Component
	Harvest(ctx context.Context, input *HarvestInput) (*HarvestResult, error)
}

// Servable is implemented by components that contribute HTTP endpoints.
type Servable interface {
	Endpoints() []EndpointSpec
}

// DependencyConsumer is implemented by components that receive the record
// and blob stores at startup.
type DependencyConsumer interface {
	Bind(records record.Store, blobs blob.Store)
}

// UploadQueueConsumer is implemented by components that receive the upload
// queue for async ingestion.
type UploadQueueConsumer interface {
	BindUploadQueue(q queue.Queue)
}

// TableOwner is implemented by components that own a record-store table.
// Columns returns the full column set the table must carry.
type TableOwner interface {
	TableColumns() []types.ColumnSpec
}
