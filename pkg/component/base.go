package component

import (
	"context"

	"github.com/twinforge/twinforge/pkg/blob"
	"github.com/twinforge/twinforge/pkg/record"
	"github.com/twinforge/twinforge/pkg/types"
)

// Base carries the configuration and bound stores shared by the concrete
// component helpers. Embed it to get Configuration and Bind for free.
type Base struct {
	cfg     Configuration
	Records record.Store
	Blobs   blob.Store
}

// NewBase normalizes the configuration and wraps it.
func NewBase(cfg Configuration) Base {
	cfg.ApplyDefaults()
	return Base{cfg: cfg}
}

func (b *Base) Configuration() Configuration { return b.cfg }

func (b *Base) Bind(records record.Store, blobs blob.Store) {
	b.Records = records
	b.Blobs = blobs
}

// CollectorFunc adapts a plain function into a Collector.
type CollectorFunc struct {
	Base
	Fn func(ctx context.Context) ([]byte, error)
}

// NewCollector builds a function-backed collector.
func NewCollector(cfg Configuration, fn func(ctx context.Context) ([]byte, error)) *CollectorFunc {
	return &CollectorFunc{Base: NewBase(cfg), Fn: fn}
}

func (c *CollectorFunc) Kind() types.ComponentKind { return types.KindCollector }

func (c *CollectorFunc) Collect(ctx context.Context) ([]byte, error) { return c.Fn(ctx) }

// Endpoints exposes the built-in read surface over the collected records.
func (c *CollectorFunc) Endpoints() []EndpointSpec { return recordEndpoints(&c.Base) }

// HarvesterFunc adapts a plain function into a Harvester.
type HarvesterFunc struct {
	Base
	Fn func(ctx context.Context, input *HarvestInput) (*HarvestResult, error)
}

// NewHarvester builds a function-backed harvester.
func NewHarvester(cfg Configuration, fn func(ctx context.Context, input *HarvestInput) (*HarvestResult, error)) *HarvesterFunc {
	return &HarvesterFunc{Base: NewBase(cfg), Fn: fn}
}

func (h *HarvesterFunc) Kind() types.ComponentKind { return types.KindHarvester }

func (h *HarvesterFunc) Harvest(ctx context.Context, input *HarvestInput) (*HarvestResult, error) {
	return h.Fn(ctx, input)
}

// Endpoints exposes the built-in read surface over the derived records.
func (h *HarvesterFunc) Endpoints() []EndpointSpec { return recordEndpoints(&h.Base) }

var (
	_ Servable = (*CollectorFunc)(nil)
	_ Servable = (*HarvesterFunc)(nil)
)

// HandlerComponent is a pure HTTP component with no collection cycle.
type HandlerComponent struct {
	Base
	endpoints []EndpointSpec
}

// NewHandler builds an endpoint-only component.
func NewHandler(cfg Configuration, endpoints ...EndpointSpec) *HandlerComponent {
	return &HandlerComponent{Base: NewBase(cfg), endpoints: endpoints}
}

func (h *HandlerComponent) Kind() types.ComponentKind { return types.KindHandler }

func (h *HandlerComponent) Endpoints() []EndpointSpec { return h.endpoints }
