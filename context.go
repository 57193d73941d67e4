package dtpack

import (
	"os"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/dtpack/dtpack/internal/classify"
	"github.com/dtpack/dtpack/internal/dtype"
	"github.com/dtpack/dtpack/internal/gpudriver"
	"github.com/dtpack/dtpack/internal/handle"
	"github.com/dtpack/dtpack/internal/logging"
	"github.com/dtpack/dtpack/internal/obsmetrics"
	"github.com/dtpack/dtpack/internal/progress"
)

// initRefcount is the process-wide ref-counted init/finalize counter (spec
// §6: "the process-global init/finalize is ref-counted so multiple
// contexts can coexist").
var initRefcount atomic.Int64

// Init bumps the process-wide initialization refcount. attr is accepted
// for signature parity with spec §6 but carries no state today.
func Init(attr *Info) error {
	initRefcount.Add(1)
	return nil
}

// Finalize decrements the process-wide initialization refcount. It returns
// CodeInternal if called more times than Init.
func Finalize() error {
	if initRefcount.Add(-1) < 0 {
		initRefcount.Add(1)
		return NewError("Finalize", CodeInternal, "Finalize called without matching Init")
	}
	return nil
}

var nextContextID atomic.Uint32

// Config tunes a Context's resource limits and optional ambient features.
// Every field has a spec-mandated or documented default; the zero value of
// Config is usable as-is.
type Config struct {
	// NestingLevel bounds datatype tree depth (default DefaultNestingLevel,
	// env-tunable via DTPACK_NESTING_LEVEL, overridable at context
	// construction via the Info key "yaksa_nesting_level" passed to
	// NewContext).
	NestingLevel int
	// SlabSize is the size of each GPU/pinned-host temporary slab (default
	// DefaultSlabSize).
	SlabSize uintptr
	// Registerer receives this Context's prometheus metrics. Nil gives the
	// Context a fresh private prometheus.Registry, so several Contexts can
	// be created in one process without duplicate-registration panics.
	Registerer prometheus.Registerer
	// Logger overrides the package default logger for this Context.
	Logger *logging.Logger
}

func (c Config) resolve() Config {
	if c.NestingLevel == 0 {
		c.NestingLevel = DefaultNestingLevel
		if v := os.Getenv("DTPACK_NESTING_LEVEL"); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n > 0 {
				c.NestingLevel = n
			}
		}
	}
	if c.SlabSize == 0 {
		c.SlabSize = DefaultSlabSize
	}
	if c.Logger == nil {
		c.Logger = logging.Default()
	}
	if c.Registerer == nil {
		c.Registerer = prometheus.NewRegistry()
	}
	return c
}

// Context is the process-wide registry this package's client API operates
// against: the handle pools for datatypes and requests, the predefined
// scalar/pair type table, the registered GPU drivers, and the progress
// engine that advances nonblocking requests (spec §3 "Context"). Contexts
// are created explicitly and are independent of one another; tests
// construct several in one process to verify that independence.
type Context struct {
	id uint32

	cfg Config
	log *logging.Logger

	typePool *handle.Pool[*dtype.Type]
	reqPool  *handle.Pool[*Request]

	predefined map[PredefinedSeed]*dtype.Type

	mu      sync.RWMutex
	drivers []gpudriver.Driver
	byID    map[int]gpudriver.Driver

	classifier *classify.Registry
	engine     *progress.Engine

	metrics    *Metrics
	obsMetrics *obsmetrics.Metrics

	pollers []*dedicatedPoller

	closed bool
}

// NewContext constructs a Context. info may be nil. Of the Info keys, only
// InfoKeyNestingLevel is read; InfoKeyGPUDriver and the CUDA pointer
// attribute keys are accepted but have no effect.
func NewContext(cfg Config, info *Info) (*Context, error) {
	cfg = cfg.resolve()
	if info != nil {
		if v, ok := info.Get(InfoKeyNestingLevel); ok {
			if n, err := strconv.Atoi(v); err == nil && n > 0 {
				cfg.NestingLevel = n
			}
		}
	}

	ctx := &Context{
		id:         nextContextID.Add(1),
		cfg:        cfg,
		log:        cfg.Logger,
		typePool:   handle.NewPool[*dtype.Type](),
		reqPool:    handle.NewPool[*Request](),
		predefined: buildPredefined(),
		byID:       make(map[int]gpudriver.Driver),
		classifier: classify.NewRegistry(),
		metrics:    NewMetrics(),
		obsMetrics: obsmetrics.New(cfg.Registerer),
	}
	ctx.engine = progress.New(cfg.SlabSize, ctx.obsMetrics)
	ctx.log.Debugf("dtpack: context %d created (nesting=%d slab=%d)", ctx.id, cfg.NestingLevel, cfg.SlabSize)
	return ctx, nil
}

// ID returns the context's 32-bit identifier, the upper half of every
// handle this context issues (spec §6 "Handle encoding").
func (c *Context) ID() uint32 { return c.id }

// Close stops the Context's dedicated pollers and marks it closed. Handles
// still outstanding are not invalidated, and no other method checks the
// closed mark; callers should Free them first.
func (c *Context) Close() error {
	c.stopPollers()
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

// RegisterDriver adds a GPU backend to the context's classifier and
// dispatcher in registration order (spec §4.3: "each installed GPU backend
// is probed in registration order").
func (c *Context) RegisterDriver(d GPUDriver) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.drivers = append(c.drivers, d)
	c.byID[d.DriverID()] = d
	c.classifier.Register(d)
}

func (c *Context) driverByID(id int) (gpudriver.Driver, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	d, ok := c.byID[id]
	return d, ok
}

// Predefined returns the handle for one of the primitive kinds (spec §6
// type_get_predefined). SeedNull always fails with CodeBadArgs: the null
// handle is reserved, not allocated.
func (c *Context) Predefined(seed PredefinedSeed) (*Type, error) {
	t, ok := c.predefined[seed]
	if !ok {
		return nil, NewError("Predefined", CodeBadArgs, "unknown or NULL predefined seed")
	}
	t.Incref()
	return c.wrapType(t), nil
}

// Metrics returns the Context's cheap in-process counter snapshot surface.
func (c *Context) Metrics() *Metrics { return c.metrics }

// resolveBuiltin implements dtype.BuiltinResolver against this context's
// predefined table, for Unflatten.
func (c *Context) resolveBuiltin(seedID uint32) (*dtype.Type, error) {
	t, ok := c.predefined[PredefinedSeed(seedID)]
	if !ok {
		return nil, NewError("Unflatten", CodeBadArgs, "flattened builtin seed unknown to this context")
	}
	return t, nil
}
