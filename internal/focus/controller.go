// Package focus runs the canvas focus behavior: it watches the active canvas
// selection, shows the selected document in a single reusable surface and
// keeps free-text nodes in step with their temporary documents.
//
// All state is owned by one loop goroutine. Tickers, debounced document
// notifications and calls from the API are serialized through it, so the
// components it drives need no locking of their own.
package focus

import (
	"context"
	"errors"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/starford/canvasfocus/internal/bisync"
	"github.com/starford/canvasfocus/internal/canvas"
	"github.com/starford/canvasfocus/internal/debounce"
	"github.com/starford/canvasfocus/internal/promote"
	"github.com/starford/canvasfocus/internal/scratch"
	"github.com/starford/canvasfocus/internal/selection"
	"github.com/starford/canvasfocus/internal/settings"
	"github.com/starford/canvasfocus/internal/sse"
	"github.com/starford/canvasfocus/internal/storage"
	"github.com/starford/canvasfocus/internal/surface"
)

// ErrStopped is returned by calls made after the loop has exited.
var ErrStopped = errors.New("focus: controller stopped")

// Options holds the timing and placement knobs.
type Options struct {
	SelectionInterval time.Duration
	NodeInterval      time.Duration
	DocumentDebounce  time.Duration
	CanvasSaveDelay   time.Duration
	SurfaceKind       surface.Kind
	PromoteFolder     string
}

// Deps are the collaborators the controller drives.
type Deps struct {
	Store     storage.Provider
	Settings  *settings.Store
	Scratch   *scratch.Store
	Host      surface.Host
	Publisher sse.Publisher
	Logger    *slog.Logger
}

type call struct {
	fn   func()
	done chan struct{}
}

// Controller is the long-lived owner of the focus state.
type Controller struct {
	store    storage.Provider
	settings *settings.Store
	scratch  *scratch.Store
	engine   *bisync.Engine
	monitor  *selection.Monitor
	surfaces *surface.Manager
	promoter *promote.Promoter
	pub      sse.Publisher
	logger   *slog.Logger
	opts     Options

	calls chan call
	done  chan struct{}

	docMu      sync.Mutex
	docPending map[string]struct{}
	docs       *debounce.Debouncer

	startOnce sync.Once
	cancel    context.CancelFunc

	// Owned by the loop goroutine.
	canvas       *canvas.File
	scratchReady bool
	promoting    bool
}

type nopPublisher struct{}

func (nopPublisher) Publish(sse.Event) {}

// New wires a Controller. Call Run (or Start) to begin polling.
func New(deps Deps, opts Options) *Controller {
	if opts.SelectionInterval <= 0 {
		opts.SelectionInterval = 300 * time.Millisecond
	}
	if opts.NodeInterval <= 0 {
		opts.NodeInterval = 200 * time.Millisecond
	}
	if opts.SurfaceKind == "" {
		opts.SurfaceKind = surface.KindPopout
	}
	if deps.Publisher == nil {
		deps.Publisher = nopPublisher{}
	}

	c := &Controller{
		store:      deps.Store,
		settings:   deps.Settings,
		scratch:    deps.Scratch,
		pub:        deps.Publisher,
		logger:     deps.Logger,
		opts:       opts,
		calls:      make(chan call),
		done:       make(chan struct{}),
		docPending: make(map[string]struct{}),
	}
	st := deps.Settings.State()
	c.engine = bisync.New(deps.Scratch, deps.Logger)
	c.monitor = selection.NewMonitor(c.dispatch, deps.Logger)
	c.surfaces = surface.NewManager(deps.Host, deps.Settings, surface.Options{
		Kind:            opts.SurfaceKind,
		PinnedByDefault: st.PinnedByDefault,
		FocusOnOpen:     st.FocusOnOpen,
		IsEphemeral:     deps.Scratch.Contains,
	}, deps.Logger)
	c.promoter = promote.New(deps.Store, deps.Scratch, opts.PromoteFolder, deps.Logger)
	c.docs = debounce.New(c.flushDocuments, opts.DocumentDebounce)
	return c
}

// Run drives the loop until ctx ends, then tears down: pending document
// changes are applied, the association is cleared, the active canvas is
// closed and the scratch area is swept.
func (c *Controller) Run(ctx context.Context) error {
	defer close(c.done)

	c.guard("startup", c.startup)

	selTick := time.NewTicker(c.opts.SelectionInterval)
	defer selTick.Stop()
	nodeTick := time.NewTicker(c.opts.NodeInterval)
	defer nodeTick.Stop()

	for {
		select {
		case <-ctx.Done():
			c.guard("teardown", c.teardown)
			return nil
		case cl := <-c.calls:
			c.guard("call", cl.fn)
			close(cl.done)
		case <-selTick.C:
			c.guard("selection poll", c.pollSelection)
		case <-nodeTick.C:
			c.guard("node poll", c.pollNode)
		}
	}
}

// Start runs the loop in the background until Stop is called or ctx ends.
func (c *Controller) Start(ctx context.Context) {
	c.startOnce.Do(func() {
		ctx, c.cancel = context.WithCancel(ctx)
		go func() { _ = c.Run(ctx) }()
	})
}

// Stop ends a loop started with Start and waits for teardown to finish.
func (c *Controller) Stop() {
	if c.cancel == nil {
		return
	}
	c.cancel()
	<-c.done
}

// guard runs fn and converts a panic into a log entry so one failing
// callback never stops the loop.
func (c *Controller) guard(name string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("focus: callback panicked",
				slog.String("callback", name),
				slog.Any("panic", r),
				slog.String("stack", string(debug.Stack())))
		}
	}()
	fn()
}

// do runs fn on the loop goroutine and waits for it.
func (c *Controller) do(fn func()) error {
	cl := call{fn: fn, done: make(chan struct{})}
	select {
	case c.calls <- cl:
	case <-c.done:
		return ErrStopped
	}
	select {
	case <-cl.done:
		return nil
	case <-c.done:
		return ErrStopped
	}
}

func (c *Controller) startup() {
	c.scratchReady = c.scratch.EnsureArea()
	c.surfaces.Recover()
	c.logger.Info("focus: started",
		slog.Bool("enabled", c.settings.Enabled()),
		slog.String("scratch", c.scratch.Dir()),
		slog.Duration("selection_interval", c.opts.SelectionInterval),
		slog.Duration("node_interval", c.opts.NodeInterval))
}

func (c *Controller) teardown() {
	c.settleDocuments()
	c.engine.Clear()
	c.monitor.Reset()
	if c.canvas != nil {
		if err := c.canvas.Close(); err != nil {
			c.logger.Warn("focus: close canvas failed", slog.String("error", err.Error()))
		}
		c.canvas = nil
	}
	if _, err := c.scratch.Sweep(); err != nil {
		c.logger.Warn("focus: sweep incomplete", slog.String("error", err.Error()))
	}
	c.logger.Info("focus: stopped")
}
