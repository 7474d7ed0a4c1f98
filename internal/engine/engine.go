package engine

import (
	"context"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/genricoloni/nowbar/internal/config"
	"github.com/genricoloni/nowbar/internal/domain"
	"github.com/genricoloni/nowbar/internal/format"
	"github.com/genricoloni/nowbar/internal/registry"
	"github.com/genricoloni/nowbar/internal/scroll"
	"go.uber.org/zap"
)

// Engine is the coordinator between the bus monitor and the status bar.
// It merges player events with the scroll ticker in a single loop, so the
// registry and scroll state are only ever touched from that goroutine.
type Engine struct {
	logger    *zap.Logger
	cfg       config.Config
	monitor   domain.Monitor
	output    domain.Output
	clock     clock.Clock
	registry  *registry.Registry
	scroller  *scroll.Engine
	formatter *format.Formatter
	interval  time.Duration

	active    domain.PlayerID
	hasActive bool
	ticker    *clock.Ticker

	cancel context.CancelFunc
	done   chan struct{}
}

// NewEngine creates a new coordination engine
func NewEngine(
	logger *zap.Logger,
	cfg config.Config,
	mon domain.Monitor,
	out domain.Output,
	clk clock.Clock,
) *Engine {
	return &Engine{
		logger:    logger,
		cfg:       cfg,
		monitor:   mon,
		output:    out,
		clock:     clk,
		registry:  registry.New(cfg.Blocked),
		scroller:  scroll.New(cfg.Width, cfg.ScrollMode),
		formatter: format.New(cfg.Format, cfg.Icon, cfg.PlayerIcon),
		interval:  scroll.Interval(cfg.Speed),
	}
}

// Start emits an initial empty render and launches the event loop in a
// goroutine. It returns immediately (non-blocking).
func (e *Engine) Start(ctx context.Context) error {
	e.logger.Info("Engine starting...",
		zap.Int("width", e.cfg.Width),
		zap.Duration("interval", e.interval),
		zap.String("scroll", string(e.cfg.ScrollMode)))

	loopCtx, cancel := context.WithCancel(ctx)
	e.cancel = cancel
	e.done = make(chan struct{})

	e.render()
	go e.runLoop(loopCtx)
	return nil
}

// Stop ends the event loop and waits for it to exit
func (e *Engine) Stop(ctx context.Context) error {
	e.logger.Info("Engine stopping...")
	if e.cancel == nil {
		return nil
	}
	e.cancel()

	select {
	case <-e.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// runLoop waits for whichever comes first: a bus event or the next tick
func (e *Engine) runLoop(ctx context.Context) {
	defer close(e.done)
	defer e.stopTicker()

	events := e.monitor.Events()
	for {
		select {
		case <-ctx.Done():
			e.logger.Info("Engine loop stopped")
			return

		case ev, ok := <-events:
			if !ok {
				e.logger.Info("Monitor events channel closed")
				return
			}
			e.handleEvent(ev)

		case <-e.tickC():
			e.tick()
		}
	}
}

// handleEvent applies one bus notification and always renders
func (e *Engine) handleEvent(ev domain.PlayerEvent) {
	e.logger.Debug("Event received",
		zap.Stringer("kind", ev.Kind),
		zap.String("player", string(ev.ID)))

	switch ev.Kind {
	case domain.EventPlayerAppeared:
		e.registry.Appear(ev.ID, ev.Name)
	case domain.EventPlayerVanished:
		if !e.registry.Remove(ev.ID) {
			e.logger.Debug("Vanished player was not tracked", zap.String("player", string(ev.ID)))
		}
	case domain.EventPropertiesChanged:
		e.registry.Upsert(domain.PlayerState{
			ID:         ev.ID,
			Name:       ev.Name,
			Status:     ev.Status,
			Metadata:   ev.Metadata,
			Position:   ev.Position,
			Length:     ev.Length,
			PositionAt: e.clock.Now(),
		})
	case domain.EventSeeked:
		if ev.Position == nil || !e.registry.Seek(ev.ID, *ev.Position, e.clock.Now()) {
			return
		}
	default:
		e.logger.Warn("Ignoring unknown event", zap.Int("kind", int(ev.Kind)))
		return
	}

	e.refresh()
	e.syncTicker()
	e.render()
}

// tick advances the scroll window. Nothing is rendered when the window
// did not move, unless a live position is on screen.
func (e *Engine) tick() {
	moved := e.scrolling() && e.scroller.Tick()
	if !moved && !e.positionLive() {
		return
	}
	e.render()
}

// refresh recomputes the active player and its display text
func (e *Engine) refresh() {
	id, ok := e.registry.SelectActive()
	if ok != e.hasActive || id != e.active {
		e.logger.Info("Active player changed",
			zap.String("player", string(id)),
			zap.Int("players", e.registry.Len()))
	}
	e.active, e.hasActive = id, ok

	text := ""
	if st, found := e.activeState(); found {
		text = e.formatter.Format(st)
	}
	if e.scroller.SetText(text) {
		e.logger.Debug("Display text changed",
			zap.String("text", text),
			zap.Stringer("phase", e.scroller.Phase()))
	}
	if e.frozen() {
		e.scroller.Rewind()
	}
}

// currentRender builds the frame for the current state
func (e *Engine) currentRender() domain.Render {
	st, ok := e.activeState()
	if !ok {
		return domain.Render{Text: "", Class: domain.StatusStopped.Class()}
	}

	text := e.scroller.Window()
	if pos, ok := e.positionText(st); ok {
		text += " " + pos
	}
	return domain.Render{Text: text, Class: st.Status.Class()}
}

func (e *Engine) render() {
	if err := e.output.Write(e.currentRender()); err != nil {
		e.logger.Warn("Failed to write render", zap.Error(err))
	}
}

// positionText formats the position of st according to the position mode.
// It reports false when position display is off or the position is unknown.
func (e *Engine) positionText(st domain.PlayerState) (string, bool) {
	if !e.cfg.Position || st.Position == nil {
		return "", false
	}

	pos := *st.Position
	if st.Status == domain.StatusPlaying && !st.PositionAt.IsZero() {
		pos += e.clock.Since(st.PositionAt)
	}
	if st.Length != nil && pos > *st.Length {
		pos = *st.Length
	}

	if e.cfg.PositionMode == domain.PositionRemaining && st.Length != nil {
		pos = *st.Length - pos
	}
	return format.Position(pos), true
}

func (e *Engine) activeState() (domain.PlayerState, bool) {
	if !e.hasActive {
		return domain.PlayerState{}, false
	}
	return e.registry.Get(e.active)
}

// frozen reports whether scrolling is suspended for a paused player
func (e *Engine) frozen() bool {
	if !e.cfg.FreezeOnPause {
		return false
	}
	st, ok := e.activeState()
	return ok && st.Status == domain.StatusPaused
}

func (e *Engine) scrolling() bool {
	return e.hasActive && !e.frozen() && e.scroller.Phase() != scroll.Static
}

// positionLive reports whether the position text changes on its own
func (e *Engine) positionLive() bool {
	if !e.cfg.Position {
		return false
	}
	st, ok := e.activeState()
	return ok && st.Status == domain.StatusPlaying && st.Position != nil
}

// syncTicker runs the ticker only while something on screen can move
func (e *Engine) syncTicker() {
	need := e.scrolling() || e.positionLive()
	switch {
	case need && e.ticker == nil:
		e.ticker = e.clock.Ticker(e.interval)
		e.logger.Debug("Scroll ticker armed", zap.Duration("interval", e.interval))
	case !need && e.ticker != nil:
		e.stopTicker()
		e.logger.Debug("Scroll ticker disarmed")
	}
}

func (e *Engine) stopTicker() {
	if e.ticker != nil {
		e.ticker.Stop()
		e.ticker = nil
	}
}

// tickC returns the ticker channel, or nil so the select never fires
func (e *Engine) tickC() <-chan time.Time {
	if e.ticker == nil {
		return nil
	}
	return e.ticker.C
}
