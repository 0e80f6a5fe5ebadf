// Package pipeline tracks the resize and crop state of one export session,
// regenerates the working image when that state settles, and asks the active
// encoder for a preview.
//
// Mutators never block on image work. They mark the pipeline dirty and arm a
// debounce timer; the timer only fires the regeneration once a full window
// passes with no further edits.
package pipeline

import (
	"errors"
	"fmt"
	"image"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/AnyUserName/webx/internal/backend"
	"github.com/AnyUserName/webx/internal/encoder"
	"github.com/AnyUserName/webx/internal/metrics"
)

// Config holds the collaborators of a pipeline.
type Config struct {
	Backend backend.Backend
	Source  *backend.Image
	Encoder encoder.Encoder // initial encoder, may be nil
	Logger  *zap.Logger
	Metrics *metrics.Metrics
	Clock   Clock
	Delay   time.Duration

	// PointerGrabbed reports an active drag; ticks re-arm while it is true.
	// It is called with the pipeline locked and must not call back into it.
	PointerGrabbed func() bool

	// DrainEvents processes pending UI events before a tick decides whether
	// the state has settled. It returns the number of events handled and may
	// call pipeline mutators.
	DrainEvents func() int
}

// Pipeline is safe for concurrent use. Mutators, timer ticks, Run, Flush,
// SaveToFile and Close are serialized; a mutator arriving during a cycle
// waits for it to finish.
type Pipeline struct {
	mu      sync.Mutex
	b       backend.Backend
	source  *backend.Image
	logger  *zap.Logger
	metrics *metrics.Metrics
	clock   Clock
	delay   time.Duration
	grabbed func() bool
	drain   func() int

	original  Size
	resize    Size
	crop      Rect
	cropScale Scale

	working      *backend.Image
	workingLayer *backend.Layer
	indexed      *backend.Image
	indexedLayer *backend.Layer
	background   image.Image

	enc         encoder.Encoder
	dirtyAll    bool
	generation  int
	lastChecked int
	timer       Timer
	timerSeq    uint64
	closed      bool
	busy        atomic.Bool

	obsMu         sync.Mutex
	onInvalidated []func()
	onOutput      []func(Output)
}

// New creates a pipeline for cfg.Source. The source is never modified.
func New(cfg Config) (*Pipeline, error) {
	if cfg.Backend == nil {
		return nil, errors.New("pipeline: nil backend")
	}
	if cfg.Source == nil {
		return nil, errors.New("pipeline: nil source image")
	}
	w, h := cfg.Backend.Dimensions(cfg.Source)
	if w < 1 || h < 1 {
		return nil, fmt.Errorf("pipeline: source: %w", backend.ErrDeleted)
	}
	if w > MaxSize || h > MaxSize {
		return nil, fmt.Errorf("pipeline: %w: %dx%d", ErrTooLarge, w, h)
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Clock == nil {
		cfg.Clock = SystemClock
	}
	if cfg.Delay <= 0 {
		cfg.Delay = DebounceDelay
	}

	size := Size{w, h}
	return &Pipeline{
		b:         cfg.Backend,
		source:    cfg.Source,
		logger:    cfg.Logger,
		metrics:   cfg.Metrics,
		clock:     cfg.Clock,
		delay:     cfg.Delay,
		grabbed:   cfg.PointerGrabbed,
		drain:     cfg.DrainEvents,
		original:  size,
		resize:    size,
		crop:      Rect{0, 0, w, h},
		cropScale: unitScale,
		enc:       cfg.Encoder,
		dirtyAll:  true,
	}, nil
}

// OnInvalidated registers f to be called as soon as an edit makes the
// current output stale.
func (p *Pipeline) OnInvalidated(f func()) {
	p.obsMu.Lock()
	defer p.obsMu.Unlock()
	p.onInvalidated = append(p.onInvalidated, f)
}

// OnOutputChanged registers f to be called after every completed cycle.
// Handles reachable from the Output must not be retained past the call.
func (p *Pipeline) OnOutputChanged(f func(Output)) {
	p.obsMu.Lock()
	defer p.obsMu.Unlock()
	p.onOutput = append(p.onOutput, f)
}

func (p *Pipeline) emitInvalidated() {
	p.obsMu.Lock()
	fs := append([]func(){}, p.onInvalidated...)
	p.obsMu.Unlock()
	for _, f := range fs {
		f()
	}
}

func (p *Pipeline) emitOutput(out Output) {
	p.obsMu.Lock()
	fs := append([]func(Output){}, p.onOutput...)
	p.obsMu.Unlock()
	for _, f := range fs {
		f(out)
	}
}

// Resize sets the target size, clamped to [1, MaxSize]. It reports whether
// the state changed.
func (p *Pipeline) Resize(width, height int) bool {
	p.mu.Lock()
	changed := !p.closed && p.applyResize(width, height)
	notify := changed && p.invalidate(true)
	p.mu.Unlock()

	if notify {
		p.emitInvalidated()
	}
	return changed
}

// Crop sets the retained rectangle of the resized image. Out of range input
// is corrected rather than rejected; clipOffsetsFirst picks whether overflow
// moves the offset or shrinks the size.
func (p *Pipeline) Crop(width, height, x, y int, clipOffsetsFirst bool) bool {
	p.mu.Lock()
	changed := !p.closed && p.applyCrop(width, height, x, y, clipOffsetsFirst)
	notify := changed && p.invalidate(true)
	p.mu.Unlock()

	if notify {
		p.emitInvalidated()
	}
	return changed
}

// SetEncoder switches the active encoder. Only a re-render is scheduled.
func (p *Pipeline) SetEncoder(enc encoder.Encoder) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.enc = enc
	notify := p.invalidate(false)
	p.mu.Unlock()

	if notify {
		p.emitInvalidated()
	}
}

// Run regenerates and renders immediately, cancelling any pending tick.
func (p *Pipeline) Run() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.disarm()
	p.dirtyAll = true
	p.metrics.Invalidated(true)
	p.mu.Unlock()
	p.emitInvalidated()

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	out := p.update()
	p.mu.Unlock()
	p.emitOutput(out)
}

// Flush runs the pending cycle now instead of waiting for the debounce
// window. It reports whether a cycle ran.
func (p *Pipeline) Flush() bool {
	p.mu.Lock()
	if p.closed || p.timer == nil {
		p.mu.Unlock()
		return false
	}
	p.disarm()
	if p.generation == 0 {
		p.mu.Unlock()
		return false
	}
	out := p.update()
	p.mu.Unlock()
	p.emitOutput(out)
	return true
}

// SaveToFile writes the current state through the active encoder. A pending
// regeneration is forced first. The emitted Output carries the written size.
func (p *Pipeline) SaveToFile(path string) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrClosed
	}
	if p.enc == nil {
		p.mu.Unlock()
		return ErrNoEncoder
	}

	p.busy.Store(true)
	var out Output
	if p.dirtyAll {
		if err := p.regenerate(); err != nil {
			p.busy.Store(false)
			p.mu.Unlock()
			return fmt.Errorf("regenerate: %w", err)
		}
		p.dirtyAll = false
		p.fillRegenerated(&out)
	}

	name := p.enc.Name()
	err := p.enc.Save(p.input(), path)
	p.metrics.Saved(name, err)
	if err != nil {
		out.Err = err
		p.logger.Error("save failed", zap.String("encoder", name), zap.String("path", path), zap.Error(err))
	} else if size, serr := p.b.FileSize(path); serr == nil {
		out.SizeBytes = size
		p.logger.Info("saved",
			zap.String("encoder", name), zap.String("path", path), zap.Int64("bytes", size))
	}
	p.generation = 0
	p.lastChecked = 0
	p.busy.Store(false)
	p.mu.Unlock()

	p.emitOutput(out)
	if err != nil {
		return fmt.Errorf("%s save: %w", name, err)
	}
	return nil
}

// Close waits for an in-flight cycle, cancels the pending tick and releases
// the derived images. Later mutators are no-ops.
func (p *Pipeline) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.closed = true
	p.disarm()
	p.release()
}

// invalidate records an edit and arms the debounce timer. It reports whether
// observers must be told, which happens only on the first edit since idle.
func (p *Pipeline) invalidate(all bool) bool {
	if all {
		p.dirtyAll = true
	}
	p.generation++
	p.metrics.Invalidated(all)
	if p.timer != nil {
		return false
	}
	p.arm()
	return true
}

func (p *Pipeline) arm() {
	p.timerSeq++
	seq := p.timerSeq
	p.timer = p.clock.AfterFunc(p.delay, func() { p.tick(seq) })
}

func (p *Pipeline) disarm() {
	if p.timer != nil {
		p.timer.Stop()
		p.timer = nil
	}
	p.timerSeq++
}

// tick is the debounce callback. seq identifies the timer that fired so a
// callback racing with disarm is ignored.
func (p *Pipeline) tick(seq uint64) {
	drained := 0
	if p.drain != nil {
		drained = p.drain()
	}

	p.mu.Lock()
	if p.closed || seq != p.timerSeq {
		p.mu.Unlock()
		return
	}
	p.timer = nil

	if p.generation == 0 {
		p.timerSeq++
		p.mu.Unlock()
		return
	}
	p.generation += drained
	if p.generation != p.lastChecked || (p.grabbed != nil && p.grabbed()) {
		p.lastChecked = p.generation
		p.metrics.Rearmed()
		p.arm()
		p.mu.Unlock()
		return
	}

	p.timerSeq++
	out := p.update()
	p.mu.Unlock()
	p.emitOutput(out)
}

// update runs one cycle: regenerate when dirty, then render a preview.
func (p *Pipeline) update() Output {
	p.busy.Store(true)
	defer p.busy.Store(false)

	var out Output
	if p.dirtyAll {
		if err := p.regenerate(); err != nil {
			p.logger.Error("regenerate failed", zap.Error(err))
			out.Err = err
			p.generation = 0
			p.lastChecked = 0
			return out
		}
		p.dirtyAll = false
		p.fillRegenerated(&out)
	}

	if p.enc == nil {
		out.Err = ErrNoEncoder
	} else {
		start := time.Now()
		target, size, err := p.enc.RenderPreview(p.input())
		p.metrics.Rendered(p.enc.Name(), time.Since(start), size, err)
		if err != nil {
			p.logger.Warn("preview render failed", zap.String("encoder", p.enc.Name()), zap.Error(err))
			out.Err = err
		} else {
			out.Target = target
			out.SizeBytes = size
			p.logger.Debug("preview rendered",
				zap.String("encoder", p.enc.Name()),
				zap.Int64("bytes", size),
				zap.Duration("took", time.Since(start)))
		}
	}
	p.generation = 0
	p.lastChecked = 0
	return out
}

func (p *Pipeline) fillRegenerated(out *Output) {
	out.Regenerated = true
	out.Background = p.background
	out.BackgroundSize = p.resize
	out.TargetRect = p.crop
}

func (p *Pipeline) input() encoder.RenderInput {
	return encoder.RenderInput{
		Backend:      p.b,
		Working:      p.working,
		WorkingLayer: p.workingLayer,
		Indexed:      p.indexed,
		IndexedLayer: p.indexedLayer,
		Width:        p.crop.Width,
		Height:       p.crop.Height,
	}
}

func (p *Pipeline) OriginalSize() Size {
	return p.original
}

func (p *Pipeline) ResizeSize() Size {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.resize
}

// CropRect returns the stored crop rectangle. Pending scale debt from Resize
// is not applied until the next regeneration.
func (p *Pipeline) CropRect() Rect {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.crop
}

func (p *Pipeline) CropScale() Scale {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cropScale
}

func (p *Pipeline) Encoder() encoder.Encoder {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.enc
}

// Dirty reports whether the working image must be regenerated.
func (p *Pipeline) Dirty() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.dirtyAll
}

// Pending reports whether the debounce timer is armed.
func (p *Pipeline) Pending() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.timer != nil
}

// Busy reports whether a cycle is executing. It never blocks.
func (p *Pipeline) Busy() bool {
	return p.busy.Load()
}

// Background returns the last full resized raster, or nil.
func (p *Pipeline) Background() image.Image {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.background
}

// RenderInput returns the current encoder input. The handles it carries are
// invalidated by the next regeneration.
func (p *Pipeline) RenderInput() encoder.RenderInput {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.input()
}
