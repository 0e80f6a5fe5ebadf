package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/disintegration/imaging"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/AnyUserName/webx/internal/config"
	"github.com/AnyUserName/webx/internal/metrics"
	"github.com/AnyUserName/webx/internal/pipeline"
)

var (
	watchMetricsAddr string
	watchSaveOnExit  string
)

var watchCmd = &cobra.Command{
	Use:   "watch <session.yaml>",
	Short: "Re-render a preview whenever a session file changes",
	Long: `Loads a session file and keeps it open. Every saved edit of the file is
applied to the pipeline like a spin-button change: rapid edits are coalesced
and the preview is re-rendered once the file has been quiet for the session's
debounce window.

Each settled render is written to <output>.png, and a regenerated background
to <output>.background.png. Environment variables WEBX_* override file keys.`,
	Args: cobra.ExactArgs(1),
	RunE: runWatch,
}

func init() {
	f := watchCmd.Flags()
	f.StringVar(&watchMetricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address (e.g. :9090)")
	f.StringVar(&watchSaveOnExit, "save-on-exit", "", "save the final state with the active encoder on exit")
	rootCmd.AddCommand(watchCmd)
}

// watcher applies session file revisions to an open session.
type watcher struct {
	mu      sync.Mutex
	cfg     *config.Session
	sess    *session
	metrics *metrics.Metrics
}

func (w *watcher) open(cfg *config.Session) error {
	sess, err := openSession(cfg, sessionOptions{metrics: w.metrics})
	if err != nil {
		return err
	}
	output := cfg.Output
	sess.p.OnInvalidated(func() { logger.Debug("preview invalidated") })
	sess.p.OnOutputChanged(func(o pipeline.Output) { writePreview(output, o) })
	w.cfg, w.sess = cfg, sess
	sess.p.Run()
	return nil
}

// needsReopen reports whether next changes something only a fresh load can
// pick up.
func needsReopen(prev, next *config.Session) bool {
	return prev.Source != next.Source ||
		!slices.Equal(prev.Layers, next.Layers) ||
		prev.Resample != next.Resample ||
		prev.Debounce != next.Debounce ||
		prev.Output != next.Output
}

func encoderChanged(prev, next *config.Session) bool {
	return prev.Format != next.Format ||
		prev.Profile != next.Profile ||
		prev.JPEG != next.JPEG ||
		prev.PNG != next.PNG ||
		prev.Indexed != next.Indexed
}

func (w *watcher) apply(next *config.Session) {
	w.mu.Lock()
	defer w.mu.Unlock()
	prev := w.cfg

	if w.sess == nil || needsReopen(prev, next) {
		logger.Info("reloading session", zap.String("source", next.Source))
		if w.sess != nil {
			w.sess.Close()
			w.sess = nil
		}
		if err := w.open(next); err != nil {
			logger.Error("reload failed", zap.Error(err))
		}
		return
	}

	p := w.sess.p
	if next.Resize != prev.Resize {
		orig := p.OriginalSize()
		width, height := next.Resize.Width, next.Resize.Height
		if width == 0 {
			width = orig.Width
		}
		if height == 0 {
			height = orig.Height
		}
		p.Resize(width, height)
	}
	if next.Crop != prev.Crop {
		if next.Crop.Set() {
			p.Crop(next.Crop.Width, next.Crop.Height, next.Crop.X, next.Crop.Y, true)
		} else {
			// Crop removed: retain the whole resized image again.
			rs := p.ResizeSize()
			p.Crop(rs.Width, rs.Height, 0, 0, true)
		}
	}
	if encoderChanged(prev, next) {
		reg, err := configuredRegistry(next)
		if err != nil {
			logger.Error("encoder settings rejected", zap.Error(err))
			return
		}
		w.sess.reg = reg
		p.SetEncoder(reg.Get(next.Format))
	}
	w.cfg = next
	logger.Debug("session updated",
		zap.Stringer("resize", p.ResizeSize()), zap.Any("crop", p.CropRect()), zap.String("encoder", p.Encoder().Name()))
}

func (w *watcher) close() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.sess != nil {
		w.sess.Close()
		w.sess = nil
	}
}

func writePreview(output string, o pipeline.Output) {
	if o.Err != nil {
		logger.Error("render failed", zap.Error(o.Err))
		return
	}
	if o.Background != nil {
		if err := imaging.Save(o.Background, output+".background.png"); err != nil {
			logger.Warn("background not written", zap.Error(err))
		}
	}
	if o.Target == nil {
		return
	}
	path := output + ".png"
	if err := imaging.Save(o.Target, path); err != nil {
		logger.Error("preview not written", zap.String("path", path), zap.Error(err))
		return
	}
	b := o.Target.Bounds()
	logger.Info("preview",
		zap.String("path", path), zap.Int("width", b.Dx()), zap.Int("height", b.Dy()),
		zap.Int64("encoded_bytes", o.SizeBytes), zap.Bool("regenerated", o.Regenerated))
	fmt.Printf("  %s  %dx%d  %s\n", time.Now().Format("15:04:05"), b.Dx(), b.Dy(), formatBytes(o.SizeBytes))
}

func serveMetrics(ctx context.Context, addr string, m *metrics.Metrics) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	go func() {
		logger.Info("metrics listening", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server", zap.Error(err))
		}
	}()
}

func runWatch(cmd *cobra.Command, args []string) error {
	ctx, stop := signalContext(cmd)
	defer stop()

	w := &watcher{metrics: metrics.New()}
	if watchMetricsAddr != "" {
		serveMetrics(ctx, watchMetricsAddr, w.metrics)
	}

	// Revisions arriving before the first open wait on the lock.
	w.mu.Lock()
	initial, err := config.Watch(args[0], logger.Named("config"), w.apply)
	if err != nil {
		w.mu.Unlock()
		return err
	}
	err = w.open(initial)
	w.mu.Unlock()
	if err != nil {
		return err
	}
	defer w.close()

	fmt.Printf("  watching %s (Ctrl-C to stop)\n", args[0])
	<-ctx.Done()

	if watchSaveOnExit != "" {
		w.mu.Lock()
		defer w.mu.Unlock()
		if w.sess == nil {
			return fmt.Errorf("no open session to save")
		}
		if err := w.sess.p.SaveToFile(watchSaveOnExit); err != nil {
			return err
		}
		fmt.Printf("  saved %s\n", watchSaveOnExit)
	}
	return nil
}
