package live

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

var (
	ErrAlreadyRunning = errors.New("live capture already running")
	ErrNotRunning     = errors.New("live capture not running")
)

// RunnerStatus is the externally visible state of the capture loop.
type RunnerStatus struct {
	Running         bool       `json:"running"`
	StartedAt       *time.Time `json:"started_at,omitempty"`
	FramesProcessed int64      `json:"frames_processed"`
	LastError       string     `json:"last_error,omitempty"`
}

// Runner drives a Session from a FrameSource on a fixed interval. Capture
// and detection errors are recorded and the loop keeps going; a camera blip
// should not kill the feed.
type Runner struct {
	session  *Session
	source   FrameSource
	interval time.Duration

	mu        sync.Mutex
	cancel    context.CancelFunc
	done      chan struct{}
	startedAt time.Time
	frames    int64
	lastErr   string
}

// NewRunner creates a stopped Runner.
func NewRunner(session *Session, source FrameSource, interval time.Duration) *Runner {
	return &Runner{session: session, source: source, interval: interval}
}

// Start launches the capture loop. The session's tracker is reset so seat
// numbering starts fresh.
func (r *Runner) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cancel != nil {
		return ErrAlreadyRunning
	}

	if err := r.session.Reset(ctx); err != nil {
		return err
	}

	loopCtx, cancel := context.WithCancel(context.Background())
	r.cancel = cancel
	r.done = make(chan struct{})
	r.startedAt = time.Now().UTC()
	r.frames = 0
	r.lastErr = ""

	go r.loop(loopCtx)
	slog.Info("live capture started", "interval", r.interval)
	return nil
}

// Stop halts the capture loop and waits for it to exit.
func (r *Runner) Stop() error {
	r.mu.Lock()
	if r.cancel == nil {
		r.mu.Unlock()
		return ErrNotRunning
	}
	cancel, done := r.cancel, r.done
	r.cancel = nil
	r.mu.Unlock()

	cancel()
	<-done
	slog.Info("live capture stopped")
	return nil
}

// Status reports the loop's current state.
func (r *Runner) Status() RunnerStatus {
	r.mu.Lock()
	defer r.mu.Unlock()

	status := RunnerStatus{
		Running:         r.cancel != nil,
		FramesProcessed: r.frames,
		LastError:       r.lastErr,
	}
	if status.Running {
		startedAt := r.startedAt
		status.StartedAt = &startedAt
	}
	return status
}

func (r *Runner) loop(ctx context.Context) {
	defer close(r.done)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		frame, err := r.source.Capture(ctx)
		if err != nil {
			r.recordError(err)
			continue
		}

		if _, err := r.session.ProcessFrame(ctx, frame); err != nil {
			r.recordError(err)
			continue
		}

		r.mu.Lock()
		r.frames++
		r.lastErr = ""
		r.mu.Unlock()
	}
}

func (r *Runner) recordError(err error) {
	if errors.Is(err, context.Canceled) {
		return
	}
	slog.Warn("live capture frame failed", "error", err)
	r.mu.Lock()
	r.lastErr = err.Error()
	r.mu.Unlock()
}
