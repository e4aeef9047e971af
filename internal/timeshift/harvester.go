package timeshift

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/true85/radio/internal/platform/metrics"
)

const (
	// DefaultInterval is the polling cadence used when a station is started
	// without one.
	DefaultInterval = 5 * time.Second

	// dedupWindowSize caps the per-station set of already-ingested segment
	// identifiers. Eviction past this size may forget a very old segment,
	// which is safe: live playlists do not re-announce segments that far back.
	dedupWindowSize = 500

	// maxDownloadAttempts bounds the retries for one segment download.
	maxDownloadAttempts = 3

	// checkpointEvery is how often the dedup window is persisted. Crash
	// recovery inside this window may re-download a few recent segments;
	// the overwrite is idempotent.
	checkpointEvery = 10 * time.Minute

	// burstFactor shortens the polling delay after a tick that found new
	// segments, to catch up on bursty upstreams.
	burstFactor = 0.25

	// burstFloor is the minimum burst delay.
	burstFloor = 200 * time.Millisecond

	// firstTickDelay is how soon after setup the first poll fires.
	firstTickDelay = time.Second
)

// segmentLineRe matches playlist lines referencing a media file the
// harvester archives: .aac or .ts, with or without a query string.
var segmentLineRe = regexp.MustCompile(`(?i)\.(aac|ts)(\?|$)`)

// Harvester polls one station's live playlist and archives unseen segments.
// It is a single sequential actor: ticks never overlap because the next tick
// is only armed after the current one fully settles. Stopping cancels the
// pending tick but lets an in-flight one finish.
type Harvester struct {
	station  StationID
	segments SegmentStore
	ckpt     CheckpointStore
	resolver *Resolver
	client   *http.Client
	log      *slog.Logger
	metrics  *metrics.Metrics

	// Tunables, defaulted in NewHarvester; tests shorten them.
	retryDelay      time.Duration
	checkpointEvery time.Duration

	// seen synchronizes internally; lastCheckpoint is only touched by the
	// tick goroutine and by Start while the chain is down.
	seen           *DedupWindow
	lastCheckpoint time.Time

	mu      sync.Mutex
	timer   *time.Timer
	stopped bool
	// gen identifies the current polling chain. Each Start from a stopped
	// state bumps it; a tick armed under an older generation refuses to run
	// or reschedule, so a restart can never leave two chains alive.
	gen uint64
	ctx context.Context
}

// NewHarvester returns a Harvester for station. client may be nil to use
// http.DefaultClient; m may be nil to disable metrics.
func NewHarvester(ctx context.Context, station StationID, segments SegmentStore, ckpt CheckpointStore, client *http.Client, log *slog.Logger, m *metrics.Metrics) *Harvester {
	if client == nil {
		client = http.DefaultClient
	}
	return &Harvester{
		station:         station,
		segments:        segments,
		ckpt:            ckpt,
		resolver:        NewResolver(client),
		client:          client,
		log:             log.With(slog.String("station", string(station))),
		metrics:         m,
		retryDelay:      time.Second,
		checkpointEvery: checkpointEvery,
		seen:            NewDedupWindow(dedupWindowSize),
		stopped:         true,
		ctx:             ctx,
	}
}

// Start persists cfg, marks the station active, restores the dedup window
// from the last checkpoint, and schedules the first tick. Calling Start on a
// running harvester only persists the new config; the live chain re-reads it
// on every tick, so arming a second timer would leave two chains polling the
// same station.
func (h *Harvester) Start(ctx context.Context, cfg StationConfig) error {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if err := h.ckpt.SaveConfig(ctx, h.station, cfg); err != nil {
		return err
	}
	if err := h.ckpt.SetActive(ctx, h.station, true); err != nil {
		return err
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.stopped {
		h.log.Info("harvester reconfigured",
			slog.String("prefix", cfg.Prefix),
			slog.Duration("interval", cfg.Interval))
		return nil
	}

	if err := h.ckpt.SaveLastCheckpoint(ctx, h.station, time.Now()); err != nil {
		return err
	}
	if ids, err := h.ckpt.LoadSeen(ctx, h.station); err == nil {
		h.seen.Restore(ids)
	}
	h.lastCheckpoint = time.Now()

	h.gen++
	gen := h.gen
	h.stopped = false
	if h.timer != nil {
		h.timer.Stop()
	}
	h.timer = time.AfterFunc(firstTickDelay, func() { h.tick(gen) })

	h.log.Info("harvester started",
		slog.String("prefix", cfg.Prefix),
		slog.Duration("interval", cfg.Interval))
	return nil
}

// Stop marks the station inactive and cancels the pending tick. A tick
// already running completes normally; it will not reschedule itself.
func (h *Harvester) Stop(ctx context.Context) error {
	if err := h.ckpt.SetActive(ctx, h.station, false); err != nil {
		return err
	}
	h.cancel()
	h.log.Info("harvester stopped")
	return nil
}

// cancel stops the polling chain without touching the persisted active flag.
// Used for process shutdown, where the station should resume on restart.
func (h *Harvester) cancel() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.stopped = true
	if h.timer != nil {
		h.timer.Stop()
		h.timer = nil
	}
}

// Running reports whether the polling chain is armed.
func (h *Harvester) Running() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return !h.stopped
}

// tick performs one poll: resolve the playlist, download unseen segments,
// update the dedup window, checkpoint if due, and schedule the next tick.
// No failure here is fatal; the chain only ends via the active flag. gen is
// the chain that armed this tick; a tick from a superseded chain is dropped.
func (h *Harvester) tick(gen uint64) {
	h.mu.Lock()
	if gen != h.gen {
		h.mu.Unlock()
		return
	}
	h.mu.Unlock()

	ctx := h.ctx

	active, err := h.ckpt.Active(ctx, h.station)
	if err != nil {
		// A flaky checkpoint read must not end the chain; only a clean
		// inactive flag does.
		h.log.Warn("active check failed", slog.String("error", err.Error()))
		h.reschedule(gen, DefaultInterval)
		return
	}
	if !active {
		return
	}
	if h.metrics != nil {
		h.metrics.IncTicks()
	}

	cfg, ok, err := h.ckpt.LoadConfig(ctx, h.station)
	if err != nil || !ok {
		// Tick fired before setup finished; try again later.
		h.reschedule(gen, DefaultInterval)
		return
	}

	t0 := time.Now()

	playlist, playlistURL, err := h.resolver.Resolve(ctx, cfg.DiscoveryURL)
	if err != nil {
		h.log.Warn("resolve failed", slog.String("error", err.Error()))
		h.reschedule(gen, cfg.Interval)
		return
	}

	lines := segmentLines(playlist)
	if len(lines) == 0 {
		// Nothing recognizable in the playlist; treat like a resolve miss.
		h.reschedule(gen, cfg.Interval)
		return
	}

	jobs := h.newSegments(lines, playlistURL, cfg.Prefix)

	// Fan out one goroutine per unseen segment; the join is a strict
	// barrier before the dedup update and the reschedule.
	stored := make(chan string, len(jobs))
	var wg sync.WaitGroup
	for _, j := range jobs {
		wg.Add(1)
		go func(j segmentJob) {
			defer wg.Done()
			if h.downloadAndStore(ctx, j.url, j.key) {
				stored <- j.dedupID
			}
		}(j)
	}
	wg.Wait()
	close(stored)

	n := 0
	for id := range stored {
		h.seen.Add(id)
		n++
	}
	if h.metrics != nil && n > 0 {
		h.metrics.AddSegmentsStored(n)
	}

	if time.Since(h.lastCheckpoint) > h.checkpointEvery {
		if err := h.ckpt.SaveSeen(ctx, h.station, h.seen.Snapshot()); err != nil {
			h.log.Warn("checkpoint failed", slog.String("error", err.Error()))
		} else {
			h.lastCheckpoint = time.Now()
			_ = h.ckpt.SaveLastCheckpoint(ctx, h.station, h.lastCheckpoint)
		}
	}

	// New segments hint at a bursty upstream: poll again quickly. Otherwise
	// subtract the time this tick took so the cadence tracks the interval.
	if len(jobs) > 0 {
		delay := time.Duration(float64(cfg.Interval) * burstFactor)
		if delay < burstFloor {
			delay = burstFloor
		}
		h.reschedule(gen, delay)
		return
	}
	h.reschedule(gen, remaining(cfg.Interval, t0))
}

type segmentJob struct {
	url     string // absolute download URL
	key     string // storage key <prefix>/<filename>
	dedupID string // source URI with the query stripped
}

// segmentLines returns the playlist's media segment URIs: non-comment lines
// with a recognized media extension.
func segmentLines(playlist string) []string {
	var out []string
	for _, line := range strings.Split(playlist, "\n") {
		line = strings.TrimSpace(line)
		if line != "" && !strings.HasPrefix(line, "#") && segmentLineRe.MatchString(line) {
			out = append(out, line)
		}
	}
	return out
}

// newSegments returns download jobs for the segment URIs not in the dedup
// window.
func (h *Harvester) newSegments(lines []string, playlistURL, prefix string) []segmentJob {
	var jobs []segmentJob
	for _, line := range lines {
		dedupID := strings.SplitN(line, "?", 2)[0]
		if h.seen.Contains(dedupID) {
			continue
		}

		abs, err := resolveRef(playlistURL, line)
		if err != nil {
			continue
		}
		file := abs[strings.LastIndex(abs, "/")+1:]
		file = strings.SplitN(file, "?", 2)[0]

		jobs = append(jobs, segmentJob{
			url:     abs,
			key:     prefix + "/" + file,
			dedupID: dedupID,
		})
	}
	return jobs
}

// downloadAndStore fetches url and writes it under key, retrying up to
// maxDownloadAttempts with a fixed delay. Exhausted retries are logged and
// swallowed: a missing segment is a gap in the archive, not a failure of
// the tick.
func (h *Harvester) downloadAndStore(ctx context.Context, url, key string) bool {
	var lastErr error
	for attempt := 1; attempt <= maxDownloadAttempts; attempt++ {
		if attempt > 1 {
			select {
			case <-time.After(h.retryDelay):
			case <-ctx.Done():
				return false
			}
		}
		if err := h.fetchAndPut(ctx, url, key); err != nil {
			lastErr = err
			h.log.Debug("download attempt failed",
				slog.String("key", key),
				slog.Int("attempt", attempt),
				slog.String("error", err.Error()))
			continue
		}
		h.log.Debug("segment stored", slog.String("key", key))
		return true
	}
	h.log.Error("segment abandoned",
		slog.String("key", key),
		slog.String("error", lastErr.Error()))
	if h.metrics != nil {
		h.metrics.IncDownloadFailures()
	}
	return false
}

func (h *Harvester) fetchAndPut(ctx context.Context, url, key string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	// Each segment is fresh bytes; never serve it from an intermediary cache.
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := h.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &httpStatusError{status: resp.StatusCode, url: url}
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	return h.segments.Put(ctx, key, body, contentTypeForKey(key))
}

type httpStatusError struct {
	status int
	url    string
}

func (e *httpStatusError) Error() string {
	return "HTTP " + http.StatusText(e.status) + " fetching " + e.url
}

func contentTypeForKey(key string) string {
	if strings.HasSuffix(key, ".ts") {
		return "video/mp2t"
	}
	return "audio/aac"
}

// reschedule arms the next tick unless the harvester was stopped or the
// caller's chain has been superseded by a newer Start.
func (h *Harvester) reschedule(gen uint64, delay time.Duration) {
	if delay < 0 {
		delay = 0
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.stopped || gen != h.gen {
		return
	}
	h.timer = time.AfterFunc(delay, func() { h.tick(gen) })
}

func remaining(interval time.Duration, start time.Time) time.Duration {
	d := interval - time.Since(start)
	if d < 0 {
		return 0
	}
	return d
}
