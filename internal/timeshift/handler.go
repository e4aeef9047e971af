package timeshift

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
)

const playlistContentType = "application/vnd.apple.mpegurl"

// Handler exposes the timeshift HTTP endpoints using go-chi: admin start and
// stop, playlist synthesis, and segment delivery.
type Handler struct {
	manager  *Manager
	segments SegmentStore
	// baseURL overrides the origin used for segment URLs in playlists;
	// empty means derive it from the request.
	baseURL string
	log     *slog.Logger
}

// NewHandler returns a Handler using the given Manager and SegmentStore.
// baseURL may be empty to build segment URLs from the request host.
func NewHandler(manager *Manager, segments SegmentStore, baseURL string, log *slog.Logger) *Handler {
	return &Handler{manager: manager, segments: segments, baseURL: strings.TrimSuffix(baseURL, "/"), log: log}
}

// Routes mounts all endpoints on r. The playlist handler is the catch-all;
// any path ending in .m3u8 is treated as a station prefix.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/init", h.StartInstance)
	r.Get("/stop", h.StopInstance)
	r.Get("/get/*", h.ServeSegment)
	r.Get("/*", h.GetPlaylist)
}

// StartInstance handles GET /init?name=&url=&prefix=&interval=.
// interval is in seconds and defaults to 5.
func (h *Handler) StartInstance(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	name := q.Get("name")
	discoveryURL := q.Get("url")
	prefix := q.Get("prefix")
	if name == "" || discoveryURL == "" || prefix == "" {
		http.Error(w, "usage: /init?name=&url=&prefix=&interval=", http.StatusBadRequest)
		return
	}

	// interval is a whole number of seconds; anything else keeps the default.
	interval := DefaultInterval
	if s := q.Get("interval"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			interval = time.Duration(n) * time.Second
		}
	}

	cfg := StationConfig{
		DiscoveryURL: discoveryURL,
		Prefix:       prefix,
		Interval:     interval,
	}
	if err := h.manager.Start(r.Context(), StationID(name), cfg); err != nil {
		h.log.Error("start instance failed", slog.String("name", name), slog.String("error", err.Error()))
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	fmt.Fprintf(w, "instance %q started", name)
}

// StopInstance handles GET /stop?name=.
func (h *Handler) StopInstance(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("name")
	if name == "" {
		http.Error(w, "usage: /stop?name=", http.StatusBadRequest)
		return
	}

	if err := h.manager.Stop(r.Context(), StationID(name)); err != nil {
		h.log.Error("stop instance failed", slog.String("name", name), slog.String("error", err.Error()))
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	fmt.Fprintf(w, "instance %q stopped", name)
}

// GetPlaylist handles GET /<prefix>.m3u8?ago=<offset>[&mode=live]. The path
// up to the .m3u8 suffix is the station's storage prefix. Paths without the
// suffix get the service banner.
func (h *Handler) GetPlaylist(w http.ResponseWriter, r *http.Request) {
	if !strings.HasSuffix(r.URL.Path, ".m3u8") {
		w.Write([]byte("radio timeshift"))
		return
	}

	prefix := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/"), ".m3u8")

	ago := r.URL.Query().Get("ago")
	if ago == "" {
		http.Error(w, "`ago` param is required", http.StatusBadRequest)
		return
	}

	inventory, err := h.segments.List(r.Context(), prefix+"/")
	if err != nil {
		h.log.Error("inventory list failed", slog.String("prefix", prefix), slog.String("error", err.Error()))
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	mode := ModeVOD
	if r.URL.Query().Get("mode") == "live" {
		mode = ModeLive
	}

	manifest := Synthesize(inventory, SegmentDurationFor(prefix), mode, ParseAgo(ago), time.Now(), h.origin(r))

	w.Header().Set("Content-Type", playlistContentType)
	w.Header().Set("Access-Control-Allow-Origin", "*")
	if mode == ModeLive {
		// Live manifests slide on every fetch; never let a shared cache
		// hold one.
		w.Header().Set("Cache-Control", "public, max-age=0, s-maxage=0")
	} else {
		w.Header().Set("Cache-Control", "public, max-age=0, s-maxage=30")
	}
	w.Write([]byte(manifest))
}

// ServeSegment handles GET /get/<key> with conditional-request support.
func (h *Handler) ServeSegment(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "*")
	if key == "" {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	obj, ok, err := h.segments.Get(r.Context(), key)
	if err != nil {
		h.log.Error("segment read failed", slog.String("key", key), slog.String("error", err.Error()))
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	if r.Header.Get("If-None-Match") == obj.ETag {
		w.Header().Set("ETag", obj.ETag)
		w.WriteHeader(http.StatusNotModified)
		return
	}

	w.Header().Set("Content-Type", obj.ContentType)
	w.Header().Set("ETag", obj.ETag)
	w.Header().Set("Access-Control-Allow-Origin", "*")
	// Segment bytes are immutable once written; let shared caches keep
	// them for a day.
	w.Header().Set("Cache-Control", "public, max-age=0, s-maxage=86400")
	w.Write(obj.Body)
}

// origin returns the scheme://host segment URLs are built against.
func (h *Handler) origin(r *http.Request) string {
	if h.baseURL != "" {
		return h.baseURL
	}
	scheme := "http"
	if r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https" {
		scheme = "https"
	}
	return scheme + "://" + r.Host
}
