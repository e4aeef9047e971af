package timeshift

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// ErrNoPlaylist is returned when a discovery response yields no usable
// media playlist URL.
var ErrNoPlaylist = errors.New("no playlist url in discovery response")

// discoveryExtractor pulls the live playlist URL out of one broadcaster
// family's discovery JSON.
type discoveryExtractor func(body []byte) (string, error)

// discoveryExtractors maps a broadcaster identifier (matched as a substring
// of the discovery URL) to its JSON shape. New broadcasters slot in here
// without touching the harvester control flow. The KBS shape doubles as the
// fallback for unknown JSON responses.
var discoveryExtractors = map[string]discoveryExtractor{
	"sbs": extractSBS,
	"kbs": extractKBS,
}

func extractSBS(body []byte) (string, error) {
	var d struct {
		Stream []struct {
			Source string `json:"source"`
		} `json:"stream"`
	}
	if err := json.Unmarshal(body, &d); err != nil {
		return "", err
	}
	if len(d.Stream) == 0 || d.Stream[0].Source == "" {
		return "", ErrNoPlaylist
	}
	return d.Stream[0].Source, nil
}

func extractKBS(body []byte) (string, error) {
	var d struct {
		ChannelItem []struct {
			ServiceURL string `json:"service_url"`
		} `json:"channel_item"`
	}
	if err := json.Unmarshal(body, &d); err != nil {
		return "", err
	}
	if len(d.ChannelItem) == 0 || d.ChannelItem[0].ServiceURL == "" {
		return "", ErrNoPlaylist
	}
	return d.ChannelItem[0].ServiceURL, nil
}

// Resolver turns a station's discovery endpoint into the current media
// playlist. It follows one indirection level on each side: discovery JSON to
// playlist URL, and master playlist to variant playlist.
type Resolver struct {
	client *http.Client
}

// NewResolver returns a Resolver using the given HTTP client, or
// http.DefaultClient if client is nil.
func NewResolver(client *http.Client) *Resolver {
	if client == nil {
		client = http.DefaultClient
	}
	return &Resolver{client: client}
}

// Resolve fetches discoveryURL and returns the raw media playlist text plus
// the URL it was fetched from; the latter is the base for resolving relative
// segment URIs. Any fetch or parse failure aborts resolution.
func (r *Resolver) Resolve(ctx context.Context, discoveryURL string) (body, playlistURL string, err error) {
	discovery, err := r.fetchText(ctx, discoveryURL)
	if err != nil {
		return "", "", fmt.Errorf("discovery fetch: %w", err)
	}

	playlistURL = strings.TrimSpace(discovery)
	if strings.HasPrefix(playlistURL, "{") {
		playlistURL, err = extractPlaylistURL(discoveryURL, []byte(discovery))
		if err != nil {
			return "", "", fmt.Errorf("discovery parse: %w", err)
		}
	}

	body, err = r.fetchText(ctx, playlistURL)
	if err != nil {
		return "", "", fmt.Errorf("playlist fetch: %w", err)
	}

	// A master playlist lists variant playlists rather than segments; hop
	// once more to the first variant.
	if strings.Contains(body, "#EXT-X-STREAM-INF") && !strings.Contains(body, "#EXTINF") {
		variant := firstNonCommentLine(body)
		if variant == "" {
			return "", "", ErrNoPlaylist
		}
		variantURL, err := resolveRef(playlistURL, variant)
		if err != nil {
			return "", "", fmt.Errorf("variant url: %w", err)
		}
		body, err = r.fetchText(ctx, variantURL)
		if err != nil {
			return "", "", fmt.Errorf("variant fetch: %w", err)
		}
		playlistURL = variantURL
	}

	return body, playlistURL, nil
}

func (r *Resolver) fetchText(ctx context.Context, rawURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", err
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("unexpected status %d from %s", resp.StatusCode, rawURL)
	}
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// extractPlaylistURL picks the extractor whose broadcaster identifier
// appears in the discovery URL, falling back to the KBS shape.
func extractPlaylistURL(discoveryURL string, body []byte) (string, error) {
	for id, extract := range discoveryExtractors {
		if strings.Contains(discoveryURL, id) {
			return extract(body)
		}
	}
	return extractKBS(body)
}

func firstNonCommentLine(playlist string) string {
	for _, line := range strings.Split(playlist, "\n") {
		line = strings.TrimSpace(line)
		if line != "" && !strings.HasPrefix(line, "#") {
			return line
		}
	}
	return ""
}

// resolveRef resolves a possibly-relative reference against a base URL.
func resolveRef(base, ref string) (string, error) {
	if strings.HasPrefix(ref, "http") {
		return ref, nil
	}
	b, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	r, err := url.Parse(ref)
	if err != nil {
		return "", err
	}
	return b.ResolveReference(r).String(), nil
}
