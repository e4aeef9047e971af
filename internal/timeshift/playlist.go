package timeshift

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"
)

// PlaylistMode selects the manifest shape Synthesize emits.
type PlaylistMode int

const (
	// ModeVOD emits a finite manifest: every archived segment from the
	// requested start instant onward, terminated by #EXT-X-ENDLIST. Output
	// is deterministic for a fixed inventory and offset.
	ModeVOD PlaylistMode = iota

	// ModeLive emits a sliding window of roughly 40 seconds near the
	// requested start instant, terminated by #EXT-X-DISCONTINUITY so the
	// player keeps re-fetching.
	ModeLive
)

// liveWindowSec is the approximate audio span a live-mode manifest exposes.
const liveWindowSec = 40

// SegmentDurationFor returns the fixed per-family segment length in seconds
// for a station prefix. The duration is a broadcaster constant, not derived
// from media: KBS publishes 5-second segments, SBS 9-second ones.
func SegmentDurationFor(prefix string) int {
	if strings.HasPrefix(prefix, "kbs") {
		return 5
	}
	return 9
}

// Synthesize turns a station's inventory into an HLS media playlist starting
// ago before now. Records are sorted by upload time; baseURL is the
// scheme://host segment URLs are made absolute against. An empty selection
// still yields a syntactically valid manifest.
func Synthesize(inventory []SegmentRecord, segmentDuration int, mode PlaylistMode, ago time.Duration, now time.Time, baseURL string) string {
	records := make([]SegmentRecord, len(inventory))
	copy(records, inventory)
	sort.Slice(records, func(i, j int) bool {
		return records[i].Uploaded.Before(records[j].Uploaded)
	})

	start := now.Add(-ago)

	var selected []SegmentRecord
	seq := 0

	if mode == ModeLive {
		count := int(math.Ceil(float64(liveWindowSec) / float64(segmentDuration)))
		idx := -1
		for i, r := range records {
			if !r.Uploaded.Before(start) {
				idx = i
				break
			}
		}
		if idx < 0 {
			// Nothing at or after the start instant: show the archive tail
			// so the player always has something near the live edge.
			seq = len(records) - count
			if seq < 0 {
				seq = 0
			}
			selected = records[seq:]
		} else {
			end := idx + count
			if end > len(records) {
				end = len(records)
			}
			selected = records[idx:end]
			seq = idx
		}
	} else {
		for i, r := range records {
			if !r.Uploaded.Before(start) {
				selected = records[i:]
				seq = i
				break
			}
		}
	}

	targetDuration := segmentDuration + 1
	if mode == ModeLive {
		targetDuration = 3 * segmentDuration
		if targetDuration < 60 {
			targetDuration = 60
		}
	}

	var b strings.Builder
	b.WriteString("#EXTM3U\n")
	b.WriteString("#EXT-X-VERSION:3\n")
	fmt.Fprintf(&b, "#EXT-X-TARGETDURATION:%d\n", targetDuration)
	fmt.Fprintf(&b, "#EXT-X-MEDIA-SEQUENCE:%d\n", seq)

	for _, r := range selected {
		fmt.Fprintf(&b, "#EXTINF:%.3f,\n", float64(segmentDuration))
		b.WriteString(baseURL + "/get/" + r.Key + "\n")
	}

	if mode == ModeLive {
		b.WriteString("#EXT-X-DISCONTINUITY\n")
	} else {
		b.WriteString("#EXT-X-ENDLIST\n")
	}

	return b.String()
}
