package timeshift

import (
	"strings"
	"testing"
	"time"
)

const testBaseURL = "https://dvr.example.com"

func inventoryAt(base time.Time, step time.Duration, keys ...string) []SegmentRecord {
	out := make([]SegmentRecord, len(keys))
	for i, k := range keys {
		out[i] = SegmentRecord{Key: k, Uploaded: base.Add(time.Duration(i) * step)}
	}
	return out
}

func TestSynthesize_vod_selects_from_offset(t *testing.T) {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	inv := inventoryAt(base, 9*time.Second, "sbs/powerfm/1.aac", "sbs/powerfm/2.aac", "sbs/powerfm/3.aac")
	now := inv[2].Uploaded

	t.Run("offset_to_archive_start", func(t *testing.T) {
		out := Synthesize(inv, 9, ModeVOD, now.Sub(inv[0].Uploaded), now, testBaseURL)
		if !strings.Contains(out, "#EXT-X-MEDIA-SEQUENCE:0") {
			t.Errorf("expected media sequence 0: %s", out)
		}
		if strings.Count(out, "#EXTINF") != 3 {
			t.Errorf("expected 3 entries: %s", out)
		}
	})

	t.Run("offset_to_second_record", func(t *testing.T) {
		out := Synthesize(inv, 9, ModeVOD, now.Sub(inv[1].Uploaded), now, testBaseURL)
		if !strings.Contains(out, "#EXT-X-MEDIA-SEQUENCE:1") {
			t.Errorf("expected media sequence 1: %s", out)
		}
		if strings.Count(out, "#EXTINF") != 2 {
			t.Errorf("expected 2 entries: %s", out)
		}
		if strings.Contains(out, "/get/sbs/powerfm/1.aac") {
			t.Errorf("first record should be excluded: %s", out)
		}
	})
}

func TestSynthesize_vod_header_and_trailer(t *testing.T) {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	inv := inventoryAt(base, 5*time.Second, "kbs/25/1.ts")
	out := Synthesize(inv, 5, ModeVOD, time.Hour, base.Add(time.Minute), testBaseURL)

	if !strings.HasPrefix(out, "#EXTM3U\n#EXT-X-VERSION:3\n") {
		t.Errorf("unexpected header: %s", out)
	}
	if !strings.Contains(out, "#EXT-X-TARGETDURATION:6") {
		t.Errorf("VOD target duration should be segment duration + 1: %s", out)
	}
	if !strings.Contains(out, "#EXTINF:5.000,") {
		t.Errorf("expected EXTINF with 3 decimals: %s", out)
	}
	if !strings.Contains(out, testBaseURL+"/get/kbs/25/1.ts") {
		t.Errorf("expected absolute segment url: %s", out)
	}
	if !strings.HasSuffix(out, "#EXT-X-ENDLIST\n") {
		t.Errorf("VOD manifest must end with ENDLIST: %s", out)
	}
}

func TestSynthesize_vod_deterministic(t *testing.T) {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	inv := inventoryAt(base, 9*time.Second, "s/1.aac", "s/2.aac", "s/3.aac", "s/4.aac")
	now := base.Add(time.Hour)

	a := Synthesize(inv, 9, ModeVOD, 30*time.Minute, now, testBaseURL)
	b := Synthesize(inv, 9, ModeVOD, 30*time.Minute, now, testBaseURL)
	if a != b {
		t.Error("same inventory and offset must produce byte-identical manifests")
	}
}

func TestSynthesize_vod_empty_selection(t *testing.T) {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	inv := inventoryAt(base, 9*time.Second, "s/1.aac")

	// Offset of zero starts at "now", after every record.
	out := Synthesize(inv, 9, ModeVOD, 0, base.Add(time.Hour), testBaseURL)
	if strings.Count(out, "#EXTINF") != 0 {
		t.Errorf("expected no entries: %s", out)
	}
	if !strings.Contains(out, "#EXT-X-MEDIA-SEQUENCE:0") {
		t.Errorf("expected media sequence 0: %s", out)
	}
	if !strings.HasSuffix(out, "#EXT-X-ENDLIST\n") {
		t.Errorf("empty VOD manifest still ends with ENDLIST: %s", out)
	}
}

func TestSynthesize_live_window(t *testing.T) {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	keys := make([]string, 20)
	for i := range keys {
		keys[i] = "kbs/25/" + string(rune('a'+i)) + ".ts"
	}
	inv := inventoryAt(base, 5*time.Second, keys...)
	now := inv[len(inv)-1].Uploaded

	// Start at record 4: ceil(40/5) = 8 records from index 4.
	out := Synthesize(inv, 5, ModeLive, now.Sub(inv[4].Uploaded), now, testBaseURL)
	if strings.Count(out, "#EXTINF") != 8 {
		t.Errorf("live window should hold 8 records: %s", out)
	}
	if !strings.Contains(out, "#EXT-X-MEDIA-SEQUENCE:4") {
		t.Errorf("media sequence should be the starting index: %s", out)
	}
	if !strings.HasSuffix(out, "#EXT-X-DISCONTINUITY\n") {
		t.Errorf("live manifest must end with DISCONTINUITY: %s", out)
	}
	if strings.Contains(out, "#EXT-X-ENDLIST") {
		t.Errorf("live manifest must not end the list: %s", out)
	}
}

func TestSynthesize_live_target_duration(t *testing.T) {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	inv := inventoryAt(base, 5*time.Second, "kbs/25/1.ts")
	out := Synthesize(inv, 5, ModeLive, time.Minute, base.Add(time.Minute), testBaseURL)

	// max(60, 3*5) suppresses client re-polling.
	if !strings.Contains(out, "#EXT-X-TARGETDURATION:60") {
		t.Errorf("live target duration should be floored at 60: %s", out)
	}
}

func TestSynthesize_live_tail_fallback(t *testing.T) {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	inv := inventoryAt(base, 5*time.Second, "k/1.ts", "k/2.ts", "k/3.ts")
	now := inv[2].Uploaded.Add(time.Hour)

	// Offset lands after every record; fall back to the archive tail.
	out := Synthesize(inv, 5, ModeLive, time.Minute, now, testBaseURL)
	if strings.Count(out, "#EXTINF") != 3 {
		t.Errorf("short archive should return the whole tail: %s", out)
	}
	if !strings.Contains(out, "#EXT-X-MEDIA-SEQUENCE:0") {
		t.Errorf("tail sequence clamps at 0: %s", out)
	}
}

func TestSynthesize_live_tail_of_long_archive(t *testing.T) {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	keys := make([]string, 12)
	for i := range keys {
		keys[i] = "kbs/25/" + string(rune('a'+i)) + ".ts"
	}
	inv := inventoryAt(base, 5*time.Second, keys...)
	now := inv[len(inv)-1].Uploaded.Add(time.Hour)

	out := Synthesize(inv, 5, ModeLive, time.Minute, now, testBaseURL)
	if strings.Count(out, "#EXTINF") != 8 {
		t.Errorf("tail window should hold 8 records: %s", out)
	}
	if !strings.Contains(out, "#EXT-X-MEDIA-SEQUENCE:4") {
		t.Errorf("tail of 12 with window 8 starts at index 4: %s", out)
	}
}

func TestSynthesize_sorts_unordered_inventory(t *testing.T) {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	inv := []SegmentRecord{
		{Key: "s/3.aac", Uploaded: base.Add(18 * time.Second)},
		{Key: "s/1.aac", Uploaded: base},
		{Key: "s/2.aac", Uploaded: base.Add(9 * time.Second)},
	}
	out := Synthesize(inv, 9, ModeVOD, time.Hour, base.Add(time.Minute), testBaseURL)

	i1 := strings.Index(out, "s/1.aac")
	i2 := strings.Index(out, "s/2.aac")
	i3 := strings.Index(out, "s/3.aac")
	if !(i1 < i2 && i2 < i3) {
		t.Errorf("entries should be in upload order: %s", out)
	}
}

func TestSegmentDurationFor(t *testing.T) {
	if d := SegmentDurationFor("kbs/25"); d != 5 {
		t.Errorf("kbs prefix: got %d, want 5", d)
	}
	if d := SegmentDurationFor("sbs/powerfm"); d != 9 {
		t.Errorf("sbs prefix: got %d, want 9", d)
	}
}
