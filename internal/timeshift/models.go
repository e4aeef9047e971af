package timeshift

import "time"

// StationID names a harvested station instance (e.g. "sbs_powerfm").
type StationID string

// StationConfig is the persisted configuration of one station.
type StationConfig struct {
	// DiscoveryURL is the broadcaster endpoint that resolves to the live
	// media playlist (directly, or via a JSON indirection).
	DiscoveryURL string

	// Prefix is the storage key prefix all of this station's segments are
	// written under (e.g. "sbs/powerfm").
	Prefix string

	// Interval is the nominal polling cadence.
	Interval time.Duration
}

// SegmentRecord is one entry of a station's archived inventory: a stored
// segment key plus the time the store assigned at write time. Records are
// immutable once written.
type SegmentRecord struct {
	Key      string
	Uploaded time.Time
}

// StoredObject is a segment read back from the segment store.
type StoredObject struct {
	Body        []byte
	ContentType string
	ETag        string
}
