package timeshift

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"strings"
	"sync"
	"time"
)

// SegmentStore is the blob storage abstraction for archived segments.
// Implementations can be in-memory or remote (S3). Writes are atomic at the
// store boundary: a reader either sees a whole segment or none.
type SegmentStore interface {
	// Put writes body under key with the given content type, overwriting
	// any existing object. The store assigns the upload timestamp.
	Put(ctx context.Context, key string, body []byte, contentType string) error

	// Get returns the stored object for key. ok is false if key is absent.
	Get(ctx context.Context, key string) (obj StoredObject, ok bool, err error)

	// List returns all objects under prefix, paginating internally.
	// Ordering is not guaranteed; callers sort by upload time.
	List(ctx context.Context, prefix string) ([]SegmentRecord, error)
}

// CheckpointStore is the durable key/value storage for harvester
// configuration and crash-recovery state.
type CheckpointStore interface {
	SaveConfig(ctx context.Context, station StationID, cfg StationConfig) error
	// LoadConfig returns ok false when the station has never been configured.
	LoadConfig(ctx context.Context, station StationID) (cfg StationConfig, ok bool, err error)

	SetActive(ctx context.Context, station StationID, active bool) error
	Active(ctx context.Context, station StationID) (bool, error)

	// SaveSeen persists the dedup window snapshot, oldest-first.
	SaveSeen(ctx context.Context, station StationID, ids []string) error
	LoadSeen(ctx context.Context, station StationID) ([]string, error)

	// SaveLastCheckpoint records when the dedup snapshot was last persisted.
	SaveLastCheckpoint(ctx context.Context, station StationID, t time.Time) error
	// LastCheckpoint returns the zero time when no checkpoint was recorded.
	LastCheckpoint(ctx context.Context, station StationID) (time.Time, error)
}

// InMemorySegmentStore is an in-memory SegmentStore used in tests.
type InMemorySegmentStore struct {
	mu      sync.RWMutex
	objects map[string]memObject
	now     func() time.Time
}

type memObject struct {
	body        []byte
	contentType string
	uploaded    time.Time
}

// NewInMemorySegmentStore returns an empty in-memory segment store.
func NewInMemorySegmentStore() *InMemorySegmentStore {
	return &InMemorySegmentStore{
		objects: make(map[string]memObject),
		now:     time.Now,
	}
}

// Put implements SegmentStore.Put.
func (s *InMemorySegmentStore) Put(ctx context.Context, key string, body []byte, contentType string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[key] = memObject{body: body, contentType: contentType, uploaded: s.now().UTC()}
	return nil
}

// Get implements SegmentStore.Get. The ETag is a hash of the body, matching
// how blob stores derive entity tags for simple puts.
func (s *InMemorySegmentStore) Get(ctx context.Context, key string) (StoredObject, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.objects[key]
	if !ok {
		return StoredObject{}, false, nil
	}
	sum := md5.Sum(o.body)
	return StoredObject{
		Body:        o.body,
		ContentType: o.contentType,
		ETag:        `"` + hex.EncodeToString(sum[:]) + `"`,
	}, true, nil
}

// List implements SegmentStore.List.
func (s *InMemorySegmentStore) List(ctx context.Context, prefix string) ([]SegmentRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []SegmentRecord
	for key, o := range s.objects {
		if strings.HasPrefix(key, prefix) {
			out = append(out, SegmentRecord{Key: key, Uploaded: o.uploaded})
		}
	}
	return out, nil
}

// SetUploaded overrides an object's upload time. Test helper for building
// inventories with known timelines.
func (s *InMemorySegmentStore) SetUploaded(key string, t time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if o, ok := s.objects[key]; ok {
		o.uploaded = t
		s.objects[key] = o
	}
}

// Len returns the number of stored objects.
func (s *InMemorySegmentStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.objects)
}

// InMemoryCheckpointStore is an in-memory CheckpointStore used in tests.
type InMemoryCheckpointStore struct {
	mu          sync.RWMutex
	configs     map[StationID]StationConfig
	active      map[StationID]bool
	seen        map[StationID][]string
	checkpoints map[StationID]time.Time
}

// NewInMemoryCheckpointStore returns an empty in-memory checkpoint store.
func NewInMemoryCheckpointStore() *InMemoryCheckpointStore {
	return &InMemoryCheckpointStore{
		configs:     make(map[StationID]StationConfig),
		active:      make(map[StationID]bool),
		seen:        make(map[StationID][]string),
		checkpoints: make(map[StationID]time.Time),
	}
}

// SaveConfig implements CheckpointStore.SaveConfig.
func (s *InMemoryCheckpointStore) SaveConfig(ctx context.Context, station StationID, cfg StationConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.configs[station] = cfg
	return nil
}

// LoadConfig implements CheckpointStore.LoadConfig.
func (s *InMemoryCheckpointStore) LoadConfig(ctx context.Context, station StationID) (StationConfig, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cfg, ok := s.configs[station]
	return cfg, ok, nil
}

// SetActive implements CheckpointStore.SetActive.
func (s *InMemoryCheckpointStore) SetActive(ctx context.Context, station StationID, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.active[station] = active
	return nil
}

// Active implements CheckpointStore.Active.
func (s *InMemoryCheckpointStore) Active(ctx context.Context, station StationID) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.active[station], nil
}

// SaveSeen implements CheckpointStore.SaveSeen.
func (s *InMemoryCheckpointStore) SaveSeen(ctx context.Context, station StationID, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := make([]string, len(ids))
	copy(cp, ids)
	s.seen[station] = cp
	return nil
}

// LoadSeen implements CheckpointStore.LoadSeen.
func (s *InMemoryCheckpointStore) LoadSeen(ctx context.Context, station StationID) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.seen[station], nil
}

// SaveLastCheckpoint implements CheckpointStore.SaveLastCheckpoint.
func (s *InMemoryCheckpointStore) SaveLastCheckpoint(ctx context.Context, station StationID, t time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.checkpoints[station] = t
	return nil
}

// LastCheckpoint implements CheckpointStore.LastCheckpoint.
func (s *InMemoryCheckpointStore) LastCheckpoint(ctx context.Context, station StationID) (time.Time, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.checkpoints[station], nil
}
