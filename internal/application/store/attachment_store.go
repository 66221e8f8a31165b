package store

import (
	"context"
	"fmt"
	"sort"

	"github.com/garyjia/dispatch-register/internal/application/port"
	"github.com/garyjia/dispatch-register/internal/domain/entity"
	"go.uber.org/zap"
)

// AttachmentStore owns the per-file transfer records. There is exactly one
// record per key. Not safe for concurrent use.
type AttachmentStore struct {
	records map[entity.AttachmentKey]*entity.AttachmentRecord
	nextSeq int64
	repo    port.AttachmentRepository
	logger  *zap.Logger
}

// NewAttachmentStore creates an attachment store. repo may be nil.
func NewAttachmentStore(repo port.AttachmentRepository, logger *zap.Logger) *AttachmentStore {
	return &AttachmentStore{
		records: make(map[entity.AttachmentKey]*entity.AttachmentRecord),
		nextSeq: 1,
		repo:    repo,
		logger:  logger,
	}
}

// Load replaces the store contents with the persisted records
func (s *AttachmentStore) Load(ctx context.Context) error {
	if s.repo == nil {
		return nil
	}

	records, err := s.repo.List(ctx)
	if err != nil {
		return fmt.Errorf("failed to load attachment records: %w", err)
	}

	s.records = make(map[entity.AttachmentKey]*entity.AttachmentRecord, len(records))
	for _, rec := range records {
		s.records[rec.Key] = rec
		if rec.Seq >= s.nextSeq {
			s.nextSeq = rec.Seq + 1
		}
	}

	s.logger.Info("Attachment records loaded", zap.Int("count", len(records)))
	return nil
}

// Get returns the stored record for mutation by the engine
func (s *AttachmentStore) Get(key entity.AttachmentKey) (*entity.AttachmentRecord, bool) {
	rec, ok := s.records[key]
	return rec, ok
}

// Put stores a new record or persists changes to an existing one
func (s *AttachmentStore) Put(ctx context.Context, rec *entity.AttachmentRecord) {
	if existing, ok := s.records[rec.Key]; ok && existing != rec {
		// a second record for the same key would break the one-record-per-file invariant
		rec.Seq = existing.Seq
	}
	if rec.Seq == 0 {
		rec.Seq = s.nextSeq
		s.nextSeq++
	}
	s.records[rec.Key] = rec
	s.persist(ctx, rec)
}

// Delete removes a record and releases its retained request
func (s *AttachmentStore) Delete(ctx context.Context, key entity.AttachmentKey) error {
	rec, ok := s.records[key]
	if !ok {
		return nil
	}
	if rec.Request != nil {
		s.logger.Debug("Releasing retained transfer request",
			zap.Int64("group_key", key.GroupKey),
			zap.String("file_id", key.FileID))
		rec.Request = nil
	}
	delete(s.records, key)

	if s.repo != nil {
		if err := s.repo.Delete(ctx, key); err != nil {
			s.logger.Error("Failed to delete persisted attachment record",
				zap.Int64("group_key", key.GroupKey),
				zap.String("file_id", key.FileID),
				zap.Error(err))
			return fmt.Errorf("failed to delete attachment record: %w", err)
		}
	}
	return nil
}

// ListGroup returns copies of the records of a group in creation order
func (s *AttachmentStore) ListGroup(groupKey int64) []*entity.AttachmentRecord {
	return s.clones(s.filter(func(rec *entity.AttachmentRecord) bool {
		return rec.Key.GroupKey == groupKey
	}))
}

// PartyRecords returns the stored records of one row's share of a group
func (s *AttachmentStore) PartyRecords(groupKey int64, party entity.Identity) []*entity.AttachmentRecord {
	return s.filter(func(rec *entity.AttachmentRecord) bool {
		return rec.Key.GroupKey == groupKey && rec.Key.Party == party
	})
}

// GroupRecords returns the stored records of a group
func (s *AttachmentStore) GroupRecords(groupKey int64) []*entity.AttachmentRecord {
	return s.filter(func(rec *entity.AttachmentRecord) bool {
		return rec.Key.GroupKey == groupKey
	})
}

// All returns the stored records in creation order
func (s *AttachmentStore) All() []*entity.AttachmentRecord {
	return s.filter(func(*entity.AttachmentRecord) bool { return true })
}

// GroupKeys returns the distinct group keys that own records, ascending
func (s *AttachmentStore) GroupKeys() []int64 {
	seen := make(map[int64]bool)
	var keys []int64
	for key := range s.records {
		if !seen[key.GroupKey] {
			seen[key.GroupKey] = true
			keys = append(keys, key.GroupKey)
		}
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

// Len returns the number of records
func (s *AttachmentStore) Len() int {
	return len(s.records)
}

func (s *AttachmentStore) filter(pred func(*entity.AttachmentRecord) bool) []*entity.AttachmentRecord {
	var out []*entity.AttachmentRecord
	for _, rec := range s.records {
		if pred(rec) {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out
}

func (s *AttachmentStore) clones(records []*entity.AttachmentRecord) []*entity.AttachmentRecord {
	out := make([]*entity.AttachmentRecord, len(records))
	for i, rec := range records {
		out[i] = rec.Clone()
	}
	return out
}

func (s *AttachmentStore) persist(ctx context.Context, rec *entity.AttachmentRecord) {
	if s.repo == nil {
		return
	}
	if err := s.repo.Save(ctx, rec); err != nil {
		s.logger.Error("Failed to persist attachment record",
			zap.Int64("group_key", rec.Key.GroupKey),
			zap.String("file_id", rec.Key.FileID),
			zap.Error(err))
	}
}
