package store

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/garyjia/dispatch-register/internal/application/port"
	"github.com/garyjia/dispatch-register/internal/domain/entity"
	"go.uber.org/zap"
)

// ErrRowNotFound is returned when a row id is not in the store
var ErrRowNotFound = errors.New("row not found")

// RowStore owns the register rows. It is not safe for concurrent use; all
// access happens on the event loop.
type RowStore struct {
	rows         map[int64]*entity.Row
	order        []int64
	nextID       int64
	nextGroupKey int64
	repo         port.RowRepository
	logger       *zap.Logger
}

// NewRowStore creates a row store. repo may be nil for a memory-only store.
func NewRowStore(repo port.RowRepository, logger *zap.Logger) *RowStore {
	return &RowStore{
		rows:         make(map[int64]*entity.Row),
		nextID:       1,
		nextGroupKey: 1,
		repo:         repo,
		logger:       logger,
	}
}

// Load replaces the store contents with the persisted rows
func (s *RowStore) Load(ctx context.Context) error {
	if s.repo == nil {
		return nil
	}

	rows, err := s.repo.List(ctx)
	if err != nil {
		return fmt.Errorf("failed to load rows: %w", err)
	}

	s.rows = make(map[int64]*entity.Row, len(rows))
	s.order = s.order[:0]
	for _, row := range rows {
		s.rows[row.ID] = row
		s.order = append(s.order, row.ID)
		if row.ID >= s.nextID {
			s.nextID = row.ID + 1
		}
		s.ReserveGroupKey(row.GroupKey)
	}
	sort.Slice(s.order, func(i, j int) bool { return s.order[i] < s.order[j] })

	s.logger.Info("Rows loaded", zap.Int("count", len(rows)))
	return nil
}

// Insert assigns the next row id and stores the row
func (s *RowStore) Insert(ctx context.Context, row *entity.Row) *entity.Row {
	row.ID = s.nextID
	s.nextID++
	s.rows[row.ID] = row
	s.order = append(s.order, row.ID)
	s.ReserveGroupKey(row.GroupKey)
	s.persist(ctx, row)
	return row
}

// Update persists an in-place change to a row obtained from the store
func (s *RowStore) Update(ctx context.Context, row *entity.Row) {
	if _, ok := s.rows[row.ID]; !ok {
		s.logger.Warn("Update of unknown row ignored", zap.Int64("row_id", row.ID))
		return
	}
	s.persist(ctx, row)
}

// Remove deletes a row. Only user actions remove rows.
func (s *RowStore) Remove(ctx context.Context, id int64) error {
	if _, ok := s.rows[id]; !ok {
		return fmt.Errorf("%w: %d", ErrRowNotFound, id)
	}

	delete(s.rows, id)
	for i, rid := range s.order {
		if rid == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}

	if s.repo != nil {
		if err := s.repo.Delete(ctx, id); err != nil {
			s.logger.Error("Failed to delete persisted row", zap.Int64("row_id", id), zap.Error(err))
			return fmt.Errorf("failed to delete row %d: %w", id, err)
		}
	}
	return nil
}

// Get returns the stored row for mutation by the engine
func (s *RowStore) Get(id int64) (*entity.Row, bool) {
	row, ok := s.rows[id]
	return row, ok
}

// Snapshot returns a copy of a row for readers outside the engine
func (s *RowStore) Snapshot(id int64) (*entity.Row, bool) {
	row, ok := s.rows[id]
	if !ok {
		return nil, false
	}
	return row.Clone(), true
}

// Find returns the rows matching pred in insertion order
func (s *RowStore) Find(pred func(*entity.Row) bool) []*entity.Row {
	var matches []*entity.Row
	for _, id := range s.order {
		if row := s.rows[id]; pred(row) {
			matches = append(matches, row)
		}
	}
	return matches
}

// All returns copies of all rows in insertion order
func (s *RowStore) All() []*entity.Row {
	rows := make([]*entity.Row, 0, len(s.order))
	for _, id := range s.order {
		rows = append(rows, s.rows[id].Clone())
	}
	return rows
}

// Len returns the number of rows
func (s *RowStore) Len() int {
	return len(s.rows)
}

// NewGroupKey allocates an attachment group key
func (s *RowStore) NewGroupKey() int64 {
	key := s.nextGroupKey
	s.nextGroupKey++
	return key
}

// ReserveGroupKey makes sure key is never handed out by NewGroupKey
func (s *RowStore) ReserveGroupKey(key int64) {
	if key >= s.nextGroupKey {
		s.nextGroupKey = key + 1
	}
}

// ReferencesGroup returns true if any live row uses the group key
func (s *RowStore) ReferencesGroup(groupKey int64) bool {
	if groupKey == 0 {
		return false
	}
	for _, row := range s.rows {
		if row.GroupKey == groupKey {
			return true
		}
	}
	return false
}

// GroupRows returns the rows sharing a group key in insertion order
func (s *RowStore) GroupRows(groupKey int64) []*entity.Row {
	return s.Find(func(row *entity.Row) bool { return row.GroupKey == groupKey })
}

func (s *RowStore) persist(ctx context.Context, row *entity.Row) {
	if s.repo == nil {
		return
	}
	if err := s.repo.Save(ctx, row); err != nil {
		s.logger.Error("Failed to persist row", zap.Int64("row_id", row.ID), zap.Error(err))
	}
}
