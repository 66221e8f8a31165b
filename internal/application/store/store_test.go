package store

import (
	"context"
	"errors"
	"testing"

	"github.com/garyjia/dispatch-register/internal/domain/entity"
	"github.com/garyjia/dispatch-register/internal/domain/workflow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type mockRowRepo struct {
	saved   map[int64]*entity.Row
	deleted []int64
	listErr error
	saveErr error
	initial []*entity.Row
}

func newMockRowRepo() *mockRowRepo {
	return &mockRowRepo{saved: make(map[int64]*entity.Row)}
}

func (m *mockRowRepo) Save(ctx context.Context, row *entity.Row) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	m.saved[row.ID] = row.Clone()
	return nil
}

func (m *mockRowRepo) Delete(ctx context.Context, id int64) error {
	m.deleted = append(m.deleted, id)
	delete(m.saved, id)
	return nil
}

func (m *mockRowRepo) List(ctx context.Context) ([]*entity.Row, error) {
	return m.initial, m.listErr
}

type mockAttachmentRepo struct {
	saved   map[entity.AttachmentKey]*entity.AttachmentRecord
	initial []*entity.AttachmentRecord
}

func newMockAttachmentRepo() *mockAttachmentRepo {
	return &mockAttachmentRepo{saved: make(map[entity.AttachmentKey]*entity.AttachmentRecord)}
}

func (m *mockAttachmentRepo) Save(ctx context.Context, rec *entity.AttachmentRecord) error {
	m.saved[rec.Key] = rec.Clone()
	return nil
}

func (m *mockAttachmentRepo) Delete(ctx context.Context, key entity.AttachmentKey) error {
	delete(m.saved, key)
	return nil
}

func (m *mockAttachmentRepo) List(ctx context.Context) ([]*entity.AttachmentRecord, error) {
	return m.initial, nil
}

var (
	alice = entity.NewIdentity("1001", entity.IdentityISSI)
	bob   = entity.NewIdentity("1002", entity.IdentityISSI)
)

func TestRowStore_InsertAssignsIDsInOrder(t *testing.T) {
	repo := newMockRowRepo()
	s := NewRowStore(repo, zap.NewNop())
	ctx := context.Background()

	first := s.Insert(ctx, &entity.Row{Kind: entity.KindSDS})
	second := s.Insert(ctx, &entity.Row{Kind: entity.KindMMS, GroupKey: 7})

	assert.Equal(t, int64(1), first.ID)
	assert.Equal(t, int64(2), second.ID)
	assert.Len(t, repo.saved, 2)

	all := s.All()
	require.Len(t, all, 2)
	assert.Equal(t, first.ID, all[0].ID)
	assert.Equal(t, int64(8), s.NewGroupKey(), "group keys in use must not be reissued")
}

func TestRowStore_Remove(t *testing.T) {
	repo := newMockRowRepo()
	s := NewRowStore(repo, zap.NewNop())
	ctx := context.Background()

	row := s.Insert(ctx, &entity.Row{GroupKey: 3})
	assert.True(t, s.ReferencesGroup(3))

	require.NoError(t, s.Remove(ctx, row.ID))
	assert.False(t, s.ReferencesGroup(3))
	assert.Equal(t, []int64{row.ID}, repo.deleted)

	err := s.Remove(ctx, row.ID)
	assert.True(t, errors.Is(err, ErrRowNotFound))
}

func TestRowStore_SnapshotIsIsolated(t *testing.T) {
	s := NewRowStore(nil, zap.NewNop())
	row := s.Insert(context.Background(), &entity.Row{Notified: []string{"a"}})

	snap, ok := s.Snapshot(row.ID)
	require.True(t, ok)
	snap.Notified[0] = "changed"
	snap.Status = workflow.StateFailed

	stored, _ := s.Get(row.ID)
	assert.Equal(t, "a", stored.Notified[0])
	assert.NotEqual(t, workflow.StateFailed, stored.Status)
}

func TestRowStore_Load(t *testing.T) {
	repo := newMockRowRepo()
	repo.initial = []*entity.Row{
		{ID: 9, GroupKey: 4},
		{ID: 3, GroupKey: 0},
	}
	s := NewRowStore(repo, zap.NewNop())

	require.NoError(t, s.Load(context.Background()))

	all := s.All()
	require.Len(t, all, 2)
	assert.Equal(t, int64(3), all[0].ID)
	assert.Equal(t, int64(9), all[1].ID)

	next := s.Insert(context.Background(), &entity.Row{})
	assert.Equal(t, int64(10), next.ID)
	assert.Equal(t, int64(5), s.NewGroupKey())
}

func TestRowStore_LoadError(t *testing.T) {
	repo := newMockRowRepo()
	repo.listErr = errors.New("disk gone")
	s := NewRowStore(repo, zap.NewNop())

	err := s.Load(context.Background())
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "disk gone")
}

func TestRowStore_PersistFailureKeepsMemoryState(t *testing.T) {
	repo := newMockRowRepo()
	repo.saveErr = errors.New("locked")
	s := NewRowStore(repo, zap.NewNop())

	row := s.Insert(context.Background(), &entity.Row{})

	_, ok := s.Get(row.ID)
	assert.True(t, ok)
}

func TestAttachmentStore_OneRecordPerKey(t *testing.T) {
	repo := newMockAttachmentRepo()
	s := NewAttachmentStore(repo, zap.NewNop())
	ctx := context.Background()
	key := entity.AttachmentKey{GroupKey: 1, Party: alice, FileID: "f1"}

	s.Put(ctx, &entity.AttachmentRecord{Key: key, State: workflow.StateSending})
	s.Put(ctx, &entity.AttachmentRecord{Key: key, State: workflow.StateUploaded})

	assert.Equal(t, 1, s.Len())
	rec, ok := s.Get(key)
	require.True(t, ok)
	assert.Equal(t, workflow.StateUploaded, rec.State)
	assert.Equal(t, int64(1), rec.Seq)
	assert.Equal(t, workflow.StateUploaded, repo.saved[key].State)
}

func TestAttachmentStore_ListingsAreOrdered(t *testing.T) {
	s := NewAttachmentStore(nil, zap.NewNop())
	ctx := context.Background()

	s.Put(ctx, &entity.AttachmentRecord{Key: entity.AttachmentKey{GroupKey: 1, Party: alice, FileID: "b"}})
	s.Put(ctx, &entity.AttachmentRecord{Key: entity.AttachmentKey{GroupKey: 1, Party: bob, FileID: "b"}})
	s.Put(ctx, &entity.AttachmentRecord{Key: entity.AttachmentKey{GroupKey: 1, Party: alice, FileID: "a"}})
	s.Put(ctx, &entity.AttachmentRecord{Key: entity.AttachmentKey{GroupKey: 2, Party: alice, FileID: "c"}})

	group := s.ListGroup(1)
	require.Len(t, group, 3)
	assert.Equal(t, "b", group[0].Key.FileID)
	assert.Equal(t, bob, group[1].Key.Party)
	assert.Equal(t, "a", group[2].Key.FileID)

	party := s.PartyRecords(1, alice)
	require.Len(t, party, 2)
	assert.Equal(t, "b", party[0].Key.FileID)
	assert.Equal(t, "a", party[1].Key.FileID)

	assert.Equal(t, []int64{1, 2}, s.GroupKeys())
}

func TestAttachmentStore_DeleteReleasesRequest(t *testing.T) {
	repo := newMockAttachmentRepo()
	s := NewAttachmentStore(repo, zap.NewNop())
	ctx := context.Background()
	key := entity.AttachmentKey{GroupKey: 1, Party: alice, FileID: "f1"}
	rec := &entity.AttachmentRecord{
		Key:     key,
		State:   workflow.StateDownloading,
		Request: &entity.TransferRequest{FileID: "f1"},
	}
	s.Put(ctx, rec)

	require.NoError(t, s.Delete(ctx, key))

	assert.Nil(t, rec.Request)
	assert.Equal(t, 0, s.Len())
	assert.Empty(t, repo.saved)
	assert.NoError(t, s.Delete(ctx, key), "deleting twice is a no-op")
}

func TestAttachmentStore_Load(t *testing.T) {
	repo := newMockAttachmentRepo()
	repo.initial = []*entity.AttachmentRecord{
		{Key: entity.AttachmentKey{GroupKey: 5, FileID: "x"}, Seq: 12},
	}
	s := NewAttachmentStore(repo, zap.NewNop())
	require.NoError(t, s.Load(context.Background()))

	rec := &entity.AttachmentRecord{Key: entity.AttachmentKey{GroupKey: 5, FileID: "y"}}
	s.Put(context.Background(), rec)
	assert.Equal(t, int64(13), rec.Seq)
}
