package consistency

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"spatial-hub-go/internal/model"
	"spatial-hub-go/pkg/storage"
)

// ============================================================================
// Metadata store fake
// ============================================================================

type fakeMetadataStore struct {
	mu        sync.Mutex
	records   map[string]model.FileRecord
	listErr   error
	findErr   error
	deleteErr map[string]error
	deletes   []string
}

func newFakeMetadataStore(records ...model.FileRecord) *fakeMetadataStore {
	m := &fakeMetadataStore{records: map[string]model.FileRecord{}, deleteErr: map[string]error{}}
	for _, r := range records {
		m.records[r.ID] = r
	}
	return m
}

func (m *fakeMetadataStore) ListFiles(_ context.Context, limit int) ([]model.FileRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listErr != nil {
		return nil, m.listErr
	}
	out := make([]model.FileRecord, 0, len(m.records))
	for _, r := range m.records {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *fakeMetadataStore) FindFile(_ context.Context, id string) (*model.FileRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.findErr != nil {
		return nil, m.findErr
	}
	r, ok := m.records[id]
	if !ok {
		return nil, nil
	}
	return &r, nil
}

func (m *fakeMetadataStore) DeleteFile(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deletes = append(m.deletes, id)
	if err := m.deleteErr[id]; err != nil {
		return err
	}
	delete(m.records, id)
	return nil
}

// ============================================================================
// Object store fake
// ============================================================================

type fakeObjectStore struct {
	mu         sync.Mutex
	objects    map[string]struct{}
	listErr    map[string]error
	badPaths   map[string]error
	existsErr  error
	batchCalls int
}

func newFakeObjectStore(paths ...string) *fakeObjectStore {
	s := &fakeObjectStore{
		objects:  map[string]struct{}{},
		listErr:  map[string]error{},
		badPaths: map[string]error{},
	}
	for _, p := range paths {
		s.objects[p] = struct{}{}
	}
	return s
}

func (s *fakeObjectStore) List(_ context.Context, prefix string) ([]storage.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.listErr[prefix]; err != nil {
		return nil, err
	}
	folderPrefix := storage.FolderPrefix(prefix)
	folders := map[string]struct{}{}
	var entries []storage.Entry
	for p := range s.objects {
		if !strings.HasPrefix(p, folderPrefix) {
			continue
		}
		rest := strings.TrimPrefix(p, folderPrefix)
		if i := strings.Index(rest, "/"); i >= 0 {
			name := rest[:i]
			if _, ok := folders[name]; !ok {
				folders[name] = struct{}{}
				entries = append(entries, storage.Entry{Name: name, IsFolder: true})
			}
			continue
		}
		entries = append(entries, storage.Entry{Name: rest})
	}
	return entries, nil
}

func (s *fakeObjectStore) Remove(_ context.Context, paths []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(paths) > 1 {
		s.batchCalls++
	}
	var errs []error
	for _, p := range paths {
		if err := s.badPaths[p]; err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", p, err))
		}
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	for _, p := range paths {
		delete(s.objects, p)
	}
	return nil
}

func (s *fakeObjectStore) Exists(_ context.Context, path string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.existsErr != nil {
		return false, s.existsErr
	}
	_, ok := s.objects[path]
	return ok, nil
}

func (s *fakeObjectStore) paths() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.objects))
	for p := range s.objects {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// ============================================================================
// Log store fake
// ============================================================================

type fakeLogStore struct {
	mu        sync.Mutex
	entries   []model.ConsistencyLog
	missing   bool
	insertErr error
	recentErr error
}

func (l *fakeLogStore) Insert(_ context.Context, entry *model.ConsistencyLog) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.missing {
		return fmt.Errorf("insert: %w", ErrLogSinkMissing)
	}
	if l.insertErr != nil {
		return l.insertErr
	}
	entry.ID = uint(len(l.entries) + 1)
	entry.CreatedAt = time.Now()
	l.entries = append(l.entries, *entry)
	return nil
}

func (l *fakeLogStore) Recent(_ context.Context, limit int) ([]model.ConsistencyLog, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.missing {
		return nil, fmt.Errorf("select: %w", ErrLogSinkMissing)
	}
	if l.recentErr != nil {
		return nil, l.recentErr
	}
	out := make([]model.ConsistencyLog, 0, limit)
	for i := len(l.entries) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, l.entries[i])
	}
	return out, nil
}

// ============================================================================
// Helpers
// ============================================================================

var baseTime = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func fileRecord(id, path string, age int) model.FileRecord {
	r := model.FileRecord{ID: id, Name: id + ".bin", Size: int64(100 + age), CreatedAt: baseTime.Add(-time.Duration(age) * time.Minute)}
	if path != "" {
		p := path
		r.StoragePath = &p
	}
	return r
}

func newTestEngine(meta *fakeMetadataStore, objects *fakeObjectStore, logs *fakeLogStore) *Engine {
	return NewEngine(meta, objects, logs, Options{RepairBatchSize: 2, RepairMaxInFlight: 2})
}

func orphanIDs(r *Report) []string {
	ids := make([]string, 0, len(r.OrphanedDbRecords))
	for _, o := range r.OrphanedDbRecords {
		ids = append(ids, o.ID)
	}
	return ids
}
