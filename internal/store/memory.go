package store

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
)

// MemoryKV is an in-process KV.
type MemoryKV struct {
	mu     sync.Mutex
	values map[string][]byte
}

// NewMemoryKV returns an empty MemoryKV.
func NewMemoryKV() *MemoryKV {
	return &MemoryKV{values: make(map[string][]byte)}
}

func (m *MemoryKV) Get(_ context.Context, keys ...string) (map[string]json.RawMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]json.RawMessage, len(keys))
	for _, k := range keys {
		if v, ok := m.values[k]; ok {
			out[k] = append(json.RawMessage(nil), v...)
		}
	}
	return out, nil
}

func (m *MemoryKV) Set(_ context.Context, values map[string]any) error {
	encoded, err := Encode(values)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for k, v := range encoded {
		m.values[k] = v
	}
	return nil
}

func (m *MemoryKV) Remove(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		delete(m.values, k)
	}
	return nil
}

func (m *MemoryKV) Clear(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values = make(map[string][]byte)
	return nil
}

// Keys lists the stored keys in order.
func (m *MemoryKV) Keys() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	keys := make([]string, 0, len(m.values))
	for k := range m.values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// MemoryResumes is an in-process ResumeStore.
type MemoryResumes struct {
	mu      sync.Mutex
	nextID  int64
	records []ResumeRecord
}

// NewMemoryResumes returns an empty ledger.
func NewMemoryResumes() *MemoryResumes {
	return &MemoryResumes{nextID: 1}
}

func (m *MemoryResumes) Add(_ context.Context, rec ResumeRecord) (int64, error) {
	if err := rec.Validate(); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	rec.ID = m.nextID
	m.nextID++
	m.records = append(m.records, rec)
	return rec.ID, nil
}

func (m *MemoryResumes) All(_ context.Context) ([]ResumeRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]ResumeRecord(nil), m.records...), nil
}

func (m *MemoryResumes) Query(_ context.Context, field, value string) ([]ResumeRecord, error) {
	if err := CheckField(field); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []ResumeRecord
	for _, r := range m.records {
		got := r.Name
		if field == FieldStatus {
			got = r.Status
		}
		if got == value {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *MemoryResumes) ExistsByName(ctx context.Context, name string) (bool, error) {
	recs, err := m.Query(ctx, FieldName, name)
	return len(recs) > 0, err
}

func (m *MemoryResumes) Clear(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = nil
	return nil
}
