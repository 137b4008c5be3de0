package tax

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is an in-process SettingAdminStore and EmployeeDirectory. The
// CLI runs on it and tests use it in place of Postgres.
type MemoryStore struct {
	mu        sync.RWMutex
	settings  map[string]Setting
	brackets  map[int][]Bracket
	employees map[string]bool
	now       func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		settings:  map[string]Setting{},
		brackets:  map[int][]Bracket{},
		employees: map[string]bool{},
		now:       time.Now,
	}
}

func (m *MemoryStore) UpsertEmployee(_ context.Context, employeeID string) error {
	m.mu.Lock()
	m.employees[employeeID] = true
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) EmployeeExists(_ context.Context, employeeID string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.employees[employeeID], nil
}

func (m *MemoryStore) ListEnabledSettings(_ context.Context, year int) ([]Setting, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []Setting{}
	for _, s := range m.settings {
		if s.EffectiveYear == year && s.Enabled {
			out = append(out, s)
		}
	}
	sortSettings(out)
	return out, nil
}

func (m *MemoryStore) ListBrackets(_ context.Context, year int) ([]Bracket, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Bracket, len(m.brackets[year]))
	copy(out, m.brackets[year])
	return out, nil
}

func (m *MemoryStore) ListSettings(_ context.Context, filter SettingFilter) ([]Setting, int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	matched := []Setting{}
	for _, s := range m.settings {
		if filter.Year != 0 && s.EffectiveYear != filter.Year {
			continue
		}
		if filter.Enabled != nil && s.Enabled != *filter.Enabled {
			continue
		}
		matched = append(matched, s)
	}
	sort.Slice(matched, func(i, j int) bool {
		if matched[i].EffectiveYear != matched[j].EffectiveYear {
			return matched[i].EffectiveYear > matched[j].EffectiveYear
		}
		return matched[i].Key < matched[j].Key
	})
	total := len(matched)
	if filter.Limit > 0 {
		start := min(filter.Offset, total)
		end := min(start+filter.Limit, total)
		matched = matched[start:end]
	}
	return matched, total, nil
}

func (m *MemoryStore) GetSetting(_ context.Context, id string) (Setting, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.settings[id]
	if !ok {
		return Setting{}, &NotFoundError{Entity: "tax setting", ID: id}
	}
	return s, nil
}

func (m *MemoryStore) CreateSetting(_ context.Context, setting Setting) (Setting, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.conflict(setting.Key, setting.EffectiveYear, "") {
		return Setting{}, newValidationError("key", "already exists for this effective year")
	}
	setting.ID = uuid.NewString()
	setting.UpdatedAt = m.now().UTC()
	m.settings[setting.ID] = setting
	return setting, nil
}

func (m *MemoryStore) UpdateSetting(_ context.Context, setting Setting) (Setting, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	old, ok := m.settings[setting.ID]
	if !ok {
		return Setting{}, 0, &NotFoundError{Entity: "tax setting", ID: setting.ID}
	}
	if m.conflict(setting.Key, setting.EffectiveYear, setting.ID) {
		return Setting{}, 0, newValidationError("key", "already exists for this effective year")
	}
	setting.UpdatedAt = m.now().UTC()
	m.settings[setting.ID] = setting
	return setting, old.EffectiveYear, nil
}

func (m *MemoryStore) DeleteSetting(_ context.Context, id string) (Setting, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.settings[id]
	if !ok {
		return Setting{}, &NotFoundError{Entity: "tax setting", ID: id}
	}
	delete(m.settings, id)
	return s, nil
}

func (m *MemoryStore) ToggleSetting(_ context.Context, id string) (Setting, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.settings[id]
	if !ok {
		return Setting{}, &NotFoundError{Entity: "tax setting", ID: id}
	}
	s.Enabled = !s.Enabled
	s.UpdatedAt = m.now().UTC()
	m.settings[id] = s
	return s, nil
}

func (m *MemoryStore) UpsertSettings(_ context.Context, year int, settings []Setting) ([]Setting, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	byKey := map[string]string{}
	for id, s := range m.settings {
		if s.EffectiveYear == year {
			byKey[s.Key] = id
		}
	}
	out := make([]Setting, 0, len(settings))
	for _, s := range settings {
		s.EffectiveYear = year
		s.UpdatedAt = m.now().UTC()
		if id, ok := byKey[s.Key]; ok {
			s.ID = id
		} else {
			s.ID = uuid.NewString()
			byKey[s.Key] = s.ID
		}
		m.settings[s.ID] = s
		out = append(out, s)
	}
	return out, nil
}

func (m *MemoryStore) ReplaceBrackets(_ context.Context, year int, brackets []Bracket) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored := make([]Bracket, len(brackets))
	copy(stored, brackets)
	m.brackets[year] = stored
	return nil
}

func (m *MemoryStore) conflict(key string, year int, exceptID string) bool {
	for id, s := range m.settings {
		if id != exceptID && s.Key == key && s.EffectiveYear == year {
			return true
		}
	}
	return false
}

func sortSettings(settings []Setting) {
	sort.Slice(settings, func(i, j int) bool { return settings[i].Key < settings[j].Key })
}
