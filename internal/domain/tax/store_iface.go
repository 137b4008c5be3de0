package tax

import "context"

// SettingStore is the read side used on the calculation path. Both methods
// return only rows for the given year; ListEnabledSettings filters on the
// enabled flag and ListBrackets returns brackets ordered by lower bound.
type SettingStore interface {
	ListEnabledSettings(ctx context.Context, year int) ([]Setting, error)
	ListBrackets(ctx context.Context, year int) ([]Bracket, error)
}

// SettingAdminStore adds the administrative writes. Every write is atomic on
// its own; callers invalidate the cache after it returns.
type SettingAdminStore interface {
	SettingStore
	ListSettings(ctx context.Context, filter SettingFilter) ([]Setting, int, error)
	GetSetting(ctx context.Context, id string) (Setting, error)
	CreateSetting(ctx context.Context, setting Setting) (Setting, error)
	// UpdateSetting returns the updated row and the effective year the row
	// had before the update.
	UpdateSetting(ctx context.Context, setting Setting) (Setting, int, error)
	DeleteSetting(ctx context.Context, id string) (Setting, error)
	ToggleSetting(ctx context.Context, id string) (Setting, error)
	UpsertSettings(ctx context.Context, year int, settings []Setting) ([]Setting, error)
	ReplaceBrackets(ctx context.Context, year int, brackets []Bracket) error
}

type EmployeeDirectory interface {
	EmployeeExists(ctx context.Context, employeeID string) (bool, error)
}
