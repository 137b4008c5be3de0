package tax

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

const uniqueViolation = "23505"

// Store keeps settings, brackets and the employee lookup in Postgres.
type Store struct {
	DB *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{DB: db}
}

const settingColumns = `id, key, value, kind, effective_year, enabled, description, updated_at`

func scanSetting(row pgx.Row) (Setting, error) {
	var s Setting
	var kind string
	if err := row.Scan(&s.ID, &s.Key, &s.Value, &kind, &s.EffectiveYear, &s.Enabled, &s.Description, &s.UpdatedAt); err != nil {
		return Setting{}, err
	}
	k, err := ParseKind(kind)
	if err != nil {
		return Setting{}, &ConfigurationError{Year: s.EffectiveYear, Key: s.Key, Reason: err.Error()}
	}
	s.Kind = k
	return s, nil
}

func collectSettings(rows pgx.Rows) ([]Setting, error) {
	defer rows.Close()
	out := []Setting{}
	for rows.Next() {
		s, err := scanSetting(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// storeError maps driver errors onto the domain taxonomy. Anything it does
// not recognise is wrapped with op and left for the service to classify.
func storeError(op, id string, err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return &NotFoundError{Entity: "tax setting", ID: id}
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return newValidationError("key", "already exists for this effective year")
	}
	return fmt.Errorf("%s: %w", op, err)
}

func (s *Store) ListEnabledSettings(ctx context.Context, year int) ([]Setting, error) {
	rows, err := s.DB.Query(ctx, `
    SELECT `+settingColumns+`
    FROM tax_settings
    WHERE effective_year = $1 AND enabled = true
    ORDER BY key
  `, year)
	if err != nil {
		return nil, storeError("list enabled settings", "", err)
	}
	settings, err := collectSettings(rows)
	if err != nil {
		return nil, storeError("scan settings", "", err)
	}
	return settings, nil
}

func (s *Store) ListBrackets(ctx context.Context, year int) ([]Bracket, error) {
	rows, err := s.DB.Query(ctx, `
    SELECT lower_bound, upper_bound, rate
    FROM tax_brackets
    WHERE effective_year = $1
    ORDER BY lower_bound
  `, year)
	if err != nil {
		return nil, fmt.Errorf("list brackets: %w", err)
	}
	defer rows.Close()

	brackets := []Bracket{}
	for rows.Next() {
		var b Bracket
		var upper decimal.NullDecimal
		if err := rows.Scan(&b.LowerBound, &upper, &b.Rate); err != nil {
			return nil, fmt.Errorf("scan bracket: %w", err)
		}
		if upper.Valid {
			v := upper.Decimal
			b.UpperBound = &v
		}
		brackets = append(brackets, b)
	}
	return brackets, rows.Err()
}

func (s *Store) ListSettings(ctx context.Context, filter SettingFilter) ([]Setting, int, error) {
	var where []string
	var args []any
	if filter.Year != 0 {
		args = append(args, filter.Year)
		where = append(where, "effective_year = $"+strconv.Itoa(len(args)))
	}
	if filter.Enabled != nil {
		args = append(args, *filter.Enabled)
		where = append(where, "enabled = $"+strconv.Itoa(len(args)))
	}
	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := s.DB.QueryRow(ctx, "SELECT COUNT(1) FROM tax_settings"+clause, args...).Scan(&total); err != nil {
		return nil, 0, storeError("count settings", "", err)
	}

	query := "SELECT " + settingColumns + " FROM tax_settings" + clause + " ORDER BY effective_year DESC, key"
	if filter.Limit > 0 {
		args = append(args, filter.Limit, filter.Offset)
		query += " LIMIT $" + strconv.Itoa(len(args)-1) + " OFFSET $" + strconv.Itoa(len(args))
	}
	rows, err := s.DB.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, storeError("list settings", "", err)
	}
	settings, err := collectSettings(rows)
	if err != nil {
		return nil, 0, storeError("scan settings", "", err)
	}
	return settings, total, nil
}

func (s *Store) GetSetting(ctx context.Context, id string) (Setting, error) {
	setting, err := scanSetting(s.DB.QueryRow(ctx, `
    SELECT `+settingColumns+`
    FROM tax_settings
    WHERE id = $1
  `, id))
	if err != nil {
		return Setting{}, storeError("get setting", id, err)
	}
	return setting, nil
}

func (s *Store) CreateSetting(ctx context.Context, setting Setting) (Setting, error) {
	created, err := scanSetting(s.DB.QueryRow(ctx, `
    INSERT INTO tax_settings (key, value, kind, effective_year, enabled, description)
    VALUES ($1,$2,$3,$4,$5,$6)
    RETURNING `+settingColumns,
		setting.Key, setting.Value, setting.Kind.String(), setting.EffectiveYear, setting.Enabled, setting.Description))
	if err != nil {
		return Setting{}, storeError("create setting", setting.Key, err)
	}
	return created, nil
}

func (s *Store) UpdateSetting(ctx context.Context, setting Setting) (Setting, int, error) {
	var out Setting
	var kind string
	var oldYear int
	err := s.DB.QueryRow(ctx, `
    UPDATE tax_settings t
    SET key = $2, value = $3, kind = $4, effective_year = $5, enabled = $6, description = $7, updated_at = now()
    FROM (SELECT id, effective_year FROM tax_settings WHERE id = $1 FOR UPDATE) old
    WHERE t.id = old.id
    RETURNING t.id, t.key, t.value, t.kind, t.effective_year, t.enabled, t.description, t.updated_at, old.effective_year
  `, setting.ID, setting.Key, setting.Value, setting.Kind.String(), setting.EffectiveYear, setting.Enabled, setting.Description).
		Scan(&out.ID, &out.Key, &out.Value, &kind, &out.EffectiveYear, &out.Enabled, &out.Description, &out.UpdatedAt, &oldYear)
	if err != nil {
		return Setting{}, 0, storeError("update setting", setting.ID, err)
	}
	out.Kind, err = ParseKind(kind)
	if err != nil {
		return Setting{}, 0, &ConfigurationError{Year: out.EffectiveYear, Key: out.Key, Reason: err.Error()}
	}
	return out, oldYear, nil
}

func (s *Store) DeleteSetting(ctx context.Context, id string) (Setting, error) {
	deleted, err := scanSetting(s.DB.QueryRow(ctx, `
    DELETE FROM tax_settings
    WHERE id = $1
    RETURNING `+settingColumns, id))
	if err != nil {
		return Setting{}, storeError("delete setting", id, err)
	}
	return deleted, nil
}

// ToggleSetting flips the flag in a single statement so concurrent toggles
// never lose an update.
func (s *Store) ToggleSetting(ctx context.Context, id string) (Setting, error) {
	toggled, err := scanSetting(s.DB.QueryRow(ctx, `
    UPDATE tax_settings
    SET enabled = NOT enabled, updated_at = now()
    WHERE id = $1
    RETURNING `+settingColumns, id))
	if err != nil {
		return Setting{}, storeError("toggle setting", id, err)
	}
	return toggled, nil
}

func (s *Store) UpsertSettings(ctx context.Context, year int, settings []Setting) ([]Setting, error) {
	tx, err := s.DB.Begin(ctx)
	if err != nil {
		return nil, storeError("begin upsert", "", err)
	}
	defer tx.Rollback(ctx)

	out := make([]Setting, 0, len(settings))
	for _, setting := range settings {
		saved, err := scanSetting(tx.QueryRow(ctx, `
      INSERT INTO tax_settings (key, value, kind, effective_year, enabled, description)
      VALUES ($1,$2,$3,$4,$5,$6)
      ON CONFLICT (key, effective_year) DO UPDATE
      SET value = EXCLUDED.value, kind = EXCLUDED.kind, enabled = EXCLUDED.enabled,
          description = EXCLUDED.description, updated_at = now()
      RETURNING `+settingColumns,
			setting.Key, setting.Value, setting.Kind.String(), year, setting.Enabled, setting.Description))
		if err != nil {
			return nil, storeError("upsert setting", setting.Key, err)
		}
		out = append(out, saved)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, storeError("commit upsert", "", err)
	}
	return out, nil
}

func (s *Store) ReplaceBrackets(ctx context.Context, year int, brackets []Bracket) error {
	tx, err := s.DB.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin replace brackets: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, "DELETE FROM tax_brackets WHERE effective_year = $1", year); err != nil {
		return fmt.Errorf("clear brackets: %w", err)
	}
	for i, b := range brackets {
		upper := decimal.NullDecimal{}
		if b.UpperBound != nil {
			upper = decimal.NullDecimal{Decimal: *b.UpperBound, Valid: true}
		}
		if _, err := tx.Exec(ctx, `
      INSERT INTO tax_brackets (effective_year, position, lower_bound, upper_bound, rate)
      VALUES ($1,$2,$3,$4,$5)
    `, year, i, b.LowerBound, upper, b.Rate); err != nil {
			return fmt.Errorf("insert bracket %d: %w", i, err)
		}
	}
	return tx.Commit(ctx)
}

func (s *Store) EmployeeExists(ctx context.Context, employeeID string) (bool, error) {
	var exists bool
	if err := s.DB.QueryRow(ctx, `
    SELECT EXISTS (SELECT 1 FROM employees WHERE id = $1 AND status <> 'terminated')
  `, employeeID).Scan(&exists); err != nil {
		return false, fmt.Errorf("check employee: %w", err)
	}
	return exists, nil
}

func (s *Store) UpsertEmployee(ctx context.Context, employeeID string) error {
	if _, err := s.DB.Exec(ctx, `
    INSERT INTO employees (id) VALUES ($1)
    ON CONFLICT (id) DO NOTHING
  `, employeeID); err != nil {
		return fmt.Errorf("upsert employee: %w", err)
	}
	return nil
}
