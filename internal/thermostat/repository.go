package thermostat

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Repository persists thermostat identity, sensors and settings.
type Repository interface {
	List(ctx context.Context) ([]Thermostat, error)
	Get(ctx context.Context, address string) (*Thermostat, error)
	Save(ctx context.Context, t *Thermostat) error
	Delete(ctx context.Context, address string) error
	AddSensor(ctx context.Context, s *Sensor) error

	GetSetting(ctx context.Context, key string) (string, error)
	SetSetting(ctx context.Context, key, value string) error
}

const thermostatColumns = `address, device_id, name, hostname, type, temp_units, created_at, updated_at`

const sensorColumns = `address, thermostat_address, label, position, created_at`

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite-backed repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// List returns every thermostat with its sensors, ordered by address.
func (r *SQLiteRepository) List(ctx context.Context) ([]Thermostat, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+thermostatColumns+` FROM thermostats ORDER BY address`)
	if err != nil {
		return nil, fmt.Errorf("querying thermostats: %w", err)
	}
	defer rows.Close()

	var thermostats []Thermostat
	for rows.Next() {
		t, err := scanThermostat(rows)
		if err != nil {
			return nil, err
		}
		thermostats = append(thermostats, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating thermostats: %w", err)
	}

	sensors, err := r.sensors(ctx, "")
	if err != nil {
		return nil, err
	}
	for i := range thermostats {
		thermostats[i].Sensors = sensors[thermostats[i].Address]
	}
	return thermostats, nil
}

// Get returns one thermostat with its sensors.
func (r *SQLiteRepository) Get(ctx context.Context, address string) (*Thermostat, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+thermostatColumns+` FROM thermostats WHERE address = ?`, address)
	t, err := scanThermostat(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrThermostatNotFound
		}
		return nil, err
	}
	sensors, err := r.sensors(ctx, address)
	if err != nil {
		return nil, err
	}
	t.Sensors = sensors[address]
	return t, nil
}

// Save inserts or updates a thermostat's identity. Sensors are not touched.
func (r *SQLiteRepository) Save(ctx context.Context, t *Thermostat) error {
	if err := t.Validate(); err != nil {
		return err
	}

	now := time.Now().UTC()
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now
	}
	t.UpdatedAt = now

	query := `
		INSERT INTO thermostats (` + thermostatColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(address) DO UPDATE SET
			device_id = excluded.device_id,
			name = excluded.name,
			hostname = excluded.hostname,
			type = excluded.type,
			temp_units = excluded.temp_units,
			updated_at = excluded.updated_at`

	_, err := r.db.ExecContext(ctx, query,
		t.Address,
		t.DeviceID,
		t.Name,
		t.Hostname,
		t.Type,
		t.TempUnits,
		t.CreatedAt.Format(time.RFC3339),
		t.UpdatedAt.Format(time.RFC3339),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return fmt.Errorf("%w: %s", ErrHostnameExists, t.Hostname)
		}
		return fmt.Errorf("saving thermostat: %w", err)
	}
	return nil
}

// Delete removes a thermostat and, by cascade, its sensors.
func (r *SQLiteRepository) Delete(ctx context.Context, address string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM thermostats WHERE address = ?`, address)
	if err != nil {
		return fmt.Errorf("deleting thermostat: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if n == 0 {
		return ErrThermostatNotFound
	}
	return nil
}

// AddSensor inserts a sensor. Re-adding an existing label is a no-op.
func (r *SQLiteRepository) AddSensor(ctx context.Context, s *Sensor) error {
	if s.CreatedAt.IsZero() {
		s.CreatedAt = time.Now().UTC()
	}
	query := `
		INSERT INTO sensors (` + sensorColumns + `)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(thermostat_address, label) DO NOTHING`

	_, err := r.db.ExecContext(ctx, query,
		s.Address,
		s.ThermostatAddress,
		s.Label,
		s.Position,
		s.CreatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("adding sensor: %w", err)
	}
	return nil
}

// GetSetting returns a persisted setting.
func (r *SQLiteRepository) GetSetting(ctx context.Context, key string) (string, error) {
	var value string
	err := r.db.QueryRowContext(ctx, `SELECT value FROM settings WHERE key = ?`, key).Scan(&value)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", ErrSettingNotFound
		}
		return "", fmt.Errorf("querying setting %s: %w", key, err)
	}
	return value, nil
}

// SetSetting stores a setting, replacing any previous value.
func (r *SQLiteRepository) SetSetting(ctx context.Context, key, value string) error {
	query := `
		INSERT INTO settings (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`

	_, err := r.db.ExecContext(ctx, query, key, value, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("saving setting %s: %w", key, err)
	}
	return nil
}

// sensors loads sensors grouped by thermostat. An empty address loads all.
func (r *SQLiteRepository) sensors(ctx context.Context, address string) (map[string][]Sensor, error) {
	query := `SELECT ` + sensorColumns + ` FROM sensors`
	var args []any
	if address != "" {
		query += ` WHERE thermostat_address = ?`
		args = append(args, address)
	}
	query += ` ORDER BY thermostat_address, position`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying sensors: %w", err)
	}
	defer rows.Close()

	out := make(map[string][]Sensor)
	for rows.Next() {
		var s Sensor
		var created string
		if err := rows.Scan(&s.Address, &s.ThermostatAddress, &s.Label, &s.Position, &created); err != nil {
			return nil, fmt.Errorf("scanning sensor: %w", err)
		}
		s.CreatedAt = parseTime(created)
		out[s.ThermostatAddress] = append(out[s.ThermostatAddress], s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating sensors: %w", err)
	}
	return out, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanThermostat(row scanner) (*Thermostat, error) {
	var t Thermostat
	var created, updated string
	err := row.Scan(&t.Address, &t.DeviceID, &t.Name, &t.Hostname, &t.Type, &t.TempUnits, &created, &updated)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scanning thermostat: %w", err)
	}
	t.CreatedAt = parseTime(created)
	t.UpdatedAt = parseTime(updated)
	return &t, nil
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func isUniqueConstraintError(err error) bool {
	return err != nil && strings.Contains(strings.ToLower(err.Error()), "unique constraint")
}
