package store

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/kjstillabower/station-forecast-service/internal/models"
)

const sqliteSchema = `CREATE TABLE IF NOT EXISTS weather_data (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	time TEXT NOT NULL,
	temperature_max REAL NOT NULL,
	temperature_min REAL NOT NULL,
	precipitation_sum REAL,
	wind_speed REAL,
	station TEXT NOT NULL,
	predicted INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS weather_data_station ON weather_data(station);`

const sqliteColumns = `id, time, temperature_max, temperature_min, precipitation_sum, wind_speed, station, predicted`

// SQLiteStore implements Store on the pure Go sqlite driver.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) the database at path and applies the schema.
func NewSQLiteStore(path string, logger *zap.Logger) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}

	// WAL keeps readers from blocking on the refill writer.
	if _, err := db.Exec("PRAGMA journal_mode=WAL;"); err != nil && logger != nil {
		logger.Warn("sqlite WAL mode unavailable", zap.Error(err))
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000;"); err != nil && logger != nil {
		logger.Warn("sqlite busy timeout not set", zap.Error(err))
	}

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply sqlite schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) FetchAll(ctx context.Context) ([]Row, error) {
	return s.query(ctx, `SELECT `+sqliteColumns+` FROM weather_data ORDER BY station, time, predicted, id`)
}

func (s *SQLiteStore) FetchByStation(ctx context.Context, station string) ([]Row, error) {
	return s.query(ctx, `SELECT `+sqliteColumns+` FROM weather_data WHERE station = ? ORDER BY time, predicted, id`, station)
}

func (s *SQLiteStore) query(ctx context.Context, q string, args ...interface{}) ([]Row, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query weather_data: %w", err)
	}
	defer rows.Close()

	out := make([]Row, 0)
	for rows.Next() {
		var (
			r         Row
			id        int64
			precip    sql.NullFloat64
			wind      sql.NullFloat64
			predicted int
		)
		if err := rows.Scan(&id, &r.Time, &r.TemperatureMax, &r.TemperatureMin, &precip, &wind, &r.Station, &predicted); err != nil {
			return nil, fmt.Errorf("scan weather_data: %w", err)
		}
		r.ID = strconv.FormatInt(id, 10)
		r.PrecipitationSum = precip.Float64
		r.WindSpeed = wind.Float64
		r.Predicted = predicted != 0
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate weather_data: %w", err)
	}
	return out, nil
}

func (s *SQLiteStore) Insert(ctx context.Context, rec models.WeatherRecord) error {
	predicted := 0
	if rec.Predicted {
		predicted = 1
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO weather_data(time, temperature_max, temperature_min, precipitation_sum, wind_speed, station, predicted) VALUES(?,?,?,?,?,?,?)`,
		rec.Time, rec.TemperatureMax, rec.TemperatureMin, rec.PrecipitationSum, rec.WindSpeed, rec.Station, predicted)
	if err != nil {
		return fmt.Errorf("insert weather_data: %w", err)
	}
	return nil
}

func (s *SQLiteStore) DeleteByStation(ctx context.Context, station string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM weather_data WHERE station = ?`, station); err != nil {
		return fmt.Errorf("delete weather_data: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
