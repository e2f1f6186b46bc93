package store

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kjstillabower/station-forecast-service/internal/models"
)

const postgresSchema = `CREATE TABLE IF NOT EXISTS weather_data (
	id BIGSERIAL PRIMARY KEY,
	time DATE NOT NULL,
	temperature_max DOUBLE PRECISION NOT NULL,
	temperature_min DOUBLE PRECISION NOT NULL,
	precipitation_sum DOUBLE PRECISION,
	wind_speed DOUBLE PRECISION,
	station TEXT NOT NULL,
	predicted BOOLEAN NOT NULL DEFAULT FALSE
);
CREATE INDEX IF NOT EXISTS weather_data_station ON weather_data(station);`

const postgresColumns = `id, time, temperature_max, temperature_min, COALESCE(precipitation_sum, 0), COALESCE(wind_speed, 0), station, predicted`

// PostgresStore implements Store on a pgx connection pool.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore connects to dsn, verifies the connection and applies the schema.
func NewPostgresStore(ctx context.Context, dsn string, maxConns int32) (*PostgresStore, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if maxConns > 0 {
		cfg.MaxConns = maxConns
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres ping failed: %w", err)
	}
	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("apply postgres schema: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) FetchAll(ctx context.Context) ([]Row, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+postgresColumns+` FROM weather_data ORDER BY station, time, predicted, id`)
	if err != nil {
		return nil, fmt.Errorf("query weather_data: %w", err)
	}
	return collectPostgresRows(rows)
}

func (s *PostgresStore) FetchByStation(ctx context.Context, station string) ([]Row, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+postgresColumns+` FROM weather_data WHERE station = $1 ORDER BY time, predicted, id`, station)
	if err != nil {
		return nil, fmt.Errorf("query weather_data: %w", err)
	}
	return collectPostgresRows(rows)
}

func collectPostgresRows(rows pgx.Rows) ([]Row, error) {
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Row, error) {
		var (
			r   Row
			id  int64
			day time.Time
		)
		if err := row.Scan(&id, &day, &r.TemperatureMax, &r.TemperatureMin, &r.PrecipitationSum, &r.WindSpeed, &r.Station, &r.Predicted); err != nil {
			return Row{}, err
		}
		r.ID = strconv.FormatInt(id, 10)
		r.Time = models.Day(day)
		return r, nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan weather_data: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) Insert(ctx context.Context, rec models.WeatherRecord) error {
	day, err := time.Parse(models.DateLayout, rec.Time)
	if err != nil {
		return fmt.Errorf("insert weather_data: bad date %q: %w", rec.Time, err)
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO weather_data(time, temperature_max, temperature_min, precipitation_sum, wind_speed, station, predicted)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		day, rec.TemperatureMax, rec.TemperatureMin, rec.PrecipitationSum, rec.WindSpeed, rec.Station, rec.Predicted)
	if err != nil {
		return fmt.Errorf("insert weather_data: %w", err)
	}
	return nil
}

func (s *PostgresStore) DeleteByStation(ctx context.Context, station string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM weather_data WHERE station = $1`, station); err != nil {
		return fmt.Errorf("delete weather_data: %w", err)
	}
	return nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
