package db

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xao-fun/xao-go/internal/referral"
)

// ErrNotFound is returned when a queried entity does not exist.
var ErrNotFound = errors.New("not found")

//go:embed migrations/*.sql
var migrations embed.FS

// DB wraps a pgx connection pool and stores referral verifications.
type DB struct {
	Pool   *pgxpool.Pool
	logger *slog.Logger
}

// Stats summarizes stored verifications.
type Stats struct {
	Total    int64 `json:"total"`
	Verified int64 `json:"verified"`
	Flagged  int64 `json:"flagged"`
	Failed   int64 `json:"failed"`
}

// Connect creates a new DB instance, connects to PostgreSQL, and runs migrations.
func Connect(ctx context.Context, dsn string, logger *slog.Logger) (*DB, error) {
	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	config.MaxConns = 10
	config.MinConns = 1
	config.MaxConnLifetime = 30 * time.Minute
	config.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}

	db := &DB{Pool: pool, logger: logger}
	if err := db.Migrate(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return db, nil
}

// Migrate reads and executes the embedded SQL migration files.
func (db *DB) Migrate(ctx context.Context) error {
	sql, err := migrations.ReadFile("migrations/001_init.sql")
	if err != nil {
		return fmt.Errorf("read migration: %w", err)
	}
	if _, err := db.Pool.Exec(ctx, string(sql)); err != nil {
		return fmt.Errorf("exec migration: %w", err)
	}
	db.logger.Info("database migrated")
	return nil
}

// Close shuts down the connection pool.
func (db *DB) Close() {
	db.Pool.Close()
}

// PingContext checks the database connection.
func (db *DB) PingContext(ctx context.Context) error {
	return db.Pool.Ping(ctx)
}

// InsertVerification stores one pipeline run.
func (db *DB) InsertVerification(ctx context.Context, v *referral.Verification) error {
	record, err := json.Marshal(v.Record)
	if err != nil {
		return fmt.Errorf("encode record: %w", err)
	}

	var (
		verified     *bool
		confidence   *float64
		reasoning    *string
		timestamp    string
		modelVersion string
	)
	if r := v.Result; r != nil {
		verified, confidence, reasoning = &r.Verified, &r.Confidence, &r.Reasoning
		timestamp, modelVersion = r.Timestamp, r.ModelVersion
	}

	_, err = db.Pool.Exec(ctx,
		`INSERT INTO referral_verifications
		    (id, record, verified, confidence, reasoning, result_timestamp, model_version,
		     provider, model, error_kind, error, attempts, duration_ms, created_at)
		 VALUES ($1::uuid, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		v.ID.String(), record, verified, confidence, reasoning, timestamp, modelVersion,
		v.Provider, v.Model, string(v.ErrorKind), v.Error, v.Attempts, v.DurationMs, v.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert verification: %w", err)
	}
	return nil
}

const verificationColumns = `id::text, record, verified, confidence, reasoning, result_timestamp, model_version,
	provider, model, error_kind, error, attempts, duration_ms, created_at`

// GetVerification retrieves a verification by id.
func (db *DB) GetVerification(ctx context.Context, id uuid.UUID) (*referral.Verification, error) {
	row := db.Pool.QueryRow(ctx,
		`SELECT `+verificationColumns+` FROM referral_verifications WHERE id = $1::uuid`, id.String())
	v, err := scanVerification(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return v, err
}

// RecentVerifications returns the newest verifications first.
func (db *DB) RecentVerifications(ctx context.Context, limit int) ([]referral.Verification, error) {
	rows, err := db.Pool.Query(ctx,
		`SELECT `+verificationColumns+` FROM referral_verifications ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("query verifications: %w", err)
	}
	defer rows.Close()

	var out []referral.Verification
	for rows.Next() {
		v, err := scanVerification(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *v)
	}
	return out, rows.Err()
}

// VerificationStats counts stored verifications by outcome.
func (db *DB) VerificationStats(ctx context.Context) (*Stats, error) {
	var s Stats
	err := db.Pool.QueryRow(ctx,
		`SELECT COUNT(*),
		        COUNT(*) FILTER (WHERE verified IS TRUE),
		        COUNT(*) FILTER (WHERE verified IS FALSE),
		        COUNT(*) FILTER (WHERE verified IS NULL)
		 FROM referral_verifications`,
	).Scan(&s.Total, &s.Verified, &s.Flagged, &s.Failed)
	if err != nil {
		return nil, fmt.Errorf("query stats: %w", err)
	}
	return &s, nil
}

func scanVerification(row pgx.Row) (*referral.Verification, error) {
	var (
		v            referral.Verification
		id           string
		record       []byte
		verified     *bool
		confidence   *float64
		reasoning    *string
		timestamp    string
		modelVersion string
		errorKind    string
	)
	err := row.Scan(&id, &record, &verified, &confidence, &reasoning, &timestamp, &modelVersion,
		&v.Provider, &v.Model, &errorKind, &v.Error, &v.Attempts, &v.DurationMs, &v.CreatedAt)
	if err != nil {
		return nil, err
	}

	if v.ID, err = uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("parse id: %w", err)
	}
	if err := json.Unmarshal(record, &v.Record); err != nil {
		return nil, fmt.Errorf("decode record: %w", err)
	}
	v.ErrorKind = referral.Kind(errorKind)
	if verified != nil {
		v.Result = &referral.Result{
			Verified:     *verified,
			Timestamp:    timestamp,
			ModelVersion: modelVersion,
		}
		if confidence != nil {
			v.Result.Confidence = *confidence
		}
		if reasoning != nil {
			v.Result.Reasoning = *reasoning
		}
	}
	return &v, nil
}
