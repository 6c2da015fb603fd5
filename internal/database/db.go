package database

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/jgoulah/kubscraper/pkg/models"
	_ "modernc.org/sqlite"
)

// DB is the long-term statistics store. Points are append-only: the UNIQUE
// constraint on (statistic_id, start_ts) makes re-imports of the same hour
// no-ops.
type DB struct {
	conn *sql.DB
}

// New creates a new database connection and initializes the schema
func New(dbPath string) (*DB, error) {
	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	db := &DB{conn: conn}
	if err := db.initSchema(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("initializing schema: %w", err)
	}

	return db, nil
}

// Close closes the database connection
func (db *DB) Close() error {
	return db.conn.Close()
}

// initSchema creates the necessary tables
func (db *DB) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS statistics (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		statistic_id TEXT NOT NULL,
		start TEXT NOT NULL,
		start_ts INTEGER NOT NULL,
		state REAL NOT NULL,
		sum REAL NOT NULL,
		created_at TEXT NOT NULL,
		UNIQUE(statistic_id, start_ts)
	);
	CREATE INDEX IF NOT EXISTS idx_statistics_id ON statistics(statistic_id);
	CREATE INDEX IF NOT EXISTS idx_statistics_start ON statistics(start_ts);

	CREATE TABLE IF NOT EXISTS statistics_meta (
		statistic_id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		unit TEXT NOT NULL,
		has_sum INTEGER NOT NULL DEFAULT 1
	);
	`

	_, err := db.conn.Exec(schema)
	return err
}

// Append inserts statistic points, ignoring hours that were already
// imported. Metadata is upserted so unit or name changes take effect.
func (db *DB) Append(meta models.StatisticMetadata, points []models.StatisticPoint) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	metaQuery := `
	INSERT INTO statistics_meta (statistic_id, name, unit, has_sum)
	VALUES (?, ?, ?, ?)
	ON CONFLICT(statistic_id) DO UPDATE SET name = excluded.name, unit = excluded.unit, has_sum = excluded.has_sum
	`
	hasSum := 0
	if meta.HasSum {
		hasSum = 1
	}
	if _, err := tx.Exec(metaQuery, meta.StatisticID, meta.Name, meta.Unit, hasSum); err != nil {
		return fmt.Errorf("upserting statistic metadata: %w", err)
	}

	pointQuery := `
	INSERT OR IGNORE INTO statistics (statistic_id, start, start_ts, state, sum, created_at)
	VALUES (?, ?, ?, ?, ?, ?)
	`
	createdAt := time.Now().UTC().Format(time.RFC3339)
	for _, p := range points {
		_, err := tx.Exec(pointQuery, meta.StatisticID, p.Start.Format(time.RFC3339), p.Start.Unix(), p.State, p.Sum, createdAt)
		if err != nil {
			return fmt.Errorf("inserting statistic point: %w", err)
		}
	}

	return tx.Commit()
}

// LastImported returns the newest point for a statistic. ok is false when
// the statistic has no points yet.
func (db *DB) LastImported(statisticID string) (time.Time, float64, bool, error) {
	query := `
	SELECT start, sum
	FROM statistics
	WHERE statistic_id = ?
	ORDER BY start_ts DESC
	LIMIT 1
	`

	var startStr string
	var sum float64
	err := db.conn.QueryRow(query, statisticID).Scan(&startStr, &sum)
	if err == sql.ErrNoRows {
		return time.Time{}, 0, false, nil
	}
	if err != nil {
		return time.Time{}, 0, false, fmt.Errorf("querying last imported point: %w", err)
	}

	start, err := time.Parse(time.RFC3339, startStr)
	if err != nil {
		return time.Time{}, 0, false, fmt.Errorf("parsing start: %w", err)
	}
	return start, sum, true, nil
}

// ListStatistics retrieves all points for a statistic in ascending order.
func (db *DB) ListStatistics(statisticID string) ([]models.StatisticPoint, error) {
	query := `
	SELECT start, state, sum
	FROM statistics
	WHERE statistic_id = ?
	ORDER BY start_ts ASC
	`

	rows, err := db.conn.Query(query, statisticID)
	if err != nil {
		return nil, fmt.Errorf("querying statistics: %w", err)
	}
	defer rows.Close()

	var results []models.StatisticPoint
	for rows.Next() {
		var p models.StatisticPoint
		var startStr string

		if err := rows.Scan(&startStr, &p.State, &p.Sum); err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}

		p.Start, err = time.Parse(time.RFC3339, startStr)
		if err != nil {
			return nil, fmt.Errorf("parsing start: %w", err)
		}

		results = append(results, p)
	}

	return results, rows.Err()
}

// ListMetadata retrieves metadata for every statistic in the store.
func (db *DB) ListMetadata() ([]models.StatisticMetadata, error) {
	query := `
	SELECT statistic_id, name, unit, has_sum
	FROM statistics_meta
	ORDER BY statistic_id
	`

	rows, err := db.conn.Query(query)
	if err != nil {
		return nil, fmt.Errorf("querying statistic metadata: %w", err)
	}
	defer rows.Close()

	var results []models.StatisticMetadata
	for rows.Next() {
		var m models.StatisticMetadata
		var hasSum int

		if err := rows.Scan(&m.StatisticID, &m.Name, &m.Unit, &hasSum); err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}
		m.HasSum = hasSum != 0

		results = append(results, m)
	}

	return results, rows.Err()
}
