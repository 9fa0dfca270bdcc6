package sqlite

import (
	"database/sql"
	"fmt"
	"sort"

	"github.com/flightline/pa-status/internal/snapshot"
	"github.com/flightline/pa-status/pkg/logger"

	_ "modernc.org/sqlite"
)

// HistoryRecord represents one persisted status change for an airport
type HistoryRecord struct {
	ID             int64  `json:"id"`
	Code           string `json:"code"`
	Status         string `json:"status"`
	FlightCategory string `json:"flight_category"`
	Reason         string `json:"reason"`
	MetarTimeUTC   string `json:"metar_time_utc"`
	RunUTC         string `json:"run_utc"`
}

// HistoryStorage records airport status transitions across refresh runs
type HistoryStorage struct {
	db     *sql.DB
	logger *logger.Logger
}

// NewHistoryStorage creates a new SQLite history storage at the given path
func NewHistoryStorage(dbPath string, log *logger.Logger) (*HistoryStorage, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite only supports one writer at a time
	db.SetMaxOpenConns(1)

	storage := &HistoryStorage{
		db:     db,
		logger: log.Named("sqlite-history"),
	}

	if err := storage.initDB(); err != nil {
		db.Close()
		return nil, err
	}

	return storage, nil
}

// initDB initializes the database tables
func (s *HistoryStorage) initDB() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS status_history (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			code TEXT NOT NULL,
			status TEXT NOT NULL,
			flight_category TEXT NOT NULL,
			reason TEXT,
			metar_time_utc TEXT,
			run_utc TEXT NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create status_history table: %w", err)
	}

	_, err = s.db.Exec(`CREATE INDEX IF NOT EXISTS idx_history_code ON status_history(code)`)
	if err != nil {
		return fmt.Errorf("failed to create code index: %w", err)
	}

	_, err = s.db.Exec(`CREATE INDEX IF NOT EXISTS idx_history_run_utc ON status_history(run_utc)`)
	if err != nil {
		return fmt.Errorf("failed to create run_utc index: %w", err)
	}

	return nil
}

// RecordRun appends a row for every airport whose status or flight category
// changed since its last recorded row
func (s *HistoryStorage) RecordRun(doc *snapshot.Document) error {
	codes := make([]string, 0, len(doc.Airports))
	for code := range doc.Airports {
		codes = append(codes, code)
	}
	sort.Strings(codes)

	recorded := 0
	for _, code := range codes {
		rec := doc.Airports[code]

		changed, err := s.changedSinceLast(code, rec)
		if err != nil {
			return err
		}
		if !changed {
			continue
		}

		reason := rec.ImpactReason
		if rec.Status == snapshot.StatusClosed {
			reason = rec.ClosureReason
		}

		_, err = s.db.Exec(
			`INSERT INTO status_history (code, status, flight_category, reason, metar_time_utc, run_utc)
			VALUES (?, ?, ?, ?, ?, ?)`,
			code,
			string(rec.Status),
			rec.FlightCategory,
			reason,
			rec.MetarTimeUTC,
			doc.GeneratedUTC,
		)
		if err != nil {
			return fmt.Errorf("failed to insert history row for %s: %w", code, err)
		}
		recorded++
	}

	if recorded > 0 {
		s.logger.Info("Recorded status changes",
			logger.Int("changed_airports", recorded),
			logger.String("run_utc", doc.GeneratedUTC))
	}
	return nil
}

// changedSinceLast reports whether the record differs from the most recent
// history row for the same airport
func (s *HistoryStorage) changedSinceLast(code string, rec *snapshot.StatusRecord) (bool, error) {
	var lastStatus, lastCategory string
	err := s.db.QueryRow(
		`SELECT status, flight_category FROM status_history WHERE code = ? ORDER BY id DESC LIMIT 1`,
		code,
	).Scan(&lastStatus, &lastCategory)
	if err == sql.ErrNoRows {
		return true, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to query last history row for %s: %w", code, err)
	}
	return lastStatus != string(rec.Status) || lastCategory != rec.FlightCategory, nil
}

// RecentByCode returns the most recent history rows for one airport,
// newest first
func (s *HistoryStorage) RecentByCode(code string, limit int) ([]*HistoryRecord, error) {
	rows, err := s.db.Query(
		`SELECT id, code, status, flight_category, reason, metar_time_utc, run_utc
		FROM status_history
		WHERE code = ?
		ORDER BY id DESC
		LIMIT ?`,
		code, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	var records []*HistoryRecord
	for rows.Next() {
		var rec HistoryRecord
		var reason, metarTime sql.NullString
		if err := rows.Scan(&rec.ID, &rec.Code, &rec.Status, &rec.FlightCategory, &reason, &metarTime, &rec.RunUTC); err != nil {
			return nil, fmt.Errorf("failed to scan history row: %w", err)
		}
		rec.Reason = reason.String
		rec.MetarTimeUTC = metarTime.String
		records = append(records, &rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read history rows: %w", err)
	}

	return records, nil
}

// Close closes the underlying database
func (s *HistoryStorage) Close() error {
	return s.db.Close()
}
