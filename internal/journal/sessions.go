package journal

import (
	"database/sql"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested session does not exist.
var ErrNotFound = errors.New("not found")

// Session is one Open-to-Close run of a camera controller.
type Session struct {
	ID          string     `json:"id"`
	Backend     string     `json:"backend"`
	CameraIndex int        `json:"camera_index"`
	CameraName  string     `json:"camera_name"`
	StartedAt   time.Time  `json:"started_at"`
	StoppedAt   *time.Time `json:"stopped_at,omitempty"`
	Produced    uint64     `json:"produced"`
	Dropped     uint64     `json:"dropped"`
	Fault       string     `json:"fault,omitempty"`
}

// Active reports whether the session has not been finished.
func (s *Session) Active() bool {
	return s.StoppedAt == nil
}

// Summary holds the counters recorded when a session ends.
type Summary struct {
	Produced uint64
	Dropped  uint64
	Fault    string
}

// SessionRepository provides access to the sessions table.
type SessionRepository struct {
	db *sql.DB
}

// Sessions returns the session repository for this journal.
func (j *Journal) Sessions() *SessionRepository {
	return &SessionRepository{db: j.db}
}

// Start inserts a new session. StartedAt is set to now when zero.
func (r *SessionRepository) Start(s *Session) error {
	if s.StartedAt.IsZero() {
		s.StartedAt = time.Now()
	}

	_, err := r.db.Exec(
		`INSERT INTO sessions (id, backend, camera_index, camera_name, started_at)
		 VALUES (?, ?, ?, ?, ?)`,
		s.ID, s.Backend, s.CameraIndex, s.CameraName, s.StartedAt,
	)
	return err
}

// Finish marks a session as stopped and stores its counters.
func (r *SessionRepository) Finish(id string, sum Summary) error {
	result, err := r.db.Exec(
		`UPDATE sessions SET stopped_at = ?, produced = ?, dropped = ?, fault = ?
		 WHERE id = ?`,
		time.Now(), int64(sum.Produced), int64(sum.Dropped), sum.Fault, id,
	)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if rowsAffected == 0 {
		return ErrNotFound
	}

	return nil
}

// GetByID retrieves a session by its ID.
func (r *SessionRepository) GetByID(id string) (*Session, error) {
	row := r.db.QueryRow(
		`SELECT id, backend, camera_index, camera_name, started_at, stopped_at, produced, dropped, fault
		 FROM sessions WHERE id = ?`,
		id,
	)

	s, err := scanSession(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return s, nil
}

// List returns the most recent sessions first. A limit of zero or less
// returns every session.
func (r *SessionRepository) List(limit int) ([]*Session, error) {
	if limit <= 0 {
		limit = -1
	}

	rows, err := r.db.Query(
		`SELECT id, backend, camera_index, camera_name, started_at, stopped_at, produced, dropped, fault
		 FROM sessions ORDER BY started_at DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []*Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, s)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return sessions, nil
}

// Delete removes a session by its ID.
func (r *SessionRepository) Delete(id string) error {
	result, err := r.db.Exec(`DELETE FROM sessions WHERE id = ?`, id)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if rowsAffected == 0 {
		return ErrNotFound
	}

	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSession(sc scanner) (*Session, error) {
	s := &Session{}
	var stopped sql.NullTime
	var produced, dropped int64

	err := sc.Scan(&s.ID, &s.Backend, &s.CameraIndex, &s.CameraName, &s.StartedAt, &stopped, &produced, &dropped, &s.Fault)
	if err != nil {
		return nil, err
	}

	if stopped.Valid {
		t := stopped.Time
		s.StoppedAt = &t
	}
	s.Produced = uint64(produced)
	s.Dropped = uint64(dropped)
	return s, nil
}
