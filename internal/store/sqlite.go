package store

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const (
	busyTimeoutMs = 5000
	timeLayout    = time.RFC3339Nano
)

// SQLiteStore persists dashboard records in a single SQLite file.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite applies pending migrations to path and returns a ready store.
func OpenSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	if path == "" {
		return nil, errors.New("store: database path is required")
	}

	// The migrate driver closes the handle it is given, so it gets its own.
	migDB, err := openDB(ctx, path)
	if err != nil {
		return nil, err
	}
	if err := migrateUp(migDB); err != nil {
		return nil, err
	}

	db, err := openDB(ctx, path)
	if err != nil {
		return nil, err
	}
	return &SQLiteStore{db: db}, nil
}

func openDB(ctx context.Context, path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}

	// Pragmas are per connection; one connection keeps them in force.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		fmt.Sprintf("PRAGMA busy_timeout=%d", busyTimeoutMs),
		"PRAGMA foreign_keys=ON",
	}
	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("store: %s: %w", p, err)
		}
	}
	return db, nil
}

func migrateUp(db *sql.DB) error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		_ = db.Close()
		return fmt.Errorf("store: migrations source: %w", err)
	}

	driver, err := migratesqlite.WithInstance(db, &migratesqlite.Config{})
	if err != nil {
		_ = db.Close()
		return fmt.Errorf("store: migrate driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		_ = db.Close()
		return fmt.Errorf("store: migrate init: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("store: migrate up: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

func (s *SQLiteStore) Close() error { return s.db.Close() }

// ---- tasks ----

const taskColumns = `id, title, description, completed, priority, created_at, due_date, category`

func (s *SQLiteStore) ListTasks(ctx context.Context) ([]Task, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+taskColumns+` FROM tasks ORDER BY rowid`)
	if err != nil {
		return nil, fmt.Errorf("store: list tasks: %w", err)
	}
	defer rows.Close()

	out := []Task{}
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) CreateTask(ctx context.Context, t Task) (Task, error) {
	if err := t.Normalize(); err != nil {
		return Task{}, err
	}
	t.CreatedAt = time.Now().UTC()

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		id, err := nextRowID(ctx, tx, "tasks")
		if err != nil {
			return err
		}
		t.ID = id
		_, err = tx.ExecContext(ctx,
			`INSERT INTO tasks (`+taskColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			t.ID, t.Title, t.Description, t.Completed, t.Priority,
			formatTime(t.CreatedAt), formatTimePtr(t.DueDate), t.Category,
		)
		return err
	})
	if err != nil {
		return Task{}, fmt.Errorf("store: create task: %w", err)
	}
	return t, nil
}

func (s *SQLiteStore) UpdateTask(ctx context.Context, id string, t Task) (Task, error) {
	if err := t.Normalize(); err != nil {
		return Task{}, err
	}
	t.ID = id

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		cur, err := scanTask(tx.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = ?`, id))
		if err != nil {
			return err
		}
		if t.CreatedAt.IsZero() {
			t.CreatedAt = cur.CreatedAt
		}
		_, err = tx.ExecContext(ctx,
			`UPDATE tasks SET title = ?, description = ?, completed = ?, priority = ?, created_at = ?, due_date = ?, category = ?
			 WHERE id = ?`,
			t.Title, t.Description, t.Completed, t.Priority,
			formatTime(t.CreatedAt), formatTimePtr(t.DueDate), t.Category, id,
		)
		return err
	})
	if err != nil {
		return Task{}, wrapNotFound("update task", err)
	}
	return t, nil
}

func (s *SQLiteStore) DeleteTask(ctx context.Context, id string) (Task, error) {
	var t Task
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		t, err = scanTask(tx.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = ?`, id))
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `DELETE FROM tasks WHERE id = ?`, id)
		return err
	})
	if err != nil {
		return Task{}, wrapNotFound("delete task", err)
	}
	return t, nil
}

func scanTask(row interface{ Scan(...any) error }) (Task, error) {
	var (
		t         Task
		createdAt string
		dueDate   sql.NullString
	)
	if err := row.Scan(&t.ID, &t.Title, &t.Description, &t.Completed, &t.Priority, &createdAt, &dueDate, &t.Category); err != nil {
		return Task{}, err
	}
	var err error
	if t.CreatedAt, err = parseTime(createdAt); err != nil {
		return Task{}, err
	}
	if t.DueDate, err = parseTimePtr(dueDate); err != nil {
		return Task{}, err
	}
	return t, nil
}

// ---- clients ----

const clientColumns = `id, name, email, phone, company, projects_count, last_contact, avatar_url, tags`

func (s *SQLiteStore) ListClients(ctx context.Context) ([]Client, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+clientColumns+` FROM clients ORDER BY rowid`)
	if err != nil {
		return nil, fmt.Errorf("store: list clients: %w", err)
	}
	defer rows.Close()

	out := []Client{}
	for rows.Next() {
		c, err := scanClient(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) CreateClient(ctx context.Context, c Client) (Client, error) {
	if err := c.Normalize(); err != nil {
		return Client{}, err
	}
	tags, err := json.Marshal(c.Tags)
	if err != nil {
		return Client{}, fmt.Errorf("store: encode tags: %w", err)
	}

	err = s.withTx(ctx, func(tx *sql.Tx) error {
		id, err := nextRowID(ctx, tx, "clients")
		if err != nil {
			return err
		}
		c.ID = id
		_, err = tx.ExecContext(ctx,
			`INSERT INTO clients (`+clientColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			c.ID, c.Name, c.Email, c.Phone, c.Company, c.ProjectsCount,
			formatTimePtr(c.LastContact), c.AvatarURL, string(tags),
		)
		return err
	})
	if err != nil {
		return Client{}, fmt.Errorf("store: create client: %w", err)
	}
	return c, nil
}

func (s *SQLiteStore) DeleteClient(ctx context.Context, id string) (Client, error) {
	var c Client
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		c, err = scanClient(tx.QueryRowContext(ctx, `SELECT `+clientColumns+` FROM clients WHERE id = ?`, id))
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `DELETE FROM clients WHERE id = ?`, id)
		return err
	})
	if err != nil {
		return Client{}, wrapNotFound("delete client", err)
	}
	return c, nil
}

func scanClient(row interface{ Scan(...any) error }) (Client, error) {
	var (
		c                         Client
		phone, company, avatarURL sql.NullString
		lastContact               sql.NullString
		tags                      string
	)
	if err := row.Scan(&c.ID, &c.Name, &c.Email, &phone, &company, &c.ProjectsCount, &lastContact, &avatarURL, &tags); err != nil {
		return Client{}, err
	}
	c.Phone = nullString(phone)
	c.Company = nullString(company)
	c.AvatarURL = nullString(avatarURL)

	var err error
	if c.LastContact, err = parseTimePtr(lastContact); err != nil {
		return Client{}, err
	}
	if c.Tags, err = decodeTags(tags); err != nil {
		return Client{}, err
	}
	return c, nil
}

// ---- designs ----

const designColumns = `id, title, description, image_url, style, room_type, created_at, is_favorite, client_id, tags`

func (s *SQLiteStore) ListDesigns(ctx context.Context) ([]Design, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+designColumns+` FROM designs ORDER BY rowid`)
	if err != nil {
		return nil, fmt.Errorf("store: list designs: %w", err)
	}
	defer rows.Close()

	out := []Design{}
	for rows.Next() {
		var (
			d         Design
			createdAt string
			clientID  sql.NullString
			tags      string
		)
		if err := rows.Scan(&d.ID, &d.Title, &d.Description, &d.ImageURL, &d.Style, &d.RoomType,
			&createdAt, &d.IsFavorite, &clientID, &tags); err != nil {
			return nil, err
		}
		if d.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		if d.Tags, err = decodeTags(tags); err != nil {
			return nil, err
		}
		d.ClientID = nullString(clientID)
		out = append(out, d)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) ToggleFavorite(ctx context.Context, id string) (bool, error) {
	var fav bool
	err := s.db.QueryRowContext(ctx,
		`UPDATE designs SET is_favorite = 1 - is_favorite WHERE id = ? RETURNING is_favorite`, id,
	).Scan(&fav)
	if err != nil {
		return false, wrapNotFound("toggle favorite", err)
	}
	return fav, nil
}

// ---- interactions ----

func (s *SQLiteStore) ListInteractions(ctx context.Context) ([]Interaction, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, client_id, interaction_type, title, description, created_at, outcome, next_action
		 FROM interactions ORDER BY rowid`)
	if err != nil {
		return nil, fmt.Errorf("store: list interactions: %w", err)
	}
	defer rows.Close()

	out := []Interaction{}
	for rows.Next() {
		var (
			in                  Interaction
			createdAt           string
			outcome, nextAction sql.NullString
		)
		if err := rows.Scan(&in.ID, &in.ClientID, &in.InteractionType, &in.Title, &in.Description,
			&createdAt, &outcome, &nextAction); err != nil {
			return nil, err
		}
		if in.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		in.Outcome = nullString(outcome)
		in.NextAction = nullString(nextAction)
		out = append(out, in)
	}
	return out, rows.Err()
}

// ---- helpers ----

func (s *SQLiteStore) withTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

// nextRowID mirrors nextID for a table: count+1, skipping ids already used.
func nextRowID(ctx context.Context, tx *sql.Tx, table string) (string, error) {
	var count int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM `+table).Scan(&count); err != nil {
		return "", err
	}

	var scanErr error
	id := nextID(count, func(id string) bool {
		var one int
		err := tx.QueryRowContext(ctx, `SELECT 1 FROM `+table+` WHERE id = ?`, id).Scan(&one)
		if errors.Is(err, sql.ErrNoRows) {
			return false
		}
		if err != nil {
			scanErr = err
			return false
		}
		return true
	})
	return id, scanErr
}

func wrapNotFound(op string, err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return fmt.Errorf("store: %s: %w", op, err)
}

func formatTime(t time.Time) string { return t.UTC().Format(timeLayout) }

func formatTimePtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("store: parse time %q: %w", s, err)
	}
	return t, nil
}

func parseTimePtr(ns sql.NullString) (*time.Time, error) {
	if !ns.Valid || ns.String == "" {
		return nil, nil
	}
	t, err := parseTime(ns.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func nullString(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	return &ns.String
}

func decodeTags(s string) ([]string, error) {
	tags := []string{}
	if s == "" {
		return tags, nil
	}
	if err := json.Unmarshal([]byte(s), &tags); err != nil {
		return nil, fmt.Errorf("store: decode tags: %w", err)
	}
	return tags, nil
}
