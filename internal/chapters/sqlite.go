package chapters

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/book-expert/chapter-audio-service/internal/core"
	"github.com/book-expert/logger"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

const (
	sqliteBusyCode          = 5
	busyRetryAttempts       = 5
	busyRetryInitialBackoff = 10 * time.Millisecond
	busyRetryMaxBackoff     = 200 * time.Millisecond
)

// SQLiteRepository stores chapters in a single table. The audio state is a
// JSON column; revision is the optimistic concurrency stamp.
type SQLiteRepository struct {
	db  *sql.DB
	log *logger.Logger
	now func() time.Time
}

// OpenSQLite opens (creating if needed) the database at path and applies
// pending migrations.
func OpenSQLite(ctx context.Context, path string, log *logger.Logger) (*SQLiteRepository, error) {
	err := os.MkdirAll(filepath.Dir(path), 0o750)
	if err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		_, err = db.ExecContext(ctx, pragma)
		if err != nil {
			_ = db.Close()

			return nil, fmt.Errorf("apply pragma %q: %w", pragma, err)
		}
	}

	repo := &SQLiteRepository{db: db, log: log, now: time.Now}

	err = repo.applyMigrations(ctx)
	if err != nil {
		_ = db.Close()

		return nil, err
	}

	return repo, nil
}

// Close closes the database.
func (r *SQLiteRepository) Close() error {
	if r == nil || r.db == nil {
		return nil
	}

	return r.db.Close()
}

// Create inserts a new chapter at revision 1.
func (r *SQLiteRepository) Create(ctx context.Context, chapter *core.Chapter) error {
	err := validateNew(chapter)
	if err != nil {
		return err
	}

	audio, err := json.Marshal(chapter.Audio)
	if err != nil {
		return fmt.Errorf("encode audio state: %w", err)
	}

	now := r.now().UTC()

	err = retryOnBusy(ctx, func() error {
		_, execErr := r.db.ExecContext(ctx,
			`INSERT INTO chapters (id, author_id, title, content, audio, revision, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, 1, ?, ?)`,
			chapter.ID, chapter.AuthorID, chapter.Title, chapter.Content, string(audio),
			now.Format(time.RFC3339Nano), now.Format(time.RFC3339Nano),
		)

		return execErr
	})
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint") {
			return fmt.Errorf("%w: chapter %s already exists", core.ErrConflict, chapter.ID)
		}

		return fmt.Errorf("insert chapter %s: %w", chapter.ID, err)
	}

	chapter.Revision = 1
	chapter.UpdatedAt = now

	return nil
}

// Get loads a chapter.
func (r *SQLiteRepository) Get(ctx context.Context, chapterID string) (*core.Chapter, error) {
	var (
		chapter   core.Chapter
		audio     string
		updatedAt string
	)

	row := r.db.QueryRowContext(ctx,
		`SELECT id, author_id, title, content, audio, revision, updated_at FROM chapters WHERE id = ?`,
		chapterID,
	)

	err := row.Scan(&chapter.ID, &chapter.AuthorID, &chapter.Title, &chapter.Content, &audio,
		&chapter.Revision, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("chapter %s: %w", chapterID, core.ErrNotFound)
	}

	if err != nil {
		return nil, fmt.Errorf("load chapter %s: %w", chapterID, err)
	}

	err = json.Unmarshal([]byte(audio), &chapter.Audio)
	if err != nil {
		return nil, fmt.Errorf("decode audio state of chapter %s: %w", chapterID, err)
	}

	chapter.UpdatedAt, err = time.Parse(time.RFC3339Nano, updatedAt)
	if err != nil {
		r.log.Warn("Chapter %s has unparseable updated_at %q: %v", chapterID, updatedAt, err)
	}

	return &chapter, nil
}

// Save writes the audio state if the stored revision still matches, then
// bumps the revision. Only the audio column is written.
func (r *SQLiteRepository) Save(ctx context.Context, chapter *core.Chapter) error {
	audio, err := json.Marshal(chapter.Audio)
	if err != nil {
		return fmt.Errorf("encode audio state: %w", err)
	}

	updatedAt := chapter.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = r.now()
	}

	var affected int64

	err = retryOnBusy(ctx, func() error {
		res, execErr := r.db.ExecContext(ctx,
			`UPDATE chapters SET audio = ?, revision = revision + 1, updated_at = ?
			 WHERE id = ? AND revision = ?`,
			string(audio), updatedAt.UTC().Format(time.RFC3339Nano), chapter.ID, chapter.Revision,
		)
		if execErr != nil {
			return execErr
		}

		affected, execErr = res.RowsAffected()

		return execErr
	})
	if err != nil {
		return fmt.Errorf("save chapter %s: %w", chapter.ID, err)
	}

	if affected == 0 {
		return r.saveMissReason(ctx, chapter)
	}

	chapter.Revision++

	return nil
}

// saveMissReason tells a missing chapter apart from a stale revision.
func (r *SQLiteRepository) saveMissReason(ctx context.Context, chapter *core.Chapter) error {
	var revision int64

	err := r.db.QueryRowContext(ctx, `SELECT revision FROM chapters WHERE id = ?`, chapter.ID).Scan(&revision)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("chapter %s: %w", chapter.ID, core.ErrNotFound)
	}

	if err != nil {
		return fmt.Errorf("check chapter %s: %w", chapter.ID, err)
	}

	return fmt.Errorf("%w: chapter %s is at revision %d, not %d",
		core.ErrConflict, chapter.ID, revision, chapter.Revision)
}

func (r *SQLiteRepository) applyMigrations(ctx context.Context) error {
	entries, err := migrationFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("read migrations dir: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() {
			names = append(names, entry.Name())
		}
	}

	sort.Strings(names)

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin migration tx: %w", err)
	}

	defer func() {
		_ = tx.Rollback()
	}()

	_, err = tx.ExecContext(ctx, "CREATE TABLE IF NOT EXISTS schema_migrations (version TEXT PRIMARY KEY)")
	if err != nil {
		return fmt.Errorf("ensure schema_migrations: %w", err)
	}

	for _, name := range names {
		version := strings.TrimSuffix(name, ".sql")

		var count int

		err = tx.QueryRowContext(ctx, "SELECT COUNT(1) FROM schema_migrations WHERE version = ?", version).Scan(&count)
		if err != nil {
			return fmt.Errorf("scan migration version: %w", err)
		}

		if count > 0 {
			continue
		}

		data, err := migrationFS.ReadFile("migrations/" + name)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", name, err)
		}

		_, err = tx.ExecContext(ctx, string(data))
		if err != nil {
			return fmt.Errorf("apply migration %s: %w", version, err)
		}

		_, err = tx.ExecContext(ctx, "INSERT INTO schema_migrations (version) VALUES (?)", version)
		if err != nil {
			return fmt.Errorf("record migration %s: %w", version, err)
		}

		r.log.Info("Applied chapter schema migration %s", version)
	}

	err = tx.Commit()
	if err != nil {
		return fmt.Errorf("commit migrations: %w", err)
	}

	return nil
}

func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}

	var coder interface{ Code() int }
	if errors.As(err, &coder) && coder.Code() == sqliteBusyCode {
		return true
	}

	msg := err.Error()

	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

func retryOnBusy(ctx context.Context, op func() error) error {
	delay := busyRetryInitialBackoff

	var lastErr error

	for attempt := range busyRetryAttempts {
		lastErr = op()
		if lastErr == nil {
			return nil
		}

		if !isSQLiteBusy(lastErr) || attempt == busyRetryAttempts-1 {
			break
		}

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}

		delay = min(delay*2, busyRetryMaxBackoff)
	}

	return lastErr
}
