// Package store owns the embedded SQLite database that holds the event log
// and the reports collection.
//
// All methods on Handle return errors; deciding which failures degrade
// silently is left to the caller.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	apperrors "github.com/arkilian/analytica/internal/errors"
	"github.com/mattn/go-sqlite3"
	"github.com/sirupsen/logrus"
)

// Options configures how the database is opened.
type Options struct {
	// BusyTimeout is how long SQLite waits on a locked database
	BusyTimeout time.Duration

	// ReadPoolSize is the maximum number of concurrent read connections
	ReadPoolSize int

	Logger logrus.FieldLogger
}

// DefaultOptions returns the options used when none are supplied.
func DefaultOptions() Options {
	return Options{
		BusyTimeout:  5 * time.Second,
		ReadPoolSize: 4,
	}
}

// Opener lazily opens a single shared Handle. Concurrent Open calls wait for
// the first one to finish and all observe the same Handle. A failed attempt
// is not cached, so a later call tries again.
type Opener struct {
	path string
	opts Options

	mu     sync.Mutex
	handle *Handle
}

// NewOpener creates an Opener for the database file at path.
func NewOpener(path string, opts Options) *Opener {
	def := DefaultOptions()
	if opts.BusyTimeout <= 0 {
		opts.BusyTimeout = def.BusyTimeout
	}
	if opts.ReadPoolSize <= 0 {
		opts.ReadPoolSize = def.ReadPoolSize
	}
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}
	return &Opener{path: path, opts: opts}
}

// Open returns the shared Handle, creating the schema on first use.
// It fails with a STORE_UNAVAILABLE error if the database cannot be opened.
func (o *Opener) Open(ctx context.Context) (*Handle, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.handle != nil {
		return o.handle, nil
	}

	h, err := openHandle(ctx, o.path, o.opts)
	if err != nil {
		o.opts.Logger.WithError(err).WithField("path", o.path).Warn("store: open failed")
		return nil, err
	}
	o.handle = h
	o.opts.Logger.WithField("path", o.path).Info("store: database opened")
	return h, nil
}

// Close closes the shared Handle if it was opened.
func (o *Opener) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.handle == nil {
		return nil
	}
	err := o.handle.Close()
	o.handle = nil
	return err
}

// Handle is an open database with a single write connection and a pool of
// read-only connections.
type Handle struct {
	db     *sql.DB // write connection (single writer)
	readDB *sql.DB // read connection pool
	mu     sync.Mutex
}

func openHandle(ctx context.Context, path string, opts Options) (*Handle, error) {
	dsn := fmt.Sprintf("%s?_journal_mode=WAL&_busy_timeout=%d", path, opts.BusyTimeout.Milliseconds())

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, apperrors.NewStoreUnavailable("failed to open database", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := initSchema(ctx, db); err != nil {
		db.Close()
		return nil, err
	}

	// The read pool is opened after the schema exists; mode=ro cannot
	// create the file.
	readDB, err := sql.Open("sqlite3", dsn+"&mode=ro")
	if err != nil {
		db.Close()
		return nil, apperrors.NewStoreUnavailable("failed to open read database", err)
	}
	readDB.SetMaxOpenConns(opts.ReadPoolSize)
	readDB.SetMaxIdleConns(opts.ReadPoolSize)
	readDB.SetConnMaxLifetime(5 * time.Minute)

	if err := readDB.PingContext(ctx); err != nil {
		readDB.Close()
		db.Close()
		return nil, apperrors.NewStoreUnavailable("failed to open read database", err)
	}

	return &Handle{db: db, readDB: readDB}, nil
}

// newHandle wraps existing connections without initializing the schema.
func newHandle(db, readDB *sql.DB) *Handle {
	return &Handle{db: db, readDB: readDB}
}

// initSchema creates all tables and indexes and checks the version stamp.
func initSchema(ctx context.Context, db *sql.DB) error {
	for _, stmt := range AllSchemaSQL() {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return apperrors.NewStoreUnavailable("failed to execute schema statement", err)
		}
	}

	if _, err := db.ExecContext(ctx, StampSchemaVersionSQL, strconv.Itoa(SchemaVersion)); err != nil {
		return apperrors.NewStoreUnavailable("failed to stamp schema version", err)
	}

	var stored string
	if err := db.QueryRowContext(ctx, ReadSchemaVersionSQL).Scan(&stored); err != nil {
		return apperrors.NewStoreUnavailable("failed to read schema version", err)
	}
	if stored != strconv.Itoa(SchemaVersion) {
		return apperrors.NewStoreUnavailable(
			fmt.Sprintf("unsupported schema version %s (want %d)", stored, SchemaVersion),
			apperrors.New(apperrors.ErrCategoryStore, apperrors.CodeSchemaMismatch, "schema version mismatch"),
		)
	}
	return nil
}

// Close closes both connection pools.
func (h *Handle) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	var errs []error
	if h.readDB != nil {
		errs = append(errs, h.readDB.Close())
	}
	if h.db != nil {
		errs = append(errs, h.db.Close())
	}
	return errors.Join(errs...)
}

// classify maps driver errors onto the store taxonomy: constraint violations
// reject the record, everything else means the store is unusable.
func classify(message string, err error) error {
	if err == nil {
		return nil
	}
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) && sqliteErr.Code == sqlite3.ErrConstraint {
		return apperrors.NewRecordRejected(message, err)
	}
	return apperrors.NewStoreUnavailable(message, err)
}
