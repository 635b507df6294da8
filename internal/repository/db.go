// Package repository is TabRi's CRUD engine. A DB binds a schema registry
// to one tabular store; each Repository it hands out is the sole mutator of
// its table and enforces what the store cannot: uniqueness, foreign-key
// existence, and RESTRICT/CASCADE delete propagation.
//
// Usage:
//
//	db, err := repository.Open(reg, tabular.NewMemStore(), nil)
//	if err != nil { ... }
//	if err := db.Init(ctx); err != nil { ... }
//
//	customers, _ := db.Repo("Customers")
//	rec, err := customers.Create(ctx, tabular.Record{"email": "a@x.com"})
package repository

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/koustreak/TabRi/internal/logger"
	"github.com/koustreak/TabRi/internal/schema"
	"github.com/koustreak/TabRi/internal/tabular"
)

// defaultIndexTTL bounds how long a field index may serve lookups without a
// rebuild. Write-time invalidation is the real consistency guarantee; the
// TTL only caps staleness against out-of-process writers.
const defaultIndexTTL = 5 * time.Minute

// Options tunes a DB. The zero value (or nil) gives production defaults.
type Options struct {
	// Logger receives structured operation logs. Nil discards them.
	Logger *logger.Logger

	// IndexTTL overrides the default freshness window of field indexes.
	IndexTTL time.Duration

	// Clock and NewID exist for tests; nil means real time and UUID v4.
	Clock func() time.Time
	NewID func() string
}

// DB binds a read-only schema registry to one tabular store and caches a
// Repository per table so cascade deletes reuse instances (and their index
// caches) instead of rebuilding them per call.
type DB struct {
	reg      *schema.Registry
	store    tabular.Store
	log      *logger.Logger
	indexTTL time.Duration
	now      func() time.Time
	newID    func() string

	mu    sync.Mutex
	repos map[string]*Repository
}

// Open validates the registry's cross-table invariants and returns a DB
// over store. The registry must be fully populated before Open is called.
func Open(reg *schema.Registry, store tabular.Store, opts *Options) (*DB, error) {
	if err := reg.Check(); err != nil {
		return nil, err
	}

	if opts == nil {
		opts = &Options{}
	}
	db := &DB{
		reg:      reg,
		store:    store,
		log:      logger.OrNop(opts.Logger),
		indexTTL: opts.IndexTTL,
		now:      opts.Clock,
		newID:    opts.NewID,
		repos:    make(map[string]*Repository),
	}
	if db.indexTTL <= 0 {
		db.indexTTL = defaultIndexTTL
	}
	if db.now == nil {
		db.now = time.Now
	}
	if db.newID == nil {
		db.newID = uuid.NewString
	}
	return db, nil
}

// Init ensures the physical table (with its header columns) exists for every
// registered table. Idempotent; call once at startup, not per operation.
func (db *DB) Init(ctx context.Context) error {
	for _, name := range db.reg.Tables() {
		t, err := db.reg.Table(name)
		if err != nil {
			return err
		}
		if err := db.store.EnsureTable(ctx, t.StorageName, t.FieldNames()); err != nil {
			return err
		}
		db.log.With().Str("table", name).Logger().Debug("table ensured")
	}
	return nil
}

// Repo returns the Repository for a registered table, creating it on first
// use. The same instance is returned on every call.
func (db *DB) Repo(table string) (*Repository, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	if r, ok := db.repos[table]; ok {
		return r, nil
	}

	t, err := db.reg.Table(table)
	if err != nil {
		return nil, err
	}

	r := &Repository{
		db:  db,
		tbl: t,
		log: db.log.With().Str("table", table).Logger(),
		idx: newIndexCache(db.indexTTL, db.now),
	}
	db.repos[table] = r
	return r, nil
}

// MustRepo is Repo that panics on an unregistered table. Intended for
// startup wiring where the table set is static.
func (db *DB) MustRepo(table string) *Repository {
	r, err := db.Repo(table)
	if err != nil {
		panic(err)
	}
	return r
}

// Registry exposes the schema registry the DB was opened with.
func (db *DB) Registry() *schema.Registry {
	return db.reg
}
