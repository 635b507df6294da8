// Package snapshot exports and imports whole tables as CSV objects in an
// object store. A snapshot is the table's header row followed by its data
// rows, exactly as the tabular store holds them, so a round trip is
// byte-faithful.
//
// Usage:
//
//	snap := snapshot.New(reg, tables, objects, &snapshot.Options{Bucket: "backups"})
//	key, err := snap.Export(ctx, "Orders")
//	...
//	err = snap.Import(ctx, "Orders") // truncate and restore
package snapshot

import (
	"bytes"
	"context"
	"encoding/csv"
	"io"
	"path"

	"github.com/koustreak/TabRi/internal/errs"
	"github.com/koustreak/TabRi/internal/filestore"
	"github.com/koustreak/TabRi/internal/logger"
	"github.com/koustreak/TabRi/internal/schema"
	"github.com/koustreak/TabRi/internal/tabular"
)

const contentType = "text/csv"

// Options tunes a Snapshotter. Bucket is required.
type Options struct {
	// Bucket is the object-store bucket snapshots live in.
	Bucket string

	// Prefix is prepended to every object key (e.g. "daily").
	Prefix string

	// Logger receives per-table progress logs. Nil discards them.
	Logger *logger.Logger
}

// Snapshotter moves tables between a tabular store and an object store.
type Snapshotter struct {
	reg     *schema.Registry
	tables  tabular.Store
	objects filestore.Store
	bucket  string
	prefix  string
	log     *logger.Logger
}

// New wires a Snapshotter. The registry supplies headers and storage names;
// reads and writes go straight to the tabular store, bypassing repositories
// and their validation (a snapshot restores what was stored, verbatim).
func New(reg *schema.Registry, tables tabular.Store, objects filestore.Store, opts *Options) (*Snapshotter, error) {
	if opts == nil || opts.Bucket == "" {
		return nil, errs.New(errs.ErrKindInvalidInput, "snapshot: a bucket is required")
	}
	return &Snapshotter{
		reg:     reg,
		tables:  tables,
		objects: objects,
		bucket:  opts.Bucket,
		prefix:  opts.Prefix,
		log:     logger.OrNop(opts.Logger),
	}, nil
}

// Export writes one table as <prefix>/<storageName>.csv and returns the
// object key.
func (s *Snapshotter) Export(ctx context.Context, table string) (string, error) {
	t, err := s.reg.Table(table)
	if err != nil {
		return "", err
	}

	rows, err := s.tables.ReadAll(ctx, t.StorageName)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(t.FieldNames()); err != nil {
		return "", errs.Wrap(errs.ErrKindStorage, "snapshot: encoding header failed", err)
	}
	if err := w.WriteAll(rows); err != nil {
		return "", errs.Wrap(errs.ErrKindStorage, "snapshot: encoding rows failed", err)
	}

	key := s.key(t)
	if err := s.objects.EnsureBucket(ctx, s.bucket); err != nil {
		return "", err
	}
	if err := s.objects.PutObject(ctx, s.bucket, key, &buf, int64(buf.Len()), contentType); err != nil {
		return "", err
	}

	s.log.With().Str("table", table).Str("key", key).Int("rows", len(rows)).Logger().
		Info("table exported")
	return key, nil
}

// ExportAll exports every registered table and returns the object keys in
// registration order. It stops at the first failure.
func (s *Snapshotter) ExportAll(ctx context.Context) ([]string, error) {
	var keys []string
	for _, name := range s.reg.Tables() {
		key, err := s.Export(ctx, name)
		if err != nil {
			return keys, err
		}
		keys = append(keys, key)
	}
	return keys, nil
}

// Import replaces one table's contents with its exported snapshot. The
// object's header must match the current schema field-for-field; a schema
// that moved on since the export cannot be restored into.
func (s *Snapshotter) Import(ctx context.Context, table string) error {
	t, err := s.reg.Table(table)
	if err != nil {
		return err
	}

	obj, err := s.objects.GetObject(ctx, s.bucket, s.key(t))
	if err != nil {
		return err
	}
	defer obj.Close()

	r := csv.NewReader(obj)
	r.FieldsPerRecord = -1

	header, err := r.Read()
	if err != nil {
		return errs.Wrap(errs.ErrKindStorage, "snapshot: reading header failed", err)
	}
	want := t.FieldNames()
	if len(header) != len(want) {
		return errs.Newf(errs.ErrKindInvalidInput,
			"snapshot for %q has %d columns, schema has %d", table, len(header), len(want))
	}
	for i, name := range want {
		if header[i] != name {
			return errs.Newf(errs.ErrKindInvalidInput,
				"snapshot for %q: column %d is %q, schema expects %q", table, i, header[i], name)
		}
	}

	var rows [][]string
	for {
		row, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return errs.Wrap(errs.ErrKindStorage, "snapshot: reading rows failed", err)
		}
		rows = append(rows, row)
	}

	// Replace, not merge: a restore returns the table to the snapshot state.
	if err := s.tables.Truncate(ctx, t.StorageName); err != nil {
		return err
	}
	for _, row := range rows {
		if err := s.tables.Append(ctx, t.StorageName, row); err != nil {
			return err
		}
	}

	s.log.With().Str("table", table).Int("rows", len(rows)).Logger().Info("table imported")
	return nil
}

func (s *Snapshotter) key(t *schema.Table) string {
	return path.Join(s.prefix, t.StorageName+".csv")
}
