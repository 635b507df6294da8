package repository

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/koustreak/TabRi/internal/errs"
	"github.com/koustreak/TabRi/internal/logger"
	"github.com/koustreak/TabRi/internal/schema"
	"github.com/koustreak/TabRi/internal/tabular"
	"github.com/koustreak/TabRi/internal/validate"
)

// Repository is the sole mutator of one table. All reads go through one bulk
// store read; all writes re-validate the record, enforce uniqueness and
// foreign keys, and drop the field index cache before returning.
//
// Records returned by read operations must be treated as read-only; mutate a
// copy and pass it to Update instead.
type Repository struct {
	db  *DB
	tbl *schema.Table
	log *logger.Logger
	idx *indexCache
}

// FindOptions narrows a FindAll call. The zero value returns everything in
// store order.
type FindOptions struct {
	// Filter keeps only records for which it returns true.
	Filter func(tabular.Record) bool

	// SortBy orders the result by one field; SortDesc flips the direction.
	SortBy   string
	SortDesc bool

	// Limit caps the number of records returned. 0 means no cap.
	Limit int
}

// BatchResult reports the outcome of one record in a BatchCreate call.
type BatchResult struct {
	// Input is the caller-supplied data, echoed back for failure triage.
	Input tabular.Record

	// Record is the fully populated created record; nil when Err is set.
	Record tabular.Record

	Err error
}

// Table returns the schema entry this repository operates on.
func (r *Repository) Table() *schema.Table {
	return r.tbl
}

// Create validates data, fills generated fields (primary key, creation and
// update timestamps, defaults), enforces uniqueness and foreign keys, and
// appends the record to the store. Nothing is written when any check fails.
func (r *Repository) Create(ctx context.Context, data tabular.Record) (tabular.Record, error) {
	rec, err := validate.Record(r.tbl, data, false)
	if err != nil {
		return nil, err
	}

	pk, _ := r.tbl.Field(r.tbl.PrimaryKey)
	if _, ok := rec[pk.Name]; !ok {
		if pk.Type != schema.TypeString {
			return nil, errs.Newf(errs.ErrKindInvalidInput,
				"table %q: primary key %q must be supplied for non-string key types",
				r.tbl.Name, pk.Name)
		}
		rec[pk.Name] = r.db.newID()
	}

	now := r.db.now().UTC()
	for i := range r.tbl.Fields {
		f := &r.tbl.Fields[i]
		if _, ok := rec[f.Name]; ok {
			continue
		}
		switch {
		case f.AutoGenerate && f.Type == schema.TypeTimestamp,
			f.AutoUpdate && f.Type == schema.TypeTimestamp:
			rec[f.Name] = now.Format(time.RFC3339)
		case f.AutoGenerate && f.Type == schema.TypeDate,
			f.AutoUpdate && f.Type == schema.TypeDate:
			rec[f.Name] = now.Format("2006-01-02")
		}
	}

	if err := r.checkUnique(ctx, rec, rec, nil); err != nil {
		return nil, err
	}
	if err := r.checkForeignKeys(ctx, rec); err != nil {
		return nil, err
	}

	row, err := tabular.EncodeRow(r.tbl, rec)
	if err != nil {
		return nil, err
	}
	if err := r.db.store.Append(ctx, r.tbl.StorageName, row); err != nil {
		return nil, err
	}
	r.idx.invalidate()

	r.log.With().Any("id", rec[pk.Name]).Logger().Debug("record created")
	return rec, nil
}

// FindByID returns the record whose primary key equals id, or nil when no
// such record exists. Absence is a normal outcome, not an error.
func (r *Repository) FindByID(ctx context.Context, id any) (tabular.Record, error) {
	_, rec, err := r.findRow(ctx, id)
	return rec, err
}

// FindAll bulk-reads the table and applies, in order: filter, single-field
// sort, limit. An empty table yields an empty slice.
func (r *Repository) FindAll(ctx context.Context, opts *FindOptions) ([]tabular.Record, error) {
	rows, err := r.db.store.ReadAll(ctx, r.tbl.StorageName)
	if err != nil {
		return nil, err
	}

	records := make([]tabular.Record, 0, len(rows))
	for _, row := range rows {
		rec, err := tabular.DecodeRow(r.tbl, row)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}

	if opts == nil {
		return records, nil
	}

	if opts.Filter != nil {
		filtered := records[:0]
		for _, rec := range records {
			if opts.Filter(rec) {
				filtered = append(filtered, rec)
			}
		}
		records = filtered
	}

	if opts.SortBy != "" {
		if _, ok := r.tbl.Field(opts.SortBy); !ok {
			return nil, errs.Newf(errs.ErrKindInvalidInput,
				"table %q has no field %q to sort by", r.tbl.Name, opts.SortBy)
		}
		field := opts.SortBy
		desc := opts.SortDesc
		sort.SliceStable(records, func(i, j int) bool {
			c := compareValues(records[i][field], records[j][field])
			if desc {
				return c > 0
			}
			return c < 0
		})
	}

	if opts.Limit > 0 && len(records) > opts.Limit {
		records = records[:opts.Limit]
	}
	return records, nil
}

// FindOne returns the first record matching filter, or nil when none does.
func (r *Repository) FindOne(ctx context.Context, filter func(tabular.Record) bool) (tabular.Record, error) {
	records, err := r.FindAll(ctx, &FindOptions{Filter: filter, Limit: 1})
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, nil
	}
	return records[0], nil
}

// FindBy returns all records whose field equals value, serving from the
// field index when one is fresh and rebuilding it from a full scan when not.
func (r *Repository) FindBy(ctx context.Context, field string, value any) ([]tabular.Record, error) {
	f, ok := r.tbl.Field(field)
	if !ok {
		return nil, errs.Newf(errs.ErrKindInvalidInput,
			"table %q has no field %q", r.tbl.Name, field)
	}

	key, err := tabular.EncodeValue(f, value)
	if err != nil {
		return nil, err
	}

	if records, ok := r.idx.lookup(field, key); ok {
		return records, nil
	}

	all, err := r.FindAll(ctx, nil)
	if err != nil {
		return nil, err
	}

	byValue := make(map[string][]tabular.Record)
	for _, rec := range all {
		v, ok := rec[field]
		if !ok {
			continue
		}
		k, err := tabular.EncodeValue(f, v)
		if err != nil {
			return nil, err
		}
		byValue[k] = append(byValue[k], rec)
	}
	r.idx.store(field, byValue)

	return byValue[key], nil
}

// Update merges partial onto the stored record identified by id, refreshes
// auto-update timestamps, re-validates the merged record, re-checks
// uniqueness and foreign keys, and overwrites the row in place. Returns the
// merged record, or nil when id does not exist.
func (r *Repository) Update(ctx context.Context, id any, partial tabular.Record) (tabular.Record, error) {
	index, current, err := r.findRow(ctx, id)
	if err != nil {
		return nil, err
	}
	if current == nil {
		return nil, nil
	}

	delta, err := validate.Record(r.tbl, partial, true)
	if err != nil {
		return nil, err
	}

	merged := make(tabular.Record, len(current)+len(delta))
	for k, v := range current {
		merged[k] = v
	}
	for k, v := range delta {
		merged[k] = v
	}

	now := r.db.now().UTC()
	for i := range r.tbl.Fields {
		f := &r.tbl.Fields[i]
		if !f.AutoUpdate {
			continue
		}
		switch f.Type {
		case schema.TypeTimestamp:
			merged[f.Name] = now.Format(time.RFC3339)
		case schema.TypeDate:
			merged[f.Name] = now.Format("2006-01-02")
		}
	}

	// full validation of the final state, not just the delta
	merged, err = validate.Record(r.tbl, merged, true)
	if err != nil {
		return nil, err
	}

	if err := r.checkUnique(ctx, delta, merged, id); err != nil {
		return nil, err
	}
	if err := r.checkForeignKeys(ctx, merged); err != nil {
		return nil, err
	}

	row, err := tabular.EncodeRow(r.tbl, merged)
	if err != nil {
		return nil, err
	}
	if err := r.db.store.Overwrite(ctx, r.tbl.StorageName, index, row); err != nil {
		return nil, err
	}
	r.idx.invalidate()

	r.log.With().Any("id", id).Logger().Debug("record updated")
	return merged, nil
}

// Delete removes the record identified by id. RESTRICT children block the
// delete; CASCADE children are deleted first, recursively through their own
// repositories so multi-level cascades propagate. Returns false when id
// does not exist.
func (r *Repository) Delete(ctx context.Context, id any) (bool, error) {
	index, rec, err := r.findRow(ctx, id)
	if err != nil {
		return false, err
	}
	if rec == nil {
		return false, nil
	}

	refs := r.db.reg.ChildRefs(r.tbl.Name)

	// RESTRICT first: the delete must be rejected before any cascade fires.
	for _, ref := range refs {
		if ref.OnDelete != schema.DeleteRestrict {
			continue
		}
		children, err := r.childrenOf(ctx, ref, rec)
		if err != nil {
			return false, err
		}
		if len(children) > 0 {
			return false, errs.Newf(errs.ErrKindRestrictedDelete,
				"cannot delete from %q: %d record(s) in %q still reference %v via %q",
				r.tbl.Name, len(children), ref.Table, rec[ref.ParentField], ref.Field)
		}
	}

	for _, ref := range refs {
		if ref.OnDelete != schema.DeleteCascade {
			continue
		}
		children, err := r.childrenOf(ctx, ref, rec)
		if err != nil {
			return false, err
		}
		childRepo, err := r.db.Repo(ref.Table)
		if err != nil {
			return false, err
		}
		childPK := childRepo.tbl.PrimaryKey
		for _, child := range children {
			if _, err := childRepo.Delete(ctx, child[childPK]); err != nil {
				return false, err
			}
		}
	}

	// Cascades through a self-referencing table shift row positions (or may
	// have removed this very row), so locate it again before deleting.
	index, rec, err = r.findRow(ctx, id)
	if err != nil {
		return false, err
	}
	if rec == nil {
		return true, nil
	}

	if err := r.db.store.Delete(ctx, r.tbl.StorageName, index); err != nil {
		return false, err
	}
	r.idx.invalidate()

	r.log.With().Any("id", id).Logger().Debug("record deleted")
	return true, nil
}

// Count returns the number of records, optionally narrowed by filter.
func (r *Repository) Count(ctx context.Context, filter func(tabular.Record) bool) (int, error) {
	records, err := r.FindAll(ctx, &FindOptions{Filter: filter})
	if err != nil {
		return 0, err
	}
	return len(records), nil
}

// Exists reports whether a record with the given primary key exists.
func (r *Repository) Exists(ctx context.Context, id any) (bool, error) {
	rec, err := r.FindByID(ctx, id)
	if err != nil {
		return false, err
	}
	return rec != nil, nil
}

// BatchCreate creates each record independently: one failure is recorded in
// its result and processing continues. The batch is not atomic; callers must
// inspect every result.
func (r *Repository) BatchCreate(ctx context.Context, records []tabular.Record) []BatchResult {
	results := make([]BatchResult, len(records))
	for i, data := range records {
		rec, err := r.Create(ctx, data)
		results[i] = BatchResult{Input: data, Record: rec, Err: err}
		if err != nil {
			r.log.With().Int("position", i).Err(err).Logger().Warn("batch create: record rejected")
		}
	}
	return results
}

// Truncate removes every record of this table, keeping the table itself.
// Destructive; guard the call site with explicit confirmation.
func (r *Repository) Truncate(ctx context.Context) error {
	if err := r.db.store.Truncate(ctx, r.tbl.StorageName); err != nil {
		return err
	}
	r.idx.invalidate()
	r.log.Info("table truncated")
	return nil
}

// IsUnique reports whether value is free to use for field: true when no
// record holds it, or when the only holder is the record identified by
// excludeID (the record being updated).
func (r *Repository) IsUnique(ctx context.Context, field string, value any, excludeID any) (bool, error) {
	holders, err := r.FindBy(ctx, field, value)
	if err != nil {
		return false, err
	}
	if excludeID == nil {
		return len(holders) == 0, nil
	}
	for _, rec := range holders {
		if fmt.Sprint(rec[r.tbl.PrimaryKey]) != fmt.Sprint(excludeID) {
			return false, nil
		}
	}
	return true, nil
}

// --- internals ---

// findRow locates the row whose primary key equals id and returns its
// zero-based position and decoded record. A missing id yields (-1, nil, nil).
func (r *Repository) findRow(ctx context.Context, id any) (int, tabular.Record, error) {
	pk, _ := r.tbl.Field(r.tbl.PrimaryKey)
	key, err := tabular.EncodeValue(pk, id)
	if err != nil {
		return -1, nil, err
	}

	pkIndex := 0
	for i := range r.tbl.Fields {
		if r.tbl.Fields[i].Name == pk.Name {
			pkIndex = i
			break
		}
	}

	rows, err := r.db.store.ReadAll(ctx, r.tbl.StorageName)
	if err != nil {
		return -1, nil, err
	}
	for i, row := range rows {
		if pkIndex < len(row) && row[pkIndex] == key {
			rec, err := tabular.DecodeRow(r.tbl, row)
			if err != nil {
				return -1, nil, err
			}
			return i, rec, nil
		}
	}
	return -1, nil, nil
}

// checkUnique verifies every unique field present in changed against the
// table, ignoring the record identified by excludeID. full supplies the
// values to check (the merged record on update).
func (r *Repository) checkUnique(ctx context.Context, changed, full tabular.Record, excludeID any) error {
	for i := range r.tbl.Fields {
		f := &r.tbl.Fields[i]
		if !f.Unique {
			continue
		}
		if _, supplied := changed[f.Name]; !supplied {
			continue
		}
		v, ok := full[f.Name]
		if !ok {
			continue
		}
		free, err := r.IsUnique(ctx, f.Name, v, excludeID)
		if err != nil {
			return err
		}
		if !free {
			return errs.Newf(errs.ErrKindConflict,
				"table %q: field %q already holds value %v", r.tbl.Name, f.Name, v)
		}
	}
	return nil
}

// checkForeignKeys verifies every supplied foreign-key value exists in its
// referenced table, against the current state of that table.
func (r *Repository) checkForeignKeys(ctx context.Context, rec tabular.Record) error {
	for i := range r.tbl.Fields {
		f := &r.tbl.Fields[i]
		if f.ForeignKey == nil {
			continue
		}
		v, ok := rec[f.Name]
		if !ok {
			continue
		}
		parent, err := r.db.Repo(f.ForeignKey.Table)
		if err != nil {
			return err
		}
		matches, err := parent.FindBy(ctx, f.ForeignKey.Field, v)
		if err != nil {
			return err
		}
		if len(matches) == 0 {
			return errs.Newf(errs.ErrKindForeignKey,
				"table %q: field %q references %s.%s = %v, which does not exist",
				r.tbl.Name, f.Name, f.ForeignKey.Table, f.ForeignKey.Field, v)
		}
	}
	return nil
}

// childrenOf returns the records of ref.Table whose ref.Field equals the
// parent record's referenced value.
func (r *Repository) childrenOf(ctx context.Context, ref schema.ChildRef, parent tabular.Record) ([]tabular.Record, error) {
	childRepo, err := r.db.Repo(ref.Table)
	if err != nil {
		return nil, err
	}
	return childRepo.FindBy(ctx, ref.Field, parent[ref.ParentField])
}

// compareValues orders two decoded field values: nil first, then numbers,
// booleans (false before true), and strings lexicographically. Mixed types
// fall back to their printed form.
func compareValues(a, b any) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return -1
	case b == nil:
		return 1
	}

	if na, ok := a.(float64); ok {
		if nb, ok := b.(float64); ok {
			switch {
			case na < nb:
				return -1
			case na > nb:
				return 1
			default:
				return 0
			}
		}
	}

	if ba, ok := a.(bool); ok {
		if bb, ok := b.(bool); ok {
			switch {
			case ba == bb:
				return 0
			case !ba:
				return -1
			default:
				return 1
			}
		}
	}

	sa, sb := fmt.Sprint(a), fmt.Sprint(b)
	switch {
	case sa < sb:
		return -1
	case sa > sb:
		return 1
	default:
		return 0
	}
}
