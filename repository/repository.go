package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/goliatone/go-crudcore/internal/dbinfra"
	"github.com/goliatone/go-crudcore/pagination"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/schema"
)

var (
	// ErrConstraintViolation is returned when a write breaks a uniqueness,
	// foreign key or not-null constraint.
	ErrConstraintViolation = errors.New("repository: constraint violation")
	// ErrResourceExhausted is returned when no connection could be obtained
	// within the acquire timeout, or the server refused one for capacity.
	ErrResourceExhausted = errors.New("repository: resource exhausted")
	// ErrInvalidFields is returned when a field map names a column the
	// model does not have or holds a value of the wrong type.
	ErrInvalidFields = errors.New("repository: invalid fields")
)

// Fields is an untyped column -> value map, keyed by the model's json names.
type Fields map[string]any

// Repository provides create/get/list over a single model type.
type Repository[T any] interface {
	// Create inserts a record built from data in its own transaction.
	Create(ctx context.Context, data Fields) (T, error)
	// Get returns the first record matching every filter equality. found is
	// false, with a nil error, when nothing matches.
	Get(ctx context.Context, filter Fields) (record T, found bool, err error)
	// List returns every record.
	List(ctx context.Context) ([]T, error)
	// Query returns an unexecuted select over the model's table for the
	// caller to compose further.
	Query() *bun.SelectQuery
	// Paginate returns one page of records, optionally filtered by
	// params.Query over the configured search columns.
	Paginate(ctx context.Context, params pagination.Params) (pagination.Page[T], error)
}

// DefaultAcquireTimeout is used when no WithAcquireTimeout option is given.
const DefaultAcquireTimeout = 5 * time.Second

// BunRepository implements Repository on top of bun. T must be a bun model
// struct type (not a pointer).
type BunRepository[T any] struct {
	db             *bun.DB
	table          *schema.Table
	acquireTimeout time.Duration
	searchColumns  []string
	orderColumn    string
}

var _ Repository[struct{}] = (*BunRepository[struct{}])(nil)

// Option configures a BunRepository.
type Option func(*options)

type options struct {
	acquireTimeout time.Duration
	searchColumns  []string
	orderColumn    string
}

// WithAcquireTimeout bounds how long an operation waits for a connection.
func WithAcquireTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.acquireTimeout = d
		}
	}
}

// WithSearchColumns sets the text columns matched by Params.Query.
func WithSearchColumns(columns ...string) Option {
	return func(o *options) {
		o.searchColumns = append([]string(nil), columns...)
	}
}

// WithOrderColumn sets the column Paginate sorts on. Defaults to the
// primary key.
func WithOrderColumn(column string) Option {
	return func(o *options) {
		o.orderColumn = column
	}
}

// New returns a repository for model T.
func New[T any](db *bun.DB, opts ...Option) (*BunRepository[T], error) {
	typ := reflect.TypeFor[T]()
	if typ.Kind() != reflect.Struct {
		return nil, fmt.Errorf("repository: model must be a struct, got %s", typ)
	}

	o := options{acquireTimeout: DefaultAcquireTimeout}
	for _, opt := range opts {
		opt(&o)
	}

	table := db.Table(typ)
	if len(table.PKs) == 0 {
		return nil, fmt.Errorf("repository: model %s has no primary key", typ)
	}

	if o.orderColumn == "" {
		o.orderColumn = table.PKs[0].Name
	}
	for _, col := range append([]string{o.orderColumn}, o.searchColumns...) {
		if !table.HasField(col) {
			return nil, fmt.Errorf("%w: %s.%s", ErrInvalidFields, table.Name, col)
		}
	}

	return &BunRepository[T]{
		db:             db,
		table:          table,
		acquireTimeout: o.acquireTimeout,
		searchColumns:  o.searchColumns,
		orderColumn:    o.orderColumn,
	}, nil
}

// DB returns the underlying database handle.
func (r *BunRepository[T]) DB() *bun.DB {
	return r.db
}

// TableName returns the model's table name.
func (r *BunRepository[T]) TableName() string {
	return r.table.Name
}

// Create decodes data into a new T and inserts it. The transaction is
// rolled back on any failure, including a panic in a model hook.
func (r *BunRepository[T]) Create(ctx context.Context, data Fields) (T, error) {
	var zero T

	rec := new(T)
	if err := decodeFields(data, rec); err != nil {
		return zero, err
	}

	conn, err := r.acquire(ctx)
	if err != nil {
		return zero, err
	}
	defer conn.Close()

	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return zero, r.translate(err)
	}

	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	if _, err := tx.NewInsert().Model(rec).Exec(ctx); err != nil {
		return zero, r.translate(err)
	}

	if err := tx.Commit(); err != nil {
		return zero, r.translate(err)
	}
	committed = true

	return *rec, nil
}

// Get returns the first record whose columns equal filter. Filter keys are
// applied in sorted order so equal filters produce identical SQL.
func (r *BunRepository[T]) Get(ctx context.Context, filter Fields) (T, bool, error) {
	var zero T

	if err := r.checkColumns(filter); err != nil {
		return zero, false, err
	}

	conn, err := r.acquire(ctx)
	if err != nil {
		return zero, false, err
	}
	defer conn.Close()

	rec := new(T)
	q := conn.NewSelect().Model(rec)
	for _, key := range sortedKeys(filter) {
		if v := filter[key]; v == nil {
			q = q.Where("?TableAlias.? IS NULL", bun.Ident(key))
		} else {
			q = q.Where("?TableAlias.? = ?", bun.Ident(key), v)
		}
	}

	if err := q.Limit(1).Scan(ctx); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return zero, false, nil
		}
		return zero, false, r.translate(err)
	}

	return *rec, true, nil
}

// List returns every record ordered by primary key.
func (r *BunRepository[T]) List(ctx context.Context) ([]T, error) {
	conn, err := r.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	items := []T{}
	err = conn.NewSelect().
		Model((*T)(nil)).
		OrderExpr("?TableAlias.? ASC", bun.Ident(r.table.PKs[0].Name)).
		Scan(ctx, &items)
	if err != nil {
		return nil, r.translate(err)
	}
	return items, nil
}

// Query returns a select over T bound to the pool. The caller executes it,
// so the acquire timeout does not apply.
func (r *BunRepository[T]) Query() *bun.SelectQuery {
	return r.db.NewSelect().Model((*T)(nil))
}

// Paginate counts the matching rows, then fetches the requested window.
// A page past the end returns no items rather than an error.
func (r *BunRepository[T]) Paginate(ctx context.Context, params pagination.Params) (pagination.Page[T], error) {
	if err := params.Validate(); err != nil {
		return pagination.Page[T]{}, err
	}

	conn, err := r.acquire(ctx)
	if err != nil {
		return pagination.Page[T]{}, err
	}
	defer conn.Close()

	total, err := r.filtered(&conn, params.Query).Count(ctx)
	if err != nil {
		return pagination.Page[T]{}, r.translate(err)
	}

	w, err := pagination.Compute(total, params.Page, params.Size)
	if err != nil {
		return pagination.Page[T]{}, err
	}

	items := []T{}
	if !w.Empty {
		dir := "DESC"
		if params.Order == pagination.Asc {
			dir = "ASC"
		}
		err = r.filtered(&conn, params.Query).
			OrderExpr("?TableAlias.? "+dir, bun.Ident(r.orderColumn)).
			Offset(w.Offset).
			Limit(w.Limit).
			Scan(ctx, &items)
		if err != nil {
			return pagination.Page[T]{}, r.translate(err)
		}
	}

	return pagination.NewPage(items, total, params.Page, params.Size, w), nil
}

func (r *BunRepository[T]) filtered(db bun.IDB, search string) *bun.SelectQuery {
	q := db.NewSelect().Model((*T)(nil))
	if search == "" || len(r.searchColumns) == 0 {
		return q
	}

	pattern := "%" + strings.ToLower(search) + "%"
	return q.WhereGroup(" AND ", func(q *bun.SelectQuery) *bun.SelectQuery {
		for _, col := range r.searchColumns {
			q = q.WhereOr("LOWER(?TableAlias.?) LIKE ?", bun.Ident(col), pattern)
		}
		return q
	})
}

// acquire takes a dedicated connection from the pool, waiting at most
// acquireTimeout. Only the wait is bounded; the returned connection is
// used with the caller's ctx.
func (r *BunRepository[T]) acquire(ctx context.Context) (bun.Conn, error) {
	acquireCtx, cancel := context.WithTimeout(ctx, r.acquireTimeout)
	defer cancel()

	conn, err := r.db.Conn(acquireCtx)
	if err != nil {
		if ctx.Err() != nil {
			return bun.Conn{}, ctx.Err()
		}
		if errors.Is(err, context.DeadlineExceeded) {
			return bun.Conn{}, fmt.Errorf("%w: no connection within %s", ErrResourceExhausted, r.acquireTimeout)
		}
		return bun.Conn{}, r.translate(err)
	}
	return conn, nil
}

func (r *BunRepository[T]) translate(err error) error {
	switch dbinfra.Classify(err) {
	case dbinfra.ClassConstraint:
		return fmt.Errorf("%w: %v", ErrConstraintViolation, err)
	case dbinfra.ClassExhausted:
		return fmt.Errorf("%w: %v", ErrResourceExhausted, err)
	}
	return err
}

func (r *BunRepository[T]) checkColumns(filter Fields) error {
	for key := range filter {
		if !r.table.HasField(key) {
			return fmt.Errorf("%w: %s.%s", ErrInvalidFields, r.table.Name, key)
		}
	}
	return nil
}

func decodeFields(data Fields, dst any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "json",
		ErrorUnused:      true,
		WeaklyTypedInput: true,
		Result:           dst,
		DecodeHook:       mapstructure.StringToTimeHookFunc(time.RFC3339),
	})
	if err != nil {
		return err
	}
	if err := dec.Decode(map[string]any(data)); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidFields, err)
	}
	return nil
}

func sortedKeys(m Fields) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
