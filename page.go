package keypager

import (
	"context"
	"fmt"
	"reflect"
	"slices"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

// Page is one page of a keyset paginated result set.
type Page[T any] struct {
	// Items in declared sort order, also for backward pages.
	Items []T `json:"items"`
	// Keyset bounds Items. Pass it back to fetch the next or previous page.
	// For an empty page it is the keyset the page was requested with.
	Keyset *Keyset `json:"keyset,omitempty"`
	// Total number of rows matching the query's own filters, regardless of
	// the keyset. Set only when total counting is enabled.
	Total *int64 `json:"total,omitempty"`
	// AppliedLimit effective limit used for the query, NoLimit for none.
	AppliedLimit int `json:"limit"`
	// HasMore reports whether rows follow the page in the direction it was
	// fetched. Exact with lookahead, an estimate from the page size otherwise.
	HasMore bool `json:"hasMore"`
}

// Pageable is the pagination capability over a query: fetch the page after
// a keyset, or the page before it.
type Pageable[T any] interface {
	// Page fetches the page following keyset. A nil keyset fetches the first
	// page, a zero limit falls back to the pager's limit.
	Page(ctx context.Context, keyset *Keyset, limit int) (*Page[T], error)
	// PreviousPage fetches the page preceding keyset. limit behaves as in
	// Page; pass the limit the keyset's page was fetched with to step back
	// symmetrically.
	PreviousPage(ctx context.Context, keyset *Keyset, limit int) (*Page[T], error)
}

type gormPageable[T any] struct {
	db      *gorm.DB
	pager   *Pager
	getters Getters[T]
}

// NewPageable binds a query to a pager template. The template supplies the
// sort, limit and options; keyset and direction are set per call. getters may
// be nil when T is a gorm model or a map[string]any.
func NewPageable[T any](db *gorm.DB, pager *Pager, getters Getters[T]) Pageable[T] {
	return &gormPageable[T]{
		db:      db,
		pager:   pager.clone(),
		getters: getters,
	}
}

func (g *gormPageable[T]) Page(ctx context.Context, keyset *Keyset, limit int) (*Page[T], error) {
	pager := g.pager.clone().
		WithKeyset(keyset).
		WithDirection(Forward)

	if limit != 0 {
		pager = pager.WithLimit(limit)
	}

	return Fetch(ctx, g.db, pager, g.getters)
}

func (g *gormPageable[T]) PreviousPage(ctx context.Context, keyset *Keyset, limit int) (*Page[T], error) {
	pager := g.pager.clone().
		WithKeyset(keyset).
		WithDirection(Backward)

	if limit != 0 {
		pager = pager.WithLimit(limit)
	}

	return Fetch(ctx, g.db, pager, g.getters)
}

// Fetch paginates db with pager and executes it. The total row count, when
// enabled, runs concurrently with the page query. Store errors are returned
// as they come from gorm.
//
// A query naming neither a model nor a table is run against T, so its
// primary key orders the page when no sort is declared.
func Fetch[T any](ctx context.Context, db *gorm.DB, pager *Pager, getters Getters[T]) (*Page[T], error) {
	db = withRowModel[T](db)

	prepared, err := pager.prepare(db)
	if err != nil {
		return nil, err
	}

	extract, err := boundaryExtractor(db, prepared.resolution.SortKey, getters)
	if err != nil {
		return nil, fmt.Errorf("cannot build keyset: %w", err)
	}

	var (
		rows  []T
		total int64
	)

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return prepared.query.WithContext(groupCtx).Find(&rows).Error
	})
	if prepared.count != nil {
		group.Go(func() error {
			return prepared.count.WithContext(groupCtx).Count(&total).Error
		})
	}

	if err = group.Wait(); err != nil {
		return nil, err
	}

	page := &Page[T]{
		AppliedLimit: prepared.limit,
		HasMore:      !IsLastPage(pager, prepared.limit, rows),
	}
	rows = TrimResultSet(pager, prepared.limit, rows)

	page.Keyset, err = encodeKeyset(rows, prepared.resolution.SortKey, pager.direction, extract, pager.keyset)
	if err != nil {
		return nil, fmt.Errorf("cannot build keyset: %w", err)
	}

	// Backward pages are executed in reverse order.
	if pager.direction == Backward {
		slices.Reverse(rows)
	}
	page.Items = rows

	if prepared.count != nil {
		page.Total = &total
	}

	pager.config.normalized().Logger.Debug("page fetched",
		zap.Stringer("direction", pager.direction),
		zap.Int("rows", len(rows)),
		zap.Int("limit", prepared.limit),
		zap.Bool("has_more", page.HasMore),
		zap.Int64p("total", page.Total),
	)

	return page, nil
}

// withRowModel returns a copy of db with T as its model when db names
// neither a model nor a table and T is a struct.
func withRowModel[T any](db *gorm.DB) *gorm.DB {
	if db == nil || db.Statement == nil {
		return db
	}

	stmt := db.Statement
	if stmt.Model != nil || stmt.Table != "" || stmt.TableExpr != nil {
		return db
	}

	rowType := reflect.TypeOf((*T)(nil)).Elem()
	for rowType.Kind() == reflect.Pointer {
		rowType = rowType.Elem()
	}

	if rowType.Kind() != reflect.Struct {
		return db
	}

	return cloneQuery(db).Model(reflect.New(rowType).Interface())
}
