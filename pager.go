package keypager

import (
	"database/sql/driver"
	"fmt"
	"slices"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// RawPager is intended for API payloads. For proper code generation, inline it:
//
//	type MyFilter struct {
//	    Paging RawPager `json:",inline"`
//	}
type RawPager struct {
	// Limit - maximum number of records to return in the response.
	Limit int `json:"limit"`
	// Keyset - token obtained via Keyset.String().
	// If empty, the first page with Limit records is returned.
	Keyset string `json:"keyset"`
	// Backward - fetch the page preceding Keyset instead of the following one.
	Backward bool `json:"backward"`
}

// Decode converts RawPager into *Pager, normalizing Limit and validating
// Keyset. The returned pager is sorted by orderBy.
func (p RawPager) Decode(orderBy ...OrderBy) (*Pager, error) {
	direction := Forward
	if p.Backward {
		direction = Backward
	}

	return DecodePager(p.Limit, p.Keyset, direction, orderBy...)
}

// Pager holds everything needed to fetch one page: the keyset, the
// direction of travel, the limit and the declared sort.
type Pager struct {
	config     Config
	direction  PageDirection
	lookahead  bool
	countTotal bool
	limit      int
	keyset     *Keyset
	sort       Orderings
	identity   []string
}

// NewPager returns a pager with DefaultConfig: forward, first page, limit
// taken from the query or the configured default.
func NewPager() *Pager {
	return new(Pager).WithConfig(DefaultConfig())
}

// DecodePager decodes a keyset token into *Pager.
func DecodePager(limit int, rawKeyset string, direction PageDirection, orderBy ...OrderBy) (*Pager, error) {
	keyset, err := DecodeKeyset(rawKeyset)
	if err != nil {
		return nil, err
	}

	return NewPager().
		WithKeyset(keyset).
		WithDirection(direction).
		WithSubstitutedSort(orderBy...).
		WithLimit(limit), nil
}

// WithConfig replaces the configuration. Lookahead and total counting are
// reset to the configured defaults.
func (p *Pager) WithConfig(cfg Config) *Pager {
	if p == nil {
		p = new(Pager)
	}

	p.config = cfg.normalized()
	p.lookahead = p.config.Lookahead
	p.countTotal = p.config.CountTotal

	return p
}

// WithLookahead enables lookahead pagination, which fetches one extra row
// to determine whether the current page is the last.
//
// IMPORTANT:
// Cannot be used together with WithUnlimited() or WithLimit(NoLimit).
func (p *Pager) WithLookahead() *Pager {
	if p == nil {
		p = NewPager()
	}

	p.lookahead = true

	return p
}

// WithTotal enables counting every row the query matches, ignoring the
// keyset and the limit.
func (p *Pager) WithTotal() *Pager {
	if p == nil {
		p = NewPager()
	}

	p.countTotal = true

	return p
}

// WithUnlimited allows returning all records without a limit.
//
// IMPORTANT:
// Cannot be used together with WithLookahead.
func (p *Pager) WithUnlimited() *Pager {
	if p == nil {
		p = NewPager()
	}

	p.limit = NoLimit

	return p
}

// WithLimit sets the maximum number of returned records.
//
// IMPORTANT:
//   - NoLimit cannot be used together with WithLookahead.
//   - Zero leaves the limit unset: the query's own LIMIT is used, or the
//     configured default when the query has none.
//   - Any other value is normalized with the configured default and maximum.
func (p *Pager) WithLimit(limit int) *Pager {
	if p == nil {
		p = NewPager()
	}

	switch {
	case limit == NoLimit:
		return p.WithUnlimited()
	case limit == 0:
		p.limit = 0
	default:
		p.limit = p.config.NormalizeLimit(limit)
	}

	return p
}

// WithKeyset sets the keyset explicitly. nil requests the first page.
func (p *Pager) WithKeyset(keyset *Keyset) *Pager {
	if p == nil {
		p = NewPager()
	}

	p.keyset = keyset

	return p
}

// WithDirection sets the direction of travel relative to the keyset.
func (p *Pager) WithDirection(direction PageDirection) *Pager {
	if p == nil {
		p = NewPager()
	}

	p.direction = direction

	return p
}

// WithIdentity sets the columns ordering the dataset when no sort is
// declared. By default the primary key of the query's model is used.
func (p *Pager) WithIdentity(columns ...string) *Pager {
	if p == nil {
		p = NewPager()
	}

	p.identity = columns

	return p
}

// WithSubstitutedSort resets previous orderings and applies the provided ones.
func (p *Pager) WithSubstitutedSort(orderBy ...OrderBy) *Pager {
	if p == nil {
		p = NewPager()
	}

	p.sort = nil

	return p.WithSort(orderBy...)
}

// WithSort appends sort orderings without overwriting existing ones.
// Order is preserved as if calling:
//
//	OrderBy(o1).ThenBy(o2).ThenBy(o3)...
//
// When the pager has no sort, the ORDER BY of the paginated query is used.
func (p *Pager) WithSort(orderBy ...OrderBy) *Pager {
	if p == nil {
		p = NewPager()
	}

	for _, o := range orderBy {
		idx := slices.IndexFunc(p.sort, func(processed OrderBy) bool {
			return processed.Column == o.Column
		})

		// Remove previous occurrence (avoid duplication).
		if idx != -1 {
			p.sort = slices.Delete(p.sort, idx, idx+1)
		}

		p.sort = append(p.sort, o)
	}

	return p
}

// Paginate applies pagination to the dataset: the execution order, the seek
// condition and the limit. Returns an error if pagination cannot be applied.
// The caller's query is left untouched.
func (p *Pager) Paginate(db *gorm.DB) (*gorm.DB, error) {
	prepared, err := p.prepare(db)
	if err != nil {
		return nil, err
	}

	return prepared.query, nil
}

// ToSQL returns the seek condition as an SQL expression with "?"
// placeholders. The sort must be set on the pager; without it the configured
// identity columns are used. Returns "TRUE" when there is no keyset.
//
// Usage:
//
//	where, args, err := p.ToSQL()
//	query := fmt.Sprintf("SELECT * FROM table WHERE %s ORDER BY %s LIMIT %d", where, order, limit)
func (p *Pager) ToSQL() (string, []driver.Value, error) {
	if p == nil {
		p = NewPager()
	}

	resolution := ResolveSortKey(p.sort, p.identityOr(p.config.normalized().IdentityColumns))
	predicate, err := p.seekPredicate(resolution)
	if err != nil {
		return "", nil, err
	}

	if predicate == nil {
		return "TRUE", nil, nil
	}

	sqlClause, args := predicate.toSQLClause()

	return sqlClause, args, nil
}

// GetSort returns the declared orderings of the pager.
func (p *Pager) GetSort() Orderings {
	if p == nil {
		return nil
	}

	return p.sort
}

// GetKeyset returns the keyset stored in the pager as-is.
func (p *Pager) GetKeyset() *Keyset {
	if p == nil {
		return nil
	}

	return p.keyset
}

// GetDirection returns the direction of travel.
func (p *Pager) GetDirection() PageDirection {
	if p == nil {
		return Forward
	}

	return p.direction
}

// IsUnlimited returns true if the limit equals NoLimit (unbounded number of records).
func (p *Pager) IsUnlimited() bool {
	if p == nil {
		return false
	}

	return p.limit == NoLimit
}

// IsLookahead returns true if lookahead pagination is enabled.
func (p *Pager) IsLookahead() bool {
	if p == nil {
		return false
	}

	return p.lookahead
}

// IsCountingTotal returns true if pages carry the total row count.
func (p *Pager) IsCountingTotal() bool {
	if p == nil {
		return false
	}

	return p.countTotal
}

// GetLimit returns the limit as it is stored in the pager.
// Zero means unset, NoLimit means no limit.
func (p *Pager) GetLimit() int {
	if p == nil {
		return 0
	}

	return p.limit
}

// GetDatasetLimit returns the limit adjusted for lookahead:
//   - if Lookahead = true → limit + 1
//   - if Lookahead = false → limit
func (p *Pager) GetDatasetLimit(limit int) int {
	if p.IsLookahead() && limit != NoLimit {
		return limit + 1
	}

	return limit
}

func (p *Pager) validate() error {
	if p == nil {
		return fmt.Errorf("pager is nil")
	}

	if p.limit == NoLimit && p.lookahead {
		return fmt.Errorf("cannot apply lookahead to unlimited paging")
	}

	if p.direction != Forward && p.direction != Backward {
		return fmt.Errorf("invalid page direction %d", p.direction)
	}

	return nil
}

func (p *Pager) identityOr(fallback []string) []string {
	if len(p.identity) > 0 {
		return p.identity
	}

	return fallback
}

// clone returns a shallow copy safe to reconfigure with With* methods.
func (p *Pager) clone() *Pager {
	if p == nil {
		return NewPager()
	}

	c := *p
	c.sort = slices.Clone(p.sort)
	c.identity = slices.Clone(p.identity)

	return &c
}

// preparedQuery is a query ready to be executed for one page.
type preparedQuery struct {
	resolution SortResolution
	query      *gorm.DB
	// count is the snapshot for the total row count, nil when disabled.
	count *gorm.DB
	// limit is the page limit before lookahead, NoLimit for none.
	limit int
}

func (p *Pager) prepare(db *gorm.DB) (*preparedQuery, error) {
	if err := p.validate(); err != nil {
		return nil, fmt.Errorf("cannot paginate: %w", err)
	}

	declared := p.sort
	if len(declared) == 0 {
		var err error
		if declared, err = DeclaredOrderings(db); err != nil {
			return nil, fmt.Errorf("cannot paginate: %w", err)
		}
	}

	cfg := p.config.normalized()

	identity := p.identity
	if len(identity) == 0 {
		identity = identityColumns(db, cfg.IdentityColumns)
	}

	resolution := ResolveSortKey(declared, identity)
	if len(resolution.SortKey) > 0 {
		if err := resolution.SortKey.validate(); err != nil {
			return nil, fmt.Errorf("cannot paginate: %w", err)
		}
	}

	predicate, err := p.seekPredicate(resolution)
	if err != nil {
		return nil, fmt.Errorf("cannot paginate: %w", err)
	}

	executionOrder := resolution.ExecutionOrder(p.direction)
	cfg.Logger.Debug("resolved sort key",
		zap.Strings("sort_key", resolution.SortKey.ToSQLSlice()),
		zap.Strings("execution_order", executionOrder.ToSQLSlice()),
		zap.Bool("from_identity", resolution.FromIdentity),
		zap.Stringer("direction", p.direction),
	)

	ret := &preparedQuery{
		resolution: resolution,
		query:      executionOrder.Replace(db),
		limit:      p.pageLimit(db, cfg.DefaultLimit),
	}

	// The total reflects caller filters only, so the snapshot is taken before
	// the seek condition and without LIMIT/OFFSET.
	if p.countTotal {
		ret.count = cloneQuery(ret.query)
		delete(ret.count.Statement.Clauses, "LIMIT")
	}

	if predicate != nil {
		ret.query = ret.query.Clauses(predicate.toGORMExpression())
	}

	if ret.limit != NoLimit {
		ret.query = ret.query.Limit(p.GetDatasetLimit(ret.limit))
	}

	return ret, nil
}

// seekPredicate decodes the boundary the page seeks from and compiles it.
// Returns nil when there is no boundary, i.e. for the first page.
func (p *Pager) seekPredicate(resolution SortResolution) (tPredicate, error) {
	position, err := decodeBoundary(p.keyset.seekPosition(p.direction), resolution.SortKey)
	if err != nil {
		return nil, err
	}

	if position == nil {
		return nil, nil
	}

	if err = resolution.SortKey.validate(); err != nil {
		return nil, err
	}

	return compileSeek(seekElements(resolution, position, p.direction), nil), nil
}

// pageLimit returns the pager's limit, else the LIMIT already set on the
// query, else defaultLimit.
func (p *Pager) pageLimit(db *gorm.DB, defaultLimit int) int {
	if p.limit != 0 {
		return p.limit
	}

	if c, ok := db.Statement.Clauses["LIMIT"]; ok {
		if limit, ok := c.Expression.(clause.Limit); ok && limit.Limit != nil && *limit.Limit > 0 {
			return *limit.Limit
		}
	}

	return defaultLimit
}

// IsLastPage returns true if the result set is the last page in the dataset.
//
// The last page is determined by one of two conditions:
//  1. The number of returned records is less than the limit.
//  2. Lookahead = true and the number of returned records is less than or
//     equal to the limit.
func IsLastPage[T any](pager *Pager, limit int, resultSet []T) bool {
	if limit == NoLimit {
		return true
	}

	return len(resultSet) < limit ||
		(pager.IsLookahead() && len(resultSet) <= limit)
}

// TrimResultSet trims the result set to what should be returned to the client.
//
// If lookahead = true and the extra record was fetched, drop it. Suppose
// limit = 2 and resultSet = [a, b, c].
//
//   - With lookahead → resultSet becomes [a, b].
//   - Without lookahead → resultSet remains unchanged.
func TrimResultSet[T any](pager *Pager, limit int, resultSet []T) []T {
	if pager.IsLookahead() && limit != NoLimit && len(resultSet) > limit {
		resultSet = resultSet[:limit]
	}

	return resultSet
}
