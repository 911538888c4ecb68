package keypager

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"sync"

	"gorm.io/gorm"
	"gorm.io/gorm/schema"
)

// Getters - map of value getters for a model, keyed by sort key column. Rows
// without a getter for some column fall back to the model's gorm schema.
// Example:
//
//	keypager.Getters[models.PlayerPushTarget]{
//		"id":          func(row models.PlayerPushTarget) any { return row.ID },
//		"deposit_sum": func(row models.PlayerPushTarget) any { return row.DepositSum },
//	}
type Getters[T any] map[string]func(T) any

var _schemaCache sync.Map

// decodeBoundary turns a raw boundary point into a column to value mapping
// covering the whole sort key.
func decodeBoundary(raw any, sortKey Orderings) (map[string]any, error) {
	if raw == nil {
		return nil, nil
	}

	// Single column keys carry a bare value. A map keyed by that column is
	// accepted as well.
	if len(sortKey) == 1 {
		column := sortKey[0].Column
		if m, ok := raw.(map[string]any); ok {
			value, ok := m[column]
			if !ok {
				return nil, &MissingKeysError{Columns: []string{column}}
			}

			return map[string]any{column: normalizeValue(value)}, nil
		}

		return map[string]any{column: normalizeValue(raw)}, nil
	}

	position, ok := raw.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: seek position must be an object for a %d column sort key", ErrMalformedCursor, len(sortKey))
	}

	var missing []string
	ret := make(map[string]any, len(sortKey))
	for _, orderBy := range sortKey {
		value, ok := position[orderBy.Column]
		if !ok {
			missing = append(missing, orderBy.Column)
			continue
		}

		ret[orderBy.Column] = normalizeValue(value)
	}

	if len(missing) > 0 {
		return nil, &MissingKeysError{Columns: missing}
	}

	return ret, nil
}

// normalizeValue restores the Go type of a number that went through the JSON
// token: int64, uint64 or float64, whichever holds it without loss. Time
// values are restored when the token is decoded; strings stay strings.
func normalizeValue(v any) any {
	if n, ok := v.(json.Number); ok {
		return parseNumber(n)
	}

	return v
}

func parseNumber(n json.Number) any {
	if i, err := n.Int64(); err == nil {
		return i
	}

	if u, err := strconv.ParseUint(n.String(), 10, 64); err == nil {
		return u
	}

	if f, err := n.Float64(); err == nil {
		return f
	}

	return n.String()
}

// encodeKeyset derives the outgoing keyset from the rows of a page, given in
// the order they were executed. Backward pages were executed in reverse, so
// their first boundary is the last row. An empty page passes the previous
// keyset through.
func encodeKeyset[T any](rows []T, sortKey Orderings, direction PageDirection, extract func(T) (any, error), previous *Keyset) (*Keyset, error) {
	if len(rows) == 0 {
		return previous, nil
	}

	start, end := rows[0], rows[len(rows)-1]
	if direction == Backward {
		start, end = end, start
	}

	first, err := extract(start)
	if err != nil {
		return nil, err
	}

	last, err := extract(end)
	if err != nil {
		return nil, err
	}

	return &Keyset{First: first, Last: last}, nil
}

// boundaryExtractor builds the function that turns a row into its boundary
// point. One column sort keys produce the bare value.
func boundaryExtractor[T any](db *gorm.DB, sortKey Orderings, getters Getters[T]) (func(T) (any, error), error) {
	columns := make([]func(T) (any, error), 0, len(sortKey))
	for _, orderBy := range sortKey {
		getter, err := columnGetter(db, orderBy.Column, getters)
		if err != nil {
			return nil, err
		}

		columns = append(columns, getter)
	}

	return func(row T) (any, error) {
		if len(sortKey) == 1 {
			return columns[0](row)
		}

		ret := make(map[string]any, len(sortKey))
		for i, orderBy := range sortKey {
			value, err := columns[i](row)
			if err != nil {
				return nil, err
			}

			ret[orderBy.Column] = value
		}

		return ret, nil
	}, nil
}

// columnGetter resolves how a column value is read from a row: an explicit
// getter, a map lookup for map rows, or the field of the row's gorm schema.
func columnGetter[T any](db *gorm.DB, column string, getters Getters[T]) (func(T) (any, error), error) {
	if getter, ok := getters[column]; ok {
		return func(row T) (any, error) { return getter(row), nil }, nil
	}

	var zero T
	if _, ok := any(zero).(map[string]any); ok {
		return func(row T) (any, error) {
			m := any(row).(map[string]any)
			for _, name := range columnNameCandidates(column) {
				if value, ok := m[name]; ok {
					return value, nil
				}
			}

			return nil, fmt.Errorf("row has no value for column '%s'", column)
		}, nil
	}

	var namer schema.Namer = schema.NamingStrategy{}
	if db != nil && db.Config != nil && db.NamingStrategy != nil {
		namer = db.NamingStrategy
	}

	s, err := schema.Parse(new(T), &_schemaCache, namer)
	if err != nil {
		return nil, fmt.Errorf("cannot find getter for column '%s' met in ordering: %w", column, err)
	}

	var field *schema.Field
	for _, name := range columnNameCandidates(column) {
		if field = s.LookUpField(name); field != nil {
			break
		}
	}

	if field == nil {
		return nil, fmt.Errorf("cannot find getter for column '%s' met in ordering", column)
	}

	return func(row T) (any, error) {
		value, _ := field.ValueOf(context.Background(), reflect.ValueOf(row))
		return value, nil
	}, nil
}

// columnNameCandidates returns the column itself and its unqualified, unquoted
// name: `"users"."id"` yields `"users"."id"` and `id`.
func columnNameCandidates(column string) []string {
	name := column
	if idx := strings.LastIndex(name, "."); idx != -1 {
		name = name[idx+1:]
	}

	name = strings.Trim(name, "`\"'")
	if name == column {
		return []string{column}
	}

	return []string{column, name}
}
