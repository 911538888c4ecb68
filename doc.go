// Package keypager provides keyset (cursor) pagination for GORM.
//
// Overview
//
// Keyset pagination seeks past the sort key values of a boundary row instead
// of skipping rows with OFFSET. Pages stay stable under concurrent inserts
// and deletes, and the cost of a page does not grow with its position.
//
// Key concepts
//   - Orderings: the sort key, read from the pager or from the query's
//     ORDER BY. Without either the primary key of the model is used.
//   - Keyset: the boundary points of the first and last row of a page. It
//     travels as an opaque URL safe token.
//   - Pager: fetches the page after a keyset (Forward) or before it
//     (Backward), optionally with lookahead and a total row count.
//   - Fetch and Pageable: run a paginated query and build the next keyset.
//
// A multi-column sort key is compiled to a lexicographic seek condition. For
// ORDER BY age DESC, id ASC and a boundary (30, 5):
//
//	age <= 30 AND (age < 30 OR id > 5)
//
// Usage:
//
//	pager := keypager.NewPager().
//		WithSort(keypager.OrderBy{Column: "age", Direction: keypager.DirectionDESC}).
//		WithSort(keypager.OrderBy{Column: "id", Direction: keypager.DirectionASC}).
//		WithLimit(20)
//
//	page, err := keypager.Fetch[User](ctx, db.Model(&User{}).Where("active"), pager, nil)
//	next := pager.WithKeyset(page.Keyset)
package keypager
