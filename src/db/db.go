package db

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/wumpus-archiver/archiver/src/oops"
)

/*
A general error to be used when no results are found. This is the error returned
by QueryOne, and can generally be used by other database helpers that fetch a single
result but find nothing.
*/
var NotFound = errors.New("not found")

/*
Performs a SQL query and returns a slice of all the result rows. The query is
just plain SQL, but make sure to read the package documentation for details.
You must explicitly provide the type argument - this is how it knows what Go
type to map the results to, and it cannot be inferred.

Struct types are scanned by column name using their `db` tags. Any other type
is scanned from the first and only column.

This function always returns pointers to the values. This is convenient for
structs, but for other types, you may wish to use QueryScalar.
*/
func Query[T any](
	ctx context.Context,
	conn ConnOrTx,
	query string,
	args ...any,
) ([]*T, error) {
	rows, err := conn.Query(ctx, compileQuery[T](query), args...)
	if err != nil {
		return nil, err
	}
	if isStructType(reflect.TypeOf((*T)(nil)).Elem()) {
		return pgx.CollectRows(rows, pgx.RowToAddrOfStructByName[T])
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (*T, error) {
		v, err := pgx.RowTo[T](row)
		return &v, err
	})
}

/*
Identical to Query, but returns only the first result row. If there are no
rows in the result set, returns NotFound.
*/
func QueryOne[T any](
	ctx context.Context,
	conn ConnOrTx,
	query string,
	args ...any,
) (*T, error) {
	results, err := Query[T](ctx, conn, query, args...)
	if err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return nil, NotFound
	}
	return results[0], nil
}

/*
Identical to Query, but returns concrete values instead of pointers. More convenient
for primitive types.
*/
func QueryScalar[T any](
	ctx context.Context,
	conn ConnOrTx,
	query string,
	args ...any,
) ([]T, error) {
	rows, err := conn.Query(ctx, compileQuery[T](query), args...)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[T])
}

/*
Identical to QueryScalar, but returns only the first result value. If there are
no rows in the result set, returns NotFound.
*/
func QueryOneScalar[T any](
	ctx context.Context,
	conn ConnOrTx,
	query string,
	args ...any,
) (T, error) {
	var zero T
	results, err := QueryScalar[T](ctx, conn, query, args...)
	if err != nil {
		return zero, err
	}
	if len(results) == 0 {
		return zero, NotFound
	}
	return results[0], nil
}

var reColumnsPlaceholder = regexp.MustCompile(`\$columns({(.*?)})?`)

func compileQuery[T any](query string) string {
	columnsMatch := reColumnsPlaceholder.FindStringSubmatch(query)
	if columnsMatch == nil {
		return query
	}

	destType := reflect.TypeOf((*T)(nil)).Elem()
	if !isStructType(destType) {
		panic(fmt.Errorf("$columns can only be used when querying into a struct; using %s", destType))
	}

	prefix := ""
	if len(columnsMatch) == 3 && columnsMatch[2] != "" {
		prefix = columnsMatch[2] + "."
	}

	names := ColumnNames(destType)
	prefixed := make([]string, len(names))
	for i, name := range names {
		prefixed[i] = prefix + name
	}
	return strings.Replace(query, columnsMatch[0], strings.Join(prefixed, ", "), 1)
}

// ColumnNames returns the `db` tag of every exported, tagged field of a
// struct type, in field order.
func ColumnNames(t reflect.Type) []string {
	names, _ := columnNamesAndIndexes(t)
	return names
}

// ColumnValues returns the values of the tagged fields of a struct (or
// pointer to struct), matching the order of ColumnNames.
func ColumnValues(v any) []any {
	val := reflect.Indirect(reflect.ValueOf(v))
	_, indexes := columnNamesAndIndexes(val.Type())
	values := make([]any, len(indexes))
	for i, idx := range indexes {
		values[i] = val.Field(idx).Interface()
	}
	return values
}

func columnNamesAndIndexes(t reflect.Type) (names []string, indexes []int) {
	if !isStructType(t) {
		panic(oops.New(nil, "%s is not a struct type", t))
	}
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if !field.IsExported() {
			continue
		}
		tag, ok := field.Tag.Lookup("db")
		if !ok || tag == "-" {
			continue
		}
		names = append(names, tag)
		indexes = append(indexes, i)
	}
	return names, indexes
}

func isStructType(t reflect.Type) bool {
	return t.Kind() == reflect.Struct && t != reflect.TypeOf(time.Time{})
}
