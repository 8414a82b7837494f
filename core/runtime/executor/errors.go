package executor

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/mattn/go-sqlite3"
	"go.mongodb.org/mongo-driver/v2/mongo"

	"github.com/hyperterse/queryengine/core/domain"
)

// validationError is the known error of a request that does not fit the
// query schema. path locates the offending argument.
func validationError(path string, format string, args ...any) *domain.KnownError {
	msg := fmt.Sprintf(format, args...)
	return domain.NewKnownError(domain.CodeQueryValidation,
		fmt.Sprintf("Failed to validate the query: `%s` at `%s`", msg, path),
		map[string]any{"query_validation_error": msg, "query_position": path})
}

func recordNotFound(model, cause string) *domain.KnownError {
	return domain.NewKnownError(domain.CodeRecordNotFound,
		"An operation failed because it depends on one or more records that were required but not found. "+cause,
		map[string]any{"modelName": model, "cause": cause})
}

func notFoundOrThrow(model string) *domain.KnownError {
	return domain.NewKnownError(domain.CodeRecordNotFound, "No record was found for a query.",
		map[string]any{"modelName": model})
}

func rawQueryFailed(err error) *domain.KnownError {
	code := "N/A"
	var pgErr *pgconn.PgError
	var myErr *mysql.MySQLError
	var liteErr sqlite3.Error
	switch {
	case errors.As(err, &pgErr):
		code = pgErr.Code
	case errors.As(err, &myErr):
		code = strconv.Itoa(int(myErr.Number))
	case errors.As(err, &liteErr):
		code = strconv.Itoa(int(liteErr.ExtendedCode))
	}
	msg := err.Error()
	if pgErr != nil {
		msg = pgErr.Message
	}
	return domain.NewKnownError(domain.CodeRawQueryFailed,
		fmt.Sprintf("Raw query failed. Code: `%s`. Message: `%s`", code, msg),
		map[string]any{"code": code, "message": msg})
}

var (
	pgKeyDetail   = regexp.MustCompile(`^Key \((.+?)\)=`)
	mysqlDupKey   = regexp.MustCompile(`for key '([^']+)'`)
	mysqlNullCol  = regexp.MustCompile(`Column '([^']+)' cannot be null`)
	mysqlLongCol  = regexp.MustCompile(`for column '([^']+)'`)
	mongoDupIndex = regexp.MustCompile(`index: (\S+)`)
	sqliteColumns = regexp.MustCompile(`constraint failed: (.+)$`)
)

// queryFailed maps driver constraint violations onto known errors. Anything
// else becomes a query CoreError.
func queryFailed(mm *domain.ModelMapping, err error) error {
	if err == nil {
		return nil
	}
	if _, ok := domain.AsKnownError(err); ok {
		return err
	}
	var ce *domain.ConnectorError
	if errors.As(err, &ce) {
		return err
	}
	if known := constraintViolation(mm, err); known != nil {
		return known
	}
	return domain.NewCoreError(domain.CoreQueryError, "Error occurred during query execution", err)
}

func constraintViolation(mm *domain.ModelMapping, err error) *domain.KnownError {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505":
			if m := pgKeyDetail.FindStringSubmatch(pgErr.Detail); m != nil {
				return uniqueViolation(mm, fieldNames(mm, splitColumns(m[1])))
			}
			return uniqueConstraint(mm, pgErr.ConstraintName)
		case "23503":
			return foreignKeyViolation(pgErr.ConstraintName)
		case "23502":
			return nullViolation(mm, []string{pgErr.ColumnName})
		case "22001":
			return valueTooLong(pgErr.ColumnName)
		}
		return nil
	}

	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		switch myErr.Number {
		case 1062:
			if m := mysqlDupKey.FindStringSubmatch(myErr.Message); m != nil {
				key := m[1]
				if i := strings.LastIndexByte(key, '.'); i >= 0 {
					key = key[i+1:]
				}
				return uniqueConstraint(mm, key)
			}
			return uniqueConstraint(mm, "")
		case 1451, 1452:
			return foreignKeyViolation(myErr.Message)
		case 1048:
			if m := mysqlNullCol.FindStringSubmatch(myErr.Message); m != nil {
				return nullViolation(mm, []string{m[1]})
			}
		case 1406:
			if m := mysqlLongCol.FindStringSubmatch(myErr.Message); m != nil {
				return valueTooLong(m[1])
			}
			return valueTooLong("")
		}
		return nil
	}

	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		var columns []string
		if m := sqliteColumns.FindStringSubmatch(liteErr.Error()); m != nil {
			columns = splitColumns(m[1])
		}
		switch liteErr.ExtendedCode {
		case sqlite3.ErrConstraintUnique, sqlite3.ErrConstraintPrimaryKey:
			return uniqueViolation(mm, fieldNames(mm, columns))
		case sqlite3.ErrConstraintForeignKey:
			return foreignKeyViolation("foreign key")
		case sqlite3.ErrConstraintNotNull:
			return nullViolation(mm, columns)
		}
		return nil
	}

	if mongo.IsDuplicateKeyError(err) {
		index := ""
		if m := mongoDupIndex.FindStringSubmatch(err.Error()); m != nil {
			index = m[1]
		}
		return uniqueConstraint(mm, index)
	}
	return nil
}

func uniqueViolation(mm *domain.ModelMapping, fields []string) *domain.KnownError {
	quoted := make([]string, len(fields))
	for i, f := range fields {
		quoted[i] = "`" + f + "`"
	}
	return domain.NewKnownError(domain.CodeUniqueConstraint,
		fmt.Sprintf("Unique constraint failed on the fields: (%s)", strings.Join(quoted, ",")),
		map[string]any{"modelName": modelName(mm), "target": fields})
}

func uniqueConstraint(mm *domain.ModelMapping, constraint string) *domain.KnownError {
	return domain.NewKnownError(domain.CodeUniqueConstraint,
		fmt.Sprintf("Unique constraint failed on the constraint: `%s`", constraint),
		map[string]any{"modelName": modelName(mm), "target": constraint})
}

func foreignKeyViolation(field string) *domain.KnownError {
	return domain.NewKnownError(domain.CodeForeignKeyConstraint,
		fmt.Sprintf("Foreign key constraint failed on the field: `%s`", field),
		map[string]any{"field_name": field})
}

func nullViolation(mm *domain.ModelMapping, columns []string) *domain.KnownError {
	fields := fieldNames(mm, columns)
	quoted := make([]string, len(fields))
	for i, f := range fields {
		quoted[i] = "`" + f + "`"
	}
	return domain.NewKnownError(domain.CodeNullConstraint,
		fmt.Sprintf("Null constraint violation on the fields: (%s)", strings.Join(quoted, ",")),
		map[string]any{"constraint": fields})
}

func valueTooLong(column string) *domain.KnownError {
	return domain.NewKnownError(domain.CodeValueTooLong,
		fmt.Sprintf("The provided value for the column is too long for the column's type. Column: %s", column),
		map[string]any{"column_name": column})
}

// splitColumns splits `"a", b` or `t.a, t.b` into bare column names
func splitColumns(list string) []string {
	parts := strings.Split(list, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if i := strings.LastIndexByte(p, '.'); i >= 0 {
			p = p[i+1:]
		}
		out = append(out, strings.Trim(p, "\"`"))
	}
	return out
}

// fieldNames maps column names back to field names
func fieldNames(mm *domain.ModelMapping, columns []string) []string {
	out := make([]string, len(columns))
	for i, col := range columns {
		out[i] = col
		if mm == nil {
			continue
		}
		for _, f := range mm.ScalarFields {
			if f.ColumnName() == col {
				out[i] = f.Name
				break
			}
		}
	}
	return out
}

func modelName(mm *domain.ModelMapping) string {
	if mm == nil {
		return ""
	}
	return mm.Model.Name
}
