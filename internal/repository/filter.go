package repository

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Filter is a typed list of bound predicates. Column names are always
// supplied by the calling code; user input only ever travels as a value.
type Filter struct {
	exprs []clause.Expression
}

// NewFilter returns an empty filter that matches every row.
func NewFilter() *Filter { return &Filter{} }

func (f *Filter) Eq(column string, value any) *Filter {
	f.exprs = append(f.exprs, clause.Eq{Column: clause.Column{Name: column}, Value: value})
	return f
}

func (f *Filter) Neq(column string, value any) *Filter {
	f.exprs = append(f.exprs, clause.Neq{Column: clause.Column{Name: column}, Value: value})
	return f
}

func (f *Filter) In(column string, values ...any) *Filter {
	f.exprs = append(f.exprs, clause.IN{Column: clause.Column{Name: column}, Values: values})
	return f
}

func (f *Filter) Gte(column string, value any) *Filter {
	f.exprs = append(f.exprs, clause.Gte{Column: clause.Column{Name: column}, Value: value})
	return f
}

func (f *Filter) Lt(column string, value any) *Filter {
	f.exprs = append(f.exprs, clause.Lt{Column: clause.Column{Name: column}, Value: value})
	return f
}

// Raw appends a fixed SQL fragment with bound vars. sql must be a constant.
func (f *Filter) Raw(sql string, vars ...any) *Filter {
	f.exprs = append(f.exprs, clause.Expr{SQL: sql, Vars: vars})
	return f
}

// Apply ANDs every predicate onto q.
func (f *Filter) Apply(q *gorm.DB) *gorm.DB {
	if f == nil {
		return q
	}
	for _, e := range f.exprs {
		q = q.Where(e)
	}
	return q
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// LikePrefix escapes LIKE wildcards in s and appends the trailing %.
// Use with ESCAPE '\'.
func LikePrefix(s string) string {
	return likeEscaper.Replace(s) + "%"
}

// Page is a 1-based page window.
type Page struct {
	Page  int
	Limit int
}

func (p Page) offset() int {
	if p.Page < 1 {
		return 0
	}
	return (p.Page - 1) * p.Limit
}

// conn picks the transaction when one is supplied.
func conn(ctx context.Context, db, tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx.WithContext(ctx)
	}
	return db.WithContext(ctx)
}

// IsUniqueViolation reports whether err is a unique-constraint failure on
// PostgreSQL (SQLSTATE 23505) or SQLite.
func IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// IsNotFound reports whether err is gorm's record-not-found.
func IsNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}
