package services

import (
	"errors"
	"fmt"
	"strings"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// DefaultPageLimit is used when a list request does not set a limit.
const DefaultPageLimit = 100

var (
	ErrAlertNotFound    = errors.New("alert not found")
	ErrDecisionNotFound = errors.New("decision not found")
	ErrInvalidOffset    = errors.New("invalid offset")
)

// OffsetError is returned when a paged request starts past the last item.
type OffsetError struct {
	Offset int
	Total  int64
}

func (e *OffsetError) Error() string {
	return fmt.Sprintf("Invalid parameter: offset (%d) cannot be greater than total items (%d)", e.Offset, e.Total)
}

func (e *OffsetError) Is(target error) bool { return target == ErrInvalidOffset }

// Pagination selects a window of a list. Unpaged returns everything.
type Pagination struct {
	Limit   int
	Offset  int
	Unpaged bool
}

func (p Pagination) withDefaults() Pagination {
	if p.Limit < 1 {
		p.Limit = DefaultPageLimit
	}
	if p.Offset < 0 {
		p.Offset = 0
	}
	return p
}

// Page is one window of a filtered list.
type Page[T any] struct {
	Items      []T
	Total      int64
	Pagination Pagination
}

// Number is the 1-based page index derived from offset and limit.
func (p *Page[T]) Number() int {
	return p.Pagination.Offset/p.Pagination.Limit + 1
}

// listPage counts the filtered rows, rejects offsets past the end and loads
// the requested window ordered newest first.
func listPage[T any](db *gorm.DB, filter func(*gorm.DB) *gorm.DB, p Pagination, order string) (*Page[T], error) {
	p = p.withDefaults()

	var total int64
	if err := db.Model(new(T)).Scopes(filter).Count(&total).Error; err != nil {
		return nil, err
	}
	if !p.Unpaged && int64(p.Offset) > total {
		return nil, &OffsetError{Offset: p.Offset, Total: total}
	}

	q := db.Model(new(T)).Scopes(filter).Order(order)
	if !p.Unpaged {
		q = q.Limit(p.Limit).Offset(p.Offset)
	}
	items := make([]T, 0)
	if err := q.Find(&items).Error; err != nil {
		return nil, err
	}
	return &Page[T]{Items: items, Total: total, Pagination: p}, nil
}

// likeAny matches rows whose column contains any of the values.
func likeAny(table, column string, values []string) clause.Expression {
	exprs := make([]clause.Expression, 0, len(values))
	for _, v := range values {
		exprs = append(exprs, clause.Like{Column: clause.Column{Table: table, Name: column}, Value: "%" + v + "%"})
	}
	return anyOf(exprs)
}

// anyOf joins exprs with OR. A lone OrConditions would be OR-ed onto the
// preceding WHERE terms by gorm, so a single expression is returned as is.
func anyOf(exprs []clause.Expression) clause.Expression {
	if len(exprs) == 1 {
		return exprs[0]
	}
	return clause.Or(exprs...)
}

// sourceFilter narrows alerts by fields of their JSON source column.
type sourceFilter struct {
	IPAddresses []string
	Countries   []string
	IPOwners    []string
}

func (f sourceFilter) empty() bool {
	return len(f.IPAddresses) == 0 && len(f.Countries) == 0 && len(f.IPOwners) == 0
}

// apply adds the source conditions against column, e.g. "alerts.source".
func (f sourceFilter) apply(db *gorm.DB, column string) *gorm.DB {
	if len(f.IPAddresses) > 0 {
		exprs := make([]clause.Expression, 0, len(f.IPAddresses))
		for _, ip := range f.IPAddresses {
			exprs = append(exprs, datatypes.JSONQuery(column).Equals(ip, "ip"))
		}
		db = db.Where(anyOf(exprs))
	}
	if len(f.Countries) > 0 {
		upper := make([]string, len(f.Countries))
		for i, c := range f.Countries {
			upper[i] = strings.ToUpper(c)
		}
		db = db.Where(fmt.Sprintf("UPPER(JSON_EXTRACT(%s, '$.cn')) IN ?", column), upper)
	}
	if len(f.IPOwners) > 0 {
		exprs := make([]clause.Expression, 0, len(f.IPOwners))
		for _, owner := range f.IPOwners {
			exprs = append(exprs, clause.Expr{
				SQL:  fmt.Sprintf("LOWER(JSON_EXTRACT(%s, '$.as_name')) LIKE ?", column),
				Vars: []interface{}{"%" + strings.ToLower(owner) + "%"},
			})
		}
		db = db.Where(anyOf(exprs))
	}
	return db
}
