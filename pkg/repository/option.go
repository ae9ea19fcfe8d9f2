package repository

import (
	"fmt"
	"strings"

	"gorm.io/gorm"
)

type QueryOption func(*gorm.DB) *gorm.DB

type Operator string

const (
	EQ  Operator = "="
	NEQ Operator = "<>"
	GT  Operator = ">"
	GTE Operator = ">="
	LT  Operator = "<"
	LTE Operator = "<="
	IN  Operator = "IN"
)

type Condition struct {
	Field    string
	Operator Operator
	Value    any
}

func Where(conds ...Condition) QueryOption {
	return func(db *gorm.DB) *gorm.DB {
		for _, c := range conds {
			if c.Operator == IN {
				db = db.Where(fmt.Sprintf("%s IN ?", c.Field), c.Value)
				continue
			}
			db = db.Where(fmt.Sprintf("%s %s ?", c.Field, c.Operator), c.Value)
		}
		return db
	}
}

// OrderBy accepts "field" or "field desc".
func OrderBy(fields ...string) QueryOption {
	return func(db *gorm.DB) *gorm.DB {
		return db.Order(strings.Join(fields, ", "))
	}
}

func Limit(n int) QueryOption {
	return func(db *gorm.DB) *gorm.DB {
		return db.Limit(n)
	}
}

func Preload(assoc ...string) QueryOption {
	return func(db *gorm.DB) *gorm.DB {
		for _, a := range assoc {
			db = db.Preload(a)
		}
		return db
	}
}
