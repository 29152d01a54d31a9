package domain

import (
	"database/sql/driver"
	"fmt"
	"strconv"
)

// Scope narrows a conversation between two users to a single property
// listing. The zero value means "no listing", which is itself a distinct,
// matchable scope: two users can have one unscoped conversation and any
// number of per-listing ones side by side.
//
// Scope is stored as a NOT NULL bigint where 0 encodes absence, so keyed
// upserts and equality comparisons behave the same on every backend.
// Property ids are positive, so the encoding is unambiguous.
type Scope struct {
	property int64
}

func PropertyScope(id int64) Scope {
	if id <= 0 {
		return Scope{}
	}
	return Scope{property: id}
}

// ScopeFrom builds a Scope from an optional property id as it appears in
// request payloads, where nil means "no listing".
func ScopeFrom(id *int64) Scope {
	if id == nil {
		return Scope{}
	}
	return PropertyScope(*id)
}

func (s Scope) IsProperty() bool { return s.property != 0 }

// Property returns the listing id and whether one is set.
func (s Scope) Property() (int64, bool) {
	return s.property, s.property != 0
}

// PropertyRef renders the scope the way payloads expect it: a pointer that
// is nil for the unscoped case.
func (s Scope) PropertyRef() *int64 {
	if s.property == 0 {
		return nil
	}
	id := s.property
	return &id
}

func (s Scope) String() string {
	if s.property == 0 {
		return "none"
	}
	return strconv.FormatInt(s.property, 10)
}

// Value implements driver.Valuer.
func (s Scope) Value() (driver.Value, error) {
	return s.property, nil
}

// Scan implements sql.Scanner.
func (s *Scope) Scan(value any) error {
	switch v := value.(type) {
	case nil:
		s.property = 0
	case int64:
		s.property = v
	case int:
		s.property = int64(v)
	default:
		return fmt.Errorf("domain.Scope: cannot scan %T", value)
	}
	return nil
}

// GormDataType tells the migrator what column to create.
func (Scope) GormDataType() string { return "bigint" }
