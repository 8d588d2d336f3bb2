package extent

import (
	"database/sql"
	"database/sql/driver"
)

var (
	_ sql.Scanner   = (*Extent)(nil)
	_ driver.Valuer = Extent{}
)

// Extent binds decoded values to their Field so an extent column can be
// scanned from and written to database/sql directly:
//
//	v := extent.Extent{Field: scores}
//	err := row.Scan(&v)
type Extent struct {
	Field  *Field
	Values []any
	Null   bool
}

// Scan implements sql.Scanner. NULL scans as an empty extent with Null set.
func (e *Extent) Scan(src any) error {
	vals, err := e.Field.DecodeValue(src)
	if err != nil {
		return err
	}
	e.Values = vals
	e.Null = src == nil
	return nil
}

// Value implements driver.Valuer.
func (e Extent) Value() (driver.Value, error) {
	if e.Null {
		return nil, nil
	}
	return e.Field.Encode(e.Values)
}

// Len returns the number of elements held.
func (e Extent) Len() int {
	return len(e.Values)
}
