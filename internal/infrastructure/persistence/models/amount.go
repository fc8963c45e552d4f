package models

import (
	"database/sql/driver"
	"fmt"
	"math"
	"math/big"

	"gorm.io/gorm"
	"gorm.io/gorm/schema"
)

// Amount is a non-fractional arbitrary precision column.
// It is written as a decimal string and read back from any textual or integral driver value.
type Amount struct {
	v *big.Int
}

// NewAmount wraps v; nil is stored as zero
func NewAmount(v *big.Int) Amount {
	if v == nil {
		return Amount{v: new(big.Int)}
	}
	return Amount{v: new(big.Int).Set(v)}
}

// BigInt returns a copy of the stored value
func (a Amount) BigInt() *big.Int {
	if a.v == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(a.v)
}

// Value implements driver.Valuer
func (a Amount) Value() (driver.Value, error) {
	if a.v == nil {
		return "0", nil
	}
	return a.v.String(), nil
}

// Scan implements sql.Scanner
func (a *Amount) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		a.v = new(big.Int)
		return nil
	case int64:
		a.v = big.NewInt(v)
		return nil
	case float64:
		if v != math.Trunc(v) {
			return fmt.Errorf("amount: fractional value %v", v)
		}
		i, _ := big.NewFloat(v).Int(nil)
		a.v = i
		return nil
	case []byte:
		return a.parse(string(v))
	case string:
		return a.parse(v)
	default:
		return fmt.Errorf("amount: unsupported source type %T", src)
	}
}

func (a *Amount) parse(s string) error {
	i, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return fmt.Errorf("amount: invalid integer %q", s)
	}
	a.v = i
	return nil
}

// GormDBDataType picks the column type per dialect. SQLite would coerce large
// numerics to REAL, so the value is kept as text there.
func (Amount) GormDBDataType(db *gorm.DB, _ *schema.Field) string {
	if db.Dialector.Name() == "postgres" {
		return "numeric(78,0)"
	}
	return "text"
}
