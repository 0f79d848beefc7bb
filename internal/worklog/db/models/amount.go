package models

import (
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/schema"
)

// Amount is an optional decimal stored without rounding: unconstrained
// numeric on postgres, text on SQLite where numeric columns hold floats.
type Amount struct {
	decimal.NullDecimal
}

func NewAmount(d decimal.NullDecimal) Amount {
	return Amount{NullDecimal: d}
}

// GormDataType gives the field a data type of its own instead of the one
// gorm would infer from the first field of the decimal struct.
func (Amount) GormDataType() string {
	return "numeric"
}

// GormDBDataType picks the column type per dialect.
func (Amount) GormDBDataType(db *gorm.DB, _ *schema.Field) string {
	if db.Dialector.Name() == "sqlite" {
		return "text"
	}
	return "numeric"
}
