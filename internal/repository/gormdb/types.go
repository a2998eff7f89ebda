package gormdb

import (
	"database/sql/driver"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/schema"
)

// LongText stores JSON snapshots (category distributions, metrics) in a
// column wide enough on every dialect.
type LongText string

// GormDBDataType picks LONGTEXT on MySQL and TEXT elsewhere.
func (LongText) GormDBDataType(db *gorm.DB, field *schema.Field) string {
	if db.Dialector.Name() == "mysql" {
		return "LONGTEXT"
	}
	return "TEXT"
}

func (lt LongText) Value() (driver.Value, error) {
	return string(lt), nil
}

func (lt *LongText) Scan(value any) error {
	switch v := value.(type) {
	case nil:
		*lt = ""
	case string:
		*lt = LongText(v)
	case []byte:
		*lt = LongText(v)
	default:
		return fmt.Errorf("gormdb: unsupported LongText scan type %T", value)
	}
	return nil
}
