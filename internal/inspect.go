package internal

import (
	"fmt"

	"chat-relay/repositories"

	"github.com/dgraph-io/badger/v4"
	"github.com/gofiber/fiber/v2"
	"github.com/mama165/sdk-go/database"
)

const defaultInspectLimit = 200

type InspectRow struct {
	Key   string `json:"key"`
	Value any    `json:"value"`
}

// Describer turns a raw entry into a printable value.
type Describer func(key, value []byte) any

// Inspect walks the keys under prefix and returns at most limit rows.
func Inspect(db *badger.DB, prefix string, limit int, describe Describer) ([]InspectRow, error) {
	if limit <= 0 {
		limit = defaultInspectLimit
	}
	rows := make([]InspectRow, 0)
	err := db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Seek([]byte(prefix)); it.ValidForPrefix([]byte(prefix)) && len(rows) < limit; it.Next() {
			item := it.Item()
			err := item.Value(func(val []byte) error {
				rows = append(rows, InspectRow{Key: string(item.Key()), Value: describe(item.Key(), val)})
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	return rows, err
}

// InspectHandler serves Inspect as JSON: GET ?prefix=msg:&limit=50
func InspectHandler(db *badger.DB, describe Describer) fiber.Handler {
	return func(c *fiber.Ctx) error {
		rows, err := Inspect(db, c.Query("prefix"), c.QueryInt("limit", defaultInspectLimit), describe)
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		return c.JSON(fiber.Map{"prefix": c.Query("prefix"), "items": rows})
	}
}

// StoreMapper renders Badger entries for the HTML inspector.
func StoreMapper(key string, val []byte) database.InspectRow {
	row := database.DefaultMapper(key, val)
	row.Detail = fmt.Sprintf("%v", repositories.Describe([]byte(key), val))
	row.Type = repositories.KindOf([]byte(key))
	return row
}
