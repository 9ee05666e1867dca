package resolver

import (
	"context"
	"strconv"
	"strings"

	"github.com/douyudm/dmclient/internal/data"
)

// Table resolves names from a static room table.
type Table struct {
	table *data.RoomTable
}

func NewTable(t *data.RoomTable) *Table {
	return &Table{table: t}
}

func (t *Table) Resolve(_ context.Context, name string) (int, error) {
	if e := t.table.Get(name); e != nil {
		return e.RoomID, nil
	}
	return 0, ErrNotFound
}

// Numeric accepts names that already are room ids.
type Numeric struct{}

func (Numeric) Resolve(_ context.Context, name string) (int, error) {
	id, err := strconv.Atoi(strings.TrimSpace(name))
	if err != nil || id <= 0 {
		return 0, ErrNotFound
	}
	return id, nil
}
