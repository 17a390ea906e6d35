// Package catalog loads table definitions from CUE files and turns them
// into schemas the expression layer can build scans from. The CUE surface
// is deliberately small: a top-level `table` struct whose members each
// declare an ordered column list.
package catalog

import (
	"fmt"
	"sort"
	"strings"

	"github.com/quarryql/quarry/internal/datatype"
	"github.com/quarryql/quarry/internal/ir"
)

// Catalog is an immutable name-to-schema mapping.
type Catalog struct {
	tables map[string]*datatype.Schema
}

// Names returns the table names in sorted order.
func (c *Catalog) Names() []string {
	names := make([]string, 0, len(c.tables))
	for name := range c.tables {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Schema looks up a table's schema.
func (c *Catalog) Schema(name string) (*datatype.Schema, bool) {
	s, ok := c.tables[name]
	return s, ok
}

// Table builds a scan node for the named table. Unknown names fail with
// the available tables listed.
func (c *Catalog) Table(name string) (*ir.Table, error) {
	s, ok := c.tables[name]
	if !ok {
		return nil, fmt.Errorf("catalog: unknown table %q (have: %s)",
			name, strings.Join(c.Names(), ", "))
	}
	return ir.NewTable(name, s)
}

// Len returns the number of tables.
func (c *Catalog) Len() int { return len(c.tables) }
