package export

import (
	"github.com/nicolaschoi7042/itNswinventory-sub002/models"
)

// Serializer is the per-format byte-level capability. The exporter hands
// it pre-formatted cell values and column metadata; it owes nothing about
// the serializer's internals beyond this contract. Rows include any
// metadata banner and the header row.
type Serializer interface {
	Serialize(path string, columns []models.ColumnSpec, rows [][]string, opts models.ExportOptions) error
}

// SerializerFunc adapts a function to the Serializer capability.
type SerializerFunc func(path string, columns []models.ColumnSpec, rows [][]string, opts models.ExportOptions) error

func (f SerializerFunc) Serialize(path string, columns []models.ColumnSpec, rows [][]string, opts models.ExportOptions) error {
	return f(path, columns, rows, opts)
}
