package export

import (
	"encoding/csv"
	"os"
	"unicode/utf8"

	"github.com/nicolaschoi7042/itNswinventory-sub002/models"
)

// delimiterRune decodes the first rune of a configured delimiter so a
// multi-byte delimiter is not truncated to its leading byte.
func delimiterRune(delimiter string) (rune, bool) {
	if delimiter == "" {
		return 0, false
	}
	r, _ := utf8.DecodeRuneInString(delimiter)
	if r == utf8.RuneError {
		return 0, false
	}
	return r, true
}

// DelimitedSerializer writes delimited-text artifacts (CSV by default).
type DelimitedSerializer struct{}

func (DelimitedSerializer) Serialize(path string, columns []models.ColumnSpec, rows [][]string, opts models.ExportOptions) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	writer := csv.NewWriter(f)
	if comma, ok := delimiterRune(opts.Delimiter); ok {
		writer.Comma = comma
	}
	if err := writer.WriteAll(rows); err != nil {
		return err
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return err
	}
	return f.Sync()
}
