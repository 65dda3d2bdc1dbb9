package store

import (
	"database/sql"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5/stdlib"
)

// Rebinder returns the placeholder rewriter for the driver behind db. Store
// queries are written with ? placeholders; pgx sends SQL to the server
// verbatim, so on postgres they are rewritten to $n positional parameters.
func Rebinder(db *sql.DB) func(string) string {
	if _, ok := db.Driver().(*stdlib.Driver); ok {
		return rebindDollar
	}
	return func(query string) string { return query }
}

func rebindDollar(query string) string {
	if !strings.ContainsRune(query, '?') {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 16)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}
