// Package migrations embeds the relay history schema into the binary.
package migrations

import (
	"embed"

	"github.com/nerrad567/hamrelay/internal/infrastructure/database"
)

//go:embed *.sql
var files embed.FS

func init() {
	database.RegisterMigrations(files, ".")
}
