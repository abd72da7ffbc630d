// Файл: migrations/embed.go
// Миграции зашиты в бинарь и накатываются goose-ом при старте.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
