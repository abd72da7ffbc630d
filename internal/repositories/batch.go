// Файл: internal/repositories/batch.go
// Примитивы зеркальной синхронизации: пакетный UPSERT и зеркальное удаление.
// Оба работают внутри транзакции вызывающего кода через общий интерфейс querier.
package repositories

import (
	"context"
	"fmt"

	sq "github.com/Masterminds/squirrel"
)

// Максимум строк в одном INSERT. Больше — дробим на несколько statement'ов.
const upsertChunkSize = 500

// Порог защиты зеркального удаления: если под удаление попадает больше
// половины строк в области, считаем ответ источника подозрительным.
const mirrorDeleteMaxShare = 0.5

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// ChunkRows нарезает строки на пачки по size.
func ChunkRows(rows [][]interface{}, size int) [][][]interface{} {
	if size <= 0 {
		size = upsertChunkSize
	}
	var chunks [][][]interface{}
	for start := 0; start < len(rows); start += size {
		end := start + size
		if end > len(rows) {
			end = len(rows)
		}
		chunks = append(chunks, rows[start:end])
	}
	return chunks
}

func buildUpsertChunk(table string, columns, conflictCols []string, rows [][]interface{}) (string, []interface{}, error) {
	builder := psql.Insert(table).Columns(columns...)
	for _, row := range rows {
		if len(row) != len(columns) {
			return "", nil, fmt.Errorf("строка содержит %d значений при %d колонках", len(row), len(columns))
		}
		builder = builder.Values(row...)
	}

	conflictSet := make(map[string]struct{}, len(conflictCols))
	for _, c := range conflictCols {
		conflictSet[c] = struct{}{}
	}

	suffix := "ON CONFLICT ("
	for i, c := range conflictCols {
		if i > 0 {
			suffix += ", "
		}
		suffix += c
	}
	suffix += ") DO UPDATE SET "

	first := true
	for _, col := range columns {
		if _, isKey := conflictSet[col]; isKey {
			continue
		}
		if !first {
			suffix += ", "
		}
		suffix += col + " = EXCLUDED." + col
		first = false
	}
	if first {
		suffix = "ON CONFLICT DO NOTHING"
	}

	return builder.Suffix(suffix).ToSql()
}

// BatchUpsert вставляет или обновляет строки пачками по 500.
// Возвращает общее число обработанных строк.
func BatchUpsert(ctx context.Context, q querier, table string, columns, conflictCols []string, rows [][]interface{}) (int, error) {
	total := 0
	for _, chunk := range ChunkRows(rows, upsertChunkSize) {
		query, args, err := buildUpsertChunk(table, columns, conflictCols, chunk)
		if err != nil {
			return total, fmt.Errorf("ошибка сборки upsert для %s: %w", table, err)
		}
		if _, err := q.Exec(ctx, query, args...); err != nil {
			return total, fmt.Errorf("ошибка upsert в %s: %w", table, err)
		}
		total += len(chunk)
	}
	return total, nil
}

// MirrorDeleteResult — итог зеркального удаления для журнала синхронизации.
type MirrorDeleteResult struct {
	Deleted    int64
	Skipped    bool
	SkipReason string
}

// MirrorDelete удаляет из зеркала строки, которых больше нет в источнике.
// Пустой validIDs означает подозрительно пустой ответ источника: удаление
// пропускается. Тот же исход, если под удаление попадает больше половины
// строк области. Пропуск не считается ошибкой.
func MirrorDelete(ctx context.Context, q querier, table, keyCol string, validIDs []string, scope sq.Sqlizer) (MirrorDeleteResult, error) {
	if len(validIDs) == 0 {
		return MirrorDeleteResult{Skipped: true, SkipReason: "источник вернул пустой список"}, nil
	}

	countAll := psql.Select("COUNT(*)").From(table)
	if scope != nil {
		countAll = countAll.Where(scope)
	}
	query, args, err := countAll.ToSql()
	if err != nil {
		return MirrorDeleteResult{}, fmt.Errorf("ошибка сборки count для %s: %w", table, err)
	}
	var total int64
	if err := q.QueryRow(ctx, query, args...).Scan(&total); err != nil {
		return MirrorDeleteResult{}, fmt.Errorf("ошибка подсчёта строк %s: %w", table, err)
	}
	if total == 0 {
		return MirrorDeleteResult{}, nil
	}

	notValid := sq.Expr("NOT ("+keyCol+" = ANY(?))", validIDs)

	countDead := psql.Select("COUNT(*)").From(table).Where(notValid)
	if scope != nil {
		countDead = countDead.Where(scope)
	}
	query, args, err = countDead.ToSql()
	if err != nil {
		return MirrorDeleteResult{}, fmt.Errorf("ошибка сборки count кандидатов для %s: %w", table, err)
	}
	var candidates int64
	if err := q.QueryRow(ctx, query, args...).Scan(&candidates); err != nil {
		return MirrorDeleteResult{}, fmt.Errorf("ошибка подсчёта кандидатов %s: %w", table, err)
	}
	if candidates == 0 {
		return MirrorDeleteResult{}, nil
	}

	if ExceedsDeleteShare(candidates, total) {
		return MirrorDeleteResult{
			Skipped:    true,
			SkipReason: fmt.Sprintf("под удаление попадает %d из %d строк", candidates, total),
		}, nil
	}

	del := psql.Delete(table).Where(notValid)
	if scope != nil {
		del = del.Where(scope)
	}
	query, args, err = del.ToSql()
	if err != nil {
		return MirrorDeleteResult{}, fmt.Errorf("ошибка сборки delete для %s: %w", table, err)
	}
	tag, err := q.Exec(ctx, query, args...)
	if err != nil {
		return MirrorDeleteResult{}, fmt.Errorf("ошибка зеркального удаления из %s: %w", table, err)
	}

	return MirrorDeleteResult{Deleted: tag.RowsAffected()}, nil
}

// ExceedsDeleteShare проверяет защитный порог без плавающей точки.
func ExceedsDeleteShare(candidates, total int64) bool {
	if total == 0 {
		return false
	}
	return float64(candidates) > float64(total)*mirrorDeleteMaxShare
}
