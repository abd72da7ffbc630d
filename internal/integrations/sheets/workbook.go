// Файл: internal/integrations/sheets/workbook.go
// Транспорт к xlsx-книге с правами, мин-остатками и выгрузками.
// Узкий интерфейс: лист читается и пишется целиком как матрица строк,
// вся интерпретация форматов живёт в соседних файлах пакета.
package sheets

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
)

type ClientInterface interface {
	ReadTab(tab string) ([][]string, error)
	WriteTab(tab string, rows [][]string) error
}

type Client struct {
	path   string
	logger *zap.Logger

	// Книга одна на все вкладки, параллельная запись ломает файл.
	mu sync.Mutex
}

func NewClient(path string, logger *zap.Logger) *Client {
	return &Client{path: path, logger: logger}
}

// ReadTab возвращает все строки листа. Отсутствие книги или листа
// не ошибка: источник мог ещё не быть выгружен.
func (c *Client) ReadTab(tab string) ([][]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	t0 := time.Now()
	f, err := excelize.OpenFile(c.path)
	if err != nil {
		if os.IsNotExist(err) {
			c.logger.Warn("⚠️ Книга не найдена", zap.String("путь", c.path))
			return nil, nil
		}
		return nil, fmt.Errorf("не удалось открыть книгу %s: %w", c.path, err)
	}
	defer f.Close()

	rows, err := f.GetRows(tab)
	if err != nil {
		c.logger.Warn("⚠️ Лист отсутствует в книге", zap.String("лист", tab))
		return nil, nil
	}

	c.logger.Info("📊 Лист прочитан",
		zap.String("лист", tab), zap.Int("строк", len(rows)), zap.Duration("время", time.Since(t0)))
	return rows, nil
}

// WriteTab перезаписывает лист целиком. Книга создаётся при первом экспорте.
func (c *Client) WriteTab(tab string, rows [][]string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	t0 := time.Now()
	f, err := excelize.OpenFile(c.path)
	if err != nil {
		if !os.IsNotExist(err) {
			return fmt.Errorf("не удалось открыть книгу %s: %w", c.path, err)
		}
		f = excelize.NewFile()
	}
	defer f.Close()

	if idx, _ := f.GetSheetIndex(tab); idx != -1 {
		if err := f.DeleteSheet(tab); err != nil {
			return fmt.Errorf("не удалось очистить лист %s: %w", tab, err)
		}
	}
	if _, err := f.NewSheet(tab); err != nil {
		return fmt.Errorf("не удалось создать лист %s: %w", tab, err)
	}

	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		values := make([]interface{}, len(row))
		for j, v := range row {
			values[j] = v
		}
		if err := f.SetSheetRow(tab, cell, &values); err != nil {
			return fmt.Errorf("не удалось записать строку %d листа %s: %w", i+1, tab, err)
		}
	}

	if err := f.SaveAs(c.path); err != nil {
		return fmt.Errorf("не удалось сохранить книгу %s: %w", c.path, err)
	}

	c.logger.Info("✅ Лист записан",
		zap.String("лист", tab), zap.Int("строк", len(rows)), zap.Duration("время", time.Since(t0)))
	return nil
}
