// Файл: pkg/localtime/localtime.go
// Все бизнес-времена сервиса считаются в часовом поясе ресторанов.
// Пояс задаётся один раз при старте, по умолчанию Калининград (UTC+2).
package localtime

import (
	"time"
)

var location = mustLoad("Europe/Kaliningrad")

func mustLoad(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		return time.FixedZone("UTC+2", 2*60*60)
	}
	return loc
}

// Init переключает пояс сервиса. Вызывается из main до запуска фоновых задач.
func Init(name string) error {
	loc, err := time.LoadLocation(name)
	if err != nil {
		return err
	}
	location = loc
	return nil
}

// Location возвращает текущий пояс сервиса.
func Location() *time.Location {
	return location
}

// Now — текущее время в поясе ресторанов.
func Now() time.Time {
	return time.Now().In(location)
}

// StartOfDay обрезает время до полуночи в поясе ресторанов.
func StartOfDay(t time.Time) time.Time {
	t = t.In(location)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, location)
}
