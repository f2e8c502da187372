package hours

import (
	"fmt"
	"time"
)

const dateLayout = "2006-01-02"

// DateHour identifies one UTC hour.
type DateHour struct {
	Date string
	Hour uint8
}

func (dh DateHour) String() string {
	return fmt.Sprintf("%s %02d", dh.Date, dh.Hour)
}

func FromTime(t time.Time) DateHour {
	if t.IsZero() {
		return DateHour{}
	}
	t = t.UTC()
	return DateHour{
		Date: t.Format(dateLayout),
		Hour: uint8(t.Hour()),
	}
}

// Midnight returns the start of the UTC calendar day containing t.
func Midnight(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// DayWindow returns [midnight, next midnight) of the UTC day containing t.
func DayWindow(t time.Time) (time.Time, time.Time) {
	start := Midnight(t)
	return start, start.Add(24 * time.Hour)
}

// DateBefore reports whether the UTC date of a is strictly before the UTC date of b.
func DateBefore(a, b time.Time) bool {
	return Midnight(a).Before(Midnight(b))
}
