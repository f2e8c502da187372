package logging

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/icodeforyou/entsoe-transparency/database"
)

type LogAttrFormat string

const (
	LogAttrFormatText LogAttrFormat = "TEXT"
	LogAttrFormatJSON LogAttrFormat = "JSON"
)

type logStore interface {
	SaveLogEntry(ctx context.Context, r database.LogEntryRow) error
}

// SQLiteHandler persists records at or above minLevel into the log table.
// Attributes added through WithAttrs are kept.
type SQLiteHandler struct {
	db       logStore
	attrs    []slog.Attr
	minLevel slog.Level
	format   LogAttrFormat
}

func NewSQLiteHandler(db logStore, minLevel slog.Level, format LogAttrFormat) *SQLiteHandler {
	return &SQLiteHandler{db: db, minLevel: minLevel, format: format}
}

func (h *SQLiteHandler) Handle(ctx context.Context, r slog.Record) error {
	if r.Level < h.minLevel {
		return nil
	}

	all := make([]slog.Attr, 0, len(h.attrs)+r.NumAttrs())
	all = append(all, h.attrs...)
	r.Attrs(func(a slog.Attr) bool {
		all = append(all, a)
		return true
	})

	attrsStr := ""
	if strings.EqualFold(string(h.format), "text") {
		var b strings.Builder
		for _, a := range all {
			if b.Len() > 0 {
				b.WriteString("; ")
			}
			b.WriteString(a.Key)
			b.WriteString("=")
			b.WriteString(strings.ReplaceAll(strings.ReplaceAll(a.Value.String(), "=", "\\="), ";", "\\;"))
		}
		attrsStr = b.String()
	} else {
		var attrs []map[string]string
		for _, a := range all {
			attrs = append(attrs, map[string]string{a.Key: a.Value.String()})
		}
		if len(attrs) > 0 {
			jsonBytes, err := json.Marshal(attrs)
			if err != nil {
				attrsStr = fmt.Sprintf(`{"error": "%v"}`, err)
			} else {
				attrsStr = string(jsonBytes)
			}
		}
	}

	return h.db.SaveLogEntry(ctx, database.LogEntryRow{
		Timestamp: r.Time,
		Level:     int(r.Level),
		Message:   r.Message,
		Attrs:     attrsStr,
	})
}

func (h *SQLiteHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	if len(attrs) == 0 {
		return h
	}
	h2 := *h
	h2.attrs = append(append([]slog.Attr(nil), h.attrs...), attrs...)
	return &h2
}

func (h *SQLiteHandler) WithGroup(name string) slog.Handler {
	return h
}

func (h *SQLiteHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return level >= h.minLevel
}
