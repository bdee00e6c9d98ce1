package database

import (
	"context"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"subbox_backend/internal/model"
)

type recordingHandler struct {
	mu      sync.Mutex
	records []slog.Record
}

func (h *recordingHandler) Enabled(context.Context, slog.Level) bool { return true }

func (h *recordingHandler) Handle(_ context.Context, r slog.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.records = append(h.records, r)
	return nil
}

func (h *recordingHandler) WithAttrs([]slog.Attr) slog.Handler { return h }
func (h *recordingHandler) WithGroup(string) slog.Handler      { return h }

func (h *recordingHandler) find(level slog.Level, msg string) (slog.Record, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, r := range h.records {
		if r.Level == level && r.Message == msg {
			return r, true
		}
	}
	return slog.Record{}, false
}

func openLogged(t *testing.T, level string) (*gorm.DB, *recordingHandler) {
	t.Helper()
	handler := &recordingHandler{}
	db, err := Open(Config{
		Driver:   "sqlite",
		DSN:      filepath.Join(t.TempDir(), "log.db"),
		LogLevel: level,
	}, slog.New(handler))
	require.NoError(t, err)
	return db, handler
}

func TestOpen_QueryErrorsGoThroughSlog(t *testing.T) {
	db, handler := openLogged(t, "error")

	err := db.Exec("SELECT * FROM missing_table").Error
	require.Error(t, err)

	record, ok := handler.find(slog.LevelError, "database query failed")
	require.True(t, ok)

	attrs := map[string]string{}
	record.Attrs(func(a slog.Attr) bool {
		attrs[a.Key] = a.Value.String()
		return true
	})
	assert.Contains(t, attrs["sql"], "missing_table")
	assert.Contains(t, attrs["error"], "missing_table")
}

func TestOpen_RecordNotFoundIsNotLogged(t *testing.T) {
	db, handler := openLogged(t, "error")
	require.NoError(t, MigrateDatabase(db, nil, &model.Plan{}))

	err := db.First(&model.Plan{}, 99).Error
	require.ErrorIs(t, err, gorm.ErrRecordNotFound)

	_, ok := handler.find(slog.LevelError, "database query failed")
	assert.False(t, ok)
}

func TestOpen_SilentSuppressesQueryErrors(t *testing.T) {
	db, handler := openLogged(t, "silent")

	require.Error(t, db.Exec("SELECT * FROM missing_table").Error)

	_, ok := handler.find(slog.LevelError, "database query failed")
	assert.False(t, ok)
}

func TestSlogLogger_InfoLevelTracesStatements(t *testing.T) {
	handler := &recordingHandler{}
	l := newSlogLogger(slog.New(handler), logLevel("error"), 0).LogMode(logLevel("info"))

	l.Trace(context.Background(), time.Now(), func() (string, int64) { return "SELECT 1", 1 }, nil)

	_, ok := handler.find(slog.LevelDebug, "database query")
	assert.True(t, ok)
}
