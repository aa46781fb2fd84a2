package events

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/nerrad567/venstar-bridge/internal/infrastructure/config"
	"github.com/nerrad567/venstar-bridge/internal/infrastructure/database"
	_ "github.com/nerrad567/venstar-bridge/migrations"
)

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := database.Open(context.Background(), config.DatabaseConfig{Path: ":memory:", BusyTimeout: 5})
	if err != nil {
		t.Fatalf("opening test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := db.Migrate(context.Background()); err != nil {
		t.Fatalf("migrating test db: %v", err)
	}
	return db.DB
}

type errorLogger struct {
	msgs []string
}

func (l *errorLogger) Error(msg string, _ ...any) {
	l.msgs = append(l.msgs, msg)
}

func TestStoreCreateAndList(t *testing.T) {
	store := NewSQLiteStore(setupTestDB(t))
	ctx := context.Background()

	base := time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)
	seed := []Event{
		{ID: "1", Kind: KindDeviceUnreachable, Address: "a", Reason: "timeout", Timestamp: base},
		{ID: "2", Kind: KindDeviceLocked, Address: "a", Reason: "401", Timestamp: base.Add(500 * time.Millisecond)},
		{ID: "3", Kind: KindDeviceUnreachable, Address: "b", Reason: "timeout", Timestamp: base.Add(time.Second)},
	}
	for i := range seed {
		if err := store.Create(ctx, &seed[i]); err != nil {
			t.Fatalf("Create() error = %v", err)
		}
	}

	all, err := store.List(ctx, Filter{})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if all.Total != 3 || len(all.Events) != 3 || all.Limit != defaultListLimit {
		t.Fatalf("List() = %+v", all)
	}
	if all.Events[0].ID != "3" || all.Events[1].ID != "2" || all.Events[2].ID != "1" {
		t.Errorf("List() order = %s %s %s, want newest first", all.Events[0].ID, all.Events[1].ID, all.Events[2].ID)
	}
	if !all.Events[1].Timestamp.Equal(seed[1].Timestamp) {
		t.Errorf("timestamp round trip = %v, want %v", all.Events[1].Timestamp, seed[1].Timestamp)
	}

	tests := []struct {
		name   string
		filter Filter
		want   int
		total  int
	}{
		{"by kind", Filter{Kind: KindDeviceUnreachable}, 2, 2},
		{"by address", Filter{Address: "a"}, 2, 2},
		{"by both", Filter{Kind: KindDeviceLocked, Address: "a"}, 1, 1},
		{"limit", Filter{Limit: 1}, 1, 3},
		{"offset", Filter{Limit: 2, Offset: 2}, 1, 3},
		{"clamped", Filter{Limit: 10000, Offset: -4}, 3, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := store.List(ctx, tt.filter)
			if err != nil {
				t.Fatalf("List() error = %v", err)
			}
			if len(res.Events) != tt.want || res.Total != tt.total {
				t.Errorf("List() = %d events, total %d; want %d, %d", len(res.Events), res.Total, tt.want, tt.total)
			}
		})
	}
}

func TestStoreReportFillsID(t *testing.T) {
	store := NewSQLiteStore(setupTestDB(t))
	ctx := context.Background()

	store.Report(ctx, Event{Kind: KindDiscoveryFailure, Reason: "no thermostats found"})
	res, err := store.List(ctx, Filter{Kind: KindDiscoveryFailure})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(res.Events) != 1 || res.Events[0].ID == "" {
		t.Errorf("List() = %+v", res.Events)
	}
}

func TestStoreReportLogsFailure(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock new: %v", err)
	}
	defer db.Close()

	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO events`)).
		WillReturnError(errors.New("database is locked"))

	logger := &errorLogger{}
	store := NewSQLiteStore(db)
	store.SetLogger(logger)
	store.Report(context.Background(), New(KindDeviceUnreachable, "a", "", "timeout"))

	if len(logger.msgs) != 1 {
		t.Errorf("logged errors = %d, want 1", len(logger.msgs))
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("mock expectations: %v", err)
	}
}

func TestStoreListCountError(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock new: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT COUNT(*) FROM events`)).
		WillReturnError(errors.New("no such table: events"))

	if _, err := NewSQLiteStore(db).List(context.Background(), Filter{}); err == nil {
		t.Error("List() error = nil, want count error")
	}
}
