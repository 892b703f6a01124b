package history

import (
	"context"
	"encoding/json"
	"io"
	"testing"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/stockroomhq/stockroom-backend/pkg/db"
	"github.com/stockroomhq/stockroom-backend/pkg/db/models"
	"github.com/stockroomhq/stockroom-backend/pkg/enums"
	"github.com/stockroomhq/stockroom-backend/pkg/logger"
	"github.com/stockroomhq/stockroom-backend/pkg/pagination"
)

func newTestRecorder(t *testing.T) (*Recorder, *db.Client) {
	t.Helper()
	client, err := db.NewSQLite("file:history_" + uuid.NewString() + "?mode=memory&cache=shared")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := client.DB().AutoMigrate(&models.ProductHistory{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	logg := logger.New(logger.Options{ServiceName: "history-test", Output: io.Discard})
	recorder, err := NewRecorder(client.DB(), logg)
	if err != nil {
		t.Fatalf("new recorder: %v", err)
	}
	return recorder, client
}

func TestRecordAppendsEntry(t *testing.T) {
	t.Parallel()

	recorder, client := newTestRecorder(t)
	ctx := context.Background()
	productID := uuid.New()
	actor := uuid.New()

	recorder.Record(ctx, Entry{
		ProductID:   productID,
		ProductName: "Widget",
		Action:      enums.HistoryActionEdited,
		Changes:     map[string]any{"rate": map[string]any{"from": "100", "to": "120"}},
		ActorID:     actor,
	})

	var rows []models.ProductHistory
	if err := client.DB().Find(&rows).Error; err != nil {
		t.Fatalf("load rows: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected 1 audit row, got %d", len(rows))
	}
	if rows[0].Action != enums.HistoryActionEdited || rows[0].ActorID != actor {
		t.Fatalf("unexpected row %+v", rows[0])
	}

	var changes map[string]any
	if err := json.Unmarshal(rows[0].Changes, &changes); err != nil {
		t.Fatalf("decode changes: %v", err)
	}
	if _, ok := changes["rate"]; !ok {
		t.Fatalf("expected rate diff in changes, got %v", changes)
	}
}

func TestRecordInvalidEntrySwallowed(t *testing.T) {
	t.Parallel()

	recorder, client := newTestRecorder(t)
	ctx := context.Background()

	// missing product id and bogus action: logged, never persisted
	recorder.Record(ctx, Entry{Action: enums.HistoryAction("renamed"), ActorID: uuid.New()})

	var count int64
	if err := client.DB().Model(&models.ProductHistory{}).Count(&count).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected no rows, got %d", count)
	}
}

func TestRecordTxFailsTransaction(t *testing.T) {
	t.Parallel()

	recorder, client := newTestRecorder(t)
	ctx := context.Background()

	err := client.WithTx(ctx, func(tx *gorm.DB) error {
		return recorder.RecordTx(ctx, tx, Entry{Action: enums.HistoryActionAdded})
	})
	if err == nil {
		t.Fatal("expected invalid entry to fail the transaction")
	}
}

func TestListFiltersByProductAndAction(t *testing.T) {
	t.Parallel()

	recorder, _ := newTestRecorder(t)
	ctx := context.Background()
	productA := uuid.New()
	productB := uuid.New()
	actor := uuid.New()

	recorder.Record(ctx, Entry{ProductID: productA, ProductName: "A", Action: enums.HistoryActionAdded, ActorID: actor})
	recorder.Record(ctx, Entry{ProductID: productA, ProductName: "A", Action: enums.HistoryActionEdited, ActorID: actor})
	recorder.Record(ctx, Entry{ProductID: productB, ProductName: "B", Action: enums.HistoryActionDeleted, ActorID: actor})

	byProduct, _, err := recorder.List(ctx, ListFilter{ProductID: &productA})
	if err != nil {
		t.Fatalf("list by product: %v", err)
	}
	if len(byProduct) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(byProduct))
	}

	action := enums.HistoryActionDeleted
	byAction, _, err := recorder.List(ctx, ListFilter{Action: &action})
	if err != nil {
		t.Fatalf("list by action: %v", err)
	}
	if len(byAction) != 1 || byAction[0].ProductID != productB {
		t.Fatalf("unexpected entries %+v", byAction)
	}
}

func TestListPaginates(t *testing.T) {
	t.Parallel()

	recorder, _ := newTestRecorder(t)
	ctx := context.Background()
	actor := uuid.New()

	for i := 0; i < 5; i++ {
		recorder.Record(ctx, Entry{ProductID: uuid.New(), ProductName: "P", Action: enums.HistoryActionAdded, ActorID: actor})
	}

	page1, next, err := recorder.List(ctx, ListFilter{Page: pagination.Params{Limit: 3}})
	if err != nil {
		t.Fatalf("page 1: %v", err)
	}
	if len(page1) != 3 || next == "" {
		t.Fatalf("expected full first page with cursor, got %d", len(page1))
	}

	page2, _, err := recorder.List(ctx, ListFilter{Page: pagination.Params{Limit: 3, Cursor: next}})
	if err != nil {
		t.Fatalf("page 2: %v", err)
	}
	if len(page2) != 2 {
		t.Fatalf("expected 2 remaining entries, got %d", len(page2))
	}
}
