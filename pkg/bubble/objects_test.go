package bubble

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/avachon/bubble-data-client/internal/testutil"
	"github.com/avachon/bubble-data-client/pkg/query"
)

func queryAll() query.Query {
	return query.Query{}
}

func TestGetByID(t *testing.T) {
	mock := testutil.NewMockBubble()
	defer mock.Close()
	ids := mock.Seed("restaurant", map[string]any{"name": "Chez Vivi", "seats": 24})

	client := newTestClient(t, mock)
	record, err := client.GetByID(context.Background(), "restaurant", ids[0])
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}

	if record.ID() != ids[0] {
		t.Errorf("ID = %q, want %q", record.ID(), ids[0])
	}
	if record["name"] != "Chez Vivi" {
		t.Errorf("name = %v, want Chez Vivi", record["name"])
	}
}

func TestGetByID_NotFound(t *testing.T) {
	mock := testutil.NewMockBubble()
	defer mock.Close()

	client := newTestClient(t, mock)
	_, err := client.GetByID(context.Background(), "restaurant", "does-not-exist")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("error = %v, want ErrNotFound", err)
	}
}

func TestGetByField(t *testing.T) {
	mock := testutil.NewMockBubble()
	defer mock.Close()
	mock.Seed("user",
		map[string]any{"email": "alice@example.com", "name": "Alice"},
		map[string]any{"email": "bob@example.com", "name": "Bob"},
	)

	client := newTestClient(t, mock)
	record, err := client.GetByField(context.Background(), "user", "email", "bob@example.com")
	if err != nil {
		t.Fatalf("GetByField failed: %v", err)
	}
	if record["name"] != "Bob" {
		t.Errorf("name = %v, want Bob", record["name"])
	}

	_, err = client.GetByField(context.Background(), "user", "email", "nobody@example.com")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("error = %v, want ErrNotFound", err)
	}
}

func TestFetchPage(t *testing.T) {
	mock := testutil.NewMockBubble()
	defer mock.Close()
	for i := 0; i < 7; i++ {
		mock.Seed("restaurant", map[string]any{"n": i})
	}

	client := newTestClient(t, mock)
	page, err := client.FetchPage(context.Background(), "restaurant", query.Query{Cursor: 5, Limit: 3})
	if err != nil {
		t.Fatalf("FetchPage failed: %v", err)
	}

	if page.Cursor != 5 {
		t.Errorf("Cursor = %d, want 5", page.Cursor)
	}
	if page.Count != 2 {
		t.Errorf("Count = %d, want 2", page.Count)
	}
	if page.Remaining != 0 {
		t.Errorf("Remaining = %d, want 0", page.Remaining)
	}
}

func TestCount(t *testing.T) {
	mock := testutil.NewMockBubble()
	defer mock.Close()
	for i := 0; i < 42; i++ {
		mock.Seed("restaurant", map[string]any{"n": i})
	}

	client := newTestClient(t, mock)
	count, err := client.Count(context.Background(), "restaurant", nil)
	if err != nil {
		t.Fatalf("Count failed: %v", err)
	}
	if count != 42 {
		t.Errorf("count = %d, want 42", count)
	}
}

func TestForEach_WalksAllPages(t *testing.T) {
	mock := testutil.NewMockBubble()
	defer mock.Close()
	for i := 0; i < 250; i++ {
		mock.Seed("restaurant", map[string]any{"n": i})
	}

	client := newTestClient(t, mock)
	seen := 0
	err := client.ForEach(context.Background(), "restaurant", queryAll(), func(r Record) error {
		seen++
		return nil
	})
	if err != nil {
		t.Fatalf("ForEach failed: %v", err)
	}
	if seen != 250 {
		t.Errorf("seen = %d, want 250", seen)
	}
	// 100 + 100 + 50
	if mock.GetRequestCount() != 3 {
		t.Errorf("requests = %d, want 3", mock.GetRequestCount())
	}
}

func TestForEach_CallbackErrorStopsWalk(t *testing.T) {
	mock := testutil.NewMockBubble()
	defer mock.Close()
	for i := 0; i < 250; i++ {
		mock.Seed("restaurant", map[string]any{"n": i})
	}

	client := newTestClient(t, mock)
	sentinel := errors.New("stop here")
	seen := 0
	err := client.ForEach(context.Background(), "restaurant", queryAll(), func(r Record) error {
		seen++
		if seen == 10 {
			return sentinel
		}
		return nil
	})
	if !errors.Is(err, sentinel) {
		t.Errorf("error = %v, want sentinel", err)
	}
	if seen != 10 {
		t.Errorf("seen = %d, want 10", seen)
	}
}

func TestFetchAll(t *testing.T) {
	mock := testutil.NewMockBubble()
	defer mock.Close()
	for i := 0; i < 150; i++ {
		mock.Seed("restaurant", map[string]any{"n": float64(i)})
	}

	client := newTestClient(t, mock)
	records, err := client.FetchAll(context.Background(), "restaurant", queryAll())
	if err != nil {
		t.Fatalf("FetchAll failed: %v", err)
	}
	if len(records) != 150 {
		t.Fatalf("len = %d, want 150", len(records))
	}
	// Cursor order is preserved.
	if records[0]["n"] != float64(0) || records[149]["n"] != float64(149) {
		t.Errorf("records out of order: first n=%v, last n=%v", records[0]["n"], records[149]["n"])
	}
}

func TestCreate(t *testing.T) {
	mock := testutil.NewMockBubble()
	defer mock.Close()

	client := newTestClient(t, mock)
	id, err := client.Create(context.Background(), "restaurant", Record{"name": "Burger Shed"})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if id == "" {
		t.Fatal("Create returned empty id")
	}

	record, err := client.GetByID(context.Background(), "restaurant", id)
	if err != nil {
		t.Fatalf("GetByID after Create failed: %v", err)
	}
	if record["name"] != "Burger Shed" {
		t.Errorf("name = %v, want Burger Shed", record["name"])
	}
}

func TestCreateBulk(t *testing.T) {
	mock := testutil.NewMockBubble()
	defer mock.Close()

	records := make([]Record, 5)
	for i := range records {
		records[i] = Record{"name": fmt.Sprintf("place-%d", i)}
	}

	client := newTestClient(t, mock)
	results, err := client.CreateBulk(context.Background(), "restaurant", records)
	if err != nil {
		t.Fatalf("CreateBulk failed: %v", err)
	}

	if len(results) != 5 {
		t.Fatalf("results = %d, want 5", len(results))
	}
	for i, r := range results {
		if !r.OK() {
			t.Errorf("result %d: status %q, message %q", i, r.Status, r.Message)
		}
		if r.ID == "" {
			t.Errorf("result %d: empty id", i)
		}
	}
	if mock.TableSize("restaurant") != 5 {
		t.Errorf("table size = %d, want 5", mock.TableSize("restaurant"))
	}
	if ct := mock.LastRequestHeader.Get("Content-Type"); ct != "text/plain" {
		t.Errorf("Content-Type = %q, want text/plain", ct)
	}
}

func TestCreateBulk_RejectsEmptyInput(t *testing.T) {
	mock := testutil.NewMockBubble()
	defer mock.Close()

	client := newTestClient(t, mock)
	if _, err := client.CreateBulk(context.Background(), "restaurant", nil); err == nil {
		t.Error("CreateBulk(nil) should fail")
	}
	if mock.GetRequestCount() != 0 {
		t.Errorf("requests = %d, want 0", mock.GetRequestCount())
	}
}

func TestUpdate(t *testing.T) {
	mock := testutil.NewMockBubble()
	defer mock.Close()
	ids := mock.Seed("restaurant", map[string]any{"name": "Chez Vivi", "seats": float64(24)})

	client := newTestClient(t, mock)
	if err := client.Update(context.Background(), "restaurant", ids[0], Record{"seats": float64(30)}); err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	record, err := client.GetByID(context.Background(), "restaurant", ids[0])
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if record["seats"] != float64(30) {
		t.Errorf("seats = %v, want 30", record["seats"])
	}
	if record["name"] != "Chez Vivi" {
		t.Errorf("name = %v, want untouched", record["name"])
	}
}

func TestReplace_ClearsUnsetFields(t *testing.T) {
	mock := testutil.NewMockBubble()
	defer mock.Close()
	ids := mock.Seed("restaurant", map[string]any{"name": "Chez Vivi", "seats": float64(24)})

	client := newTestClient(t, mock)
	if err := client.Replace(context.Background(), "restaurant", ids[0], Record{"name": "Chez Vivienne"}); err != nil {
		t.Fatalf("Replace failed: %v", err)
	}

	record, err := client.GetByID(context.Background(), "restaurant", ids[0])
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if record["name"] != "Chez Vivienne" {
		t.Errorf("name = %v, want Chez Vivienne", record["name"])
	}
	if _, ok := record["seats"]; ok {
		t.Error("seats should be gone after Replace")
	}
}

func TestDelete(t *testing.T) {
	mock := testutil.NewMockBubble()
	defer mock.Close()
	ids := mock.Seed("restaurant", map[string]any{"name": "Chez Vivi"})

	client := newTestClient(t, mock)
	if err := client.Delete(context.Background(), "restaurant", ids[0]); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}

	_, err := client.GetByID(context.Background(), "restaurant", ids[0])
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("error = %v, want ErrNotFound after delete", err)
	}
}

func TestDeleteMany(t *testing.T) {
	mock := testutil.NewMockBubble()
	defer mock.Close()
	ids := mock.Seed("restaurant",
		map[string]any{"n": 1},
		map[string]any{"n": 2},
		map[string]any{"n": 3},
	)

	client := newTestClient(t, mock)
	deleted, err := client.DeleteMany(context.Background(), "restaurant", ids[:2])
	if err != nil {
		t.Fatalf("DeleteMany failed: %v", err)
	}
	if deleted != 2 {
		t.Errorf("deleted = %d, want 2", deleted)
	}
	if mock.TableSize("restaurant") != 1 {
		t.Errorf("table size = %d, want 1", mock.TableSize("restaurant"))
	}
}

func TestDeleteMatching(t *testing.T) {
	mock := testutil.NewMockBubble()
	defer mock.Close()
	for i := 0; i < 10; i++ {
		mock.Seed("restaurant", map[string]any{"city": "Lyon"})
	}
	mock.Seed("restaurant", map[string]any{"city": "Paris"})

	client := newTestClient(t, mock)
	deleted, err := client.DeleteMatching(context.Background(), "restaurant", []query.Constraint{
		query.NewField("city").Equals("Lyon"),
	})
	if err != nil {
		t.Fatalf("DeleteMatching failed: %v", err)
	}
	if deleted != 10 {
		t.Errorf("deleted = %d, want 10", deleted)
	}
	if mock.TableSize("restaurant") != 1 {
		t.Errorf("table size = %d, want 1 (Paris survives)", mock.TableSize("restaurant"))
	}
}

func TestDeleteMatching_RefusesEmptyConstraints(t *testing.T) {
	mock := testutil.NewMockBubble()
	defer mock.Close()
	mock.Seed("restaurant", map[string]any{"n": 1})

	client := newTestClient(t, mock)
	if _, err := client.DeleteMatching(context.Background(), "restaurant", nil); err == nil {
		t.Error("DeleteMatching without constraints should fail")
	}
	if mock.TableSize("restaurant") != 1 {
		t.Error("nothing should have been deleted")
	}
}

func TestDeleteAll(t *testing.T) {
	mock := testutil.NewMockBubble()
	defer mock.Close()
	for i := 0; i < 130; i++ {
		mock.Seed("restaurant", map[string]any{"n": i})
	}

	client := newTestClient(t, mock)
	deleted, err := client.DeleteAll(context.Background(), "restaurant")
	if err != nil {
		t.Fatalf("DeleteAll failed: %v", err)
	}
	if deleted != 130 {
		t.Errorf("deleted = %d, want 130", deleted)
	}
	if mock.TableSize("restaurant") != 0 {
		t.Errorf("table size = %d, want 0", mock.TableSize("restaurant"))
	}
}

func TestRunWorkflow(t *testing.T) {
	mock := testutil.NewMockBubble()
	defer mock.Close()

	client := newTestClient(t, mock)
	result, err := client.RunWorkflow(context.Background(), "send-invoice", Record{"amount": 42})
	if err != nil {
		t.Fatalf("RunWorkflow failed: %v", err)
	}
	if result["status"] != "success" {
		t.Errorf("status = %v, want success", result["status"])
	}
	if result["workflow"] != "send-invoice" {
		t.Errorf("workflow = %v, want send-invoice", result["workflow"])
	}
}

func TestRecord_ID(t *testing.T) {
	if got := (Record{"_id": "abc"}).ID(); got != "abc" {
		t.Errorf("ID = %q, want abc", got)
	}
	if got := (Record{}).ID(); got != "" {
		t.Errorf("ID on empty record = %q, want empty", got)
	}
}
