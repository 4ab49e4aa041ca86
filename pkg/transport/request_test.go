package transport

import (
	"reflect"
	"testing"
)

func testItems(ids ...string) []Item {
	items := make([]Item, len(ids))
	for i, id := range ids {
		items[i] = Item{ID: id, Payload: map[string]any{"id": id}}
	}
	return items
}

func TestBatch_Split_PartitionsItems(t *testing.T) {
	b := NewBatch("POST", "/api/v1/tables", testItems("a", "b", "c", "d", "e"), 0)

	left, right := b.Split()

	if !reflect.DeepEqual(left.ItemIDs(), []string{"a", "b", "c"}) {
		t.Errorf("Expected left half [a b c], got %v", left.ItemIDs())
	}
	if !reflect.DeepEqual(right.ItemIDs(), []string{"d", "e"}) {
		t.Errorf("Expected right half [d e], got %v", right.ItemIDs())
	}
}

func TestBatch_Split_TwoItems(t *testing.T) {
	b := NewBatch("POST", "/api/v1/tables", testItems("a", "b"), 0)

	left, right := b.Split()

	if len(left.Items) != 1 || len(right.Items) != 1 {
		t.Errorf("Expected halves of size 1/1, got %d/%d", len(left.Items), len(right.Items))
	}
}

func TestBatch_Split_SharesTracker(t *testing.T) {
	b := NewBatch("POST", "/api/v1/tables", testItems("a", "b", "c"), 0)

	left, right := b.Split()

	if left.Tracker() != b.Tracker() || right.Tracker() != b.Tracker() {
		t.Error("Expected both halves to share the parent's tracker")
	}

	left.Tracker().RecordFailedSplit()
	if right.Tracker().FailedSplits() != 1 {
		t.Error("Expected failed split visible through the sibling's tracker")
	}
}

func TestBatch_Split_InheritsAttemptCounters(t *testing.T) {
	b := NewBatch("POST", "/api/v1/tables", testItems("a", "b"), 0)
	b.statusAttempts = 3
	b.connectAttempts = 1

	left, right := b.Split()

	if left.statusAttempts != 3 || right.statusAttempts != 3 {
		t.Errorf("Expected status attempts inherited, got %d/%d",
			left.statusAttempts, right.statusAttempts)
	}
	if left.connectAttempts != 1 || right.connectAttempts != 1 {
		t.Errorf("Expected connect attempts inherited, got %d/%d",
			left.connectAttempts, right.connectAttempts)
	}
}

func TestBatch_Split_SingleItemPanics(t *testing.T) {
	b := NewBatch("POST", "/api/v1/tables", testItems("only"), 0)

	defer func() {
		if recover() == nil {
			t.Error("Expected panic splitting a single-item batch")
		}
	}()
	b.Split()
}

func TestRequest_TotalAttempts(t *testing.T) {
	r := NewRequest("GET", "/api/v1/tables", nil)
	if r.TotalAttempts() != 0 {
		t.Errorf("Expected 0 attempts on a fresh request, got %d", r.TotalAttempts())
	}

	r.connectAttempts = 2
	r.readAttempts = 1
	r.statusAttempts = 4
	if r.TotalAttempts() != 7 {
		t.Errorf("Expected 7 total attempts, got %d", r.TotalAttempts())
	}
}

func TestRequest_RetryCopy_AdvancesOneCounter(t *testing.T) {
	r := NewRequest("GET", "/api/v1/tables", nil)

	next := r.retryCopy(CauseConnect)
	if next.connectAttempts != 1 || next.readAttempts != 0 || next.statusAttempts != 0 {
		t.Errorf("Expected only connect counter advanced, got %d/%d/%d",
			next.connectAttempts, next.readAttempts, next.statusAttempts)
	}
	if r.connectAttempts != 0 {
		t.Error("Expected the original request untouched")
	}

	next = next.retryCopy(causeStatus)
	if next.statusAttempts != 1 || next.connectAttempts != 1 {
		t.Errorf("Expected status counter advanced on top, got %d/%d",
			next.statusAttempts, next.connectAttempts)
	}
}
