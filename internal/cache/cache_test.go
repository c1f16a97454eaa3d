package cache

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/swaply/exchat/internal/store"
)

func testDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "exchat.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })
	if _, err := db.Migrate(); err != nil {
		t.Fatal(err)
	}
	return db
}

func TestMigrateIdempotent(t *testing.T) {
	db, err := Open(filepath.Join(t.TempDir(), "exchat.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	first, err := db.Migrate()
	if err != nil {
		t.Fatal(err)
	}
	if !first.Changed || first.Dirty {
		t.Errorf("first run = %+v, want changed and clean", first)
	}

	second, err := db.Migrate()
	if err != nil {
		t.Fatal(err)
	}
	if second.Changed {
		t.Error("second run reported changes")
	}
	if second.Version != first.Version {
		t.Errorf("version changed: %d -> %d", first.Version, second.Version)
	}
}

func TestConversationRoundTrip(t *testing.T) {
	db := testDB(t)

	conv := &store.Conversation{
		ID:    "c1",
		Type:  store.TypeLoan,
		Title: "Drill loan",
		Participants: []store.Participant{
			{ID: "alice", DisplayName: "Alice"},
			{ID: "bob", DisplayName: "Bob"},
		},
		Context:      &store.LoanContext{Item: "Drill", Duration: "3 days", Status: "active"},
		LastActivity: time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC),
		UnreadCounts: map[string]int{"alice": 0, "bob": 2},
	}
	if err := db.UpsertConversation(conv); err != nil {
		t.Fatal(err)
	}

	got, err := db.ListConversations()
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 {
		t.Fatalf("got %d conversations, want 1", len(got))
	}
	c := got[0]
	if c.ID != "c1" || c.Type != store.TypeLoan || c.Title != "Drill loan" {
		t.Errorf("conversation = %+v", c)
	}
	if len(c.Participants) != 2 || c.Participants[1].DisplayName != "Bob" {
		t.Errorf("participants = %v", c.Participants)
	}
	if c.UnreadCounts["bob"] != 2 {
		t.Errorf("unread = %v, want bob:2", c.UnreadCounts)
	}
	loan, ok := c.Context.(*store.LoanContext)
	if !ok {
		t.Fatalf("context type = %T, want *LoanContext", c.Context)
	}
	if loan.Item != "Drill" || loan.Status != "active" {
		t.Errorf("context = %+v", loan)
	}
	if c.LastActivity.UnixMilli() != conv.LastActivity.UnixMilli() {
		t.Errorf("last activity = %v, want %v", c.LastActivity, conv.LastActivity)
	}
}

func TestUpsertConversationIdempotent(t *testing.T) {
	db := testDB(t)

	conv := &store.Conversation{
		ID:           "c1",
		Type:         store.TypeService,
		Context:      &store.ServiceContext{Description: "weeding"},
		LastActivity: time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC),
	}
	if err := db.UpsertConversation(conv); err != nil {
		t.Fatal(err)
	}

	// Replay with an older activity timestamp: the row keeps the newer one.
	stale := *conv
	stale.LastActivity = conv.LastActivity.Add(-time.Hour)
	stale.Title = "updated"
	if err := db.UpsertConversation(&stale); err != nil {
		t.Fatal(err)
	}

	got, err := db.ListConversations()
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 {
		t.Fatalf("got %d rows, want 1", len(got))
	}
	if got[0].Title != "updated" {
		t.Errorf("title = %s, want updated", got[0].Title)
	}
	if got[0].LastActivity.UnixMilli() != conv.LastActivity.UnixMilli() {
		t.Errorf("last activity regressed to %v", got[0].LastActivity)
	}
}

func TestUpsertMessageDedup(t *testing.T) {
	db := testDB(t)
	at := time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)

	pending := &store.Message{
		ClientID:       "cid-1",
		ConversationID: "c1",
		Content:        "hi",
		Type:           store.MessageText,
		SenderID:       "alice",
		Timestamp:      at,
		Pending:        true,
	}
	if err := db.UpsertMessage(pending); err != nil {
		t.Fatal(err)
	}

	confirmed := *pending
	confirmed.ID = "srv-1"
	confirmed.Pending = false
	if err := db.UpsertMessage(&confirmed); err != nil {
		t.Fatal(err)
	}

	got, err := db.ListMessages("c1", 0, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 {
		t.Fatalf("got %d rows, want 1 (same client ID)", len(got))
	}
	if got[0].ID != "srv-1" || got[0].Pending {
		t.Errorf("row = %+v, want confirmed srv-1", got[0])
	}
}

func TestUpsertMessageRequiresID(t *testing.T) {
	db := testDB(t)
	if err := db.UpsertMessage(&store.Message{ConversationID: "c1"}); err == nil {
		t.Error("upsert with no IDs should fail")
	}
}

func TestListMessagesPagination(t *testing.T) {
	db := testDB(t)
	base := time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		err := db.UpsertMessage(&store.Message{
			ID:             string(rune('a' + i)),
			ConversationID: "c1",
			Timestamp:      base.Add(time.Duration(i) * time.Minute),
		})
		if err != nil {
			t.Fatal(err)
		}
	}

	// Latest page: the two newest, oldest first within the page.
	page, err := db.ListMessages("c1", 0, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(page) != 2 || page[0].ID != "d" || page[1].ID != "e" {
		t.Fatalf("page = %v, want [d e]", ids(page))
	}

	// Next page ends before the previous page's oldest entry.
	page, err = db.ListMessages("c1", page[0].Timestamp.UnixMilli(), 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(page) != 2 || page[0].ID != "b" || page[1].ID != "c" {
		t.Fatalf("page = %v, want [b c]", ids(page))
	}
}

func TestMessageReadByRoundTrip(t *testing.T) {
	db := testDB(t)
	at := time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)

	msg := &store.Message{
		ID:             "srv-1",
		ConversationID: "c1",
		Timestamp:      at,
		ReadBy:         map[string]time.Time{"bob": at.Add(time.Minute)},
	}
	if err := db.UpsertMessage(msg); err != nil {
		t.Fatal(err)
	}

	got, err := db.ListMessages("c1", 0, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 {
		t.Fatalf("got %d rows, want 1", len(got))
	}
	read, ok := got[0].ReadBy["bob"]
	if !ok {
		t.Fatal("bob's receipt lost")
	}
	if read.UnixMilli() != at.Add(time.Minute).UnixMilli() {
		t.Errorf("receipt = %v, want %v", read, at.Add(time.Minute))
	}
}

func ids(msgs []*store.Message) []string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = m.ID
	}
	return out
}
