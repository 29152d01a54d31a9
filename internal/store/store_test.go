package store_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"propchat/internal/domain"
	"propchat/internal/store"
)

func setupStore(t *testing.T) *store.Store {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}

	st := store.New(db)
	if err := st.AutoMigrate(context.Background()); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return st
}

func strptr(s string) *string { return &s }

func TestAppendValidation(t *testing.T) {
	st := setupStore(t)
	ctx := context.Background()

	_, err := st.Messages().Append(ctx, store.AppendInput{SenderID: 1, ReceiverID: 2})
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected validation error for empty message, got %v", err)
	}

	_, err = st.Messages().Append(ctx, store.AppendInput{SenderID: 1, ReceiverID: 2, Body: strptr("   ")})
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected validation error for blank body, got %v", err)
	}

	_, err = st.Messages().Append(ctx, store.AppendInput{ReceiverID: 2, Body: strptr("hi")})
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected validation error for missing sender, got %v", err)
	}

	msg, err := st.Messages().Append(ctx, store.AppendInput{SenderID: 1, ReceiverID: 2, AttachmentURL: strptr("https://cdn.example.com/acme/image/upload/v1/pic")})
	if err != nil {
		t.Fatalf("attachment-only message should be valid: %v", err)
	}
	if msg.ID == 0 {
		t.Fatalf("expected assigned id")
	}
	if msg.Read || msg.Deleted {
		t.Fatalf("new message must start unread and visible: %+v", msg)
	}
}

func TestHistoryScopeIsolation(t *testing.T) {
	st := setupStore(t)
	ctx := context.Background()
	msgs := st.Messages()

	if _, err := msgs.Append(ctx, store.AppendInput{SenderID: 1, ReceiverID: 2, Body: strptr("unscoped")}); err != nil {
		t.Fatalf("append: %v", err)
	}
	if _, err := msgs.Append(ctx, store.AppendInput{SenderID: 2, ReceiverID: 1, Scope: domain.PropertyScope(7), Body: strptr("about the flat")}); err != nil {
		t.Fatalf("append: %v", err)
	}
	if _, err := msgs.Append(ctx, store.AppendInput{SenderID: 1, ReceiverID: 3, Body: strptr("other pair")}); err != nil {
		t.Fatalf("append: %v", err)
	}

	unscoped, err := msgs.History(ctx, 1, 2, domain.Scope{})
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(unscoped) != 1 || *unscoped[0].Body != "unscoped" {
		t.Fatalf("unscoped history should see exactly the unscoped message, got %+v", unscoped)
	}

	scoped, err := msgs.History(ctx, 1, 2, domain.PropertyScope(7))
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(scoped) != 1 || *scoped[0].Body != "about the flat" {
		t.Fatalf("scoped history should see exactly the scoped message, got %+v", scoped)
	}
}

func TestHistoryAscending(t *testing.T) {
	st := setupStore(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := st.Messages().Append(ctx, store.AppendInput{SenderID: 1, ReceiverID: 2, Body: strptr(fmt.Sprintf("m%d", i))}); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	history, err := st.Messages().History(ctx, 2, 1, domain.Scope{})
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(history))
	}
	for i := 1; i < len(history); i++ {
		if history[i].ID < history[i-1].ID {
			t.Fatalf("history not ascending: %+v", history)
		}
	}
}

func TestMarkReadIdempotent(t *testing.T) {
	st := setupStore(t)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if _, err := st.Messages().Append(ctx, store.AppendInput{SenderID: 1, ReceiverID: 2, Body: strptr("hey")}); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	affected, err := st.Messages().MarkRead(ctx, 2, 1, domain.Scope{})
	if err != nil {
		t.Fatalf("mark read: %v", err)
	}
	if affected != 2 {
		t.Fatalf("expected 2 rows marked, got %d", affected)
	}

	affected, err = st.Messages().MarkRead(ctx, 2, 1, domain.Scope{})
	if err != nil {
		t.Fatalf("second mark read: %v", err)
	}
	if affected != 0 {
		t.Fatalf("second call must be a no-op, marked %d", affected)
	}

	history, err := st.Messages().History(ctx, 2, 1, domain.Scope{})
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	for _, msg := range history {
		if !msg.Read {
			t.Fatalf("message %d still unread", msg.ID)
		}
	}
}

func TestSoftDelete(t *testing.T) {
	st := setupStore(t)
	ctx := context.Background()

	msg, err := st.Messages().Append(ctx, store.AppendInput{SenderID: 1, ReceiverID: 2, Body: strptr("to be removed")})
	if err != nil {
		t.Fatalf("append: %v", err)
	}

	if _, err := st.Messages().SoftDelete(ctx, msg.ID, 3); !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("non-participant delete should be unauthorized, got %v", err)
	}
	got, err := st.Messages().Get(ctx, msg.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Deleted {
		t.Fatalf("unauthorized delete must leave the row visible")
	}

	deleted, err := st.Messages().SoftDelete(ctx, msg.ID, 2)
	if err != nil {
		t.Fatalf("participant delete: %v", err)
	}
	if !deleted.Deleted {
		t.Fatalf("expected deleted flag set")
	}

	// Deletion is terminal and repeatable from either participant.
	again, err := st.Messages().SoftDelete(ctx, msg.ID, 1)
	if err != nil {
		t.Fatalf("repeat delete: %v", err)
	}
	if !again.Deleted {
		t.Fatalf("repeat delete changed terminal state")
	}

	if _, err := st.Messages().SoftDelete(ctx, 9999, 1); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}

	history, err := st.Messages().History(ctx, 1, 2, domain.Scope{})
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != 0 {
		t.Fatalf("deleted messages must not appear in history, got %d rows", len(history))
	}
}

func TestMuteLazyExpiry(t *testing.T) {
	st := setupStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	muted, err := st.Mutes().Effective(ctx, 2, 1, domain.Scope{}, now)
	if err != nil || muted {
		t.Fatalf("absent row must mean unmuted, got muted=%v err=%v", muted, err)
	}

	if err := st.Mutes().Set(ctx, 2, 1, domain.Scope{}, true, nil); err != nil {
		t.Fatalf("set mute: %v", err)
	}
	muted, err = st.Mutes().Effective(ctx, 2, 1, domain.Scope{}, now)
	if err != nil || !muted {
		t.Fatalf("open-ended mute must be effective, got muted=%v err=%v", muted, err)
	}

	past := now.Add(-time.Hour)
	if err := st.Mutes().Set(ctx, 2, 1, domain.Scope{}, true, &past); err != nil {
		t.Fatalf("set mute: %v", err)
	}
	muted, err = st.Mutes().Effective(ctx, 2, 1, domain.Scope{}, now)
	if err != nil || muted {
		t.Fatalf("expired mute must read as unmuted, got muted=%v err=%v", muted, err)
	}

	// Lazy expiry is read-only: the stored row keeps its flag.
	setting, ok, err := st.Mutes().Get(ctx, 2, 1, domain.Scope{})
	if err != nil || !ok {
		t.Fatalf("get: ok=%v err=%v", ok, err)
	}
	if !setting.Muted {
		t.Fatalf("expiry must not rewrite the stored row")
	}
}

func TestMuteScopeDistinct(t *testing.T) {
	st := setupStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	if err := st.Mutes().Set(ctx, 2, 1, domain.PropertyScope(7), true, nil); err != nil {
		t.Fatalf("set mute: %v", err)
	}

	muted, err := st.Mutes().Effective(ctx, 2, 1, domain.Scope{}, now)
	if err != nil || muted {
		t.Fatalf("unscoped conversation must not inherit a scoped mute")
	}
	muted, err = st.Mutes().Effective(ctx, 2, 1, domain.PropertyScope(7), now)
	if err != nil || !muted {
		t.Fatalf("scoped mute missing, got muted=%v err=%v", muted, err)
	}

	// Upsert: same key rewrites in place.
	if err := st.Mutes().Set(ctx, 2, 1, domain.PropertyScope(7), false, nil); err != nil {
		t.Fatalf("second set: %v", err)
	}
	muted, err = st.Mutes().Effective(ctx, 2, 1, domain.PropertyScope(7), now)
	if err != nil || muted {
		t.Fatalf("last write must win, got muted=%v err=%v", muted, err)
	}
}

func TestHiddenHideReveal(t *testing.T) {
	st := setupStore(t)
	ctx := context.Background()

	hidden, err := st.Hidden().IsHidden(ctx, 1, 2, domain.Scope{})
	if err != nil || hidden {
		t.Fatalf("fresh conversation must be visible")
	}

	if err := st.Hidden().Hide(ctx, 1, 2, domain.Scope{}); err != nil {
		t.Fatalf("hide: %v", err)
	}
	if err := st.Hidden().Hide(ctx, 1, 2, domain.Scope{}); err != nil {
		t.Fatalf("repeated hide must refresh, not fail: %v", err)
	}
	hidden, err = st.Hidden().IsHidden(ctx, 1, 2, domain.Scope{})
	if err != nil || !hidden {
		t.Fatalf("expected hidden after hide")
	}

	// Hiding is per viewer.
	hidden, err = st.Hidden().IsHidden(ctx, 2, 1, domain.Scope{})
	if err != nil || hidden {
		t.Fatalf("other participant's view must be unaffected")
	}

	if err := st.Hidden().Reveal(ctx, 1, 2, domain.Scope{}); err != nil {
		t.Fatalf("reveal: %v", err)
	}
	if err := st.Hidden().Reveal(ctx, 1, 2, domain.Scope{}); err != nil {
		t.Fatalf("reveal must be idempotent: %v", err)
	}
	hidden, err = st.Hidden().IsHidden(ctx, 1, 2, domain.Scope{})
	if err != nil || hidden {
		t.Fatalf("expected visible after reveal")
	}
}

func TestPushTokenLastDeviceWins(t *testing.T) {
	st := setupStore(t)
	ctx := context.Background()
	tokens := st.PushTokens()

	if err := tokens.Register(ctx, 5, "phone", "ExponentPushToken[aaa]", "ios"); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := tokens.Register(ctx, 5, "tablet", "ExponentPushToken[bbb]", "android"); err != nil {
		t.Fatalf("register: %v", err)
	}

	active, err := tokens.ActiveTokens(ctx, 5)
	if err != nil {
		t.Fatalf("active tokens: %v", err)
	}
	if len(active) != 1 || active[0] != "ExponentPushToken[bbb]" {
		t.Fatalf("last registered device must be the sole target, got %v", active)
	}

	// Re-registering the first device swaps the target back.
	if err := tokens.Register(ctx, 5, "phone", "ExponentPushToken[ccc]", "ios"); err != nil {
		t.Fatalf("re-register: %v", err)
	}
	active, err = tokens.ActiveTokens(ctx, 5)
	if err != nil {
		t.Fatalf("active tokens: %v", err)
	}
	if len(active) != 1 || active[0] != "ExponentPushToken[ccc]" {
		t.Fatalf("expected the re-registered token, got %v", active)
	}

	if err := tokens.Deactivate(ctx, 5, "phone"); err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	if err := tokens.Deactivate(ctx, 5, "phone"); err != nil {
		t.Fatalf("deactivate must be idempotent: %v", err)
	}
	active, err = tokens.ActiveTokens(ctx, 5)
	if err != nil {
		t.Fatalf("active tokens: %v", err)
	}
	if len(active) != 0 {
		t.Fatalf("expected no active tokens, got %v", active)
	}
}

func TestDeactivateTokenByValue(t *testing.T) {
	st := setupStore(t)
	ctx := context.Background()

	if err := st.PushTokens().Register(ctx, 5, "phone", "ExponentPushToken[dead]", "ios"); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := st.PushTokens().DeactivateToken(ctx, "ExponentPushToken[dead]"); err != nil {
		t.Fatalf("deactivate token: %v", err)
	}
	active, err := st.PushTokens().ActiveTokens(ctx, 5)
	if err != nil {
		t.Fatalf("active tokens: %v", err)
	}
	if len(active) != 0 {
		t.Fatalf("token should be retired, got %v", active)
	}
}
