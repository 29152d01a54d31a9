package service_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"propchat/internal/domain"
	"propchat/internal/push"
	"propchat/internal/service"
	"propchat/internal/store"
)

func setupPush(t *testing.T, handler http.Handler) (*service.PushService, *store.Store, *httptest.Server) {
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

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client := push.NewClient(srv.URL, 5*time.Second)
	return service.NewPushService(st, client, nil), st, srv
}

func ticketResponse(tickets ...push.Ticket) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"data": tickets})
	}
}

func TestNotifyNoTokensIsNoop(t *testing.T) {
	var hits atomic.Int32
	svc, _, _ := setupPush(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}))

	if !svc.Notify(context.Background(), 5, "t", "b", nil) {
		t.Fatalf("no tokens must still report handled")
	}
	if hits.Load() != 0 {
		t.Fatalf("provider must not be called without tokens")
	}
}

func TestNotifyDropsMalformedTokens(t *testing.T) {
	var hits atomic.Int32
	svc, st, _ := setupPush(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}))
	ctx := context.Background()

	if err := st.PushTokens().Register(ctx, 5, "phone", "not-a-push-token", "ios"); err != nil {
		t.Fatalf("register: %v", err)
	}
	if !svc.Notify(ctx, 5, "t", "b", nil) {
		t.Fatalf("expected handled")
	}
	if hits.Load() != 0 {
		t.Fatalf("malformed tokens must be dropped before the provider call")
	}
}

func TestNotifyDeactivatesDeadToken(t *testing.T) {
	const token = "ExponentPushToken[gone]"
	svc, st, _ := setupPush(t, ticketResponse(push.Ticket{
		Token:   token,
		Status:  push.StatusError,
		Message: "device no longer registered",
		Details: &push.TicketDetails{Error: push.ErrDeviceNotRegistered},
	}))
	ctx := context.Background()

	if err := st.PushTokens().Register(ctx, 5, "phone", token, "ios"); err != nil {
		t.Fatalf("register: %v", err)
	}

	if !svc.Notify(ctx, 5, "New message", "Hello", map[string]any{"message_id": 1}) {
		t.Fatalf("permanent failure is still handled")
	}

	active, err := st.PushTokens().ActiveTokens(ctx, 5)
	if err != nil {
		t.Fatalf("active tokens: %v", err)
	}
	if len(active) != 0 {
		t.Fatalf("dead token must be deactivated, got %v", active)
	}

	// Re-registering the device restores delivery.
	if err := st.PushTokens().Register(ctx, 5, "phone", "ExponentPushToken[fresh]", "ios"); err != nil {
		t.Fatalf("re-register: %v", err)
	}
	active, err = st.PushTokens().ActiveTokens(ctx, 5)
	if err != nil {
		t.Fatalf("active tokens: %v", err)
	}
	if len(active) != 1 || active[0] != "ExponentPushToken[fresh]" {
		t.Fatalf("expected fresh token active, got %v", active)
	}

	// The ticket left an audit receipt.
	var receipts []domain.PushReceipt
	if err := st.DB.Find(&receipts).Error; err != nil {
		t.Fatalf("receipts: %v", err)
	}
	if len(receipts) != 1 || receipts[0].Token != token || receipts[0].Status != push.StatusError {
		t.Fatalf("unexpected receipts %+v", receipts)
	}
}

func TestNotifySurvivesProviderOutage(t *testing.T) {
	svc, st, _ := setupPush(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream down", http.StatusBadGateway)
	}))
	ctx := context.Background()

	if err := st.PushTokens().Register(ctx, 5, "phone", "ExponentPushToken[abc]", "ios"); err != nil {
		t.Fatalf("register: %v", err)
	}
	if !svc.Notify(ctx, 5, "t", "b", nil) {
		t.Fatalf("provider outage must not surface to the caller")
	}

	// The token survives a transient failure.
	active, err := st.PushTokens().ActiveTokens(ctx, 5)
	if err != nil {
		t.Fatalf("active tokens: %v", err)
	}
	if len(active) != 1 {
		t.Fatalf("transient failure must not retire tokens, got %v", active)
	}
}

func TestNotifySuccessfulDelivery(t *testing.T) {
	const token = "ExponentPushToken[ok]"
	var gotBody atomic.Value
	svc, st, _ := setupPush(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var batch []push.Notification
		_ = json.NewDecoder(r.Body).Decode(&batch)
		gotBody.Store(batch)
		ticketResponse(push.Ticket{ID: "t-1", Token: token, Status: push.StatusOK})(w, r)
	}))
	ctx := context.Background()

	if err := st.PushTokens().Register(ctx, 5, "phone", token, "ios"); err != nil {
		t.Fatalf("register: %v", err)
	}
	if !svc.Notify(ctx, 5, "Dana Seller", "Hello", map[string]any{"message_id": 101}) {
		t.Fatalf("expected handled")
	}

	batch, _ := gotBody.Load().([]push.Notification)
	if len(batch) != 1 || batch[0].To != token || batch[0].Title != "Dana Seller" {
		t.Fatalf("unexpected provider payload %+v", batch)
	}
}
