package service

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"propchat/internal/domain"
	"propchat/internal/observability/metrics"
	"propchat/internal/push"
	"propchat/internal/store"
)

// PushService fans a notification out to every active device of a user.
// Delivery is best effort and strictly secondary to message delivery:
// nothing in here may propagate an error to the send path.
type PushService struct {
	store  *store.Store
	client *push.Client
	log    *slog.Logger
	now    func() time.Time
}

func NewPushService(st *store.Store, client *push.Client, log *slog.Logger) *PushService {
	if log == nil {
		log = slog.Default()
	}
	return &PushService{store: st, client: client, log: log, now: time.Now}
}

// Notify looks up the user's active tokens, batches them to the provider
// and reconciles the returned tickets. Tokens the provider reports as
// permanently gone are deactivated. The return value means "handled", not
// "all delivered": partial provider failure still returns true.
func (s *PushService) Notify(ctx context.Context, userID int64, title, body string, data map[string]any) bool {
	tokens, err := s.store.PushTokens().ActiveTokens(ctx, userID)
	if err != nil {
		s.log.Error("push: token lookup failed", "user_id", userID, "error", err)
		metrics.PushNotificationsTotal.WithLabelValues("lookup_error").Inc()
		return false
	}
	if len(tokens) == 0 {
		return true
	}

	notifications := make([]push.Notification, 0, len(tokens))
	for _, token := range tokens {
		if !push.IsValidToken(token) {
			s.log.Warn("push: dropping malformed token", "user_id", userID)
			continue
		}
		notifications = append(notifications, push.Notification{
			To:    token,
			Title: title,
			Body:  body,
			Data:  data,
			Sound: "default",
		})
	}
	if len(notifications) == 0 {
		return true
	}

	for start := 0; start < len(notifications); start += s.client.BatchSize() {
		end := start + s.client.BatchSize()
		if end > len(notifications) {
			end = len(notifications)
		}
		s.sendBatch(ctx, userID, notifications[start:end])
	}

	if err := s.store.PushTokens().Touch(ctx, userID, s.now().UTC()); err != nil {
		s.log.Warn("push: touch tokens failed", "user_id", userID, "error", err)
	}
	return true
}

// sendBatch performs one provider round trip and reconciles its tickets.
// Every failure is logged and swallowed.
func (s *PushService) sendBatch(ctx context.Context, userID int64, batch []push.Notification) {
	tickets, err := s.client.Send(ctx, batch)
	if err != nil {
		s.log.Error("push: provider call failed", "user_id", userID, "batch", len(batch), "error", err)
		metrics.PushNotificationsTotal.WithLabelValues("provider_error").Inc()
		return
	}

	byToken := make(map[string]push.Ticket, len(tickets))
	for _, t := range tickets {
		if t.Token != "" {
			byToken[t.Token] = t
		}
	}

	for _, n := range batch {
		ticket, ok := byToken[n.To]
		if !ok {
			metrics.PushNotificationsTotal.WithLabelValues("unacknowledged").Inc()
			continue
		}
		s.recordReceipt(ctx, userID, ticket)
		switch {
		case ticket.Status == push.StatusOK:
			metrics.PushNotificationsTotal.WithLabelValues("ok").Inc()
		case ticket.PermanentFailure():
			metrics.PushNotificationsTotal.WithLabelValues("dead_token").Inc()
			metrics.PushTokensDeactivatedTotal.WithLabelValues().Inc()
			if err := s.store.PushTokens().DeactivateToken(ctx, n.To); err != nil {
				s.log.Error("push: deactivate dead token failed", "user_id", userID, "error", err)
			} else {
				s.log.Info("push: deactivated dead token", "user_id", userID)
			}
		default:
			metrics.PushNotificationsTotal.WithLabelValues("ticket_error").Inc()
			s.log.Warn("push: delivery ticket error",
				"user_id", userID, "status", ticket.Status, "message", ticket.Message)
		}
	}
}

func (s *PushService) recordReceipt(ctx context.Context, userID int64, ticket push.Ticket) {
	details, err := json.Marshal(ticket)
	if err != nil {
		return
	}
	receipt := domain.PushReceipt{
		UserID:  userID,
		Token:   ticket.Token,
		Status:  ticket.Status,
		Details: details,
	}
	if err := s.store.PushTokens().RecordReceipt(ctx, &receipt); err != nil {
		s.log.Warn("push: receipt write failed", "user_id", userID, "error", err)
	}
}
