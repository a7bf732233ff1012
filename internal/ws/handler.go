package ws

import (
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strings"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/stagelink/backend/internal/domain"
	"github.com/stagelink/backend/internal/service"
)

type wsAuthError struct {
	status int
	msg    string
}

func (e wsAuthError) Error() string {
	return e.msg
}

func normalizeAllowedOrigins(origins []string) map[string]struct{} {
	res := make(map[string]struct{}, len(origins))
	for _, origin := range origins {
		o := strings.TrimSpace(strings.ToLower(origin))
		if o != "" {
			res[o] = struct{}{}
		}
	}
	return res
}

func makeCheckOrigin(allowedOrigins []string) func(r *http.Request) bool {
	allowed := normalizeAllowedOrigins(allowedOrigins)
	if len(allowed) == 0 {
		return func(r *http.Request) bool {
			return false
		}
	}

	return func(r *http.Request) bool {
		origin := strings.TrimSpace(strings.ToLower(r.Header.Get("Origin")))
		if origin == "" {
			// Non-browser clients (the mobile transport) send no Origin.
			return true
		}
		if _, ok := allowed[origin]; ok {
			return true
		}

		u, err := url.Parse(origin)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return false
		}
		normalized := strings.ToLower(fmt.Sprintf("%s://%s", u.Scheme, u.Host))
		_, ok := allowed[normalized]
		return ok
	}
}

func extractTokenFromWSRequest(r *http.Request) (string, error) {
	authHeader := strings.TrimSpace(r.Header.Get("Authorization"))
	if strings.HasPrefix(strings.ToLower(authHeader), "bearer ") {
		token := strings.TrimSpace(authHeader[len("Bearer "):])
		if token != "" {
			return token, nil
		}
	}

	protocolHeader := r.Header.Get("Sec-WebSocket-Protocol")
	if protocolHeader != "" {
		parts := strings.Split(protocolHeader, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		if len(parts) >= 2 && strings.EqualFold(parts[0], "bearer") {
			token := parts[1]
			if token != "" {
				return token, nil
			}
		}
	}

	return "", wsAuthError{status: http.StatusUnauthorized, msg: "missing bearer token"}
}

// HandlerConfig bundles the gateway's tunables.
type HandlerConfig struct {
	AllowedOrigins []string
	SendRatePerSec float64
	SendBurst      int
}

// MakeHandler returns an HTTP handler for the /ws endpoint.
// The bearer credential (Authorization header or Sec-WebSocket-Protocol) is
// resolved exactly once, at connection time; auth failure terminates the
// connection before the upgrade completes. After that the handler runs one
// sequential dispatch loop per connection:
//   - join       -> membership check, add session to room (idempotent)
//   - leave      -> drop room membership (idempotent, never errors)
//   - send       -> rate-limited; persist idempotently, ack origin, broadcast
//   - mark_read  -> advance watermark, one receipt_update per updated message
//   - typing     -> upsert ephemeral state, rebroadcast as user_typing
//   - presence   -> best-effort heartbeat, failures swallowed
func MakeHandler(
	hub *Hub,
	broadcaster Broadcaster,
	idp domain.IdentityProvider,
	msgSvc *service.MessageService,
	presenceSvc *service.PresenceService,
	cfg HandlerConfig,
) http.HandlerFunc {
	checkOrigin := makeCheckOrigin(cfg.AllowedOrigins)
	upgrader := websocket.Upgrader{
		CheckOrigin: checkOrigin,
		Subprotocols: []string{
			"bearer",
		},
	}

	return func(w http.ResponseWriter, r *http.Request) {
		if !checkOrigin(r) {
			http.Error(w, "origin not allowed", http.StatusForbidden)
			return
		}

		tokenStr, err := extractTokenFromWSRequest(r)
		if err != nil {
			if authErr, ok := err.(wsAuthError); ok {
				http.Error(w, authErr.msg, authErr.status)
				return
			}
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		identity, err := idp.Authenticate(r.Context(), tokenStr)
		if err != nil {
			http.Error(w, "invalid token", http.StatusUnauthorized)
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		sess := NewSession(identity, conn)
		defer hub.Disconnect(sess)

		limiter := rate.NewLimiter(rate.Limit(cfg.SendRatePerSec), cfg.SendBurst)
		ctx := r.Context()

		for {
			var ev ClientEvent
			if err := conn.ReadJSON(&ev); err != nil {
				break
			}
			if ev.ConversationID <= 0 {
				sendError(sess, CodeBadRequest, "conversation_id is required")
				continue
			}

			switch ev.Type {

			// ── join room ────────────────────────────────────────────────────
			case EventJoin:
				isMember, err := msgSvc.IsMember(ctx, ev.ConversationID, identity.ProfileID)
				if err != nil {
					log.Printf("ws: join membership check: %v", err)
					sendError(sess, CodeBadRequest, "failed to join conversation")
					continue
				}
				if !isMember {
					sendError(sess, CodeForbidden, "not a member of this conversation")
					continue
				}
				hub.Join(sess, ev.ConversationID)

			// ── leave room ───────────────────────────────────────────────────
			case EventLeave:
				hub.Leave(sess, ev.ConversationID)

			// ── send message ─────────────────────────────────────────────────
			case EventSend:
				if !limiter.Allow() {
					sendError(sess, CodeBadRequest, "send rate limit exceeded")
					continue
				}
				res, err := msgSvc.Send(ctx, service.SendInput{
					ConversationID: ev.ConversationID,
					Content:        ev.Content,
					ClientMsgID:    ev.ClientMsgID,
					Metadata:       ev.Metadata,
				}, identity.ProfileID)
				if err != nil {
					sendServiceError(sess, err, "failed to send message")
					continue
				}
				msg := res.Message
				_ = sess.Send(AckEvent{
					Type:        EventMessageAck,
					ClientMsgID: msg.ClientMsgID,
					MessageID:   msg.ID,
					CreatedAt:   msg.CreatedAt,
				})
				// A retried send was already broadcast the first time around.
				if res.Duplicate {
					continue
				}
				if err := broadcaster.Publish(ctx, msg.ConversationID, MessageEvent{
					Type:           EventMessage,
					ConversationID: msg.ConversationID,
					MessageID:      msg.ID,
					SenderID:       msg.SenderProfileID,
					Content:        msg.Content,
					Metadata:       msg.Metadata,
					CreatedAt:      msg.CreatedAt,
				}); err != nil {
					log.Printf("ws: broadcast message %d: %v", msg.ID, err)
				}

			// ── mark read ────────────────────────────────────────────────────
			case EventMarkRead:
				updated, err := msgSvc.MarkRead(ctx, ev.ConversationID, identity.ProfileID, ev.LastMessageID)
				if err != nil {
					sendServiceError(sess, err, "failed to mark messages as read")
					continue
				}
				for _, messageID := range updated {
					if err := broadcaster.Publish(ctx, ev.ConversationID, ReceiptEvent{
						Type:           EventReceiptUpdate,
						ConversationID: ev.ConversationID,
						MessageID:      messageID,
						Status:         "read",
						ReaderID:       identity.ProfileID,
					}); err != nil {
						log.Printf("ws: broadcast receipt %d: %v", messageID, err)
					}
				}

			// ── typing indicator ─────────────────────────────────────────────
			case EventTyping:
				if err := presenceSvc.SetTyping(ctx, ev.ConversationID, identity.ProfileID, ev.IsTyping); err != nil {
					sendServiceError(sess, err, "failed to update typing state")
					continue
				}
				if err := broadcaster.Publish(ctx, ev.ConversationID, TypingEvent{
					Type:           EventUserTyping,
					ConversationID: ev.ConversationID,
					UserID:         identity.ProfileID,
					IsTyping:       ev.IsTyping,
				}); err != nil {
					log.Printf("ws: broadcast typing: %v", err)
				}

			// ── presence heartbeat ───────────────────────────────────────────
			case EventPresence:
				// A missed heartbeat only delays the freshness window.
				if err := presenceSvc.Heartbeat(ctx, ev.ConversationID, identity.ProfileID); err != nil {
					log.Printf("ws: presence heartbeat for %d: %v", identity.ProfileID, err)
				}

			default:
				log.Printf("ws: unknown event type %q from profile %d", ev.Type, identity.ProfileID)
				sendError(sess, CodeBadRequest, "unknown event type")
			}
		}
	}
}

// sendServiceError maps service sentinels onto wire error codes; failures are
// reported only to the originating connection, never broadcast.
func sendServiceError(sess *Session, err error, fallback string) {
	switch {
	case errors.Is(err, domain.ErrNotAMember):
		sendError(sess, CodeForbidden, "not a member of this conversation")
	case errors.Is(err, domain.ErrBadRequest):
		sendError(sess, CodeBadRequest, err.Error())
	default:
		log.Printf("ws: %s: %v", fallback, err)
		sendError(sess, CodeBadRequest, fallback)
	}
}

func sendError(sess *Session, code, msg string) {
	_ = sess.Send(ErrorEvent{
		Type:    EventError,
		Code:    code,
		Message: msg,
	})
}
