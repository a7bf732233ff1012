package httpserver

import (
	"encoding/json"
	"log"
	"net/http"
	"strconv"

	"github.com/stagelink/backend/internal/service"
	"github.com/stagelink/backend/internal/ws"
)

type messageCreateRequest struct {
	Content     string          `json:"content"`
	ClientMsgID string          `json:"client_msg_id"`
	Metadata    json.RawMessage `json:"metadata,omitempty"`
}

// handleCreateMessage is the REST fallback for clients without a live socket.
// It persists with the same idempotency semantics as the socket path and fans
// the message out to joined sessions the same way, minus the ack frame.
func handleCreateMessage(msgSvc *service.MessageService, broadcaster ws.Broadcaster) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identity, ok := CurrentIdentity(r)
		if !ok {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
			return
		}
		conversationID, err := conversationIDParam(r)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid conversation id"})
			return
		}
		var req messageCreateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
			return
		}

		res, err := msgSvc.Send(r.Context(), service.SendInput{
			ConversationID: conversationID,
			Content:        req.Content,
			ClientMsgID:    req.ClientMsgID,
			Metadata:       req.Metadata,
		}, identity.ProfileID)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		status := http.StatusCreated
		if res.Duplicate {
			// A retried send was already broadcast the first time around.
			status = http.StatusOK
		} else {
			msg := res.Message
			if err := broadcaster.Publish(r.Context(), msg.ConversationID, ws.MessageEvent{
				Type:           ws.EventMessage,
				ConversationID: msg.ConversationID,
				MessageID:      msg.ID,
				SenderID:       msg.SenderProfileID,
				Content:        msg.Content,
				Metadata:       msg.Metadata,
				CreatedAt:      msg.CreatedAt,
			}); err != nil {
				log.Printf("http: broadcast message %d: %v", msg.ID, err)
			}
		}
		writeJSON(w, status, res.Message)
	}
}

func handleListMessages(msgSvc *service.MessageService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identity, ok := CurrentIdentity(r)
		if !ok {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
			return
		}
		conversationID, err := conversationIDParam(r)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid conversation id"})
			return
		}

		limit := 0
		if v := r.URL.Query().Get("limit"); v != "" {
			limit, _ = strconv.Atoi(v)
		}
		cursor := r.URL.Query().Get("cursor")

		page, err := msgSvc.History(r.Context(), conversationID, identity.ProfileID, cursor, limit)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, page)
	}
}

type markReadRequest struct {
	LastMessageID int64 `json:"last_message_id"`
}

// handleMarkRead is the REST fallback for advancing the read watermark. It
// emits the same per-message receipt fan-out as the socket path.
func handleMarkRead(msgSvc *service.MessageService, broadcaster ws.Broadcaster) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identity, ok := CurrentIdentity(r)
		if !ok {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
			return
		}
		conversationID, err := conversationIDParam(r)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid conversation id"})
			return
		}
		var req markReadRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
			return
		}

		updated, err := msgSvc.MarkRead(r.Context(), conversationID, identity.ProfileID, req.LastMessageID)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		for _, messageID := range updated {
			if err := broadcaster.Publish(r.Context(), conversationID, ws.ReceiptEvent{
				Type:           ws.EventReceiptUpdate,
				ConversationID: conversationID,
				MessageID:      messageID,
				Status:         "read",
				ReaderID:       identity.ProfileID,
			}); err != nil {
				log.Printf("http: broadcast receipt %d: %v", messageID, err)
			}
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"updated_message_ids": updated,
		})
	}
}
