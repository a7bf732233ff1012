package httpserver

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/stagelink/backend/internal/service"
	"github.com/stagelink/backend/internal/ws"
)

type typingRequest struct {
	IsTyping bool `json:"is_typing"`
}

// handleSetTyping mirrors the socket typing event for clients without a live
// connection, including the fan-out to joined sessions.
func handleSetTyping(presenceSvc *service.PresenceService, broadcaster ws.Broadcaster) http.HandlerFunc {
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
		var req typingRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
			return
		}

		if err := presenceSvc.SetTyping(r.Context(), conversationID, identity.ProfileID, req.IsTyping); err != nil {
			writeServiceError(w, err)
			return
		}
		if err := broadcaster.Publish(r.Context(), conversationID, ws.TypingEvent{
			Type:           ws.EventUserTyping,
			ConversationID: conversationID,
			UserID:         identity.ProfileID,
			IsTyping:       req.IsTyping,
		}); err != nil {
			log.Printf("http: broadcast typing: %v", err)
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "success"})
	}
}

// handleHeartbeat refreshes the caller's last-seen timestamp.
func handleHeartbeat(presenceSvc *service.PresenceService) http.HandlerFunc {
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

		if err := presenceSvc.Heartbeat(r.Context(), conversationID, identity.ProfileID); err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "success"})
	}
}

func handleGetPresence(presenceSvc *service.PresenceService) http.HandlerFunc {
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

		views, err := presenceSvc.Snapshot(r.Context(), conversationID, identity.ProfileID)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, views)
	}
}
