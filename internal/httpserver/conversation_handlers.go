package httpserver

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/stagelink/backend/internal/domain"
	"github.com/stagelink/backend/internal/service"
)

type conversationCreateRequest struct {
	Name             *string `json:"name"`
	IsGroup          bool    `json:"is_group"`
	MemberProfileIDs []int64 `json:"member_profile_ids"`
}

func handleCreateConversation(convSvc *service.ConversationService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identity, ok := CurrentIdentity(r)
		if !ok {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
			return
		}
		var req conversationCreateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
			return
		}

		conv, err := convSvc.Create(r.Context(), service.ConversationCreateInput{
			Name:             req.Name,
			IsGroup:          req.IsGroup,
			MemberProfileIDs: req.MemberProfileIDs,
		}, identity.ProfileID)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, conv)
	}
}

func handleListConversations(convSvc *service.ConversationService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identity, ok := CurrentIdentity(r)
		if !ok {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
			return
		}
		convs, err := convSvc.ListForProfile(r.Context(), identity.ProfileID)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, convs)
	}
}

type conversationDetail struct {
	*domain.Conversation
	MemberProfileIDs []int64 `json:"member_profile_ids"`
}

func handleGetConversation(convSvc *service.ConversationService) http.HandlerFunc {
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
		conv, err := convSvc.Get(r.Context(), conversationID, identity.ProfileID)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		memberIDs, err := convSvc.MemberIDs(r.Context(), conversationID, identity.ProfileID)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, conversationDetail{
			Conversation:     conv,
			MemberProfileIDs: memberIDs,
		})
	}
}

func conversationIDParam(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, "conversationID"), 10, 64)
}
