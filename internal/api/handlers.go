package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"botsmith/internal/conversation"
	"botsmith/internal/storage"
)

const maxBody = 1 << 20

type wizardRequest struct {
	UserMessage string   `json:"userMessage"`
	SessionID   string   `json:"sessionId"`
	Selections  []string `json:"selections,omitempty"`
}

type wizardResponse struct {
	Messages         []conversation.Message `json:"messages"`
	ShowPreview      bool                   `json:"showPreview"`
	AgentProfile     conversation.Profile   `json:"agentProfile"`
	CurrentStage     conversation.Stage     `json:"currentStage"`
	CreatedChatbotID *int64                 `json:"createdChatbotId"`
}

func (s *Server) wizardMessage(w http.ResponseWriter, r *http.Request) {
	var req wizardRequest
	if !decode(w, r, &req) {
		return
	}
	input := req.UserMessage
	if len(req.Selections) > 0 {
		input = strings.Join(req.Selections, ", ")
	}

	reply, err := s.deps.Wizard.HandleMessage(r.Context(), req.SessionID, input)
	if errors.Is(err, conversation.ErrMissingSession) {
		Error(w, http.StatusBadRequest, "sessionId is required")
		return
	}
	if err != nil {
		s.log.Error().Err(err).Str("session_id", req.SessionID).Msg("wizard turn failed")
		Error(w, http.StatusInternalServerError, "Failed to process conversation")
		return
	}

	resp := wizardResponse{
		Messages:     reply.Messages,
		ShowPreview:  reply.ShowPreview,
		AgentProfile: reply.Profile,
		CurrentStage: reply.Stage,
	}
	if reply.CreatedChatbotID > 0 {
		resp.CreatedChatbotID = &reply.CreatedChatbotID
	}
	JSON(w, http.StatusOK, resp)
}

func (s *Server) wizardReset(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SessionID string `json:"sessionId"`
	}
	if !decode(w, r, &req) {
		return
	}
	if err := s.deps.Wizard.Reset(r.Context(), req.SessionID); err != nil {
		if errors.Is(err, conversation.ErrMissingSession) {
			Error(w, http.StatusBadRequest, "sessionId is required")
			return
		}
		s.log.Error().Err(err).Msg("reset wizard session")
		Error(w, http.StatusInternalServerError, "Failed to reset conversation")
		return
	}
	JSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (s *Server) wizardSession(w http.ResponseWriter, r *http.Request) {
	snap, err := s.deps.Wizard.Snapshot(r.Context(), chi.URLParam(r, "sessionId"))
	if err != nil {
		s.log.Error().Err(err).Msg("load wizard session")
		Error(w, http.StatusInternalServerError, "Failed to get session")
		return
	}
	JSON(w, http.StatusOK, snap)
}

func (s *Server) wizardTemplates(w http.ResponseWriter, _ *http.Request) {
	JSON(w, http.StatusOK, map[string]any{"templates": s.deps.Wizard.Templates()})
}

func (s *Server) listProviders(w http.ResponseWriter, _ *http.Request) {
	JSON(w, http.StatusOK, s.deps.Providers.ListProviders())
}

func (s *Server) listChatbots(w http.ResponseWriter, r *http.Request) {
	owner := s.cfg.DefaultOwnerID
	if raw := r.URL.Query().Get("userId"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id <= 0 {
			Error(w, http.StatusBadRequest, "invalid userId")
			return
		}
		owner = id
	}
	bots, err := s.deps.Store.ListChatbots(r.Context(), owner)
	if err != nil {
		s.log.Error().Err(err).Msg("list chatbots")
		Error(w, http.StatusInternalServerError, "Failed to fetch chatbots")
		return
	}
	JSON(w, http.StatusOK, bots)
}

func (s *Server) createChatbot(w http.ResponseWriter, r *http.Request) {
	var in storage.ChatbotInput
	if !decode(w, r, &in) {
		return
	}
	if in.OwnerID == 0 {
		in.OwnerID = s.cfg.DefaultOwnerID
	}
	bot, err := s.deps.Store.CreateChatbot(r.Context(), in)
	if s.storeError(w, err, "Failed to create chatbot") {
		return
	}
	JSON(w, http.StatusCreated, bot)
}

func (s *Server) getChatbot(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	bot, err := s.deps.Store.GetChatbot(r.Context(), id)
	if s.storeError(w, err, "Failed to fetch chatbot") {
		return
	}
	JSON(w, http.StatusOK, bot)
}

func (s *Server) updateChatbot(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var patch storage.ChatbotPatch
	if !decode(w, r, &patch) {
		return
	}
	bot, err := s.deps.Store.UpdateChatbot(r.Context(), id, patch)
	if s.storeError(w, err, "Failed to update chatbot") {
		return
	}
	JSON(w, http.StatusOK, bot)
}

func (s *Server) deleteChatbot(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if s.storeError(w, s.deps.Store.DeleteChatbot(r.Context(), id), "Failed to delete chatbot") {
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) getTranscript(w http.ResponseWriter, r *http.Request) {
	conv, err := s.deps.Store.GetConversationBySessionID(r.Context(), chi.URLParam(r, "sessionId"))
	if errors.Is(err, storage.ErrNotFound) {
		Error(w, http.StatusNotFound, "Conversation not found")
		return
	}
	if s.storeError(w, err, "Failed to fetch conversation") {
		return
	}
	JSON(w, http.StatusOK, conv)
}

func (s *Server) dashboardStats(w http.ResponseWriter, r *http.Request) {
	st, err := s.deps.Store.Stats(r.Context())
	if s.storeError(w, err, "Failed to fetch dashboard stats") {
		return
	}
	JSON(w, http.StatusOK, st)
}

// storeError writes the response for a failed storage call and reports
// whether it did.
func (s *Server) storeError(w http.ResponseWriter, err error, msg string) bool {
	if err == nil {
		return false
	}
	var verr *storage.ValidationError
	switch {
	case errors.As(err, &verr):
		ErrorDetails(w, http.StatusBadRequest, "Invalid chatbot data", verr.Fields)
	case errors.Is(err, storage.ErrNotFound):
		Error(w, http.StatusNotFound, "Chatbot not found")
	default:
		s.log.Error().Err(err).Msg(msg)
		Error(w, http.StatusInternalServerError, msg)
	}
	return true
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBody))
	if err := dec.Decode(v); err != nil {
		ErrorDetails(w, http.StatusBadRequest, "invalid JSON body", err.Error())
		return false
	}
	return true
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		Error(w, http.StatusBadRequest, "invalid chatbot id")
		return 0, false
	}
	return id, true
}
