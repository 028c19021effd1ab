package app

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
)

type sessionResponse struct {
	Token        string      `json:"token"`
	RefreshToken string      `json:"refreshToken"`
	ExpiresAt    string      `json:"expiresAt"`
	Profile      ProfileView `json:"profile"`
}

func sessionPayload(session Session) sessionResponse {
	return sessionResponse{
		Token:        session.Token,
		RefreshToken: session.RefreshToken,
		ExpiresAt:    session.ExpiresAt.UTC().Format(time.RFC3339),
		Profile:      profileView(publicProfile(session.Profile)),
	}
}

func (s *HTTPServer) handleSignUp(w http.ResponseWriter, r *http.Request) {
	var body SignUpInput
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	session, err := s.service.SignUp(r.Context(), body)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, sessionPayload(session))
}

func (s *HTTPServer) handleSignIn(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	session, err := s.service.SignIn(r.Context(), body.Email, body.Password)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sessionPayload(session))
}

func (s *HTTPServer) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var body struct {
		RefreshToken string `json:"refreshToken"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	session, err := s.service.Refresh(r.Context(), body.RefreshToken)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sessionPayload(session))
}

func (s *HTTPServer) handleLogout(w http.ResponseWriter, r *http.Request) {
	var body struct {
		RefreshToken string `json:"refreshToken"`
	}
	_ = decodeBody(r, &body)
	s.service.Logout(r.Context(), body.RefreshToken)
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *HTTPServer) handleMe(w http.ResponseWriter, r *http.Request) {
	me, err := s.service.Me(r.Context(), callerFrom(r.Context()))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, me)
}

func (s *HTTPServer) handleBecomeSharer(w http.ResponseWriter, r *http.Request) {
	sharer, err := s.service.BecomeSharer(r.Context(), callerFrom(r.Context()))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sharerId": sharer.ID, "profileId": sharer.ProfileID})
}

func (s *HTTPServer) handleListConnections(w http.ResponseWriter, r *http.Request) {
	connections, err := s.service.GetActiveConnections(r.Context(), callerFrom(r.Context()), chi.URLParam(r, "sharerId"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"connections": connections})
}

func (s *HTTPServer) handleRevokeListener(w http.ResponseWriter, r *http.Request) {
	changed, err := s.service.RevokeListener(r.Context(), callerFrom(r.Context()), chi.URLParam(r, "sharerId"), chi.URLParam(r, "listenerId"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "changed": changed})
}

func (s *HTTPServer) handleRevokeExecutor(w http.ResponseWriter, r *http.Request) {
	if err := s.service.RevokeExecutor(r.Context(), callerFrom(r.Context()), chi.URLParam(r, "sharerId"), chi.URLParam(r, "executorId")); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *HTTPServer) handleListInvitations(w http.ResponseWriter, r *http.Request) {
	invitations, err := s.service.ListInvitations(r.Context(), callerFrom(r.Context()), chi.URLParam(r, "sharerId"), r.URL.Query().Get("status"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"invitations": invitations})
}

func (s *HTTPServer) handleCreateInvitation(w http.ResponseWriter, r *http.Request) {
	var body CreateInvitationInput
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	invitation, err := s.service.CreateInvitation(r.Context(), callerFrom(r.Context()), chi.URLParam(r, "sharerId"), body)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, invitation)
}

func (s *HTTPServer) handleCancelInvitation(w http.ResponseWriter, r *http.Request) {
	if err := s.service.CancelInvitation(r.Context(), callerFrom(r.Context()), chi.URLParam(r, "sharerId"), chi.URLParam(r, "invitationId")); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *HTTPServer) handleFindInvitation(w http.ResponseWriter, r *http.Request) {
	lookup, err := s.service.FindInvitationByToken(r.Context(), chi.URLParam(r, "token"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, lookup)
}

func (s *HTTPServer) handleAcceptInvitation(w http.ResponseWriter, r *http.Request) {
	var body InvitationRef
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	invitation, err := s.service.AcceptInvitation(r.Context(), callerFrom(r.Context()), body)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, invitation)
}

func (s *HTTPServer) handleDeclineInvitation(w http.ResponseWriter, r *http.Request) {
	var body InvitationRef
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	invitation, err := s.service.DeclineInvitation(r.Context(), callerFrom(r.Context()), body)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, invitation)
}

func (s *HTTPServer) handleListMyFollowRequests(w http.ResponseWriter, r *http.Request) {
	requests, err := s.service.ListMyFollowRequests(r.Context(), callerFrom(r.Context()))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"followRequests": requests})
}

func (s *HTTPServer) handleCreateFollowRequest(w http.ResponseWriter, r *http.Request) {
	var body struct {
		SharerID string `json:"sharerId"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	if strings.TrimSpace(body.SharerID) == "" {
		writeError(w, http.StatusUnprocessableEntity, CodeValidation, "sharerId is required", nil)
		return
	}
	request, err := s.service.CreateFollowRequest(r.Context(), callerFrom(r.Context()), strings.TrimSpace(body.SharerID))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, request)
}

// followDecisionSharer reads the optional sharerId a client may send to pin
// the sharer it believes owns the request.
func followDecisionSharer(r *http.Request) (string, error) {
	var body struct {
		SharerID string `json:"sharerId"`
	}
	if err := decodeBody(r, &body); err != nil {
		return "", err
	}
	return strings.TrimSpace(body.SharerID), nil
}

func (s *HTTPServer) handleApproveFollowRequest(w http.ResponseWriter, r *http.Request) {
	s.decideFollowRequest(w, r, s.service.ApproveFollowRequest)
}

func (s *HTTPServer) handleDenyFollowRequest(w http.ResponseWriter, r *http.Request) {
	s.decideFollowRequest(w, r, s.service.DenyFollowRequest)
}

func (s *HTTPServer) handleRestoreFollowRequest(w http.ResponseWriter, r *http.Request) {
	s.decideFollowRequest(w, r, s.service.RestoreFollowRequest)
}

func (s *HTTPServer) decideFollowRequest(
	w http.ResponseWriter,
	r *http.Request,
	decide func(ctx context.Context, caller Caller, sharerID, requestID string) (FollowRequestView, error),
) {
	sharerID, err := followDecisionSharer(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	request, err := decide(r.Context(), callerFrom(r.Context()), sharerID, chi.URLParam(r, "requestId"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, request)
}

func (s *HTTPServer) handleListSharerFollowRequests(w http.ResponseWriter, r *http.Request) {
	status := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("status")))
	if status == "" {
		status = "pending"
	}
	if status != "pending" && status != "past" {
		writeError(w, http.StatusUnprocessableEntity, CodeValidation, "status must be pending or past", nil)
		return
	}
	requests, err := s.service.ListSharerFollowRequests(r.Context(), callerFrom(r.Context()), chi.URLParam(r, "sharerId"), status == "pending")
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"followRequests": requests})
}

func (s *HTTPServer) handleListNotifications(w http.ResponseWriter, r *http.Request) {
	list, err := s.service.ListNotifications(r.Context(), callerFrom(r.Context()), queryBool(r, "unread"), queryInt(r, "limit", 50))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *HTTPServer) handleMarkNotificationsRead(w http.ResponseWriter, r *http.Request) {
	var body struct {
		IDs []string `json:"ids"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	updated, err := s.service.MarkNotificationsRead(r.Context(), callerFrom(r.Context()), body.IDs)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"updated": updated})
}

func (s *HTTPServer) handleMarkAllNotificationsRead(w http.ResponseWriter, r *http.Request) {
	updated, err := s.service.MarkAllNotificationsRead(r.Context(), callerFrom(r.Context()))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"updated": updated})
}

func (s *HTTPServer) handleListTopics(w http.ResponseWriter, r *http.Request) {
	topics, err := s.service.ListTopics(r.Context(), callerFrom(r.Context()), chi.URLParam(r, "sharerId"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"topics": topics})
}

func (s *HTTPServer) handleGetTopic(w http.ResponseWriter, r *http.Request) {
	topic, err := s.service.GetTopic(r.Context(), callerFrom(r.Context()), chi.URLParam(r, "sharerId"), chi.URLParam(r, "categoryId"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, topic)
}

func (s *HTTPServer) handleToggleFavorite(w http.ResponseWriter, r *http.Request) {
	marked, err := s.service.ToggleTopicFavorite(r.Context(), callerFrom(r.Context()), chi.URLParam(r, "sharerId"), chi.URLParam(r, "categoryId"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"isFavorite": marked})
}

func (s *HTTPServer) handleToggleQueue(w http.ResponseWriter, r *http.Request) {
	marked, err := s.service.ToggleTopicQueue(r.Context(), callerFrom(r.Context()), chi.URLParam(r, "sharerId"), chi.URLParam(r, "categoryId"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"isInQueue": marked})
}

func (s *HTTPServer) handleExportTopic(w http.ResponseWriter, r *http.Request) {
	result, err := s.service.ExportTopic(r.Context(), callerFrom(r.Context()), chi.URLParam(r, "sharerId"), chi.URLParam(r, "categoryId"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", result.MimeType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+result.Filename+`"`)
	w.Header().Set("Content-Length", strconv.Itoa(len(result.Data)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(result.Data)
}

func (s *HTTPServer) handleSearch(w http.ResponseWriter, r *http.Request) {
	response, err := s.service.SearchResponses(r.Context(), callerFrom(r.Context()), chi.URLParam(r, "sharerId"), SearchInput{
		Query:      r.URL.Query().Get("q"),
		CategoryID: r.URL.Query().Get("categoryId"),
		Limit:      queryInt(r, "limit", 20),
		Offset:     queryInt(r, "offset", 0),
	})
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, response)
}
