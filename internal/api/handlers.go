package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/emberlink/ember-backend/internal/app"
	"github.com/emberlink/ember-backend/internal/auth"
	"github.com/emberlink/ember-backend/internal/repository"
	"github.com/emberlink/ember-backend/internal/service/match"
	"github.com/emberlink/ember-backend/internal/service/pool"
	"github.com/emberlink/ember-backend/internal/service/swipe"
	"github.com/emberlink/ember-backend/internal/svcerrors"
)

const defaultPoolCount = 10

// Handlers is the REST surface over the same services the websocket
// channels use. Swipes submitted here run the identical coordinator path.
type Handlers struct {
	appCtx      *app.AppContext
	coordinator *swipe.Coordinator
	matches     *match.Service
	pool        *pool.Service
	msgRepo     *repository.MessageRepository
}

// NewHandlers creates the REST handlers with dependencies from AppContext.
func NewHandlers(appCtx *app.AppContext, coordinator *swipe.Coordinator, matches *match.Service, poolSvc *pool.Service) *Handlers {
	return &Handlers{
		appCtx:      appCtx,
		coordinator: coordinator,
		matches:     matches,
		pool:        poolSvc,
		msgRepo:     repository.NewMessageRepository(appCtx.DB),
	}
}

type swipeRequest struct {
	SwipeeID uint64 `json:"swipee_id"`
	Result   string `json:"result"`
}

type swipeResponse struct {
	SwipeeID   uint64  `json:"swipee_id"`
	Result     string  `json:"result"`
	IsNewMatch bool    `json:"is_new_match"`
	MatchID    *uint64 `json:"match_id,omitempty"`
}

// createSwipe handles POST /v1/swipes.
func (h *Handlers) createSwipe(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserID(r.Context())
	if !ok {
		writeError(w, svcerrors.ErrUnauthorized)
		return
	}

	var req swipeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, svcerrors.ErrInvalidSwipe)
		return
	}

	out, err := h.coordinator.RecordSwipe(r.Context(), userID, req.SwipeeID, req.Result)
	if err != nil {
		h.appCtx.Logger.Debug("swipe rejected", "user_id", userID, "swipee", req.SwipeeID, "err", err)
		writeError(w, err)
		return
	}

	resp := swipeResponse{
		SwipeeID:   req.SwipeeID,
		Result:     out.Record.Result,
		IsNewMatch: out.NewMatch,
	}
	if out.Match != nil {
		resp.MatchID = &out.Match.ID
	}
	writeJSON(w, http.StatusCreated, resp)
}

// getPool handles GET /v1/pool?count=N: pops the next candidates from the
// caller's cached pool.
func (h *Handlers) getPool(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserID(r.Context())
	if !ok {
		writeError(w, svcerrors.ErrUnauthorized)
		return
	}

	count := defaultPoolCount
	if v := r.URL.Query().Get("count"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			count = n
		}
	}

	candidates, err := h.pool.GetNext(r.Context(), userID, count)
	if err != nil {
		writeError(w, err)
		return
	}
	if candidates == nil {
		candidates = []pool.Candidate{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"candidates": candidates})
}

// listMatches handles GET /v1/matches.
func (h *Handlers) listMatches(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserID(r.Context())
	if !ok {
		writeError(w, svcerrors.ErrUnauthorized)
		return
	}

	matches, err := h.matches.MatchesForUser(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}

	type matchView struct {
		ID           uint64   `json:"id"`
		Participants []uint64 `json:"participants"`
		CreatedAt    string   `json:"created_at"`
	}
	views := make([]matchView, 0, len(matches))
	for i := range matches {
		views = append(views, matchView{
			ID:           matches[i].ID,
			Participants: []uint64{matches[i].UserLow, matches[i].UserHigh},
			CreatedAt:    matches[i].CreatedAt.UTC().Format("2006-01-02T15:04:05.000Z07:00"),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"matches": views})
}

// listMessages handles GET /v1/matches/{matchID}/messages?limit=&token=.
func (h *Handlers) listMessages(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserID(r.Context())
	if !ok {
		writeError(w, svcerrors.ErrUnauthorized)
		return
	}

	matchID, err := strconv.ParseUint(chi.URLParam(r, "matchID"), 10, 64)
	if err != nil {
		writeError(w, svcerrors.ErrNotFound)
		return
	}

	isParticipant, err := h.matches.IsParticipant(r.Context(), matchID, userID)
	if err != nil {
		writeError(w, err)
		return
	}
	if !isParticipant {
		writeError(w, svcerrors.ErrNotParticipant)
		return
	}

	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 100 {
			limit = n
		}
	}
	var token *string
	if v := r.URL.Query().Get("token"); v != "" {
		token = &v
	}

	messages, nextToken, err := h.msgRepo.ListByMatch(r.Context(), matchID, token, limit)
	if err != nil {
		writeError(w, err)
		return
	}

	type messageView struct {
		ID        uint64 `json:"id"`
		SenderID  uint64 `json:"sender_id"`
		Content   string `json:"content"`
		CreatedAt string `json:"created_at"`
	}
	views := make([]messageView, 0, len(messages))
	for i := range messages {
		views = append(views, messageView{
			ID:        messages[i].ID,
			SenderID:  messages[i].SenderID,
			Content:   messages[i].Content,
			CreatedAt: messages[i].CreatedAt.UTC().Format("2006-01-02T15:04:05.000Z07:00"),
		})
	}
	resp := map[string]any{"messages": views}
	if nextToken != nil {
		resp["next_token"] = *nextToken
	}
	writeJSON(w, http.StatusOK, resp)
}

// --- helpers ---

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, svcerrors.HTTPStatus(err), map[string]any{
		"error": map[string]any{
			"code":      svcerrors.Code(err),
			"message":   err.Error(),
			"retryable": svcerrors.Retryable(err),
		},
	})
}
