package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"torchverso/builder"
	"torchverso/chat"
	"torchverso/economy"
	"torchverso/land"
	"torchverso/service"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

type ctxKey int

const (
	uidKey ctxKey = iota
	nameKey
)

type Handler struct {
	svc    *service.Service
	logger *zap.Logger
}

func NewHandler(svc *service.Service, logger *zap.Logger) Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return Handler{
		svc:    svc,
		logger: logger.With(zap.String("component", "http")),
	}
}

// Register mounts every route on r.
func (h Handler) Register(r *mux.Router) {
	r.HandleFunc("/api/auth/anonymous", h.AuthHandler).Methods("POST")
	r.HandleFunc("/api/city", h.JWTMiddleware(h.CityHandler)).Methods("GET")
	r.HandleFunc("/api/plots/at", h.JWTMiddleware(h.PlotAtHandler)).Methods("GET")
	r.HandleFunc("/api/plots/{id}/buy", h.JWTMiddleware(h.BuyPlotHandler)).Methods("POST")
	r.HandleFunc("/api/plots/{id}/rent", h.JWTMiddleware(h.RentPlotHandler)).Methods("POST")
	r.HandleFunc("/api/buildings", h.JWTMiddleware(h.PlaceBuildingHandler)).Methods("POST")
	r.HandleFunc("/api/buildings/{index}", h.JWTMiddleware(h.MoveBuildingHandler)).Methods("PUT")
	r.HandleFunc("/api/buildings/{index}", h.JWTMiddleware(h.RemoveBuildingHandler)).Methods("DELETE")
	r.HandleFunc("/api/save", h.JWTMiddleware(h.SaveHandler)).Methods("POST")
	r.HandleFunc("/api/reset", h.JWTMiddleware(h.ResetHandler)).Methods("POST")
	r.HandleFunc("/api/chat", h.JWTMiddleware(h.ChatHistoryHandler)).Methods("GET")
	r.HandleFunc("/api/chat", h.JWTMiddleware(h.SendChatHandler)).Methods("POST")
	r.HandleFunc("/api/interact", h.JWTMiddleware(h.InteractHandler)).Methods("POST")
	r.HandleFunc("/ws", h.PresenceSocket).Methods("GET")
	r.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if _, err := w.Write([]byte("Torchverso city server")); err != nil {
			h.logger.Warn("write banner", zap.Error(err))
		}
	}).Methods("GET")
}

type AuthRequest struct {
	UID    string `json:"uid"`
	Secret string `json:"secret"`
}

type RentRequest struct {
	Duration string `json:"duration"`
}

type BuildingRequest struct {
	Type     string  `json:"type"`
	X        float64 `json:"x"`
	Z        float64 `json:"z"`
	Rotation float64 `json:"rotation"`
}

type ChatRequest struct {
	Text string `json:"text"`
	To   string `json:"to"`
}

type InteractRequest struct {
	X       float64 `json:"x"`
	Z       float64 `json:"z"`
	Message string  `json:"message"`
}

type ErrorResponse struct {
	Errors string `json:"errors"`
}

var errorStatus = []struct {
	err  error
	code int
}{
	{service.ErrInvalidCredentials, http.StatusUnauthorized},
	{land.ErrPlotNotFound, http.StatusNotFound},
	{builder.ErrNoBuilding, http.StatusNotFound},
	{service.ErrNoSuchEntity, http.StatusNotFound},
	{land.ErrInsufficientFunds, http.StatusPaymentRequired},
	{economy.ErrInsufficientFunds, http.StatusPaymentRequired},
	{land.ErrPlotUnavailable, http.StatusConflict},
	{land.ErrNotOwner, http.StatusForbidden},
	{land.ErrUnknownRentKind, http.StatusBadRequest},
	{builder.ErrUnknownPrefab, http.StatusBadRequest},
	{chat.ErrEmptyMessage, http.StatusBadRequest},
	{chat.ErrTooLong, http.StatusBadRequest},
	{service.ErrOutOfRange, http.StatusBadRequest},
	{chat.ErrFlood, http.StatusTooManyRequests},
	{service.ErrBackendUnavailable, http.StatusServiceUnavailable},
	{service.ErrSessionClosed, http.StatusServiceUnavailable},
}

func statusOf(err error) int {
	for _, e := range errorStatus {
		if errors.Is(err, e.err) {
			return e.code
		}
	}
	return http.StatusInternalServerError
}

func (h Handler) fail(w http.ResponseWriter, err error) {
	code := statusOf(err)
	if code >= http.StatusInternalServerError {
		h.logger.Warn("request failed", zap.Int("status", code), zap.Error(err))
	}
	respondWithError(w, code, err.Error())
}

func (h Handler) AuthHandler(w http.ResponseWriter, r *http.Request) {
	var req AuthRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		respondWithError(w, http.StatusBadRequest, "invalid request")
		return
	}
	res, err := h.svc.AuthenticateAnonymous(r.Context(), req.UID, req.Secret)
	if err != nil {
		h.fail(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, res)
}

// session resolves the caller's session from the context set by
// JWTMiddleware.
// session returns the caller's session for the duration of the request.
func (h Handler) session(w http.ResponseWriter, r *http.Request) (*service.Session, func(), bool) {
	uid, ok := r.Context().Value(uidKey).(string)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "user not found in context")
		return nil, nil, false
	}
	name, _ := r.Context().Value(nameKey).(string)
	sess, release, err := h.svc.Use(r.Context(), uid, name)
	if err != nil {
		h.fail(w, err)
		return nil, nil, false
	}
	return sess, release, true
}

func (h Handler) CityHandler(w http.ResponseWriter, r *http.Request) {
	sess, release, ok := h.session(w, r)
	if !ok {
		return
	}
	defer release()
	respondWithJSON(w, http.StatusOK, sess.City())
}

func (h Handler) PlotAtHandler(w http.ResponseWriter, r *http.Request) {
	sess, release, ok := h.session(w, r)
	if !ok {
		return
	}
	defer release()
	x, errX := strconv.ParseFloat(r.URL.Query().Get("x"), 64)
	z, errZ := strconv.ParseFloat(r.URL.Query().Get("z"), 64)
	if errX != nil || errZ != nil {
		respondWithError(w, http.StatusBadRequest, "x and z must be numbers")
		return
	}
	plot, found := sess.PlotAt(x, z)
	if !found {
		respondWithError(w, http.StatusNotFound, "no plot at this point")
		return
	}
	respondWithJSON(w, http.StatusOK, plot)
}

func (h Handler) BuyPlotHandler(w http.ResponseWriter, r *http.Request) {
	sess, release, ok := h.session(w, r)
	if !ok {
		return
	}
	defer release()
	plot, err := sess.BuyPlot(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.fail(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, plot)
}

func (h Handler) RentPlotHandler(w http.ResponseWriter, r *http.Request) {
	sess, release, ok := h.session(w, r)
	if !ok {
		return
	}
	defer release()
	var req RentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request")
		return
	}
	plot, err := sess.RentPlot(r.Context(), mux.Vars(r)["id"], req.Duration)
	if err != nil {
		h.fail(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, plot)
}

func (h Handler) PlaceBuildingHandler(w http.ResponseWriter, r *http.Request) {
	sess, release, ok := h.session(w, r)
	if !ok {
		return
	}
	defer release()
	var req BuildingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Type == "" {
		respondWithError(w, http.StatusBadRequest, "invalid request")
		return
	}
	b, err := sess.PlaceBuilding(req.Type, req.X, req.Z, req.Rotation)
	if err != nil {
		h.fail(w, err)
		return
	}
	respondWithJSON(w, http.StatusCreated, b)
}

func buildingIndex(w http.ResponseWriter, r *http.Request) (int, bool) {
	index, err := strconv.Atoi(mux.Vars(r)["index"])
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "building index must be an integer")
		return 0, false
	}
	return index, true
}

func (h Handler) MoveBuildingHandler(w http.ResponseWriter, r *http.Request) {
	sess, release, ok := h.session(w, r)
	if !ok {
		return
	}
	defer release()
	index, ok := buildingIndex(w, r)
	if !ok {
		return
	}
	var req BuildingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request")
		return
	}
	b, err := sess.MoveBuilding(index, req.X, req.Z, req.Rotation)
	if err != nil {
		h.fail(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, b)
}

func (h Handler) RemoveBuildingHandler(w http.ResponseWriter, r *http.Request) {
	sess, release, ok := h.session(w, r)
	if !ok {
		return
	}
	defer release()
	index, ok := buildingIndex(w, r)
	if !ok {
		return
	}
	b, err := sess.RemoveBuilding(index)
	if err != nil {
		h.fail(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, b)
}

func (h Handler) SaveHandler(w http.ResponseWriter, r *http.Request) {
	sess, release, ok := h.session(w, r)
	if !ok {
		return
	}
	defer release()
	if err := sess.Save(r.Context()); err != nil {
		h.fail(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h Handler) ResetHandler(w http.ResponseWriter, r *http.Request) {
	sess, release, ok := h.session(w, r)
	if !ok {
		return
	}
	defer release()
	if err := sess.Reset(r.Context()); err != nil {
		h.fail(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, sess.City())
}

func (h Handler) ChatHistoryHandler(w http.ResponseWriter, r *http.Request) {
	sess, release, ok := h.session(w, r)
	if !ok {
		return
	}
	defer release()
	feed, err := sess.ChatFeed(r.Context())
	if err != nil {
		h.fail(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, feed)
}

func (h Handler) SendChatHandler(w http.ResponseWriter, r *http.Request) {
	sess, release, ok := h.session(w, r)
	if !ok {
		return
	}
	defer release()
	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request")
		return
	}
	res, err := sess.SendChat(r.Context(), req.Text, req.To)
	if err != nil {
		h.fail(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, res)
}

func (h Handler) InteractHandler(w http.ResponseWriter, r *http.Request) {
	sess, release, ok := h.session(w, r)
	if !ok {
		return
	}
	defer release()
	var req InteractRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request")
		return
	}
	reply, found := sess.Interact(r.Context(), req.X, req.Z, req.Message)
	if !found {
		respondWithError(w, http.StatusNotFound, "nobody within reach")
		return
	}
	respondWithJSON(w, http.StatusOK, reply)
}

func (h Handler) JWTMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			respondWithError(w, http.StatusUnauthorized, "missing authorization token")
			return
		}

		const bearerPrefix = "Bearer "
		if !strings.HasPrefix(authHeader, bearerPrefix) || len(authHeader) == len(bearerPrefix) {
			respondWithError(w, http.StatusUnauthorized, "malformed token")
			return
		}

		uid, name, err := h.svc.ParseToken(authHeader[len(bearerPrefix):])
		if err != nil {
			respondWithError(w, http.StatusUnauthorized, "invalid token")
			return
		}
		ctx := context.WithValue(r.Context(), uidKey, uid)
		ctx = context.WithValue(ctx, nameKey, name)
		next(w, r.WithContext(ctx))
	}
}

func respondWithError(w http.ResponseWriter, code int, message string) {
	respondWithJSON(w, code, ErrorResponse{Errors: message})
}

func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(payload)
}
