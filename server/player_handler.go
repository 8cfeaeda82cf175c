package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"EchoFM/cache"
	"EchoFM/core/player"
	"EchoFM/model"
	"EchoFM/repository"

	"github.com/gorilla/mux"
)

// PlayerHandler 播放控制API
type PlayerHandler struct {
	controller *player.Controller
	store      *cache.Store
	repo       repository.TrackRepository
}

// NewPlayerHandler 创建播放控制处理器
func NewPlayerHandler(c *player.Controller, store *cache.Store, repo repository.TrackRepository) *PlayerHandler {
	return &PlayerHandler{controller: c, store: store, repo: repo}
}

// RegisterRoutes 注册播放相关路由
func (h *PlayerHandler) RegisterRoutes(router *mux.Router) {
	api := router.PathPrefix("/api/player").Subrouter()

	api.HandleFunc("/state", h.handleState).Methods(http.MethodGet)
	api.HandleFunc("/lyric", h.handleLyric).Methods(http.MethodGet)

	api.HandleFunc("/play", h.handlePlay).Methods(http.MethodPost)
	api.HandleFunc("/toggle", h.handleToggle).Methods(http.MethodPost)
	api.HandleFunc("/pause", h.handlePause).Methods(http.MethodPost)
	api.HandleFunc("/resume", h.handleResume).Methods(http.MethodPost)
	api.HandleFunc("/next", h.handleNext).Methods(http.MethodPost)
	api.HandleFunc("/previous", h.handlePrevious).Methods(http.MethodPost)
	api.HandleFunc("/seek", h.handleSeek).Methods(http.MethodPost)

	api.HandleFunc("/playlist", h.handleSetPlaylist).Methods(http.MethodPost)
	api.HandleFunc("/mode", h.handleSetMode).Methods(http.MethodPost)
	api.HandleFunc("/rate", h.handleSetRate).Methods(http.MethodPost)
	api.HandleFunc("/lyric/offset", h.handleLyricOffset).Methods(http.MethodPost)

	api.HandleFunc("/sleep", h.handleSleep).Methods(http.MethodPost)
	api.HandleFunc("/sleep", h.handleSleepState).Methods(http.MethodGet)
	api.HandleFunc("/sleep/cancel", h.handleSleepCancel).Methods(http.MethodPost)

	api.HandleFunc("/favorite", h.handleFavorite).Methods(http.MethodPost)
	api.HandleFunc("/dislike", h.handleDislike).Methods(http.MethodPost)
	api.HandleFunc("/source-override", h.handleSourceOverride).Methods(http.MethodPost)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeOpError 把编排层错误翻译成HTTP响应。
// 锁竞争返回 409：调用被丢弃，客户端自行决定要不要重发。
func writeOpError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, player.ErrLockContention):
		writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
	case errors.Is(err, player.ErrIndex):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
	case errors.Is(err, player.ErrResolution), errors.Is(err, player.ErrEngine):
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": err.Error()})
	default:
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
}

func (h *PlayerHandler) handleState(w http.ResponseWriter, r *http.Request) {
	snap := h.controller.Snapshot()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"state":    h.controller.State(),
		"snapshot": snap,
	})
}

func (h *PlayerHandler) handleLyric(w http.ResponseWriter, r *http.Request) {
	doc, idx, progress := h.controller.LyricState()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"document": doc,
		"index":    idx,
		"progress": progress,
	})
}

func (h *PlayerHandler) handlePlay(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Track *model.Track `json:"track"`
		Index *int         `json:"index"`
		Force bool         `json:"force"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	var err error
	switch {
	case req.Index != nil:
		err = h.controller.PlayIndex(*req.Index)
	default:
		err = h.controller.Play(req.Track, req.Force)
	}
	if err != nil {
		writeOpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.controller.Snapshot())
}

func (h *PlayerHandler) handleToggle(w http.ResponseWriter, r *http.Request) {
	if err := h.controller.Toggle(); err != nil {
		writeOpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.controller.Snapshot())
}

func (h *PlayerHandler) handlePause(w http.ResponseWriter, r *http.Request) {
	if err := h.controller.Pause(); err != nil {
		writeOpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.controller.Snapshot())
}

func (h *PlayerHandler) handleResume(w http.ResponseWriter, r *http.Request) {
	if err := h.controller.Resume(); err != nil {
		writeOpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.controller.Snapshot())
}

func (h *PlayerHandler) handleNext(w http.ResponseWriter, r *http.Request) {
	if err := h.controller.Next(); err != nil {
		writeOpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.controller.Snapshot())
}

func (h *PlayerHandler) handlePrevious(w http.ResponseWriter, r *http.Request) {
	if err := h.controller.Previous(); err != nil {
		writeOpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.controller.Snapshot())
}

func (h *PlayerHandler) handleSeek(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Position float64 `json:"position"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if err := h.controller.Seek(req.Position); err != nil {
		writeOpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.controller.Snapshot())
}

func (h *PlayerHandler) handleSetPlaylist(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Tracks []*model.Track `json:"tracks"`
		Index  int            `json:"index"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	h.controller.SetPlaylist(req.Tracks, req.Index)
	writeJSON(w, http.StatusOK, h.controller.Snapshot())
}

func (h *PlayerHandler) handleSetMode(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Mode model.PlayMode `json:"mode"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	switch req.Mode {
	case model.ModeSequential, model.ModeRepeatOne, model.ModeShuffle:
	default:
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid mode"})
		return
	}
	h.controller.SetMode(req.Mode)
	writeJSON(w, http.StatusOK, h.controller.Snapshot())
}

func (h *PlayerHandler) handleSetRate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Rate float64 `json:"rate"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	h.controller.SetRate(req.Rate)
	writeJSON(w, http.StatusOK, h.controller.Snapshot())
}

func (h *PlayerHandler) handleLyricOffset(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Offset float64 `json:"offset"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if err := h.controller.SetLyricOffset(req.Offset); err != nil {
		writeOpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *PlayerHandler) handleSleep(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Mode    model.SleepMode `json:"mode"`
		Minutes int             `json:"minutes"`
		Songs   int             `json:"songs"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	sleep := h.controller.Sleep()
	switch req.Mode {
	case model.SleepElapsed:
		if req.Minutes < 1 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "minutes must be >= 1"})
			return
		}
		sleep.SetElapsed(time.Duration(req.Minutes) * time.Minute)
	case model.SleepSongCount:
		if req.Songs < 1 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "songs must be >= 1"})
			return
		}
		sleep.SetSongCount(req.Songs)
	case model.SleepPlaylistEnd:
		h.controller.SleepPlaylistEnd()
	default:
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid sleep mode"})
		return
	}
	writeJSON(w, http.StatusOK, sleep.State())
}

func (h *PlayerHandler) handleSleepState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.controller.Sleep().State())
}

func (h *PlayerHandler) handleSleepCancel(w http.ResponseWriter, r *http.Request) {
	h.controller.Sleep().Cancel()
	writeJSON(w, http.StatusOK, h.controller.Sleep().State())
}

func (h *PlayerHandler) handleFavorite(w http.ResponseWriter, r *http.Request) {
	var req struct {
		TrackID string `json:"trackId"`
		Remove  bool   `json:"remove"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.TrackID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	var err error
	if req.Remove {
		err = h.store.RemoveFavorite(r.Context(), req.TrackID)
	} else {
		err = h.store.AddFavorite(r.Context(), req.TrackID)
	}
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *PlayerHandler) handleDislike(w http.ResponseWriter, r *http.Request) {
	var req struct {
		TrackID string `json:"trackId"`
		Remove  bool   `json:"remove"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.TrackID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	var err error
	if req.Remove {
		err = h.store.RemoveDislike(r.Context(), req.TrackID)
	} else {
		err = h.store.AddDislike(r.Context(), req.TrackID)
	}
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *PlayerHandler) handleSourceOverride(w http.ResponseWriter, r *http.Request) {
	var req struct {
		TrackID string `json:"trackId"`
		Source  string `json:"source"`
		Clear   bool   `json:"clear"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.TrackID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	ctx := context.Background()
	var err error
	if req.Clear {
		err = h.repo.ClearOverride(ctx, req.TrackID)
	} else {
		if req.Source == "" {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "source required"})
			return
		}
		err = h.repo.SetOverride(ctx, req.TrackID, req.Source)
	}
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
