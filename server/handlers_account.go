package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"autopost/account"
	"autopost/post"
)

type connectReq struct {
	Username     string `json:"username"`
	ProfileImage string `json:"profileImage"`
}

func (s *Server) handleConnections(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.deps.Accounts.Connections())
}

func (s *Server) handleConnect(w http.ResponseWriter, r *http.Request) {
	pl, err := post.ParsePlatform(chi.URLParam(r, "platform"))
	if err != nil {
		writeError(w, err)
		return
	}
	var req connectReq
	if !decodeJSON(w, r, &req) {
		return
	}
	c, err := s.deps.Accounts.Connect(r.Context(), pl, req.Username, req.ProfileImage)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (s *Server) handleDisconnect(w http.ResponseWriter, r *http.Request) {
	pl, err := post.ParsePlatform(chi.URLParam(r, "platform"))
	if err != nil {
		writeError(w, err)
		return
	}
	if err := s.deps.Accounts.Disconnect(r.Context(), pl); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handlePreferencesGet(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.deps.Accounts.Preferences())
}

func (s *Server) handlePreferencesUpdate(w http.ResponseWriter, r *http.Request) {
	var patch account.PreferencesPatch
	if !decodeJSON(w, r, &patch) {
		return
	}
	prefs, err := s.deps.Accounts.UpdatePreferences(r.Context(), patch)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, prefs)
}

func (s *Server) handleAnalyticsOverview(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.deps.Analytics.Overview(s.deps.Posts.ListPosts()))
}

func (s *Server) handleAnalyticsPost(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, ok := s.deps.Posts.GetPostByID(id); !ok {
		writeError(w, post.ErrNotFound)
		return
	}
	writeJSON(w, http.StatusOK, s.deps.Analytics.PostAnalytics(id))
}
