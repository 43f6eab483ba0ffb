package server

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"autopost/generator"
	"autopost/imagegen"
	"autopost/post"
)

type textReq struct {
	Prompt    string         `json:"prompt"`
	Platform  post.Platform  `json:"platform"`
	Tone      generator.Tone `json:"tone"`
	MaxLength int            `json:"maxLength"`
}

func (r textReq) request() generator.TextRequest {
	return generator.TextRequest{Prompt: r.Prompt, Platform: r.Platform, Tone: r.Tone, MaxLength: r.MaxLength}
}

type textResp struct {
	Content string `json:"content"`
}

type imageResp struct {
	ImageURL string `json:"imageUrl"`
}

func (s *Server) handleGenerateText(w http.ResponseWriter, r *http.Request) {
	var req textReq
	if !decodeJSON(w, r, &req) {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), generateTimeout)
	defer cancel()
	content, err := s.deps.Text.GenerateText(ctx, req.request())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, textResp{Content: content})
}

func (s *Server) handleGenerateImage(w http.ResponseWriter, r *http.Request) {
	var req imagegen.ImageRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), generateTimeout*2)
	defer cancel()
	url, err := s.deps.Images.GenerateImage(ctx, req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, imageResp{ImageURL: url})
}

// --- Drafting sessions ---

type sessionResp struct {
	SessionID string           `json:"sessionId"`
	Draft     generator.Draft  `json:"draft"`
	History   []generator.Turn `json:"history"`
}

type reviseReq struct {
	Comment string `json:"comment"`
}

func (s *Server) handleSessionCreate(w http.ResponseWriter, r *http.Request) {
	var req textReq
	if !decodeJSON(w, r, &req) {
		return
	}
	id := newSessionID()
	sess, err := generator.NewSession(id, req.request(), s.deps.Text)
	if err != nil {
		writeError(w, err)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), generateTimeout)
	defer cancel()
	draft := sess.Propose(ctx)
	s.sessions.set(id, sess)
	_, history := sess.Snapshot()
	writeJSON(w, http.StatusCreated, sessionResp{SessionID: id, Draft: draft, History: history})
}

func (s *Server) session(w http.ResponseWriter, r *http.Request) (*generator.Session, bool) {
	id := chi.URLParam(r, "id")
	sess, ok := s.sessions.get(id)
	if !ok {
		writeJSON(w, http.StatusNotFound, errorResp{Error: "session not found"})
		return nil, false
	}
	return sess, true
}

func (s *Server) handleSessionGet(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	draft, history := sess.Snapshot()
	writeJSON(w, http.StatusOK, sessionResp{SessionID: sess.ID, Draft: draft, History: history})
}

func (s *Server) handleSessionRevise(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	var req reviseReq
	if !decodeJSON(w, r, &req) {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), generateTimeout)
	defer cancel()
	draft := sess.Revise(ctx, req.Comment)
	_, history := sess.Snapshot()
	writeJSON(w, http.StatusOK, sessionResp{SessionID: sess.ID, Draft: draft, History: history})
}

// handleSessionImage generates an image and attaches it to the draft.
func (s *Server) handleSessionImage(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	var req imagegen.ImageRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Prompt == "" {
		req.Prompt = sess.Request.Prompt
	}
	ctx, cancel := context.WithTimeout(r.Context(), generateTimeout*2)
	defer cancel()
	url, err := s.deps.Images.GenerateImage(ctx, req)
	if err != nil {
		writeError(w, err)
		return
	}
	draft := sess.AttachImage(url)
	_, history := sess.Snapshot()
	writeJSON(w, http.StatusOK, sessionResp{SessionID: sess.ID, Draft: draft, History: history})
}
