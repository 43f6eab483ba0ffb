package server

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"autopost/post"
	"autopost/publisher"
	"autopost/scheduler"
)

type postReq struct {
	Content      string          `json:"content"`
	ImageURL     string          `json:"imageUrl"`
	Platforms    []post.Platform `json:"platforms"`
	ScheduledFor *time.Time      `json:"scheduledFor"`
	Status       post.Status     `json:"status"`
}

func (r postReq) post() post.Post {
	return post.Post{
		Content:      r.Content,
		ImageURL:     r.ImageURL,
		Platforms:    r.Platforms,
		ScheduledFor: r.ScheduledFor,
		Status:       r.Status,
	}
}

type patchReq struct {
	Content       *string         `json:"content"`
	ImageURL      *string         `json:"imageUrl"`
	Platforms     []post.Platform `json:"platforms"`
	ScheduledFor  *time.Time      `json:"scheduledFor"`
	ClearSchedule bool            `json:"clearSchedule"`
	Status        *post.Status    `json:"status"`
}

type postResp struct {
	post.Post
	Warnings []string `json:"warnings,omitempty"`
}

func toResp(p post.Post) postResp {
	return postResp{Post: p, Warnings: p.Warnings()}
}

type createdResp struct {
	ID string `json:"id"`
}

type publishResp struct {
	PostID string `json:"postId"`
	publisher.Result
}

type scheduleReq struct {
	ScheduledFor *time.Time `json:"scheduledFor"`
}

func (s *Server) handlePostList(w http.ResponseWriter, _ *http.Request) {
	posts := s.deps.Posts.ListPosts()
	out := make([]postResp, 0, len(posts))
	for _, p := range posts {
		out = append(out, toResp(p))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handlePostScheduled(w http.ResponseWriter, _ *http.Request) {
	posts := s.deps.Posts.GetScheduledPosts()
	out := make([]postResp, 0, len(posts))
	for _, p := range posts {
		out = append(out, toResp(p))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handlePostCreate(w http.ResponseWriter, r *http.Request) {
	var req postReq
	if !decodeJSON(w, r, &req) {
		return
	}
	data := req.post()
	if len(data.Platforms) == 0 {
		data.Platforms = s.deps.Accounts.Preferences().DefaultPlatforms
	}
	id, err := s.deps.Posts.AddPost(r.Context(), data)
	if err != nil {
		writeError(w, err)
		return
	}
	p, _ := s.deps.Posts.GetPostByID(id)
	writeJSON(w, http.StatusCreated, toResp(p))
}

func (s *Server) handlePostGet(w http.ResponseWriter, r *http.Request) {
	p, ok := s.deps.Posts.GetPostByID(chi.URLParam(r, "id"))
	if !ok {
		writeError(w, post.ErrNotFound)
		return
	}
	writeJSON(w, http.StatusOK, toResp(p))
}

func (s *Server) handlePostUpdate(w http.ResponseWriter, r *http.Request) {
	var req patchReq
	if !decodeJSON(w, r, &req) {
		return
	}
	id := chi.URLParam(r, "id")
	err := s.deps.Posts.UpdatePost(r.Context(), id, post.Patch{
		Content:       req.Content,
		ImageURL:      req.ImageURL,
		Platforms:     req.Platforms,
		ScheduledFor:  req.ScheduledFor,
		ClearSchedule: req.ClearSchedule,
		Status:        req.Status,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	p, _ := s.deps.Posts.GetPostByID(id)
	writeJSON(w, http.StatusOK, toResp(p))
}

func (s *Server) handlePostDelete(w http.ResponseWriter, r *http.Request) {
	s.deps.Posts.DeletePost(r.Context(), chi.URLParam(r, "id"))
	w.WriteHeader(http.StatusNoContent)
}

// handlePostPublish publishes a stored post right away and records the
// outcome on it.
func (s *Server) handlePostPublish(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	res, err := publisher.PublishStored(r.Context(), s.deps.Posts, s.deps.Publisher, id, s.now(), s.logger)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, publishResp{PostID: id, Result: res})
}

// handlePostSchedule queues a stored post for later publishing.
func (s *Server) handlePostSchedule(w http.ResponseWriter, r *http.Request) {
	var req scheduleReq
	if !decodeJSON(w, r, &req) {
		return
	}
	p, ok := s.deps.Posts.GetPostByID(chi.URLParam(r, "id"))
	if !ok {
		writeError(w, post.ErrNotFound)
		return
	}
	p.ScheduledFor = req.ScheduledFor
	id, err := s.deps.Scheduler.Schedule(r.Context(), p)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, createdResp{ID: id})
}

func (s *Server) handleScheduleList(w http.ResponseWriter, _ *http.Request) {
	entries := s.deps.Scheduler.List()
	if entries == nil {
		entries = []scheduler.Entry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

func (s *Server) handleScheduleCreate(w http.ResponseWriter, r *http.Request) {
	var req postReq
	if !decodeJSON(w, r, &req) {
		return
	}
	id, err := s.deps.Scheduler.Schedule(r.Context(), req.post())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, createdResp{ID: id})
}

func (s *Server) handleScheduleGet(w http.ResponseWriter, r *http.Request) {
	e, ok := s.deps.Scheduler.Get(chi.URLParam(r, "id"))
	if !ok {
		writeError(w, post.ErrNotFound)
		return
	}
	writeJSON(w, http.StatusOK, e)
}

func (s *Server) handleScheduleCancel(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Scheduler.Cancel(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleScheduleRun publishes every entry that is due now.
func (s *Server) handleScheduleRun(w http.ResponseWriter, r *http.Request) {
	outcomes := s.deps.Scheduler.RunDue(r.Context(), s.now())
	if outcomes == nil {
		outcomes = []scheduler.Outcome{}
	}
	writeJSON(w, http.StatusOK, outcomes)
}
