// internal/web/site.go
//
// Tenant-host surface: the content API.
//
// Context
// -------
// The resolver hands `Serve` an already-resolved tenant context, and the
// context travels to every repository call as an explicit argument.  No
// handler here reads tenant identity from headers, cookies, or ambient
// request state; a code path cannot "forget" the tenant and fall into a
// default one, because there is no default.
//
// Dispatch is a plain method-and-path switch rather than a per-tenant
// router: handlers need the explicit context in their signature, which a
// stock mux cannot thread.
package web

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/plumeworks/plume/internal/content"
	"github.com/plumeworks/plume/internal/directory"
)

// Site serves tenant-scoped content requests.
type Site struct {
	posts    *content.Posts
	settings *content.Settings
	media    *content.MediaStore
	log      *zap.SugaredLogger
}

// NewSite wires the content surface.
func NewSite(posts *content.Posts, settings *content.Settings, media *content.MediaStore, log *zap.SugaredLogger) *Site {
	if log == nil {
		log = zap.S()
	}
	return &Site{posts: posts, settings: settings, media: media, log: log}
}

// Serve handles one request for the given tenant.  Lifecycle gating
// happens first: suspended and deleted tenants produce an "unavailable"
// page before any data access is attempted.
func (s *Site) Serve(tctx directory.Context, w http.ResponseWriter, r *http.Request) {
	switch tctx.State {
	case directory.StateSuspended:
		writeErr(w, http.StatusServiceUnavailable, "unavailable")
		return
	case directory.StateDeleted:
		writeErr(w, http.StatusGone, "gone")
		return
	}

	route := strings.Trim(r.URL.Path, "/")
	segs := strings.Split(route, "/")

	switch {
	case route == "" && r.Method == http.MethodGet:
		s.home(tctx, w, r)

	case route == "api/posts":
		switch r.Method {
		case http.MethodGet:
			s.listPosts(tctx, w, r)
		case http.MethodPost:
			s.createPost(tctx, w, r)
		default:
			writeErr(w, http.StatusMethodNotAllowed, "method_not_allowed")
		}

	case len(segs) == 3 && segs[0] == "api" && segs[1] == "posts":
		slug := segs[2]
		switch r.Method {
		case http.MethodGet:
			s.getPost(tctx, w, r, slug)
		case http.MethodPut:
			s.updatePost(tctx, w, r, slug)
		case http.MethodDelete:
			s.deletePost(tctx, w, r, slug)
		default:
			writeErr(w, http.StatusMethodNotAllowed, "method_not_allowed")
		}

	case route == "api/settings":
		switch r.Method {
		case http.MethodGet:
			s.getSettings(tctx, w, r)
		case http.MethodPut:
			s.updateSettings(tctx, w, r)
		default:
			writeErr(w, http.StatusMethodNotAllowed, "method_not_allowed")
		}

	case route == "api/media":
		switch r.Method {
		case http.MethodGet:
			s.listMedia(tctx, w, r)
		case http.MethodPost:
			s.createMedia(tctx, w, r)
		default:
			writeErr(w, http.StatusMethodNotAllowed, "method_not_allowed")
		}

	case len(segs) == 3 && segs[0] == "api" && segs[1] == "media" && r.Method == http.MethodDelete:
		s.deleteMedia(tctx, w, r, segs[2])

	default:
		WriteNotFound(w)
	}
}

//
// payloads
//

type postRequest struct {
	Slug      string `json:"slug"`
	Title     string `json:"title"`
	Body      string `json:"body"`
	Published bool   `json:"published"`
}

type mediaRequest struct {
	Path        string `json:"path"`
	ContentType string `json:"content_type"`
	SizeBytes   int64  `json:"size_bytes"`
}

//
// handlers
//

// home returns the minimal site descriptor a theme renderer would
// consume; actual HTML rendering is a frontend concern.
func (s *Site) home(tctx directory.Context, w http.ResponseWriter, r *http.Request) {
	st, err := s.settings.Get(r.Context(), tctx)
	if err != nil {
		writeDataErr(w, err)
		return
	}
	posts, err := s.posts.List(r.Context(), tctx)
	if err != nil {
		writeDataErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"name":     tctx.DisplayName,
		"settings": st,
		"posts":    posts,
	})
}

func (s *Site) listPosts(tctx directory.Context, w http.ResponseWriter, r *http.Request) {
	posts, err := s.posts.List(r.Context(), tctx)
	if err != nil {
		writeDataErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, posts)
}

func (s *Site) createPost(tctx directory.Context, w http.ResponseWriter, r *http.Request) {
	var req postRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Slug == "" {
		writeErr(w, http.StatusBadRequest, "malformed_body")
		return
	}
	p := &content.Post{Slug: req.Slug, Title: req.Title, Body: req.Body, Published: req.Published}
	if err := s.posts.Create(r.Context(), tctx, p); err != nil {
		writeDataErr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

func (s *Site) getPost(tctx directory.Context, w http.ResponseWriter, r *http.Request, slug string) {
	p, err := s.posts.BySlug(r.Context(), tctx, slug)
	if err != nil {
		writeDataErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Site) updatePost(tctx directory.Context, w http.ResponseWriter, r *http.Request, slug string) {
	var req postRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, http.StatusBadRequest, "malformed_body")
		return
	}
	p := &content.Post{
		TenantID:  tctx.TenantID,
		Slug:      slug,
		Title:     req.Title,
		Body:      req.Body,
		Published: req.Published,
	}
	if err := s.posts.Update(r.Context(), tctx, p); err != nil {
		writeDataErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Site) deletePost(tctx directory.Context, w http.ResponseWriter, r *http.Request, slug string) {
	if err := s.posts.Delete(r.Context(), tctx, slug); err != nil {
		writeDataErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Site) getSettings(tctx directory.Context, w http.ResponseWriter, r *http.Request) {
	st, err := s.settings.Get(r.Context(), tctx)
	if err != nil {
		writeDataErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Site) updateSettings(tctx directory.Context, w http.ResponseWriter, r *http.Request) {
	var st content.SiteSettings
	if err := json.NewDecoder(r.Body).Decode(&st); err != nil {
		writeErr(w, http.StatusBadRequest, "malformed_body")
		return
	}
	if err := s.settings.Update(r.Context(), tctx, &st); err != nil {
		writeDataErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Site) listMedia(tctx directory.Context, w http.ResponseWriter, r *http.Request) {
	out, err := s.media.List(r.Context(), tctx)
	if err != nil {
		writeDataErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Site) createMedia(tctx directory.Context, w http.ResponseWriter, r *http.Request) {
	var req mediaRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Path == "" || req.SizeBytes <= 0 {
		writeErr(w, http.StatusBadRequest, "malformed_body")
		return
	}
	m := &content.Media{Path: req.Path, ContentType: req.ContentType, SizeBytes: req.SizeBytes}
	if err := s.media.Create(r.Context(), tctx, m); err != nil {
		writeDataErr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, m)
}

func (s *Site) deleteMedia(tctx directory.Context, w http.ResponseWriter, r *http.Request, rawID string) {
	id, err := strconv.ParseUint(rawID, 10, 64)
	if err != nil {
		WriteNotFound(w)
		return
	}
	if err := s.media.Delete(r.Context(), tctx, id); err != nil {
		writeDataErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
