// internal/web/platform.go
//
// Platform-host surface: the signup API with its live preview.
//
// Context
// -------
// These routes are reachable only through reserved routing labels (apex,
// "www", …); the resolver guarantees no tenant context exists here.  The
// handlers drive the registration session store and hand the final commit
// to the provisioning workflow.  Session ids are the only claim to a
// session, so they are UUIDs and never enumerate.
//
// Provisioning outcomes are logged together with the request-info
// enrichment (device class, country) as an abuse signal: a burst of
// rejected commits from one source is worth noticing.
package web

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/plumeworks/plume/internal/provision"
	"github.com/plumeworks/plume/internal/requestinfo"
	"github.com/plumeworks/plume/internal/signup"
)

// Committer is the slice of the provisioning workflow the edge consumes.
type Committer interface {
	Commit(ctx context.Context, sessionID uuid.UUID) (*provision.Result, error)
}

// Platform serves the signup API on reserved hosts.
type Platform struct {
	sessions   *signup.Store
	committer  Committer
	baseDomain string
	log        *zap.SugaredLogger
}

// NewPlatform wires the signup surface.
func NewPlatform(sessions *signup.Store, committer Committer, baseDomain string, log *zap.SugaredLogger) *Platform {
	if log == nil {
		log = zap.S()
	}
	return &Platform{sessions: sessions, committer: committer, baseDomain: baseDomain, log: log}
}

// Routes builds the chi router for the platform host.  Request-info
// enrichment is mounted once at the process root, ahead of host
// resolution, so both this surface and the tenant sites see it.
func (p *Platform) Routes() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api/signup", func(r chi.Router) {
		r.Post("/", p.createSession)
		r.Route("/{sessionID}", func(r chi.Router) {
			r.Get("/", p.getSession)
			r.Patch("/", p.updateSession)
			r.Delete("/", p.discardSession)
			r.Get("/preview", p.preview)
			r.Post("/commit", p.commit)
		})
	})

	return r
}

//
// payloads
//

type sessionRequest struct {
	Email     string `json:"email"`
	BlogName  string `json:"blog_name"`
	Subdomain string `json:"subdomain"`
	Theme     string `json:"theme"`
}

type sessionPatch struct {
	Email     *string `json:"email"`
	BlogName  *string `json:"blog_name"`
	Subdomain *string `json:"subdomain"`
	Theme     *string `json:"theme"`
}

type sessionResponse struct {
	SessionID string    `json:"session_id"`
	Email     string    `json:"email"`
	BlogName  string    `json:"blog_name"`
	Subdomain string    `json:"subdomain"`
	Theme     string    `json:"theme"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

func toSessionResponse(s *signup.Session) sessionResponse {
	return sessionResponse{
		SessionID: s.ID.String(),
		Email:     s.Email,
		BlogName:  s.BlogName,
		Subdomain: s.Subdomain,
		Theme:     s.Theme,
		CreatedAt: s.CreatedAt,
		ExpiresAt: s.ExpiresAt,
	}
}

//
// handlers
//

func (p *Platform) createSession(w http.ResponseWriter, r *http.Request) {
	var req sessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, http.StatusBadRequest, "malformed_body")
		return
	}

	sess, err := p.sessions.Create(req.Email, req.BlogName, req.Subdomain, req.Theme)
	if err != nil {
		p.writeValidation(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toSessionResponse(sess))
}

func (p *Platform) getSession(w http.ResponseWriter, r *http.Request) {
	id, ok := p.sessionID(w, r)
	if !ok {
		return
	}
	sess, err := p.sessions.Get(id)
	if err != nil {
		p.writeSessionErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toSessionResponse(sess))
}

func (p *Platform) updateSession(w http.ResponseWriter, r *http.Request) {
	id, ok := p.sessionID(w, r)
	if !ok {
		return
	}
	var patch sessionPatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		writeErr(w, http.StatusBadRequest, "malformed_body")
		return
	}

	sess, err := p.sessions.Update(id, signup.Fields{
		Email:     patch.Email,
		BlogName:  patch.BlogName,
		Subdomain: patch.Subdomain,
		Theme:     patch.Theme,
	})
	if err != nil {
		p.writeSessionErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toSessionResponse(sess))
}

func (p *Platform) discardSession(w http.ResponseWriter, r *http.Request) {
	id, ok := p.sessionID(w, r)
	if !ok {
		return
	}
	p.sessions.Discard(id)
	w.WriteHeader(http.StatusNoContent)
}

// preview returns the payload the signup form's live preview renders:
// the prospective URL plus the current candidate fields.
func (p *Platform) preview(w http.ResponseWriter, r *http.Request) {
	id, ok := p.sessionID(w, r)
	if !ok {
		return
	}
	sess, err := p.sessions.Get(id)
	if err != nil {
		p.writeSessionErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"url":       "https://" + sess.Subdomain + "." + p.baseDomain + "/",
		"blog_name": sess.BlogName,
		"theme":     sess.Theme,
	})
}

func (p *Platform) commit(w http.ResponseWriter, r *http.Request) {
	id, ok := p.sessionID(w, r)
	if !ok {
		return
	}

	res, err := p.committer.Commit(r.Context(), id)
	if err != nil {
		p.writeSessionErr(w, err)
		return
	}

	p.logOutcome(r, id, res)

	switch res.State {
	case provision.StateCommitted:
		writeJSON(w, http.StatusCreated, map[string]any{
			"tenant_id": res.TenantID,
			"url":       "https://" + res.RoutingKey + "." + p.baseDomain + "/",
		})
	case provision.StateExpired:
		writeErr(w, http.StatusGone, "expired")
	case provision.StateRejected:
		status := http.StatusConflict
		if res.Retryable {
			status = http.StatusGatewayTimeout
		}
		writeJSON(w, status, envelope{Error: errBody{
			Code:        res.Reason,
			Suggestions: res.Suggestions,
			Retryable:   res.Retryable,
		}})
	default:
		writeErr(w, http.StatusInternalServerError, "internal")
	}
}

//
// helpers
//

func (p *Platform) sessionID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "sessionID"))
	if err != nil {
		WriteNotFound(w)
		return uuid.Nil, false
	}
	return id, true
}

func (p *Platform) writeSessionErr(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, signup.ErrExpired):
		writeErr(w, http.StatusGone, "expired")
	case errors.Is(err, signup.ErrNotFound):
		WriteNotFound(w)
	default:
		p.writeValidation(w, err)
	}
}

// writeValidation distinguishes "your fields are wrong" from real
// failures; validator errors carry field-level detail worth returning.
func (p *Platform) writeValidation(w http.ResponseWriter, err error) {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		fields := make([]string, 0, len(verrs))
		for _, fe := range verrs {
			fields = append(fields, fe.Field())
		}
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"error": map[string]any{"code": "invalid_fields", "fields": fields},
		})
		return
	}
	p.log.Errorw("signup failure", "err", err)
	writeErr(w, http.StatusInternalServerError, "internal")
}

// logOutcome attaches request enrichment to the provisioning event.
func (p *Platform) logOutcome(r *http.Request, id uuid.UUID, res *provision.Result) {
	kv := []any{
		"session", id,
		"state", res.State,
		"reason", res.Reason,
	}
	if info := requestinfo.FromContext(r.Context()); info != nil {
		kv = append(kv,
			"device", info.UA.Device,
			"bot", info.UA.IsBot,
			"country", info.Geo.CountryISO,
		)
	}
	p.log.Infow("provisioning outcome", kv...)
}
