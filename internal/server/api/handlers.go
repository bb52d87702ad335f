package api

import (
	"crypto/subtle"
	"errors"
	"net/http"

	"github.com/mapster/mapster/internal/common"
	"github.com/mapster/mapster/internal/metrics"
	"github.com/mapster/mapster/internal/server/models"
)

type registerRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type externalLoginRequest struct {
	ProviderUserID string `json:"provider_user_id"`
	Name           string `json:"name"`
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

type likeResponse struct {
	Liked      bool `json:"liked"`
	LikesCount int  `json:"likes_count"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	u, err := s.deps.Accounts.Register(r.Context(), req.Username, req.Password, req.Name)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"username": u.ID, "name": u.Name})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	pair, err := s.deps.Accounts.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tokenResponse{AccessToken: pair.AccessToken, RefreshToken: pair.RefreshToken})
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := decodeJSON(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	pair, err := s.deps.Accounts.RefreshToken(r.Context(), req.RefreshToken)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tokenResponse{AccessToken: pair.AccessToken, RefreshToken: pair.RefreshToken})
}

// handleExternalLogin accepts identities already verified by the trusted
// identity gateway, which proves itself with the shared secret header.
func (s *Server) handleExternalLogin(w http.ResponseWriter, r *http.Request) {
	secret := r.Header.Get(common.IdentitySecretHeaderName)
	if s.identitySecret == "" || subtle.ConstantTimeCompare([]byte(secret), []byte(s.identitySecret)) != 1 {
		s.fail(w, r, common.ErrorUnauthorized)
		return
	}
	var req externalLoginRequest
	if err := decodeJSON(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	pair, err := s.deps.Accounts.LoginExternal(r.Context(), req.ProviderUserID, req.Name)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tokenResponse{AccessToken: pair.AccessToken, RefreshToken: pair.RefreshToken})
}

func (s *Server) handleLoginStatus(w http.ResponseWriter, r *http.Request) {
	_, ok := PrincipalFrom(r.Context())
	writeJSON(w, http.StatusOK, map[string]bool{"isLoggedIn": ok})
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	its, err := s.deps.Search.List(r.Context(), models.ParseSortMode(r.URL.Query().Get("sort")))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, listToWire(its, s.now()))
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	its, err := s.deps.Search.Search(r.Context(), q.Get("q"), q.Get("filters"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, listToWire(its, s.now()))
}

func (s *Server) handleListMine(w http.ResponseWriter, r *http.Request) {
	p, _ := PrincipalFrom(r.Context())
	its, err := s.deps.Itineraries.ListMine(r.Context(), p.UserID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	out := make([]Itinerary, 0, len(its))
	for _, it := range its {
		out = append(out, toWire(it))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	p, _ := PrincipalFrom(r.Context())
	in, err := s.parseItineraryForm(w, r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	it, err := s.deps.Itineraries.Create(r.Context(), p.UserID, in)
	if err != nil {
		s.failMutation(w, r, err, in.Name)
		return
	}
	metrics.ItineraryMutations.WithLabelValues("create").Inc()
	writeJSON(w, http.StatusCreated, toWire(it))
}

func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	p, _ := PrincipalFrom(r.Context())
	in, err := s.parseItineraryForm(w, r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	it, err := s.deps.Itineraries.Update(r.Context(), r.PathValue("id"), p.UserID, in)
	if err != nil {
		s.failMutation(w, r, err, in.Name)
		return
	}
	metrics.ItineraryMutations.WithLabelValues("update").Inc()
	writeJSON(w, http.StatusOK, toWire(it))
}

func (s *Server) failMutation(w http.ResponseWriter, r *http.Request, err error, name string) {
	if errors.Is(err, common.ErrDuplicateName) {
		writeProblem(w, http.StatusBadRequest, "Bad Request", duplicateDetail(name), r.URL.Path)
		return
	}
	s.fail(w, r, err)
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	p, _ := PrincipalFrom(r.Context())
	if err := s.deps.Itineraries.SoftDelete(r.Context(), r.PathValue("id"), p.UserID); err != nil {
		s.fail(w, r, err)
		return
	}
	metrics.ItineraryMutations.WithLabelValues("delete").Inc()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleView(w http.ResponseWriter, r *http.Request) {
	p, _ := PrincipalFrom(r.Context())
	d, err := s.deps.Itineraries.View(r.Context(), r.PathValue("id"), p.UserID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, detailToWire(d))
}

func (s *Server) handleGetOwned(w http.ResponseWriter, r *http.Request) {
	p, _ := PrincipalFrom(r.Context())
	it, err := s.deps.Itineraries.GetOwned(r.Context(), r.PathValue("id"), p.UserID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toWire(it))
}

func (s *Server) handleToggleLike(w http.ResponseWriter, r *http.Request) {
	p, _ := PrincipalFrom(r.Context())
	res, err := s.deps.Itineraries.ToggleLike(r.Context(), r.PathValue("id"), p.UserID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	metrics.ItineraryMutations.WithLabelValues("like").Inc()
	writeJSON(w, http.StatusOK, likeResponse{Liked: res.Liked, LikesCount: res.LikesCount})
}

func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	p, _ := PrincipalFrom(r.Context())
	recs, err := s.deps.Sync.Pull(r.Context(), p.UserID, r.URL.Query().Get("lastSyncTime"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	metrics.SyncRecords.Observe(float64(len(recs)))
	out := make([]Itinerary, 0, len(recs))
	for _, rec := range recs {
		out = append(out, recordToWire(rec))
	}
	writeJSON(w, http.StatusOK, out)
}
