// ABOUTME: User registration, profile, and directory handlers
// ABOUTME: Covers register, me, user listing with pagination, and profile updates

package api

import (
	"bytes"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/yuin/goldmark"

	"github.com/rosterhq/roster/internal/auth"
	"github.com/rosterhq/roster/internal/store"
)

// userProfile is the JSON projection of a full user record. Email is
// omitted when empty so anonymous listings never carry it.
type userProfile struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Username    string `json:"username"`
	Email       string `json:"email,omitempty"`
	Bio         string `json:"bio,omitempty"`
	BioHTML     string `json:"bioHtml,omitempty"`
	AvatarURL   string `json:"avatarUrl,omitempty"`
	Location    string `json:"location,omitempty"`
	Website     string `json:"website,omitempty"`
	GithubURL   string `json:"githubUrl,omitempty"`
	LinkedinURL string `json:"linkedinUrl,omitempty"`
	CreatedAt   string `json:"createdAt"`
	UpdatedAt   string `json:"updatedAt"`
}

// userSummary is the JSON projection used in directory listings.
type userSummary struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Username  string `json:"username"`
	Email     string `json:"email,omitempty"`
	AvatarURL string `json:"avatarUrl,omitempty"`
	Location  string `json:"location,omitempty"`
	CreatedAt string `json:"createdAt"`
}

// paginationMeta describes the page window of a listing response.
type paginationMeta struct {
	Page        int  `json:"page"`
	Limit       int  `json:"limit"`
	TotalCount  int  `json:"totalCount"`
	TotalPages  int  `json:"totalPages"`
	HasNextPage bool `json:"hasNextPage"`
	HasPrevPage bool `json:"hasPrevPage"`
}

func profileFromUser(u *store.User, bioHTML string) userProfile {
	return userProfile{
		ID:          u.ID,
		Name:        u.Name,
		Username:    u.Username,
		Email:       u.Email,
		Bio:         u.Bio,
		BioHTML:     bioHTML,
		AvatarURL:   u.AvatarURL,
		Location:    u.Location,
		Website:     u.Website,
		GithubURL:   u.GithubURL,
		LinkedinURL: u.LinkedinURL,
		CreatedAt:   u.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:   u.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

// renderBio converts a markdown bio to HTML. Rendering failures degrade
// to an empty string rather than failing the request.
func (s *Server) renderBio(bio string) string {
	if bio == "" {
		return ""
	}
	var buf bytes.Buffer
	if err := goldmark.Convert([]byte(bio), &buf); err != nil {
		s.logger.Warn("failed to render bio", "error", err)
		return ""
	}
	return buf.String()
}

// handleRegister handles POST /api/register.
func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	in := registrationInput{
		Name:     r.FormValue("name"),
		Username: r.FormValue("username"),
		Email:    r.FormValue("email"),
		Password: r.FormValue("password"),
	}

	if fieldErrors := validateRegistration(in); len(fieldErrors) > 0 {
		s.respondFieldErrors(w, fieldErrors)
		return
	}

	passwordHash, err := s.hasher.Hash(in.Password)
	if err != nil {
		s.logger.Error("password hashing failed", "error", err)
		s.respondError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	now := time.Now()
	user := &store.User{
		ID:           uuid.New().String(),
		Name:         in.Name,
		Username:     in.Username,
		Email:        in.Email,
		PasswordHash: passwordHash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.store.CreateUser(r.Context(), user); err != nil {
		s.respondStoreError(w, err)
		return
	}

	s.logger.Info("user registered", "user_id", user.ID, "username", user.Username)
	s.respondSuccess(w, http.StatusCreated, "account created", map[string]string{
		"id":        user.ID,
		"name":      user.Name,
		"username":  user.Username,
		"email":     user.Email,
		"createdAt": user.CreatedAt.UTC().Format(time.RFC3339),
	})
}

// handleMe handles GET /api/me. The account may have been deleted after
// the session was issued; that reads as 404, not 500.
func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	identity := auth.MustFromContext(r.Context())

	user, err := s.store.GetUser(r.Context(), identity.ID)
	if err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			s.respondError(w, http.StatusNotFound, "account not found")
			return
		}
		s.respondStoreError(w, err)
		return
	}

	profile := profileFromUser(user, s.renderBio(user.Bio))
	s.respondSuccess(w, http.StatusOK, "ok", map[string]any{"user": profile})
}

// handleListUsers handles GET /api/users. Anonymous callers see the
// directory without email addresses.
func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request) {
	query, fieldErrors := parseListQuery(r)
	if len(fieldErrors) > 0 {
		s.respondFieldErrors(w, fieldErrors)
		return
	}

	authenticated := auth.FromContext(r.Context()) != nil

	totalCount, err := s.store.CountUsers(r.Context(), query.Filter)
	if err != nil {
		s.respondStoreError(w, err)
		return
	}

	users, err := s.store.ListUsers(r.Context(), query.Filter)
	if err != nil {
		s.respondStoreError(w, err)
		return
	}

	if len(users) == 0 && query.Page > 1 {
		s.respondError(w, http.StatusNotFound, "page not found")
		return
	}

	totalPages := (totalCount + query.Filter.Limit - 1) / query.Filter.Limit

	summaries := make([]userSummary, len(users))
	for i, u := range users {
		summaries[i] = userSummary{
			ID:        u.ID,
			Name:      u.Name,
			Username:  u.Username,
			AvatarURL: u.AvatarURL,
			Location:  u.Location,
			CreatedAt: u.CreatedAt.UTC().Format(time.RFC3339),
		}
		if authenticated {
			summaries[i].Email = u.Email
		}
	}

	s.respondSuccess(w, http.StatusOK, "ok", map[string]any{
		"users": summaries,
		"pagination": paginationMeta{
			Page:        query.Page,
			Limit:       query.Filter.Limit,
			TotalCount:  totalCount,
			TotalPages:  totalPages,
			HasNextPage: query.Page < totalPages,
			HasPrevPage: query.Page > 1,
		},
	})
}

// handleGetUser handles GET /api/users/{id}.
func (s *Server) handleGetUser(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	user, err := s.store.GetUser(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			s.respondError(w, http.StatusNotFound, "user not found")
			return
		}
		s.respondStoreError(w, err)
		return
	}

	profile := profileFromUser(user, s.renderBio(user.Bio))
	s.respondSuccess(w, http.StatusOK, "ok", map[string]any{"user": profile})
}

// handleUpdateUser handles PUT /api/users/{id}. Only the profile owner
// may update it; ownership is checked after authentication.
func (s *Server) handleUpdateUser(w http.ResponseWriter, r *http.Request) {
	identity := auth.MustFromContext(r.Context())
	id := r.PathValue("id")

	if err := auth.VerifyOwnership(identity.ID, id); err != nil {
		s.respondError(w, http.StatusForbidden, "you can only update your own profile")
		return
	}

	in := profileInput{
		Name:        r.FormValue("name"),
		Username:    r.FormValue("username"),
		Email:       r.FormValue("email"),
		Bio:         r.FormValue("bio"),
		AvatarURL:   r.FormValue("avatarUrl"),
		Location:    r.FormValue("location"),
		Website:     r.FormValue("website"),
		GithubURL:   r.FormValue("githubUrl"),
		LinkedinURL: r.FormValue("linkedinUrl"),
	}

	if fieldErrors := validateProfile(in); len(fieldErrors) > 0 {
		s.respondFieldErrors(w, fieldErrors)
		return
	}

	user, err := s.store.GetUser(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			s.respondError(w, http.StatusNotFound, "user not found")
			return
		}
		s.respondStoreError(w, err)
		return
	}

	user.Name = in.Name
	user.Username = in.Username
	user.Email = in.Email
	user.Bio = in.Bio
	user.AvatarURL = in.AvatarURL
	user.Location = in.Location
	user.Website = in.Website
	user.GithubURL = in.GithubURL
	user.LinkedinURL = in.LinkedinURL
	user.UpdatedAt = time.Now()

	if err := s.store.UpdateUserProfile(r.Context(), user); err != nil {
		s.respondStoreError(w, err)
		return
	}

	s.logger.Info("profile updated", "user_id", user.ID)
	profile := profileFromUser(user, s.renderBio(user.Bio))
	s.respondSuccess(w, http.StatusOK, "profile updated", map[string]any{"user": profile})
}
