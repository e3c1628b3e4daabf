// ABOUTME: Field-level validation for registration, profile updates, and list queries
// ABOUTME: Returns per-field error maps rendered into the 400 envelope

package api

import (
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/rosterhq/roster/internal/store"
)

var (
	usernameRe = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)
	emailRe    = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
)

const (
	maxPageLimit = 100
	maxBioLength = 1000
)

// registrationInput holds the raw form fields for POST /api/register.
type registrationInput struct {
	Name     string
	Username string
	Email    string
	Password string
}

// validateRegistration checks all fields and returns a map of field
// name to error message. An empty map means the input is valid.
func validateRegistration(in registrationInput) map[string]string {
	fieldErrors := make(map[string]string)

	if len(strings.TrimSpace(in.Name)) < 2 {
		fieldErrors["name"] = "Name must be at least 2 characters"
	}
	if msg := validateUsername(in.Username); msg != "" {
		fieldErrors["username"] = msg
	}
	if !emailRe.MatchString(in.Email) {
		fieldErrors["email"] = "Invalid email address"
	}
	if msg := validatePassword(in.Password); msg != "" {
		fieldErrors["password"] = msg
	}

	return fieldErrors
}

func validateUsername(username string) string {
	if len(username) < 3 {
		return "Username must be at least 3 characters"
	}
	if !usernameRe.MatchString(username) {
		return "Username may only contain letters, numbers, underscores, and hyphens"
	}
	return ""
}

func validatePassword(password string) string {
	if len(password) < 8 {
		return "Password must be at least 8 characters"
	}
	var hasUpper, hasLower, hasDigit bool
	for _, r := range password {
		switch {
		case r >= 'A' && r <= 'Z':
			hasUpper = true
		case r >= 'a' && r <= 'z':
			hasLower = true
		case r >= '0' && r <= '9':
			hasDigit = true
		}
	}
	if !hasUpper || !hasLower || !hasDigit {
		return "Password must contain an uppercase letter, a lowercase letter, and a digit"
	}
	return ""
}

// profileInput holds the raw form fields for PUT /api/users/{id}.
type profileInput struct {
	Name        string
	Username    string
	Email       string
	Bio         string
	AvatarURL   string
	Location    string
	Website     string
	GithubURL   string
	LinkedinURL string
}

// validateProfile checks a profile update. Name, username, and email follow
// the registration rules; link fields must be absolute http(s) URLs when set.
func validateProfile(in profileInput) map[string]string {
	fieldErrors := make(map[string]string)

	if len(strings.TrimSpace(in.Name)) < 2 {
		fieldErrors["name"] = "Name must be at least 2 characters"
	}
	if msg := validateUsername(in.Username); msg != "" {
		fieldErrors["username"] = msg
	}
	if !emailRe.MatchString(in.Email) {
		fieldErrors["email"] = "Invalid email address"
	}
	if len(in.Bio) > maxBioLength {
		fieldErrors["bio"] = "Bio must be at most 1000 characters"
	}

	links := map[string]string{
		"avatarUrl":   in.AvatarURL,
		"website":     in.Website,
		"githubUrl":   in.GithubURL,
		"linkedinUrl": in.LinkedinURL,
	}
	for field, value := range links {
		if value == "" {
			continue
		}
		if !isHTTPURL(value) {
			fieldErrors[field] = "Must be a valid URL"
		}
	}

	return fieldErrors
}

func isHTTPURL(s string) bool {
	parsed, err := url.Parse(s)
	if err != nil {
		return false
	}
	return (parsed.Scheme == "http" || parsed.Scheme == "https") && parsed.Host != ""
}

// listQuery is the parsed and validated query for GET /api/users.
type listQuery struct {
	Page   int
	Filter store.UserFilter
}

// parseListQuery validates page/limit/sortBy/sortOrder/search parameters.
// Returns field errors for anything out of range.
func parseListQuery(r *http.Request) (listQuery, map[string]string) {
	q := r.URL.Query()
	fieldErrors := make(map[string]string)

	page := 1
	if raw := q.Get("page"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			fieldErrors["page"] = "Page must be a positive integer"
		} else {
			page = parsed
		}
	}

	limit := 10
	if raw := q.Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 || parsed > maxPageLimit {
			fieldErrors["limit"] = "Limit must be between 1 and 100"
		} else {
			limit = parsed
		}
	}

	sortBy := q.Get("sortBy")
	switch sortBy {
	case "", store.SortByCreatedAt, store.SortByUpdatedAt, store.SortByName, store.SortByUsername:
	default:
		fieldErrors["sortBy"] = "sortBy must be one of createdAt, updatedAt, name, username"
	}

	sortOrder := q.Get("sortOrder")
	switch sortOrder {
	case "", "asc", "desc":
	default:
		fieldErrors["sortOrder"] = "sortOrder must be asc or desc"
	}

	if len(fieldErrors) > 0 {
		return listQuery{}, fieldErrors
	}

	return listQuery{
		Page: page,
		Filter: store.UserFilter{
			Search:    strings.TrimSpace(q.Get("search")),
			SortBy:    sortBy,
			SortOrder: sortOrder,
			Limit:     limit,
			Offset:    (page - 1) * limit,
		},
	}, nil
}
