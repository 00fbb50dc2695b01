package mockapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"slices"
	"time"

	"github.com/jrsteele09/go-session-client/sessions"
	"github.com/jrsteele09/go-session-client/tenants"
	"github.com/jrsteele09/go-session-client/users"
)

const maxRequestBytes = 1 << 16

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type registerRequest struct {
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Username  string `json:"username"`
	Email     string `json:"email"`
	Password  string `json:"password"`
	Role      string `json:"role"`
}

type switchCompanyRequest struct {
	CompanyID int64 `json:"companyId"`
}

type verifyPasswordRequest struct {
	Password string `json:"password"`
}

type messageResponse struct {
	Message string `json:"message"`
}

// CompaniesResponse is the body of GET RouteCompanies.
type CompaniesResponse struct {
	ActiveCompanyID int64             `json:"activeCompanyId"`
	Companies       []*tenants.Tenant `json:"companies"`
}

func (s *Server) LoginHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req loginRequest
		if !decodeBody(w, r, &req) {
			return
		}

		user, err := s.repos.Users.GetByUsername(req.Username)
		if err != nil || !user.CheckPassword(req.Password) {
			writeMessage(w, http.StatusUnauthorized, "Invalid credentials")
			return
		}
		if user.Blocked {
			writeMessage(w, http.StatusForbidden, "User blocked")
			return
		}
		_ = s.repos.Users.SetLastLogin(user.Username, NowTimeFunc())

		s.issueSession(w, user, firstCompany(user), "Login successful", "")
	}
}

func (s *Server) RegisterHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req registerRequest
		if !decodeBody(w, r, &req) {
			return
		}
		if req.Username == "" || req.Password == "" {
			writeMessage(w, http.StatusBadRequest, "Username and password are required")
			return
		}

		hash, err := users.HashPassword(req.Password)
		if err != nil {
			writeMessage(w, http.StatusInternalServerError, "Registration failed")
			return
		}
		role := req.Role
		if role == "" {
			role = users.RoleUser
		}
		user := &users.User{
			Email:        req.Email,
			Username:     req.Username,
			PasswordHash: hash,
			FirstName:    req.FirstName,
			LastName:     req.LastName,
			DateJoined:   NowTimeFunc(),
			Roles:        []string{role},
			CompanyIDs:   s.defaultMemberships(),
		}
		if err := s.repos.Users.Create(user); err != nil {
			if errors.Is(err, users.ErrAlreadyExists) {
				writeMessage(w, http.StatusConflict, "User already exists")
				return
			}
			writeMessage(w, http.StatusInternalServerError, "Registration failed")
			return
		}

		s.issueSession(w, user, firstCompany(user), "Registration successful", "")
	}
}

func (s *Server) RefreshTokenHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.failRefresh.Load() {
			writeMessage(w, http.StatusUnauthorized, "Refresh token rejected")
			return
		}
		cookie, err := r.Cookie(RefreshCookieName)
		if err != nil || cookie.Value == "" {
			writeMessage(w, http.StatusUnauthorized, "Refresh token missing")
			return
		}
		rt, err := s.refresh.Validate(cookie.Value)
		if err != nil {
			writeMessage(w, http.StatusUnauthorized, "Refresh token invalid or expired")
			return
		}
		user, err := s.repos.Users.GetByID(rt.UserID)
		if err != nil || user.Blocked {
			writeMessage(w, http.StatusUnauthorized, "Refresh token invalid or expired")
			return
		}

		// The refresh token is not rotated, so concurrent refreshes that
		// present the same cookie all succeed.
		companyID := rt.CompanyID
		reuse := cookie.Value
		if !user.HasCompany(companyID) {
			companyID = firstCompany(user)
			reuse = ""
		}
		s.issueSession(w, user, companyID, "Token refreshed", reuse)
	}
}

func (s *Server) SwitchCompanyHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req switchCompanyRequest
		if !decodeBody(w, r, &req) {
			return
		}
		user, ok := s.userFromClaims(w, r)
		if !ok {
			return
		}
		if !user.HasCompany(req.CompanyID) {
			writeMessage(w, http.StatusForbidden, "Not a member of this company")
			return
		}
		if _, err := s.repos.Tenants.Get(req.CompanyID); err != nil {
			writeMessage(w, http.StatusNotFound, "Company not found")
			return
		}

		s.issueSession(w, user, req.CompanyID, "Company switched", "")
	}
}

func (s *Server) VerifyPasswordHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req verifyPasswordRequest
		if !decodeBody(w, r, &req) {
			return
		}
		user, ok := s.userFromClaims(w, r)
		if !ok {
			return
		}
		if !user.CheckPassword(req.Password) {
			writeMessage(w, http.StatusBadRequest, "Invalid password")
			return
		}
		writeMessage(w, http.StatusOK, "Password verified")
	}
}

// CompaniesHandler lists the companies of the caller. It stands in for the
// application resources that sit behind the request authorizer.
func (s *Server) CompaniesHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, ok := s.userFromClaims(w, r)
		if !ok {
			return
		}
		resp := CompaniesResponse{
			ActiveCompanyID: claimsFrom(r).CompanyID,
			Companies:       make([]*tenants.Tenant, 0, len(user.CompanyIDs)),
		}
		for _, id := range user.CompanyIDs {
			if t, err := s.repos.Tenants.Get(id); err == nil {
				resp.Companies = append(resp.Companies, t)
			}
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

// issueSession creates an access token for user acting as companyID, sets the
// refresh cookie and writes the auth payload. A non-empty refreshToken is
// reused instead of creating a new one.
func (s *Server) issueSession(w http.ResponseWriter, user *users.User, companyID int64, message, refreshToken string) {
	accessToken, err := s.issuer.CreateAccessToken(user, companyID, s.accessTokenTTL())
	if err != nil {
		s.logger.Err(err).Msg("[Server.issueSession] create access token")
		writeMessage(w, http.StatusInternalServerError, "Token creation failed")
		return
	}
	if refreshToken == "" {
		refreshToken, err = s.refresh.Create(user.ID, companyID)
		if err != nil {
			s.logger.Err(err).Msg("[Server.issueSession] create refresh token")
			writeMessage(w, http.StatusInternalServerError, "Token creation failed")
			return
		}
	}

	http.SetCookie(w, &http.Cookie{
		Name:     RefreshCookieName,
		Value:    refreshToken,
		Path:     s.basePath,
		MaxAge:   int(s.refreshTTL / time.Second),
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	})
	writeJSON(w, http.StatusOK, s.payloadFor(user, companyID, accessToken, message))
}

func (s *Server) payloadFor(user *users.User, companyID int64, accessToken, message string) *sessions.Payload {
	p := &sessions.Payload{
		AccessToken: accessToken,
		Message:     message,
		Email:       user.Email,
		FirstName:   user.FirstName,
		LastName:    user.LastName,
		Username:    user.Username,
		Roles:       slices.Clone(user.Roles),
		Companies:   make([]string, 0, len(user.CompanyIDs)),
		CompanyIDs:  make([]int64, 0, len(user.CompanyIDs)),
	}
	for _, id := range user.CompanyIDs {
		t, err := s.repos.Tenants.Get(id)
		if err != nil {
			continue
		}
		p.CompanyIDs = append(p.CompanyIDs, t.ID)
		p.Companies = append(p.Companies, t.Name)
		if t.ID == companyID {
			p.DefaultCompany = t.Name
			p.Modules = modulesFor(t, user)
		}
	}
	return p
}

// modulesFor returns the modules of t. Users without the admin role only
// keep READ permissions.
func modulesFor(t *tenants.Tenant, user *users.User) []sessions.ModulePermission {
	admin := user.HasRole(users.RoleAdmin)
	modules := make([]sessions.ModulePermission, 0, len(t.Modules))
	for _, m := range t.Modules {
		mp := sessions.ModulePermission{ModuleID: m.ID, ModuleName: m.Name}
		for _, e := range m.Entities {
			perms := e.Permissions
			if !admin {
				perms = slices.DeleteFunc(slices.Clone(perms), func(p string) bool { return p != "READ" })
			}
			mp.Entities = append(mp.Entities, sessions.EntityPermission{EntityID: e.ID, EntityName: e.Name, Permissions: perms})
		}
		modules = append(modules, mp)
	}
	return modules
}

func (s *Server) userFromClaims(w http.ResponseWriter, r *http.Request) (*users.User, bool) {
	claims := claimsFrom(r)
	if claims == nil {
		writeMessage(w, http.StatusUnauthorized, "Missing bearer token")
		return nil, false
	}
	user, err := s.repos.Users.GetByID(claims.UserID)
	if err != nil {
		writeMessage(w, http.StatusUnauthorized, "Unknown user")
		return nil, false
	}
	return user, true
}

// defaultMemberships gives new registrations the first seeded company.
func (s *Server) defaultMemberships() []int64 {
	list, err := s.repos.Tenants.List(0, 1)
	if err != nil || len(list) == 0 {
		return nil
	}
	return []int64{list[0].ID}
}

func firstCompany(user *users.User) int64 {
	if len(user.CompanyIDs) == 0 {
		return 0
	}
	return user.CompanyIDs[0]
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes)).Decode(v); err != nil {
		writeMessage(w, http.StatusBadRequest, "Malformed request body")
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeMessage(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, messageResponse{Message: message})
}
