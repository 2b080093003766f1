package httpapi

import (
	"net/http"
	"strings"
	"time"

	"frontdesk/internal/models"
	"frontdesk/internal/session"
)

type signUpRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=6,max=72"`
	CPF      string `json:"cpf" validate:"required,cpf"`
}

type signInRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type userInfo struct {
	ID    string      `json:"id"`
	Email string      `json:"email"`
	Name  string      `json:"name"`
	CPF   string      `json:"cpf"`
	Role  models.Role `json:"role"`
}

type sessionResponse struct {
	Authenticated bool      `json:"authenticated"`
	AccessToken   string    `json:"access_token,omitempty"`
	ExpiresAt     string    `json:"expires_at,omitempty"`
	User          *userInfo `json:"user,omitempty"`
}

type signOutResponse struct {
	Redirect string `json:"redirect"`
}

func (h *Handler) handleSignUp(w http.ResponseWriter, r *http.Request) {
	var req signUpRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid JSON payload")
		return
	}
	req.Email = strings.TrimSpace(req.Email)
	req.CPF = strings.TrimSpace(req.CPF)
	if err := h.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	v, w := h.newView(w, r)
	defer v.close()
	if err := v.sessions.SignUp(r.Context(), req.Email, req.Password, req.CPF); err != nil {
		h.metrics.authOutcome("signup", err)
		h.writeDomainError(w, r, err)
		return
	}
	h.metrics.authOutcome("signup", nil)
	writeJSON(w, http.StatusCreated, h.describe(r, v, true))
}

func (h *Handler) handleSignIn(w http.ResponseWriter, r *http.Request) {
	var req signInRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid JSON payload")
		return
	}
	req.Email = strings.TrimSpace(req.Email)
	if err := h.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	v, w := h.newView(w, r)
	defer v.close()
	if err := v.sessions.SignIn(r.Context(), req.Email, req.Password); err != nil {
		h.metrics.authOutcome("signin", err)
		h.writeDomainError(w, r, err)
		return
	}
	h.metrics.authOutcome("signin", nil)
	writeJSON(w, http.StatusOK, h.describe(r, v, true))
}

func (h *Handler) handleSignOut(w http.ResponseWriter, r *http.Request) {
	v, w := h.newView(w, r)
	defer v.close()

	// Load the current session first so the sign-out reaches its realtime clients.
	if err := v.sessions.Start(r.Context()); err != nil {
		requestLogger(r).Warn("session fetch before sign-out failed")
	}
	v.sessions.SignOut(r.Context())
	h.metrics.authOutcome("signout", nil)

	redirect := v.redirectTo()
	if redirect == "" {
		redirect = h.cfg.LoginPath
	}
	writeJSON(w, http.StatusOK, signOutResponse{Redirect: redirect})
}

func (h *Handler) handleSession(w http.ResponseWriter, r *http.Request) {
	v, w := h.newView(w, r)
	defer v.close()

	if err := v.sessions.Start(r.Context()); err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h.describe(r, v, false))
}

func (h *Handler) handleLoginPage(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(loginPage))
}

// describe renders the view's session with the role resolved from the profile.
func (h *Handler) describe(r *http.Request, v *view, withToken bool) sessionResponse {
	state := v.sessions.State()
	if !state.Authenticated() {
		return sessionResponse{}
	}
	profile := v.roles.Resolve(r.Context(), state.Identity)
	resp := sessionResponse{
		Authenticated: true,
		User:          newUserInfo(state, profile),
	}
	if state.Session != nil {
		resp.ExpiresAt = state.Session.ExpiresAt.UTC().Format(time.RFC3339)
		if withToken {
			resp.AccessToken = state.Session.Token
		}
	}
	return resp
}

func newUserInfo(state session.State, profile models.Profile) *userInfo {
	identity := state.Identity
	name := profile.Name
	if name == "" {
		name = identity.Metadata.Name
	}
	cpf := profile.CPF
	if cpf == "" {
		cpf = identity.Metadata.CPF
	}
	return &userInfo{
		ID:    identity.ID,
		Email: identity.Email,
		Name:  name,
		CPF:   cpf,
		Role:  profile.Role,
	}
}

const loginPage = `<!doctype html>
<html lang="pt-BR">
<head><meta charset="utf-8"><title>Entrar</title></head>
<body>
<form id="signin">
  <input name="email" type="email" placeholder="E-mail" required>
  <input name="password" type="password" placeholder="Senha" required>
  <button type="submit">Entrar</button>
</form>
<script>
document.getElementById("signin").addEventListener("submit", async (e) => {
  e.preventDefault();
  const data = Object.fromEntries(new FormData(e.target));
  const res = await fetch("/api/auth/signin", {
    method: "POST",
    headers: {"Content-Type": "application/json"},
    body: JSON.stringify(data),
  });
  if (res.ok) { window.location.href = "/portal"; return; }
  const body = await res.json();
  alert(body.error.message);
});
</script>
</body>
</html>
`
