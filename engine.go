package authcore

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/tunehub/authcore/cookie"
	"github.com/tunehub/authcore/identity"
	"github.com/tunehub/authcore/internal/audit"
	"github.com/tunehub/authcore/jwt"
	"github.com/tunehub/authcore/password"
	"github.com/tunehub/authcore/session"
)

// Engine runs registration, login, logout and per-request renewal. It holds
// no per-user state of its own and is safe for concurrent use.
type Engine struct {
	config   Config
	users    UserStore
	tokens   *jwt.Manager
	sessions *session.Store
	cookies  *cookie.Transport
	logger   *zap.Logger
	metrics  *Metrics
	audit    *audit.Dispatcher
	throttle LoginThrottle
}

// Close flushes pending audit events.
func (e *Engine) Close() {
	e.audit.Close()
}

// Cookies returns the engine's cookie transport.
func (e *Engine) Cookies() *cookie.Transport {
	return e.cookies
}

// Register creates username with the default User role and signs the caller
// in from the current IP. It returns false for a taken or invalid username
// and for a password the hasher rejects. The user is not rolled back when
// session creation fails afterwards.
func (e *Engine) Register(ctx context.Context, w http.ResponseWriter, username, pw string) (bool, error) {
	const op = "register"

	_, err := e.users.FindByName(ctx, username)
	switch {
	case err == nil:
		e.metrics.operation(op, "duplicate")
		e.emit(ctx, AuditEvent{EventType: AuditRegister, Username: username, Reason: "duplicate username"})
		return false, nil
	case !errors.Is(err, identity.ErrUserNotFound):
		e.metrics.operation(op, "error")
		return false, fmt.Errorf("%w: find %q: %w", ErrUserStore, username, err)
	}

	user, err := e.users.Create(ctx, username, pw)
	if err != nil {
		if errors.Is(err, identity.ErrDuplicateUsername) ||
			errors.Is(err, identity.ErrInvalidUsername) ||
			errors.Is(err, password.ErrTooShort) {
			e.metrics.operation(op, "rejected")
			e.emit(ctx, AuditEvent{EventType: AuditRegister, Username: username, Reason: err.Error()})
			return false, nil
		}
		e.metrics.operation(op, "error")
		return false, fmt.Errorf("%w: create %q: %w", ErrUserStore, username, err)
	}

	if err := e.users.AddRole(ctx, user.ID, identity.RoleUser); err != nil {
		e.metrics.operation(op, "error")
		return false, fmt.Errorf("%w: assign default role: %w", ErrUserStore, err)
	}

	e.startSession(ctx, w, user.ID, user.Username, []string{identity.RoleUser})

	e.metrics.operation(op, "success")
	e.emit(ctx, AuditEvent{EventType: AuditRegister, UserID: user.ID, Username: user.Username, Success: true})
	e.logger.Info("user registered", zap.String("user_id", user.ID))
	return true, nil
}

// Login verifies credentials and starts a session. A banned user (one with
// no roles) gets true and no session; use LoginWithResult to tell the two
// apart.
func (e *Engine) Login(ctx context.Context, w http.ResponseWriter, username, pw string) (bool, error) {
	res, err := e.LoginWithResult(ctx, w, username, pw)
	if err != nil {
		return false, err
	}
	return res == LoginSucceeded || res == LoginBanned, nil
}

// LoginWithResult is Login with the banned case reported separately.
func (e *Engine) LoginWithResult(ctx context.Context, w http.ResponseWriter, username, pw string) (LoginResult, error) {
	const op = "login"

	if e.throttled(ctx, username) {
		e.metrics.operation(op, "throttled")
		e.emit(ctx, AuditEvent{EventType: AuditLogin, Username: username, Reason: "throttled"})
		return LoginThrottled, nil
	}

	user, err := e.users.FindByName(ctx, username)
	if errors.Is(err, identity.ErrUserNotFound) {
		e.loginRejected(ctx, username, "unknown user")
		return LoginInvalidCredentials, nil
	}
	if err != nil {
		e.metrics.operation(op, "error")
		return LoginInvalidCredentials, fmt.Errorf("%w: find %q: %w", ErrUserStore, username, err)
	}

	ok, err := e.users.VerifyPassword(ctx, user, pw)
	if err != nil {
		e.metrics.operation(op, "error")
		return LoginInvalidCredentials, fmt.Errorf("%w: verify password: %w", ErrUserStore, err)
	}
	if !ok {
		e.loginRejected(ctx, username, "wrong password")
		return LoginInvalidCredentials, nil
	}

	roles, err := e.users.Roles(ctx, user.ID)
	if err != nil {
		e.metrics.operation(op, "error")
		return LoginInvalidCredentials, fmt.Errorf("%w: load roles: %w", ErrUserStore, err)
	}
	if len(roles) == 0 {
		e.metrics.operation(op, "banned")
		e.emit(ctx, AuditEvent{EventType: AuditLoginBanned, UserID: user.ID, Username: user.Username, Reason: "no roles"})
		e.logger.Info("login by banned user", zap.String("user_id", user.ID))
		return LoginBanned, nil
	}

	e.throttleReset(ctx, username)
	e.metrics.session("enforce_session_limit", e.sessions.EnforceSessionLimit(ctx, user.ID))
	e.startSession(ctx, w, user.ID, user.Username, roles)

	e.metrics.operation(op, "success")
	e.emit(ctx, AuditEvent{EventType: AuditLogin, UserID: user.ID, Username: user.Username, Success: true})
	return LoginSucceeded, nil
}

func (e *Engine) loginRejected(ctx context.Context, username, reason string) {
	e.metrics.operation("login", "invalid_credentials")
	e.emit(ctx, AuditEvent{EventType: AuditLogin, Username: username, Reason: reason})
	if e.throttle == nil {
		return
	}
	ip, _ := ClientIP(ctx)
	if err := e.throttle.Failure(ctx, username, ip); err != nil {
		e.logger.Warn("record failed login", zap.Error(err))
	}
}

// throttled reports whether username or the caller's IP has spent its
// login budget. A throttle that cannot answer lets the attempt through.
func (e *Engine) throttled(ctx context.Context, username string) bool {
	if e.throttle == nil {
		return false
	}
	ip, _ := ClientIP(ctx)
	err := e.throttle.Allow(ctx, username, ip)
	switch {
	case err == nil:
		return false
	case errors.Is(err, ErrLoginThrottled):
		return true
	default:
		e.logger.Warn("login throttle unavailable", zap.Error(err))
		return false
	}
}

func (e *Engine) throttleReset(ctx context.Context, username string) {
	if e.throttle == nil {
		return
	}
	ip, _ := ClientIP(ctx)
	if err := e.throttle.Reset(ctx, username, ip); err != nil {
		e.logger.Warn("reset login throttle", zap.Error(err))
	}
}

// LoginWithRole is Login restricted to users holding role. The role is
// checked before the password.
func (e *Engine) LoginWithRole(ctx context.Context, w http.ResponseWriter, username, pw, role string) (bool, error) {
	user, err := e.users.FindByName(ctx, username)
	if errors.Is(err, identity.ErrUserNotFound) {
		e.loginRejected(ctx, username, "unknown user")
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("%w: find %q: %w", ErrUserStore, username, err)
	}

	roles, err := e.users.Roles(ctx, user.ID)
	if err != nil {
		return false, fmt.Errorf("%w: load roles: %w", ErrUserStore, err)
	}
	if !identity.HasRole(roles, role) {
		e.metrics.operation("login", "missing_role")
		e.emit(ctx, AuditEvent{EventType: AuditLogin, UserID: user.ID, Username: username, Reason: "missing role " + role})
		return false, nil
	}

	return e.Login(ctx, w, username, pw)
}

// startSession issues a token pair, writes the cookies and then stores the
// refresh token for the current IP. Failures are logged only.
func (e *Engine) startSession(ctx context.Context, w http.ResponseWriter, userID, username string, roles []string) {
	access, refresh, err := e.tokens.IssueTokens(jwt.IdentityClaims(userID, username, roles))
	if err != nil {
		e.logger.Error("issue tokens", zap.String("user_id", userID), zap.Error(err))
		return
	}
	e.cookies.SetTokens(w, access, refresh)
	e.metrics.session("upsert_refresh_token", e.sessions.UpsertRefreshToken(ctx, userID, refresh))
}

// Logout clears both cookies and forgets the session of the current IP. It
// does nothing when the request has no access_token cookie. The access token
// may be expired.
func (e *Engine) Logout(ctx context.Context, w http.ResponseWriter, r *http.Request) {
	access, ok := e.cookies.GetAccessToken(r)
	if !ok {
		e.metrics.operation("logout", "no_token")
		return
	}

	var userID string
	if claims, ok := e.tokens.ExtractClaims(access); ok {
		userID = jwt.Find(claims, jwt.ClaimNameIdentifier)
	}

	e.cookies.DeleteTokens(w)

	if userID == "" {
		e.metrics.operation("logout", "unreadable_token")
		return
	}
	e.metrics.session("remove_session", e.sessions.RemoveSessionForCurrentIP(ctx, userID))
	e.metrics.operation("logout", "success")
	e.emit(ctx, AuditEvent{EventType: AuditLogout, UserID: userID, Success: true})
}

// ClearAllSessions signs userID out of every device.
func (e *Engine) ClearAllSessions(ctx context.Context, userID string) session.Outcome {
	out := e.sessions.ClearAllSessions(ctx, userID)
	e.metrics.session("clear_all_sessions", out)
	if out.Persisted() {
		e.emit(ctx, AuditEvent{EventType: AuditSessionsCleared, UserID: userID, Success: true})
	}
	return out
}

// Sessions lists the IPs with a live refresh token for userID.
func (e *Engine) Sessions(ctx context.Context, userID string) ([]string, error) {
	m, err := e.sessions.Sessions(ctx, userID)
	if err != nil {
		return nil, err
	}
	ips := make([]string, 0, len(m))
	for ip := range m {
		ips = append(ips, ip)
	}
	return ips, nil
}

// ValidateAccess verifies an access token and returns its principal.
func (e *Engine) ValidateAccess(token string) (*Principal, error) {
	return e.tokens.ValidateAccess(token)
}

// Renew inspects the request's access token and, when it is no longer valid,
// tries to exchange the refresh cookie for a new pair. The refresh cookie
// must equal the token stored for the user at the current IP. Whatever
// happens, the result names the token to forward downstream.
func (e *Engine) Renew(ctx context.Context, w http.ResponseWriter, r *http.Request) RenewalResult {
	res := e.renew(ctx, w, r)
	e.metrics.renewal(res.State)
	return res
}

func (e *Engine) renew(ctx context.Context, w http.ResponseWriter, r *http.Request) RenewalResult {
	access, ok := e.cookies.GetAccessToken(r)
	if !ok {
		return RenewalResult{State: RenewalAbsent}
	}
	if e.tokens.IsAccessTokenValid(access) {
		return RenewalResult{State: RenewalValid, AccessToken: access}
	}

	stale := RenewalResult{State: RenewalStale, AccessToken: access}

	claims, ok := e.tokens.ExtractClaims(access)
	if !ok {
		return stale
	}
	userID := jwt.Find(claims, jwt.ClaimNameIdentifier)
	if userID == "" {
		return stale
	}
	stale.UserID = userID

	presented, ok := e.cookies.GetRefreshToken(r)
	if !ok {
		return stale
	}
	stored, ok := e.sessions.GetRefreshToken(ctx, userID)
	if !ok || subtle.ConstantTimeCompare([]byte(stored), []byte(presented)) != 1 {
		e.emit(ctx, AuditEvent{EventType: AuditRenewalRejected, UserID: userID, Reason: "refresh token mismatch"})
		return stale
	}

	newAccess, newRefresh, err := e.tokens.IssueTokens(claims)
	if err != nil {
		e.logger.Error("issue tokens during renewal", zap.String("user_id", userID), zap.Error(err))
		return stale
	}
	e.cookies.SetTokens(w, newAccess, newRefresh)
	e.metrics.session("upsert_refresh_token", e.sessions.UpsertRefreshToken(ctx, userID, newRefresh))
	e.emit(ctx, AuditEvent{EventType: AuditRenewal, UserID: userID, Success: true})

	return RenewalResult{State: RenewalRenewed, AccessToken: newAccess, UserID: userID}
}
