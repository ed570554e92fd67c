package auth

import (
	"net/http"

	"github.com/gorilla/sessions"
)

const (
	SessionName    = "wanemu-session"
	SessionUserID  = "user_id"
	SessionIsAdmin = "is_admin"
	SessionFlash   = "flash"
)

type SessionManager struct {
	store *sessions.CookieStore
}

func NewSessionManager(secret string, maxAge int) *SessionManager {
	store := sessions.NewCookieStore([]byte(secret))
	store.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   false, // Set to true in production with HTTPS
		SameSite: http.SameSiteLaxMode,
	}
	return &SessionManager{store: store}
}

func (m *SessionManager) Get(r *http.Request) (*sessions.Session, error) {
	return m.store.Get(r, SessionName)
}

func (m *SessionManager) SetUser(w http.ResponseWriter, r *http.Request, userID int64, isAdmin bool, remember bool) error {
	session, err := m.Get(r)
	if err != nil {
		return err
	}

	session.Values[SessionUserID] = userID
	session.Values[SessionIsAdmin] = isAdmin

	if remember {
		session.Options.MaxAge = 86400 * 30 // 30 days
	}

	return session.Save(r, w)
}

func (m *SessionManager) GetUserID(r *http.Request) (int64, bool) {
	session, err := m.Get(r)
	if err != nil {
		return 0, false
	}

	userID, ok := session.Values[SessionUserID].(int64)
	return userID, ok
}

func (m *SessionManager) IsAdmin(r *http.Request) bool {
	session, err := m.Get(r)
	if err != nil {
		return false
	}

	isAdmin, ok := session.Values[SessionIsAdmin].(bool)
	return ok && isAdmin
}

// Flash queues a one-shot message shown on the next rendered page.
func (m *SessionManager) Flash(w http.ResponseWriter, r *http.Request, category, message string) {
	session, err := m.Get(r)
	if err != nil {
		return
	}
	session.AddFlash(category+"|"+message, SessionFlash)
	session.Save(r, w)
}

// PopFlashes drains queued messages, returning category/message pairs.
func (m *SessionManager) PopFlashes(w http.ResponseWriter, r *http.Request) [][2]string {
	session, err := m.Get(r)
	if err != nil {
		return nil
	}
	raw := session.Flashes(SessionFlash)
	if len(raw) == 0 {
		return nil
	}
	session.Save(r, w)

	var out [][2]string
	for _, f := range raw {
		s, ok := f.(string)
		if !ok {
			continue
		}
		category, message := "info", s
		for i := 0; i < len(s); i++ {
			if s[i] == '|' {
				category, message = s[:i], s[i+1:]
				break
			}
		}
		out = append(out, [2]string{category, message})
	}
	return out
}

func (m *SessionManager) Clear(w http.ResponseWriter, r *http.Request) error {
	session, err := m.Get(r)
	if err != nil {
		return err
	}

	session.Values = make(map[interface{}]interface{})
	session.Options.MaxAge = -1

	return session.Save(r, w)
}
