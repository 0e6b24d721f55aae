package session

import (
	"strconv"
	"time"
)

// Session is the server-side record behind one refresh token. RefreshHash is
// the hex SHA-256 of the refresh token; the token itself is never stored.
type Session struct {
	ID             string
	CredentialID   string
	RefreshHash    string
	AccessJTI      string
	IP             string
	UserAgent      string
	CreatedAt      time.Time
	ExpiresAt      time.Time
	LastActivityAt time.Time
	Active         bool
}

func (s *Session) fields() []interface{} {
	active := "0"
	if s.Active {
		active = "1"
	}
	return []interface{}{
		"id", s.ID,
		"cid", s.CredentialID,
		"rh", s.RefreshHash,
		"jti", s.AccessJTI,
		"ip", s.IP,
		"ua", s.UserAgent,
		"created", s.CreatedAt.UnixMilli(),
		"expires", s.ExpiresAt.UnixMilli(),
		"last", s.LastActivityAt.UnixMilli(),
		"active", active,
	}
}

func decodeSession(m map[string]string) (*Session, bool) {
	if m["id"] == "" || m["cid"] == "" {
		return nil, false
	}
	created, err1 := strconv.ParseInt(m["created"], 10, 64)
	expires, err2 := strconv.ParseInt(m["expires"], 10, 64)
	last, err3 := strconv.ParseInt(m["last"], 10, 64)
	if err1 != nil || err2 != nil || err3 != nil {
		return nil, false
	}
	return &Session{
		ID:             m["id"],
		CredentialID:   m["cid"],
		RefreshHash:    m["rh"],
		AccessJTI:      m["jti"],
		IP:             m["ip"],
		UserAgent:      m["ua"],
		CreatedAt:      time.UnixMilli(created),
		ExpiresAt:      time.UnixMilli(expires),
		LastActivityAt: time.UnixMilli(last),
		Active:         m["active"] == "1",
	}, true
}

func pairsToMap(flat []interface{}) map[string]string {
	out := make(map[string]string, len(flat)/2)
	for i := 0; i+1 < len(flat); i += 2 {
		k, _ := flat[i].(string)
		v, _ := flat[i+1].(string)
		out[k] = v
	}
	return out
}
