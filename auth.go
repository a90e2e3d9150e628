package main

import (
	"crypto/sha1"
	"crypto/subtle"
	"encoding/hex"
	"net/http"
	"strings"

	log "github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"
)

type httpBasicAuth struct {
	user     string
	password string
	handler  http.Handler
}

// NewHttpBasicAuth protects handler with basic authentication. The password
// may be plain text, "{SHA}" followed by a hex sha1 digest, or "{BCRYPT}"
// followed by a bcrypt hash. Without user and password every request is
// refused.
func NewHttpBasicAuth(user string, password string, handler http.Handler) *httpBasicAuth {
	if user == "" || password == "" {
		log.Error("no panel credentials configured, every request will be refused")
	}
	return &httpBasicAuth{user: user, password: password, handler: handler}
}

func (h *httpBasicAuth) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	username, password, ok := r.BasicAuth()
	if ok && h.user != "" && h.password != "" && username == h.user && h.checkPassword(password) {
		h.handler.ServeHTTP(w, r)
		return
	}
	log.WithFields(log.Fields{"remote": r.RemoteAddr, "path": r.URL.Path}).Info("authentication failed")
	w.Header().Set("WWW-Authenticate", "Basic realm=\"stackpanel\"")
	w.WriteHeader(http.StatusUnauthorized)
}

func (h *httpBasicAuth) checkPassword(password string) bool {
	switch {
	case strings.HasPrefix(h.password, "{SHA}"):
		sum := sha1.Sum([]byte(password))
		digest := hex.EncodeToString(sum[:])
		return subtle.ConstantTimeCompare([]byte(digest), []byte(strings.ToLower(h.password[5:]))) == 1
	case strings.HasPrefix(h.password, "{BCRYPT}"):
		return bcrypt.CompareHashAndPassword([]byte(h.password[8:]), []byte(password)) == nil
	default:
		return subtle.ConstantTimeCompare([]byte(password), []byte(h.password)) == 1
	}
}
