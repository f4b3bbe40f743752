package fakeremote

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/tidwall/gjson"
)

type credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type tokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var in credentials
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}

	s.mu.Lock()
	password, ok := s.users[in.Username]
	s.mu.Unlock()
	if !ok || password != in.Password {
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	s.issuePair(w, in.Username)
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var in struct {
		RefreshToken string `json:"refreshToken"`
		Username     string `json:"username"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}

	s.mu.Lock()
	owner, ok := s.refresh[in.RefreshToken]
	if ok {
		// Rotation: a refresh token is single use.
		delete(s.refresh, in.RefreshToken)
	}
	s.mu.Unlock()
	if !ok || (in.Username != "" && owner != in.Username) {
		writeError(w, http.StatusUnauthorized, "invalid refresh token")
		return
	}

	s.issuePair(w, owner)
}

func (s *Server) issuePair(w http.ResponseWriter, username string) {
	access, err := s.IssueAccessToken(username, s.tokenTTL)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "sign token")
		return
	}
	writeJSON(w, http.StatusOK, tokenPair{
		AccessToken:  access,
		RefreshToken: s.IssueRefreshToken(username),
	})
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var in credentials
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil || in.Username == "" || in.Password == "" {
		writeError(w, http.StatusBadRequest, "username and password are required")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.users[in.Username]; exists {
		writeError(w, http.StatusConflict, "user exists")
		return
	}
	s.users[in.Username] = in.Password
	writeJSON(w, http.StatusCreated, map[string]string{"username": in.Username})
}

func (s *Server) handleExists(w http.ResponseWriter, r *http.Request) {
	username := r.URL.Query().Get("username")
	s.mu.Lock()
	_, exists := s.users[username]
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]bool{"exists": exists})
}

func (s *Server) handleCreate(collection string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, ok := readObject(w, r)
		if !ok {
			return
		}

		s.mu.Lock()
		s.nextID++
		serverID := fmt.Sprintf("srv-%d", s.nextID)
		s.objects[collection][serverID] = body
		if clientID := gjson.GetBytes(body, "id").String(); clientID != "" {
			s.aliases[collection][clientID] = serverID
		}
		s.mu.Unlock()

		writeJSON(w, http.StatusCreated, map[string]string{"id": serverID})
	}
}

func (s *Server) handleUpdate(collection string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, ok := readObject(w, r)
		if !ok {
			return
		}
		id := chi.URLParam(r, "id")

		s.mu.Lock()
		serverID := s.resolveLocked(collection, id)
		_, exists := s.objects[collection][serverID]
		if exists {
			s.objects[collection][serverID] = body
		}
		s.mu.Unlock()

		if !exists {
			writeError(w, http.StatusNotFound, "unknown "+collection+" "+id)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"id": serverID})
	}
}

func (s *Server) handleGet(collection string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		obj, ok := s.Object(collection, chi.URLParam(r, "id"))
		if !ok {
			writeError(w, http.StatusNotFound, "not found")
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(obj)
	}
}

func readObject(w http.ResponseWriter, r *http.Request) (json.RawMessage, bool) {
	var body json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || !gjson.ValidBytes(body) {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return nil, false
	}
	return body, true
}
