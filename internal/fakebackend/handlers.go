package fakebackend

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/tvinspection/tvinspect/pkg/export"
	"github.com/tvinspection/tvinspect/pkg/schema"
)

type ctxKey struct{}

func (s *Server) routes(r *mux.Router) {
	r.HandleFunc("/health/", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/auth/register/", s.handleRegister).Methods(http.MethodPost)
	r.HandleFunc("/auth/login/", s.handleLogin).Methods(http.MethodPost)
	r.HandleFunc("/auth/token/", s.handleLogin).Methods(http.MethodPost)
	r.HandleFunc("/auth/token/refresh/", s.handleRefresh).Methods(http.MethodPost)

	auth := r.NewRoute().Subrouter()
	auth.Use(s.authenticate)
	auth.HandleFunc("/auth/profile/", s.handleProfile).Methods(http.MethodGet)
	auth.HandleFunc("/auth/profile/update/", s.handleProfileUpdate).Methods(http.MethodPut, http.MethodPatch)
	auth.HandleFunc("/forms/", s.handleListForms).Methods(http.MethodGet)
	auth.HandleFunc("/forms/", s.handleCreateForm).Methods(http.MethodPost)
	auth.HandleFunc("/forms/{id:[0-9]+}/", s.handleGetForm).Methods(http.MethodGet)
	auth.HandleFunc("/forms/{id:[0-9]+}/", s.handleUpdateForm).Methods(http.MethodPut, http.MethodPatch)
	auth.HandleFunc("/forms/{id:[0-9]+}/", s.handleDeleteForm).Methods(http.MethodDelete)
	auth.HandleFunc("/forms/{id:[0-9]+}/download-pdf/", s.handleDownloadPDF).Methods(http.MethodGet)
	auth.HandleFunc("/forms/{id:[0-9]+}/download-excel/", s.handleDownloadExcel).Methods(http.MethodGet)
}

func decodeBody(r *http.Request, v any) error {
	return json.NewDecoder(r.Body).Decode(v)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "healthy",
		"timestamp": s.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username  string `json:"username"`
		Password  string `json:"password"`
		Password2 string `json:"password2"`
		Email     string `json:"email"`
		FirstName string `json:"first_name"`
		LastName  string `json:"last_name"`
	}
	if err := decodeBody(r, &req); err != nil {
		detail(w, http.StatusBadRequest, "Malformed request body.")
		return
	}

	fieldErrors := map[string]any{}
	if req.Username == "" {
		fieldErrors["username"] = []string{"This field is required."}
	}
	if req.Password == "" {
		fieldErrors["password"] = []string{"This field is required."}
	} else if req.Password != req.Password2 {
		fieldErrors["password"] = []string{"Password fields didn't match."}
	}
	if req.Email == "" {
		fieldErrors["email"] = []string{"This field is required."}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, taken := s.users[req.Username]; taken && req.Username != "" {
		fieldErrors["username"] = []string{"A user with that username already exists."}
	}
	if len(fieldErrors) > 0 {
		writeJSON(w, http.StatusBadRequest, map[string]any{"validation_errors": fieldErrors})
		return
	}

	u := s.addUserLocked(User{
		Username:  req.Username,
		Email:     req.Email,
		FirstName: req.FirstName,
		LastName:  req.LastName,
		password:  req.Password,
	})
	body := map[string]any{"user": u, "message": "User registered successfully"}
	if s.TokensOnRegister {
		body["access"] = s.issueLocked(u.Username, accessToken, s.AccessTTL)
		body["refresh"] = s.issueLocked(u.Username, refreshToken, s.RefreshTTL)
	}
	writeJSON(w, http.StatusCreated, body)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := decodeBody(r, &req); err != nil || req.Username == "" || req.Password == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "Username and password are required"})
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[req.Username]
	if !ok || u.password != req.Password {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"error": "Invalid credentials"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"access":  s.issueLocked(u.Username, accessToken, s.AccessTTL),
		"refresh": s.issueLocked(u.Username, refreshToken, s.RefreshTTL),
		"user":    u,
		"message": "Login successful",
	})
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Refresh string `json:"refresh"`
	}
	if err := decodeBody(r, &req); err != nil || req.Refresh == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"refresh": []string{"This field is required."}})
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tokens[req.Refresh]
	if !ok || t.Kind != refreshToken || !s.Now().Before(t.ExpiresAt) {
		writeJSON(w, http.StatusUnauthorized, map[string]any{
			"detail": "Token is invalid or expired",
			"code":   "token_not_valid",
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"access": s.issueLocked(t.Username, accessToken, s.AccessTTL)})
}

// authenticate resolves the bearer token to a user.
func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		value, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok {
			detail(w, http.StatusUnauthorized, "Authentication credentials were not provided.")
			return
		}
		s.mu.RLock()
		t, ok := s.tokens[value]
		valid := ok && t.Kind == accessToken && s.Now().Before(t.ExpiresAt)
		s.mu.RUnlock()
		if !valid {
			detail(w, http.StatusUnauthorized, "Given token not valid for any token type")
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKey{}, t.Username)))
	})
}

func username(r *http.Request) string {
	u, _ := r.Context().Value(ctxKey{}).(string)
	return u
}

func (s *Server) handleProfile(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[username(r)]
	if !ok {
		detail(w, http.StatusNotFound, "User not found.")
		return
	}
	writeJSON(w, http.StatusOK, u)
}

func (s *Server) handleProfileUpdate(w http.ResponseWriter, r *http.Request) {
	var req map[string]string
	if err := decodeBody(r, &req); err != nil {
		detail(w, http.StatusBadRequest, "Malformed request body.")
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[username(r)]
	if !ok {
		detail(w, http.StatusNotFound, "User not found.")
		return
	}
	for k, v := range req {
		switch k {
		case "email":
			u.Email = v
		case "first_name":
			u.FirstName = v
		case "last_name":
			u.LastName = v
		}
	}
	writeJSON(w, http.StatusOK, u)
}

func (s *Server) createLocked(owner string, rec schema.Record) int64 {
	s.nextFormID++
	id := s.nextFormID
	now := s.Now().UTC().Format(time.RFC3339Nano)
	stored := schema.CloneRecord(rec)
	stored["id"] = id
	stored["created_at"] = now
	stored["updated_at"] = now
	stored["created_by"] = owner
	s.forms[id] = stored
	s.owners[id] = owner
	return id
}

func (s *Server) handleListForms(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	search := strings.ToLower(q.Get("search"))
	stationType := q.Get("station_type")
	owner := username(r)

	s.mu.RLock()
	ids := make([]int64, 0, len(s.forms))
	for id := range s.forms {
		if s.owners[id] == owner {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] > ids[j] })

	results := []schema.Record{}
	for _, id := range ids {
		rec := s.forms[id]
		admin := schema.SectionOf(rec, schema.AdministrativeInfo)
		if stationType != "" && admin["station_type"] != stationType {
			continue
		}
		if search != "" {
			name, _ := admin["name_of_broadcaster"].(string)
			loc, _ := admin["location"].(string)
			if !strings.Contains(strings.ToLower(name+" "+loc), search) {
				continue
			}
		}
		results = append(results, schema.CloneRecord(rec))
	}
	s.mu.RUnlock()

	if !s.Paginate {
		writeJSON(w, http.StatusOK, results)
		return
	}
	page, _ := strconv.Atoi(q.Get("page"))
	size, _ := strconv.Atoi(q.Get("page_size"))
	if page < 1 {
		page = 1
	}
	if size < 1 {
		size = 20
	}
	body := map[string]any{"count": len(results), "next": nil, "previous": nil}
	start := min((page-1)*size, len(results))
	end := min(start+size, len(results))
	if end < len(results) {
		body["next"] = pageURL(r, page+1)
	}
	if page > 1 {
		body["previous"] = pageURL(r, page-1)
	}
	body["results"] = results[start:end]
	writeJSON(w, http.StatusOK, body)
}

func pageURL(r *http.Request, page int) string {
	u := *r.URL
	q := u.Query()
	q.Set("page", strconv.Itoa(page))
	u.RawQuery = q.Encode()
	return "http://" + r.Host + u.RequestURI()
}

func (s *Server) handleCreateForm(w http.ResponseWriter, r *http.Request) {
	var rec schema.Record
	if err := decodeBody(r, &rec); err != nil {
		detail(w, http.StatusBadRequest, "Malformed request body.")
		return
	}
	if msgs := requiredMissing(rec); len(msgs) > 0 {
		writeJSON(w, http.StatusBadRequest, map[string]any{"validation_errors": msgs})
		return
	}
	s.mu.Lock()
	id := s.createLocked(username(r), rec)
	out := schema.CloneRecord(s.forms[id])
	s.mu.Unlock()
	writeJSON(w, http.StatusCreated, out)
}

// requiredMissing checks the few fields the backend itself insists on.
func requiredMissing(rec schema.Record) map[string]any {
	admin := schema.SectionOf(rec, schema.AdministrativeInfo)
	out := map[string]any{}
	for _, f := range []string{"name_of_broadcaster", "station_type"} {
		if schema.IsAbsent(admin[f]) {
			out["administrative_info."+f] = []string{"This field is required."}
		}
	}
	return out
}

// ownedForm returns the id of the form in the route if the caller owns it.
func (s *Server) ownedForm(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err == nil {
		if _, ok := s.forms[id]; ok && s.owners[id] == username(r) {
			return id, true
		}
	}
	detail(w, http.StatusNotFound, "Not found.")
	return 0, false
}

func (s *Server) handleGetForm(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.ownedForm(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, s.forms[id])
}

func (s *Server) handleUpdateForm(w http.ResponseWriter, r *http.Request) {
	var rec schema.Record
	if err := decodeBody(r, &rec); err != nil {
		detail(w, http.StatusBadRequest, "Malformed request body.")
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.ownedForm(w, r)
	if !ok {
		return
	}
	stored := s.forms[id]
	for k, v := range rec {
		switch k {
		case "id", "created_at", "created_by":
		default:
			stored[k] = v
		}
	}
	stored["updated_at"] = s.Now().UTC().Format(time.RFC3339Nano)
	writeJSON(w, http.StatusOK, stored)
}

func (s *Server) handleDeleteForm(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.ownedForm(w, r)
	if !ok {
		return
	}
	delete(s.forms, id)
	delete(s.owners, id)
	w.WriteHeader(http.StatusNoContent)
}

func attachmentName(id int64, rec schema.Record, ext string) string {
	name, _ := schema.SectionOf(rec, schema.AdministrativeInfo)["name_of_broadcaster"].(string)
	name = strings.Join(strings.Fields(name), "_")
	if name == "" {
		name = "inspection_form"
	}
	return name + "_" + strconv.FormatInt(id, 10) + ext
}

func (s *Server) handleDownloadPDF(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	id, ok := s.ownedForm(w, r)
	var rec schema.Record
	if ok {
		rec = schema.CloneRecord(s.forms[id])
	}
	s.mu.RUnlock()
	if !ok {
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", `attachment; filename="`+attachmentName(id, rec, ".pdf")+`"`)
	_, _ = w.Write([]byte("%PDF-1.4\n% fake inspection form " + strconv.FormatInt(id, 10) + "\n%%EOF\n"))
}

func (s *Server) handleDownloadExcel(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	id, ok := s.ownedForm(w, r)
	var rec schema.Record
	if ok {
		rec = schema.CloneRecord(s.forms[id])
	}
	s.mu.RUnlock()
	if !ok {
		return
	}
	var buf bytes.Buffer
	if err := export.Write(&buf, rec); err != nil {
		detail(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="`+attachmentName(id, rec, ".xlsx")+`"`)
	_, _ = w.Write(buf.Bytes())
}
