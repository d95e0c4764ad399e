package client

import (
	"encoding/json"
	"net/url"
	"strconv"

	"github.com/tvinspection/tvinspect/pkg/schema"
)

// User is the profile of an account.
type User struct {
	ID        int64  `json:"id,omitempty"`
	Username  string `json:"username"`
	Email     string `json:"email,omitempty"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
}

// DisplayName is the full name when known, the username otherwise.
func (u User) DisplayName() string {
	switch {
	case u.FirstName != "" && u.LastName != "":
		return u.FirstName + " " + u.LastName
	case u.FirstName != "":
		return u.FirstName
	}
	return u.Username
}

// RegisterRequest is the body of a sign-up.
type RegisterRequest struct {
	Username  string `json:"username"`
	Password  string `json:"password"`
	Password2 string `json:"password2"`
	Email     string `json:"email"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
}

// AuthResponse is the body of a login or register call. Deployments differ
// in how they name the tokens, so the raw body is kept and read through the
// accessors.
type AuthResponse map[string]any

// Tokens returns the access and refresh tokens, accepting access_token and
// refresh_token, access and refresh, or a single token.
func (r AuthResponse) Tokens() (access, refresh string) {
	str := func(key string) string {
		s, _ := r[key].(string)
		return s
	}
	switch {
	case str("access_token") != "":
		return str("access_token"), str("refresh_token")
	case str("access") != "":
		return str("access"), str("refresh")
	}
	return str("token"), ""
}

// User returns the user object of the response, if any.
func (r AuthResponse) User() (User, bool) {
	raw, ok := r["user"].(map[string]any)
	if !ok {
		return User{}, false
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return User{}, false
	}
	var u User
	if err := json.Unmarshal(data, &u); err != nil {
		return User{}, false
	}
	return u, true
}

func (r AuthResponse) Message() string {
	s, _ := r["message"].(string)
	return s
}

// ListParams are the query parameters of a form listing. Zero values are
// not sent.
type ListParams struct {
	Search      string
	StationType string
	Ordering    string
	Page        int
	PageSize    int
}

func (p ListParams) values() url.Values {
	v := url.Values{}
	set := func(key, val string) {
		if val != "" {
			v.Set(key, val)
		}
	}
	set("search", p.Search)
	set("station_type", p.StationType)
	set("ordering", p.Ordering)
	if p.Page > 0 {
		v.Set("page", strconv.Itoa(p.Page))
	}
	if p.PageSize > 0 {
		v.Set("page_size", strconv.Itoa(p.PageSize))
	}
	return v
}

// FormPage is one page of a form listing. Backends without pagination
// return a bare list, which is read as a single page.
type FormPage struct {
	Count    int             `json:"count"`
	Next     string          `json:"next,omitempty"`
	Previous string          `json:"previous,omitempty"`
	Results  []schema.Record `json:"results"`
}

func (p *FormPage) UnmarshalJSON(data []byte) error {
	var list []schema.Record
	if err := json.Unmarshal(data, &list); err == nil {
		p.Results = list
		p.Count = len(list)
		return nil
	}
	type page FormPage
	var out page
	if err := json.Unmarshal(data, &out); err != nil {
		return err
	}
	*p = FormPage(out)
	return nil
}

// Download is a generated rendition of a form.
type Download struct {
	Filename    string
	ContentType string
	Data        []byte
}
