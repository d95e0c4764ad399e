package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"github.com/xuri/excelize/v2"

	"github.com/tvinspection/tvinspect/internal/fakebackend"
	"github.com/tvinspection/tvinspect/internal/store"
	"github.com/tvinspection/tvinspect/pkg/client"
	"github.com/tvinspection/tvinspect/pkg/live"
	"github.com/tvinspection/tvinspect/pkg/schema"
	"github.com/tvinspection/tvinspect/pkg/session"
)

func validRecord() schema.Record {
	return schema.Record{
		schema.AdministrativeInfo: map[string]any{
			"name_of_broadcaster": "Kenya Broadcasting Corporation",
			"station_type":        "TV",
			"transmitting_site":   "Limuru",
			"longitude":           "36 49 12 E",
			"latitude":            "01 17 30 S",
		},
		schema.TowerInfo:       map[string]any{"tower_owner": "KBC", "tower_height": "45.5", "is_insured": "true"},
		schema.TransmitterInfo: map[string]any{"exciter_manufacturer": "Harris", "transmit_frequency": "Channel 31"},
		schema.AntennaSystem:   map[string]any{"height": "40", "antenna_type": "Panel"},
	}
}

type ServerTestSuite struct {
	suite.Suite
	backend *fakebackend.Server
	store   *store.SQLiteStore
	server  *Server
	http    *httptest.Server
}

func TestServerTestSuite(t *testing.T) {
	suite.Run(t, new(ServerTestSuite))
}

func (s *ServerTestSuite) SetupTest() {
	ctx := context.Background()

	s.backend = fakebackend.NewServer("127.0.0.1:0")
	s.Require().NoError(s.backend.Start())
	s.backend.AddUser("inspector", "s3cret")

	sess := session.New(session.NewMemoryStorage())
	api, err := client.New(s.backend.URL(), client.WithTokenStore(sess))
	s.Require().NoError(err)
	_, err = sess.Login(ctx, api, "inspector", "s3cret")
	s.Require().NoError(err)

	s.store, err = store.Open(ctx, filepath.Join(s.T().TempDir(), "drafts.db"), zerolog.Nop())
	s.Require().NoError(err)

	s.server = New(Config{AutoSaveInterval: 50 * time.Millisecond}, s.store, api, zerolog.Nop())
	s.http = httptest.NewServer(s.server.Handler())
}

func (s *ServerTestSuite) TearDownTest() {
	s.http.Close()
	s.NoError(s.store.Close())
	s.NoError(s.backend.Stop())
}

func (s *ServerTestSuite) do(method, path string, body any) *http.Response {
	var r *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		s.Require().NoError(err)
		r = bytes.NewReader(data)
	} else {
		r = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, s.http.URL+path, r)
	s.Require().NoError(err)
	resp, err := http.DefaultClient.Do(req)
	s.Require().NoError(err)
	s.T().Cleanup(func() { resp.Body.Close() })
	return resp
}

func (s *ServerTestSuite) decode(resp *http.Response, v any) {
	s.Require().NoError(json.NewDecoder(resp.Body).Decode(v))
}

func (s *ServerTestSuite) createDraft(rec schema.Record) string {
	resp := s.do(http.MethodPost, "/api/drafts", rec)
	s.Require().Equal(http.StatusCreated, resp.StatusCode)
	var view map[string]any
	s.decode(resp, &view)
	id, _ := view["id"].(string)
	s.Require().NotEmpty(id)
	return id
}

func (s *ServerTestSuite) liveURL(draftID string) string {
	return "ws" + strings.TrimPrefix(s.http.URL, "http") + "/api/live?draft=" + draftID
}

func (s *ServerTestSuite) TestHealthAndSchema() {
	resp := s.do(http.MethodGet, "/api/health", nil)
	s.Equal(http.StatusOK, resp.StatusCode)
	var health map[string]any
	s.decode(resp, &health)
	s.Equal("healthy", health["status"])
	s.Equal(false, health["read_only"])

	var form struct {
		FormID   string `json:"form_id"`
		Sections []struct {
			Name   string `json:"name"`
			Fields []struct {
				Name     string `json:"name"`
				Kind     string `json:"kind"`
				Required bool   `json:"required"`
			} `json:"fields"`
		} `json:"sections"`
	}
	s.decode(s.do(http.MethodGet, "/api/schema", nil), &form)
	s.Equal("CA/F/FSM/17", form.FormID)
	s.Require().Len(form.Sections, len(schema.Sections)+1)
	s.Equal(schema.AdministrativeInfo, form.Sections[0].Name)
	s.Equal(schema.Personnel, form.Sections[len(form.Sections)-1].Name)

	for _, f := range form.Sections[0].Fields {
		if f.Name == "name_of_broadcaster" {
			s.True(f.Required)
			s.Equal("text", f.Kind)
			return
		}
	}
	s.Fail("name_of_broadcaster missing from schema")
}

func (s *ServerTestSuite) TestValidate() {
	var res validationResponse
	resp := s.do(http.MethodPost, "/api/validate", schema.Record{})
	s.Equal(http.StatusOK, resp.StatusCode)
	s.decode(resp, &res)
	s.False(res.IsValid)
	s.NotEmpty(res.Messages)
	s.NotEmpty(res.Errors.Message(schema.AdministrativeInfo, "name_of_broadcaster"))

	res = validationResponse{}
	s.decode(s.do(http.MethodPost, "/api/validate", validRecord()), &res)
	s.True(res.IsValid)
	s.Empty(res.Messages)

	resp = s.do(http.MethodPost, "/api/validate", "not a record")
	s.Equal(http.StatusBadRequest, resp.StatusCode)
}

func (s *ServerTestSuite) TestNormalizeAndCompletion() {
	var out map[string]map[string]any
	s.decode(s.do(http.MethodPost, "/api/normalize", schema.Record{
		schema.TowerInfo:          map[string]any{"tower_height": "45.5", "is_insured": "true"},
		schema.AdministrativeInfo: map[string]any{"po_box": ""},
	}), &out)
	s.Equal(45.5, out[schema.TowerInfo]["tower_height"])
	s.Equal(true, out[schema.TowerInfo]["is_insured"])
	s.Contains(out[schema.AdministrativeInfo], "po_box")
	s.Nil(out[schema.AdministrativeInfo]["po_box"])

	var status struct {
		Percentage        int  `json:"completion_percentage"`
		IsMinimumComplete bool `json:"is_minimum_complete"`
	}
	s.decode(s.do(http.MethodPost, "/api/completion", schema.Record{}), &status)
	s.Zero(status.Percentage)
	s.False(status.IsMinimumComplete)
}

func (s *ServerTestSuite) TestDraftsCRUD() {
	id := s.createDraft(nil)

	var list []store.Summary
	s.decode(s.do(http.MethodGet, "/api/drafts", nil), &list)
	s.Require().Len(list, 1)
	s.Equal(id, list[0].ID.String())

	resp := s.do(http.MethodPut, "/api/drafts/"+id, validRecord())
	s.Require().Equal(http.StatusOK, resp.StatusCode)

	var view struct {
		ID         string        `json:"id"`
		Record     schema.Record `json:"record"`
		Validation struct {
			IsValid bool `json:"is_valid"`
		} `json:"validation"`
	}
	s.decode(s.do(http.MethodGet, "/api/drafts/"+id, nil), &view)
	s.Equal(id, view.ID)
	s.True(view.Validation.IsValid)
	s.Equal("Kenya Broadcasting Corporation", schema.SectionOf(view.Record, schema.AdministrativeInfo)["name_of_broadcaster"])

	resp = s.do(http.MethodGet, "/api/drafts/"+id+"/export", nil)
	s.Require().Equal(http.StatusOK, resp.StatusCode)
	s.Equal(xlsxContentType, resp.Header.Get("Content-Type"))
	s.Contains(resp.Header.Get("Content-Disposition"), "Kenya_Broadcasting_Corporation_")
	f, err := excelize.OpenReader(resp.Body)
	s.Require().NoError(err)
	s.Contains(f.GetSheetList(), "Summary")
	s.NoError(f.Close())

	s.Equal(http.StatusNoContent, s.do(http.MethodDelete, "/api/drafts/"+id, nil).StatusCode)
	s.Equal(http.StatusNotFound, s.do(http.MethodGet, "/api/drafts/"+id, nil).StatusCode)
	s.Equal(http.StatusNotFound, s.do(http.MethodDelete, "/api/drafts/"+id, nil).StatusCode)
	s.Equal(http.StatusBadRequest, s.do(http.MethodGet, "/api/drafts/not-a-uuid", nil).StatusCode)
}

func (s *ServerTestSuite) TestReadOnly() {
	id := s.createDraft(validRecord())

	s.server.SetReadOnly(true)
	s.True(s.server.IsReadOnly())

	s.Equal(http.StatusForbidden, s.do(http.MethodPost, "/api/drafts", nil).StatusCode)
	s.Equal(http.StatusForbidden, s.do(http.MethodDelete, "/api/drafts/"+id, nil).StatusCode)
	s.Equal(http.StatusForbidden, s.do(http.MethodPost, "/api/drafts/"+id+"/submit", nil).StatusCode)
	s.Equal(http.StatusOK, s.do(http.MethodGet, "/api/drafts/"+id, nil).StatusCode)

	s.server.SetReadOnly(false)
	s.Equal(http.StatusNoContent, s.do(http.MethodDelete, "/api/drafts/"+id, nil).StatusCode)
}

func (s *ServerTestSuite) TestSubmit() {
	invalid := s.createDraft(nil)
	resp := s.do(http.MethodPost, "/api/drafts/"+invalid+"/submit", nil)
	s.Equal(http.StatusBadRequest, resp.StatusCode)
	var rejected map[string]any
	s.decode(resp, &rejected)
	s.NotEmpty(rejected["messages"])
	s.Zero(s.backend.FormCount())

	id := s.createDraft(validRecord())
	resp = s.do(http.MethodPost, "/api/drafts/"+id+"/submit", nil)
	s.Require().Equal(http.StatusOK, resp.StatusCode)
	var res struct {
		Draft struct {
			RemoteID string `json:"remote_id"`
			Dirty    bool   `json:"dirty"`
		} `json:"draft"`
		Record schema.Record `json:"record"`
	}
	s.decode(resp, &res)
	s.Require().NotEmpty(res.Draft.RemoteID)
	s.False(res.Draft.Dirty)
	s.Equal(1, s.backend.FormCount())

	remote, err := strconv.ParseInt(res.Draft.RemoteID, 10, 64)
	s.Require().NoError(err)
	stored, ok := s.backend.Form(remote)
	s.Require().True(ok)
	s.Equal(45.5, schema.SectionOf(stored, schema.TowerInfo)["tower_height"])
	s.Equal("CA/F/FSM/17", stored["form_id"])

	// a second submission updates the same record
	resp = s.do(http.MethodPost, "/api/drafts/"+id+"/submit", nil)
	s.Require().Equal(http.StatusOK, resp.StatusCode)
	s.Equal(1, s.backend.FormCount())
	stored, _ = s.backend.Form(remote)
	s.EqualValues(2, stored["submission_attempt"])
}

func (s *ServerTestSuite) TestSubmitWithoutBackend() {
	srv := New(Config{}, s.store, nil, zerolog.Nop())
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	id := s.createDraft(validRecord())
	resp, err := http.Post(ts.URL+"/api/drafts/"+id+"/submit", "application/json", nil)
	s.Require().NoError(err)
	defer resp.Body.Close()
	s.Equal(http.StatusServiceUnavailable, resp.StatusCode)
}

func (s *ServerTestSuite) TestLive() {
	id := s.createDraft(nil)

	ws, err := live.Create().SetTimeOut(5 * time.Second).Connect(s.liveURL(id))
	s.Require().NoError(err)

	select {
	case hello := <-ws.Notifications():
		s.Equal(live.TypeHello, hello.Type)
		s.Equal(id, hello.DraftID)
	case <-time.After(5 * time.Second):
		s.Fail("no hello")
	}

	msg, err := ws.Set(schema.AdministrativeInfo, "postal_code", "123")
	s.Require().NoError(err)
	s.Equal("Postal code must be exactly 5 digits", msg)

	msg, err = ws.Set(schema.AdministrativeInfo, "name_of_broadcaster", "KBC")
	s.Require().NoError(err)
	s.Empty(msg)

	_, err = ws.Set(schema.AdministrativeInfo, "bogus", "x")
	s.ErrorIs(err, live.ErrRemote)

	idx, err := ws.AddPersonnel()
	s.Require().NoError(err)
	s.Equal(0, idx)
	msg, err = ws.SetPersonnel(0, "date", "2099-01-01")
	s.Require().NoError(err)
	s.Equal("Date cannot be in the future", msg)
	_, err = ws.SetPersonnel(3, "name", "x")
	s.ErrorIs(err, live.ErrRemote)

	report, completion, err := ws.Validate()
	s.Require().NoError(err)
	s.False(report.IsValid())
	s.Equal("Date cannot be in the future", report.Message(schema.Personnel, "date", 0))
	s.NotEmpty(report.Message(schema.Personnel, "name", 0))
	s.Positive(completion.RequiredCompleted)

	s.Require().NoError(ws.RemovePersonnel(0))
	s.NoError(ws.Close())

	var view struct {
		Record schema.Record `json:"record"`
	}
	s.decode(s.do(http.MethodGet, "/api/drafts/"+id, nil), &view)
	admin := schema.SectionOf(view.Record, schema.AdministrativeInfo)
	s.Equal("123", admin["postal_code"])
	s.Equal("KBC", admin["name_of_broadcaster"])
	s.Empty(schema.PersonnelOf(view.Record))
}

func (s *ServerTestSuite) TestLiveAutoSave() {
	remote := s.backend.SeedForm("inspector", validRecord())
	rec := validRecord()
	rec["id"] = strconv.FormatInt(remote, 10)
	id := s.createDraft(rec)

	ws, err := live.Create().Connect(s.liveURL(id))
	s.Require().NoError(err)
	defer ws.Close()

	_, err = ws.Set(schema.TowerInfo, "tower_owner", "Signet")
	s.Require().NoError(err)

	deadline := time.After(5 * time.Second)
	for saved := false; !saved; {
		select {
		case n := <-ws.Notifications():
			if n.Type == live.TypeSaved {
				s.Equal(strconv.FormatInt(remote, 10), n.RemoteID)
				saved = true
			}
		case <-deadline:
			s.FailNow("no auto-save notice")
		}
	}

	stored, ok := s.backend.Form(remote)
	s.Require().True(ok)
	s.Equal("Signet", schema.SectionOf(stored, schema.TowerInfo)["tower_owner"])
	s.Equal(true, stored["auto_save"])
}

func TestLiveRejectsUnknownDraft(t *testing.T) {
	st, err := store.Open(context.Background(), filepath.Join(t.TempDir(), "drafts.db"), zerolog.Nop())
	require.NoError(t, err)
	defer st.Close()

	ts := httptest.NewServer(New(Config{}, st, nil, zerolog.Nop()).Handler())
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/live?draft="
	_, err = live.Create().Connect(url + "00000000-0000-0000-0000-000000000000")
	assert.Error(t, err)
	_, err = live.Create().Connect(url + "nope")
	assert.Error(t, err)

	ws, err := live.Create().Connect(url[:len(url)-len("?draft=")])
	require.NoError(t, err)
	defer ws.Close()
	report, _, err := ws.Validate()
	require.NoError(t, err)
	assert.False(t, report.IsValid())
}

type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestAccessLog(t *testing.T) {
	st, err := store.Open(context.Background(), filepath.Join(t.TempDir(), "drafts.db"), zerolog.Nop())
	require.NoError(t, err)
	defer st.Close()

	var out lockedBuffer
	logger := zerolog.New(&out).Level(zerolog.DebugLevel)
	ts := httptest.NewServer(New(Config{}, st, nil, logger).Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/api/health")
	require.NoError(t, err)
	resp.Body.Close()
	resp, err = http.Get(ts.URL + "/api/drafts/00000000-0000-0000-0000-000000000000")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusNotFound, resp.StatusCode)

	require.Eventually(t, func() bool {
		return strings.Count(out.String(), `"message":"request"`) == 2
	}, time.Second, 10*time.Millisecond)
	logged := out.String()
	assert.Contains(t, logged, `"method":"GET"`)
	assert.Contains(t, logged, `"url":"/api/health"`)
	assert.Contains(t, logged, `"status":200`)
	assert.Contains(t, logged, `"status":404`)

	ws, err := live.Create().Connect("ws" + strings.TrimPrefix(ts.URL, "http") + "/api/live")
	require.NoError(t, err, "the socket upgrades through the access log")
	_, _, err = ws.Validate()
	require.NoError(t, err)
	require.NoError(t, ws.Close())
}
