package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/tvinspection/tvinspect/internal/fakebackend"
	"github.com/tvinspection/tvinspect/pkg/constants"
	"github.com/tvinspection/tvinspect/pkg/schema"
)

type testEnv struct {
	t       *testing.T
	backend *fakebackend.Server
	dir     string
	config  string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	for _, key := range []string{"TVINSPECT_API_URL", "API_URL", "TVINSPECT_SESSION_FILE", "TVINSPECT_DRAFTS_DB", "TVINSPECT_LOG_LEVEL"} {
		t.Setenv(key, "")
	}

	backend := fakebackend.NewServer("127.0.0.1:0")
	require.NoError(t, backend.Start())
	t.Cleanup(func() { _ = backend.Stop() })
	backend.AddUser("inspector", "s3cret")

	dir := t.TempDir()
	config := filepath.Join(dir, "config.yaml")
	yaml := "api_url: " + backend.URL() + "\n" +
		"session_file: " + filepath.Join(dir, "session.json") + "\n" +
		"drafts_db: " + filepath.Join(dir, "drafts.db") + "\n" +
		"log_level: error\n"
	require.NoError(t, os.WriteFile(config, []byte(yaml), 0o600))

	return &testEnv{t: t, backend: backend, dir: dir, config: config}
}

func (e *testEnv) runIn(stdin string, args ...string) (string, error) {
	var out, errOut bytes.Buffer
	err := Run(context.Background(), append([]string{"--config", e.config}, args...), strings.NewReader(stdin), &out, &errOut)
	return out.String(), err
}

func (e *testEnv) run(args ...string) (string, error) {
	return e.runIn("", args...)
}

func (e *testEnv) mustRun(args ...string) string {
	e.t.Helper()
	out, err := e.run(args...)
	require.NoError(e.t, err, "tvinspect %s", strings.Join(args, " "))
	return out
}

func (e *testEnv) login() {
	e.t.Helper()
	e.mustRun("login", "-u", "inspector", "-p", "s3cret")
}

func (e *testEnv) writeRecord(name string, rec schema.Record) string {
	e.t.Helper()
	data, err := json.Marshal(rec)
	require.NoError(e.t, err)
	path := filepath.Join(e.dir, name)
	require.NoError(e.t, os.WriteFile(path, data, 0o600))
	return path
}

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

var savedForm = regexp.MustCompile(`Saved form (\d+)`)

func formID(t *testing.T, out string) int64 {
	t.Helper()
	m := savedForm.FindStringSubmatch(out)
	require.Len(t, m, 2, out)
	id, err := strconv.ParseInt(m[1], 10, 64)
	require.NoError(t, err)
	return id
}

func TestLoginWhoamiLogout(t *testing.T) {
	e := newTestEnv(t)

	_, err := e.run("whoami")
	require.ErrorIs(t, err, errNotLoggedIn)

	_, err = e.run("login", "-u", "inspector", "-p", "wrong")
	require.ErrorIs(t, err, constants.ErrUnauthorized)

	out := e.mustRun("login", "-u", "inspector", "-p", "s3cret")
	assert.Contains(t, out, "Logged in as inspector")

	out = e.mustRun("whoami")
	assert.Contains(t, out, "Username: inspector")

	out = e.mustRun("whoami", "--set", "first_name=Jane", "--set", "last_name=Wanjiru")
	assert.Contains(t, out, "Name:     Jane Wanjiru")

	assert.Contains(t, e.mustRun("logout"), "Logged out")
	_, err = e.run("whoami")
	assert.ErrorIs(t, err, errNotLoggedIn)
}

func TestLoginReadsPasswordFromStdin(t *testing.T) {
	e := newTestEnv(t)
	out, err := e.runIn("s3cret\n", "login", "-u", "inspector")
	require.NoError(t, err)
	assert.Contains(t, out, "Logged in as inspector")
}

func TestRegister(t *testing.T) {
	e := newTestEnv(t)
	out := e.mustRun("register", "-u", "surveyor", "-p", "Passw0rd!", "--email", "surveyor@example.com", "--first-name", "Amina")
	assert.Contains(t, out, "Registered and logged in as Amina")
	assert.Contains(t, e.mustRun("whoami"), "Username: surveyor")
}

func TestFormLifecycle(t *testing.T) {
	e := newTestEnv(t)
	e.login()

	id := formID(t, e.mustRun("add", "-f", e.writeRecord("form.json", validRecord())))
	ref := strconv.FormatInt(id, 10)
	require.Equal(t, 1, e.backend.FormCount())

	out := e.mustRun("list")
	assert.Contains(t, out, "Kenya Broadcasting Corporation")
	assert.Contains(t, out, "BROADCASTER")

	out = e.mustRun("list", "--station-type", "RADIO_FM")
	assert.Contains(t, out, "No inspection forms found.")

	out = e.mustRun("view", ref)
	assert.Contains(t, out, "Administrative Information")
	assert.Contains(t, out, "Limuru")
	assert.Contains(t, out, "Yes", "booleans are shown as Yes/No")

	out = e.mustRun("edit", ref, "--set", "tower_info.tower_owner=Signet", "--set", "ca_personnel.0.name=Jane Doe", "--set", "ca_personnel.0.date=2024-05-01")
	assert.Contains(t, out, "Updated form "+ref)
	stored, ok := e.backend.Form(id)
	require.True(t, ok)
	assert.Equal(t, "Signet", schema.SectionOf(stored, schema.TowerInfo)["tower_owner"])
	personnel := schema.PersonnelOf(stored)
	require.Len(t, personnel, 1)
	assert.Equal(t, "Jane Doe", personnel[0]["name"])

	_, err := e.run("edit", ref, "--set", "tower_info.bogus=1")
	assert.ErrorIs(t, err, constants.ErrUnknownField)

	xlsx := filepath.Join(e.dir, "form.xlsx")
	e.mustRun("download", ref, "--format", "excel", "-o", xlsx)
	f, err := excelize.OpenFile(xlsx)
	require.NoError(t, err)
	assert.Contains(t, f.GetSheetList(), "Summary")
	require.NoError(t, f.Close())

	pdf := filepath.Join(e.dir, "form.pdf")
	e.mustRun("download", ref, "-o", pdf)
	data, err := os.ReadFile(pdf)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(data, []byte("%PDF")))

	assert.Contains(t, e.mustRun("delete", ref), "Deleted form "+ref)
	assert.Zero(t, e.backend.FormCount())
	_, err = e.run("view", ref)
	assert.ErrorIs(t, err, constants.ErrNotFound)
}

func TestAddRejectsInvalidRecord(t *testing.T) {
	e := newTestEnv(t)
	e.login()

	out, err := e.run("add", "-f", e.writeRecord("empty.json", schema.Record{}))
	require.ErrorIs(t, err, constants.ErrInvalidRecord)
	assert.Contains(t, out, "Please fix the following errors:")
	assert.Contains(t, out, "ADMINISTRATIVE INFO - name of broadcaster")
	assert.Zero(t, e.backend.FormCount())

	_, err = e.run("add")
	assert.Error(t, err)
}

func TestDashboard(t *testing.T) {
	e := newTestEnv(t)

	_, err := e.run("dashboard")
	require.ErrorIs(t, err, errNotLoggedIn)

	e.login()
	e.backend.SeedForm("inspector", validRecord())
	e.backend.SeedForm("inspector", validRecord())

	out := e.mustRun("dashboard")
	assert.Contains(t, out, "Welcome, inspector")
	assert.Contains(t, out, "Backend:     healthy")
	assert.Contains(t, out, "Total forms: 2")
	assert.Contains(t, out, "This month:  2")
	assert.Contains(t, out, "Recent forms:")
}

func TestLocalCommands(t *testing.T) {
	e := newTestEnv(t)
	valid := e.writeRecord("valid.json", validRecord())
	empty := e.writeRecord("empty.json", schema.Record{})

	assert.Contains(t, e.mustRun("validate", "-f", valid), "Record is valid")
	out, err := e.run("validate", "-f", empty)
	assert.ErrorIs(t, err, constants.ErrInvalidRecord)
	assert.Contains(t, out, "ADMINISTRATIVE INFO - name of broadcaster")

	var normalized map[string]map[string]any
	require.NoError(t, json.Unmarshal([]byte(e.mustRun("normalize", "-f", valid)), &normalized))
	assert.Equal(t, 45.5, normalized[schema.TowerInfo]["tower_height"])
	assert.Equal(t, true, normalized[schema.TowerInfo]["is_insured"])

	out = e.mustRun("completion", "-f", empty)
	assert.Contains(t, out, "Completion: 0%")
	assert.Contains(t, out, "administrative_info.name_of_broadcaster")

	xlsx := filepath.Join(e.dir, "local.xlsx")
	assert.Contains(t, e.mustRun("export", "-f", valid, "-o", xlsx), "Saved "+xlsx)
	_, err = os.Stat(xlsx)
	assert.NoError(t, err)

	png := filepath.Join(e.dir, "mast.png")
	require.NoError(t, os.WriteFile(png, []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR"), 0o600))
	assert.Contains(t, e.mustRun("check-file", png), "mast.png can be attached (image/png")

	txt := filepath.Join(e.dir, "notes.txt")
	require.NoError(t, os.WriteFile(txt, []byte("plain notes"), 0o600))
	_, err = e.run("check-file", txt)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "File type must be one of")
}

func TestDrafts(t *testing.T) {
	e := newTestEnv(t)
	assert.Contains(t, e.mustRun("drafts", "list"), "No drafts.")

	out := e.mustRun("drafts", "save", "-f", e.writeRecord("draft.json", validRecord()))
	m := regexp.MustCompile(`Saved draft ([0-9a-f-]{36})`).FindStringSubmatch(out)
	require.Len(t, m, 2, out)
	draftID := m[1]

	out = e.mustRun("drafts", "list")
	assert.Contains(t, out, draftID)
	assert.Contains(t, out, "Kenya Broadcasting Corporation")

	e.login()
	id := formID(t, e.mustRun("add", "--draft", draftID))

	out = e.mustRun("drafts", "show", draftID)
	assert.Contains(t, out, "Draft "+draftID)
	assert.Contains(t, out, "Form: "+strconv.FormatInt(id, 10))
	assert.Regexp(t, `Completion: \d+%`, out)

	// submitting the draft again updates the same form
	assert.Equal(t, id, formID(t, e.mustRun("add", "--draft", draftID)))
	assert.Equal(t, 1, e.backend.FormCount())

	assert.Contains(t, e.mustRun("drafts", "delete", draftID), "Deleted draft "+draftID)
	_, err := e.run("drafts", "show", draftID)
	assert.ErrorIs(t, err, constants.ErrDraftNotFound)
}

func TestRejectsBadAPIURL(t *testing.T) {
	e := newTestEnv(t)
	_, err := e.run("--api-url", "not a url", "drafts", "list")
	assert.ErrorIs(t, err, constants.ErrNoBaseURL)
}
