package live

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	gorilla "github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tvinspection/tvinspect/pkg/logger"
)

// scriptedServer answers every request with reply(msg). A nil reply is
// never answered.
func scriptedServer(t *testing.T, reply func(Message) *Message) string {
	t.Helper()
	upgrader := gorilla.Upgrader{}
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		_ = conn.WriteJSON(Message{Type: TypeHello, DraftID: "d1"})
		for {
			var msg Message
			if err := conn.ReadJSON(&msg); err != nil {
				return
			}
			if res := reply(msg); res != nil {
				res.ID = msg.ID
				if err := conn.WriteJSON(res); err != nil {
					return
				}
			}
		}
	}))
	t.Cleanup(ts.Close)
	return "ws" + strings.TrimPrefix(ts.URL, "http")
}

func TestClient(t *testing.T) {
	url := scriptedServer(t, func(m Message) *Message {
		switch m.Type {
		case TypeSet:
			if m.Field == "postal_code" {
				return &Message{Type: TypeField, Path: m.Section + "." + m.Field, Message: "Postal code must be exactly 5 digits"}
			}
			return &Message{Type: TypeError, Message: "unknown field"}
		case TypePersonnel:
			if m.Op == OpAdd {
				return &Message{Type: TypePersonnel, Op: OpAdd, Index: Index(2)}
			}
			return &Message{Type: TypeField, Path: "ca_personnel.0.name"}
		case TypeValidate:
			return nil
		}
		return &Message{Type: TypeReport}
	})

	logData, err := logger.New().FromBuffer(&strings.Builder{}).Make()
	require.NoError(t, err)
	ws, err := Create().SetTimeOut(200 * time.Millisecond).Logger(logData).Connect(url)
	require.NoError(t, err)
	defer ws.Close()

	select {
	case hello := <-ws.Notifications():
		assert.Equal(t, TypeHello, hello.Type)
		assert.Equal(t, "d1", hello.DraftID)
	case <-time.After(time.Second):
		t.Fatal("no hello")
	}

	msg, err := ws.Set("administrative_info", "postal_code", "123")
	require.NoError(t, err)
	assert.Equal(t, "Postal code must be exactly 5 digits", msg)

	_, err = ws.Set("administrative_info", "bogus", "x")
	assert.ErrorIs(t, err, ErrRemote)
	assert.Contains(t, err.Error(), "unknown field")

	idx, err := ws.AddPersonnel()
	require.NoError(t, err)
	assert.Equal(t, 2, idx)

	msg, err = ws.SetPersonnel(0, "name", "Jane")
	require.NoError(t, err)
	assert.Empty(t, msg)

	_, _, err = ws.Validate()
	assert.ErrorIs(t, err, ErrTimeout)

	err = ws.RemovePersonnel(0)
	assert.ErrorIs(t, err, ErrUnexpected, "a field reply to a remove")
}

func TestClientClosedByServer(t *testing.T) {
	upgrader := gorilla.Upgrader{}
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		var msg Message
		_ = conn.ReadJSON(&msg)
		conn.Close()
	}))
	defer ts.Close()

	ws, err := Create().Connect("ws" + strings.TrimPrefix(ts.URL, "http"))
	require.NoError(t, err)

	_, err = ws.Set("tower_info", "tower_owner", "KBC")
	assert.ErrorIs(t, err, ErrClosed)
}

func TestConnectFails(t *testing.T) {
	ts := httptest.NewServer(http.NotFoundHandler())
	defer ts.Close()
	_, err := Create().Connect("ws" + strings.TrimPrefix(ts.URL, "http"))
	assert.Error(t, err)
}

func TestCloseTwice(t *testing.T) {
	url := scriptedServer(t, func(Message) *Message { return &Message{Type: TypeReport} })
	ws, err := Create().Connect(url)
	require.NoError(t, err)

	first := ws.Close()
	assert.NotPanics(t, func() {
		assert.Equal(t, first, ws.Close())
	})
}
