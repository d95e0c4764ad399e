package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/tvinspection/tvinspect/internal/store"
	"github.com/tvinspection/tvinspect/pkg/draft"
	"github.com/tvinspection/tvinspect/pkg/live"
	"github.com/tvinspection/tvinspect/pkg/schema"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

// handleLive upgrades to the live validation socket. With ?draft=<id> the
// stored draft is edited; without it a new draft is started. Every change
// is validated and the draft stored.
func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	d := draft.New()
	if raw := r.URL.Query().Get("draft"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			respondError(w, http.StatusBadRequest, "Invalid draft id")
			return
		}
		if d, err = s.store.Get(r.Context(), id); err != nil {
			s.respondStoreError(w, err)
			return
		}
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn().Err(err).Msg("live upgrade")
		return
	}

	ls := &liveSession{
		server: s,
		conn:   conn,
		draft:  d,
		logger: s.logger.With().Str("draft", d.ID().String()).Logger(),
	}
	ls.run(r.Context())
}

// liveSession owns one socket and its draft. Only run writes to conn.
type liveSession struct {
	server *Server
	conn   *websocket.Conn
	draft  *draft.Draft
	logger zerolog.Logger
}

func (ls *liveSession) run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	defer ls.conn.Close()

	ls.logger.Debug().Msg("live session opened")

	in := make(chan live.Message)
	readErr := make(chan error, 1)
	go ls.readLoop(ctx, in, readErr)

	var autoSave <-chan time.Time
	if interval := ls.server.config.AutoSaveInterval; interval > 0 {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		autoSave = ticker.C
	}
	ping := time.NewTicker(pingPeriod)
	defer ping.Stop()

	if err := ls.write(live.Message{Type: live.TypeHello, DraftID: ls.draft.ID().String(), RemoteID: ls.draft.RemoteID()}); err != nil {
		return
	}

	for {
		select {
		case <-ctx.Done():
			return
		case err := <-readErr:
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				ls.logger.Debug().Err(err).Msg("live read")
			}
			ls.logger.Debug().Msg("live session closed")
			return
		case msg := <-in:
			if err := ls.write(ls.handle(ctx, msg)); err != nil {
				return
			}
		case <-autoSave:
			if notice, ok := ls.autoSave(ctx); ok {
				if err := ls.write(notice); err != nil {
					return
				}
			}
		case <-ping.C:
			_ = ls.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := ls.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (ls *liveSession) readLoop(ctx context.Context, in chan<- live.Message, readErr chan<- error) {
	_ = ls.conn.SetReadDeadline(time.Now().Add(pongWait))
	ls.conn.SetPongHandler(func(string) error {
		return ls.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		var msg live.Message
		if err := ls.conn.ReadJSON(&msg); err != nil {
			readErr <- err
			return
		}
		_ = ls.conn.SetReadDeadline(time.Now().Add(pongWait))
		select {
		case in <- msg:
		case <-ctx.Done():
			return
		}
	}
}

func (ls *liveSession) write(msg live.Message) error {
	_ = ls.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := ls.conn.WriteJSON(msg); err != nil {
		ls.logger.Debug().Err(err).Msg("live write")
		return err
	}
	return nil
}

// handle applies one client message and builds its reply.
func (ls *liveSession) handle(ctx context.Context, msg live.Message) live.Message {
	reply, err := ls.apply(msg)
	if err != nil {
		return live.Message{ID: msg.ID, Type: live.TypeError, Message: err.Error()}
	}
	reply.ID = msg.ID
	if msg.Type != live.TypeValidate {
		ls.persist(ctx)
	}
	return reply
}

func (ls *liveSession) apply(msg live.Message) (live.Message, error) {
	d := ls.draft
	switch msg.Type {
	case live.TypeSet:
		text, err := d.Set(msg.Section, msg.Field, msg.Value)
		if err != nil {
			return live.Message{}, err
		}
		return live.Message{Type: live.TypeField, Path: msg.Section + "." + msg.Field, Message: text}, nil

	case live.TypePersonnel:
		switch msg.Op {
		case live.OpAdd:
			return live.Message{Type: live.TypePersonnel, Op: live.OpAdd, Index: live.Index(d.AddPersonnel())}, nil
		case live.OpRemove:
			if msg.Index == nil {
				return live.Message{}, errors.New("personnel remove needs an index")
			}
			if err := d.RemovePersonnel(*msg.Index); err != nil {
				return live.Message{}, err
			}
			return live.Message{Type: live.TypePersonnel, Op: live.OpRemove, Index: msg.Index}, nil
		case live.OpSet:
			if msg.Index == nil {
				return live.Message{}, errors.New("personnel set needs an index")
			}
			text, err := d.SetPersonnel(*msg.Index, msg.Field, msg.Value)
			if err != nil {
				return live.Message{}, err
			}
			path := fmt.Sprintf("%s.%d.%s", schema.Personnel, *msg.Index, msg.Field)
			return live.Message{Type: live.TypeField, Path: path, Message: text}, nil
		}
		return live.Message{}, fmt.Errorf("unknown personnel op %q", msg.Op)

	case live.TypeValidate:
		report := d.Validate()
		completion := d.Completion()
		return live.Message{Type: live.TypeReport, Report: &report, Completion: &completion}, nil
	}
	return live.Message{}, fmt.Errorf("unknown message type %q", msg.Type)
}

// persist stores the draft after a change. Read-only mode keeps the edits
// in memory only.
func (ls *liveSession) persist(ctx context.Context) {
	err := ls.server.store.Save(ctx, ls.draft)
	switch {
	case err == nil, errors.Is(err, store.ErrReadOnly):
	default:
		ls.logger.Warn().Err(err).Msg("store live draft")
	}
}

// autoSave pushes a dirty, valid edit of a backend record to the backend.
func (ls *liveSession) autoSave(ctx context.Context) (live.Message, bool) {
	backend := ls.server.backend
	if backend == nil || ls.server.IsReadOnly() {
		return live.Message{}, false
	}
	payload, ok := ls.draft.AutoSavePayload()
	if !ok {
		return live.Message{}, false
	}
	if _, err := backend.UpdateForm(ctx, ls.draft.RemoteID(), payload); err != nil {
		ls.logger.Warn().Err(err).Msg("auto-save failed")
		return live.Message{}, false
	}
	ls.draft.MarkSaved()
	ls.persist(ctx)
	ls.logger.Debug().Str("remote_id", ls.draft.RemoteID()).Msg("auto-saved")
	return live.Message{Type: live.TypeSaved, DraftID: ls.draft.ID().String(), RemoteID: ls.draft.RemoteID()}, true
}
