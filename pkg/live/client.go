package live

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	gorilla "github.com/gorilla/websocket"

	"github.com/tvinspection/tvinspect/pkg/logger"
	"github.com/tvinspection/tvinspect/pkg/validate"
)

const (
	// CloseMessageCode identifier the message id for a close request
	CloseMessageCode = 1000
	// DefaultTimeout timeout in seconds
	DefaultTimeout = 30
)

var (
	ErrIDInUse    = errors.New("id already in use")
	ErrTimeout    = errors.New("timeout")
	ErrClosed     = errors.New("connection closed")
	ErrRemote     = errors.New("live server error")
	ErrUnexpected = errors.New("unexpected reply")
)

type Option func(ws *WebSocket) error

// WebSocket is a client of the live validation socket.
type WebSocket struct {
	Conn     *gorilla.Conn
	connLock sync.Mutex
	Timeout  time.Duration
	Option   []Option
	logger   *logger.LogData

	responseChannels     map[string]chan Message
	responseChannelsLock sync.RWMutex

	notifications chan Message
	nextID        atomic.Uint64

	close     chan int
	closeOnce sync.Once
	closeErr  error
	done      chan struct{}
}

func Create() *WebSocket {
	return &WebSocket{
		Conn:             nil,
		close:            make(chan int),
		done:             make(chan struct{}),
		responseChannels: make(map[string]chan Message),
		notifications:    make(chan Message, 16),
		Timeout:          DefaultTimeout * time.Second,
	}
}

func (ws *WebSocket) Connect(url string) (*WebSocket, error) {
	dialer := *gorilla.DefaultDialer
	dialer.EnableCompression = true

	conn, _, err := dialer.Dial(url, nil)
	if err != nil {
		return nil, err
	}

	ws.Conn = conn

	for _, option := range ws.Option {
		if err := option(ws); err != nil {
			return ws, err
		}
	}

	ws.initialize()
	return ws, nil
}

func (ws *WebSocket) SetTimeOut(timeout time.Duration) *WebSocket {
	ws.Option = append(ws.Option, func(ws *WebSocket) error {
		ws.Timeout = timeout
		return nil
	})
	return ws
}

func (ws *WebSocket) Logger(logData *logger.LogData) *WebSocket {
	ws.logger = logData
	return ws
}

func (ws *WebSocket) SetCompression(compress bool) *WebSocket {
	ws.Option = append(ws.Option, func(ws *WebSocket) error {
		ws.Conn.EnableWriteCompression(compress)
		return nil
	})
	return ws
}

// Close sends a close frame and closes the connection. Later calls return
// the result of the first.
func (ws *WebSocket) Close() error {
	ws.closeOnce.Do(func() {
		defer close(ws.close)

		ws.connLock.Lock()
		err := ws.Conn.WriteMessage(gorilla.CloseMessage, gorilla.FormatCloseMessage(CloseMessageCode, ""))
		ws.connLock.Unlock()
		if closeErr := ws.Conn.Close(); err == nil {
			err = closeErr
		}
		ws.closeErr = err
	})
	return ws.closeErr
}

// Notifications delivers the messages the server pushes without a request:
// the hello on connect and auto-save notices. Notifications are dropped
// while nobody reads them.
func (ws *WebSocket) Notifications() <-chan Message {
	return ws.notifications
}

func (ws *WebSocket) logError(err error) {
	if ws.logger == nil {
		return
	}
	ws.logger.Logger.Error().Err(err).Msg("live socket")
	if ws.logger.LogChannel != nil {
		select {
		case ws.logger.LogChannel <- err.Error():
		default:
		}
	}
}

func (ws *WebSocket) createResponseChannel(id string) (chan Message, error) {
	ws.responseChannelsLock.Lock()
	defer ws.responseChannelsLock.Unlock()

	if _, ok := ws.responseChannels[id]; ok {
		return nil, fmt.Errorf("%w: %s", ErrIDInUse, id)
	}

	ch := make(chan Message, 1)
	ws.responseChannels[id] = ch

	return ch, nil
}

func (ws *WebSocket) removeResponseChannel(id string) {
	ws.responseChannelsLock.Lock()
	defer ws.responseChannelsLock.Unlock()
	delete(ws.responseChannels, id)
}

func (ws *WebSocket) getResponseChannel(id string) (chan Message, bool) {
	ws.responseChannelsLock.RLock()
	defer ws.responseChannelsLock.RUnlock()
	ch, ok := ws.responseChannels[id]
	return ch, ok
}

// Send sends msg and waits for the reply carrying the same id. An error
// reply is returned as an error wrapping ErrRemote.
func (ws *WebSocket) Send(msg Message) (Message, error) {
	msg.ID = strconv.FormatUint(ws.nextID.Add(1), 10)

	responseChan, err := ws.createResponseChannel(msg.ID)
	if err != nil {
		return Message{}, err
	}
	defer ws.removeResponseChannel(msg.ID)

	if err := ws.write(msg); err != nil {
		return Message{}, err
	}

	timeout := time.After(ws.Timeout)
	select {
	case <-timeout:
		return Message{}, ErrTimeout
	case <-ws.done:
		return Message{}, ErrClosed
	case res := <-responseChan:
		if res.Type == TypeError {
			return res, fmt.Errorf("%w: %s", ErrRemote, res.Message)
		}
		return res, nil
	}
}

// Set changes one field and returns its validation message, "" when valid.
func (ws *WebSocket) Set(section, field string, value any) (string, error) {
	res, err := ws.expect(Message{Type: TypeSet, Section: section, Field: field, Value: value}, TypeField)
	return res.Message, err
}

// AddPersonnel appends an empty personnel entry and returns its index.
func (ws *WebSocket) AddPersonnel() (int, error) {
	res, err := ws.expect(Message{Type: TypePersonnel, Op: OpAdd}, TypePersonnel)
	if err != nil {
		return 0, err
	}
	if res.Index == nil {
		return 0, fmt.Errorf("%w: personnel reply without index", ErrUnexpected)
	}
	return *res.Index, nil
}

func (ws *WebSocket) RemovePersonnel(index int) error {
	_, err := ws.expect(Message{Type: TypePersonnel, Op: OpRemove, Index: Index(index)}, TypePersonnel)
	return err
}

// SetPersonnel changes one field of a personnel entry and returns its
// validation message.
func (ws *WebSocket) SetPersonnel(index int, field string, value any) (string, error) {
	res, err := ws.expect(Message{Type: TypePersonnel, Op: OpSet, Index: Index(index), Field: field, Value: value}, TypeField)
	return res.Message, err
}

// Validate returns the report and completion of the whole draft.
func (ws *WebSocket) Validate() (validate.Report, validate.CompletionStatus, error) {
	res, err := ws.expect(Message{Type: TypeValidate}, TypeReport)
	if err != nil {
		return validate.Report{}, validate.CompletionStatus{}, err
	}
	var (
		report     validate.Report
		completion validate.CompletionStatus
	)
	if res.Report != nil {
		report = *res.Report
	}
	if res.Completion != nil {
		completion = *res.Completion
	}
	return report, completion, nil
}

func (ws *WebSocket) expect(msg Message, replyType string) (Message, error) {
	res, err := ws.Send(msg)
	if err != nil {
		return res, err
	}
	if res.Type != replyType {
		return res, fmt.Errorf("%w: got %q, want %q", ErrUnexpected, res.Type, replyType)
	}
	return res, nil
}

func (ws *WebSocket) read(v interface{}) error {
	_, data, err := ws.Conn.ReadMessage()
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

func (ws *WebSocket) write(v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}

	ws.connLock.Lock()
	defer ws.connLock.Unlock()
	return ws.Conn.WriteMessage(gorilla.TextMessage, data)
}

func (ws *WebSocket) initialize() {
	go func() {
		defer close(ws.done)
		for {
			select {
			case <-ws.close:
				return
			default:
				var res Message
				err := ws.read(&res)
				if err != nil {
					var syntaxErr *json.SyntaxError
					if errors.As(err, &syntaxErr) {
						ws.logError(err)
						continue
					}
					select {
					case <-ws.close:
					default:
						ws.logError(err)
					}
					return
				}
				ws.handleResponse(res)
			}
		}
	}()
}

func (ws *WebSocket) handleResponse(res Message) {
	if res.ID == "" {
		select {
		case ws.notifications <- res:
		default:
		}
		return
	}
	responseChan, ok := ws.getResponseChannel(res.ID)
	if !ok {
		ws.logError(fmt.Errorf("unavailable ResponseChannel %s", res.ID))
		return
	}
	responseChan <- res
}
