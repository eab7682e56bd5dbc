package client

import (
	"context"
	"encoding/json"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"

	"taskboard-api/domain"
)

const (
	subscriberPongWait  = 60 * time.Second
	subscriberWriteWait = 10 * time.Second
)

// Subscriber holds a live websocket to the server and feeds every received
// event into a State. Close tears the connection down; events read after
// Close are dropped.
type Subscriber struct {
	ws    *websocket.Conn
	state *State
	log   *log.Logger

	closeOnce sync.Once
	closed    chan struct{}
	done      chan struct{}
}

// Dial connects to the server's websocket endpoint, joins the user's room
// and starts the read loop. baseURL is the http(s) origin of the API.
func Dial(ctx context.Context, baseURL, token, userID string, state *State, logger *log.Logger) (*Subscriber, error) {
	if logger == nil {
		logger = log.StandardLogger()
	}

	wsURL, err := websocketURL(baseURL, token)
	if err != nil {
		return nil, err
	}
	ws, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return nil, err
	}

	join, err := domain.NewEvent(domain.JoinUser, "", userID)
	if err != nil {
		ws.Close()
		return nil, err
	}
	ws.SetWriteDeadline(time.Now().Add(subscriberWriteWait))
	if err := ws.WriteJSON(join); err != nil {
		ws.Close()
		return nil, err
	}

	s := &Subscriber{
		ws:     ws,
		state:  state,
		log:    logger,
		closed: make(chan struct{}),
		done:   make(chan struct{}),
	}
	go s.readLoop()
	return s, nil
}

// Close shuts the connection down. Safe to call more than once.
func (s *Subscriber) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.closed)
		s.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(subscriberWriteWait))
		err = s.ws.Close()
	})
	return err
}

// Done closes once the read loop has exited.
func (s *Subscriber) Done() <-chan struct{} { return s.done }

func (s *Subscriber) readLoop() {
	defer close(s.done)
	s.ws.SetReadDeadline(time.Now().Add(subscriberPongWait))
	// WriteControl is safe against the close frame written from Close.
	s.ws.SetPingHandler(func(appData string) error {
		s.ws.SetReadDeadline(time.Now().Add(subscriberPongWait))
		return s.ws.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(subscriberWriteWait))
	})

	for {
		_, payload, err := s.ws.ReadMessage()
		if err != nil {
			select {
			case <-s.closed:
			default:
				s.log.Debugf("subscriber read loop ended: %v", err)
			}
			return
		}
		select {
		case <-s.closed:
			return
		default:
		}
		var ev domain.Event
		if err := json.Unmarshal(payload, &ev); err != nil {
			s.log.Debugf("dropping malformed event: %v", err)
			continue
		}
		if err := s.state.Apply(ev); err != nil {
			s.log.WithFields(log.Fields{"event": ev.Name}).Warnf("event dropped: %v", err)
		}
	}
}

func websocketURL(baseURL, token string) (string, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path += "/api/ws"
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()
	return u.String(), nil
}
