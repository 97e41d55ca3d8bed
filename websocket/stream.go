package websocket

import (
	"context"
	"time"

	"github.com/aukilabs/canvasindex/models"
	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/logs"
	"github.com/google/uuid"
	"github.com/segmentio/encoding/json"
	"golang.org/x/net/websocket"
)

const (
	DefaultQueueSize       = 512
	DefaultSummaryInterval = time.Minute

	MsgTypeHello      = "hello"
	MsgTypeRectChange = "rect_change"
	MsgTypeDropped    = "dropped"

	ErrTypeSendFailed = "stream_send_failed"
)

// Source publishes the rect changes of the registered elements.
type Source interface {
	SubscribeAll(h func(models.RectChange)) (cancel func())
}

// Msg is the JSON message written to stream clients.
type Msg struct {
	Type     string             `json:"type"`
	ClientID string             `json:"client_id,omitempty"`
	Change   *models.RectChange `json:"change,omitempty"`
	Dropped  int                `json:"dropped,omitempty"`
}

// Stream pushes the rect changes of a registry to websocket clients.
//
// Each client gets its own bounded queue. When a client reads slower than the
// registry publishes, the changes that do not fit are dropped and the client
// is told how many it missed before the next change is sent.
type Stream struct {
	Source Source

	// The number of changes buffered per client.
	QueueSize int

	// The interval between each summary of the messages sent to a client.
	SummaryInterval time.Duration
}

// Handler returns a websocket server that serves the stream until ctx is
// done.
func (s *Stream) Handler(ctx context.Context) websocket.Server {
	return websocket.Server{
		Handler: func(conn *websocket.Conn) {
			s.Serve(ctx, conn)
		},
	}
}

// Serve streams the rect changes to conn until ctx is done or the client
// disconnects.
func (s *Stream) Serve(ctx context.Context, conn *websocket.Conn) {
	queueSize := s.QueueSize
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	summaryInterval := s.SummaryInterval
	if summaryInterval <= 0 {
		summaryInterval = DefaultSummaryInterval
	}

	c := newClient(uuid.NewString(), summaryInterval)
	c.connect(conn)
	defer c.disconnect()

	queue := make(chan models.RectChange, queueSize)
	cancelSubscription := s.Source.SubscribeAll(func(rc models.RectChange) {
		select {
		case queue <- rc:
		default:
			c.drop()
		}
	})
	defer cancelSubscription()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go c.startSummaryWorker(ctx)

	disconnected := make(chan struct{})
	go func() {
		defer close(disconnected)
		c.receive(conn)
	}()

	if err := c.send(conn, Msg{Type: MsgTypeHello, ClientID: c.id}); err != nil {
		return
	}

	for {
		select {
		case <-ctx.Done():
			return

		case <-disconnected:
			return

		case rc := <-queue:
			if dropped := c.takeDropped(); dropped != 0 {
				if err := c.send(conn, Msg{Type: MsgTypeDropped, Dropped: dropped}); err != nil {
					return
				}
			}

			if err := c.send(conn, Msg{Type: MsgTypeRectChange, Change: &rc}); err != nil {
				return
			}
		}
	}
}

func (c *client) connect(conn *websocket.Conn) {
	instrumentConnect()

	entry := logs.WithTag(logs.ClientIDTag, c.id)
	if req := conn.Request(); req != nil {
		entry = entry.
			WithTag("remote_addr", req.RemoteAddr).
			WithTag("user_agent", req.UserAgent())
	}
	entry.Info("new stream client is connected")
}

func (c *client) disconnect() {
	instrumentDisconnect()
	c.logSummary()

	logs.WithTag(logs.ClientIDTag, c.id).Info("stream client disconnected")
}

// receive discards the client messages and returns when the connection is
// closed.
func (c *client) receive(conn *websocket.Conn) {
	for {
		var msg string
		if err := websocket.Message.Receive(conn, &msg); err != nil {
			logs.WithTag(logs.ClientIDTag, c.id).
				WithTag("error", err.Error()).
				Debug("stream client stopped reading")
			return
		}
	}
}

func (c *client) send(conn *websocket.Conn, msg Msg) error {
	b, err := json.Marshal(msg)
	if err != nil {
		return errors.New("encoding stream message failed").
			WithType(ErrTypeSendFailed).
			WithTag("msg_type", msg.Type).
			Wrap(err)
	}

	if err := websocket.Message.Send(conn, string(b)); err != nil {
		err = errors.New("sending message failed").
			WithType(ErrTypeSendFailed).
			WithTag("msg_type", msg.Type).
			Wrap(err)

		instrumentSendError(msg.Type)
		logs.WithTag(logs.ClientIDTag, c.id).Warn(err)
		return err
	}

	instrumentSent(msg.Type, len(b))
	c.incCounter(msg.Type)
	logs.WithTag(logs.ClientIDTag, c.id).
		WithTag("msg_type", msg.Type).
		Debug("message sent")
	return nil
}
