package websocket

import (
	"context"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aukilabs/canvasindex/geometry"
	"github.com/aukilabs/canvasindex/models"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/websocket"
)

type fakeSource struct {
	mutex    sync.Mutex
	nextID   int
	handlers map[int]func(models.RectChange)
}

func (s *fakeSource) SubscribeAll(h func(models.RectChange)) func() {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.handlers == nil {
		s.handlers = make(map[int]func(models.RectChange))
	}
	id := s.nextID
	s.nextID++
	s.handlers[id] = h

	return func() {
		s.mutex.Lock()
		defer s.mutex.Unlock()
		delete(s.handlers, id)
	}
}

func (s *fakeSource) publish(rc models.RectChange) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	for _, h := range s.handlers {
		h(rc)
	}
}

func (s *fakeSource) subscribers() int {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return len(s.handlers)
}

func dialStream(t *testing.T, s *Stream) (*websocket.Conn, func()) {
	ctx, cancel := context.WithCancel(context.Background())
	server := httptest.NewServer(s.Handler(ctx))

	conn, err := websocket.Dial("ws"+strings.TrimPrefix(server.URL, "http"), "", "http://localhost/")
	require.NoError(t, err)

	return conn, func() {
		conn.Close()
		cancel()
		server.Close()
	}
}

func TestStream(t *testing.T) {
	t.Run("client receives a hello then the rect changes", func(t *testing.T) {
		source := &fakeSource{}
		conn, closeStream := dialStream(t, &Stream{Source: source, QueueSize: 8})
		defer closeStream()

		var hello Msg
		require.NoError(t, websocket.JSON.Receive(conn, &hello))
		require.Equal(t, MsgTypeHello, hello.Type)
		require.NotEmpty(t, hello.ClientID)
		require.Equal(t, 1, source.subscribers())

		source.publish(models.RectChange{
			ID:   "a",
			Rect: geometry.Rect{X: 10, Y: 20, Width: 30, Height: 40},
		})

		var msg Msg
		require.NoError(t, websocket.JSON.Receive(conn, &msg))
		require.Equal(t, MsgTypeRectChange, msg.Type)
		require.NotNil(t, msg.Change)
		require.Equal(t, "a", msg.Change.ID)
		require.Equal(t, geometry.Rect{X: 10, Y: 20, Width: 30, Height: 40}, msg.Change.Rect)
	})

	t.Run("changes are sent in publish order", func(t *testing.T) {
		source := &fakeSource{}
		conn, closeStream := dialStream(t, &Stream{Source: source, QueueSize: 8})
		defer closeStream()

		var hello Msg
		require.NoError(t, websocket.JSON.Receive(conn, &hello))

		for _, id := range []string{"a", "b", "c"} {
			source.publish(models.RectChange{ID: id})
		}

		var ids []string
		for range 3 {
			var msg Msg
			require.NoError(t, websocket.JSON.Receive(conn, &msg))
			require.Equal(t, MsgTypeRectChange, msg.Type)
			ids = append(ids, msg.Change.ID)
		}
		require.Equal(t, []string{"a", "b", "c"}, ids)
	})

	t.Run("disconnecting cancels the subscription", func(t *testing.T) {
		source := &fakeSource{}
		conn, closeStream := dialStream(t, &Stream{Source: source})
		defer closeStream()

		var hello Msg
		require.NoError(t, websocket.JSON.Receive(conn, &hello))
		require.Equal(t, 1, source.subscribers())

		conn.Close()
		require.Eventually(t, func() bool {
			return source.subscribers() == 0
		}, time.Second, time.Millisecond*10)
	})
}
