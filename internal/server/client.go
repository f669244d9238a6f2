package server

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/speakset/speakset/internal/types"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingInterval   = (pongWait * 9) / 10
	maxFrameSize   = 4096
	sendBufferSize = 256
)

// Client is one authenticated subscriber connection. The read pump
// routes frames to channel actors; the write pump drains the bounded
// send queue.
type Client struct {
	id          string
	conn        *websocket.Conn
	broadcaster *Broadcaster
	log         *log.Logger
	user        types.User

	send chan *ServerFrame

	channels     map[string]*channel
	channelsLock sync.RWMutex

	stop      chan struct{}
	closeOnce sync.Once
}

func NewClient(user types.User, conn *websocket.Conn, b *Broadcaster, l *log.Logger) *Client {
	return &Client{
		id:          uuid.NewString(),
		conn:        conn,
		broadcaster: b,
		log:         l,
		user:        user,
		send:        make(chan *ServerFrame, sendBufferSize),
		channels:    make(map[string]*channel),
		stop:        make(chan struct{}),
	}
}

func (c *Client) Write() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case frame, ok := <-c.send:
			if !ok {
				return
			}

			raw, err := json.Marshal(frame)
			if err != nil {
				c.log.Println("failed to serialize frame:", err)
				continue
			}

			if !c.writeMessage(websocket.TextMessage, raw) {
				return
			}
		case <-c.stop:
			return
		case <-ticker.C:
			if !c.writeMessage(websocket.PingMessage, nil) {
				return
			}
		}
	}
}

func (c *Client) Read() {
	defer func() {
		c.conn.Close()
		c.cleanup()
	}()

	c.conn.SetReadLimit(maxFrameSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure,
				websocket.CloseNormalClosure) {
				c.log.Printf("ws: read: %v", err)
			}
			break
		}

		var frame ClientFrame
		if err := json.Unmarshal(raw, &frame); err != nil {
			c.log.Println("error parsing frame:", err)
			c.queueFrame(ErrInvalidFrame(-1))
			continue
		}

		frame.client = c
		frame.Timestamp = Now()

		switch {
		case frame.Subscribe != nil:
			c.subscribe(&frame)
		case frame.Unsubscribe != nil:
			c.unsubscribe(&frame)
		case frame.Typing != nil:
			c.typing(&frame)
		default:
			c.queueFrame(ErrInvalidFrame(frame.Id))
		}
	}
}

func (c *Client) subscribe(frame *ClientFrame) {
	select {
	case c.broadcaster.subscribeChan <- frame:
	default:
		c.log.Println("subscribeChan full")
		c.queueFrame(ErrServiceUnavailable(frame.Id))
	}
}

func (c *Client) unsubscribe(frame *ClientFrame) {
	ref, err := types.ParseChannelRef(frame.Unsubscribe.SpaceId, frame.Unsubscribe.Channel)
	if err != nil {
		c.queueFrame(ErrInvalidFrame(frame.Id))
		return
	}

	ch := c.getChannel(ref.Key())
	if ch == nil {
		c.queueFrame(ErrChannelNotFound(frame.Id))
		return
	}

	select {
	case ch.unsubscribeChan <- &unsubRequest{frameId: frame.Id, client: c, ack: true}:
	default:
		c.log.Printf("unsubscribeChan full for channel %q", ch.key)
		c.queueFrame(ErrServiceUnavailable(frame.Id))
	}
}

// typing forwards an ephemeral typing notification to a channel the
// client is subscribed to; the channel actor owns the inactivity timer.
func (c *Client) typing(frame *ClientFrame) {
	ref, err := types.ParseChannelRef(frame.Typing.SpaceId, frame.Typing.Channel)
	if err != nil {
		c.queueFrame(ErrInvalidFrame(frame.Id))
		return
	}

	ch := c.getChannel(ref.Key())
	if ch == nil {
		c.queueFrame(ErrChannelNotFound(frame.Id))
		return
	}

	eventType := types.EventTypingStarted
	if !frame.Typing.Active {
		eventType = types.EventTypingStopped
	}

	evt := &channelEvent{
		event: &types.ChannelEvent{
			Type:      eventType,
			SpaceId:   ref.SpaceId,
			Channel:   ref.String(),
			Timestamp: Now(),
			Typing:    &types.TypingPayload{UserId: c.user.Id, Username: c.user.Username},
		},
		origin: c,
	}

	select {
	case ch.eventChan <- evt:
	default:
		c.log.Printf("eventChan full for channel %q", ch.key)
	}
}

// queueFrame enqueues a frame for the write pump, reporting false when
// the bounded send queue is full.
func (c *Client) queueFrame(frame *ServerFrame) bool {
	select {
	case c.send <- frame:
		return true
	default:
		return false
	}
}

func (c *Client) writeMessage(msgType int, data []byte) bool {
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := c.conn.WriteMessage(msgType, data); err != nil {
		if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure,
			websocket.CloseNormalClosure) {
			c.log.Printf("write frame: %s", err)
		}
		return false
	}
	return true
}

func (c *Client) close() {
	c.closeOnce.Do(func() {
		close(c.stop)
	})
}

// cleanup runs once when the read pump exits: the connection leaves all
// channels and deregisters so publishers are never blocked on it. After
// broadcaster shutdown nobody drains deRegisterChan or the actors, so
// every send yields to the stop signal.
func (c *Client) cleanup() {
	select {
	case c.broadcaster.deRegisterChan <- c:
	case <-c.broadcaster.stop:
	}
	c.leaveAllChannels()
	c.close()
}

func (c *Client) leaveAllChannels() {
	c.channelsLock.RLock()
	channels := make([]*channel, 0, len(c.channels))
	for _, ch := range c.channels {
		channels = append(channels, ch)
	}
	c.channelsLock.RUnlock()

	for _, ch := range channels {
		select {
		case ch.unsubscribeChan <- &unsubRequest{client: c}:
		case <-c.broadcaster.stop:
			return
		}
	}
}

func (c *Client) addChannel(ch *channel) {
	c.channelsLock.Lock()
	defer c.channelsLock.Unlock()
	c.channels[ch.key] = ch
}

func (c *Client) delChannel(key string) {
	c.channelsLock.Lock()
	defer c.channelsLock.Unlock()
	delete(c.channels, key)
}

func (c *Client) getChannel(key string) *channel {
	c.channelsLock.RLock()
	defer c.channelsLock.RUnlock()
	return c.channels[key]
}
