// Package server is the live update broadcaster: it fans committed
// mutations and typing notifications out to the websocket subscribers of
// each channel, in published order per channel.
package server

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/speakset/speakset/internal/database"
	"github.com/speakset/speakset/internal/stats"
	"github.com/speakset/speakset/internal/types"
)

const (
	DefaultTypingTimeout      = 900 * time.Millisecond
	DefaultIdleChannelTimeout = 30 * time.Second

	StatActiveConnections  = "ActiveConnections"
	StatActiveChannels     = "ActiveChannels"
	StatEventsPublished    = "EventsPublished"
	StatEventsDropped      = "EventsDropped"
	StatSubscribersDropped = "SubscribersDropped"
)

type Broadcaster struct {
	log   *log.Logger
	db    database.SpeaksetRepository
	stats stats.Provider

	typingTimeout      time.Duration
	idleChannelTimeout time.Duration

	RegisterChan   chan *Client
	deRegisterChan chan *Client
	subscribeChan  chan *ClientFrame
	publishChan    chan *types.ChannelEvent
	unloadChan     chan string

	clients     map[*Client]struct{}
	clientsLock sync.Mutex
	channels    map[string]*channel

	stop chan struct{}
	done chan struct{}
}

func NewBroadcaster(logger *log.Logger, db database.SpeaksetRepository, sp stats.Provider, typingTimeout, idleChannelTimeout time.Duration) *Broadcaster {
	if typingTimeout <= 0 {
		typingTimeout = DefaultTypingTimeout
	}
	if idleChannelTimeout <= 0 {
		idleChannelTimeout = DefaultIdleChannelTimeout
	}

	b := &Broadcaster{
		log:                logger,
		db:                 db,
		stats:              sp,
		typingTimeout:      typingTimeout,
		idleChannelTimeout: idleChannelTimeout,
		RegisterChan:       make(chan *Client),
		deRegisterChan:     make(chan *Client),
		subscribeChan:      make(chan *ClientFrame, 256),
		publishChan:        make(chan *types.ChannelEvent, 512),
		unloadChan:         make(chan string, 64),
		clients:            make(map[*Client]struct{}),
		channels:           make(map[string]*channel),
		stop:               make(chan struct{}),
		done:               make(chan struct{}),
	}

	sp.RegisterMetric(StatActiveConnections)
	sp.RegisterMetric(StatActiveChannels)
	sp.RegisterMetric(StatEventsPublished)
	sp.RegisterMetric(StatEventsDropped)
	sp.RegisterMetric(StatSubscribersDropped)

	return b
}

// Publish enqueues a committed mutation or typing event for fan-out. It
// never blocks the caller: if the broadcaster cannot keep up the event
// is dropped and counted, and disconnected subscribers reconcile through
// the message log.
func (b *Broadcaster) Publish(event *types.ChannelEvent) {
	select {
	case b.publishChan <- event:
	default:
		b.log.Printf("publish queue full, dropping %s for %d/%s", event.Type, event.SpaceId, event.Channel)
		b.stats.Incr(StatEventsDropped)
	}
}

func (b *Broadcaster) Run() {
	for {
		select {
		case frame := <-b.subscribeChan:
			b.handleSubscribe(frame)
		case event := <-b.publishChan:
			b.routeEvent(event)
		case client := <-b.RegisterChan:
			b.addClient(client)
			b.stats.Incr(StatActiveConnections)
		case client := <-b.deRegisterChan:
			b.removeClient(client)
			b.stats.Decr(StatActiveConnections)
		case key := <-b.unloadChan:
			b.unloadChannel(key)
		case <-b.stop:
			b.log.Println("shutting down channels")
			for _, ch := range b.channels {
				done := make(chan bool)
				ch.exit <- exitReq{force: true, done: done}
				<-done
			}
			close(b.done)
			return
		}
	}
}

// handleSubscribe authorizes a subscription and hands the client to the
// channel actor, creating it on first use. Private and text channels
// alike require a membership in the space.
func (b *Broadcaster) handleSubscribe(frame *ClientFrame) {
	c := frame.client

	ref, err := types.ParseChannelRef(frame.Subscribe.SpaceId, frame.Subscribe.Channel)
	if err != nil {
		c.queueFrame(ErrInvalidFrame(frame.Id))
		return
	}

	if _, err := b.db.GetChannel(ref.SpaceId, ref.Kind, ref.Name); err != nil {
		c.queueFrame(ErrChannelNotFound(frame.Id))
		return
	}
	if _, err := b.db.GetMembership(ref.SpaceId, c.user.Id); err != nil {
		c.queueFrame(ErrForbidden(frame.Id))
		return
	}

	ch, ok := b.channels[ref.Key()]
	if !ok {
		ch = newChannel(ref, b)
		b.channels[ch.key] = ch
		b.stats.Incr(StatActiveChannels)
		go ch.start()
	}

	select {
	case ch.subscribeChan <- &subRequest{frameId: frame.Id, client: c}:
	default:
		b.log.Printf("subscribe queue full on channel %q", ch.key)
		c.queueFrame(ErrServiceUnavailable(frame.Id))
	}
}

// routeEvent forwards a published event to its channel actor. A channel
// with no actor has no subscribers, so the event needs no delivery.
func (b *Broadcaster) routeEvent(event *types.ChannelEvent) {
	ref, err := event.Ref()
	if err != nil {
		b.log.Printf("dropping event with bad channel: %v", err)
		return
	}

	ch, ok := b.channels[ref.Key()]
	if !ok {
		return
	}

	select {
	case ch.eventChan <- &channelEvent{event: event}:
		b.stats.Incr(StatEventsPublished)
	default:
		b.log.Printf("event queue full on channel %q, dropping %s", ch.key, event.Type)
		b.stats.Incr(StatEventsDropped)
	}
}

func (b *Broadcaster) addClient(c *Client) {
	b.clientsLock.Lock()
	defer b.clientsLock.Unlock()
	b.clients[c] = struct{}{}
}

func (b *Broadcaster) removeClient(c *Client) {
	b.clientsLock.Lock()
	defer b.clientsLock.Unlock()
	delete(b.clients, c)
}

// unloadChannel retires an idle actor. The unload message may be stale
// by the time it is processed, so the actor confirms it is still empty
// before the key is removed; a refused unload keeps the channel routable.
func (b *Broadcaster) unloadChannel(key string) {
	ch, ok := b.channels[key]
	if !ok {
		return
	}

	done := make(chan bool)
	ch.exit <- exitReq{done: done}
	if !<-done {
		return
	}

	delete(b.channels, key)
	b.stats.Decr(StatActiveChannels)
}

// Shutdown stops all client connections and drains the channel actors.
func (b *Broadcaster) Shutdown(ctx context.Context) error {
	b.clientsLock.Lock()
	for c := range b.clients {
		c.close()
	}
	b.clientsLock.Unlock()

	close(b.stop)

	select {
	case <-b.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
