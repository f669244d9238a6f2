package server

import (
	"time"

	"github.com/speakset/speakset/internal/types"
)

// exitReq asks the actor to stop. A non-forced request is refused when
// the channel gained a subscriber after its idle timer fired; done
// reports whether the actor actually exited.
type exitReq struct {
	force bool
	done  chan bool
}

type subRequest struct {
	frameId int
	client  *Client
}

type unsubRequest struct {
	frameId int
	client  *Client
	// ack is false when the unsubscribe is part of connection teardown.
	ack bool
}

// channelEvent pairs an event with its originating connection so typing
// notifications are not echoed back to the sender.
type channelEvent struct {
	event  *types.ChannelEvent
	origin *Client
}

// channel is the fan-out actor for one channel key. It owns the
// subscriber set and the ephemeral typing state; every event for the
// channel flows through its single goroutine, which is what gives each
// subscriber the published order.
type channel struct {
	key string
	ref types.ChannelRef
	b   *Broadcaster

	subscribeChan   chan *subRequest
	unsubscribeChan chan *unsubRequest
	eventChan       chan *channelEvent
	typingExpired   chan int

	clients map[*Client]struct{}
	typing  map[int]*time.Timer

	// killTimer unloads the channel after it has been idle with no
	// subscribers.
	killTimer *time.Timer
	exit      chan exitReq
}

func newChannel(ref types.ChannelRef, b *Broadcaster) *channel {
	return &channel{
		key:             ref.Key(),
		ref:             ref,
		b:               b,
		subscribeChan:   make(chan *subRequest, 64),
		unsubscribeChan: make(chan *unsubRequest, 64),
		eventChan:       make(chan *channelEvent, 256),
		typingExpired:   make(chan int, 64),
		clients:         make(map[*Client]struct{}),
		typing:          make(map[int]*time.Timer),
		exit:            make(chan exitReq),
	}
}

func (ch *channel) start() {
	ch.b.log.Printf("starting channel %q", ch.key)
	ch.killTimer = time.NewTimer(ch.b.idleChannelTimeout)

	for {
		select {
		case sub := <-ch.subscribeChan:
			ch.handleSubscribe(sub)
		case unsub := <-ch.unsubscribeChan:
			ch.handleUnsubscribe(unsub)
		case evt := <-ch.eventChan:
			ch.handleEvent(evt)
		case userId := <-ch.typingExpired:
			ch.handleTypingExpired(userId)
		case <-ch.killTimer.C:
			ch.handleIdleTimeout()
		case e := <-ch.exit:
			if ch.handleExit(e) {
				return
			}
		}
	}
}

func (ch *channel) handleSubscribe(sub *subRequest) {
	ch.killTimer.Stop()

	ch.clients[sub.client] = struct{}{}
	sub.client.addChannel(ch)
	sub.client.queueFrame(NoErrOK(sub.frameId))
}

func (ch *channel) handleUnsubscribe(unsub *unsubRequest) {
	c := unsub.client
	if _, ok := ch.clients[c]; !ok {
		if unsub.ack {
			c.queueFrame(ErrChannelNotFound(unsub.frameId))
		}
		return
	}

	delete(ch.clients, c)
	c.delChannel(ch.key)
	if unsub.ack {
		c.queueFrame(NoErrOK(unsub.frameId))
	}

	// A departing user stops typing implicitly.
	if timer, ok := ch.typing[c.user.Id]; ok {
		timer.Stop()
		delete(ch.typing, c.user.Id)
		ch.broadcastTyping(c.user, types.EventTypingStopped, nil)
	}

	if len(ch.clients) == 0 {
		ch.killTimer.Reset(ch.b.idleChannelTimeout)
	}
}

func (ch *channel) handleEvent(evt *channelEvent) {
	switch evt.event.Type {
	case types.EventTypingStarted:
		ch.handleTypingStarted(evt)
		return
	case types.EventTypingStopped:
		ch.handleTypingStopped(evt)
		return
	case types.EventMessageCreated:
		// Sending a message ends the author's typing state.
		if evt.event.Message != nil {
			ch.stopTyping(evt.event.Message.AuthorId, nil)
		}
	}

	ch.broadcast(EventFrame(evt.event), evt.origin)
}

// handleTypingStarted broadcasts typing.started once per burst and arms
// the inactivity timer; repeated frames only push the deadline.
func (ch *channel) handleTypingStarted(evt *channelEvent) {
	userId := evt.event.Typing.UserId
	if timer, ok := ch.typing[userId]; ok {
		timer.Reset(ch.b.typingTimeout)
		return
	}

	ch.typing[userId] = time.AfterFunc(ch.b.typingTimeout, func() {
		select {
		case ch.typingExpired <- userId:
		default:
		}
	})
	ch.broadcast(EventFrame(evt.event), evt.origin)
}

func (ch *channel) handleTypingStopped(evt *channelEvent) {
	ch.stopTyping(evt.event.Typing.UserId, evt.origin)
}

func (ch *channel) handleTypingExpired(userId int) {
	ch.stopTyping(userId, nil)
}

func (ch *channel) stopTyping(userId int, origin *Client) {
	timer, ok := ch.typing[userId]
	if !ok {
		return
	}
	timer.Stop()
	delete(ch.typing, userId)

	var username string
	for c := range ch.clients {
		if c.user.Id == userId {
			username = c.user.Username
			break
		}
	}
	ch.broadcastTyping(types.User{Id: userId, Username: username}, types.EventTypingStopped, origin)
}

func (ch *channel) broadcastTyping(user types.User, eventType types.EventType, origin *Client) {
	ch.broadcast(EventFrame(&types.ChannelEvent{
		Type:      eventType,
		SpaceId:   ch.ref.SpaceId,
		Channel:   ch.ref.String(),
		Timestamp: Now(),
		Typing:    &types.TypingPayload{UserId: user.Id, Username: user.Username},
	}), origin)
}

func (ch *channel) handleIdleTimeout() {
	ch.b.log.Printf("channel %q idle, unloading", ch.key)
	select {
	case ch.b.unloadChan <- ch.key:
	default:
		// Broadcaster busy; try again next idle period.
		ch.killTimer.Reset(ch.b.idleChannelTimeout)
	}
}

func (ch *channel) handleExit(e exitReq) bool {
	// A subscribe that raced the idle timer keeps the channel alive;
	// pending subscribe requests count too.
	if !e.force && (len(ch.clients) > 0 || len(ch.subscribeChan) > 0) {
		if e.done != nil {
			e.done <- false
		}
		return false
	}

	for _, timer := range ch.typing {
		timer.Stop()
	}
	for c := range ch.clients {
		c.delChannel(ch.key)
	}

	if e.done != nil {
		e.done <- true
	}
	return true
}

// broadcast queues a frame on every subscriber. A subscriber whose send
// queue is full is disconnected rather than allowed to stall the channel.
func (ch *channel) broadcast(frame *ServerFrame, skip *Client) {
	for c := range ch.clients {
		if c == skip {
			continue
		}
		if !c.queueFrame(frame) {
			ch.b.log.Printf("dropping slow subscriber %q on channel %q", c.user.Username, ch.key)
			ch.b.stats.Incr(StatSubscribersDropped)
			c.close()
		}
	}
}
