package server

import (
	"net/http"
	"time"

	"github.com/speakset/speakset/internal/types"
)

type BaseFrame struct {
	Id        int       `json:"id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// ClientFrame is a single frame read from a subscriber socket. Exactly
// one of the operation fields is set.
type ClientFrame struct {
	BaseFrame
	Subscribe   *Subscribe   `json:"subscribe,omitempty"`
	Unsubscribe *Unsubscribe `json:"unsubscribe,omitempty"`
	Typing      *Typing      `json:"typing,omitempty"`

	client *Client
}

type Subscribe struct {
	SpaceId int    `json:"space_id"`
	Channel string `json:"channel"`
}

type Unsubscribe struct {
	SpaceId int    `json:"space_id"`
	Channel string `json:"channel"`
}

type Typing struct {
	SpaceId int    `json:"space_id"`
	Channel string `json:"channel"`
	Active  bool   `json:"active"`
}

// ServerFrame is a frame written to a subscriber socket: either an ack
// for a client frame or a channel event.
type ServerFrame struct {
	BaseFrame
	Response *Response           `json:"response,omitempty"`
	Event    *types.ChannelEvent `json:"event,omitempty"`
}

type Response struct {
	ResponseCode int    `json:"response_code"`
	Error        string `json:"error,omitempty"`
}

func NoErrOK(id int) *ServerFrame {
	return &ServerFrame{
		BaseFrame: BaseFrame{Id: id, Timestamp: Now()},
		Response:  &Response{ResponseCode: http.StatusOK},
	}
}

func ErrChannelNotFound(id int) *ServerFrame {
	return &ServerFrame{
		BaseFrame: BaseFrame{Id: id, Timestamp: Now()},
		Response:  &Response{ResponseCode: http.StatusNotFound, Error: "channel not found"},
	}
}

func ErrForbidden(id int) *ServerFrame {
	return &ServerFrame{
		BaseFrame: BaseFrame{Id: id, Timestamp: Now()},
		Response:  &Response{ResponseCode: http.StatusForbidden, Error: "forbidden"},
	}
}

func ErrServiceUnavailable(id int) *ServerFrame {
	return &ServerFrame{
		BaseFrame: BaseFrame{Id: id, Timestamp: Now()},
		Response:  &Response{ResponseCode: http.StatusServiceUnavailable, Error: "service unavailable"},
	}
}

func ErrInvalidFrame(id int) *ServerFrame {
	frame := &ServerFrame{
		BaseFrame: BaseFrame{Timestamp: Now()},
		Response:  &Response{ResponseCode: http.StatusBadRequest, Error: "invalid frame format"},
	}
	if id > 0 {
		frame.Id = id
	}
	return frame
}

func EventFrame(event *types.ChannelEvent) *ServerFrame {
	return &ServerFrame{
		BaseFrame: BaseFrame{Timestamp: Now()},
		Event:     event,
	}
}

func Now() time.Time {
	return time.Now().UTC().Round(time.Millisecond)
}
