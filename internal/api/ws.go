package api

import (
	"net/http"

	"github.com/speakset/speakset/internal/server"
	"github.com/speakset/speakset/internal/types"
)

// serveWs upgrades an authenticated request to the subscription socket
// and hands the connection to the broadcaster's read/write pumps.
func (s *SpeaksetApp) serveWs(w http.ResponseWriter, r *http.Request) {
	userId, ok := UserId(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	user, err := s.db.GetUserById(userId)
	if err != nil {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Println("ws upgrade:", err)
		return
	}

	client := server.NewClient(types.User{
		Id:       user.Id,
		Username: user.Username,
	}, conn, s.broadcaster, s.log)

	s.broadcaster.RegisterChan <- client

	go client.Write()
	go client.Read()
}
