package httpserver

import (
	"log"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/chadiek/maternal-support/internal/agent"
	"github.com/chadiek/maternal-support/internal/history"
	usermw "github.com/chadiek/maternal-support/internal/middleware"
	"github.com/chadiek/maternal-support/internal/relay"
	"github.com/chadiek/maternal-support/internal/wsvoice"
)

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		// the browser client may be served from another origin
		return true
	},
}

// voiceSocket hosts one voice session per websocket. Signed-in users get their
// turns recorded into the chat named by the chat query parameter, or a new one.
func (s *Server) voiceSocket(c echo.Context) error {
	ws, err := wsUpgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		log.Printf("ws upgrade error: %v", err)
		return nil
	}

	opts := agent.Options{
		SilenceInterval:   s.cfg.SilenceInterval,
		RestartGrace:      s.cfg.RestartGrace,
		MaxCaptureRetries: s.cfg.CaptureMaxRetries,
		Farewell:          true,
	}
	user := usermw.UserID(c)
	if user != "" {
		opts.Recorder = history.NewRecorder(s.history, user, c.QueryParam("chat"))
	}

	s.voice.Add(1)
	defer s.voice.Done()
	host := wsvoice.NewHost(ws, relay.NewLocal(s.relay), opts)
	if err := host.Run(s.ctx); err != nil {
		log.Printf("voice session for %q ended: %v", user, err)
	}
	return nil
}
