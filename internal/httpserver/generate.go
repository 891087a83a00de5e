package httpserver

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"
	"unicode/utf8"

	"github.com/labstack/echo/v4"

	"github.com/chadiek/maternal-support/internal/llm"
	"github.com/chadiek/maternal-support/internal/relay"
)

func (s *Server) generate(c echo.Context) error {
	if !s.relay.Ready() {
		log.Printf("generate: model API key is not set")
		return c.JSON(http.StatusInternalServerError, errorBody{Error: "API key not configured"})
	}

	req, err := relay.DecodeRequest(c.Request())
	switch {
	case errors.Is(err, relay.ErrEmptyMessage):
		return c.JSON(http.StatusBadRequest, errorBody{Error: "Message is required"})
	case errors.Is(err, relay.ErrUnknownKind):
		return c.JSON(http.StatusBadRequest, errorBody{Error: "Unknown request type"})
	case err != nil:
		return c.JSON(http.StatusBadRequest, errorBody{Error: "Invalid request body"})
	}

	ctx := c.Request().Context()
	switch req.Kind {
	case relay.KindTitle:
		title, err := s.relay.Title(ctx, req.Message)
		if err != nil {
			return s.modelFailure(c, err)
		}
		return c.JSON(http.StatusOK, map[string]string{"title": title})
	case relay.KindVoice:
		reply, err := s.relay.Reply(ctx, req.Message)
		if err != nil {
			return s.modelFailure(c, err)
		}
		return c.JSON(http.StatusOK, map[string]string{"response": reply})
	default:
		return s.streamChat(c, req.Message)
	}
}

func (s *Server) modelFailure(c echo.Context, err error) error {
	log.Printf("generate: model call failed: %v", err)
	body := errorBody{Error: "Failed to process request"}
	if s.cfg.DevMode {
		body.Details = err.Error()
	}
	return c.JSON(http.StatusInternalServerError, body)
}

// streamChat writes the reply rune by rune. Until the first fragment arrives a
// model failure still gets the JSON error response.
func (s *Server) streamChat(c echo.Context, message string) error {
	ctx := c.Request().Context()
	chunks, errs := s.relay.Stream(ctx, message)

	first, ok := <-chunks
	for ok && first == "" {
		first, ok = <-chunks
	}
	if !ok {
		err := <-errs
		if err == nil {
			err = llm.ErrEmptyResponse
		}
		return s.modelFailure(c, err)
	}

	res := c.Response()
	res.Header().Set(echo.HeaderContentType, "text/plain; charset=utf-8")
	res.Header().Set("Cache-Control", "no-cache")
	res.WriteHeader(http.StatusOK)

	if err := s.writeRunes(ctx, res, first); err != nil {
		return nil
	}
	for chunk := range chunks {
		if err := s.writeRunes(ctx, res, chunk); err != nil {
			return nil
		}
	}
	if err := <-errs; err != nil {
		log.Printf("generate: stream ended early: %v", err)
	}
	return nil
}

func (s *Server) writeRunes(ctx context.Context, res *echo.Response, text string) error {
	var buf [utf8.UTFMax]byte
	for _, r := range text {
		n := utf8.EncodeRune(buf[:], r)
		if _, err := res.Write(buf[:n]); err != nil {
			return err
		}
		res.Flush()
		if s.cfg.StreamCharDelay > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(s.cfg.StreamCharDelay):
			}
		}
	}
	return ctx.Err()
}
