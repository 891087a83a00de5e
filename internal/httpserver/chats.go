package httpserver

import (
	"errors"
	"log"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/chadiek/maternal-support/internal/history"
	usermw "github.com/chadiek/maternal-support/internal/middleware"
)

type createChatRequest struct {
	Title string `json:"title"`
	// Message optionally opens the chat; it also seeds a generated title.
	Message string `json:"message"`
}

type appendMessageRequest struct {
	Role string `json:"role"`
	Text string `json:"text"`
}

func (s *Server) listChats(c echo.Context) error {
	chats, err := s.history.ListChats(c.Request().Context(), usermw.UserID(c))
	if err != nil {
		return s.historyFailure(c, err)
	}
	if chats == nil {
		chats = []history.Chat{}
	}
	return c.JSON(http.StatusOK, map[string]any{"chats": chats})
}

func (s *Server) createChat(c echo.Context) error {
	var req createChatRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errorBody{Error: "Invalid request body"})
	}
	ctx := c.Request().Context()
	user := usermw.UserID(c)
	title := strings.TrimSpace(req.Title)
	msg := strings.TrimSpace(req.Message)
	if title == "" && msg != "" && s.relay.Ready() {
		t, err := s.relay.Title(ctx, msg)
		if err != nil {
			log.Printf("chats: title generation failed: %v", err)
		}
		title = t
	}

	chat, err := s.history.CreateChat(ctx, user, title)
	if err != nil {
		return s.historyFailure(c, err)
	}
	if msg != "" {
		if _, err := s.history.AppendMessage(ctx, user, chat.ID, history.Message{Role: history.RoleUser, Text: msg}); err != nil {
			return s.historyFailure(c, err)
		}
	}
	return c.JSON(http.StatusCreated, chat)
}

func (s *Server) listMessages(c echo.Context) error {
	msgs, err := s.history.Messages(c.Request().Context(), usermw.UserID(c), c.Param("id"))
	if err != nil {
		return s.historyFailure(c, err)
	}
	if msgs == nil {
		msgs = []history.Message{}
	}
	return c.JSON(http.StatusOK, map[string]any{"messages": msgs})
}

func (s *Server) appendMessage(c echo.Context) error {
	var req appendMessageRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errorBody{Error: "Invalid request body"})
	}
	msg, err := s.history.AppendMessage(c.Request().Context(), usermw.UserID(c), c.Param("id"),
		history.Message{Role: req.Role, Text: req.Text})
	if err != nil {
		return s.historyFailure(c, err)
	}
	return c.JSON(http.StatusCreated, msg)
}

func (s *Server) historyFailure(c echo.Context, err error) error {
	switch {
	case errors.Is(err, history.ErrChatNotFound):
		return c.JSON(http.StatusNotFound, errorBody{Error: "Chat not found"})
	case errors.Is(err, history.ErrInvalidMessage):
		return c.JSON(http.StatusBadRequest, errorBody{Error: "Invalid message"})
	case errors.Is(err, history.ErrMissingUser):
		return c.JSON(http.StatusUnauthorized, errorBody{Error: "User id required"})
	}
	log.Printf("chats: history store: %v", err)
	return c.JSON(http.StatusInternalServerError, errorBody{Error: "Failed to access chat history"})
}
