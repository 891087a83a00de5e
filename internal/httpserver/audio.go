package httpserver

import (
	"log"
	"mime"
	"net/http"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	usermw "github.com/chadiek/maternal-support/internal/middleware"
)

const maxAudioBytes = 25 << 20

func (s *Server) processAudio(c echo.Context) error {
	c.Request().Body = http.MaxBytesReader(c.Response(), c.Request().Body, maxAudioBytes)
	fh, err := c.FormFile("audio")
	if err != nil {
		return c.JSON(http.StatusBadRequest, errorBody{Error: "No audio file provided"})
	}
	f, err := fh.Open()
	if err != nil {
		log.Printf("process-audio: open upload: %v", err)
		return c.JSON(http.StatusInternalServerError, errorBody{Error: "Failed to process audio"})
	}
	defer f.Close()

	contentType := fh.Header.Get(echo.HeaderContentType)
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	user := usermw.UserID(c)
	if user == "" {
		user = "anonymous"
	}
	key := path.Join("recordings", sanitizeSegment(user), uuid.NewString()+audioExt(fh.Filename, contentType))

	if err := s.storage.Upload(c.Request().Context(), key, contentType, f); err != nil {
		log.Printf("process-audio: upload %s: %v", key, err)
		return c.JSON(http.StatusInternalServerError, errorBody{Error: "Failed to process audio"})
	}
	log.Printf("process-audio: stored %s (%d bytes)", key, fh.Size)
	return c.JSON(http.StatusOK, map[string]any{
		"success": true,
		"message": "Audio processed successfully",
		"key":     key,
	})
}

// audioExt picks the object extension from the file name, then the content type.
func audioExt(filename, contentType string) string {
	if ext := strings.ToLower(filepath.Ext(filename)); ext != "" && len(ext) <= 6 {
		return ext
	}
	mediaType, _, _ := mime.ParseMediaType(contentType)
	switch mediaType {
	case "audio/webm":
		return ".webm"
	case "audio/ogg":
		return ".ogg"
	case "audio/wav", "audio/x-wav", "audio/wave":
		return ".wav"
	case "audio/mpeg":
		return ".mp3"
	case "audio/mp4":
		return ".m4a"
	}
	return ".bin"
}

func sanitizeSegment(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		}
		return '_'
	}, s)
}
