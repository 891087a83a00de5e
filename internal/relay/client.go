package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"mime"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"
)

// Apology is returned in place of a reply whenever the relay cannot answer.
const Apology = "I'm sorry, I'm having trouble processing that right now. Please try again."

// Client calls the relay endpoint over HTTP. Every call makes exactly one
// request and never returns an error; failures are logged and become Apology.
type Client struct {
	Endpoint string
	HTTP     *http.Client
	// UserID is sent as X-User-ID when set.
	UserID string
}

// NewClient returns a Client for the relay endpoint URL (…/api/generate).
func NewClient(endpoint string) *Client {
	return &Client{Endpoint: endpoint, HTTP: &http.Client{Timeout: 60 * time.Second}}
}

type responseBody struct {
	Response string `json:"response"`
	Title    string `json:"title"`
	Error    string `json:"error"`
}

// Send asks for a voice reply.
func (c *Client) Send(ctx context.Context, text string) string {
	var out responseBody
	if err := c.doJSON(ctx, KindVoice, text, &out); err != nil {
		log.Printf("relay: send failed: %v", err)
		return Apology
	}
	if strings.TrimSpace(out.Response) == "" {
		log.Printf("relay: send returned no response field")
		return Apology
	}
	return out.Response
}

// Title asks for a short conversation title. It returns "" on failure.
func (c *Client) Title(ctx context.Context, text string) string {
	var out responseBody
	if err := c.doJSON(ctx, KindTitle, text, &out); err != nil {
		log.Printf("relay: title failed: %v", err)
		return ""
	}
	return strings.TrimSpace(out.Title)
}

// Stream asks for a chat reply, invoking onChunk as text arrives, and returns
// the full reply. The endpoint may answer with a JSON payload or a raw stream.
func (c *Client) Stream(ctx context.Context, text string, onChunk func(string)) string {
	if onChunk == nil {
		onChunk = func(string) {}
	}
	resp, err := c.post(ctx, KindChat, text)
	if err != nil {
		log.Printf("relay: stream failed: %v", err)
		onChunk(Apology)
		return Apology
	}
	defer resp.Body.Close()

	mediaType, _, _ := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if mediaType == "application/json" {
		var out responseBody
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil || strings.TrimSpace(out.Response) == "" {
			log.Printf("relay: stream json payload malformed: %v", err)
			onChunk(Apology)
			return Apology
		}
		onChunk(out.Response)
		return out.Response
	}

	var (
		full    strings.Builder
		pending []byte
		buf     = make([]byte, 512)
	)
	for {
		n, rerr := resp.Body.Read(buf)
		if n > 0 {
			pending = append(pending, buf[:n]...)
			var ready []byte
			ready, pending = splitComplete(pending)
			if len(ready) > 0 {
				full.Write(ready)
				onChunk(string(ready))
			}
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			if full.Len()+len(pending) == 0 {
				log.Printf("relay: stream read failed: %v", rerr)
				onChunk(Apology)
				return Apology
			}
			log.Printf("relay: stream truncated after %d bytes: %v", full.Len()+len(pending), rerr)
			break
		}
	}
	if len(pending) > 0 {
		full.Write(pending)
		onChunk(string(pending))
	}
	if strings.TrimSpace(full.String()) == "" {
		onChunk(Apology)
		return Apology
	}
	return full.String()
}

func (c *Client) doJSON(ctx context.Context, kind Kind, text string, out any) error {
	resp, err := c.post(ctx, kind, text)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// post sends the request and returns the response only for 2xx statuses.
func (c *Client) post(ctx context.Context, kind Kind, text string) (*http.Response, error) {
	payload, err := json.Marshal(wireRequest{Message: text, Type: string(kind)})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.Endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.UserID != "" {
		req.Header.Set("X-User-ID", c.UserID)
	}
	hc := c.HTTP
	if hc == nil {
		hc = http.DefaultClient
	}
	resp, err := hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer resp.Body.Close()
		var eb responseBody
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		if json.Unmarshal(b, &eb) == nil && eb.Error != "" {
			return nil, fmt.Errorf("status %d: %s", resp.StatusCode, eb.Error)
		}
		return nil, fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}
	return resp, nil
}

// splitComplete returns the prefix of p made of whole UTF-8 sequences and the
// trailing bytes of a rune that has not fully arrived yet.
func splitComplete(p []byte) (ready, rest []byte) {
	for i := len(p) - 1; i >= 0 && i >= len(p)-utf8.UTFMax; i-- {
		if utf8.RuneStart(p[i]) {
			if !utf8.FullRune(p[i:]) {
				return p[:i], append([]byte(nil), p[i:]...)
			}
			break
		}
	}
	return p, nil
}
