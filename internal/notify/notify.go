// Package notify formats and dispatches rotation announcements to a
// Discord-style webhook sink. Delivery is fire-and-forget from the
// rotation's point of view: a failed announcement never undoes or
// blocks the rotation itself.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/venomlabs/bmrotate/internal/catalog"
	"github.com/venomlabs/bmrotate/internal/config"
	"golang.org/x/time/rate"
)

// requestTimeout bounds a single webhook dispatch so a hanging sink
// delays, but never stalls, the next server in a batch.
const requestTimeout = 10 * time.Second

// Notifier dispatches rotation announcements to per-server webhooks.
type Notifier struct {
	client   *http.Client
	limiter  *rate.Limiter
	username string
	color    int
}

// New creates a notifier using the configured presentation settings.
// The limiter stays under Discord's sustained webhook allowance of
// 30 requests per minute, shared across all servers.
func New(global config.GlobalSettings) *Notifier {
	return &Notifier{
		client:   &http.Client{Timeout: requestTimeout},
		limiter:  rate.NewLimiter(rate.Every(2*time.Second), 5),
		username: global.Username(),
		color:    global.ColorValue(),
	}
}

type embedField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline"`
}

type embedImage struct {
	URL string `json:"url"`
}

type embed struct {
	Title       string       `json:"title"`
	Description string       `json:"description"`
	Timestamp   string       `json:"timestamp"`
	Image       *embedImage  `json:"image,omitempty"`
	Fields      []embedField `json:"fields"`
	Color       int          `json:"color"`
}

type payload struct {
	Username string  `json:"username,omitempty"`
	Embeds   []embed `json:"embeds"`
}

// Announce sends the rotation announcement for one server: the new
// position's name and coordinates, and its image when one is
// configured and present on disk.
func (n *Notifier) Announce(ctx context.Context, srv *config.Server, pos catalog.Position) error {
	if srv.WebhookURL == "" {
		log.Debug().Str("server", srv.ID).Msg("No webhook URL configured, skipping announcement")
		return nil
	}

	coords := pos.VendingCoordinates
	msg := payload{
		Username: n.username,
		Embeds: []embed{{
			Title:       fmt.Sprintf("%s - Black Market Rotated!", srv.Name),
			Description: fmt.Sprintf("The Black Market has moved to **%s**!", pos.Name),
			Color:       n.color,
			Timestamp:   time.Now().Format(time.RFC3339),
			Fields: []embedField{{
				Name:   "Coordinates",
				Value:  fmt.Sprintf("X: %.1f\nY: %.1f\nZ: %.1f", coords[0], coords[1], coords[2]),
				Inline: true,
			}},
		}},
	}

	var image []byte
	if pos.ImagePath != "" {
		data, err := os.ReadFile(pos.ImagePath)
		if err != nil {
			log.Warn().Err(err).Str("path", pos.ImagePath).Msg("Could not read position image, sending without it")
		} else {
			image = data
			msg.Embeds[0].Image = &embedImage{URL: "attachment://" + filepath.Base(pos.ImagePath)}
		}
	}

	if err := n.limiter.Wait(ctx); err != nil {
		return err
	}

	var req *http.Request
	var err error
	if image != nil {
		req, err = multipartRequest(ctx, srv.WebhookURL, msg, filepath.Base(pos.ImagePath), image)
	} else {
		req, err = jsonRequest(ctx, srv.WebhookURL, msg)
	}
	if err != nil {
		return err
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook dispatch: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("webhook returned status %d: %s", resp.StatusCode, body)
	}

	return nil
}

// jsonRequest builds a plain application/json webhook request.
func jsonRequest(ctx context.Context, url string, msg payload) (*http.Request, error) {
	body, err := json.Marshal(msg)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	return req, nil
}

// multipartRequest builds a multipart request carrying the payload JSON
// plus the image attachment referenced by the embed.
func multipartRequest(ctx context.Context, url string, msg payload, filename string, image []byte) (*http.Request, error) {
	payloadJSON, err := json.Marshal(msg)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	if err := writer.WriteField("payload_json", string(payloadJSON)); err != nil {
		return nil, err
	}

	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		return nil, err
	}
	if _, err := part.Write(image); err != nil {
		return nil, err
	}

	if err := writer.Close(); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	return req, nil
}
