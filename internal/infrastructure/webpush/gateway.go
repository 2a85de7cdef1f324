package webpush

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	webpush "github.com/SherClockHolmes/webpush-go"
)

// MaxPayloadBytes bounds the JSON payload before encryption; push services cap
// the encrypted record at 4KB.
const MaxPayloadBytes = 3 * 1024

var (
	ErrEndpointGone    = errors.New("webpush: endpoint gone")
	ErrPayloadTooLarge = errors.New("webpush: payload too large")
	ErrTransient       = errors.New("webpush: transient failure")
)

// Target is a browser push subscription. KeyA is the p256dh public key, KeyB the auth secret.
type Target struct {
	Endpoint string
	KeyA     string
	KeyB     string
}

// Payload is what the service worker receives.
type Payload struct {
	Title          string `json:"title"`
	Body           string `json:"body"`
	ConversationID string `json:"conversationId"`
	MessageID      string `json:"messageId"`
	Seq            int64  `json:"seq"`
	Kind           string `json:"kind"`
}

type Config struct {
	VAPIDPublicKey  string
	VAPIDPrivateKey string
	// Subject is the VAPID contact, a mailto: or https: URI.
	Subject    string
	TTL        int
	Timeout    time.Duration
	HTTPClient *http.Client
}

type sendFunc func(ctx context.Context, message []byte, s *webpush.Subscription, options *webpush.Options) (*http.Response, error)

// Gateway signs and encrypts notifications and classifies push service replies.
type Gateway struct {
	cfg  Config
	send sendFunc
}

func NewGateway(cfg Config) (*Gateway, error) {
	if cfg.VAPIDPublicKey == "" || cfg.VAPIDPrivateKey == "" {
		return nil, errors.New("webpush: VAPID key pair is required")
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 86400
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	}
	return &Gateway{cfg: cfg, send: webpush.SendNotificationWithContext}, nil
}

// PublicKey is handed to browsers as the applicationServerKey.
func (g *Gateway) PublicKey() string {
	return g.cfg.VAPIDPublicKey
}

// Notify delivers one notification. Errors wrap ErrEndpointGone, ErrPayloadTooLarge or ErrTransient.
func (g *Gateway) Notify(ctx context.Context, t Target, p Payload) error {
	body, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("webpush: encode payload: %w", err)
	}
	if len(body) > MaxPayloadBytes {
		return fmt.Errorf("%w: %d bytes", ErrPayloadTooLarge, len(body))
	}

	ctx, cancel := context.WithTimeout(ctx, g.cfg.Timeout)
	defer cancel()

	resp, err := g.send(ctx, body, &webpush.Subscription{
		Endpoint: t.Endpoint,
		Keys:     webpush.Keys{P256dh: t.KeyA, Auth: t.KeyB},
	}, &webpush.Options{
		HTTPClient:      g.cfg.HTTPClient,
		Subscriber:      g.cfg.Subject,
		VAPIDPublicKey:  g.cfg.VAPIDPublicKey,
		VAPIDPrivateKey: g.cfg.VAPIDPrivateKey,
		TTL:             g.cfg.TTL,
		Urgency:         webpush.UrgencyNormal,
	})
	if err != nil {
		if errors.Is(err, webpush.ErrMaxPadExceeded) {
			return fmt.Errorf("%w: %v", ErrPayloadTooLarge, err)
		}
		return fmt.Errorf("%w: %v", ErrTransient, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	return classifyStatus(resp.StatusCode)
}

func classifyStatus(code int) error {
	switch {
	case code >= 200 && code < 300:
		return nil
	case code == http.StatusNotFound || code == http.StatusGone:
		return fmt.Errorf("%w: status %d", ErrEndpointGone, code)
	case code == http.StatusRequestEntityTooLarge:
		return fmt.Errorf("%w: status %d", ErrPayloadTooLarge, code)
	default:
		return fmt.Errorf("%w: status %d", ErrTransient, code)
	}
}

// GenerateVAPIDKeys returns a fresh key pair (public, private), base64url encoded.
func GenerateVAPIDKeys() (string, string, error) {
	priv, pub, err := webpush.GenerateVAPIDKeys()
	if err != nil {
		return "", "", err
	}
	return pub, priv, nil
}
