package connector

import (
	"crypto/subtle"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	maxBodyBytes = 20 << 20

	// timestampLayout matches the export service's expectation of an ISO
	// local time with microseconds.
	timestampLayout = "2006-01-02T15:04:05.000000"
)

// Receiver accepts XML deliveries over HTTP and passes them to a Display.
type Receiver struct {
	token   string
	display *Display
	now     func() time.Time
	log     zerolog.Logger

	mu        sync.RWMutex
	tunnelURL string
}

// NewReceiver creates a receiver that only accepts "Bearer <token>".
func NewReceiver(token string, display *Display, log zerolog.Logger) *Receiver {
	return &Receiver{
		token:   token,
		display: display,
		now:     time.Now,
		log:     log,
	}
}

// SetTunnelURL publishes the public address on the status endpoint.
func (r *Receiver) SetTunnelURL(url string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tunnelURL = url
}

// TunnelURL returns the published public address, or "".
func (r *Receiver) TunnelURL() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.tunnelURL
}

// App builds the fiber application serving the receiver routes.
func (r *Receiver) App() *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:               "tallysync-connector",
		BodyLimit:             maxBodyBytes,
		DisableStartupMessage: true,
	})

	app.Use(recover.New())
	app.Use(r.accessLog)

	app.Post("/api/receive-xml", r.ReceiveXML)
	app.Get("/api/status", r.Status)

	return app
}

// ReceiveXML handles POST /api/receive-xml
func (r *Receiver) ReceiveXML(c *fiber.Ctx) error {
	if !r.authorized(c.Get(fiber.HeaderAuthorization)) {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"success": false,
			"message": "Unauthorized",
		})
	}

	var req struct {
		XML *string `json:"xml"`
	}
	if err := json.Unmarshal(c.Body(), &req); err != nil || req.XML == nil || *req.XML == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"message": "No XML data provided",
		})
	}

	now := r.now()
	delivery := Delivery{
		ID:         uuid.New().String(),
		XML:        *req.XML,
		ReceivedAt: now,
	}
	r.display.Offer(delivery)

	r.log.Info().
		Str("delivery_id", delivery.ID).
		Int("bytes", len(delivery.XML)).
		Msg("XML received")

	return c.JSON(fiber.Map{
		"success":   true,
		"message":   "XML received successfully",
		"timestamp": now.Format(timestampLayout),
	})
}

// Status handles GET /api/status
func (r *Receiver) Status(c *fiber.Ctx) error {
	var tunnelURL interface{}
	if u := r.TunnelURL(); u != "" {
		tunnelURL = u
	}

	return c.JSON(fiber.Map{
		"status":     "online",
		"timestamp":  r.now().Format(timestampLayout),
		"tunnel_url": tunnelURL,
	})
}

func (r *Receiver) authorized(header string) bool {
	if r.token == "" || !strings.HasPrefix(header, "Bearer ") {
		return false
	}
	want := []byte("Bearer " + r.token)
	return subtle.ConstantTimeCompare([]byte(header), want) == 1
}

func (r *Receiver) accessLog(c *fiber.Ctx) error {
	start := time.Now()
	err := c.Next()

	r.log.Info().
		Str("method", c.Method()).
		Str("path", c.Path()).
		Int("status", c.Response().StatusCode()).
		Dur("duration", time.Since(start)).
		Str("remote_addr", c.IP()).
		Msg("HTTP request")

	return err
}
