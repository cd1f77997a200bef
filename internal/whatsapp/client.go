package whatsapp

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"

	_ "github.com/mattn/go-sqlite3"
	"github.com/mdp/qrterminal/v3"
	"go.mau.fi/whatsmeow"
	waProto "go.mau.fi/whatsmeow/binary/proto"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	waLog "go.mau.fi/whatsmeow/util/log"
	"google.golang.org/protobuf/proto"
)

// DefaultSessionDSN keeps the paired device credentials across restarts.
const DefaultSessionDSN = "file:whatsmeow.db?_foreign_keys=on"

type Config struct {
	SessionDSN string
	// PrintQR additionally renders pairing codes to stdout, which is
	// handy when the service runs in a terminal without the web UI.
	PrintQR bool
}

// Client wraps the whatsmeow connection behind the delivery interface the
// queue worker needs, and reports pairing/connection state through a Broker.
type Client struct {
	container *sqlstore.Container
	broker    *Broker
	logger    *slog.Logger
	walog     waLog.Logger
	printQR   bool

	mu     sync.Mutex
	wm     *whatsmeow.Client
	status string
	qrCode string
	phone  string
}

func NewClient(cfg Config, broker *Broker, logger *slog.Logger) (*Client, error) {
	dsn := cfg.SessionDSN
	if dsn == "" {
		dsn = DefaultSessionDSN
	}
	walog := newWALogger(logger)
	container, err := sqlstore.New("sqlite3", dsn, walog)
	if err != nil {
		return nil, fmt.Errorf("open session store: %w", err)
	}
	device, err := container.GetFirstDevice()
	if err != nil {
		return nil, fmt.Errorf("load device: %w", err)
	}

	c := &Client{
		container: container,
		broker:    broker,
		logger:    logger,
		walog:     walog,
		printQR:   cfg.PrintQR,
		status:    StatusDisconnected,
	}
	c.wm = whatsmeow.NewClient(device, walog)
	c.wm.AddEventHandler(c.handleEvent)
	return c, nil
}

// Connect brings the channel up. An unpaired device gets a QR pairing
// flow; the codes stream out through the broker until scan or timeout.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	wm := c.wm
	c.mu.Unlock()

	if wm.Store.ID == nil {
		qrChan, err := wm.GetQRChannel(ctx)
		if err != nil {
			return fmt.Errorf("qr channel: %w", err)
		}
		c.setStatus(StatusWaitingQR, "")
		if err := wm.Connect(); err != nil {
			return fmt.Errorf("connect: %w", err)
		}
		go c.pumpQR(qrChan)
		return nil
	}

	c.setStatus(StatusConnecting, "")
	if err := wm.Connect(); err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	return nil
}

func (c *Client) pumpQR(qrChan <-chan whatsmeow.QRChannelItem) {
	for evt := range qrChan {
		switch evt.Event {
		case "code":
			c.mu.Lock()
			c.qrCode = evt.Code
			c.mu.Unlock()
			c.broker.Publish(Event{Kind: EventQR, Code: evt.Code})
			if c.printQR {
				qrterminal.GenerateHalfBlock(evt.Code, qrterminal.L, os.Stdout)
			}
		case "success":
			c.mu.Lock()
			c.qrCode = ""
			c.mu.Unlock()
		default:
			c.logger.Warn("qr pairing ended", "event", evt.Event)
			c.setStatus(StatusDisconnected, "")
		}
	}
}

func (c *Client) handleEvent(evt interface{}) {
	switch evt.(type) {
	case *events.Connected:
		phone := ""
		c.mu.Lock()
		if id := c.wm.Store.ID; id != nil {
			phone = "+" + id.User
		}
		c.qrCode = ""
		c.mu.Unlock()
		c.setStatus(StatusConnected, phone)
		c.logger.Info("whatsapp connected", "phone", phone)
	case *events.LoggedOut:
		c.setStatus(StatusDisconnected, "")
		c.logger.Warn("whatsapp device logged out remotely")
	case *events.Disconnected:
		c.setStatus(StatusDisconnected, "")
		c.logger.Warn("whatsapp disconnected")
	}
}

func (c *Client) setStatus(status, phone string) {
	c.mu.Lock()
	c.status = status
	c.phone = phone
	c.mu.Unlock()
	c.broker.Publish(Event{Kind: EventStatus, Status: status, Phone: phone})
}

// Status reports the current connection state, the paired number when
// connected, and the latest pairing code while one is outstanding.
func (c *Client) Status() (status, phone, qrCode string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status, c.phone, c.qrCode
}

// Send delivers one text message to an E.164 number. Errors surface to
// the caller so the queue worker can schedule a retry.
func (c *Client) Send(ctx context.Context, to, text string) error {
	c.mu.Lock()
	wm := c.wm
	connected := c.status == StatusConnected
	c.mu.Unlock()

	if !connected {
		return fmt.Errorf("whatsapp not connected")
	}
	jid := types.NewJID(strings.TrimPrefix(to, "+"), types.DefaultUserServer)
	msg := &waProto.Message{Conversation: proto.String(text)}
	if _, err := wm.SendMessage(ctx, jid, msg); err != nil {
		return fmt.Errorf("send to %s: %w", to, err)
	}
	return nil
}

// Logout unpairs the device, discards its session, and restarts the
// pairing flow so a fresh QR code appears.
func (c *Client) Logout(ctx context.Context) error {
	c.mu.Lock()
	wm := c.wm
	c.mu.Unlock()

	if err := wm.Logout(); err != nil {
		c.logger.Warn("logout failed, dropping session anyway", "error", err)
		wm.Disconnect()
	}

	device := c.container.NewDevice()
	c.mu.Lock()
	c.wm = whatsmeow.NewClient(device, c.walog)
	c.wm.AddEventHandler(c.handleEvent)
	c.qrCode = ""
	c.mu.Unlock()

	c.setStatus(StatusDisconnected, "")
	return c.Connect(ctx)
}

func (c *Client) Disconnect() {
	c.mu.Lock()
	wm := c.wm
	c.mu.Unlock()
	wm.Disconnect()
}
