package whatsapp

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/offercast/offercast/internal/channels"
	"github.com/offercast/offercast/internal/config"
	"github.com/offercast/offercast/internal/logger"
	"github.com/offercast/offercast/internal/models"
)

const (
	// restartDelay spaces the fresh socket after a pairing restart.
	restartDelay = 2 * time.Second

	// readyPollInterval is how often a pending send re-checks readiness.
	readyPollInterval = 250 * time.Millisecond

	// ackTimeout bounds the wait for a per-destination send ack.
	ackTimeout = 15 * time.Second

	// eventBuffer sizes the state-change channel for listeners.
	eventBuffer = 16
)

// CredentialStore is the settings-store subset the manager uses.
type CredentialStore interface {
	GetCredential(ctx context.Context, tenantID string, channel models.Channel) (*models.ChannelCredential, error)
	UpsertCredential(ctx context.Context, cred *models.ChannelCredential) error
	DeleteCredential(ctx context.Context, tenantID string, channel models.Channel) error
}

// credParams is the shape of the credential params blob for this channel.
type credParams struct {
	Auth         string   `json:"auth"`         // opaque session auth material
	Destinations []string `json:"destinations"` // recipients and groups, in configured order
}

// Manager owns one tenant's gateway connection and its state machine.
// Exactly one live socket exists at a time; a new connect attempt always
// closes the previous socket first.
type Manager struct {
	tenantID string
	cfg      config.WhatsAppConfig
	store    CredentialStore
	dial     Dialer
	logger   logger.Logger

	mu      sync.Mutex
	writeMu sync.Mutex // serializes socket writes; the socket allows one writer

	state        ConnectionState
	conn         Conn
	generation   int // increments per socket; stale read pumps exit
	configured   bool
	auth         string
	destinations []string

	pairingCode string
	lastQR      string
	pairingBusy bool // a scanned code's restart handshake is in flight

	reconnectSet bool // a reconnect timer is already scheduled

	runCtx    context.Context
	runCancel context.CancelFunc

	acks   map[string]chan *Frame
	events chan StateChange
}

// NewManager creates a manager for one tenant. Dial defaults to the
// production websocket dialer.
func NewManager(tenantID string, cfg config.WhatsAppConfig, store CredentialStore, dial Dialer, log logger.Logger) *Manager {
	if dial == nil {
		dial = DialGateway
	}
	return &Manager{
		tenantID: tenantID,
		cfg:      cfg,
		store:    store,
		dial:     dial,
		logger:   log.With(logger.String("channel", "whatsapp"), logger.String("tenant_id", tenantID)),
		state:    StateDisconnected,
		acks:     make(map[string]chan *Frame),
		events:   make(chan StateChange, eventBuffer),
	}
}

// Name returns the channel identity.
func (m *Manager) Name() models.Channel { return models.ChannelWhatsApp }

// Events exposes state changes for QR/pairing observers.
func (m *Manager) Events() <-chan StateChange { return m.events }

// Initialize loads stored credentials and, when configured, starts the
// connection. A missing credential is quiescent: the manager stays
// disconnected and reports not configured.
func (m *Manager) Initialize(ctx context.Context) error {
	if err := m.loadCredentials(ctx); err != nil {
		return err
	}

	m.mu.Lock()
	if !m.configured {
		m.mu.Unlock()
		m.logger.Info("no credentials stored, channel idle")
		return nil
	}
	if m.runCancel != nil {
		m.runCancel()
	}
	m.runCtx, m.runCancel = context.WithCancel(context.Background())
	runCtx := m.runCtx
	m.mu.Unlock()

	go m.connect(runCtx)
	return nil
}

// ReloadCredentials re-reads the stored credential and restarts the
// connection with the new material.
func (m *Manager) ReloadCredentials(ctx context.Context) error {
	return m.Initialize(ctx)
}

// Close tears down the connection and stops reconnect attempts.
func (m *Manager) Close() {
	m.mu.Lock()
	if m.runCancel != nil {
		m.runCancel()
		m.runCancel = nil
	}
	m.closeSocketLocked()
	m.state = StateDisconnected
	m.mu.Unlock()
}

func (m *Manager) loadCredentials(ctx context.Context) error {
	cred, err := m.store.GetCredential(ctx, m.tenantID, models.ChannelWhatsApp)
	if errors.Is(err, models.ErrNotFound) {
		m.mu.Lock()
		m.configured = false
		m.mu.Unlock()
		return nil
	}
	if err != nil {
		return err
	}

	var params credParams
	if err := json.Unmarshal(cred.Params, &params); err != nil {
		return err
	}

	m.mu.Lock()
	m.configured = true
	m.auth = params.Auth
	m.destinations = params.Destinations
	m.mu.Unlock()
	return nil
}

// connect opens a fresh socket, fully closing any prior one first.
func (m *Manager) connect(ctx context.Context) {
	m.mu.Lock()
	if ctx.Err() != nil {
		m.mu.Unlock()
		return
	}
	m.closeSocketLocked()
	m.generation++
	gen := m.generation
	m.setStateLocked(StateConnecting)
	auth := m.auth
	url := m.cfg.GatewayURL
	m.mu.Unlock()

	conn, err := m.dial(ctx, url)
	if err != nil {
		m.logger.Warn("gateway dial failed", logger.Error(err))
		m.scheduleReconnect(ctx)
		return
	}

	if err := m.writeFrame(conn, &Frame{Type: frameAuth, Auth: auth}); err != nil {
		m.logger.Warn("gateway auth frame failed", logger.Error(err))
		conn.Close()
		m.scheduleReconnect(ctx)
		return
	}

	m.mu.Lock()
	if m.generation != gen || ctx.Err() != nil {
		m.mu.Unlock()
		conn.Close()
		return
	}
	m.conn = conn
	m.mu.Unlock()

	go m.readPump(ctx, conn, gen)
}

// readPump consumes gateway frames until the socket dies. It is the only
// driver of state transitions.
func (m *Manager) readPump(ctx context.Context, conn Conn, gen int) {
	for {
		frame, err := conn.ReadFrame()
		if err != nil {
			m.handleSocketDeath(ctx, gen, err)
			return
		}

		switch frame.Type {
		case frameQR:
			m.handleQR(frame.QR)
		case frameOpen:
			m.handleOpen(ctx, frame)
		case frameClose:
			m.handleClose(ctx, gen, frame)
			return
		case frameSendAck:
			m.routeAck(frame)
		default:
			m.logger.Debug("unhandled gateway frame", logger.String("type", frame.Type))
		}
	}
}

// handleQR processes a pairing code event. A fresh code is emitted only
// when it differs from the last-known one; an empty code means the
// platform expired it. During an in-progress pairing handshake the old
// code stays visible so a scanned code is not cleared by the restart.
func (m *Manager) handleQR(code string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if code == "" {
		if !m.pairingBusy {
			m.pairingCode = ""
			m.lastQR = ""
			m.emitLocked()
		}
		return
	}

	if code == m.lastQR {
		return
	}

	m.lastQR = code
	m.pairingCode = code
	m.setStateLocked(StatePairing)
	m.logger.Info("fresh pairing code issued")
}

// handleOpen marks the session live. The platform confirming an active
// connection is one of the two conditions that clear the pairing code.
func (m *Manager) handleOpen(ctx context.Context, frame *Frame) {
	m.mu.Lock()
	m.pairingBusy = false
	m.pairingCode = ""
	m.lastQR = ""
	if frame.Auth != "" {
		m.auth = frame.Auth
	}
	auth := m.auth
	m.setStateLocked(StateConnected)
	m.mu.Unlock()

	m.logger.Info("gateway session connected")

	// Persist the (possibly rotated) auth material
	if frame.Auth != "" {
		m.persistAuth(ctx, auth)
	}
}

// handleClose classifies a gateway closure.
func (m *Manager) handleClose(ctx context.Context, gen int, frame *Frame) {
	m.mu.Lock()
	if m.generation != gen {
		m.mu.Unlock()
		return
	}

	switch frame.Code {
	case CloseRestartRequired:
		// Scanned pairing code: the platform restarts the socket as part
		// of the handshake. This is success, not failure. Keep the code
		// visible, keep persisted auth, reconnect after a short delay.
		wasPairing := m.state == StatePairing
		if wasPairing {
			m.pairingBusy = true
		}
		if frame.Auth != "" {
			m.auth = frame.Auth
		}
		auth := m.auth
		m.closeSocketLocked()
		m.setStateLocked(StateConnecting)
		m.mu.Unlock()

		m.logger.Info("restart-required closure, treating as pairing handshake",
			logger.Bool("was_pairing", wasPairing))
		if frame.Auth != "" {
			m.persistAuth(ctx, auth)
		}

		time.AfterFunc(restartDelay, func() { m.connect(ctx) })

	case CloseLoggedOut:
		// Device removed remotely. Terminal: purge all auth material and
		// require a brand-new pairing. No auto-reconnect.
		m.closeSocketLocked()
		m.auth = ""
		m.pairingCode = ""
		m.lastQR = ""
		m.pairingBusy = false
		m.setStateLocked(StateDisconnected)
		m.mu.Unlock()

		m.logger.Warn("device logged out remotely, credentials purged",
			logger.String("reason", frame.Reason))
		if err := m.store.DeleteCredential(ctx, m.tenantID, models.ChannelWhatsApp); err != nil {
			m.logger.Error("failed to purge stored credential", logger.Error(err))
		}

	default:
		m.closeSocketLocked()
		m.setStateLocked(StateDisconnected)
		m.mu.Unlock()

		m.logger.Warn("gateway closed, scheduling reconnect",
			logger.Int("code", frame.Code),
			logger.String("reason", frame.Reason))
		m.scheduleReconnect(ctx)
	}
}

// handleSocketDeath handles a read error without a close frame.
func (m *Manager) handleSocketDeath(ctx context.Context, gen int, err error) {
	m.mu.Lock()
	if m.generation != gen {
		// A newer socket replaced this one; nothing to do.
		m.mu.Unlock()
		return
	}
	m.closeSocketLocked()
	m.setStateLocked(StateDisconnected)
	m.mu.Unlock()

	if ctx.Err() != nil {
		return
	}
	m.logger.Warn("gateway socket died", logger.Error(err))
	m.scheduleReconnect(ctx)
}

// scheduleReconnect arms a single fixed-delay reconnect. The fixed (not
// exponential) backoff keeps recovery time predictable while spacing
// reconnect storms.
func (m *Manager) scheduleReconnect(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}

	m.mu.Lock()
	if m.reconnectSet {
		m.mu.Unlock()
		return
	}
	m.reconnectSet = true
	m.mu.Unlock()

	time.AfterFunc(m.cfg.ReconnectDelay, func() {
		m.mu.Lock()
		m.reconnectSet = false
		m.mu.Unlock()
		m.connect(ctx)
	})
}

func (m *Manager) persistAuth(ctx context.Context, auth string) {
	m.mu.Lock()
	params := credParams{Auth: auth, Destinations: m.destinations}
	m.mu.Unlock()

	blob, err := json.Marshal(params)
	if err != nil {
		m.logger.Error("failed to marshal credential params", logger.Error(err))
		return
	}

	cred := &models.ChannelCredential{
		TenantID:    m.tenantID,
		Channel:     models.ChannelWhatsApp,
		Params:      blob,
		TokenStatus: models.TokenStatusActive,
	}
	if err := m.store.UpsertCredential(ctx, cred); err != nil {
		m.logger.Error("failed to persist auth material", logger.Error(err))
	}
}

// closeSocketLocked closes the current socket if any. Caller holds mu.
func (m *Manager) closeSocketLocked() {
	if m.conn != nil {
		m.conn.Close()
		m.conn = nil
	}
}

// setStateLocked updates the state and notifies listeners. Caller holds mu.
func (m *Manager) setStateLocked(s ConnectionState) {
	m.state = s
	m.emitLocked()
}

func (m *Manager) emitLocked() {
	change := StateChange{
		TenantID:    m.tenantID,
		State:       m.state,
		PairingCode: m.pairingCode,
	}
	select {
	case m.events <- change:
	default:
		// Listener lagging; drop rather than block the state machine.
	}
}

// IsReady reports whether the connection is in the connected state.
func (m *Manager) IsReady() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state == StateConnected
}

// State returns the current connection state.
func (m *Manager) State() ConnectionState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// PairingCode returns the currently visible pairing code, if any.
func (m *Manager) PairingCode() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pairingCode
}

// awaitReady polls for the connected state up to the configured bound.
// Past the bound the send fails; it never blocks forever.
func (m *Manager) awaitReady(ctx context.Context) error {
	if m.IsReady() {
		return nil
	}

	deadline := time.NewTimer(m.cfg.ReadyTimeout)
	defer deadline.Stop()
	tick := time.NewTicker(readyPollInterval)
	defer tick.Stop()

	for {
		select {
		case <-tick.C:
			if m.IsReady() {
				return nil
			}
		case <-deadline.C:
			return models.ErrNotReady
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// SendOffer publishes the body to every configured destination in order,
// pausing between destinations. Success is at least one destination
// delivered; the returned id is the first successful platform message id.
func (m *Manager) SendOffer(ctx context.Context, offer *models.Offer, body string) (string, error) {
	m.mu.Lock()
	configured := m.configured
	destinations := make([]string, len(m.destinations))
	copy(destinations, m.destinations)
	m.mu.Unlock()

	if !configured {
		return "", models.ErrNotConfigured
	}
	if len(destinations) == 0 {
		return "", models.ErrNotConfigured
	}

	if err := m.awaitReady(ctx); err != nil {
		return "", err
	}

	var firstMsgID string
	delivered := 0

	for i, dest := range destinations {
		if i > 0 {
			select {
			case <-time.After(m.cfg.DestinationDelay):
			case <-ctx.Done():
				break
			}
		}
		if ctx.Err() != nil {
			break
		}

		msgID, err := m.sendTo(ctx, dest, body)
		if err != nil {
			m.logger.Warn("destination send failed",
				logger.String("destination", dest),
				logger.String("offer_id", offer.ID),
				logger.Error(err),
			)
			continue
		}

		delivered++
		if firstMsgID == "" {
			firstMsgID = msgID
		}
	}

	if delivered == 0 {
		return "", errors.New("no destination accepted the message")
	}

	m.logger.Info("offer sent",
		logger.String("offer_id", offer.ID),
		logger.Int("destinations_delivered", delivered),
		logger.Int("destinations_total", len(destinations)),
	)
	return firstMsgID, nil
}

// sendTo writes one send frame and waits for its ack.
func (m *Manager) sendTo(ctx context.Context, dest, body string) (string, error) {
	id := uuid.NewString()
	ack := make(chan *Frame, 1)

	m.mu.Lock()
	conn := m.conn
	if conn == nil {
		m.mu.Unlock()
		return "", models.ErrNotReady
	}
	m.acks[id] = ack
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		delete(m.acks, id)
		m.mu.Unlock()
	}()

	if err := m.writeFrame(conn, &Frame{Type: frameSend, ID: id, To: dest, Body: body}); err != nil {
		return "", err
	}

	select {
	case frame := <-ack:
		if frame.Code != 0 && frame.Code != 200 {
			return "", errors.New("gateway rejected message: " + frame.Reason)
		}
		return frame.MsgID, nil
	case <-time.After(ackTimeout):
		return "", errors.New("send ack timeout")
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// writeFrame is the single writer for the socket. Concurrent SendOffer
// calls for one tenant share the connection, and the gateway transport
// does not tolerate interleaved writes.
func (m *Manager) writeFrame(conn Conn, f *Frame) error {
	m.writeMu.Lock()
	defer m.writeMu.Unlock()
	return conn.WriteFrame(f)
}

func (m *Manager) routeAck(frame *Frame) {
	m.mu.Lock()
	ack, ok := m.acks[frame.ID]
	m.mu.Unlock()
	if ok {
		select {
		case ack <- frame:
		default:
		}
	}
}

// Status reports the best-effort current state for the dashboard.
func (m *Manager) Status() channels.Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return channels.Status{
		Channel:     models.ChannelWhatsApp,
		Configured:  m.configured,
		Ready:       m.state == StateConnected,
		State:       m.state.String(),
		PairingCode: m.pairingCode,
	}
}
