package marketdata

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// QuoteHandler receives each quote parsed off the stream
type QuoteHandler func(Quote)

// Stream maintains a websocket connection to the quote feed with automatic
// reconnection. Parsed quotes are delivered to the handler and retained as a
// last-known snapshot per symbol, so Stream also satisfies QuoteProvider for
// cached reads.
type Stream struct {
	url     string
	handler QuoteHandler
	logger  zerolog.Logger

	mu         sync.RWMutex
	conn       *websocket.Conn
	latest     map[string]*Quote
	isRunning  bool
	reconnects int
}

// NewStream creates a stream client for the given feed URL
func NewStream(url string, handler QuoteHandler, logger zerolog.Logger) *Stream {
	return &Stream{
		url:     url,
		handler: handler,
		logger:  logger,
		latest:  make(map[string]*Quote),
	}
}

// Start begins the connect/read loop in a background goroutine
func (s *Stream) Start() {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return
	}
	s.isRunning = true
	s.mu.Unlock()

	go s.connect()
}

// Stop closes the connection and halts reconnection
func (s *Stream) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.isRunning = false
	if s.conn != nil {
		s.conn.Close()
		s.conn = nil
	}
}

// Latest returns the last quote seen for a symbol, or nil
func (s *Stream) Latest(symbol string) *Quote {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if q, ok := s.latest[symbol]; ok {
		cp := *q
		return &cp
	}
	return nil
}

func (s *Stream) connect() {
	for {
		s.mu.RLock()
		running := s.isRunning
		s.mu.RUnlock()
		if !running {
			return
		}

		conn, _, err := websocket.DefaultDialer.Dial(s.url, nil)
		if err != nil {
			s.logger.Warn().Err(err).Str("url", s.url).Msg("quote stream connect failed, retrying in 5s")
			time.Sleep(5 * time.Second)
			s.mu.Lock()
			s.reconnects++
			s.mu.Unlock()
			continue
		}

		s.mu.Lock()
		s.conn = conn
		s.reconnects = 0
		s.mu.Unlock()

		s.logger.Info().Str("url", s.url).Msg("quote stream connected")
		s.readLoop(conn)

		s.mu.RLock()
		running = s.isRunning
		s.mu.RUnlock()
		if !running {
			return
		}

		s.logger.Warn().Msg("quote stream lost, reconnecting in 3s")
		time.Sleep(3 * time.Second)
	}
}

func (s *Stream) readLoop(conn *websocket.Conn) {
	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Info().Msg("quote stream closed normally")
			} else {
				s.logger.Warn().Err(err).Msg("quote stream read error")
			}
			return
		}
		s.handleMessage(message)
	}
}

func (s *Stream) handleMessage(message []byte) {
	var quote Quote
	if err := json.Unmarshal(message, &quote); err != nil {
		s.logger.Warn().Err(err).Msg("failed to parse quote message")
		return
	}
	if quote.Symbol == "" {
		return
	}
	if quote.Timestamp.IsZero() {
		quote.Timestamp = time.Now().UTC()
	}

	s.mu.Lock()
	cp := quote
	s.latest[quote.Symbol] = &cp
	s.mu.Unlock()

	if s.handler != nil {
		s.handler(quote)
	}
}
