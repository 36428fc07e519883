package stream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/gotify-desk/deskd/internal/event"
	"github.com/gotify-desk/deskd/internal/gotify"
	"github.com/gotify-desk/deskd/internal/message"
	"github.com/gotify-desk/deskd/pkg/metrics"
	"github.com/gotify-desk/deskd/pkg/utils"
	"go.uber.org/zap"
)

const controlWriteTimeout = 5 * time.Second

// wsFrame is one unit delivered from the reader goroutine to the session
// select loop. Control frames are surfaced through the gorilla handlers.
type wsFrame struct {
	kind int
	data []byte
	err  error
}

// session runs one streaming connection attempt: connect, authenticate,
// then multiplex inbound frames, the periodic reconciliation timer, the
// liveness timer and the stop signal. It returns nil only for an
// operator-requested stop; every other termination is an error and drives
// the supervisor's backoff.
func (s *Supervisor) session(baseURL, token string, syncer RecentSyncer, stop <-chan struct{}) error {
	wsURL, err := BuildStreamURL(baseURL)
	if err != nil {
		return err
	}
	s.logger.Debug("connecting to stream", zap.String("url", utils.RedactURL(wsURL)))

	dialer := websocket.Dialer{HandshakeTimeout: s.cfg.ConnectTimeoutDuration()}
	header := http.Header{}
	header.Set(gotify.AuthHeader, strings.TrimSpace(token))

	conn, resp, err := dialer.Dial(wsURL, header)
	if err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return fmt.Errorf("stream connection timed out after %d seconds", s.cfg.ConnectTimeout)
		}
		if resp != nil {
			return fmt.Errorf("stream connection rejected with HTTP %d: %w", resp.StatusCode, err)
		}
		return fmt.Errorf("stream connection failed: %w", err)
	}
	defer conn.Close()

	now := utils.UnixNow()
	s.state.MarkConnected(now)
	s.state.SetPhase(PhaseConnected)
	s.logger.Info("stream connected", zap.String("url", utils.RedactURL(wsURL)))

	frames := make(chan wsFrame)
	done := make(chan struct{})
	defer close(done)

	conn.SetPingHandler(func(appData string) error {
		select {
		case frames <- wsFrame{kind: websocket.PingMessage, data: []byte(appData)}:
		case <-done:
		}
		return nil
	})
	conn.SetPongHandler(func(string) error {
		select {
		case frames <- wsFrame{kind: websocket.PongMessage}:
		case <-done:
		}
		return nil
	})

	go func() {
		for {
			kind, data, readErr := conn.ReadMessage()
			select {
			case frames <- wsFrame{kind: kind, data: data, err: readErr}:
			case <-done:
				return
			}
			if readErr != nil {
				return
			}
		}
	}()

	syncTicker := time.NewTicker(s.cfg.SyncIntervalDuration())
	defer syncTicker.Stop()
	livenessTicker := time.NewTicker(s.cfg.LivenessCheckDuration())
	defer livenessTicker.Stop()

	lastActivityAt := now
	var pendingPingSince int64

	for {
		select {
		case <-stop:
			deadline := time.Now().Add(controlWriteTimeout)
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
			return nil

		case f := <-frames:
			if f.err != nil {
				return classifyReadError(f.err)
			}
			eventNow := utils.UnixNow()
			lastActivityAt = eventNow
			pendingPingSince = 0
			s.state.MarkActivity(eventNow)

			switch f.kind {
			case websocket.TextMessage:
				metrics.FramesReceived.WithLabelValues("text").Inc()
				s.handleText(f.data, eventNow)
			case websocket.PingMessage:
				metrics.FramesReceived.WithLabelValues("ping").Inc()
				deadline := time.Now().Add(controlWriteTimeout)
				if err := conn.WriteControl(websocket.PongMessage, f.data, deadline); err != nil {
					return fmt.Errorf("failed to send pong: %w", err)
				}
			case websocket.PongMessage:
				metrics.FramesReceived.WithLabelValues("pong").Inc()
			default:
				metrics.FramesReceived.WithLabelValues("other").Inc()
			}

		case <-syncTicker.C:
			go func() {
				if err := syncer.SyncRecent(context.Background()); err != nil {
					s.logger.Warn("periodic sync failed", zap.Error(err))
				}
			}()

		case <-livenessTicker.C:
			eventNow := utils.UnixNow()
			if eventNow-lastActivityAt < int64(s.cfg.LivenessIdle) {
				s.state.EmitDiagnostics()
				continue
			}
			if pendingPingSince == 0 {
				s.logger.Debug("sending liveness ping",
					zap.Int64("idle_seconds", eventNow-lastActivityAt))
				deadline := time.Now().Add(controlWriteTimeout)
				if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
					return fmt.Errorf("failed to send liveness ping: %w", err)
				}
				metrics.LivenessPings.Inc()
				pendingPingSince = eventNow
			} else if eventNow-pendingPingSince >= int64(s.cfg.LivenessPingGrace) {
				return fmt.Errorf("stream liveness timeout after %ds idle", eventNow-lastActivityAt)
			}
			s.state.EmitDiagnostics()
		}
	}
}

// handleText parses one text frame as a message payload. Malformed
// payloads are logged and dropped; they never terminate the session.
func (s *Supervisor) handleText(data []byte, now int64) {
	var wire message.WireMessage
	if err := json.Unmarshal(data, &wire); err != nil {
		metrics.MessagesDropped.Inc()
		s.logger.Warn("failed to decode stream payload",
			zap.Error(err),
			zap.String("payload", utils.Truncate(string(data), 140)))
		return
	}

	msg := message.FromWire(wire, s.meta)
	fresh := s.cache.UpsertFront(msg)
	s.state.MarkMessage(now, msg.ID)
	metrics.MessagesReceived.Inc()
	s.bus.Emit(event.MessageReceived, msg)
	if fresh {
		s.gate.MaybeNotify(msg)
	}
}

// classifyReadError maps transport terminations to session errors. All of
// them are recoverable: the supervisor reconnects with backoff.
func classifyReadError(err error) error {
	var closeErr *websocket.CloseError
	if errors.As(err, &closeErr) {
		return fmt.Errorf("stream closed by server: %w", err)
	}
	if errors.Is(err, net.ErrClosed) {
		return errors.New("stream ended unexpectedly")
	}
	return fmt.Errorf("stream read error: %w", err)
}
