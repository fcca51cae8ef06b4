package stream

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"fieldsync/internal/discovery"
	"fieldsync/internal/mcast"
	"fieldsync/internal/task"
	"fieldsync/internal/wire"
)

const writeTimeout = time.Second

// controlURL builds the WebSocket URL for the host's control endpoint.
func controlURL(host discovery.Host) string {
	// URL.String escapes an IPv6 zone as %25
	u := url.URL{Scheme: "ws", Host: host.ControlAddr().String(), Path: "/"}
	return u.String()
}

func runWebSocket(ctx context.Context, host discovery.Host, cfg Config, log zerolog.Logger,
	out *task.Sender[wire.Packet], requests <-chan wire.Request) error {

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	target := controlURL(host)
	dialer := websocket.Dialer{HandshakeTimeout: cfg.Timeout}
	conn, _, err := dialer.DialContext(ctx, target, nil)
	if err != nil {
		return fmt.Errorf("connecting to %s: %w", target, err)
	}
	defer conn.Close()

	udp, err := mcast.Bind(ctx, familyOf(host.Addr.Addr()), ":0")
	if err != nil {
		return fmt.Errorf("binding UDP socket: %w", err)
	}
	defer udp.Close()
	if err := udp.SetReadBuffer(readBufferSize); err != nil {
		log.Warn().Err(err).Msg("Failed to set read buffer")
	}
	udpPort := udp.LocalAddr().Port()

	log.Info().
		Str("url", target).
		Uint16("udp_port", udpPort).
		Msg("WebSocket stream started")

	limiter := task.NewWarnLimiter(4, decodeWarnEvery)
	packets := make(chan wire.Packet, 64)
	activity := make(chan struct{}, 1)
	errc := make(chan error, 2)

	conn.SetPingHandler(func(data string) error {
		select {
		case activity <- struct{}{}:
		default:
		}
		err := conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(writeTimeout))
		if err == websocket.ErrCloseSent {
			return nil
		}
		return err
	})

	go readWebSocket(ctx, conn, log, limiter, packets, errc)
	go (&reader{name: "udp", sock: udp, log: log, limiter: limiter}).run(ctx, packets, errc)

	timeout := time.NewTimer(cfg.Timeout)
	defer timeout.Stop()

	for {
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeTimeout))
			return ctx.Err()

		case err := <-errc:
			return err

		case <-timeout.C:
			log.Info().Str("url", target).Msg("Connection timed out")
			return ErrTimeout

		case <-activity:
			timeout.Reset(cfg.Timeout)

		case req := <-requests:
			if r, ok := req.(*wire.UDPStreamRequest); ok {
				withPort := *r
				withPort.Port = udpPort
				req = &withPort
			}
			data, err := wire.EncodeRequest(req)
			if err != nil {
				log.Error().Err(err).Msg("Encoding request failed")
				continue
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteMessage(websocket.BinaryMessage, data); err != nil {
				return fmt.Errorf("sending request: %w", err)
			}

		case pkt := <-packets:
			timeout.Reset(cfg.Timeout)
			if !out.TrySend(pkt) {
				return nil
			}
		}
	}
}

func readWebSocket(ctx context.Context, conn *websocket.Conn, log zerolog.Logger, limiter *task.WarnLimiter,
	packets chan<- wire.Packet, errc chan<- error) {

	src := conn.RemoteAddr().String()
	for {
		typ, msg, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil {
				sendErr(ctx, errc, fmt.Errorf("reading websocket: %w", err))
			}
			return
		}
		if typ != websocket.BinaryMessage {
			log.Debug().Int("type", typ).Msg("Ignoring non-binary websocket message")
			continue
		}

		pkt, err := wire.DecodePacket(msg)
		if err != nil {
			logDecodeError(log, limiter, "websocket", src, err)
			continue
		}

		select {
		case packets <- pkt:
		case <-ctx.Done():
			return
		}
	}
}
