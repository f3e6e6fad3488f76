// Package receiver provides the inbound endpoint accepting record batches forwarded by peers
package receiver

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/relex/gotils/logger"
	"github.com/relex/gotils/promexporter/promext"
	"github.com/relex/gotils/promexporter/promreg"
	"github.com/relex/peer-forwarder/buffer/receivebuffer"
	"github.com/relex/peer-forwarder/codec"
	"github.com/relex/peer-forwarder/defs"
)

// BufferLookup finds the receive buffer of a registered plugin instance
type BufferLookup interface {
	LookupBuffer(pipelineName string, pluginID string) (*receivebuffer.Buffer, bool)
}

// Config defines the limits of the receiver
type Config struct {
	MaxRequestBytes int64         // Max size of request body as sent, before decompression
	BufferTimeout   time.Duration // Timeout to wait for receive buffer capacity
}

// Server accepts forwarded batches and writes them into receive buffers
//
// A batch is acknowledged with 200 only after all of its records are in the buffer
type Server struct {
	logger        logger.Logger
	config        Config
	buffers       BufferLookup
	router        chi.Router
	httpServer    *http.Server
	listener      net.Listener
	statusCounter func(status int) promext.RWCounter
}

// NewServer creates a Server
func NewServer(parentLogger logger.Logger, cfg Config, buffers BufferLookup, metricCreator promreg.MetricCreator) *Server {
	requestsVec := metricCreator.AddOrGetCounterVec("receiver_requests_total", "Numbers of received forwarding requests by response status", []string{defs.LabelStatus}, nil)
	s := &Server{
		logger:  parentLogger.WithField(defs.LabelComponent, "Receiver"),
		config:  cfg,
		buffers: buffers,
		statusCounter: func(status int) promext.RWCounter {
			return requestsVec.WithLabelValues(strconv.Itoa(status))
		},
	}

	r := chi.NewRouter()
	r.Post(defs.ForwardPath, s.handleForward)
	s.router = r
	return s
}

// Handler returns the HTTP handler serving the forwarding path
func (s *Server) Handler() http.Handler {
	return s.router
}

// Launch listens on the address and serves in background
func (s *Server) Launch(address string) error {
	listener, err := net.Listen("tcp", address)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", address, err)
	}
	s.listener = listener
	s.httpServer = &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: defs.ReceiverReadTimeout,
		ReadTimeout:       defs.ReceiverReadTimeout,
	}
	go func() {
		s.logger.Infof("listening on %s for forwarded records...", listener.Addr())
		if err := s.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("receiver error: ", err)
		}
	}()
	return nil
}

// Addr returns the listening address, or nil if not launched
func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Shutdown stops accepting requests and waits for in-flight ones until ctx is done
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown receiver: %w", err)
	}
	s.logger.Info("stopped")
	return nil
}

func (s *Server) handleForward(w http.ResponseWriter, r *http.Request) {
	compression := codec.CompressionNone
	if encoding := strings.TrimSpace(r.Header.Get("Content-Encoding")); len(encoding) > 0 {
		if !codec.IsValidCompression(encoding) {
			s.respond(w, http.StatusBadRequest, "unsupported Content-Encoding '%s'", encoding)
			return
		}
		compression = encoding
	}

	body := http.MaxBytesReader(w, r.Body, s.config.MaxRequestBytes)
	batch, err := codec.Decode(body, compression)
	if err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			s.respond(w, http.StatusRequestEntityTooLarge, "request body larger than %d bytes", maxBytesErr.Limit)
			return
		}
		s.respond(w, http.StatusBadRequest, "%s", err.Error())
		return
	}

	buffer, found := s.buffers.LookupBuffer(batch.DestinationPipelineName, batch.DestinationPluginID)
	if !found {
		s.respond(w, http.StatusNotFound, "unknown destination %s/%s", batch.DestinationPipelineName, batch.DestinationPluginID)
		return
	}

	records := batch.Records()
	switch werr := buffer.WriteAll(records, s.config.BufferTimeout); {
	case werr == nil:
		s.logger.Debugf("received %d records for %s/%s", len(records), batch.DestinationPipelineName, batch.DestinationPluginID)
		s.respond(w, http.StatusOK, "")
	case errors.Is(werr, receivebuffer.ErrTimeout):
		s.respond(w, http.StatusRequestTimeout, "%s", werr.Error())
	case errors.Is(werr, receivebuffer.ErrSizeOverflow):
		s.respond(w, http.StatusRequestEntityTooLarge, "%s", werr.Error())
	default:
		s.respond(w, http.StatusServiceUnavailable, "%s", werr.Error())
	}
}

func (s *Server) respond(w http.ResponseWriter, status int, format string, args ...interface{}) {
	s.statusCounter(status).Inc()
	if status != http.StatusOK {
		s.logger.WithField(defs.LabelStatus, status).Warnf("rejected request: "+format, args...)
		http.Error(w, fmt.Sprintf(format, args...), status)
		return
	}
	w.WriteHeader(status)
}
