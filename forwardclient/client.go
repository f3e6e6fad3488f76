// Package forwardclient sends record batches to the receive endpoint of peers over HTTP
package forwardclient

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/relex/gotils/logger"
	"github.com/relex/peer-forwarder/base"
	"github.com/relex/peer-forwarder/codec"
	"github.com/relex/peer-forwarder/defs"
	"github.com/relex/peer-forwarder/util"
)

// maxErrorBodyBytes limits how much of an error response is kept in StatusError
const maxErrorBodyBytes = 512

// ErrEncoding is wrapped by errors from serialization of batches, which are never network problems
var ErrEncoding = errors.New("encoding failure")

// StatusError is returned when the peer responds with a non-2xx status
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("peer responded status %d: %s", e.StatusCode, e.Body)
}

// Config defines the parameters of forwarding client
type Config struct {
	Port           int           // Default port of peers without explicit port
	RequestTimeout time.Duration // Timeout of each request including reading response
	Compression    string        // codec.CompressionNone or codec.CompressionGzip
}

// Client sends batches to peers without retrying
//
// It's safe for concurrent use by multiple pipeline workers
type Client struct {
	logger      logger.Logger
	httpClient  *http.Client
	port        int
	compression string
}

// New creates a Client with a shared keep-alive connection pool
func New(parentLogger logger.Logger, cfg Config) *Client {
	dialer := &net.Dialer{
		Timeout:   defs.ForwarderConnectionTimeout,
		KeepAlive: 30 * time.Second,
	}
	transport := &http.Transport{
		Proxy:                 nil,
		DialContext:           dialer.DialContext,
		MaxIdleConnsPerHost:   defs.ForwarderMaxIdleConnsPerPeer,
		IdleConnTimeout:       90 * time.Second,
		ResponseHeaderTimeout: cfg.RequestTimeout,
		DisableCompression:    true,
	}
	compression := cfg.Compression
	if compression == "" {
		compression = codec.CompressionNone
	}
	return &Client{
		logger:      parentLogger.WithField(defs.LabelComponent, "ForwardClient"),
		httpClient:  &http.Client{Transport: transport, Timeout: cfg.RequestTimeout},
		port:        cfg.Port,
		compression: compression,
	}
}

// Send serializes the records and posts them to the receive endpoint of peer
//
// The batch is either accepted as a whole by the peer or the call returns error
func (c *Client) Send(ctx context.Context, records []*base.Record, peer string, pipelineName string, pluginID string) error {
	url, uerr := c.PeerURL(peer)
	if uerr != nil {
		return fmt.Errorf("%w: invalid peer address '%s': %s", ErrEncoding, peer, uerr.Error())
	}
	body, eerr := codec.Encode(codec.NewWireBatch(pipelineName, pluginID, records), c.compression)
	if eerr != nil {
		return fmt.Errorf("%w: %s", ErrEncoding, eerr.Error())
	}

	request, rerr := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if rerr != nil {
		return fmt.Errorf("%w: %s", ErrEncoding, rerr.Error())
	}
	request.Header.Set("Content-Type", codec.ContentType)
	if c.compression != codec.CompressionNone {
		request.Header.Set("Content-Encoding", c.compression)
	}

	resp, err := c.httpClient.Do(request)
	if err != nil {
		return fmt.Errorf("failed to send to %s: %w", peer, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		return &StatusError{StatusCode: resp.StatusCode, Body: string(bytes.TrimSpace(respBody))}
	}
	_, _ = io.Copy(io.Discard, resp.Body) // for connection reuse
	c.logger.Debugf("sent %d records (%d bytes) to %s", len(records), len(body), peer)
	return nil
}

// PeerURL returns the URL of receive endpoint of the peer, which may have its own port
func (c *Client) PeerURL(peer string) (string, error) {
	host, port, err := util.SplitHostPortDefault(peer, c.port)
	if err != nil {
		return "", err
	}
	return "http://" + util.JoinHostPort(host, port) + defs.ForwardPath, nil
}

// Close closes idle connections
func (c *Client) Close() {
	c.httpClient.CloseIdleConnections()
}

// ReasonOf classifies a Send error to one of defs.Reason* values
func ReasonOf(err error) string {
	var statusErr *StatusError
	switch {
	case errors.Is(err, ErrEncoding):
		return defs.ReasonEncoding
	case errors.As(err, &statusErr):
		return defs.ReasonStatus
	case util.IsNetworkTimeout(err):
		return defs.ReasonTimeout
	case util.IsNetworkError(err):
		return defs.ReasonNetwork
	default:
		return defs.ReasonOther
	}
}
