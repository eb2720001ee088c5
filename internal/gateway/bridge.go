package gateway

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/quic-go/quic-go/http3"

	"github.com/Hardik94/shabdabhav/internal/apierr"
)

// bridgeTimeout is the end-to-end budget for one gateway-to-engine round trip.
const bridgeTimeout = 60 * time.Second

// Bridge translates gateway requests onto the engine's HTTP/3 surface. Each
// call dials its own QUIC connection; the engine is local or near-local, so
// handshake cost is not worth a connection-reuse state machine here.
type Bridge struct {
	base      string
	tlsConfig *tls.Config

	// roundTripper overrides the per-request HTTP/3 transport in tests.
	roundTripper http.RoundTripper
}

// NewBridge records the engine base URL as given (an empty base leaves the
// bridge unconfigured) and loads the optional client certificate. A
// configured-but-unloadable certificate is a startup error.
func NewBridge(base, certFile, keyFile string, insecure bool) (*Bridge, error) {
	tlsConf := &tls.Config{InsecureSkipVerify: insecure}
	if certFile != "" && keyFile != "" {
		cert, err := tls.LoadX509KeyPair(certFile, keyFile)
		if err != nil {
			return nil, fmt.Errorf("load client certificate: %w", err)
		}
		tlsConf.Certificates = []tls.Certificate{cert}
	}
	return &Bridge{base: base, tlsConfig: tlsConf}, nil
}

// Configured reports whether a streaming engine base is set.
func (b *Bridge) Configured() bool { return b.base != "" }

// Reply is the collected engine response.
type Reply struct {
	Status      int
	ContentType string
	Body        []byte
}

// PostJSON sends one POST with a JSON body and collects the full reply.
// The 60 s deadline covers dial, transfer and body collection; expiry maps
// to the timeout kind (504 at the surface).
func (b *Bridge) PostJSON(ctx context.Context, path string, body []byte) (Reply, error) {
	if !b.Configured() {
		return Reply{}, apierr.New(apierr.DependencyMissing, "Streaming engine not configured")
	}

	ctx, cancel := context.WithTimeout(ctx, bridgeTimeout)
	defer cancel()

	rt := b.roundTripper
	if rt == nil {
		tr := &http3.Transport{TLSClientConfig: b.tlsConfig}
		defer tr.Close()
		rt = tr
	}
	client := &http.Client{Transport: rt}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.base+path, bytes.NewReader(body))
	if err != nil {
		return Reply{}, apierr.Wrap(apierr.Internal, err, "build engine request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return Reply{}, apierr.Wrap(apierr.Timeout, err, "engine round trip exceeded %s", bridgeTimeout)
		}
		return Reply{}, apierr.Wrap(apierr.UpstreamUnavailable, err, "engine request")
	}
	defer resp.Body.Close()

	blob, err := io.ReadAll(resp.Body)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return Reply{}, apierr.Wrap(apierr.Timeout, err, "engine round trip exceeded %s", bridgeTimeout)
		}
		return Reply{}, apierr.Wrap(apierr.UpstreamUnavailable, err, "read engine response")
	}
	return Reply{
		Status:      resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
		Body:        blob,
	}, nil
}
