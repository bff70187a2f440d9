package dataplane

import (
	"context"
	"crypto/tls"
	"fmt"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"

	"github.com/Intent-Gate/Intentgate/internal/domain/boundary"
	"github.com/Intent-Gate/Intentgate/internal/domain/intent"
	"github.com/Intent-Gate/Intentgate/internal/service"
)

var _ service.DataPlane = (*Client)(nil)

// DefaultTimeout bounds every data-plane RPC that arrives without a
// caller deadline.
const DefaultTimeout = 5 * time.Second

const reasonUnavailable = "data_plane_unavailable"

// ClientConfig configures a data-plane client connection.
type ClientConfig struct {
	// Target is a gRPC target string, for example "dns:///gate:9443".
	Target string
	// APIKey, when set, is attached to every RPC as a bearer credential.
	APIKey string
	// TLSConfig, when set, dials with TLS transport credentials and the
	// bearer token refuses to flow over plaintext links.
	TLSConfig *tls.Config
	// Timeout overrides DefaultTimeout when positive.
	Timeout time.Duration
}

// Client talks to a remote enforcement data plane. It mirrors boundary
// installs and can delegate whole enforcement calls.
type Client struct {
	conn    *grpc.ClientConn
	timeout time.Duration
}

// NewClient opens a lazy connection to the data plane. Extra dial
// options are appended after the defaults, so tests can inject a
// dialer.
func NewClient(cfg ClientConfig, extra ...grpc.DialOption) (*Client, error) {
	transport := insecure.NewCredentials()
	if cfg.TLSConfig != nil {
		transport = credentials.NewTLS(cfg.TLSConfig)
	}
	opts := []grpc.DialOption{
		grpc.WithTransportCredentials(transport),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(Codec)),
	}
	if cfg.APIKey != "" {
		opts = append(opts, grpc.WithPerRPCCredentials(bearerCredentials{
			token:      cfg.APIKey,
			requireTLS: cfg.TLSConfig != nil,
		}))
	}
	opts = append(opts, extra...)

	conn, err := grpc.NewClient(cfg.Target, opts...)
	if err != nil {
		return nil, fmt.Errorf("dial data plane %s: %w", cfg.Target, err)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{conn: conn, timeout: timeout}, nil
}

// Close releases the underlying connection.
func (c *Client) Close() error { return c.conn.Close() }

// InstallBoundary mirrors an encoded boundary into the data plane.
func (c *Client) InstallBoundary(ctx context.Context, b *boundary.Boundary, rv *boundary.RuleVector) error {
	ctx, cancel := c.withDeadline(ctx)
	defer cancel()

	var resp ack
	req := &installRequest{Boundary: b, Anchors: rv}
	if err := c.conn.Invoke(ctx, methodInstall, req, &resp); err != nil {
		return fmt.Errorf("data plane install %s: %w", b.ID, err)
	}
	return nil
}

// RemoveBoundary removes a mirrored boundary from the data plane.
func (c *Client) RemoveBoundary(ctx context.Context, tenantID, id string) error {
	ctx, cancel := c.withDeadline(ctx)
	defer cancel()

	var resp ack
	req := &removeRequest{TenantID: tenantID, BoundaryID: id}
	if err := c.conn.Invoke(ctx, methodRemove, req, &resp); err != nil {
		return fmt.Errorf("data plane remove %s: %w", id, err)
	}
	return nil
}

// Enforce delegates one intent verdict to the data plane. Timeouts,
// unavailability and rejected payloads all come back as a BLOCK
// verdict rather than an error, so callers stay fail-closed without
// extra handling.
func (c *Client) Enforce(ctx context.Context, ev *intent.Event) (*boundary.ComparisonResult, error) {
	ctx, cancel := c.withDeadline(ctx)
	defer cancel()

	var result boundary.ComparisonResult
	if err := c.conn.Invoke(ctx, methodEnforce, ev, &result); err != nil {
		switch status.Code(err) {
		case codes.DeadlineExceeded, codes.Unavailable, codes.InvalidArgument:
			return blockedVerdict(ev, err), nil
		default:
			return nil, fmt.Errorf("data plane enforce %s: %w", ev.ID, err)
		}
	}
	return &result, nil
}

func (c *Client) withDeadline(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, c.timeout)
}

func blockedVerdict(ev *intent.Event, cause error) *boundary.ComparisonResult {
	return &boundary.ComparisonResult{
		RequestID: ev.ID,
		Decision:  boundary.DecisionBlock,
		Timestamp: time.Now().UTC(),
		Reason:    reasonUnavailable,
		Warning:   cause.Error(),
	}
}

// bearerCredentials attaches a static bearer token to every RPC.
// requireTLS mirrors the dial credentials: a TLS client refuses to
// send the token over plaintext, a loopback or mesh-encrypted client
// may.
type bearerCredentials struct {
	token      string
	requireTLS bool
}

func (b bearerCredentials) GetRequestMetadata(context.Context, ...string) (map[string]string, error) {
	return map[string]string{"authorization": "Bearer " + b.token}, nil
}

func (b bearerCredentials) RequireTransportSecurity() bool { return b.requireTLS }
