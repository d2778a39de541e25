// Package lightning connects to an LND node and streams invoice updates.
package lightning

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/lightningnetwork/lnd/lnrpc"
	"github.com/lightningnetwork/lnd/macaroons"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"gopkg.in/macaroon.v2"

	"keysendnotifier/internal/keysend"
	logx "keysendnotifier/pkg/logx"
)

// ErrStreamClosed is reported when the node ends the invoice stream.
var ErrStreamClosed = errors.New("invoice stream closed by node")

// Config holds connection configuration.
type Config struct {
	Host         string
	TLSCertPath  string
	MacaroonPath string
}

// NodeInfo is the subset of GetInfo logged at startup.
type NodeInfo struct {
	Pubkey  string
	Alias   string
	Network string
	Synced  bool
}

// lightningAPI is the subset of lnrpc.LightningClient used here.
type lightningAPI interface {
	GetInfo(ctx context.Context, in *lnrpc.GetInfoRequest, opts ...grpc.CallOption) (*lnrpc.GetInfoResponse, error)
	SubscribeInvoices(ctx context.Context, in *lnrpc.InvoiceSubscription, opts ...grpc.CallOption) (lnrpc.Lightning_SubscribeInvoicesClient, error)
}

// Client implements keysend.Source on top of lnrpc.
type Client struct {
	ln   lightningAPI
	conn *grpc.ClientConn
	log  logx.Logger
}

var _ keysend.Source = (*Client)(nil)

// Dial loads the TLS certificate and macaroon and opens a gRPC connection.
// The connection is established lazily on the first call.
func Dial(cfg Config, log logx.Logger) (*Client, error) {
	creds, err := credentials.NewClientTLSFromFile(cfg.TLSCertPath, "")
	if err != nil {
		return nil, fmt.Errorf("load tls cert: %w", err)
	}

	macBytes, err := os.ReadFile(cfg.MacaroonPath)
	if err != nil {
		return nil, fmt.Errorf("read macaroon: %w", err)
	}
	mac := &macaroon.Macaroon{}
	if err := mac.UnmarshalBinary(macBytes); err != nil {
		return nil, fmt.Errorf("unmarshal macaroon: %w", err)
	}
	macCreds, err := macaroons.NewMacaroonCredential(mac)
	if err != nil {
		return nil, fmt.Errorf("macaroon credential: %w", err)
	}

	conn, err := grpc.NewClient(cfg.Host,
		grpc.WithTransportCredentials(creds),
		grpc.WithPerRPCCredentials(macCreds),
	)
	if err != nil {
		return nil, fmt.Errorf("dial lnd %s: %w", cfg.Host, err)
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Client{ln: lnrpc.NewLightningClient(conn), conn: conn, log: log}, nil
}

func (c *Client) Close() error {
	if c.conn == nil {
		return nil
	}
	return c.conn.Close()
}

func (c *Client) GetInfo(ctx context.Context) (NodeInfo, error) {
	resp, err := c.ln.GetInfo(ctx, &lnrpc.GetInfoRequest{})
	if err != nil {
		return NodeInfo{}, fmt.Errorf("getinfo: %w", err)
	}
	info := NodeInfo{Pubkey: resp.IdentityPubkey, Alias: resp.Alias, Synced: resp.SyncedToChain}
	if len(resp.Chains) > 0 {
		info.Network = resp.Chains[0].Network
	}
	return info, nil
}

// Subscribe opens a parameterless invoice subscription. Updates are converted
// and delivered in stream order. When the stream ends the error channel
// receives one value: ErrStreamClosed on a clean close, ctx.Err() after
// cancellation, or the wrapped transport error.
func (c *Client) Subscribe(ctx context.Context) (<-chan keysend.SettlementEvent, <-chan error, error) {
	stream, err := c.ln.SubscribeInvoices(ctx, &lnrpc.InvoiceSubscription{})
	if err != nil {
		return nil, nil, fmt.Errorf("subscribe invoices: %w", err)
	}

	updates := make(chan keysend.SettlementEvent)
	errc := make(chan error, 1)

	go func() {
		defer close(updates)
		defer close(errc)

		for {
			inv, err := stream.Recv()
			if err != nil {
				switch {
				case errors.Is(err, io.EOF):
					errc <- ErrStreamClosed
				case ctx.Err() != nil:
					errc <- ctx.Err()
				default:
					errc <- fmt.Errorf("invoice stream: %w", err)
				}
				return
			}
			ev := convertInvoice(inv)
			c.log.Trace("invoice update",
				logx.String("state", ev.State.String()),
				logx.Int("htlcs", len(ev.HTLCs)),
				logx.Uint64("settle_index", ev.SettleIndex),
			)
			select {
			case updates <- ev:
			case <-ctx.Done():
				errc <- ctx.Err()
				return
			}
		}
	}()

	return updates, errc, nil
}
