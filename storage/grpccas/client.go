package grpccas

import (
	"context"
	"time"

	"github.com/ipfs/go-cid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"xdao.co/gep/cidutil"
	"xdao.co/gep/storage"
)

// Client implements storage.Store over a remote AssetStore service.
// Keys cross the wire as asset_id hex; bodies are re-hashed on receipt.
type Client struct {
	cc     *grpc.ClientConn
	client AssetStoreClient

	// Timeout applies per RPC when non-zero.
	Timeout time.Duration
}

var _ storage.Store = (*Client)(nil)

type DialOptions struct {
	// Timeout applies per RPC when non-zero.
	Timeout time.Duration

	// MaxMsgBytes sets both send/recv max sizes when non-zero.
	MaxMsgBytes int
}

func Dial(target string, opts DialOptions) (*Client, error) {
	dialOpts := []grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	}
	if opts.MaxMsgBytes > 0 {
		dialOpts = append(dialOpts,
			grpc.WithDefaultCallOptions(
				grpc.MaxCallRecvMsgSize(opts.MaxMsgBytes),
				grpc.MaxCallSendMsgSize(opts.MaxMsgBytes),
			),
		)
	}
	cc, err := grpc.NewClient(target, dialOpts...)
	if err != nil {
		return nil, err
	}
	return NewClient(cc, opts.Timeout), nil
}

// NewClient wraps an existing connection. Close closes cc.
func NewClient(cc *grpc.ClientConn, timeout time.Duration) *Client {
	return &Client{cc: cc, client: NewAssetStoreClient(cc), Timeout: timeout}
}

func (c *Client) Close() error {
	if c == nil || c.cc == nil {
		return nil
	}
	return c.cc.Close()
}

func (c *Client) Put(body []byte) (cid.Cid, error) {
	expected, err := cidutil.CIDv1RawSHA256CID(body)
	if err != nil {
		return cid.Undef, err
	}
	ctx, cancel := c.ctx()
	defer cancel()

	reply, err := c.client.Put(ctx, wrapperspb.Bytes(body))
	if err != nil {
		return cid.Undef, mapRPC(err)
	}
	id, err := cidutil.FromSHA256Hex(reply.GetValue())
	if err != nil {
		return cid.Undef, storage.ErrInvalidCID
	}
	if !id.Equals(expected) {
		return cid.Undef, storage.ErrCIDMismatch
	}
	return id, nil
}

func (c *Client) Get(id cid.Cid) ([]byte, error) {
	key, err := keyFor(id)
	if err != nil {
		return nil, err
	}
	ctx, cancel := c.ctx()
	defer cancel()

	reply, err := c.client.Get(ctx, wrapperspb.String(key))
	if err != nil {
		return nil, mapRPC(err)
	}
	b := reply.GetValue()
	got, err := cidutil.CIDv1RawSHA256CID(b)
	if err != nil {
		return nil, err
	}
	if !got.Equals(id) {
		return nil, storage.ErrCIDMismatch
	}
	return b, nil
}

func (c *Client) Has(id cid.Cid) bool {
	key, err := keyFor(id)
	if err != nil {
		return false
	}
	ctx, cancel := c.ctx()
	defer cancel()

	reply, err := c.client.Has(ctx, wrapperspb.String(key))
	if err != nil {
		return false
	}
	return reply.GetValue()
}

func (c *Client) ctx() (context.Context, context.CancelFunc) {
	if c.Timeout <= 0 {
		return context.WithCancel(context.Background())
	}
	return context.WithTimeout(context.Background(), c.Timeout)
}

func keyFor(id cid.Cid) (string, error) {
	if !id.Defined() {
		return "", storage.ErrInvalidCID
	}
	key, err := cidutil.SHA256Hex(id)
	if err != nil {
		return "", storage.ErrInvalidCID
	}
	return key, nil
}
