package client

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/gagliardetto/solana-go/rpc/jsonrpc"

	"github.com/rangesecurity/reverse-idl-parser/idl"
	"github.com/rangesecurity/reverse-idl-parser/logger"
)

// HeaderTransport injects configured headers into every RPC request,
// for providers that authenticate with API keys.
type HeaderTransport struct {
	Transport http.RoundTripper
	Headers   map[string]string
}

func (t *HeaderTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	for k, v := range t.Headers {
		req.Header.Set(k, v)
	}
	return t.Transport.RoundTrip(req)
}

// Client wraps a Solana RPC client for fetching and decoding program
// data.
type Client struct {
	RpcClient  *rpc.Client
	commitment rpc.CommitmentType
}

// Option adjusts a Client under construction.
type Option func(*options)

type options struct {
	headers    map[string]string
	commitment rpc.CommitmentType
}

// WithHeaders attaches static headers to every RPC request.
func WithHeaders(headers map[string]string) Option {
	return func(o *options) { o.headers = headers }
}

// WithCommitment overrides the default confirmed commitment.
func WithCommitment(commitment string) Option {
	return func(o *options) { o.commitment = CommitmentFromString(commitment) }
}

// CommitmentFromString maps a config value to an rpc commitment,
// defaulting to confirmed.
func CommitmentFromString(s string) rpc.CommitmentType {
	switch s {
	case "processed":
		return rpc.CommitmentProcessed
	case "finalized":
		return rpc.CommitmentFinalized
	default:
		return rpc.CommitmentConfirmed
	}
}

// New creates a Client against the given RPC endpoint.
func New(rpcEndpoint string, opt ...Option) *Client {
	o := &options{commitment: rpc.CommitmentConfirmed}
	for _, fn := range opt {
		fn(o)
	}

	opts := &jsonrpc.RPCClientOpts{
		HTTPClient: &http.Client{
			Transport: &HeaderTransport{
				Transport: http.DefaultTransport,
				Headers:   o.headers,
			},
			Timeout: 30 * time.Second,
		},
	}

	rpcClient := rpc.NewWithCustomRPCClient(jsonrpc.NewClientWithOpts(rpcEndpoint, opts))

	return &Client{
		RpcClient:  rpcClient,
		commitment: o.commitment,
	}
}

// FetchAccountData returns the raw data bytes of one account.
func (c *Client) FetchAccountData(ctx context.Context, address solana.PublicKey) ([]byte, error) {
	resp, err := c.RpcClient.GetAccountInfoWithOpts(ctx, address, &rpc.GetAccountInfoOpts{
		Commitment: c.commitment,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch account %s: %w", address, err)
	}
	if resp.Value == nil {
		return nil, fmt.Errorf("account %s not found", address)
	}
	return resp.Value.Data.GetBinary(), nil
}

// AccountData pairs an account address with its raw data.
type AccountData struct {
	Pubkey solana.PublicKey
	Data   []byte
}

// FetchProgramAccounts returns every account owned by programID whose
// data starts with the given discriminator prefix.
func (c *Client) FetchProgramAccounts(ctx context.Context, programID solana.PublicKey, discriminator []byte) ([]AccountData, error) {
	resp, err := c.RpcClient.GetProgramAccountsWithOpts(
		ctx,
		programID,
		&rpc.GetProgramAccountsOpts{
			Commitment: c.commitment,
			Filters: []rpc.RPCFilter{
				{
					Memcmp: &rpc.RPCFilterMemcmp{
						Offset: 0,
						Bytes:  discriminator,
					},
				},
			},
		},
	)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch program accounts: %w", err)
	}

	accounts := make([]AccountData, 0, len(resp))
	for _, item := range resp {
		accounts = append(accounts, AccountData{
			Pubkey: item.Pubkey,
			Data:   item.Account.Data.GetBinary(),
		})
	}
	return accounts, nil
}

// DecodedAccount pairs an account address with its parsed form.
type DecodedAccount struct {
	Pubkey  solana.PublicKey   `json:"pubkey"`
	Account *idl.ParsedAccount `json:"account"`
}

// DecodeProgramAccounts fetches and decodes every account of every
// account type the program declares. Accounts that fail to decode are
// logged and skipped.
func (c *Client) DecodeProgramAccounts(ctx context.Context, programID solana.PublicKey, prog *idl.Program, opts idl.DecodeOptions) ([]DecodedAccount, error) {
	var decoded []DecodedAccount
	for _, entry := range prog.Accounts() {
		disc, err := prog.AccountDiscriminatorBytes(entry.Name)
		if err != nil {
			return nil, err
		}
		accounts, err := c.FetchProgramAccounts(ctx, programID, disc)
		if err != nil {
			return nil, err
		}
		logger.RPC("fetched %d %s accounts", len(accounts), entry.Name)

		for _, acc := range accounts {
			parsed, err := prog.DecodeAccount(acc.Data, opts)
			if err != nil {
				logger.Warn("DECODE", "skipping account %s: %v", acc.Pubkey, err)
				continue
			}
			decoded = append(decoded, DecodedAccount{
				Pubkey:  acc.Pubkey,
				Account: parsed,
			})
		}
	}
	return decoded, nil
}
