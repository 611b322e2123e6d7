package clients

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/megalith-labs/x402-go/types"
)

var _ ChainReader = (*EVMClient)(nil)

// Minimal read ABI: the ERC-20 metadata views, the EIP-3009 authorization
// state query used as the capability probe, and the proxy contract's
// per-(user, token) nonce counter.
const readABI = `
[
  {
    "name": "decimals",
    "type": "function",
    "stateMutability": "view",
    "inputs": [],
    "outputs": [{ "name": "", "type": "uint8" }]
  },
  {
    "name": "name",
    "type": "function",
    "stateMutability": "view",
    "inputs": [],
    "outputs": [{ "name": "", "type": "string" }]
  },
  {
    "name": "version",
    "type": "function",
    "stateMutability": "view",
    "inputs": [],
    "outputs": [{ "name": "", "type": "string" }]
  },
  {
    "name": "authorizationState",
    "type": "function",
    "stateMutability": "view",
    "inputs": [
      { "name": "authorizer", "type": "address" },
      { "name": "nonce", "type": "bytes32" }
    ],
    "outputs": [{ "name": "", "type": "bool" }]
  },
  {
    "name": "nonces",
    "type": "function",
    "stateMutability": "view",
    "inputs": [
      { "name": "user", "type": "address" },
      { "name": "token", "type": "address" }
    ],
    "outputs": [{ "name": "", "type": "uint256" }]
  }
]
`

// EVMClient reads contract state for one network over JSON-RPC.
type EVMClient struct {
	network types.Network
	client  *ethclient.Client
	abi     abi.ABI
	chainID *big.Int
}

// NewEVMClient dials the network's RPC endpoint. The descriptor's chain id
// is authoritative; no eth_chainId round trip is made.
func NewEVMClient(network types.Network) (*EVMClient, error) {
	if err := network.Validate(); err != nil {
		return nil, err
	}

	client, err := ethclient.Dial(network.RPCEndpoint)
	if err != nil {
		return nil, &types.X402Error{
			Code:    types.ErrTransport,
			Message: fmt.Sprintf("failed to connect to %s RPC", network.ID),
			Err:     err,
		}
	}

	parsed, err := abi.JSON(strings.NewReader(readABI))
	if err != nil {
		return nil, fmt.Errorf("parse read ABI: %w", err)
	}

	return &EVMClient{
		network: network,
		client:  client,
		abi:     parsed,
		chainID: big.NewInt(network.ChainID),
	}, nil
}

func (e *EVMClient) ChainID() *big.Int { return new(big.Int).Set(e.chainID) }

func (e *EVMClient) Close() { e.client.Close() }

// AuthorizationState implements the capability probe. A revert or missing
// method surfaces as an error, which callers classify as the proxied scheme.
func (e *EVMClient) AuthorizationState(ctx context.Context, token, authorizer common.Address, nonce [32]byte) (bool, error) {
	var used bool
	if err := e.call(ctx, token, "authorizationState", []any{authorizer, nonce}, &used); err != nil {
		return false, err
	}
	return used, nil
}

func (e *EVMClient) TokenDecimals(ctx context.Context, token common.Address) (uint8, error) {
	var decimals uint8
	if err := e.call(ctx, token, "decimals", nil, &decimals); err != nil {
		return 0, err
	}
	return decimals, nil
}

func (e *EVMClient) TokenName(ctx context.Context, token common.Address) (string, error) {
	var name string
	if err := e.call(ctx, token, "name", nil, &name); err != nil {
		return "", err
	}
	return name, nil
}

func (e *EVMClient) TokenVersion(ctx context.Context, token common.Address) (string, error) {
	var version string
	if err := e.call(ctx, token, "version", nil, &version); err != nil {
		return "", err
	}
	return version, nil
}

func (e *EVMClient) ProxyNonce(ctx context.Context, proxy, user, token common.Address) (*big.Int, error) {
	var nonce *big.Int
	if err := e.call(ctx, proxy, "nonces", []any{user, token}, &nonce); err != nil {
		return nil, err
	}
	return nonce, nil
}

// call packs, eth_calls and unpacks a single-output view method.
func (e *EVMClient) call(ctx context.Context, contract common.Address, method string, args []any, out any) error {
	data, err := e.abi.Pack(method, args...)
	if err != nil {
		return fmt.Errorf("pack %s: %w", method, err)
	}

	res, err := e.client.CallContract(ctx, ethereum.CallMsg{To: &contract, Data: data}, nil)
	if err != nil {
		return fmt.Errorf("call %s on %s: %w", method, contract.Hex(), err)
	}

	results, err := e.abi.Unpack(method, res)
	if err != nil {
		return fmt.Errorf("unpack %s: %w", method, err)
	}
	if len(results) != 1 {
		return fmt.Errorf("unexpected %s output arity %d", method, len(results))
	}

	return assign(results[0], out)
}

func assign(value any, out any) error {
	switch dst := out.(type) {
	case *bool:
		v, ok := value.(bool)
		if !ok {
			return fmt.Errorf("expected bool output, got %T", value)
		}
		*dst = v
	case *uint8:
		v, ok := value.(uint8)
		if !ok {
			return fmt.Errorf("expected uint8 output, got %T", value)
		}
		*dst = v
	case *string:
		v, ok := value.(string)
		if !ok {
			return fmt.Errorf("expected string output, got %T", value)
		}
		*dst = v
	case **big.Int:
		v, ok := value.(*big.Int)
		if !ok {
			return fmt.Errorf("expected uint256 output, got %T", value)
		}
		*dst = v
	default:
		return fmt.Errorf("unsupported output type %T", out)
	}
	return nil
}
