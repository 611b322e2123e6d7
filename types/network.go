package types

import "fmt"

// Network is an immutable descriptor of a supported chain: the wire
// identifier, the EIP-155 chain id used in signing domains, and the JSON-RPC
// endpoint used for read-only contract calls. Descriptors are loaded at
// process start and never mutated.
type Network struct {
	ID          string `json:"id" validate:"required"`
	ChainID     int64  `json:"chainId" validate:"required,gt=0"`
	RPCEndpoint string `json:"rpcEndpoint" validate:"required,url"`
}

func (n Network) String() string { return n.ID }

// Validate reports a ConfigurationError for an unusable descriptor.
func (n Network) Validate() error {
	if n.ID == "" {
		return &X402Error{Code: ErrConfiguration, Message: "network: id is required"}
	}
	if n.ChainID <= 0 {
		return &X402Error{
			Code:    ErrConfiguration,
			Message: fmt.Sprintf("network %s: chainId must be positive", n.ID),
		}
	}
	if n.RPCEndpoint == "" {
		return &X402Error{
			Code:    ErrConfiguration,
			Message: fmt.Sprintf("network %s: rpcEndpoint is required", n.ID),
		}
	}
	return nil
}

// Well-known chain ids, usable as defaults when wiring descriptors.
const (
	ChainIDBase        int64 = 8453
	ChainIDBaseSepolia int64 = 84532
	ChainIDPolygon     int64 = 137
	ChainIDPolygonAmoy int64 = 80002
)
