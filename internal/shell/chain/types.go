package chain

import (
	"encoding/hex"
	"encoding/json"
	"strconv"

	"github.com/sota-zk-labs/jayce/internal/core/domain"
)

// =============================================================================
// Wire Types
// =============================================================================

// Uint64Str is a uint64 that serializes as a decimal string, matching the
// node's JSON conventions.
type Uint64Str uint64

func (u Uint64Str) MarshalJSON() ([]byte, error) {
	return json.Marshal(strconv.FormatUint(uint64(u), 10))
}

func (u *Uint64Str) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return err
	}
	*u = Uint64Str(v)
	return nil
}

// AccountInfo is the node's view of an account.
type AccountInfo struct {
	SequenceNumber    Uint64Str `json:"sequence_number"`
	AuthenticationKey string    `json:"authentication_key"`
}

// PayloadType selects the publish flavor carried by a transaction.
type PayloadType string

const (
	PayloadObjectPublish  PayloadType = "object_code_deploy"
	PayloadAccountPublish PayloadType = "code_publish"
)

// PublishPayload carries one compiled package and its resolved addresses.
type PublishPayload struct {
	Type PayloadType `json:"type"`

	// AddressName is the symbolic name the package publishes under.
	AddressName string `json:"address_name"`

	// Bytecode is the hex-encoded compiled payload with every named address
	// already substituted.
	Bytecode string `json:"bytecode"`

	// NamedAddresses records the substitution applied, name -> address.
	NamedAddresses map[string]string `json:"named_addresses,omitempty"`

	// PublishCode asks the node to store the package source on chain
	// alongside the bytecode.
	PublishCode bool `json:"publish_code"`
}

// NewPublishPayload builds the payload for a module with its binding applied.
func NewPublishPayload(ptype PayloadType, mod domain.Module, binding map[string]domain.Address) PublishPayload {
	named := make(map[string]string, len(binding))
	for name, addr := range binding {
		named[name] = addr.Hex()
	}
	return PublishPayload{
		Type:           ptype,
		AddressName:    mod.AddressName,
		Bytecode:       "0x" + hex.EncodeToString(mod.Bytecode),
		NamedAddresses: named,
	}
}

// Transaction is a publish transaction ready for signing and submission.
type Transaction struct {
	Sender                  string         `json:"sender"`
	SequenceNumber          Uint64Str      `json:"sequence_number"`
	MaxGasAmount            Uint64Str      `json:"max_gas_amount"`
	GasUnitPrice            Uint64Str      `json:"gas_unit_price"`
	ExpirationTimestampSecs Uint64Str      `json:"expiration_timestamp_secs"`
	Payload                 PublishPayload `json:"payload"`

	// IdempotencyKey is unique per submission attempt so a node-side replay
	// of the same attempt cannot double-publish.
	IdempotencyKey string `json:"idempotency_key"`

	// PublicKey and Signature authenticate the transaction.
	PublicKey string `json:"public_key,omitempty"`
	Signature string `json:"signature,omitempty"`
}

// SigningMessage is the canonical byte form covered by the signature.
func (t *Transaction) SigningMessage() ([]byte, error) {
	unsigned := *t
	unsigned.PublicKey = ""
	unsigned.Signature = ""
	return json.Marshal(&unsigned)
}

// PendingTransaction is the node's acknowledgement of an accepted submission.
type PendingTransaction struct {
	Hash string `json:"hash"`
}

// TransactionInfo is the node's record of an executed transaction.
type TransactionInfo struct {
	Type     string    `json:"type"` // pending_transaction or user_transaction
	Hash     string    `json:"hash"`
	Success  bool      `json:"success"`
	VMStatus string    `json:"vm_status"`
	GasUsed  Uint64Str `json:"gas_used"`
}

// Pending reports whether the transaction has not executed yet.
func (i *TransactionInfo) Pending() bool {
	return i.Type == "pending_transaction"
}

// errorBody is the node's error response envelope.
type errorBody struct {
	Message   string `json:"message"`
	ErrorCode string `json:"error_code"`
}
