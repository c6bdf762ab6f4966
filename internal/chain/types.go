// internal/chain/types.go
package chain

import (
	"context"
	"encoding/json"
)

// Commitment levels understood by the ledger RPC.
const (
	CommitmentProcessed = "processed"
	CommitmentConfirmed = "confirmed"
	CommitmentFinalized = "finalized"
)

// TransferMemo is the structured payload embedded in a ledger transaction,
// used as the side channel carrying transfer metadata for validation.
type TransferMemo struct {
	ProductID     string `json:"product_id"`
	FromUserID    string `json:"from_user_id"`
	FromPublicKey string `json:"from_public_key"`
	ToUserID      string `json:"to_user_id"`
	ToPublicKey   string `json:"to_public_key"`
}

// TransactionMeta is the decoded view of a confirmed ledger transaction.
type TransactionMeta struct {
	Signature string
	Slot      uint64
	BlockTime int64
	Memo      *TransferMemo
}

// AccountInfo is the raw state of one on-chain account.
type AccountInfo struct {
	Address string
	Owner   string
	Data    []byte
}

// KeyedAccount pairs a program account with its address, as returned by the
// program-account scan.
type KeyedAccount struct {
	Address string
	Data    []byte
}

type SignatureInfo struct {
	Signature string          `json:"signature"`
	Slot      uint64          `json:"slot"`
	BlockTime int64           `json:"blockTime"`
	Err       json.RawMessage `json:"err"`
}

// Instruction is an opaque, already-encoded program instruction submitted on
// behalf of a signer.
type Instruction struct {
	ProgramID string   `json:"program_id"`
	Accounts  []string `json:"accounts"`
	Data      []byte   `json:"data"`
}

// Signer is the capability required to authorize a ledger submission. Each
// concrete wallet implements it; nothing else about the wallet is assumed.
type Signer interface {
	PublicKey() string
	Sign(message []byte) ([]byte, error)
}

// Client is the consumed contract of the remote ledger. Implementations may
// block for seconds on any call; every method honors ctx cancellation and
// deadlines.
type Client interface {
	GetTransaction(ctx context.Context, signature, commitment string) (*TransactionMeta, error)
	GetAccountInfo(ctx context.Context, address string) (*AccountInfo, error)
	GetSignaturesForAddress(ctx context.Context, address string, limit int, before string) ([]SignatureInfo, error)
	GetProgramAccounts(ctx context.Context, programID string, dataSize int) ([]KeyedAccount, error)
	SubmitInstruction(ctx context.Context, signer Signer, ix Instruction) (string, error)
	ConfirmTransaction(ctx context.Context, signature string) error
	RequestAirdrop(ctx context.Context, address string, amount uint64) (string, error)
}
