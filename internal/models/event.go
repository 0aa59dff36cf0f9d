package models

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/crypto/sha3"
)

// EventKind names an event emitted for off-chain indexing.
type EventKind string

// Event kinds.
const (
	EventConfigChanged      EventKind = "ConfigChanged"
	EventCountUpdated       EventKind = "CountUpdated"
	EventTokenIssued        EventKind = "TokenIssued"
	EventSettingsChanged    EventKind = "SettingsChanged"
	EventLicenseTransferred EventKind = "LicenseTransferred"
	EventPaymentTransferred EventKind = "PaymentTransferred"
)

// eventSignatures are the canonical signatures hashed into event topics.
var eventSignatures = map[EventKind]string{
	EventConfigChanged:      "ConfigChanged(uint8,uint16)",
	EventCountUpdated:       "CountUpdated(address,uint16,uint8,uint256,uint256)",
	EventTokenIssued:        "TokenIssued(address,address,uint16,uint256,uint256,uint8,string)",
	EventSettingsChanged:    "SettingsChanged(string)",
	EventLicenseTransferred: "LicenseTransferred(address,address,uint256)",
	EventPaymentTransferred: "PaymentTransferred(address,address,address,uint256)",
}

// Signature returns the canonical signature of the event kind.
func (k EventKind) Signature() string {
	return eventSignatures[k]
}

// Topic returns keccak256 of the event signature.
func (k EventKind) Topic() common.Hash {
	hasher := sha3.NewLegacyKeccak256()
	hasher.Write([]byte(k.Signature()))
	return common.BytesToHash(hasher.Sum(nil))
}

// Event is a record emitted by a committed transaction.
// ID and Timestamp are assigned when the transaction commits.
type Event struct {
	ID        string      `json:"id"`
	Kind      EventKind   `json:"kind"`
	Topic     common.Hash `json:"topic"`
	TxName    string      `json:"tx"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   any         `json:"payload"`
}

// NewEvent builds an event of the given kind with its topic filled in.
func NewEvent(kind EventKind, payload any) Event {
	return Event{
		Kind:    kind,
		Topic:   kind.Topic(),
		Payload: payload,
	}
}

// ConfigChanged carries the full new configuration of a tier.
type ConfigChanged struct {
	Mode      Mode                 `json:"mode"`
	Tier      Tier                 `json:"tier"`
	Public    *PublicSaleConfig    `json:"public,omitempty"`
	Whitelist *WhitelistSaleConfig `json:"whitelist,omitempty"`
}

// CountUpdated carries the post-increment ledger counters of a claim.
type CountUpdated struct {
	Claimant  common.Address `json:"claimant"`
	Tier      Tier           `json:"tier"`
	Mode      Mode           `json:"mode"`
	UserCount uint64         `json:"user_count"`
	TierCount uint64         `json:"tier_count"`
}

// TokenIssued is emitted once per issued license.
type TokenIssued struct {
	Sender   common.Address `json:"sender"`
	Receiver common.Address `json:"receiver"`
	Tier     Tier           `json:"tier"`
	TokenID  uint64         `json:"token_id"`
	Price    *big.Int       `json:"price"`
	Mode     Mode           `json:"mode"`
	Memo     string         `json:"memo"`
}

// SettingsChanged is emitted by the admin setters.
type SettingsChanged struct {
	Field string `json:"field"`
	Value string `json:"value"`
}

// LicenseTransferred is emitted on every custody change of a license, issuance included.
type LicenseTransferred struct {
	From    common.Address `json:"from"`
	To      common.Address `json:"to"`
	TokenID uint64         `json:"token_id"`
}

// PaymentTransferred is emitted by the payment token book.
type PaymentTransferred struct {
	Token  common.Address `json:"token"`
	From   common.Address `json:"from"`
	To     common.Address `json:"to"`
	Amount *big.Int       `json:"amount"`
}
