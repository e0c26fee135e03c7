// Package types holds the domain entities shared across the relayer core:
// SwapOrder, SwapState, Auction, Bid, StoredSecret, MerkleSecretTree,
// MonitoredTx, and the unified SwapEvent stream type.
//
// Grounded on the teacher's internal/types/order.go (SwapOrder, FusionOrder,
// PriceCurvePoint), restructured to the chain-agnostic attribute lists and
// state graph spec.md §3/§4.5 specify.
package types

import (
	"math/big"
	"time"
)

// ChainID identifies one of the two chains a swap spans.
type ChainID string

// SwapStatus is the state of a SwapState along the graph in spec.md §4.5.
type SwapStatus string

const (
	StatusCreated         SwapStatus = "Created"
	StatusAuctionStarted  SwapStatus = "AuctionStarted"
	StatusResolverChosen  SwapStatus = "ResolverChosen"
	StatusSrcPending      SwapStatus = "SrcPending"
	StatusSrcFunded       SwapStatus = "SrcFunded"
	StatusDstPending      SwapStatus = "DstPending"
	StatusDstFunded       SwapStatus = "DstFunded"
	StatusSecretReady     SwapStatus = "SecretReady"
	StatusSecretRevealed  SwapStatus = "SecretRevealed"
	StatusDstRedeemed     SwapStatus = "DstRedeemed"
	StatusCompleted       SwapStatus = "Completed"
	StatusRefunding       SwapStatus = "Refunding"
	StatusRefunded        SwapStatus = "Refunded"
	StatusExpired         SwapStatus = "Expired"
	StatusFailed          SwapStatus = "Failed"
)

// IsTerminal reports whether a status is a sink with no outgoing transitions.
func (s SwapStatus) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusExpired, StatusRefunded:
		return true
	default:
		return false
	}
}

// SwapOrder is the immutable input a caller submits (spec.md §3).
type SwapOrder struct {
	OrderID       string
	Maker         string
	MakerChain    ChainID
	MakerToken    string
	MakerAmount   *big.Int
	TakerChain    ChainID
	TakerToken    string
	TakerAmount   *big.Int
	SecretHash    [32]byte
	Timelock      time.Time
	ExpiresAt     time.Time
	Signature     []byte
	EnablePartial bool
	MaxPartialFills int
}

// SafetyDeposit is the resolver's posted incentive bond for taking an order,
// supplemented from the teacher's internal/fusion/safety.go.
type SafetyDeposit struct {
	Resolver    string
	Amount      *big.Int
	PostedAt    time.Time
	ClaimableAt time.Time
	Claimed     bool
	Refunded    bool
}

// TxRef is a reference to a transaction observed on a chain, enriching
// SwapState without the Order Manager owning MonitoredTx itself.
type TxRef struct {
	TxHash      string
	ChainID     ChainID
	BlockHeight uint64
	ObservedAt  time.Time
}

// SwapState is the Order Manager's owned record of a single order's
// progress (spec.md §3). All mutations pass through the Order Manager.
type SwapState struct {
	OrderID       string
	Status        SwapStatus
	SrcChain      ChainID
	DstChain      ChainID
	Maker         string
	Resolver      string
	MakerAmount   *big.Int
	TakerAmount   *big.Int
	SrcEscrowAddr string
	DstEscrowAddr string
	SrcTxs        []TxRef
	DstTxs        []TxRef
	SrcTimelock   time.Time
	DstTimelock   time.Time
	ExpiresAt     time.Time
	SecretHash    [32]byte
	SafetyDeposit *SafetyDeposit
	// ExclusiveWithdrawEnd and PublicWithdrawOpen implement the winning
	// resolver's exclusive redemption window (spec.md SUPPLEMENTED FEATURES,
	// grounded on the teacher's internal/fusion/timelock.go TimelockManager
	// ExclusiveWithdrawStart/End phase), set once the order enters
	// SecretRevealed: only Resolver is expected to submit the destination
	// redemption before ExclusiveWithdrawEnd; after it elapses
	// PublicWithdrawOpen flips true and any party may.
	ExclusiveWithdrawEnd time.Time
	PublicWithdrawOpen   bool
	Partial              *PartialFillState
	CreatedAt            time.Time
	UpdatedAt            time.Time
	FailureReason        string
}

// PartialFillState tracks an order's independent partial-fill sub-state; it
// never creates a second SwapState (spec.md §4.5).
type PartialFillState struct {
	TotalAmount    *big.Int
	MaxFills       int
	FilledAmount   *big.Int
	UsedIndexes    map[int]bool
	CompletionUsed bool
}

// PriceCurveFn selects the Dutch-auction decay function (spec.md §4.4).
type PriceCurveFn string

const (
	PriceCurveLinear      PriceCurveFn = "linear"
	PriceCurveExponential PriceCurveFn = "exponential"
)

// AuctionStatus is the lifecycle state of an Auction (spec.md §3).
type AuctionStatus string

const (
	AuctionActive    AuctionStatus = "active"
	AuctionEnded     AuctionStatus = "ended"
	AuctionSettled   AuctionStatus = "settled"
	AuctionCancelled AuctionStatus = "cancelled"
)

// Bid is a resolver's offer on an Auction (spec.md §3).
type Bid struct {
	Resolver  string
	Price     *big.Int
	Timestamp time.Time
	ExpiresAt time.Time
}

// Auction is a Dutch auction run by the Auction Engine for one orderId
// (spec.md §3/§4.4).
type Auction struct {
	OrderID       string
	StartingPrice *big.Int
	EndingPrice   *big.Int
	ReservePrice  *big.Int
	Duration      time.Duration
	PriceFn       PriceCurveFn
	StartTime     time.Time
	EndTime       time.Time
	Bids          []Bid
	BestBid       *Bid
	Status        AuctionStatus
	Resolver      string // winner, once settled
}

// SecretStatus is the lifecycle state of a StoredSecret (spec.md §3).
type SecretStatus string

const (
	SecretPending  SecretStatus = "pending"
	SecretReady    SecretStatus = "ready"
	SecretRevealed SecretStatus = "revealed"
	SecretExpired  SecretStatus = "expired"
)

// StoredSecret holds an encrypted preimage keyed by (OrderID, Index)
// (spec.md §3/§4.3). Ciphertext is produced by cryptoutil.SealSecret; the
// plaintext is never stored.
type StoredSecret struct {
	OrderID          string
	Index            int
	Hash             [32]byte
	Ciphertext       []byte
	Status           SecretStatus
	RevealAt         time.Time
	RevealedAt       time.Time
	PartialFillIndex *int
	CreatedAt        time.Time
}

// MerkleSecretTree is the Merkle structure covering a partial-fill order's
// preimages (spec.md §3/§4.3): maxFills+1 leaves, the +1 "completion" leaf
// covering any uncovered remainder.
type MerkleSecretTree struct {
	OrderID    string
	Root       [32]byte
	LeafHashes [][32]byte
	CreatedAt  time.Time
}

// MonitoredTxStatus is the confirmation-tracking state of a MonitoredTx.
type MonitoredTxStatus string

const (
	TxPending   MonitoredTxStatus = "pending"
	TxConfirmed MonitoredTxStatus = "confirmed"
	TxFailed    MonitoredTxStatus = "failed"
)

// MonitoredTx is a transaction the Event Monitor tracks for confirmations
// (spec.md §3/§4.2). Owned exclusively by the Event Monitor; OrderID is a
// back-reference used only to enrich emitted events.
type MonitoredTx struct {
	TxHash        string
	ChainID       ChainID
	OrderID       string
	EventType     string
	RequiredConfs uint64
	Confs         uint64
	BlockHeight   *uint64
	Status        MonitoredTxStatus
	RegisteredAt  time.Time
}

// SwapEventType enumerates the published event schema (spec.md §6).
type SwapEventType string

const (
	EventOrderCreated     SwapEventType = "OrderCreated"
	EventAuctionStarted   SwapEventType = "AuctionStarted"
	EventBidPlaced        SwapEventType = "BidPlaced"
	EventAuctionSettled   SwapEventType = "AuctionSettled"
	EventEscrowCreated    SwapEventType = "EscrowCreated"
	EventEscrowFunded     SwapEventType = "EscrowFunded"
	EventSecretReady      SwapEventType = "SecretReady"
	EventSecretRevealed   SwapEventType = "SecretRevealed"
	EventFundsRedeemed    SwapEventType = "FundsRedeemed"
	EventSwapRefunded     SwapEventType = "SwapRefunded"
	EventSwapExpired      SwapEventType = "SwapExpired"
	EventSwapCompleted    SwapEventType = "SwapCompleted"
	EventTxConfirmed      SwapEventType = "TxConfirmed"
	EventReorg            SwapEventType = "Reorg"
	EventMonitoringError  SwapEventType = "MonitoringError"
	EventSubscriberLagged SwapEventType = "SubscriberLagged"
	// EventPublicWithdrawOpened fires once a SecretRevealed order's
	// exclusive resolver withdrawal window elapses unclaimed.
	EventPublicWithdrawOpened SwapEventType = "PublicWithdrawOpened"
)

// SwapEvent is the single published event type on the Facade's subscription
// stream (spec.md §6). Data carries event-specific typed payloads (never an
// untyped interface{} grab-bag at the component boundary — components build
// a SwapEvent directly with the right Data value).
type SwapEvent struct {
	Type        SwapEventType
	OrderID     string
	ChainID     ChainID
	Data        interface{}
	Timestamp   time.Time
	BlockHeight uint64
	TxHash      string
}

// ReorgData is the Data payload of an EventReorg SwapEvent.
type ReorgData struct {
	FromHeight uint64
}

// SecretSource tags how a preimage was learned, grounded on
// other_examples/Klingon-tech-klingdex's secret_monitor.go SecretSource enum.
// SecretSourceUTXOWitness is declared for parity with that source but never
// produced: spec.md §1 puts UTXO script/witness decoding out of scope, so the
// UTXO side of the Event Monitor only tracks confirmations by txid and never
// extracts a preimage itself.
type SecretSource string

const (
	SecretSourceEVMClaim    SecretSource = "evm_claim"
	SecretSourceUTXOWitness SecretSource = "utxo_witness"
	SecretSourceManual      SecretSource = "manual"
)

// SecretRevealedData is the Data payload of an EventSecretRevealed /
// EventFundsRedeemed SwapEvent. Plaintext is populated only when the
// preimage is already public (observed on-chain, via Source evm_claim); the
// Secret Coordinator's own scheduled reveal never sets it (spec.md §5 "never
// sent to subscribers") and tags Source manual instead.
type SecretRevealedData struct {
	Plaintext [32]byte
	Index     int
	Source    SecretSource
}
