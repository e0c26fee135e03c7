// Package relayerfacade is the single entry point from the external API
// (spec.md §4.6): it composes the Order Manager, Auction Engine, Secret
// Coordinator, and Event Monitor by id only — no component mutates another's
// state directly — and republishes their four event streams as one unified
// subscription.
//
// Grounded on the teacher's internal/fusion/integration.go
// (FusionIntegration wiring relayerService/auctionEngine/secretManager/
// stateMachine together and fan-in via RegisterCallback) and
// internal/fusion/relayer.go (RelayerService's public CreateOrder/GetOrder/
// GetActiveOrders contract), merged into a single facade type per spec.md's
// one-entry-point requirement rather than the teacher's separate
// RelayerService + FusionIntegration split.
package relayerfacade

import (
	"context"
	"math/big"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/fusionswap/relayer/internal/auctionengine"
	"github.com/fusionswap/relayer/internal/monitor"
	"github.com/fusionswap/relayer/internal/ordermanager"
	"github.com/fusionswap/relayer/internal/secretcoord"
	"github.com/fusionswap/relayer/internal/types"
)

// Facade is the Relayer Facade component.
type Facade struct {
	log *zap.Logger

	orders   *ordermanager.Manager
	auctions *auctionengine.Engine
	secrets  *secretcoord.Coordinator
	mon      *monitor.Monitor

	subMu       sync.Mutex
	subscribers map[chan types.SwapEvent]bool

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// subscriberBuffer bounds each subscriber's own queue (spec.md §5
// Backpressure: "a bounded buffer per subscriber").
const subscriberBuffer = 256

// New composes the four components into one facade and sets up the
// republishing fan-in (setupInterconnections in the teacher's terms).
func New(orders *ordermanager.Manager, auctions *auctionengine.Engine, secrets *secretcoord.Coordinator, mon *monitor.Monitor, log *zap.Logger) *Facade {
	return &Facade{
		log:         log.Named("relayerfacade"),
		orders:      orders,
		auctions:    auctions,
		secrets:     secrets,
		mon:         mon,
		subscribers: make(map[chan types.SwapEvent]bool),
		stopCh:      make(chan struct{}),
	}
}

// Start launches each component's own tickers/loops plus the fan-in pump
// that republishes their streams as one (spec.md §4.6 subscribe()).
func (f *Facade) Start(ctx context.Context) {
	f.orders.Start(ctx)
	f.auctions.Start(ctx)
	f.secrets.Start(ctx)
	f.mon.Start(ctx)

	f.wg.Add(1)
	go f.pump(ctx)
}

// Stop tears components down in a fixed order (spec.md §9 "a documented
// teardown order"): monitor first (stop producing), then the auction
// engine, the secret coordinator and the order manager, then the fan-in
// pump.
func (f *Facade) Stop(grace time.Duration) {
	f.mon.Stop(grace)
	f.auctions.Stop()
	f.secrets.Stop()
	f.orders.Stop()
	close(f.stopCh)
	f.wg.Wait()

	f.subMu.Lock()
	for ch := range f.subscribers {
		close(ch)
	}
	f.subscribers = nil
	f.subMu.Unlock()
}

// Subscribe returns a new, independently-bounded event stream (spec.md §4.6
// subscribe(), §5 "a bounded buffer per subscriber"). Each call gets its own
// channel; a slow consumer only drops its own events, never another
// subscriber's.
func (f *Facade) Subscribe() <-chan types.SwapEvent {
	ch := make(chan types.SwapEvent, subscriberBuffer)
	f.subMu.Lock()
	f.subscribers[ch] = true
	f.subMu.Unlock()
	return ch
}

// emit broadcasts to every live subscriber, dropping for any subscriber
// whose buffer is full and signalling SubscriberLagged to that subscriber
// alone rather than blocking the pump or other subscribers.
func (f *Facade) emit(ev types.SwapEvent) {
	f.subMu.Lock()
	defer f.subMu.Unlock()
	for ch := range f.subscribers {
		select {
		case ch <- ev:
		default:
			select {
			case ch <- types.SwapEvent{Type: types.EventSubscriberLagged, Timestamp: time.Now()}:
			default:
			}
		}
	}
}

// pump fans the four component streams into the unified one, driving
// cross-component transitions along the way (spec.md §9 "components
// reference each other only by id through the Facade" — this is the one
// place that is allowed to look at one component's event and call another
// component's public method by orderId).
func (f *Facade) pump(ctx context.Context) {
	defer f.wg.Done()
	orderEvents := f.orders.Events()
	auctionEvents := f.auctions.Events()
	secretEvents := f.secrets.Events()
	monitorEvents := f.mon.Subscribe()
	for {
		select {
		case <-ctx.Done():
			return
		case <-f.stopCh:
			return
		case ev, ok := <-orderEvents:
			if !ok {
				orderEvents = nil
				continue
			}
			f.emit(ev)
		case ev, ok := <-auctionEvents:
			if !ok {
				auctionEvents = nil
				continue
			}
			f.handleAuctionEvent(ev)
			f.emit(ev)
		case ev, ok := <-secretEvents:
			if !ok {
				secretEvents = nil
				continue
			}
			// Belt-and-suspenders alongside the Secret Coordinator's own
			// redaction: a SecretRevealed event's Data must never carry a
			// preimage onto the subscriber stream (spec.md §5).
			if ev.Type == types.EventSecretRevealed {
				ev.Data = nil
			}
			f.emit(ev)
		case ev, ok := <-monitorEvents:
			if !ok {
				monitorEvents = nil
				continue
			}
			f.handleMonitorEvent(ev)
			f.emit(ev)
		}
	}
}

// CreateOrder delegates to the Order Manager (spec.md §4.6 createOrder()).
func (f *Facade) CreateOrder(order types.SwapOrder) (*types.SwapState, error) {
	return f.orders.CreateOrder(order)
}

// GetOrder, ListByMaker, ListByStatus are the Facade's read-only queries.
func (f *Facade) GetOrder(orderID string) (*types.SwapState, bool) { return f.orders.Get(orderID) }
func (f *Facade) ListByMaker(maker string) []string               { return f.orders.ByMaker(maker) }
func (f *Facade) ListByStatus(status types.SwapStatus) []string   { return f.orders.ByStatus(status) }

// StartAuction delegates to the Auction Engine (spec.md §4.6 startAuction()).
func (f *Facade) StartAuction(orderID string, params *auctionengine.Params) (*types.Auction, error) {
	return f.auctions.StartAuction(orderID, params)
}

// PlaceBid delegates to the Auction Engine (spec.md §4.6 placeBid()).
func (f *Facade) PlaceBid(orderID, resolver string, price *big.Int, expiresAt *time.Time) error {
	return f.auctions.PlaceBid(orderID, resolver, price, expiresAt)
}

// StoreSecret delegates to the Secret Coordinator (spec.md §4.6
// storeSecret()).
func (f *Facade) StoreSecret(orderID string, plaintext [32]byte, index int, partialFillIndex *int) (*types.StoredSecret, error) {
	return f.secrets.Store(orderID, plaintext, index, partialFillIndex)
}

// ScheduleReveal delegates to the Secret Coordinator (spec.md §4.6
// scheduleReveal()).
func (f *Facade) ScheduleReveal(orderID string, index int, delay *time.Duration) error {
	return f.secrets.ScheduleReveal(orderID, index, delay)
}

// RegisterTx delegates to the Event Monitor (spec.md §4.6 registerTx()).
func (f *Facade) RegisterTx(txHash string, chainID types.ChainID, eventType, orderID string, requiredConfs uint64) {
	f.mon.Register(txHash, chainID, eventType, orderID, requiredConfs)
}

// CancelOrder forwards a cancellation request, failing the order and
// cancelling any live auction (spec.md §4.6 "forwards cancellation
// requests").
func (f *Facade) CancelOrder(orderID, reason string) error {
	if _, err := f.orders.Fail(orderID, reason); err != nil {
		return err
	}
	_ = f.auctions.Cancel(orderID, reason) // best-effort: auction may already be settled or absent
	return nil
}
