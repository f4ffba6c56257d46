package notify

import (
	"charity-auction/internal/models"
	"charity-auction/utils"
	"context"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
)

const webhookQueueSize = 256

// WebhookNotifier posts every auction event as JSON to an external URL.
// A single background worker delivers events in the order they were
// emitted; failures are only logged and a full queue drops the event.
type WebhookNotifier struct {
	client  *resty.Client
	url     string
	timeout time.Duration

	mu      sync.Mutex // protects closed and queue sends
	closed  bool
	queue   chan Event
	pending sync.WaitGroup
	done    chan struct{}
}

// NewWebhookNotifier creates a notifier posting to url and starts its worker
func NewWebhookNotifier(url string, timeout time.Duration) *WebhookNotifier {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	client := resty.New()
	client.SetTimeout(timeout)
	client.SetRetryCount(2)
	client.SetRetryWaitTime(200 * time.Millisecond)
	client.SetHeader("Content-Type", "application/json")

	w := &WebhookNotifier{
		client:  client,
		url:     url,
		timeout: timeout,
		queue:   make(chan Event, webhookQueueSize),
		done:    make(chan struct{}),
	}
	go w.deliver()
	return w
}

// NotifyAuctionUpdate posts the full bid list of an auction
func (w *WebhookNotifier) NotifyAuctionUpdate(_ context.Context, auctionID string, bids []models.Bid) {
	w.enqueue(Event{Type: EventAuctionBidUpdate, AuctionID: auctionID, Data: bids})
}

// NotifyAuctionEnded posts the final state of an auction
func (w *WebhookNotifier) NotifyAuctionEnded(_ context.Context, auction models.Auction) {
	w.enqueue(Event{Type: EventAuctionUpdated, AuctionID: auction.AuctionID, Data: auction})
}

// Wait blocks until every queued event has been delivered or given up on
func (w *WebhookNotifier) Wait() {
	w.pending.Wait()
}

// Close delivers what is still queued and stops the worker. Events emitted
// afterwards are dropped.
func (w *WebhookNotifier) Close() {
	w.mu.Lock()
	if !w.closed {
		w.closed = true
		close(w.queue)
	}
	w.mu.Unlock()
	<-w.done
}

func (w *WebhookNotifier) enqueue(event Event) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}

	w.pending.Add(1)
	select {
	case w.queue <- event:
	default:
		w.pending.Done()
		utils.Warn("webhook queue full, event dropped", map[string]any{
			"auction_id": event.AuctionID,
			"type":       event.Type,
		})
	}
}

func (w *WebhookNotifier) deliver() {
	defer close(w.done)
	for event := range w.queue {
		w.post(event)
		w.pending.Done()
	}
}

// post runs detached from the emitter's context so a finished request does
// not cancel delivery.
func (w *WebhookNotifier) post(event Event) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*w.timeout)
	defer cancel()

	resp, err := w.client.R().SetContext(ctx).SetBody(event).Post(w.url)
	if err != nil {
		utils.Warn("webhook delivery failed", map[string]any{
			"auction_id": event.AuctionID,
			"type":       event.Type,
			"error":      err.Error(),
		})
		return
	}
	if resp.IsError() {
		utils.Warn("webhook rejected event", map[string]any{
			"auction_id": event.AuctionID,
			"type":       event.Type,
			"status":     resp.StatusCode(),
		})
	}
}
