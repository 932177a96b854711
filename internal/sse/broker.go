// Package sse pushes article and catalog changes to browsers over
// Server-Sent Events.
package sse

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/starford/mdblog/internal/blogkey"
)

// Event types sent to clients.
const (
	TypeArticleSaved   = "article.saved"
	TypeArticleRemoved = "article.removed"
	TypeCatalogUpdated = "catalog.updated"
)

// DefaultCatalogThrottle is the minimum spacing of catalog.updated events.
const DefaultCatalogThrottle = 2 * time.Second

// ArticleData is the payload of article.saved and article.removed. Category,
// Slug and Version are empty for keys that never decoded.
type ArticleData struct {
	Key      string `json:"key"`
	Category string `json:"category,omitempty"`
	Slug     string `json:"slug,omitempty"`
	Version  int64  `json:"version,omitempty"`
}

func newArticleData(key string) ArticleData {
	data := ArticleData{Key: key}
	if k, ok := blogkey.Decode(key); ok {
		data.Category, data.Slug, data.Version = k.Category, k.Slug, k.Version
	}
	return data
}

// frame encodes one SSE message.
func frame(typ string, data any) ([]byte, error) {
	payload, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return []byte(fmt.Sprintf("event: %s\ndata: %s\n\n", typ, payload)), nil
}

var catalogFrame, _ = frame(TypeCatalogUpdated, struct{}{})

// Broker manages SSE client connections and broadcasts events.
//
// A single event loop owns the client set and the catalog throttle; public
// methods talk to it over channels.
type Broker struct {
	catalogMin time.Duration

	subscribeCh   chan chan []byte
	unsubscribeCh chan chan []byte
	articleCh     chan []byte
	countReqCh    chan chan int

	stopCh  chan struct{}
	stopped chan struct{}
	closed  atomic.Bool
}

// NewBroker creates a broker that emits catalog.updated at most once per
// catalogThrottle.
func NewBroker(catalogThrottle time.Duration) *Broker {
	if catalogThrottle <= 0 {
		catalogThrottle = DefaultCatalogThrottle
	}

	b := &Broker{
		catalogMin:    catalogThrottle,
		subscribeCh:   make(chan chan []byte),
		unsubscribeCh: make(chan chan []byte),
		articleCh:     make(chan []byte, 256),
		countReqCh:    make(chan chan int),
		stopCh:        make(chan struct{}),
		stopped:       make(chan struct{}),
	}

	go b.run()
	return b
}

func (b *Broker) run() {
	defer close(b.stopped)

	clients := make(map[chan []byte]struct{})
	var lastCatalog time.Time

	broadcast := func(msg []byte) {
		for ch := range clients {
			select {
			case ch <- msg:
			default:
				// Slow client; drop rather than block the loop.
			}
		}
	}

	for {
		select {
		case <-b.stopCh:
			for ch := range clients {
				close(ch)
			}
			return

		case ch := <-b.subscribeCh:
			clients[ch] = struct{}{}

		case ch := <-b.unsubscribeCh:
			if _, ok := clients[ch]; ok {
				delete(clients, ch)
				close(ch)
			}

		case msg := <-b.articleCh:
			broadcast(msg)
			if now := time.Now(); now.Sub(lastCatalog) >= b.catalogMin {
				lastCatalog = now
				broadcast(catalogFrame)
			}

		case resp := <-b.countReqCh:
			resp <- len(clients)
		}
	}
}

// Close gracefully stops broker loop and closes all client channels.
func (b *Broker) Close() {
	if b.closed.CompareAndSwap(false, true) {
		close(b.stopCh)
	}
	<-b.stopped
}

// Subscribe adds a new client and returns its channel.
func (b *Broker) Subscribe() chan []byte {
	ch := make(chan []byte, 64)
	if b.closed.Load() {
		close(ch)
		return ch
	}

	select {
	case b.subscribeCh <- ch:
	case <-b.stopped:
		close(ch)
	}

	return ch
}

// Unsubscribe removes a client and closes its channel.
func (b *Broker) Unsubscribe(ch chan []byte) {
	if b.closed.Load() {
		return
	}
	select {
	case b.unsubscribeCh <- ch:
	case <-b.stopped:
	}
}

// ClientCount returns the number of connected clients.
func (b *Broker) ClientCount() int {
	if b.closed.Load() {
		return 0
	}

	resp := make(chan int, 1)
	select {
	case b.countReqCh <- resp:
	case <-b.stopped:
		return 0
	}

	select {
	case n := <-resp:
		return n
	case <-b.stopped:
		return 0
	}
}

// PublishArticleEvent publishes an article change and a throttled
// catalog.updated event. kind is "saved" or "removed"; other kinds are
// dropped. Its signature matches syncer.EventCallback.
func (b *Broker) PublishArticleEvent(kind, key string) {
	if b.closed.Load() {
		return
	}
	var typ string
	switch kind {
	case "saved":
		typ = TypeArticleSaved
	case "removed":
		typ = TypeArticleRemoved
	default:
		return
	}
	msg, err := frame(typ, newArticleData(key))
	if err != nil {
		return
	}
	select {
	case b.articleCh <- msg:
	case <-b.stopped:
	}
}

// ServeHTTP is the SSE endpoint handler (GET /api/events).
func (b *Broker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			_, _ = w.Write(msg)
			flusher.Flush()
		}
	}
}
