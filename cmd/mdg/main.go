// Command mdg serves synthetic market data over websocket for bench
// and integration runs against the trader.
package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gorilla/websocket"
	"github.com/yanun0323/logs"

	"main/internal/feed"
	"main/internal/ops"
	"main/internal/schema"
)

func main() {
	configPath := flag.String("config", "config.json", "Path to JSON config (instrument registry)")
	listenAddr := flag.String("listen", ":8899", "Websocket listen address")
	interval := flag.Duration("interval", 50*time.Millisecond, "Quote publish interval")
	basePrice := flag.Int64("base-price", 1_000_000, "Starting mid price, scaled units")
	seed := flag.Int64("seed", 0, "Random walk seed (0=time)")
	flag.Parse()

	registry, err := ops.LoadRegistry(*configPath)
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}
	generator, err := feed.NewGenerator(feed.GeneratorConfig{
		BasePrice: schema.Price(*basePrice),
		Seed:      *seed,
	}, registry)
	if err != nil {
		log.Fatalf("generator init failed: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	hub := newHub()
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
		CheckOrigin:     func(*http.Request) bool { return true },
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/md", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logs.Warnf("upgrade failed: %+v", err)
			return
		}
		hub.add(conn)
		logs.Infof("subscriber connected from %s", conn.RemoteAddr())
	})

	server := &http.Server{Addr: *listenAddr, Handler: mux}
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen failed: %v", err)
		}
	}()

	logs.Infof("mdg up on %s, %d instruments, interval %s",
		*listenAddr, registry.InstrumentCount(), *interval)

	ticker := time.NewTicker(*interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			logs.Infof("mdg shutting down")
			hub.closeAll()
			server.Close()
			return
		case now := <-ticker.C:
			inst, quote := generator.Next(now)
			payload, err := sonic.Marshal(feed.Encode(inst, quote))
			if err != nil {
				logs.Errorf("encode quote: %+v", err)
				continue
			}
			hub.broadcast(payload)
		}
	}
}

// hub fans one quote stream out to every connected subscriber.
// Writes happen from the ticker goroutine only.
type hub struct {
	mu    sync.Mutex
	conns map[*websocket.Conn]struct{}
}

func newHub() *hub {
	return &hub{conns: make(map[*websocket.Conn]struct{})}
}

func (h *hub) add(conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.conns[conn] = struct{}{}
}

func (h *hub) broadcast(payload []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for conn := range h.conns {
		conn.SetWriteDeadline(time.Now().Add(2 * time.Second))
		if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			logs.Warnf("subscriber dropped: %+v", err)
			conn.Close()
			delete(h.conns, conn)
		}
	}
}

func (h *hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for conn := range h.conns {
		conn.Close()
		delete(h.conns, conn)
	}
}
