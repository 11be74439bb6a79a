// Command bench drives load through the real client package against a running
// server: a generator feeds a worker pool, each worker holds one session per
// room, and a collector records per-send latency to CSV.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"math"
	"sync"
	"time"

	"go.uber.org/zap"

	"spotchat/client"
)

const (
	joinWait       = 5 * time.Second
	retryBase      = 100 * time.Millisecond
	maxSendRetries = 5
)

func main() {
	host := flag.String("host", "localhost:8080", "Server host:port")
	workers := flag.Int("workers", 32, "Number of worker goroutines")
	totalMessages := flag.Int("messages", 500000, "Total number of messages to send")
	rooms := flag.Int("rooms", 20, "Number of distinct rooms to spread load over")
	out := flag.String("out", "results.csv", "CSV output path")
	flag.Parse()

	fmt.Printf("Starting bench with host=%s, workers=%d, messages=%d, rooms=%d\n",
		*host, *workers, *totalMessages, *rooms)

	fmt.Println("\n--- Starting Warmup Phase ---")
	runWarmup(*host, 8, 100)
	fmt.Println("--- Warmup Complete ---")

	fmt.Println("\n--- Starting Main Phase ---")

	collector, err := NewCollector(*out)
	if err != nil {
		log.Fatalf("Failed to create collector: %v", err)
	}
	collector.Start()

	gen := NewGenerator(*totalMessages, *rooms, 10000)
	go gen.Run()

	p := NewPool(*workers, gen.Output, collector, *host)

	start := time.Now()
	p.Run()
	duration := time.Since(start)

	collector.Close()
	<-collector.Done

	fmt.Println("--- Main Phase Complete ---")
	collector.PrintSummary()
	fmt.Printf("Wall Time: %.2f seconds\n", duration.Seconds())
}

func runWarmup(host string, numWorkers, msgsPerWorker int) {
	var wg sync.WaitGroup
	start := time.Now()

	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()

			ctx, cancel := context.WithTimeout(context.Background(), joinWait)
			defer cancel()
			session, err := client.JoinRoom(ctx, client.Config{URL: "ws://" + host}, "bench-warmup")
			if err != nil {
				log.Printf("Warmup worker %d failed to connect: %v", id, err)
				return
			}
			defer session.Close()
			if !waitJoined(session, joinWait) {
				log.Printf("Warmup worker %d never joined", id)
				return
			}

			for j := 0; j < msgsPerWorker; j++ {
				if err := session.SendMessage("warmup message", nil, ""); err != nil {
					log.Printf("Warmup worker %d failed send: %v", id, err)
					return
				}
			}
		}(i)
	}
	wg.Wait()
	fmt.Printf("Warmup finished in %.2f seconds\n", time.Since(start).Seconds())
}

func waitJoined(s *client.Session, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if s.State() == client.Joined {
			return true
		}
		time.Sleep(10 * time.Millisecond)
	}
	return false
}

type Worker struct {
	ID        int
	Input     <-chan sendRequest
	Collector *Collector
	Host      string
	Sessions  map[string]*client.Session
}

func NewWorker(id int, input <-chan sendRequest, collector *Collector, host string) *Worker {
	return &Worker{
		ID:        id,
		Input:     input,
		Collector: collector,
		Host:      host,
		Sessions:  make(map[string]*client.Session),
	}
}

func (w *Worker) Run(wg *sync.WaitGroup) {
	defer wg.Done()

	for req := range w.Input {
		w.processWithRetry(req)
	}
	for _, s := range w.Sessions {
		s.Close()
	}
}

func (w *Worker) getSession(roomID string) (*client.Session, error) {
	if s, ok := w.Sessions[roomID]; ok {
		return s, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), joinWait)
	defer cancel()
	s, err := client.JoinRoom(ctx, client.Config{
		URL:    "ws://" + w.Host,
		Logger: zap.NewNop(),
	}, roomID)
	if err != nil {
		return nil, err
	}
	if !waitJoined(s, joinWait) {
		s.Close()
		return nil, fmt.Errorf("join %s: handshake timed out", roomID)
	}

	w.Collector.RecordConnection()
	w.Sessions[roomID] = s
	return s, nil
}

func (w *Worker) processWithRetry(req sendRequest) {
	for attempt := 0; attempt <= maxSendRetries; attempt++ {
		start := time.Now()
		err := w.send(req)
		if err == nil {
			w.Collector.Record(Record{
				Timestamp: start,
				Op:        "send_message",
				Latency:   time.Since(start).Milliseconds(),
				Status:    "OK",
				RoomID:    req.RoomID,
			})
			return
		}

		log.Printf("Worker %d: Failed to send (attempt %d/%d): %v", w.ID, attempt+1, maxSendRetries+1, err)

		// drop the session so the next attempt reconnects fresh
		if s, ok := w.Sessions[req.RoomID]; ok {
			s.Close()
			delete(w.Sessions, req.RoomID)
		}

		if attempt == maxSendRetries {
			w.Collector.Record(Record{
				Timestamp: start,
				Op:        "send_message",
				Status:    "ERROR",
				RoomID:    req.RoomID,
			})
		} else {
			w.Collector.RecordRetry()
			time.Sleep(retryBase * time.Duration(math.Pow(2, float64(attempt))))
		}
	}
}

func (w *Worker) send(req sendRequest) error {
	s, err := w.getSession(req.RoomID)
	if err != nil {
		return err
	}
	return s.SendMessage(req.Content, req.Tags, "")
}

type Pool struct {
	NumWorkers int
	Input      <-chan sendRequest
	Collector  *Collector
	Host       string
}

func NewPool(numWorkers int, input <-chan sendRequest, collector *Collector, host string) *Pool {
	return &Pool{
		NumWorkers: numWorkers,
		Input:      input,
		Collector:  collector,
		Host:       host,
	}
}

func (p *Pool) Run() {
	var wg sync.WaitGroup
	for i := 0; i < p.NumWorkers; i++ {
		wg.Add(1)
		worker := NewWorker(i, p.Input, p.Collector, p.Host)
		go worker.Run(&wg)
	}
	wg.Wait()
}
