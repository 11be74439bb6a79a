package main

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"time"
)

type Record struct {
	Timestamp time.Time
	Op        string
	Latency   int64 // milliseconds
	Status    string
	RoomID    string
}

type Statistics struct {
	TotalMessages    int
	SuccessCount     int
	FailCount        int
	TotalConnections int
	RetryCount       int
	StartTime        time.Time
	EndTime          time.Time
}

// Collector drains measurement records on a single goroutine and appends them
// to a CSV file while accumulating summary statistics.
type Collector struct {
	records chan Record
	Done    chan struct{}
	Stats   Statistics

	file   *os.File
	writer *csv.Writer
}

func NewCollector(path string) (*Collector, error) {
	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", path, err)
	}
	writer := csv.NewWriter(file)
	if err := writer.Write([]string{"timestamp", "op", "latency_ms", "status", "room_id"}); err != nil {
		file.Close()
		return nil, err
	}
	return &Collector{
		records: make(chan Record, 10000),
		Done:    make(chan struct{}),
		file:    file,
		writer:  writer,
	}, nil
}

func (c *Collector) Record(r Record) {
	c.records <- r
}

func (c *Collector) RecordConnection() {
	c.records <- Record{Status: "CONN_NEW"}
}

func (c *Collector) RecordRetry() {
	c.records <- Record{Status: "RETRY"}
}

func (c *Collector) Start() {
	c.Stats.StartTime = time.Now()
	go func() {
		for r := range c.records {
			if r.Status == "CONN_NEW" {
				c.Stats.TotalConnections++
				continue
			}
			if r.Status == "RETRY" {
				c.Stats.RetryCount++
				continue
			}

			c.Stats.TotalMessages++
			if r.Status == "OK" {
				c.Stats.SuccessCount++
			} else {
				c.Stats.FailCount++
			}

			c.writer.Write([]string{
				r.Timestamp.Format(time.RFC3339Nano),
				r.Op,
				strconv.FormatInt(r.Latency, 10),
				r.Status,
				r.RoomID,
			})
		}
		c.Stats.EndTime = time.Now()
		c.writer.Flush()
		c.file.Close()
		close(c.Done)
	}()
}

func (c *Collector) Close() {
	close(c.records)
}

func (c *Collector) PrintSummary() {
	duration := c.Stats.EndTime.Sub(c.Stats.StartTime).Seconds()
	throughput := float64(c.Stats.SuccessCount) / duration

	fmt.Println("========= Bench Results =========")
	fmt.Printf("Total Duration: %.2f seconds\n", duration)
	fmt.Printf("Total Messages: %d\n", c.Stats.TotalMessages)
	fmt.Printf("Successful: %d\n", c.Stats.SuccessCount)
	fmt.Printf("Failed: %d\n", c.Stats.FailCount)
	fmt.Printf("Throughput: %.2f msg/sec\n", throughput)
	fmt.Printf("Total Connections: %d\n", c.Stats.TotalConnections)
	fmt.Printf("Total Retries: %d\n", c.Stats.RetryCount)
	fmt.Println("=================================")
}
