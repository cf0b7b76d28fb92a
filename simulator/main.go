// Command simulator plays a synthetic market day against an in-process
// aggregator, grid operator and balance party. It exists to exercise
// the message engine under volume and fault injection without a broker
// or counterpart deployment.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"time"
)

func main() {
	cfg := parseFlags()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	m, err := newMarket(cfg)
	if err != nil {
		log.Fatalf("build market: %v", err)
	}
	defer m.close()

	report := func(string, ...any) {}
	if cfg.Verbose {
		report = func(format string, args ...any) {
			fmt.Fprintf(os.Stdout, format+"\n", args...)
		}
	}

	start := time.Now()
	if err := m.playDay(report); err != nil {
		log.Fatalf("simulation: %v", err)
	}

	fmt.Printf("played %d groups x %d conversations in %s\n",
		cfg.Groups, cfg.Conversations, time.Since(start).Round(time.Millisecond))
	fmt.Printf("sent %d, acknowledged %d, unacknowledged %d, wrong claims injected %d\n",
		m.sent, m.acked, m.escalated, m.disputed)
}

func parseFlags() Config {
	var cfg Config
	flag.IntVar(&cfg.Groups, "groups", 3, "connection groups to play")
	flag.IntVar(&cfg.Conversations, "conversations", 10, "request/order conversations per group")
	flag.Float64Var(&cfg.DisputeRate, "dispute-rate", 0.1, "fraction of settlement claims sent wrong")
	flag.Float64Var(&cfg.DropRate, "drop-rate", 0, "fraction of deliveries lost in transit")
	flag.Int64Var(&cfg.Seed, "seed", time.Now().UnixNano(), "random seed")
	flag.BoolVar(&cfg.Verbose, "verbose", false, "print every conversation")
	flag.Parse()
	return cfg
}
