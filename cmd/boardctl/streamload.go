package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

const maxReconnectBackoff = 5 * time.Second

type loadStats struct {
	attempts atomic.Uint64
	failures atomic.Uint64
	events   atomic.Uint64
}

func (s *loadStats) failureRate() float64 {
	a := s.attempts.Load()
	if a == 0 {
		return 0
	}
	return float64(s.failures.Load()) / float64(a)
}

// runStreamLoad holds conns board streams open until ctx is done,
// reconnecting with backoff, and counts received events.
func runStreamLoad(ctx context.Context, client *http.Client, url, token string, conns int) *loadStats {
	stats := &loadStats{}
	var wg sync.WaitGroup
	for i := 0; i < conns; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			backoff := time.Second
			for ctx.Err() == nil {
				stats.attempts.Add(1)
				err := consumeStream(ctx, client, url, token, stats)
				if ctx.Err() != nil {
					return
				}
				if err != nil {
					log.WithError(err).Debug("stream attempt failed")
				}
				stats.failures.Add(1)
				select {
				case <-ctx.Done():
					return
				case <-time.After(backoff):
				}
				backoff = min(backoff*2, maxReconnectBackoff)
			}
		}()
	}
	wg.Wait()
	return stats
}

func consumeStream(ctx context.Context, client *http.Client, url, token string, stats *loadStats) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 64<<10), 4<<20)
	for scanner.Scan() {
		if strings.HasPrefix(scanner.Text(), "data:") {
			stats.events.Add(1)
		}
	}
	if err := scanner.Err(); err != nil {
		return err
	}
	return errors.New("stream closed by server")
}

func streamLoadCmd() *cobra.Command {
	var (
		url         string
		token       string
		conns       int
		duration    time.Duration
		maxFailRate float64
	)
	cmd := &cobra.Command{
		Use:   "stream-load",
		Short: "Hold many live board streams open and report event throughput",
		RunE: func(cmd *cobra.Command, args []string) error {
			if conns < 1 {
				return errors.New("connections must be at least 1")
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), duration)
			defer cancel()

			stats := runStreamLoad(ctx, &http.Client{}, url, token, conns)
			rate := stats.failureRate()
			fmt.Fprintf(cmd.OutOrStdout(), "connections=%d attempts=%d failures=%d events=%d failure_rate=%.3f\n",
				conns, stats.attempts.Load(), stats.failures.Load(), stats.events.Load(), rate)
			if stats.events.Load() == 0 {
				return errors.New("no events received")
			}
			if rate > maxFailRate {
				return fmt.Errorf("failure rate %.3f above %.3f", rate, maxFailRate)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&url, "url", "http://localhost:8080/api/stream", "stream endpoint")
	cmd.Flags().StringVar(&token, "token", "", "bearer token")
	cmd.Flags().IntVarP(&conns, "connections", "c", 200, "concurrent streams")
	cmd.Flags().DurationVarP(&duration, "duration", "d", 2*time.Minute, "test length")
	cmd.Flags().Float64Var(&maxFailRate, "max-failure-rate", 0.05, "fail when reconnects exceed this share of attempts")
	return cmd
}
