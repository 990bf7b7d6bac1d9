package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"slices"
	"syscall"
	"time"

	"chat-relay/client"
	"chat-relay/domain/chat"
	"chat-relay/domain/event"

	"github.com/Netflix/go-env"
	"github.com/google/uuid"
	"github.com/mama165/sdk-go/logs"
	"github.com/olekukonko/tablewriter"
	"golang.org/x/sync/errgroup"
)

const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
)

// Config drives a short load run against a live relay.
type Config struct {
	ServerURL string        `env:"CHAT_SERVER_URL,default=http://localhost:8080"`
	Pairs     int           `env:"TESTER_PAIRS,default=10"`
	Messages  int           `env:"TESTER_MESSAGES,default=20"`
	Timeout   time.Duration `env:"TESTER_TIMEOUT,default=30s"`
	LogLevel  string        `env:"LOG_LEVEL,default=WARN"`
}

type pairResult struct {
	sent      int
	received  int
	latencies []time.Duration
}

func main() {
	code, err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Tester error: %v\n", err)
	}
	os.Exit(code)
}

// run registers Pairs pairs of throwaway users and has one side of each pair
// send Messages messages, measuring send to receive latency.
func run() (int, error) {
	var config Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return exitConfig, fmt.Errorf("config error: %w", err)
	}
	log := logs.GetLoggerFromString(config.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, config.Timeout)
	defer cancel()

	api := client.NewAPI(config.ServerURL)
	results := make([]pairResult, config.Pairs)
	g, ctx := errgroup.WithContext(ctx)
	for i := range config.Pairs {
		g.Go(func() error {
			result, err := exchange(ctx, api, config, i)
			results[i] = result
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return exitRuntime, err
	}

	var all []time.Duration
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Pair", "Sent", "Received", "p50", "max"})
	for i, r := range results {
		all = append(all, r.latencies...)
		table.Append([]string{fmt.Sprint(i), fmt.Sprint(r.sent), fmt.Sprint(r.received),
			percentile(r.latencies, 50).String(), percentile(r.latencies, 100).String()})
	}
	table.SetFooter([]string{"all", "", fmt.Sprint(len(all)),
		percentile(all, 50).String(), percentile(all, 100).String()})
	table.Render()
	log.Info("Load run finished", "pairs", config.Pairs, "messages", len(all))
	return exitOK, nil
}

func exchange(ctx context.Context, api *client.API, config Config, pair int) (pairResult, error) {
	var result pairResult
	suffix := uuid.NewString()[:8]
	password := "Tester" + suffix + "!1"
	sender, err := api.Register("sender", fmt.Sprintf("sender-%d-%s@load.test", pair, suffix), password)
	if err != nil {
		return result, err
	}
	receiver, err := api.Register("receiver", fmt.Sprintf("receiver-%d-%s@load.test", pair, suffix), password)
	if err != nil {
		return result, err
	}

	log := logs.GetLoggerFromString(config.LogLevel).With("pair", pair)
	from, err := client.Dial(ctx, config.ServerURL, sender.Token, chat.ParticipantID(sender.User.Email), log)
	if err != nil {
		return result, err
	}
	defer from.Close()
	to, err := client.Dial(ctx, config.ServerURL, receiver.Token, chat.ParticipantID(receiver.User.Email), log)
	if err != nil {
		return result, err
	}
	defer to.Close()
	go func() { _ = from.Run(ctx) }()
	go func() { _ = to.Run(ctx) }()
	go func() {
		for range from.Events() {
		}
	}()

	sentAt := make(map[string]time.Time, config.Messages)
	for i := range config.Messages {
		id, err := from.Send(to.Self(), fmt.Sprintf("load message %d", i))
		if err != nil {
			return result, err
		}
		sentAt[id] = time.Now()
		result.sent++
	}

	for result.received < result.sent {
		select {
		case evt, ok := <-to.Events():
			if !ok {
				return result, fmt.Errorf("pair %d: receiver disconnected", pair)
			}
			if msg, isMessage := evt.(*event.ReceiveMessage); isMessage {
				if at, known := sentAt[msg.MessageID]; known {
					result.latencies = append(result.latencies, time.Since(at))
					result.received++
				}
			}
		case <-ctx.Done():
			return result, fmt.Errorf("pair %d: %d/%d received: %w", pair, result.received, result.sent, ctx.Err())
		}
	}
	return result, nil
}

func percentile(values []time.Duration, p int) time.Duration {
	if len(values) == 0 {
		return 0
	}
	sorted := slices.Clone(values)
	slices.Sort(sorted)
	return sorted[(len(sorted)-1)*p/100]
}
