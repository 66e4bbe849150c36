package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/alim08/partner_events/pkg/cache"
	"github.com/alim08/partner_events/pkg/config"
	"github.com/alim08/partner_events/pkg/feed"
	"github.com/alim08/partner_events/pkg/ingest"
	"github.com/alim08/partner_events/pkg/logger"
	"github.com/alim08/partner_events/pkg/models"
	json "github.com/goccy/go-json"
	"go.uber.org/zap"
)

// output is what a one-shot run prints to stdout.
type output struct {
	Report ingest.Report          `json:"report"`
	Events []models.EventSummary `json:"events"`
}

func main() {
	if err := logger.Init(); err != nil {
		panic("logger init: " + err.Error())
	}
	defer logger.Log.Sync()

	window, rest, err := parseWindow(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	cfg, err := config.LoadArgs(rest)
	if err != nil {
		logger.Log.Fatal("failed to load configuration", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, window, os.Stdout); err != nil {
		logger.Log.Error("ingestion failed", zap.Error(err))
		os.Exit(1)
	}
}

// parseWindow consumes -from and -to and returns the remaining arguments
// for the configuration loader.
func parseWindow(args []string) (models.Window, []string, error) {
	var from, to string
	var rest []string
	for i := 0; i < len(args); i++ {
		name, value, hasValue := strings.Cut(strings.TrimLeft(args[i], "-"), "=")
		if !strings.HasPrefix(args[i], "-") || (name != "from" && name != "to") {
			rest = append(rest, args[i])
			continue
		}
		if !hasValue {
			if i+1 >= len(args) {
				return models.Window{}, nil, fmt.Errorf("flag -%s needs a value", name)
			}
			i++
			value = args[i]
		}
		if name == "from" {
			from = value
		} else {
			to = value
		}
	}

	if from == "" || to == "" {
		return models.Window{}, nil, fmt.Errorf("usage: ingest -from <RFC3339> -to <RFC3339> [config flags]")
	}
	start, err := time.Parse(time.RFC3339Nano, from)
	if err != nil {
		return models.Window{}, nil, fmt.Errorf("invalid -from: %w", err)
	}
	end, err := time.Parse(time.RFC3339Nano, to)
	if err != nil {
		return models.Window{}, nil, fmt.Errorf("invalid -to: %w", err)
	}
	w := models.NewWindow(start, end)
	if err := w.Validate(); err != nil {
		return models.Window{}, nil, fmt.Errorf("invalid window %s: %w", w, err)
	}
	return w, rest, nil
}

func run(ctx context.Context, cfg *config.Config, w models.Window, out io.Writer) error {
	eventCache, closeCache, err := cache.NewFromConfig(ctx, cfg)
	if err != nil {
		return fmt.Errorf("init cache: %w", err)
	}
	defer closeCache()

	o := ingest.New(feed.NewFetcher(cfg.FeedURL, cfg.FeedTimeout), eventCache)

	runCtx, cancel := context.WithTimeout(ctx, cfg.RunTimeout)
	defer cancel()
	report, err := o.Run(runCtx, w)
	if err != nil {
		return err
	}

	events, err := eventCache.Query(ctx, w.From, w.To)
	if err != nil {
		return fmt.Errorf("query window %s: %w", w, err)
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(output{Report: report, Events: events})
}
