package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"menuqr/internal/realtime/apiclient"
	"menuqr/internal/realtime/events"
	"menuqr/internal/realtime/gate"
	"menuqr/internal/realtime/listener"
	"menuqr/internal/xpkg/config"
	"menuqr/internal/xpkg/logger"
	"menuqr/internal/xpkg/metrics"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the YAML config file")
	flag.Parse()

	mylog := logger.NewLogger("order-watch")

	cfg, err := config.Load(*configPath)
	if err != nil {
		mylog.Action("config_load_failed").Error("Failed to load config", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, mylog); err != nil && !errors.Is(err, context.Canceled) {
		mylog.Action("watch_failed").Error("Watcher terminated with error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, mylog *logger.Logger) error {
	tier := gate.Tier(cfg.Realtime.Tier)
	if !tier.Valid() {
		return fmt.Errorf("unknown tier %q", cfg.Realtime.Tier)
	}

	view := listener.NewView()
	registry := listener.NewRegistry()
	mets := metrics.NewRegistry()
	client := apiclient.New(cfg.Realtime.APIBaseURL, cfg.Realtime.Token)

	creds := listener.Credentials{
		Token:        cfg.Realtime.Token,
		RestaurantID: cfg.Realtime.RestaurantID,
	}
	transport := listener.NewAMQPTransport(&cfg.RabbitMQ, mylog)
	manager := listener.NewManager(transport, registry, tier, creds,
		time.Duration(cfg.Realtime.RetryDelaySeconds)*time.Second,
		cfg.Realtime.MaxAttempts, mets, mylog)
	defer manager.Close()

	for _, event := range []string{events.OrderCreated, events.OrderUpdated, events.ItemUpdated, events.OrderReady} {
		sub := registry.Subscribe(event, func(e events.Envelope) {
			view.Apply(e)
			fmt.Printf("[%s] order %s -> %s (%d%%)\n",
				e.Event, e.Order.Number, e.Order.State, e.Order.State.Progress())
		})
		defer sub.Close()
	}

	// Every connection, initial or recovered, starts from a full fetch; the
	// channel carries no history, so events missed during an outage only reach
	// the view through this reconciliation.
	manager.OnConnect(func() {
		orders, err := client.ListOrders(ctx, cfg.Realtime.RestaurantID)
		if err != nil {
			mylog.Action("reconcile_fetch_failed").Error("Failed to fetch order list after connect", err)
			return
		}
		view.Reconcile(orders)
		mylog.Action("reconciled").Debug(fmt.Sprintf("Reconciled %d orders after connect", len(orders)))
	})

	switch err := manager.Connect(ctx); {
	case err == nil:
		mylog.Action("live_mode").Info("Receiving live updates")
	case errors.Is(err, listener.ErrTierNotEligible):
		mylog.Action("poll_mode").Info("Tier has no live channel, polling instead")
	case errors.Is(err, listener.ErrNoCredentials):
		return err
	case errors.Is(err, listener.ErrRetriesExhausted):
		mylog.Action("poll_mode").Warn("Live channel unavailable, polling until explicit reconnect")
	default:
		return err
	}

	// Sessions without a live channel still need an initial snapshot.
	if !manager.Connected() {
		if orders, err := client.ListOrders(ctx, cfg.Realtime.RestaurantID); err != nil {
			mylog.Action("initial_fetch_failed").Error("Failed to fetch initial order list", err)
		} else {
			view.Reconcile(orders)
		}
	}

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		ticker := time.NewTicker(time.Duration(cfg.Realtime.PollIntervalSeconds) * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-gCtx.Done():
				return gCtx.Err()
			case <-ticker.C:
				if manager.Connected() {
					continue
				}
				orders, err := client.ListOrders(gCtx, cfg.Realtime.RestaurantID)
				if err != nil {
					mylog.Action("poll_failed").Error("Failed to refresh order list", err)
					continue
				}
				view.Reconcile(orders)
				mylog.Action("poll_reconciled").Debug(fmt.Sprintf("Reconciled %d orders", len(orders)))
			}
		}
	})
	return g.Wait()
}
