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

	"github.com/joho/godotenv"

	"bybitflow/config"
	"bybitflow/internal/dispatch"
	"bybitflow/logger"
	"bybitflow/models"
	"bybitflow/processor"
	"bybitflow/reader/bybit"
)

func main() {
	log := logger.GetLogger()

	// Load environment variables from .env if present
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.WithError(err).Warn("Error loading .env file")
	}

	configPath := flag.String("config", "config/config.yml", "Path to configuration file")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.WithError(err).Error("Failed to load configuration")
		os.Exit(1)
	}

	if err := log.Configure(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output, cfg.Logging.MaxAge); err != nil {
		log.WithError(err).Error("Failed to configure logger")
		os.Exit(1)
	}

	log.WithFields(logger.Fields{
		"service": cfg.Bybitflow.Name,
		"version": cfg.Bybitflow.Version,
		"symbol":  cfg.Stream.Symbol,
		"testnet": cfg.Stream.Testnet,
	}).Info("starting bybitflow")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.Logging.ReportInterval > 0 {
		logger.StartReport(ctx, log, cfg.Logging.ReportInterval)
	}

	apiKey, apiSecret := config.Credentials()
	if cfg.Stream.HasPrivateChannel() && (apiKey == "" || apiSecret == "") {
		log.Warn("private channels subscribed without credentials, authentication will be rejected")
	}

	rec := processor.New(log, cfg.Stream.Symbol, cfg.Stream.KlinePeriod)
	queue := dispatch.New(log, cfg.Dispatch.Buffer, buildHandlers(log, cfg.Consumer.Topics))
	session := bybit.NewSession(log, cfg.Stream, apiKey, apiSecret, rec, queue)
	queue.Bind(session)
	queue.Start(ctx)

	if err := session.Start(ctx); err != nil {
		if errors.Is(err, bybit.ErrReadyTimeout) {
			log.WithError(err).Error("stream did not become ready")
		} else {
			log.WithError(err).Error("session start failed")
		}
		session.Stop()
		queue.Stop()
		os.Exit(1)
	}

	go handleShutdown(cancel, log)

	if cfg.Stream.ReconnectAfter > 0 {
		go staleWatchdog(ctx, session, cfg.Stream.ReconnectAfter, log)
	}

	printLoop(ctx, session, cfg.Consumer.PrintInterval)

	session.Stop()
	queue.Stop()
	log.Info("bybitflow stopped")
}

// buildHandlers registers a logging callback for every topic enabled in the
// consumer config. Human-readable notification formatting and outbound
// alerting live outside this binary; these callbacks only exercise the
// dispatch surface.
func buildHandlers(log *logger.Log, topics []string) map[models.Topic]dispatch.Handler[*bybit.Session] {
	enabled := make(map[string]bool, len(topics))
	for _, t := range topics {
		enabled[t] = true
	}

	handlers := make(map[models.Topic]dispatch.Handler[*bybit.Session])
	for _, topic := range models.Topics() {
		if !enabled[string(topic)] {
			continue
		}
		topic := topic
		handlers[topic] = func(s *bybit.Session, payload interface{}) {
			log.WithComponent("consumer").WithFields(logger.Fields{
				"topic":      topic,
				"last_price": s.LastPrice().String(),
			}).Debug("event received")
		}
	}
	return handlers
}

// printLoop prints the last traded price aligned to interval boundaries, the
// reference consumer's polling behavior.
func printLoop(ctx context.Context, session *bybit.Session, interval time.Duration) {
	if interval <= 0 {
		<-ctx.Done()
		return
	}
	for {
		wait := interval - time.Duration(time.Now().UnixNano())%interval
		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
			now := time.Now().Format("01/02 15:04:05")
			fmt.Printf("[%s] ltp:%s\n", now, session.LastPrice().String())
		}
	}
}

// staleWatchdog forces a reconnect when no public channel has delivered data
// for longer than the configured threshold.
func staleWatchdog(ctx context.Context, session *bybit.Session, threshold time.Duration, log *logger.Log) {
	ticker := time.NewTicker(threshold / 2)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if age, ok := session.Staleness(); ok && age > threshold {
				log.WithComponent("watchdog").WithFields(logger.Fields{"age": age.String()}).Warn("stream stale")
				session.Reconnect()
			}
		}
	}
}

func handleShutdown(cancel context.CancelFunc, log *logger.Log) {
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	received := <-sig
	log.WithFields(logger.Fields{"signal": received.String()}).Info("shutdown signal received")
	cancel()
}
