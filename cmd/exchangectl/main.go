package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	json "github.com/goccy/go-json"
	"github.com/rs/zerolog/log"

	"exchange-core/internal/alert"
	"exchange-core/internal/config"
	"exchange-core/internal/exchange"
	"exchange-core/internal/exchange/registry"
	"exchange-core/internal/logging"
	"exchange-core/internal/metrics"
)

const usage = `usage: exchangectl [flags] <command> [args]

commands:
  markets               list markets
  ticker SYMBOL         fetch a ticker
  book SYMBOL [LIMIT]   fetch an order book
  balance               fetch account balances
  orders [SYMBOL]       fetch open orders
  trades SYMBOL         dump public trades as daily JSONL files
`

func main() {
	var (
		configPath  string
		envPath     string
		metricsAddr string
		outDir      string
		hours       int
		startRaw    string
		endRaw      string
		batch       int
	)
	flag.StringVar(&configPath, "config", "config/config.yaml", "config yaml path")
	flag.StringVar(&envPath, "env", ".env", "dotenv file with credentials")
	flag.StringVar(&metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")
	flag.StringVar(&outDir, "out", "data/trades", "output directory for trades")
	flag.IntVar(&hours, "hours", 24, "trade window length when -start/-end are not set")
	flag.StringVar(&startRaw, "start", "", "trade window start (UTC date or RFC3339)")
	flag.StringVar(&endRaw, "end", "", "trade window end (UTC date or RFC3339)")
	flag.IntVar(&batch, "batch", 500, "trades per request")
	flag.Usage = func() {
		fmt.Fprint(flag.CommandLine.Output(), usage)
		flag.PrintDefaults()
	}
	flag.Parse()
	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	if err := config.LoadDotEnv(envPath); err != nil {
		fatal(err.Error())
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		fatal(err.Error())
	}
	logging.Setup(logging.Config{Level: cfg.Log.Level, Console: cfg.Log.Console})

	alerts := buildAlertManager(cfg)
	var alerter alert.Alerter
	if alerts != nil {
		alerter = alerts
		defer func() {
			closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := alerts.Close(closeCtx); err != nil {
				log.Warn().Err(err).Msg("alert manager close failed")
			}
		}()
	}
	if metricsAddr != "" {
		go serveMetrics(metricsAddr)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client, err := registry.Open(cfg, alerter)
	if err != nil {
		fatal(err.Error())
	}
	defer client.Close()

	args := flag.Args()
	switch args[0] {
	case "markets":
		set, err := client.LoadMarkets(ctx, false)
		if err != nil {
			fatal(err.Error())
		}
		for _, symbol := range set.Symbols() {
			m, _ := set.BySymbol(symbol)
			fmt.Printf("%s id=%s tick=%s step=%s min_amount=%s active=%t\n",
				m.Symbol, m.ID, m.Precision.Price, m.Precision.Amount, m.Limits.Amount.Min, m.Active)
		}
	case "ticker":
		symbol := requireArg(args, 1, "SYMBOL")
		t, err := client.FetchTicker(ctx, symbol)
		if err != nil {
			fatal(err.Error())
		}
		printJSON(os.Stdout, t)
	case "book":
		symbol := requireArg(args, 1, "SYMBOL")
		limit := 0
		if len(args) > 2 {
			if _, err := fmt.Sscanf(args[2], "%d", &limit); err != nil {
				fatal("invalid LIMIT: " + args[2])
			}
		}
		book, err := client.FetchOrderBook(ctx, symbol, limit)
		if err != nil {
			fatal(err.Error())
		}
		printJSON(os.Stdout, book)
	case "balance":
		bal, err := client.FetchBalance(ctx)
		if err != nil {
			fatal(err.Error())
		}
		printJSON(os.Stdout, bal.Assets)
	case "orders":
		symbol := ""
		if len(args) > 1 {
			symbol = args[1]
		}
		orders, err := client.FetchOpenOrders(ctx, symbol)
		if err != nil {
			fatal(err.Error())
		}
		printJSON(os.Stdout, orders)
	case "trades":
		symbol := requireArg(args, 1, "SYMBOL")
		if !client.Has(exchange.OpTrades) {
			fatal(cfg.Adapter + " does not serve public trades")
		}
		start, end, err := resolveWindow(hours, startRaw, endRaw, time.Now())
		if err != nil {
			fatal(err.Error())
		}
		w, err := newDateWriter(outDir)
		if err != nil {
			fatal(err.Error())
		}
		lock, err := acquireDirLock(outDir, symbol, time.Now())
		if err != nil {
			fatal(err.Error())
		}
		n, err := dumpTrades(ctx, client, w, symbol, start, end, batch)
		if closeErr := w.close(); err == nil {
			err = closeErr
		}
		if relErr := lock.release(); relErr != nil {
			log.Warn().Err(relErr).Msg("output lock release failed")
		}
		if err != nil && !errors.Is(err, context.Canceled) {
			fatal(err.Error())
		}
		log.Info().
			Str("symbol", symbol).
			Time("start", start).
			Time("end", end).
			Int("trades", n).
			Str("out", outDir).
			Msg("trade dump finished")
	default:
		flag.Usage()
		fatal("unknown command " + args[0])
	}
}

func requireArg(args []string, i int, name string) string {
	if len(args) <= i || strings.TrimSpace(args[i]) == "" {
		fatal(args[0] + ": missing " + name)
	}
	return strings.TrimSpace(args[i])
}

func printJSON(w io.Writer, v any) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fatal(err.Error())
	}
	fmt.Fprintln(w, string(out))
}

func serveMetrics(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error().Err(err).Str("addr", addr).Msg("metrics server stopped")
	}
}

func fatal(msg string) {
	fmt.Fprintln(os.Stderr, msg)
	os.Exit(1)
}

func buildAlertManager(cfg config.Config) *alert.Manager {
	tg := cfg.Alerts.Telegram
	if !tg.Enabled {
		return nil
	}
	notifier := alert.NewTelegramNotifier(
		tg.Enabled,
		tg.BotToken,
		tg.ChatID,
		tg.APIBaseURL,
		time.Duration(tg.TimeoutSec)*time.Second,
	)
	return alert.NewManagerWithOptions(cfg.Adapter, alert.MaskKey(cfg.Credentials.APIKey), notifier, alert.ManagerOptions{
		QueueSize:          64,
		DropReportInterval: time.Duration(cfg.Alerts.DropReportSec) * time.Second,
		RepeatWindow:       time.Duration(cfg.Alerts.RepeatWindowSec) * time.Second,
	})
}
