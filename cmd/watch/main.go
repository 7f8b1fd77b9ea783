package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"cryptopulse/config"
	"cryptopulse/logger"
	"cryptopulse/pkg/engineclient"

	"go.uber.org/zap"
)

func main() {
	url := flag.String("url", "ws://localhost:8080/ws", "engine websocket endpoint")
	symbols := flag.String("symbols", "", "comma separated symbols to subscribe to (default: all tracked)")
	only := flag.String("types", "", "comma separated message types to print (default: all)")
	retry := flag.Duration("retry", 3*time.Second, "delay between reconnect attempts")
	flag.Parse()

	log, err := logger.New(config.LogConfig{Level: "info", Format: "console", Environment: "dev"})
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	filter := make(map[string]bool)
	for _, t := range splitList(*only) {
		filter[t] = true
	}

	client := engineclient.NewClient(*url, log)
	client.SetRetryDelay(*retry)
	client.SetMessageHandler(func(m engineclient.Message) {
		if len(filter) > 0 && !filter[m.Type] {
			return
		}
		fmt.Println(string(m.Raw))
	})

	if err := client.Connect(ctx); err != nil {
		log.Fatal("failed to connect", zap.Error(err))
	}
	for _, sym := range splitList(*symbols) {
		if err := client.Subscribe(sym); err != nil {
			log.Fatal("failed to subscribe", zap.String("symbol", sym), zap.Error(err))
		}
	}

	client.Listen(ctx)
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
