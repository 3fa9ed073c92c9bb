package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/terravale/api/internal/reconciler"
)

func main() {
	url := flag.String("url", "http://localhost:3009", "server base URL")
	name := flag.String("name", "reconciler", "dev login player name")
	debug := flag.Bool("debug", false, "enable debug logging")
	flag.Parse()

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"})
	if *debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sig
		log.Info().Msg("Received shutdown signal")
		cancel()
	}()

	client := reconciler.NewClient(*name, *url)
	if err := client.Login(); err != nil {
		log.Fatal().Err(err).Msg("Login failed")
	}
	if err := client.ConnectWS(); err != nil {
		log.Fatal().Err(err).Msg("WebSocket connect failed")
	}
	defer client.CloseWS()

	villages, err := client.ListVillages()
	if err != nil {
		log.Fatal().Err(err).Msg("Listing villages failed")
	}
	for _, v := range villages {
		if err := client.SubscribeVillage(v.ID); err != nil {
			log.Warn().Err(err).Str("villageId", v.ID).Msg("Subscribe failed")
		}
	}

	rec := reconciler.New(client)
	if err := rec.Run(ctx, client.Events()); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatal().Err(err).Msg("Reconciler failed")
	}
	log.Info().Msg("Reconciler stopped")
}
