package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"terrainstream/internal/config"
	"terrainstream/internal/server"
)

func main() {
	var (
		cfgPath string
		listen  string
		preview string
	)
	flag.StringVar(&cfgPath, "config", "", "path to terrain stream configuration file (JSON or YAML)")
	flag.StringVar(&listen, "listen", "", "override stream.listenAddr")
	flag.StringVar(&preview, "preview", "", "write an LOD preview PNG here on shutdown")
	flag.Parse()

	cfg, fromEnv, err := configFromEnv(cfgPath)
	if err != nil {
		log.Fatalf("environment config: %v", err)
	}
	if !fromEnv {
		cfg, err = config.Load(cfgPath)
		if err != nil {
			log.Fatalf("load config: %v", err)
		}
	}
	if listen != "" {
		cfg.Stream.ListenAddr = listen
	}
	if preview != "" {
		cfg.Stream.PreviewPath = preview
	}

	srv, err := server.New(cfg, nil)
	if err != nil {
		log.Fatalf("initialise terrain stream: %v", err)
	}

	ctx, cancel := signalContext()
	defer cancel()

	if err := srv.Run(ctx); err != nil {
		log.Fatalf("server exited with error: %v", err)
	}
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		defer signal.Stop(signals)
		select {
		case <-signals:
			cancel()
		case <-ctx.Done():
		}

		// Exit even if a build or a client write refuses to stop.
		time.AfterFunc(10*time.Second, func() {
			log.Printf("forced shutdown after timeout")
			os.Exit(1)
		})
	}()

	return ctx, cancel
}
