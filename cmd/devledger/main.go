// Command devledger serves the in-memory ledger over the gateway relay
// protocol so the server can run in gateway mode without a real chain.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"zkbadge/internal/ledger/gateway"
	"zkbadge/internal/ledger/memledger"
	"zkbadge/internal/platform/httpserver"
	"zkbadge/internal/platform/logger"
)

func main() {
	addr := flag.String("addr", ":9090", "listen address")
	registryRef := flag.String("registry", "0xregistry", "registry object reference")
	adminCap := flag.String("admin-cap", "0xadmincap", "admin capability object id")
	domains := flag.String("domains", "@university.edu", "comma separated domain patterns to allow")
	latency := flag.Duration("latency", 0, "artificial latency per call")
	flag.Parse()

	log := logger.New(os.Getenv("LOG_LEVEL"), os.Getenv("LOG_FORMAT"))

	mem := memledger.New(*registryRef, *adminCap)
	for _, pattern := range strings.Split(*domains, ",") {
		if pattern = strings.TrimSpace(pattern); pattern != "" {
			mem.SeedDomain(pattern)
		}
	}
	mem.SetLatency(*latency)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info("dev ledger ready", "registry", *registryRef, "admin_cap", *adminCap)
	srv := httpserver.New(*addr, gateway.NewRelayHandler(*registryRef, mem))
	if err := httpserver.Run(ctx, srv, 5*time.Second, log); err != nil {
		log.Error("dev ledger stopped with error", "error", err)
		os.Exit(1)
	}
}
