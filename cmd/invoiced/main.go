package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"math/big"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"invoicechain/config"
	"invoicechain/core/events"
	"invoicechain/core/state"
	"invoicechain/crypto"
	"invoicechain/native/invoice"
	"invoicechain/native/registry"
	"invoicechain/observability/logging"
	"invoicechain/rpc"
	"invoicechain/storage"
)

func main() {
	configPath := flag.String("config", "./config.toml", "path to the TOML configuration file")
	env := flag.String("env", "", "environment tag added to every log line")
	flag.Parse()

	log := logging.Setup("invoiced", *env)

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Error("load config", "error", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		log.Error("validate config", "error", err)
		os.Exit(1)
	}
	admin, _ := cfg.Admin()
	factoryAddr, _ := cfg.Factory()
	wrappedNative, _ := cfg.WrappedNative()

	db, err := storage.NewLevelDB(filepath.Join(cfg.DataDir, "db"))
	if err != nil {
		log.Error("open database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	manager := state.NewManager(db)
	if err := seedGenesis(cfg, manager); err != nil {
		log.Error("seed genesis balances", "error", err)
		os.Exit(1)
	}

	buffer := events.NewMemoryEmitter()
	pauses := cfg.Pauses()

	invoices := invoice.NewEngine()
	invoices.SetState(manager)
	invoices.SetRateSource(manager)
	invoices.SetDisputeAllocator(manager)
	invoices.SetEmitter(buffer)
	invoices.SetPauses(pauses)

	factory, err := registry.NewEngine(factoryAddr, admin, wrappedNative, invoices)
	if err != nil {
		log.Error("construct factory", "error", err)
		os.Exit(1)
	}
	factory.SetState(manager)
	factory.SetEmitter(buffer)
	factory.SetPauses(pauses)

	server := rpc.NewServer(cfg.RPCAddress, invoices, factory, buffer, log)

	errCh := make(chan error, 1)
	go func() {
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
	case err := <-errCh:
		log.Error("rpc server failed", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("shutdown", "error", err)
	}
	log.Info("stopped")
}

// seedGenesis credits the configured token balances once per store so local
// deployments start with funded accounts. A marker key makes the step
// idempotent across daemon restarts.
func seedGenesis(cfg *config.Config, manager *state.Manager) error {
	if len(cfg.GenesisTokens) == 0 {
		return nil
	}
	seeded, err := manager.GenesisSeeded()
	if err != nil {
		return err
	}
	if seeded {
		return nil
	}
	token, err := cfg.WrappedNative()
	if err != nil {
		return err
	}
	for holder, amount := range cfg.GenesisTokens {
		decoded, err := crypto.DecodeAddress(holder)
		if err != nil {
			return fmt.Errorf("genesis holder %s: %w", holder, err)
		}
		var addr [20]byte
		copy(addr[:], decoded.Bytes())
		value, ok := new(big.Int).SetString(amount, 10)
		if !ok || value.Sign() < 0 {
			return fmt.Errorf("genesis amount for %s: %q", holder, amount)
		}
		if err := manager.TokenMint(token, addr, value); err != nil {
			return err
		}
	}
	return manager.MarkGenesisSeeded()
}
