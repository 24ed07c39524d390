// Command relayer runs the cross-chain fast-bridge relayer: the event
// tracker, transfer executor, pending-tx reconciler, light-client
// height tracker, and unlock worker, plus the admin HTTP/websocket
// surface, all sharing one durable store.
package main

import (
	"context"
	"log"
	"math/big"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/nearbridge/fastbridge-relayer/internal/chain"
	"github.com/nearbridge/fastbridge-relayer/internal/config"
	"github.com/nearbridge/fastbridge-relayer/internal/executor"
	"github.com/nearbridge/fastbridge-relayer/internal/lightclient"
	"github.com/nearbridge/fastbridge-relayer/internal/reconciler"
	"github.com/nearbridge/fastbridge-relayer/internal/server"
	"github.com/nearbridge/fastbridge-relayer/internal/store"
	"github.com/nearbridge/fastbridge-relayer/internal/tracker"
	"github.com/nearbridge/fastbridge-relayer/internal/unlock"
)

func main() {
	log.Println("starting fastbridge relayer")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	s, err := store.NewRedisStore(cfg.StoreURL)
	if err != nil {
		log.Fatalf("failed to connect to store: %v", err)
	}
	defer s.Close()

	dst, err := chain.DialEthClient(cfg.EthRPCURL)
	if err != nil {
		log.Fatalf("failed to dial destination chain RPC: %v", err)
	}

	bootCtx, bootCancel := context.WithTimeout(context.Background(), 30*time.Second)
	chainID, err := dst.NetworkID(bootCtx)
	bootCancel()
	if err != nil {
		log.Fatalf("failed to fetch destination chain id: %v", err)
	}

	signer, err := loadSigner(chainID)
	if err != nil {
		log.Fatalf("failed to load destination-chain signing key: %v", err)
	}

	// The NEAR block stream, light-client viewer, source-chain signer,
	// price oracle, and proof builder are external collaborators out
	// of this repository's scope (spec.md §1, §6): a deployment wires
	// its own concrete NEAR RPC/indexer client, price-oracle HTTP
	// client, and proof-generation helper here.
	collaborators, err := wireExternalCollaborators(cfg)
	if err != nil {
		log.Fatalf("failed to wire external collaborators: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	lcTracker := lightclient.New(collaborators.viewer, cfg.LightClientID, cfg.LightClientPollInterval)

	evTracker := tracker.New(cfg.BridgeContractID, 0, s, collaborators.blocks, cfg.StoreWriteRetryInterval)
	exec := executor.New(cfg, s, dst, collaborators.prices, signer, common.HexToAddress(cfg.EthBridgeProxy))
	recon := reconciler.New(cfg, s, dst, collaborators.proofs)
	unlockWorker := unlock.New(cfg, s, collaborators.signer, lcTracker)

	adminServer := server.New(cfg, s, lcTracker)

	components := []struct {
		name string
		run  func(context.Context) error
	}{
		{"light_client", lcTracker.Run},
		{"event_tracker", evTracker.Run},
		{"executor", exec.Run},
		{"reconciler", recon.Run},
		{"unlock", unlockWorker.Run},
	}

	for _, c := range components {
		c := c
		go func() {
			if err := c.run(ctx); err != nil {
				log.Printf("%s stopped: %v", c.name, err)
			}
		}()
	}

	go func() {
		if err := adminServer.Start(); err != nil {
			log.Printf("admin server stopped: %v", err)
		}
	}()

	go broadcastStatusLoop(ctx, adminServer)

	log.Printf("relayer running, admin surface on %s:%s", cfg.ServerHost, cfg.ServerPort)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Println("shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := adminServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("admin server shutdown error: %v", err)
	}
	cancel()
	time.Sleep(time.Second)
	log.Println("shutdown complete")
}

func broadcastStatusLoop(ctx context.Context, s *server.Server) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.BroadcastStatus(ctx)
		}
	}
}

func loadSigner(chainID *big.Int) (chain.TxSigner, error) {
	hexKey := os.Getenv("ETH_PRIVATE_KEY")
	key, err := crypto.HexToECDSA(hexKey)
	if err != nil {
		return nil, err
	}
	return chain.NewECDSASigner(key, chainID), nil
}
