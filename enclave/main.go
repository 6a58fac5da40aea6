package main

import (
	"fmt"
	"log"

	"github.com/benbjohnson/clock"
	enclave "github.com/edgebitio/nitro-enclaves-sdk-go"

	"github.com/cloudx-io/blockauction/auction"
	"github.com/cloudx-io/blockauction/store"
)

// getEnclaveAttester attempts to get the NSM attester, returns an error if
// not available.
func getEnclaveAttester() (auction.Attester, error) {
	handle, err := enclave.GetOrInitializeHandle()
	if err != nil {
		return nil, fmt.Errorf("NSM not available: %w", err)
	}
	return handle, nil
}

func openStore(cfg *Config) (store.Store, error) {
	if cfg.DatabaseURL == "" {
		log.Printf("INFO: DATABASE_URL not set, using in-memory storage")
		return store.NewMemStore(), nil
	}
	log.Printf("INFO: Connecting to postgres")
	return store.NewPostgresStore(cfg.DatabaseURL)
}

func run() error {
	cfg, err := LoadConfig()
	if err != nil {
		return fmt.Errorf("configuration: %w", err)
	}

	attester, err := getEnclaveAttester()
	if err != nil {
		return fmt.Errorf("attestation is mandatory for sealing settlements: %w", err)
	}
	log.Printf("INFO: NSM attester initialized")

	st, err := openStore(cfg)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer func() {
		if err := st.Close(); err != nil {
			log.Printf("ERROR: Failed to close store: %v", err)
		}
	}()

	keys, err := NewKeyManager()
	if err != nil {
		return fmt.Errorf("initializing key manager: %w", err)
	}
	log.Printf("INFO: KeyManager initialized")

	clk := clock.New()
	verifier := auction.Secp256k1Verifier{}
	registry := auction.NewRegistry(st, auction.NewChainRegistry(cfg.ChainConfigs), verifier)
	pool := auction.NewBidPool(st, verifier, clk)
	sealer, err := auction.NewSealer(attester, cfg.AttestTimeout, clk)
	if err != nil {
		return fmt.Errorf("initializing sealer: %w", err)
	}

	engine := auction.NewOrchestrator(registry, pool, sealer, st, clk, cfg.WakeInterval)
	engine.Start()
	defer func() {
		if err := engine.Close(); err != nil {
			log.Printf("ERROR: Failed to stop engine: %v", err)
		}
	}()
	log.Printf("INFO: Auction engine started (%d chains configured)", len(cfg.ChainConfigs))

	server := NewEnclaveServer(cfg, engine, keys, attester)
	return server.Start()
}

func main() {
	log.Fatal(run())
}
