// Command heartbeatd runs one heartbeat cycle end to end: load risk and
// data-source configuration, wire every collaborator (oracle adapters,
// the swap executor, the isolated signer, the bead chain), and invoke
// orchestrator.RunHeartbeat. It is a cron-invoked, single-cycle binary
// by default per spec.md section 2's scheduling model; -daemon opts
// into a foreground loop ticking one cycle per configured cycle budget,
// which is also what keeps the debug HTTP surface alive across cycles.
package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"chadboar/heartbeat-core/approvals"
	"chadboar/heartbeat-core/beadchain"
	"chadboar/heartbeat-core/config"
	"chadboar/heartbeat-core/crypto"
	"chadboar/heartbeat-core/datasource"
	"chadboar/heartbeat-core/executor"
	"chadboar/heartbeat-core/guards"
	"chadboar/heartbeat-core/observability/logging"
	telemetry "chadboar/heartbeat-core/observability/otel"
	"chadboar/heartbeat-core/orchestrator"
	"chadboar/heartbeat-core/signer"
	"chadboar/heartbeat-core/state"
)

// codeHash identifies the running binary in every bead attestation; set
// at build time via -ldflags "-X main.codeHash=...". Left at its
// default, every bead simply attests to an unversioned dev build.
var codeHash = "dev"

func main() {
	var (
		riskConfigPath       = flag.String("risk-config", "heartbeat-risk.yaml", "path to the risk configuration")
		dataConfigPath       = flag.String("datasource-config", "heartbeat-datasources.yaml", "path to the data-source configuration")
		attesterKeystorePath = flag.String("attester-keystore", "heartbeat-attester.keystore", "path to the attester key's encrypted keystore")
		attesterPassEnv      = flag.String("attester-passphrase-env", "HEARTBEAT_ATTESTER_PASSPHRASE", "environment variable holding the attester keystore passphrase")
		payerPublicKey       = flag.String("payer-pubkey", "", "the trading wallet's public key, used as the swap fee payer")
		debugListenAddr      = flag.String("debug-listen", "127.0.0.1:9477", "listen address for the debug HTTP surface")
		approvalJWTSecretEnv = flag.String("approval-jwt-secret-env", "HEARTBEAT_APPROVAL_JWT_SECRET", "environment variable holding the approval channel's HMAC signing secret")
		logFilePath          = flag.String("log-file", "", "optional path for a rotated file log sink, in addition to stdout")
		daemon               = flag.Bool("daemon", false, "run continuously, ticking one cycle per cycle_budget interval, instead of exiting after a single cycle")
	)
	flag.Parse()

	env := strings.TrimSpace(os.Getenv("HEARTBEAT_ENV"))
	slogger := logging.Setup("heartbeatd", env, *logFilePath)

	shutdownTelemetry, err := telemetry.Init(context.Background(), telemetry.Config{
		ServiceName: "heartbeatd",
		Environment: env,
	})
	if err != nil {
		slogger.Error("failed to initialise telemetry", "error", err)
		os.Exit(1)
	}
	defer func() {
		if shutdownTelemetry != nil {
			_ = shutdownTelemetry(context.Background())
		}
	}()

	riskCfg, err := config.LoadRisk(*riskConfigPath)
	if err != nil {
		slogger.Error("load risk config", "error", err)
		os.Exit(1)
	}
	dataCfg, err := config.LoadDataSources(*dataConfigPath)
	if err != nil {
		slogger.Error("load datasource config", "error", err)
		os.Exit(1)
	}

	if _, err := state.Init(riskCfg.StatePath, riskCfg.StartingBalanceSOL, time.Now()); err != nil {
		slogger.Error("initialize portfolio state", "error", err)
		os.Exit(1)
	}

	attesterKey, err := loadOrCreateAttesterKey(*attesterKeystorePath, os.Getenv(*attesterPassEnv))
	if err != nil {
		slogger.Error("load attester key", "error", err)
		os.Exit(1)
	}

	store, err := beadchain.Open(riskCfg.BeadDBPath, attesterKey, codeHash)
	if err != nil {
		slogger.Error("open bead store", "error", err)
		os.Exit(1)
	}
	defer store.Close()

	sources := datasource.NewSources(*dataCfg)

	rpcChain := make([]executor.RPCEndpoint, 0, len(dataCfg.RPCChain))
	for _, ep := range dataCfg.RPCChain {
		rpcChain = append(rpcChain, executor.NewRPCClient(ep))
	}
	quoter := executor.NewJupiterQuoter(dataCfg.Quoter, strings.TrimSpace(*payerPublicKey))
	signerClient := signer.NewSubprocess(riskCfg.SignerBinaryPath, riskCfg.SignerKeyPath, filepath.Dir(riskCfg.StatePath))
	swapExecutor := executor.New(quoter, signerClient, rpcChain)

	approvalGate := approvals.NewStore()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	solUSDPrice, err := fetchSolUSDPrice(ctx, sources)
	if err != nil {
		slogger.Warn("fetch sol/usd price failed; every auto-execute candidate will require human gate until the next successful fetch", "error", err)
	}

	deps := orchestrator.Dependencies{
		Sources:      sources,
		Executor:     swapExecutor,
		BeadStore:    store,
		AttesterPub:  &attesterKey.PublicKey,
		ApprovalGate: approvalGate,
		Guards: guards.Dependencies{
			ZombieGateway: zombieGatewayChecker(rpcChain),
			VerifyChain:   store.VerifyChain,
			AttesterPub:   &attesterKey.PublicKey,
		},
		DiscoverCandidates: discoverCandidates(sources),
		StatePath:          riskCfg.StatePath,
		LatestMDPath:       riskCfg.LatestMDPath,
		ShadowFieldPath:    shadowFieldPath(riskCfg.BeadDBPath),
		SolUSDPrice:        solUSDPrice,
	}

	health := &healthState{}
	jwtSecret := []byte(os.Getenv(*approvalJWTSecretEnv))
	debugServer := &http.Server{Addr: *debugListenAddr, Handler: newDebugRouter(health, approvalGate, jwtSecret)}

	listener, err := net.Listen("tcp", *debugListenAddr)
	if err != nil {
		slogger.Error("listen on debug address", "error", err)
		os.Exit(1)
	}
	go func() {
		slogger.Info("debug HTTP surface listening", "addr", listener.Addr().String())
		if serveErr := debugServer.Serve(listener); serveErr != nil && serveErr != http.ErrServerClosed {
			slogger.Error("debug HTTP server stopped", "error", serveErr)
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = debugServer.Shutdown(shutdownCtx)
	}()

	cycleNumber := loadCycleNumber(store)

	runOnce := func() {
		cycleNumber++
		result, err := orchestrator.RunHeartbeat(ctx, time.Now(), cycleNumber, riskCfg, deps)
		if err != nil {
			slogger.Error("heartbeat cycle failed to initialize", "error", err, "cycle", cycleNumber)
			return
		}
		health.set(time.Now(), result.Halted, result.HaltReason)
		fmt.Fprint(os.Stdout, result.Report)
		slogger.Info("heartbeat cycle complete",
			"cycle", cycleNumber,
			"halted", result.Halted,
			"observe_only", result.ObserveOnly,
			"exits_fired", result.ExitsFired,
			"auto_executions", result.AutoExecutions,
			"errors", len(result.Errors),
		)
	}

	if !*daemon {
		runOnce()
		return
	}

	runOnce()
	ticker := time.NewTicker(riskCfg.CycleBudget)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			runOnce()
		}
	}
}

// loadOrCreateAttesterKey opens the attester keystore, bootstrapping a
// fresh P-256 identity and persisting it encrypted-at-rest on first run,
// mirroring config.LoadRisk's create-on-first-run pattern.
func loadOrCreateAttesterKey(path, passphrase string) (*crypto.AttesterKey, error) {
	if _, err := os.Stat(path); err == nil {
		return crypto.LoadFromKeystore(path, passphrase)
	}
	key, err := crypto.GenerateAttesterKey()
	if err != nil {
		return nil, err
	}
	if err := crypto.SaveToKeystore(path, key, passphrase); err != nil {
		return nil, err
	}
	return key, nil
}

// loadCycleNumber derives the next cycle's sequence number from the
// count of HEARTBEAT beads already written, so a restarted process
// resumes the same monotonic sequence instead of restarting at 1.
func loadCycleNumber(store *beadchain.Store) int {
	beads, err := store.Query(beadchain.Filter{BeadType: beadchain.BeadHeartbeat})
	if err != nil {
		return 0
	}
	return len(beads)
}

// zombieGatewayChecker probes the primary RPC endpoint's getHealth
// method; an unreachable or erroring primary trips the guard cascade's
// zombie-gateway halt before any oracle fetch or trade is attempted.
func zombieGatewayChecker(rpcChain []executor.RPCEndpoint) guards.ZombieGatewayChecker {
	if len(rpcChain) == 0 {
		return nil
	}
	primary := rpcChain[0]
	return func(ctx context.Context) error {
		var out string
		return primary.Call(ctx, "getHealth", nil, &out)
	}
}

// discoverCandidates lists this cycle's candidate mints from the
// configured pulse (bonding-curve) provider's discovery endpoint.
func discoverCandidates(sources *datasource.Sources) orchestrator.CandidateDiscovery {
	return func(ctx context.Context) ([]string, error) {
		var out struct {
			Mints []string `json:"mints"`
		}
		if err := sources.Pulse.GetJSON(ctx, "/candidates", &out); err != nil {
			return nil, err
		}
		return out.Mints, nil
	}
}

// fetchSolUSDPrice retrieves the current SOL/USD price used to convert
// scorer.Params.PotSOL position sizing into the USD figure
// INV-HUMAN-GATE-100 compares against.
func fetchSolUSDPrice(ctx context.Context, sources *datasource.Sources) (float64, error) {
	var out struct {
		PriceUSD float64 `json:"price_usd"`
	}
	if err := sources.Price.GetJSON(ctx, "/sol-usd", &out); err != nil {
		return 0, err
	}
	return out.PriceUSD, nil
}

// shadowFieldPath derives the Parquet export path as a sibling of the
// bead database file.
func shadowFieldPath(beadDBPath string) string {
	ext := filepath.Ext(beadDBPath)
	return strings.TrimSuffix(beadDBPath, ext) + "-shadow.parquet"
}
