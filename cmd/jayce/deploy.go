package main

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/sota-zk-labs/jayce/internal/config"
	"github.com/sota-zk-labs/jayce/internal/core/domain"
	"github.com/sota-zk-labs/jayce/internal/core/resolve"
	"github.com/sota-zk-labs/jayce/internal/shell/chain"
	"github.com/sota-zk-labs/jayce/internal/shell/loader"
	"github.com/sota-zk-labs/jayce/internal/shell/orchestrator"
	"github.com/sota-zk-labs/jayce/internal/shell/registry"
	"github.com/sota-zk-labs/jayce/internal/shell/report"
)

// faucetFundAmount is how many octas a throwaway account gets when no
// private key is configured.
const faucetFundAmount = 100_000_000

// deployFlags mirrors the deploy command's flag set, copied into
// config.Overrides only for flags the user actually set.
type deployFlags struct {
	configPath        string
	privateKey        string
	moduleType        string
	network           string
	modulesPath       []string
	addressesName     []string
	deployedAddresses map[string]string
	restURL           string
	faucetURL         string
	publishCode       bool
	outputJSON        string
	failurePolicy     string
	maxAttempts       int
	concurrency       int
	timeout           time.Duration
	registryPath      string
	assumeYes         bool
}

func newDeployCmd() *cobra.Command {
	flags := &deployFlags{}
	return newDeployCmdWith(flags)
}

func newDeployCmdWith(flags *deployFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "deploy",
		Short: "Deploy a set of compiled packages",
		Long: `Deploy loads the configured packages, resolves named addresses
between them, publishes them in dependency order, and writes a JSON report
of the outcome.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDeploy(cmd, flags)
		},
	}

	cmd.Flags().StringVarP(&flags.configPath, "config-path", "c", "", "TOML config file")
	cmd.Flags().StringVar(&flags.privateKey, "private-key", "", "deployer private key, hex (or JAYCE_PRIVATE_KEY)")
	cmd.Flags().StringVar(&flags.moduleType, "module-type", "", "publication mode: object or account")
	cmd.Flags().StringVar(&flags.network, "network", "", "target network: mainnet, testnet, devnet, local")
	cmd.Flags().StringSliceVar(&flags.modulesPath, "modules-path", nil, "package directories to deploy, in order")
	cmd.Flags().StringSliceVar(&flags.addressesName, "addresses-name", nil, "symbolic address name per package, same order")
	cmd.Flags().StringToStringVar(&flags.deployedAddresses, "deployed-addresses", nil, "pre-bound name=address pairs from earlier runs")
	cmd.Flags().StringVar(&flags.restURL, "rest-url", "", "node REST endpoint override")
	cmd.Flags().StringVar(&flags.faucetURL, "faucet-url", "", "faucet endpoint override")
	cmd.Flags().BoolVar(&flags.publishCode, "publish-code", false, "store package source on chain alongside the bytecode")
	cmd.Flags().StringVar(&flags.outputJSON, "output-json", "", "report path")
	cmd.Flags().StringVar(&flags.failurePolicy, "failure-policy", "", "after the first failure: abort or continue")
	cmd.Flags().IntVar(&flags.maxAttempts, "max-attempts", 0, "submission attempts per module")
	cmd.Flags().IntVar(&flags.concurrency, "concurrency", 0, "parallel in-flight modules")
	cmd.Flags().DurationVar(&flags.timeout, "timeout", 0, "whole-run deadline")
	cmd.Flags().StringVar(&flags.registryPath, "registry-path", "", "local deployment registry database")
	cmd.Flags().BoolVarP(&flags.assumeYes, "assume-yes", "y", false, "skip the confirmation prompt")

	return cmd
}

// overridesFromFlags converts set flags into config overrides. Unset flags
// stay nil so the file value or default applies.
func overridesFromFlags(cmd *cobra.Command, flags *deployFlags) config.Overrides {
	var ov config.Overrides

	set := cmd.Flags().Changed
	if set("private-key") {
		ov.PrivateKey = &flags.privateKey
	}
	if set("module-type") {
		ov.ModuleType = &flags.moduleType
	}
	if set("network") {
		ov.Network = &flags.network
	}
	if set("modules-path") {
		ov.ModulesPath = flags.modulesPath
	}
	if set("addresses-name") {
		ov.AddressesName = flags.addressesName
	}
	if set("deployed-addresses") {
		ov.DeployedAddresses = flags.deployedAddresses
	}
	if set("rest-url") {
		ov.RestURL = &flags.restURL
	}
	if set("faucet-url") {
		ov.FaucetURL = &flags.faucetURL
	}
	if set("publish-code") {
		ov.PublishCode = &flags.publishCode
	}
	if set("output-json") {
		ov.OutputJSON = &flags.outputJSON
	}
	if set("failure-policy") {
		ov.FailurePolicy = &flags.failurePolicy
	}
	if set("max-attempts") {
		ov.MaxAttempts = &flags.maxAttempts
	}
	if set("concurrency") {
		ov.Concurrency = &flags.concurrency
	}
	if set("timeout") {
		ov.Timeout = &flags.timeout
	}
	if set("registry-path") {
		ov.RegistryPath = &flags.registryPath
	}
	if set("assume-yes") {
		ov.AssumeYes = &flags.assumeYes
	}
	return ov
}

func runDeploy(cmd *cobra.Command, flags *deployFlags) error {
	cfg, err := config.Load(flags.configPath, overridesFromFlags(cmd, flags))
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		return exitWith(ExitConfigError, err)
	}

	logger := config.SetupLogger(cfg)
	logger.Info("starting deployment",
		"version", Version,
		"network", cfg.Network,
		"module_type", cfg.ModuleType,
		"packages", len(cfg.ModulesPath),
	)

	// Load every package before touching the network. Any load failure is
	// fatal and produces no report.
	modules, err := loader.New(logger).LoadSet(cfg.ModulesPath, cfg.AddressesName)
	if err != nil {
		logger.Error("failed to load packages", "error", err)
		return exitWith(ExitConfigError, err)
	}

	// Pre-bound addresses: explicit configuration wins over the registry.
	preBound, err := cfg.PreBound()
	if err != nil {
		logger.Error("invalid deployed addresses", "error", err)
		return exitWith(ExitConfigError, err)
	}

	var reg *registry.Registry
	if cfg.RegistryPath != "" {
		reg, err = registry.Open(cfg.RegistryPath)
		if err != nil {
			logger.Error("failed to open registry", "error", err, "path", cfg.RegistryPath)
			return exitWith(ExitConfigError, err)
		}
		defer reg.Close()

		recorded, err := reg.Lookup(cmd.Context(), cfg.Network)
		if err != nil {
			logger.Error("failed to read registry", "error", err)
			return exitWith(ExitConfigError, err)
		}
		for name, addr := range recorded {
			if _, ok := preBound[name]; !ok {
				preBound[name] = addr
			}
		}
	}

	res, err := resolve.Resolve(modules, preBound)
	if err != nil {
		logger.Error("address resolution failed", "error", err)
		return exitWith(ExitResolutionError, err)
	}
	logger.Info("resolved deployment plan",
		"to_publish", len(res.Order),
		"already_deployed", len(res.AlreadyDeployed),
	)

	if !cfg.AssumeYes && !confirmPlan(modules, res, cfg) {
		logger.Info("deployment cancelled")
		return nil
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()

	client := chain.NewClient(cfg.EffectiveRestURL(),
		chain.WithFaucetURL(cfg.EffectiveFaucetURL()))

	signer, err := newDeploySigner(ctx, cfg, client, logger)
	if err != nil {
		logger.Error("failed to set up deployer account", "error", err)
		return exitWith(ExitConfigError, err)
	}

	runID := uuid.New().String()
	collector := report.NewCollector(cfg.OutputJSON, runID,
		cfg.Network, signer.Address(), cfg.ModuleType, len(modules))

	orchCfg := orchestrator.DefaultConfig()
	orchCfg.Network = cfg.Network
	orchCfg.ModuleType = cfg.ModuleType
	orchCfg.FailurePolicy = cfg.FailurePolicy
	orchCfg.PublishCode = cfg.PublishCode
	orchCfg.MaxAttempts = cfg.MaxAttempts
	orchCfg.Concurrency = cfg.Concurrency

	var recorder orchestrator.Recorder
	if reg != nil {
		recorder = reg
	}

	orch := orchestrator.New(client, signer,
		chain.NewSequenceTracker(client, signer.Address()),
		recorder, collector, orchCfg, logger)

	runErr := orch.Run(ctx, modules, res)

	// The report is written exactly once, whatever happened above.
	rep, writeErr := collector.Write()
	if writeErr != nil {
		logger.Error("failed to write report", "error", writeErr, "path", cfg.OutputJSON)
		return exitWith(ExitReportError, writeErr)
	}
	if runErr != nil {
		logger.Error("deployment bookkeeping failed", "error", runErr)
		return exitWith(ExitDeployFailed, runErr)
	}

	summarize(logger, rep, cfg.OutputJSON)
	if !rep.Success {
		return exitWith(ExitDeployFailed, fmt.Errorf("deployment finished with failures, see %s", cfg.OutputJSON))
	}
	return nil
}

// newDeploySigner builds the deployer's signer: the configured key, or a
// fresh faucet-funded account when none is set.
func newDeploySigner(ctx context.Context, cfg *config.Config, client *chain.Client, logger *slog.Logger) (*chain.Signer, error) {
	if cfg.PrivateKey != "" {
		return chain.NewSigner(cfg.PrivateKey)
	}

	signer, err := chain.NewRandomSigner()
	if err != nil {
		return nil, err
	}
	logger.Info("no private key configured, funding a fresh account",
		"account", signer.Address().Hex(),
		"amount", faucetFundAmount,
	)
	if err := client.Fund(ctx, signer.Address(), faucetFundAmount); err != nil {
		return nil, err
	}
	return signer, nil
}

// confirmPlan prints the plan and asks for a go-ahead on stdin.
func confirmPlan(modules []domain.Module, res *resolve.Resolution, cfg *config.Config) bool {
	fmt.Printf("Deploying %d package(s) to %s as %s modules:\n",
		len(res.Order), cfg.Network, cfg.ModuleType)
	for i, slot := range res.Order {
		fmt.Printf("  %d. %s (%s)\n", i+1, modules[slot].Name, modules[slot].AddressName)
	}
	for _, slot := range res.AlreadyDeployed {
		fmt.Printf("  -  %s (%s) already deployed, skipping\n", modules[slot].Name, modules[slot].AddressName)
	}
	fmt.Print("Proceed? [y/N] ")

	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil {
		return false
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes"
}

func summarize(logger *slog.Logger, rep *domain.Report, path string) {
	counts := map[domain.DeploymentStatus]int{}
	for _, r := range rep.Results {
		counts[r.Status]++
	}
	logger.Info("deployment finished",
		"success", rep.Success,
		"confirmed", counts[domain.StatusConfirmed],
		"failed", counts[domain.StatusFailed],
		"skipped", counts[domain.StatusSkipped],
		"report", path,
	)
}
