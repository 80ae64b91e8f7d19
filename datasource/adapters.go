package datasource

import (
	"context"
	"time"

	"chadboar/heartbeat-core/config"
	"chadboar/heartbeat-core/scorer"
	"chadboar/heartbeat-core/watchdog"
)

// Sources bundles one rate-limited Client per external collaborator the
// heartbeat cycle fans out to, built once at startup from config.DataSourceConfig.
type Sources struct {
	WhaleFlow *Client
	Price     *Client
	Volume    *Client
	Pulse     *Client
	Warden    *Client
	Quoter    *Client
	RPCChain  []*Client
}

// NewSources constructs a Client for every configured endpoint.
func NewSources(cfg config.DataSourceConfig) *Sources {
	s := &Sources{
		WhaleFlow: NewClient("whale_flow", cfg.WhaleFlow),
		Price:     NewClient("price", cfg.Price),
		Volume:    NewClient("volume", cfg.Volume),
		Pulse:     NewClient("pulse", cfg.Pulse),
		Warden:    NewClient("warden", cfg.Warden),
		Quoter:    NewClient("quoter", cfg.Quoter),
	}
	for i, ep := range cfg.RPCChain {
		name := ep.Name
		if name == "" {
			name = "rpc"
		}
		_ = i
		s.RPCChain = append(s.RPCChain, NewClient(name, ep))
	}
	return s
}

// whaleFlowResponse mirrors the upstream whale-flow provider's payload.
type whaleFlowResponse struct {
	WhaleCount       int  `json:"whale_count"`
	AllWhalesDumpers bool `json:"all_whales_dumpers"`
}

// priceResponse mirrors the upstream price/liquidity oracle's payload.
type priceResponse struct {
	MarketCapUSD  float64 `json:"market_cap_usd"`
	LiquidityUSD  float64 `json:"liquidity_usd"`
	PeakMarketCap float64 `json:"peak_market_cap_usd"`
	PeakLiquidity float64 `json:"peak_liquidity_usd"`
}

// volumeResponse mirrors the upstream volume/narrative provider's payload.
type volumeResponse struct {
	VolumeSpikeMultiple     float64 `json:"volume_spike_multiple"`
	KOLFlag                 bool    `json:"kol_flag"`
	NarrativeAgeMin         float64 `json:"narrative_age_min"`
	VolumeConcentrationGini float64 `json:"volume_concentration_gini"`
	DumperWalletCount       int     `json:"dumper_wallet_count"`
	FreshWalletInflowUSD    float64 `json:"fresh_wallet_inflow_usd"`
	ExchangeInflowUSD       float64 `json:"exchange_inflow_usd"`
}

// pulseResponse mirrors the upstream pulse bonding-curve provider's payload.
type pulseResponse struct {
	Stage               string  `json:"stage"`
	OrganicRatio        float64 `json:"organic_ratio"`
	BundlerPct          float64 `json:"bundler_pct"`
	SniperPct           float64 `json:"sniper_pct"`
	ProTraderPct        float64 `json:"pro_trader_pct"`
	HasSocials          bool    `json:"has_socials"`
	DeployerMigrations  int     `json:"deployer_migrations"`
	TokenAgeSec         float64 `json:"token_age_sec"`
}

// wardenResponse mirrors the upstream rug-warden verdict payload.
type wardenResponse struct {
	Verdict        string `json:"verdict"`
	HoneypotSellOK bool   `json:"honeypot_dry_run_sell_ok"`
}

// FetchWhaleFlow retrieves whale accumulation signal for a mint. On
// failure the caller must treat the candidate as OracleAvailable=false.
func (s *Sources) FetchWhaleFlow(ctx context.Context, mint string) (whaleFlowResponse, error) {
	var out whaleFlowResponse
	err := s.WhaleFlow.GetJSON(ctx, "/whale-flow?mint="+mint, &out)
	return out, err
}

// FetchPrice retrieves the current market cap and liquidity for a mint.
func (s *Sources) FetchPrice(ctx context.Context, mint string) (priceResponse, error) {
	var out priceResponse
	err := s.Price.GetJSON(ctx, "/price?mint="+mint, &out)
	return out, err
}

// FetchVolume retrieves the narrative/volume signal for a mint.
func (s *Sources) FetchVolume(ctx context.Context, mint string) (volumeResponse, error) {
	var out volumeResponse
	err := s.Volume.GetJSON(ctx, "/volume?mint="+mint, &out)
	return out, err
}

// FetchPulse retrieves the bonding-curve signal for a pulse-native mint.
func (s *Sources) FetchPulse(ctx context.Context, mint string) (pulseResponse, error) {
	var out pulseResponse
	err := s.Pulse.GetJSON(ctx, "/pulse?mint="+mint, &out)
	return out, err
}

// FetchWarden retrieves the rug-warden verdict for a mint.
func (s *Sources) FetchWarden(ctx context.Context, mint string) (wardenResponse, error) {
	var out wardenResponse
	err := s.Warden.GetJSON(ctx, "/warden?mint="+mint, &out)
	return out, err
}

// BuildSignalInput fans out to every adapter for one mint and assembles
// a scorer.SignalInput, recording per-source availability exactly as
// spec.md section 4.2's partial-data degradation model requires rather
// than failing the whole candidate when one source errors.
func (s *Sources) BuildSignalInput(ctx context.Context, mint string, now time.Time) scorer.SignalInput {
	in := scorer.SignalInput{TokenMint: mint, OracleTimestamp: now, NarrativeTimestamp: now}

	if price, err := s.FetchPrice(ctx, mint); err == nil {
		in.OracleAvailable = true
		in.EntryMarketCapUSD = price.MarketCapUSD
		in.EntryLiquidityUSD = price.LiquidityUSD
		in.PeakLiquidityUSD = price.PeakLiquidity
	}

	if whale, err := s.FetchWhaleFlow(ctx, mint); err == nil {
		in.WhaleCount = whale.WhaleCount
		in.AllWhalesDumpers = whale.AllWhalesDumpers
	} else {
		in.OracleAvailable = false
	}

	if vol, err := s.FetchVolume(ctx, mint); err == nil {
		in.NarrativeAvailable = true
		in.VolumeSpikeMultiple = vol.VolumeSpikeMultiple
		in.KOLFlag = vol.KOLFlag
		in.NarrativeAgeMin = vol.NarrativeAgeMin
		in.VolumeConcentrationGini = vol.VolumeConcentrationGini
		in.DumperWalletCount = vol.DumperWalletCount
		in.FreshWalletInflowUSD = vol.FreshWalletInflowUSD
		in.ExchangeInflowUSD = vol.ExchangeInflowUSD
	}

	if pulse, err := s.FetchPulse(ctx, mint); err == nil && pulse.Stage != "" {
		in.FromPulse = true
		in.PulseAvailable = true
		in.PulseStage = pulse.Stage
		in.PulseOrganicRatio = pulse.OrganicRatio
		in.PulseBundlerPct = pulse.BundlerPct
		in.PulseSniperPct = pulse.SniperPct
		in.PulseProTraderPct = pulse.ProTraderPct
		in.PulseHasSocials = pulse.HasSocials
		in.PulseDeployerMigrations = pulse.DeployerMigrations
		in.TokenAgeSec = pulse.TokenAgeSec
	}

	if warden, err := s.FetchWarden(ctx, mint); err == nil {
		in.WardenVerdict = scorer.WardenVerdict(warden.Verdict)
		in.HoneypotDryRunSellOK = warden.HoneypotSellOK
	} else {
		in.WardenVerdict = scorer.WardenFail
	}

	if in.VolatilityFactor <= 0 {
		in.VolatilityFactor = 1.0
	}
	return in
}

// FetchPriceQuote retrieves a watchdog.PriceQuote for one open position,
// failing unavailable (rather than erroring) so Stage 1's watchdog can
// apply its forced-critical-exit-on-unavailable-price rule uniformly.
func (s *Sources) FetchPriceQuote(ctx context.Context, mint string) watchdog.PriceQuote {
	price, err := s.FetchPrice(ctx, mint)
	if err != nil {
		return watchdog.PriceQuote{TokenMint: mint, Available: false}
	}
	return watchdog.PriceQuote{
		TokenMint:            mint,
		CurrentMarketCapUSD:  price.MarketCapUSD,
		CurrentLiquidityUSD:  price.LiquidityUSD,
		Peak:                 price.PeakMarketCap,
		Available:            true,
	}
}
