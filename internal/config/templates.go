package config

import (
	"fmt"
	"os"
	"path/filepath"
)

const configTemplate = `# ICT signal engine configuration

[market]
# Instrument to analyse
symbol = "NIFTY 50"
# Bar source: "csv", "kite" or "store" (bars synced into the local store)
provider = "csv"
# Directory of <SYMBOL>_<tf>.csv files for the csv provider
csv_dir = "data"
exchange = "NSE"
# Bars requested per timeframe
lookback = 300
# Bar cache lifetime; set redis_url to share the cache between processes
cache_ttl = "60s"
redis_url = ""
# Upstream limits
rate_per_sec = 3.0
burst = 3
breaker_failures = 5
breaker_timeout = "60s"
fetch_timeout = "10s"
# Bars older than this are refetched by "ictsignal sync"
sync_stale = "15m"

[engine]
primary = "1h"

[engine.patterns]
swing_radius = 5
bos_threshold = 0.001
displacement_ratio = 0.6
displacement_top_share = 0.3
displacement_lookback = 50
order_block_scan_back = 15
order_block_max_distance = 20
order_block_move_factor = 2.0
max_order_blocks = 5
min_gap_atr_multiple = 0.1
momentum_window = 3
max_gaps = 5
liquidity_radius = 3
liquidity_tolerance = 0.001
sweep_threshold = 0.001
max_pools = 6
ote_lookback = 50
ote_proximity = 0.005

[engine.mtf]
primary = "1h"
min_bars = 10
sma_period = 20
distance_scale = 1.0
max_deviation = 30.0
bullish_above = 60.0
bearish_below = 40.0

[engine.mtf.weights]
1d = 3.0
4h = 2.5
1h = 2.0
15m = 1.5
5m = 1.0
1m = 0.5

[engine.scoring]
structure_weight = 0.2
order_block_weight = 0.15
order_block_cap = 15.0
fvg_weight = 0.1
fvg_cap = 10.0
ema_points = 8.0
macd_points = 5.0
rsi_extreme_points = 10.0
rsi_neutral_points = 2.0
mtf_weight = 0.25
volume_bonus = 5.0
volume_penalty = 3.0
strong_buy_score = 65.0
strong_sell_score = 35.0
buy_score = 60.0
sell_score = 40.0
min_confluence = 3
strong_cap = 95.0
weak_cap = 85.0
max_confidence = 95.0
mtf_opposition_strength = 60.0
mtf_opposition_penalty = 20.0
neutral_bias_penalty = 15.0
opposing_bias_penalty = 30.0
# Directional calls below this reward:risk are held.
# With stop_atr 1.5 and target1_atr 2.0 the ratio is 1.33.
min_risk_reward = 1.5
risk_reward_penalty = 40.0
confidence_floor = 40.0
entry_band = 0.001
stop_atr = 1.5
target1_atr = 2.0
target2_atr = 3.5
max_reasons = 5

[store]
# "sqlite" or "postgres" (DATABASE_URL overrides)
driver = "sqlite"
# path defaults to signals.db in the config directory
dsn = ""

[server]
addr = "127.0.0.1:8080"
# Bearer tokens are required on /v1 when set (JWT_SECRET overrides)
jwt_secret = ""
read_timeout = "10s"
write_timeout = "30s"
request_timeout = "20s"

[scheduler]
enabled = true
spec = "@every 5m"
run_on_start = true
timeout = "60s"
queue_size = 100
# Skip scheduled refreshes outside NSE hours (09:15-15:30 IST, weekdays)
market_hours_only = false

[hub]
buffer_size = 256
subscriber_buffer_size = 16

[alerts]
# Minimum quality that triggers a notification
min_quality = "VERY_GOOD"
# Only notify when the direction changes
on_change_only = true

[notify]
# all, signals_only, errors_only
level = "signals_only"

[notify.webhook]
enabled = false
url = ""

[notify.telegram]
enabled = false
bot_token = ""
chat_id = ""

[logging]
level = "info"
console = true
file = false
max_size = 50
max_backups = 5
max_age = 14
`

const credentialsTemplate = `# Kite Connect credentials for the "kite" provider.
# KITE_API_KEY and KITE_ACCESS_TOKEN override these.

[kite]
api_key = ""
access_token = ""
`

func createTemplateConfig(configDir, name string) error {
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	path := filepath.Join(configDir, name+".toml")
	if err := os.WriteFile(path, []byte(configTemplate), 0644); err != nil {
		return fmt.Errorf("writing config template: %w", err)
	}

	return fmt.Errorf("%w at %s", ErrTemplateCreated, path)
}

func createTemplateCredentials(configDir string) error {
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	path := filepath.Join(configDir, "credentials.toml")
	// Use restricted permissions for credentials file
	if err := os.WriteFile(path, []byte(credentialsTemplate), 0600); err != nil {
		return fmt.Errorf("writing credentials template: %w", err)
	}
	return nil
}
