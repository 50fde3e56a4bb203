package app

import (
	"fmt"
	"math/big"
	"net/url"
	"strings"
	"time"

	"github.com/pvzzle/buywatch/internal/ethwatch"

	"github.com/caarlos0/env/v11"
	"github.com/ethereum/go-ethereum/common"
	"github.com/joho/godotenv"
	"golang.org/x/time/rate"
)

// ConfigError is a missing or invalid setting. It is fatal at startup.
type ConfigError struct {
	Field string
	Err   error
}

func (e *ConfigError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("config: %v", e.Err)
	}
	return fmt.Sprintf("config %s: %v", e.Field, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }

type Config struct {
	TelegramToken string `env:"TEL_BOT_TOKEN,required,notEmpty"`
	ChatID        string `env:"TEL_CHAT_ID,required,notEmpty"`
	RPCURL        string `env:"QN_WSS_URL,required,notEmpty"`
	Contract      string `env:"TOKEN_CONTRACT_ADDRESS,required,notEmpty"`

	RPCReadURL  string `env:"RPC_HTTP_URL"`
	EventTopic  string `env:"EVENT_TOPIC"`
	ScanMode    string `env:"SCAN_MODE"`
	MinPurchase string `env:"MIN_PURCHASE"`

	LookbackBlocks     uint64        `env:"LOOKBACK_BLOCKS"`
	PollInterval       time.Duration `env:"POLL_INTERVAL"`
	ReminderInterval   time.Duration `env:"REMINDER_INTERVAL"`
	ReminderFirstDelay time.Duration `env:"REMINDER_FIRST_DELAY"`
	ReconnectDelay     time.Duration `env:"RECONNECT_DELAY"`
	ReconnectMaxDelay  time.Duration `env:"RECONNECT_MAX_DELAY"`
	RetryDelay         time.Duration `env:"RETRY_DELAY"`
	RPCTimeout         time.Duration `env:"RPC_TIMEOUT"`
	SendTimeout        time.Duration `env:"SEND_TIMEOUT"`
	SendRatePerMinute  int           `env:"SEND_RATE_PER_MINUTE"`

	WatcherWorkers int `env:"WATCHER_WORKERS"`
	NotifyBuffer   int `env:"NOTIFY_BUFFER"`

	ProjectName   string `env:"PROJECT_NAME"`
	CommunityName string `env:"COMMUNITY_NAME"`
	TokenSymbol   string `env:"TOKEN_SYMBOL"`
	NativeSymbol  string `env:"NATIVE_SYMBOL"`
	LogoURL       string `env:"LOGO_URL"`
	BuyURL        string `env:"BUY_URL"`
	ExplorerName  string `env:"EXPLORER_NAME"`
	ExplorerTxURL string `env:"EXPLORER_TX_URL"`

	PostgresURL string `env:"POSTGRES_URL"`
	Port        int    `env:"PORT"`

	LogLevel       string `env:"LOG_LEVEL"`
	LogDevelopment bool   `env:"LOG_DEVELOPMENT"`

	// filled by Validate
	contract    common.Address
	topic       *common.Hash
	minValueWei *big.Int
}

func defaults() Config {
	b := ethwatch.DefaultBranding()
	return Config{
		ScanMode:           string(ethwatch.ModeLogs),
		MinPurchase:        "0.025",
		LookbackBlocks:     100,
		PollInterval:       180 * time.Second,
		ReminderInterval:   30 * time.Minute,
		ReminderFirstDelay: 5 * time.Second,
		ReconnectDelay:     5 * time.Second,
		ReconnectMaxDelay:  5 * time.Second,
		RetryDelay:         10 * time.Second,
		RPCTimeout:         15 * time.Second,
		SendTimeout:        10 * time.Second,
		SendRatePerMinute:  20,
		WatcherWorkers:     4,
		NotifyBuffer:       256,
		ProjectName:        b.ProjectName,
		CommunityName:      b.CommunityName,
		TokenSymbol:        b.TokenSymbol,
		NativeSymbol:       b.NativeSymbol,
		LogoURL:            b.LogoURL,
		BuyURL:             b.BuyURL,
		ExplorerName:       b.ExplorerName,
		ExplorerTxURL:      b.ExplorerTxURL,
		Port:               5000,
		LogLevel:           "info",
	}
}

func LoadConfig() (Config, error) {
	// a missing .env is normal in containers
	_ = godotenv.Load()

	return parseConfig(env.Options{})
}

func parseConfig(opts env.Options) (Config, error) {
	config := defaults()

	if err := env.ParseWithOptions(&config, opts); err != nil {
		return Config{}, &ConfigError{Err: err}
	}
	if err := config.Validate(); err != nil {
		return Config{}, err
	}

	return config, nil
}

// Validate checks the values env cannot and fills the derived fields.
func (c *Config) Validate() error {
	if !common.IsHexAddress(c.Contract) {
		return &ConfigError{Field: "TOKEN_CONTRACT_ADDRESS", Err: fmt.Errorf("not an address: %q", c.Contract)}
	}
	c.contract = common.HexToAddress(c.Contract)

	if strings.TrimSpace(c.ChatID) == "" {
		return &ConfigError{Field: "TEL_CHAT_ID", Err: fmt.Errorf("empty")}
	}

	if err := checkEndpoint(c.RPCURL); err != nil {
		return &ConfigError{Field: "QN_WSS_URL", Err: err}
	}
	if c.RPCReadURL != "" {
		if err := checkEndpoint(c.RPCReadURL); err != nil {
			return &ConfigError{Field: "RPC_HTTP_URL", Err: err}
		}
	}

	minWei, err := ethwatch.ParseNativeToWei(c.MinPurchase)
	if err != nil {
		return &ConfigError{Field: "MIN_PURCHASE", Err: err}
	}
	c.minValueWei = minWei

	c.topic = nil
	if c.EventTopic != "" {
		raw := strings.TrimPrefix(strings.ToLower(c.EventTopic), "0x")
		if len(raw) != 64 || strings.Trim(raw, "0123456789abcdef") != "" {
			return &ConfigError{Field: "EVENT_TOPIC", Err: fmt.Errorf("not a 32-byte hex hash: %q", c.EventTopic)}
		}
		h := common.HexToHash(raw)
		c.topic = &h
	}

	switch ethwatch.Mode(c.ScanMode) {
	case ethwatch.ModeLogs, ethwatch.ModeBlocks:
	default:
		return &ConfigError{Field: "SCAN_MODE", Err: fmt.Errorf("unknown mode %q", c.ScanMode)}
	}

	positive := []struct {
		field string
		d     time.Duration
	}{
		{"POLL_INTERVAL", c.PollInterval},
		{"REMINDER_INTERVAL", c.ReminderInterval},
		{"REMINDER_FIRST_DELAY", c.ReminderFirstDelay},
		{"RECONNECT_DELAY", c.ReconnectDelay},
		{"RETRY_DELAY", c.RetryDelay},
		{"RPC_TIMEOUT", c.RPCTimeout},
		{"SEND_TIMEOUT", c.SendTimeout},
	}
	for _, p := range positive {
		if p.d <= 0 {
			return &ConfigError{Field: p.field, Err: fmt.Errorf("must be positive, got %s", p.d)}
		}
	}
	if c.ReconnectMaxDelay < c.ReconnectDelay {
		return &ConfigError{Field: "RECONNECT_MAX_DELAY", Err: fmt.Errorf("below RECONNECT_DELAY")}
	}

	if c.WatcherWorkers <= 0 {
		return &ConfigError{Field: "WATCHER_WORKERS", Err: fmt.Errorf("must be positive")}
	}
	if c.NotifyBuffer <= 0 {
		return &ConfigError{Field: "NOTIFY_BUFFER", Err: fmt.Errorf("must be positive")}
	}
	if c.SendRatePerMinute < 0 {
		return &ConfigError{Field: "SEND_RATE_PER_MINUTE", Err: fmt.Errorf("must not be negative")}
	}
	if c.Port <= 0 || c.Port > 65535 {
		return &ConfigError{Field: "PORT", Err: fmt.Errorf("out of range: %d", c.Port)}
	}

	return nil
}

// checkEndpoint accepts http(s) and ws(s) URLs with a host, or an IPC socket
// path.
func checkEndpoint(raw string) error {
	raw = strings.TrimSpace(raw)
	if strings.HasSuffix(raw, ".ipc") && !strings.Contains(raw, "://") {
		return nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("bad url: %w", err)
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https", "ws", "wss":
	default:
		return fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("missing host in %q", raw)
	}
	return nil
}

func (c Config) ContractAddress() common.Address { return c.contract }
func (c Config) Topic() *common.Hash             { return c.topic }
func (c Config) MinValueWei() *big.Int           { return c.minValueWei }

func (c Config) Branding() ethwatch.Branding {
	return ethwatch.Branding{
		ProjectName:   c.ProjectName,
		CommunityName: c.CommunityName,
		TokenSymbol:   c.TokenSymbol,
		NativeSymbol:  c.NativeSymbol,
		LogoURL:       c.LogoURL,
		BuyURL:        c.BuyURL,
		ExplorerName:  c.ExplorerName,
		ExplorerTxURL: c.ExplorerTxURL,
	}
}

// SendLimit converts SEND_RATE_PER_MINUTE to a limiter rate. Zero disables
// the limit.
func (c Config) SendLimit() rate.Limit {
	if c.SendRatePerMinute == 0 {
		return rate.Inf
	}
	return rate.Every(time.Minute / time.Duration(c.SendRatePerMinute))
}
