package settings

import (
	"context"
	"strconv"
	"strings"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/SIMPLYBOYS/sage_mining/internal/db"
	"github.com/SIMPLYBOYS/sage_mining/internal/errors"
	"github.com/SIMPLYBOYS/sage_mining/pkg/logger"
)

func init() {
	// Clients read exchangeRate as a JSON number.
	decimal.MarshalJSONWithoutQuotes = true
}

const (
	keyExchangeRate  = "exchangeRate"
	keyMinWithdrawal = "minWithdrawal"
	keyEnableAds     = "enableAds"
	keyAdFrequency   = "adFrequency"
)

type Settings struct {
	ExchangeRate  decimal.Decimal `json:"exchangeRate"` // USD per ST
	MinWithdrawal int64           `json:"minWithdrawal"`
	EnableAds     bool            `json:"enableAds"`
	AdFrequency   int             `json:"adFrequency"`
}

// Defaults returns the settings used before any admin change.
func Defaults() Settings {
	return Settings{
		ExchangeRate:  decimal.RequireFromString("0.1"),
		MinWithdrawal: 100,
		EnableAds:     true,
		AdFrequency:   5,
	}
}

// Update is a partial change; nil fields are left untouched.
type Update struct {
	ExchangeRate  *decimal.Decimal `json:"exchangeRate"`
	MinWithdrawal *int64           `json:"minWithdrawal"`
	EnableAds     *bool            `json:"enableAds"`
	AdFrequency   *int             `json:"adFrequency"`
}

// Service caches the global settings and persists changes as key/value rows.
type Service struct {
	store db.SettingsStore

	mu     sync.RWMutex
	cached Settings
}

func NewService(store db.SettingsStore) *Service {
	return &Service{store: store, cached: Defaults()}
}

// Load replaces the cache with whatever the store holds on top of the defaults.
func (s *Service) Load(ctx context.Context) error {
	values, err := s.store.LoadSettings(ctx)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for key, value := range values {
		applySetting(&s.cached, key, value)
	}
	return nil
}

func (s *Service) Get() Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cached
}

func (s *Service) Update(ctx context.Context, u Update) (Settings, error) {
	values := make(map[string]string)
	if u.ExchangeRate != nil {
		if u.ExchangeRate.IsNegative() {
			return Settings{}, errors.Validation("exchangeRate must not be negative")
		}
		values[keyExchangeRate] = u.ExchangeRate.String()
	}
	if u.MinWithdrawal != nil {
		if *u.MinWithdrawal <= 0 {
			return Settings{}, errors.Validation("minWithdrawal must be positive")
		}
		values[keyMinWithdrawal] = strconv.FormatInt(*u.MinWithdrawal, 10)
	}
	if u.EnableAds != nil {
		values[keyEnableAds] = strconv.FormatBool(*u.EnableAds)
	}
	if u.AdFrequency != nil {
		if *u.AdFrequency <= 0 {
			return Settings{}, errors.Validation("adFrequency must be positive")
		}
		values[keyAdFrequency] = strconv.Itoa(*u.AdFrequency)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if len(values) == 0 {
		return s.cached, nil
	}
	if err := s.store.SaveSettings(ctx, values); err != nil {
		return s.cached, err
	}
	for key, value := range values {
		applySetting(&s.cached, key, value)
	}
	logger.Info("Settings updated: %v", values)
	return s.cached, nil
}

// USDValue converts a token amount at the current exchange rate, rounded to cents.
func (s *Service) USDValue(tokens int64) decimal.Decimal {
	return s.Get().ExchangeRate.Mul(decimal.NewFromInt(tokens)).Round(2)
}

func applySetting(target *Settings, key string, value string) {
	switch strings.TrimSpace(key) {
	case keyExchangeRate:
		if v, err := decimal.NewFromString(value); err == nil {
			target.ExchangeRate = v
		}
	case keyMinWithdrawal:
		if v, err := strconv.ParseInt(value, 10, 64); err == nil {
			target.MinWithdrawal = v
		}
	case keyEnableAds:
		if v, err := parseBool(value); err == nil {
			target.EnableAds = v
		}
	case keyAdFrequency:
		if v, err := strconv.Atoi(value); err == nil {
			target.AdFrequency = v
		}
	}
}

func parseBool(value string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "true", "1", "yes", "on":
		return true, nil
	case "false", "0", "no", "off":
		return false, nil
	default:
		return false, strconv.ErrSyntax
	}
}
