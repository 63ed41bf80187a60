package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"package-billing-service/internal/domain"
	"package-billing-service/internal/platform/obs"
	"package-billing-service/internal/ports"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	DefaultSettingsTTL = 5 * time.Minute
	settingsKeyPrefix  = "billing:settings:"
)

// SettingsCache is a Redis read-through cache in front of a SettingsRepository.
// Cache failures are logged and fall through to the underlying repository, so
// Redis being down never fails a billing request.
type SettingsCache struct {
	Client redis.UniversalClient
	Next   ports.SettingsRepository
	TTL    time.Duration
}

func NewSettingsCache(client redis.UniversalClient, next ports.SettingsRepository, ttl time.Duration) *SettingsCache {
	if ttl <= 0 {
		ttl = DefaultSettingsTTL
	}
	return &SettingsCache{Client: client, Next: next, TTL: ttl}
}

type cachedRate struct {
	BaseCurrency   domain.Currency `json:"base_currency"`
	TargetCurrency domain.Currency `json:"target_currency"`
	ExchangeRate   decimal.Decimal `json:"exchange_rate"`
	AsOf           time.Time       `json:"as_of"`
}

type cachedSettings struct {
	CompanyID       string      `json:"company_id"`
	InvoicePrefix   string      `json:"invoice_prefix"`
	PaymentTermDays int         `json:"payment_term_days"`
	ExchangeRate    *cachedRate `json:"exchange_rate,omitempty"`
}

func settingsKey(companyID string) string {
	return settingsKeyPrefix + companyID
}

func (c *SettingsCache) CompanySettings(ctx context.Context, companyID string) (_ domain.CompanySettings, err error) {
	defer obs.Time(ctx, "settings.cache.Get")(&err)

	if c.Next == nil {
		return domain.CompanySettings{}, errors.New("settings cache: next repository is nil")
	}
	if strings.TrimSpace(companyID) == "" {
		return domain.CompanySettings{}, errors.New("settings cache: company id must not be empty")
	}

	if settings, ok := c.get(ctx, companyID); ok {
		return settings, nil
	}

	settings, err := c.Next.CompanySettings(ctx, companyID)
	if err != nil {
		return domain.CompanySettings{}, err
	}

	c.put(ctx, settings)
	return settings, nil
}

// Invalidate drops the cached entry; the next read goes to the repository.
func (c *SettingsCache) Invalidate(ctx context.Context, companyID string) error {
	if c.Client == nil {
		return nil
	}
	if err := c.Client.Del(ctx, settingsKey(companyID)).Err(); err != nil {
		return fmt.Errorf("invalidate settings cache %s: %w", companyID, err)
	}
	return nil
}

func (c *SettingsCache) get(ctx context.Context, companyID string) (domain.CompanySettings, bool) {
	if c.Client == nil {
		return domain.CompanySettings{}, false
	}

	raw, err := c.Client.Get(ctx, settingsKey(companyID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.CompanySettings{}, false
	}
	if err != nil {
		obs.FromContext(ctx).Warn("settings cache read failed", zap.String("company_id", companyID), zap.Error(err))
		return domain.CompanySettings{}, false
	}

	var cs cachedSettings
	if err := json.Unmarshal(raw, &cs); err != nil {
		obs.FromContext(ctx).Warn("settings cache entry corrupt", zap.String("company_id", companyID), zap.Error(err))
		return domain.CompanySettings{}, false
	}

	settings := domain.CompanySettings{
		CompanyID:       cs.CompanyID,
		InvoicePrefix:   cs.InvoicePrefix,
		PaymentTermDays: cs.PaymentTermDays,
	}
	if r := cs.ExchangeRate; r != nil {
		settings.ExchangeRate = &domain.ExchangeRateSettings{
			BaseCurrency:   r.BaseCurrency,
			TargetCurrency: r.TargetCurrency,
			ExchangeRate:   r.ExchangeRate,
			AsOf:           r.AsOf,
		}
	}
	return settings, true
}

func (c *SettingsCache) put(ctx context.Context, settings domain.CompanySettings) {
	if c.Client == nil {
		return
	}

	cs := cachedSettings{
		CompanyID:       settings.CompanyID,
		InvoicePrefix:   settings.InvoicePrefix,
		PaymentTermDays: settings.PaymentTermDays,
	}
	if r := settings.ExchangeRate; r != nil {
		cs.ExchangeRate = &cachedRate{
			BaseCurrency:   r.BaseCurrency,
			TargetCurrency: r.TargetCurrency,
			ExchangeRate:   r.ExchangeRate,
			AsOf:           r.AsOf,
		}
	}

	raw, err := json.Marshal(cs)
	if err != nil {
		obs.FromContext(ctx).Warn("settings cache encode failed", zap.String("company_id", settings.CompanyID), zap.Error(err))
		return
	}
	if err := c.Client.Set(ctx, settingsKey(settings.CompanyID), raw, c.TTL).Err(); err != nil {
		obs.FromContext(ctx).Warn("settings cache write failed", zap.String("company_id", settings.CompanyID), zap.Error(err))
	}
}
