package subscription

import "time"

type Currency string

const (
	// CurrencyStars is Telegram Stars (XTR). Amounts are whole stars.
	CurrencyStars Currency = "XTR"
	// CurrencyRUB amounts are kopeks.
	CurrencyRUB Currency = "RUB"
)

// Tariff is a purchasable access duration with one list price per currency.
type Tariff struct {
	Key         string
	Days        int
	StarsPrice  int64
	KopeksPrice int64
	Title       string
}

// Tariffs is the closed catalog, in display order.
var Tariffs = []Tariff{
	{Key: "14_days", Days: 14, StarsPrice: 100, KopeksPrice: 15000, Title: "14 дней"},
	{Key: "30_days", Days: 30, StarsPrice: 200, KopeksPrice: 30000, Title: "30 дней"},
	{Key: "90_days", Days: 90, StarsPrice: 500, KopeksPrice: 75000, Title: "90 дней"},
	{Key: "180_days", Days: 180, StarsPrice: 900, KopeksPrice: 140000, Title: "180 дней"},
}

func TariffByKey(key string) (Tariff, bool) {
	for _, t := range Tariffs {
		if t.Key == key {
			return t, true
		}
	}
	return Tariff{}, false
}

func (t Tariff) Duration() time.Duration {
	return time.Duration(t.Days) * 24 * time.Hour
}

func (t Tariff) Price(c Currency) int64 {
	if c == CurrencyStars {
		return t.StarsPrice
	}
	return t.KopeksPrice
}
