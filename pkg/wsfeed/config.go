// pkg/wsfeed/config.go
package wsfeed

import (
	"fmt"
	"net/url"
	"time"
)

// Config задаёт параметры одного логического соединения.
// Значение иммутабельно для созданного Feed: новая конфигурация
// вступает в силу только через создание нового Feed.
type Config struct {
	// URL — адрес WebSocket, например "wss://stream.binance.com:9443/ws".
	URL string `mapstructure:"url"`

	// AuthToken — если задан, сразу после открытия соединения
	// отправляется конверт {"type":"auth","apiKey":<token>}.
	AuthToken string `mapstructure:"auth_token"`

	// SubscribePayload отправляется следом за auth как есть
	// (произвольный JSON, содержимое для ядра непрозрачно).
	SubscribePayload any `mapstructure:"subscribe_payload"`

	// SubProtocols — запрашиваемые sub-протоколы рукопожатия.
	SubProtocols []string `mapstructure:"sub_protocols"`

	// Reconnect включает авто-reconnect. nil → true.
	// Указатель, потому что false - валидное явное значение.
	Reconnect *bool `mapstructure:"reconnect"`

	// MaxReconnectAttempts — максимум последовательных попыток
	// реконнекта без успешного открытия. nil → 5, 0 — без попыток.
	MaxReconnectAttempts *int `mapstructure:"max_reconnect_attempts"`

	// BaseReconnectDelay — базовая задержка реконнекта; попытка k
	// планируется через BaseReconnectDelay * 2^k. 0 → 5s.
	BaseReconnectDelay time.Duration `mapstructure:"base_reconnect_delay"`

	// HandshakeTimeout ограничивает рукопожатие. 0 → 10s.
	HandshakeTimeout time.Duration `mapstructure:"handshake_timeout"`

	// WriteTimeout — дедлайн на каждую исходящую запись. 0 → 5s.
	WriteTimeout time.Duration `mapstructure:"write_timeout"`

	// UpdateBuffer — буфер канала Updates. 0 → 1 (держим только
	// последний снапшот, старые вытесняются).
	UpdateBuffer int `mapstructure:"update_buffer"`
}

// applyDefaults заполняет default-значения на месте.
func (c *Config) applyDefaults() {
	if c.Reconnect == nil {
		t := true
		c.Reconnect = &t
	}
	if c.MaxReconnectAttempts == nil {
		n := 5
		c.MaxReconnectAttempts = &n
	}
	if c.BaseReconnectDelay <= 0 {
		c.BaseReconnectDelay = 5 * time.Second
	}
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = 10 * time.Second
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 5 * time.Second
	}
	if c.UpdateBuffer <= 0 {
		c.UpdateBuffer = 1
	}
}

// validate проверяет обязательные поля.
func (c Config) validate() error {
	if c.URL == "" {
		return fmt.Errorf("wsfeed: URL is required")
	}
	u, err := url.Parse(c.URL)
	if err != nil {
		return fmt.Errorf("wsfeed: invalid URL %q: %w", c.URL, err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Errorf("wsfeed: URL scheme must be ws or wss, got %q", u.Scheme)
	}
	if *c.MaxReconnectAttempts < 0 {
		return fmt.Errorf("wsfeed: MaxReconnectAttempts must be >= 0")
	}
	return nil
}

func (c Config) reconnectEnabled() bool { return c.Reconnect != nil && *c.Reconnect }

func (c Config) maxAttempts() int {
	if c.MaxReconnectAttempts == nil {
		return 0
	}
	return *c.MaxReconnectAttempts
}
