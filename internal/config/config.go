package config

import (
	"time"

	"github.com/lk2023060901/danmu-chat-relay/pkg/util/merr"
	"github.com/lk2023060901/danmu-chat-relay/pkg/util/viper"
)

// Config 为中继服务的完整配置，可由 viper 从 YAML/JSON 与 CHAT_* 环境变量加载。
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	WS       WSConfig       `mapstructure:"ws"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
	Activity ActivityConfig `mapstructure:"activity"`
	Relay    RelayConfig    `mapstructure:"relay"`
}

// ServerConfig 为 TCP 接入与会话相关配置。
type ServerConfig struct {
	TCPAddr string `mapstructure:"tcp_addr"`

	// Framing 为消息边界模式：raw（一次读取即一条消息）或 line（按换行分割）。
	Framing string `mapstructure:"framing"`

	// HandshakeSlack 为协程池在 MaxClients 之外为握手中连接预留的容量。
	HandshakeSlack int `mapstructure:"handshake_slack"`

	// HandshakeTimeout 为等待客户端发送名字的超时时间，0 表示不限制。
	HandshakeTimeout time.Duration `mapstructure:"handshake_timeout"`

	// WriteTimeout 为单次写入对端的超时时间，0 表示不限制。
	WriteTimeout time.Duration `mapstructure:"write_timeout"`

	SendQueueSize int `mapstructure:"send_queue_size"`
}

// WSConfig 为可选的 WebSocket 接入配置。
type WSConfig struct {
	Enable bool   `mapstructure:"enable"`
	Addr   string `mapstructure:"addr"`
	Path   string `mapstructure:"path"`
}

// MetricsConfig 为 Prometheus 指标与 pprof 端点配置。
type MetricsConfig struct {
	Enable bool   `mapstructure:"enable"`
	Addr   string `mapstructure:"addr"`
	Path   string `mapstructure:"path"`
}

// ActivityConfig 为活动日志配置。
type ActivityConfig struct {
	Enable     bool   `mapstructure:"enable"`
	Path       string `mapstructure:"path"`
	Format     string `mapstructure:"format"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}

// RelayConfig 为聊天协议的容量与长度限制。
type RelayConfig struct {
	MaxClients int `mapstructure:"max_clients"`

	// NameSize 为名字缓冲区大小，名字长度上限为 NameSize-1。
	NameSize   int `mapstructure:"name_size"`
	MinNameLen int `mapstructure:"min_name_len"`

	// MsgSize 为单条出站消息（如名单）的长度上限。
	MsgSize int `mapstructure:"msg_size"`

	// BuffSize 为单次读取的缓冲区大小。
	BuffSize int `mapstructure:"buff_size"`
}

// Default 返回默认配置。
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			TCPAddr:        ":6969",
			Framing:        "raw",
			HandshakeSlack: 16,
			WriteTimeout:   10 * time.Second,
			SendQueueSize:  64,
		},
		WS: WSConfig{
			Enable: false,
			Addr:   ":6970",
			Path:   "/ws",
		},
		Metrics: MetricsConfig{
			Enable: false,
			Addr:   ":9169",
			Path:   "/metrics",
		},
		Activity: ActivityConfig{
			Enable:     true,
			Path:       "log.txt",
			Format:     "text",
			MaxSizeMB:  100,
			MaxBackups: 3,
			MaxAgeDays: 0,
		},
		Relay: RelayConfig{
			MaxClients: 7,
			NameSize:   32,
			MinNameLen: 3,
			MsgSize:    1024,
			BuffSize:   2048,
		},
	}
}

// Load 以 Default 为默认值，从 v 中反序列化并校验配置。
func Load(v *viper.Config) (*Config, error) {
	setDefaults(v, Default())

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, merr.WrapErrParameterInvalidMsg("unmarshal config: %s", err.Error())
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// setDefaults 逐项登记默认值，使 CHAT_* 环境变量能够覆盖每一个配置项。
func setDefaults(v *viper.Config, d *Config) {
	defaults := map[string]any{
		"server.tcp_addr":          d.Server.TCPAddr,
		"server.framing":           d.Server.Framing,
		"server.handshake_slack":   d.Server.HandshakeSlack,
		"server.handshake_timeout": d.Server.HandshakeTimeout,
		"server.write_timeout":     d.Server.WriteTimeout,
		"server.send_queue_size":   d.Server.SendQueueSize,

		"ws.enable": d.WS.Enable,
		"ws.addr":   d.WS.Addr,
		"ws.path":   d.WS.Path,

		"metrics.enable": d.Metrics.Enable,
		"metrics.addr":   d.Metrics.Addr,
		"metrics.path":   d.Metrics.Path,

		"activity.enable":       d.Activity.Enable,
		"activity.path":         d.Activity.Path,
		"activity.format":       d.Activity.Format,
		"activity.max_size_mb":  d.Activity.MaxSizeMB,
		"activity.max_backups":  d.Activity.MaxBackups,
		"activity.max_age_days": d.Activity.MaxAgeDays,
		"activity.compress":     d.Activity.Compress,

		"relay.max_clients":  d.Relay.MaxClients,
		"relay.name_size":    d.Relay.NameSize,
		"relay.min_name_len": d.Relay.MinNameLen,
		"relay.msg_size":     d.Relay.MsgSize,
		"relay.buff_size":    d.Relay.BuffSize,
	}
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
}

// Validate 校验配置的取值范围，返回所有不合法项的组合错误。
func (c *Config) Validate() error {
	var errs []error

	if c.Relay.MaxClients < 1 {
		errs = append(errs, merr.WrapErrParameterInvalidRange(1, 1<<16, c.Relay.MaxClients, "relay.max_clients"))
	}
	if c.Relay.MinNameLen < 1 {
		errs = append(errs, merr.WrapErrParameterInvalidRange(1, c.Relay.NameSize-1, c.Relay.MinNameLen, "relay.min_name_len"))
	}
	if c.Relay.NameSize-1 < c.Relay.MinNameLen {
		errs = append(errs, merr.WrapErrParameterInvalidMsg("relay.name_size %d leaves no room for names of %d characters", c.Relay.NameSize, c.Relay.MinNameLen))
	}
	if c.Relay.MsgSize < 1 {
		errs = append(errs, merr.WrapErrParameterInvalidRange(1, 1<<20, c.Relay.MsgSize, "relay.msg_size"))
	}
	if c.Relay.BuffSize < c.Relay.NameSize {
		errs = append(errs, merr.WrapErrParameterInvalidMsg("relay.buff_size %d is smaller than relay.name_size %d", c.Relay.BuffSize, c.Relay.NameSize))
	}

	if c.Server.TCPAddr == "" {
		errs = append(errs, merr.WrapErrParameterMissing("server.tcp_addr"))
	}
	if c.Server.Framing != "raw" && c.Server.Framing != "line" {
		errs = append(errs, merr.WrapErrParameterInvalid("raw|line", c.Server.Framing, "server.framing"))
	}
	if c.Server.HandshakeSlack < 0 {
		errs = append(errs, merr.WrapErrParameterInvalidRange(0, 1<<16, c.Server.HandshakeSlack, "server.handshake_slack"))
	}
	if c.Server.HandshakeTimeout < 0 || c.Server.WriteTimeout < 0 {
		errs = append(errs, merr.WrapErrParameterInvalidMsg("server timeouts must not be negative"))
	}

	if c.WS.Enable && c.WS.Addr == "" {
		errs = append(errs, merr.WrapErrParameterMissing("ws.addr"))
	}
	if c.Metrics.Enable && c.Metrics.Addr == "" {
		errs = append(errs, merr.WrapErrParameterMissing("metrics.addr"))
	}
	if c.Activity.Enable {
		if c.Activity.Path == "" {
			errs = append(errs, merr.WrapErrParameterMissing("activity.path"))
		}
		if c.Activity.Format != "text" && c.Activity.Format != "json" {
			errs = append(errs, merr.WrapErrParameterInvalid("text|json", c.Activity.Format, "activity.format"))
		}
	}

	return merr.Combine(errs...)
}

// PoolSize 返回处理连接的协程池容量。
func (c *Config) PoolSize() int {
	return c.Relay.MaxClients + c.Server.HandshakeSlack
}
