package viper

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/cockroachdb/errors"
	spfviper "github.com/spf13/viper"
)

// Config 封装 spf13/viper 实例，对外提供精简的 YAML/JSON 配置加载接口，
// 并支持以环境变量覆盖配置项。
type Config struct {
	v *spfviper.Viper
}

// Option 用于定制 Config。
type Option func(*Config)

// WithEnvPrefix 启用环境变量覆盖，key 中的 "." 替换为 "_"，
// 例如前缀 CHAT 下 server.tcp_addr 对应 CHAT_SERVER_TCP_ADDR。
func WithEnvPrefix(prefix string) Option {
	return func(c *Config) {
		c.v.SetEnvPrefix(prefix)
		c.v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
		c.v.AutomaticEnv()
	}
}

// New 创建一个空的 Config。
func New(opts ...Option) *Config {
	c := &Config{
		v: spfviper.New(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// LoadFile 将 YAML 或 JSON 配置文件加载到 Config 中。
// 文件类型通过扩展名（.yaml/.yml/.json）推断。
func (c *Config) LoadFile(path string) error {
	c.v.SetConfigFile(path)

	switch ext := filepath.Ext(path); ext {
	case ".yaml", ".yml":
		c.v.SetConfigType("yaml")
	case ".json":
		c.v.SetConfigType("json")
	default:
		// 让 viper 自行推断类型，或在读取时返回清晰的错误信息。
	}

	if err := c.v.ReadInConfig(); err != nil {
		return errors.Wrapf(err, "read config %s", path)
	}
	return nil
}

// IsNotExist 判断 LoadFile 返回的错误是否由文件不存在引起。
func IsNotExist(err error) bool {
	return errors.Is(err, os.ErrNotExist)
}

// SetDefault 设置 key 的默认值。
// 环境变量只会覆盖已知的 key，因此需要被覆盖的配置项都应设置默认值。
func (c *Config) SetDefault(key string, value any) {
	c.v.SetDefault(key, value)
}

// Set 显式设置 key 的值，优先级最高。
func (c *Config) Set(key string, value any) {
	c.v.Set(key, value)
}

func (c *Config) IsSet(key string) bool {
	return c.v.IsSet(key)
}

func (c *Config) GetString(key string) string {
	return c.v.GetString(key)
}

// Unmarshal 将完整配置反序列化到 dst。
// dst 应为结构体或 map 的指针，字段名由 mapstructure tag 指定。
func (c *Config) Unmarshal(dst any) error {
	return c.v.Unmarshal(dst)
}

// UnmarshalKey 将指定 key 对应的子配置反序列化到 dst。
func (c *Config) UnmarshalKey(key string, dst any) error {
	return c.v.UnmarshalKey(key, dst)
}
