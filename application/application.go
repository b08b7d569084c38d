package application

import (
	"os"
	"strings"

	"github.com/cockroachdb/errors"

	"github.com/lk2023060901/danmu-chat-relay/internal/config"
	zlog "github.com/lk2023060901/danmu-chat-relay/pkg/log"
	zviper "github.com/lk2023060901/danmu-chat-relay/pkg/util/viper"
)

const (
	// EnvPrefix 为所有环境变量的前缀。
	EnvPrefix = "CHAT"

	defaultConfigPath = "./config.yaml"
	envConfigPath     = EnvPrefix + "_CONFIG_FILE_PATH"
)

// Application is the main runtime container for the relay process.
// It owns configuration and manages common dependencies.
type Application struct {
	cfg     *zviper.Config
	relay   *config.Config
	loggers map[string]*zlog.MLogger
}

// New creates a new Application instance.
func New() *Application {
	return &Application{}
}

// Run parses command-line arguments and loads configuration file
// using the following priority:
//  1. Default: ./config.yaml (may be absent)
//  2. Env: CHAT_CONFIG_FILE_PATH
//  3. CLI: --config <path> or --config=<path>
//
// Every key can additionally be overridden by CHAT_<SECTION>_<KEY> env vars.
func (a *Application) Run(args []string) error {
	cfg, err := a.loadConfig(args)
	if err != nil {
		return err
	}
	a.cfg = cfg

	if err := a.initLogging(); err != nil {
		return err
	}

	relay, err := config.Load(cfg)
	if err != nil {
		return errors.Wrap(err, "load relay config")
	}
	a.relay = relay
	return nil
}

// Config returns the loaded configuration, if any.
func (a *Application) Config() *zviper.Config {
	return a.cfg
}

// Relay returns the typed relay configuration.
func (a *Application) Relay() *config.Config {
	return a.relay
}

// Logger returns a named logger created from configuration.
// If the name is unknown, it falls back to the global logger.
func (a *Application) Logger(name string) *zlog.MLogger {
	if a.loggers == nil {
		return &zlog.MLogger{Logger: zlog.L()}
	}
	if lg, ok := a.loggers[name]; ok && lg != nil {
		return lg
	}
	return &zlog.MLogger{Logger: zlog.L()}
}

// loadConfig resolves config file path and loads it via viper wrapper.
func (a *Application) loadConfig(args []string) (*zviper.Config, error) {
	configPath := defaultConfigPath
	explicit := false

	if envPath := os.Getenv(envConfigPath); envPath != "" {
		configPath = envPath
		explicit = true
	}

	for i := 0; i < len(args); i++ {
		arg := args[i]
		if arg == "--config" {
			if i+1 >= len(args) {
				return nil, errors.New("missing value after --config")
			}
			configPath = args[i+1]
			explicit = true
			i++
			continue
		}
		if strings.HasPrefix(arg, "--config=") {
			val := strings.TrimPrefix(arg, "--config=")
			if val != "" {
				configPath = val
				explicit = true
			}
			continue
		}
	}

	cfg := zviper.New(zviper.WithEnvPrefix(EnvPrefix))
	if err := cfg.LoadFile(configPath); err != nil {
		if !explicit && zviper.IsNotExist(err) {
			return cfg, nil
		}
		return nil, errors.Wrapf(err, "failed to load config file %q", configPath)
	}

	return cfg, nil
}

// initLogging initializes global and module-level loggers.
func (a *Application) initLogging() error {
	if err := a.initGlobalLoggerFromEnv(); err != nil {
		return err
	}
	if err := a.initModuleLoggersFromConfig(); err != nil {
		return err
	}
	return nil
}

// initGlobalLoggerFromEnv configures the process-wide logger based on CHAT_LOG_* env vars.
//
// Priority:
//   - CHAT_LOG_ENABLE: "1"/"true" to enable outputs (default true).
//   - CHAT_LOG_LEVEL: log level (default "info").
//   - CHAT_LOG_STDOUT: whether to log to stdout (default true).
//   - CHAT_LOG_FILE_DIR: log directory.
//   - CHAT_LOG_FILE: log file name (empty means no file).
//   - CHAT_LOG_FORMAT: log format ("text" or "json", default "text").
func (a *Application) initGlobalLoggerFromEnv() error {
	enabled := getenvBool(EnvPrefix+"_LOG_ENABLE", true)

	cfg := &zlog.Config{
		Level:             getenvDefault(EnvPrefix+"_LOG_LEVEL", "info"),
		Format:            getenvDefault(EnvPrefix+"_LOG_FORMAT", zlog.FormatText),
		Stdout:            getenvBool(EnvPrefix+"_LOG_STDOUT", true),
		DisableStacktrace: true,
		File: zlog.FileLogConfig{
			RootPath: getenvDefault(EnvPrefix+"_LOG_FILE_DIR", ""),
			Filename: getenvDefault(EnvPrefix+"_LOG_FILE", ""),
		},
	}

	// When not enabled, direct all outputs to a discarded sink.
	if !enabled {
		cfg.Stdout = false
		cfg.File.Filename = ""
	}

	logger, props, err := zlog.InitLogger(cfg)
	if err != nil {
		return errors.Wrap(err, "init global logger from env")
	}
	zlog.ReplaceGlobals(logger, props)
	return nil
}

// initModuleLoggersFromConfig creates named loggers from YAML config under "logging" key.
//
// Example:
//
//	logging:
//	  relay:
//	    level: debug
//	    stdout: true
//	    file:
//	      rootpath: ./logs
//	      filename: relay.log
func (a *Application) initModuleLoggersFromConfig() error {
	if a.cfg == nil || !a.cfg.IsSet("logging") {
		return nil
	}

	raw := make(map[string]zlog.Config)
	if err := a.cfg.UnmarshalKey("logging", &raw); err != nil {
		return err
	}
	if len(raw) == 0 {
		return nil
	}

	a.loggers = make(map[string]*zlog.MLogger, len(raw))
	for name, lc := range raw {
		cfgCopy := lc
		logger, _, err := zlog.InitLogger(&cfgCopy)
		if err != nil {
			return errors.Wrapf(err, "init module logger %q", name)
		}
		a.loggers[name] = &zlog.MLogger{Logger: logger}
	}

	return nil
}

func getenvDefault(key, def string) string {
	val := strings.TrimSpace(os.Getenv(key))
	if val == "" {
		return def
	}
	return val
}

func getenvBool(key string, def bool) bool {
	val := strings.TrimSpace(os.Getenv(key))
	if val == "" {
		return def
	}
	switch strings.ToLower(val) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return def
	}
}
