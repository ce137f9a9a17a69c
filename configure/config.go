package configure

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	nested "github.com/antonfisher/nested-logrus-formatter"
	"github.com/joho/godotenv"
	"github.com/kr/pretty"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"gopkg.in/natefinch/lumberjack.v2"
)

type ClientCfg struct {
	Level           string  `mapstructure:"level" json:"level"`
	ConfigFile      string  `mapstructure:"config_file" json:"config_file"`
	APIBaseURL      string  `mapstructure:"api_base_url" json:"api_base_url"`
	APIRateLimit    float64 `mapstructure:"api_rate_limit" json:"api_rate_limit"`
	APIRateBurst    int     `mapstructure:"api_rate_burst" json:"api_rate_burst"`
	SessionBackend  string  `mapstructure:"session_backend" json:"session_backend"`
	SessionPath     string  `mapstructure:"session_path" json:"session_path"`
	RedisURI        string  `mapstructure:"redis_uri" json:"redis_uri"`
	MongoURI        string  `mapstructure:"mongo_uri" json:"mongo_uri"`
	MongoDB         string  `mapstructure:"mongo_db" json:"mongo_db"`
	PostgresURI     string  `mapstructure:"postgres_uri" json:"postgres_uri"`
	ListenerNetwork string  `mapstructure:"listener_network" json:"listener_network"`
	ListenerAddress string  `mapstructure:"listener_address" json:"listener_address"`
	LogFile         string  `mapstructure:"log_file" json:"log_file"`
	ExitCode        int     `mapstructure:"exit_code" json:"exit_code"`
}

const DefaultAPIBaseURL = "https://blockchain-voting-app-kappa.vercel.app"

// default config
var defaultConf = ClientCfg{
	Level:           "info",
	ConfigFile:      "config.yaml",
	APIBaseURL:      DefaultAPIBaseURL,
	APIRateBurst:    1,
	SessionBackend:  "sqlite",
	SessionPath:     "session.db",
	MongoDB:         "vote",
	ListenerNetwork: "tcp",
	ListenerAddress: "127.0.0.1:3000",
}

var backends = map[string]bool{
	"sqlite":   true,
	"redis":    true,
	"mongo":    true,
	"postgres": true,
	"memory":   true,
}

func initLog(cfg ClientCfg) {
	if l, err := log.ParseLevel(cfg.Level); err == nil {
		log.SetLevel(l)
	}
	log.SetFormatter(&nested.Formatter{
		HideKeys:    true,
		FieldsOrder: []string{"component", "category"},
	})
	if cfg.LogFile != "" {
		log.SetOutput(io.MultiWriter(os.Stderr, &lumberjack.Logger{
			Filename:   cfg.LogFile,
			MaxSize:    10,
			MaxBackups: 3,
			MaxAge:     28,
		}))
	}
}

func newFlagSet() *pflag.FlagSet {
	fs := pflag.NewFlagSet("vote", pflag.ContinueOnError)
	fs.String("config_file", defaultConf.ConfigFile, "configure filename")
	fs.String("level", defaultConf.Level, "Log level")
	fs.String("api_base_url", defaultConf.APIBaseURL, "Base URL of the voting API.")
	fs.Float64("api_rate_limit", 0, "Maximum requests per second to the voting API, 0 for no limit.")
	fs.Int("api_rate_burst", defaultConf.APIRateBurst, "Burst allowed above api_rate_limit.")
	fs.String("session_backend", defaultConf.SessionBackend, "Session storage backend: sqlite, redis, mongo, postgres or memory.")
	fs.String("session_path", defaultConf.SessionPath, "File used by the sqlite session backend.")
	fs.String("redis_uri", "", "Address for the redis server.")
	fs.String("mongo_uri", "", "Address for the mongodb server.")
	fs.String("mongo_db", defaultConf.MongoDB, "Database for the mongodb connection.")
	fs.String("postgres_uri", "", "Connection string for the postgres server.")
	fs.String("listener_network", defaultConf.ListenerNetwork, "Network of the presentation gateway listener.")
	fs.String("listener_address", defaultConf.ListenerAddress, "Address of the presentation gateway listener.")
	fs.String("log_file", "", "Also write logs to this file, rotated.")
	fs.Int("exit_code", 0, "Status code for successful and graceful shutdown, [0-125].")
	return fs
}

// Load resolves the configuration from defaults, flags, the config file, a .env file and the
// environment, in increasing precedence for everything but flags which win over all.
// It returns the resolved settings and the positional arguments left after flag parsing.
func Load(args []string) (ClientCfg, []string, error) {
	v := viper.New()

	b, err := json.Marshal(defaultConf)
	if err != nil {
		return ClientCfg{}, nil, err
	}
	def := viper.New()
	def.SetConfigType("json")
	if err = def.ReadConfig(bytes.NewReader(b)); err != nil {
		return ClientCfg{}, nil, err
	}
	if err = v.MergeConfigMap(def.AllSettings()); err != nil {
		return ClientCfg{}, nil, err
	}

	// Flags
	fs := newFlagSet()
	if err = fs.Parse(args); err != nil {
		return ClientCfg{}, nil, err
	}
	if err = v.BindPFlags(fs); err != nil {
		return ClientCfg{}, nil, err
	}

	// File
	v.SetConfigFile(v.GetString("config_file"))
	v.AddConfigPath(".")
	if err = v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
			return ClientCfg{}, nil, fmt.Errorf("config file, err=%w", err)
		}
		log.Warning(err)
		log.Warning("Using default config")
	}

	// Environment
	if err = godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Warnf("dotenv, err=%v", err)
	}
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AllowEmptyEnv(true)
	v.AutomaticEnv()

	c := ClientCfg{}
	if err = v.Unmarshal(&c); err != nil {
		return ClientCfg{}, nil, err
	}
	if err = c.validate(); err != nil {
		return ClientCfg{}, nil, err
	}

	initLog(c)
	log.Debugf("Current configurations: \n%# v", pretty.Formatter(c))

	return c, fs.Args(), nil
}

func (c *ClientCfg) validate() error {
	if c.ExitCode > 125 || c.ExitCode < 0 {
		log.Warnf("Invalid exit code specified in config (%v), using 0 as new exit code.", c.ExitCode)
		c.ExitCode = 0
	}
	if c.APIBaseURL == "" {
		return fmt.Errorf("api_base_url is required")
	}
	if !backends[c.SessionBackend] {
		return fmt.Errorf("unknown session_backend %q", c.SessionBackend)
	}
	if c.SessionBackend == "redis" && c.RedisURI == "" {
		return fmt.Errorf("redis_uri is required for the redis session backend")
	}
	if c.SessionBackend == "mongo" && c.MongoURI == "" {
		return fmt.Errorf("mongo_uri is required for the mongo session backend")
	}
	if c.SessionBackend == "postgres" && c.PostgresURI == "" {
		return fmt.Errorf("postgres_uri is required for the postgres session backend")
	}
	return nil
}
