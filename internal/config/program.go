package config

import (
	"errors"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// ProgramConfig holds affiliate program settings that operators may change
// without a restart.
type ProgramConfig struct {
	DefaultCommissionRate     float64 `mapstructure:"defaultCommissionRate"`
	DefaultDurationMonths     int     `mapstructure:"defaultDurationMonths"`
	DefaultSubAffiliateRate   float64 `mapstructure:"defaultSubAffiliateRate"`
	MinimumPayoutCents        int64   `mapstructure:"minimumPayoutCents"`
	NotificationSenderName    string  `mapstructure:"notificationSenderName"`
	AllowAffiliateRecruitment bool    `mapstructure:"allowAffiliateRecruitment"`
}

func DefaultProgramConfig() ProgramConfig {
	return ProgramConfig{
		DefaultCommissionRate:     30,
		DefaultDurationMonths:     12,
		DefaultSubAffiliateRate:   10,
		MinimumPayoutCents:        0,
		NotificationSenderName:    "Hightide Affiliates",
		AllowAffiliateRecruitment: true,
	}
}

type ProgramHolder struct {
	current atomic.Value // holds ProgramConfig
}

// NewStaticProgramHolder returns a holder that never reloads.
func NewStaticProgramHolder(cfg ProgramConfig) *ProgramHolder {
	holder := &ProgramHolder{}
	holder.current.Store(cfg)
	return holder
}

func NewProgramHolder(cfg Config, log *zap.Logger) (*ProgramHolder, error) {
	log = log.Named("config.program")
	v := viper.New()

	defaults := DefaultProgramConfig()
	v.SetDefault("program.defaultCommissionRate", defaults.DefaultCommissionRate)
	v.SetDefault("program.defaultDurationMonths", defaults.DefaultDurationMonths)
	v.SetDefault("program.defaultSubAffiliateRate", defaults.DefaultSubAffiliateRate)
	v.SetDefault("program.minimumPayoutCents", defaults.MinimumPayoutCents)
	v.SetDefault("program.notificationSenderName", defaults.NotificationSenderName)
	v.SetDefault("program.allowAffiliateRecruitment", defaults.AllowAffiliateRecruitment)

	if cfg.ProgramConfigFile != "" {
		v.SetConfigFile(cfg.ProgramConfigFile)
	} else {
		v.SetConfigName("program")
		v.SetConfigType("yml")
		v.AddConfigPath("/etc/hightide")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("HIGHTIDE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	watch := true
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
		watch = false
	}

	var program ProgramConfig
	if err := v.UnmarshalKey("program", &program); err != nil {
		return nil, err
	}
	if err := validateProgramConfig(program); err != nil {
		return nil, err
	}

	holder := NewStaticProgramHolder(program)
	if !watch {
		return holder, nil
	}

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		var updated ProgramConfig
		if err := v.UnmarshalKey("program", &updated); err != nil {
			log.Warn("program config reload failed", zap.Error(err))
			return
		}
		if err := validateProgramConfig(updated); err != nil {
			log.Warn("invalid program config ignored", zap.Error(err))
			return
		}
		holder.Set(updated)
		log.Info("program config reloaded", zap.String("file", e.Name))
	})

	return holder, nil
}

func (h *ProgramHolder) Get() ProgramConfig {
	return h.current.Load().(ProgramConfig)
}

// Set replaces the current program config. Used by the file watcher and by
// tests that flip program switches.
func (h *ProgramHolder) Set(cfg ProgramConfig) {
	h.current.Store(cfg)
}

func validateProgramConfig(cfg ProgramConfig) error {
	if cfg.DefaultCommissionRate < 0 || cfg.DefaultCommissionRate > 100 {
		return errors.New("program.defaultCommissionRate must be between 0 and 100")
	}
	if cfg.DefaultSubAffiliateRate < 0 || cfg.DefaultSubAffiliateRate > 100 {
		return errors.New("program.defaultSubAffiliateRate must be between 0 and 100")
	}
	if cfg.DefaultDurationMonths < 1 {
		return errors.New("program.defaultDurationMonths must be positive")
	}
	if cfg.MinimumPayoutCents < 0 {
		return errors.New("program.minimumPayoutCents cannot be negative")
	}
	return nil
}
