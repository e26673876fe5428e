package main

import (
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/ajitpratap0/protspace/pkg/config"
)

// envPrefix prefixes the environment variables that override flags, e.g.
// PROTSPACE_NO_SCORES for --no-scores.
const envPrefix = "PROTSPACE"

// newViper binds flags and their PROTSPACE_ environment variables. A flag
// given on the command line wins over the environment.
func newViper(flags *pflag.FlagSet) (*viper.Viper, error) {
	v := viper.New()
	if err := v.BindPFlags(flags); err != nil {
		return nil, err
	}
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()
	return v, nil
}

// loadConfig reads the configuration file named by --config, or the
// defaults, and applies the logging flags.
func loadConfig(v *viper.Viper) (*config.Config, error) {
	cfg := config.Default()
	if path := v.GetString("config"); path != "" {
		loaded, err := config.LoadFile(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	if v.IsSet("log-level") && v.GetString("log-level") != "" {
		cfg.Logging.Level = v.GetString("log-level")
	}
	if v.IsSet("log-format") && v.GetString("log-format") != "" {
		cfg.Logging.Encoding = v.GetString("log-format")
	}
	return cfg, nil
}

// stringList returns a list flag, or nil when it was not set. Environment
// values are comma separated.
func stringList(v *viper.Viper, name string) []string {
	if !v.IsSet(name) {
		return nil
	}
	var out []string
	for _, item := range v.GetStringSlice(name) {
		for _, part := range strings.Split(item, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
