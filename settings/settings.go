package settings

import (
	"errors"
	"os"
	"path/filepath"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

const (
	SETTINGS_DIR      = ".ndecrypt"
	SETTINGS_FILENAME = "ndecrypt"
	ENV_PREFIX        = "NDECRYPT"
	KEYS_BIN_FILENAME = "keys.bin"
	KEYS_TXT_FILENAME = "aes_keys.txt"
	NDS_SEED_FILENAME = "nds_seed.bin"
)

// Config keys, also used as flag names where a flag exists.
const (
	KeyFileKey     = "keyfile"
	CitraKey       = "use_citra_keyfile"
	NDSSeedKey     = "nds_seed"
	DevelopmentKey = "development"
	DebugKey       = "debug"
	NoSummaryKey   = "no_summary"
)

// Setting of the application
type AppSettings struct {
	KeyFile         string `mapstructure:"keyfile"`
	UseCitraKeyFile bool   `mapstructure:"use_citra_keyfile"`
	NDSSeed         string `mapstructure:"nds_seed"`
	Development     bool   `mapstructure:"development"`
	Debug           bool   `mapstructure:"debug"`
	NoSummary       bool   `mapstructure:"no_summary"`
	// File the settings were read from, empty when running on defaults.
	ConfigFile string `mapstructure:"-"`
}

// KeyFileFormat returns the format of the configured key file.
func (a *AppSettings) KeyFileFormat() KeyFileFormat {
	if a.UseCitraKeyFile {
		return KeyFileText
	}
	return KeyFileBinary
}

// ReadSettings resolves the settings from defaults, ndecrypt.yaml in the working folder or
// the home settings folder, NDECRYPT_ environment variables and the given flags, in
// increasing priority. flags may be nil.
func ReadSettings(workingFolder string, flags *pflag.FlagSet) (*AppSettings, error) {
	v := viper.New()
	v.SetConfigName(SETTINGS_FILENAME)
	v.SetConfigType("yaml")
	v.AddConfigPath(workingFolder)
	if home, err := os.UserHomeDir(); err == nil {
		v.AddConfigPath(filepath.Join(home, SETTINGS_DIR))
	}

	v.SetEnvPrefix(ENV_PREFIX)
	v.AutomaticEnv()

	v.SetDefault(KeyFileKey, "")
	v.SetDefault(CitraKey, false)
	v.SetDefault(NDSSeedKey, filepath.Join(workingFolder, NDS_SEED_FILENAME))
	v.SetDefault(DevelopmentKey, false)
	v.SetDefault(DebugKey, false)
	v.SetDefault(NoSummaryKey, false)

	if flags != nil {
		if err := bindFlags(v, flags); err != nil {
			return nil, err
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
		zap.S().Debugf("no %v.yaml found, using defaults", SETTINGS_FILENAME)
	}

	a := &AppSettings{}
	if err := v.Unmarshal(a); err != nil {
		return nil, err
	}
	a.ConfigFile = v.ConfigFileUsed()

	if a.KeyFile == "" {
		name := KEYS_BIN_FILENAME
		if a.UseCitraKeyFile {
			name = KEYS_TXT_FILENAME
		}
		a.KeyFile = filepath.Join(workingFolder, name)
	}
	return a, nil
}

// flag names differ from the config keys for the citra switch and the summary toggle.
var flagNames = map[string]string{
	KeyFileKey:     "keyfile",
	CitraKey:       "citra",
	NDSSeedKey:     "nds-seed",
	DevelopmentKey: "dev",
	DebugKey:       "debug",
	NoSummaryKey:   "no-summary",
}

func bindFlags(v *viper.Viper, flags *pflag.FlagSet) error {
	for key, name := range flagNames {
		flag := flags.Lookup(name)
		if flag == nil {
			continue
		}
		if err := v.BindPFlag(key, flag); err != nil {
			return err
		}
	}
	return nil
}
