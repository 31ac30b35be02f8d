package util

import (
	"strings"
	"time"

	"github.com/ValentinKolb/urcu/lib/common"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	// Wrap is the number of characters to Wrap the help text at
	Wrap int = 50
)

// WrapString wraps a string at Wrap characters
func WrapString(text string) string {
	var wrappedLines []string
	var currentLine strings.Builder
	lineWidth := 0

	for _, word := range strings.Fields(text) {
		wordWidth := len(word)

		// Check if we need to wrap
		if lineWidth > 0 && lineWidth+1+wordWidth > Wrap {
			wrappedLines = append(wrappedLines, currentLine.String())
			currentLine.Reset()
			lineWidth = 0
		}

		if lineWidth > 0 {
			currentLine.WriteString(" ")
			lineWidth++
		}

		currentLine.WriteString(word)
		lineWidth += wordWidth
	}

	if currentLine.Len() > 0 {
		wrappedLines = append(wrappedLines, currentLine.String())
	}

	return strings.Join(wrappedLines, "\n")
}

// SetupDomainFlags adds the flags that configure the rcu domain and the hash table
func SetupDomainFlags(cmd *cobra.Command) {
	key := "flavor"
	cmd.PersistentFlags().String(key, "memb", WrapString("The rcu flavor to use (memb, qsbr)"))

	key = "debug"
	cmd.PersistentFlags().Bool(key, false, WrapString("Enable the debug checks of the library (panic on API misuse)"))

	key = "slow-grace-period"
	cmd.PersistentFlags().Duration(key, 0, WrapString("Log a warning for grace periods that take longer than this (0 = never)"))

	key = "reclaimer-worker"
	cmd.PersistentFlags().Bool(key, true, WrapString("Invoke rcu callbacks on a background worker. If disabled, callbacks only run on barrier"))

	key = "reclaimer-wake"
	cmd.PersistentFlags().Duration(key, 0, WrapString("Longest time the idle reclaimer worker sleeps (0 = library default)"))

	key = "table-initial-size"
	cmd.PersistentFlags().Uint64(key, 16, WrapString("Initial number of buckets of the hash table"))

	key = "table-min-size"
	cmd.PersistentFlags().Uint64(key, 1, WrapString("The hash table never shrinks below this number of buckets"))

	key = "table-max-size"
	cmd.PersistentFlags().Uint64(key, 1<<24, WrapString("The hash table never grows beyond this number of buckets"))

	key = "table-auto-resize"
	cmd.PersistentFlags().Bool(key, true, WrapString("Resize the hash table automatically based on its load factor"))
}

// SetupWorkloadFlags adds the flags that describe the generated load
func SetupWorkloadFlags(cmd *cobra.Command) {
	key := "readers"
	cmd.PersistentFlags().Int(key, 4, WrapString("Number of reader goroutines"))

	key = "writers"
	cmd.PersistentFlags().Int(key, 2, WrapString("Number of writer goroutines"))

	key = "duration"
	cmd.PersistentFlags().Duration(key, 5*time.Second, WrapString("How long each workload runs"))

	key = "keys"
	cmd.PersistentFlags().Int(key, 1000, WrapString("How many different keys the hash table workload uses"))

	key = "containers"
	cmd.PersistentFlags().String(key, "", WrapString("Containers to test (comma separated - e.g. list,lfht). Empty selects all of list, lfht, wfcq, lfq, wfstack, lfstack"))
}

// InitConfig initializes configuration from environment variables
func InitConfig() {
	// load env files
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")

	// initialize viper
	viper.SetEnvPrefix("urcu")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv() // read in environment variables that match
}

// GetConfig reads the configuration from viper
func GetConfig() *common.Config {
	conf := &common.Config{
		Flavor:                viper.GetString("flavor"),
		Debug:                 viper.GetBool("debug"),
		SlowGracePeriod:       viper.GetDuration("slow-grace-period"),
		ReclaimerWorker:       viper.GetBool("reclaimer-worker"),
		ReclaimerWakeInterval: viper.GetDuration("reclaimer-wake"),
		TableInitialSize:      viper.GetUint64("table-initial-size"),
		TableMinSize:          viper.GetUint64("table-min-size"),
		TableMaxSize:          viper.GetUint64("table-max-size"),
		TableAutoResize:       viper.GetBool("table-auto-resize"),
		Readers:               viper.GetInt("readers"),
		Writers:               viper.GetInt("writers"),
		Duration:              viper.GetDuration("duration"),
		KeySpread:             viper.GetInt("keys"),
		LogLevel:              viper.GetString("log-level"),
	}

	if containers := viper.GetString("containers"); containers != "" {
		conf.Containers = strings.Split(containers, ",")
	}

	return conf
}

// BindCommandFlags binds a command's flags to viper and initializes the loggers
func BindCommandFlags(cmd *cobra.Command) error {
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}
	return common.InitLoggers(viper.GetString("log-level"))
}
