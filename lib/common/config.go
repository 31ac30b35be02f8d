package common

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ValentinKolb/urcu/lib/lfht"
	"github.com/ValentinKolb/urcu/lib/rcu"
)

// --------------------------------------------------------------------------
// helper functions to build the library options
// --------------------------------------------------------------------------

// DomainOptions converts the Config to the options of an rcu.Domain
func (c *Config) DomainOptions(name string) (*rcu.Options, error) {
	flavor, err := rcu.ParseFlavor(c.Flavor)
	if err != nil {
		return nil, err
	}

	opts := rcu.DefaultOptions()
	opts.Name = name
	opts.Flavor = flavor
	opts.Debug = c.Debug
	opts.SlowGracePeriod = c.SlowGracePeriod
	opts.Reclaimer = &rcu.ReclaimerOptions{
		Name:         name,
		Worker:       c.ReclaimerWorker,
		WakeInterval: c.ReclaimerWakeInterval,
		Debug:        c.Debug,
	}
	return opts, nil
}

// TableOptions converts the Config to the options of a hash table with integer keys
func (c *Config) TableOptions(name string) *lfht.Options[uint64] {
	opts := lfht.DefaultOptions[uint64]()
	opts.Name = name
	opts.InitialSize = c.TableInitialSize
	opts.MinSize = c.TableMinSize
	opts.MaxSize = c.TableMaxSize
	opts.AutoResize = c.TableAutoResize
	return opts
}

// --------------------------------------------------------------------------
// CLI configuration struct
// --------------------------------------------------------------------------

// Config holds the configuration shared by the torture and perf commands.
type Config struct {
	// domain parameters
	Flavor                string
	Debug                 bool
	SlowGracePeriod       time.Duration
	ReclaimerWorker       bool
	ReclaimerWakeInterval time.Duration

	// hash table parameters
	TableInitialSize uint64
	TableMinSize     uint64
	TableMaxSize     uint64
	TableAutoResize  bool

	// workload parameters
	Readers    int
	Writers    int
	Duration   time.Duration
	KeySpread  int
	Containers []string

	// Logging configuration
	LogLevel string
}

// HasContainer reports whether the container with the given name is selected.
// An empty selection selects every container.
func (c *Config) HasContainer(name string) bool {
	if len(c.Containers) == 0 {
		return true
	}
	for _, container := range c.Containers {
		if strings.TrimSpace(container) == name {
			return true
		}
	}
	return false
}

// String returns a formatted string representation of the configuration
func (c *Config) String() string {
	var sb strings.Builder

	// Create helper functions for consistent formatting
	addSection := func(title string) {
		sb.WriteString("\n")
		sb.WriteString(fmt.Sprintf("%s\n", strings.ToUpper(title)))
	}

	addField := func(name, value string) {
		sb.WriteString(fmt.Sprintf("  %-22s: %s\n", name, value))
	}

	addSection("RCU Domain")
	addField("Flavor", c.Flavor)
	addField("Debug", strconv.FormatBool(c.Debug))
	addField("Slow Grace Period", c.SlowGracePeriod.String())
	addField("Reclaimer Worker", strconv.FormatBool(c.ReclaimerWorker))
	addField("Reclaimer Wake", c.ReclaimerWakeInterval.String())

	addSection("Hash Table")
	addField("Initial Size", strconv.FormatUint(c.TableInitialSize, 10))
	addField("Min Size", strconv.FormatUint(c.TableMinSize, 10))
	addField("Max Size", strconv.FormatUint(c.TableMaxSize, 10))
	addField("Auto Resize", strconv.FormatBool(c.TableAutoResize))

	addSection("Workload")
	addField("Readers", strconv.Itoa(c.Readers))
	addField("Writers", strconv.Itoa(c.Writers))
	addField("Duration", c.Duration.String())
	addField("Key Spread", strconv.Itoa(c.KeySpread))
	if len(c.Containers) == 0 {
		addField("Containers", "all")
	} else {
		addField("Containers", strings.Join(c.Containers, ", "))
	}

	addSection("Logging")
	addField("Log Level", c.LogLevel)

	return sb.String()
}
