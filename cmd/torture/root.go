package torture

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/ValentinKolb/urcu/cmd/util"
	"github.com/lni/dragonboat/v4/logger"
	gometrics "github.com/rcrowley/go-metrics"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var plog = logger.GetLogger("torture")

var (
	// TortureCmd stresses the containers with concurrent readers and writers and checks that
	// no reader ever observes reclaimed data
	TortureCmd = &cobra.Command{
		Use:   "torture",
		Short: "Stress test the rcu domain and the containers built on it",
		Long: `Runs concurrent readers and writers against each selected container.

Writers retire the items they remove through call_rcu (or a synchronous grace
period for every 16th update). A callback poisons the item, so a reader that
finds a poisoned item proves that a grace period ended too early. Queues and
stacks are checked for conservation and per-producer ordering instead.

The command fails if a violation was detected.`,
		PreRunE: processTortureConfig,
		RunE:    run,
	}
)

func init() {
	util.SetupDomainFlags(TortureCmd)
	util.SetupWorkloadFlags(TortureCmd)

	key := "dump-metrics"
	TortureCmd.Flags().Bool(key, false, util.WrapString("Print all collected meters and timers after the run"))
}

func processTortureConfig(cmd *cobra.Command, _ []string) error {
	return util.BindCommandFlags(cmd)
}

func run(_ *cobra.Command, _ []string) error {
	conf := util.GetConfig()

	fmt.Println("Configuration:")
	fmt.Println(conf.String())

	reg := gometrics.NewRegistry()
	var violations int64

	for _, w := range workloads {
		if !conf.HasContainer(w.name) {
			continue
		}

		e, err := newEnv(w.name, conf, reg)
		if err != nil {
			return err
		}

		plog.Infof("%s: running for %s", w.name, conf.Duration)
		ctx, cancel := context.WithTimeout(context.Background(), conf.Duration)
		start := time.Now()
		summary := w.run(ctx, e)
		cancel()
		e.finish()

		printResult(e, time.Since(start))
		if summary != "" {
			fmt.Println(summary)
		}
		violations += e.violations.Count()
	}

	if viper.GetBool("dump-metrics") {
		gometrics.WriteOnce(reg, os.Stdout)
	}

	if violations > 0 {
		return fmt.Errorf("torture: %d violations detected", violations)
	}
	fmt.Println("no violations detected")
	return nil
}

func printResult(e *env, elapsed time.Duration) {
	seconds := max(elapsed.Seconds(), 1e-9)
	reads, writes := e.reads.Count(), e.writes.Count()

	fmt.Printf("%-10s%12d reads (%.0f/s)\t%12d writes (%.0f/s)\t%d violations\n",
		e.name, reads, float64(reads)/seconds, writes, float64(writes)/seconds, e.violations.Count())

	if e.syncs.Count() > 0 {
		ps := e.syncs.Percentiles([]float64{0.5, 0.99})
		fmt.Printf("%-10ssynchronize: %d calls, p50 %s, p99 %s\n",
			"", e.syncs.Count(), time.Duration(ps[0]), time.Duration(ps[1]))
	}
	if e.barriers.Count() > 0 {
		fmt.Printf("%-10sbarrier: %d calls, mean %s, max %s\n",
			"", e.barriers.Count(), time.Duration(e.barriers.Mean()), time.Duration(e.barriers.Max()))
	}
}
