package main

import (
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/tebeka/atexit"

	"github.com/deeptree/echosim/memledger"
	"github.com/deeptree/echosim/monitoring"
	"github.com/deeptree/echosim/orchestration"
	"github.com/deeptree/echosim/recording"
)

var serveFlags struct {
	budgetBytes        uint64
	sweepInterval      time.Duration
	idleThreshold      time.Duration
	monitorPort        int
	dbPath             string
	openBrowser        bool
	fragmentationLimit float64
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the ledger with monitoring and event recording.",
	Run: func(cmd *cobra.Command, _ []string) {
		applyServeEnv(cmd)
		runServe()
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().Uint64Var(&serveFlags.budgetBytes,
		"budget-bytes", 4*memledger.GB,
		"maximum aggregate size the ledger may track")
	serveCmd.Flags().DurationVar(&serveFlags.sweepInterval,
		"sweep-interval", 60*time.Second,
		"period of the background liveness sweep")
	serveCmd.Flags().DurationVar(&serveFlags.idleThreshold,
		"idle-threshold", 300*time.Second,
		"idle time after which low-priority records become evictable")
	serveCmd.Flags().IntVar(&serveFlags.monitorPort,
		"monitor-port", 0,
		"port of the monitoring server, 0 picks a random port")
	serveCmd.Flags().StringVar(&serveFlags.dbPath,
		"db-path", "",
		"path of the event recording database, empty picks a unique name")
	serveCmd.Flags().BoolVar(&serveFlags.openBrowser,
		"open-browser", false,
		"open the monitoring page in the default browser")
	serveCmd.Flags().Float64Var(&serveFlags.fragmentationLimit,
		"fragmentation-limit", 0.3,
		"fragmentation ratio above which the orchestrator compacts")
}

// applyServeEnv lets environment variables stand in for flags the user did
// not set on the command line.
func applyServeEnv(cmd *cobra.Command) {
	if !cmd.Flags().Changed("budget-bytes") {
		serveFlags.budgetBytes =
			envUint64(EnvBudgetBytes, serveFlags.budgetBytes)
	}
	if !cmd.Flags().Changed("sweep-interval") {
		serveFlags.sweepInterval =
			envDuration(EnvSweepInterval, serveFlags.sweepInterval)
	}
	if !cmd.Flags().Changed("idle-threshold") {
		serveFlags.idleThreshold =
			envDuration(EnvIdleThreshold, serveFlags.idleThreshold)
	}
	if !cmd.Flags().Changed("monitor-port") {
		serveFlags.monitorPort = envInt(EnvMonitorPort, serveFlags.monitorPort)
	}
	if !cmd.Flags().Changed("db-path") {
		serveFlags.dbPath = envString(EnvDBPath, serveFlags.dbPath)
	}
}

func runServe() {
	ledger := memledger.MakeBuilder().
		WithBudgetBytes(serveFlags.budgetBytes).
		WithIdleThreshold(serveFlags.idleThreshold).
		WithSweepInterval(serveFlags.sweepInterval).
		Build("EchoLedger")

	writer := recording.NewSQLiteWriter(serveFlags.dbPath)
	writer.Init()
	ledger.AcceptHook(recording.NewLedgerEventRecorder(writer))

	orchestrator := orchestration.NewOrchestrator().
		WithFragmentationLimit(serveFlags.fragmentationLimit)
	orchestrator.RegisterLedger(ledger)
	orchestrator.Start()

	monitor := monitoring.NewMonitor().
		WithPortNumber(serveFlags.monitorPort)
	if serveFlags.openBrowser {
		monitor.WithBrowser()
	}
	monitor.RegisterLedger(ledger)
	monitor.StartServer()

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt, syscall.SIGTERM)
	<-interrupt

	orchestrator.Stop()
	_ = ledger.Destroy()
	atexit.Exit(0)
}
