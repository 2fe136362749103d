package cmd

import (
	"fmt"
	"io"
	"log"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/sarchlab/tilesim/analysis"
	"github.com/sarchlab/tilesim/config"
	"github.com/sarchlab/tilesim/datarecording"
	"github.com/sarchlab/tilesim/mem/coherence/platform"
	"github.com/sarchlab/tilesim/monitoring"
	"github.com/sarchlab/tilesim/sim"
	"github.com/sarchlab/tilesim/tracing"
)

// SummaryTableName is the table that holds the counters of a recorded run.
const SummaryTableName = "summary"

type runOptions struct {
	cfg           config.Config
	envFile       string
	record        string
	trafficPeriod float64
	monitor       bool
	monitorPort   int
	openBrowser   bool
	traceLog      string
	parallelIDs   bool
}

func newRunCmd() *cobra.Command {
	opts := &runOptions{cfg: config.Default()}

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Run a random workload and verify coherence.",
		Long: `Run builds the system described by the defaults, the --env-file, ` +
			`the TILESIM_* environment and the flags, in increasing priority. ` +
			`It fails if a load returns a stale value or if the directories ` +
			`disagree with the caches at the end.`,
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(opts.envFile, configOverrides(cmd))
			if err != nil {
				return err
			}

			if opts.parallelIDs {
				sim.UseParallelIDGenerator()
			}

			return run(cfg, opts, cmd.OutOrStdout())
		},
	}

	addConfigFlags(runCmd, &opts.cfg)

	f := runCmd.Flags()
	f.StringVar(&opts.envFile, "env-file", "",
		"dotenv file with TILESIM_* parameters")
	f.StringVar(&opts.record, "record", "",
		"record the summary, the run and the transactions into this sqlite "+
			"file, without the .sqlite3 suffix")
	f.Float64Var(&opts.trafficPeriod, "traffic-period", 0,
		"seconds of simulated time per recorded traffic sample, "+
			"0 for one sample per run")
	f.BoolVar(&opts.monitor, "monitor", false, "serve the monitoring dashboard")
	f.IntVar(&opts.monitorPort, "monitor-port", 0,
		"port of the monitoring server, random if unset")
	f.BoolVar(&opts.openBrowser, "open-browser", false,
		"open the monitoring dashboard in a browser")
	f.StringVar(&opts.traceLog, "trace-log", "",
		"write every event and port message into this file")
	f.BoolVar(&opts.parallelIDs, "parallel-ids", false,
		"use globally unique message and task IDs instead of sequential ones")

	return runCmd
}

// flagName turns a TILESIM_* parameter key into a flag name.
func flagName(key string) string {
	return strings.ToLower(strings.ReplaceAll(key, "_", "-"))
}

func addConfigFlags(cmd *cobra.Command, c *config.Config) {
	f := cmd.Flags()

	f.IntVar(&c.NumTiles, "num-tiles", c.NumTiles, "number of tiles")
	f.IntVar(&c.NumDirectories, "num-directories", c.NumDirectories,
		"number of tiles that host a directory")
	f.IntVar(&c.CacheLineSize, "cache-line-size", c.CacheLineSize,
		"cache line size in bytes")
	f.StringVar(&c.Protocol, "protocol", c.Protocol, "msi or mosi")
	f.StringVar(&c.DirectoryType, "directory-type", c.DirectoryType,
		"full_map, limited_no_broadcast, limited_broadcast, ackwise "+
			"or limitless")
	f.IntVar(&c.MaxHWSharers, "max-hw-sharers", c.MaxHWSharers,
		"sharers tracked in hardware by limited schemes")
	f.IntVar(&c.DirectoryTotalEntries, "directory-total-entries",
		c.DirectoryTotalEntries, "entries of each directory")
	f.IntVar(&c.DirectoryAssociativity, "directory-associativity",
		c.DirectoryAssociativity, "ways of each directory")
	f.Uint64Var(&c.DirectoryAccessCycles, "directory-access-cycles",
		c.DirectoryAccessCycles, "cycles to look up a directory entry")
	f.Uint64Var(&c.SoftwareTrapPenalty, "software-trap-penalty",
		c.SoftwareTrapPenalty, "extra cycles of a limitless software trap")
	f.Uint64Var(&c.DRAMLatency, "dram-latency", c.DRAMLatency,
		"cycles to read or write memory")
	f.IntVar(&c.CacheSets, "cache-sets", c.CacheSets,
		"sets of each private cache")
	f.IntVar(&c.CacheWays, "cache-ways", c.CacheWays,
		"ways of each private cache")
	f.Uint64Var(&c.CacheHitLatency, "cache-hit-latency", c.CacheHitLatency,
		"cycles of a cache hit")
	f.Float64Var(&c.FreqGHz, "freq-ghz", c.FreqGHz, "clock frequency in GHz")
	f.Int64Var(&c.Seed, "seed", c.Seed, "random seed")
	f.IntVar(&c.NumReads, "num-reads", c.NumReads, "loads to issue")
	f.IntVar(&c.NumWrites, "num-writes", c.NumWrites, "stores to issue")
	f.Uint64Var(&c.MaxAddress, "max-address", c.MaxAddress,
		"accesses fall in [0, max-address)")
	f.BoolVar(&c.Concurrent, "concurrent", c.Concurrent,
		"keep several accesses in flight per tile")
	f.IntVar(&c.MaxInFlight, "max-in-flight", c.MaxInFlight,
		"accesses in flight per tile in the concurrent mode")
}

// configOverrides collects the configuration flags set on the command line.
func configOverrides(cmd *cobra.Command) map[string]string {
	overrides := make(map[string]string)

	for _, key := range config.Keys() {
		name := flagName(key)
		if cmd.Flags().Changed(name) {
			overrides[config.EnvPrefix+key] = cmd.Flags().Lookup(name).Value.String()
		}
	}

	return overrides
}

type session struct {
	opts     *runOptions
	engine   sim.Engine
	platform *platform.Platform
	latency  *tracing.AverageTimeTracer
	busy     *tracing.TotalTimeTracer

	recorder datarecording.DataRecorder
	execRec  *datarecording.ExecRecorder
	dbTracer *tracing.DBTracer
	traffic  []*analysis.PortAnalyzer

	traceFile *os.File
}

func run(cfg config.Config, opts *runOptions, out io.Writer) error {
	r := &session{opts: opts, engine: sim.NewSerialEngine()}
	defer r.close()

	if err := r.attachTraceLog(); err != nil {
		return err
	}

	r.platform = platform.MakeBuilder().
		WithConfig(cfg).
		WithEngine(r.engine).
		Build()

	r.attachTracers()
	r.attachRecorder(cfg)
	r.attachMonitor(cfg)

	runErr := r.platform.Run()

	summary := r.platform.Summary()
	if err := summary.Print(out); err != nil {
		return err
	}

	for _, m := range r.transactionMetrics() {
		fmt.Fprintf(out, "%s  %g\n", m.Name, m.Value)
	}

	r.recordSummary(summary)

	if runErr != nil {
		return runErr
	}

	if n := summary.Mismatches; n > 0 {
		for _, m := range r.platform.Agent.Mismatches() {
			log.Print(m)
		}

		return fmt.Errorf("%d loads returned stale data", n)
	}

	if err := r.platform.CheckInvariants(); err != nil {
		return fmt.Errorf("coherence check failed: %w", err)
	}

	return nil
}

func (r *session) attachTraceLog() error {
	if r.opts.traceLog == "" {
		return nil
	}

	f, err := os.Create(r.opts.traceLog)
	if err != nil {
		return fmt.Errorf("creating trace log: %w", err)
	}

	r.traceFile = f
	r.engine.AcceptHook(sim.NewEventLogger(log.New(f, "", 0)))

	return nil
}

func (r *session) attachTracers() {
	r.latency = tracing.NewAverageTimeTracer(r.engine,
		tracing.KindFilter("coherence_transaction"))
	r.busy = tracing.NewTotalTimeTracer(r.engine,
		tracing.KindFilter("coherence_transaction"))

	for _, d := range r.platform.Directories {
		tracing.CollectTrace(d, r.latency)
		tracing.CollectTrace(d, r.busy)
	}

	if r.traceFile == nil {
		return
	}

	portLogger := sim.NewPortMsgLogger(log.New(r.traceFile, "", 0), r.engine)
	for _, c := range r.platform.Simulation.Components() {
		for _, p := range c.Ports() {
			p.AcceptHook(portLogger)
		}
	}
}

func (r *session) attachRecorder(cfg config.Config) {
	if r.opts.record == "" {
		return
	}

	r.recorder = datarecording.New(r.opts.record)
	r.recorder.CreateTable(SummaryTableName, platform.Metric{})

	r.execRec = datarecording.NewExecRecorder(r.recorder)
	r.execRec.Start()
	r.execRec.Add("Protocol", cfg.Protocol)
	r.execRec.Add("Directory Type", cfg.DirectoryType)
	r.execRec.Add("Config", fmt.Sprintf("%+v", cfg))

	r.dbTracer = tracing.NewDBTracer(r.engine, r.recorder)
	for _, d := range r.platform.Directories {
		tracing.CollectTrace(d, r.dbTracer)
	}

	for _, c := range r.platform.Caches {
		tracing.CollectTrace(c, r.dbTracer)
	}

	perfLogger := analysis.NewRecorderLogger(r.recorder)
	for _, c := range r.platform.Simulation.Components() {
		for _, p := range c.Ports() {
			r.traffic = append(r.traffic, analysis.MakePortAnalyzerBuilder().
				WithPerfLogger(perfLogger).
				WithTimeTeller(r.engine).
				WithPeriod(sim.VTimeInSec(r.opts.trafficPeriod)).
				WithPort(p).
				Build())
		}
	}
}

func (r *session) attachMonitor(cfg config.Config) {
	if !r.opts.monitor {
		return
	}

	m := monitoring.NewMonitor().
		WithPortNumber(r.opts.monitorPort).
		WithBrowser(r.opts.openBrowser)
	m.RegisterEngine(r.engine)

	for _, c := range r.platform.Simulation.Components() {
		m.RegisterComponent(c)
	}

	bar := m.CreateProgressBar("Accesses",
		uint64(cfg.NumReads+cfg.NumWrites))
	r.platform.Agent.SetProgressReporter(bar)

	m.StartServer()
}

// transactionMetrics reports the transaction latency and, per directory, the
// time spent in transactions.
func (r *session) transactionMetrics() []platform.Metric {
	metrics := []platform.Metric{
		{
			Name:  "avg_transaction_latency",
			Value: float64(r.latency.AverageTime()),
		},
		{
			Name:  "total_transaction_time",
			Value: float64(r.busy.TotalTime()),
		},
	}

	for _, d := range r.platform.Directories {
		metrics = append(metrics, platform.Metric{
			Name:  "transaction_time." + d.Name(),
			Value: float64(r.busy.TotalTimeAt(d.Name())),
		})
	}

	return metrics
}

func (r *session) recordSummary(s platform.Summary) {
	if r.recorder == nil {
		return
	}

	for _, m := range s.Metrics() {
		r.recorder.InsertData(SummaryTableName, m)
	}

	for _, m := range r.transactionMetrics() {
		r.recorder.InsertData(SummaryTableName, m)
	}

	for _, a := range r.traffic {
		a.Flush()
	}

	r.dbTracer.Terminate()
	r.execRec.End()
}

func (r *session) close() {
	if r.recorder != nil {
		if err := r.recorder.Close(); err != nil {
			log.Printf("closing recorder: %v", err)
		}
	}

	if r.traceFile != nil {
		if err := r.traceFile.Close(); err != nil {
			log.Printf("closing trace log: %v", err)
		}
	}
}
