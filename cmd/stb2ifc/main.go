// Command stb2ifc converts ST-Bridge structural models to IFC. It provides
// commands for one-shot conversion, classification analysis, strategy
// benchmarking, an HTTP API server, and run history inspection.
package main

import (
	"bytes"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/alecthomas/kong"

	"github.com/structweave/stb2ifc/core/analyze"
	"github.com/structweave/stb2ifc/core/history"
	"github.com/structweave/stb2ifc/core/ifc"
	"github.com/structweave/stb2ifc/core/integrate"
	"github.com/structweave/stb2ifc/core/legacy"
	"github.com/structweave/stb2ifc/core/model"
	"github.com/structweave/stb2ifc/core/stb"
	"github.com/structweave/stb2ifc/internal/api"
	"github.com/structweave/stb2ifc/internal/config"
	"github.com/structweave/stb2ifc/internal/fileutil"
	"github.com/structweave/stb2ifc/internal/logging"
)

const version = "0.2.0"

// parser is shared by every command and HTTP job, so analyzing and then
// converting the same document parses it once.
var parser = stb.NewParser()

// CLI defines the command-line interface for stb2ifc.
var CLI struct {
	// Global flags
	Config    string `name:"config" short:"c" help:"YAML config file path" default:"stb2ifc.yaml" type:"path"`
	LogLevel  string `name:"log-level" help:"Log level (debug|info|warn|error)"`
	LogFormat string `name:"log-format" help:"Log format (text|json)"`

	Convert ConvertCmd `cmd:"" help:"Convert an ST-Bridge file to IFC"`
	Analyze AnalyzeCmd `cmd:"" help:"Report story classification for a model without converting"`
	Compare CompareCmd `cmd:"" help:"Benchmark legacy vs element-centric strategies"`
	Serve   ServeCmd   `cmd:"" help:"Start the HTTP conversion API server"`
	History HistoryCmd `cmd:"" help:"Show recorded conversion runs"`
	Version VersionCmd `cmd:"" help:"Print version information"`
}

// setup loads the config file and initializes logging with CLI overrides.
func setup() (config.File, error) {
	cfg, err := config.Load(CLI.Config)
	if err != nil {
		return cfg, err
	}
	level := cfg.Logging.Level
	if CLI.LogLevel != "" {
		level = CLI.LogLevel
	}
	format := cfg.Logging.Format
	if CLI.LogFormat != "" {
		format = CLI.LogFormat
	}
	logging.InitLogger(parseLevel(level), parseFormat(format))
	return cfg, nil
}

func parseLevel(s string) logging.Level {
	switch s {
	case "debug":
		return logging.LevelDebug
	case "warn":
		return logging.LevelWarn
	case "error":
		return logging.LevelError
	default:
		return logging.LevelInfo
	}
}

func parseFormat(s string) logging.Format {
	if s == "json" {
		return logging.FormatJSON
	}
	return logging.FormatText
}

// projectName derives an IFC project name from the input path.
func projectName(input string) string {
	base := filepath.Base(input)
	for _, suffix := range []string{".xz", ".gz", ".stb"} {
		base = strings.TrimSuffix(base, suffix)
	}
	return base
}

// rebuildingLegacy creates a fresh IFC builder for every legacy run, so a
// hybrid fallback never writes into the file the failed element-centric
// attempt already populated. The builder that produced the final result is
// retained for output.
type rebuildingLegacy struct {
	project string
	active  *ifc.Builder
}

func (r *rebuildingLegacy) Convert(
	stories []model.StoryDefinition,
	elements map[model.ElementType][]*model.ElementDefinition,
	nodeStoryMap map[string]string,
	axes []model.Axis,
) (*model.ConversionResult, error) {
	r.active = ifc.NewBuilder(r.project)
	return legacy.NewConverter(r.active).Convert(stories, elements, nodeStoryMap, axes)
}

// runPipeline parses data and runs one conversion, returning the result and
// the serialized IFC document of whichever builder produced it.
func runPipeline(cfg config.File, data []byte, project string, mode model.ConversionMode, recorder integrate.Recorder) (*model.ConversionResult, []byte, error) {
	m, err := parser.Parse(data)
	if err != nil {
		return nil, nil, err
	}

	icfg, err := cfg.IntegrateConfig()
	if err != nil {
		return nil, nil, err
	}
	if mode != "" {
		icfg.Mode = mode
	}

	fallback := &rebuildingLegacy{project: project}
	var opts []integrate.ServiceOption
	if recorder != nil {
		opts = append(opts, integrate.WithRecorder(recorder))
	}
	svc := integrate.NewService(icfg, fallback, opts...)

	builder := ifc.NewBuilder(project)
	result, err := svc.Convert(m.Stories, m.Elements, m.NodeStoryMap, builder, m.Axes)
	if err != nil {
		return result, nil, err
	}

	out := builder
	if fallback.active != nil {
		out = fallback.active
	}
	var buf bytes.Buffer
	if _, err := out.File().WriteTo(&buf); err != nil {
		return result, nil, fmt.Errorf("writing IFC: %w", err)
	}
	return result, buf.Bytes(), nil
}

// ConvertCmd converts one ST-Bridge file to IFC.
type ConvertCmd struct {
	Input  string `arg:"" help:"ST-Bridge input file (.stb, .stb.xz, .stb.gz)" type:"existingfile"`
	Output string `short:"o" help:"Output IFC path (default: input with .ifc suffix)" type:"path"`
	Mode   string `short:"m" help:"Conversion mode (legacy|element_centric|hybrid|auto)"`
	Stats  bool   `help:"Print conversion statistics"`
}

func (c *ConvertCmd) Run() error {
	cfg, err := setup()
	if err != nil {
		return err
	}

	data, err := fileutil.ReadInput(c.Input)
	if err != nil {
		return err
	}

	store, err := history.Open(cfg.History.Path)
	if err != nil {
		return err
	}
	defer store.Close()

	result, output, err := runPipeline(cfg, data, projectName(c.Input), model.ConversionMode(c.Mode), store)
	if err != nil {
		return err
	}

	outPath := c.Output
	if outPath == "" {
		outPath = fileutil.OutputPath(c.Input)
	}
	if err := fileutil.WriteAtomic(outPath, output); err != nil {
		return err
	}

	fmt.Printf("wrote %s (%d elements, %d stories)\n",
		outPath, result.Statistics.CreatedElements, len(result.CreatedStories))
	for _, w := range result.Warnings {
		fmt.Fprintf(os.Stderr, "warning: %s\n", w)
	}
	if c.Stats {
		printStatistics(result.Statistics)
	}
	return nil
}

func printStatistics(stats *model.ConversionStatistics) {
	fmt.Printf("total:      %d\n", stats.TotalElements)
	fmt.Printf("created:    %d\n", stats.CreatedElements)
	fmt.Printf("duplicates: %d\n", stats.DuplicateElements)
	fmt.Printf("failed:     %d\n", stats.FailedElements)
	fmt.Printf("duration:   %s\n", stats.ProcessingTime)
	for _, method := range []model.AnalysisMethod{
		model.MethodFloorAttribute, model.MethodNodeReference, model.MethodCoordinate,
	} {
		if n := stats.MethodCounts[method]; n > 0 {
			fmt.Printf("  %-16s %d\n", method, n)
		}
	}
}

// AnalyzeCmd classifies every element and reports the outcome without
// creating any IFC entities.
type AnalyzeCmd struct {
	Input string `arg:"" help:"ST-Bridge input file" type:"existingfile"`
}

func (c *AnalyzeCmd) Run() error {
	if _, err := setup(); err != nil {
		return err
	}
	data, err := fileutil.ReadInput(c.Input)
	if err != nil {
		return err
	}
	m, err := parser.Parse(data)
	if err != nil {
		return err
	}

	index, err := analyze.NewStoryIndex(m.Stories)
	if err != nil {
		return err
	}
	analyzer := analyze.NewStoryAnalyzer(m.NodeStoryMap, index)

	byStory := make(map[string]int)
	methods := make(map[model.AnalysisMethod]int)
	var unclassified []string
	for _, elementType := range model.ElementTypes() {
		for _, def := range m.Elements[elementType] {
			res, err := analyzer.Classify(def, elementType)
			if err != nil {
				unclassified = append(unclassified, fmt.Sprintf("%s (%s)", def.ID, elementType))
				continue
			}
			byStory[res.StoryName]++
			methods[res.Method]++
		}
	}

	fmt.Printf("%d stories, %d elements\n", len(m.Stories), m.ElementCount())
	for _, name := range index.Names() {
		fmt.Printf("  %-12s %d\n", name, byStory[name])
	}
	fmt.Println("classification methods:")
	for _, method := range []model.AnalysisMethod{
		model.MethodFloorAttribute, model.MethodNodeReference, model.MethodCoordinate,
	} {
		fmt.Printf("  %-16s %d\n", method, methods[method])
	}
	if len(unclassified) > 0 {
		sort.Strings(unclassified)
		fmt.Printf("unclassified (%d):\n", len(unclassified))
		for _, id := range unclassified {
			fmt.Printf("  %s\n", id)
		}
	}
	return nil
}

// CompareCmd runs both strategies against the same model and prints the
// recommendation.
type CompareCmd struct {
	Input string `arg:"" help:"ST-Bridge input file" type:"existingfile"`
}

func (c *CompareCmd) Run() error {
	cfg, err := setup()
	if err != nil {
		return err
	}
	data, err := fileutil.ReadInput(c.Input)
	if err != nil {
		return err
	}
	m, err := parser.Parse(data)
	if err != nil {
		return err
	}
	icfg, err := cfg.IntegrateConfig()
	if err != nil {
		return err
	}

	project := projectName(c.Input)
	fallback := &rebuildingLegacy{project: project}
	svc := integrate.NewService(icfg, fallback)

	cmp, err := svc.ComparePerformance(m.Stories, m.Elements, m.NodeStoryMap, ifc.NewBuilder(project))
	if err != nil {
		return err
	}

	fmt.Printf("legacy:          %s (%d elements)\n", cmp.LegacyTime, cmp.LegacyElementCount)
	fmt.Printf("element-centric: %s (%d elements)\n", cmp.ElementCentricTime, cmp.ElementCentricCount)
	fmt.Printf("improvement:     %.1f%%\n", cmp.ImprovementPct)
	fmt.Printf("duplicates:      %d\n", cmp.ElementCentricDuplicates)
	fmt.Printf("recommended:     %s\n", cmp.Recommendation)
	return nil
}

// ServeCmd starts the HTTP conversion API.
type ServeCmd struct {
	Addr string `help:"Listen address (overrides config)" default:""`
}

func (c *ServeCmd) Run() error {
	cfg, err := setup()
	if err != nil {
		return err
	}
	addr := cfg.Server.Addr
	if c.Addr != "" {
		addr = c.Addr
	}

	store, err := history.Open(cfg.History.Path)
	if err != nil {
		return err
	}
	defer store.Close()

	server := api.NewServer(func(data []byte, mode model.ConversionMode) (*model.ConversionResult, []byte, error) {
		return runPipeline(cfg, data, "api-upload", mode, store)
	})

	logging.ServerStartup("http", portOf(addr))
	return http.ListenAndServe(addr, server.Handler())
}

func portOf(addr string) int {
	var port int
	if i := strings.LastIndex(addr, ":"); i >= 0 {
		fmt.Sscanf(addr[i+1:], "%d", &port)
	}
	return port
}

// HistoryCmd prints recorded conversion runs, newest first.
type HistoryCmd struct {
	Limit int `help:"Maximum runs to show" default:"20"`
}

func (c *HistoryCmd) Run() error {
	cfg, err := setup()
	if err != nil {
		return err
	}
	store, err := history.Open(cfg.History.Path)
	if err != nil {
		return err
	}
	defer store.Close()

	records, err := store.Recent(c.Limit)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		fmt.Println("no recorded runs")
		return nil
	}
	for _, rec := range records {
		fallback := ""
		if rec.FellBack {
			fallback = " (fell back)"
		}
		fmt.Printf("%s  %-16s %6d elements  %s%s\n",
			rec.Timestamp.Local().Format(time.DateTime),
			rec.Mode, rec.ElementCount, rec.Duration, fallback)
	}
	return nil
}

// VersionCmd prints version information.
type VersionCmd struct{}

func (c *VersionCmd) Run() error {
	fmt.Printf("stb2ifc %s\n", version)
	return nil
}

func main() {
	ctx := kong.Parse(&CLI,
		kong.Name("stb2ifc"),
		kong.Description("ST-Bridge to IFC structural model converter"),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact: true,
		}),
	)
	err := ctx.Run()
	ctx.FatalIfErrorf(err)
}
