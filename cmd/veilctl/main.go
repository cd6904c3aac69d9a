package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"syscall"

	"github.com/fatih/color"
	"go.uber.org/zap"

	"github.com/textveil/textveil/internal/batch"
	"github.com/textveil/textveil/internal/config"
	"github.com/textveil/textveil/internal/export"
	"github.com/textveil/textveil/internal/logger"
	"github.com/textveil/textveil/internal/match"
	"github.com/textveil/textveil/internal/pattern"
	"github.com/textveil/textveil/internal/redact"
	"github.com/textveil/textveil/internal/registry"
	"github.com/textveil/textveil/internal/store"
	"github.com/textveil/textveil/internal/verify"
)

func main() {
	var (
		configPath   = flag.String("config", "configs/default.yaml", "Configuration file path")
		inputPath    = flag.String("input", "", "Input text file or directory of .txt files")
		outputDir    = flag.String("output", "", "Output directory for redacted files (stdout for a single file when empty)")
		mappingFile  = flag.String("mapping", "", "Registry mapping file (overrides config)")
		technique    = flag.String("technique", "", "Replacement technique: consistent, random, pattern-only, hybrid")
		workers      = flag.Int("workers", 0, "Number of worker goroutines")
		verifyFlag   = flag.Bool("verify", false, "Verify redacted output for leaks")
		analyzeOnly  = flag.Bool("analyze", false, "Report matches without writing redacted output")
		auditFile    = flag.String("export-audit", "", "Write substitution audit rows to a Parquet file")
		recordsFile  = flag.String("export-records", "", "Write substitution records to a JSON lines file")
		exportCSV    = flag.String("export-csv", "", "Export the registry to a CSV file and exit")
		importCSV    = flag.String("import-csv", "", "Import entities from a CSV file into the registry and exit")
		strategyName = flag.String("strategy", "skip", "Merge strategy for -import-csv: skip, overwrite, keep-both")
		showStats    = flag.Bool("stats", false, "Show registry statistics and exit")
	)
	flag.Parse()

	if *inputPath == "" && *exportCSV == "" && *importCSV == "" && !*showStats {
		fmt.Fprintf(os.Stderr, "Usage: %s [options]\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "\nOptions:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  %s --input docs/ --output redacted/ --verify\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s --input letter.txt --technique random\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s --import-csv entities.csv --strategy overwrite\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s --stats\n", os.Args[0])
		os.Exit(1)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.Info("Received shutdown signal, cancelling operations...")
		cancel()
	}()

	mapping := cfg.Registry.MappingFile
	if *mappingFile != "" {
		mapping = *mappingFile
	}

	fileStore := store.NewFileStore(mapping, log.WithComponent("store").Logger)
	reg, err := fileStore.Load()
	if err != nil {
		log.Fatal("Failed to load registry", zap.Error(err))
	}

	catalog, err := pattern.Load(cfg.Patterns)
	if err != nil {
		log.Fatal("Failed to load pattern catalog", zap.Error(err))
	}

	switch {
	case *showStats:
		printRegistryStats(reg)
	case *exportCSV != "":
		if err := store.ExportCSV(reg, *exportCSV, log.Logger); err != nil {
			log.Fatal("CSV export failed", zap.Error(err))
		}
		color.Green("Exported %d entities to %s", reg.Len(), *exportCSV)
	case *importCSV != "":
		strategy, err := registry.ParseMergeStrategy(*strategyName)
		if err != nil {
			log.Fatal("Invalid merge strategy", zap.Error(err))
		}
		result, err := store.ImportCSV(reg, *importCSV, strategy, log.Logger)
		if err != nil {
			log.Fatal("CSV import failed", zap.Error(err))
		}
		if err := fileStore.Save(reg); err != nil {
			log.Fatal("Failed to save registry", zap.Error(err))
		}
		printMergeResult(result)
	default:
		if err := runRedaction(ctx, cfg, reg, catalog, redactOptions{
			inputPath:   *inputPath,
			outputDir:   *outputDir,
			technique:   *technique,
			workers:     *workers,
			verify:      *verifyFlag,
			analyzeOnly: *analyzeOnly,
			auditFile:   *auditFile,
			recordsFile: *recordsFile,
		}, log); err != nil {
			log.Fatal("Redaction run failed", zap.Error(err))
		}
	}
}

type redactOptions struct {
	inputPath   string
	outputDir   string
	technique   string
	workers     int
	verify      bool
	analyzeOnly bool
	auditFile   string
	recordsFile string
}

// runRedaction loads the input documents, runs the batch, writes outputs,
// and prints the run summary.
func runRedaction(ctx context.Context, cfg *config.Config, reg *registry.Registry, catalog *pattern.Catalog, opts redactOptions, log *logger.Logger) error {
	docs, err := loadDocuments(opts.inputPath)
	if err != nil {
		return err
	}
	if len(docs) == 0 {
		return fmt.Errorf("no input documents found in %s", opts.inputPath)
	}

	if opts.analyzeOnly {
		return analyzeDocuments(reg, catalog, docs, log)
	}

	techniqueName := opts.technique
	if techniqueName == "" {
		techniqueName = cfg.Redaction.Technique
	}
	t, err := redact.ParseTechnique(techniqueName)
	if err != nil {
		return err
	}

	workers := opts.workers
	if workers <= 0 {
		workers = cfg.Redaction.Workers
	}

	runner := batch.NewRunner(reg, catalog, nil, batch.Config{
		Workers:      workers,
		Technique:    t,
		HybridRandom: cfg.Redaction.HybridRandom,
		Verify:       opts.verify,
		VerifyOpts: verify.Options{
			MinPartialLength: cfg.Verification.MinPartialLength,
			CheckPatterns:    cfg.Verification.CheckPatterns,
		},
	}, log.Logger)

	report := runner.Run(ctx, docs)

	if err := writeOutputs(opts.outputDir, report, len(docs) == 1); err != nil {
		return err
	}

	var records []*redact.Record
	for i := range report.Results {
		if report.Results[i].Record != nil {
			records = append(records, report.Results[i].Record)
		}
	}
	if opts.auditFile != "" {
		if err := export.WriteParquet(opts.auditFile, records, log.Logger); err != nil {
			return err
		}
	}
	if opts.recordsFile != "" {
		if err := export.WriteJSONLines(opts.recordsFile, records, log.Logger); err != nil {
			return err
		}
	}

	printRunReport(report, opts.verify)

	if !report.Pass {
		os.Exit(2)
	}
	return nil
}

// loadDocuments reads a single file or every .txt file under a directory.
func loadDocuments(path string) ([]batch.Document, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("input path %s: %w", path, err)
	}

	if !info.IsDir() {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", path, err)
		}
		return []batch.Document{{ID: filepath.Base(path), Text: string(data)}}, nil
	}

	var docs []batch.Document
	err = filepath.Walk(path, func(p string, fi os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if fi.IsDir() || !strings.HasSuffix(p, ".txt") {
			return nil
		}
		data, err := os.ReadFile(p)
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(path, p)
		if err != nil {
			rel = filepath.Base(p)
		}
		docs = append(docs, batch.Document{ID: rel, Text: string(data)})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk %s: %w", path, err)
	}

	sort.Slice(docs, func(i, j int) bool { return docs[i].ID < docs[j].ID })
	return docs, nil
}

// analyzeDocuments scans without replacing and reports what would match.
func analyzeDocuments(reg *registry.Registry, catalog *pattern.Catalog, docs []batch.Document, log *logger.Logger) error {
	matcher := match.New(reg.Snapshot(), catalog, log.Logger)

	bold := color.New(color.Bold)
	totalEntities, totalPatterns := 0, 0

	for _, doc := range docs {
		matches := matcher.Scan(doc.Text)
		entities, patterns := 0, 0
		for _, m := range matches {
			if m.Kind == match.KindEntity {
				entities++
			} else {
				patterns++
			}
		}
		totalEntities += entities
		totalPatterns += patterns

		bold.Printf("%s\n", doc.ID)
		for _, m := range matches {
			source := m.Entity
			if m.Kind == match.KindPattern {
				source = m.Rule
			}
			fmt.Printf("  [%d:%d] %-8s %-20s %q\n", m.Start, m.End, m.Kind, source, m.Text)
		}
	}

	fmt.Println()
	color.Cyan("Analyzed %d documents: %d entity matches, %d pattern matches",
		len(docs), totalEntities, totalPatterns)
	return nil
}

// writeOutputs writes redacted documents to the output directory, or stdout
// for a single document without one.
func writeOutputs(outputDir string, report *batch.RunReport, single bool) error {
	if outputDir == "" {
		if single && report.Results[0].Err == nil {
			fmt.Print(report.Results[0].RedactedText)
			if !strings.HasSuffix(report.Results[0].RedactedText, "\n") {
				fmt.Println()
			}
		}
		return nil
	}

	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	for i := range report.Results {
		res := &report.Results[i]
		if res.Err != nil {
			continue
		}
		out := filepath.Join(outputDir, res.DocumentID)
		if err := os.MkdirAll(filepath.Dir(out), 0o755); err != nil {
			return fmt.Errorf("failed to create output subdirectory: %w", err)
		}
		if err := os.WriteFile(out, []byte(res.RedactedText), 0o644); err != nil {
			return fmt.Errorf("failed to write %s: %w", out, err)
		}
	}
	return nil
}

// printRunReport prints the colored run summary.
func printRunReport(report *batch.RunReport, verified bool) {
	bold := color.New(color.Bold)

	fmt.Println()
	bold.Println("=== Redaction Run ===")
	fmt.Printf("Run ID:            %s\n", report.RunID)
	fmt.Printf("Registry revision: %s\n", report.RegistryRevision)
	fmt.Printf("Technique:         %s\n", report.Technique)
	fmt.Printf("Documents:         %d\n", len(report.Results))
	fmt.Printf("Substitutions:     %d\n", report.Summary.TotalSubstitutions)
	for kind, n := range report.Summary.ByKind {
		fmt.Printf("  %-12s     %d\n", kind+":", n)
	}
	fmt.Printf("Elapsed:           %s\n", report.Elapsed)

	for i := range report.Results {
		if report.Results[i].Err != nil {
			color.Red("FAILED %s: %v", report.Results[i].DocumentID, report.Results[i].Err)
		}
	}

	if verified {
		fmt.Println()
		bold.Println("=== Verification ===")
		leaks := 0
		for i := range report.Results {
			res := &report.Results[i]
			if res.Report == nil {
				continue
			}
			if res.Report.Pass {
				color.Green("PASS %s", res.DocumentID)
				continue
			}
			leaks += len(res.Report.Findings)
			color.Red("LEAK %s (%d findings)", res.DocumentID, len(res.Report.Findings))
			for _, f := range res.Report.Findings {
				fmt.Printf("  [%d:%d] %-8s %s: %q\n", f.Start, f.End, f.Kind, f.Source, f.Text)
			}
		}
		for _, inc := range report.Inconsistencies {
			color.Red("INCONSISTENT %s replaced as %s across %s",
				inc.Entity,
				strings.Join(inc.Aliases, ", "),
				strings.Join(inc.Documents, ", "))
		}
		if leaks == 0 && len(report.Inconsistencies) == 0 {
			color.Green("All documents clean")
		}
	}

	fmt.Println()
	if report.Pass {
		color.Green("Run complete")
	} else {
		color.Red("Run completed with failures")
	}
}

func printMergeResult(result *registry.MergeResult) {
	color.Green("Import complete: %d added, %d skipped, %d overwritten, %d renamed",
		result.Added, result.Skipped, result.Overwritten, result.Renamed)
	for _, c := range result.Conflicts {
		color.Yellow("  conflict: %s", c)
	}
}

func printRegistryStats(reg *registry.Registry) {
	stats := reg.Stats()

	fmt.Printf("\n=== Registry Statistics ===\n")
	fmt.Printf("Revision:       %s\n", reg.Revision())
	fmt.Printf("Entities:       %d\n", stats.Total)
	for t, n := range stats.ByType {
		fmt.Printf("  %-13s %d\n", string(t)+":", n)
	}
	fmt.Printf("Created:        %s\n", stats.Created.Format("2006-01-02 15:04:05"))
	fmt.Printf("Updated:        %s\n", stats.Updated.Format("2006-01-02 15:04:05"))
}
