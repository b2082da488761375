// Command guideline-translate converts a test-guideline PDF into a pair of
// structured QMD documents: the source language rendition and a translation.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/joho/godotenv"

	"guideline-translator/internal/config"
	"guideline-translator/internal/logger"
	"guideline-translator/internal/pipeline"
	"guideline-translator/internal/translate"
	"guideline-translator/internal/types"
)

// Command line flags
var (
	inputFlag     = flag.String("input", "", "PDF file to convert")
	outputFlag    = flag.String("output", "", "Output directory (overrides the config file)")
	titleFlag     = flag.String("title", "", "Document title for the QMD frontmatter")
	subtitleFlag  = flag.String("subtitle", "", "Document subtitle")
	docNumberFlag = flag.String("doc-number", "", "Guideline number, e.g. 432")
	dateFlag      = flag.String("date", "", "Document date, e.g. 2026-08-27")
	pubDateFlag   = flag.String("publication-date", "", "Original publication date")
	keywordsFlag  = flag.String("keywords", "", "Comma-separated keyword list")
	langFlag      = flag.String("target-lang", "", "Target language tag (overrides the config file)")
	glossaryFlag  = flag.String("glossary", "", "JSON glossary file (overrides the config file)")
	configFlag    = flag.String("config", "", "Config file path")
	verboseFlag   = flag.Bool("verbose", false, "Enable debug logging")
)

// printHelp displays the help information for command line usage.
func printHelp() {
	fmt.Println("guideline-translate - convert a test-guideline PDF into bilingual QMD documents")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  guideline-translate --input <PDF> [options]")
	fmt.Println()
	fmt.Println("Options:")
	fmt.Println("  --input <PATH>             PDF file to convert (required)")
	fmt.Println("  --output <PATH>            Output directory (default: <input dir>/<input stem>_qmd)")
	fmt.Println("  --title <TEXT>             Document title for the QMD frontmatter")
	fmt.Println("  --subtitle <TEXT>          Document subtitle")
	fmt.Println("  --doc-number <N>           Guideline number, e.g. 432")
	fmt.Println("  --date <DATE>              Document date")
	fmt.Println("  --publication-date <DATE>  Original publication date")
	fmt.Println("  --keywords <LIST>          Comma-separated keyword list")
	fmt.Println("  --target-lang <TAG>        Target language tag, e.g. zh-CN")
	fmt.Println("  --glossary <PATH>          JSON glossary file with {source, target} entries")
	fmt.Println("  --config <PATH>            Config file path")
	fmt.Println("  --verbose                  Enable debug logging")
	fmt.Println("  -h, --help                 Show this help")
	fmt.Println()
	fmt.Println("Examples:")
	fmt.Println("  guideline-translate --input tg432.pdf --title \"In Vitro 3T3 NRU Phototoxicity Test\" --doc-number 432")
	fmt.Println("  guideline-translate --input tg432.pdf --target-lang ja --output ./out")
	fmt.Println()
	fmt.Println("The API key is read from the config file or the OPENAI_API_KEY environment")
	fmt.Println("variable. A .env file in the working directory is loaded if present.")
}

func main() {
	flag.Usage = printHelp
	flag.Parse()

	if *inputFlag == "" {
		printHelp()
		os.Exit(1)
	}

	// A local .env file is optional.
	_ = godotenv.Load()

	level := logger.LevelInfo
	if *verboseFlag {
		level = logger.LevelDebug
	}
	logger.Init(&logger.Config{
		LogFilePath:   "guideline-translator.log",
		Level:         level,
		EnableConsole: *verboseFlag,
	})
	defer logger.Close()

	configMgr, err := config.NewConfigManager(*configFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: cannot initialize configuration: %v\n", err)
		os.Exit(1)
	}
	if err := configMgr.Load(); err != nil {
		fmt.Fprintf(os.Stderr, "error: cannot load configuration: %v\n", err)
		os.Exit(1)
	}

	cfg := configMgr.GetConfig()
	if *outputFlag != "" {
		cfg.OutputDir = *outputFlag
	}
	if cfg.OutputDir == "" {
		stem := strings.TrimSuffix(filepath.Base(*inputFlag), filepath.Ext(*inputFlag))
		cfg.OutputDir = filepath.Join(filepath.Dir(*inputFlag), stem+"_qmd")
	}
	if *langFlag != "" {
		cfg.TargetLanguage = *langFlag
	}
	if *glossaryFlag != "" {
		cfg.GlossaryPath = *glossaryFlag
	}

	apiKey := configMgr.GetAPIKey()
	if apiKey == "" {
		fmt.Fprintln(os.Stderr, "error: no API key configured")
		fmt.Fprintf(os.Stderr, "set one in %s or export OPENAI_API_KEY\n", configMgr.GetConfigPath())
		os.Exit(1)
	}

	fmt.Println("=== Guideline Translator ===")
	fmt.Printf("Input:      %s\n", *inputFlag)
	fmt.Printf("Output:     %s\n", cfg.OutputDir)
	fmt.Printf("Model:      %s\n", configMgr.GetModel())
	fmt.Printf("Target:     %s\n", cfg.TargetLanguage)

	ctx := context.Background()
	backend, err := translate.NewOpenAIBackend(ctx, apiKey, configMgr.GetBaseURL(), configMgr.GetModel())
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: cannot create translation backend: %v\n", err)
		os.Exit(1)
	}

	p := pipeline.New(cfg, backend)
	summary, err := p.Run(ctx, pipeline.Options{
		InputPath:   *inputFlag,
		Frontmatter: frontmatterFromFlags(*inputFlag),
		Progress: func(phase types.PipelinePhase, message string) {
			if phase != types.PhaseError {
				fmt.Printf("  [%s] %s\n", phase, message)
			}
		},
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "\nerror: conversion failed: %v\n", err)
		os.Exit(1)
	}

	fmt.Println()
	fmt.Println("=== Conversion Complete ===")
	fmt.Printf("Pages:             %d\n", summary.Pages)
	fmt.Printf("Headings:          %d (%d ambiguous)\n", summary.Headings, summary.Ambiguous)
	fmt.Printf("Figures kept:      %d\n", summary.FiguresKept)
	fmt.Printf("Tables kept:       %d\n", summary.TablesKept)
	fmt.Printf("Assets dropped:    %d\n", summary.AssetsDropped)
	fmt.Printf("Translation units: %d (%d kept source text)\n", summary.TranslationUnits, summary.FailedUnits)
	fmt.Printf("Tokens used:       %d\n", summary.TokensUsed)
	fmt.Printf("Output directory:  %s\n", cfg.OutputDir)
}

var docNumberPattern = regexp.MustCompile(`(\d{3})`)

// frontmatterFromFlags builds the passthrough document metadata. When no
// guideline number is given it is inferred from the input file name
// (tg432.pdf carries 432).
func frontmatterFromFlags(inputPath string) types.Frontmatter {
	fm := types.Frontmatter{
		Title:           *titleFlag,
		Subtitle:        *subtitleFlag,
		DocNumber:       *docNumberFlag,
		Date:            *dateFlag,
		PublicationDate: *pubDateFlag,
	}
	if fm.DocNumber == "" {
		if m := docNumberPattern.FindString(filepath.Base(inputPath)); m != "" {
			fm.DocNumber = m
		}
	}
	if *keywordsFlag != "" {
		for _, kw := range strings.Split(*keywordsFlag, ",") {
			if kw = strings.TrimSpace(kw); kw != "" {
				fm.Keywords = append(fm.Keywords, kw)
			}
		}
	}
	return fm
}
