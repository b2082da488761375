// Package pipeline orchestrates the end-to-end run: text extraction, formula
// normalization, heading classification, asset filtering, assembly,
// translation, and QMD serialization.
package pipeline

import (
	"context"
	"path/filepath"
	"strings"
	"sync"

	"guideline-translator/internal/assets"
	"guideline-translator/internal/document"
	"guideline-translator/internal/extract"
	"guideline-translator/internal/headings"
	"guideline-translator/internal/logger"
	"guideline-translator/internal/normalize"
	"guideline-translator/internal/qmd"
	"guideline-translator/internal/raster"
	"guideline-translator/internal/translate"
	"guideline-translator/internal/types"
)

// maxImageWidth caps exported image width in pixels. High-DPI table crops
// can exceed it and are downscaled before writing.
const maxImageWidth = 1600

// ProgressFunc reports phase transitions to the caller.
type ProgressFunc func(phase types.PipelinePhase, message string)

// Options configures a single pipeline run.
type Options struct {
	InputPath   string
	BaseName    string // output file stem; derived from InputPath when empty
	SourceLang  string // language tag of the source rendition, default "en"
	Frontmatter types.Frontmatter
	Progress    ProgressFunc
}

// Pipeline runs the document conversion for one configuration.
type Pipeline struct {
	cfg     *types.Config
	backend translate.Backend

	mu    sync.Mutex
	phase types.PipelinePhase
}

// New creates a Pipeline. The backend is only exercised during the
// translation phase, so a nil backend is rejected at Run time rather
// than here.
func New(cfg *types.Config, backend translate.Backend) *Pipeline {
	return &Pipeline{cfg: cfg, backend: backend, phase: types.PhaseIdle}
}

// Phase returns the stage the pipeline is currently in.
func (p *Pipeline) Phase() types.PipelinePhase {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.phase
}

func (p *Pipeline) setPhase(phase types.PipelinePhase, opts Options, message string) {
	p.mu.Lock()
	p.phase = phase
	p.mu.Unlock()

	logger.Info("pipeline phase", logger.String("phase", string(phase)), logger.String("message", message))
	if opts.Progress != nil {
		opts.Progress(phase, message)
	}
}

// Run executes the full pipeline and returns a summary of what was produced.
// Fatal errors (no usable text, unresolvable references) abort the run;
// everything else degrades locally and is reflected in the summary.
func (p *Pipeline) Run(ctx context.Context, opts Options) (*types.RunSummary, error) {
	if p.backend == nil {
		return nil, types.NewAppError(types.ErrConfig, "no translation backend configured", nil)
	}
	if opts.BaseName == "" {
		opts.BaseName = stemOf(opts.InputPath)
	}
	if opts.SourceLang == "" {
		opts.SourceLang = "en"
	}

	summary := &types.RunSummary{}

	p.setPhase(types.PhaseExtracting, opts, "extracting page text")
	extractor, err := extract.NewExtractor(opts.InputPath)
	if err != nil {
		p.setPhase(types.PhaseError, opts, err.Error())
		return nil, err
	}
	pages, err := extractor.ExtractPages()
	if err != nil {
		p.setPhase(types.PhaseError, opts, err.Error())
		return nil, err
	}
	summary.Pages = len(pages)

	p.normalizePages(pages)
	pageLines, pageHeadings := p.classifyPages(pages)
	for _, results := range pageHeadings {
		for _, r := range results {
			if r.IsHeading() {
				summary.Headings++
			}
			if r.Ambiguous {
				summary.Ambiguous++
			}
		}
	}

	p.setPhase(types.PhaseFiltering, opts, "filtering visual assets")
	reg := assets.NewRegistry()
	if err := p.collectAssets(pages, pageLines, opts.InputPath, reg); err != nil {
		p.setPhase(types.PhaseError, opts, err.Error())
		return nil, err
	}
	reg.Finalize()
	summary.FiguresKept = reg.Count(assets.KindFigure)
	summary.TablesKept = reg.Count(assets.KindTable)
	summary.AssetsDropped = reg.Dropped()

	p.setPhase(types.PhaseAssembling, opts, "assembling document")
	pageInputs := make([]document.PageInput, len(pages))
	for i, page := range pages {
		pageInputs[i] = document.PageInput{
			Index:    page.Index,
			Lines:    pageLines[i],
			Headings: pageHeadings[i],
		}
	}
	assembler := document.NewAssembler()
	doc, err := assembler.Assemble(document.Input{
		Pages:       pageInputs,
		Assets:      reg,
		Frontmatter: opts.Frontmatter,
	})
	if err != nil {
		p.setPhase(types.PhaseError, opts, err.Error())
		return nil, err
	}

	p.setPhase(types.PhaseTranslating, opts, "translating document")
	glossary, err := p.buildGlossary()
	if err != nil {
		p.setPhase(types.PhaseError, opts, err.Error())
		return nil, err
	}
	translator := translate.New(p.backend, glossary, translate.Options{
		TargetLanguage: p.cfg.TargetLanguage,
		MaxUnitSize:    p.cfg.MaxUnitSize,
		Concurrency:    p.cfg.Concurrency,
	})
	translated, stats, err := translator.Translate(ctx, doc)
	if err != nil {
		p.setPhase(types.PhaseError, opts, err.Error())
		return nil, err
	}
	summary.TranslationUnits = stats.Units
	summary.FailedUnits = stats.FailedUnits
	summary.TokensUsed = stats.TokensUsed

	p.setPhase(types.PhaseWriting, opts, "writing output files")
	writer := qmd.NewWriter(p.cfg.OutputDir)
	if _, err := writer.WriteDocument(doc, opts.SourceLang, opts.BaseName); err != nil {
		p.setPhase(types.PhaseError, opts, err.Error())
		return nil, err
	}
	if _, err := writer.WriteDocument(translated, p.cfg.TargetLanguage, opts.BaseName); err != nil {
		p.setPhase(types.PhaseError, opts, err.Error())
		return nil, err
	}
	if err := writeImages(p.cfg.OutputDir, reg); err != nil {
		p.setPhase(types.PhaseError, opts, err.Error())
		return nil, err
	}

	p.setPhase(types.PhaseComplete, opts, "done")
	logger.Info("pipeline run complete",
		logger.Int("pages", summary.Pages),
		logger.Int("figuresKept", summary.FiguresKept),
		logger.Int("tablesKept", summary.TablesKept),
		logger.Int("assetsDropped", summary.AssetsDropped),
		logger.Int("headings", summary.Headings),
		logger.Int("ambiguous", summary.Ambiguous),
		logger.Int("translationUnits", summary.TranslationUnits),
		logger.Int("failedUnits", summary.FailedUnits),
		logger.Int("tokensUsed", summary.TokensUsed))

	return summary, nil
}

// normalizePages applies formula normalization to every page in parallel.
func (p *Pipeline) normalizePages(pages []extract.Page) {
	sem := make(chan struct{}, p.concurrency())
	var wg sync.WaitGroup

	for i := range pages {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			pages[idx].RawText = normalize.Normalize(pages[idx].RawText)
		}(i)
	}
	wg.Wait()
}

// classifyPages runs the heading classifier on every page in parallel.
// Each page sees the last line of its predecessor and the first line of
// its successor, so heading decisions hold across page boundaries.
func (p *Pipeline) classifyPages(pages []extract.Page) ([][]string, [][]headings.Result) {
	pageLines := make([][]string, len(pages))
	for i := range pages {
		pageLines[i] = strings.Split(pages[i].RawText, "\n")
	}

	results := make([][]headings.Result, len(pages))
	sem := make(chan struct{}, p.concurrency())
	var wg sync.WaitGroup

	for i := range pages {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			results[idx] = headings.ClassifyPage(pageLines[idx], pageTail(pageLines, idx-1), pageHead(pageLines, idx+1))
		}(i)
	}
	wg.Wait()

	return pageLines, results
}

// pageTail returns the last non-blank line of page i, or "" when out of range.
// dropPlaceholders blanks the placeholder lines of the failed regions,
// identified by on-page occurrence order, which matches region ordinals.
// Blanking instead of removing keeps the lines aligned with their
// classification results.
func dropPlaceholders(lines []string, failed map[int]bool) {
	occurrence := 0
	for i, line := range lines {
		if strings.TrimSpace(line) == extract.TablePlaceholder {
			occurrence++
			if failed[occurrence] {
				lines[i] = ""
			}
		}
	}
}

func pageTail(pageLines [][]string, i int) string {
	if i < 0 || i >= len(pageLines) {
		return ""
	}
	lines := pageLines[i]
	for j := len(lines) - 1; j >= 0; j-- {
		if strings.TrimSpace(lines[j]) != "" {
			return lines[j]
		}
	}
	return ""
}

// pageHead returns the first non-blank line of page i, or "" when out of range.
func pageHead(pageLines [][]string, i int) string {
	if i < 0 || i >= len(pageLines) {
		return ""
	}
	for _, line := range pageLines[i] {
		if strings.TrimSpace(line) != "" {
			return line
		}
	}
	return ""
}

// collectAssets gathers table crops and embedded images as candidates,
// classifies them in parallel, and records the decisions in reg. A failed
// crop drops the candidate and blanks its placeholder line in pageLines, so
// the table degrades to a gap in the text instead of aborting the run.
func (p *Pipeline) collectAssets(pages []extract.Page, pageLines [][]string, inputPath string, reg *assets.Registry) error {
	var candidates []assets.Candidate

	hasTables := false
	for _, page := range pages {
		if len(page.TableRegions) > 0 {
			hasTables = true
			break
		}
	}

	if hasTables {
		rz, err := raster.New(inputPath, p.cfg.TableCropDPI)
		if err != nil {
			return err
		}
		defer rz.Close()

		for i, page := range pages {
			failed := map[int]bool{}
			for _, region := range page.TableRegions {
				img, err := rz.Crop(region, page.Height)
				if err != nil {
					logger.Warn("table crop failed",
						logger.Int("page", page.Index),
						logger.Int("region", region.Ordinal),
						logger.Err(err))
					failed[region.Ordinal] = true
					continue
				}
				candidates = append(candidates, assets.Candidate{
					Image:           img,
					Page:            page.Index,
					Position:        region.Ordinal,
					FromTableRegion: true,
				})
			}
			if len(failed) > 0 && i < len(pageLines) {
				dropPlaceholders(pageLines[i], failed)
			}
		}
	}

	embedded, err := raster.ExtractEmbedded(inputPath)
	if err != nil {
		logger.Warn("embedded image extraction failed", logger.Err(err))
	}
	for _, em := range embedded {
		candidates = append(candidates, assets.Candidate{
			Image:    em.Image,
			Page:     em.Page,
			Position: em.Position,
		})
	}

	decisions := make([]assets.Decision, len(candidates))
	sem := make(chan struct{}, p.concurrency())
	var wg sync.WaitGroup

	for i := range candidates {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			decisions[idx] = assets.Classify(candidates[idx])
		}(i)
	}
	wg.Wait()

	for i := range candidates {
		reg.Add(candidates[i], decisions[i])
	}

	return nil
}

// buildGlossary merges the built-in glossary with the user's file, if any.
// User entries override built-in ones with the same source term.
func (p *Pipeline) buildGlossary() (*translate.Glossary, error) {
	entries := translate.DefaultEntries()
	if p.cfg.GlossaryPath != "" {
		user, err := translate.LoadEntries(p.cfg.GlossaryPath)
		if err != nil {
			return nil, err
		}
		entries = append(entries, user...)
	}
	return translate.NewGlossary(entries), nil
}

// writeImages exports every kept asset into the images directory, downscaling
// oversized crops first.
func writeImages(outputDir string, reg *assets.Registry) error {
	kept := reg.Kept()
	if len(kept) == 0 {
		return nil
	}

	dir := filepath.Join(outputDir, qmd.ImagesDirName)
	for _, a := range kept {
		img := a.Image
		if img.Bounds().Dx() > maxImageWidth {
			img = raster.Scale(img, maxImageWidth)
		}
		if err := raster.WritePNG(dir, a.FileName(), img); err != nil {
			return err
		}
	}

	logger.Info("exported asset images", logger.Int("count", len(kept)), logger.String("dir", dir))
	return nil
}

func (p *Pipeline) concurrency() int {
	if p.cfg.Concurrency > 0 {
		return p.cfg.Concurrency
	}
	return translate.DefaultConcurrency
}

// stemOf derives the output file stem from the input path.
func stemOf(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
