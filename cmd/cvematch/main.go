// Command cvematch matches known CVE fixes against your source files: the
// result should be read as "the structure of this code loosely reminds the
// code that led to CVE-123", not as a vulnerability proof.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	cvematch "github.com/u91738/cvematch"
	"github.com/u91738/cvematch/internal/config"
	"github.com/u91738/cvematch/internal/device"
	"github.com/u91738/cvematch/internal/embedding"
	"github.com/u91738/cvematch/internal/ingest"
	"github.com/u91738/cvematch/internal/match"
	"github.com/u91738/cvematch/internal/patch"
	"github.com/u91738/cvematch/internal/report"
	"github.com/u91738/cvematch/internal/search"
	"github.com/u91738/cvematch/internal/store"
	"github.com/u91738/cvematch/internal/tui"
	"github.com/u91738/cvematch/internal/watcher"
)

// haystackMax bounds the number of tokens in a single dispatch's haystack;
// files longer than this are windowed with 10% overlap. The driver keys its
// memoized kernel on each dispatched haystack's length, not on this bound.
const haystackMax = 4096

var defaultDataDir = "data"

func main() {
	cfgDefaults := config.Defaults()
	fileCfg, _ := config.Load(".cvematch.toml", cfgDefaults)

	var (
		dbPath        string
		w2vName       string
		w2vList       bool
		w2vShow       bool
		cveIDs        []string
		cweIDs        []string
		noCve         []string
		ignoreIDs     []string
		ignoreFile    string
		splitDiffs    bool
		cveListFlag   bool
		cweListFlag   bool
		reportCveInfo bool
		reportCwe     bool
		reportDiff    bool
		reportDiffF   bool
		reportDiffID  bool
		maxScore      float64
		minHunkTokens int
		insCost       float64
		delCost       float64
		watch         bool
		tuiMode       bool
	)

	root := &cobra.Command{
		Use:   "cvematch [files...]",
		Short: "Match known CVE fixes to your code",
		Long:  "cvematch — match known CVE fixes to your code.\nThe result should be interpreted as \"structure of this code loosely reminds the code that led to CVE-123\".",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), runArgs{
				dbPath: dbPath, w2vName: w2vName, w2vList: w2vList, w2vShow: w2vShow,
				cveIDs: cveIDs, cweIDs: cweIDs, noCve: noCve,
				ignoreIDs: ignoreIDs, ignoreFile: ignoreFile, splitDiffs: splitDiffs,
				cveListFlag: cveListFlag, cweListFlag: cweListFlag,
				reportCveInfo: reportCveInfo, reportCwe: reportCwe,
				reportDiff: reportDiff, reportDiffFull: reportDiffF, reportDiffID: reportDiffID,
				maxScore: maxScore, minHunkTokens: minHunkTokens,
				insCost: insCost, delCost: delCost,
				watch: watch, tuiMode: tuiMode,
				files: args,
			})
		},
	}

	root.Flags().StringVar(&dbPath, "db", fileCfg.Db, "path to CVE database")
	root.Flags().StringVar(&w2vName, "w2v", firstNonEmpty(fileCfg.W2v, "w2v-cbow-v128-w5"), "word2vec embedding artifact name, see --w2v-list")
	root.Flags().BoolVar(&w2vList, "w2v-list", false, "list available word2vec embedding artifacts")
	root.Flags().BoolVar(&w2vShow, "w2v-show", false, "show distances to some sample tokens")
	root.Flags().StringArrayVar(&cveIDs, "cve", nil, "CVE id to check (repeatable)")
	root.Flags().StringArrayVar(&cweIDs, "cwe", nil, "check all CVEs with this CWE id (repeatable)")
	root.Flags().StringArrayVar(&noCve, "no-cve", nil, "CVE id to not check (repeatable)")
	root.Flags().StringArrayVar(&ignoreIDs, "ignore", nil, "CVE id to remove from the working set (repeatable)")
	root.Flags().StringVar(&ignoreFile, "ignore-file", "", "file of CVE ids (one per line) to remove from the working set")
	root.Flags().BoolVar(&splitDiffs, "split-diffs", false, "one CveDesc per before-hunk instead of one per diff")
	root.Flags().BoolVar(&cveListFlag, "cve-list", false, "show list of available CVEs")
	root.Flags().BoolVar(&cweListFlag, "cwe-list", false, "show list of available CWEs")
	root.Flags().BoolVar(&reportCveInfo, "report-cve-info", false, "show CVE description for matches")
	root.Flags().BoolVar(&reportCwe, "report-cwe", false, "show CWE id and description for matches")
	root.Flags().BoolVar(&reportDiff, "report-diff", false, "on match, show diff for the matching hunk")
	root.Flags().BoolVar(&reportDiffF, "report-diff-full", false, "on match, show the full diff of the CVE fix")
	root.Flags().BoolVar(&reportDiffID, "report-diff-id", false, "accepted for compatibility; has no effect, since a match does not carry a file_change row id")
	root.Flags().Float64Var(&maxScore, "max-score", firstNonZero(fileCfg.MaxScore, cfgDefaults.MaxScore), "max score considered a match (0.05-0.3 reasonable)")
	root.Flags().IntVar(&minHunkTokens, "min-hunk-tokens", firstNonZeroInt(fileCfg.MinHunkTokens, cfgDefaults.MinHunkTokens), "minimum token count for a hunk to be matched")
	root.Flags().Float64Var(&insCost, "levenstein-ins-cost", firstNonZero(fileCfg.InsCost, cfgDefaults.InsCost), "insertion cost in the edit distance computation")
	root.Flags().Float64Var(&delCost, "levenstein-del-cost", firstNonZero(fileCfg.DelCost, cfgDefaults.DelCost), "deletion cost in the edit distance computation")
	root.Flags().BoolVar(&watch, "watch", false, "re-run the scan whenever a source file changes")
	root.Flags().BoolVar(&tuiMode, "tui", false, "browse matches interactively instead of printing a report")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	root.SetContext(ctx)

	if err := root.Execute(); err != nil {
		var cvErr *cvematch.Error
		if ok := asCvematchError(err, &cvErr); ok {
			os.Exit(cvErr.Kind.ExitCode())
		}
		os.Exit(1)
	}
}

func asCvematchError(err error, target **cvematch.Error) bool {
	for err != nil {
		if e, ok := err.(*cvematch.Error); ok {
			*target = e
			return true
		}
		unwrapper, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = unwrapper.Unwrap()
	}
	return false
}

type runArgs struct {
	dbPath, w2vName                          string
	w2vList, w2vShow                         bool
	cveIDs, cweIDs, noCve, ignoreIDs         []string
	ignoreFile                               string
	splitDiffs                               bool
	cveListFlag, cweListFlag                 bool
	reportCveInfo, reportCwe                 bool
	reportDiff, reportDiffFull, reportDiffID bool
	maxScore                                 float64
	minHunkTokens                            int
	insCost, delCost                         float64
	watch, tuiMode                           bool
	files                                     []string
}

func run(ctx context.Context, a runArgs) error {
	if a.dbPath == "" {
		a.dbPath = filepath.Join(defaultDataDir, "CVEfixes_v1.0.7.sqlite")
	}

	if a.w2vList {
		printW2vList()
	}

	tbl, err := embedding.Load(filepath.Join(defaultDataDir, a.w2vName), maxFloat(a.insCost, a.delCost))
	if err != nil {
		return cvematch.Wrap(cvematch.KindConfig, "load embedding", err)
	}
	if err := device.AssertEndianness(); err != nil {
		return cvematch.Wrap(cvematch.KindDevice, "endianness check", err)
	}

	if a.w2vShow {
		printW2vShow(tbl)
	}

	st, err := store.Open(a.dbPath)
	if err != nil {
		return cvematch.Wrap(cvematch.KindConfig, "open store", err)
	}
	defer st.Close()

	if a.cveListFlag {
		cves, err := st.ListCves(ctx)
		if err != nil {
			return cvematch.Wrap(cvematch.KindConfig, "list cves", err)
		}
		report.CveList(os.Stdout, cves)
	}
	if a.cweListFlag {
		cwes, err := st.ListCwes(ctx)
		if err != nil {
			return cvematch.Wrap(cvematch.KindConfig, "list cwes", err)
		}
		report.CweList(os.Stdout, cwes, func(id string) int {
			ids, _ := st.CvesByCwe(ctx, id)
			return len(ids)
		})
	}

	if len(a.files) == 0 {
		fmt.Fprintln(os.Stderr, "No source files specified")
		return cvematch.Wrap(cvematch.KindConfig, "args", fmt.Errorf("no source files"))
	}

	changes, err := resolveChanges(ctx, st, a)
	if err != nil {
		return err
	}
	if len(changes) == 0 {
		fmt.Fprintln(os.Stderr, "No CVEs to match")
		return cvematch.Wrap(cvematch.KindConfig, "args", fmt.Errorf("no cves to check"))
	}

	mode := patch.ModeJoined
	if a.splitDiffs {
		mode = patch.ModeSplit
	}
	var descs []patch.Desc
	for _, c := range changes {
		ds := patch.Parse(c.Language, c.Diff, c.CveID, a.minHunkTokens, mode)
		descs = append(descs, ds...)
	}

	drv := device.New(tbl, 0)
	cfg := match.Config{
		MaxScore:    a.maxScore,
		Costs:       search.Costs{InsCost: a.insCost, DelCost: a.delCost, MaxDistance: 1e9},
		HaystackMax: haystackMax,
	}
	engine := match.New(descs, tbl, drv, cfg)

	scan := func() ([]tui.Entry, error) {
		return scanFiles(ctx, engine, a.files)
	}

	if a.watch {
		return runWatch(ctx, a, scan, st)
	}

	entries, err := scan()
	if err != nil {
		return err
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Match.ScoreBefore < entries[j].Match.ScoreBefore })

	if a.tuiMode {
		p := tea.NewProgram(tui.New(entries), tea.WithAltScreen())
		_, err := p.Run()
		return err
	}

	opts := report.Options{CveInfo: a.reportCveInfo, Cwe: a.reportCwe, Diff: a.reportDiff, DiffFull: a.reportDiffFull}
	printEntries(ctx, st, entries, opts)
	return nil
}

func scanFiles(ctx context.Context, engine *match.Engine, files []string) ([]tui.Entry, error) {
	var entries []tui.Entry
	for _, path := range files {
		if ingest.IsProbablyBinary(path) {
			fmt.Fprintf(os.Stderr, "skipping binary file %s\n", path)
			continue
		}
		f, err := ingest.Load(path)
		if err != nil {
			return nil, cvematch.Wrap(cvematch.KindConfig, "load file", err)
		}
		fmt.Fprintf(os.Stderr, "Processing %s tokens: %d\n", path, len(f.Tokens))

		matches, err := engine.Run(ctx, f)
		if err != nil {
			return nil, cvematch.Wrap(cvematch.KindDevice, "scan", err)
		}
		for _, m := range matches {
			entries = append(entries, tui.Entry{Match: m, File: f})
		}
	}
	return entries, nil
}

func printEntries(ctx context.Context, st *store.Store, entries []tui.Entry, opts report.Options) {
	reports := map[string]*store.Report{}
	for _, e := range entries {
		var rep *store.Report
		if opts.CveInfo || opts.Cwe || opts.DiffFull {
			if cached, ok := reports[e.Match.ChangeID]; ok {
				rep = cached
			} else if r, err := st.CveReportByCveID(ctx, e.Match.ChangeID); err == nil {
				rep = r
				reports[e.Match.ChangeID] = r
			}
		}
		report.Match(os.Stdout, e.Match, e.File, rep, opts)
	}
}

func runWatch(ctx context.Context, a runArgs, scan func() ([]tui.Entry, error), st *store.Store) error {
	rescan := func() {
		entries, err := scan()
		if err != nil {
			fmt.Fprintf(os.Stderr, "[watch] scan error: %v\n", err)
			return
		}
		sort.Slice(entries, func(i, j int) bool { return entries[i].Match.ScoreBefore < entries[j].Match.ScoreBefore })
		opts := report.Options{CveInfo: a.reportCveInfo, Cwe: a.reportCwe, Diff: a.reportDiff, DiffFull: a.reportDiffFull}
		printEntries(ctx, st, entries, opts)
	}
	rescan()

	w, err := watcher.New(a.files, rescan)
	if err != nil {
		return cvematch.Wrap(cvematch.KindConfig, "watch", err)
	}
	done := make(chan struct{})
	go func() {
		<-ctx.Done()
		close(done)
	}()
	return w.Watch(done)
}

func resolveChanges(ctx context.Context, st *store.Store, a runArgs) ([]store.FileChange, error) {
	ids := map[string]bool{}
	for _, id := range a.cveIDs {
		ids[id] = true
	}
	for _, cwe := range a.cweIDs {
		cveIDs, err := st.CvesByCwe(ctx, cwe)
		if err != nil {
			return nil, cvematch.Wrap(cvematch.KindConfig, "resolve cwe", err)
		}
		for _, id := range cveIDs {
			ids[id] = true
		}
	}
	for _, id := range a.noCve {
		delete(ids, id)
	}
	for _, id := range a.ignoreIDs {
		delete(ids, id)
	}
	if a.ignoreFile != "" {
		b, err := os.ReadFile(a.ignoreFile)
		if err != nil {
			return nil, cvematch.Wrap(cvematch.KindConfig, "read ignore-file", err)
		}
		for _, line := range strings.Split(string(b), "\n") {
			line = strings.TrimSpace(line)
			if line != "" {
				delete(ids, line)
			}
		}
	}

	if len(ids) > 0 {
		fmt.Fprintln(os.Stderr, "Will check:")
		var out []store.FileChange
		for id := range ids {
			changes, err := st.GetChangesByCve(ctx, id)
			if err != nil {
				return nil, cvematch.Wrap(cvematch.KindConfig, "get changes", err)
			}
			fmt.Fprintln(os.Stderr, id)
			out = append(out, changes...)
		}
		return out, nil
	}

	fmt.Fprintln(os.Stderr, "No CVEs to check. Will use all C/C++ CVE records")
	return st.GetChangesByLanguage(ctx, "C++")
}

func printW2vList() {
	fmt.Println("Available word2vec models w2v-(training algorithm)-v(vector-size)-w(window size):")
	entries, err := os.ReadDir(defaultDataDir)
	if err != nil {
		return
	}
	for _, e := range entries {
		if e.IsDir() && strings.HasPrefix(e.Name(), "w2v-") {
			fmt.Println(e.Name())
		}
	}
	fmt.Println()
}

func printW2vShow(tbl *embedding.Table) {
	fmt.Println("word2vec distances")
	fmt.Println("Should be close:")
	for _, pair := range [][2]string{{"+", "-"}, {"if", "while"}, {"int", "unsigned"}, {"int", "uint"}} {
		fmt.Println(pair[0], pair[1], ":", tbl.Distance(tbl.Index(pair[0]), tbl.Index(pair[1])))
	}
	fmt.Println("Should be far:")
	for _, pair := range [][2]string{{"if", "/"}, {"int", "while"}, {"int", "&&"}, {"int", ";"}} {
		fmt.Println(pair[0], "-", pair[1], ":", tbl.Distance(tbl.Index(pair[0]), tbl.Index(pair[1])))
	}
}

func firstNonEmpty(a, b string) string {
	if a != "" {
		return a
	}
	return b
}

func firstNonZero(a, b float64) float64 {
	if a != 0 {
		return a
	}
	return b
}

func firstNonZeroInt(a, b int) int {
	if a != 0 {
		return a
	}
	return b
}

func maxFloat(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}
