package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/giwty/ndecrypt/logger"
	"github.com/giwty/ndecrypt/process"
	"github.com/giwty/ndecrypt/rom"
	"github.com/giwty/ndecrypt/settings"
	"github.com/jedib0t/go-pretty/table"
	"github.com/schollz/progressbar/v3"
	"go.uber.org/zap"
)

type Console struct {
	baseFolder  string
	settings    *settings.AppSettings
	sugarLogger *zap.SugaredLogger
	progressBar *progressbar.ProgressBar
	out         io.Writer
}

func CreateConsole(baseFolder string, settingsObj *settings.AppSettings, sugarLogger *zap.SugaredLogger) *Console {
	return &Console{baseFolder: baseFolder, settings: settingsObj, sugarLogger: sugarLogger, out: os.Stdout}
}

// Start processes every ROM under paths. Key material is loaded only for the ROM types
// present, and a load failure stops the run before any file is touched.
func (c *Console) Start(mode rom.Mode, paths []string) error {
	if c.settings.ConfigFile != "" {
		c.sugarLogger.Infof("using settings from %v", c.settings.ConfigFile)
	}

	files, failed := process.CollectFiles(paths)
	counts := process.CountTypes(files)

	opts := process.Options{Mode: mode, Development: c.settings.Development}
	if counts[process.RomNDS]+counts[process.RomNDSi] > 0 {
		seed, err := settings.LoadNDSSeed(c.settings.NDSSeed)
		if err != nil {
			fmt.Fprintf(c.out, "Could not read the NDS seed from %v. Please make sure the file exists and try again\n", c.settings.NDSSeed)
			return err
		}
		opts.Seed = seed
	}
	if counts[process.Rom3DS] > 0 {
		keys := settings.Keys()
		if err := keys.Init(c.settings.KeyFile, c.settings.KeyFileFormat()); err != nil {
			fmt.Fprintf(c.out, "Could not read keys from %v. Please make sure the file exists and try again\n", c.settings.KeyFile)
			return err
		}
		opts.Keys = keys
	}

	if len(files) == 0 && len(failed) == 0 {
		fmt.Fprintln(c.out, "No ROM files found")
		return nil
	}

	if len(files) > 0 {
		fmt.Fprintf(c.out, "Processing %d file(s) (%v)\n", len(files), mode)
		c.progressBar = progressbar.New(len(files))
	}
	results := process.NewProcessor(opts, c).Run(files)
	if c.progressBar != nil {
		c.progressBar.Finish()
		fmt.Fprintln(c.out)
	}

	results = append(failed, results...)
	if !c.settings.NoSummary {
		c.printSummary(results)
	}

	if n := countStatus(results, process.StatusFailed); n > 0 {
		return fmt.Errorf("processing failed for %d file(s), see %v for details", n, filepath.Join(c.baseFolder, logger.LOGGER_FILE))
	}
	return nil
}

func (c *Console) printSummary(results []process.Result) {
	t := table.NewWriter()
	t.SetOutputMirror(c.out)
	t.SetStyle(table.StyleColoredBright)
	t.AppendHeader(table.Row{"#", "File", "Type", "Status", "Details"})
	for i, r := range results {
		t.AppendRow([]interface{}{i, r.Path, r.Type, r.Status, r.Message})
	}
	t.AppendFooter(table.Row{"", "Done", countStatus(results, process.StatusDone),
		"Failed", countStatus(results, process.StatusFailed)})
	t.Render()
}

func countStatus(results []process.Result, status process.Status) int {
	n := 0
	for _, r := range results {
		if r.Status == status {
			n++
		}
	}
	return n
}

func (c *Console) UpdateProgress(curr int, total int, message string) {
	if c.progressBar == nil {
		return
	}
	c.progressBar.ChangeMax(total)
	c.progressBar.Set(curr)
	if message != "" {
		c.progressBar.Describe(filepath.Base(message))
	}
}
