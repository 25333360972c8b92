package process

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/giwty/ndecrypt/ctrfs"
	"github.com/giwty/ndecrypt/fileio"
	"github.com/giwty/ndecrypt/ndsfs"
	"github.com/giwty/ndecrypt/rom"
	"go.uber.org/zap"
)

type Status int

const (
	StatusDone Status = iota
	StatusAlreadyProcessed
	StatusFailed
	StatusSkipped
)

func (s Status) String() string {
	switch s {
	case StatusDone:
		return "done"
	case StatusAlreadyProcessed:
		return "already processed"
	case StatusFailed:
		return "failed"
	}
	return "skipped"
}

// Result of processing one file.
type Result struct {
	Path    string
	Type    RomType
	Status  Status
	Message string
}

type Options struct {
	Mode        rom.Mode
	Development bool
	// Seed is required only for NDS/NDSi files.
	Seed *ndsfs.Seed
	// Keys is required only for 3DS files.
	Keys ctrfs.KeyProvider
}

type Processor struct {
	opts     Options
	progress ProgressUpdater
}

func NewProcessor(opts Options, progress ProgressUpdater) *Processor {
	if progress == nil {
		progress = noProgress{}
	}
	return &Processor{opts: opts, progress: progress}
}

// Run processes the files in order and returns one result per file.
func (p *Processor) Run(files []string) []Result {
	results := make([]Result, 0, len(files))
	for i, file := range files {
		p.progress.UpdateProgress(i, len(files), file)
		results = append(results, p.ProcessFile(file))
	}
	p.progress.UpdateProgress(len(files), len(files), "")
	return results
}

// ProcessFile transforms a single ROM in place. Errors never escape: they are reported
// in the result.
func (p *Processor) ProcessFile(path string) Result {
	result := Result{Path: path}

	romType, err := DetermineRomType(path)
	if err != nil {
		zap.S().Infof("skipping %v - %v", path, err)
		result.Status = StatusSkipped
		result.Message = err.Error()
		return result
	}
	result.Type = romType

	outcome, err := p.transform(path, romType)
	if err != nil {
		zap.S().Errorf("failed to %v %v - %v", p.opts.Mode, path, err)
		result.Status = StatusFailed
		result.Message = err.Error()
		return result
	}

	if outcome == rom.AlreadyDone {
		result.Status = StatusAlreadyProcessed
		result.Message = "already " + p.opts.Mode.Done()
	} else {
		result.Status = StatusDone
		result.Message = p.opts.Mode.Done()
	}
	zap.S().Infof("%v: %v", path, result.Message)
	return result
}

func (p *Processor) transform(path string, romType RomType) (rom.Outcome, error) {
	if romType.IsDS() && p.opts.Seed == nil {
		return rom.Unknown, errors.New("NDS seed is not loaded")
	}
	if romType == Rom3DS && p.opts.Keys == nil {
		return rom.Unknown, errors.New("3DS keys are not loaded")
	}

	f, err := fileio.OpenRom(path)
	if err != nil {
		return rom.Unknown, err
	}
	defer f.Close()

	if romType == Rom3DS {
		return ctrfs.TransformImage(f, p.opts.Keys, p.opts.Mode, p.opts.Development)
	}

	if f.Size() < ndsfs.SecureAreaOffset+ndsfs.SecureAreaSize {
		return rom.Unknown, fmt.Errorf("%w: %d bytes cannot hold a secure area", rom.ErrShortImage, f.Size())
	}
	header, err := ndsfs.ReadHeader(f)
	if err != nil {
		return rom.Unknown, err
	}
	zap.S().Debugf("%v: %v [%v] unit %v, ARM9 0x%X bytes at 0x%X, secure area CRC 0x%04X", path, header.GameTitle,
		header.GameCodeString(), header.UnitCode, header.ARM9Size, header.ARM9Offset, header.SecureAreaCRC)
	return ndsfs.TransformSecureArea(f, header, p.opts.Seed, p.opts.Mode)
}

// CollectFiles expands the given paths into the files to process. Directories are walked
// recursively and only files with a known ROM extension are kept from them; explicitly
// named files are kept as is. Paths that cannot be read produce a failed result.
func CollectFiles(paths []string) ([]string, []Result) {
	var files []string
	var failed []Result
	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			failed = append(failed, Result{Path: path, Status: StatusFailed, Message: err.Error()})
			continue
		}
		if !info.IsDir() {
			files = append(files, path)
			continue
		}

		err = filepath.WalkDir(path, func(file string, d fs.DirEntry, err error) error {
			if err != nil {
				failed = append(failed, Result{Path: file, Status: StatusFailed, Message: err.Error()})
				if d != nil && d.IsDir() {
					return fs.SkipDir
				}
				return nil
			}
			if d.IsDir() {
				return nil
			}
			if _, err := DetermineRomType(file); err != nil {
				zap.S().Debugf("ignoring %v", file)
				return nil
			}
			files = append(files, file)
			return nil
		})
		if err != nil {
			failed = append(failed, Result{Path: path, Status: StatusFailed, Message: fmt.Sprintf("failed to scan folder - %v", err)})
		}
	}
	return files, failed
}

// CountTypes returns how many files of each ROM type are in files.
func CountTypes(files []string) map[RomType]int {
	counts := map[RomType]int{}
	for _, file := range files {
		t, _ := DetermineRomType(file)
		counts[t]++
	}
	return counts
}
