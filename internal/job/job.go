package job

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"proxyfarm/internal/services"
	"proxyfarm/internal/textutil"
)

// LinkStatus is the editor-side proxy association state of a clip.
type LinkStatus string

const (
	StatusUnlinked LinkStatus = "unlinked"
	StatusLinked   LinkStatus = "linked"
	StatusOffline  LinkStatus = "offline"
)

// InputLevel is the source's video range used for scaling.
type InputLevel string

const (
	LevelFull    InputLevel = "full"
	LevelLimited InputLevel = "limited"
)

// Job is one source clip awaiting a proxy encode.
type Job struct {
	SourceID   string
	MediaRef   string
	ClipName   string
	FileName   string
	SourcePath string
	Width      int
	Height     int
	FPS        float64
	Frames     int64
	Duration   float64
	HFlip      bool
	VFlip      bool
	StartFrame int64
	EndFrame   int64
	StartTC    string
	EndTC      string

	Status      LinkStatus
	LinkedProxy string
	OutputDir   string
	OutputPath  string
	NewestProxy string
	InputLevel  InputLevel

	opts Options
}

// PathResolutionError reports a source path that cannot be mirrored under the proxy root.
type PathResolutionError struct {
	SourcePath string
}

func (e *PathResolutionError) Error() string {
	return fmt.Sprintf("cannot mirror source path %q under proxy root: no relative remainder", e.SourcePath)
}

func (e *PathResolutionError) Unwrap() error { return services.ErrValidation }

// ErrColorRangeUnknown is returned alongside LevelLimited when the source
// carries no usable color range tag. It is a warning, not a failure.
var ErrColorRangeUnknown = errors.New("color range unknown, assuming limited")

// Prober answers color range queries for a source file.
type Prober interface {
	ColorRange(ctx context.Context, path string) (string, error)
}

// IsLinked reports whether the clip already has a linked proxy.
func (j *Job) IsLinked() bool { return j.Status == StatusLinked }

// IsOffline reports whether the clip's linked proxy went missing.
func (j *Job) IsOffline() bool { return j.Status == StatusOffline }

// Stem returns the source file name without its extension.
func (j *Job) Stem() string {
	return strings.TrimSuffix(j.FileName, filepath.Ext(j.FileName))
}

// Extension returns the proxy container extension.
func (j *Job) Extension() string { return j.opts.Extension }

// relativeRemainder strips the volume name and any leading separators.
func relativeRemainder(source string) string {
	rest := strings.TrimPrefix(source, filepath.VolumeName(source))
	rest = strings.TrimLeft(rest, `/\`)
	if rest == "." {
		return ""
	}
	return rest
}

// ResolveOutputDir returns the directory mirroring the source's location under the proxy root.
func (j *Job) ResolveOutputDir() (string, error) {
	rest := relativeRemainder(j.SourcePath)
	if rest == "" {
		return "", &PathResolutionError{SourcePath: j.SourcePath}
	}
	dir := filepath.Join(j.opts.ProxyRoot, filepath.Dir(rest))
	j.OutputDir = dir
	return dir, nil
}

// ComputeOutputPath returns the proxy path for this clip. Without overwrite
// the first free name among <stem><ext>, <stem>_1<ext>, <stem>_2<ext>, ... is
// chosen. Nothing is created, so repeated calls return the same path.
func (j *Job) ComputeOutputPath() (string, error) {
	return j.ReserveOutputPath(nil)
}

// ReserveOutputPath behaves like ComputeOutputPath but also treats names in
// reserved as taken, then records the result in reserved. Batches use it so
// two clips with the same stem in one directory never share an output.
func (j *Job) ReserveOutputPath(reserved map[string]struct{}) (string, error) {
	dir, err := j.ResolveOutputDir()
	if err != nil {
		return "", err
	}
	stem := j.Stem()
	ext := j.opts.Extension
	taken := func(path string) bool {
		if _, ok := reserved[path]; ok {
			return true
		}
		if j.opts.Overwrite {
			return false
		}
		_, err := os.Lstat(path)
		return err == nil
	}

	candidate := filepath.Join(dir, stem+ext)
	for n := 1; taken(candidate); n++ {
		candidate = filepath.Join(dir, fmt.Sprintf("%s_%d%s", stem, n, ext))
	}
	if reserved != nil {
		reserved[candidate] = struct{}{}
	}
	j.OutputPath = candidate
	return candidate, nil
}

// FindNewestLinkableProxy looks in the output directory for an existing proxy
// of this clip. An exact stem match wins over suffixed names; among several
// candidates of the same kind the newest modification time wins, and ties keep
// the first entry in directory order. A missing directory yields "".
func (j *Job) FindNewestLinkableProxy() (string, error) {
	j.NewestProxy = ""
	dir := j.OutputDir
	if dir == "" {
		var err error
		if dir, err = j.ResolveOutputDir(); err != nil {
			return "", err
		}
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", nil
		}
		return "", fmt.Errorf("list proxy dir: %w", err)
	}

	stem := textutil.NormalizeName(j.Stem())
	ext := strings.ToLower(j.opts.Extension)
	var (
		exactPath, suffixPath string
		exactTime, suffixTime time.Time
	)
	for _, entry := range entries {
		if entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		name := textutil.NormalizeName(entry.Name())
		if ext != "" && strings.ToLower(filepath.Ext(name)) != ext {
			continue
		}
		candidateStem := strings.TrimSuffix(name, filepath.Ext(name))
		exact := candidateStem == stem
		if !exact && !j.suffixAllowed(candidateStem, stem) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		if exact {
			if exactPath == "" || info.ModTime().After(exactTime) {
				exactPath, exactTime = path, info.ModTime()
			}
			continue
		}
		if suffixPath == "" || info.ModTime().After(suffixTime) {
			suffixPath, suffixTime = path, info.ModTime()
		}
	}

	if exactPath != "" {
		j.NewestProxy = exactPath
	} else {
		j.NewestProxy = suffixPath
	}
	return j.NewestProxy, nil
}

func (j *Job) suffixAllowed(candidateStem, stem string) bool {
	if !strings.HasPrefix(candidateStem, stem) {
		return false
	}
	remainder := strings.TrimPrefix(candidateStem, stem)
	for _, pattern := range j.opts.AllowedSuffixes {
		if pattern.MatchString(remainder) {
			return true
		}
	}
	return false
}

// ResolveInputLevel decides the source's video range. mode is the configured
// data level: "full" and "limited" are taken as-is, "auto" probes the source.
// When probing yields nothing usable the level falls back to limited and the
// returned error wraps ErrColorRangeUnknown.
func (j *Job) ResolveInputLevel(ctx context.Context, mode string, prober Prober) (InputLevel, error) {
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case string(LevelFull):
		j.InputLevel = LevelFull
		return j.InputLevel, nil
	case string(LevelLimited):
		j.InputLevel = LevelLimited
		return j.InputLevel, nil
	}

	j.InputLevel = LevelLimited
	if prober == nil {
		return j.InputLevel, ErrColorRangeUnknown
	}
	tag, err := prober.ColorRange(ctx, j.SourcePath)
	if err != nil {
		return j.InputLevel, fmt.Errorf("%w: %v", ErrColorRangeUnknown, err)
	}
	switch strings.ToLower(strings.TrimSpace(tag)) {
	case "pc", "jpeg", "full":
		j.InputLevel = LevelFull
		return j.InputLevel, nil
	case "tv", "mpeg", "limited":
		return j.InputLevel, nil
	default:
		return j.InputLevel, ErrColorRangeUnknown
	}
}
