package tiv

import (
	"encoding"
	"errors"
	"flag"
	"fmt"
	"os"
	"reflect"
	"runtime"
	"runtime/debug"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/hatlen/tiv/pkg/rlog"
)

type Config struct {
	BuildInfo BuildInfo

	// Path is a directory to browse or an image file to open. Opening a file
	// browses its parent directory with the cursor anchored at that file.
	Path string

	Order      Order
	Direction  Direction
	Extensions Extensions

	Lookahead       int
	WorkersCount    int
	BitmapCacheSize MiB
	ImageCacheSize  MiB

	Interpolation Interpolation

	MetricsAddr string

	// Debug options

	LogFile  string
	LogLevel rlog.Level
}

type BuildInfo struct {
	ShortGitHash string
	CommitTime   string
}

// Order is the sort key for directory entries.
type Order string

const (
	OrderName    Order = "name"
	OrderModTime Order = "mtime"
	OrderSize    Order = "size"
)

func (o Order) MarshalText() (text []byte, err error) {
	return []byte(o), nil
}

func (o *Order) UnmarshalText(text []byte) error {
	*o = Order(text)

	return checkEnum(*o, OrderName, OrderModTime, OrderSize)
}

// Direction is the sort direction for directory entries.
type Direction string

const (
	Ascending  Direction = "asc"
	Descending Direction = "desc"
)

func (d Direction) MarshalText() (text []byte, err error) {
	return []byte(d), nil
}

func (d *Direction) UnmarshalText(text []byte) error {
	*d = Direction(text)

	return checkEnum(*d, Ascending, Descending)
}

// Interpolation selects the scaling filter used when a bitmap is prepared
// for the render target.
type Interpolation string

const (
	// InterpolationNearest is the fastest filter with the roughest result.
	InterpolationNearest Interpolation = "nearest"
	// InterpolationBilinear is a reasonable speed/quality tradeoff.
	InterpolationBilinear Interpolation = "bilinear"
	// InterpolationCatmullRom is the slowest filter with the sharpest result.
	InterpolationCatmullRom Interpolation = "catmull-rom"
)

func (i Interpolation) MarshalText() (text []byte, err error) {
	return []byte(i), nil
}

func (i *Interpolation) UnmarshalText(text []byte) error {
	*i = Interpolation(text)

	return checkEnum(*i, InterpolationNearest, InterpolationBilinear, InterpolationCatmullRom)
}

func checkEnum[T comparable](v T, validValues ...T) error {
	if !slices.Contains(validValues, v) {
		return fmt.Errorf("valid values: %v", validValues)
	}
	return nil
}

// Extensions is a comma-separated allow-list of file extensions.
// Values are normalized to lower case with a leading dot.
type Extensions []string

func (e Extensions) MarshalText() (text []byte, err error) {
	trimmed := make([]string, 0, len(e))
	for _, ext := range e {
		trimmed = append(trimmed, strings.TrimPrefix(ext, "."))
	}
	return []byte(strings.Join(trimmed, ",")), nil
}

func (e *Extensions) UnmarshalText(text []byte) error {
	*e = nil
	for _, ext := range strings.Split(string(text), ",") {
		ext = strings.ToLower(strings.TrimSpace(ext))
		ext = strings.TrimPrefix(ext, ".")
		if ext == "" {
			continue
		}
		*e = append(*e, "."+ext)
	}
	if len(*e) == 0 {
		return errors.New("at least one extension is required")
	}
	return nil
}

// Contains reports whether the allow-list matches an extension in the
// form returned by [GetFileExt].
func (e Extensions) Contains(ext string) bool {
	return slices.Contains(e, ext)
}

func (e Extensions) String() string {
	text, _ := e.MarshalText()
	return string(text)
}

type MiB int

func (mb MiB) Bytes() int64 {
	return int64(mb) << 20
}

func (mb MiB) MarshalText() (text []byte, err error) {
	if mb >= 1024 && mb%1024 == 0 {
		return []byte(strconv.Itoa(int(mb/1024)) + "Gi"), nil
	}
	return []byte(strconv.Itoa(int(mb)) + "Mi"), nil
}

func (mb *MiB) UnmarshalText(data []byte) error {
	text := string(data)

	mul := 1
	switch {
	case strings.HasSuffix(text, "Mi"):
	case strings.HasSuffix(text, "Gi"):
		mul = 1024
	default:
		return fmt.Errorf("valid suffixes: Mi, Gi")
	}
	n, err := strconv.Atoi(text[:len(text)-2])
	if err != nil {
		return fmt.Errorf("invalid size: %w", err)
	}

	*mb = MiB(n * mul)
	return nil
}

func (mb MiB) String() string {
	text, _ := mb.MarshalText()
	return string(text)
}

type flagParams struct {
	// p is a pointer to a value.
	p            any
	defaultValue any
	desc         string
}

func (cfg *Config) getFlagParams() map[string]flagParams {
	return map[string]flagParams{
		"order": {
			p: &cfg.Order, defaultValue: OrderName, desc: "" +
				"Sort key for directory entries:\n" +
				"  - name: natural filename order (numbers compare as numbers)\n" +
				"  - mtime: last modification time\n" +
				"  - size: file size\n",
		},
		"direction": {
			p: &cfg.Direction, defaultValue: Ascending, desc: "Sort direction, one of: asc, desc",
		},
		"extensions": {
			p: &cfg.Extensions, defaultValue: defaultExtensions, desc: "Comma-separated list of file extensions to browse",
		},
		//
		"lookahead": {
			p: &cfg.Lookahead, defaultValue: 5, desc: "" +
				"Number of files beyond the cursor to preload after every\n" +
				"navigation step, in the direction of travel",
		},
		"workers-count": {
			p: &cfg.WorkersCount, defaultValue: 0, desc: "Number of load workers (0 - derive from the CPU count)",
		},
		"bitmap-cache-size": {
			p: &cfg.BitmapCacheSize, defaultValue: MiB(512), desc: "Max total size of cached ready-to-draw bitmaps",
		},
		"image-cache-size": {
			p: &cfg.ImageCacheSize, defaultValue: MiB(1024), desc: "Max total size of cached decoded images",
		},
		//
		"interpolation": {
			p: &cfg.Interpolation, defaultValue: InterpolationBilinear, desc: "" +
				"Scaling filter used to fit images to the render target:\n" +
				"  - nearest: fastest, roughest\n" +
				"  - bilinear: good speed/quality tradeoff\n" +
				"  - catmull-rom: slowest, sharpest\n",
		},
		//
		"metrics-addr": {
			p: &cfg.MetricsAddr, defaultValue: "", desc: "" +
				"Address to serve Prometheus metrics on, e.g. localhost:8090\n" +
				"(empty - don't serve metrics)",
		},
		//
		"log-file": {
			p: &cfg.LogFile, defaultValue: "", desc: "Write logs to this file (empty - discard logs)",
		},
		"log-level": {
			p: &cfg.LogLevel, defaultValue: rlog.LevelInfo, desc: "Set the minimal log level. One of: debug, info, warn, error",
		},
	}
}

var defaultExtensions = Extensions{
	".png", ".jpg", ".jpeg", ".gif", ".bmp", ".webp", ".tif", ".tiff",
}

func ParseConfig() (Config, error) {
	cfg := Config{
		BuildInfo: readBuildInfo(),
	}

	var printVersion bool
	flag.BoolVar(&printVersion, "version", false, "Print version and exit")

	flags := cfg.getFlagParams()
	for name, params := range flags {
		switch p := params.p.(type) {
		case *bool:
			flag.BoolVar(p, name, params.defaultValue.(bool), params.desc)
		case *int:
			flag.IntVar(p, name, params.defaultValue.(int), params.desc)
		case *int64:
			flag.Int64Var(p, name, params.defaultValue.(int64), params.desc)
		case *string:
			flag.StringVar(p, name, params.defaultValue.(string), params.desc)
		case encoding.TextUnmarshaler:
			flag.TextVar(p, name, params.defaultValue.(encoding.TextMarshaler), params.desc)
		default:
			return Config{}, fmt.Errorf("flag %q has unsupported type: %T", name, p)
		}
	}

	flag.Parse()

	if printVersion {
		cfg.BuildInfo.Print()
		os.Exit(0)
	}

	cfg.Path = flag.Arg(0)
	if cfg.Path == "" {
		cfg.Path = "."
	}

	if err := cfg.validate(); err != nil {
		return cfg, err
	}

	return cfg, nil
}

func (cfg *Config) validate() error {
	if cfg.Lookahead < 0 {
		return errors.New("lookahead can't be negative")
	}
	if cfg.BitmapCacheSize <= 0 {
		return errors.New("bitmap cache size must be > 0")
	}
	if cfg.ImageCacheSize <= 0 {
		return errors.New("image cache size must be > 0")
	}
	if cfg.WorkersCount < 0 {
		return errors.New("workers count can't be negative")
	}
	if cfg.WorkersCount == 0 {
		cfg.WorkersCount = defaultWorkersCount(cfg.Lookahead)
	}
	return nil
}

// defaultWorkersCount uses half of the available cores: decoding is CPU-bound,
// and the other half is left for the rest of the system. More workers than
// the lookahead window never helps because that is the most a single
// navigation step can dispatch.
func defaultWorkersCount(lookahead int) int {
	n := runtime.NumCPU() / 2
	if n < 1 {
		n = 1
	}
	if lookahead >= 1 && n > lookahead {
		n = lookahead
	}
	return n
}

func readBuildInfo() BuildInfo {
	res := BuildInfo{
		ShortGitHash: "unknown",
		CommitTime:   "unknown",
	}

	info, ok := debug.ReadBuildInfo()
	if !ok {
		return res
	}

	for _, s := range info.Settings {
		switch s.Key {
		case "vcs.revision":
			res.ShortGitHash = s.Value
			if len(res.ShortGitHash) > 7 {
				res.ShortGitHash = res.ShortGitHash[:7]
			}

		case "vcs.time":
			t, err := time.Parse(time.RFC3339, s.Value)
			if err == nil {
				res.CommitTime = t.UTC().Format("2006-01-02 15:04:05 UTC")
			}
		}
	}
	return res
}

func (info BuildInfo) Print() {
	fmt.Fprintf(os.Stderr, `
     _   _
    | |_(_)_   __
    | __| \ \ / /
    | |_| |\ V /
     \__|_| \_/

    Commit Hash: %q
    Commit Time: %q

    GitHub Repo: https://github.com/hatlen/tiv

`,
		info.ShortGitHash,
		info.CommitTime,
	)
}

func (cfg Config) String() string {
	flags := cfg.getFlagParams()

	var (
		names         = make([]string, 0, len(flags))
		maxNameLength int
	)
	for name := range flags {
		if len(name) > maxNameLength {
			maxNameLength = len(name)
		}
		names = append(names, name)
	}
	slices.Sort(names)

	b := new(strings.Builder)
	b.WriteString("config:\n")
	fmt.Fprintf(b, "    path = %q\n", cfg.Path)
	for _, name := range names {
		fmt.Fprintf(b, "    --%-*s = %v\n", maxNameLength, name, reflect.ValueOf(flags[name].p).Elem())
	}
	return b.String()
}
