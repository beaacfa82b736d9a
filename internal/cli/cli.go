// Package cli provides the command-line interface with injectable io.Writer for testing.
package cli

import (
	"fmt"
	"io"
	"os"
	"slices"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/sirupsen/logrus"

	"github.com/mcdonaldj/arcbridge/internal/archive"
	"github.com/mcdonaldj/arcbridge/internal/callback"
	"github.com/mcdonaldj/arcbridge/internal/config"
	"github.com/mcdonaldj/arcbridge/internal/fsutil"
)

// PasswordEnv names the environment variable consulted when an archive needs
// a password and none was configured.
const PasswordEnv = "ARCBRIDGE_PASSWORD"

// ConfigService provides configuration operations for the CLI.
type ConfigService interface {
	Load() (*config.Config, error)
	Save(cfg *config.Config) error
	ConfigPath() string
	DefaultConfig() *config.Config
}

// ArchiveService provides archive operations for the CLI.
type ArchiveService interface {
	Handler() *callback.Handler
	AddFiles(dest string, paths []string) (archive.Result, error)
	AddBuffer(dest, name string, data []byte) (archive.Result, error)
	Extract(archivePath, destDir, filter string) (archive.Result, error)
	ExtractToBuffers(archivePath, filter string) (map[string][]byte, error)
	Test(archivePath string) (int, error)
	List(archivePath, filter string) ([]archive.Entry, error)
	Umask() fsutil.Umask
}

// CLI represents the command-line interface with injectable dependencies.
type CLI struct {
	Out     io.Writer // Standard output
	Err     io.Writer // Standard error
	In      io.Reader // Standard input, read by add-buffer
	Version string    // Application version
	Args    []string  // Command arguments (like os.Args)

	// Exit function for testability (defaults to os.Exit)
	Exit func(code int)

	// Injectable dependencies (nil means use defaults)
	ConfigSvc  ConfigService
	ArchiveSvc ArchiveService

	// Color functions (can be disabled for testing)
	green  func(a ...interface{}) string
	yellow func(a ...interface{}) string
	cyan   func(a ...interface{}) string
	gray   func(a ...interface{}) string
	red    func(a ...interface{}) string
}

// New creates a new CLI with default settings.
func New(version string) *CLI {
	return &CLI{
		Out:     os.Stdout,
		Err:     os.Stderr,
		In:      os.Stdin,
		Version: version,
		Args:    os.Args,
		Exit:    os.Exit,
		green:   color.New(color.FgGreen, color.Bold).SprintFunc(),
		yellow:  color.New(color.FgYellow).SprintFunc(),
		cyan:    color.New(color.FgCyan).SprintFunc(),
		gray:    color.New(color.FgHiBlack).SprintFunc(),
		red:     color.New(color.FgRed).SprintFunc(),
	}
}

// NewForTesting creates a CLI configured for testing (no colors, captured output).
func NewForTesting(out, errOut io.Writer, args []string) *CLI {
	noColor := func(a ...interface{}) string { return fmt.Sprint(a...) }
	return &CLI{
		Out:     out,
		Err:     errOut,
		In:      strings.NewReader(""),
		Version: "test",
		Args:    args,
		Exit:    func(code int) {},
		green:   noColor,
		yellow:  noColor,
		cyan:    noColor,
		gray:    noColor,
		red:     noColor,
	}
}

// defaultConfigService wraps the config package functions.
type defaultConfigService struct{}

func (d *defaultConfigService) Load() (*config.Config, error) { return config.Load() }
func (d *defaultConfigService) Save(cfg *config.Config) error { return cfg.Save() }
func (d *defaultConfigService) ConfigPath() string            { return config.ConfigPath() }
func (d *defaultConfigService) DefaultConfig() *config.Config { return config.DefaultConfig() }

func (c *CLI) configSvc() ConfigService {
	if c.ConfigSvc != nil {
		return c.ConfigSvc
	}
	return &defaultConfigService{}
}

// options are the flags shared by the archive commands.
type options struct {
	verbose  bool
	password string
	filter   string
	args     []string
}

// parseOptions splits flags from positional arguments.
func parseOptions(args []string) options {
	var opts options
	for _, arg := range args {
		switch {
		case arg == "--verbose" || arg == "-V":
			opts.verbose = true
		case strings.HasPrefix(arg, "--password="):
			opts.password = strings.TrimPrefix(arg, "--password=")
		case strings.HasPrefix(arg, "--filter="):
			opts.filter = strings.TrimPrefix(arg, "--filter=")
		default:
			opts.args = append(opts.args, arg)
		}
	}
	return opts
}

// expandPaths expands a leading ~ in each path.
func expandPaths(paths []string) []string {
	expanded := make([]string, len(paths))
	for i, p := range paths {
		expanded[i] = config.ExpandPath(p)
	}
	return expanded
}

// newLogger creates the logger for one command, writing to c.Err.
func (c *CLI) newLogger(cfg *config.Config, verbose bool) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(c.Err)
	logger.SetFormatter(&logrus.TextFormatter{DisableTimestamp: true})

	level, err := cfg.ParseLogLevel()
	if err != nil {
		level = logrus.WarnLevel
	}
	if verbose && level < logrus.InfoLevel {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)
	return logger
}

// archiveSvc loads the config and returns the archive service with its
// handler callbacks attached. It reports errors and returns nil on failure.
func (c *CLI) archiveSvc(opts options) ArchiveService {
	svc := c.ArchiveSvc
	if svc == nil {
		cfg, err := c.configSvc().Load()
		if err != nil {
			fmt.Fprintf(c.Err, "Error loading config: %v\n", err)
			c.Exit(1)
			return nil
		}
		svc, err = archive.NewDefaultService(cfg, c.newLogger(cfg, opts.verbose))
		if err != nil {
			fmt.Fprintf(c.Err, "Error: %v\n", err)
			c.Exit(1)
			return nil
		}
	}

	handler := svc.Handler()
	if opts.password != "" {
		handler.SetPassword(opts.password)
	}
	handler.PasswordCallback = func() string { return os.Getenv(PasswordEnv) }
	if opts.verbose {
		handler.FileCallback = func(name string) {
			fmt.Fprintf(c.Out, "  %s %s\n", c.gray("+"), name)
		}
	}
	return svc
}

// Run executes the CLI with the configured arguments.
func (c *CLI) Run() {
	if len(c.Args) < 2 {
		fmt.Fprintln(c.Out, "No command specified. Use 'arcbridge help' for usage.")
		return
	}

	switch c.Args[1] {
	case "add", "a":
		c.RunAdd()
	case "add-buffer":
		c.RunAddBuffer()
	case "extract", "x":
		c.RunExtract()
	case "cat":
		c.RunCat()
	case "test", "t":
		c.RunTest()
	case "list", "l":
		c.RunList()
	case "attrs":
		c.ShowAttributes()
	case "match":
		c.RunMatch()
	case "init":
		c.InitConfig()
	case "version", "-v", "--version":
		fmt.Fprintf(c.Out, "arcbridge v%s\n", c.Version)
	case "help", "-h", "--help":
		c.PrintUsage()
	default:
		fmt.Fprintf(c.Err, "Unknown command: %s\n", c.Args[1])
		c.PrintUsage()
		c.Exit(1)
	}
}

// PrintUsage prints the help message.
func (c *CLI) PrintUsage() {
	fmt.Fprintln(c.Out, `arcbridge - Archive Files with Portable Metadata

Usage:
  arcbridge add <archive> <path>...        Add files and directories (appends if the archive exists)
  arcbridge add-buffer <archive> <name> [file]
                                           Store a file or standard input under name
  arcbridge extract <archive> [dest] [--filter=PATTERN]
                                           Extract items, restoring times, modes and links
  arcbridge cat <archive> <pattern>        Print the content of matching items
  arcbridge test <archive>                 Verify every item without writing
  arcbridge list <archive> [--filter=PATTERN]
                                           List archive items
  arcbridge attrs <path>...                Show attribute words and times of files
  arcbridge match <pattern> <name>...      Test names against a wildcard pattern
  arcbridge init                           Create default config file
  arcbridge version, -v                    Show version
  arcbridge help, -h                       Show this help

Flags:
  --verbose, -V                            Print items as they are processed
  --password=PASSWORD                      Password for encrypted archives (or $ARCBRIDGE_PASSWORD)

Config: ~/.arcbridge/config.yaml`)
}

// InitConfig creates the default config file.
func (c *CLI) InitConfig() {
	svc := c.configSvc()
	if err := svc.Save(svc.DefaultConfig()); err != nil {
		fmt.Fprintf(c.Err, "Error saving config: %v\n", err)
		c.Exit(1)
		return
	}
	fmt.Fprintf(c.Out, "Created config at %s\n", svc.ConfigPath())
}

// RunAdd adds files and directories to an archive.
func (c *CLI) RunAdd() {
	opts := parseOptions(c.Args[2:])
	if len(opts.args) < 2 {
		fmt.Fprintln(c.Out, "Usage: arcbridge add <archive> <path>...")
		c.Exit(1)
		return
	}
	svc := c.archiveSvc(opts)
	if svc == nil {
		return
	}

	dest := config.ExpandPath(opts.args[0])
	fmt.Fprintf(c.Out, "%s Adding to %s...\n", c.cyan("=>"), dest)
	result, err := svc.AddFiles(dest, expandPaths(opts.args[1:]))
	if err != nil {
		fmt.Fprintf(c.Err, "Add failed: %v\n", err)
		c.Exit(1)
		return
	}
	fmt.Fprintf(c.Out, "%s Added %d items %s\n",
		c.green("*"),
		result.Items,
		c.yellow(humanize.IBytes(result.Bytes)))
}

// RunAddBuffer stores a file, or standard input, under a chosen name.
func (c *CLI) RunAddBuffer() {
	opts := parseOptions(c.Args[2:])
	if len(opts.args) < 2 {
		fmt.Fprintln(c.Out, "Usage: arcbridge add-buffer <archive> <name> [file]")
		c.Exit(1)
		return
	}

	var data []byte
	var err error
	if len(opts.args) > 2 {
		data, err = os.ReadFile(config.ExpandPath(opts.args[2]))
	} else {
		data, err = io.ReadAll(c.In)
	}
	if err != nil {
		fmt.Fprintf(c.Err, "Error reading content: %v\n", err)
		c.Exit(1)
		return
	}

	svc := c.archiveSvc(opts)
	if svc == nil {
		return
	}
	result, err := svc.AddBuffer(config.ExpandPath(opts.args[0]), opts.args[1], data)
	if err != nil {
		fmt.Fprintf(c.Err, "Add failed: %v\n", err)
		c.Exit(1)
		return
	}
	fmt.Fprintf(c.Out, "%s Stored %s %s\n",
		c.green("*"),
		opts.args[1],
		c.yellow(humanize.IBytes(result.Bytes)))
}

// RunExtract extracts an archive.
func (c *CLI) RunExtract() {
	opts := parseOptions(c.Args[2:])
	if len(opts.args) < 1 {
		fmt.Fprintln(c.Out, "Usage: arcbridge extract <archive> [dest] [--filter=PATTERN]")
		c.Exit(1)
		return
	}
	src, dest := config.ExpandPath(opts.args[0]), "."
	if len(opts.args) > 1 {
		dest = config.ExpandPath(opts.args[1])
	}
	svc := c.archiveSvc(opts)
	if svc == nil {
		return
	}

	fmt.Fprintf(c.Out, "%s Extracting %s to %s...\n", c.cyan("=>"), src, dest)
	result, err := svc.Extract(src, dest, opts.filter)
	if err != nil {
		fmt.Fprintf(c.Err, "Extraction failed: %v\n", err)
		c.Exit(1)
		return
	}
	fmt.Fprintf(c.Out, "%s Extracted %d items %s\n",
		c.green("*"),
		result.Items,
		c.yellow(humanize.IBytes(result.Bytes)))
}

// RunCat writes the content of matching items to standard output.
func (c *CLI) RunCat() {
	opts := parseOptions(c.Args[2:])
	if len(opts.args) < 2 {
		fmt.Fprintln(c.Out, "Usage: arcbridge cat <archive> <pattern>")
		c.Exit(1)
		return
	}
	svc := c.archiveSvc(opts)
	if svc == nil {
		return
	}

	buffers, err := svc.ExtractToBuffers(config.ExpandPath(opts.args[0]), opts.args[1])
	if err != nil {
		fmt.Fprintf(c.Err, "Extraction failed: %v\n", err)
		c.Exit(1)
		return
	}
	if len(buffers) == 0 {
		fmt.Fprintf(c.Err, "No items match %s\n", opts.args[1])
		c.Exit(1)
		return
	}
	for _, name := range sortedKeys(buffers) {
		_, _ = c.Out.Write(buffers[name])
	}
}

func sortedKeys(buffers map[string][]byte) []string {
	keys := make([]string, 0, len(buffers))
	for k := range buffers {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// RunTest verifies every item of an archive.
func (c *CLI) RunTest() {
	opts := parseOptions(c.Args[2:])
	if len(opts.args) < 1 {
		fmt.Fprintln(c.Out, "Usage: arcbridge test <archive>")
		c.Exit(1)
		return
	}
	svc := c.archiveSvc(opts)
	if svc == nil {
		return
	}

	count, err := svc.Test(config.ExpandPath(opts.args[0]))
	if err != nil {
		fmt.Fprintf(c.Err, "Verification failed: %v\n", err)
		c.Exit(1)
		return
	}
	fmt.Fprintf(c.Out, "%s Verified %d items in %s\n", c.green("*"), count, opts.args[0])
}

// RunList lists the items of an archive.
func (c *CLI) RunList() {
	opts := parseOptions(c.Args[2:])
	if len(opts.args) < 1 {
		fmt.Fprintln(c.Out, "Usage: arcbridge list <archive> [--filter=PATTERN]")
		c.Exit(1)
		return
	}
	svc := c.archiveSvc(opts)
	if svc == nil {
		return
	}

	entries, err := svc.List(config.ExpandPath(opts.args[0]), opts.filter)
	if err != nil {
		fmt.Fprintf(c.Err, "Error: %v\n", err)
		c.Exit(1)
		return
	}
	if len(entries) == 0 {
		fmt.Fprintf(c.Out, "No items in %s\n", opts.args[0])
		return
	}

	fmt.Fprintf(c.Out, "Items in %s:\n\n", c.cyan(opts.args[0]))
	fmt.Fprintf(c.Out, "  %-10s %-19s %10s %s\n", "MODE", "MODIFIED", "SIZE", "PATH")
	fmt.Fprintf(c.Out, "  %-10s %-19s %10s %s\n", "----", "--------", "----", "----")

	var total uint64
	for _, e := range entries {
		modified := c.gray(fmt.Sprintf("%-19s", "-"))
		if !e.MTime.IsZero() {
			modified = e.MTime.Local().Format("2006-01-02 15:04:05")
		}
		size := humanize.IBytes(e.Size)
		if e.IsDir {
			size = "-"
		}
		fmt.Fprintf(c.Out, "  %-10s %s %10s %s\n", e.Mode.FileMode(), modified, size, e.Path)
		total += e.Size
	}
	fmt.Fprintf(c.Out, "\n%d items, %s\n", len(entries), humanize.IBytes(total))
}

// ShowAttributes prints the attribute word, derived mode and times of each
// path. Modes synthesized from Windows flags use the configured umask.
func (c *CLI) ShowAttributes() {
	opts := parseOptions(c.Args[2:])
	if len(opts.args) == 0 {
		fmt.Fprintln(c.Out, "Usage: arcbridge attrs <path>...")
		c.Exit(1)
		return
	}
	svc := c.archiveSvc(opts)
	if svc == nil {
		return
	}
	umask := svc.Umask()

	failed := false
	for _, path := range expandPaths(opts.args) {
		attrs, err := fsutil.GetFileAttributes(path)
		if err != nil {
			fmt.Fprintf(c.Out, "  %s %s: %v\n", c.red("x"), path, err)
			failed = true
			continue
		}
		_, _, mtime, err := fsutil.GetFileTimes(path)
		if err != nil {
			fmt.Fprintf(c.Out, "  %s %s: %v\n", c.red("x"), path, err)
			failed = true
			continue
		}
		mode, _ := fsutil.AttributesToMode(attrs, umask)
		fmt.Fprintf(c.Out, "  %s %s %s %s %s\n",
			c.green("*"),
			path,
			c.yellow(fmt.Sprintf("0x%08x", uint32(attrs))),
			mode.FileMode(),
			c.gray(humanize.Time(mtime.Time())))
		fmt.Fprintf(c.Out, "    %s\n", attrs)
	}
	if failed {
		c.Exit(1)
	}
}

// RunMatch tests names against a wildcard pattern.
func (c *CLI) RunMatch() {
	if len(c.Args) < 4 {
		fmt.Fprintln(c.Out, "Usage: arcbridge match <pattern> <name>...")
		c.Exit(1)
		return
	}

	pattern := c.Args[2]
	matched := 0
	for _, name := range c.Args[3:] {
		if fsutil.WildcardMatch(pattern, name) {
			fmt.Fprintf(c.Out, "  %s %s\n", c.green("*"), name)
			matched++
		} else {
			fmt.Fprintf(c.Out, "  %s %s\n", c.gray("-"), c.gray(name))
		}
	}
	if matched == 0 {
		c.Exit(1)
	}
}
