package cli

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/mcdonaldj/arcbridge/internal/archive"
	"github.com/mcdonaldj/arcbridge/internal/callback"
	"github.com/mcdonaldj/arcbridge/internal/config"
	"github.com/mcdonaldj/arcbridge/internal/fsutil"
)

// ============================================================================
// Mock implementations for testing
// ============================================================================

// mockConfigService implements ConfigService for testing.
type mockConfigService struct {
	config     *config.Config
	loadErr    error
	saveErr    error
	saved      *config.Config
	configPath string
}

func newMockConfigService() *mockConfigService {
	return &mockConfigService{
		config:     config.DefaultConfig(),
		configPath: "/test/.arcbridge/config.yaml",
	}
}

func (m *mockConfigService) Load() (*config.Config, error) {
	if m.loadErr != nil {
		return nil, m.loadErr
	}
	return m.config, nil
}

func (m *mockConfigService) Save(cfg *config.Config) error {
	m.saved = cfg
	return m.saveErr
}

func (m *mockConfigService) ConfigPath() string {
	return m.configPath
}

func (m *mockConfigService) DefaultConfig() *config.Config {
	return m.config
}

// mockArchiveService implements ArchiveService for testing.
type mockArchiveService struct {
	handler *callback.Handler

	result  archive.Result
	buffers map[string][]byte
	count   int
	entries []archive.Entry
	err     error
	umask   fsutil.Umask

	// Recorded arguments of the last call
	dest    string
	paths   []string
	name    string
	data    []byte
	filter  string
	archive string

	umaskCalls int
}

func newMockArchiveService() *mockArchiveService {
	return &mockArchiveService{handler: callback.NewHandler()}
}

func (m *mockArchiveService) Handler() *callback.Handler {
	return m.handler
}

func (m *mockArchiveService) AddFiles(dest string, paths []string) (archive.Result, error) {
	m.dest, m.paths = dest, paths
	if m.handler.FileCallback != nil {
		for _, p := range paths {
			m.handler.FileCallback(p)
		}
	}
	return m.result, m.err
}

func (m *mockArchiveService) AddBuffer(dest, name string, data []byte) (archive.Result, error) {
	m.dest, m.name, m.data = dest, name, data
	return m.result, m.err
}

func (m *mockArchiveService) Extract(archivePath, destDir, filter string) (archive.Result, error) {
	m.archive, m.dest, m.filter = archivePath, destDir, filter
	return m.result, m.err
}

func (m *mockArchiveService) ExtractToBuffers(archivePath, filter string) (map[string][]byte, error) {
	m.archive, m.filter = archivePath, filter
	return m.buffers, m.err
}

func (m *mockArchiveService) Test(archivePath string) (int, error) {
	m.archive = archivePath
	return m.count, m.err
}

func (m *mockArchiveService) List(archivePath, filter string) ([]archive.Entry, error) {
	m.archive, m.filter = archivePath, filter
	return m.entries, m.err
}

func (m *mockArchiveService) Umask() fsutil.Umask {
	m.umaskCalls++
	return m.umask
}

// ============================================================================
// Test helper
// ============================================================================

// testCLI creates a CLI for testing with mocks and exit tracking.
type testCLI struct {
	*CLI
	out        *bytes.Buffer
	errOut     *bytes.Buffer
	exitCode   int
	exitCalled bool
}

func newTestCLI(args []string) *testCLI {
	out := &bytes.Buffer{}
	errOut := &bytes.Buffer{}

	tc := &testCLI{
		out:    out,
		errOut: errOut,
	}

	tc.CLI = NewForTesting(out, errOut, args)
	tc.Exit = func(code int) {
		tc.exitCode = code
		tc.exitCalled = true
	}
	return tc
}

// ============================================================================
// Tests
// ============================================================================

func TestVersion(t *testing.T) {
	var out bytes.Buffer
	var errOut bytes.Buffer

	c := NewForTesting(&out, &errOut, []string{"arcbridge", "version"})
	c.Version = "1.2.3"
	c.Run()

	output := out.String()
	if !strings.Contains(output, "arcbridge v1.2.3") {
		t.Errorf("version output = %q, expected to contain 'arcbridge v1.2.3'", output)
	}
}

func TestVersionFlags(t *testing.T) {
	tests := []struct {
		name string
		arg  string
	}{
		{"version command", "version"},
		{"-v flag", "-v"},
		{"--version flag", "--version"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tc := newTestCLI([]string{"arcbridge", tt.arg})
			tc.Version = "2.0.0"
			tc.Run()

			if !strings.Contains(tc.out.String(), "arcbridge v2.0.0") {
				t.Errorf("expected version output, got %q", tc.out.String())
			}
		})
	}
}

func TestHelpFlags(t *testing.T) {
	tests := []struct {
		name string
		arg  string
	}{
		{"help command", "help"},
		{"-h flag", "-h"},
		{"--help flag", "--help"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tc := newTestCLI([]string{"arcbridge", tt.arg})
			tc.Run()

			if !strings.Contains(tc.out.String(), "arcbridge - Archive Files with Portable Metadata") {
				t.Errorf("expected help output, got %q", tc.out.String())
			}
		})
	}
}

func TestPrintUsage(t *testing.T) {
	tc := newTestCLI([]string{"arcbridge"})
	tc.PrintUsage()

	output := tc.out.String()
	expectedPhrases := []string{
		"arcbridge add",
		"arcbridge add-buffer",
		"arcbridge extract",
		"arcbridge cat",
		"arcbridge test",
		"arcbridge list",
		"arcbridge attrs",
		"arcbridge match",
		"arcbridge init",
		"--password=",
		"~/.arcbridge/config.yaml",
	}
	for _, phrase := range expectedPhrases {
		if !strings.Contains(output, phrase) {
			t.Errorf("usage output missing %q", phrase)
		}
	}
}

func TestUnknownCommand(t *testing.T) {
	tc := newTestCLI([]string{"arcbridge", "unknown-cmd"})
	tc.Run()

	if !strings.Contains(tc.errOut.String(), "Unknown command: unknown-cmd") {
		t.Errorf("error output = %q, expected to contain 'Unknown command'", tc.errOut.String())
	}
	if !tc.exitCalled {
		t.Error("Exit should have been called")
	}
	if tc.exitCode != 1 {
		t.Errorf("exit code = %d, expected 1", tc.exitCode)
	}
}

func TestNoCommand(t *testing.T) {
	tc := newTestCLI([]string{"arcbridge"})
	tc.Run()

	if !strings.Contains(tc.out.String(), "No command specified") {
		t.Errorf("output = %q, expected to contain 'No command specified'", tc.out.String())
	}
}

func TestMissingArguments(t *testing.T) {
	tests := []struct {
		args  []string
		usage string
	}{
		{[]string{"arcbridge", "add", "out.zip"}, "Usage: arcbridge add"},
		{[]string{"arcbridge", "add-buffer", "out.zip"}, "Usage: arcbridge add-buffer"},
		{[]string{"arcbridge", "extract"}, "Usage: arcbridge extract"},
		{[]string{"arcbridge", "cat", "in.zip"}, "Usage: arcbridge cat"},
		{[]string{"arcbridge", "test", "--verbose"}, "Usage: arcbridge test"},
		{[]string{"arcbridge", "list"}, "Usage: arcbridge list"},
		{[]string{"arcbridge", "attrs"}, "Usage: arcbridge attrs"},
		{[]string{"arcbridge", "match", "*.go"}, "Usage: arcbridge match"},
	}

	for _, tt := range tests {
		t.Run(tt.args[1], func(t *testing.T) {
			tc := newTestCLI(tt.args)
			tc.ArchiveSvc = newMockArchiveService()
			tc.Run()

			if !strings.Contains(tc.out.String(), tt.usage) {
				t.Errorf("output = %q, expected %q", tc.out.String(), tt.usage)
			}
			if !tc.exitCalled || tc.exitCode != 1 {
				t.Errorf("exit = (%v, %d), expected (true, 1)", tc.exitCalled, tc.exitCode)
			}
		})
	}
}

func TestParseOptions(t *testing.T) {
	opts := parseOptions([]string{"a.zip", "--verbose", "--filter=*.go", "dest", "--password=pw"})

	if !opts.verbose {
		t.Error("verbose should be set")
	}
	if opts.filter != "*.go" {
		t.Errorf("filter = %q, expected %q", opts.filter, "*.go")
	}
	if opts.password != "pw" {
		t.Errorf("password = %q, expected %q", opts.password, "pw")
	}
	if strings.Join(opts.args, ",") != "a.zip,dest" {
		t.Errorf("args = %v, expected [a.zip dest]", opts.args)
	}
}

func TestInitConfig(t *testing.T) {
	tc := newTestCLI([]string{"arcbridge", "init"})
	cfgSvc := newMockConfigService()
	tc.ConfigSvc = cfgSvc
	tc.Run()

	if cfgSvc.saved == nil {
		t.Fatal("config should have been saved")
	}
	if !strings.Contains(tc.out.String(), "Created config at /test/.arcbridge/config.yaml") {
		t.Errorf("output = %q, expected config path", tc.out.String())
	}
}

func TestInitConfigSaveError(t *testing.T) {
	tc := newTestCLI([]string{"arcbridge", "init"})
	cfgSvc := newMockConfigService()
	cfgSvc.saveErr = errors.New("read-only filesystem")
	tc.ConfigSvc = cfgSvc
	tc.Run()

	if !strings.Contains(tc.errOut.String(), "read-only filesystem") {
		t.Errorf("error output = %q, expected save error", tc.errOut.String())
	}
	if !tc.exitCalled {
		t.Error("Exit should have been called")
	}
}

func TestConfigLoadError(t *testing.T) {
	tc := newTestCLI([]string{"arcbridge", "test", "a.zip"})
	cfgSvc := newMockConfigService()
	cfgSvc.loadErr = errors.New("bad yaml")
	tc.ConfigSvc = cfgSvc
	tc.Run()

	if !strings.Contains(tc.errOut.String(), "Error loading config: bad yaml") {
		t.Errorf("error output = %q, expected load error", tc.errOut.String())
	}
	if tc.exitCode != 1 {
		t.Errorf("exit code = %d, expected 1", tc.exitCode)
	}
}

func TestAdd(t *testing.T) {
	tc := newTestCLI([]string{"arcbridge", "add", "out.zip", "src", "README.md", "--verbose"})
	svc := newMockArchiveService()
	svc.result = archive.Result{Archive: "out.zip", Items: 12, Bytes: 2048}
	tc.ArchiveSvc = svc
	tc.Run()

	if svc.dest != "out.zip" || strings.Join(svc.paths, ",") != "src,README.md" {
		t.Errorf("AddFiles(%q, %v), expected (out.zip, [src README.md])", svc.dest, svc.paths)
	}
	output := tc.out.String()
	if !strings.Contains(output, "Added 12 items 2.0 KiB") {
		t.Errorf("output = %q, expected summary", output)
	}
	if !strings.Contains(output, "+ README.md") {
		t.Errorf("output = %q, expected verbose item lines", output)
	}
	if tc.exitCalled {
		t.Error("Exit should not have been called")
	}
}

func TestAddError(t *testing.T) {
	tc := newTestCLI([]string{"arcbridge", "add", "out.7z", "src"})
	svc := newMockArchiveService()
	svc.err = archive.ErrUnsupportedFormat
	tc.ArchiveSvc = svc
	tc.Run()

	if !strings.Contains(tc.errOut.String(), "Add failed: unsupported archive format") {
		t.Errorf("error output = %q, expected failure", tc.errOut.String())
	}
	if tc.exitCode != 1 {
		t.Errorf("exit code = %d, expected 1", tc.exitCode)
	}
}

func TestAddBufferFromStdin(t *testing.T) {
	tc := newTestCLI([]string{"arcbridge", "add-buffer", "out.zip", "notes.txt"})
	tc.In = strings.NewReader("hello")
	svc := newMockArchiveService()
	svc.result = archive.Result{Items: 1, Bytes: 5}
	tc.ArchiveSvc = svc
	tc.Run()

	if svc.name != "notes.txt" || string(svc.data) != "hello" {
		t.Errorf("AddBuffer(%q, %q), expected (notes.txt, hello)", svc.name, svc.data)
	}
	if !strings.Contains(tc.out.String(), "Stored notes.txt 5 B") {
		t.Errorf("output = %q, expected summary", tc.out.String())
	}
}

func TestAddBufferFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "payload.bin")
	if err := os.WriteFile(path, []byte("payload"), 0o644); err != nil {
		t.Fatal(err)
	}

	tc := newTestCLI([]string{"arcbridge", "add-buffer", "out.zip", "data/payload.bin", path})
	svc := newMockArchiveService()
	tc.ArchiveSvc = svc
	tc.Run()

	if string(svc.data) != "payload" {
		t.Errorf("data = %q, expected %q", svc.data, "payload")
	}
}

func TestAddBufferMissingFile(t *testing.T) {
	tc := newTestCLI([]string{"arcbridge", "add-buffer", "out.zip", "x", "/nonexistent/file"})
	tc.ArchiveSvc = newMockArchiveService()
	tc.Run()

	if !strings.Contains(tc.errOut.String(), "Error reading content") {
		t.Errorf("error output = %q, expected read error", tc.errOut.String())
	}
	if tc.exitCode != 1 {
		t.Errorf("exit code = %d, expected 1", tc.exitCode)
	}
}

func TestExtract(t *testing.T) {
	tests := []struct {
		name   string
		args   []string
		dest   string
		filter string
	}{
		{"default destination", []string{"arcbridge", "extract", "in.zip"}, ".", ""},
		{"explicit destination", []string{"arcbridge", "x", "in.zip", "out"}, "out", ""},
		{"filter", []string{"arcbridge", "extract", "in.zip", "out", "--filter=*.go"}, "out", "*.go"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tc := newTestCLI(tt.args)
			svc := newMockArchiveService()
			svc.result = archive.Result{Items: 3, Bytes: 1536}
			tc.ArchiveSvc = svc
			tc.Run()

			if svc.dest != tt.dest || svc.filter != tt.filter {
				t.Errorf("Extract(_, %q, %q), expected (_, %q, %q)", svc.dest, svc.filter, tt.dest, tt.filter)
			}
			if !strings.Contains(tc.out.String(), "Extracted 3 items 1.5 KiB") {
				t.Errorf("output = %q, expected summary", tc.out.String())
			}
		})
	}
}

func TestExtractPassword(t *testing.T) {
	tc := newTestCLI([]string{"arcbridge", "extract", "in.7z", "--password=secret"})
	svc := newMockArchiveService()
	tc.ArchiveSvc = svc
	tc.Run()

	if svc.handler.Password() != "secret" {
		t.Errorf("password = %q, expected %q", svc.handler.Password(), "secret")
	}
}

func TestPasswordFromEnvironment(t *testing.T) {
	t.Setenv(PasswordEnv, "from-env")

	tc := newTestCLI([]string{"arcbridge", "test", "in.7z"})
	svc := newMockArchiveService()
	tc.ArchiveSvc = svc
	tc.Run()

	password, err := svc.handler.ResolvePassword()
	if err != nil {
		t.Fatalf("ResolvePassword() error = %v", err)
	}
	if password != "from-env" {
		t.Errorf("password = %q, expected %q", password, "from-env")
	}
}

func TestExtractError(t *testing.T) {
	tc := newTestCLI([]string{"arcbridge", "extract", "in.zip"})
	svc := newMockArchiveService()
	svc.err = callback.ErrPathTraversal
	tc.ArchiveSvc = svc
	tc.Run()

	if !strings.Contains(tc.errOut.String(), "Extraction failed") {
		t.Errorf("error output = %q, expected failure", tc.errOut.String())
	}
	if tc.exitCode != 1 {
		t.Errorf("exit code = %d, expected 1", tc.exitCode)
	}
}

func TestCat(t *testing.T) {
	tc := newTestCLI([]string{"arcbridge", "cat", "in.zip", "*.txt"})
	svc := newMockArchiveService()
	svc.buffers = map[string][]byte{
		"b.txt": []byte("second\n"),
		"a.txt": []byte("first\n"),
	}
	tc.ArchiveSvc = svc
	tc.Run()

	if tc.out.String() != "first\nsecond\n" {
		t.Errorf("output = %q, expected contents in path order", tc.out.String())
	}
}

func TestCatNoMatch(t *testing.T) {
	tc := newTestCLI([]string{"arcbridge", "cat", "in.zip", "*.none"})
	svc := newMockArchiveService()
	svc.buffers = map[string][]byte{}
	tc.ArchiveSvc = svc
	tc.Run()

	if !strings.Contains(tc.errOut.String(), "No items match *.none") {
		t.Errorf("error output = %q, expected no-match message", tc.errOut.String())
	}
	if tc.exitCode != 1 {
		t.Errorf("exit code = %d, expected 1", tc.exitCode)
	}
}

func TestTestCommand(t *testing.T) {
	tc := newTestCLI([]string{"arcbridge", "test", "in.zip"})
	svc := newMockArchiveService()
	svc.count = 7
	tc.ArchiveSvc = svc
	tc.Run()

	if !strings.Contains(tc.out.String(), "Verified 7 items in in.zip") {
		t.Errorf("output = %q, expected verification summary", tc.out.String())
	}
}

func TestTestCommandFailure(t *testing.T) {
	tc := newTestCLI([]string{"arcbridge", "test", "in.zip"})
	svc := newMockArchiveService()
	svc.err = errors.New("a.txt: crc error")
	tc.ArchiveSvc = svc
	tc.Run()

	if !strings.Contains(tc.errOut.String(), "Verification failed: a.txt: crc error") {
		t.Errorf("error output = %q, expected failure", tc.errOut.String())
	}
	if tc.exitCode != 1 {
		t.Errorf("exit code = %d, expected 1", tc.exitCode)
	}
}

func TestList(t *testing.T) {
	tc := newTestCLI([]string{"arcbridge", "list", "in.zip", "--filter=*"})
	svc := newMockArchiveService()
	svc.entries = []archive.Entry{
		{Path: "docs", IsDir: true, Mode: fsutil.ModeTypeDirectory | 0o755},
		{
			Path:  "docs/a.txt",
			Size:  2048,
			Mode:  fsutil.ModeTypeFile | 0o644,
			MTime: time.Date(2024, 3, 1, 12, 0, 0, 0, time.Local),
		},
	}
	tc.ArchiveSvc = svc
	tc.Run()

	output := tc.out.String()
	if svc.filter != "*" {
		t.Errorf("filter = %q, expected %q", svc.filter, "*")
	}
	expectedPhrases := []string{
		"Items in in.zip",
		"drwxr-xr-x",
		"-rw-r--r--",
		"2024-03-01 12:00:00",
		"2.0 KiB docs/a.txt",
		"2 items, 2.0 KiB",
	}
	for _, phrase := range expectedPhrases {
		if !strings.Contains(output, phrase) {
			t.Errorf("list output missing %q:\n%s", phrase, output)
		}
	}
}

func TestListEmpty(t *testing.T) {
	tc := newTestCLI([]string{"arcbridge", "list", "in.zip"})
	tc.ArchiveSvc = newMockArchiveService()
	tc.Run()

	if !strings.Contains(tc.out.String(), "No items in in.zip") {
		t.Errorf("output = %q, expected empty message", tc.out.String())
	}
}

func TestShowAttributes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "file.txt")
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	tc := newTestCLI([]string{"arcbridge", "attrs", path, "/nonexistent/file"})
	svc := newMockArchiveService()
	svc.umask = 0o077
	tc.ArchiveSvc = svc
	tc.Run()

	output := tc.out.String()
	if !strings.Contains(output, "* "+path+" 0x") {
		t.Errorf("output = %q, expected attribute line for %s", output, path)
	}
	if !strings.Contains(output, "x /nonexistent/file") {
		t.Errorf("output = %q, expected failure line", output)
	}
	if tc.exitCode != 1 {
		t.Errorf("exit code = %d, expected 1", tc.exitCode)
	}
	if svc.umaskCalls != 1 {
		t.Errorf("Umask() called %d times, expected once", svc.umaskCalls)
	}
}

func TestShowAttributesConfigError(t *testing.T) {
	tc := newTestCLI([]string{"arcbridge", "attrs", "file.txt"})
	cfgSvc := newMockConfigService()
	cfgSvc.loadErr = errors.New("bad yaml")
	tc.ConfigSvc = cfgSvc
	tc.Run()

	if !strings.Contains(tc.errOut.String(), "Error loading config: bad yaml") {
		t.Errorf("error output = %q, expected config error", tc.errOut.String())
	}
	if tc.exitCode != 1 {
		t.Errorf("exit code = %d, expected 1", tc.exitCode)
	}
}

func TestHomePathsExpanded(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("USERPROFILE", home)
	if err := os.WriteFile(filepath.Join(home, "payload.bin"), []byte("payload"), 0o644); err != nil {
		t.Fatal(err)
	}

	tc := newTestCLI([]string{"arcbridge", "add", "~/out.zip", "~/src", "rel"})
	svc := newMockArchiveService()
	tc.ArchiveSvc = svc
	tc.Run()
	if expected := filepath.Join(home, "out.zip"); svc.dest != expected {
		t.Errorf("add archive = %q, expected %q", svc.dest, expected)
	}
	if len(svc.paths) != 2 || svc.paths[0] != filepath.Join(home, "src") || svc.paths[1] != "rel" {
		t.Errorf("add paths = %v, expected [%s rel]", svc.paths, filepath.Join(home, "src"))
	}

	tc = newTestCLI([]string{"arcbridge", "extract", "~/in.zip", "~/out"})
	svc = newMockArchiveService()
	tc.ArchiveSvc = svc
	tc.Run()
	if svc.archive != filepath.Join(home, "in.zip") || svc.dest != filepath.Join(home, "out") {
		t.Errorf("Extract(%q, %q), expected paths under %s", svc.archive, svc.dest, home)
	}

	// The item name is stored as given
	tc = newTestCLI([]string{"arcbridge", "add-buffer", "~/out.zip", "~name", "~/payload.bin"})
	svc = newMockArchiveService()
	tc.ArchiveSvc = svc
	tc.Run()
	if svc.dest != filepath.Join(home, "out.zip") || svc.name != "~name" || string(svc.data) != "payload" {
		t.Errorf("AddBuffer(%q, %q, %q), expected archive and input under %s", svc.dest, svc.name, svc.data, home)
	}
	if tc.exitCalled {
		t.Errorf("Exit called, error output = %q", tc.errOut.String())
	}
}

func TestMatch(t *testing.T) {
	tests := []struct {
		args     []string
		matched  []string
		exitCode int
	}{
		{[]string{"*.go", "main.go", "README.md"}, []string{"* main.go"}, 0},
		{[]string{"a?c", "abc", "axc", "ac"}, []string{"* abc", "* axc"}, 0},
		{[]string{"*.go", "README.md"}, nil, 1},
	}

	for _, tt := range tests {
		tc := newTestCLI(append([]string{"arcbridge", "match"}, tt.args...))
		tc.Run()

		for _, line := range tt.matched {
			if !strings.Contains(tc.out.String(), line) {
				t.Errorf("match %v output = %q, expected %q", tt.args, tc.out.String(), line)
			}
		}
		if tc.exitCode != tt.exitCode {
			t.Errorf("match %v exit code = %d, expected %d", tt.args, tc.exitCode, tt.exitCode)
		}
	}
}

func TestNewLogger(t *testing.T) {
	tc := newTestCLI([]string{"arcbridge"})
	cfg := config.DefaultConfig()

	logger := tc.newLogger(cfg, false)
	logger.Info("hidden")
	logger.Warn("shown")
	if strings.Contains(tc.errOut.String(), "hidden") || !strings.Contains(tc.errOut.String(), "shown") {
		t.Errorf("log output = %q, expected only the warning", tc.errOut.String())
	}

	tc.errOut.Reset()
	logger = tc.newLogger(cfg, true)
	logger.Info("visible")
	if !strings.Contains(tc.errOut.String(), "visible") {
		t.Errorf("log output = %q, expected verbose info", tc.errOut.String())
	}
}
