// Package admin answers the owner's maintenance commands.
package admin

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"

	"ourmate-bot/internal/access"
	"ourmate-bot/internal/texts"
	"ourmate-bot/internal/utils"
)

const (
	messageLines = 50
	fullLines    = 100
	// bytes read from the end of the log file
	tailWindow = 512 << 10
	// room left in a 4096 message for the wrapper text
	bodyLimit = 3500
)

var ErrNoLogFile = errors.New("log file is not configured")

// Fact is one extra status line.
type Fact struct {
	Name  string
	Value func() string
}

type Options struct {
	LogFile string
	Clock   clockwork.Clock
	// Stop shuts the bot down after the reply went out.
	Stop  func()
	Facts []Fact
}

type Service struct {
	opts    Options
	started time.Time
	log     *slog.Logger
}

func New(opts Options, log *slog.Logger) *Service {
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	return &Service{opts: opts, started: opts.Clock.Now(), log: log.With("component", "admin")}
}

// Run executes the named admin command and returns the reply. The returned
// stop function, when non-nil, must be called once the reply is delivered.
func (s *Service) Run(name string, tx *texts.Texts) (reply string, stop func()) {
	s.log.Warn("admin command", "command", name)
	switch name {
	case access.AdminLogs:
		return s.Logs(tx, false), nil
	case access.AdminFullLogs:
		return s.Logs(tx, true), nil
	case access.AdminStatus:
		return tx.T(texts.AdminStatus, map[string]any{"Body": utils.EscapeHTML(s.Status())}), nil
	case access.AdminSystem:
		return tx.T(texts.AdminSystem, map[string]any{"Body": utils.EscapeHTML(s.System())}), nil
	case access.AdminStop:
		return tx.Get(texts.AdminStop), s.opts.Stop
	}
	return "", nil
}

// Logs renders the tail of the log file. The short form keeps only
// message-level lines.
func (s *Service) Logs(tx *texts.Texts, full bool) string {
	n, filter := messageLines, messageLine
	if full {
		n, filter = fullLines, nil
	}
	lines, err := Tail(s.opts.LogFile, n, filter)
	if err != nil {
		s.log.Error("read log tail", "error", err)
		return tx.T(texts.AdminLogsError, map[string]any{"Error": utils.EscapeHTML(err.Error())})
	}
	if len(lines) == 0 {
		return tx.Get(texts.AdminLogsEmpty)
	}
	body := strings.Join(lines, "\n")
	if r := []rune(body); len(r) > bodyLimit {
		body = "…" + string(r[len(r)-bodyLimit:])
	}
	return tx.T(texts.AdminLogs, map[string]any{"Count": len(lines), "Body": utils.EscapeHTML(body)})
}

func messageLine(l string) bool { return strings.Contains(l, `"chat_kind"`) }

// Tail returns up to n last lines of path that pass keep.
func Tail(path string, n int, keep func(string) bool) ([]string, error) {
	if path == "" {
		return nil, ErrNoLogFile
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	st, err := f.Stat()
	if err != nil {
		return nil, err
	}
	offset := st.Size() - tailWindow
	if offset < 0 {
		offset = 0
	}
	if _, err := f.Seek(offset, io.SeekStart); err != nil {
		return nil, err
	}
	data, err := io.ReadAll(f)
	if err != nil {
		return nil, err
	}
	if offset > 0 {
		// first line is likely partial
		if i := bytes.IndexByte(data, '\n'); i >= 0 {
			data = data[i+1:]
		}
	}

	var out []string
	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 0, 64<<10), tailWindow)
	for sc.Scan() {
		l := sc.Text()
		if l == "" || (keep != nil && !keep(l)) {
			continue
		}
		out = append(out, l)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if len(out) > n {
		out = out[len(out)-n:]
	}
	return out, nil
}

// Status is the runtime state of this process.
func (s *Service) Status() string {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	var b strings.Builder
	fmt.Fprintf(&b, "uptime: %s\n", s.opts.Clock.Since(s.started).Truncate(time.Second))
	fmt.Fprintf(&b, "goroutines: %d\n", runtime.NumGoroutine())
	fmt.Fprintf(&b, "memory: %.1f MB (sys %.1f MB, gc %d)", float64(m.Alloc)/1024/1024, float64(m.Sys)/1024/1024, m.NumGC)
	for _, f := range s.opts.Facts {
		fmt.Fprintf(&b, "\n%s: %s", f.Name, f.Value())
	}
	return b.String()
}

// System describes the host.
func (s *Service) System() string {
	host, _ := os.Hostname()
	wd, _ := os.Getwd()
	var b strings.Builder
	fmt.Fprintf(&b, "host: %s\n", host)
	fmt.Fprintf(&b, "os: %s/%s\n", runtime.GOOS, runtime.GOARCH)
	fmt.Fprintf(&b, "cpus: %d\n", runtime.NumCPU())
	fmt.Fprintf(&b, "go: %s\n", runtime.Version())
	fmt.Fprintf(&b, "pid: %d\n", os.Getpid())
	fmt.Fprintf(&b, "dir: %s", wd)
	if load, err := os.ReadFile("/proc/loadavg"); err == nil {
		fmt.Fprintf(&b, "\nload: %s", strings.TrimSpace(string(load)))
	}
	return b.String()
}
