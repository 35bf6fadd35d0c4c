package sh

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/abiosoft/ishell"
	"github.com/golang/glog"

	fx "github.com/robotalks/bridge.go/pkg/framework"
	"github.com/robotalks/bridge.go/pkg/l0/comm"
	"github.com/robotalks/bridge.go/pkg/l0/control"
	"github.com/robotalks/bridge.go/pkg/l0/doc"
	"github.com/robotalks/bridge.go/pkg/l0/env"
	"github.com/robotalks/bridge.go/pkg/l0/motor"
)

// DefaultRequestTimeout is how long a control request waits for response.
const DefaultRequestTimeout = time.Second

// ErrNotConnected is reported by commands requiring a link.
var ErrNotConnected = errors.New("not connected")

// Shell provides ishell backed interactive shell.
type Shell struct {
	Interactive    bool
	OutputJSON     bool
	AutoConnect    bool
	RequestTimeout time.Duration

	Shell  *ishell.Shell
	Config *env.Config
	Link   *LinkLoop
}

// LinkLoop is a running loop with an opened link.
type LinkLoop struct {
	Ctx    context.Context
	Cancel func()
	Env    *env.Env
	Loop   *fx.Loop

	responses chan *doc.Document
	lock      sync.Mutex
	watching  map[comm.Channel]bool
	printer   func(comm.Channel, *doc.Document)
}

const (
	shellKey          = "$shell"
	unconnectedPrompt = "[none] > "
)

var (
	// flags

	evalOnly   bool
	outputJSON bool

	// commands
	commands = []*ishell.Cmd{
		&ConnectCmd,
		&DisconnectCmd,
		&PingCmd,
		&StatusCmd,
		&MotorCmd,
		&NeutralCmd,
		&PubCmd,
		&WatchCmd,
		&UnwatchCmd,
		&StatsCmd,
	}
)

func init() {
	flag.BoolVar(&evalOnly, "e", evalOnly, "Evaluation only, no interactive shell.")
	flag.BoolVar(&outputJSON, "json", outputJSON, "Print output in JSON.")
}

// AddCmds is used by other commands providers during init func.
func AddCmds(cmds ...*ishell.Cmd) {
	commands = append(commands, cmds...)
}

// New creates a new shell.
func New(conf *env.Config) *Shell {
	s := &Shell{
		Interactive:    !evalOnly,
		OutputJSON:     outputJSON,
		RequestTimeout: DefaultRequestTimeout,

		Shell:  ishell.New(),
		Config: conf,
	}
	s.Shell.Set(shellKey, s)
	s.Shell.SetPrompt(unconnectedPrompt)
	for _, cmd := range commands {
		s.Shell.AddCmd(cmd)
	}
	return s
}

// ShellFrom gets Shell from ishell context.
func ShellFrom(c *ishell.Context) *Shell {
	return c.Get(shellKey).(*Shell)
}

// MustBeConnected wraps command func requires a connection.
func MustBeConnected(fn func(c *ishell.Context)) func(c *ishell.Context) {
	return func(c *ishell.Context) {
		if ShellFrom(c).Link == nil {
			c.Err(ErrNotConnected)
			return
		}
		fn(c)
	}
}

// WithAutoConnect sets AutoConnect.
func (s *Shell) WithAutoConnect(en bool) *Shell {
	s.AutoConnect = en
	return s
}

// Connect opens the link and starts the receiving loop.
func (s *Shell) Connect(url string) error {
	conf := *s.Config
	conf.Link.URL = url
	ctx, cancel := context.WithCancel(context.Background())
	e, err := conf.NewEnv(ctx)
	if err != nil {
		cancel()
		return err
	}
	s.Attach(ctx, cancel, e)
	s.Shell.SetPrompt(fmt.Sprintf("%s > ", url))
	return nil
}

// Attach starts the loop on an Env, replacing the current link.
func (s *Shell) Attach(ctx context.Context, cancel func(), e *env.Env) *LinkLoop {
	l := &LinkLoop{
		Ctx:       ctx,
		Cancel:    cancel,
		Env:       e,
		Loop:      fx.NewLoop().Add(e),
		responses: make(chan *doc.Document, 1),
		watching:  make(map[comm.Channel]bool),
		printer:   s.printDocument,
	}
	e.Router.Subscribe(comm.ChannelControl, comm.HandlerFunc(l.handleResponse))
	if s.Link != nil {
		s.Link.Cancel()
	}
	s.Link = l
	go func() {
		if err := l.Loop.Run(ctx); err != nil && ctx.Err() == nil {
			glog.Errorf("link stopped: %v", err)
		}
	}()
	return l
}

// Disconnect closes current link.
func (s *Shell) Disconnect() {
	if s.Link != nil {
		s.Link.Cancel()
		s.Link = nil
		s.Shell.SetPrompt(unconnectedPrompt)
	}
}

// Request sends a control command and waits for the response.
func (s *Shell) Request(cmd string) (*doc.Document, error) {
	l := s.Link
	if l == nil {
		return nil, ErrNotConnected
	}
	// discard a late response of a previous request
	select {
	case <-l.responses:
	default:
	}
	req := doc.New().Set(control.KeyCommand, doc.String(cmd))
	if err := l.Env.Router.Publish(comm.ChannelControl, req); err != nil {
		return nil, err
	}
	timeout := s.RequestTimeout
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}
	select {
	case resp := <-l.responses:
		return resp, nil
	case <-time.After(timeout):
		return nil, fmt.Errorf("%s: %w", cmd, context.DeadlineExceeded)
	case <-l.Ctx.Done():
		return nil, l.Ctx.Err()
	}
}

// Publish sends a document on a channel.
func (s *Shell) Publish(ch comm.Channel, d *doc.Document) error {
	if s.Link == nil {
		return ErrNotConnected
	}
	return s.Link.Env.Router.Publish(ch, d)
}

// Watch prints documents received on a channel.
func (s *Shell) Watch(ch comm.Channel) error {
	l := s.Link
	if l == nil {
		return ErrNotConnected
	}
	l.lock.Lock()
	l.watching[ch] = true
	l.lock.Unlock()
	if ch != comm.ChannelControl {
		l.Env.Router.Subscribe(ch, comm.HandlerFunc(l.handleWatch))
	}
	return nil
}

// Unwatch stops printing a channel.
func (s *Shell) Unwatch(ch comm.Channel) error {
	l := s.Link
	if l == nil {
		return ErrNotConnected
	}
	l.lock.Lock()
	delete(l.watching, ch)
	l.lock.Unlock()
	if ch != comm.ChannelControl {
		l.Env.Router.Unsubscribe(ch)
	}
	return nil
}

func (l *LinkLoop) isWatching(ch comm.Channel) bool {
	l.lock.Lock()
	defer l.lock.Unlock()
	return l.watching[ch]
}

func (l *LinkLoop) handleResponse(ctx context.Context, ch comm.Channel, d *doc.Document) {
	if l.isWatching(ch) {
		l.printer(ch, d)
	}
	select {
	case l.responses <- d:
	default:
	}
}

func (l *LinkLoop) handleWatch(ctx context.Context, ch comm.Channel, d *doc.Document) {
	if l.isWatching(ch) {
		l.printer(ch, d)
	}
}

func (s *Shell) printDocument(ch comm.Channel, d *doc.Document) {
	if s.OutputJSON {
		s.Shell.Printf("{\"channel\":%d,\"doc\":%s}\n", ch, d)
		return
	}
	s.Shell.Printf("[%d] %s\n", ch, d)
}

// Print prints a document as the command result.
func Print(c *ishell.Context, d *doc.Document) {
	if ShellFrom(c).OutputJSON {
		c.Println(d.String())
		return
	}
	d.Range(func(key string, v doc.Value) bool {
		c.Printf("%s: %s\n", key, v)
		return true
	})
}

// Run runs the shell.
func (s *Shell) Run(args ...string) {
	if s.AutoConnect && s.Config.Link.URL != "" {
		if s.Interactive {
			s.Shell.Printf("Connecting %s ...\n", s.Config.Link.URL)
		}
		if err := s.Connect(s.Config.Link.URL); err != nil {
			glog.Exitf("connect %s failed: %v", s.Config.Link.URL, err)
		}
	}

	if len(args) > 0 {
		if err := s.Shell.Process(args...); err != nil {
			glog.Exit(err)
		}
		return
	}
	if s.Interactive {
		s.Shell.Run()
		return
	}
	glog.Exit("command expected")
}

// ParseChannel parses a channel number.
func ParseChannel(s string) (comm.Channel, error) {
	n, err := strconv.ParseUint(s, 10, 8)
	if err != nil {
		return 0, fmt.Errorf("invalid channel %q", s)
	}
	return comm.Channel(n), nil
}

// MotorCommand builds a motor command set from IDX=VALUE arguments.
func MotorCommand(conf *motor.Config, args []string) (*doc.Document, error) {
	if len(args) == 0 {
		return nil, fmt.Errorf("IDX=VALUE expected")
	}
	cmd := doc.New()
	for _, arg := range args {
		key, val, ok := strings.Cut(arg, "=")
		if !ok {
			return nil, fmt.Errorf("invalid argument %q, IDX=VALUE expected", arg)
		}
		index, err := strconv.Atoi(key)
		if err != nil || index < 0 || index >= conf.Count {
			return nil, fmt.Errorf("invalid motor index %q", key)
		}
		v, err := strconv.ParseFloat(val, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid value %q", val)
		}
		if conf.Mode == motor.ModePulse {
			cmd.SetIndex(index, doc.Int(int64(v)))
		} else {
			cmd.SetIndex(index, doc.Float(v))
		}
	}
	return cmd, nil
}

// NeutralCommand builds the command set of all motors at neutral.
func NeutralCommand(conf *motor.Config) *doc.Document {
	cmd := doc.New()
	for n := 0; n < conf.Count; n++ {
		if conf.Mode == motor.ModePulse {
			cmd.SetIndex(n, doc.Int(int64(conf.NeutralUs())))
		} else {
			cmd.SetIndex(n, doc.Float(0))
		}
	}
	return cmd
}

var (
	// ConnectCmd opens the link.
	ConnectCmd = ishell.Cmd{
		Name:    "connect",
		Aliases: []string{"c"},
		Help:    "[URL]",
		Func: func(c *ishell.Context) {
			s := ShellFrom(c)
			url := s.Config.Link.URL
			if len(c.Args) > 0 {
				url = c.Args[0]
			}
			if err := s.Connect(url); err != nil {
				c.Err(err)
			}
		},
	}

	// DisconnectCmd closes the link.
	DisconnectCmd = ishell.Cmd{
		Name:    "disconnect",
		Aliases: []string{"d"},
		Help:    "",
		Func: func(c *ishell.Context) {
			ShellFrom(c).Disconnect()
		},
	}

	// PingCmd sends ping on the control channel.
	PingCmd = ishell.Cmd{
		Name: "ping",
		Help: "",
		Func: MustBeConnected(func(c *ishell.Context) {
			start := time.Now()
			resp, err := ShellFrom(c).Request("ping")
			if err != nil {
				c.Err(err)
				return
			}
			if ShellFrom(c).OutputJSON {
				c.Println(resp.String())
				return
			}
			c.Printf("%s in %v\n", resp, time.Since(start))
		}),
	}

	// StatusCmd queries the device status.
	StatusCmd = ishell.Cmd{
		Name:    "status",
		Aliases: []string{"st"},
		Help:    "",
		Func: MustBeConnected(func(c *ishell.Context) {
			resp, err := ShellFrom(c).Request("status")
			if err != nil {
				c.Err(err)
				return
			}
			Print(c, resp)
		}),
	}

	// MotorCmd sends a motor command set.
	MotorCmd = ishell.Cmd{
		Name:    "motor",
		Aliases: []string{"m"},
		Help:    "IDX=VALUE ...",
		Func: MustBeConnected(func(c *ishell.Context) {
			s := ShellFrom(c)
			cmd, err := MotorCommand(&s.Config.Motor, c.Args)
			if err != nil {
				c.Err(err)
				return
			}
			if err := s.Publish(comm.ChannelMotor, cmd); err != nil {
				c.Err(err)
			}
		}),
	}

	// NeutralCmd sets all motors neutral.
	NeutralCmd = ishell.Cmd{
		Name:    "neutral",
		Aliases: []string{"n", "stop"},
		Help:    "",
		Func: MustBeConnected(func(c *ishell.Context) {
			s := ShellFrom(c)
			if err := s.Publish(comm.ChannelMotor, NeutralCommand(&s.Config.Motor)); err != nil {
				c.Err(err)
			}
		}),
	}

	// PubCmd publishes a JSON object on a channel.
	PubCmd = ishell.Cmd{
		Name: "pub",
		Help: "CH JSON",
		Func: MustBeConnected(func(c *ishell.Context) {
			if len(c.Args) < 2 {
				c.Err(fmt.Errorf("CH JSON expected"))
				return
			}
			ch, err := ParseChannel(c.Args[0])
			if err != nil {
				c.Err(err)
				return
			}
			d, err := doc.FromJSON([]byte(strings.Join(c.Args[1:], " ")))
			if err != nil {
				c.Err(err)
				return
			}
			if err := ShellFrom(c).Publish(ch, d); err != nil {
				c.Err(err)
			}
		}),
	}

	// WatchCmd prints documents received on channels.
	WatchCmd = ishell.Cmd{
		Name:    "watch",
		Aliases: []string{"w"},
		Help:    "CH ...",
		Func: MustBeConnected(func(c *ishell.Context) {
			forChannels(c, ShellFrom(c).Watch)
		}),
	}

	// UnwatchCmd stops printing channels.
	UnwatchCmd = ishell.Cmd{
		Name:    "unwatch",
		Aliases: []string{"uw"},
		Help:    "CH ...",
		Func: MustBeConnected(func(c *ishell.Context) {
			forChannels(c, ShellFrom(c).Unwatch)
		}),
	}

	// StatsCmd prints the counters of the local router.
	StatsCmd = ishell.Cmd{
		Name: "stats",
		Help: "",
		Func: MustBeConnected(func(c *ishell.Context) {
			stats := ShellFrom(c).Link.Env.Router.Stats()
			if ShellFrom(c).OutputJSON {
				out, err := json.Marshal(stats)
				if err != nil {
					c.Err(err)
					return
				}
				c.Println(string(out))
				return
			}
			Print(c, stats.Document())
		}),
	}
)

func forChannels(c *ishell.Context, fn func(comm.Channel) error) {
	if len(c.Args) == 0 {
		c.Err(fmt.Errorf("CH expected"))
		return
	}
	for _, arg := range c.Args {
		ch, err := ParseChannel(arg)
		if err != nil {
			c.Err(err)
			return
		}
		if err := fn(ch); err != nil {
			c.Err(err)
			return
		}
	}
}

// Main is a helper to provide a single call in main.
func Main() {
	flag.Parse()
	New(env.MustNewConfig()).WithAutoConnect(true).Run(flag.Args()...)
}
