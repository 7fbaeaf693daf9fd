package dieselcmd

import (
	"encoding/json"
	"io"
	"log"
	"math"
	"os"
	"time"

	"github.com/andewx/dieselcmd/native"
	"github.com/cockroachdb/errors"
)

const (
	// DefaultImmediateTimeout bounds the wait in RunImmediate.
	DefaultImmediateTimeout = 5 * time.Second
	// DefaultSlowWait is the fence or queue wait duration above which a
	// warning is logged.
	DefaultSlowWait = 100 * time.Millisecond

	logFlags = log.Ldate | log.Ltime | log.Lshortfile
)

// Config is passed to NewDeviceContext and shared by everything created
// from that context. The zero value of any field selects its default.
type Config struct {
	// PoolFlags are the creation flags NewCommandPool uses when called with
	// zero flags. Zero selects native.PoolResetCommandBuffer unless
	// NoBufferReset is set.
	PoolFlags        native.PoolCreateFlags
	// NoBufferReset keeps zero PoolFlags as they are, so buffers can only be
	// reset together with their pool.
	NoBufferReset    bool
	ImmediateTimeout time.Duration
	SlowWait         time.Duration

	InfoLog  *log.Logger
	WarnLog  *log.Logger
	ErrorLog *log.Logger
}

// DefaultConfig returns a configuration with individually resettable
// buffers and all logging discarded.
func DefaultConfig() Config {
	return Config{
		PoolFlags:        native.PoolResetCommandBuffer,
		ImmediateTimeout: DefaultImmediateTimeout,
		SlowWait:         DefaultSlowWait,
		InfoLog:          log.New(io.Discard, "INFO: ", logFlags),
		WarnLog:          log.New(io.Discard, "WARNING: ", logFlags),
		ErrorLog:         log.New(io.Discard, "ERROR: ", logFlags),
	}
}

// WithLogOutput returns a copy of c with all three loggers writing to w.
func (c Config) WithLogOutput(w io.Writer) Config {
	c.InfoLog = log.New(w, "INFO: ", logFlags)
	c.WarnLog = log.New(w, "WARNING: ", logFlags)
	c.ErrorLog = log.New(w, "ERROR: ", logFlags)
	return c
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.PoolFlags == 0 && !c.NoBufferReset {
		c.PoolFlags = def.PoolFlags
	}
	if c.ImmediateTimeout <= 0 {
		c.ImmediateTimeout = def.ImmediateTimeout
	}
	if c.SlowWait <= 0 {
		c.SlowWait = def.SlowWait
	}
	if c.InfoLog == nil {
		c.InfoLog = def.InfoLog
	}
	if c.WarnLog == nil {
		c.WarnLog = def.WarnLog
	}
	if c.ErrorLog == nil {
		c.ErrorLog = def.ErrorLog
	}
	return c
}

// Usage is a named property bag as found in JSON configuration files.
// Usages can be chained through Linked_usage.
type Usage struct {
	Name         string
	String_props map[string]string
	Int_props    map[string]int
	Bool_props   map[string]bool
	Float_props  map[string]float32
	Linked_usage *Usage
}

func NewUsage(name string, default_size uint) *Usage {
	var use Usage
	use.Name = name
	use.String_props = make(map[string]string, default_size)
	use.Int_props = make(map[string]int, default_size)
	use.Bool_props = make(map[string]bool, default_size)
	use.Float_props = make(map[string]float32, default_size)
	return &use
}

func (u *Usage) HasNext() bool {
	return u.Linked_usage != nil
}

func (u *Usage) GetLinkedUsage() (*Usage, error) {
	if !u.HasNext() {
		return nil, errors.Newf("properties %s has no linked usage", u.Name)
	}
	return u.Linked_usage, nil
}

// Find walks the usage chain starting at u and returns the usage called name.
func (u *Usage) Find(name string) (*Usage, error) {
	for use := u; use != nil; use = use.Linked_usage {
		if use.Name == name {
			return use, nil
		}
	}
	return nil, errors.Newf("no usage named %q", name)
}

// LoadUsage decodes a JSON object into a Usage called name. Strings, booleans
// and numbers go to the matching property map; integral numbers are Int_props.
// A nested object becomes the linked usage, named after its key; at most one
// is allowed per level.
func LoadUsage(name string, r io.Reader) (*Usage, error) {
	var raw map[string]interface{}
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return nil, errors.Wrapf(err, "decoding usage %s", name)
	}
	return usageFrom(name, raw)
}

func usageFrom(name string, raw map[string]interface{}) (*Usage, error) {
	use := NewUsage(name, uint(len(raw)))
	for key, v := range raw {
		switch v := v.(type) {
		case string:
			use.String_props[key] = v
		case bool:
			use.Bool_props[key] = v
		case float64:
			if v == math.Trunc(v) && math.Abs(v) <= math.MaxInt32 {
				use.Int_props[key] = int(v)
			} else {
				use.Float_props[key] = float32(v)
			}
		case map[string]interface{}:
			if use.Linked_usage != nil {
				return nil, errors.Newf("usage %s: more than one linked usage (%s, %s)", name, use.Linked_usage.Name, key)
			}
			linked, err := usageFrom(key, v)
			if err != nil {
				return nil, err
			}
			use.Linked_usage = linked
		default:
			return nil, errors.Newf("usage %s: unsupported value for %q: %T", name, key, v)
		}
	}
	return use, nil
}

// Usage keys read by ConfigFromUsage.
const (
	UsageImmediateTimeoutMs = "ImmediateTimeoutMs"
	UsageSlowWaitMs         = "SlowWaitMs"
	UsageTransientPools     = "TransientPools"
	UsageResettableBuffers  = "ResettableBuffers"
	UsageLogging            = "Logging"
)

// ConfigFromUsage builds a Config from u. Absent keys keep their default.
// Logging is "none" (the default), "stdout", "stderr" or a file path the
// logs are appended to.
func ConfigFromUsage(u *Usage) (Config, error) {
	cfg := DefaultConfig()
	if u == nil {
		return cfg, nil
	}
	if ms, ok := u.Int_props[UsageImmediateTimeoutMs]; ok {
		if ms <= 0 {
			return cfg, validationf("%s must be positive, have %d", UsageImmediateTimeoutMs, ms)
		}
		cfg.ImmediateTimeout = time.Duration(ms) * time.Millisecond
	}
	if ms, ok := u.Int_props[UsageSlowWaitMs]; ok {
		if ms <= 0 {
			return cfg, validationf("%s must be positive, have %d", UsageSlowWaitMs, ms)
		}
		cfg.SlowWait = time.Duration(ms) * time.Millisecond
	}
	if u.Bool_props[UsageTransientPools] {
		cfg.PoolFlags |= native.PoolTransient
	}
	if resettable, ok := u.Bool_props[UsageResettableBuffers]; ok && !resettable {
		cfg.PoolFlags &^= native.PoolResetCommandBuffer
		cfg.NoBufferReset = true
	}
	switch dest := u.String_props[UsageLogging]; dest {
	case "", "none":
	case "stdout":
		cfg = cfg.WithLogOutput(os.Stdout)
	case "stderr":
		cfg = cfg.WithLogOutput(os.Stderr)
	default:
		file, err := os.OpenFile(dest, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0666)
		if err != nil {
			return cfg, errors.Wrap(err, "opening log file")
		}
		cfg = cfg.WithLogOutput(file)
	}
	return cfg, nil
}
