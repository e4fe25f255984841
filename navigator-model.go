package navigator

import (
	"time"

	"github.com/go-rod/rod/lib/proto"
)

// Browser engines
const (
	ENGINE_ROD      = "rod"
	ENGINE_CHROMEDP = "chromedp"
)

// Lifecycle event the navigator waits for after the main document response
const (
	WAITFOR_DOM_CONTENT_LOADED = iota
	WAITFOR_NETWORK_ALMOST_IDLE
	WAITFOR_NETWORK_IDLE
	WAITFOR_LOAD
)

const DEFAULT_BROWSER_NAVIGATION_TIMEOUT = 60 * time.Second

// Navigator model. Describes how browser is launched and how pages are loaded.
type Model struct {
	// Browser engine, ENGINE_ROD by default
	Engine string `yaml:"engine"`

	// Browser window is visible (not headless)
	Visible bool `yaml:"visible"`

	// Browser profile directory. Keeps cookies and installed extensions between runs
	UserDataDir string `yaml:"user_data_dir"`

	// Keep profile directory after the browser is closed
	PersistentContext bool `yaml:"persistent_context"`

	// Connect to the system Chrome in user mode instead of launching a new one
	UseSystemChrome bool `yaml:"use_system_chrome"`

	// Path to the browser binary. Empty means autodetect / download
	Bin string `yaml:"bin"`

	// Proxy server, e.g. http://127.0.0.1:13120
	Proxy string `yaml:"proxy"`

	// Unpacked extension directories loaded on start
	Extensions []string `yaml:"extensions"`

	// Open pages with go-rod/stealth evasions
	Stealth bool `yaml:"stealth"`

	ShowImages bool   `yaml:"show_images"`
	UserAgent  string `yaml:"user_agent"`
	NoSandbox  bool   `yaml:"no_sandbox"`

	// Page loading timeout. DEFAULT_BROWSER_NAVIGATION_TIMEOUT if zero
	NavigationTimeout time.Duration `yaml:"navigation_timeout"`

	// One of WAITFOR_* constants
	NavigationWaitfor int `yaml:"navigation_waitfor"`

	// If set, only this node is kept in the result document
	ReadOnlySelector string `yaml:"read_only_selector"`

	Verbose bool `yaml:"verbose"`
}

func (m *Model) engine() string {
	if m.Engine == "" {
		return ENGINE_ROD
	}
	return m.Engine
}

// Get page loading timeout
func (m *Model) navigationTimeout() time.Duration {
	if m.NavigationTimeout > 0 {
		return m.NavigationTimeout
	}
	return DEFAULT_BROWSER_NAVIGATION_TIMEOUT
}

// Get load event name
func (m *Model) pageLoadEvent() proto.PageLifecycleEventName {
	switch m.NavigationWaitfor {
	case WAITFOR_NETWORK_ALMOST_IDLE:
		return proto.PageLifecycleEventNameNetworkAlmostIdle
	case WAITFOR_NETWORK_IDLE:
		return proto.PageLifecycleEventNameNetworkIdle
	case WAITFOR_LOAD:
		return proto.PageLifecycleEventNameLoad
	default:
		return proto.PageLifecycleEventNameDOMContentLoaded
	}
}

// Copy of the model with another profile directory
func (m Model) WithProfile(dir string) *Model {
	m.UserDataDir = dir
	m.PersistentContext = true
	m.Extensions = append([]string(nil), m.Extensions...)
	return &m
}
