// Package config is the trbowatch.json5 configuration file.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"
	"trbowatch/internal/notify"
	"trbowatch/internal/roster"
	"trbowatch/internal/scrapers/callwatch"
	"trbowatch/internal/scrapers/radioid"
	"trbowatch/lib/configutil"
	configlibsql "trbowatch/lib/configutil/libsql"

	"dario.cat/mergo"
)

const DefaultPath = "trbowatch.json5"

const (
	DriverChrome = "chrome"
	DriverHTTP   = "http"
)

const (
	ModeCallWatch = "callwatch"
	ModeBackend   = "backend"
)

type CallWatchConfig struct {
	Url string `json:"url"`
	// TalkGroup is the talk-group name shown by the monitor.
	TalkGroup string `json:"talk_group"`
}

type BackendConfig struct {
	BaseUrl  string `json:"base_url"`
	Username string `json:"username"`
	Password string `json:"password"`
	// NetworkButton is the label of the control opening the network's calls.
	NetworkButton string `json:"network_button"`
	// TalkGroupID is the talk-group id shown by the backend call table.
	TalkGroupID string `json:"talk_group_id"`
	PageSize    int    `json:"page_size"`
	MaxPages    int    `json:"max_pages"`
}

type BrowserConfig struct {
	// Driver is "chrome" or "http".
	Driver string `json:"driver"`
	// ExecPath of a Chromium based browser, empty means search the PATH.
	ExecPath string `json:"exec_path"`
	// ShowBrowser opens a visible browser window instead of running headless.
	ShowBrowser       bool    `json:"show_browser"`
	TimeoutSeconds    int     `json:"timeout_seconds"`
	UserAgent         string  `json:"user_agent"`
	RequestsPerSecond float64 `json:"requests_per_second"`
}

func (c BrowserConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

type FilterConfig struct {
	Network string `json:"network"`
}

type RadioIDConfig struct {
	BaseUrl           string  `json:"base_url"`
	TimeoutSeconds    int     `json:"timeout_seconds"`
	RequestsPerSecond float64 `json:"requests_per_second"`
	ExpandCallsign    bool    `json:"expand_callsign"`
}

func (c RadioIDConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

type StoresConfig struct {
	Roster    string `json:"roster"`
	Audit     string `json:"audit"`
	TalkGroup string `json:"talk_group"`
}

type WatchConfig struct {
	// Schedule is a standard 5 field cron expression.
	Schedule string `json:"schedule"`
	Mode     string `json:"mode"`
}

type Config struct {
	CallWatch CallWatchConfig     `json:"callwatch"`
	Backend   BackendConfig       `json:"backend"`
	Browser   BrowserConfig       `json:"browser"`
	Filter    FilterConfig        `json:"filter"`
	RadioID   RadioIDConfig       `json:"radioid"`
	Stores    StoresConfig        `json:"stores"`
	History   configlibsql.Struct `json:"history"`
	Notify    notify.Config       `json:"notify"`
	Watch     WatchConfig         `json:"watch"`
	// Timezone is the IANA zone used for schedules and reports.
	Timezone string `json:"timezone"`
	// DumpDir receives full HTTP exchanges when dumping is turned on.
	DumpDir string `json:"dump_dir"`
}

func Defaults() Config {
	return Config{
		CallWatch: CallWatchConfig{
			Url:       callwatch.DefaultCallWatchUrl,
			TalkGroup: "MWave",
		},
		Backend: BackendConfig{
			BaseUrl:       callwatch.DefaultBackendUrl,
			NetworkButton: "AZ-TRBONET",
			TalkGroupID:   "310564",
			PageSize:      100,
			MaxPages:      100,
		},
		Browser: BrowserConfig{
			Driver:         DriverChrome,
			TimeoutSeconds: 30,
		},
		Filter: FilterConfig{
			Network: "AZ-TRBONET",
		},
		RadioID: RadioIDConfig{
			BaseUrl:           radioid.DefaultBaseUrl,
			TimeoutSeconds:    10,
			RequestsPerSecond: 2,
		},
		Stores: StoresConfig{
			Roster:    "code_plug.csv",
			Audit:     "add_users.csv",
			TalkGroup: "mwg_users.csv",
		},
		History: configlibsql.Struct{
			File: "trbowatch.db",
		},
		Watch: WatchConfig{
			Schedule: "*/15 * * * *",
			Mode:     ModeCallWatch,
		},
		Timezone: "America/Phoenix",
		DumpDir:  "dump",
	}
}

// Load reads the config at path (merged with its .local override) and fills
// every unset field from Defaults. A missing file yields the defaults.
func Load(path string) (Config, error) {
	cfg, err := configutil.ReadConfig[Config](path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("read config %s: %w", path, err)
	}

	err = mergo.Merge(&cfg, Defaults())
	if err != nil {
		return Config{}, err
	}

	err = cfg.Validate()
	if err != nil {
		return Config{}, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

func (c Config) Validate() error {
	switch c.Browser.Driver {
	case DriverChrome, DriverHTTP:
	default:
		return fmt.Errorf("unknown browser driver %q", c.Browser.Driver)
	}
	switch c.Watch.Mode {
	case ModeCallWatch, ModeBackend:
	default:
		return fmt.Errorf("unknown watch mode %q", c.Watch.Mode)
	}
	if c.Backend.PageSize < 1 || c.Backend.MaxPages < 1 {
		return fmt.Errorf("backend page size and max pages must be positive")
	}
	return nil
}

// Criteria is the record filter of a mode. The public monitor shows
// talk-groups by name while the backend shows their id.
func (c Config) Criteria(mode string) roster.Criteria {
	talkGroup := c.CallWatch.TalkGroup
	if mode == ModeBackend {
		talkGroup = c.Backend.TalkGroupID
	}
	return roster.Criteria{
		Network:   c.Filter.Network,
		TalkGroup: talkGroup,
	}
}
