package config

import (
	"encoding/json"
	"io/ioutil"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/go-ini/ini"
	"github.com/netbricks/netbricks/engine/consts"
	"github.com/netbricks/netbricks/engine/gwlog"
	"github.com/pkg/errors"
)

const (
	_DEFAULT_DATA_DIR   = consts.DATA_DIR
	_DEFAULT_PORT       = 1200
	_DEFAULT_LOG_LEVEL  = "debug"
	_DEFAULT_SCENE_NAME = "Scene"
)

var (
	dataDir      = _DEFAULT_DATA_DIR
	bridgeConfig *BridgeConfig
	configLock   sync.Mutex
)

// MainDefinition holds process-wide network settings written by the authoring tool
type MainDefinition struct {
	Port           int     `json:"port"`
	TickRate       int     `json:"tick_rate"`
	MetricInterval float64 `json:"metric_interval"` // seconds
	Scene          string  `json:"scene"`
}

// NetworkUpdateInterval is the interval between two full network updates
func (md *MainDefinition) NetworkUpdateInterval() time.Duration {
	return time.Second / time.Duration(md.TickRate)
}

// MetricIntervalDuration converts MetricInterval to a duration
func (md *MainDefinition) MetricIntervalDuration() time.Duration {
	return time.Duration(md.MetricInterval * float64(time.Second))
}

// BridgeSection defines fields of the [bridge] section of bridge.ini
type BridgeSection struct {
	LogLevel          string
	DisconnectTimeout time.Duration
	VersionCheckURL   string
	LocalVersion      string
	DispatcherName    string
}

// BridgeConfig defines the total config of the bridge
type BridgeConfig struct {
	Main   MainDefinition
	Bridge BridgeSection
}

// SetDataDir sets the directory holding main.definition and bridge.ini
func SetDataDir(dir string) {
	configLock.Lock()
	dataDir = dir
	bridgeConfig = nil
	configLock.Unlock()
}

// GetDataDir returns the data directory
func GetDataDir() string {
	configLock.Lock()
	defer configLock.Unlock()
	return dataDir
}

// Get returns the bridge config, reading it on first use
func Get() *BridgeConfig {
	configLock.Lock()
	defer configLock.Unlock()
	if bridgeConfig == nil {
		cfg, err := Load(dataDir)
		checkConfigError(err, "")
		bridgeConfig = cfg
	}
	return bridgeConfig
}

// Reload forces the config to be read again
func Reload() *BridgeConfig {
	configLock.Lock()
	bridgeConfig = nil
	configLock.Unlock()

	return Get()
}

// GetMain returns the main definition
func GetMain() *MainDefinition {
	return &Get().Main
}

// GetBridge returns the [bridge] section
func GetBridge() *BridgeSection {
	return &Get().Bridge
}

// Load reads main.definition and the optional bridge.ini from dir without caching
func Load(dir string) (*BridgeConfig, error) {
	cfg := &BridgeConfig{}
	if err := readMainDefinition(filepath.Join(dir, consts.MAIN_DEFINITION_FILE), &cfg.Main); err != nil {
		return nil, err
	}
	if err := readBridgeConfig(filepath.Join(dir, consts.BRIDGE_CONFIG_FILE), &cfg.Bridge); err != nil {
		return nil, err
	}
	return cfg, nil
}

// DumpPretty format config to string in pretty format
func DumpPretty(cfg interface{}) string {
	s, err := json.MarshalIndent(cfg, "", "    ")
	if err != nil {
		return err.Error()
	}
	return string(s)
}

func readMainDefinition(file string, md *MainDefinition) error {
	md.Port = _DEFAULT_PORT
	md.TickRate = consts.DEFAULT_TICK_RATE
	md.MetricInterval = consts.DEFAULT_METRIC_INTERVAL.Seconds()
	md.Scene = _DEFAULT_SCENE_NAME

	data, err := ioutil.ReadFile(file)
	if os.IsNotExist(err) {
		gwlog.Warnf("%s not found, using default network settings", file)
		return nil
	} else if err != nil {
		return errors.Wrapf(err, "read %s", file)
	}

	if err := json.Unmarshal(data, md); err != nil {
		return errors.Wrapf(err, "parse %s", file)
	}
	return validateMainDefinition(md)
}

func validateMainDefinition(md *MainDefinition) error {
	if md.Port <= 0 || md.Port > 65535 {
		return errors.Errorf("invalid port: %d", md.Port)
	}
	if md.TickRate <= 0 {
		return errors.Errorf("invalid tick_rate: %d", md.TickRate)
	}
	if md.MetricInterval <= 0 {
		return errors.Errorf("invalid metric_interval: %v", md.MetricInterval)
	}
	return nil
}

func readBridgeConfig(file string, bc *BridgeSection) error {
	bc.LogLevel = _DEFAULT_LOG_LEVEL
	bc.DisconnectTimeout = consts.DISCONNECT_TIMEOUT
	bc.DispatcherName = consts.DISPATCHER_NAME

	if _, err := os.Stat(file); os.IsNotExist(err) {
		return nil
	}

	gwlog.Infof("Using config file: %s", file)
	iniFile, err := ini.Load(file)
	if err != nil {
		return errors.Wrapf(err, "load %s", file)
	}

	for _, sec := range iniFile.Sections() {
		secName := strings.ToLower(sec.Name())
		if secName == "default" {
			continue
		} else if secName == "bridge" {
			if err := _readBridgeSection(sec, bc); err != nil {
				return err
			}
		} else {
			gwlog.Errorf("unknown section: %s", sec.Name())
		}
	}
	return nil
}

func _readBridgeSection(sec *ini.Section, bc *BridgeSection) error {
	for _, key := range sec.Keys() {
		name := strings.ToLower(key.Name())
		if name == "log_level" {
			bc.LogLevel = key.MustString(bc.LogLevel)
		} else if name == "disconnect_timeout_ms" {
			bc.DisconnectTimeout = time.Millisecond * time.Duration(key.MustInt(int(bc.DisconnectTimeout/time.Millisecond)))
		} else if name == "version_check_url" {
			bc.VersionCheckURL = key.MustString(bc.VersionCheckURL)
		} else if name == "local_version" {
			bc.LocalVersion = key.MustString(bc.LocalVersion)
		} else if name == "dispatcher_name" {
			bc.DispatcherName = key.MustString(bc.DispatcherName)
		} else {
			return errors.Errorf("section %s has unknown key: %s", sec.Name(), key.Name())
		}
	}
	return nil
}

func checkConfigError(err error, msg string) {
	if err != nil {
		if msg == "" {
			msg = err.Error()
		}
		gwlog.Panicf("read config error: %s", msg)
	}
}
