package config

// ZmqPortsConfig holds the port numbers for the two broker endpoints
// plus optional per-component logging publisher ports.
type ZmqPortsConfig struct {
	Manager int            `mapstructure:"manager"`
	Workers int            `mapstructure:"workers"`
	Logging map[string]int `mapstructure:"logging"`
}

// ZmqConfig is the transport section: zmq.host, zmq.ports.manager,
// zmq.ports.workers, zmq.ports.logging, zmq.worker reply timeout.
type ZmqConfig struct {
	Host                string         `mapstructure:"host"`
	Ports               ZmqPortsConfig `mapstructure:"ports"`
	WorkerReplyTimeout  int            `mapstructure:"worker reply timeout"`
}

// WorkerRegistryEntry is a worker's message registry entry: a
// mapping of message-type to human-readable description, plus an
// optional checklist key used by the checklist update rule.
type WorkerRegistryEntry struct {
	ChecklistKey string            `mapstructure:"checklist key"`
	MessageTypes map[string]string `mapstructure:",remain"`
}

// MessageRegistryConfig is the message registry.* section.
type MessageRegistryConfig struct {
	NextWorkersModule string                          `mapstructure:"next workers module"`
	Workers           map[string]WorkerRegistryEntry   `mapstructure:"workers"`
	Manager           map[string]string               `mapstructure:"manager"`
}

// ScheduledWorkerParams is the inner value of a scheduled workers
// entry: {module: {every, at, cmd line opts}}.
type ScheduledWorkerParams struct {
	Every       string `mapstructure:"every"`
	At          string `mapstructure:"at"`
	CmdLineOpts string `mapstructure:"cmd line opts"`
}

// RunHostConfig describes a remote launch target under
// run.enabled hosts.<host>.
type RunHostConfig struct {
	SSHHost     string `mapstructure:"ssh host"`
	EnvvarsFile string `mapstructure:"envvars file"`
	Python      string `mapstructure:"python"`
	ConfigFile  string `mapstructure:"config file"`
}

// RunConfig is the run.* section.
type RunConfig struct {
	EnabledHosts map[string]RunHostConfig `mapstructure:"enabled hosts"`
}

// SlackNotificationConfig is one entry of the slack notifications
// section, keyed by the environment variable naming its webhook URL.
type SlackNotificationConfig struct {
	Workers      []string `mapstructure:"workers"`
	LogURL       string   `mapstructure:"log url"`
	ChecklistURL string   `mapstructure:"checklist url"`
}

// HTTPConfig configures the ambient /healthz and /metrics endpoints.
type HTTPConfig struct {
	Port int `mapstructure:"port"`
}

// NowcastConfig is the full configuration object every daemon loads
// from its config_file positional argument.
type NowcastConfig struct {
	// ConfigFile is the path LoadConfig was called with, not a
	// configuration file key. It is what NextWorker.Launch passes as a
	// spawned worker's own config_file positional argument, mirroring
	// config.file in the reference implementation.
	ConfigFile          string                             `mapstructure:"-"`
	ChecklistFile       string                             `mapstructure:"checklist file"`
	Python              string                              `mapstructure:"python"`
	Zmq                 ZmqConfig                           `mapstructure:"zmq"`
	MessageRegistry     MessageRegistryConfig               `mapstructure:"message registry"`
	ScheduledWorkers    []map[string]ScheduledWorkerParams  `mapstructure:"scheduled workers"`
	Run                 RunConfig                           `mapstructure:"run"`
	SlackNotifications  map[string]SlackNotificationConfig  `mapstructure:"slack notifications"`
	Logging             LogConfig                           `mapstructure:"logging"`
	HTTP                HTTPConfig                          `mapstructure:"http"`
	Service             ServiceConfig                       `mapstructure:"service"`
}

// WorkerReplyTimeout is the bounded wait a worker's TellManager call
// applies to the manager's reply, resolving spec.md's open question
// on an unbounded reference implementation.
const WorkerReplyTimeout = 30

// Defaults returns the dotted-key default map applied before a config
// file is read, following the state/identity service pattern of a
// package-level defaults map merged by the loader.
func Defaults() map[string]interface{} {
	return map[string]interface{}{
		"zmq.host":                  "localhost",
		"zmq.ports.manager":         5555,
		"zmq.ports.workers":         5556,
		"zmq.worker reply timeout": WorkerReplyTimeout,
		"python":                    "/usr/bin/env python3",
		"http.port":                 8090,
		"logging.level":             "info",
		"logging.formatter":         "text",
	}
}
