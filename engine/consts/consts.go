package consts

import "time"

// Behavior states
const (
	// NUM_BEHAVIOR_STATES is the number of logic states a host object can toggle
	NUM_BEHAVIOR_STATES = 30
	// ALL_BEHAVIOR_STATES is the mask with every behavior state bit set
	ALL_BEHAVIOR_STATES = 1<<NUM_BEHAVIOR_STATES - 1
)

// Data layout
const (
	// DATA_DIR is the directory holding all network definitions, relative to the game file
	DATA_DIR = "network_data"
	// ACTOR_DEFINITION_FILE is the descriptor file inside each entity type directory
	ACTOR_DEFINITION_FILE = "actor.definition"
	// OBJECT_SETTINGS_FILE is the small per-object INI settings file
	OBJECT_SETTINGS_FILE = "definition.cfg"
	// MAIN_DEFINITION_FILE holds process-wide settings
	MAIN_DEFINITION_FILE = "main.definition"
	// BRIDGE_CONFIG_FILE holds optional bridge settings (log level, timeouts)
	BRIDGE_CONFIG_FILE = "bridge.ini"
	// TEMPLATE_DIR holds template files resolved by name
	TEMPLATE_DIR = "templates"
	// TEMPLATE_FILE_EXT is the extension of template files
	TEMPLATE_FILE_EXT = ".template"
)

// Tunable Options
const (
	// DEFAULT_TICK_RATE is the network full update rate when main.definition omits it
	DEFAULT_TICK_RATE = 30
	// DEFAULT_METRIC_INTERVAL is the metrics sample window when main.definition omits it
	DEFAULT_METRIC_INTERVAL = time.Second * 2
	// DEFAULT_LOGIC_TICK_RATE is the simulation rate of the headless engine
	DEFAULT_LOGIC_TICK_RATE = 60
	// DISCONNECT_TIMEOUT is how long a client waits for a graceful disconnect before force exit
	DISCONNECT_TIMEOUT = time.Millisecond * 600
	// ASYNC_JOB_QUEUE_MAXLEN is the job queue length that triggers a warning
	ASYNC_JOB_QUEUE_MAXLEN = 100
	// OPMON_WARN_THRESHOLD is the duration above which a single tick phase is logged
	OPMON_WARN_THRESHOLD = time.Millisecond * 20
)

// Message bus
const (
	// DISPATCHER_NAME is the recipient name of the message dispatcher object
	DISPATCHER_NAME = "DISPATCHER"
	// INTERNAL_MESSAGE_BODY marks messages the dispatcher must ignore
	INTERNAL_MESSAGE_BODY = "<internal>"
	// INVALID_MESSAGE_BODY is the body used for bridge-originated messages
	INVALID_MESSAGE_BODY = "<invalid>"
)

// Debug Options
const (
	// DEBUG_SUBJECTS prints every decoded subject
	DEBUG_SUBJECTS = false
	// DEBUG_PACKETS prints replication packet send/recv debug logs
	DEBUG_PACKETS = false
)
