package config

// Config represents the main toolcore configuration
type Config struct {
	// Logging
	Logging LoggingConfig `json:"logging" mapstructure:"logging"`

	// Gateway (human-interaction and observability surface)
	Gateway GatewayConfig `json:"gateway" mapstructure:"gateway"`

	// Access control
	Access AccessConfig `json:"access" mapstructure:"access"`

	// Parameter safety rules
	Safety SafetyConfig `json:"safety" mapstructure:"safety"`

	// Tool providers
	Providers []ProviderConfig `json:"providers" mapstructure:"providers"`

	// Tool declarations
	Tools []ToolConfig `json:"tools" mapstructure:"tools"`

	// Human interaction
	Interaction InteractionConfig `json:"interaction" mapstructure:"interaction"`

	// Audit sink
	Audit AuditConfig `json:"audit" mapstructure:"audit"`

	// Background maintenance
	Maintenance MaintenanceConfig `json:"maintenance" mapstructure:"maintenance"`

	// Data directory
	DataDir string `json:"data_dir" mapstructure:"data_dir"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level   string `json:"level" mapstructure:"level"`
	File    string `json:"file" mapstructure:"file"`
	Console bool   `json:"console" mapstructure:"console"`
	Pretty  bool   `json:"pretty" mapstructure:"pretty"`
}

// GatewayConfig holds gateway server configuration
type GatewayConfig struct {
	Enabled bool   `json:"enabled" mapstructure:"enabled"`
	Host    string `json:"host" mapstructure:"host"`
	Port    int    `json:"port" mapstructure:"port"`
}

// AccessConfig holds role permissions and rate limits, loaded once at
// startup and read-only afterwards.
type AccessConfig struct {
	// Roles maps a role name to its permission strings
	// ("category:tool", "category:*" or "*:*").
	Roles map[string][]string `json:"roles" mapstructure:"roles"`

	// SecurityLevels maps "category:tool" keys to low/medium/high/critical.
	SecurityLevels map[string]string `json:"security_levels" mapstructure:"security_levels"`

	// RateLimits maps a tool category to its sliding-window limit. The
	// "default" entry is the fallback for unlisted categories.
	RateLimits map[string]RateLimitConfig `json:"rate_limits" mapstructure:"rate_limits"`
}

// RateLimitConfig defines a sliding-window rate limit
type RateLimitConfig struct {
	Requests      int `json:"requests" mapstructure:"requests"`
	WindowSeconds int `json:"window_seconds" mapstructure:"window_seconds"`
}

// SafetyConfig holds parameter safety predicates
type SafetyConfig struct {
	AllowedURLSchemes []string `json:"allowed_url_schemes" mapstructure:"allowed_url_schemes"`
	DeniedDirs        []string `json:"denied_dirs" mapstructure:"denied_dirs"`
	DeniedCommands    []string `json:"denied_commands" mapstructure:"denied_commands"`
}

// ProviderConfig describes one tool provider endpoint
type ProviderConfig struct {
	ID             string `json:"id" mapstructure:"id"`
	BaseURL        string `json:"base_url" mapstructure:"base_url"`
	AuthType       string `json:"auth_type" mapstructure:"auth_type"` // none, api_key, bearer, basic
	Credential     string `json:"credential" mapstructure:"credential"`
	TimeoutSeconds int    `json:"timeout_seconds" mapstructure:"timeout_seconds"`
	MinConns       int    `json:"min_conns" mapstructure:"min_conns"`
	MaxConns       int    `json:"max_conns" mapstructure:"max_conns"`
}

// ToolConfig declares a tool and its input contract
type ToolConfig struct {
	// Name is the full "category:tool" name.
	Name            string                 `json:"name" mapstructure:"name"`
	Description     string                 `json:"description" mapstructure:"description"`
	Providers       []string               `json:"providers" mapstructure:"providers"`
	InputSchema     map[string]interface{} `json:"input_schema" mapstructure:"input_schema"`
	SafetyTags      []string               `json:"safety_tags" mapstructure:"safety_tags"`
	ConcurrencySafe bool                   `json:"concurrency_safe" mapstructure:"concurrency_safe"`
	Interactive     bool                   `json:"interactive" mapstructure:"interactive"`
}

// InteractionConfig holds human-interaction settings
type InteractionConfig struct {
	DefaultTimeoutSeconds int `json:"default_timeout_seconds" mapstructure:"default_timeout_seconds"`
	SweepIntervalSeconds  int `json:"sweep_interval_seconds" mapstructure:"sweep_interval_seconds"`
}

// AuditConfig holds audit sink settings
type AuditConfig struct {
	DBPath        string `json:"db_path" mapstructure:"db_path"`
	BufferSize    int    `json:"buffer_size" mapstructure:"buffer_size"`
	RetentionDays int    `json:"retention_days" mapstructure:"retention_days"`
}

// MaintenanceConfig holds background maintenance intervals
type MaintenanceConfig struct {
	HealthProbeSeconds int `json:"health_probe_seconds" mapstructure:"health_probe_seconds"`
	PruneSeconds       int `json:"prune_seconds" mapstructure:"prune_seconds"`
}

// DefaultConfig returns the default configuration. The role and rate-limit
// tables mirror the shipped access policy; operators override them in the
// config file.
func DefaultConfig() *Config {
	return &Config{
		Logging: LoggingConfig{
			Level:   "info",
			Console: true,
			Pretty:  true,
		},
		Gateway: GatewayConfig{
			Enabled: true,
			Host:    "127.0.0.1",
			Port:    7411,
		},
		Access: AccessConfig{
			Roles: map[string][]string{
				"planner": {
					"user_interaction:*",
					"web_services:search",
					"web_services:documentation",
					"data_processing:analysis",
					"file_operations:read_file",
				},
				"coder": {
					"file_operations:*",
					"development_tools:*",
					"web_services:api_call",
					"system_utilities:*",
					"user_interaction:ask",
				},
				"tester": {
					"file_operations:read_file",
					"development_tools:test",
					"development_tools:build",
					"system_utilities:monitor",
					"user_interaction:ask",
				},
				"reviewer": {
					"file_operations:read_file",
					"development_tools:analysis",
					"web_services:documentation",
					"data_processing:analysis",
					"user_interaction:ask",
				},
				"admin": {
					"*:*",
				},
				"guest": {
					"user_interaction:ask",
					"web_services:search",
				},
			},
			SecurityLevels: map[string]string{
				"file_operations:write_file":  "high",
				"file_operations:delete_file": "critical",
				"system_utilities:execute":    "high",
				"system_utilities:shutdown":   "critical",
				"web_services:api_call":       "medium",
				"user_interaction:ask":        "low",
				"development_tools:test":      "medium",
				"development_tools:deploy":    "high",
			},
			RateLimits: map[string]RateLimitConfig{
				"user_interaction":  {Requests: 10, WindowSeconds: 60},
				"web_services":      {Requests: 100, WindowSeconds: 60},
				"file_operations":   {Requests: 50, WindowSeconds: 60},
				"development_tools": {Requests: 30, WindowSeconds: 60},
				"system_utilities":  {Requests: 20, WindowSeconds: 60},
				"default":           {Requests: 30, WindowSeconds: 60},
			},
		},
		Safety: SafetyConfig{
			AllowedURLSchemes: []string{"http", "https"},
			DeniedDirs: []string{
				"/etc", "/sys", "/proc", "/dev", "/boot", "/root",
			},
			DeniedCommands: []string{
				"rm -rf", "mkfs", "fdisk", "dd if=",
				"shutdown", "reboot", "halt", "poweroff",
				"chmod 777", "chown root", "su -", "sudo",
			},
		},
		Interaction: InteractionConfig{
			DefaultTimeoutSeconds: 300,
			SweepIntervalSeconds:  30,
		},
		Audit: AuditConfig{
			BufferSize:    1024,
			RetentionDays: 30,
		},
		Maintenance: MaintenanceConfig{
			HealthProbeSeconds: 30,
			PruneSeconds:       60,
		},
	}
}
