package config

import (
	"fmt"
	"os"
	"regexp"
	"slices"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration for tools-api.
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Database      DatabaseConfig      `yaml:"database"`
	Auth          AuthConfig          `yaml:"auth"`
	GitHub        GitHubConfig        `yaml:"github"`
	ExitNodes     ExitNodesConfig     `yaml:"exit_nodes"`
	Hetzner       HetznerConfig       `yaml:"hetzner"`
	Lightsail     LightsailConfig     `yaml:"lightsail"`
	ObjectStorage ObjectStorageConfig `yaml:"object_storage"`
	AWS           AWSConfig           `yaml:"aws"`
	Build         BuildConfig         `yaml:"build"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Listen            string          `yaml:"listen"`
	CORSOrigins       []string        `yaml:"cors_origins"`
	RequestTimeout    time.Duration   `yaml:"request_timeout"`
	ExposeStackTraces *bool           `yaml:"expose_stack_traces"`
	RateLimit         RateLimitConfig `yaml:"rate_limit"`
}

// RateLimitConfig contains per-IP rate limiting settings.
type RateLimitConfig struct {
	Enabled           bool `yaml:"enabled"`
	RequestsPerMinute int  `yaml:"requests_per_minute"`
}

// DatabaseConfig contains database connection settings.
type DatabaseConfig struct {
	Driver   string         `yaml:"driver"`
	SQLite   SQLiteConfig   `yaml:"sqlite"`
	Postgres PostgresConfig `yaml:"postgres"`
}

// SQLiteConfig contains SQLite-specific settings.
type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// PostgresConfig contains PostgreSQL-specific settings.
type PostgresConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
	SSLMode  string `yaml:"sslmode"`
}

// AuthConfig contains API key authentication settings.
type AuthConfig struct {
	Enabled bool     `yaml:"enabled"`
	APIKeys []APIKey `yaml:"api_keys"`
}

// APIKey is a named bcrypt hash of an accepted key.
type APIKey struct {
	Name string `yaml:"name"`
	Hash string `yaml:"hash"`
}

// GitHubConfig contains GitHub API and workflow dispatch settings.
type GitHubConfig struct {
	Token            string              `yaml:"token"`
	BaseURL          string              `yaml:"base_url"`
	TrackingInterval time.Duration       `yaml:"tracking_interval"`
	RunTimeout       time.Duration       `yaml:"run_timeout"`
	RetentionDays    int                 `yaml:"retention_days"`
	CleanupInterval  time.Duration       `yaml:"cleanup_interval"`
	Workflows        map[string]Workflow `yaml:"workflows"`
}

// Workflow is a workflow_dispatch target.
type Workflow struct {
	Owner      string `yaml:"owner"`
	Repo       string `yaml:"repo"`
	WorkflowID string `yaml:"workflow_id"`
	Ref        string `yaml:"ref"`
}

// ExitNodesConfig contains chisel exit node settings.
type ExitNodesConfig struct {
	Provider        string `yaml:"provider"`
	DefaultCount    int    `yaml:"default_count"`
	MaxCount        int    `yaml:"max_count"`
	SuffixPrefix    string `yaml:"suffix_prefix"`
	ChiselImage     string `yaml:"chisel_image"`
	OperatorVersion string `yaml:"operator_version"`
}

// HetznerConfig contains Hetzner Cloud settings for exit nodes.
type HetznerConfig struct {
	Token             string   `yaml:"token"`
	Endpoint          string   `yaml:"endpoint"`
	SSHKeyName        string   `yaml:"ssh_key_name"`
	Image             string   `yaml:"image"`
	DefaultLocation   string   `yaml:"default_location"`
	Locations         []string `yaml:"locations"`
	DefaultServerType string   `yaml:"default_server_type"`
	ServerTypes       []string `yaml:"server_types"`
}

// LightsailConfig contains AWS Lightsail settings for exit nodes.
type LightsailConfig struct {
	AccessKeyID     string   `yaml:"access_key_id"`
	SecretAccessKey string   `yaml:"secret_access_key"`
	BlueprintID     string   `yaml:"blueprint_id"`
	DefaultRegion   string   `yaml:"default_region"`
	Regions         []string `yaml:"regions"`
	DefaultBundle   string   `yaml:"default_bundle"`
	Bundles         []string `yaml:"bundles"`
}

// ObjectStorageConfig contains S3-compatible object storage settings.
type ObjectStorageConfig struct {
	EndpointTemplate     string   `yaml:"endpoint_template"`
	AccessKeyID          string   `yaml:"access_key_id"`
	SecretAccessKey      string   `yaml:"secret_access_key"`
	UseSSL               *bool    `yaml:"use_ssl"`
	DefaultRegion        string   `yaml:"default_region"`
	Regions              []string `yaml:"regions"`
	SuffixLength         int      `yaml:"suffix_length"`
	PurgeObjects         bool     `yaml:"purge_objects"`
	LegacySubstringMatch bool     `yaml:"legacy_substring_match"`
}

// AWSConfig contains the organization root account credentials and the
// names used inside sub-accounts.
type AWSConfig struct {
	AccessKeyID      string `yaml:"access_key_id"`
	SecretAccessKey  string `yaml:"secret_access_key"`
	Region           string `yaml:"region"`
	AssumeRoleName   string `yaml:"assume_role_name"`
	SessionName      string `yaml:"session_name"`
	IAMUserName      string `yaml:"iam_user_name"`
	IAMRoleName      string `yaml:"iam_role_name"`
	PolicyARN        string `yaml:"policy_arn"`
	CredentialRegion string `yaml:"credential_region"`
}

// BuildConfig carries build metadata reported by /version.
type BuildConfig struct {
	Version        string `yaml:"version"`
	CommitSHA      string `yaml:"commit_sha"`
	BuildTimestamp string `yaml:"build_timestamp"`
}

// Workflow names understood by the API.
const (
	WorkflowAWSAccountNuke    = "aws-account-nuke"
	WorkflowCaptainDomainNuke = "captain-domain-nuke"
	WorkflowGitHubOrgReset    = "github-org-reset"
)

// Exit node providers.
const (
	ProviderHetzner   = "hetzner"
	ProviderLightsail = "lightsail"
)

// LightsailRegions lists the regions exit nodes may be created in on Lightsail.
var LightsailRegions = map[string]string{
	"us-east-1":      "US East (N. Virginia)",
	"us-east-2":      "US East (Ohio)",
	"us-west-2":      "US West (Oregon)",
	"eu-west-1":      "EU (Ireland)",
	"eu-west-2":      "EU (London)",
	"eu-west-3":      "EU (Paris)",
	"eu-central-1":   "EU (Frankfurt)",
	"ap-southeast-1": "Asia Pacific (Singapore)",
	"ap-southeast-2": "Asia Pacific (Sydney)",
	"ap-northeast-1": "Asia Pacific (Tokyo)",
	"ap-northeast-2": "Asia Pacific (Seoul)",
	"ap-south-1":     "Asia Pacific (Mumbai)",
	"ca-central-1":   "Canada (Central)",
	"eu-north-1":     "EU (Stockholm)",
}

// Load reads and parses configuration from a YAML file. An empty path yields
// the defaults, populated from the process environment.
func Load(path string) (*Config, error) {
	var cfg Config

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}

		// Expand environment variables.
		expanded := expandEnvVars(string(data))

		if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	// Apply defaults.
	applyDefaults(&cfg)

	// Validate configuration.
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// expandEnvVars replaces ${VAR} and $VAR patterns with environment variable values.
func expandEnvVars(s string) string {
	// Match ${VAR} pattern.
	re := regexp.MustCompile(`\$\{([a-zA-Z_][a-zA-Z0-9_]*)\}`)
	s = re.ReplaceAllStringFunc(s, func(match string) string {
		varName := match[2 : len(match)-1]
		if val, ok := os.LookupEnv(varName); ok {
			return val
		}

		return match
	})

	// Match $VAR pattern (only at word boundaries).
	re = regexp.MustCompile(`\$([a-zA-Z_][a-zA-Z0-9_]*)`)
	s = re.ReplaceAllStringFunc(s, func(match string) string {
		varName := match[1:]
		if val, ok := os.LookupEnv(varName); ok {
			return val
		}

		return match
	})

	return s
}

func envDefault(value *string, key, fallback string) {
	if *value != "" {
		return
	}

	if v, ok := os.LookupEnv(key); ok && v != "" {
		*value = v

		return
	}

	*value = fallback
}

func boolPtr(b bool) *bool {
	return &b
}

// applyDefaults sets default values for unset configuration fields.
func applyDefaults(cfg *Config) {
	if cfg.Server.Listen == "" {
		cfg.Server.Listen = ":8000"
	}

	if cfg.Server.RequestTimeout == 0 {
		cfg.Server.RequestTimeout = 10 * time.Minute
	}

	if cfg.Server.ExposeStackTraces == nil {
		cfg.Server.ExposeStackTraces = boolPtr(true)
	}

	if cfg.Server.RateLimit.RequestsPerMinute == 0 {
		cfg.Server.RateLimit.RequestsPerMinute = 60
	}

	if cfg.Database.Driver == "" {
		cfg.Database.Driver = "sqlite"
	}

	if cfg.Database.SQLite.Path == "" {
		cfg.Database.SQLite.Path = "./tools-api.db"
	}

	if cfg.Database.Postgres.Port == 0 {
		cfg.Database.Postgres.Port = 5432
	}

	if cfg.Database.Postgres.SSLMode == "" {
		cfg.Database.Postgres.SSLMode = "disable"
	}

	// GitHub.
	envDefault(&cfg.GitHub.Token, "GITHUB_TOKEN", "")

	if cfg.GitHub.BaseURL == "" {
		cfg.GitHub.BaseURL = "https://api.github.com/"
	}

	if !strings.HasSuffix(cfg.GitHub.BaseURL, "/") {
		cfg.GitHub.BaseURL += "/"
	}

	if cfg.GitHub.TrackingInterval == 0 {
		cfg.GitHub.TrackingInterval = 30 * time.Second
	}

	if cfg.GitHub.RunTimeout == 0 {
		cfg.GitHub.RunTimeout = 5 * time.Minute
	}

	if cfg.GitHub.RetentionDays == 0 {
		cfg.GitHub.RetentionDays = 30
	}

	if cfg.GitHub.CleanupInterval == 0 {
		cfg.GitHub.CleanupInterval = time.Hour
	}

	defaultWorkflows := map[string]Workflow{
		WorkflowAWSAccountNuke: {
			Owner:      "internal-GlueOps",
			Repo:       "gha-aws-cleanup",
			WorkflowID: "aws-nuke-account.yml",
		},
		WorkflowCaptainDomainNuke: {
			Owner:      "internal-GlueOps",
			Repo:       "gha-aws-cleanup",
			WorkflowID: "nuke-captain-domain-data-and-backups.yml",
		},
		WorkflowGitHubOrgReset: {
			Owner:      "internal-GlueOps",
			Repo:       "gha-tools-api",
			WorkflowID: "reset-github-organization.yml",
		},
	}

	if cfg.GitHub.Workflows == nil {
		cfg.GitHub.Workflows = make(map[string]Workflow, len(defaultWorkflows))
	}

	for name, def := range defaultWorkflows {
		wf, ok := cfg.GitHub.Workflows[name]
		if !ok {
			wf = def
		}

		if wf.Owner == "" {
			wf.Owner = def.Owner
		}

		if wf.Repo == "" {
			wf.Repo = def.Repo
		}

		if wf.WorkflowID == "" {
			wf.WorkflowID = def.WorkflowID
		}

		cfg.GitHub.Workflows[name] = wf
	}

	for name, wf := range cfg.GitHub.Workflows {
		if wf.Ref == "" {
			wf.Ref = "refs/heads/main"
			cfg.GitHub.Workflows[name] = wf
		}
	}

	// Exit nodes.
	if cfg.ExitNodes.Provider == "" {
		cfg.ExitNodes.Provider = ProviderHetzner
	}

	if cfg.ExitNodes.DefaultCount == 0 {
		cfg.ExitNodes.DefaultCount = 2
	}

	if cfg.ExitNodes.MaxCount == 0 {
		cfg.ExitNodes.MaxCount = 6
	}

	if cfg.ExitNodes.SuffixPrefix == "" {
		cfg.ExitNodes.SuffixPrefix = "exit"
	}

	if cfg.ExitNodes.ChiselImage == "" {
		cfg.ExitNodes.ChiselImage = "jpillora/chisel:v1.10.1"
	}

	if cfg.ExitNodes.OperatorVersion == "" {
		cfg.ExitNodes.OperatorVersion = "v0.3.4"
	}

	// Hetzner.
	envDefault(&cfg.Hetzner.Token, "HCLOUD_TOKEN", "")

	if cfg.Hetzner.SSHKeyName == "" {
		cfg.Hetzner.SSHKeyName = "glueops-default-ssh-key"
	}

	if cfg.Hetzner.Image == "" {
		cfg.Hetzner.Image = "debian-12"
	}

	if cfg.Hetzner.DefaultLocation == "" {
		cfg.Hetzner.DefaultLocation = "hel1"
	}

	if len(cfg.Hetzner.Locations) == 0 {
		cfg.Hetzner.Locations = []string{"fsn1", "nbg1", "hel1", "ash", "hil", "sin"}
	}

	if cfg.Hetzner.DefaultServerType == "" {
		cfg.Hetzner.DefaultServerType = "cx22"
	}

	if len(cfg.Hetzner.ServerTypes) == 0 {
		cfg.Hetzner.ServerTypes = []string{"cx22", "cx32", "cpx11", "cpx21", "cax11"}
	}

	// Lightsail.
	envDefault(&cfg.Lightsail.AccessKeyID, "AWS_LIGHTSAIL_ACCESS_KEY", "")
	envDefault(&cfg.Lightsail.SecretAccessKey, "AWS_LIGHTSAIL_SECRET_KEY", "")

	if cfg.Lightsail.BlueprintID == "" {
		cfg.Lightsail.BlueprintID = "debian_12"
	}

	if cfg.Lightsail.DefaultRegion == "" {
		cfg.Lightsail.DefaultRegion = "us-west-2"
	}

	if len(cfg.Lightsail.Regions) == 0 {
		cfg.Lightsail.Regions = make([]string, 0, len(LightsailRegions))
		for region := range LightsailRegions {
			cfg.Lightsail.Regions = append(cfg.Lightsail.Regions, region)
		}

		slices.Sort(cfg.Lightsail.Regions)
	}

	if cfg.Lightsail.DefaultBundle == "" {
		cfg.Lightsail.DefaultBundle = "nano_3_0"
	}

	if len(cfg.Lightsail.Bundles) == 0 {
		cfg.Lightsail.Bundles = []string{"nano_3_0", "micro_3_0", "small_3_0"}
	}

	// Object storage.
	envDefault(&cfg.ObjectStorage.AccessKeyID, "MINIO_S3_ACCESS_KEY_ID", "")
	envDefault(&cfg.ObjectStorage.SecretAccessKey, "MINIO_S3_SECRET_KEY", "")

	if cfg.ObjectStorage.EndpointTemplate == "" {
		cfg.ObjectStorage.EndpointTemplate = "{region}.your-objectstorage.com"
	}

	if cfg.ObjectStorage.UseSSL == nil {
		cfg.ObjectStorage.UseSSL = boolPtr(true)
	}

	if cfg.ObjectStorage.DefaultRegion == "" {
		cfg.ObjectStorage.DefaultRegion = "fsn1"
	}

	if len(cfg.ObjectStorage.Regions) == 0 {
		cfg.ObjectStorage.Regions = []string{"fsn1", "nbg1", "hel1"}
	}

	if cfg.ObjectStorage.SuffixLength == 0 {
		cfg.ObjectStorage.SuffixLength = 4
	}

	// AWS organization.
	envDefault(&cfg.AWS.AccessKeyID, "AWS_GLUEOPS_ROCKS_ORG_ACCESS_KEY", "")
	envDefault(&cfg.AWS.SecretAccessKey, "AWS_GLUEOPS_ROCKS_ORG_SECRET_KEY", "")

	if cfg.AWS.Region == "" {
		cfg.AWS.Region = "us-east-1"
	}

	if cfg.AWS.AssumeRoleName == "" {
		cfg.AWS.AssumeRoleName = "OrganizationAccountAccessRole"
	}

	if cfg.AWS.SessionName == "" {
		cfg.AWS.SessionName = "SubAccountAccess"
	}

	if cfg.AWS.IAMUserName == "" {
		cfg.AWS.IAMUserName = "dev-deployment-svc-account"
	}

	if cfg.AWS.IAMRoleName == "" {
		cfg.AWS.IAMRoleName = "glueops-captain-role"
	}

	if cfg.AWS.PolicyARN == "" {
		cfg.AWS.PolicyARN = "arn:aws:iam::aws:policy/AdministratorAccess"
	}

	if cfg.AWS.CredentialRegion == "" {
		cfg.AWS.CredentialRegion = "us-west-2"
	}

	// Build metadata.
	envDefault(&cfg.Build.Version, "VERSION", "unknown")
	envDefault(&cfg.Build.CommitSHA, "COMMIT_SHA", "unknown")
	envDefault(&cfg.Build.BuildTimestamp, "BUILD_TIMESTAMP", "unknown")
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	// Validate database config.
	switch c.Database.Driver {
	case "sqlite":
		if c.Database.SQLite.Path == "" {
			return fmt.Errorf("sqlite.path is required when driver is sqlite")
		}
	case "postgres":
		if c.Database.Postgres.Host == "" {
			return fmt.Errorf("postgres.host is required when driver is postgres")
		}

		if c.Database.Postgres.Database == "" {
			return fmt.Errorf("postgres.database is required when driver is postgres")
		}
	default:
		return fmt.Errorf("unsupported database driver: %s", c.Database.Driver)
	}

	// Validate auth config.
	if c.Auth.Enabled {
		if len(c.Auth.APIKeys) == 0 {
			return fmt.Errorf("auth.api_keys is required when auth is enabled")
		}

		for i, key := range c.Auth.APIKeys {
			if key.Name == "" {
				return fmt.Errorf("auth.api_keys[%d]: name is required", i)
			}

			if !strings.HasPrefix(key.Hash, "$2") {
				return fmt.Errorf("auth.api_keys[%d]: hash must be a bcrypt hash", i)
			}
		}
	}

	if c.Server.RateLimit.RequestsPerMinute < 0 {
		return fmt.Errorf("server.rate_limit.requests_per_minute must be positive")
	}

	// Validate workflows.
	for name, wf := range c.GitHub.Workflows {
		if wf.Owner == "" || wf.Repo == "" || wf.WorkflowID == "" {
			return fmt.Errorf("github.workflows.%s: owner, repo and workflow_id are required", name)
		}
	}

	// Validate exit nodes.
	switch c.ExitNodes.Provider {
	case ProviderHetzner:
		if !slices.Contains(c.Hetzner.Locations, c.Hetzner.DefaultLocation) {
			return fmt.Errorf("hetzner.default_location %s is not in hetzner.locations", c.Hetzner.DefaultLocation)
		}

		if !slices.Contains(c.Hetzner.ServerTypes, c.Hetzner.DefaultServerType) {
			return fmt.Errorf("hetzner.default_server_type %s is not in hetzner.server_types", c.Hetzner.DefaultServerType)
		}
	case ProviderLightsail:
		for _, region := range c.Lightsail.Regions {
			if _, ok := LightsailRegions[region]; !ok {
				return fmt.Errorf("lightsail.regions: unsupported region %s", region)
			}
		}

		if !slices.Contains(c.Lightsail.Regions, c.Lightsail.DefaultRegion) {
			return fmt.Errorf("lightsail.default_region %s is not in lightsail.regions", c.Lightsail.DefaultRegion)
		}

		if !slices.Contains(c.Lightsail.Bundles, c.Lightsail.DefaultBundle) {
			return fmt.Errorf("lightsail.default_bundle %s is not in lightsail.bundles", c.Lightsail.DefaultBundle)
		}
	default:
		return fmt.Errorf("unsupported exit node provider: %s", c.ExitNodes.Provider)
	}

	if c.ExitNodes.DefaultCount < 1 || c.ExitNodes.DefaultCount > c.ExitNodes.MaxCount {
		return fmt.Errorf("exit_nodes.default_count must be between 1 and max_count (%d)", c.ExitNodes.MaxCount)
	}

	// Validate object storage.
	if !slices.Contains(c.ObjectStorage.Regions, c.ObjectStorage.DefaultRegion) {
		return fmt.Errorf("object_storage.default_region %s is not in object_storage.regions", c.ObjectStorage.DefaultRegion)
	}

	if !strings.Contains(c.ObjectStorage.EndpointTemplate, "{region}") {
		return fmt.Errorf("object_storage.endpoint_template must contain {region}")
	}

	if c.ObjectStorage.SuffixLength < 1 || c.ObjectStorage.SuffixLength > 32 {
		return fmt.Errorf("object_storage.suffix_length must be between 1 and 32")
	}

	return nil
}

// StackTracesExposed reports whether internal errors carry a traceback.
func (c *Config) StackTracesExposed() bool {
	return c.Server.ExposeStackTraces == nil || *c.Server.ExposeStackTraces
}

// ObjectStorageSSL reports whether the object storage endpoint uses TLS.
func (c *Config) ObjectStorageSSL() bool {
	return c.ObjectStorage.UseSSL == nil || *c.ObjectStorage.UseSSL
}

// ObjectStorageEndpoint returns the endpoint host for an object storage region.
func (c *Config) ObjectStorageEndpoint(region string) string {
	return strings.ReplaceAll(c.ObjectStorage.EndpointTemplate, "{region}", region)
}

// GetDSN returns the database connection string.
func (c *Config) GetDSN() string {
	switch c.Database.Driver {
	case "sqlite":
		return c.Database.SQLite.Path
	case "postgres":
		return fmt.Sprintf(
			"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			c.Database.Postgres.Host,
			c.Database.Postgres.Port,
			c.Database.Postgres.User,
			c.Database.Postgres.Password,
			c.Database.Postgres.Database,
			c.Database.Postgres.SSLMode,
		)
	default:
		return ""
	}
}

// String returns a sanitized string representation of the config (no secrets).
func (c *Config) String() string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("Server: listen=%s request_timeout=%s rate_limit=%t\n",
		c.Server.Listen, c.Server.RequestTimeout, c.Server.RateLimit.Enabled))
	sb.WriteString(fmt.Sprintf("Database: driver=%s\n", c.Database.Driver))
	sb.WriteString(fmt.Sprintf("Auth: enabled=%t api_keys=%d\n", c.Auth.Enabled, len(c.Auth.APIKeys)))
	sb.WriteString(fmt.Sprintf("GitHub: base_url=%s token_set=%t workflows=%d\n",
		c.GitHub.BaseURL, c.GitHub.Token != "", len(c.GitHub.Workflows)))
	sb.WriteString(fmt.Sprintf("ExitNodes: provider=%s default_count=%d max_count=%d image=%s\n",
		c.ExitNodes.Provider, c.ExitNodes.DefaultCount, c.ExitNodes.MaxCount, c.ExitNodes.ChiselImage))
	sb.WriteString(fmt.Sprintf("ObjectStorage: endpoint=%s default_region=%s credentials_set=%t\n",
		c.ObjectStorage.EndpointTemplate, c.ObjectStorage.DefaultRegion, c.ObjectStorage.AccessKeyID != ""))
	sb.WriteString(fmt.Sprintf("AWS: region=%s credentials_set=%t\n", c.AWS.Region, c.AWS.AccessKeyID != ""))

	return sb.String()
}
