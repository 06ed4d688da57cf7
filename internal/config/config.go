package config

import (
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Paths   PathsConfig   `yaml:"paths" mapstructure:"paths"`
	Store   StoreConfig   `yaml:"store" mapstructure:"store"`
	Harvest HarvestConfig `yaml:"harvest" mapstructure:"harvest"`
	Server  ServerConfig  `yaml:"server" mapstructure:"server"`
	Log     LogConfig     `yaml:"log" mapstructure:"log"`
}

// PathsConfig locates the on-disk artifacts of a harvest. Relative paths are
// resolved against Root.
type PathsConfig struct {
	Root      string `yaml:"root" mapstructure:"root"`
	Downloads string `yaml:"downloads" mapstructure:"downloads"`
	Output    string `yaml:"output" mapstructure:"output"`
	Log       string `yaml:"log" mapstructure:"log"`
	Queries   string `yaml:"queries" mapstructure:"queries"`
}

// Resolve returns p joined onto the root unless p is already absolute.
func (c PathsConfig) Resolve(p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	root := c.Root
	if root == "" {
		root = "."
	}
	return filepath.Join(root, p)
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// HarvestConfig holds the filtering rules and transport settings of a run.
type HarvestConfig struct {
	QDAFormats            []string          `yaml:"qda_formats" mapstructure:"qda_formats"`
	QualitativeFormats    []string          `yaml:"qualitative_formats" mapstructure:"qualitative_formats"`
	ExcludedResourceTypes []string          `yaml:"excluded_resource_types" mapstructure:"excluded_resource_types"`
	RelevanceKeywords     []string          `yaml:"relevance_keywords" mapstructure:"relevance_keywords"`
	FolderNames           map[string]string `yaml:"folder_names" mapstructure:"folder_names"`
	MaxFileSizeMB         int               `yaml:"max_file_size_mb" mapstructure:"max_file_size_mb"`
	Limit                 int               `yaml:"limit" mapstructure:"limit"`
	Retries               int               `yaml:"retries" mapstructure:"retries"`
	UserAgent             string            `yaml:"user_agent" mapstructure:"user_agent"`
	TimeoutSecs           int               `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	DownloadTimeoutSecs   int               `yaml:"download_timeout_secs" mapstructure:"download_timeout_secs"`
}

// SizeCapBytes converts the MiB cap into bytes. Zero means no cap.
func (h HarvestConfig) SizeCapBytes() int64 {
	if h.MaxFileSizeMB <= 0 {
		return 0
	}
	return int64(h.MaxFileSizeMB) * 1024 * 1024
}

// ServerConfig configures the read-only API server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
	File   string `yaml:"file" mapstructure:"file"`
}

// DefaultQDAFormats lists project and exchange formats of qualitative data
// analysis packages.
var DefaultQDAFormats = []string{
	".qdpx", ".qdc", ".nvp", ".nvpx", ".atlproj", ".atlcb", ".hpr7",
	".mx24", ".mx22", ".mx20", ".mx18", ".mex24", ".mex22", ".mqda",
	".qda", ".qdas", ".f4p",
}

// DefaultQualitativeFormats lists formats that commonly carry transcripts,
// field notes, recordings and coded exports.
var DefaultQualitativeFormats = []string{
	".txt", ".pdf", ".doc", ".docx", ".odt", ".rtf", ".md",
	".csv", ".tsv", ".xls", ".xlsx", ".ods",
	".mp3", ".wav", ".m4a", ".ogg", ".flac",
	".mp4", ".mov", ".avi", ".webm",
	".jpg", ".jpeg", ".png", ".tif", ".tiff",
	".xml", ".json", ".html", ".srt", ".vtt", ".zip",
}

// DefaultExcludedResourceTypes lists kind-of-data labels that describe
// attachments rather than data.
var DefaultExcludedResourceTypes = []string{
	"documentation", "survey instrument", "questionnaire", "codebook",
	"software", "code", "poster", "presentation", "other",
}

// DefaultRelevanceKeywords are matched against description and keywords of
// datasets that carry no QDA file.
var DefaultRelevanceKeywords = []string{
	"qualitative", "interview", "focus group", "ethnograph", "transcript",
	"thematic", "grounded theory", "discourse", "narrative", "oral history",
	"field notes", "fieldnotes", "case study", "refi-qda", "nvivo",
	"atlas.ti", "maxqda",
}

// DefaultFolderNames maps source keys to download folder labels.
var DefaultFolderNames = map[string]string{
	"qdr":         "qdr-syracuse",
	"borealis":    "borealis",
	"dataversenl": "dataverse-nl",
	"sciencespo":  "sciences-po",
	"rdg":         "recherche-data-gouv",
	"abacus":      "abacus-ubc",
	"jhu":         "jhu-archive",
	"cora":        "corardr",
	"ucla":        "ucla-dataverse",
	"drntu":       "dr-ntu",
	"goettingen":  "goettingen-research-online",
	"nie":         "nie-researchdata",
	"eciencia":    "edatos-madrono",
	"scielo":      "scielo-data",
	"figshare":    "figshare",
	"osf":         "osf",
	"fsd":         "fsd-finland",
	"ia":          "internet-archive",
	"loc":         "library-of-congress",
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("QDAH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("paths.root", ".")
	v.SetDefault("paths.downloads", "downloads")
	v.SetDefault("paths.output", "output")
	v.SetDefault("paths.log", "harvester.log")
	v.SetDefault("paths.queries", "queries.txt")
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "harvester.db")
	v.SetDefault("store.max_conns", 4)
	v.SetDefault("store.min_conns", 1)
	v.SetDefault("harvest.qda_formats", DefaultQDAFormats)
	v.SetDefault("harvest.qualitative_formats", DefaultQualitativeFormats)
	v.SetDefault("harvest.excluded_resource_types", DefaultExcludedResourceTypes)
	v.SetDefault("harvest.relevance_keywords", DefaultRelevanceKeywords)
	v.SetDefault("harvest.folder_names", DefaultFolderNames)
	v.SetDefault("harvest.max_file_size_mb", 100)
	v.SetDefault("harvest.limit", 0)
	v.SetDefault("harvest.retries", 1)
	v.SetDefault("harvest.user_agent", "qda-harvester/1.0")
	v.SetDefault("harvest.timeout_secs", 30)
	v.SetDefault("harvest.download_timeout_secs", 120)
	v.SetDefault("server.port", 8080)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("log.file", "")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	if cfg.Log.File == "" {
		cfg.Log.File = cfg.Paths.Resolve(cfg.Paths.Log)
	}

	return &cfg, nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	if cfg.File != "" {
		zapCfg.OutputPaths = append(zapCfg.OutputPaths, cfg.File)
	}

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}

// Validate checks the settings required by the given command mode
// ("harvest", "serve" or "browse").
func (c *Config) Validate(mode string) error {
	var errs []string

	switch c.Store.Driver {
	case "sqlite", "postgres":
	default:
		errs = append(errs, "store.driver must be sqlite or postgres")
	}
	if c.Store.DatabaseURL == "" {
		errs = append(errs, "store.database_url is required")
	}

	switch mode {
	case "harvest":
		if len(c.Harvest.QDAFormats) == 0 {
			errs = append(errs, "harvest.qda_formats must not be empty")
		}
		if c.Harvest.MaxFileSizeMB < 0 {
			errs = append(errs, "harvest.max_file_size_mb must be >= 0")
		}
		if c.Harvest.Retries < 0 {
			errs = append(errs, "harvest.retries must be >= 0")
		}
		if c.Paths.Downloads == "" {
			errs = append(errs, "paths.downloads is required")
		}
	case "serve":
		if c.Server.Port <= 0 {
			errs = append(errs, "server.port must be > 0")
		}
	case "browse":
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(errs) > 0 {
		return eris.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
}
