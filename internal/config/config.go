package config

import (
	"fmt"

	"github.com/rpattn/shipflow/internal/db"
	"github.com/spf13/viper"
)

// Synonyms enumerates the accepted source column names per logical
// field, in priority order. Source files name columns inconsistently
// (`Weight` vs `weight_lb`), so the normalizer consults these lists
// instead of a fixed header contract.
type Synonyms struct {
	UniqueID      []string `mapstructure:"unique_id"`
	PackageID     []string `mapstructure:"package_id"`
	WeightLb      []string `mapstructure:"weight_lb"`
	WeightKg      []string `mapstructure:"weight_kg"`
	ShippingDate  []string `mapstructure:"shipping_date"`
	ProcessedDate []string `mapstructure:"processed_date"`
	Material      []string `mapstructure:"material"`
	Organization  []string `mapstructure:"organization"`
	Location      []string `mapstructure:"location"`
	Program       []string `mapstructure:"program"`
}

// DefaultSynonyms covers the column spellings seen across known feeds.
func DefaultSynonyms() Synonyms {
	return Synonyms{
		UniqueID:      []string{"UniqueID", "unique_id", "uuid", "RecordID"},
		PackageID:     []string{"Barcode", "barcode", "PackageBarcode", "package_id"},
		WeightLb:      []string{"Weight", "weight", "weight_lb", "Weight (lbs)"},
		WeightKg:      []string{"weight_kg", "Weight (kg)"},
		ShippingDate:  []string{"ShippingDate", "shipping_date", "Date Shipped", "Date"},
		ProcessedDate: []string{"ProcessedDate", "processed_date", "Date Processed"},
		Material:      []string{"CurrentMaterial", "Material", "material_type", "Commodity"},
		Organization:  []string{"Retailer", "retailer", "Organization", "Company"},
		Location:      []string{"Store", "store", "Location", "Site"},
		Program:       []string{"Program", "program", "program_type"},
	}
}

// Pipeline holds ingestion tuning knobs.
type Pipeline struct {
	// ChunkSize bounds how often batch progress is persisted, not how
	// rows are processed.
	ChunkSize int
	Synonyms  Synonyms
}

// Config aggregates everything the server needs at startup.
type Config struct {
	Database db.Config
	Pipeline Pipeline
}

// Load reads config.yaml from configPath, falling back to defaults and
// environment overrides (DB_HOST, PIPELINE_CHUNK_SIZE, ...).
func Load(configPath string) (Config, error) {
	cfg := Config{
		Database: db.DefaultConfig(),
		Pipeline: Pipeline{
			ChunkSize: 25,
			Synonyms:  DefaultSynonyms(),
		},
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configPath)
	v.AutomaticEnv()

	v.BindEnv("database.host", "DB_HOST")
	v.BindEnv("database.port", "DB_PORT")
	v.BindEnv("database.user", "DB_USER")
	v.BindEnv("database.password", "DB_PASSWORD")
	v.BindEnv("database.dbname", "DB_NAME")
	v.BindEnv("database.sslmode", "DB_SSLMODE")
	v.BindEnv("pipeline.chunk_size", "PIPELINE_CHUNK_SIZE")

	if err := v.ReadInConfig(); err != nil {
		fmt.Println("No config.yaml found, using defaults and env vars")
	} else {
		fmt.Println("Loaded config.yaml")
	}

	if v.IsSet("database.host") {
		cfg.Database.Host = v.GetString("database.host")
	}
	if v.IsSet("database.port") {
		cfg.Database.Port = v.GetInt("database.port")
	}
	if v.IsSet("database.user") {
		cfg.Database.User = v.GetString("database.user")
	}
	if v.IsSet("database.password") {
		cfg.Database.Password = v.GetString("database.password")
	}
	if v.IsSet("database.dbname") {
		cfg.Database.DBName = v.GetString("database.dbname")
	}
	if v.IsSet("database.sslmode") {
		cfg.Database.SSLMode = v.GetString("database.sslmode")
	}
	if v.IsSet("pipeline.chunk_size") {
		cfg.Pipeline.ChunkSize = v.GetInt("pipeline.chunk_size")
	}
	if v.IsSet("pipeline.synonyms") {
		var synonyms Synonyms
		if err := v.UnmarshalKey("pipeline.synonyms", &synonyms); err != nil {
			return cfg, fmt.Errorf("failed to parse pipeline synonyms: %w", err)
		}
		cfg.Pipeline.Synonyms = mergeSynonyms(cfg.Pipeline.Synonyms, synonyms)
	}

	if cfg.Pipeline.ChunkSize <= 0 {
		cfg.Pipeline.ChunkSize = 25
	}

	return cfg, nil
}

func mergeSynonyms(base, override Synonyms) Synonyms {
	if len(override.UniqueID) > 0 {
		base.UniqueID = override.UniqueID
	}
	if len(override.PackageID) > 0 {
		base.PackageID = override.PackageID
	}
	if len(override.WeightLb) > 0 {
		base.WeightLb = override.WeightLb
	}
	if len(override.WeightKg) > 0 {
		base.WeightKg = override.WeightKg
	}
	if len(override.ShippingDate) > 0 {
		base.ShippingDate = override.ShippingDate
	}
	if len(override.ProcessedDate) > 0 {
		base.ProcessedDate = override.ProcessedDate
	}
	if len(override.Material) > 0 {
		base.Material = override.Material
	}
	if len(override.Organization) > 0 {
		base.Organization = override.Organization
	}
	if len(override.Location) > 0 {
		base.Location = override.Location
	}
	if len(override.Program) > 0 {
		base.Program = override.Program
	}
	return base
}
