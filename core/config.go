package core

import (
	"log"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata" // the school's time zone must load on images without a zoneinfo database

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type (
	Config struct {
		Env          string
		Build        string
		Debug        bool
		TestMode     bool
		AppName      string
		RollbarToken string
		TimeZone     *time.Location

		Server   ServerConfig
		Database DatabaseConfig
		Batch    BatchConfig
		Email    EmailConfig
	}

	ServerConfig struct {
		Host            string
		Address         string
		DebugHost       string
		ShutdownTimeout time.Duration
	}

	DatabaseConfig struct {
		Engine        string
		Host          string
		Port          int
		Name          string
		User          string
		Password      string
		AdminUser     string
		AdminPassword string
		DisableTLS    bool
		InMemory      bool // dev only: no postgres, everything lives in process memory
	}

	BatchConfig struct {
		Workers          int
		StudentTimeout   time.Duration
		DailySchedule    string
		WeeklySchedule   string
		ReportRecipients []string
	}

	EmailConfig struct {
		DefaultFrom    string
		SendgridAPIKey string
	}
)

func (db DatabaseConfig) Address() string {
	return net.JoinHostPort(db.Host, strconv.Itoa(db.Port))
}

// NewConfig loads the configuration from the environment (and `config/.env.<env>` if present).
func NewConfig() *Config {
	v := viper.New()

	// defaults
	v.SetTypeByDefaultValue(true)
	v.SetDefault("debug", true)
	v.SetDefault("build", "develop")
	v.SetDefault("appName", "Kipindi")
	v.SetDefault("timeZone", "Africa/Kinshasa")
	v.SetDefault("rollbarToken", "")

	v.SetDefault("serverHost", "localhost")
	v.SetDefault("serverAddress", ":8080")
	v.SetDefault("serverDebugHost", ":4000")
	v.SetDefault("serverShutdownTimeout", 10*time.Second)

	v.SetDefault("dbEngine", "postgres")
	v.SetDefault("dbHost", "localhost")
	v.SetDefault("dbPort", 5432)
	v.SetDefault("dbName", "kipindi")
	v.SetDefault("dbUser", "kipindi")
	v.SetDefault("dbPassword", "")
	v.SetDefault("dbAdminUser", "postgres")
	v.SetDefault("dbAdminPassword", "")
	v.SetDefault("dbDisableTLS", true)
	v.SetDefault("dbInMemory", false)

	v.SetDefault("batchWorkers", 8)
	v.SetDefault("batchStudentTimeout", 30*time.Second)
	v.SetDefault("batchDailySchedule", "5 20 * * *")  // every day at 20:05, after the last hour is marked
	v.SetDefault("batchWeeklySchedule", "30 2 * * 0") // sundays at 02:30
	v.SetDefault("batchReportRecipients", "")

	v.SetDefault("defaultFromEmail", "noreply@localhost")
	v.SetDefault("sendgridApiKey", "")

	env := strings.ToUpper(os.Getenv("ENV")) // DEV (local; default), TEST, QA, PROD
	switch env {
	case "":
		env = "DEV"
	case "TEST":
		v.SetDefault("testMode", true)
	}
	v.SetEnvPrefix(env)

	// load .env if it exists (ignore if it does not)
	dotEnvPath := filepath.Join("config", ".env."+strings.ToLower(env))
	if _, err := os.Stat(dotEnvPath); err == nil {
		if err := godotenv.Load(dotEnvPath); err != nil {
			log.Fatalf("config.godotenv(%s): %v", dotEnvPath, err)
		}
	} else if !os.IsNotExist(err) {
		log.Fatalf("config.os.Stat(%s): %v", dotEnvPath, err)
	}
	v.AutomaticEnv()

	loc, err := time.LoadLocation(v.GetString("timeZone"))
	if err != nil {
		log.Fatalf("config.time.LoadLocation(%s): %v", v.GetString("timeZone"), err)
	}

	return &Config{
		Env:          env,
		Build:        v.GetString("build"),
		Debug:        v.GetBool("debug"),
		TestMode:     v.GetBool("testMode"),
		AppName:      v.GetString("appName"),
		RollbarToken: v.GetString("rollbarToken"),
		TimeZone:     loc,
		Server: ServerConfig{
			Host:            v.GetString("serverHost"),
			Address:         v.GetString("serverAddress"),
			DebugHost:       v.GetString("serverDebugHost"),
			ShutdownTimeout: v.GetDuration("serverShutdownTimeout"),
		},
		Database: DatabaseConfig{
			Engine:        v.GetString("dbEngine"),
			Host:          v.GetString("dbHost"),
			Port:          v.GetInt("dbPort"),
			Name:          v.GetString("dbName"),
			User:          v.GetString("dbUser"),
			Password:      v.GetString("dbPassword"),
			AdminUser:     v.GetString("dbAdminUser"),
			AdminPassword: v.GetString("dbAdminPassword"),
			DisableTLS:    v.GetBool("dbDisableTLS"),
			InMemory:      v.GetBool("dbInMemory"),
		},
		Batch: BatchConfig{
			Workers:          v.GetInt("batchWorkers"),
			StudentTimeout:   v.GetDuration("batchStudentTimeout"),
			DailySchedule:    v.GetString("batchDailySchedule"),
			WeeklySchedule:   v.GetString("batchWeeklySchedule"),
			ReportRecipients: splitList(v.GetString("batchReportRecipients")),
		},
		Email: EmailConfig{
			DefaultFrom:    v.GetString("defaultFromEmail"),
			SendgridAPIKey: v.GetString("sendgridApiKey"),
		},
	}
}

// splitList splits a comma separated env value, dropping blanks.
func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = CleanString(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
