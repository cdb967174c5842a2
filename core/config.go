package core

import (
	"fmt"
	"log"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type (
	ServerConfig struct {
		Host               string
		Address            string
		DebugHost          string
		ShutdownTimeout    time.Duration
		JWTExpirationDelta time.Duration
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
	}

	AttendanceConfig struct {
		Timezone            string
		LateGrace           time.Duration
		DefaultExpectedTime string
		Holidays            []string
		DefaultRange        string
		GridDays            int
		MaxGridDays         int
		LeaveNotifyEmails   []string
	}

	Config struct {
		AppName          string
		Env              string
		Build            string
		Debug            bool
		TestMode         bool
		WorkDir          string
		SecretKey        string
		RollbarToken     string
		SendgridApiKey   string
		DefaultFromEmail string
		StorageDriver    string
		Server           ServerConfig
		Database         DatabaseConfig
		Attendance       AttendanceConfig
	}
)

func (dbc DatabaseConfig) Address() string {
	return net.JoinHostPort(dbc.Host, strconv.Itoa(dbc.Port))
}

// Location returns the school's timezone. An empty or unknown name falls back to time.Local.
func (ac AttendanceConfig) Location() *time.Location {
	if ac.Timezone == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(ac.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}

func newViper(env string) *viper.Viper {
	v := viper.New()

	// defaults
	v.SetTypeByDefaultValue(true)
	v.SetDefault("appName", "Mahudhurio")
	v.SetDefault("build", "dev")
	v.SetDefault("debug", true)
	v.SetDefault("testMode", false)
	v.SetDefault("secretKey", "n7$k2-d0qa!x+4mw=zp&8rvc(u)e#f9l")
	v.SetDefault("defaultFromEmail", "noreply@localhost")
	v.SetDefault("rollbarToken", "")
	v.SetDefault("sendgridApiKey", "")
	v.SetDefault("storage.driver", "postgres")

	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.address", ":8000")
	v.SetDefault("server.debugHost", ":4000")
	v.SetDefault("server.shutdownTimeout", 5*time.Second)
	v.SetDefault("server.jwtExpirationDelta", 7*24*time.Hour)

	v.SetDefault("database.engine", "postgres")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.name", "mahudhurio")
	v.SetDefault("database.user", "mahudhurio")
	v.SetDefault("database.password", "mahudhurio")
	v.SetDefault("database.adminUser", "postgres")
	v.SetDefault("database.adminPassword", "postgres")
	v.SetDefault("database.disableTLS", true)

	v.SetDefault("attendance.timezone", "")
	v.SetDefault("attendance.lateGrace", 15*time.Minute)
	v.SetDefault("attendance.defaultExpectedTime", "08:00")
	v.SetDefault("attendance.holidays", []string{})
	v.SetDefault("attendance.defaultRange", "last7")
	v.SetDefault("attendance.gridDays", 7)
	v.SetDefault("attendance.maxGridDays", 366)
	v.SetDefault("attendance.leaveNotifyEmails", []string{})

	if env == "TEST" {
		v.SetDefault("testMode", true)
		v.SetDefault("storage.driver", "inmem")
	}

	v.SetEnvPrefix(env)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// NewConfig loads the configuration for the current ENV (DEV (local; default), TEST, QA, PROD).
// config/.env.<env> is loaded first if it exists.
func NewConfig() *Config {
	env := strings.ToUpper(os.Getenv("ENV"))
	if env == "" {
		env = "DEV"
	}

	wd := Getwd()
	dotEnvPath := filepath.Join(wd, "config", ".env."+strings.ToLower(env))
	if _, err := os.Stat(dotEnvPath); err == nil {
		if err := godotenv.Load(dotEnvPath); err != nil {
			log.Fatalf("config.godotenv(%s): %v", dotEnvPath, err)
		}
	} else if !os.IsNotExist(err) {
		log.Fatalf("config.os.Stat(%s): %v", dotEnvPath, err)
	}

	return configFromViper(newViper(env), env, wd)
}

func configFromViper(v *viper.Viper, env, wd string) *Config {
	return &Config{
		AppName:          v.GetString("appName"),
		Env:              env,
		Build:            v.GetString("build"),
		Debug:            v.GetBool("debug"),
		TestMode:         v.GetBool("testMode"),
		WorkDir:          wd,
		SecretKey:        v.GetString("secretKey"),
		RollbarToken:     v.GetString("rollbarToken"),
		SendgridApiKey:   v.GetString("sendgridApiKey"),
		DefaultFromEmail: v.GetString("defaultFromEmail"),
		StorageDriver:    strings.ToLower(v.GetString("storage.driver")),
		Server: ServerConfig{
			Host:               v.GetString("server.host"),
			Address:            v.GetString("server.address"),
			DebugHost:          v.GetString("server.debugHost"),
			ShutdownTimeout:    v.GetDuration("server.shutdownTimeout"),
			JWTExpirationDelta: v.GetDuration("server.jwtExpirationDelta"),
		},
		Database: DatabaseConfig{
			Engine:        v.GetString("database.engine"),
			Host:          v.GetString("database.host"),
			Port:          v.GetInt("database.port"),
			Name:          v.GetString("database.name"),
			User:          v.GetString("database.user"),
			Password:      v.GetString("database.password"),
			AdminUser:     v.GetString("database.adminUser"),
			AdminPassword: v.GetString("database.adminPassword"),
			DisableTLS:    v.GetBool("database.disableTLS"),
		},
		Attendance: AttendanceConfig{
			Timezone:            v.GetString("attendance.timezone"),
			LateGrace:           v.GetDuration("attendance.lateGrace"),
			DefaultExpectedTime: v.GetString("attendance.defaultExpectedTime"),
			Holidays:            v.GetStringSlice("attendance.holidays"),
			DefaultRange:        v.GetString("attendance.defaultRange"),
			GridDays:            v.GetInt("attendance.gridDays"),
			MaxGridDays:         v.GetInt("attendance.maxGridDays"),
			LeaveNotifyEmails:   v.GetStringSlice("attendance.leaveNotifyEmails"),
		},
	}
}

// NewTestConfig returns the TEST configuration without touching the filesystem.
func NewTestConfig() *Config {
	wd, _ := os.Getwd()
	return configFromViper(newViper("TEST"), "TEST", wd)
}

func (c *Config) String() string {
	return fmt.Sprintf("%s (env=%s, build=%s, debug=%t)", c.AppName, c.Env, c.Build, c.Debug)
}
