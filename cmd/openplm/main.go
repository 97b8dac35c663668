package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"openplm/plmapp/auth"
	"openplm/plmapp/schema"
	"openplm/plmapp/services"
	"openplm/utils"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gopkg.in/yaml.v3"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

type openPlmEnv struct {
	DatabaseUri string
	ShareDir    string
	JwtSecret   string

	AdminUsername string
	AdminEmail    string
	AdminPassword string

	CompanyUsername string

	LifecycleConfig string
	AllowedOrigin   string
}

func loadEnvFile(envFile string) {
	slog.Info(fmt.Sprintf("loading env from file %v", envFile))
	err := godotenv.Load(envFile)
	if err != nil {
		log.Fatalf("error loading .env file '%v': %v", envFile, err)
	}
}

func loadEnv() openPlmEnv {
	missingEnvs := []string{}

	requiredEnv := func(key string) string {
		env := os.Getenv(key)
		if env == "" {
			missingEnvs = append(missingEnvs, key)
			slog.Error("missing required env variable", "key", key)
		}
		return env
	}

	env := openPlmEnv{
		DatabaseUri: requiredEnv("DATABASE_URI"),
		ShareDir:    requiredEnv("SHARE_DIR"),
		JwtSecret:   requiredEnv("JWT_SECRET"),

		AdminUsername: requiredEnv("ADMIN_USERNAME"),
		AdminEmail:    requiredEnv("ADMIN_MAIL"),
		AdminPassword: requiredEnv("ADMIN_PASSWORD"),

		CompanyUsername: utils.OptionalEnv("COMPANY_USERNAME"),

		LifecycleConfig: utils.OptionalEnv("LIFECYCLE_CONFIG"),
		AllowedOrigin:   utils.OptionalEnv("ALLOWED_ORIGIN"),
	}

	if len(missingEnvs) > 0 {
		log.Fatalf("The following required env vars are missing: %s", strings.Join(missingEnvs, ", "))
	}

	if env.CompanyUsername == "" {
		env.CompanyUsername = "company"
	}
	if env.AllowedOrigin == "" {
		env.AllowedOrigin = "*"
	}

	return env
}

func (env *openPlmEnv) postgresDsn() string {
	parts, err := url.Parse(env.DatabaseUri)
	if err != nil {
		log.Fatalf("error parsing db uri: %v", err)
	}
	pwd, _ := parts.User.Password()
	dbname := strings.TrimPrefix(parts.Path, "/")
	return fmt.Sprintf("host=%v user=%v password=%v dbname=%v port=%v", parts.Hostname(), parts.User.Username(), pwd, dbname, parts.Port())
}

func initLogging(logFile *os.File) {
	log.SetFlags(log.Lshortfile | log.Ltime | log.Ldate)
	log.SetOutput(io.MultiWriter(logFile, os.Stderr))
	slog.Info("logging initialized", "log_file", logFile.Name())
}

func initDb(dsn string) *gorm.DB {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		log.Fatalf("error opening database connection: %v", err)
	}

	err = db.AutoMigrate(
		&schema.State{}, &schema.Lifecycle{}, &schema.LifecycleState{},
		&schema.User{}, &schema.Group{}, &schema.UserGroup{},
		&schema.PlmObject{}, &schema.DocumentFile{}, &schema.Ecr{},
		&schema.RoleLink{}, &schema.ParentChildLink{}, &schema.DocumentPartLink{},
		&schema.RevisionLink{}, &schema.PromotionApproval{}, &schema.DelegationLink{},
		&schema.EcrObjectLink{}, &schema.History{}, &schema.StateHistory{},
	)
	if err != nil {
		log.Fatalf("error migrating db schema: %v", err)
	}

	return db
}

type lifecycleConfig struct {
	Lifecycles []struct {
		Name     string   `yaml:"name"`
		States   []string `yaml:"states"`
		Official string   `yaml:"official"`
	} `yaml:"lifecycles"`
}

func bootstrapLifecycles(db *gorm.DB, configPath string) {
	if err := schema.CreateCancelledLifecycle(db); err != nil {
		log.Fatalf("error creating cancelled lifecycle: %v", err)
	}

	if configPath != "" {
		data, err := os.ReadFile(configPath)
		if err != nil {
			log.Fatalf("error reading lifecycle config '%v': %v", configPath, err)
		}
		var config lifecycleConfig
		if err := yaml.Unmarshal(data, &config); err != nil {
			log.Fatalf("error parsing lifecycle config '%v': %v", configPath, err)
		}
		for _, lc := range config.Lifecycles {
			_, err := schema.LifecycleFromStates(lc.Name, lc.States, lc.Official, db)
			if err != nil && !errors.Is(err, schema.ErrLifecycleExists) {
				log.Fatalf("error creating lifecycle '%v': %v", lc.Name, err)
			}
		}
	}

	// Fall back to the stock lifecycles so that a fresh deployment can create
	// objects and change requests without a config file.
	if _, err := schema.GetDefaultLifecycle(db); errors.Is(err, schema.ErrLifecycleNotFound) {
		_, err := schema.LifecycleFromStates("standard", []string{"draft", "proposed", "official", "deprecated"}, "official", db)
		if err != nil {
			log.Fatalf("error creating default lifecycle: %v", err)
		}
		schema.ResetLifecycleCache()
	}
	if _, err := schema.GetEcrLifecycle(db); errors.Is(err, schema.ErrLifecycleNotFound) {
		_, err := schema.LifecycleFromStates("ecr", []string{"draft", "review", "closed"}, "closed", db)
		if err != nil {
			log.Fatalf("error creating ECR lifecycle: %v", err)
		}
		schema.ResetLifecycleCache()
	}
}

func bootstrapDefaultGroup(db *gorm.DB, adminUsername string) {
	var admin schema.User
	result := db.First(&admin, "username = ?", adminUsername)
	if result.Error != nil {
		log.Fatalf("error fetching admin user: %v", result.Error)
	}

	err := db.Transaction(func(txn *gorm.DB) error {
		var existing schema.Group
		result := txn.Limit(1).Find(&existing, "name = ?", "default")
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected != 0 {
			return nil
		}

		group := schema.Group{Id: uuid.New(), Name: "default", OwnerId: admin.Id}
		if result := txn.Create(&group); result.Error != nil {
			return result.Error
		}
		member := schema.UserGroup{UserId: admin.Id, GroupId: group.Id}
		if result := txn.Create(&member); result.Error != nil {
			return result.Error
		}
		return nil
	})
	if err != nil {
		log.Fatalf("error creating default group: %v", err)
	}
}

func main() {
	envFile := flag.String("env", "", "File to load env variables from. If not specified will just load them from the environment variables already defined.")
	port := flag.Int("port", 8000, "Port to run server on")

	flag.Parse()

	if *envFile != "" {
		loadEnvFile(*envFile)
	}
	env := loadEnv()

	err := os.MkdirAll(filepath.Join(env.ShareDir, "logs/"), 0777)
	if err != nil {
		log.Fatalf("error creating log dir: %v", err)
	}

	logFile, err := os.OpenFile(filepath.Join(env.ShareDir, "logs/openplm.log"), os.O_CREATE|os.O_APPEND|os.O_RDWR, 0666)
	if err != nil {
		log.Fatalf("error opening log file: %v", err)
	}
	defer logFile.Close()

	auditLog, err := os.OpenFile(filepath.Join(env.ShareDir, "logs/audit.log"), os.O_CREATE|os.O_APPEND|os.O_RDWR, 0666)
	if err != nil {
		log.Fatalf("error opening audit log file: %v", err)
	}
	defer auditLog.Close()

	initLogging(logFile)

	db := initDb(env.postgresDsn())

	bootstrapLifecycles(db, env.LifecycleConfig)

	identityProvider, err := auth.NewBasicIdentityProvider(
		db,
		auth.NewAuditLogger(auditLog),
		auth.BasicProviderArgs{
			Secret:          []byte(env.JwtSecret),
			AdminUsername:   env.AdminUsername,
			AdminEmail:      env.AdminEmail,
			AdminPassword:   env.AdminPassword,
			CompanyUsername: env.CompanyUsername,
		},
	)
	if err != nil {
		log.Fatalf("error creating identity provider: %v", err)
	}

	bootstrapDefaultGroup(db, env.AdminUsername)

	plm := services.NewPlm(db, identityProvider)

	r := chi.NewRouter()

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{env.AllowedOrigin},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		ExposedHeaders:   []string{"*"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Mount("/api/v1", plm.Routes())
	r.Handle("/metrics", promhttp.Handler())

	slog.Info("starting server", "port", *port)
	err = http.ListenAndServe(fmt.Sprintf(":%d", *port), r)
	if err != nil {
		log.Fatalf("listen and serve returned error: %v", err.Error())
	}
}
