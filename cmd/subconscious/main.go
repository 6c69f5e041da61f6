package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/ansrivas/fiberprometheus/v2"
	"github.com/fsnotify/fsnotify"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/joho/godotenv"

	"subconscious/internal/archive"
	"subconscious/internal/budget"
	"subconscious/internal/config"
	"subconscious/internal/database"
	"subconscious/internal/dispatch"
	"subconscious/internal/engine"
	"subconscious/internal/handlers"
	"subconscious/internal/jobs"
	"subconscious/internal/logging"
	"subconscious/internal/metrics"
	"subconscious/internal/models"
	"subconscious/internal/scorer"
	"subconscious/internal/store"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	// Structured logging (JSON in production, text in dev)
	logging.Init()

	log.Println("🚀 Starting Subconscious Engine...")

	// Load .env file (ignore error if file doesn't exist)
	if err := godotenv.Load(); err != nil {
		log.Printf("⚠️  No .env file found or error loading it: %v", err)
	}

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("❌ Invalid configuration: %v", err)
	}
	log.Printf("📋 Configuration loaded (Port: %s, DB: %s)", cfg.Port, cfg.DBPath)

	db, err := database.New(cfg.DBPath)
	if err != nil {
		log.Fatalf("❌ Failed to open database: %v", err)
	}
	defer db.Close()

	if err := db.Initialize(); err != nil {
		log.Fatalf("❌ Failed to initialize database: %v", err)
	}

	metrics.Init()

	// Stores
	thoughts := store.NewThoughtStore(db)
	archives := store.NewArchiveStore(db)
	profiles := store.NewProfileStore(db)

	// Model map, optionally from YAML with hot reload
	modelMap, err := config.LoadModelMap(cfg.ModelsFile)
	if err != nil {
		log.Printf("⚠️  Using default model map: %v", err)
		modelMap = config.DefaultModelMap()
	}

	// Scoring profile survives restarts through periodic checkpoints
	sc := loadScorer(profiles, modelMap, cfg)

	// Engine wiring
	bm := budget.NewManager(cfg.ContextBudgetTokens, cfg.SessionIdleExpiry)
	client := dispatch.NewClient(cfg.OllamaURL, cfg.DispatchTimeout, cfg.DispatchRate)
	archiver := archive.NewArchiver(thoughts, archives, sc, cfg.DailyPermanentQuota, cfg.ScratchRetention)
	incubator := archive.NewIncubator(thoughts, archives, sc, archiver, cfg.IncubationMaxDwell)
	eng := engine.New(cfg, thoughts, bm, client, sc, archiver, modelMap)

	ctx := context.Background()
	if !client.Available(ctx) {
		log.Printf("⚠️  Model backend at %s is unreachable; dispatches will retry", cfg.OllamaURL)
	}

	if err := eng.Start(ctx); err != nil {
		log.Fatalf("❌ Failed to start engine: %v", err)
	}

	// Maintenance jobs
	jobScheduler, err := jobs.NewScheduler(cfg, thoughts, profiles, sc, archiver, incubator)
	if err != nil {
		log.Fatalf("❌ Failed to create job scheduler: %v", err)
	}
	jobScheduler.Start()

	go watchModelsFile(cfg.ModelsFile, eng)

	// HTTP surface
	app := fiber.New(fiber.Config{
		AppName:      "Subconscious v1.0",
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	})

	app.Use(recover.New())

	prometheus := fiberprometheus.New("subconscious")
	prometheus.RegisterAt(app, "/metrics")
	app.Use(prometheus.Middleware)
	log.Println("📊 Prometheus metrics endpoint enabled at /metrics")

	thoughtHandler := handlers.NewThoughtHandler(eng)
	statusHandler := handlers.NewStatusHandler(eng, client)

	app.Get("/health", statusHandler.Health)
	app.Get("/api/status", statusHandler.Status)

	api := app.Group("/api/thoughts")
	api.Post("/", thoughtHandler.Submit)
	api.Get("/:id", thoughtHandler.Get)
	api.Delete("/:id", thoughtHandler.Cancel)
	api.Post("/:id/usage", thoughtHandler.RecordUsage)

	// Graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		log.Println("\n🛑 Shutting down server...")

		if err := jobScheduler.Stop(); err != nil {
			log.Printf("⚠️ Error stopping job scheduler: %v", err)
		}
		eng.Stop()

		// Last checkpoint so learned weights survive the restart
		if err := profiles.Save(sc.Snapshot()); err != nil {
			log.Printf("⚠️ Final profile checkpoint failed: %v", err)
		}

		if err := app.Shutdown(); err != nil {
			log.Printf("⚠️ Error shutting down server: %v", err)
		}
	}()

	if err := app.Listen(":" + cfg.Port); err != nil {
		log.Fatalf("❌ Failed to start server: %v", err)
	}
}

// loadScorer restores the checkpointed scoring profile, falling back to
// the defaults seeded with the model map's insight keywords.
func loadScorer(profiles *store.ProfileStore, modelMap *config.ModelMap, cfg *config.Config) *scorer.Scorer {
	profile, err := profiles.Load()
	if err != nil {
		log.Printf("📦 No stored scoring profile, starting fresh: %v", err)
		profile = models.DefaultScoringProfile(modelMap.InsightKeywords)
	} else {
		log.Printf("📦 Restored scoring profile v%d (%d keyword weights)",
			profile.Version, len(profile.KeywordWeights))
	}
	return scorer.New(profile, cfg.PermanentThreshold, cfg.IncubationMin)
}

// watchModelsFile hot-reloads the model map when the YAML file changes.
func watchModelsFile(path string, eng *engine.Engine) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		log.Printf("⚠️  Failed to create file watcher: %v", err)
		return
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		log.Printf("⚠️  Failed to get absolute path for %s: %v", path, err)
		watcher.Close()
		return
	}

	// Watch the directory containing the file (more reliable than watching the file directly)
	dir := filepath.Dir(absPath)
	filename := filepath.Base(absPath)

	if err := watcher.Add(dir); err != nil {
		log.Printf("⚠️  Failed to watch directory %s: %v", dir, err)
		watcher.Close()
		return
	}

	log.Printf("👁️  Watching %s for changes (hot-reload enabled)", path)

	var debounceTimer *time.Timer
	debounceDuration := 500 * time.Millisecond

	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != filename {
				continue
			}
			if event.Op&fsnotify.Write == fsnotify.Write || event.Op&fsnotify.Create == fsnotify.Create {
				if debounceTimer != nil {
					debounceTimer.Stop()
				}
				debounceTimer = time.AfterFunc(debounceDuration, func() {
					mm, err := config.LoadModelMap(path)
					if err != nil {
						log.Printf("❌ Failed to reload model map: %v", err)
						return
					}
					eng.SetModelMap(mm)
				})
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			log.Printf("⚠️  File watcher error: %v", err)
		}
	}
}
