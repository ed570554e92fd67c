package main

import (
	"fmt"
	"html/template"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

	"wanemu/internal/auth"
	"wanemu/internal/config"
	"wanemu/internal/database"
	"wanemu/internal/handlers"
	"wanemu/internal/middleware"
	"wanemu/internal/services"
	"wanemu/internal/shaper"
)

// TemplateRegistry holds separate template instances for each page
type TemplateRegistry struct {
	templates map[string]*template.Template
	funcMap   template.FuncMap
}

func NewTemplateRegistry(funcMap template.FuncMap) *TemplateRegistry {
	return &TemplateRegistry{
		templates: make(map[string]*template.Template),
		funcMap:   funcMap,
	}
}

func (tr *TemplateRegistry) Add(name string, tmpl *template.Template) {
	tr.templates[name] = tmpl
}

func (tr *TemplateRegistry) ExecuteTemplate(w io.Writer, name string, data interface{}) error {
	// First try direct lookup in registry
	tmpl, ok := tr.templates[name]
	if ok {
		// For partial templates, the file might define a template without .html extension
		// Check if there's a defined template matching the name without .html
		if strings.HasSuffix(name, ".html") {
			baseName := strings.TrimSuffix(name, ".html")
			if lookup := tmpl.Lookup(baseName); lookup != nil {
				return lookup.Execute(w, data)
			}
		}
		// For page templates, execute the template named in the file
		return tmpl.ExecuteTemplate(w, name, data)
	}

	// For partial templates, the registry key might be different from the template name
	// Try to find a template that contains the requested define
	for _, t := range tr.templates {
		if lookup := t.Lookup(name); lookup != nil {
			return lookup.Execute(w, data)
		}
	}

	return fmt.Errorf("template %s not found", name)
}

func main() {
	// Load configuration
	cfg := config.Load()

	log := logrus.New()
	if level, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		log.SetLevel(level)
	}

	// Determine web directory
	webDir := getWebDir()
	log.WithField("dir", webDir).Info("using web directory")

	// Initialize database
	db, err := database.New(cfg.DataDir)
	if err != nil {
		log.WithError(err).Fatal("failed to initialize database")
	}
	defer db.Close()

	// Initialize services
	userService := auth.NewUserService(db)
	sessionManager := auth.NewSessionManager(cfg.SessionSecret, cfg.SessionMaxAge)
	netlinkService := services.NewNetlinkService()
	linkStore := services.NewLinkStore(cfg.ConfigDir)
	persistService := services.NewPersistService(cfg.ConfigDir)

	// Shaping stack. Everything that touches a device shares one lock
	// table and one runner.
	runner := shaper.NewExecRunner(cfg.CommandTimeout)
	locks := shaper.NewDeviceLocks()
	inventory := shaper.NewInventory(runner, log)
	bridges := shaper.NewBridgeManager(runner, locks, log)
	applier := shaper.NewApplier(runner, locks, log)
	qdiscs := shaper.NewQdiscReader(runner, log)

	// Ensure default admin user exists
	if err := userService.EnsureDefaultAdmin(cfg.DefaultAdmin, cfg.DefaultPassword); err != nil {
		log.WithError(err).Warn("failed to create default admin")
	}

	// Load templates
	templates, err := loadTemplates(filepath.Join(webDir, "templates"))
	if err != nil {
		log.WithError(err).Fatal("failed to load templates")
	}

	// Initialize handlers
	authHandler := handlers.NewAuthHandler(templates, sessionManager, userService, log)
	dashboardHandler := handlers.NewDashboardHandler(templates, sessionManager, linkStore, qdiscs, log)
	setupHandler := handlers.NewSetupHandler(templates, sessionManager, userService, linkStore, inventory, bridges, applier, cfg.MgmtInterface, log)
	linksHandler := handlers.NewLinksHandler(templates, sessionManager, userService, linkStore, applier, bridges, log)
	interfacesHandler := handlers.NewInterfacesHandler(templates, netlinkService, inventory, linkStore, log)
	settingsHandler := handlers.NewSettingsHandler(templates, userService, persistService, log)

	// Initialize middleware
	authMiddleware := middleware.NewAuthMiddleware(sessionManager, userService)

	// Setup router
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.RealIP)

	// Static files
	staticDir := filepath.Join(webDir, "static")
	r.Handle("/static/*", http.StripPrefix("/static/", http.FileServer(http.Dir(staticDir))))

	// Public routes
	r.Get("/login", authHandler.LoginPage)
	r.Post("/login", authHandler.Login)

	// Protected routes
	r.Group(func(r chi.Router) {
		r.Use(authMiddleware.RequireAuth)

		// Logout
		r.Post("/logout", authHandler.Logout)

		// Dashboard
		r.Get("/", dashboardHandler.Dashboard)
		r.Get("/api/status", dashboardHandler.Status)

		// Topology
		r.Get("/setup", setupHandler.SetupPage)
		r.Post("/setup", setupHandler.Apply)

		// WAN links
		r.Post("/links/{inner}/impair", linksHandler.Impair)
		r.Post("/links/{inner}/clear", linksHandler.Clear)
		r.Post("/reset", linksHandler.Reset)

		// Interfaces
		r.Get("/interfaces", interfacesHandler.List)
		r.Get("/interfaces/{name}", interfacesHandler.Detail)

		// Settings
		r.Get("/settings", settingsHandler.Settings)
		r.Post("/settings/password", settingsHandler.ChangePassword)
		r.Get("/settings/export", settingsHandler.ExportConfig)
		r.Post("/settings/import", settingsHandler.ImportConfig)
	})

	// Start server
	addr := fmt.Sprintf(":%d", cfg.Port)
	log.WithField("addr", addr).Info("starting WAN emulator")
	log.Infof("default credentials: %s / %s", cfg.DefaultAdmin, cfg.DefaultPassword)

	// Handle graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan
		log.Info("shutting down")
		os.Exit(0)
	}()

	if err := http.ListenAndServe(addr, r); err != nil {
		log.WithError(err).Fatal("failed to start server")
	}
}

func getWebDir() string {
	// Check for environment variable
	if dir := os.Getenv("WANEMU_WEB_DIR"); dir != "" {
		return dir
	}

	// Try relative paths from executable
	exe, err := os.Executable()
	if err == nil {
		exeDir := filepath.Dir(exe)

		// Check ../web (for build directory structure)
		candidate := filepath.Join(exeDir, "..", "web")
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}

		// Check ../../web (for cmd/server structure)
		candidate = filepath.Join(exeDir, "..", "..", "web")
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	}

	// Try current working directory
	if cwd, err := os.Getwd(); err == nil {
		candidate := filepath.Join(cwd, "web")
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	}

	// Default fallback
	return "./web"
}

func loadTemplates(templatesDir string) (*TemplateRegistry, error) {
	funcMap := template.FuncMap{
		"formatBytes": formatBytes,
		"dict":        dict,
		"ms":          func(v *float64) string { return fmtPtr(v, "%.1f ms") },
		"pct":         func(v *float64) string { return fmtPtr(v, "%.3f%%") },
		"mbit":        func(v *float64) string { return fmtPtr(v, "%.3f Mbit/s") },
	}

	registry := NewTemplateRegistry(funcMap)

	layoutsDir := filepath.Join(templatesDir, "layouts")
	partialsDir := filepath.Join(templatesDir, "partials")
	pagesDir := filepath.Join(templatesDir, "pages")

	// Collect shared template files
	var sharedFiles []string

	layoutFiles, _ := filepath.Glob(filepath.Join(layoutsDir, "*.html"))
	sharedFiles = append(sharedFiles, layoutFiles...)

	partialFiles, _ := filepath.Glob(filepath.Join(partialsDir, "*.html"))
	sharedFiles = append(sharedFiles, partialFiles...)

	// Get page template files
	pageFiles, err := filepath.Glob(filepath.Join(pagesDir, "*.html"))
	if err != nil {
		return nil, err
	}

	// For each page, create a separate template that includes shared templates + that page
	for _, pageFile := range pageFiles {
		pageName := filepath.Base(pageFile)

		// Create a new template set for this page
		tmpl := template.New(pageName).Funcs(funcMap)

		// Parse shared templates
		for _, sharedFile := range sharedFiles {
			content, err := os.ReadFile(sharedFile)
			if err != nil {
				return nil, fmt.Errorf("failed to read %s: %w", sharedFile, err)
			}
			_, err = tmpl.Parse(string(content))
			if err != nil {
				return nil, fmt.Errorf("failed to parse %s: %w", sharedFile, err)
			}
		}

		// Parse the page template
		pageContent, err := os.ReadFile(pageFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", pageFile, err)
		}
		_, err = tmpl.Parse(string(pageContent))
		if err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", pageFile, err)
		}

		registry.Add(pageName, tmpl)
	}

	// Also add partial templates standalone for HTMX partial responses
	for _, partialFile := range partialFiles {
		partialName := filepath.Base(partialFile)

		tmpl := template.New(partialName).Funcs(funcMap)

		// Parse all partials (they may reference each other)
		for _, pf := range partialFiles {
			content, err := os.ReadFile(pf)
			if err != nil {
				return nil, fmt.Errorf("failed to read %s: %w", pf, err)
			}
			_, err = tmpl.Parse(string(content))
			if err != nil {
				return nil, fmt.Errorf("failed to parse %s: %w", pf, err)
			}
		}

		registry.Add(partialName, tmpl)
	}

	return registry, nil
}

func fmtPtr(v *float64, format string) string {
	if v == nil {
		return "—"
	}
	return fmt.Sprintf(format, *v)
}

func formatBytes(bytes uint64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := uint64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %s", float64(bytes)/float64(div), []string{"KB", "MB", "GB", "TB"}[exp])
}

func dict(values ...interface{}) map[string]interface{} {
	if len(values)%2 != 0 {
		return nil
	}
	d := make(map[string]interface{}, len(values)/2)
	for i := 0; i < len(values); i += 2 {
		key, ok := values[i].(string)
		if !ok {
			return nil
		}
		d[key] = values[i+1]
	}
	return d
}
