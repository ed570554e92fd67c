package handlers

import (
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"wanemu/internal/auth"
	"wanemu/internal/middleware"
	"wanemu/internal/models"
	"wanemu/internal/services"
	"wanemu/internal/shaper"
)

type DashboardHandler struct {
	templates TemplateExecutor
	sessions  *auth.SessionManager
	store     *services.LinkStore
	qdiscs    *shaper.QdiscReader
	log       *logrus.Logger
}

func NewDashboardHandler(templates TemplateExecutor, sessions *auth.SessionManager, store *services.LinkStore, qdiscs *shaper.QdiscReader, log *logrus.Logger) *DashboardHandler {
	return &DashboardHandler{
		templates: templates,
		sessions:  sessions,
		store:     store,
		qdiscs:    qdiscs,
		log:       log,
	}
}

type SystemInfo struct {
	Hostname      string
	KernelVersion string
	Uptime        string
}

// LinkStatus is one WAN link as shown on the dashboard: the registry
// entry, the kernel's current qdisc state read back live, and the health
// score derived from that state.
type LinkStatus struct {
	Link       models.WanLink
	State      models.ImpairmentState
	Score      int
	ScoreLabel string
	HasShaping bool
}

func (h *DashboardHandler) Dashboard(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUser(r)

	mgmt, links, err := h.store.Load()
	if err != nil {
		h.log.WithError(err).Error("failed to load link registry")
	}
	if len(links) == 0 {
		http.Redirect(w, r, "/setup", http.StatusSeeOther)
		return
	}

	data := map[string]interface{}{
		"Title":      "Dashboard",
		"ActivePage": "dashboard",
		"User":       user,
		"Mgmt":       mgmt,
		"Links":      h.linkStatuses(r, links),
		"SystemInfo": getSystemInfo(),
		"Flashes":    h.sessions.PopFlashes(w, r),
	}

	if err := h.templates.ExecuteTemplate(w, "dashboard.html", data); err != nil {
		h.log.WithError(err).Error("template error")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
	}
}

// Status renders just the link cards, for HTMX polling.
func (h *DashboardHandler) Status(w http.ResponseWriter, r *http.Request) {
	links, err := h.store.Links()
	if err != nil {
		h.log.WithError(err).Error("failed to load link registry")
	}

	data := map[string]interface{}{
		"Links": h.linkStatuses(r, links),
	}

	if err := h.templates.ExecuteTemplate(w, "link_status", data); err != nil {
		h.log.WithError(err).Error("template error")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
	}
}

func (h *DashboardHandler) linkStatuses(r *http.Request, links []models.WanLink) []LinkStatus {
	statuses := make([]LinkStatus, 0, len(links))
	for _, link := range links {
		state := h.qdiscs.ReadQdiscState(r.Context(), link.Inner)
		score, label := shaper.HealthScore(state)
		statuses = append(statuses, LinkStatus{
			Link:       link,
			State:      state,
			Score:      score,
			ScoreLabel: label,
			HasShaping: state.IsNetem() || state.RateMbit != nil,
		})
	}
	return statuses
}

func getSystemInfo() SystemInfo {
	info := SystemInfo{}

	if hostname, err := os.Hostname(); err == nil {
		info.Hostname = hostname
	}

	if data, err := os.ReadFile("/proc/version"); err == nil {
		parts := strings.Fields(string(data))
		if len(parts) >= 3 {
			info.KernelVersion = parts[2]
		}
	}

	if data, err := os.ReadFile("/proc/uptime"); err == nil {
		parts := strings.Fields(string(data))
		if len(parts) >= 1 {
			if uptime, err := strconv.ParseFloat(parts[0], 64); err == nil {
				info.Uptime = formatUptime(int64(uptime))
			}
		}
	}

	return info
}

func formatUptime(seconds int64) string {
	duration := time.Duration(seconds) * time.Second
	days := int(duration.Hours()) / 24
	hours := int(duration.Hours()) % 24
	minutes := int(duration.Minutes()) % 60

	if days > 0 {
		return strconv.Itoa(days) + "d " + strconv.Itoa(hours) + "h " + strconv.Itoa(minutes) + "m"
	}
	if hours > 0 {
		return strconv.Itoa(hours) + "h " + strconv.Itoa(minutes) + "m"
	}
	return strconv.Itoa(minutes) + "m"
}
