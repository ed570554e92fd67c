package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"

	"wanemu/internal/middleware"
	"wanemu/internal/models"
	"wanemu/internal/services"
	"wanemu/internal/shaper"
)

type InterfacesHandler struct {
	templates      TemplateExecutor
	netlinkService *services.NetlinkService
	inventory      *shaper.Inventory
	store          *services.LinkStore
	log            *logrus.Logger
}

func NewInterfacesHandler(templates TemplateExecutor, netlinkService *services.NetlinkService, inventory *shaper.Inventory, store *services.LinkStore, log *logrus.Logger) *InterfacesHandler {
	return &InterfacesHandler{
		templates:      templates,
		netlinkService: netlinkService,
		inventory:      inventory,
		store:          store,
		log:            log,
	}
}

type InterfaceRow struct {
	models.InterfaceDetail
	Role  models.InterfaceRole
	Stats *models.InterfaceStats
}

func (h *InterfacesHandler) List(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUser(r)

	mgmt, _, err := h.store.Load()
	if err != nil {
		h.log.WithError(err).Error("failed to load link registry")
	}

	details, err := h.netlinkService.ListInterfaces()
	if err != nil {
		h.log.WithError(err).Error("failed to list interfaces")
		details = []models.InterfaceDetail{}
	}

	roles := make(map[string]models.InterfaceRole)
	for _, iface := range h.inventory.ListInterfaces(r.Context(), mgmt) {
		roles[iface.Name] = iface.Role
	}

	var rows []InterfaceRow
	for _, detail := range details {
		stats, _ := h.netlinkService.GetStats(detail.Name)
		rows = append(rows, InterfaceRow{
			InterfaceDetail: detail,
			Role:            roles[detail.Name],
			Stats:           stats,
		})
	}

	data := map[string]interface{}{
		"Title":      "Network Interfaces",
		"ActivePage": "interfaces",
		"User":       user,
		"Interfaces": rows,
	}

	if err := h.templates.ExecuteTemplate(w, "interfaces.html", data); err != nil {
		h.log.WithError(err).Error("template error")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
	}
}

func (h *InterfacesHandler) Detail(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUser(r)
	name := chi.URLParam(r, "name")

	iface, err := h.netlinkService.GetInterface(name)
	if err != nil {
		http.Error(w, "Interface not found", http.StatusNotFound)
		return
	}

	stats, _ := h.netlinkService.GetStats(name)

	data := map[string]interface{}{
		"Title":      "Interface: " + name,
		"ActivePage": "interfaces",
		"User":       user,
		"Interface":  iface,
		"Stats":      stats,
	}

	if err := h.templates.ExecuteTemplate(w, "interface_detail.html", data); err != nil {
		h.log.WithError(err).Error("template error")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
	}
}
