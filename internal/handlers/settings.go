package handlers

import (
	"net/http"

	"github.com/sirupsen/logrus"

	"wanemu/internal/auth"
	"wanemu/internal/middleware"
	"wanemu/internal/services"
)

type SettingsHandler struct {
	templates      TemplateExecutor
	userService    *auth.UserService
	persistService *services.PersistService
	log            *logrus.Logger
}

func NewSettingsHandler(templates TemplateExecutor, userService *auth.UserService, persistService *services.PersistService, log *logrus.Logger) *SettingsHandler {
	return &SettingsHandler{
		templates:      templates,
		userService:    userService,
		persistService: persistService,
		log:            log,
	}
}

func (h *SettingsHandler) Settings(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUser(r)

	auditLogs, err := h.userService.GetAuditLogs(50)
	if err != nil {
		h.log.WithError(err).Error("failed to get audit logs")
	}

	data := map[string]interface{}{
		"Title":      "Settings",
		"ActivePage": "settings",
		"User":       user,
		"AuditLogs":  auditLogs,
	}

	if err := h.templates.ExecuteTemplate(w, "settings.html", data); err != nil {
		h.log.WithError(err).Error("template error")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
	}
}

func (h *SettingsHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUser(r)

	if err := r.ParseForm(); err != nil {
		h.renderAlert(w, "error", "Invalid form data")
		return
	}

	currentPassword := r.FormValue("current_password")
	newPassword := r.FormValue("new_password")
	confirmPassword := r.FormValue("confirm_password")

	if currentPassword == "" || newPassword == "" {
		h.renderAlert(w, "error", "All fields are required")
		return
	}

	if newPassword != confirmPassword {
		h.renderAlert(w, "error", "New passwords do not match")
		return
	}

	if len(newPassword) < 6 {
		h.renderAlert(w, "error", "Password must be at least 6 characters")
		return
	}

	// Verify current password
	if _, err := h.userService.Authenticate(user.Username, currentPassword); err != nil {
		h.renderAlert(w, "error", "Current password is incorrect")
		return
	}

	if err := h.userService.SetPassword(user.ID, newPassword); err != nil {
		h.log.WithError(err).Error("failed to change password")
		h.renderAlert(w, "error", "Failed to change password")
		return
	}

	h.userService.LogAction(&user.ID, "password_change", "", "", getClientIP(r))
	h.renderAlert(w, "success", "Password changed successfully")
}

func (h *SettingsHandler) ExportConfig(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUser(r)

	archive, err := h.persistService.ExportConfig()
	if err != nil {
		h.log.WithError(err).Error("failed to export config")
		http.Error(w, "Failed to export configuration", http.StatusInternalServerError)
		return
	}

	h.userService.LogAction(&user.ID, "config_export", "", "", getClientIP(r))

	w.Header().Set("Content-Type", "application/gzip")
	w.Header().Set("Content-Disposition", "attachment; filename=wanemu-config.tar.gz")
	w.Write(archive)
}

func (h *SettingsHandler) ImportConfig(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUser(r)

	file, _, err := r.FormFile("config")
	if err != nil {
		h.renderAlert(w, "error", "Failed to read uploaded file")
		return
	}
	defer file.Close()

	if err := h.persistService.ImportConfig(file); err != nil {
		h.log.WithError(err).Error("failed to import config")
		h.renderAlert(w, "error", "Failed to import configuration: "+err.Error())
		return
	}

	h.userService.LogAction(&user.ID, "config_import", "", "", getClientIP(r))
	h.renderAlert(w, "success", "Configuration imported successfully. Restart the service to apply.")
}

func (h *SettingsHandler) renderAlert(w http.ResponseWriter, alertType, message string) {
	data := map[string]interface{}{
		"Type":    alertType,
		"Message": message,
	}
	h.templates.ExecuteTemplate(w, "alert.html", data)
}
