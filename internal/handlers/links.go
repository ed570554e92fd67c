package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"

	"wanemu/internal/auth"
	"wanemu/internal/middleware"
	"wanemu/internal/models"
	"wanemu/internal/services"
	"wanemu/internal/shaper"
)

type LinksHandler struct {
	templates   TemplateExecutor
	sessions    *auth.SessionManager
	userService *auth.UserService
	store       *services.LinkStore
	applier     *shaper.Applier
	bridges     *shaper.BridgeManager
	log         *logrus.Logger
}

func NewLinksHandler(
	templates TemplateExecutor,
	sessions *auth.SessionManager,
	userService *auth.UserService,
	store *services.LinkStore,
	applier *shaper.Applier,
	bridges *shaper.BridgeManager,
	log *logrus.Logger,
) *LinksHandler {
	return &LinksHandler{
		templates:   templates,
		sessions:    sessions,
		userService: userService,
		store:       store,
		applier:     applier,
		bridges:     bridges,
		log:         log,
	}
}

func (h *LinksHandler) Impair(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUser(r)
	inner := chi.URLParam(r, "inner")

	link, err := h.store.Find(inner)
	if err != nil {
		h.log.WithError(err).Error("failed to load link registry")
	}
	if link == nil {
		h.sessions.Flash(w, r, "error", "Unknown WAN link: "+inner)
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}

	if err := r.ParseForm(); err != nil {
		h.sessions.Flash(w, r, "error", "Invalid form data")
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}

	req := models.ImpairmentRequest{
		DelayMs:  parseFormFloat(r, "delay"),
		JitterMs: parseFormFloat(r, "jitter"),
		LossPct:  parseFormFloat(r, "loss"),
		RateMbit: parseFormFloat(r, "rate"),
	}

	if err := h.applier.ApplyImpairment(r.Context(), link.Inner, req); err != nil {
		h.log.WithField("device", link.Inner).WithError(err).Error("impairment apply failed")
		h.sessions.Flash(w, r, "error", impairErrorMessage(err))
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}

	if err := h.store.SetLastRequested(link.Inner, &req); err != nil {
		h.log.WithError(err).Error("failed to record requested impairment")
	}

	h.userService.LogAction(&user.ID, "impair_apply", link.Inner, describeRequest(req), getClientIP(r))
	h.sessions.Flash(w, r, "success", "Impairment applied to "+link.Name)
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (h *LinksHandler) Clear(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUser(r)
	inner := chi.URLParam(r, "inner")

	link, err := h.store.Find(inner)
	if err != nil {
		h.log.WithError(err).Error("failed to load link registry")
	}
	if link == nil {
		h.sessions.Flash(w, r, "error", "Unknown WAN link: "+inner)
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}

	if err := h.applier.ClearImpairment(r.Context(), link.Inner); err != nil {
		h.log.WithField("device", link.Inner).WithError(err).Error("impairment clear failed")
		h.sessions.Flash(w, r, "error", "Failed to clear "+link.Name+": "+err.Error())
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}

	if err := h.store.ClearLastRequested(link.Inner); err != nil {
		h.log.WithError(err).Error("failed to clear recorded impairment")
	}

	h.userService.LogAction(&user.ID, "impair_clear", link.Inner, "", getClientIP(r))
	h.sessions.Flash(w, r, "success", "Impairment cleared on "+link.Name)
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// Reset tears down every WAN link: impairments cleared, bridges deleted,
// registry emptied. The host is back to its unconfigured state.
func (h *LinksHandler) Reset(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUser(r)

	links, err := h.store.Links()
	if err != nil {
		h.log.WithError(err).Error("failed to load link registry")
	}

	for _, link := range links {
		for _, port := range []string{link.Inner, link.Outer} {
			if err := h.applier.ClearImpairment(r.Context(), port); err != nil {
				h.log.WithField("device", port).WithError(err).Warn("failed to clear impairment during reset")
			}
		}
		if err := h.bridges.DestroyBridge(r.Context(), link.Bridge); err != nil {
			h.log.WithField("bridge", link.Bridge).WithError(err).Warn("failed to destroy bridge during reset")
		}
	}

	if err := h.store.Reset(); err != nil {
		h.log.WithError(err).Error("failed to reset link registry")
		h.sessions.Flash(w, r, "error", "Failed to reset configuration: "+err.Error())
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}

	h.userService.LogAction(&user.ID, "config_reset", "", fmt.Sprintf("%d WAN link(s) removed", len(links)), getClientIP(r))
	h.sessions.Flash(w, r, "success", "Configuration reset")
	http.Redirect(w, r, "/setup", http.StatusSeeOther)
}

// parseFormFloat treats blank or unparseable values as zero, which the
// applier in turn treats as "not requested".
func parseFormFloat(r *http.Request, field string) float64 {
	raw := strings.TrimSpace(r.FormValue(field))
	if raw == "" {
		return 0
	}
	val, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0
	}
	return val
}

func impairErrorMessage(err error) string {
	var stageErr *shaper.StageError
	if errors.As(err, &stageErr) {
		switch stageErr.Stage {
		case shaper.StageNetem:
			return "Failed to apply delay/loss on " + stageErr.Device + ": " + stageErr.Reason
		case shaper.StageTbf:
			return "Delay/loss applied but the rate cap failed on " + stageErr.Device + ": " + stageErr.Reason
		}
	}
	return "Failed to apply impairment: " + err.Error()
}

func describeRequest(req models.ImpairmentRequest) string {
	var parts []string
	if req.DelayMs > 0 {
		parts = append(parts, fmt.Sprintf("delay %.1fms", req.DelayMs))
	}
	if req.JitterMs > 0 {
		parts = append(parts, fmt.Sprintf("jitter %.1fms", req.JitterMs))
	}
	if req.LossPct > 0 {
		parts = append(parts, fmt.Sprintf("loss %.3f%%", req.LossPct))
	}
	if req.RateMbit > 0 {
		parts = append(parts, fmt.Sprintf("rate %.3fmbit", req.RateMbit))
	}
	if len(parts) == 0 {
		return "no parameters (bare netem)"
	}
	return strings.Join(parts, ", ")
}
