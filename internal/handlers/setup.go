package handlers

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/sirupsen/logrus"

	"wanemu/internal/auth"
	"wanemu/internal/middleware"
	"wanemu/internal/models"
	"wanemu/internal/services"
	"wanemu/internal/shaper"
)

type SetupHandler struct {
	templates   TemplateExecutor
	sessions    *auth.SessionManager
	userService *auth.UserService
	store       *services.LinkStore
	inventory   *shaper.Inventory
	bridges     *shaper.BridgeManager
	applier     *shaper.Applier
	mgmtPin     string
	log         *logrus.Logger
}

func NewSetupHandler(
	templates TemplateExecutor,
	sessions *auth.SessionManager,
	userService *auth.UserService,
	store *services.LinkStore,
	inventory *shaper.Inventory,
	bridges *shaper.BridgeManager,
	applier *shaper.Applier,
	mgmtPin string,
	log *logrus.Logger,
) *SetupHandler {
	return &SetupHandler{
		templates:   templates,
		sessions:    sessions,
		userService: userService,
		store:       store,
		inventory:   inventory,
		bridges:     bridges,
		applier:     applier,
		mgmtPin:     mgmtPin,
		log:         log,
	}
}

// managementInterface resolves which interface carries the operator's own
// connection: the recorded one wins, then the configured pin, then the
// first interface holding an IPv4 address. The result is recorded so the
// inference happens at most once.
func (h *SetupHandler) managementInterface(r *http.Request) string {
	mgmt, _, err := h.store.Load()
	if err != nil {
		h.log.WithError(err).Error("failed to load link registry")
	}
	if mgmt != "" {
		return mgmt
	}
	if h.mgmtPin != "" {
		mgmt = h.mgmtPin
	} else if inferred, ok := h.inventory.InferManagementInterface(r.Context()); ok {
		mgmt = inferred
	}
	if mgmt != "" {
		if err := h.store.SetManagement(mgmt); err != nil {
			h.log.WithError(err).Error("failed to record management interface")
		}
	}
	return mgmt
}

func (h *SetupHandler) SetupPage(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUser(r)
	mgmt := h.managementInterface(r)

	links, err := h.store.Links()
	if err != nil {
		h.log.WithError(err).Error("failed to load link registry")
	}

	data := map[string]interface{}{
		"Title":      "Topology Setup",
		"ActivePage": "setup",
		"User":       user,
		"Mgmt":       mgmt,
		"Links":      links,
		"Eligible":   h.inventory.EligibleInterfaces(r.Context(), mgmt),
		"Flashes":    h.sessions.PopFlashes(w, r),
	}

	if err := h.templates.ExecuteTemplate(w, "setup.html", data); err != nil {
		h.log.WithError(err).Error("template error")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
	}
}

// Apply tears down whatever topology is on record and rebuilds the
// requested one from scratch. Pairs come in as parallel inner[]/outer[]
// form values; blank pairs are skipped.
func (h *SetupHandler) Apply(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUser(r)

	if err := r.ParseForm(); err != nil {
		h.sessions.Flash(w, r, "error", "Invalid form data")
		http.Redirect(w, r, "/setup", http.StatusSeeOther)
		return
	}

	mgmt := h.managementInterface(r)

	inners := r.Form["inner"]
	outers := r.Form["outer"]
	if len(inners) != len(outers) {
		h.sessions.Flash(w, r, "error", "Mismatched interface pairs")
		http.Redirect(w, r, "/setup", http.StatusSeeOther)
		return
	}

	var pairs [][2]string
	seen := make(map[string]bool)
	for i := range inners {
		inner := strings.TrimSpace(inners[i])
		outer := strings.TrimSpace(outers[i])
		if inner == "" && outer == "" {
			continue
		}
		if inner == "" || outer == "" {
			h.sessions.Flash(w, r, "error", "Each WAN needs both an inner and an outer interface")
			http.Redirect(w, r, "/setup", http.StatusSeeOther)
			return
		}
		if inner == outer {
			h.sessions.Flash(w, r, "error", "Inner and outer interface must differ")
			http.Redirect(w, r, "/setup", http.StatusSeeOther)
			return
		}
		if inner == mgmt || outer == mgmt {
			h.sessions.Flash(w, r, "error", "The management interface cannot be enslaved")
			http.Redirect(w, r, "/setup", http.StatusSeeOther)
			return
		}
		if seen[inner] || seen[outer] {
			h.sessions.Flash(w, r, "error", "An interface can belong to only one WAN")
			http.Redirect(w, r, "/setup", http.StatusSeeOther)
			return
		}
		seen[inner], seen[outer] = true, true
		pairs = append(pairs, [2]string{inner, outer})
	}

	if len(pairs) == 0 {
		h.sessions.Flash(w, r, "error", "Select at least one interface pair")
		http.Redirect(w, r, "/setup", http.StatusSeeOther)
		return
	}

	// Old topology goes away first so its ports are free for reuse.
	old, err := h.store.Links()
	if err != nil {
		h.log.WithError(err).Error("failed to load link registry")
	}
	for _, link := range old {
		for _, port := range []string{link.Inner, link.Outer} {
			if err := h.applier.ClearImpairment(r.Context(), port); err != nil {
				h.log.WithField("device", port).WithError(err).Warn("failed to clear impairment during teardown")
			}
		}
		if err := h.bridges.DestroyBridge(r.Context(), link.Bridge); err != nil {
			h.log.WithField("bridge", link.Bridge).WithError(err).Warn("failed to destroy bridge during teardown")
		}
	}

	var links []models.WanLink
	for i, pair := range pairs {
		id := fmt.Sprintf("wan%d", i+1)
		bridge := shaper.BridgePrefix + id
		if err := h.bridges.ReconcileBridge(r.Context(), bridge, pair[0], pair[1]); err != nil {
			h.log.WithField("bridge", bridge).WithError(err).Error("bridge reconcile failed")
			h.sessions.Flash(w, r, "error", "Failed to build "+bridge+": "+err.Error())
			http.Redirect(w, r, "/setup", http.StatusSeeOther)
			return
		}
		links = append(links, models.WanLink{
			ID:     id,
			Name:   fmt.Sprintf("WAN %d", i+1),
			Bridge: bridge,
			Inner:  pair[0],
			Outer:  pair[1],
		})
	}

	if err := h.store.ReplaceAll(links); err != nil {
		h.log.WithError(err).Error("failed to save link registry")
		h.sessions.Flash(w, r, "error", "Topology built but saving the registry failed: "+err.Error())
		http.Redirect(w, r, "/setup", http.StatusSeeOther)
		return
	}

	h.userService.LogAction(&user.ID, "topology_apply", "", fmt.Sprintf("%d WAN link(s)", len(links)), getClientIP(r))
	h.sessions.Flash(w, r, "success", fmt.Sprintf("Topology applied: %d WAN link(s)", len(links)))
	http.Redirect(w, r, "/", http.StatusSeeOther)
}
