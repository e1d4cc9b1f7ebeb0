package transport

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/pitabwire/quotecfg/internal/service"
)

func handleAddRule(svc *service.ConfigService, b *binder) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		expected, err := parseIfMatch(r)
		if err != nil {
			WriteErrorCtx(r.Context(), w, err)
			return
		}
		var req ruleRequest
		if err := b.bind(r, "addRule", &req); err != nil {
			WriteErrorCtx(r.Context(), w, err)
			return
		}

		cfg, rule, err := svc.AddRule(r.Context(), chi.URLParam(r, "configId"), expected, req.toRule())
		if err != nil {
			WriteErrorCtx(r.Context(), w, err)
			return
		}
		w.Header().Set("Location", "/api/v1/configs/"+cfg.ID+"/rules/"+rule.ID)
		WriteConfig(w, http.StatusCreated, cfg)
	}
}

func handleUpdateRule(svc *service.ConfigService, b *binder) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		expected, err := parseIfMatch(r)
		if err != nil {
			WriteErrorCtx(r.Context(), w, err)
			return
		}
		var req rulePatchRequest
		if err := b.bind(r, "updateRule", &req); err != nil {
			WriteErrorCtx(r.Context(), w, err)
			return
		}

		cfg, err := svc.UpdateRule(r.Context(), chi.URLParam(r, "configId"), expected,
			chi.URLParam(r, "ruleId"), req.toPatch())
		if err != nil {
			WriteErrorCtx(r.Context(), w, err)
			return
		}
		WriteConfig(w, http.StatusOK, cfg)
	}
}

func handleDeleteRule(svc *service.ConfigService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		expected, err := parseIfMatch(r)
		if err != nil {
			WriteErrorCtx(r.Context(), w, err)
			return
		}
		cfg, err := svc.DeleteRule(r.Context(), chi.URLParam(r, "configId"), expected, chi.URLParam(r, "ruleId"))
		if err != nil {
			WriteErrorCtx(r.Context(), w, err)
			return
		}
		WriteConfig(w, http.StatusOK, cfg)
	}
}

func handleToggleRule(svc *service.ConfigService, b *binder) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		expected, err := parseIfMatch(r)
		if err != nil {
			WriteErrorCtx(r.Context(), w, err)
			return
		}
		var req toggleRequest
		if err := b.bind(r, "toggleRule", &req); err != nil {
			WriteErrorCtx(r.Context(), w, err)
			return
		}

		cfg, err := svc.ToggleRule(r.Context(), chi.URLParam(r, "configId"), expected,
			chi.URLParam(r, "ruleId"), *req.Enabled)
		if err != nil {
			WriteErrorCtx(r.Context(), w, err)
			return
		}
		WriteConfig(w, http.StatusOK, cfg)
	}
}
