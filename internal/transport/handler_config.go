package transport

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/pitabwire/quotecfg/internal/service"
	"github.com/pitabwire/quotecfg/internal/store"
	"github.com/pitabwire/quotecfg/model"
)

// maxListLimit caps the page size of the configuration list.
const maxListLimit = 500

type listResponse[T any] struct {
	Items []T `json:"items"`
}

func handleListTemplates(svc *service.ConfigService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		WriteJSON(w, http.StatusOK, listResponse[model.TemplateSummary]{Items: svc.Templates()})
	}
}

func handleListConfigs(svc *service.ConfigService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit, err := queryInt(r, "limit", 0)
		if err != nil {
			WriteErrorCtx(r.Context(), w, err)
			return
		}
		offset, err := queryInt(r, "offset", 0)
		if err != nil {
			WriteErrorCtx(r.Context(), w, err)
			return
		}
		if limit > maxListLimit {
			limit = maxListLimit
		}

		items, err := svc.List(r.Context(), store.ListFilter{
			Category: r.URL.Query().Get("category"),
			Limit:    limit,
			Offset:   offset,
		})
		if err != nil {
			WriteErrorCtx(r.Context(), w, err)
			return
		}
		WriteJSON(w, http.StatusOK, listResponse[model.ConfigSummary]{Items: items})
	}
}

func handleCreateConfig(svc *service.ConfigService, b *binder) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createConfigRequest
		if err := b.bind(r, "createConfig", &req); err != nil {
			WriteErrorCtx(r.Context(), w, err)
			return
		}

		cfg, err := svc.Create(r.Context(), service.CreateInput{
			TemplateID:  req.TemplateID,
			Name:        req.Name,
			Category:    req.Category,
			Description: req.Description,
		})
		if err != nil {
			WriteErrorCtx(r.Context(), w, err)
			return
		}
		w.Header().Set("Location", "/api/v1/configs/"+cfg.ID)
		WriteConfig(w, http.StatusCreated, cfg)
	}
}

// handleImportConfig passes the raw file to the importer, which runs its own
// schema; the body is not bound to a DTO.
func handleImportConfig(svc *service.ConfigService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		data, err := readBody(r)
		if err != nil {
			WriteErrorCtx(r.Context(), w, err)
			return
		}
		cfg, err := svc.Import(r.Context(), data)
		if err != nil {
			WriteErrorCtx(r.Context(), w, err)
			return
		}
		WriteConfig(w, http.StatusOK, cfg)
	}
}

func handleGetConfig(svc *service.ConfigService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cfg, err := svc.Get(r.Context(), chi.URLParam(r, "configId"))
		if err != nil {
			WriteErrorCtx(r.Context(), w, err)
			return
		}
		WriteConfig(w, http.StatusOK, cfg)
	}
}

func handleDeleteConfig(svc *service.ConfigService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := svc.Delete(r.Context(), chi.URLParam(r, "configId")); err != nil {
			WriteErrorCtx(r.Context(), w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func handleCloneConfig(svc *service.ConfigService, b *binder) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req cloneConfigRequest
		if err := b.bind(r, "cloneConfig", &req); err != nil {
			WriteErrorCtx(r.Context(), w, err)
			return
		}
		cfg, err := svc.Clone(r.Context(), chi.URLParam(r, "configId"), req.Name)
		if err != nil {
			WriteErrorCtx(r.Context(), w, err)
			return
		}
		w.Header().Set("Location", "/api/v1/configs/"+cfg.ID)
		WriteConfig(w, http.StatusCreated, cfg)
	}
}

func handleExportConfig(svc *service.ConfigService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		data, cfg, err := svc.Export(r.Context(), chi.URLParam(r, "configId"))
		if err != nil {
			WriteErrorCtx(r.Context(), w, err)
			return
		}
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", cfg.ID+".json"))
		w.WriteHeader(http.StatusOK)
		w.Write(data)
	}
}

func handleValidateConfig(svc *service.ConfigService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		report, err := svc.Validate(r.Context(), chi.URLParam(r, "configId"))
		if err != nil {
			WriteErrorCtx(r.Context(), w, err)
			return
		}
		WriteJSON(w, http.StatusOK, report)
	}
}

func handleUpdateComponent(svc *service.ConfigService, b *binder) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		expected, err := parseIfMatch(r)
		if err != nil {
			WriteErrorCtx(r.Context(), w, err)
			return
		}
		var req componentPatchRequest
		if err := b.bind(r, "updateComponent", &req); err != nil {
			WriteErrorCtx(r.Context(), w, err)
			return
		}
		cfg, err := svc.UpdateComponent(r.Context(), chi.URLParam(r, "configId"), expected,
			chi.URLParam(r, "componentId"), req.toPatch())
		if err != nil {
			WriteErrorCtx(r.Context(), w, err)
			return
		}
		WriteConfig(w, http.StatusOK, cfg)
	}
}

func handleToggleComponent(svc *service.ConfigService, b *binder) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		expected, err := parseIfMatch(r)
		if err != nil {
			WriteErrorCtx(r.Context(), w, err)
			return
		}
		var req toggleRequest
		if err := b.bind(r, "toggleComponent", &req); err != nil {
			WriteErrorCtx(r.Context(), w, err)
			return
		}
		cfg, err := svc.ToggleComponent(r.Context(), chi.URLParam(r, "configId"), expected,
			chi.URLParam(r, "componentId"), *req.Enabled)
		if err != nil {
			WriteErrorCtx(r.Context(), w, err)
			return
		}
		WriteConfig(w, http.StatusOK, cfg)
	}
}

func handleEvaluate(svc *service.ConfigService, b *binder) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req evaluateRequest
		if err := b.bind(r, "evaluate", &req); err != nil {
			WriteErrorCtx(r.Context(), w, err)
			return
		}
		report, err := svc.Evaluate(r.Context(), chi.URLParam(r, "configId"), req.Selections)
		if err != nil {
			WriteErrorCtx(r.Context(), w, err)
			return
		}
		WriteJSON(w, http.StatusOK, report)
	}
}
