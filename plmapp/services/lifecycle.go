package services

import (
	"fmt"
	"log/slog"
	"net/http"

	"openplm/plmapp/auth"
	"openplm/plmapp/schema"
	"openplm/utils"

	"github.com/go-chi/chi/v5"
	"gorm.io/gorm"
)

type LifecycleService struct {
	db       *gorm.DB
	userAuth auth.IdentityProvider
}

func (s *LifecycleService) Routes() chi.Router {
	r := chi.NewRouter()

	r.Use(s.userAuth.AuthMiddleware()...)

	r.Get("/list", s.List)
	r.Get("/{name}", s.States)
	r.With(auth.AdminOnly()).Post("/create", s.CreateLifecycle)

	return r
}

type createLifecycleRequest struct {
	Name     string   `json:"name"`
	States   []string `json:"states"`
	Official string   `json:"official"`
}

func (s *LifecycleService) CreateLifecycle(w http.ResponseWriter, r *http.Request) {
	var params createLifecycleRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}
	if params.Name == "" {
		http.Error(w, "lifecycle name must be specified", http.StatusBadRequest)
		return
	}
	if params.Name == schema.CancelledLifecycleName {
		http.Error(w, fmt.Sprintf("the name %v is reserved", params.Name), http.StatusBadRequest)
		return
	}

	_, err := schema.LifecycleFromStates(params.Name, params.States, params.Official, s.db)
	if err != nil {
		err = controllerError(err)
		http.Error(w, fmt.Sprintf("error creating lifecycle: %v", err), GetResponseCode(err))
		return
	}
	utils.WriteSuccess(w)
}

type lifecycleInfo struct {
	Name     string   `json:"name"`
	Type     string   `json:"type"`
	States   []string `json:"states"`
	Official string   `json:"official"`
}

func (s *LifecycleService) List(w http.ResponseWriter, r *http.Request) {
	var lifecycles []schema.Lifecycle
	result := s.db.Order("name asc").Find(&lifecycles)
	if result.Error != nil {
		slog.Error("sql error listing lifecycles", "error", result.Error)
		http.Error(w, "error listing lifecycles", http.StatusInternalServerError)
		return
	}

	infos := make([]lifecycleInfo, 0, len(lifecycles))
	for _, lc := range lifecycles {
		list, err := schema.StatesList(lc.Name, s.db)
		if err != nil {
			err = controllerError(err)
			http.Error(w, err.Error(), GetResponseCode(err))
			return
		}
		infos = append(infos, lifecycleInfo{
			Name:     lc.Name,
			Type:     lc.Type,
			States:   list.Names,
			Official: list.OfficialState,
		})
	}
	utils.WriteJsonResponse(w, infos)
}

func (s *LifecycleService) States(w http.ResponseWriter, r *http.Request) {
	name, err := utils.URLParam(r, "name")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	list, err := schema.StatesList(name, s.db)
	if err != nil {
		err = controllerError(err)
		http.Error(w, err.Error(), GetResponseCode(err))
		return
	}

	var lc schema.Lifecycle
	result := s.db.First(&lc, "name = ?", name)
	if result.Error != nil {
		slog.Error("sql error reading lifecycle", "lifecycle", name, "error", result.Error)
		http.Error(w, "error reading lifecycle", http.StatusInternalServerError)
		return
	}

	utils.WriteJsonResponse(w, lifecycleInfo{
		Name:     name,
		Type:     lc.Type,
		States:   list.Names,
		Official: list.OfficialState,
	})
}
