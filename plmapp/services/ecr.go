package services

import (
	"fmt"
	"net/http"
	"time"

	"openplm/plmapp/auth"
	"openplm/plmapp/controllers"
	"openplm/plmapp/schema"
	"openplm/utils"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type EcrService struct {
	db       *gorm.DB
	userAuth auth.IdentityProvider
}

func (s *EcrService) Routes() chi.Router {
	r := chi.NewRouter()

	r.Use(s.userAuth.AuthMiddleware()...)

	r.With(auth.ContributorOnly()).Post("/create", s.CreateEcr)
	r.Get("/list", s.List)

	r.Route("/{ecr_id}", func(r chi.Router) {
		r.Get("/", s.Info)
		r.Get("/history", s.History)
		r.Get("/promotable", s.Promotable)

		r.Post("/promote", s.Promote)
		r.Post("/demote", s.Demote)
		r.Post("/approve", s.ApprovePromotion)
		r.Delete("/approve", s.DiscardApprovals)
		r.Post("/cancel", s.Cancel)

		r.Route("/objects", func(r chi.Router) {
			r.Get("/", s.Attached)
			r.Post("/{object_id}", s.Attach)
			r.Delete("/{object_id}", s.Detach)
		})
	})

	return r
}

func (s *EcrService) controller(r *http.Request) (*controllers.EcrController, error) {
	ecrId, err := utils.URLParamUUID(r, "ecr_id")
	if err != nil {
		return nil, CodedError(err, http.StatusBadRequest)
	}
	user, err := auth.UserFromContext(r)
	if err != nil {
		return nil, CodedError(err, http.StatusInternalServerError)
	}
	ctrl, err := controllers.NewEcrController(ecrId, user, s.db)
	if err != nil {
		return nil, controllerError(err)
	}
	return ctrl, nil
}

type ecrInfo struct {
	Id          uuid.UUID `json:"id"`
	Reference   string    `json:"reference"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	OwnerId     uuid.UUID `json:"owner_id"`
	Lifecycle   string    `json:"lifecycle"`
	State       string    `json:"state"`
	Cancelled   bool      `json:"cancelled"`
	Ctime       time.Time `json:"ctime"`
	Mtime       time.Time `json:"mtime"`
}

func ecrInfoOf(ecr schema.Ecr) ecrInfo {
	return ecrInfo{
		Id:          ecr.Id,
		Reference:   ecr.Reference,
		Name:        ecr.Name,
		Description: ecr.Description,
		OwnerId:     ecr.OwnerId,
		Lifecycle:   ecr.LifecycleName,
		State:       ecr.StateName,
		Cancelled:   ecr.LifecycleName == schema.CancelledLifecycleName,
		Ctime:       ecr.Ctime,
		Mtime:       ecr.Mtime,
	}
}

type createEcrRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

func (s *EcrService) CreateEcr(w http.ResponseWriter, r *http.Request) {
	var params createEcrRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}

	user, err := auth.UserFromContext(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	ctrl, err := controllers.CreateEcr(params.Name, params.Description, user, s.db)
	if err != nil {
		err = controllerError(err)
		http.Error(w, fmt.Sprintf("error creating change request: %v", err), GetResponseCode(err))
		return
	}
	utils.WriteJsonResponse(w, ecrInfoOf(ctrl.Ecr()))
}

func (s *EcrService) List(w http.ResponseWriter, r *http.Request) {
	var ecrs []schema.Ecr
	result := s.db.Order("reference asc").Find(&ecrs)
	if result.Error != nil {
		http.Error(w, "error listing change requests", http.StatusInternalServerError)
		return
	}

	infos := make([]ecrInfo, 0, len(ecrs))
	for _, ecr := range ecrs {
		infos = append(infos, ecrInfoOf(ecr))
	}
	utils.WriteJsonResponse(w, infos)
}

func (s *EcrService) Info(w http.ResponseWriter, r *http.Request) {
	ctrl, err := s.controller(r)
	if err != nil {
		http.Error(w, err.Error(), GetResponseCode(err))
		return
	}
	utils.WriteJsonResponse(w, ecrInfoOf(ctrl.Ecr()))
}

func (s *EcrService) History(w http.ResponseWriter, r *http.Request) {
	ctrl, err := s.controller(r)
	if err != nil {
		http.Error(w, err.Error(), GetResponseCode(err))
		return
	}

	histories, err := ctrl.Histories()
	if err != nil {
		err = controllerError(err)
		http.Error(w, err.Error(), GetResponseCode(err))
		return
	}

	entries := make([]historyEntry, 0, len(histories))
	for _, h := range histories {
		entries = append(entries, historyEntry{Action: h.Action, Details: h.Details, UserId: h.UserId, Date: h.Date})
	}
	utils.WriteJsonResponse(w, entries)
}

func (s *EcrService) Promotable(w http.ResponseWriter, r *http.Request) {
	ctrl, err := s.controller(r)
	if err != nil {
		http.Error(w, err.Error(), GetResponseCode(err))
		return
	}

	promotable, reasons, err := ctrl.IsPromotable()
	if err != nil {
		err = controllerError(err)
		http.Error(w, err.Error(), GetResponseCode(err))
		return
	}
	if reasons == nil {
		reasons = []string{}
	}
	utils.WriteJsonResponse(w, promotableResponse{Promotable: promotable, Reasons: reasons})
}

func (s *EcrService) Promote(w http.ResponseWriter, r *http.Request) {
	ctrl, err := s.controller(r)
	if err != nil {
		http.Error(w, err.Error(), GetResponseCode(err))
		return
	}

	if err := ctrl.Promote(); err != nil {
		err = controllerError(err)
		http.Error(w, fmt.Sprintf("error promoting change request: %v", err), GetResponseCode(err))
		return
	}
	utils.WriteJsonResponse(w, ecrInfoOf(ctrl.Ecr()))
}

func (s *EcrService) Demote(w http.ResponseWriter, r *http.Request) {
	ctrl, err := s.controller(r)
	if err != nil {
		http.Error(w, err.Error(), GetResponseCode(err))
		return
	}

	if err := ctrl.Demote(); err != nil {
		err = controllerError(err)
		http.Error(w, fmt.Sprintf("error demoting change request: %v", err), GetResponseCode(err))
		return
	}
	utils.WriteJsonResponse(w, ecrInfoOf(ctrl.Ecr()))
}

func (s *EcrService) ApprovePromotion(w http.ResponseWriter, r *http.Request) {
	ctrl, err := s.controller(r)
	if err != nil {
		http.Error(w, err.Error(), GetResponseCode(err))
		return
	}

	if err := ctrl.ApprovePromotion(); err != nil {
		err = controllerError(err)
		http.Error(w, fmt.Sprintf("error approving promotion: %v", err), GetResponseCode(err))
		return
	}
	utils.WriteJsonResponse(w, ecrInfoOf(ctrl.Ecr()))
}

func (s *EcrService) DiscardApprovals(w http.ResponseWriter, r *http.Request) {
	ctrl, err := s.controller(r)
	if err != nil {
		http.Error(w, err.Error(), GetResponseCode(err))
		return
	}

	if err := ctrl.DiscardApprovals(); err != nil {
		err = controllerError(err)
		http.Error(w, fmt.Sprintf("error discarding approvals: %v", err), GetResponseCode(err))
		return
	}
	utils.WriteSuccess(w)
}

func (s *EcrService) Cancel(w http.ResponseWriter, r *http.Request) {
	ctrl, err := s.controller(r)
	if err != nil {
		http.Error(w, err.Error(), GetResponseCode(err))
		return
	}

	if err := ctrl.Cancel(); err != nil {
		err = controllerError(err)
		http.Error(w, fmt.Sprintf("error cancelling change request: %v", err), GetResponseCode(err))
		return
	}
	utils.WriteJsonResponse(w, ecrInfoOf(ctrl.Ecr()))
}

func (s *EcrService) Attached(w http.ResponseWriter, r *http.Request) {
	ctrl, err := s.controller(r)
	if err != nil {
		http.Error(w, err.Error(), GetResponseCode(err))
		return
	}

	links, err := ctrl.Attached()
	if err != nil {
		err = controllerError(err)
		http.Error(w, err.Error(), GetResponseCode(err))
		return
	}

	objectIds := make([]uuid.UUID, 0, len(links))
	for _, link := range links {
		objectIds = append(objectIds, link.ObjectId)
	}
	utils.WriteJsonResponse(w, objectIds)
}

func (s *EcrService) Attach(w http.ResponseWriter, r *http.Request) {
	ctrl, err := s.controller(r)
	if err != nil {
		http.Error(w, err.Error(), GetResponseCode(err))
		return
	}
	objectId, err := utils.URLParamUUID(r, "object_id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := ctrl.Attach(objectId); err != nil {
		err = controllerError(err)
		http.Error(w, fmt.Sprintf("error attaching object: %v", err), GetResponseCode(err))
		return
	}
	utils.WriteSuccess(w)
}

func (s *EcrService) Detach(w http.ResponseWriter, r *http.Request) {
	ctrl, err := s.controller(r)
	if err != nil {
		http.Error(w, err.Error(), GetResponseCode(err))
		return
	}
	objectId, err := utils.URLParamUUID(r, "object_id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := ctrl.Detach(objectId); err != nil {
		err = controllerError(err)
		http.Error(w, fmt.Sprintf("error detaching object: %v", err), GetResponseCode(err))
		return
	}
	utils.WriteSuccess(w)
}
