package services

import (
	"fmt"
	"net/http"
	"time"

	"openplm/plmapp/auth"
	"openplm/plmapp/controllers"
	"openplm/plmapp/metrics"
	"openplm/plmapp/schema"
	"openplm/utils"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ObjectService serves parts and documents. Lifecycle operations shared by
// both kinds live on the object routes; BOM routes reject documents and file
// routes reject parts.
type ObjectService struct {
	db       *gorm.DB
	userAuth auth.IdentityProvider
}

func (s *ObjectService) Routes() chi.Router {
	r := chi.NewRouter()

	r.Use(s.userAuth.AuthMiddleware()...)

	r.With(auth.ContributorOnly()).Post("/create", s.CreateObject)
	r.Get("/list", s.List)

	r.Route("/{object_id}", func(r chi.Router) {
		r.Get("/", s.Info)
		r.Get("/history", s.History)
		r.Get("/state-at", s.StateAt)
		r.Get("/promotable", s.Promotable)
		r.Get("/revisions", s.Revisions)

		r.Post("/promote", s.Promote)
		r.Post("/demote", s.Demote)
		r.Post("/approve", s.ApprovePromotion)
		r.Delete("/approve", s.DiscardApprovals)
		r.Post("/cancel", s.Cancel)
		r.Post("/revise", s.Revise)
		r.Post("/clone", s.Clone)
		r.Post("/publish", s.Publish)
		r.Delete("/publish", s.Unpublish)

		r.Post("/owner/{user_id}", s.SetOwner)
		r.Post("/notified/{user_id}", s.AddNotified)
		r.Delete("/notified/{user_id}", s.RemoveNotified)
		r.Post("/reader/{user_id}", s.AddReader)
		r.Post("/signer/{user_id}/{level}", s.SetSigner)
		r.Delete("/signer/{user_id}/{level}", s.RemoveSigner)

		r.Route("/children", func(r chi.Router) {
			r.Get("/", s.Children)
			r.Post("/{child_id}", s.AddChild)
			r.Put("/{child_id}", s.ModifyChild)
			r.Delete("/{child_id}", s.DeleteChild)
		})
		r.Get("/parents", s.Parents)

		r.Route("/documents", func(r chi.Router) {
			r.Get("/", s.AttachedDocuments)
			r.Post("/{document_id}", s.AttachDocument)
			r.Delete("/{document_id}", s.DetachDocument)
		})

		r.Route("/files", func(r chi.Router) {
			r.Get("/", s.Files)
			r.Post("/", s.AddFile)
			r.Post("/{file_id}/lock", s.LockFile)
			r.Delete("/{file_id}/lock", s.UnlockFile)
			r.Delete("/{file_id}", s.DeprecateFile)
		})
	})

	return r
}

func (s *ObjectService) controller(r *http.Request) (*controllers.PlmObjectController, error) {
	objectId, err := utils.URLParamUUID(r, "object_id")
	if err != nil {
		return nil, CodedError(err, http.StatusBadRequest)
	}
	user, err := auth.UserFromContext(r)
	if err != nil {
		return nil, CodedError(err, http.StatusInternalServerError)
	}
	ctrl, err := controllers.NewPlmObjectController(objectId, user, s.db)
	if err != nil {
		return nil, controllerError(err)
	}
	if err := ctrl.CheckReadable(); err != nil {
		return nil, controllerError(err)
	}
	return ctrl, nil
}

func (s *ObjectService) partController(r *http.Request) (*controllers.PartController, error) {
	objectId, err := utils.URLParamUUID(r, "object_id")
	if err != nil {
		return nil, CodedError(err, http.StatusBadRequest)
	}
	user, err := auth.UserFromContext(r)
	if err != nil {
		return nil, CodedError(err, http.StatusInternalServerError)
	}
	ctrl, err := controllers.NewPartController(objectId, user, s.db)
	if err != nil {
		return nil, controllerError(err)
	}
	if err := ctrl.CheckReadable(); err != nil {
		return nil, controllerError(err)
	}
	return ctrl, nil
}

func (s *ObjectService) documentController(r *http.Request) (*controllers.DocumentController, error) {
	objectId, err := utils.URLParamUUID(r, "object_id")
	if err != nil {
		return nil, CodedError(err, http.StatusBadRequest)
	}
	user, err := auth.UserFromContext(r)
	if err != nil {
		return nil, CodedError(err, http.StatusInternalServerError)
	}
	ctrl, err := controllers.NewDocumentController(objectId, user, s.db)
	if err != nil {
		return nil, controllerError(err)
	}
	if err := ctrl.CheckReadable(); err != nil {
		return nil, controllerError(err)
	}
	return ctrl, nil
}

type objectInfo struct {
	Id          uuid.UUID `json:"id"`
	Type        string    `json:"type"`
	Reference   string    `json:"reference"`
	Revision    string    `json:"revision"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	GroupId     uuid.UUID `json:"group_id"`
	OwnerId     uuid.UUID `json:"owner_id"`
	Lifecycle   string    `json:"lifecycle"`
	State       string    `json:"state"`
	Published   bool      `json:"published"`
	Cancelled   bool      `json:"cancelled"`
	Ctime       time.Time `json:"ctime"`
	Mtime       time.Time `json:"mtime"`
}

func objectInfoOf(object schema.PlmObject) objectInfo {
	return objectInfo{
		Id:          object.Id,
		Type:        object.Type,
		Reference:   object.Reference,
		Revision:    object.Revision,
		Name:        object.Name,
		Description: object.Description,
		GroupId:     object.GroupId,
		OwnerId:     object.OwnerId,
		Lifecycle:   object.LifecycleName,
		State:       object.StateName,
		Published:   object.Published,
		Cancelled:   object.LifecycleName == schema.CancelledLifecycleName,
		Ctime:       object.Ctime,
		Mtime:       object.Mtime,
	}
}

type createObjectRequest struct {
	Type        string    `json:"type"`
	Reference   string    `json:"reference"`
	Revision    string    `json:"revision"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	GroupId     uuid.UUID `json:"group_id"`
	Lifecycle   string    `json:"lifecycle"`
}

func (s *ObjectService) CreateObject(w http.ResponseWriter, r *http.Request) {
	var params createObjectRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}

	user, err := auth.UserFromContext(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	ctrl, err := controllers.Create(controllers.CreateParams{
		Type:        params.Type,
		Reference:   params.Reference,
		Revision:    params.Revision,
		Name:        params.Name,
		Description: params.Description,
		GroupId:     params.GroupId,
		Lifecycle:   params.Lifecycle,
	}, user, s.db)
	if err != nil {
		err = controllerError(err)
		http.Error(w, fmt.Sprintf("error creating object: %v", err), GetResponseCode(err))
		return
	}

	metrics.ObjectsCreated.WithLabelValues(params.Type).Inc()
	utils.WriteJsonResponse(w, objectInfoOf(ctrl.Object()))
}

func (s *ObjectService) List(w http.ResponseWriter, r *http.Request) {
	user, err := auth.UserFromContext(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	query := s.db.Order("type asc, reference asc, revision asc")
	if kind := r.URL.Query().Get("type"); kind != "" {
		query = query.Where("type = ?", kind)
	}
	if reference := r.URL.Query().Get("reference"); reference != "" {
		query = query.Where("reference = ?", reference)
	}

	var objects []schema.PlmObject
	result := query.Find(&objects)
	if result.Error != nil {
		http.Error(w, "error listing objects", http.StatusInternalServerError)
		return
	}

	infos := make([]objectInfo, 0, len(objects))
	for _, object := range objects {
		readable, err := controllers.Readable(s.db, object, user)
		if err != nil {
			http.Error(w, "error listing objects", http.StatusInternalServerError)
			return
		}
		if !readable {
			continue
		}
		infos = append(infos, objectInfoOf(object))
	}
	utils.WriteJsonResponse(w, infos)
}

func (s *ObjectService) Info(w http.ResponseWriter, r *http.Request) {
	ctrl, err := s.controller(r)
	if err != nil {
		http.Error(w, err.Error(), GetResponseCode(err))
		return
	}
	utils.WriteJsonResponse(w, objectInfoOf(ctrl.Object()))
}

type historyEntry struct {
	Action  string    `json:"action"`
	Details string    `json:"details"`
	UserId  uuid.UUID `json:"user_id"`
	Date    time.Time `json:"date"`
}

func (s *ObjectService) History(w http.ResponseWriter, r *http.Request) {
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

type stateAtResponse struct {
	State     string `json:"state"`
	Lifecycle string `json:"lifecycle"`
	Category  string `json:"category"`
}

// StateAt answers "what state was this object in at time t". The instant is
// passed as ?at=RFC3339.
func (s *ObjectService) StateAt(w http.ResponseWriter, r *http.Request) {
	ctrl, err := s.controller(r)
	if err != nil {
		http.Error(w, err.Error(), GetResponseCode(err))
		return
	}

	at := r.URL.Query().Get("at")
	if at == "" {
		http.Error(w, "missing 'at' query parameter", http.StatusBadRequest)
		return
	}
	t, err := time.Parse(time.RFC3339, at)
	if err != nil {
		http.Error(w, fmt.Sprintf("invalid 'at' value: %v", err), http.StatusBadRequest)
		return
	}

	entry, err := schema.StateAt(s.db, ctrl.Object().Id, t)
	if err != nil {
		err = controllerError(err)
		http.Error(w, err.Error(), GetResponseCode(err))
		return
	}

	utils.WriteJsonResponse(w, stateAtResponse{
		State:     entry.StateName,
		Lifecycle: entry.LifecycleName,
		Category:  entry.StateCategory,
	})
}

type promotableResponse struct {
	Promotable bool     `json:"promotable"`
	Reasons    []string `json:"reasons"`
}

func (s *ObjectService) Promotable(w http.ResponseWriter, r *http.Request) {
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

func (s *ObjectService) Promote(w http.ResponseWriter, r *http.Request) {
	ctrl, err := s.controller(r)
	if err != nil {
		http.Error(w, err.Error(), GetResponseCode(err))
		return
	}

	if err := ctrl.Promote(); err != nil {
		err = controllerError(err)
		http.Error(w, fmt.Sprintf("error promoting object: %v", err), GetResponseCode(err))
		return
	}
	metrics.Promotions.Inc()
	utils.WriteJsonResponse(w, objectInfoOf(ctrl.Object()))
}

func (s *ObjectService) Demote(w http.ResponseWriter, r *http.Request) {
	ctrl, err := s.controller(r)
	if err != nil {
		http.Error(w, err.Error(), GetResponseCode(err))
		return
	}

	if err := ctrl.Demote(); err != nil {
		err = controllerError(err)
		http.Error(w, fmt.Sprintf("error demoting object: %v", err), GetResponseCode(err))
		return
	}
	metrics.Demotions.Inc()
	utils.WriteJsonResponse(w, objectInfoOf(ctrl.Object()))
}

func (s *ObjectService) ApprovePromotion(w http.ResponseWriter, r *http.Request) {
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
	metrics.PromotionApprovals.Inc()
	utils.WriteJsonResponse(w, objectInfoOf(ctrl.Object()))
}

func (s *ObjectService) DiscardApprovals(w http.ResponseWriter, r *http.Request) {
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

func (s *ObjectService) Cancel(w http.ResponseWriter, r *http.Request) {
	ctrl, err := s.controller(r)
	if err != nil {
		http.Error(w, err.Error(), GetResponseCode(err))
		return
	}

	if err := ctrl.CheckCancel(); err != nil {
		err = controllerError(err)
		http.Error(w, fmt.Sprintf("object cannot be cancelled: %v", err), GetResponseCode(err))
		return
	}
	if err := ctrl.Cancel(); err != nil {
		err = controllerError(err)
		http.Error(w, fmt.Sprintf("error cancelling object: %v", err), GetResponseCode(err))
		return
	}
	metrics.Cancellations.Inc()
	utils.WriteJsonResponse(w, objectInfoOf(ctrl.Object()))
}

type reviseRequest struct {
	Revision string `json:"revision"`
}

func (s *ObjectService) Revise(w http.ResponseWriter, r *http.Request) {
	var params reviseRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}

	ctrl, err := s.controller(r)
	if err != nil {
		http.Error(w, err.Error(), GetResponseCode(err))
		return
	}

	revision := params.Revision
	if revision == "" {
		revision = ctrl.SuggestedNextRevision()
	}

	current := ctrl.Object()
	var object schema.PlmObject
	switch {
	case current.IsPart():
		partCtrl, err := controllers.NewPartController(current.Id, mustUser(r), s.db)
		if err == nil {
			var next *controllers.PartController
			next, err = partCtrl.Revise(revision, controllers.ReviseOptions{})
			if err == nil {
				object = next.Object()
			}
		}
		if err != nil {
			err = controllerError(err)
			http.Error(w, fmt.Sprintf("error revising object: %v", err), GetResponseCode(err))
			return
		}
	case current.IsDocument():
		docCtrl, err := controllers.NewDocumentController(current.Id, mustUser(r), s.db)
		if err == nil {
			var next *controllers.DocumentController
			next, err = docCtrl.Revise(revision)
			if err == nil {
				object = next.Object()
			}
		}
		if err != nil {
			err = controllerError(err)
			http.Error(w, fmt.Sprintf("error revising object: %v", err), GetResponseCode(err))
			return
		}
	default:
		http.Error(w, fmt.Sprintf("object type %v is not revisable", current.Type), http.StatusBadRequest)
		return
	}

	metrics.Revisions.Inc()
	utils.WriteJsonResponse(w, objectInfoOf(object))
}

func mustUser(r *http.Request) schema.User {
	user, _ := auth.UserFromContext(r)
	return user
}

type cloneRequest struct {
	Name string `json:"name"`
	// Absent id lists copy every alive link, empty lists copy none.
	ChildIds    []uuid.UUID `json:"child_ids"`
	DocumentIds []uuid.UUID `json:"document_ids"`
}

func (s *ObjectService) Clone(w http.ResponseWriter, r *http.Request) {
	var params cloneRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}

	ctrl, err := s.controller(r)
	if err != nil {
		http.Error(w, err.Error(), GetResponseCode(err))
		return
	}

	clone, err := ctrl.Clone(params.Name, controllers.CloneOptions{
		ChildLinks: params.ChildIds,
		Documents:  params.DocumentIds,
	})
	if err != nil {
		err = controllerError(err)
		http.Error(w, fmt.Sprintf("error cloning object: %v", err), GetResponseCode(err))
		return
	}

	metrics.ObjectsCreated.WithLabelValues(clone.Object().Type).Inc()
	utils.WriteJsonResponse(w, objectInfoOf(clone.Object()))
}

type revisionsResponse struct {
	Revisions []objectInfo `json:"revisions"`
	Revisable bool         `json:"revisable"`
	Suggested string       `json:"suggested"`
}

func (s *ObjectService) Revisions(w http.ResponseWriter, r *http.Request) {
	ctrl, err := s.controller(r)
	if err != nil {
		http.Error(w, err.Error(), GetResponseCode(err))
		return
	}

	revisions, err := ctrl.AllRevisions()
	if err != nil {
		err = controllerError(err)
		http.Error(w, err.Error(), GetResponseCode(err))
		return
	}
	revisable, err := ctrl.IsRevisable()
	if err != nil {
		err = controllerError(err)
		http.Error(w, err.Error(), GetResponseCode(err))
		return
	}

	infos := make([]objectInfo, 0, len(revisions))
	for _, rev := range revisions {
		infos = append(infos, objectInfoOf(rev))
	}
	utils.WriteJsonResponse(w, revisionsResponse{
		Revisions: infos,
		Revisable: revisable,
		Suggested: ctrl.SuggestedNextRevision(),
	})
}

func (s *ObjectService) Publish(w http.ResponseWriter, r *http.Request) {
	ctrl, err := s.controller(r)
	if err != nil {
		http.Error(w, err.Error(), GetResponseCode(err))
		return
	}

	if err := ctrl.Publish(); err != nil {
		err = controllerError(err)
		http.Error(w, fmt.Sprintf("error publishing object: %v", err), GetResponseCode(err))
		return
	}
	utils.WriteSuccess(w)
}

func (s *ObjectService) Unpublish(w http.ResponseWriter, r *http.Request) {
	ctrl, err := s.controller(r)
	if err != nil {
		http.Error(w, err.Error(), GetResponseCode(err))
		return
	}

	if err := ctrl.Unpublish(); err != nil {
		err = controllerError(err)
		http.Error(w, fmt.Sprintf("error unpublishing object: %v", err), GetResponseCode(err))
		return
	}
	utils.WriteSuccess(w)
}

func (s *ObjectService) targetUser(r *http.Request) (schema.User, error) {
	userId, err := utils.URLParamUUID(r, "user_id")
	if err != nil {
		return schema.User{}, CodedError(err, http.StatusBadRequest)
	}
	user, err := schema.GetUser(userId, s.db)
	if err != nil {
		return schema.User{}, controllerError(err)
	}
	return user, nil
}

func (s *ObjectService) roleEdit(w http.ResponseWriter, r *http.Request, op func(*controllers.PlmObjectController, schema.User) error) {
	ctrl, err := s.controller(r)
	if err != nil {
		http.Error(w, err.Error(), GetResponseCode(err))
		return
	}
	user, err := s.targetUser(r)
	if err != nil {
		http.Error(w, err.Error(), GetResponseCode(err))
		return
	}

	if err := op(ctrl, user); err != nil {
		err = controllerError(err)
		http.Error(w, err.Error(), GetResponseCode(err))
		return
	}
	utils.WriteSuccess(w)
}

func (s *ObjectService) SetOwner(w http.ResponseWriter, r *http.Request) {
	s.roleEdit(w, r, func(c *controllers.PlmObjectController, u schema.User) error { return c.SetOwner(u) })
}

func (s *ObjectService) AddNotified(w http.ResponseWriter, r *http.Request) {
	s.roleEdit(w, r, func(c *controllers.PlmObjectController, u schema.User) error { return c.AddNotified(u) })
}

func (s *ObjectService) RemoveNotified(w http.ResponseWriter, r *http.Request) {
	s.roleEdit(w, r, func(c *controllers.PlmObjectController, u schema.User) error { return c.RemoveNotified(u) })
}

func (s *ObjectService) AddReader(w http.ResponseWriter, r *http.Request) {
	s.roleEdit(w, r, func(c *controllers.PlmObjectController, u schema.User) error { return c.AddReader(u) })
}

func (s *ObjectService) signerLevel(r *http.Request) (int, error) {
	level, err := utils.URLParamInt(r, "level")
	if err != nil {
		return 0, CodedError(err, http.StatusBadRequest)
	}
	return level, nil
}

func (s *ObjectService) SetSigner(w http.ResponseWriter, r *http.Request) {
	level, err := s.signerLevel(r)
	if err != nil {
		http.Error(w, err.Error(), GetResponseCode(err))
		return
	}
	s.roleEdit(w, r, func(c *controllers.PlmObjectController, u schema.User) error { return c.SetSigner(u, level) })
}

func (s *ObjectService) RemoveSigner(w http.ResponseWriter, r *http.Request) {
	level, err := s.signerLevel(r)
	if err != nil {
		http.Error(w, err.Error(), GetResponseCode(err))
		return
	}
	s.roleEdit(w, r, func(c *controllers.PlmObjectController, u schema.User) error { return c.RemoveSigner(u, level) })
}

type childInfo struct {
	LinkId   uuid.UUID `json:"link_id"`
	ChildId  uuid.UUID `json:"child_id"`
	Quantity float64   `json:"quantity"`
	Unit     string    `json:"unit"`
	Order    int       `json:"order"`
}

func (s *ObjectService) Children(w http.ResponseWriter, r *http.Request) {
	ctrl, err := s.partController(r)
	if err != nil {
		http.Error(w, err.Error(), GetResponseCode(err))
		return
	}

	var links []schema.ParentChildLink
	if at := r.URL.Query().Get("at"); at != "" {
		t, err := time.Parse(time.RFC3339, at)
		if err != nil {
			http.Error(w, fmt.Sprintf("invalid 'at' value: %v", err), http.StatusBadRequest)
			return
		}
		links, err = ctrl.ChildrenAt(t)
		if err != nil {
			err = controllerError(err)
			http.Error(w, err.Error(), GetResponseCode(err))
			return
		}
	} else {
		links, err = ctrl.Children()
		if err != nil {
			err = controllerError(err)
			http.Error(w, err.Error(), GetResponseCode(err))
			return
		}
	}

	infos := make([]childInfo, 0, len(links))
	for _, link := range links {
		infos = append(infos, childInfo{
			LinkId: link.Id, ChildId: link.ChildId,
			Quantity: link.Quantity, Unit: link.Unit, Order: link.Order,
		})
	}
	utils.WriteJsonResponse(w, infos)
}

func (s *ObjectService) Parents(w http.ResponseWriter, r *http.Request) {
	ctrl, err := s.partController(r)
	if err != nil {
		http.Error(w, err.Error(), GetResponseCode(err))
		return
	}

	links, err := ctrl.Parents()
	if err != nil {
		err = controllerError(err)
		http.Error(w, err.Error(), GetResponseCode(err))
		return
	}

	parentIds := make([]uuid.UUID, 0, len(links))
	for _, link := range links {
		parentIds = append(parentIds, link.ParentId)
	}
	utils.WriteJsonResponse(w, parentIds)
}

type childLinkRequest struct {
	Quantity float64 `json:"quantity"`
	Unit     string  `json:"unit"`
	Order    int     `json:"order"`
}

func (s *ObjectService) AddChild(w http.ResponseWriter, r *http.Request) {
	var params childLinkRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}

	ctrl, err := s.partController(r)
	if err != nil {
		http.Error(w, err.Error(), GetResponseCode(err))
		return
	}
	childId, err := utils.URLParamUUID(r, "child_id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := ctrl.AddChild(childId, params.Quantity, params.Unit, params.Order); err != nil {
		err = controllerError(err)
		http.Error(w, fmt.Sprintf("error adding child: %v", err), GetResponseCode(err))
		return
	}
	utils.WriteSuccess(w)
}

func (s *ObjectService) ModifyChild(w http.ResponseWriter, r *http.Request) {
	var params childLinkRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}

	ctrl, err := s.partController(r)
	if err != nil {
		http.Error(w, err.Error(), GetResponseCode(err))
		return
	}
	childId, err := utils.URLParamUUID(r, "child_id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := ctrl.ModifyChild(childId, params.Quantity, params.Unit, params.Order); err != nil {
		err = controllerError(err)
		http.Error(w, fmt.Sprintf("error modifying child: %v", err), GetResponseCode(err))
		return
	}
	utils.WriteSuccess(w)
}

func (s *ObjectService) DeleteChild(w http.ResponseWriter, r *http.Request) {
	ctrl, err := s.partController(r)
	if err != nil {
		http.Error(w, err.Error(), GetResponseCode(err))
		return
	}
	childId, err := utils.URLParamUUID(r, "child_id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := ctrl.DeleteChild(childId); err != nil {
		err = controllerError(err)
		http.Error(w, fmt.Sprintf("error removing child: %v", err), GetResponseCode(err))
		return
	}
	utils.WriteSuccess(w)
}

func (s *ObjectService) AttachedDocuments(w http.ResponseWriter, r *http.Request) {
	ctrl, err := s.partController(r)
	if err != nil {
		http.Error(w, err.Error(), GetResponseCode(err))
		return
	}

	links, err := ctrl.AttachedDocuments()
	if err != nil {
		err = controllerError(err)
		http.Error(w, err.Error(), GetResponseCode(err))
		return
	}

	documentIds := make([]uuid.UUID, 0, len(links))
	for _, link := range links {
		documentIds = append(documentIds, link.DocumentId)
	}
	utils.WriteJsonResponse(w, documentIds)
}

func (s *ObjectService) AttachDocument(w http.ResponseWriter, r *http.Request) {
	ctrl, err := s.partController(r)
	if err != nil {
		http.Error(w, err.Error(), GetResponseCode(err))
		return
	}
	documentId, err := utils.URLParamUUID(r, "document_id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := ctrl.AttachDocument(documentId); err != nil {
		err = controllerError(err)
		http.Error(w, fmt.Sprintf("error attaching document: %v", err), GetResponseCode(err))
		return
	}
	utils.WriteSuccess(w)
}

func (s *ObjectService) DetachDocument(w http.ResponseWriter, r *http.Request) {
	ctrl, err := s.partController(r)
	if err != nil {
		http.Error(w, err.Error(), GetResponseCode(err))
		return
	}
	documentId, err := utils.URLParamUUID(r, "document_id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := ctrl.DetachDocument(documentId); err != nil {
		err = controllerError(err)
		http.Error(w, fmt.Sprintf("error detaching document: %v", err), GetResponseCode(err))
		return
	}
	utils.WriteSuccess(w)
}

type fileInfo struct {
	Id       uuid.UUID  `json:"id"`
	Filename string     `json:"filename"`
	Size     int64      `json:"size"`
	Locked   bool       `json:"locked"`
	LockerId *uuid.UUID `json:"locker_id,omitempty"`
}

func (s *ObjectService) Files(w http.ResponseWriter, r *http.Request) {
	ctrl, err := s.documentController(r)
	if err != nil {
		http.Error(w, err.Error(), GetResponseCode(err))
		return
	}

	files, err := ctrl.Files()
	if err != nil {
		err = controllerError(err)
		http.Error(w, err.Error(), GetResponseCode(err))
		return
	}

	infos := make([]fileInfo, 0, len(files))
	for _, file := range files {
		infos = append(infos, fileInfo{
			Id: file.Id, Filename: file.Filename, Size: file.Size,
			Locked: file.Locked, LockerId: file.LockerId,
		})
	}
	utils.WriteJsonResponse(w, infos)
}

type addFileRequest struct {
	Filename string `json:"filename"`
	Size     int64  `json:"size"`
}

func (s *ObjectService) AddFile(w http.ResponseWriter, r *http.Request) {
	var params addFileRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}

	ctrl, err := s.documentController(r)
	if err != nil {
		http.Error(w, err.Error(), GetResponseCode(err))
		return
	}

	file, err := ctrl.AddFile(params.Filename, params.Size)
	if err != nil {
		err = controllerError(err)
		http.Error(w, fmt.Sprintf("error adding file: %v", err), GetResponseCode(err))
		return
	}
	utils.WriteJsonResponse(w, fileInfo{Id: file.Id, Filename: file.Filename, Size: file.Size})
}

func (s *ObjectService) fileOp(w http.ResponseWriter, r *http.Request, op func(*controllers.DocumentController, uuid.UUID) error) {
	ctrl, err := s.documentController(r)
	if err != nil {
		http.Error(w, err.Error(), GetResponseCode(err))
		return
	}
	fileId, err := utils.URLParamUUID(r, "file_id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := op(ctrl, fileId); err != nil {
		err = controllerError(err)
		http.Error(w, err.Error(), GetResponseCode(err))
		return
	}
	utils.WriteSuccess(w)
}

func (s *ObjectService) LockFile(w http.ResponseWriter, r *http.Request) {
	s.fileOp(w, r, func(c *controllers.DocumentController, id uuid.UUID) error { return c.LockFile(id) })
}

func (s *ObjectService) UnlockFile(w http.ResponseWriter, r *http.Request) {
	s.fileOp(w, r, func(c *controllers.DocumentController, id uuid.UUID) error { return c.UnlockFile(id) })
}

func (s *ObjectService) DeprecateFile(w http.ResponseWriter, r *http.Request) {
	s.fileOp(w, r, func(c *controllers.DocumentController, id uuid.UUID) error { return c.DeprecateFile(id) })
}
