package services

import (
	"fmt"
	"log/slog"
	"net/http"

	"openplm/plmapp/auth"
	"openplm/plmapp/schema"
	"openplm/utils"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type GroupService struct {
	db       *gorm.DB
	userAuth auth.IdentityProvider
}

func (s *GroupService) Routes() chi.Router {
	r := chi.NewRouter()

	r.Use(s.userAuth.AuthMiddleware()...)

	r.With(auth.ContributorOnly()).Post("/create", s.CreateGroup)
	r.Get("/list", s.List)

	r.Route("/{group_id}", func(r chi.Router) {
		r.Get("/users", s.GroupUsers)
		r.Post("/users/{user_id}", s.AddUser)
		r.Delete("/users/{user_id}", s.RemoveUser)
	})

	return r
}

type createGroupRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

type createGroupResponse struct {
	GroupId uuid.UUID `json:"group_id"`
}

func (s *GroupService) CreateGroup(w http.ResponseWriter, r *http.Request) {
	var params createGroupRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}
	if params.Name == "" {
		http.Error(w, "group name must be specified", http.StatusBadRequest)
		return
	}

	user, err := auth.UserFromContext(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	newGroup := schema.Group{Id: uuid.New(), Name: params.Name, Description: params.Description, OwnerId: user.Id}

	err = s.db.Transaction(func(txn *gorm.DB) error {
		var existing schema.Group
		result := txn.Limit(1).Find(&existing, "name = ?", params.Name)
		if result.Error != nil {
			slog.Error("sql error checking for duplicate group name", "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}
		if result.RowsAffected != 0 {
			return CodedError(fmt.Errorf("group with name %v already exists", params.Name), http.StatusConflict)
		}

		result = txn.Create(&newGroup)
		if result.Error != nil {
			slog.Error("sql error creating new group", "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}

		// the creator is the first member
		result = txn.Create(&schema.UserGroup{UserId: user.Id, GroupId: newGroup.Id})
		if result.Error != nil {
			slog.Error("sql error adding group creator", "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}
		return nil
	})
	if err != nil {
		http.Error(w, fmt.Sprintf("error creating group: %v", err), GetResponseCode(err))
		return
	}

	utils.WriteJsonResponse(w, createGroupResponse{GroupId: newGroup.Id})
}

type groupInfo struct {
	Id          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	OwnerId     uuid.UUID `json:"owner_id"`
}

func (s *GroupService) List(w http.ResponseWriter, r *http.Request) {
	var groups []schema.Group
	result := s.db.Order("name asc").Find(&groups)
	if result.Error != nil {
		slog.Error("sql error listing groups", "error", result.Error)
		http.Error(w, "error listing groups", http.StatusInternalServerError)
		return
	}

	infos := make([]groupInfo, 0, len(groups))
	for _, group := range groups {
		infos = append(infos, groupInfo{Id: group.Id, Name: group.Name, Description: group.Description, OwnerId: group.OwnerId})
	}
	utils.WriteJsonResponse(w, infos)
}

func (s *GroupService) GroupUsers(w http.ResponseWriter, r *http.Request) {
	groupId, err := utils.URLParamUUID(r, "group_id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	var users []schema.User
	result := s.db.
		Joins("JOIN user_groups ON user_groups.user_id = users.id").
		Where("user_groups.group_id = ?", groupId).
		Order("username asc").
		Find(&users)
	if result.Error != nil {
		slog.Error("sql error listing group users", "group_id", groupId, "error", result.Error)
		http.Error(w, "error listing group users", http.StatusInternalServerError)
		return
	}

	infos := make([]userInfo, 0, len(users))
	for _, user := range users {
		infos = append(infos, userInfoOf(user))
	}
	utils.WriteJsonResponse(w, infos)
}

func (s *GroupService) checkGroupOwner(r *http.Request, groupId uuid.UUID) error {
	user, err := auth.UserFromContext(r)
	if err != nil {
		return CodedError(err, http.StatusInternalServerError)
	}
	if user.IsAdmin {
		return nil
	}

	group, err := schema.GetGroup(groupId, s.db)
	if err != nil {
		return controllerError(err)
	}
	if group.OwnerId != user.Id {
		return CodedError(fmt.Errorf("user %v does not own the group", user.Username), http.StatusForbidden)
	}
	return nil
}

func (s *GroupService) AddUser(w http.ResponseWriter, r *http.Request) {
	groupId, err := utils.URLParamUUID(r, "group_id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	userId, err := utils.URLParamUUID(r, "user_id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := s.checkGroupOwner(r, groupId); err != nil {
		http.Error(w, err.Error(), GetResponseCode(err))
		return
	}
	if _, err := schema.GetUser(userId, s.db); err != nil {
		err = controllerError(err)
		http.Error(w, err.Error(), GetResponseCode(err))
		return
	}

	err = s.db.Transaction(func(txn *gorm.DB) error {
		var existing schema.UserGroup
		result := txn.Limit(1).Find(&existing, "user_id = ? AND group_id = ?", userId, groupId)
		if result.Error != nil {
			slog.Error("sql error checking group membership", "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}
		if result.RowsAffected != 0 {
			return CodedError(fmt.Errorf("user is already a member"), http.StatusConflict)
		}

		result = txn.Create(&schema.UserGroup{UserId: userId, GroupId: groupId})
		if result.Error != nil {
			slog.Error("sql error adding user to group", "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}
		return nil
	})
	if err != nil {
		http.Error(w, fmt.Sprintf("error adding user to group: %v", err), GetResponseCode(err))
		return
	}
	utils.WriteSuccess(w)
}

func (s *GroupService) RemoveUser(w http.ResponseWriter, r *http.Request) {
	groupId, err := utils.URLParamUUID(r, "group_id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	userId, err := utils.URLParamUUID(r, "user_id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := s.checkGroupOwner(r, groupId); err != nil {
		http.Error(w, err.Error(), GetResponseCode(err))
		return
	}

	result := s.db.Delete(&schema.UserGroup{UserId: userId, GroupId: groupId})
	if result.Error != nil {
		slog.Error("sql error removing user from group", "error", result.Error)
		http.Error(w, "error removing user from group", http.StatusInternalServerError)
		return
	}
	if result.RowsAffected == 0 {
		http.Error(w, "user is not a member of the group", http.StatusNotFound)
		return
	}
	utils.WriteSuccess(w)
}
