package services

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"openplm/plmapp/auth"
	"openplm/plmapp/schema"
	"openplm/utils"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type UserService struct {
	db       *gorm.DB
	userAuth auth.IdentityProvider
}

func (s *UserService) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/login", s.LoginWithEmail)

	r.Group(func(r chi.Router) {
		r.Use(s.userAuth.AuthMiddleware()...)

		r.Get("/list", s.List)
		r.Get("/info", s.Info)

		r.Post("/delegate", s.Delegate)
		r.Delete("/delegate", s.RemoveDelegation)
	})

	r.Group(func(r chi.Router) {
		r.Use(s.userAuth.AuthMiddleware()...)
		r.Use(auth.AdminOnly())

		r.Post("/create", s.CreateUser)

		r.Post("/{user_id}/contributor", s.GrantContributor)
		r.Delete("/{user_id}/contributor", s.RevokeContributor)
		r.Delete("/{user_id}", s.DeactivateUser)
	})

	return r
}

type loginResponse struct {
	UserId      uuid.UUID `json:"user_id"`
	AccessToken string    `json:"access_token"`
}

func (s *UserService) LoginWithEmail(w http.ResponseWriter, r *http.Request) {
	email, password, ok := r.BasicAuth()
	if !ok {
		http.Error(w, "missing or invalid Authorization header", http.StatusUnauthorized)
		return
	}

	login, err := s.userAuth.LoginWithEmail(email, password)
	if err != nil {
		responseCode := http.StatusInternalServerError
		switch {
		case errors.Is(err, auth.ErrUserNotFoundWithEmail):
			responseCode = http.StatusNotFound
		case errors.Is(err, auth.ErrInvalidCredentials):
			responseCode = http.StatusUnauthorized
		case errors.Is(err, auth.ErrAccountInactive):
			responseCode = http.StatusForbidden
		}
		http.Error(w, fmt.Sprintf("login failed: %v", err), responseCode)
		return
	}

	res := loginResponse{UserId: login.UserId, AccessToken: login.AccessToken}
	utils.WriteJsonResponse(w, res)
}

type createUserRequest struct {
	Username    string `json:"username"`
	Email       string `json:"email"`
	Password    string `json:"password"`
	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name"`
	Contributor bool   `json:"contributor"`
	Restricted  bool   `json:"restricted"`
}

type createUserResponse struct {
	UserId uuid.UUID `json:"user_id"`
}

func (s *UserService) CreateUser(w http.ResponseWriter, r *http.Request) {
	var params createUserRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}
	if params.Username == "" || params.Email == "" || params.Password == "" {
		http.Error(w, "username, email and password must be specified", http.StatusBadRequest)
		return
	}

	userId, err := s.userAuth.CreateUser(auth.NewUserArgs{
		Username:    params.Username,
		Email:       params.Email,
		Password:    params.Password,
		FirstName:   params.FirstName,
		LastName:    params.LastName,
		Contributor: params.Contributor,
		Restricted:  params.Restricted,
	})
	if err != nil {
		responseCode := http.StatusInternalServerError
		switch {
		case errors.Is(err, auth.ErrEmailAlreadyInUse), errors.Is(err, auth.ErrUsernameAlreadyInUse):
			responseCode = http.StatusConflict
		}
		http.Error(w, err.Error(), responseCode)
		return
	}

	utils.WriteJsonResponse(w, createUserResponse{UserId: userId})
}

type userInfo struct {
	Id          uuid.UUID `json:"id"`
	Username    string    `json:"username"`
	Email       string    `json:"email"`
	FirstName   string    `json:"first_name"`
	LastName    string    `json:"last_name"`
	Admin       bool      `json:"admin"`
	Contributor bool      `json:"contributor"`
	Restricted  bool      `json:"restricted"`
	Active      bool      `json:"active"`
}

func userInfoOf(user schema.User) userInfo {
	return userInfo{
		Id:          user.Id,
		Username:    user.Username,
		Email:       user.Email,
		FirstName:   user.FirstName,
		LastName:    user.LastName,
		Admin:       user.IsAdmin,
		Contributor: user.IsContributor,
		Restricted:  user.IsRestricted,
		Active:      user.IsActive,
	}
}

func (s *UserService) List(w http.ResponseWriter, r *http.Request) {
	var users []schema.User
	result := s.db.Where("is_company = false").Order("username asc").Find(&users)
	if result.Error != nil {
		slog.Error("sql error listing users", "error", result.Error)
		http.Error(w, "error listing users", http.StatusInternalServerError)
		return
	}

	infos := make([]userInfo, 0, len(users))
	for _, user := range users {
		infos = append(infos, userInfoOf(user))
	}
	utils.WriteJsonResponse(w, infos)
}

func (s *UserService) Info(w http.ResponseWriter, r *http.Request) {
	user, err := auth.UserFromContext(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	utils.WriteJsonResponse(w, userInfoOf(user))
}

func (s *UserService) setContributor(w http.ResponseWriter, r *http.Request, contributor bool) {
	userId, err := utils.URLParamUUID(r, "user_id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	result := s.db.Model(&schema.User{}).Where("id = ?", userId).Update("is_contributor", contributor)
	if result.Error != nil {
		slog.Error("sql error updating contributor flag", "user_id", userId, "error", result.Error)
		http.Error(w, "error updating user", http.StatusInternalServerError)
		return
	}
	if result.RowsAffected == 0 {
		http.Error(w, "user not found", http.StatusNotFound)
		return
	}
	utils.WriteSuccess(w)
}

func (s *UserService) GrantContributor(w http.ResponseWriter, r *http.Request) {
	s.setContributor(w, r, true)
}

func (s *UserService) RevokeContributor(w http.ResponseWriter, r *http.Request) {
	s.setContributor(w, r, false)
}

// DeactivateUser marks the account inactive. Rows are never deleted since
// history and links refer to them.
func (s *UserService) DeactivateUser(w http.ResponseWriter, r *http.Request) {
	userId, err := utils.URLParamUUID(r, "user_id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	result := s.db.Model(&schema.User{}).Where("id = ? AND is_company = false", userId).Update("is_active", false)
	if result.Error != nil {
		slog.Error("sql error deactivating user", "user_id", userId, "error", result.Error)
		http.Error(w, "error deactivating user", http.StatusInternalServerError)
		return
	}
	if result.RowsAffected == 0 {
		http.Error(w, "user not found", http.StatusNotFound)
		return
	}
	utils.WriteSuccess(w)
}

type delegateRequest struct {
	DelegateeId uuid.UUID `json:"delegatee_id"`
	Role        string    `json:"role"`
}

// Delegate grants the caller's role rights to another user. Sponsor
// delegations route new objects' upper sign levels to the delegator.
func (s *UserService) Delegate(w http.ResponseWriter, r *http.Request) {
	var params delegateRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}

	user, err := auth.UserFromContext(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if !schema.ValidRole(params.Role) {
		http.Error(w, fmt.Sprintf("invalid role %v", params.Role), http.StatusBadRequest)
		return
	}
	if params.DelegateeId == user.Id {
		http.Error(w, "cannot delegate to yourself", http.StatusBadRequest)
		return
	}

	delegatee, err := schema.GetUser(params.DelegateeId, s.db)
	if err != nil {
		http.Error(w, err.Error(), GetResponseCode(controllerError(err)))
		return
	}
	if !delegatee.IsActive {
		http.Error(w, fmt.Sprintf("%v's account is inactive", delegatee.Username), http.StatusForbidden)
		return
	}

	err = s.db.Transaction(func(txn *gorm.DB) error {
		var existing schema.DelegationLink
		result := schema.Alive(txn).Limit(1).
			Find(&existing, "delegator_id = ? AND delegatee_id = ? AND role = ?", user.Id, params.DelegateeId, params.Role)
		if result.Error != nil {
			slog.Error("sql error checking delegation", "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}
		if result.RowsAffected != 0 {
			return CodedError(fmt.Errorf("delegation already exists"), http.StatusConflict)
		}

		link := schema.DelegationLink{
			Id:          uuid.New(),
			DelegatorId: user.Id,
			DelegateeId: params.DelegateeId,
			Role:        params.Role,
			Ctime:       time.Now().UTC(),
		}
		result = txn.Create(&link)
		if result.Error != nil {
			slog.Error("sql error creating delegation", "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}
		return nil
	})
	if err != nil {
		http.Error(w, fmt.Sprintf("error creating delegation: %v", err), GetResponseCode(err))
		return
	}
	utils.WriteSuccess(w)
}

func (s *UserService) RemoveDelegation(w http.ResponseWriter, r *http.Request) {
	var params delegateRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}

	user, err := auth.UserFromContext(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	result := schema.Alive(s.db.Model(&schema.DelegationLink{})).
		Where("delegator_id = ? AND delegatee_id = ? AND role = ?", user.Id, params.DelegateeId, params.Role).
		Update("end_time", time.Now().UTC())
	if result.Error != nil {
		slog.Error("sql error ending delegation", "error", result.Error)
		http.Error(w, "error removing delegation", http.StatusInternalServerError)
		return
	}
	if result.RowsAffected == 0 {
		http.Error(w, "delegation not found", http.StatusNotFound)
		return
	}
	utils.WriteSuccess(w)
}
