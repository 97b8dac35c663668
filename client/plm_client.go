package client

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// PlmClient is a typed client for the openplm http api.
type PlmClient struct {
	BaseClient

	userId uuid.UUID
}

func NewPlmClient(baseUrl string) *PlmClient {
	return &PlmClient{BaseClient: NewBaseClient(baseUrl, "")}
}

func (c *PlmClient) UserId() uuid.UUID {
	return c.userId
}

func (c *PlmClient) Login(email, password string) error {
	var res struct {
		UserId      uuid.UUID `json:"user_id"`
		AccessToken string    `json:"access_token"`
	}
	err := c.Get("/api/v1/user/login").Login(email, password).Do(&res)
	if err != nil {
		return fmt.Errorf("login failed: %w", err)
	}
	c.authToken = res.AccessToken
	c.userId = res.UserId
	return nil
}

type UserInfo struct {
	Id          uuid.UUID `json:"id"`
	Username    string    `json:"username"`
	Email       string    `json:"email"`
	FirstName   string    `json:"first_name"`
	LastName    string    `json:"last_name"`
	Admin       bool      `json:"admin"`
	Contributor bool      `json:"contributor"`
	Active      bool      `json:"active"`
}

type CreateUserArgs struct {
	Username    string `json:"username"`
	Email       string `json:"email"`
	Password    string `json:"password"`
	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name"`
	Contributor bool   `json:"contributor"`
}

func (c *PlmClient) CreateUser(args CreateUserArgs) (uuid.UUID, error) {
	var res struct {
		UserId uuid.UUID `json:"user_id"`
	}
	err := c.Post("/api/v1/user/create").Json(args).Do(&res)
	if err != nil {
		return uuid.Nil, err
	}
	return res.UserId, nil
}

func (c *PlmClient) ListUsers() ([]UserInfo, error) {
	var users []UserInfo
	err := c.Get("/api/v1/user/list").Do(&users)
	return users, err
}

func (c *PlmClient) UserInfo() (UserInfo, error) {
	var user UserInfo
	err := c.Get("/api/v1/user/info").Do(&user)
	return user, err
}

func (c *PlmClient) DeactivateUser(userId uuid.UUID) error {
	return c.Delete(fmt.Sprintf("/api/v1/user/%v", userId)).Do(nil)
}

func (c *PlmClient) GrantContributor(userId uuid.UUID) error {
	return c.Post(fmt.Sprintf("/api/v1/user/%v/contributor", userId)).Do(nil)
}

func (c *PlmClient) RevokeContributor(userId uuid.UUID) error {
	return c.Delete(fmt.Sprintf("/api/v1/user/%v/contributor", userId)).Do(nil)
}

type delegationArgs struct {
	DelegateeId uuid.UUID `json:"delegatee_id"`
	Role        string    `json:"role"`
}

func (c *PlmClient) Delegate(delegateeId uuid.UUID, role string) error {
	return c.Post("/api/v1/user/delegate").Json(delegationArgs{DelegateeId: delegateeId, Role: role}).Do(nil)
}

func (c *PlmClient) RemoveDelegation(delegateeId uuid.UUID, role string) error {
	return c.Delete("/api/v1/user/delegate").Json(delegationArgs{DelegateeId: delegateeId, Role: role}).Do(nil)
}

type GroupInfo struct {
	Id          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	OwnerId     uuid.UUID `json:"owner_id"`
}

func (c *PlmClient) CreateGroup(name, description string) (uuid.UUID, error) {
	body := struct {
		Name        string `json:"name"`
		Description string `json:"description"`
	}{Name: name, Description: description}

	var res struct {
		GroupId uuid.UUID `json:"group_id"`
	}
	err := c.Post("/api/v1/group/create").Json(body).Do(&res)
	if err != nil {
		return uuid.Nil, err
	}
	return res.GroupId, nil
}

func (c *PlmClient) ListGroups() ([]GroupInfo, error) {
	var groups []GroupInfo
	err := c.Get("/api/v1/group/list").Do(&groups)
	return groups, err
}

func (c *PlmClient) GroupUsers(groupId uuid.UUID) ([]UserInfo, error) {
	var users []UserInfo
	err := c.Get(fmt.Sprintf("/api/v1/group/%v/users", groupId)).Do(&users)
	return users, err
}

func (c *PlmClient) AddUserToGroup(groupId, userId uuid.UUID) error {
	return c.Post(fmt.Sprintf("/api/v1/group/%v/users/%v", groupId, userId)).Do(nil)
}

func (c *PlmClient) RemoveUserFromGroup(groupId, userId uuid.UUID) error {
	return c.Delete(fmt.Sprintf("/api/v1/group/%v/users/%v", groupId, userId)).Do(nil)
}

type LifecycleInfo struct {
	Name     string   `json:"name"`
	Type     string   `json:"type"`
	States   []string `json:"states"`
	Official string   `json:"official"`
}

func (c *PlmClient) CreateLifecycle(name string, states []string, official string) error {
	body := struct {
		Name     string   `json:"name"`
		States   []string `json:"states"`
		Official string   `json:"official"`
	}{Name: name, States: states, Official: official}
	return c.Post("/api/v1/lifecycle/create").Json(body).Do(nil)
}

func (c *PlmClient) ListLifecycles() ([]LifecycleInfo, error) {
	var lifecycles []LifecycleInfo
	err := c.Get("/api/v1/lifecycle/list").Do(&lifecycles)
	return lifecycles, err
}

func (c *PlmClient) LifecycleStates(name string) (LifecycleInfo, error) {
	var info LifecycleInfo
	err := c.Get(fmt.Sprintf("/api/v1/lifecycle/%v", name)).Do(&info)
	return info, err
}

type ObjectInfo struct {
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

type CreateObjectArgs struct {
	Type        string    `json:"type"`
	Reference   string    `json:"reference"`
	Revision    string    `json:"revision"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	GroupId     uuid.UUID `json:"group_id"`
	Lifecycle   string    `json:"lifecycle"`
}

func (c *PlmClient) CreateObject(args CreateObjectArgs) (ObjectInfo, error) {
	var object ObjectInfo
	err := c.Post("/api/v1/object/create").Json(args).Do(&object)
	return object, err
}

// ListObjects filters on object type and reference, empty filters match everything.
func (c *PlmClient) ListObjects(objectType, reference string) ([]ObjectInfo, error) {
	req := c.Get("/api/v1/object/list")
	if objectType != "" {
		req = req.Param("type", objectType)
	}
	if reference != "" {
		req = req.Param("reference", reference)
	}
	var objects []ObjectInfo
	err := req.Do(&objects)
	return objects, err
}

func (c *PlmClient) ObjectInfo(objectId uuid.UUID) (ObjectInfo, error) {
	var object ObjectInfo
	err := c.Get(fmt.Sprintf("/api/v1/object/%v", objectId)).Do(&object)
	return object, err
}

type HistoryEntry struct {
	Action  string    `json:"action"`
	Details string    `json:"details"`
	UserId  uuid.UUID `json:"user_id"`
	Date    time.Time `json:"date"`
}

func (c *PlmClient) ObjectHistory(objectId uuid.UUID) ([]HistoryEntry, error) {
	var entries []HistoryEntry
	err := c.Get(fmt.Sprintf("/api/v1/object/%v/history", objectId)).Do(&entries)
	return entries, err
}

type StateAt struct {
	State     string `json:"state"`
	Lifecycle string `json:"lifecycle"`
	Category  string `json:"category"`
}

func (c *PlmClient) ObjectStateAt(objectId uuid.UUID, at time.Time) (StateAt, error) {
	var res StateAt
	err := c.Get(fmt.Sprintf("/api/v1/object/%v/state-at", objectId)).
		Param("at", at.Format(time.RFC3339Nano)).Do(&res)
	return res, err
}

type Promotable struct {
	Promotable bool     `json:"promotable"`
	Reasons    []string `json:"reasons"`
}

func (c *PlmClient) ObjectPromotable(objectId uuid.UUID) (Promotable, error) {
	var res Promotable
	err := c.Get(fmt.Sprintf("/api/v1/object/%v/promotable", objectId)).Do(&res)
	return res, err
}

func (c *PlmClient) Promote(objectId uuid.UUID) (ObjectInfo, error) {
	var object ObjectInfo
	err := c.Post(fmt.Sprintf("/api/v1/object/%v/promote", objectId)).Do(&object)
	return object, err
}

func (c *PlmClient) Demote(objectId uuid.UUID) (ObjectInfo, error) {
	var object ObjectInfo
	err := c.Post(fmt.Sprintf("/api/v1/object/%v/demote", objectId)).Do(&object)
	return object, err
}

func (c *PlmClient) ApprovePromotion(objectId uuid.UUID) (ObjectInfo, error) {
	var object ObjectInfo
	err := c.Post(fmt.Sprintf("/api/v1/object/%v/approve", objectId)).Do(&object)
	return object, err
}

func (c *PlmClient) DiscardApprovals(objectId uuid.UUID) error {
	return c.Delete(fmt.Sprintf("/api/v1/object/%v/approve", objectId)).Do(nil)
}

func (c *PlmClient) CancelObject(objectId uuid.UUID) (ObjectInfo, error) {
	var object ObjectInfo
	err := c.Post(fmt.Sprintf("/api/v1/object/%v/cancel", objectId)).Do(&object)
	return object, err
}

// Revise creates the next revision of the object. An empty revision lets
// the server pick the next one in sequence.
func (c *PlmClient) Revise(objectId uuid.UUID, revision string) (ObjectInfo, error) {
	body := struct {
		Revision string `json:"revision"`
	}{Revision: revision}
	var object ObjectInfo
	err := c.Post(fmt.Sprintf("/api/v1/object/%v/revise", objectId)).Json(body).Do(&object)
	return object, err
}

// CloneObject copies the object under a fresh reference. Nil id lists copy
// every alive link, empty lists copy none.
func (c *PlmClient) CloneObject(objectId uuid.UUID, name string, childIds, documentIds []uuid.UUID) (ObjectInfo, error) {
	body := struct {
		Name        string      `json:"name"`
		ChildIds    []uuid.UUID `json:"child_ids"`
		DocumentIds []uuid.UUID `json:"document_ids"`
	}{Name: name, ChildIds: childIds, DocumentIds: documentIds}
	var object ObjectInfo
	err := c.Post(fmt.Sprintf("/api/v1/object/%v/clone", objectId)).Json(body).Do(&object)
	return object, err
}

type Revisions struct {
	Revisions []ObjectInfo `json:"revisions"`
	Revisable bool         `json:"revisable"`
	Suggested string       `json:"suggested"`
}

func (c *PlmClient) ObjectRevisions(objectId uuid.UUID) (Revisions, error) {
	var res Revisions
	err := c.Get(fmt.Sprintf("/api/v1/object/%v/revisions", objectId)).Do(&res)
	return res, err
}

func (c *PlmClient) Publish(objectId uuid.UUID) error {
	return c.Post(fmt.Sprintf("/api/v1/object/%v/publish", objectId)).Do(nil)
}

func (c *PlmClient) Unpublish(objectId uuid.UUID) error {
	return c.Delete(fmt.Sprintf("/api/v1/object/%v/publish", objectId)).Do(nil)
}

func (c *PlmClient) SetOwner(objectId, userId uuid.UUID) error {
	return c.Post(fmt.Sprintf("/api/v1/object/%v/owner/%v", objectId, userId)).Do(nil)
}

func (c *PlmClient) AddNotified(objectId, userId uuid.UUID) error {
	return c.Post(fmt.Sprintf("/api/v1/object/%v/notified/%v", objectId, userId)).Do(nil)
}

func (c *PlmClient) RemoveNotified(objectId, userId uuid.UUID) error {
	return c.Delete(fmt.Sprintf("/api/v1/object/%v/notified/%v", objectId, userId)).Do(nil)
}

func (c *PlmClient) AddReader(objectId, userId uuid.UUID) error {
	return c.Post(fmt.Sprintf("/api/v1/object/%v/reader/%v", objectId, userId)).Do(nil)
}

func (c *PlmClient) SetSigner(objectId, userId uuid.UUID, level int) error {
	return c.Post(fmt.Sprintf("/api/v1/object/%v/signer/%v/%d", objectId, userId, level)).Do(nil)
}

func (c *PlmClient) RemoveSigner(objectId, userId uuid.UUID, level int) error {
	return c.Delete(fmt.Sprintf("/api/v1/object/%v/signer/%v/%d", objectId, userId, level)).Do(nil)
}

type ChildInfo struct {
	LinkId   uuid.UUID `json:"link_id"`
	ChildId  uuid.UUID `json:"child_id"`
	Quantity float64   `json:"quantity"`
	Unit     string    `json:"unit"`
	Order    int       `json:"order"`
}

type ChildLinkArgs struct {
	Quantity float64 `json:"quantity"`
	Unit     string  `json:"unit"`
	Order    int     `json:"order"`
}

func (c *PlmClient) Children(objectId uuid.UUID) ([]ChildInfo, error) {
	var children []ChildInfo
	err := c.Get(fmt.Sprintf("/api/v1/object/%v/children", objectId)).Do(&children)
	return children, err
}

func (c *PlmClient) AddChild(parentId, childId uuid.UUID, args ChildLinkArgs) error {
	return c.Post(fmt.Sprintf("/api/v1/object/%v/children/%v", parentId, childId)).Json(args).Do(nil)
}

func (c *PlmClient) ModifyChild(parentId, childId uuid.UUID, args ChildLinkArgs) error {
	return c.Put(fmt.Sprintf("/api/v1/object/%v/children/%v", parentId, childId)).Json(args).Do(nil)
}

func (c *PlmClient) DeleteChild(parentId, childId uuid.UUID) error {
	return c.Delete(fmt.Sprintf("/api/v1/object/%v/children/%v", parentId, childId)).Do(nil)
}

func (c *PlmClient) Parents(objectId uuid.UUID) ([]uuid.UUID, error) {
	var parents []uuid.UUID
	err := c.Get(fmt.Sprintf("/api/v1/object/%v/parents", objectId)).Do(&parents)
	return parents, err
}

func (c *PlmClient) AttachedDocuments(objectId uuid.UUID) ([]uuid.UUID, error) {
	var documents []uuid.UUID
	err := c.Get(fmt.Sprintf("/api/v1/object/%v/documents", objectId)).Do(&documents)
	return documents, err
}

func (c *PlmClient) AttachDocument(objectId, documentId uuid.UUID) error {
	return c.Post(fmt.Sprintf("/api/v1/object/%v/documents/%v", objectId, documentId)).Do(nil)
}

func (c *PlmClient) DetachDocument(objectId, documentId uuid.UUID) error {
	return c.Delete(fmt.Sprintf("/api/v1/object/%v/documents/%v", objectId, documentId)).Do(nil)
}

type FileInfo struct {
	Id       uuid.UUID  `json:"id"`
	Filename string     `json:"filename"`
	Size     int64      `json:"size"`
	Locked   bool       `json:"locked"`
	LockerId *uuid.UUID `json:"locker_id,omitempty"`
}

func (c *PlmClient) Files(documentId uuid.UUID) ([]FileInfo, error) {
	var files []FileInfo
	err := c.Get(fmt.Sprintf("/api/v1/object/%v/files", documentId)).Do(&files)
	return files, err
}

func (c *PlmClient) AddFile(documentId uuid.UUID, filename string, size int64) (FileInfo, error) {
	body := struct {
		Filename string `json:"filename"`
		Size     int64  `json:"size"`
	}{Filename: filename, Size: size}
	var file FileInfo
	err := c.Post(fmt.Sprintf("/api/v1/object/%v/files", documentId)).Json(body).Do(&file)
	return file, err
}

func (c *PlmClient) LockFile(documentId, fileId uuid.UUID) error {
	return c.Post(fmt.Sprintf("/api/v1/object/%v/files/%v/lock", documentId, fileId)).Do(nil)
}

func (c *PlmClient) UnlockFile(documentId, fileId uuid.UUID) error {
	return c.Delete(fmt.Sprintf("/api/v1/object/%v/files/%v/lock", documentId, fileId)).Do(nil)
}

func (c *PlmClient) DeprecateFile(documentId, fileId uuid.UUID) error {
	return c.Delete(fmt.Sprintf("/api/v1/object/%v/files/%v", documentId, fileId)).Do(nil)
}

type EcrInfo struct {
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

func (c *PlmClient) CreateEcr(name, description string) (EcrInfo, error) {
	body := struct {
		Name        string `json:"name"`
		Description string `json:"description"`
	}{Name: name, Description: description}
	var ecr EcrInfo
	err := c.Post("/api/v1/ecr/create").Json(body).Do(&ecr)
	return ecr, err
}

func (c *PlmClient) ListEcrs() ([]EcrInfo, error) {
	var ecrs []EcrInfo
	err := c.Get("/api/v1/ecr/list").Do(&ecrs)
	return ecrs, err
}

func (c *PlmClient) EcrInfo(ecrId uuid.UUID) (EcrInfo, error) {
	var ecr EcrInfo
	err := c.Get(fmt.Sprintf("/api/v1/ecr/%v", ecrId)).Do(&ecr)
	return ecr, err
}

func (c *PlmClient) EcrHistory(ecrId uuid.UUID) ([]HistoryEntry, error) {
	var entries []HistoryEntry
	err := c.Get(fmt.Sprintf("/api/v1/ecr/%v/history", ecrId)).Do(&entries)
	return entries, err
}

func (c *PlmClient) EcrPromotable(ecrId uuid.UUID) (Promotable, error) {
	var res Promotable
	err := c.Get(fmt.Sprintf("/api/v1/ecr/%v/promotable", ecrId)).Do(&res)
	return res, err
}

func (c *PlmClient) PromoteEcr(ecrId uuid.UUID) (EcrInfo, error) {
	var ecr EcrInfo
	err := c.Post(fmt.Sprintf("/api/v1/ecr/%v/promote", ecrId)).Do(&ecr)
	return ecr, err
}

func (c *PlmClient) DemoteEcr(ecrId uuid.UUID) (EcrInfo, error) {
	var ecr EcrInfo
	err := c.Post(fmt.Sprintf("/api/v1/ecr/%v/demote", ecrId)).Do(&ecr)
	return ecr, err
}

func (c *PlmClient) ApproveEcrPromotion(ecrId uuid.UUID) (EcrInfo, error) {
	var ecr EcrInfo
	err := c.Post(fmt.Sprintf("/api/v1/ecr/%v/approve", ecrId)).Do(&ecr)
	return ecr, err
}

func (c *PlmClient) DiscardEcrApprovals(ecrId uuid.UUID) error {
	return c.Delete(fmt.Sprintf("/api/v1/ecr/%v/approve", ecrId)).Do(nil)
}

func (c *PlmClient) CancelEcr(ecrId uuid.UUID) (EcrInfo, error) {
	var ecr EcrInfo
	err := c.Post(fmt.Sprintf("/api/v1/ecr/%v/cancel", ecrId)).Do(&ecr)
	return ecr, err
}

func (c *PlmClient) EcrObjects(ecrId uuid.UUID) ([]uuid.UUID, error) {
	var objectIds []uuid.UUID
	err := c.Get(fmt.Sprintf("/api/v1/ecr/%v/objects", ecrId)).Do(&objectIds)
	return objectIds, err
}

func (c *PlmClient) AttachToEcr(ecrId, objectId uuid.UUID) error {
	return c.Post(fmt.Sprintf("/api/v1/ecr/%v/objects/%v", ecrId, objectId)).Do(nil)
}

func (c *PlmClient) DetachFromEcr(ecrId, objectId uuid.UUID) error {
	return c.Delete(fmt.Sprintf("/api/v1/ecr/%v/objects/%v", ecrId, objectId)).Do(nil)
}
