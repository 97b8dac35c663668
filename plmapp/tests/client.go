package tests

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"

	"github.com/go-chi/chi/v5"
)

type httpTestRequest struct {
	api http.Handler

	method   string
	endpoint string
	headers  map[string]string
	json     interface{}
	body     io.Reader
	login    *loginInfo
}

func newHttpTestRequest(api http.Handler, method, endpoint string) *httpTestRequest {
	return &httpTestRequest{
		api:      api,
		method:   method,
		endpoint: endpoint,
	}
}

func (r *httpTestRequest) Header(key, value string) *httpTestRequest {
	if r.headers == nil {
		r.headers = make(map[string]string)
	}
	r.headers[key] = value
	return r
}

func (r *httpTestRequest) Login(email, password string) *httpTestRequest {
	r.login = &loginInfo{Email: email, Password: password}
	return r
}

func (r *httpTestRequest) Auth(token string) *httpTestRequest {
	return r.Header("Authorization", fmt.Sprintf("Bearer %v", token))
}

func (r *httpTestRequest) Json(data interface{}) *httpTestRequest {
	r.json = data
	return r
}

// response body will be parsed into result, passing nil indicates that no result is returned.
func (r *httpTestRequest) Do(result interface{}) error {
	if r.json != nil {
		body := new(bytes.Buffer)
		err := json.NewEncoder(body).Encode(r.json)
		if err != nil {
			return fmt.Errorf("error encoding json body for endpoint %v: %w", r.endpoint, err)
		}
		r.body = body
	}

	req := httptest.NewRequest(r.method, r.endpoint, r.body)
	if r.headers != nil {
		for k, v := range r.headers {
			req.Header.Add(k, v)
		}
	}

	if r.login != nil {
		req.SetBasicAuth(r.login.Email, r.login.Password)
	}

	w := httptest.NewRecorder()

	r.api.ServeHTTP(w, req)

	res := w.Result()
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		if res.StatusCode == http.StatusUnauthorized {
			return ErrUnauthorized
		}
		if res.StatusCode == http.StatusForbidden {
			return ErrForbidden
		}
		return fmt.Errorf("%v request to endpoint %v returned status %d, content '%v'", r.method, r.endpoint, res.StatusCode, w.Body.String())
	}

	if result != nil {
		err := json.NewDecoder(res.Body).Decode(result)
		if err != nil {
			return fmt.Errorf("error parsing %v response from endpoint %v: %w", r.method, r.endpoint, err)
		}
	}

	return nil
}

var (
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
)

type client struct {
	api       chi.Router
	authToken string
	userId    string
}

func (c *client) Get(endpoint string) *httpTestRequest {
	r := newHttpTestRequest(c.api, "GET", endpoint)
	if c.authToken != "" {
		return r.Auth(c.authToken)
	}
	return r
}

func (c *client) Post(endpoint string) *httpTestRequest {
	r := newHttpTestRequest(c.api, "POST", endpoint)
	if c.authToken != "" {
		return r.Auth(c.authToken)
	}
	return r
}

func (c *client) Put(endpoint string) *httpTestRequest {
	r := newHttpTestRequest(c.api, "PUT", endpoint)
	if c.authToken != "" {
		return r.Auth(c.authToken)
	}
	return r
}

func (c *client) Delete(endpoint string) *httpTestRequest {
	r := newHttpTestRequest(c.api, "DELETE", endpoint)
	if c.authToken != "" {
		return r.Auth(c.authToken)
	}
	return r
}

type loginInfo struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (c *client) login(login loginInfo) error {
	var res map[string]string
	err := c.Get("/user/login").Login(login.Email, login.Password).Do(&res)
	if err != nil {
		return err
	}

	c.authToken = res["access_token"]
	c.userId = res["user_id"]

	return nil
}

func (c *client) addUser(username, email, password string, contributor bool) (loginInfo, error) {
	body := map[string]interface{}{
		"email": email, "username": username, "password": password,
		"contributor": contributor,
	}

	err := c.Post("/user/create").Json(body).Do(nil)
	if err != nil {
		return loginInfo{}, err
	}

	return loginInfo{Email: email, Password: password}, nil
}

func (c *client) deactivateUser(userId string) error {
	return c.Delete(fmt.Sprintf("/user/%v", userId)).Do(nil)
}

func (c *client) delegate(delegateeId, role string) error {
	body := map[string]string{"delegatee_id": delegateeId, "role": role}
	return c.Post("/user/delegate").Json(body).Do(nil)
}

type userInfo struct {
	Id          string `json:"id"`
	Username    string `json:"username"`
	Email       string `json:"email"`
	Admin       bool   `json:"admin"`
	Contributor bool   `json:"contributor"`
	Active      bool   `json:"active"`
}

func (c *client) listUsers() ([]userInfo, error) {
	var res []userInfo
	err := c.Get("/user/list").Do(&res)
	return res, err
}

func (c *client) userInfo() (userInfo, error) {
	var res userInfo
	err := c.Get("/user/info").Do(&res)
	return res, err
}

func (c *client) createGroup(name string) (string, error) {
	body := map[string]string{"name": name}

	var res map[string]string
	err := c.Post("/group/create").Json(body).Do(&res)
	return res["group_id"], err
}

func (c *client) addUserToGroup(groupId, userId string) error {
	return c.Post(fmt.Sprintf("/group/%v/users/%v", groupId, userId)).Do(nil)
}

func (c *client) removeUserFromGroup(groupId, userId string) error {
	return c.Delete(fmt.Sprintf("/group/%v/users/%v", groupId, userId)).Do(nil)
}

type lifecycleInfo struct {
	Name     string   `json:"name"`
	Type     string   `json:"type"`
	States   []string `json:"states"`
	Official string   `json:"official"`
}

func (c *client) createLifecycle(name string, states []string, official string) error {
	body := map[string]interface{}{"name": name, "states": states, "official": official}
	return c.Post("/lifecycle/create").Json(body).Do(nil)
}

func (c *client) listLifecycles() ([]lifecycleInfo, error) {
	var res []lifecycleInfo
	err := c.Get("/lifecycle/list").Do(&res)
	return res, err
}

type objectInfo struct {
	Id        string `json:"id"`
	Type      string `json:"type"`
	Reference string `json:"reference"`
	Revision  string `json:"revision"`
	Name      string `json:"name"`
	GroupId   string `json:"group_id"`
	OwnerId   string `json:"owner_id"`
	Lifecycle string `json:"lifecycle"`
	State     string `json:"state"`
	Published bool   `json:"published"`
	Cancelled bool   `json:"cancelled"`
}

func (c *client) createObject(kind, name, groupId string) (objectInfo, error) {
	body := map[string]string{
		"type": kind, "revision": "a", "name": name, "group_id": groupId,
	}

	var res objectInfo
	err := c.Post("/object/create").Json(body).Do(&res)
	return res, err
}

func (c *client) objectInfo(objectId string) (objectInfo, error) {
	var res objectInfo
	err := c.Get(fmt.Sprintf("/object/%v", objectId)).Do(&res)
	return res, err
}

type promotableInfo struct {
	Promotable bool     `json:"promotable"`
	Reasons    []string `json:"reasons"`
}

func (c *client) promotable(objectId string) (promotableInfo, error) {
	var res promotableInfo
	err := c.Get(fmt.Sprintf("/object/%v/promotable", objectId)).Do(&res)
	return res, err
}

func (c *client) promote(objectId string) (objectInfo, error) {
	var res objectInfo
	err := c.Post(fmt.Sprintf("/object/%v/promote", objectId)).Do(&res)
	return res, err
}

func (c *client) demote(objectId string) (objectInfo, error) {
	var res objectInfo
	err := c.Post(fmt.Sprintf("/object/%v/demote", objectId)).Do(&res)
	return res, err
}

func (c *client) approve(objectId string) (objectInfo, error) {
	var res objectInfo
	err := c.Post(fmt.Sprintf("/object/%v/approve", objectId)).Do(&res)
	return res, err
}

func (c *client) cancelObject(objectId string) (objectInfo, error) {
	var res objectInfo
	err := c.Post(fmt.Sprintf("/object/%v/cancel", objectId)).Do(&res)
	return res, err
}

func (c *client) reviseObject(objectId, revision string) (objectInfo, error) {
	body := map[string]string{"revision": revision}

	var res objectInfo
	err := c.Post(fmt.Sprintf("/object/%v/revise", objectId)).Json(body).Do(&res)
	return res, err
}

func (c *client) setSigner(objectId, userId string, level int) error {
	return c.Post(fmt.Sprintf("/object/%v/signer/%v/%d", objectId, userId, level)).Do(nil)
}

func (c *client) setOwner(objectId, userId string) error {
	return c.Post(fmt.Sprintf("/object/%v/owner/%v", objectId, userId)).Do(nil)
}

type historyEntry struct {
	Action  string `json:"action"`
	Details string `json:"details"`
	UserId  string `json:"user_id"`
}

func (c *client) objectHistory(objectId string) ([]historyEntry, error) {
	var res []historyEntry
	err := c.Get(fmt.Sprintf("/object/%v/history", objectId)).Do(&res)
	return res, err
}

type stateAtInfo struct {
	State     string `json:"state"`
	Lifecycle string `json:"lifecycle"`
	Category  string `json:"category"`
}

func (c *client) stateAt(objectId, at string) (stateAtInfo, error) {
	var res stateAtInfo
	err := c.Get(fmt.Sprintf("/object/%v/state-at?at=%v", objectId, at)).Do(&res)
	return res, err
}

type childInfo struct {
	LinkId   string  `json:"link_id"`
	ChildId  string  `json:"child_id"`
	Quantity float64 `json:"quantity"`
	Unit     string  `json:"unit"`
	Order    int     `json:"order"`
}

func (c *client) addChild(parentId, childId string, quantity float64, order int) error {
	body := map[string]interface{}{"quantity": quantity, "unit": "-", "order": order}
	return c.Post(fmt.Sprintf("/object/%v/children/%v", parentId, childId)).Json(body).Do(nil)
}

func (c *client) children(parentId string) ([]childInfo, error) {
	var res []childInfo
	err := c.Get(fmt.Sprintf("/object/%v/children", parentId)).Do(&res)
	return res, err
}

func (c *client) attachDocument(partId, documentId string) error {
	return c.Post(fmt.Sprintf("/object/%v/documents/%v", partId, documentId)).Do(nil)
}

func (c *client) attachedDocuments(partId string) ([]string, error) {
	var res []string
	err := c.Get(fmt.Sprintf("/object/%v/documents", partId)).Do(&res)
	return res, err
}

type fileInfo struct {
	Id       string `json:"id"`
	Filename string `json:"filename"`
	Size     int64  `json:"size"`
	Locked   bool   `json:"locked"`
}

func (c *client) addFile(documentId, filename string, size int64) (fileInfo, error) {
	body := map[string]interface{}{"filename": filename, "size": size}

	var res fileInfo
	err := c.Post(fmt.Sprintf("/object/%v/files", documentId)).Json(body).Do(&res)
	return res, err
}

func (c *client) lockFile(documentId, fileId string) error {
	return c.Post(fmt.Sprintf("/object/%v/files/%v/lock", documentId, fileId)).Do(nil)
}

func (c *client) unlockFile(documentId, fileId string) error {
	return c.Delete(fmt.Sprintf("/object/%v/files/%v/lock", documentId, fileId)).Do(nil)
}

func (c *client) listFiles(documentId string) ([]fileInfo, error) {
	var res []fileInfo
	err := c.Get(fmt.Sprintf("/object/%v/files", documentId)).Do(&res)
	return res, err
}

type ecrInfo struct {
	Id        string `json:"id"`
	Reference string `json:"reference"`
	Name      string `json:"name"`
	OwnerId   string `json:"owner_id"`
	Lifecycle string `json:"lifecycle"`
	State     string `json:"state"`
	Cancelled bool   `json:"cancelled"`
}

func (c *client) createEcr(name, description string) (ecrInfo, error) {
	body := map[string]string{"name": name, "description": description}

	var res ecrInfo
	err := c.Post("/ecr/create").Json(body).Do(&res)
	return res, err
}

func (c *client) promoteEcr(ecrId string) (ecrInfo, error) {
	var res ecrInfo
	err := c.Post(fmt.Sprintf("/ecr/%v/promote", ecrId)).Do(&res)
	return res, err
}

func (c *client) approveEcr(ecrId string) (ecrInfo, error) {
	var res ecrInfo
	err := c.Post(fmt.Sprintf("/ecr/%v/approve", ecrId)).Do(&res)
	return res, err
}

func (c *client) cancelEcr(ecrId string) (ecrInfo, error) {
	var res ecrInfo
	err := c.Post(fmt.Sprintf("/ecr/%v/cancel", ecrId)).Do(&res)
	return res, err
}

func (c *client) attachToEcr(ecrId, objectId string) error {
	return c.Post(fmt.Sprintf("/ecr/%v/objects/%v", ecrId, objectId)).Do(nil)
}

func (c *client) ecrObjects(ecrId string) ([]string, error) {
	var res []string
	err := c.Get(fmt.Sprintf("/ecr/%v/objects", ecrId)).Do(&res)
	return res, err
}
