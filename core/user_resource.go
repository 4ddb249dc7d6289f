package core

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"net/http"
	"strconv"
	"strings"
)

const (
	defaultPerPage = 10
	defaultPage    = 1
	maxPerPage     = 1000

	// bcrypt rejects longer inputs.
	maxPasswordBytes = 72

	msgNoAccess = "Does Not Have Access"
	msgNoData   = "No data found"
)

// ListParams are the query-string parameters of GET /user.
type ListParams struct {
	PerPage int    `form:"per_page" json:"per_page" binding:"omitempty,min=1,max=1000"`
	Page    int    `form:"page" json:"page" binding:"omitempty,min=1"`
	Sort    string `form:"sort" json:"sort"`
	Where   string `form:"where" json:"where"`
	Search  string `form:"search" json:"search"`
	Count   bool   `form:"count" json:"count"`
}

// ListMetadata accompanies every listing response.
type ListMetadata struct {
	TotalData int `json:"total_data"`
	PerPage   int `json:"per_page"`
	TotalPage int `json:"total_page"`
	Page      int `json:"page"`
}

// CreateUserRequest is the body of POST /user.
type CreateUserRequest struct {
	Name     string  `json:"name" form:"name" binding:"required,max=255"`
	Email    string  `json:"email" form:"email" binding:"required,email,max=255"`
	Username string  `json:"username" form:"username" binding:"required,max=255"`
	Password string  `json:"password" form:"password" binding:"required,max=72"`
	LevelID  int64   `json:"level_id" form:"level_id" binding:"omitempty,min=1"`
	Picture  *string `json:"picture" form:"picture" binding:"omitempty,max=255"`
}

// UpdateUserRequest is the body of PUT /user/{id}; absent fields stay unchanged.
type UpdateUserRequest struct {
	Name     *string `json:"name" form:"name" binding:"omitempty,min=1,max=255"`
	Email    *string `json:"email" form:"email" binding:"omitempty,email,max=255"`
	Username *string `json:"username" form:"username" binding:"omitempty,min=1,max=255"`
	Password *string `json:"password" form:"password" binding:"omitempty,min=1,max=72"`
	Picture  *string `json:"picture" form:"picture" binding:"omitempty,max=255"`
	LevelID  *int64  `json:"level_id" form:"level_id" binding:"omitempty,min=1"`
}

// UserResource implements the /user endpoints. Every method returns the
// envelope to send; authorization is checked before any store mutation.
type UserResource struct {
	users      UserStore
	bcryptCost int
}

func NewUserResource(users UserStore, bcryptCost int) *UserResource {
	return &UserResource{users: users, bcryptCost: bcryptCost}
}

// List returns a filtered page of users. Non-admins only ever see their own row.
func (r *UserResource) List(ctx context.Context, p Principal, params ListParams) Envelope {
	perPage := params.PerPage
	if perPage <= 0 {
		perPage = defaultPerPage
	}
	page := params.Page
	if page <= 0 {
		page = defaultPage
	}
	if perPage > maxPerPage {
		return validationFailed(newFieldError("per_page", fmt.Sprintf("The per page may not be greater than %d.", maxPerPage)))
	}
	// (page-1)*perPage must fit in an int and in a PostgreSQL bigint OFFSET.
	if page-1 > math.MaxInt/perPage {
		return validationFailed(newFieldError("page", "The page is too large."))
	}

	conds, err := ParseWhere(params.Where)
	if err != nil {
		return errorEnvelope(err)
	}
	sortSpec, err := ParseSort(params.Sort)
	if err != nil {
		return errorEnvelope(err)
	}

	q := UserQuery{
		Conditions: conds,
		Search:     params.Search,
		Sort:       sortSpec,
		Limit:      perPage,
		Offset:     (page - 1) * perPage,
	}
	if !p.IsAdmin() {
		q.OwnerID = p.ID
	}

	total, err := r.users.Count(ctx, q)
	if err != nil {
		return internalError(err)
	}
	meta := ListMetadata{
		TotalData: total,
		PerPage:   perPage,
		TotalPage: calcTotalPages(total, perPage),
		Page:      page,
	}

	if params.Count {
		return ok(http.StatusOK, "Get data successfull", map[string]int{"count": total}, meta)
	}

	rows, err := r.users.List(ctx, q)
	if err != nil {
		return internalError(err)
	}
	if len(rows) == 0 {
		return newEnvelope(false, http.StatusOK, msgNoData, nil, meta)
	}
	return ok(http.StatusOK, "Get data successfull", rows, meta)
}

// Get returns one user. Rows outside the caller's reach are reported as not
// found (success=false, 200), never as 403.
func (r *UserResource) Get(ctx context.Context, p Principal, rawID string) Envelope {
	id, err := parseUserID(rawID)
	if err != nil {
		return fail(http.StatusOK, msgNoData)
	}
	q := UserQuery{
		Conditions: []Condition{{Column: "id", Op: OpEquals, Values: []any{id}}},
		Limit:      1,
	}
	if !p.IsAdmin() {
		q.OwnerID = p.ID
	}
	rows, err := r.users.List(ctx, q)
	if err != nil {
		return internalError(err)
	}
	if len(rows) == 0 {
		return fail(http.StatusOK, msgNoData)
	}
	return ok(http.StatusOK, "Get data successfull", rows[0], nil)
}

// Create inserts a user. Admin only.
func (r *UserResource) Create(ctx context.Context, p Principal, req CreateUserRequest) Envelope {
	if !p.IsAdmin() {
		return fail(http.StatusUnauthorized, msgNoAccess)
	}

	verr := &ValidationError{}
	if err := r.checkUnique(ctx, verr, req.Username, req.Email, 0); err != nil {
		return internalError(err)
	}
	if req.LevelID != 0 {
		if err := r.checkLevel(ctx, verr, req.LevelID); err != nil {
			return internalError(err)
		}
	}
	checkPasswordLength(verr, req.Password)
	if !verr.empty() {
		return validationFailed(verr)
	}

	hash, err := hashPassword(req.Password, r.bcryptCost)
	if err != nil {
		return internalError(err)
	}
	id, err := r.users.Create(ctx, NewUser{
		LevelID:  req.LevelID,
		Username: req.Username,
		Email:    req.Email,
		Password: hash,
		Name:     req.Name,
		Picture:  req.Picture,
	})
	if err != nil {
		if errors.Is(err, ErrDuplicateUser) {
			return validationFailed(duplicateFieldError(err))
		}
		return internalError(err)
	}

	u, err := r.users.FindByID(ctx, id)
	if err != nil {
		return internalError(err)
	}
	return ok(http.StatusCreated, "Insert data successfull", u, nil)
}

// Update changes the given fields of a user. Admins may update anyone,
// other users only themselves and never their own level.
func (r *UserResource) Update(ctx context.Context, p Principal, rawID string, req UpdateUserRequest) Envelope {
	id, err := parseUserID(rawID)
	if err != nil {
		if !p.IsAdmin() {
			return fail(http.StatusUnauthorized, msgNoAccess)
		}
		return missingUser(rawID)
	}
	if !p.CanAccess(id) || (req.LevelID != nil && !p.IsAdmin()) {
		return fail(http.StatusUnauthorized, msgNoAccess)
	}
	if _, err := r.users.FindByID(ctx, id); err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return missingUser(rawID)
		}
		return internalError(err)
	}

	verr := &ValidationError{}
	if req.Username != nil || req.Email != nil {
		if err := r.checkUnique(ctx, verr, deref(req.Username), deref(req.Email), id); err != nil {
			return internalError(err)
		}
	}
	if req.LevelID != nil {
		if err := r.checkLevel(ctx, verr, *req.LevelID); err != nil {
			return internalError(err)
		}
	}
	if req.Password != nil {
		checkPasswordLength(verr, *req.Password)
	}
	if !verr.empty() {
		return validationFailed(verr)
	}

	patch := UserPatch{
		LevelID:  req.LevelID,
		Username: req.Username,
		Email:    req.Email,
		Name:     req.Name,
		Picture:  req.Picture,
	}
	if req.Password != nil {
		hash, err := hashPassword(*req.Password, r.bcryptCost)
		if err != nil {
			return internalError(err)
		}
		patch.Password = &hash
	}

	if err := r.users.Update(ctx, id, patch); err != nil {
		switch {
		case errors.Is(err, ErrUserNotFound):
			return missingUser(rawID)
		case errors.Is(err, ErrDuplicateUser):
			return validationFailed(duplicateFieldError(err))
		default:
			return internalError(err)
		}
	}

	u, err := r.users.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return missingUser(rawID)
		}
		return internalError(err)
	}
	return ok(http.StatusCreated, "Update data successfull", u, nil)
}

// Delete removes a user. Admin only.
func (r *UserResource) Delete(ctx context.Context, p Principal, rawID string) Envelope {
	if !p.IsAdmin() {
		return fail(http.StatusUnauthorized, msgNoAccess)
	}
	id, err := parseUserID(rawID)
	if err != nil {
		return missingUser(rawID)
	}
	if err := r.users.Delete(ctx, id); err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return missingUser(rawID)
		}
		return internalError(err)
	}
	return ok(http.StatusCreated, "Delete data successfull", nil, nil)
}

func (r *UserResource) checkUnique(ctx context.Context, verr *ValidationError, username, email string, excludeID int64) error {
	conflict, err := r.users.Conflicts(ctx, username, email, excludeID)
	if err != nil {
		return err
	}
	if conflict.Username {
		verr.Add("username", "The username has already been taken.")
	}
	if conflict.Email {
		verr.Add("email", "The email has already been taken.")
	}
	return nil
}

func (r *UserResource) checkLevel(ctx context.Context, verr *ValidationError, levelID int64) error {
	exists, err := r.users.LevelExists(ctx, levelID)
	if err != nil {
		return err
	}
	if !exists {
		verr.Add("level_id", "The selected level id is invalid.")
	}
	return nil
}

// checkPasswordLength guards the bcrypt input limit, which counts bytes
// where the binding rule counts characters.
func checkPasswordLength(verr *ValidationError, password string) {
	if len(password) > maxPasswordBytes {
		verr.Add("password", fmt.Sprintf("The password may not be greater than %d bytes.", maxPasswordBytes))
	}
}

// missingUser is the unrecoverable lookup failure of update/delete.
func missingUser(rawID string) Envelope {
	log.Printf("user lookup failed: no user with id %q", rawID)
	return fail(http.StatusInternalServerError, fmt.Sprintf("No query results for user %s", rawID))
}

func errorEnvelope(err error) Envelope {
	var verr *ValidationError
	if errors.As(err, &verr) {
		return validationFailed(verr)
	}
	return internalError(err)
}

// duplicateFieldError maps a unique index violation (users_username_key or
// users_email_key) back to the offending field.
func duplicateFieldError(err error) *ValidationError {
	if strings.Contains(err.Error(), "users_username") {
		return newFieldError("username", "The username has already been taken.")
	}
	return newFieldError("email", "The email has already been taken.")
}

func parseUserID(raw string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid user id %q", raw)
	}
	return id, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
