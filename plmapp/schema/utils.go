package schema

import (
	"errors"
	"log/slog"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

var (
	ErrUserNotFound   = errors.New("user not found")
	ErrGroupNotFound  = errors.New("group not found")
	ErrObjectNotFound = errors.New("object not found")
	ErrEcrNotFound    = errors.New("ECR not found")
	ErrFileNotFound   = errors.New("document file not found")
	ErrDbAccessFailed = errors.New("db access failed")
)

func GetUser(userId uuid.UUID, db *gorm.DB) (User, error) {
	var user User

	result := db.First(&user, "id = ?", userId)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return user, ErrUserNotFound
		}
		slog.Error("sql error in get user", "user_id", userId, "error", result.Error)
		return user, ErrDbAccessFailed
	}

	return user, nil
}

func GetUserByUsername(username string, db *gorm.DB) (User, error) {
	var user User

	result := db.First(&user, "username = ?", username)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return user, ErrUserNotFound
		}
		slog.Error("sql error in get user by username", "username", username, "error", result.Error)
		return user, ErrDbAccessFailed
	}

	return user, nil
}

// GetCompanyUser returns the organization principal that owns official and
// cancelled objects.
func GetCompanyUser(db *gorm.DB) (User, error) {
	var user User

	result := db.First(&user, "is_company = ?", true)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return user, ErrUserNotFound
		}
		slog.Error("sql error in get company user", "error", result.Error)
		return user, ErrDbAccessFailed
	}

	return user, nil
}

func GetGroup(groupId uuid.UUID, db *gorm.DB) (Group, error) {
	var group Group

	result := db.First(&group, "id = ?", groupId)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return group, ErrGroupNotFound
		}
		slog.Error("sql error in get group", "group_id", groupId, "error", result.Error)
		return group, ErrDbAccessFailed
	}

	return group, nil
}

func GetUserGroupIds(userId uuid.UUID, db *gorm.DB) ([]uuid.UUID, error) {
	var groups []UserGroup
	result := db.Find(&groups, "user_id = ?", userId)
	if result.Error != nil {
		slog.Error("sql error in get user group ids", "user_id", userId, "error", result.Error)
		return nil, ErrDbAccessFailed
	}
	ids := make([]uuid.UUID, 0, len(groups))
	for _, group := range groups {
		ids = append(ids, group.GroupId)
	}
	return ids, nil
}

func GetObject(objectId uuid.UUID, db *gorm.DB) (PlmObject, error) {
	var object PlmObject

	result := db.First(&object, "id = ?", objectId)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return object, ErrObjectNotFound
		}
		slog.Error("sql error in get object", "object_id", objectId, "error", result.Error)
		return object, ErrDbAccessFailed
	}

	return object, nil
}

func GetObjectByKey(objType, reference, revision string, db *gorm.DB) (PlmObject, error) {
	var object PlmObject

	result := db.First(&object, "type = ? AND reference = ? AND revision = ?", objType, reference, revision)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return object, ErrObjectNotFound
		}
		slog.Error("sql error in get object by key", "type", objType, "reference", reference, "revision", revision, "error", result.Error)
		return object, ErrDbAccessFailed
	}

	return object, nil
}

func GetEcr(ecrId uuid.UUID, db *gorm.DB) (Ecr, error) {
	var ecr Ecr

	result := db.First(&ecr, "id = ?", ecrId)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return ecr, ErrEcrNotFound
		}
		slog.Error("sql error in get ECR", "ecr_id", ecrId, "error", result.Error)
		return ecr, ErrDbAccessFailed
	}

	return ecr, nil
}

func GetDocumentFile(fileId uuid.UUID, db *gorm.DB) (DocumentFile, error) {
	var file DocumentFile

	result := db.First(&file, "id = ?", fileId)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return file, ErrFileNotFound
		}
		slog.Error("sql error in get document file", "file_id", fileId, "error", result.Error)
		return file, ErrDbAccessFailed
	}

	return file, nil
}
