package controllers

import (
	"fmt"
	"log/slog"
	"time"

	"openplm/plmapp/schema"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// DocumentController adds file management and attachment operations on top of
// the base controller.
type DocumentController struct {
	*PlmObjectController
}

func NewDocumentController(objectId uuid.UUID, user schema.User, db *gorm.DB) (*DocumentController, error) {
	base, err := NewPlmObjectController(objectId, user, db)
	if err != nil {
		return nil, err
	}
	if !base.object.IsDocument() {
		return nil, fmt.Errorf("%w: %v is not a document", ErrValidation, objectId)
	}
	return &DocumentController{PlmObjectController: base}, nil
}

// documentPromotionErrors applies the document rules: a document needs at
// least one non deprecated file and every file must be unlocked.
func documentPromotionErrors(db *gorm.DB, object *schema.PlmObject) ([]string, error) {
	var files []schema.DocumentFile
	result := db.Find(&files, "document_id = ? AND deprecated = false", object.Id)
	if result.Error != nil {
		slog.Error("sql error listing document files", "object_id", object.Id, "error", result.Error)
		return nil, schema.ErrDbAccessFailed
	}

	reasons := []string{}
	if len(files) == 0 {
		reasons = append(reasons, reasonNoFiles)
	}
	for _, file := range files {
		if file.Locked {
			reasons = append(reasons, reasonLockedFiles)
			break
		}
	}
	return reasons, nil
}

// Files returns the non deprecated files of the document.
func (c *DocumentController) Files() ([]schema.DocumentFile, error) {
	return documentFiles(c.db, c.object.Id)
}

func documentFiles(db *gorm.DB, documentId uuid.UUID) ([]schema.DocumentFile, error) {
	var files []schema.DocumentFile
	result := db.Order("filename asc").Find(&files, "document_id = ? AND deprecated = false", documentId)
	if result.Error != nil {
		slog.Error("sql error listing document files", "object_id", documentId, "error", result.Error)
		return nil, schema.ErrDbAccessFailed
	}
	return files, nil
}

// checkEditFiles gates every file mutation: only the owner of an editable
// document may touch its files.
func (c *DocumentController) checkEditFiles() error {
	if err := c.checkPermission(schema.RoleOwner); err != nil {
		return err
	}
	return c.checkEditable()
}

// AddFile registers a file on the document.
func (c *DocumentController) AddFile(filename string, size int64) (schema.DocumentFile, error) {
	if filename == "" {
		return schema.DocumentFile{}, fmt.Errorf("%w: filename must not be empty", ErrValidation)
	}
	if size < 0 {
		return schema.DocumentFile{}, fmt.Errorf("%w: size must not be negative", ErrValidation)
	}
	if err := c.checkEditFiles(); err != nil {
		return schema.DocumentFile{}, err
	}

	file := schema.DocumentFile{
		Id:         uuid.New(),
		DocumentId: c.object.Id,
		Filename:   filename,
		Size:       size,
		Ctime:      time.Now().UTC(),
	}
	err := c.db.Transaction(func(txn *gorm.DB) error {
		if result := txn.Create(&file); result.Error != nil {
			slog.Error("sql error creating document file", "object_id", c.object.Id, "error", result.Error)
			return schema.ErrDbAccessFailed
		}
		details := fmt.Sprintf("file : %v added", filename)
		return schema.AddHistory(txn, c.object.Id, c.user.Id, schema.ActionModify, details)
	})
	if err != nil {
		return schema.DocumentFile{}, err
	}
	return file, nil
}

// LockFile marks the file as locked by the current user. A locked file blocks
// promotion until its locker releases it.
func (c *DocumentController) LockFile(fileId uuid.UUID) error {
	if err := c.checkEditFiles(); err != nil {
		return err
	}
	file, err := schema.GetDocumentFile(fileId, c.db)
	if err != nil {
		return err
	}
	if file.DocumentId != c.object.Id {
		return schema.ErrFileNotFound
	}
	if file.Deprecated {
		return fmt.Errorf("%w: file is deprecated", ErrLock)
	}
	if file.Locked {
		return fmt.Errorf("%w: file %v is already locked", ErrLock, file.Filename)
	}

	return c.db.Transaction(func(txn *gorm.DB) error {
		result := txn.Model(&schema.DocumentFile{}).
			Where("id = ? AND locked = false", fileId).
			Updates(map[string]any{"locked": true, "locker_id": c.user.Id})
		if result.Error != nil {
			slog.Error("sql error locking file", "file_id", fileId, "error", result.Error)
			return schema.ErrDbAccessFailed
		}
		if result.RowsAffected == 0 {
			return fmt.Errorf("%w: file %v is already locked", ErrLock, file.Filename)
		}
		details := fmt.Sprintf("file : %v locked", file.Filename)
		return schema.AddHistory(txn, c.object.Id, c.user.Id, schema.ActionModify, details)
	})
}

// UnlockFile releases the lock on the file. Only the user holding the lock
// may release it.
func (c *DocumentController) UnlockFile(fileId uuid.UUID) error {
	if err := c.checkEditFiles(); err != nil {
		return err
	}
	file, err := schema.GetDocumentFile(fileId, c.db)
	if err != nil {
		return err
	}
	if file.DocumentId != c.object.Id {
		return schema.ErrFileNotFound
	}
	if !file.Locked {
		return fmt.Errorf("%w: file %v is not locked", ErrLock, file.Filename)
	}
	if file.LockerId == nil || *file.LockerId != c.user.Id {
		return fmt.Errorf("%w: file %v is locked by another user", ErrLock, file.Filename)
	}

	return c.db.Transaction(func(txn *gorm.DB) error {
		result := txn.Model(&schema.DocumentFile{}).
			Where("id = ?", fileId).
			Updates(map[string]any{"locked": false, "locker_id": nil})
		if result.Error != nil {
			slog.Error("sql error unlocking file", "file_id", fileId, "error", result.Error)
			return schema.ErrDbAccessFailed
		}
		details := fmt.Sprintf("file : %v unlocked", file.Filename)
		return schema.AddHistory(txn, c.object.Id, c.user.Id, schema.ActionModify, details)
	})
}

// DeprecateFile removes the file from the document's active set. The row is
// kept for auditing.
func (c *DocumentController) DeprecateFile(fileId uuid.UUID) error {
	if err := c.checkEditFiles(); err != nil {
		return err
	}
	file, err := schema.GetDocumentFile(fileId, c.db)
	if err != nil {
		return err
	}
	if file.DocumentId != c.object.Id {
		return schema.ErrFileNotFound
	}
	if file.Locked {
		return fmt.Errorf("%w: file %v is locked", ErrLock, file.Filename)
	}

	return c.db.Transaction(func(txn *gorm.DB) error {
		result := txn.Model(&schema.DocumentFile{}).
			Where("id = ?", fileId).
			Update("deprecated", true)
		if result.Error != nil {
			slog.Error("sql error deprecating file", "file_id", fileId, "error", result.Error)
			return schema.ErrDbAccessFailed
		}
		details := fmt.Sprintf("file : %v deprecated", file.Filename)
		return schema.AddHistory(txn, c.object.Id, c.user.Id, schema.ActionModify, details)
	})
}

// AttachToPart creates an attachment edge between the document and *partId*.
// The checks mirror PartController.AttachDocument since the edge is the same.
func (c *DocumentController) AttachToPart(partId uuid.UUID) error {
	part, err := NewPartController(partId, c.user, c.db)
	if err != nil {
		return err
	}
	return part.AttachDocument(c.object.Id)
}

// DetachFromPart ends the alive attachment edge to *partId*.
func (c *DocumentController) DetachFromPart(partId uuid.UUID) error {
	part, err := NewPartController(partId, c.user, c.db)
	if err != nil {
		return err
	}
	return part.DetachDocument(c.object.Id)
}

// AttachedParts returns the alive attachment edges of the document.
func (c *DocumentController) AttachedParts() ([]schema.DocumentPartLink, error) {
	return documentAttachments(c.db, c.object.Id)
}

func documentAttachments(db *gorm.DB, documentId uuid.UUID) ([]schema.DocumentPartLink, error) {
	var links []schema.DocumentPartLink
	result := schema.Alive(db).Preload("Part").Find(&links, "document_id = ?", documentId)
	if result.Error != nil {
		slog.Error("sql error listing attached parts", "object_id", documentId, "error", result.Error)
		return nil, schema.ErrDbAccessFailed
	}
	return links, nil
}

// Revise duplicates the document and carries forward its files and part
// attachments. A part attachment is only carried while the part is neither
// cancelled nor deprecated. One transaction covers the new revision and
// the carried files and links, so a failure mid-copy rolls the revision
// back too.
func (c *DocumentController) Revise(newRevision string) (*DocumentController, error) {
	if err := c.checkRevise(newRevision); err != nil {
		return nil, err
	}

	var newCtrl *DocumentController
	err := c.db.Transaction(func(txn *gorm.DB) error {
		baseCtrl, err := c.reviseInTxn(txn, newRevision)
		if err != nil {
			return err
		}
		newCtrl = &DocumentController{PlmObjectController: baseCtrl}

		files, err := documentFiles(txn, c.object.Id)
		if err != nil {
			return err
		}
		for _, file := range files {
			copied := schema.DocumentFile{
				Id:         uuid.New(),
				DocumentId: newCtrl.object.Id,
				Filename:   file.Filename,
				Size:       file.Size,
				Ctime:      time.Now().UTC(),
			}
			if result := txn.Create(&copied); result.Error != nil {
				slog.Error("sql error carrying file", "object_id", c.object.Id, "error", result.Error)
				return schema.ErrDbAccessFailed
			}
		}

		links, err := documentAttachments(txn, c.object.Id)
		if err != nil {
			return err
		}
		for _, link := range links {
			if link.Part == nil {
				continue
			}
			partCtrl := &PlmObjectController{db: txn, user: c.user, object: *link.Part}
			if partCtrl.IsCancelled() {
				continue
			}
			deprecated, err := partCtrl.IsDeprecated()
			if err != nil {
				return err
			}
			if deprecated {
				continue
			}
			carried := schema.DocumentPartLink{
				Id:         uuid.New(),
				DocumentId: newCtrl.object.Id,
				PartId:     link.PartId,
				Ctime:      time.Now().UTC(),
			}
			if result := txn.Create(&carried); result.Error != nil {
				slog.Error("sql error carrying attachment", "object_id", c.object.Id, "error", result.Error)
				return schema.ErrDbAccessFailed
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	newCtrl.db = c.db
	return newCtrl, nil
}
