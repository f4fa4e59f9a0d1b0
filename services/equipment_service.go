package services

import (
	"context"
	"fmt"
	"mime/multipart"
	"strings"

	"github.com/kendall-kelly/field-service-api/apperr"
	"github.com/kendall-kelly/field-service-api/logger"
	"github.com/kendall-kelly/field-service-api/models"
	"github.com/kendall-kelly/field-service-api/policy"
	"gorm.io/gorm"
)

// CreateEquipmentInput is the payload for registering equipment
type CreateEquipmentInput struct {
	Name         string `json:"name"`
	Type         string `json:"type"`
	SerialNumber string `json:"serial_number"`
	IsActive     *bool  `json:"is_active"`
}

// UpdateEquipmentInput is a partial equipment update
type UpdateEquipmentInput struct {
	Name         *string `json:"name"`
	Type         *string `json:"type"`
	SerialNumber *string `json:"serial_number"`
	IsActive     *bool   `json:"is_active"`
}

// EquipmentFilter narrows ListEquipment. Query matches name or serial number.
type EquipmentFilter struct {
	IsActive *bool
	Type     string
	Query    string
	PageRequest
}

// EquipmentService manages the equipment registry
type EquipmentService struct {
	db     *gorm.DB
	images ImageService
}

// NewEquipmentService creates the registry. images may be nil when photo
// storage is not configured; photo uploads then fail and reads omit photo_url.
func NewEquipmentService(db *gorm.DB, images ImageService) *EquipmentService {
	return &EquipmentService{db: db, images: images}
}

// CreateEquipment registers a new piece of equipment. is_active defaults to true.
func (s *EquipmentService) CreateEquipment(ctx context.Context, actor *models.User, in CreateEquipmentInput) (*models.Equipment, error) {
	if err := policy.Authorize(actor, policy.ActionEquipmentWrite); err != nil {
		return nil, err
	}

	equipment := models.Equipment{
		Name:         strings.TrimSpace(in.Name),
		Type:         strings.TrimSpace(in.Type),
		SerialNumber: strings.TrimSpace(in.SerialNumber),
		IsActive:     true,
	}
	if in.IsActive != nil {
		equipment.IsActive = *in.IsActive
	}
	if equipment.Name == "" {
		return nil, apperr.Validation("VALIDATION_ERROR", "name is required")
	}
	if equipment.Type == "" {
		return nil, apperr.Validation("VALIDATION_ERROR", "type is required")
	}
	if equipment.SerialNumber == "" {
		return nil, apperr.Validation("VALIDATION_ERROR", "serial_number is required")
	}

	if err := s.db.WithContext(ctx).Create(&equipment).Error; err != nil {
		if isDuplicateKey(err) {
			return nil, duplicateSerialError(equipment.SerialNumber)
		}
		return nil, apperr.Internal("Failed to create equipment", err)
	}

	s.attachPhotoURL(ctx, &equipment)
	return &equipment, nil
}

// GetEquipment returns one piece of equipment
func (s *EquipmentService) GetEquipment(ctx context.Context, actor *models.User, id uint) (*models.Equipment, error) {
	if err := policy.Authorize(actor, policy.ActionEquipmentRead); err != nil {
		return nil, err
	}

	var equipment models.Equipment
	if err := s.db.WithContext(ctx).First(&equipment, id).Error; err != nil {
		return nil, notFoundOr(err, "EQUIPMENT_NOT_FOUND", "Equipment not found")
	}
	s.attachPhotoURL(ctx, &equipment)
	return &equipment, nil
}

// ListEquipment returns a page of equipment ordered by name
func (s *EquipmentService) ListEquipment(ctx context.Context, actor *models.User, filter EquipmentFilter) ([]models.Equipment, Pagination, error) {
	if err := policy.Authorize(actor, policy.ActionEquipmentRead); err != nil {
		return nil, Pagination{}, err
	}
	page := filter.PageRequest.normalize()

	filtered := func() *gorm.DB {
		query := s.db.WithContext(ctx).Model(&models.Equipment{})
		if filter.IsActive != nil {
			query = query.Where("is_active = ?", *filter.IsActive)
		}
		if filter.Type != "" {
			query = query.Where("type = ?", filter.Type)
		}
		if q := strings.TrimSpace(filter.Query); q != "" {
			like := "%" + strings.ToLower(q) + "%"
			query = query.Where("LOWER(name) LIKE ? OR LOWER(serial_number) LIKE ?", like, like)
		}
		return query
	}

	var total int64
	if err := filtered().Count(&total).Error; err != nil {
		return nil, Pagination{}, apperr.Internal("Failed to count equipment", err)
	}

	equipment := []models.Equipment{}
	if err := filtered().
		Order("name ASC, id ASC").
		Limit(page.Limit).
		Offset(page.offset()).
		Find(&equipment).Error; err != nil {
		return nil, Pagination{}, apperr.Internal("Failed to fetch equipment", err)
	}

	for i := range equipment {
		s.attachPhotoURL(ctx, &equipment[i])
	}
	return equipment, newPagination(page, total), nil
}

// UpdateEquipment applies a partial update; deactivation is is_active=false
func (s *EquipmentService) UpdateEquipment(ctx context.Context, actor *models.User, id uint, in UpdateEquipmentInput) (*models.Equipment, error) {
	if err := policy.Authorize(actor, policy.ActionEquipmentWrite); err != nil {
		return nil, err
	}

	updates := make(map[string]interface{})
	for column, value := range map[string]*string{
		"name":          in.Name,
		"type":          in.Type,
		"serial_number": in.SerialNumber,
	} {
		if value == nil {
			continue
		}
		trimmed := strings.TrimSpace(*value)
		if trimmed == "" {
			return nil, apperr.Validation("VALIDATION_ERROR", column+" cannot be blank")
		}
		updates[column] = trimmed
	}
	if in.IsActive != nil {
		updates["is_active"] = *in.IsActive
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var equipment models.Equipment
		if err := tx.First(&equipment, id).Error; err != nil {
			return notFoundOr(err, "EQUIPMENT_NOT_FOUND", "Equipment not found")
		}
		if len(updates) == 0 {
			return nil
		}
		if err := tx.Model(&models.Equipment{}).Where("id = ?", id).Updates(updates).Error; err != nil {
			if isDuplicateKey(err) && in.SerialNumber != nil {
				return duplicateSerialError(strings.TrimSpace(*in.SerialNumber))
			}
			return apperr.Internal("Failed to update equipment", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return s.GetEquipment(ctx, actor, id)
}

// DeleteEquipment removes equipment and its task links. Tasks are kept.
func (s *EquipmentService) DeleteEquipment(ctx context.Context, actor *models.User, id uint) error {
	if err := policy.Authorize(actor, policy.ActionEquipmentWrite); err != nil {
		return err
	}

	var photoKey *string
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var equipment models.Equipment
		if err := tx.First(&equipment, id).Error; err != nil {
			return notFoundOr(err, "EQUIPMENT_NOT_FOUND", "Equipment not found")
		}
		photoKey = equipment.PhotoS3Key

		if err := tx.Exec("DELETE FROM job_task_equipment WHERE equipment_id = ?", equipment.ID).Error; err != nil {
			return apperr.Internal("Failed to unlink equipment from tasks", err)
		}
		if err := tx.Delete(&equipment).Error; err != nil {
			return apperr.Internal("Failed to delete equipment", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.deletePhoto(ctx, photoKey)
	return nil
}

// UploadPhoto stores a PNG photo for the equipment and replaces any previous one
func (s *EquipmentService) UploadPhoto(ctx context.Context, actor *models.User, id uint, fileHeader *multipart.FileHeader) (*models.Equipment, error) {
	if err := policy.Authorize(actor, policy.ActionEquipmentWrite); err != nil {
		return nil, err
	}
	if s.images == nil {
		return nil, apperr.Internal("Photo storage is not configured", nil)
	}

	var equipment models.Equipment
	if err := s.db.WithContext(ctx).First(&equipment, id).Error; err != nil {
		return nil, notFoundOr(err, "EQUIPMENT_NOT_FOUND", "Equipment not found")
	}
	previous := equipment.PhotoS3Key

	key, err := s.images.UploadImage(ctx, fmt.Sprintf("equipment/%d", equipment.ID), fileHeader)
	if err != nil {
		if apperr.Is(err, apperr.KindValidation) {
			return nil, err
		}
		return nil, apperr.Internal("Failed to upload photo", err)
	}

	if err := s.db.WithContext(ctx).
		Model(&models.Equipment{}).
		Where("id = ?", equipment.ID).
		Update("photo_s3_key", key).Error; err != nil {
		s.deletePhoto(ctx, &key)
		return nil, apperr.Internal("Failed to save photo", err)
	}

	s.deletePhoto(ctx, previous)
	return s.GetEquipment(ctx, actor, equipment.ID)
}

// attachPhotoURL fills the computed photo_url. A presign failure leaves it empty.
func (s *EquipmentService) attachPhotoURL(ctx context.Context, equipment *models.Equipment) {
	if s.images == nil || equipment.PhotoS3Key == nil {
		return
	}
	url, err := s.images.GetImageURL(ctx, *equipment.PhotoS3Key)
	if err != nil {
		logger.L().Warn("failed to presign equipment photo", "equipment_id", equipment.ID, "error", err)
		return
	}
	equipment.PhotoURL = &url
}

func (s *EquipmentService) deletePhoto(ctx context.Context, key *string) {
	if s.images == nil || key == nil {
		return
	}
	if err := s.images.DeleteImage(ctx, *key); err != nil {
		logger.L().Warn("failed to delete equipment photo", "key", *key, "error", err)
	}
}

func duplicateSerialError(serial string) error {
	return apperr.Validation("DUPLICATE_SERIAL_NUMBER", fmt.Sprintf("equipment with serial number %q already exists", serial))
}
