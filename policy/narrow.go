package policy

import "github.com/kendall-kelly/field-service-api/models"

// Task update field names as they appear in request payloads
const (
	FieldOrder                = "order"
	FieldTitle                = "title"
	FieldDescription          = "description"
	FieldStatus               = "status"
	FieldCompletedAt          = "completed_at"
	FieldRequiredEquipmentIDs = "required_equipment_ids"
)

// FieldSet is a set of writable payload fields. A nil FieldSet means every field.
type FieldSet map[string]bool

// Allows reports whether field is writable under s
func (s FieldSet) Allows(field string) bool {
	if s == nil {
		return true
	}
	return s[field]
}

var progressFields = FieldSet{
	FieldStatus:               true,
	FieldCompletedAt:          true,
	FieldRequiredEquipmentIDs: true,
}

// TaskUpdateFields returns the task fields role may write. Roles without
// task:write are narrowed to the progress fields; fields outside the set are
// dropped from the payload rather than rejected.
func TaskUpdateFields(role models.Role) FieldSet {
	if Can(role, ActionTaskWrite) {
		return nil
	}
	return progressFields
}
