package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/glycopilot/glycopilot-api/internal/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var openStatuses = []model.TeamStatus{model.TeamPending, model.TeamActive, model.TeamRejected}

// CareTeamRepository handles care-team membership edges
type CareTeamRepository struct {
	db *gorm.DB
}

func NewCareTeamRepository(db *gorm.DB) *CareTeamRepository {
	return &CareTeamRepository{db: db}
}

// WithTx returns a repository bound to tx
func (r *CareTeamRepository) WithTx(tx *gorm.DB) *CareTeamRepository {
	return &CareTeamRepository{db: tx}
}

// Create inserts an edge
func (r *CareTeamRepository) Create(ctx context.Context, edge *model.CareTeamEdge) error {
	return r.db.WithContext(ctx).Omit("PatientProfile", "MemberProfile").Create(edge).Error
}

// ExistsOpen reports whether a non-ENDED edge links patient and member
func (r *CareTeamRepository) ExistsOpen(ctx context.Context, patientProfileID, memberProfileID uuid.UUID) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&model.CareTeamEdge{}).
		Where("patient_profile_id = ? AND member_profile_id = ? AND status IN ?", patientProfileID, memberProfileID, openStatuses).
		Count(&count).Error
	return count > 0, err
}

// ExistsOpenInvitation reports whether the member already has a non-ENDED
// invitation out to email
func (r *CareTeamRepository) ExistsOpenInvitation(ctx context.Context, memberProfileID uuid.UUID, email string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&model.CareTeamEdge{}).
		Where("member_profile_id = ? AND invitation_email = ? AND status IN ?", memberProfileID, email, openStatuses).
		Count(&count).Error
	return count > 0, err
}

// BindInvitations attaches the PENDING email invitations addressed to email
// to the patient profile that has just been created for it
func (r *CareTeamRepository) BindInvitations(ctx context.Context, email string, patientProfileID uuid.UUID) (int64, error) {
	result := r.db.WithContext(ctx).Model(&model.CareTeamEdge{}).
		Where("invitation_email = ? AND patient_profile_id IS NULL AND status = ?", email, model.TeamPending).
		UpdateColumns(map[string]interface{}{
			"patient_profile_id": patientProfileID,
			"invitation_email":   nil,
			"updated_at":         time.Now().UTC(),
		})
	return result.RowsAffected, result.Error
}

// LockPending loads a PENDING edge holding a row lock
func (r *CareTeamRepository) LockPending(ctx context.Context, id uuid.UUID) (*model.CareTeamEdge, error) {
	var edge model.CareTeamEdge
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ? AND status = ?", id, model.TeamPending).
		First(&edge).Error
	if err != nil {
		return nil, err
	}
	return &edge, nil
}

// SetStatus moves an edge from one status to another. Zero rows means it was not in from.
func (r *CareTeamRepository) SetStatus(ctx context.Context, id uuid.UUID, from, to model.TeamStatus) (int64, error) {
	result := r.db.WithContext(ctx).Model(&model.CareTeamEdge{}).
		Where("id = ? AND status = ?", id, from).
		UpdateColumns(map[string]interface{}{"status": to, "updated_at": time.Now().UTC()})
	return result.RowsAffected, result.Error
}

// ForPatient lists a patient's edges in the given statuses with member identities
func (r *CareTeamRepository) ForPatient(ctx context.Context, patientProfileID uuid.UUID, statuses ...model.TeamStatus) ([]model.CareTeamEdge, error) {
	var edges []model.CareTeamEdge
	err := r.db.WithContext(ctx).
		Preload("MemberProfile").
		Preload("MemberProfile.Identity").
		Where("patient_profile_id = ? AND status IN ?", patientProfileID, statuses).
		Order("created_at ASC").
		Find(&edges).Error
	return edges, err
}

// ForMember lists a member's edges in the given statuses with patient identities
func (r *CareTeamRepository) ForMember(ctx context.Context, memberProfileID uuid.UUID, statuses ...model.TeamStatus) ([]model.CareTeamEdge, error) {
	var edges []model.CareTeamEdge
	err := r.db.WithContext(ctx).
		Preload("PatientProfile").
		Preload("PatientProfile.Identity").
		Where("member_profile_id = ? AND status IN ?", memberProfileID, statuses).
		Order("created_at ASC").
		Find(&edges).Error
	return edges, err
}

// IsActiveCareGiver reports whether doctorProfileID holds an ACTIVE doctor-class edge to patientProfileID
func (r *CareTeamRepository) IsActiveCareGiver(ctx context.Context, doctorProfileID, patientProfileID uuid.UUID) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&model.CareTeamEdge{}).
		Where("member_profile_id = ? AND patient_profile_id = ? AND status = ? AND role IN ?",
			doctorProfileID, patientProfileID, model.TeamActive,
			[]model.TeamRole{model.TeamReferentDoctor, model.TeamSpecialist}).
		Count(&count).Error
	return count > 0, err
}
