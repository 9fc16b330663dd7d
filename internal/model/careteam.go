package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// TeamRole is the role class of a care-team member
type TeamRole string

const (
	TeamReferentDoctor TeamRole = "REFERENT_DOCTOR"
	TeamSpecialist     TeamRole = "SPECIALIST"
	TeamNurse          TeamRole = "NURSE"
	TeamFamily         TeamRole = "FAMILY"
	TeamCaregiver      TeamRole = "CAREGIVER"
)

// ProfileRole maps a team role onto the profile role the member holds
func (r TeamRole) ProfileRole() Role {
	switch r {
	case TeamReferentDoctor, TeamSpecialist:
		return RoleDoctor
	case TeamNurse:
		return RoleNurse
	case TeamCaregiver:
		return RoleCaregiver
	default:
		return RoleFamily
	}
}

// IsDoctor reports whether members in this role may read patient data as doctors
func (r TeamRole) IsDoctor() bool {
	return r == TeamReferentDoctor || r == TeamSpecialist
}

// IsFamily reports whether the role belongs to the family bucket of a team.
// Nurses are grouped with family.
func (r TeamRole) IsFamily() bool {
	return r == TeamFamily || r == TeamCaregiver || r == TeamNurse
}

// TeamStatus is the lifecycle of a care-team edge
type TeamStatus string

const (
	TeamPending  TeamStatus = "PENDING"
	TeamActive   TeamStatus = "ACTIVE"
	TeamRejected TeamStatus = "REJECTED"
	TeamEnded    TeamStatus = "ENDED"
)

// InitiatedBy records which side created a pending edge, so the other side accepts it
type InitiatedBy string

const (
	InitiatedByPatient InitiatedBy = "PATIENT"
	InitiatedByDoctor  InitiatedBy = "DOCTOR"
)

// CareTeamEdge links a patient profile to a member profile. Until a person
// has a profile, InvitationEmail stands in for that side of the edge, so
// exactly two of the three are set. Pairs are unique among edges that are
// not ENDED.
type CareTeamEdge struct {
	ID               uuid.UUID   `json:"id" gorm:"type:uuid;primaryKey"`
	PatientProfileID *uuid.UUID  `json:"patient_profile_id,omitempty" gorm:"type:uuid;uniqueIndex:idx_team_open_member,priority:1,where:status <> 'ENDED';uniqueIndex:idx_team_open_email,priority:1,where:status <> 'ENDED'"`
	MemberProfileID  *uuid.UUID  `json:"member_profile_id,omitempty" gorm:"type:uuid;index;uniqueIndex:idx_team_open_member,priority:2;uniqueIndex:idx_team_open_invitee,priority:1,where:status <> 'ENDED'"`
	InvitationEmail  *string     `json:"invitation_email,omitempty" gorm:"size:255;index;uniqueIndex:idx_team_open_email,priority:2;uniqueIndex:idx_team_open_invitee,priority:2;check:chk_team_parties,((patient_profile_id IS NULL OR member_profile_id IS NULL) = (invitation_email IS NOT NULL)) AND (patient_profile_id IS NOT NULL OR member_profile_id IS NOT NULL)"`
	Role             TeamRole    `json:"role" gorm:"type:varchar(20);not null"`
	Status           TeamStatus  `json:"status" gorm:"type:varchar(10);not null;index"`
	InitiatedBy      InitiatedBy `json:"initiated_by" gorm:"type:varchar(10);not null"`
	ApproverID       *uuid.UUID  `json:"approver_id,omitempty" gorm:"type:uuid"`
	RelationType     string      `json:"relation_type,omitempty" gorm:"size:50"`
	CreatedAt        time.Time   `json:"created_at"`
	UpdatedAt        time.Time   `json:"updated_at"`

	PatientProfile *Profile `json:"patient_profile,omitempty" gorm:"foreignKey:PatientProfileID;constraint:OnDelete:CASCADE"`
	MemberProfile  *Profile `json:"member_profile,omitempty" gorm:"foreignKey:MemberProfileID;constraint:OnDelete:CASCADE"`
}

// IsEmailInvitation reports whether one side of the edge is only known by email
func (e *CareTeamEdge) IsEmailInvitation() bool {
	return e.InvitationEmail != nil
}

func (CareTeamEdge) TableName() string { return "care_team_members" }

func (e *CareTeamEdge) BeforeCreate(tx *gorm.DB) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	return nil
}
