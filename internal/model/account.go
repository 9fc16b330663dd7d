package model

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"gorm.io/gorm"
)

// Role is the closed set of role scopes an identity can hold.
// Care-team role classes map onto it through TeamRole.ProfileRole.
type Role string

const (
	RolePatient    Role = "PATIENT"
	RoleDoctor     Role = "DOCTOR"
	RoleFamily     Role = "FAMILY"
	RoleCaregiver  Role = "CAREGIVER"
	RoleNurse      Role = "NURSE"
	RoleAdmin      Role = "ADMIN"
	RoleSuperAdmin Role = "SUPERADMIN"
)

// Valid reports whether r is one of the known roles
func (r Role) Valid() bool {
	switch r {
	case RolePatient, RoleDoctor, RoleFamily, RoleCaregiver, RoleNurse, RoleAdmin, RoleSuperAdmin:
		return true
	}
	return false
}

// IsAdministrative reports whether tokens for this role are signed with the admin key
func (r Role) IsAdministrative() bool {
	return r == RoleAdmin || r == RoleSuperAdmin
}

// Account is the authenticating principal. It owns readings, alert
// subscriptions and push tokens.
type Account struct {
	ID          uuid.UUID `json:"id" gorm:"type:uuid;primaryKey"`
	Email       string    `json:"email" gorm:"size:255;not null;uniqueIndex"`
	Password    string    `json:"-" gorm:"size:255;not null"`
	IsActive    bool      `json:"is_active" gorm:"default:true"`
	IsSuperuser bool      `json:"is_superuser" gorm:"default:false"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`

	Identity *Identity `json:"identity,omitempty" gorm:"foreignKey:AccountID;constraint:OnDelete:CASCADE"`
}

// BeforeSave normalizes the email so uniqueness is case-insensitive
func (a *Account) BeforeSave(tx *gorm.DB) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	a.Email = NormalizeEmail(a.Email)
	return nil
}

// NormalizeEmail lowercases and trims an email address
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Identity is the natural person behind one or more profiles.
// Family members added by a patient have an identity without an account.
type Identity struct {
	ID        uuid.UUID  `json:"id" gorm:"type:uuid;primaryKey"`
	AccountID *uuid.UUID `json:"account_id,omitempty" gorm:"type:uuid;uniqueIndex"`
	FirstName string     `json:"first_name" gorm:"size:100;not null"`
	LastName  string     `json:"last_name" gorm:"size:100;not null"`
	Phone     string     `json:"phone,omitempty" gorm:"size:32;index"`
	Address   string     `json:"address,omitempty" gorm:"size:500"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`

	Profiles []Profile `json:"profiles,omitempty" gorm:"foreignKey:IdentityID;constraint:OnDelete:CASCADE"`
}

func (i *Identity) BeforeCreate(tx *gorm.DB) error {
	if i.ID == uuid.Nil {
		i.ID = uuid.New()
	}
	return nil
}

// FullName joins first and last name
func (i *Identity) FullName() string {
	return strings.TrimSpace(i.FirstName + " " + i.LastName)
}

// Profile is the (identity, role) pairing used for care-team membership
type Profile struct {
	ID         uuid.UUID `json:"id" gorm:"type:uuid;primaryKey"`
	IdentityID uuid.UUID `json:"identity_id" gorm:"type:uuid;not null;uniqueIndex:idx_profile_identity_role"`
	Role       Role      `json:"role" gorm:"type:varchar(20);not null;uniqueIndex:idx_profile_identity_role"`
	IsActive   bool      `json:"is_active" gorm:"default:true"`
	CreatedAt  time.Time `json:"created_at"`

	Identity       *Identity       `json:"identity,omitempty" gorm:"foreignKey:IdentityID"`
	PatientProfile *PatientProfile `json:"patient_profile,omitempty" gorm:"foreignKey:ProfileID;constraint:OnDelete:CASCADE"`
	DoctorProfile  *DoctorProfile  `json:"doctor_profile,omitempty" gorm:"foreignKey:ProfileID;constraint:OnDelete:CASCADE"`
}

func (p *Profile) BeforeCreate(tx *gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}

// DiabetesType of a patient
type DiabetesType string

const (
	DiabetesType1           DiabetesType = "TYPE1"
	DiabetesType2           DiabetesType = "TYPE2"
	DiabetesTypeGestational DiabetesType = "GESTATIONAL"
)

// PatientProfile extends a PATIENT profile
type PatientProfile struct {
	ProfileID     uuid.UUID    `json:"profile_id" gorm:"type:uuid;primaryKey"`
	DiabetesType  DiabetesType `json:"diabetes_type" gorm:"type:varchar(20)"`
	DiagnosisDate *time.Time   `json:"diagnosis_date,omitempty"`
}

// VerificationStatus of a doctor's license
type VerificationStatus string

const (
	VerificationPending  VerificationStatus = "PENDING"
	VerificationVerified VerificationStatus = "VERIFIED"
	VerificationRejected VerificationStatus = "REJECTED"
)

// DoctorProfile extends a DOCTOR profile
type DoctorProfile struct {
	ProfileID          uuid.UUID          `json:"profile_id" gorm:"type:uuid;primaryKey"`
	LicenseNumber      string             `json:"license_number" gorm:"size:64;not null;uniqueIndex"`
	VerificationStatus VerificationStatus `json:"verification_status" gorm:"type:varchar(20);not null;default:'PENDING'"`
	VerifiedBy         *uuid.UUID         `json:"verified_by,omitempty" gorm:"type:uuid"`
	VerifiedAt         *time.Time         `json:"verified_at,omitempty"`
	RejectionReason    string             `json:"rejection_reason,omitempty" gorm:"size:500"`
	Specialty          string             `json:"specialty,omitempty" gorm:"size:100"`
}

// IsVerified reports whether the doctor may take part in care teams
func (d *DoctorProfile) IsVerified() bool {
	return d != nil && d.VerificationStatus == VerificationVerified
}

// Principal is the resolved caller of a request. It is built once by the
// auth middleware and passed explicitly into every service call.
type Principal struct {
	AccountID  uuid.UUID
	IdentityID uuid.UUID
	Email      string
	Roles      []Role
	Profiles   map[Role]uuid.UUID
}

// Has reports whether the principal holds role
func (p Principal) Has(role Role) bool {
	return lo.Contains(p.Roles, role)
}

// RoleNames returns the role set as strings, as carried by bearer tokens
func (p Principal) RoleNames() []string {
	return lo.Map(p.Roles, func(r Role, _ int) string { return string(r) })
}

// ProfileID returns the profile id for role
func (p Principal) ProfileID(role Role) (uuid.UUID, bool) {
	id, ok := p.Profiles[role]
	return id, ok
}
