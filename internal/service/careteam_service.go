package service

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
	"github.com/glycopilot/glycopilot-api/internal/model"
	"github.com/glycopilot/glycopilot-api/internal/repository"
	"github.com/glycopilot/glycopilot-api/pkg/mailer"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

// InvitationMailer sends care-team invitation emails
type InvitationMailer interface {
	SendDoctorInvitation(to string, inv mailer.DoctorInvitation) error
	SendPatientInvitation(to string, inv mailer.PatientInvitation) error
}

// CareTeamService manages the care-team graph between patients, doctors and family
type CareTeamService struct {
	db       *gorm.DB
	accounts *repository.AccountRepository
	team     *repository.CareTeamRepository
	mailer   InvitationMailer

	mails sync.WaitGroup
}

func NewCareTeamService(db *gorm.DB, accounts *repository.AccountRepository, team *repository.CareTeamRepository, m InvitationMailer) *CareTeamService {
	return &CareTeamService{db: db, accounts: accounts, team: team, mailer: m}
}

// Flush waits for invitation emails still being sent
func (s *CareTeamService) Flush() {
	s.mails.Wait()
}

func (s *CareTeamService) sendAsync(kind, to string, send func() error) {
	if s.mailer == nil {
		return
	}
	s.mails.Add(1)
	go func() {
		defer s.mails.Done()
		if err := send(); err != nil {
			log.Error().Err(err).Str("kind", kind).Str("to", to).Msg("failed to send invitation email")
		}
	}()
}

// InviteDoctor creates a PENDING edge from the patient to a verified doctor.
// Every reason the doctor cannot be invited yields the same error.
func (s *CareTeamService) InviteDoctor(ctx context.Context, p model.Principal, req model.InviteDoctorRequest) (*model.TeamMember, error) {
	patientProfileID, ok := p.ProfileID(model.RolePatient)
	if !ok {
		return nil, Forbidden("only patients can invite doctors")
	}
	role := req.Role
	if role == "" {
		role = model.TeamReferentDoctor
	}
	if !role.IsDoctor() {
		return nil, Validation("role", "role must be REFERENT_DOCTOR or SPECIALIST")
	}
	if model.NormalizeEmail(req.Email) == model.NormalizeEmail(p.Email) {
		return nil, Validation("email", "you cannot invite yourself")
	}

	doctor, err := s.accounts.FindByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInviteeUnavailable
		}
		return nil, Internal("failed to look up doctor", err)
	}
	doctorProfile := verifiedDoctorProfile(doctor)
	if doctorProfile == nil || doctor.ID == p.AccountID {
		return nil, ErrInviteeUnavailable
	}

	edge := &model.CareTeamEdge{
		PatientProfileID: &patientProfileID,
		MemberProfileID:  &doctorProfile.ID,
		Role:             role,
		Status:           model.TeamPending,
		InitiatedBy:      model.InitiatedByPatient,
	}
	if err := s.createEdge(ctx, edge); err != nil {
		return nil, err
	}

	patientName := p.Email
	if patient, err := s.accounts.FindByID(ctx, p.AccountID); err == nil && patient.Identity != nil {
		patientName = patient.Identity.FullName()
	}
	inv := mailer.DoctorInvitation{
		DoctorName:   doctor.Identity.FullName(),
		PatientName:  patientName,
		Role:         string(role),
		InvitationID: edge.ID.String(),
	}
	s.sendAsync("doctor_invitation", doctor.Email, func() error {
		return s.mailer.SendDoctorInvitation(doctor.Email, inv)
	})

	log.Info().
		Str("account_id", p.AccountID.String()).
		Str("edge_id", edge.ID.String()).
		Str("role", string(role)).
		Msg("doctor invited to care team")

	edge.MemberProfile = doctorProfile
	doctorProfile.Identity = doctor.Identity
	m := memberView(edge, doctor.Email)
	return &m, nil
}

// verifiedDoctorProfile returns the account's active DOCTOR profile when its license is verified
func verifiedDoctorProfile(account *model.Account) *model.Profile {
	if account.Identity == nil || !account.IsActive {
		return nil
	}
	for i := range account.Identity.Profiles {
		profile := &account.Identity.Profiles[i]
		if profile.Role == model.RoleDoctor && profile.IsActive && profile.DoctorProfile.IsVerified() {
			return profile
		}
	}
	return nil
}

// AddFamily records a family member as a new identity and profile with an
// ACTIVE edge. No account is created and no email is sent.
func (s *CareTeamService) AddFamily(ctx context.Context, p model.Principal, req model.AddFamilyRequest) (*model.TeamMember, error) {
	patientProfileID, ok := p.ProfileID(model.RolePatient)
	if !ok {
		return nil, Forbidden("only patients can add family members")
	}
	role := req.Role
	if role == "" {
		role = model.TeamFamily
	}
	if !role.IsFamily() {
		return nil, Validation("role", "role must be FAMILY, CAREGIVER or NURSE")
	}

	identity := &model.Identity{
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Phone:     req.Phone,
		Address:   req.Address,
	}
	profile := &model.Profile{Role: role.ProfileRole(), IsActive: true}
	edge := &model.CareTeamEdge{
		PatientProfileID: &patientProfileID,
		Role:             role,
		Status:           model.TeamActive,
		InitiatedBy:      model.InitiatedByPatient,
		RelationType:     req.RelationType,
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		accounts := s.accounts.WithTx(tx)
		if err := accounts.CreateIdentity(ctx, identity); err != nil {
			return err
		}
		profile.IdentityID = identity.ID
		if err := accounts.CreateProfile(ctx, profile); err != nil {
			return err
		}
		edge.MemberProfileID = &profile.ID
		return s.team.WithTx(tx).Create(ctx, edge)
	})
	if err != nil {
		return nil, Internal("failed to add family member", err)
	}

	log.Info().
		Str("account_id", p.AccountID.String()).
		Str("edge_id", edge.ID.String()).
		Str("role", string(role)).
		Msg("family member added")

	profile.Identity = identity
	edge.MemberProfile = profile
	m := memberView(edge, "")
	return &m, nil
}

// AddPatient lets a verified doctor ask to follow a patient found by email
// or phone. When nobody matches an email, a PENDING edge is kept against that
// address and an invitation to register is sent; registering binds it.
func (s *CareTeamService) AddPatient(ctx context.Context, p model.Principal, req model.AddPatientRequest) (*model.AddPatientResponse, error) {
	doctorProfileID, ok := p.ProfileID(model.RoleDoctor)
	if !ok {
		return nil, Forbidden("only doctors can add patients")
	}
	if req.Email == "" && req.Phone == "" {
		return nil, Validation("email", "email or phone is required")
	}

	doctorProfile, err := s.accounts.FindProfile(ctx, doctorProfileID)
	if err != nil {
		return nil, notFoundOr(err, "doctor profile not found")
	}
	if !doctorProfile.DoctorProfile.IsVerified() {
		return nil, &Error{Kind: KindForbidden, Code: "doctor_not_verified", Message: "your license has not been verified yet"}
	}

	patient, err := s.findPatientAccount(ctx, req.Email, req.Phone)
	if err != nil {
		return nil, err
	}
	if patient == nil {
		if req.Email == "" {
			return nil, NotFound("patient not found")
		}
		doctorName := ""
		if doctorProfile.Identity != nil {
			doctorName = doctorProfile.Identity.FullName()
		}
		to := model.NormalizeEmail(req.Email)
		edge := &model.CareTeamEdge{
			MemberProfileID: &doctorProfileID,
			InvitationEmail: &to,
			Role:            model.TeamReferentDoctor,
			Status:          model.TeamPending,
			InitiatedBy:     model.InitiatedByDoctor,
			ApproverID:      &doctorProfileID,
		}
		if err := s.createEdge(ctx, edge); err != nil {
			return nil, err
		}
		s.sendAsync("patient_invitation", to, func() error {
			return s.mailer.SendPatientInvitation(to, mailer.PatientInvitation{DoctorName: doctorName})
		})
		log.Info().
			Str("account_id", p.AccountID.String()).
			Str("edge_id", edge.ID.String()).
			Msg("registration invitation sent to unknown patient")
		return &model.AddPatientResponse{Status: model.AddPatientStatusSent, Email: to, InvitationID: &edge.ID}, nil
	}
	if patient.ID == p.AccountID {
		return nil, Validation("email", "you cannot add yourself as a patient")
	}

	patientProfileID, ok := PrincipalOf(patient).ProfileID(model.RolePatient)
	if !ok {
		return nil, NotFound("patient not found")
	}

	edge := &model.CareTeamEdge{
		PatientProfileID: &patientProfileID,
		MemberProfileID:  &doctorProfileID,
		Role:             model.TeamReferentDoctor,
		Status:           model.TeamPending,
		InitiatedBy:      model.InitiatedByDoctor,
		ApproverID:       &doctorProfileID,
	}
	if err := s.createEdge(ctx, edge); err != nil {
		return nil, err
	}

	log.Info().
		Str("account_id", p.AccountID.String()).
		Str("edge_id", edge.ID.String()).
		Msg("patient follow-up requested")

	return &model.AddPatientResponse{Status: model.AddPatientStatusPending, InvitationID: &edge.ID}, nil
}

// findPatientAccount looks an account up by email first, then by phone. A
// miss on both returns nil without error.
func (s *CareTeamService) findPatientAccount(ctx context.Context, email, phone string) (*model.Account, error) {
	if email != "" {
		account, err := s.accounts.FindByEmail(ctx, email)
		if err == nil {
			return account, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, Internal("failed to look up patient", err)
		}
	}
	if phone != "" {
		account, err := s.accounts.FindByPhone(ctx, phone)
		if err == nil {
			return account, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, Internal("failed to look up patient", err)
		}
	}
	return nil, nil
}

// createEdge inserts an edge unless the pair already has a non-ENDED one
func (s *CareTeamService) createEdge(ctx context.Context, edge *model.CareTeamEdge) error {
	var exists bool
	var err error
	if edge.IsEmailInvitation() {
		exists, err = s.team.ExistsOpenInvitation(ctx, *edge.MemberProfileID, *edge.InvitationEmail)
	} else {
		exists, err = s.team.ExistsOpen(ctx, *edge.PatientProfileID, *edge.MemberProfileID)
	}
	if err != nil {
		return Internal("failed to check care team", err)
	}
	if exists {
		return Conflict("already_in_team", "this member is already in the care team or invited")
	}
	if err := s.team.Create(ctx, edge); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return Conflict("already_in_team", "this member is already in the care team or invited")
		}
		return Internal("failed to create care team edge", err)
	}
	return nil
}

// AcceptInvitation moves a PENDING edge to ACTIVE. Only the invited side may
// accept; the edge row is locked so concurrent accepts serialize.
func (s *CareTeamService) AcceptInvitation(ctx context.Context, p model.Principal, edgeID uuid.UUID) (*model.CareTeamEdge, error) {
	var accepted *model.CareTeamEdge
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		team := s.team.WithTx(tx)
		edge, err := team.LockPending(ctx, edgeID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrInvitationGone
			}
			return err
		}
		if !mayAccept(p, edge) {
			return Forbidden("you cannot accept this invitation")
		}
		n, err := team.SetStatus(ctx, edge.ID, model.TeamPending, model.TeamActive)
		if err != nil {
			return err
		}
		if n == 0 {
			return ErrInvitationGone
		}
		edge.Status = model.TeamActive
		accepted = edge
		return nil
	})
	if err != nil {
		var se *Error
		if errors.As(err, &se) {
			return nil, se
		}
		return nil, Internal("failed to accept invitation", err)
	}

	log.Info().
		Str("account_id", p.AccountID.String()).
		Str("edge_id", edgeID.String()).
		Msg("care team invitation accepted")
	return accepted, nil
}

// mayAccept reports whether p is the invited side of edge
func mayAccept(p model.Principal, edge *model.CareTeamEdge) bool {
	switch edge.InitiatedBy {
	case model.InitiatedByPatient:
		id, ok := p.ProfileID(model.RoleDoctor)
		return ok && edge.MemberProfileID != nil && id == *edge.MemberProfileID
	case model.InitiatedByDoctor:
		id, ok := p.ProfileID(model.RolePatient)
		return ok && edge.PatientProfileID != nil && id == *edge.PatientProfileID
	}
	return false
}

// MyTeam returns the patient view, the doctor view, or both, depending on
// the profiles the principal holds.
func (s *CareTeamService) MyTeam(ctx context.Context, p model.Principal) (*model.MyTeam, error) {
	out := &model.MyTeam{}

	if patientProfileID, ok := p.ProfileID(model.RolePatient); ok {
		edges, err := s.team.ForPatient(ctx, patientProfileID, model.TeamActive)
		if err != nil {
			return nil, Internal("failed to load care team", err)
		}
		view := &model.PatientTeam{Doctors: []model.TeamMember{}, Family: []model.TeamMember{}}
		for i := range edges {
			m := memberView(&edges[i], "")
			switch {
			case edges[i].Role.IsDoctor():
				view.Doctors = append(view.Doctors, m)
			case edges[i].Role.IsFamily():
				view.Family = append(view.Family, m)
			}
		}
		out.PatientTeam = view
	}

	if doctorProfileID, ok := p.ProfileID(model.RoleDoctor); ok {
		edges, err := s.team.ForMember(ctx, doctorProfileID, model.TeamActive, model.TeamPending)
		if err != nil {
			return nil, Internal("failed to load patients", err)
		}
		view := &model.DoctorTeam{ActivePatients: []model.TeamMember{}, PendingInvites: []model.TeamMember{}}
		for i := range edges {
			m := patientView(&edges[i])
			if edges[i].Status == model.TeamActive {
				view.ActivePatients = append(view.ActivePatients, m)
			} else {
				view.PendingInvites = append(view.PendingInvites, m)
			}
		}
		out.DoctorTeam = view
	}

	return out, nil
}

// IsActiveCareGiver reports whether the doctor holds an ACTIVE doctor-class
// edge to the patient account. Any lookup miss is false.
func (s *CareTeamService) IsActiveCareGiver(ctx context.Context, doctor model.Principal, patientAccountID uuid.UUID) (bool, error) {
	doctorProfileID, ok := doctor.ProfileID(model.RoleDoctor)
	if !ok {
		return false, nil
	}
	patientProfile, err := s.accounts.FindProfileByAccount(ctx, patientAccountID, model.RolePatient)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, nil
		}
		return false, err
	}
	return s.team.IsActiveCareGiver(ctx, doctorProfileID, patientProfile.ID)
}

// memberView renders an edge from the patient side
func memberView(edge *model.CareTeamEdge, email string) model.TeamMember {
	m := model.TeamMember{
		EdgeID:       edge.ID,
		ProfileID:    edge.MemberProfileID,
		Email:        email,
		Role:         edge.Role,
		Status:       edge.Status,
		RelationType: edge.RelationType,
		Since:        edge.CreatedAt,
	}
	if edge.MemberProfile != nil && edge.MemberProfile.Identity != nil {
		identity := edge.MemberProfile.Identity
		m.AccountID = identity.AccountID
		m.FirstName = identity.FirstName
		m.LastName = identity.LastName
		m.Phone = identity.Phone
	}
	return m
}

// patientView renders an edge from the doctor side
func patientView(edge *model.CareTeamEdge) model.TeamMember {
	m := model.TeamMember{
		EdgeID:    edge.ID,
		ProfileID: edge.PatientProfileID,
		Role:      edge.Role,
		Status:    edge.Status,
		Since:     edge.CreatedAt,
	}
	if edge.InvitationEmail != nil {
		m.Email = *edge.InvitationEmail
	}
	if edge.PatientProfile != nil && edge.PatientProfile.Identity != nil {
		identity := edge.PatientProfile.Identity
		m.AccountID = identity.AccountID
		m.FirstName = identity.FirstName
		m.LastName = identity.LastName
		m.Phone = identity.Phone
	}
	return m
}
