package model

// All lists every persisted model, in dependency order, for AutoMigrate
func All() []interface{} {
	return []interface{}{
		&Account{},
		&Identity{},
		&Profile{},
		&PatientProfile{},
		&DoctorProfile{},
		&Device{},
		&PushToken{},
		&ReadingCache{},
		&ReadingHistory{},
		&AlertRule{},
		&UserAlertRule{},
		&AlertEvent{},
		&CareTeamEdge{},
		&MedicationSchedule{},
		&MedicationIntake{},
		&MealLog{},
		&ActivityLog{},
		&GlucosePrediction{},
	}
}
