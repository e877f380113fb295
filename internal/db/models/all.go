package models

// All lists every model for auto migration.
func All() []any {
	return []any{
		&Setting{},
		&Group{},
		&SyncLink{},
		&RoleMapping{},
		&MemberPresence{},
		&SyncJob{},
		&OperationMark{},
		&RoleChangeLog{},
		&ConfigSnapshot{},
		&ConfigImportJob{},
	}
}
