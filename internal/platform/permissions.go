package platform

// Permission bits copied by the "safe" permission mode.
const (
	PermViewChannel            int64 = 1 << 10
	PermSendMessages           int64 = 1 << 11
	PermEmbedLinks             int64 = 1 << 14
	PermAttachFiles            int64 = 1 << 15
	PermReadMessageHistory     int64 = 1 << 16
	PermUseExternalEmojis      int64 = 1 << 18
	PermAddReactions           int64 = 1 << 6
	PermUseApplicationCommands int64 = 1 << 31
	PermUseExternalStickers    int64 = 1 << 37
)

// SafePermissions is the non-moderation subset of permissions.
const SafePermissions = PermViewChannel | PermSendMessages | PermReadMessageHistory |
	PermEmbedLinks | PermAttachFiles | PermAddReactions | PermUseExternalEmojis |
	PermUseExternalStickers | PermUseApplicationCommands
