package core

// GuestToken is the bearer credential that selects the guest identity.
const GuestToken = "guest"

// GuestUsername is the display name of the guest identity.
const GuestUsername = "Guest"

type IdentityKind int

const (
	IdentityRegistered IdentityKind = iota + 1
	IdentityGuest
)

func (k IdentityKind) String() string {
	switch k {
	case IdentityRegistered:
		return "registered"
	case IdentityGuest:
		return "guest"
	default:
		return "unknown"
	}
}

// Identity is the caller of a request, resolved once before any handler runs.
// UserID is only set for registered users.
type Identity struct {
	Kind     IdentityKind
	Username string
	UserID   int64
}

func GuestIdentity() Identity {
	return Identity{Kind: IdentityGuest, Username: GuestUsername}
}

func RegisteredIdentity(userID int64, username string) Identity {
	return Identity{Kind: IdentityRegistered, Username: username, UserID: userID}
}

func (i Identity) IsGuest() bool {
	return i.Kind == IdentityGuest
}
